package adapter

import "context"

// Fanout topics shared by all router instances. Per-session chat traffic
// uses the dynamic "chat:<sessionID>" channels, matched by TopicChatPattern.
const (
	TopicChatPrefix  = "chat:"
	TopicChatPattern = "chat:*"
	TopicEscalation  = "humanSupportQueue"
	TopicSwitch      = "chatSessionSwitch"
)

// FanoutHandler receives every event published by any instance,
// including this one. At-least-once; ordered per topic per publisher.
type FanoutHandler func(topic string, payload []byte)

// FanoutBus is the cross-instance publish/subscribe layer.
type FanoutBus interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe registers h for the well-known topics plus the chat
	// pattern and delivers events until ctx is cancelled.
	Subscribe(ctx context.Context, h FanoutHandler) error
}
