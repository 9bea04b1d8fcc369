package redis

import (
	"context"

	"github.com/rs/zerolog"

	"support-chat-router/internal/domain/ports/adapter"
)

var _ adapter.FanoutBus = (*Fanout)(nil)

// Fanout is the Redis pub/sub fanout bus. Every instance subscribes to
// the well-known channels plus the chat:* pattern; publishers include
// the consuming instance itself.
type Fanout struct {
	cli *Client
	log *zerolog.Logger
}

func NewFanout(cli *Client, logger *zerolog.Logger) *Fanout {
	return &Fanout{cli: cli, log: logger}
}

func (f *Fanout) Publish(ctx context.Context, topic string, payload []byte) error {
	return f.cli.Publish(ctx, topic, payload)
}

func (f *Fanout) Subscribe(ctx context.Context, h adapter.FanoutHandler) error {
	ps := f.cli.cli.PSubscribe(ctx, adapter.TopicChatPattern)
	if err := ps.Subscribe(ctx, adapter.TopicEscalation, adapter.TopicSwitch); err != nil {
		_ = ps.Close()
		return err
	}
	go func() {
		defer ps.Close()
		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				f.log.Debug().Str("channel", m.Channel).Msg("fanout event")
				h(m.Channel, []byte(m.Payload))
			}
		}
	}()
	return nil
}
