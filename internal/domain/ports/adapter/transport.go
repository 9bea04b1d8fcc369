package adapter

import "support-chat-router/internal/domain/model"

// Transport delivers outbound messages to clients connected to this
// instance only. A send to an identity without a local connection is not
// an error; another instance holds that connection.
type Transport interface {
	SendToUser(userID string, msg model.ChatMessage) error
	SendToAgent(agentID string, msg model.ChatMessage) error
	// BroadcastAgents pushes a notice to every locally connected agent
	// dashboard (new-escalation fanout).
	BroadcastAgents(msg model.ChatMessage)
}
