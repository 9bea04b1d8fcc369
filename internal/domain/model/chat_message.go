package model

import (
	"time"
)

type MessageType string

const (
	MessageTypeChat           MessageType = "CHAT"
	MessageTypeJoin           MessageType = "JOIN"
	MessageTypeLeave          MessageType = "LEAVE"
	MessageTypeFAQSuggestions MessageType = "FAQ_SUGGESTIONS"
	MessageTypeSuggestions    MessageType = "SUGGESTIONS"
	MessageTypeRequestAgent   MessageType = "REQUEST_AGENT"
)

// Well-known sender labels. User and agent messages carry the actor's
// own identity as the sender instead.
const (
	SenderBot    = "Bot"
	SenderSystem = "System"
)

// ChatMessage is one entry of a session transcript. The JSON shape is
// also the wire format on the fanout bus and the transport.
type ChatMessage struct {
	SessionID string      `json:"chatSessionId,omitempty"`
	Sender    string      `json:"sender"`
	Content   string      `json:"content"`
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

func NewChatMessage(sender, content string, typ MessageType) ChatMessage {
	return ChatMessage{
		Sender:    sender,
		Content:   content,
		Type:      typ,
		Timestamp: time.Now().UTC(),
	}
}

// Stamp fills a missing timestamp. Transcript entries must always carry
// one at the point of persistence.
func (m *ChatMessage) Stamp() {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
}

func (m MessageType) Valid() bool {
	switch m {
	case MessageTypeChat, MessageTypeJoin, MessageTypeLeave,
		MessageTypeFAQSuggestions, MessageTypeSuggestions, MessageTypeRequestAgent:
		return true
	}
	return false
}
