package repository

import (
	"context"

	"support-chat-router/internal/domain/model"
)

// SessionRepository is the shared session store contract. Every router
// instance reads and writes through it; no instance keeps durable state
// of its own. Sessions come into existence on first write.
type SessionRepository interface {
	// AppendMessage pushes a transcript entry; a missing timestamp is
	// filled before persistence. Append order is delivery order.
	AppendMessage(ctx context.Context, sessionID string, msg model.ChatMessage) error
	// Messages returns the full transcript. Entries that fail to decode
	// are dropped, never fatal to the read.
	Messages(ctx context.Context, sessionID string) ([]model.ChatMessage, error)

	IsAgentHandling(ctx context.Context, sessionID string) (bool, error)
	SetAgentHandling(ctx context.Context, sessionID string, handling bool) error

	// AssignAgent binds the agent exactly once; a second assignment
	// returns domain.ErrAgentAssigned.
	AssignAgent(ctx context.Context, sessionID, agentID string) error
	AssignedAgent(ctx context.Context, sessionID string) (string, error)

	// BindUser records the user identity at session start; later calls
	// for the same session are no-ops (first write wins).
	BindUser(ctx context.Context, sessionID, userID, email string) error
	BoundUser(ctx context.Context, sessionID string) (userID, email string, err error)

	IncrementUnanswered(ctx context.Context, sessionID string) (int, error)
	UnansweredCount(ctx context.Context, sessionID string) (int, error)
	ResetUnanswered(ctx context.Context, sessionID string) error

	EnqueueSupport(ctx context.Context, sessionID string) error
	SupportQueue(ctx context.Context) ([]string, error)
	RemoveSupport(ctx context.Context, sessionID string) error

	// Clear deletes every key of the session. Idempotent.
	Clear(ctx context.Context, sessionID string) error
}
