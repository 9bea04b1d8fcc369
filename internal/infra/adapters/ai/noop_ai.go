package ai

import (
	"context"

	"support-chat-router/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*NoopAI)(nil)

// NoopAI returns canned output; used in dev mode and wiring tests.
type NoopAI struct {
	Reply string
}

func (n *NoopAI) Chat(ctx context.Context, model string, messages []adapter.Message) (string, error) {
	if n.Reply != "" {
		return n.Reply, nil
	}
	return "noop", nil
}

func (n *NoopAI) Embed(ctx context.Context, text string) ([]float32, error) {
	return make([]float32, 8), nil
}
