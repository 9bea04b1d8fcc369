package adapter

import (
	"context"

	"support-chat-router/internal/domain/model"
)

// VectorIndex is the nearest-neighbor side of the knowledge retriever.
type VectorIndex interface {
	Search(ctx context.Context, vector []float32, topK int) ([]model.Passage, error)
}

// FAQIndex is the keyword side of the knowledge retriever.
type FAQIndex interface {
	// ExactMatch returns the FAQ for an exact-phrase hit, nil when none.
	ExactMatch(ctx context.Context, text string) (*model.FAQ, error)
	// PartialMatch returns n-gram partial hits for live-typing suggestions.
	PartialMatch(ctx context.Context, text string) ([]model.FAQ, error)
	// Random samples n entries for the startup suggestion cache.
	Random(ctx context.Context, n int) ([]model.FAQ, error)
}
