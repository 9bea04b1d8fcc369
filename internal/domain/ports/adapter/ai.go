package adapter

import "context"

// Message mirrors the chat-completions wire shape so adapters can
// marshal it directly.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// AIServiceAdapter is the opaque language-model provider: free-form
// generation plus embedding lookup for the vector index.
type AIServiceAdapter interface {
	Chat(ctx context.Context, model string, messages []Message) (string, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}
