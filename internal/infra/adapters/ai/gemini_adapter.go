package ai

import (
	"context"
	"errors"
	"strings"
	"time"

	"google.golang.org/genai"

	"support-chat-router/internal/domain/ports/adapter"
	"support-chat-router/internal/infra/metrics"
)

var _ adapter.AIServiceAdapter = (*GeminiAdapter)(nil)

// GeminiAdapter is the alternative provider, using the official SDK.
type GeminiAdapter struct {
	client       *genai.Client
	defaultModel string
	embedModel   string
}

func NewGeminiAdapter(ctx context.Context, apiKey, baseURL, defaultModel string) (*GeminiAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: baseURL,
		},
	})
	if err != nil {
		return nil, err
	}
	if defaultModel == "" {
		defaultModel = "gemini-2.0-flash"
	}
	return &GeminiAdapter{client: c, defaultModel: defaultModel, embedModel: "text-embedding-004"}, nil
}

func (g *GeminiAdapter) Chat(ctx context.Context, model string, messages []adapter.Message) (string, error) {
	if len(messages) == 0 {
		return "", errors.New("gemini: no messages")
	}
	history := toGenAIHistory(messages[:len(messages)-1])

	chat, err := g.client.Chats.Create(
		ctx,
		modelOrDefault(model, g.defaultModel),
		nil,
		history,
	)
	if err != nil {
		return "", err
	}

	last := messages[len(messages)-1]
	if strings.ToLower(last.Role) != adapter.RoleUser {
		return "", errors.New("gemini: last message must be from user")
	}

	start := time.Now()
	resp, err := chat.SendMessage(ctx, genai.Part{Text: last.Content})
	metrics.ObserveAICall("gemini", "chat", int(time.Since(start).Milliseconds()), err == nil)
	if err != nil {
		return "", err
	}

	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil && len(resp.Candidates[0].Content.Parts) > 0 {
		if t := resp.Candidates[0].Content.Parts[0].Text; t != "" {
			return t, nil
		}
	}
	return "", errors.New("gemini: empty candidate")
}

func (g *GeminiAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	resp, err := g.client.Models.EmbedContent(ctx, g.embedModel, genai.Text(text), nil)
	metrics.ObserveAICall("gemini", "embed", int(time.Since(start).Milliseconds()), err == nil)
	if err != nil {
		return nil, err
	}
	if resp == nil || len(resp.Embeddings) == 0 {
		return nil, errors.New("gemini: no embedding in response")
	}
	return resp.Embeddings[0].Values, nil
}

func toGenAIHistory(msgs []adapter.Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		role := genai.RoleUser
		switch strings.ToLower(m.Role) {
		case "assistant", "model":
			role = genai.RoleModel
		case "system":
			// Gemini has no separate system role in history; treat as a
			// user instruction.
			role = genai.RoleUser
		}
		out = append(out, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}
	return out
}

func modelOrDefault(model, def string) string {
	if strings.TrimSpace(model) != "" {
		return model
	}
	return def
}
