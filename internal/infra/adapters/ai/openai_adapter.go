package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"support-chat-router/internal/domain/ports/adapter"
	"support-chat-router/internal/infra/metrics"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.AIServiceAdapter = (*OpenAIAdapter)(nil)

// OpenAIAdapter implements adapter.AIServiceAdapter using the Chat
// Completions and Embeddings APIs.
type OpenAIAdapter struct {
	apiKey     string
	base       string // e.g., https://api.openai.com/v1
	model      string
	embedModel string
	client     *http.Client
}

func NewOpenAIAdapter(apiKey, model, embedModel string) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key empty")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	if embedModel == "" {
		embedModel = "text-embedding-3-small"
	}
	return &OpenAIAdapter{
		apiKey:     apiKey,
		base:       "https://api.openai.com/v1",
		model:      model,
		embedModel: embedModel,
		client:     &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (o *OpenAIAdapter) Chat(ctx context.Context, model string, messages []adapter.Message) (string, error) {
	if model == "" {
		model = o.model
	}

	reqBody := struct {
		Model    string            `json:"model"`
		Messages []adapter.Message `json:"messages"`
	}{Model: model, Messages: messages}

	start := time.Now()
	var payload struct {
		Choices []struct {
			Message adapter.Message `json:"message"`
		} `json:"choices"`
	}
	err := o.post(ctx, "/chat/completions", reqBody, &payload)
	metrics.ObserveAICall("openai", "chat", int(time.Since(start).Milliseconds()), err == nil)
	if err != nil {
		return "", err
	}
	for _, c := range payload.Choices {
		if c.Message.Content != "" {
			return c.Message.Content, nil
		}
	}
	return "", errors.New("no choice content")
}

func (o *OpenAIAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody := struct {
		Input string `json:"input"`
		Model string `json:"model"`
	}{Input: text, Model: o.embedModel}

	start := time.Now()
	var payload struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	err := o.post(ctx, "/embeddings", reqBody, &payload)
	metrics.ObserveAICall("openai", "embed", int(time.Since(start).Milliseconds()), err == nil)
	if err != nil {
		return nil, err
	}
	if len(payload.Data) == 0 || len(payload.Data[0].Embedding) == 0 {
		return nil, errors.New("no embedding in response")
	}
	return payload.Data[0].Embedding, nil
}

func (o *OpenAIAdapter) post(ctx context.Context, path string, body, out interface{}) error {
	b, _ := json.Marshal(body)
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, o.base+path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("openai http %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
