package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"support-chat-router/internal/domain/model"
	"support-chat-router/internal/domain/ports/adapter"
)

var _ adapter.VectorIndex = (*MilvusIndex)(nil)

// MilvusIndex queries the knowledge collection over the Milvus REST v2
// endpoint. The collection schema carries "content" and "answer" fields
// beside the embedding.
type MilvusIndex struct {
	base       string
	collection string
	client     *http.Client
}

func NewMilvusIndex(baseURL, collection string) (*MilvusIndex, error) {
	if baseURL == "" {
		return nil, errors.New("milvus url empty")
	}
	return &MilvusIndex{
		base:       baseURL,
		collection: collection,
		client:     &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (m *MilvusIndex) Search(ctx context.Context, vector []float32, topK int) ([]model.Passage, error) {
	reqBody := struct {
		CollectionName string      `json:"collectionName"`
		Data           [][]float32 `json:"data"`
		AnnsField      string      `json:"annsField"`
		Limit          int         `json:"limit"`
		OutputFields   []string    `json:"outputFields"`
	}{
		CollectionName: m.collection,
		Data:           [][]float32{vector},
		AnnsField:      "embedding",
		Limit:          topK,
		OutputFields:   []string{"content", "answer"},
	}

	b, _ := json.Marshal(reqBody)
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, m.base+"/v2/vectordb/entities/search", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("milvus http %d", resp.StatusCode)
	}

	var payload struct {
		Code int `json:"code"`
		Data []struct {
			Content  string  `json:"content"`
			Answer   string  `json:"answer"`
			Distance float32 `json:"distance"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	if payload.Code != 0 {
		return nil, fmt.Errorf("milvus error code %d", payload.Code)
	}

	passages := make([]model.Passage, 0, len(payload.Data))
	for _, d := range payload.Data {
		passages = append(passages, model.Passage{Content: d.Content, Answer: d.Answer, Score: d.Distance})
	}
	return passages, nil
}
