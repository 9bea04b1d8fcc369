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

var _ adapter.FAQIndex = (*ElasticFAQIndex)(nil)

// ElasticFAQIndex serves exact-phrase, n-gram partial and random-sample
// lookups against the FAQ text index.
type ElasticFAQIndex struct {
	base     string
	index    string
	username string
	password string
	client   *http.Client
}

func NewElasticFAQIndex(baseURL, index, username, password string) (*ElasticFAQIndex, error) {
	if baseURL == "" {
		return nil, errors.New("elasticsearch url empty")
	}
	return &ElasticFAQIndex{
		base:     baseURL,
		index:    index,
		username: username,
		password: password,
		client:   &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (e *ElasticFAQIndex) ExactMatch(ctx context.Context, text string) (*model.FAQ, error) {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"query_string": map[string]interface{}{
				"default_field": "question",
				"query":         fmt.Sprintf("%q", text),
			},
		},
	}
	faqs, err := e.search(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(faqs) == 0 {
		return nil, nil
	}
	return &faqs[0], nil
}

func (e *ElasticFAQIndex) PartialMatch(ctx context.Context, text string) ([]model.FAQ, error) {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"match": map[string]interface{}{
				"question.ngram": text,
			},
		},
	}
	return e.search(ctx, query)
}

func (e *ElasticFAQIndex) Random(ctx context.Context, n int) ([]model.FAQ, error) {
	query := map[string]interface{}{
		"size": n,
		"query": map[string]interface{}{
			"function_score": map[string]interface{}{
				"query":        map[string]interface{}{"match_all": map[string]interface{}{}},
				"random_score": map[string]interface{}{},
			},
		},
	}
	return e.search(ctx, query)
}

func (e *ElasticFAQIndex) search(ctx context.Context, query map[string]interface{}) ([]model.FAQ, error) {
	b, _ := json.Marshal(query)
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, e.base+"/"+e.index+"/_search", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	if e.username != "" {
		req.SetBasicAuth(e.username, e.password)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("elasticsearch http %d", resp.StatusCode)
	}

	var payload struct {
		Hits struct {
			Hits []struct {
				Source model.FAQ `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	faqs := make([]model.FAQ, 0, len(payload.Hits.Hits))
	for _, h := range payload.Hits.Hits {
		faqs = append(faqs, h.Source)
	}
	return faqs, nil
}
