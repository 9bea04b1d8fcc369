package usecase

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"support-chat-router/internal/domain/ports/adapter"
)

var _ FAQSuggester = (*faqUC)(nil)

// FAQSuggester serves conversation-starter questions from a periodically
// refreshed random sample, answers selections from the cache, and looks
// up partial matches for autocomplete.
type FAQSuggester interface {
	Initial(n int) []string
	Select(question string) (string, bool)
	Suggest(ctx context.Context, input string) ([]string, error)
	Refresh(ctx context.Context) error
}

type faqUC struct {
	index  adapter.FAQIndex
	sample int

	mu    sync.RWMutex
	cache map[string]string

	log *zerolog.Logger
}

func NewFAQSuggester(index adapter.FAQIndex, sample int, logger *zerolog.Logger) *faqUC {
	return &faqUC{
		index:  index,
		sample: sample,
		cache:  make(map[string]string),
		log:    logger,
	}
}

// Start loads the cache once and refreshes it on the given interval
// until ctx is cancelled. A failed refresh keeps the previous sample.
func (f *faqUC) Start(ctx context.Context, interval time.Duration) {
	if err := f.Refresh(ctx); err != nil {
		f.log.Warn().Err(err).Msg("initial FAQ load failed")
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := f.Refresh(ctx); err != nil {
					f.log.Warn().Err(err).Msg("FAQ refresh failed")
				}
			}
		}
	}()
}

func (f *faqUC) Refresh(ctx context.Context) error {
	faqs, err := f.index.Random(ctx, f.sample)
	if err != nil {
		return err
	}
	next := make(map[string]string, len(faqs))
	for _, q := range faqs {
		next[q.Question] = q.Answer
	}
	f.mu.Lock()
	f.cache = next
	f.mu.Unlock()
	f.log.Debug().Int("count", len(next)).Msg("FAQ cache refreshed")
	return nil
}

func (f *faqUC) Initial(n int) []string {
	f.mu.RLock()
	questions := make([]string, 0, len(f.cache))
	for q := range f.cache {
		questions = append(questions, q)
	}
	f.mu.RUnlock()

	rand.Shuffle(len(questions), func(i, j int) {
		questions[i], questions[j] = questions[j], questions[i]
	})
	if len(questions) > n {
		questions = questions[:n]
	}
	return questions
}

func (f *faqUC) Select(question string) (string, bool) {
	f.mu.RLock()
	answer, ok := f.cache[question]
	f.mu.RUnlock()
	return answer, ok
}

func (f *faqUC) Suggest(ctx context.Context, input string) ([]string, error) {
	faqs, err := f.index.PartialMatch(ctx, input)
	if err != nil {
		return nil, err
	}
	if len(faqs) > 3 {
		faqs = faqs[:3]
	}
	questions := make([]string, 0, len(faqs))
	for _, q := range faqs {
		questions = append(questions, q.Question)
	}
	return questions, nil
}
