package usecase

import (
	"context"
	"strings"
	"sync"

	"support-chat-router/internal/domain"
	"support-chat-router/internal/domain/model"
	"support-chat-router/internal/domain/ports/adapter"
	"support-chat-router/internal/domain/ports/repository"
)

// ---- session repository ----

type memSessionRepo struct {
	mu         sync.Mutex
	messages   map[string][]model.ChatMessage
	handling   map[string]bool
	agents     map[string]string
	users      map[string][2]string
	unanswered map[string]int
	queue      []string
}

var _ repository.SessionRepository = (*memSessionRepo)(nil)

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{
		messages:   make(map[string][]model.ChatMessage),
		handling:   make(map[string]bool),
		agents:     make(map[string]string),
		users:      make(map[string][2]string),
		unanswered: make(map[string]int),
	}
}

func (r *memSessionRepo) AppendMessage(_ context.Context, sessionID string, msg model.ChatMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg.Stamp()
	msg.SessionID = ""
	r.messages[sessionID] = append(r.messages[sessionID], msg)
	return nil
}

func (r *memSessionRepo) Messages(_ context.Context, sessionID string) ([]model.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.ChatMessage, len(r.messages[sessionID]))
	copy(out, r.messages[sessionID])
	return out, nil
}

func (r *memSessionRepo) IsAgentHandling(_ context.Context, sessionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handling[sessionID], nil
}

func (r *memSessionRepo) SetAgentHandling(_ context.Context, sessionID string, handling bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handling[sessionID] = handling
	return nil
}

func (r *memSessionRepo) AssignAgent(_ context.Context, sessionID, agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[sessionID]; ok {
		return domain.ErrAgentAssigned
	}
	r.agents[sessionID] = agentID
	return nil
}

func (r *memSessionRepo) AssignedAgent(_ context.Context, sessionID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.agents[sessionID]
	if !ok {
		return "", domain.ErrNotFound
	}
	return id, nil
}

func (r *memSessionRepo) BindUser(_ context.Context, sessionID, userID, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[sessionID]; !ok {
		r.users[sessionID] = [2]string{userID, email}
	}
	return nil
}

func (r *memSessionRepo) BoundUser(_ context.Context, sessionID string) (string, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[sessionID]
	if !ok {
		return "", "", domain.ErrNotFound
	}
	return u[0], u[1], nil
}

func (r *memSessionRepo) IncrementUnanswered(_ context.Context, sessionID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unanswered[sessionID]++
	return r.unanswered[sessionID], nil
}

func (r *memSessionRepo) UnansweredCount(_ context.Context, sessionID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unanswered[sessionID], nil
}

func (r *memSessionRepo) ResetUnanswered(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.unanswered, sessionID)
	return nil
}

func (r *memSessionRepo) EnqueueSupport(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = append(r.queue, sessionID)
	return nil
}

func (r *memSessionRepo) SupportQueue(_ context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.queue))
	copy(out, r.queue)
	return out, nil
}

func (r *memSessionRepo) RemoveSupport(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, id := range r.queue {
		if id == sessionID {
			r.queue = append(r.queue[:i], r.queue[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *memSessionRepo) Clear(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.messages, sessionID)
	delete(r.handling, sessionID)
	delete(r.agents, sessionID)
	delete(r.users, sessionID)
	delete(r.unanswered, sessionID)
	return nil
}

// ---- AI adapter ----

// scriptedAI answers the intent-classifier prompt with a fixed label and
// every other chat call with generated, recording everything it saw.
type scriptedAI struct {
	mu        sync.Mutex
	intent    string
	generated string
	chatErr   error
	embedErr  error

	chatCalls  [][]adapter.Message
	embedCalls []string
}

var _ adapter.AIServiceAdapter = (*scriptedAI)(nil)

func (a *scriptedAI) Chat(_ context.Context, _ string, messages []adapter.Message) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.chatErr != nil {
		return "", a.chatErr
	}
	a.chatCalls = append(a.chatCalls, messages)
	if len(messages) > 0 && strings.Contains(messages[0].Content, "intent classifier") {
		return "intent: " + a.intent, nil
	}
	return a.generated, nil
}

func (a *scriptedAI) Embed(_ context.Context, text string) ([]float32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.embedErr != nil {
		return nil, a.embedErr
	}
	a.embedCalls = append(a.embedCalls, text)
	return []float32{0.1, 0.2, 0.3}, nil
}

// generationCalls counts chat calls that were not the classifier.
func (a *scriptedAI) generationCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, msgs := range a.chatCalls {
		if len(msgs) > 0 && !strings.Contains(msgs[0].Content, "intent classifier") {
			n++
		}
	}
	return n
}

// ---- retriever indexes ----

type fakeVectorIndex struct {
	mu       sync.Mutex
	passages []model.Passage
	err      error
	lastTopK int
}

var _ adapter.VectorIndex = (*fakeVectorIndex)(nil)

func (v *fakeVectorIndex) Search(_ context.Context, _ []float32, topK int) ([]model.Passage, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lastTopK = topK
	return v.passages, v.err
}

type fakeFAQIndex struct {
	exact   map[string]model.FAQ
	partial []model.FAQ
	random  []model.FAQ
	err     error
}

var _ adapter.FAQIndex = (*fakeFAQIndex)(nil)

func (f *fakeFAQIndex) ExactMatch(_ context.Context, text string) (*model.FAQ, error) {
	if f.err != nil {
		return nil, f.err
	}
	if faq, ok := f.exact[text]; ok {
		return &faq, nil
	}
	return nil, nil
}

func (f *fakeFAQIndex) PartialMatch(_ context.Context, _ string) ([]model.FAQ, error) {
	return f.partial, f.err
}

func (f *fakeFAQIndex) Random(_ context.Context, _ int) ([]model.FAQ, error) {
	return f.random, f.err
}

// ---- transport ----

type captureTransport struct {
	mu       sync.Mutex
	toUsers  map[string][]model.ChatMessage
	toAgents map[string][]model.ChatMessage
	casts    []model.ChatMessage
}

var _ adapter.Transport = (*captureTransport)(nil)

func newCaptureTransport() *captureTransport {
	return &captureTransport{
		toUsers:  make(map[string][]model.ChatMessage),
		toAgents: make(map[string][]model.ChatMessage),
	}
}

func (t *captureTransport) SendToUser(userID string, msg model.ChatMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.toUsers[userID] = append(t.toUsers[userID], msg)
	return nil
}

func (t *captureTransport) SendToAgent(agentID string, msg model.ChatMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.toAgents[agentID] = append(t.toAgents[agentID], msg)
	return nil
}

func (t *captureTransport) BroadcastAgents(msg model.ChatMessage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.casts = append(t.casts, msg)
}

// ---- fanout bus ----

type fanoutRecord struct {
	Topic   string
	Payload []byte
}

type memBus struct {
	mu        sync.Mutex
	published []fanoutRecord
}

var _ adapter.FanoutBus = (*memBus)(nil)

func (b *memBus) Publish(_ context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, fanoutRecord{Topic: topic, Payload: payload})
	return nil
}

func (b *memBus) Subscribe(context.Context, adapter.FanoutHandler) error { return nil }

func (b *memBus) byTopic(topic string) []fanoutRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []fanoutRecord
	for _, rec := range b.published {
		if rec.Topic == topic {
			out = append(out, rec)
		}
	}
	return out
}

// ---- history archive ----

type memArchive struct {
	mu    sync.Mutex
	saved map[string]map[string][]model.ChatMessage
}

var _ repository.HistoryArchive = (*memArchive)(nil)

func newMemArchive() *memArchive {
	return &memArchive{saved: make(map[string]map[string][]model.ChatMessage)}
}

func (a *memArchive) SaveHistory(_ context.Context, userID, sessionID string, msgs []model.ChatMessage) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.saved[userID] == nil {
		a.saved[userID] = make(map[string][]model.ChatMessage)
	}
	a.saved[userID][sessionID] = msgs
	return nil
}

func (a *memArchive) LatestHistory(_ context.Context, userID string) ([]model.ChatMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	sessions, ok := a.saved[userID]
	if !ok || len(sessions) == 0 {
		return nil, domain.ErrNotFound
	}
	for _, msgs := range sessions {
		return msgs, nil
	}
	return nil, domain.ErrNotFound
}
