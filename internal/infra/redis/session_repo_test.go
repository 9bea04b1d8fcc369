package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"support-chat-router/internal/domain"
	"support-chat-router/internal/domain/model"
)

// ---- in-memory RedisClient fake ----

type fakeRedis struct {
	mu      sync.Mutex
	strings map[string]string
	expiry  map[string]time.Time
	lists   map[string][]string
	hashes  map[string]map[string]string
}

var _ RedisClient = (*fakeRedis)(nil)

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		strings: map[string]string{},
		expiry:  map[string]time.Time{},
		lists:   map[string][]string{},
		hashes:  map[string]map[string]string{},
	}
}

func (f *fakeRedis) Ping(ctx context.Context) error { return nil }

func (f *fakeRedis) expired(key string) bool {
	t, ok := f.expiry[key]
	return ok && time.Now().After(t)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.strings[key] = toStr(value)
	if expiration > 0 {
		f.expiry[key] = time.Now().Add(expiration)
	}
	return nil
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.strings[key]; ok && !f.expired(key) {
		return false, nil
	}
	f.strings[key] = toStr(value)
	if expiration > 0 {
		f.expiry[key] = time.Now().Add(expiration)
	}
	return true, nil
}

func (f *fakeRedis) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.strings[key]
	if !ok || f.expired(key) {
		return "", goredis.Nil
	}
	return v, nil
}

func (f *fakeRedis) GetDel(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.strings[key]
	if !ok || f.expired(key) {
		return "", goredis.Nil
	}
	delete(f.strings, key)
	delete(f.expiry, key)
	return v, nil
}

func (f *fakeRedis) Incr(ctx context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	fmt.Sscanf(f.strings[key], "%d", &n)
	n++
	f.strings[key] = fmt.Sprintf("%d", n)
	return n, nil
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.strings, k)
		delete(f.expiry, k)
		delete(f.lists, k)
		delete(f.hashes, k)
	}
	return nil
}

func (f *fakeRedis) RPush(ctx context.Context, key string, values ...interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range values {
		f.lists[key] = append(f.lists[key], toStr(v))
	}
	return nil
}

func (f *fakeRedis) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.lists[key]))
	copy(out, f.lists[key])
	return out, nil
}

func (f *fakeRedis) LRem(ctx context.Context, key string, count int64, value interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	want := toStr(value)
	removed := int64(0)
	kept := f.lists[key][:0]
	for _, v := range f.lists[key] {
		if v == want && removed < count {
			removed++
			continue
		}
		kept = append(kept, v)
	}
	f.lists[key] = kept
	return nil
}

func (f *fakeRedis) HSet(ctx context.Context, key, field string, value interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hashes[key] == nil {
		f.hashes[key] = map[string]string{}
	}
	f.hashes[key][field] = toStr(value)
	return nil
}

func (f *fakeRedis) HGet(ctx context.Context, key, field string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.hashes[key][field]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, payload interface{}) error {
	return nil
}

func (f *fakeRedis) Close() error { return nil }

func toStr(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// ---- tests ----

func TestAppendAndReadBackPreservesOrderAndFields(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepo(newFakeRedis())

	in := []model.ChatMessage{
		{Sender: "u-1", Content: "第一句", Type: model.MessageTypeChat, Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
		{Sender: model.SenderBot, Content: "回覆", Type: model.MessageTypeChat}, // no timestamp on input
		{Sender: model.SenderSystem, Content: "queued", Type: model.MessageTypeRequestAgent},
	}
	for _, m := range in {
		if err := repo.AppendMessage(ctx, "s1", m); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := repo.Messages(ctx, "s1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != len(in) {
		t.Fatalf("got %d messages, want %d", len(got), len(in))
	}
	for i := range in {
		if got[i].Sender != in[i].Sender || got[i].Content != in[i].Content || got[i].Type != in[i].Type {
			t.Fatalf("message %d mismatch: %+v", i, got[i])
		}
		if got[i].Timestamp.IsZero() {
			t.Fatalf("message %d has no timestamp after persistence", i)
		}
	}
	if !got[0].Timestamp.Equal(in[0].Timestamp) {
		t.Fatalf("explicit timestamp altered: %v", got[0].Timestamp)
	}
}

func TestMessagesDropsMalformedEntries(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	repo := NewSessionRepo(fake)

	if err := repo.AppendMessage(ctx, "s1", model.NewChatMessage("u-1", "ok", model.MessageTypeChat)); err != nil {
		t.Fatal(err)
	}
	_ = fake.RPush(ctx, "chatSession:s1.chatMessages", "{not json")
	if err := repo.AppendMessage(ctx, "s1", model.NewChatMessage(model.SenderBot, "also ok", model.MessageTypeChat)); err != nil {
		t.Fatal(err)
	}

	got, err := repo.Messages(ctx, "s1")
	if err != nil {
		t.Fatalf("read must not fail on malformed entries: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2 (malformed dropped)", len(got))
	}
}

func TestAgentHandlingDefaultsFalse(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepo(newFakeRedis())

	h, err := repo.IsAgentHandling(ctx, "fresh")
	if err != nil || h {
		t.Fatalf("fresh session: handling=%v err=%v, want false/nil", h, err)
	}
	if err := repo.SetAgentHandling(ctx, "fresh", true); err != nil {
		t.Fatal(err)
	}
	h, err = repo.IsAgentHandling(ctx, "fresh")
	if err != nil || !h {
		t.Fatalf("after set: handling=%v err=%v, want true/nil", h, err)
	}
}

func TestAssignAgentIsWriteOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepo(newFakeRedis())

	if err := repo.AssignAgent(ctx, "s1", "agent-1"); err != nil {
		t.Fatalf("first assign: %v", err)
	}
	if err := repo.AssignAgent(ctx, "s1", "agent-2"); !errors.Is(err, domain.ErrAgentAssigned) {
		t.Fatalf("second assign: err=%v, want ErrAgentAssigned", err)
	}
	id, err := repo.AssignedAgent(ctx, "s1")
	if err != nil || id != "agent-1" {
		t.Fatalf("assigned=%q err=%v", id, err)
	}
}

func TestBindUserFirstWriteWins(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepo(newFakeRedis())

	if err := repo.BindUser(ctx, "s1", "u-1", "a@example.com"); err != nil {
		t.Fatal(err)
	}
	if err := repo.BindUser(ctx, "s1", "u-2", "b@example.com"); err != nil {
		t.Fatalf("rebind must be a no-op, got %v", err)
	}
	uid, email, err := repo.BoundUser(ctx, "s1")
	if err != nil || uid != "u-1" || email != "a@example.com" {
		t.Fatalf("bound=%q/%q err=%v", uid, email, err)
	}
}

func TestUnansweredCounter(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepo(newFakeRedis())

	if n, _ := repo.UnansweredCount(ctx, "s1"); n != 0 {
		t.Fatalf("fresh count=%d, want 0", n)
	}
	if n, err := repo.IncrementUnanswered(ctx, "s1"); err != nil || n != 1 {
		t.Fatalf("incr: n=%d err=%v", n, err)
	}
	if err := repo.ResetUnanswered(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if n, _ := repo.UnansweredCount(ctx, "s1"); n != 0 {
		t.Fatalf("after reset count=%d, want 0", n)
	}
}

func TestSupportQueueFIFOAndRemove(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepo(newFakeRedis())

	for _, id := range []string{"a", "b", "a"} {
		if err := repo.EnqueueSupport(ctx, id); err != nil {
			t.Fatal(err)
		}
	}
	q, err := repo.SupportQueue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	// Duplicates are intentionally not deduplicated.
	if len(q) != 3 || q[0] != "a" || q[1] != "b" || q[2] != "a" {
		t.Fatalf("queue=%v", q)
	}
	if err := repo.RemoveSupport(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	q, _ = repo.SupportQueue(ctx)
	if len(q) != 2 || q[0] != "b" || q[1] != "a" {
		t.Fatalf("queue after remove=%v", q)
	}
}

func TestClearIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepo(newFakeRedis())

	_ = repo.AppendMessage(ctx, "s1", model.NewChatMessage("u-1", "hello", model.MessageTypeChat))
	_ = repo.BindUser(ctx, "s1", "u-1", "a@example.com")
	_, _ = repo.IncrementUnanswered(ctx, "s1")
	_ = repo.SetAgentHandling(ctx, "s1", true)
	_ = repo.AssignAgent(ctx, "s1", "agent-1")

	if err := repo.Clear(ctx, "s1"); err != nil {
		t.Fatalf("first clear: %v", err)
	}
	if err := repo.Clear(ctx, "s1"); err != nil {
		t.Fatalf("second clear must be a no-op: %v", err)
	}

	if msgs, _ := repo.Messages(ctx, "s1"); len(msgs) != 0 {
		t.Fatalf("transcript survived clear: %v", msgs)
	}
	if h, _ := repo.IsAgentHandling(ctx, "s1"); h {
		t.Fatal("agent handling flag survived clear")
	}
	if _, _, err := repo.BoundUser(ctx, "s1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("user binding survived clear: %v", err)
	}
}

func TestTicketIsSingleUse(t *testing.T) {
	ctx := context.Background()
	store := NewTicketStore(newFakeRedis(), time.Minute)

	actor := model.Actor{ID: "u-1", Email: "a@example.com", Role: model.RoleUser}
	id, err := store.Issue(ctx, actor)
	if err != nil {
		t.Fatal(err)
	}
	got, err := store.Redeem(ctx, id)
	if err != nil || got != actor {
		t.Fatalf("redeem: %+v err=%v", got, err)
	}
	if _, err := store.Redeem(ctx, id); !errors.Is(err, domain.ErrTicketInvalid) {
		t.Fatalf("second redeem: err=%v, want ErrTicketInvalid", err)
	}
}
