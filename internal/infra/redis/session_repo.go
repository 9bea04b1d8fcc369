package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/go-redis/redis/v8"

	"support-chat-router/internal/domain"
	"support-chat-router/internal/domain/model"
	"support-chat-router/internal/domain/ports/repository"
)

// Key scheme, one suffix per session attribute. The transcript list is
// the only multi-value key; RPUSH keeps append order, which is the
// delivery order contract.
const (
	keySessionPrefix = "chatSession:"
	keyAgentPrefix   = "agentSession:"

	suffixMessages   = ".chatMessages"
	suffixUserID     = ".userId"
	suffixEmail      = ".email"
	suffixUnanswered = ".unansweredCount"
	suffixAgentID    = ".agentId"

	fieldAgentHandling = "isAgentHandling"

	keySupportQueue = "humanSupportQueue"
)

var _ repository.SessionRepository = (*SessionRepo)(nil)

// SessionRepo is the Redis-backed session store. Sessions are created
// implicitly on first write and hold no TTL while active.
type SessionRepo struct {
	client RedisClient
}

func NewSessionRepo(client RedisClient) *SessionRepo {
	return &SessionRepo{client: client}
}

func (r *SessionRepo) AppendMessage(ctx context.Context, sessionID string, msg model.ChatMessage) error {
	msg.Stamp()
	msg.SessionID = "" // transcript entries are keyed by session already
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return r.client.RPush(ctx, keySessionPrefix+sessionID+suffixMessages, data)
}

func (r *SessionRepo) Messages(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	raw, err := r.client.LRange(ctx, keySessionPrefix+sessionID+suffixMessages, 0, -1)
	if err != nil {
		return nil, err
	}
	msgs := make([]model.ChatMessage, 0, len(raw))
	for _, entry := range raw {
		var m model.ChatMessage
		if err := json.Unmarshal([]byte(entry), &m); err != nil {
			// Malformed entries are dropped, never fatal to the read.
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (r *SessionRepo) IsAgentHandling(ctx context.Context, sessionID string) (bool, error) {
	v, err := r.client.HGet(ctx, keySessionPrefix+sessionID, fieldAgentHandling)
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v == "1", nil
}

func (r *SessionRepo) SetAgentHandling(ctx context.Context, sessionID string, handling bool) error {
	v := "0"
	if handling {
		v = "1"
	}
	return r.client.HSet(ctx, keySessionPrefix+sessionID, fieldAgentHandling, v)
}

func (r *SessionRepo) AssignAgent(ctx context.Context, sessionID, agentID string) error {
	ok, err := r.client.SetNX(ctx, keyAgentPrefix+sessionID+suffixAgentID, agentID, 0)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrAgentAssigned
	}
	return nil
}

func (r *SessionRepo) AssignedAgent(ctx context.Context, sessionID string) (string, error) {
	v, err := r.client.Get(ctx, keyAgentPrefix+sessionID+suffixAgentID)
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrNotFound
	}
	return v, err
}

func (r *SessionRepo) BindUser(ctx context.Context, sessionID, userID, email string) error {
	// First write wins; rebinding an already-bound session is a no-op.
	if _, err := r.client.SetNX(ctx, keySessionPrefix+sessionID+suffixUserID, userID, 0); err != nil {
		return err
	}
	_, err := r.client.SetNX(ctx, keySessionPrefix+sessionID+suffixEmail, email, 0)
	return err
}

func (r *SessionRepo) BoundUser(ctx context.Context, sessionID string) (string, string, error) {
	userID, err := r.client.Get(ctx, keySessionPrefix+sessionID+suffixUserID)
	if errors.Is(err, redis.Nil) {
		return "", "", domain.ErrNotFound
	}
	if err != nil {
		return "", "", err
	}
	email, err := r.client.Get(ctx, keySessionPrefix+sessionID+suffixEmail)
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", "", err
	}
	return userID, email, nil
}

func (r *SessionRepo) IncrementUnanswered(ctx context.Context, sessionID string) (int, error) {
	n, err := r.client.Incr(ctx, keySessionPrefix+sessionID+suffixUnanswered)
	return int(n), err
}

func (r *SessionRepo) UnansweredCount(ctx context.Context, sessionID string) (int, error) {
	v, err := r.client.Get(ctx, keySessionPrefix+sessionID+suffixUnanswered)
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(v)
}

func (r *SessionRepo) ResetUnanswered(ctx context.Context, sessionID string) error {
	return r.client.Del(ctx, keySessionPrefix+sessionID+suffixUnanswered)
}

func (r *SessionRepo) EnqueueSupport(ctx context.Context, sessionID string) error {
	// No dedup guard: repeated requests enqueue duplicate entries.
	return r.client.RPush(ctx, keySupportQueue, sessionID)
}

func (r *SessionRepo) SupportQueue(ctx context.Context) ([]string, error) {
	return r.client.LRange(ctx, keySupportQueue, 0, -1)
}

func (r *SessionRepo) RemoveSupport(ctx context.Context, sessionID string) error {
	return r.client.LRem(ctx, keySupportQueue, 1, sessionID)
}

func (r *SessionRepo) Clear(ctx context.Context, sessionID string) error {
	return r.client.Del(ctx,
		keySessionPrefix+sessionID+suffixMessages,
		keySessionPrefix+sessionID+suffixUserID,
		keySessionPrefix+sessionID+suffixEmail,
		keySessionPrefix+sessionID+suffixUnanswered,
		keySessionPrefix+sessionID,
		keyAgentPrefix+sessionID+suffixAgentID,
	)
}
