package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"support-chat-router/internal/domain"
	"support-chat-router/internal/domain/model"
)

const keyTicketPrefix = "connectTicket:"

// TicketStore holds short-lived, single-use websocket connect tickets.
// Browsers cannot attach an Authorization header to an upgrade request,
// so the authenticated REST side mints a ticket the socket redeems.
type TicketStore struct {
	client RedisClient
	ttl    time.Duration
}

func NewTicketStore(client RedisClient, ttl time.Duration) *TicketStore {
	return &TicketStore{client: client, ttl: ttl}
}

func (s *TicketStore) Issue(ctx context.Context, actor model.Actor) (string, error) {
	data, err := json.Marshal(actor)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	if err := s.client.Set(ctx, keyTicketPrefix+id, data, s.ttl); err != nil {
		return "", err
	}
	return id, nil
}

// Redeem consumes the ticket; a second redeem fails.
func (s *TicketStore) Redeem(ctx context.Context, id string) (model.Actor, error) {
	data, err := s.client.GetDel(ctx, keyTicketPrefix+id)
	if errors.Is(err, redis.Nil) {
		return model.Actor{}, domain.ErrTicketInvalid
	}
	if err != nil {
		return model.Actor{}, err
	}
	var actor model.Actor
	if err := json.Unmarshal([]byte(data), &actor); err != nil {
		return model.Actor{}, domain.ErrTicketInvalid
	}
	return actor, nil
}
