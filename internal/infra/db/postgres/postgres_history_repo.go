package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/oklog/ulid/v2"

	"support-chat-router/internal/domain"
	"support-chat-router/internal/domain/model"
	"support-chat-router/internal/domain/ports/repository"
)

var _ repository.HistoryArchive = (*HistoryRepo)(nil)

// HistoryRepo archives finalized transcripts. Row ids are ULIDs so the
// insertion order of one archival pass is also the lexical id order.
type HistoryRepo struct {
	pool *pgxpool.Pool
}

func NewHistoryRepo(pool *pgxpool.Pool) *HistoryRepo {
	return &HistoryRepo{pool: pool}
}

func (r *HistoryRepo) SaveHistory(ctx context.Context, userID, sessionID string, msgs []model.ChatMessage) error {
	const q = `
INSERT INTO chat_history (id, user_id, session_id, sender, content, type, ts)
VALUES ($1,$2,$3,$4,$5,$6,$7)`

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin archive tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, m := range msgs {
		m.Stamp()
		_, err := tx.Exec(ctx, q,
			ulid.Make().String(), userID, sessionID,
			m.Sender, m.Content, string(m.Type), m.Timestamp)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				// Re-archiving the same transcript is a no-op.
				continue
			}
			return fmt.Errorf("archive message: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (r *HistoryRepo) LatestHistory(ctx context.Context, userID string) ([]model.ChatMessage, error) {
	const latest = `
SELECT session_id FROM chat_history
WHERE user_id = $1
ORDER BY ts DESC
LIMIT 1`

	var sessionID string
	if err := r.pool.QueryRow(ctx, latest, userID).Scan(&sessionID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	const q = `
SELECT session_id, sender, content, type, ts FROM chat_history
WHERE user_id = $1 AND session_id = $2
ORDER BY ts ASC, id ASC`

	rows, err := r.pool.Query(ctx, q, userID, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []model.ChatMessage
	for rows.Next() {
		var m model.ChatMessage
		var typ string
		var ts time.Time
		if err := rows.Scan(&m.SessionID, &m.Sender, &m.Content, &typ, &ts); err != nil {
			return nil, err
		}
		m.Type = model.MessageType(typ)
		m.Timestamp = ts
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
