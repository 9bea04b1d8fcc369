package repository

import (
	"context"

	"support-chat-router/internal/domain/model"
)

// HistoryArchive persists finalized transcripts. The archive is an
// external collaborator; this contract is all the router depends on.
type HistoryArchive interface {
	SaveHistory(ctx context.Context, userID, sessionID string, msgs []model.ChatMessage) error
	// LatestHistory returns the messages of the user's most recent
	// archived session, oldest first.
	LatestHistory(ctx context.Context, userID string) ([]model.ChatMessage, error)
}
