package db

import (
	"context"

	"github.com/google/uuid"

	"screeningcomms/internal/types"
)

// StatusRepository appends MessageStatus and ChannelStatus events. Both
// inserts are idempotent on idempotency_key: replaying an event is a no-op.
type StatusRepository struct {
	db DBTX
}

// NewStatusRepository creates a StatusRepository.
func NewStatusRepository(db DBTX) *StatusRepository {
	return &StatusRepository{db: db}
}

// InsertMessageStatus stores e unless its idempotency key was seen before.
// It reports whether a row was written.
func (r *StatusRepository) InsertMessageStatus(ctx context.Context, e *types.MessageStatusEvent) (bool, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	tag, err := r.db.Exec(ctx,
		`INSERT INTO message_statuses (id, message_id, status, description, idempotency_key, status_updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (idempotency_key) DO NOTHING`,
		e.ID, e.MessageID, e.Status, e.Description, e.IdempotencyKey, e.StatusUpdatedAt,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to insert message status", err)
	}
	return tag.RowsAffected() == 1, nil
}

// InsertChannelStatus stores e unless its idempotency key was seen before.
func (r *StatusRepository) InsertChannelStatus(ctx context.Context, e *types.ChannelStatusEvent) (bool, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	tag, err := r.db.Exec(ctx,
		`INSERT INTO channel_statuses (id, message_id, channel, status, description, idempotency_key, status_updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (idempotency_key) DO NOTHING`,
		e.ID, e.MessageID, e.Channel, e.Status, e.Description, e.IdempotencyKey, e.StatusUpdatedAt,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to insert channel status", err)
	}
	return tag.RowsAffected() == 1, nil
}
