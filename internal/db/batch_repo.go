package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"screeningcomms/internal/types"
)

const batchColumns = `id, routing_plan_id, status, notify_id, scheduled_at, sent_at, nhs_notify_errors, created_at`

// MessageBatchRepository persists MessageBatch rows.
type MessageBatchRepository struct {
	db DBTX
}

// NewMessageBatchRepository creates a MessageBatchRepository.
func NewMessageBatchRepository(db DBTX) *MessageBatchRepository {
	return &MessageBatchRepository{db: db}
}

// Create inserts b, assigning an id when it has none.
func (r *MessageBatchRepository) Create(ctx context.Context, b *types.MessageBatch) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	err := r.db.QueryRow(ctx,
		`INSERT INTO message_batches (id, routing_plan_id, status, scheduled_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at`,
		b.ID, b.RoutingPlanID, b.Status, b.ScheduledAt,
	).Scan(&b.CreatedAt)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create message batch", err)
	}
	return nil
}

// Get returns the batch with the given id.
func (r *MessageBatchRepository) Get(ctx context.Context, id string) (*types.MessageBatch, error) {
	return r.get(ctx, `SELECT `+batchColumns+` FROM message_batches WHERE id = $1`, id)
}

// GetForUpdate returns the batch and holds a row lock on it until the
// surrounding transaction ends, serialising state transitions.
func (r *MessageBatchRepository) GetForUpdate(ctx context.Context, id string) (*types.MessageBatch, error) {
	return r.get(ctx, `SELECT `+batchColumns+` FROM message_batches WHERE id = $1 FOR UPDATE`, id)
}

func (r *MessageBatchRepository) get(ctx context.Context, query, id string) (*types.MessageBatch, error) {
	var b types.MessageBatch
	err := r.db.QueryRow(ctx, query, id).Scan(
		&b.ID, &b.RoutingPlanID, &b.Status, &b.NotifyID,
		&b.ScheduledAt, &b.SentAt, &b.NHSNotifyErrors, &b.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundMessageBatch, "message batch not found", nil).
				WithDetails(map[string]any{"batch_id": id})
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve message batch", err)
	}
	return &b, nil
}

// Update writes the mutable fields of b.
func (r *MessageBatchRepository) Update(ctx context.Context, b *types.MessageBatch) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE message_batches
		 SET status = $2, notify_id = $3, scheduled_at = $4, sent_at = $5, nhs_notify_errors = $6
		 WHERE id = $1`,
		b.ID, b.Status, b.NotifyID, b.ScheduledAt, b.SentAt, b.NHSNotifyErrors,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update message batch", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundMessageBatch, "message batch not found", nil).
			WithDetails(map[string]any{"batch_id": b.ID})
	}
	return nil
}

// ListScheduledBefore returns the ids of batches still scheduled whose
// scheduled_at is older than before, oldest first.
func (r *MessageBatchRepository) ListScheduledBefore(ctx context.Context, before time.Time) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id FROM message_batches
		 WHERE status = $1 AND scheduled_at < $2
		 ORDER BY scheduled_at, id`,
		types.BatchScheduled, before,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list stale batches", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan stale batch", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list stale batches", err)
	}
	return ids, nil
}
