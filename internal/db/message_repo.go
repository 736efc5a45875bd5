package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"screeningcomms/internal/types"
)

const messageColumns = `m.id, m.batch_id, m.appointment_id, m.status, m.notify_id, m.sent_at, m.nhs_notify_errors, m.created_at`

// MessageRepository persists Message rows.
type MessageRepository struct {
	db DBTX
}

// NewMessageRepository creates a MessageRepository.
func NewMessageRepository(db DBTX) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create inserts m. A second open message for the same appointment is
// rejected by the messages_one_open_per_appointment index and reported as
// a batch-state conflict.
func (r *MessageRepository) Create(ctx context.Context, m *types.Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	err := r.db.QueryRow(ctx,
		`INSERT INTO messages (id, batch_id, appointment_id, status)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at`,
		m.ID, nilIfEmpty(m.BatchID), m.AppointmentID, m.Status,
	).Scan(&m.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return types.NewAppError(types.ErrCodeConflictBatchState, "appointment already has an open message", err).
				WithDetails(map[string]any{"appointment_id": m.AppointmentID})
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create message", err)
	}
	return nil
}

// GetByID returns the message with the given id, without hydration.
func (r *MessageRepository) GetByID(ctx context.Context, id string) (*types.Message, error) {
	row := r.db.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages m WHERE m.id = $1`, id)
	m, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundMessage, "message not found", nil).
				WithDetails(map[string]any{"message_id": id})
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve message", err)
	}
	return m, nil
}

// ListByBatch returns the messages attached to a batch with appointment
// and clinic hydrated, in a stable order. The order is the position of
// each message in the submitted document.
func (r *MessageRepository) ListByBatch(ctx context.Context, batchID string) ([]*types.Message, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+messageColumns+`, `+appointmentColumns+`, `+joinedClinicColumns+`
		 FROM messages m
		 JOIN appointments a ON a.id = m.appointment_id
		 JOIN clinics c ON c.id = a.clinic_id
		 WHERE m.batch_id = $1
		 ORDER BY m.created_at, m.id`,
		batchID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list batch messages", err)
	}
	defer rows.Close()

	var out []*types.Message
	for rows.Next() {
		var (
			m        types.Message
			a        types.Appointment
			c        types.Clinic
			attached *string
		)
		dest := append(messageDest(&m, &attached), appointmentDest(&a)...)
		dest = append(dest, clinicDest(&c)...)
		if err := rows.Scan(dest...); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan batch message", err)
		}
		m.BatchID = derefString(attached)
		a.Clinic = &c
		m.Appointment = &a
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating batch messages", err)
	}
	return out, nil
}

// Update writes the mutable fields of m. An empty BatchID detaches the
// message from its batch.
func (r *MessageRepository) Update(ctx context.Context, m *types.Message) error {
	_, err := r.db.Exec(ctx,
		`UPDATE messages
		 SET batch_id = $2, status = $3, notify_id = $4, sent_at = $5, nhs_notify_errors = $6
		 WHERE id = $1`,
		m.ID, nilIfEmpty(m.BatchID), m.Status, m.NotifyID, m.SentAt, m.NHSNotifyErrors,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update message", err)
	}
	return nil
}

// MarkBatchMessages sets the status of every message attached to the batch.
// sentAt is only written when non-nil.
func (r *MessageRepository) MarkBatchMessages(ctx context.Context, batchID string, status types.MessageStatus, sentAt *time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE messages SET status = $2, sent_at = COALESCE($3, sent_at) WHERE batch_id = $1`,
		batchID, status, sentAt,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to update batch messages", err)
	}
	return tag.RowsAffected(), nil
}

func messageDest(m *types.Message, batchID **string) []any {
	return []any{&m.ID, batchID, &m.AppointmentID, &m.Status, &m.NotifyID, &m.SentAt, &m.NHSNotifyErrors, &m.CreatedAt}
}

func scanMessage(row pgx.Row) (*types.Message, error) {
	var m types.Message
	var batchID *string
	if err := row.Scan(messageDest(&m, &batchID)...); err != nil {
		return nil, err
	}
	m.BatchID = derefString(batchID)
	return &m, nil
}
