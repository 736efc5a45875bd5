package db

import (
	"context"
	"time"

	"screeningcomms/internal/types"
)

// ReportRepository runs the read-only queries behind the operational
// reports. Times are returned as instants; callers render them in
// Europe/London.
type ReportRepository struct {
	db DBTX
}

// NewReportRepository creates a ReportRepository.
func NewReportRepository(db DBTX) *ReportRepository {
	return &ReportRepository{db: db}
}

// aggregateQuery returns one row per message sent since $2 with the
// channels that reached it. Bucketing and the channel cascade are applied
// by types.AggregateNotifications.
const aggregateQuery = `
WITH channel AS (
    SELECT cs.message_id,
           BOOL_OR(cs.channel = 'nhsapp' AND cs.status = 'read')       AS nhsapp_read,
           BOOL_OR(cs.channel = 'nhsapp' AND cs.status = 'unnotified') AS nhsapp_unnotified,
           BOOL_OR(cs.channel = 'sms' AND cs.status = 'delivered')     AS sms_delivered,
           BOOL_OR(cs.channel = 'letter' AND cs.status = 'received')   AS letter_received
    FROM channel_statuses cs
    GROUP BY cs.message_id
)
SELECT (m.sent_at AT TIME ZONE 'Europe/London')::date AS day,
       c.bso_code,
       c.code,
       c.name,
       a.episode_type,
       COALESCE(ch.nhsapp_read, FALSE),
       COALESCE(ch.nhsapp_unnotified, FALSE),
       COALESCE(ch.sms_delivered, FALSE),
       COALESCE(ch.letter_received, FALSE),
       EXISTS (SELECT 1 FROM message_statuses ms
                WHERE ms.message_id = m.id AND ms.status = 'failed')
FROM messages m
JOIN appointments a ON a.id = m.appointment_id
JOIN clinics c ON c.id = a.clinic_id
LEFT JOIN channel ch ON ch.message_id = m.id
WHERE c.bso_code = $1
  AND m.sent_at >= $2`

// failuresQuery lists failed messages for appointments starting in
// [$2, $3). A message counts as failed when it has a failed status event
// or is itself failed; the earliest failed event supplies time and reason.
const failuresQuery = `
SELECT a.nhs_number,
       a.starts_at,
       c.code,
       a.episode_type,
       COALESCE(fs.status_updated_at, m.sent_at, m.created_at) AS failed_at,
       COALESCE(fs.description, '') AS description,
       m.nhs_notify_errors
FROM messages m
JOIN appointments a ON a.id = m.appointment_id
JOIN clinics c ON c.id = a.clinic_id
LEFT JOIN LATERAL (
    SELECT ms.status_updated_at, ms.description
    FROM message_statuses ms
    WHERE ms.message_id = m.id AND ms.status = 'failed'
    ORDER BY ms.status_updated_at
    LIMIT 1
) fs ON TRUE
WHERE c.bso_code = $1
  AND a.starts_at >= $2
  AND a.starts_at < $3
  AND (fs.status_updated_at IS NOT NULL OR m.status = 'failed')
ORDER BY a.starts_at, a.nhs_number`

// reconciliationQuery reports every appointment created since $2 with its
// latest message and the first time each cascade channel was reached.
const reconciliationQuery = `
SELECT a.nhs_number,
       c.name,
       c.code,
       a.episode_type,
       a.status,
       COALESCE(lm.status, '') AS message_status,
       a.created_at,
       a.starts_at,
       a.cancelled_at,
       lm.sent_at,
       (SELECT MIN(cs.status_updated_at) FROM channel_statuses cs
         WHERE cs.message_id = lm.id AND cs.channel = 'nhsapp' AND cs.status = 'read'),
       (SELECT MIN(cs.status_updated_at) FROM channel_statuses cs
         WHERE cs.message_id = lm.id AND cs.channel = 'sms' AND cs.status = 'delivered'),
       (SELECT MIN(cs.status_updated_at) FROM channel_statuses cs
         WHERE cs.message_id = lm.id AND cs.channel = 'letter' AND cs.status = 'received')
FROM appointments a
JOIN clinics c ON c.id = a.clinic_id
LEFT JOIN LATERAL (
    SELECT m.id, m.status, m.sent_at
    FROM messages m
    WHERE m.appointment_id = a.id
    ORDER BY m.created_at DESC
    LIMIT 1
) lm ON TRUE
WHERE c.bso_code = $1
  AND a.created_at >= $2
ORDER BY a.nhs_number, a.starts_at`

// Aggregate returns the aggregate report rows for bsoCode.
func (r *ReportRepository) Aggregate(ctx context.Context, bsoCode string, since time.Time) ([]types.AggregateReportRow, error) {
	rows, err := r.db.Query(ctx, aggregateQuery, bsoCode, since)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to run aggregate report", err)
	}
	defer rows.Close()

	var outcomes []types.NotificationOutcome
	for rows.Next() {
		var o types.NotificationOutcome
		if err := rows.Scan(
			&o.Date, &o.BSOCode, &o.ClinicCode, &o.ClinicName, &o.EpisodeType,
			&o.Reach.NHSAppRead, &o.Reach.NHSAppUnnotified, &o.Reach.SMSDelivered, &o.Reach.LetterReceived,
			&o.Failed,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan aggregate row", err)
		}
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating aggregate rows", err)
	}
	return types.AggregateNotifications(outcomes), nil
}

// Failures returns failed messages for appointments in [from, to).
func (r *ReportRepository) Failures(ctx context.Context, bsoCode string, from, to time.Time) ([]types.FailureReportRow, error) {
	rows, err := r.db.Query(ctx, failuresQuery, bsoCode, from, to)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to run failures report", err)
	}
	defer rows.Close()

	var out []types.FailureReportRow
	for rows.Next() {
		var row types.FailureReportRow
		if err := rows.Scan(
			&row.NHSNumber, &row.AppointmentAt, &row.ClinicCode, &row.EpisodeType,
			&row.FailedAt, &row.Description, &row.Errors,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan failures row", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating failures rows", err)
	}
	return out, nil
}

// Reconciliation returns one row per appointment created since the given
// instant.
func (r *ReportRepository) Reconciliation(ctx context.Context, bsoCode string, since time.Time) ([]types.ReconciliationReportRow, error) {
	rows, err := r.db.Query(ctx, reconciliationQuery, bsoCode, since)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to run reconciliation report", err)
	}
	defer rows.Close()

	var out []types.ReconciliationReportRow
	for rows.Next() {
		var row types.ReconciliationReportRow
		if err := rows.Scan(
			&row.NHSNumber, &row.ClinicName, &row.ClinicCode, &row.EpisodeType, &row.Status,
			&row.MessageStatus, &row.CreatedAt, &row.StartsAt, &row.CancelledAt,
			&row.MessageSentAt, &row.NHSAppReadAt, &row.SMSDeliveredAt, &row.LetterSentAt,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan reconciliation row", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating reconciliation rows", err)
	}
	return out, nil
}
