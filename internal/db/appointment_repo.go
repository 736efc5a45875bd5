package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"screeningcomms/internal/types"
)

const appointmentColumns = `a.id, a.clinic_id, a.nbss_id, a.nhs_number, a.batch_id, a.number, a.status,
	a.episode_type, a.episode_started_at, a.starts_at, a.booked_by, a.booked_at,
	a.cancelled_by, a.cancelled_at, a.completed_by, a.completed_at,
	a.attended_not_screened, a.assessment, a.created_at, a.updated_at`

const joinedClinicColumns = `c.id, c.code, c.bso_code, c.name, c.alt_name, c.holding_clinic, c.location_code,
	c.address_line_1, c.address_line_2, c.address_line_3, c.address_line_4, c.address_line_5,
	c.postcode, c.location_description, c.location_url, c.created_at, c.updated_at`

// AppointmentRepository persists Appointment rows. Status transitions are
// guarded in SQL so a row only ever moves forward out of booked.
type AppointmentRepository struct {
	db DBTX
}

// NewAppointmentRepository creates an AppointmentRepository.
func NewAppointmentRepository(db DBTX) *AppointmentRepository {
	return &AppointmentRepository{db: db}
}

// GetByNBSSID looks up an appointment by its upstream identifier.
func (r *AppointmentRepository) GetByNBSSID(ctx context.Context, nbssID string) (*types.Appointment, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+appointmentColumns+` FROM appointments a WHERE a.nbss_id = $1`,
		nbssID,
	)
	a, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundAppointment, "appointment not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve appointment", err)
	}
	return a, nil
}

// Create inserts a booked appointment. It reports false without error when
// another writer already inserted the same nbss_id.
func (r *AppointmentRepository) Create(ctx context.Context, a *types.Appointment) (bool, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	tag, err := r.db.Exec(ctx,
		`INSERT INTO appointments (id, clinic_id, nbss_id, nhs_number, batch_id, number, status,
			episode_type, episode_started_at, starts_at, booked_by, booked_at, assessment)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (nbss_id) DO NOTHING`,
		a.ID, a.ClinicID, a.NBSSID, a.NHSNumber, a.BatchID, a.Number, a.Status,
		a.EpisodeType, a.EpisodeStartedAt, a.StartsAt, a.BookedBy, a.BookedAt, a.Assessment,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to create appointment", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkCancelled moves a booked appointment to cancelled. It reports whether
// a row changed.
func (r *AppointmentRepository) MarkCancelled(ctx context.Context, id, by string, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE appointments
		 SET status = $2, cancelled_by = $3, cancelled_at = $4, updated_at = NOW()
		 WHERE id = $1 AND status = $5`,
		id, types.AppointmentCancelled, by, at, types.AppointmentBooked,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to cancel appointment", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkCompleted moves a booked appointment to attended or did_not_attend.
func (r *AppointmentRepository) MarkCompleted(ctx context.Context, id string, status types.AppointmentStatus, by string, at time.Time, attendedNotScreened string) (bool, error) {
	if !status.IsCompletion() {
		return false, types.NewAppError(types.ErrCodeInternalUnexpected, "not a completion status: "+string(status), nil)
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE appointments
		 SET status = $2, completed_by = $3, completed_at = $4, attended_not_screened = $5, updated_at = NOW()
		 WHERE id = $1 AND status = $6`,
		id, status, by, at, attendedNotScreened, types.AppointmentBooked,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to complete appointment", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListEligible returns the first appointments of the given episode types
// that start within [from, until] and have not been notified, with their
// clinic hydrated.
//
// An appointment counts as notified when it has any message that is not
// failed, is still attached to a batch (awaiting retry), or carries
// upstream errors (awaiting manual remediation). The selected rows are
// locked so two concurrent senders never pick the same appointment.
func (r *AppointmentRepository) ListEligible(ctx context.Context, episodeTypes []types.EpisodeType, from, until time.Time) ([]*types.Appointment, error) {
	codes := make([]string, len(episodeTypes))
	for i, e := range episodeTypes {
		codes[i] = string(e)
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+appointmentColumns+`, `+joinedClinicColumns+`
		 FROM appointments a
		 JOIN clinics c ON c.id = a.clinic_id
		 WHERE a.status = $1
		   AND a.number = 1
		   AND a.episode_type = ANY($2)
		   AND a.starts_at >= $3
		   AND a.starts_at <= $4
		   AND NOT EXISTS (
		       SELECT 1 FROM messages m
		       WHERE m.appointment_id = a.id
		         AND (m.status <> $5 OR m.batch_id IS NOT NULL OR m.nhs_notify_errors IS NOT NULL)
		   )
		 ORDER BY a.starts_at, a.id
		 FOR UPDATE OF a SKIP LOCKED`,
		types.AppointmentBooked, codes, from, until, types.MessageFailed,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list eligible appointments", err)
	}
	defer rows.Close()

	var out []*types.Appointment
	for rows.Next() {
		a, err := scanAppointmentWithClinic(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan eligible appointment", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating eligible appointments", err)
	}
	return out, nil
}

func appointmentDest(a *types.Appointment) []any {
	return []any{
		&a.ID, &a.ClinicID, &a.NBSSID, &a.NHSNumber, &a.BatchID, &a.Number, &a.Status,
		&a.EpisodeType, &a.EpisodeStartedAt, &a.StartsAt, &a.BookedBy, &a.BookedAt,
		&a.CancelledBy, &a.CancelledAt, &a.CompletedBy, &a.CompletedAt,
		&a.AttendedNotScreened, &a.Assessment, &a.CreatedAt, &a.UpdatedAt,
	}
}

func clinicDest(c *types.Clinic) []any {
	return []any{
		&c.ID, &c.Code, &c.BSOCode, &c.Name, &c.AltName, &c.HoldingClinic, &c.LocationCode,
		&c.AddressLine1, &c.AddressLine2, &c.AddressLine3, &c.AddressLine4, &c.AddressLine5,
		&c.Postcode, &c.LocationDescription, &c.LocationURL, &c.CreatedAt, &c.UpdatedAt,
	}
}

func scanAppointment(row pgx.Row) (*types.Appointment, error) {
	var a types.Appointment
	if err := row.Scan(appointmentDest(&a)...); err != nil {
		return nil, err
	}
	return &a, nil
}

func scanAppointmentWithClinic(row pgx.Row) (*types.Appointment, error) {
	var a types.Appointment
	var c types.Clinic
	if err := row.Scan(append(appointmentDest(&a), clinicDest(&c)...)...); err != nil {
		return nil, err
	}
	a.Clinic = &c
	return &a, nil
}
