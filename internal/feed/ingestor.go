package feed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"screeningcomms/internal/types"
)

// DirDateLayout is the layout of the dated prefix in the feed container.
const DirDateLayout = "2006-01-02"

// ClinicRepo is the subset of the clinic repository the feed needs.
type ClinicRepo interface {
	GetOrCreate(ctx context.Context, c *types.Clinic) (bool, error)
	SeedLocation(ctx context.Context, c *types.Clinic) (bool, error)
}

// AppointmentRepo is the subset of the appointment repository the
// ingestor needs.
type AppointmentRepo interface {
	GetByNBSSID(ctx context.Context, nbssID string) (*types.Appointment, error)
	Create(ctx context.Context, a *types.Appointment) (bool, error)
	MarkCancelled(ctx context.Context, id, by string, at time.Time) (bool, error)
	MarkCompleted(ctx context.Context, id string, status types.AppointmentStatus, by string, at time.Time, attendedNotScreened string) (bool, error)
}

// Repos are the repositories bound to one transaction.
type Repos struct {
	Clinics      ClinicRepo
	Appointments AppointmentRepo
}

// UnitOfWork runs fn inside a transaction and commits when it returns nil.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, r Repos) error) error
}

// BlobReader lists and reads feed files.
type BlobReader interface {
	List(ctx context.Context, prefix string) ([]string, error)
	Get(ctx context.Context, key string) ([]byte, error)
}

// Action is the outcome of applying one feed row.
type Action string

const (
	ActionCreated   Action = "created"
	ActionCancelled Action = "cancelled"
	ActionCompleted Action = "completed"
	ActionSkipped   Action = "skipped"
	ActionNoop      Action = "noop"
)

// IngestResult summarises one Ingest call.
type IngestResult struct {
	Files         int
	RowsProcessed int
	Actions       map[Action]int
}

// Ingestor applies feed files to clinic and appointment state.
type Ingestor struct {
	blobs  BlobReader
	uow    UnitOfWork
	clock  types.Clock
	logger *slog.Logger
}

// NewIngestor creates an Ingestor.
func NewIngestor(blobs BlobReader, uow UnitOfWork, clock types.Clock, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Ingestor{blobs: blobs, uow: uow, clock: clock, logger: logger}
}

// ParseDirDate validates a yyyy-mm-dd date argument.
func ParseDirDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DirDateLayout, s, types.London)
	if err != nil {
		return time.Time{}, types.NewAppError(types.ErrCodeValidationInvalidDate,
			fmt.Sprintf("invalid date %q, expected yyyy-mm-dd", s), err)
	}
	return t, nil
}

// Ingest processes every file under the date's prefix in lexicographic
// order. Each file is parsed in full before any row is applied, and each
// row is applied in its own transaction. Re-ingesting a file changes
// nothing.
func (i *Ingestor) Ingest(ctx context.Context, date string) (IngestResult, error) {
	res := IngestResult{Actions: map[Action]int{}}
	if _, err := ParseDirDate(date); err != nil {
		return res, err
	}

	keys, err := i.blobs.List(ctx, date+"/")
	if err != nil {
		return res, err
	}

	for _, key := range keys {
		data, err := i.blobs.Get(ctx, key)
		if err != nil {
			return res, err
		}
		rows, err := Parse(data)
		if err != nil {
			return res, fmt.Errorf("parse %s: %w", key, err)
		}
		for _, row := range rows {
			action, err := i.applyRow(ctx, row)
			if err != nil {
				return res, fmt.Errorf("%s line %d: %w", key, row.Line, err)
			}
			res.Actions[action]++
		}
		res.Files++
		res.RowsProcessed += len(rows)
		i.logger.InfoContext(ctx, "feed file ingested", "key", key, "rows", len(rows))
	}
	return res, nil
}

func (i *Ingestor) applyRow(ctx context.Context, row Row) (Action, error) {
	if row.HoldingClinic {
		return ActionSkipped, nil
	}

	var action Action
	err := i.uow.Do(ctx, func(ctx context.Context, r Repos) error {
		clinic := row.Clinic()
		if _, err := r.Clinics.GetOrCreate(ctx, clinic); err != nil {
			return err
		}

		existing, err := r.Appointments.GetByNBSSID(ctx, row.NBSSID)
		if err != nil && types.CodeOf(err) != types.ErrCodeNotFoundAppointment {
			return err
		}

		action, err = i.transition(ctx, r.Appointments, existing, clinic, row)
		return err
	})
	if err != nil {
		return "", err
	}
	return action, nil
}

// transition applies the appointment state machine:
//
//	none    + booked                            -> create booked
//	booked  + cancelled                         -> cancelled
//	booked  + attended|did_not_attend, in past  -> completed
//	anything else                               -> no-op
func (i *Ingestor) transition(ctx context.Context, repo AppointmentRepo, existing *types.Appointment, clinic *types.Clinic, row Row) (Action, error) {
	actionAt := i.clock.Now()
	if row.ActionAt != nil {
		actionAt = *row.ActionAt
	}

	switch {
	case existing == nil && row.Status == types.AppointmentBooked:
		a := &types.Appointment{
			ClinicID:         clinic.ID,
			NBSSID:           row.NBSSID,
			NHSNumber:        row.NHSNumber,
			BatchID:          row.BatchID,
			Number:           row.Number,
			Status:           types.AppointmentBooked,
			EpisodeType:      row.EpisodeType,
			EpisodeStartedAt: row.EpisodeStartedAt,
			StartsAt:         row.StartsAt,
			BookedBy:         row.BookedBy,
			BookedAt:         &actionAt,
			Assessment:       row.Assessment,
		}
		created, err := repo.Create(ctx, a)
		if err != nil || !created {
			return ActionNoop, err
		}
		return ActionCreated, nil

	case existing == nil:
		return ActionNoop, nil

	case existing.Status == types.AppointmentBooked && row.Status == types.AppointmentCancelled:
		changed, err := repo.MarkCancelled(ctx, existing.ID, row.CancelledBy, actionAt)
		if err != nil || !changed {
			return ActionNoop, err
		}
		return ActionCancelled, nil

	case existing.Status == types.AppointmentBooked && row.Status.IsCompletion() && existing.StartsAt.Before(i.clock.Now()):
		changed, err := repo.MarkCompleted(ctx, existing.ID, row.Status, row.BookedBy, actionAt, row.AttendedNotScreened)
		if err != nil || !changed {
			return ActionNoop, err
		}
		return ActionCompleted, nil
	}
	return ActionNoop, nil
}
