package app

import (
	"context"

	"screeningcomms/internal/db"
	"screeningcomms/internal/feed"
	"screeningcomms/internal/notify"
)

// feedUnitOfWork binds the feed repositories to one transaction.
type feedUnitOfWork struct {
	tx *db.Transactor
}

func (u feedUnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, r feed.Repos) error) error {
	return u.tx.RunInTx(ctx, func(ctx context.Context, q db.DBTX) error {
		return fn(ctx, feed.Repos{
			Clinics:      db.NewClinicRepository(q),
			Appointments: db.NewAppointmentRepository(q),
		})
	})
}

// notifyUnitOfWork binds the notify repositories to one transaction.
type notifyUnitOfWork struct {
	tx *db.Transactor
}

func (u notifyUnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, r notify.Repos) error) error {
	return u.tx.RunInTx(ctx, func(ctx context.Context, q db.DBTX) error {
		return fn(ctx, notify.Repos{
			Appointments: db.NewAppointmentRepository(q),
			Batches:      db.NewMessageBatchRepository(q),
			Messages:     db.NewMessageRepository(q),
		})
	})
}

var (
	_ feed.UnitOfWork   = feedUnitOfWork{}
	_ notify.UnitOfWork = notifyUnitOfWork{}
)
