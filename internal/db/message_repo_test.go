package db

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"screeningcomms/internal/types"
)

func TestMessageRepository_Create(t *testing.T) {
	t.Run("attached to batch", func(t *testing.T) {
		db := new(mockDBTX)
		repo := NewMessageRepository(db)
		db.On("QueryRow", mock.Anything, mock.Anything, mock.MatchedBy(func(args []any) bool {
			batch, ok := args[1].(*string)
			return ok && *batch == "batch-1" && args[2] == "appt-1"
		})).Return(rowValues(time.Now()))

		m := &types.Message{BatchID: "batch-1", AppointmentID: "appt-1", Status: types.MessagePendingEnrichment}
		require.NoError(t, repo.Create(context.Background(), m))
		assert.NotEmpty(t, m.ID)
	})

	t.Run("second open message for appointment", func(t *testing.T) {
		db := new(mockDBTX)
		repo := NewMessageRepository(db)
		db.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).
			Return(&mockRow{scanErr: &pgconn.PgError{Code: "23505"}})

		err := repo.Create(context.Background(), &types.Message{AppointmentID: "appt-1"})
		assert.Equal(t, types.ErrCodeConflictBatchState, types.CodeOf(err))
	})
}

func TestMessageRepository_GetByID(t *testing.T) {
	t.Run("detached message", func(t *testing.T) {
		db := new(mockDBTX)
		repo := NewMessageRepository(db)
		db.On("QueryRow", mock.Anything, mock.Anything, []any{"msg-1"}).Return(rowValues(
			"msg-1", nil, "appt-1", types.MessageFailed, "", nil, nil, time.Now(),
		))

		m, err := repo.GetByID(context.Background(), "msg-1")
		require.NoError(t, err)
		assert.Empty(t, m.BatchID)
		assert.Equal(t, types.MessageFailed, m.Status)
	})

	t.Run("missing", func(t *testing.T) {
		db := new(mockDBTX)
		repo := NewMessageRepository(db)
		db.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).Return(&mockRow{scanErr: pgx.ErrNoRows})

		_, err := repo.GetByID(context.Background(), "msg-x")
		assert.Equal(t, types.ErrCodeNotFoundMessage, types.CodeOf(err))
	})
}

func TestMessageRepository_ListByBatch_Hydrates(t *testing.T) {
	db := new(mockDBTX)
	repo := NewMessageRepository(db)
	batch := "batch-1"
	startsAt := time.Date(2025, 3, 14, 13, 45, 0, 0, time.UTC)

	row := func(id string) []any {
		r := []any{id, &batch, "appt-1", types.MessagePendingEnrichment, "", nil, nil, time.Now()}
		r = append(r, appointmentRow("appt-1", startsAt, types.AppointmentBooked)...)
		return append(r, clinicRow()...)
	}
	db.On("Query", mock.Anything, mock.Anything, []any{"batch-1"}).Return(newMockRows(row("m-0"), row("m-1")), nil)

	msgs, err := repo.ListByBatch(context.Background(), "batch-1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m-0", msgs[0].ID)
	assert.Equal(t, "batch-1", msgs[0].BatchID)
	require.NotNil(t, msgs[1].Appointment)
	require.NotNil(t, msgs[1].Appointment.Clinic)
	assert.Equal(t, "9449305552", msgs[1].Appointment.NHSNumber)
	assert.Equal(t, "BU011", msgs[1].Appointment.Clinic.Code)
}

func TestMessageRepository_Update_DetachesOnEmptyBatch(t *testing.T) {
	db := new(mockDBTX)
	repo := NewMessageRepository(db)
	db.On("Exec", mock.Anything, mock.Anything, mock.MatchedBy(func(args []any) bool {
		batch, ok := args[1].(*string)
		return ok && batch == nil
	})).Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	require.NoError(t, repo.Update(context.Background(), &types.Message{ID: "m-1", Status: types.MessageFailed}))
	db.AssertExpectations(t)
}

func TestMessageRepository_MarkBatchMessages(t *testing.T) {
	db := new(mockDBTX)
	repo := NewMessageRepository(db)
	now := time.Now()
	db.On("Exec", mock.Anything, mock.Anything, []any{"batch-1", types.MessageFailed, &now}).
		Return(pgconn.NewCommandTag("UPDATE 3"), nil)

	n, err := repo.MarkBatchMessages(context.Background(), "batch-1", types.MessageFailed, &now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
