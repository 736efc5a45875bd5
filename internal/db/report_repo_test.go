package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"screeningcomms/internal/types"
)

func TestReportRepository_Aggregate(t *testing.T) {
	db := new(mockDBTX)
	repo := NewReportRepository(db)
	since := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	day := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	msg := func(appRead, appUnnotified, smsDelivered, letterReceived, failed bool) []any {
		return []any{day, "MBD", "BU011", "BREAST CARE UNIT", types.EpisodeRoutineRecall,
			appRead, appUnnotified, smsDelivered, letterReceived, failed}
	}

	db.On("Query", mock.Anything, aggregateQuery, []any{"MBD", since}).Return(newMockRows(
		msg(true, false, true, false, false),
		msg(false, false, true, true, false),
		msg(false, true, false, true, false),
		msg(false, false, false, true, false),
		msg(false, false, false, false, true),
	), nil)

	rows, err := repo.Aggregate(context.Background(), "MBD", since)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, types.AggregateReportRow{
		Date: day, BSOCode: "MBD", ClinicCode: "BU011", ClinicName: "BREAST CARE UNIT",
		EpisodeType: types.EpisodeRoutineRecall, Notifications: 5, NHSAppRead: 1,
		SMSDelivered: 1, LettersSent: 1, Failures: 1,
	}, rows[0])
}

func TestReportRepository_Failures(t *testing.T) {
	db := new(mockDBTX)
	repo := NewReportRepository(db)
	from := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)
	errs := types.NotifyErrors{[]byte(`{"title":"Invalid nhs number"}`)}

	db.On("Query", mock.Anything, failuresQuery, []any{"MBD", from, to}).Return(newMockRows(
		[]any{"9449305552", from.Add(13 * time.Hour), "BU011", types.EpisodeRoutineRecall, from, "", errs},
	), nil)

	rows, err := repo.Failures(context.Background(), "MBD", from, to)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"Invalid nhs number"}, rows[0].Errors.Titles())
}

func TestReportRepository_Reconciliation_NoMessage(t *testing.T) {
	db := new(mockDBTX)
	repo := NewReportRepository(db)
	since := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	created := since.Add(time.Hour)

	db.On("Query", mock.Anything, reconciliationQuery, []any{"MBD", since}).Return(newMockRows(
		[]any{"9991112211", "BSU 1", "BU001", types.EpisodeRoutineRecall, types.AppointmentBooked, types.MessageStatus(""),
			created, created.Add(96 * time.Hour), nil, nil, nil, nil, nil},
	), nil)

	rows, err := repo.Reconciliation(context.Background(), "MBD", since)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Empty(t, rows[0].MessageStatus)
	assert.Nil(t, rows[0].MessageSentAt)
	assert.Nil(t, rows[0].LetterSentAt)
}

func TestReportRepository_ScanError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewReportRepository(db)
	rows := newMockRows([]any{"x"})
	rows.scanErr = assert.AnError
	db.On("Query", mock.Anything, mock.Anything, mock.Anything).Return(rows, nil)

	_, err := repo.Reconciliation(context.Background(), "MBD", time.Now())
	assert.Equal(t, types.ErrCodeInternalDB, types.CodeOf(err))
}
