package db

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"screeningcomms/internal/types"
)

func TestStatusRepository_InsertChannelStatus_Idempotent(t *testing.T) {
	db := new(mockDBTX)
	repo := NewStatusRepository(db)
	at := time.Date(2025, 3, 2, 10, 0, 0, 0, time.UTC)

	onConflict := mock.MatchedBy(func(sql string) bool {
		return containsAll(sql, "INSERT INTO channel_statuses", "ON CONFLICT (idempotency_key) DO NOTHING")
	})
	db.On("Exec", mock.Anything, onConflict, mock.Anything).Return(pgconn.NewCommandTag("INSERT 0 1"), nil).Once()
	db.On("Exec", mock.Anything, onConflict, mock.Anything).Return(pgconn.NewCommandTag("INSERT 0 0"), nil).Once()

	event := func() *types.ChannelStatusEvent {
		return &types.ChannelStatusEvent{
			MessageID:       "msg-1",
			Channel:         types.ChannelNHSApp,
			Status:          types.ChannelRead,
			IdempotencyKey:  "IK-1",
			StatusUpdatedAt: at,
		}
	}

	first, err := repo.InsertChannelStatus(context.Background(), event())
	require.NoError(t, err)
	second, err := repo.InsertChannelStatus(context.Background(), event())
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)
	db.AssertExpectations(t)
}

func TestStatusRepository_InsertMessageStatus(t *testing.T) {
	db := new(mockDBTX)
	repo := NewStatusRepository(db)

	db.On("Exec", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return containsAll(sql, "INSERT INTO message_statuses", "ON CONFLICT (idempotency_key) DO NOTHING")
	}), mock.MatchedBy(func(args []any) bool {
		return args[2] == types.MessageDelivered && args[4] == "IK-2"
	})).Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	e := &types.MessageStatusEvent{MessageID: "msg-1", Status: types.MessageDelivered, IdempotencyKey: "IK-2"}
	inserted, err := repo.InsertMessageStatus(context.Background(), e)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NotEmpty(t, e.ID)
}

func TestStatusRepository_InsertMessageStatus_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewStatusRepository(db)
	db.On("Exec", mock.Anything, mock.Anything, mock.Anything).Return(pgconn.CommandTag{}, assert.AnError)

	_, err := repo.InsertMessageStatus(context.Background(), &types.MessageStatusEvent{})
	assert.Equal(t, types.ErrCodeInternalDB, types.CodeOf(err))
}
