package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screeningcomms/internal/mesh"
	"screeningcomms/internal/types"
)

var pollNow = time.Date(2025, 10, 12, 23, 30, 0, 0, time.UTC) // 00:30 BST on the 13th

func TestPoll_WritesAndAcknowledges(t *testing.T) {
	mb := &fakeMailbox{
		order: []string{"id1", "id2"},
		messages: map[string]*mesh.Message{
			"id1": {ID: "id1", Filename: "file1", Body: []byte("message1 content")},
			"id2": {ID: "id2", Filename: "file2", Body: []byte("message2 content")},
		},
	}
	blobs := newMemBlobs()

	res, err := NewPoller(mb, blobs, types.FixedClock(pollNow), nil).Poll(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 2, res.FilesWritten)
	assert.Equal(t, []string{"id1", "id2"}, mb.acked)
	assert.Equal(t, "message1 content", string(blobs.objects["2025-10-13/file1"]))
	assert.Equal(t, "message2 content", string(blobs.objects["2025-10-13/file2"]))
}

func TestPoll_FailedWriteIsNotAcknowledged(t *testing.T) {
	mb := &fakeMailbox{
		order: []string{"id1", "id2"},
		messages: map[string]*mesh.Message{
			"id1": {ID: "id1", Filename: "file1", Body: []byte("a")},
			"id2": {ID: "id2", Filename: "file2", Body: []byte("b")},
		},
	}
	blobs := newMemBlobs()
	blobs.putErr["2025-10-13/file1"] = errors.New("disk full")

	res, err := NewPoller(mb, blobs, types.FixedClock(pollNow), nil).Poll(context.Background(), false)
	require.Error(t, err)
	assert.Equal(t, 1, res.FilesWritten)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, []string{"id2"}, mb.acked)
}

func TestPoll_EmptyInbox(t *testing.T) {
	mb := &fakeMailbox{}
	blobs := newMemBlobs()

	res, err := NewPoller(mb, blobs, types.FixedClock(pollNow), nil).Poll(context.Background(), false)
	require.NoError(t, err)
	assert.Zero(t, res.FilesWritten)
	assert.Empty(t, mb.acked)
	assert.Empty(t, blobs.objects)
}

func TestPoll_DryRun(t *testing.T) {
	mb := &fakeMailbox{order: []string{"id1"}, messages: map[string]*mesh.Message{"id1": {Filename: "f"}}}
	blobs := newMemBlobs()

	res, err := NewPoller(mb, blobs, types.FixedClock(pollNow), nil).Poll(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Listed)
	assert.Empty(t, mb.retrieved)
	assert.Empty(t, mb.acked)
	assert.Empty(t, blobs.objects)
}

func TestPoll_HandshakeFailure(t *testing.T) {
	mb := &fakeMailbox{handshakeErr: types.NewAppError(types.ErrCodeUpstreamMailbox, "forbidden", nil)}
	_, err := NewPoller(mb, newMemBlobs(), types.FixedClock(pollNow), nil).Poll(context.Background(), false)
	assert.Equal(t, types.ErrCodeUpstreamMailbox, types.CodeOf(err))
}
