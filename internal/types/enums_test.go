package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppointmentStatusCode(t *testing.T) {
	cases := map[string]AppointmentStatus{
		"B": AppointmentBooked,
		"C": AppointmentCancelled,
		"A": AppointmentAttended,
		"D": AppointmentDidNotAttend,
		"U": AppointmentUpdated,
	}
	for code, want := range cases {
		got, err := ParseAppointmentStatusCode(code)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseAppointmentStatusCode("X")
	require.Error(t, err)
	assert.Equal(t, ErrCodeInternalUnknownEnum, CodeOf(err))
}

func TestParseEpisodeTypeCode(t *testing.T) {
	for _, code := range []string{"F", "R", "G", "S", "N", "H", "T"} {
		_, err := ParseEpisodeTypeCode(code)
		require.NoError(t, err)
	}
	_, err := ParseEpisodeTypeCode("Z")
	assert.Error(t, err)
}

func TestAppointmentStatus_IsCompletion(t *testing.T) {
	assert.True(t, AppointmentAttended.IsCompletion())
	assert.True(t, AppointmentDidNotAttend.IsCompletion())
	assert.False(t, AppointmentBooked.IsCompletion())
	assert.False(t, AppointmentCancelled.IsCompletion())
}

func TestBatchStatus_IsTerminal(t *testing.T) {
	assert.True(t, BatchSent.IsTerminal())
	assert.True(t, BatchFailedUnrecoverable.IsTerminal())
	assert.False(t, BatchFailedRecoverable.IsTerminal())
	assert.False(t, BatchUnscheduled.IsTerminal())
}

func TestParseStatusEnums(t *testing.T) {
	_, err := ParseMessageStatus("delivered")
	assert.NoError(t, err)
	_, err = ParseMessageStatus("created")
	assert.Error(t, err)

	_, err = ParseChannel("nhsapp")
	assert.NoError(t, err)
	_, err = ParseChannel("fax")
	assert.Error(t, err)

	_, err = ParseChannelStatus("read")
	assert.NoError(t, err)
	_, err = ParseChannelStatus("lost")
	assert.Error(t, err)
}
