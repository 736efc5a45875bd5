package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelReach_Credited(t *testing.T) {
	tests := []struct {
		name  string
		reach ChannelReach
		want  Channel
	}{
		{"nothing", ChannelReach{}, ""},
		{"app read", ChannelReach{NHSAppRead: true}, ChannelNHSApp},
		{"app read beats sms", ChannelReach{NHSAppRead: true, SMSDelivered: true}, ChannelNHSApp},
		{"app read beats letter", ChannelReach{NHSAppRead: true, NHSAppUnnotified: true, LetterReceived: true}, ChannelNHSApp},
		{"sms delivered", ChannelReach{SMSDelivered: true}, ChannelSMS},
		{"sms beats letter", ChannelReach{SMSDelivered: true, NHSAppUnnotified: true, LetterReceived: true}, ChannelSMS},
		{"letter after unnotified app", ChannelReach{NHSAppUnnotified: true, LetterReceived: true}, ChannelLetter},
		{"letter without unnotified app", ChannelReach{LetterReceived: true}, ""},
		{"unnotified app alone", ChannelReach{NHSAppUnnotified: true}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.reach.Credited())
		})
	}
}

func TestAggregateNotifications(t *testing.T) {
	mon := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	tue := mon.AddDate(0, 0, 1)
	outcome := func(day time.Time, clinic string, et EpisodeType, reach ChannelReach, failed bool) NotificationOutcome {
		return NotificationOutcome{Date: day, BSOCode: "MBD", ClinicCode: clinic, ClinicName: "Unit " + clinic,
			EpisodeType: et, Reach: reach, Failed: failed}
	}

	rows := AggregateNotifications([]NotificationOutcome{
		outcome(mon, "BU011", EpisodeRoutineRecall, ChannelReach{NHSAppRead: true, SMSDelivered: true}, false),
		outcome(mon, "BU011", EpisodeRoutineRecall, ChannelReach{SMSDelivered: true, NHSAppUnnotified: true, LetterReceived: true}, false),
		outcome(mon, "BU011", EpisodeRoutineRecall, ChannelReach{NHSAppUnnotified: true, LetterReceived: true}, false),
		outcome(mon, "BU011", EpisodeRoutineRecall, ChannelReach{}, true),
		outcome(tue, "BU002", EpisodeRoutineFirstCall, ChannelReach{LetterReceived: true}, false),
		outcome(mon, "BU002", EpisodeRoutineFirstCall, ChannelReach{NHSAppRead: true}, false),
	})

	require.Len(t, rows, 3)
	assert.Equal(t, tue, rows[0].Date, "newest day first")
	assert.Equal(t, AggregateReportRow{
		Date: tue, BSOCode: "MBD", ClinicCode: "BU002", ClinicName: "Unit BU002",
		EpisodeType: EpisodeRoutineFirstCall, Notifications: 1,
	}, rows[0])
	assert.Equal(t, "BU002", rows[1].ClinicCode)
	assert.Equal(t, 1, rows[1].NHSAppRead)
	assert.Equal(t, AggregateReportRow{
		Date: mon, BSOCode: "MBD", ClinicCode: "BU011", ClinicName: "Unit BU011",
		EpisodeType: EpisodeRoutineRecall, Notifications: 4,
		NHSAppRead: 1, SMSDelivered: 1, LettersSent: 1, Failures: 1,
	}, rows[2])

	for _, r := range rows {
		assert.LessOrEqual(t, r.NHSAppRead+r.SMSDelivered+r.LettersSent, r.Notifications, "no message counted twice")
	}
}
