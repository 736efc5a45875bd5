package types

import (
	"sort"
	"time"
)

// AggregateReportRow is one (day, clinic, episode type) bucket of the
// aggregate report. Each message adds to at most one of the three channel
// counts, the one ChannelReach.Credited picks.
type AggregateReportRow struct {
	Date          time.Time
	BSOCode       string
	ClinicCode    string
	ClinicName    string
	EpisodeType   EpisodeType
	Notifications int
	NHSAppRead    int
	SMSDelivered  int
	LettersSent   int
	Failures      int
}

// ChannelReach records which cascade channels reached a single message.
type ChannelReach struct {
	NHSAppRead       bool
	NHSAppUnnotified bool
	SMSDelivered     bool
	LetterReceived   bool
}

// Credited returns the one channel a message is counted under, or "" when
// no channel reached the participant. A letter is credited only when the
// NHS app reported the participant as unnotified.
func (r ChannelReach) Credited() Channel {
	switch {
	case r.NHSAppRead:
		return ChannelNHSApp
	case r.SMSDelivered:
		return ChannelSMS
	case r.LetterReceived && r.NHSAppUnnotified:
		return ChannelLetter
	}
	return ""
}

// NotificationOutcome is the per-message input to the aggregate report.
type NotificationOutcome struct {
	Date        time.Time
	BSOCode     string
	ClinicCode  string
	ClinicName  string
	EpisodeType EpisodeType
	Reach       ChannelReach
	Failed      bool
}

// AggregateNotifications buckets outcomes by day, clinic and episode type,
// newest day first.
func AggregateNotifications(outcomes []NotificationOutcome) []AggregateReportRow {
	type key struct {
		date            time.Time
		bso, code, name string
		episodeType     EpisodeType
	}
	idx := map[key]int{}
	var rows []AggregateReportRow
	for _, o := range outcomes {
		k := key{o.Date, o.BSOCode, o.ClinicCode, o.ClinicName, o.EpisodeType}
		i, ok := idx[k]
		if !ok {
			i = len(rows)
			idx[k] = i
			rows = append(rows, AggregateReportRow{
				Date: o.Date, BSOCode: o.BSOCode, ClinicCode: o.ClinicCode,
				ClinicName: o.ClinicName, EpisodeType: o.EpisodeType,
			})
		}
		row := &rows[i]
		row.Notifications++
		switch o.Reach.Credited() {
		case ChannelNHSApp:
			row.NHSAppRead++
		case ChannelSMS:
			row.SMSDelivered++
		case ChannelLetter:
			row.LettersSent++
		}
		if o.Failed {
			row.Failures++
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.After(b.Date)
		}
		if a.BSOCode != b.BSOCode {
			return a.BSOCode < b.BSOCode
		}
		if a.ClinicCode != b.ClinicCode {
			return a.ClinicCode < b.ClinicCode
		}
		return a.EpisodeType < b.EpisodeType
	})
	return rows
}

// FailureReportRow is one failed message for an appointment on the report
// date. Errors carries the upstream errors pinned to the message, used as
// the failure reason when no failed status event has a description.
type FailureReportRow struct {
	NHSNumber     string
	AppointmentAt time.Time
	ClinicCode    string
	EpisodeType   EpisodeType
	FailedAt      time.Time
	Description   string
	Errors        NotifyErrors
}

// ReconciliationReportRow is the notification state of one appointment.
// MessageStatus is empty when no message was ever created.
type ReconciliationReportRow struct {
	NHSNumber      string
	ClinicName     string
	ClinicCode     string
	EpisodeType    EpisodeType
	Status         AppointmentStatus
	MessageStatus  MessageStatus
	CreatedAt      time.Time
	StartsAt       time.Time
	CancelledAt    *time.Time
	MessageSentAt  *time.Time
	NHSAppReadAt   *time.Time
	SMSDeliveredAt *time.Time
	LetterSentAt   *time.Time
}
