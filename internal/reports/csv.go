package reports

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"strings"
	"time"

	"screeningcomms/internal/types"
)

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04"
)

var (
	aggregateHeader = []string{
		"Date", "BSO code", "Clinic code", "Clinic name", "Episode type",
		"Notifications sent", "NHS app messages read", "SMS messages delivered", "Letters sent", "Notifications failed",
	}
	failuresHeader = []string{
		"NHS number", "Appointment date", "Clinic code", "Episode type", "Failure date", "Failure reason",
	}
	reconciliationHeader = []string{
		"NHS number", "Clinic name", "Clinic code", "Episode type", "Appointment status", "Message status",
		"Created", "Appointment date", "Cancelled", "Message sent", "NHS app read", "SMS delivered", "Letter sent",
	}
)

func writeCSV(header []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func localDate(t time.Time) string {
	return t.In(types.London).Format(dateLayout)
}

func localDateTime(t time.Time) string {
	return t.In(types.London).Format(dateTimeLayout)
}

func optionalDateTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return localDateTime(*t)
}

// AggregateCSV renders the aggregate report.
func AggregateCSV(rows []types.AggregateReportRow) ([]byte, error) {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, []string{
			r.Date.Format(dateLayout),
			r.BSOCode,
			r.ClinicCode,
			r.ClinicName,
			label(episodeTypeLabels, r.EpisodeType),
			strconv.Itoa(r.Notifications),
			strconv.Itoa(r.NHSAppRead),
			strconv.Itoa(r.SMSDelivered),
			strconv.Itoa(r.LettersSent),
			strconv.Itoa(r.Failures),
		})
	}
	return writeCSV(aggregateHeader, out)
}

// FailuresCSV renders the invites-not-sent report. The reason is the
// failed status description, or the upstream error titles joined with
// ", " when there is none.
func FailuresCSV(rows []types.FailureReportRow) ([]byte, error) {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		reason := r.Description
		if reason == "" {
			reason = strings.Join(r.Errors.Titles(), ", ")
		}
		out = append(out, []string{
			r.NHSNumber,
			localDateTime(r.AppointmentAt),
			r.ClinicCode,
			label(episodeTypeLabels, r.EpisodeType),
			localDateTime(r.FailedAt),
			reason,
		})
	}
	return writeCSV(failuresHeader, out)
}

// ReconciliationCSV renders the reconciliation report.
func ReconciliationCSV(rows []types.ReconciliationReportRow) ([]byte, error) {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		msgStatus := ""
		if r.MessageStatus != "" {
			msgStatus = label(messageStatusLabels, r.MessageStatus)
		}
		out = append(out, []string{
			r.NHSNumber,
			r.ClinicName,
			r.ClinicCode,
			label(episodeTypeLabels, r.EpisodeType),
			label(appointmentStatusLabels, r.Status),
			msgStatus,
			localDateTime(r.CreatedAt),
			localDateTime(r.StartsAt),
			optionalDateTime(r.CancelledAt),
			optionalDateTime(r.MessageSentAt),
			optionalDateTime(r.NHSAppReadAt),
			optionalDateTime(r.SMSDeliveredAt),
			optionalDateTime(r.LetterSentAt),
		})
	}
	return writeCSV(reconciliationHeader, out)
}
