package feed

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screeningcomms/internal/types"
)

var testColumns = []string{
	"BSO", "Clinic Code", "Clinic Name", "Clinic Name (Let)",
	"Clinic Address 1", "Clinic Address 2", "Clinic Address 3", "Clinic Address 4", "Clinic Address 5",
	"Postcode", "Holding Clinic", "Location", "Appointment ID", "NHS Num", "Screen Appt num",
	"Batch ID", "Episode Start", "Episode Type", "Appt Date", "Appt Time", "Status",
	"Booked By", "Action Timestamp", "Cancelled By", "Attended Not Scr", "Screen or Assess",
}

// baseRow is a booked first appointment at a real clinic.
func baseRow() map[string]string {
	return map[string]string{
		"BSO": "KMK", "Clinic Code": "BU011", "Clinic Name": "BREAST CARE UNIT",
		"Clinic Name (Let)": "BREAST CARE UNIT", "Clinic Address 1": "BREAST CARE UNIT",
		"Clinic Address 2": "MILTON KEYNES HOSPITAL", "Clinic Address 3": "STANDING WAY",
		"Clinic Address 4": "MILTON KEYNES", "Clinic Address 5": "MK6 5LD", "Postcode": "MK6 5LD",
		"Holding Clinic": "N", "Location": "BU", "Appointment ID": "BU011-67278-RA1-DN-Y1111-1",
		"NHS Num": "9449305552", "Screen Appt num": "1", "Batch ID": "KMK001326",
		"Episode Start": "20250101", "Episode Type": "F", "Appt Date": "20250314", "Appt Time": "1345",
		"Status": "B", "Booked By": "H", "Action Timestamp": "20250128-154003",
		"Cancelled By": "", "Attended Not Scr": "", "Screen or Assess": "S",
	}
}

func with(row map[string]string, kv ...string) map[string]string {
	out := make(map[string]string, len(row))
	for k, v := range row {
		out[k] = v
	}
	for i := 0; i+1 < len(kv); i += 2 {
		out[kv[i]] = kv[i+1]
	}
	return out
}

func feedFile(columns []string, rows ...map[string]string) []byte {
	var b strings.Builder
	b.WriteString("\"NBSS_APPT\"|\"20250128\"|\"154503\"\n")
	b.WriteString(strings.Join(columns, "|") + "\n")
	for _, r := range rows {
		vals := make([]string, len(columns))
		for i, c := range columns {
			if canonical, ok := headerAliases[c]; ok {
				c = canonical
			}
			vals[i] = `"` + r[c] + `"`
		}
		b.WriteString(strings.Join(vals, "|") + "\n")
	}
	b.WriteString("\"NBSS_APPT_END\"|\"" + string(rune('0'+len(rows))) + "\"\n")
	return []byte(b.String())
}

func TestParse_Row(t *testing.T) {
	rows, err := Parse(feedFile(testColumns, baseRow()))
	require.NoError(t, err)
	require.Len(t, rows, 1)

	r := rows[0]
	assert.Equal(t, 3, r.Line)
	assert.Equal(t, "KMK", r.BSOCode)
	assert.Equal(t, "BU011", r.ClinicCode)
	assert.Equal(t, [5]string{"BREAST CARE UNIT", "MILTON KEYNES HOSPITAL", "STANDING WAY", "MILTON KEYNES", "MK6 5LD"}, r.Address)
	assert.False(t, r.HoldingClinic)
	assert.Equal(t, "9449305552", r.NHSNumber)
	assert.Equal(t, 1, r.Number)
	assert.Equal(t, types.EpisodeRoutineFirstCall, r.EpisodeType)
	assert.Equal(t, types.AppointmentBooked, r.Status)
	assert.True(t, r.StartsAt.Equal(time.Date(2025, 3, 14, 13, 45, 0, 0, types.London)))
	require.NotNil(t, r.ActionAt)
	assert.True(t, r.ActionAt.Equal(time.Date(2025, 1, 28, 15, 40, 3, 0, time.UTC)))
	require.NotNil(t, r.EpisodeStartedAt)
	assert.False(t, r.Assessment)

	c := r.Clinic()
	assert.Equal(t, "MK6 5LD", c.Postcode)
	assert.Equal(t, "BREAST CARE UNIT", c.Name)
}

func TestParse_HeaderAliases(t *testing.T) {
	cols := make([]string, len(testColumns))
	copy(cols, testColumns)
	for i, c := range cols {
		switch c {
		case "Episode Type":
			cols[i] = "Epsiode Type"
		case "Batch ID":
			cols[i] = "BatchID"
		case "Screen or Assess":
			cols[i] = "Screen or Asses"
		}
	}

	rows, err := Parse(feedFile(cols, with(baseRow(), "Episode Type", "R", "Screen or Assess", "A")))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, types.EpisodeRoutineRecall, rows[0].EpisodeType)
	assert.Equal(t, "KMK001326", rows[0].BatchID)
	assert.True(t, rows[0].Assessment)
}

func TestParse_HoldingClinicNotValidated(t *testing.T) {
	rows, err := Parse(feedFile(testColumns, with(baseRow(), "Holding Clinic", "Y", "Appt Date", "", "Status", "?")))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].HoldingClinic)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"too short", []byte("header\ncolumns\n")},
		{"missing column", feedFile([]string{"BSO", "Clinic Code"}, baseRow())},
		{"bad status", feedFile(testColumns, with(baseRow(), "Status", "Z"))},
		{"bad episode type", feedFile(testColumns, with(baseRow(), "Episode Type", "Q"))},
		{"bad date", feedFile(testColumns, with(baseRow(), "Appt Date", "2025-03-14"))},
		{"bad timestamp", feedFile(testColumns, with(baseRow(), "Action Timestamp", "yesterday"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.data)
			require.Error(t, err)
			assert.Equal(t, types.ErrCodeValidationFeedFormat, types.CodeOf(err))
		})
	}
}

func TestParse_CRLFAndTrailingBlankLines(t *testing.T) {
	data := strings.ReplaceAll(string(feedFile(testColumns, baseRow(), with(baseRow(), "Appointment ID", "X-2"))), "\n", "\r\n") + "\r\n\r\n"
	rows, err := Parse([]byte(data))
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}
