// Package feed turns the appointment feed delivered through the mailbox into
// clinic and appointment state. The poller copies mailbox messages into the
// feed container; the ingestor parses a day's files and applies each row to
// the appointment state machine.
package feed

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"screeningcomms/internal/types"
)

const (
	dateLayout      = "20060102"
	dateTimeLayout  = "20060102 1504"
	timestampLayout = "20060102-150405"
)

// Column names as they appear in the feed.
const (
	colBSO                 = "BSO"
	colClinicCode          = "Clinic Code"
	colClinicName          = "Clinic Name"
	colClinicNameLet       = "Clinic Name (Let)"
	colPostcode            = "Postcode"
	colHoldingClinic       = "Holding Clinic"
	colLocation            = "Location"
	colAppointmentID       = "Appointment ID"
	colNHSNumber           = "NHS Num"
	colApptNumber          = "Screen Appt num"
	colBatchID             = "Batch ID"
	colEpisodeStart        = "Episode Start"
	colEpisodeType         = "Episode Type"
	colApptDate            = "Appt Date"
	colApptTime            = "Appt Time"
	colStatus              = "Status"
	colBookedBy            = "Booked By"
	colActionTimestamp     = "Action Timestamp"
	colCancelledBy         = "Cancelled By"
	colAttendedNotScreened = "Attended Not Scr"
	colScreenOrAssess      = "Screen or Assess"
)

// headerAliases maps historical misspellings to the canonical column name.
var headerAliases = map[string]string{
	"Epsiode Type":    colEpisodeType,
	"BatchID":         colBatchID,
	"Screen or Asses": colScreenOrAssess,
}

var requiredColumns = []string{
	colBSO, colClinicCode, colAppointmentID, colNHSNumber,
	colEpisodeType, colApptDate, colApptTime, colStatus,
}

// Row is one parsed feed record.
type Row struct {
	Line int

	BSOCode       string
	ClinicCode    string
	ClinicName    string
	ClinicNameLet string
	Address       [5]string
	Postcode      string
	HoldingClinic bool
	LocationCode  string

	NBSSID              string
	NHSNumber           string
	Number              int
	BatchID             string
	EpisodeStartedAt    *time.Time
	EpisodeType         types.EpisodeType
	StartsAt            time.Time
	Status              types.AppointmentStatus
	BookedBy            string
	ActionAt            *time.Time
	CancelledBy         string
	AttendedNotScreened string
	Assessment          bool
}

// Clinic returns the clinic described by the row.
func (r Row) Clinic() *types.Clinic {
	return &types.Clinic{
		Code:          r.ClinicCode,
		BSOCode:       r.BSOCode,
		Name:          r.ClinicName,
		AltName:       r.ClinicNameLet,
		HoldingClinic: r.HoldingClinic,
		LocationCode:  r.LocationCode,
		AddressLine1:  r.Address[0],
		AddressLine2:  r.Address[1],
		AddressLine3:  r.Address[2],
		AddressLine4:  r.Address[3],
		AddressLine5:  r.Address[4],
		Postcode:      r.Postcode,
	}
}

// Parse reads a pipe-delimited feed file. The first line is a file header
// record and the last line a trailer; both are skipped. The second line
// names the columns. Values are ASCII and may be double-quoted.
func Parse(data []byte) ([]Row, error) {
	lines := splitLines(data)
	if len(lines) < 3 {
		return nil, types.NewAppError(types.ErrCodeValidationFeedFormat,
			fmt.Sprintf("feed has %d lines; need header record, column header and trailer", len(lines)), nil)
	}
	body := lines[1 : len(lines)-1]

	r := csv.NewReader(strings.NewReader(strings.Join(body, "\n")))
	r.Comma = '|'
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationFeedFormat, "failed to read column header", err)
	}
	idx := indexColumns(header)
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			return nil, types.NewAppError(types.ErrCodeValidationFeedFormat, "feed is missing column "+strconv.Quote(col), nil)
		}
	}

	var rows []Row
	line := 2
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeValidationFeedFormat, fmt.Sprintf("line %d", line), err)
		}
		row, err := parseRecord(idx, record)
		if err != nil {
			return nil, types.NewAppErrorWithDetails(types.ErrCodeValidationFeedFormat,
				fmt.Sprintf("line %d: %v", line, err), err, map[string]any{"line": line})
		}
		row.Line = line
		rows = append(rows, row)
	}
	return rows, nil
}

// splitLines drops blank lines so a trailing newline does not count as the
// trailer.
func splitLines(data []byte) []string {
	raw := strings.Split(string(bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))), "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

func indexColumns(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if canonical, ok := headerAliases[name]; ok {
			name = canonical
		}
		if _, dup := idx[name]; !dup {
			idx[name] = i
		}
	}
	return idx
}

type record struct {
	idx    map[string]int
	fields []string
}

func (r record) get(col string) string {
	i, ok := r.idx[col]
	if !ok || i >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[i])
}

func parseRecord(idx map[string]int, fields []string) (Row, error) {
	rec := record{idx: idx, fields: fields}

	// Holding clinic rows are placeholders and are never applied, so their
	// remaining fields are not validated.
	if rec.get(colHoldingClinic) == "Y" {
		return Row{
			BSOCode:       rec.get(colBSO),
			ClinicCode:    rec.get(colClinicCode),
			NBSSID:        rec.get(colAppointmentID),
			HoldingClinic: true,
		}, nil
	}

	status, err := types.ParseAppointmentStatusCode(rec.get(colStatus))
	if err != nil {
		return Row{}, err
	}
	episodeType, err := types.ParseEpisodeTypeCode(rec.get(colEpisodeType))
	if err != nil {
		return Row{}, err
	}
	startsAt, err := time.ParseInLocation(dateTimeLayout, rec.get(colApptDate)+" "+rec.get(colApptTime), types.London)
	if err != nil {
		return Row{}, fmt.Errorf("invalid appointment date/time: %w", err)
	}

	row := Row{
		BSOCode:       rec.get(colBSO),
		ClinicCode:    rec.get(colClinicCode),
		ClinicName:    rec.get(colClinicName),
		ClinicNameLet: rec.get(colClinicNameLet),
		Postcode:      rec.get(colPostcode),
		HoldingClinic: rec.get(colHoldingClinic) == "Y",
		LocationCode:  rec.get(colLocation),

		NBSSID:              rec.get(colAppointmentID),
		NHSNumber:           rec.get(colNHSNumber),
		BatchID:             rec.get(colBatchID),
		EpisodeType:         episodeType,
		StartsAt:            startsAt,
		Status:              status,
		BookedBy:            rec.get(colBookedBy),
		CancelledBy:         rec.get(colCancelledBy),
		AttendedNotScreened: rec.get(colAttendedNotScreened),
		Assessment:          rec.get(colScreenOrAssess) == "A",
	}
	for i := range row.Address {
		row.Address[i] = rec.get(fmt.Sprintf("Clinic Address %d", i+1))
	}
	if row.NBSSID == "" {
		return Row{}, errors.New("missing appointment id")
	}

	if n := rec.get(colApptNumber); n != "" {
		row.Number, err = strconv.Atoi(n)
		if err != nil {
			return Row{}, fmt.Errorf("invalid appointment number %q", n)
		}
	} else {
		row.Number = 1
	}

	if v := rec.get(colEpisodeStart); v != "" {
		t, err := time.ParseInLocation(dateLayout, v, types.London)
		if err != nil {
			return Row{}, fmt.Errorf("invalid episode start %q", v)
		}
		row.EpisodeStartedAt = &t
	}
	if v := rec.get(colActionTimestamp); v != "" {
		t, err := time.ParseInLocation(timestampLayout, v, types.London)
		if err != nil {
			return Row{}, fmt.Errorf("invalid action timestamp %q", v)
		}
		row.ActionAt = &t
	}
	return row, nil
}
