// Package reports produces the operational CSV reports per breast
// screening office, stores them in the reports container and mails them
// to the configured recipients.
package reports

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"screeningcomms/internal/types"
)

// SmokeBSOCode is the synthetic office used by smoke runs.
const SmokeBSOCode = "SM0K3"

// Kind names a report. It appears in filenames and subjects.
type Kind string

const (
	KindAggregate      Kind = "aggregate"
	KindInvitesNotSent Kind = "invites-not-sent"
	KindReconciliation Kind = "reconciliation"
)

// mailBSOName is the office name used in subjects.
const mailBSOName = "Birmingham (MCR)"

// Source runs the report queries.
type Source interface {
	Aggregate(ctx context.Context, bsoCode string, since time.Time) ([]types.AggregateReportRow, error)
	Failures(ctx context.Context, bsoCode string, from, to time.Time) ([]types.FailureReportRow, error)
	Reconciliation(ctx context.Context, bsoCode string, since time.Time) ([]types.ReconciliationReportRow, error)
}

// BlobWriter stores report files.
type BlobWriter interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// Config holds the dependencies of a Reporter. A nil Mailer disables
// mail delivery.
type Config struct {
	Source      Source
	Blobs       BlobWriter
	Mailer      Mailer
	BSOCodes    []string
	Recipients  []string
	Environment string
	Clock       types.Clock
	Logger      *slog.Logger
}

// Reporter generates the reports.
type Reporter struct {
	source      Source
	blobs       BlobWriter
	mailer      Mailer
	bsoCodes    []string
	recipients  []string
	environment string
	clock       types.Clock
	logger      *slog.Logger
}

// New creates a Reporter.
func New(cfg Config) *Reporter {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Reporter{
		source:      cfg.Source,
		blobs:       cfg.Blobs,
		mailer:      cfg.Mailer,
		bsoCodes:    cfg.BSOCodes,
		recipients:  cfg.Recipients,
		environment: cfg.Environment,
		clock:       clock,
		logger:      logger,
	}
}

// Report is one generated file.
type Report struct {
	BSOCode  string
	Kind     Kind
	Filename string
	Rows     int
	Mailed   bool
}

type reportSpec struct {
	kind   Kind
	render func(ctx context.Context, bso string) ([]byte, int, error)
}

// Run generates every report for every configured office, or the smoke
// reconciliation report when smoke is set. A failing report does not stop
// the others; failures are returned joined.
func (r *Reporter) Run(ctx context.Context, smoke bool) ([]Report, error) {
	now := r.clock.Now()
	bsoCodes, specs := r.plan(now, smoke)

	var (
		out  []Report
		errs []error
	)
	for _, bso := range bsoCodes {
		for _, spec := range specs {
			rep, err := r.produce(ctx, now, bso, spec, smoke)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s %s report: %w", bso, spec.kind, err))
				continue
			}
			out = append(out, rep)
		}
	}
	return out, errors.Join(errs...)
}

func (r *Reporter) plan(now time.Time, smoke bool) ([]string, []reportSpec) {
	local := now.In(types.London)
	threeMonths := local.AddDate(0, -3, 0)

	if smoke {
		return []string{SmokeBSOCode}, []reportSpec{
			r.reconciliation(local.AddDate(0, 0, -7)),
		}
	}

	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, types.London)
	return r.bsoCodes, []reportSpec{
		{kind: KindAggregate, render: func(ctx context.Context, bso string) ([]byte, int, error) {
			rows, err := r.source.Aggregate(ctx, bso, threeMonths)
			if err != nil {
				return nil, 0, err
			}
			data, err := AggregateCSV(rows)
			return data, len(rows), err
		}},
		{kind: KindInvitesNotSent, render: func(ctx context.Context, bso string) ([]byte, int, error) {
			rows, err := r.source.Failures(ctx, bso, dayStart, dayStart.AddDate(0, 0, 1))
			if err != nil {
				return nil, 0, err
			}
			data, err := FailuresCSV(rows)
			return data, len(rows), err
		}},
		r.reconciliation(threeMonths),
	}
}

func (r *Reporter) reconciliation(since time.Time) reportSpec {
	return reportSpec{kind: KindReconciliation, render: func(ctx context.Context, bso string) ([]byte, int, error) {
		rows, err := r.source.Reconciliation(ctx, bso, since)
		if err != nil {
			return nil, 0, err
		}
		data, err := ReconciliationCSV(rows)
		return data, len(rows), err
	}}
}

func (r *Reporter) produce(ctx context.Context, now time.Time, bso string, spec reportSpec, smoke bool) (Report, error) {
	data, n, err := spec.render(ctx, bso)
	if err != nil {
		return Report{}, err
	}
	rep := Report{BSOCode: bso, Kind: spec.kind, Filename: Filename(now, bso, spec.kind, smoke), Rows: n}

	if err := r.blobs.Put(ctx, rep.Filename, data, "text/csv"); err != nil {
		return Report{}, err
	}
	r.logger.InfoContext(ctx, "report created", "bso_code", bso, "kind", spec.kind, "filename", rep.Filename, "rows", n)

	if r.mailer == nil {
		r.logger.InfoContext(ctx, "SMTP connection is not enabled", "kind", spec.kind)
		return rep, nil
	}
	if len(r.recipients) == 0 {
		r.logger.WarnContext(ctx, "no report recipients configured", "kind", spec.kind)
		return rep, nil
	}
	err = r.mailer.Send(ctx, Email{
		To:             r.recipients,
		Subject:        Subject(r.environment, spec.kind, now),
		HTMLBody:       Body(spec.kind),
		AttachmentName: rep.Filename,
		Attachment:     data,
	})
	if err != nil {
		return Report{}, err
	}
	rep.Mailed = true
	return rep, nil
}

// Filename names a report file. Smoke files carry no timestamp so that
// each smoke run overwrites the last.
func Filename(now time.Time, bso string, kind Kind, smoke bool) string {
	name := fmt.Sprintf("%s-%s-report.csv", bso, kind)
	if smoke {
		return name
	}
	return now.In(types.London).Format("2006-01-02T15:04:05") + "-" + name
}

// Subject builds the mail subject. Non-production environments are
// prefixed with the upper-cased environment name.
func Subject(environment string, kind Kind, now time.Time) string {
	subject := fmt.Sprintf("Breast screening digital comms %s report – %s – %s",
		strings.ReplaceAll(string(kind), "-", " "), now.In(types.London).Format("02-01-2006"), mailBSOName)
	if environment != "prod" {
		return "[" + strings.ToUpper(environment) + "] " + subject
	}
	return subject
}

var bodies = map[Kind]string{
	KindAggregate: "<p>Please find attached the aggregate report of breast screening appointment notifications for the last three months.</p>" +
		"<p>Counts per channel show the furthest channel each notification reached: NHS App read, then SMS delivered, then letter sent.</p>",
	KindInvitesNotSent: "<p>Please find attached the list of breast screening appointment invitations that could not be sent today.</p>" +
		"<p>Each row gives the reason reported for the failure. These participants need to be contacted by other means.</p>",
	KindReconciliation: "<p>Please find attached the reconciliation report of breast screening appointments and their notification status.</p>",
}

// Body returns the HTML body for a report kind.
func Body(kind Kind) string {
	return bodies[kind]
}
