// Package main implements the job-runner CLI for running any pipeline job
// from a shell, bypassing the Lambda runtime.
//
// It is intended for local development, backfills and operational
// debugging. Every task runs through the same job wrapper as the deployed
// binaries, so Completed/Error events are emitted as usual.
//
// Usage:
//
//	job-runner migrate
//	job-runner seed-clinics -file clinics.json
//	job-runner fetch-feed -dry-run
//	job-runner ingest-appointments -date 2025-10-06
//	job-runner create-reports -smoke
//	job-runner resend-batch -batch 5f0c...
//	job-runner requeue-stale-batches
//	job-runner send-batch -env-secrets
//	job-runner -list
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"screeningcomms/internal/app"
	"screeningcomms/internal/config"
	"screeningcomms/internal/db"
	"screeningcomms/internal/feed"
	"screeningcomms/internal/types"
)

// options are the flags shared by every task.
type options struct {
	Date   string `json:"date,omitempty"`
	Smoke  bool   `json:"smoke,omitempty"`
	DryRun bool   `json:"dry_run,omitempty"`
	File   string `json:"file,omitempty"`
	Batch  string `json:"batch,omitempty"`
	// EnvSecrets resolves *_SSM_PARAM pointers against other environment
	// variables instead of SSM.
	EnvSecrets bool `json:"env_secrets,omitempty"`
}

type task struct {
	description string
	job         string
	sections    []config.Section
	run         func(ctx context.Context, a *app.App, opts options) error
}

var tasks = map[string]task{
	"migrate": {
		description: "Apply the database schema",
		job:         "Migrate",
		sections:    []config.Section{config.SectionDatabase},
		run: func(ctx context.Context, a *app.App, _ options) error {
			return db.Migrate(ctx, a.Pool)
		},
	},
	"seed-clinics": {
		description: "Create missing clinics and refresh their locations from a JSON file (-file)",
		job:         "SeedClinics",
		sections:    []config.Section{config.SectionDatabase},
		run:         runSeedClinics,
	},
	"fetch-feed": {
		description: "Copy mailbox messages into the feed container (-dry-run lists only)",
		job:         types.JobFetchFeed,
		sections:    []config.Section{config.SectionMailbox, config.SectionBlob},
		run: func(ctx context.Context, a *app.App, opts options) error {
			poller, err := a.Poller()
			if err != nil {
				return err
			}
			res, err := poller.Poll(ctx, opts.DryRun)
			a.Logger.InfoContext(ctx, "feed poll finished", "listed", res.Listed, "files_written", res.FilesWritten, "failed", res.Failed)
			return err
		},
	},
	"ingest-appointments": {
		description: "Apply the feed files of a date (-date, default today)",
		job:         types.JobIngestAppointments,
		sections:    []config.Section{config.SectionDatabase, config.SectionBlob},
		run: func(ctx context.Context, a *app.App, opts options) error {
			res, err := a.Ingestor().Ingest(ctx, opts.Date)
			a.Logger.InfoContext(ctx, "ingest finished", "files", res.Files, "rows", res.RowsProcessed, "actions", res.Actions)
			return err
		},
	},
	"send-batch": {
		description: "Build and submit batches for eligible appointments",
		job:         types.JobSendBatch,
		sections:    []config.Section{config.SectionDatabase, config.SectionNotify, config.SectionQueue},
		run: func(ctx context.Context, a *app.App, _ options) error {
			sender, err := a.Sender()
			if err != nil {
				return err
			}
			res, err := sender.Send(ctx)
			a.Logger.InfoContext(ctx, "send finished", "batches", res.Batches, "messages", res.Messages, "outcomes", res.Outcomes)
			return err
		},
	},
	"retry-batch": {
		description: "Process one token from the retry queue",
		job:         types.JobRetryBatch,
		sections:    []config.Section{config.SectionDatabase, config.SectionNotify, config.SectionQueue},
		run: func(ctx context.Context, a *app.App, _ options) error {
			worker, err := a.RetryWorker()
			if err != nil {
				return err
			}
			_, err = worker.Handler(ctx, json.RawMessage(`{}`))
			return err
		},
	},
	"resend-batch": {
		description: "Resubmit a failed batch (-batch)",
		job:         "ResendBatch",
		sections:    []config.Section{config.SectionDatabase, config.SectionNotify, config.SectionQueue},
		run: func(ctx context.Context, a *app.App, opts options) error {
			if opts.Batch == "" {
				return fmt.Errorf("-batch is required")
			}
			sender, err := a.Sender()
			if err != nil {
				return err
			}
			res, err := sender.Resend(ctx, opts.Batch)
			a.Logger.InfoContext(ctx, "resend finished", "batch_id", opts.Batch, "outcome", res.Outcome)
			if err != nil {
				return err
			}
			return res.Cause
		},
	},
	"requeue-stale-batches": {
		description: "Hand batches stuck in scheduled back to the retry queue",
		job:         "RequeueStaleBatches",
		sections:    []config.Section{config.SectionDatabase, config.SectionNotify, config.SectionQueue},
		run: func(ctx context.Context, a *app.App, _ options) error {
			sender, err := a.Sender()
			if err != nil {
				return err
			}
			n, err := sender.RequeueStale(ctx)
			a.Logger.InfoContext(ctx, "stale batches requeued", "batches", n)
			return err
		},
	},
	"save-message-status": {
		description: "Drain one receive batch of the status queue",
		job:         types.JobSaveMessageStatus,
		sections:    []config.Section{config.SectionDatabase, config.SectionQueue},
		run: func(ctx context.Context, a *app.App, _ options) error {
			res, err := a.Persistor().Drain(ctx)
			a.Logger.InfoContext(ctx, "status drain finished",
				"received", res.Received, "persisted", res.Persisted, "duplicate", res.Duplicate, "skipped", res.Skipped, "failed", res.Failed)
			return err
		},
	},
	"create-reports": {
		description: "Generate, store and mail the reports (-smoke for the smoke report only)",
		job:         types.JobCreateReports,
		sections:    []config.Section{config.SectionDatabase, config.SectionBlob, config.SectionSMTP, config.SectionReports},
		run: func(ctx context.Context, a *app.App, opts options) error {
			reporter, err := a.Reporter()
			if err != nil {
				return err
			}
			reps, err := reporter.Run(ctx, opts.Smoke)
			for _, r := range reps {
				fmt.Printf("%s\t%d rows\tmailed=%t\n", r.Filename, r.Rows, r.Mailed)
			}
			return err
		},
	},
	"collect-metrics": {
		description: "Publish queue depth gauges",
		job:         types.JobCollectMetrics,
		sections:    []config.Section{config.SectionQueue},
		run: func(ctx context.Context, a *app.App, _ options) error {
			samples, err := a.Collector().Collect(ctx)
			for _, s := range samples {
				fmt.Printf("%s\t%d\n", s.Queue, s.Depth)
			}
			return err
		},
	},
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-list" || args[0] == "--list" {
		printTasks(stdout)
		return 0
	}

	name := args[0]
	t, ok := tasks[name]
	if !ok {
		fmt.Fprintf(stderr, "error: unknown task %q\n\n", name)
		printTasks(stderr)
		return 1
	}

	opts, err := parseOptions(name, args[1:], stderr)
	if err != nil {
		return 2
	}

	if opts.DryRun && name != "fetch-feed" {
		return printPlan(stdout, name, t, opts)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var secrets config.SecretProvider = config.NewSSMProvider(os.Getenv("AWS_REGION"))
	if opts.EnvSecrets {
		secrets = config.NewEnvVarProvider()
	}
	a, err := app.LoadWith(ctx, secrets, t.sections...)
	if err != nil {
		fmt.Fprintf(stderr, "fatal: %v\n", err)
		return 1
	}
	defer a.Close()

	if err := a.Runner.Run(ctx, t.job, func(ctx context.Context) error {
		return t.run(ctx, a, opts)
	}); err != nil {
		return 1
	}
	return 0
}

func parseOptions(name string, args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts options
	fs.StringVar(&opts.Date, "date", time.Now().In(types.London).Format(feed.DirDateLayout), "Feed date (YYYY-MM-DD)")
	fs.BoolVar(&opts.Smoke, "smoke", false, "Produce the smoke report only")
	fs.BoolVar(&opts.DryRun, "dry-run", false, "Print what would run without side effects")
	fs.StringVar(&opts.File, "file", "", "Input file")
	fs.StringVar(&opts.Batch, "batch", "", "Message batch id")
	fs.BoolVar(&opts.EnvSecrets, "env-secrets", false, "Resolve *_SSM_PARAM pointers from the environment")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if _, err := feed.ParseDirDate(opts.Date); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return options{}, err
	}
	return opts, nil
}

func runSeedClinics(ctx context.Context, a *app.App, opts options) error {
	if opts.File == "" {
		return fmt.Errorf("-file is required")
	}
	f, err := os.Open(opts.File)
	if err != nil {
		return err
	}
	defer f.Close()

	res, err := feed.SeedClinics(ctx, a.FeedUnitOfWork(), f, a.Logger)
	a.Logger.InfoContext(ctx, "clinics seeded", "created", res.Created, "updated", res.Updated)
	return err
}

func printPlan(w io.Writer, name string, t task, opts options) int {
	plan := struct {
		Task     string           `json:"task"`
		Job      string           `json:"job"`
		Sections []config.Section `json:"config_sections"`
		Options  options          `json:"options"`
	}{Task: name, Job: t.job, Sections: t.sections, Options: opts}

	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		fmt.Fprintf(w, "error: %v\n", err)
		return 1
	}
	fmt.Fprintln(w, string(data))
	return 0
}

func printTasks(w io.Writer) {
	names := make([]string, 0, len(tasks))
	for name := range tasks {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w, "Usage: job-runner <task> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Tasks:")
	for _, name := range names {
		fmt.Fprintf(w, "  %-22s %s\n", name, tasks[name].description)
	}
}
