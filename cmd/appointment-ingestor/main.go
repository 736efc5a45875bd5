// Command appointment-ingestor runs the IngestAppointments job over the
// feed files stored under today's date prefix, or the date given by
// INGEST_DATE (YYYY-MM-DD).
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"screeningcomms/internal/app"
	"screeningcomms/internal/config"
	"screeningcomms/internal/feed"
	"screeningcomms/internal/types"
)

func main() {
	os.Exit(run())
}

func run() int {
	a, err := app.Load(context.Background(), config.SectionDatabase, config.SectionBlob)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 1
	}
	defer a.Close()

	ingestor := a.Ingestor()
	date := os.Getenv("INGEST_DATE")
	if date == "" {
		date = time.Now().In(types.London).Format(feed.DirDateLayout)
	}

	return a.Runner.Start(types.JobIngestAppointments, func(ctx context.Context) error {
		res, err := ingestor.Ingest(ctx, date)
		a.Logger.InfoContext(ctx, "ingest finished",
			"files", res.Files, "rows", res.RowsProcessed, "actions", res.Actions)
		return err
	})
}
