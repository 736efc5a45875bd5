// Command reporter runs the CreateReports job. REPORTS_SMOKE=true produces
// only the smoke reconciliation report.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"screeningcomms/internal/app"
	"screeningcomms/internal/config"
	"screeningcomms/internal/types"
)

func main() {
	os.Exit(run())
}

func run() int {
	a, err := app.Load(context.Background(), config.SectionDatabase, config.SectionBlob, config.SectionSMTP, config.SectionReports)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 1
	}
	defer a.Close()

	reporter, err := a.Reporter()
	if err != nil {
		a.Logger.Error("failed to build reporter", "error", err)
		return 1
	}
	smoke, _ := strconv.ParseBool(os.Getenv("REPORTS_SMOKE"))

	return a.Runner.Start(types.JobCreateReports, func(ctx context.Context) error {
		reps, err := reporter.Run(ctx, smoke)
		a.Logger.InfoContext(ctx, "reports finished", "reports", len(reps), "smoke", smoke)
		return err
	})
}
