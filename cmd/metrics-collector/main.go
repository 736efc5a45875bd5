// Command metrics-collector runs the CollectMetrics job: one depth gauge
// per durable queue.
package main

import (
	"context"
	"fmt"
	"os"

	"screeningcomms/internal/app"
	"screeningcomms/internal/config"
	"screeningcomms/internal/types"
)

func main() {
	os.Exit(run())
}

func run() int {
	a, err := app.Load(context.Background(), config.SectionQueue)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 1
	}
	defer a.Close()

	collector := a.Collector()
	return a.Runner.Start(types.JobCollectMetrics, func(ctx context.Context) error {
		_, err := collector.Collect(ctx)
		return err
	})
}
