// Command batch-sender runs the SendBatch job: one batch per routing plan
// for the appointments inside the notification window.
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
	a, err := app.Load(context.Background(), config.SectionDatabase, config.SectionNotify, config.SectionQueue)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 1
	}
	defer a.Close()

	sender, err := a.Sender()
	if err != nil {
		a.Logger.Error("failed to build batch sender", "error", err)
		return 1
	}

	return a.Runner.Start(types.JobSendBatch, func(ctx context.Context) error {
		res, err := sender.Send(ctx)
		a.Logger.InfoContext(ctx, "send finished",
			"batches", res.Batches, "messages", res.Messages, "outcomes", res.Outcomes)
		return err
	})
}
