// Command feed-poller runs the FetchFeed job: it copies every message in
// the mailbox inbox into the feed container and acknowledges it.
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
	a, err := app.Load(context.Background(), config.SectionMailbox, config.SectionBlob)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 1
	}
	defer a.Close()

	poller, err := a.Poller()
	if err != nil {
		a.Logger.Error("failed to build feed poller", "error", err)
		return 1
	}

	return a.Runner.Start(types.JobFetchFeed, func(ctx context.Context) error {
		res, err := poller.Poll(ctx, false)
		a.Logger.InfoContext(ctx, "feed poll finished",
			"listed", res.Listed, "files_written", res.FilesWritten, "failed", res.Failed)
		return err
	})
}
