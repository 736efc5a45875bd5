// Command retry-worker runs the RetryBatch job. Under Lambda it accepts
// SQS events from the retry queue as well as scheduled invocations; from
// the shell it processes one token.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"screeningcomms/internal/app"
	"screeningcomms/internal/config"
	"screeningcomms/internal/jobs"
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

	worker, err := a.RetryWorker()
	if err != nil {
		a.Logger.Error("failed to build retry worker", "error", err)
		return 1
	}

	handler := jobs.Wrap(a.Runner, types.JobRetryBatch, worker.Handler)
	if jobs.InLambda() {
		lambda.Start(handler)
		return 0
	}
	_, err = handler(context.Background(), json.RawMessage(`{}`))
	return jobs.ExitCode(err)
}
