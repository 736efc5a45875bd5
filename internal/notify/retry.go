package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"screeningcomms/internal/queue"
	"screeningcomms/internal/types"
)

// RetryQueue is the consuming side of the retry queue.
type RetryQueue interface {
	Receive(ctx context.Context, max int, waitSeconds int32) ([]queue.Message, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// RetryOutcome is what RetryOne did with the token it received.
type RetryOutcome string

const (
	RetryEmpty     RetryOutcome = "empty"
	RetryRetried   RetryOutcome = "retried"
	RetryExhausted RetryOutcome = "exhausted"
	RetryDiscarded RetryOutcome = "discarded"
)

// RetryConfig holds the dependencies of a RetryWorker.
type RetryConfig struct {
	Sender *Sender
	Queue  RetryQueue
	// Limit is the number of re-submissions allowed per batch.
	Limit int
	// DelayBase is multiplied by the token's retry count before resubmitting.
	DelayBase time.Duration
	// Sleep waits for d or until ctx is done. Defaults to a timer.
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger *slog.Logger
}

// RetryWorker resubmits batches that failed recoverably.
type RetryWorker struct {
	sender    *Sender
	queue     RetryQueue
	limit     int
	delayBase time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
	logger    *slog.Logger
}

// NewRetryWorker creates a RetryWorker.
func NewRetryWorker(cfg RetryConfig) *RetryWorker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	return &RetryWorker{
		sender:    cfg.Sender,
		queue:     cfg.Queue,
		limit:     cfg.Limit,
		delayBase: cfg.DelayBase,
		sleep:     sleep,
		logger:    logger,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RetryOne receives at most one token and processes it. The token is
// deleted once its effect is committed, including when retries are
// exhausted; any other error leaves it for redelivery.
func (w *RetryWorker) RetryOne(ctx context.Context) (RetryOutcome, error) {
	msgs, err := w.queue.Receive(ctx, 1, 0)
	if err != nil {
		return "", err
	}
	if len(msgs) == 0 {
		return RetryEmpty, nil
	}
	msg := msgs[0]

	outcome, err := w.HandleToken(ctx, []byte(msg.Body))
	if err != nil && outcome == "" {
		return "", err
	}
	if delErr := w.queue.Delete(ctx, msg.ReceiptHandle); delErr != nil {
		return outcome, errors.Join(err, delErr)
	}
	return outcome, err
}

// HandleToken processes one retry token. A non-empty outcome means the
// token is settled and must be acknowledged; the error may still be set
// (for example ErrCodeInternalRetryExhausted) to surface the condition.
func (w *RetryWorker) HandleToken(ctx context.Context, body []byte) (RetryOutcome, error) {
	var token types.RetryToken
	if err := json.Unmarshal(body, &token); err != nil || token.MessageBatchID == "" {
		w.logger.WarnContext(ctx, "discarding malformed retry token", "body", string(body))
		return RetryDiscarded, nil
	}
	log := w.logger.With("batch_id", token.MessageBatchID, "retry_count", token.RetryCount)

	var (
		outcome  RetryOutcome
		messages []*types.Message
		doc      []byte
	)
	err := w.sender.uow.Do(ctx, func(ctx context.Context, r Repos) error {
		batch, err := r.Batches.GetForUpdate(ctx, token.MessageBatchID)
		if err != nil {
			if types.CodeOf(err) == types.ErrCodeNotFoundMessageBatch {
				outcome = RetryDiscarded
				return nil
			}
			return err
		}
		if batch.Status != types.BatchFailedRecoverable {
			outcome = RetryDiscarded
			return nil
		}

		if token.RetryCount >= w.limit {
			batch.Status = types.BatchFailedUnrecoverable
			outcome = RetryExhausted
			return r.Batches.Update(ctx, batch)
		}

		messages, err = r.Messages.ListByBatch(ctx, batch.ID)
		if err != nil {
			return err
		}
		if len(messages) == 0 {
			batch.Status = types.BatchFailedUnrecoverable
			outcome = RetryDiscarded
			return r.Batches.Update(ctx, batch)
		}
		doc, err = w.sender.encode(batch, messages)
		if err != nil {
			return err
		}
		// Claim before the lock is released so a duplicate delivery of
		// this token finds the batch no longer FailedRecoverable.
		return claim(ctx, r, batch, w.sender.clock.Now())
	})
	if err != nil {
		return "", err
	}

	switch outcome {
	case RetryDiscarded:
		log.WarnContext(ctx, "discarding retry token for a batch that cannot be retried")
		return outcome, nil
	case RetryExhausted:
		log.ErrorContext(ctx, "retry limit reached, batch failed unrecoverably", "limit", w.limit)
		return outcome, types.NewAppErrorWithDetails(types.ErrCodeInternalRetryExhausted,
			"batch retry limit reached", nil,
			map[string]any{"batch_id": token.MessageBatchID, "retry_count": token.RetryCount})
	}

	delay := w.delayBase * time.Duration(token.RetryCount)
	if err := w.sleep(ctx, delay); err != nil {
		return "", err
	}

	log.InfoContext(ctx, "resubmitting message batch", "messages", len(messages), "delay", delay.String())
	res, err := w.sender.dispatch(ctx, token.MessageBatchID, messages, doc, token.RetryCount+1)
	if err != nil {
		return "", err
	}
	return RetryRetried, res.Cause
}

// Handler is the Lambda entrypoint. It accepts either an SQS event from an
// event source mapping, reporting unsettled records as batch item failures,
// or any other payload (such as a scheduled event), in which case it
// requeues stale scheduled batches and then pulls one token from the queue
// itself.
func (w *RetryWorker) Handler(ctx context.Context, payload json.RawMessage) (events.SQSEventResponse, error) {
	var sqsEvent events.SQSEvent
	if err := json.Unmarshal(payload, &sqsEvent); err == nil && len(sqsEvent.Records) > 0 {
		return w.handleSQSEvent(ctx, sqsEvent), nil
	}

	if n, err := w.sender.RequeueStale(ctx); err != nil {
		w.logger.ErrorContext(ctx, "stale batch sweep failed", "requeued", n, "error", err)
	}
	// Exhaustion is returned too: the token is already acknowledged, but
	// the job must report the failure.
	outcome, err := w.RetryOne(ctx)
	w.logger.InfoContext(ctx, "retry invocation finished", "outcome", string(outcome))
	return events.SQSEventResponse{}, err
}

func (w *RetryWorker) handleSQSEvent(ctx context.Context, ev events.SQSEvent) events.SQSEventResponse {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		outcome, err := w.HandleToken(ctx, []byte(rec.Body))
		if outcome == "" {
			w.logger.ErrorContext(ctx, "retry token left for redelivery", "message_id", rec.MessageId, "error", err)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		}
	}
	return resp
}
