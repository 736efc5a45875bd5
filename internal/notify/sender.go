package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"screeningcomms/internal/types"
)

// notificationLeadDays is how far past the end of today an appointment may
// start and still be notified: four weeks and four days.
const notificationLeadDays = 4*7 + 4

// defaultStaleAfter is how long a batch may sit in scheduled before it is
// treated as abandoned by a worker that died mid-submission.
const defaultStaleAfter = time.Hour

// AppointmentRepo selects appointments to notify.
type AppointmentRepo interface {
	ListEligible(ctx context.Context, episodeTypes []types.EpisodeType, from, until time.Time) ([]*types.Appointment, error)
}

// BatchRepo persists message batches.
type BatchRepo interface {
	Create(ctx context.Context, b *types.MessageBatch) error
	GetForUpdate(ctx context.Context, id string) (*types.MessageBatch, error)
	Update(ctx context.Context, b *types.MessageBatch) error
	ListScheduledBefore(ctx context.Context, before time.Time) ([]string, error)
}

// MessageRepo persists messages.
type MessageRepo interface {
	Create(ctx context.Context, m *types.Message) error
	ListByBatch(ctx context.Context, batchID string) ([]*types.Message, error)
	Update(ctx context.Context, m *types.Message) error
	MarkBatchMessages(ctx context.Context, batchID string, status types.MessageStatus, sentAt *time.Time) (int64, error)
}

// Repos are the repositories bound to one transaction.
type Repos struct {
	Appointments AppointmentRepo
	Batches      BatchRepo
	Messages     MessageRepo
}

// UnitOfWork runs fn inside a transaction and commits when it returns nil.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, r Repos) error) error
}

// Dispatcher submits an encoded batch document.
type Dispatcher interface {
	SendBatch(ctx context.Context, body []byte) (*Response, error)
}

// RetryEnqueuer puts retry tokens on the retry queue.
type RetryEnqueuer interface {
	SendJSON(ctx context.Context, v any, reason string) error
}

// SenderConfig holds the dependencies of a Sender.
type SenderConfig struct {
	UnitOfWork      UnitOfWork
	Dispatcher      Dispatcher
	RetryQueue      RetryEnqueuer
	Validator       *SchemaValidator
	Clock           types.Clock
	Env             string
	WorkingDaysOnly bool
	// StaleAfter is how long a batch may stay scheduled before
	// RequeueStale or Resend may take it over. Defaults to one hour.
	StaleAfter time.Duration
	Logger     *slog.Logger
}

// Sender builds batches for eligible appointments and submits them.
type Sender struct {
	uow             UnitOfWork
	dispatcher      Dispatcher
	retryQueue      RetryEnqueuer
	validator       *SchemaValidator
	clock           types.Clock
	env             string
	workingDaysOnly bool
	staleAfter      time.Duration
	logger          *slog.Logger
}

// NewSender creates a Sender.
func NewSender(cfg SenderConfig) *Sender {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	staleAfter := cfg.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	return &Sender{
		uow:             cfg.UnitOfWork,
		dispatcher:      cfg.Dispatcher,
		retryQueue:      cfg.RetryQueue,
		validator:       cfg.Validator,
		clock:           clock,
		env:             cfg.Env,
		workingDaysOnly: cfg.WorkingDaysOnly,
		staleAfter:      staleAfter,
		logger:          logger,
	}
}

// SendResult summarises one Send call.
type SendResult struct {
	Batches  int
	Messages int
	Outcomes map[Outcome]int
}

// IsWorkingDay reports whether t falls on a weekday in London.
func IsWorkingDay(t time.Time) bool {
	switch t.In(types.London).Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return true
}

// NotificationWindow returns the [from, until] range of appointment start
// times eligible at now.
func NotificationWindow(now time.Time) (time.Time, time.Time) {
	local := now.In(types.London)
	return now, types.EndOfDay(local).AddDate(0, 0, notificationLeadDays)
}

// Send creates one batch per routing plan that has eligible appointments
// and submits it. Upstream failures are recorded on the batch and do not
// stop the remaining plans; they are returned joined once all plans are
// processed.
func (s *Sender) Send(ctx context.Context) (SendResult, error) {
	res := SendResult{Outcomes: map[Outcome]int{}}
	now := s.clock.Now()

	if s.workingDaysOnly && !IsWorkingDay(now) {
		s.logger.InfoContext(ctx, "not a working day, skipping batch send", "date", now.In(types.London).Format(time.DateOnly))
		return res, nil
	}
	from, until := NotificationWindow(now)

	var errs []error
	for _, plan := range RoutingPlans(s.env) {
		batch, messages, body, err := s.createBatch(ctx, plan, from, until, now)
		if err != nil {
			return res, fmt.Errorf("routing plan %s: %w", plan.ID, err)
		}
		if batch == nil {
			s.logger.InfoContext(ctx, "no appointments to batch", "routing_plan_id", plan.ID, "episode_types", plan.EpisodeTypes)
			continue
		}
		res.Batches++
		res.Messages += len(messages)

		result, err := s.dispatch(ctx, batch.ID, messages, body, 0)
		if err != nil {
			return res, err
		}
		res.Outcomes[result.Outcome]++
		if result.Cause != nil {
			errs = append(errs, result.Cause)
		}
	}
	return res, errors.Join(errs...)
}

// createBatch persists a batch and its messages for the plan and returns
// the encoded document. Nothing is persisted when the document fails
// schema validation.
func (s *Sender) createBatch(ctx context.Context, plan RoutingPlan, from, until, now time.Time) (*types.MessageBatch, []*types.Message, []byte, error) {
	var (
		batch    *types.MessageBatch
		messages []*types.Message
		body     []byte
	)
	err := s.uow.Do(ctx, func(ctx context.Context, r Repos) error {
		appointments, err := r.Appointments.ListEligible(ctx, plan.EpisodeTypes, from, until)
		if err != nil {
			return err
		}
		if len(appointments) == 0 {
			return nil
		}

		b := &types.MessageBatch{RoutingPlanID: plan.ID, Status: types.BatchUnscheduled, ScheduledAt: &now}
		if err := r.Batches.Create(ctx, b); err != nil {
			return err
		}
		for _, a := range appointments {
			m := &types.Message{BatchID: b.ID, AppointmentID: a.ID, Status: types.MessagePendingEnrichment}
			if err := r.Messages.Create(ctx, m); err != nil {
				return err
			}
		}

		msgs, err := r.Messages.ListByBatch(ctx, b.ID)
		if err != nil {
			return err
		}
		encoded, err := s.encode(b, msgs)
		if err != nil {
			return err
		}

		b.Status = types.BatchScheduled
		if err := r.Batches.Update(ctx, b); err != nil {
			return err
		}
		batch, messages, body = b, msgs, encoded
		return nil
	})
	if err != nil {
		return nil, nil, nil, err
	}
	if batch != nil {
		s.logger.InfoContext(ctx, "message batch scheduled",
			"batch_id", batch.ID, "routing_plan_id", plan.ID, "status", batch.Status, "messages", len(messages))
	}
	return batch, messages, body, nil
}

func (s *Sender) encode(b *types.MessageBatch, messages []*types.Message) ([]byte, error) {
	doc, err := Present(b, messages)
	if err != nil {
		return nil, err
	}
	return s.validator.Encode(doc)
}

// DispatchResult is the committed outcome of one submission. Cause holds
// an upstream or token error that was recorded as a recoverable failure.
type DispatchResult struct {
	Outcome Outcome
	Cause   error
}

// dispatch submits body and applies the response to the batch. messages
// must be the list the document was built from. A returned error means no
// state was committed.
func (s *Sender) dispatch(ctx context.Context, batchID string, messages []*types.Message, body []byte, retryCount int) (DispatchResult, error) {
	resp, sendErr := s.dispatcher.SendBatch(ctx, body)

	var result DispatchResult
	switch {
	case sendErr != nil:
		result = DispatchResult{Outcome: OutcomeRecoverable, Cause: sendErr}
		msg, _ := json.Marshal(map[string]string{"errors": sendErr.Error()})
		resp = &Response{Body: msg}
	default:
		result = DispatchResult{Outcome: Classify(resp.StatusCode)}
	}

	now := s.clock.Now()
	skipped := false
	err := s.uow.Do(ctx, func(ctx context.Context, r Repos) error {
		batch, err := r.Batches.GetForUpdate(ctx, batchID)
		if err != nil {
			return err
		}
		// A concurrent worker already settled the batch.
		if batch.Status.IsTerminal() {
			skipped = true
			return nil
		}

		switch result.Outcome {
		case OutcomeSent:
			return s.applySent(ctx, r, batch, messages, resp.Body, now)
		case OutcomeValidation:
			return s.applyValidation(ctx, r, batch, messages, resp.Body, retryCount)
		case OutcomeRecoverable:
			return s.applyRecoverable(ctx, r, batch, resp.Body, now, retryCount)
		default:
			return s.applyUnrecoverable(ctx, r, batch, resp.Body, now)
		}
	})
	if err != nil {
		return result, err
	}
	if skipped {
		s.logger.WarnContext(ctx, "batch already settled, response discarded", "batch_id", batchID, "outcome", result.Outcome.String())
		return result, nil
	}

	status := 0
	if sendErr == nil {
		status = resp.StatusCode
	}
	log := s.logger.With("batch_id", batchID, "outcome", result.Outcome.String(), "http_status", status, "retry_count", retryCount)
	switch result.Outcome {
	case OutcomeSent:
		log.InfoContext(ctx, "message batch sent", "status", types.BatchSent)
	case OutcomeUnrecoverable:
		log.ErrorContext(ctx, "message batch failed unrecoverably", "status", types.BatchFailedUnrecoverable)
	default:
		log.WarnContext(ctx, "message batch failed, queued for retry", "status", types.BatchFailedRecoverable, "error", result.Cause)
	}
	return result, nil
}

func (s *Sender) applySent(ctx context.Context, r Repos, batch *types.MessageBatch, messages []*types.Message, body []byte, now time.Time) error {
	notifyID, ids, err := parseSuccess(body)
	if err != nil {
		return err
	}
	batch.Status = types.BatchSent
	batch.NotifyID = notifyID
	batch.SentAt = &now
	if err := r.Batches.Update(ctx, batch); err != nil {
		return err
	}
	for _, m := range messages {
		m.Status = types.MessageDelivered
		m.NotifyID = ids[m.ID]
		m.SentAt = &now
		if err := r.Messages.Update(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// applyValidation detaches every message a validation error points at,
// records the error on it and queues the batch for retry. A batch left
// with no attached message is still queued; the retry worker settles it.
func (s *Sender) applyValidation(ctx context.Context, r Repos, batch *types.MessageBatch, messages []*types.Message, body []byte, retryCount int) error {
	for _, ve := range parseValidationErrors(body) {
		if ve.Index < 0 || ve.Index >= len(messages) {
			s.logger.WarnContext(ctx, "validation error points outside the batch", "batch_id", batch.ID, "index", ve.Index)
			continue
		}
		m := messages[ve.Index]
		m.BatchID = ""
		m.Status = types.MessageFailed
		m.NHSNotifyErrors = m.NHSNotifyErrors.Append(ve.Raw)
		if err := r.Messages.Update(ctx, m); err != nil {
			return err
		}
	}

	batch.NHSNotifyErrors = batch.NHSNotifyErrors.Append(responseErrors(body))
	batch.Status = types.BatchFailedRecoverable
	if err := r.Batches.Update(ctx, batch); err != nil {
		return err
	}
	return s.enqueueRetry(ctx, batch.ID, retryCount, "validation")
}

func (s *Sender) applyRecoverable(ctx context.Context, r Repos, batch *types.MessageBatch, body []byte, now time.Time, retryCount int) error {
	batch.Status = types.BatchFailedRecoverable
	batch.NHSNotifyErrors = batch.NHSNotifyErrors.Append(responseErrors(body))
	if err := r.Batches.Update(ctx, batch); err != nil {
		return err
	}
	if _, err := r.Messages.MarkBatchMessages(ctx, batch.ID, types.MessageFailed, &now); err != nil {
		return err
	}
	return s.enqueueRetry(ctx, batch.ID, retryCount, "recoverable")
}

func (s *Sender) applyUnrecoverable(ctx context.Context, r Repos, batch *types.MessageBatch, body []byte, now time.Time) error {
	batch.Status = types.BatchFailedUnrecoverable
	batch.NHSNotifyErrors = batch.NHSNotifyErrors.Append(responseErrors(body))
	if err := r.Batches.Update(ctx, batch); err != nil {
		return err
	}
	_, err := r.Messages.MarkBatchMessages(ctx, batch.ID, types.MessageFailed, &now)
	return err
}

// enqueueRetry runs inside the transaction that marks the batch
// FailedRecoverable, so the status is never committed without a token.
func (s *Sender) enqueueRetry(ctx context.Context, batchID string, retryCount int, reason string) error {
	return s.retryQueue.SendJSON(ctx, types.RetryToken{MessageBatchID: batchID, RetryCount: retryCount}, reason)
}

// isStale reports whether a scheduled batch was abandoned by the worker
// that claimed it.
func (s *Sender) isStale(b *types.MessageBatch, now time.Time) bool {
	return b.Status == types.BatchScheduled && b.ScheduledAt != nil && !b.ScheduledAt.After(now.Add(-s.staleAfter))
}

// claim moves a batch to scheduled inside the caller's transaction. The
// row lock taken by GetForUpdate makes a second claimant see the new
// status and back off.
func claim(ctx context.Context, r Repos, b *types.MessageBatch, now time.Time) error {
	b.Status = types.BatchScheduled
	b.ScheduledAt = &now
	return r.Batches.Update(ctx, b)
}

// Resend submits a failed batch once more, outside the retry queue. It is
// the manual recovery path for batches that exhausted their retries, and
// for batches stuck in scheduled longer than StaleAfter.
func (s *Sender) Resend(ctx context.Context, batchID string) (DispatchResult, error) {
	var (
		messages []*types.Message
		body     []byte
	)
	now := s.clock.Now()
	err := s.uow.Do(ctx, func(ctx context.Context, r Repos) error {
		batch, err := r.Batches.GetForUpdate(ctx, batchID)
		if err != nil {
			return err
		}
		failed := batch.Status == types.BatchFailedRecoverable || batch.Status == types.BatchFailedUnrecoverable
		if !failed && !s.isStale(batch, now) {
			return types.NewAppErrorWithDetails(types.ErrCodeConflictBatchState,
				"only failed or stale scheduled batches can be resent", nil,
				map[string]any{"batch_id": batchID, "status": batch.Status})
		}
		if err := claim(ctx, r, batch, now); err != nil {
			return err
		}
		messages, err = r.Messages.ListByBatch(ctx, batchID)
		if err != nil {
			return err
		}
		body, err = s.encode(batch, messages)
		return err
	})
	if err != nil {
		return DispatchResult{}, err
	}
	return s.dispatch(ctx, batchID, messages, body, 0)
}

// RequeueStale hands every batch left in scheduled for longer than
// StaleAfter back to the retry queue as FailedRecoverable with a fresh
// token. It returns the number of batches requeued.
func (s *Sender) RequeueStale(ctx context.Context) (int, error) {
	now := s.clock.Now()
	var ids []string
	err := s.uow.Do(ctx, func(ctx context.Context, r Repos) error {
		var err error
		ids, err = r.Batches.ListScheduledBefore(ctx, now.Add(-s.staleAfter))
		return err
	})
	if err != nil {
		return 0, err
	}

	requeued := 0
	var errs []error
	for _, id := range ids {
		moved := false
		err := s.uow.Do(ctx, func(ctx context.Context, r Repos) error {
			batch, err := r.Batches.GetForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if !s.isStale(batch, now) {
				return nil
			}
			batch.Status = types.BatchFailedRecoverable
			batch.NHSNotifyErrors = batch.NHSNotifyErrors.Append(staleError(batch.ScheduledAt))
			if err := r.Batches.Update(ctx, batch); err != nil {
				return err
			}
			moved = true
			return s.enqueueRetry(ctx, batch.ID, 0, "stale")
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to requeue stale batch", "batch_id", id, "error", err)
			errs = append(errs, fmt.Errorf("batch %s: %w", id, err))
			continue
		}
		if moved {
			requeued++
			s.logger.WarnContext(ctx, "stale scheduled batch requeued", "batch_id", id, "status", types.BatchFailedRecoverable)
		}
	}
	return requeued, errors.Join(errs...)
}

func staleError(scheduledAt *time.Time) json.RawMessage {
	msg := "submission outcome unknown, batch left in scheduled"
	if scheduledAt != nil {
		msg += " since " + scheduledAt.UTC().Format(time.RFC3339)
	}
	out, _ := json.Marshal(map[string]string{"errors": msg})
	return out
}
