package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"screeningcomms/internal/queue"
	"screeningcomms/internal/types"
)

// Callback event types.
const (
	TypeMessageStatus = "MessageStatus"
	TypeChannelStatus = "ChannelStatus"
)

// MessageRepo looks up the message a callback refers to.
type MessageRepo interface {
	GetByID(ctx context.Context, id string) (*types.Message, error)
}

// StatusRepo writes status rows. The insert methods report false when a
// row with the same idempotency key already exists.
type StatusRepo interface {
	InsertMessageStatus(ctx context.Context, e *types.MessageStatusEvent) (bool, error)
	InsertChannelStatus(ctx context.Context, e *types.ChannelStatusEvent) (bool, error)
}

// StatusQueue is the consuming side of the status queue.
type StatusQueue interface {
	Receive(ctx context.Context, max int, waitSeconds int32) ([]queue.Message, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// PersistorConfig holds the dependencies of a Persistor.
type PersistorConfig struct {
	Queue       StatusQueue
	Messages    MessageRepo
	Statuses    StatusRepo
	ReceiveSize int
	Logger      *slog.Logger
}

// Persistor drains the status queue into status rows.
type Persistor struct {
	queue       StatusQueue
	messages    MessageRepo
	statuses    StatusRepo
	receiveSize int
	logger      *slog.Logger
}

// NewPersistor creates a Persistor.
func NewPersistor(cfg PersistorConfig) *Persistor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	size := cfg.ReceiveSize
	if size <= 0 {
		size = 50
	}
	return &Persistor{
		queue:       cfg.Queue,
		messages:    cfg.Messages,
		statuses:    cfg.Statuses,
		receiveSize: size,
		logger:      logger,
	}
}

// callback is the subset of the notify callback body that is persisted.
type callback struct {
	Data []struct {
		Type       string `json:"type"`
		Attributes struct {
			MessageReference         string `json:"messageReference"`
			MessageStatus            string `json:"messageStatus"`
			MessageStatusDescription string `json:"messageStatusDescription"`
			Channel                  string `json:"channel"`
			ChannelStatusDescription string `json:"channelStatusDescription"`
			SupplierStatus           string `json:"supplierStatus"`
			Timestamp                string `json:"timestamp"`
		} `json:"attributes"`
		Meta struct {
			IdempotencyKey string `json:"idempotencyKey"`
		} `json:"meta"`
	} `json:"data"`
}

// Disposition is what Save did with one callback.
type Disposition string

const (
	Persisted Disposition = "persisted"
	Duplicate Disposition = "duplicate"
	Skipped   Disposition = "skipped"
)

// DrainResult summarises one Drain call.
type DrainResult struct {
	Received  int
	Persisted int
	Duplicate int
	Skipped   int
	Failed    int
}

// Drain reads one batch of callbacks and persists them. A callback is
// deleted from the queue once it is written, found to be a duplicate or
// skipped; failures stay on the queue for redelivery and are returned
// joined after the rest of the batch is processed.
func (p *Persistor) Drain(ctx context.Context) (DrainResult, error) {
	var res DrainResult
	msgs, err := p.queue.Receive(ctx, p.receiveSize, 0)
	if err != nil {
		return res, err
	}
	res.Received = len(msgs)

	var errs []error
	for _, m := range msgs {
		d, err := p.Save(ctx, []byte(m.Body))
		if err != nil {
			res.Failed++
			errs = append(errs, fmt.Errorf("queue message %s: %w", m.ID, err))
			continue
		}
		if err := p.queue.Delete(ctx, m.ReceiptHandle); err != nil {
			errs = append(errs, err)
		}
		switch d {
		case Persisted:
			res.Persisted++
		case Duplicate:
			res.Duplicate++
		default:
			res.Skipped++
		}
	}
	p.logger.InfoContext(ctx, "status queue drained",
		"received", res.Received, "persisted", res.Persisted, "duplicate", res.Duplicate,
		"skipped", res.Skipped, "failed", res.Failed)
	return res, errors.Join(errs...)
}

// Save persists one callback body. A returned error means the callback
// should be redelivered. Bodies that can never be persisted (not JSON, an
// unknown event type, a message reference that is not a UUID or unknown
// enum values) are Skipped and logged.
func (p *Persistor) Save(ctx context.Context, body []byte) (Disposition, error) {
	var cb callback
	if err := json.Unmarshal(body, &cb); err != nil || len(cb.Data) == 0 {
		p.logger.ErrorContext(ctx, "discarding unreadable status callback", "error", err)
		return Skipped, nil
	}
	ev := cb.Data[0]
	attrs := ev.Attributes
	key := ev.Meta.IdempotencyKey
	log := p.logger.With("type", ev.Type, "message_id", attrs.MessageReference, "idempotency_key", key)

	if ev.Type != TypeMessageStatus && ev.Type != TypeChannelStatus {
		log.WarnContext(ctx, "discarding status callback of unknown type")
		return Skipped, nil
	}

	if _, err := uuid.Parse(attrs.MessageReference); err != nil {
		log.ErrorContext(ctx, "discarding status callback with invalid message reference")
		return Skipped, nil
	}

	msg, err := p.messages.GetByID(ctx, attrs.MessageReference)
	if err != nil {
		return "", err
	}

	at, err := time.Parse(time.RFC3339Nano, attrs.Timestamp)
	if err != nil {
		log.ErrorContext(ctx, "discarding status callback with invalid timestamp", "timestamp", attrs.Timestamp)
		return Skipped, nil
	}

	var inserted bool
	switch ev.Type {
	case TypeMessageStatus:
		st, perr := types.ParseMessageStatus(attrs.MessageStatus)
		if perr != nil {
			log.ErrorContext(ctx, "discarding status callback", "error", perr)
			return Skipped, nil
		}
		inserted, err = p.statuses.InsertMessageStatus(ctx, &types.MessageStatusEvent{
			MessageID:       msg.ID,
			Status:          st,
			Description:     attrs.MessageStatusDescription,
			IdempotencyKey:  key,
			StatusUpdatedAt: at,
		})
	case TypeChannelStatus:
		ch, perr := types.ParseChannel(attrs.Channel)
		if perr != nil {
			log.ErrorContext(ctx, "discarding status callback", "error", perr)
			return Skipped, nil
		}
		st, perr := types.ParseChannelStatus(attrs.SupplierStatus)
		if perr != nil {
			log.ErrorContext(ctx, "discarding status callback", "error", perr)
			return Skipped, nil
		}
		inserted, err = p.statuses.InsertChannelStatus(ctx, &types.ChannelStatusEvent{
			MessageID:       msg.ID,
			Channel:         ch,
			Status:          st,
			Description:     attrs.ChannelStatusDescription,
			IdempotencyKey:  key,
			StatusUpdatedAt: at,
		})
	}
	if err != nil {
		return "", err
	}
	if !inserted {
		log.InfoContext(ctx, "status callback already recorded")
		return Duplicate, nil
	}
	return Persisted, nil
}

// Handler is the Lambda entrypoint. SQS events are processed record by
// record with failures reported as batch item failures; any other payload
// triggers a Drain.
func (p *Persistor) Handler(ctx context.Context, payload json.RawMessage) (events.SQSEventResponse, error) {
	var sqsEvent events.SQSEvent
	if err := json.Unmarshal(payload, &sqsEvent); err == nil && len(sqsEvent.Records) > 0 {
		var resp events.SQSEventResponse
		for _, rec := range sqsEvent.Records {
			if _, err := p.Save(ctx, []byte(rec.Body)); err != nil {
				p.logger.ErrorContext(ctx, "status callback left for redelivery", "message_id", rec.MessageId, "error", err)
				resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
			}
		}
		return resp, nil
	}
	_, err := p.Drain(ctx)
	return events.SQSEventResponse{}, err
}
