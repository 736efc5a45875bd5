package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"screeningcomms/internal/mesh"
	"screeningcomms/internal/types"
)

// Mailbox is the store-and-forward inbox the feed arrives in.
type Mailbox interface {
	Handshake(ctx context.Context) error
	ListMessages(ctx context.Context) ([]string, error)
	RetrieveMessage(ctx context.Context, id string) (*mesh.Message, error)
	Acknowledge(ctx context.Context, id string) error
}

// BlobWriter stores feed files.
type BlobWriter interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// PollResult summarises one Poll call.
type PollResult struct {
	Listed       int
	FilesWritten int
	Failed       int
}

// Poller copies mailbox messages into the feed container.
type Poller struct {
	mailbox Mailbox
	blobs   BlobWriter
	clock   types.Clock
	logger  *slog.Logger
}

// NewPoller creates a Poller.
func NewPoller(mailbox Mailbox, blobs BlobWriter, clock types.Clock, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Poller{mailbox: mailbox, blobs: blobs, clock: clock, logger: logger}
}

// Poll writes each pending message to {yyyy-mm-dd}/{filename} and then
// acknowledges it. A message whose retrieval or write fails is not
// acknowledged and stays in the inbox for the next poll; the remaining
// messages are still processed. In dry-run mode the inbox is only listed.
func (p *Poller) Poll(ctx context.Context, dryRun bool) (PollResult, error) {
	var res PollResult

	if err := p.mailbox.Handshake(ctx); err != nil {
		return res, err
	}
	ids, err := p.mailbox.ListMessages(ctx)
	if err != nil {
		return res, err
	}
	res.Listed = len(ids)
	p.logger.InfoContext(ctx, "mailbox listed", "count", len(ids), "dry_run", dryRun)

	if dryRun {
		for _, id := range ids {
			p.logger.InfoContext(ctx, "dry run: would retrieve message", "message_id", id)
		}
		return res, nil
	}

	dir := p.clock.Now().In(types.London).Format(DirDateLayout)
	var errs []error
	for _, id := range ids {
		if err := p.store(ctx, dir, id); err != nil {
			p.logger.ErrorContext(ctx, "failed to store mailbox message", "message_id", id, "error", err)
			errs = append(errs, fmt.Errorf("message %s: %w", id, err))
			res.Failed++
			continue
		}
		res.FilesWritten++
	}
	return res, errors.Join(errs...)
}

func (p *Poller) store(ctx context.Context, dir, id string) error {
	msg, err := p.mailbox.RetrieveMessage(ctx, id)
	if err != nil {
		return err
	}
	key := path.Join(dir, path.Base(msg.Filename))
	if err := p.blobs.Put(ctx, key, msg.Body, "text/plain"); err != nil {
		return err
	}
	if err := p.mailbox.Acknowledge(ctx, id); err != nil {
		return err
	}
	p.logger.InfoContext(ctx, "mailbox message stored", "message_id", id, "key", key, "bytes", len(msg.Body))
	return nil
}
