// Package queue provides the two durable queues of the pipeline on SQS: the
// retry queue carrying batch retry tokens and the status queue carrying raw
// webhook bodies. Delivery is at-least-once; consumers delete a message only
// after its effect is committed.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"screeningcomms/internal/types"
)

// maxReceivePage is the SQS limit on messages per ReceiveMessage call.
const maxReceivePage = 10

// SQSAPI is the subset of *sqs.Client used by Queue.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
}

// Message is one received queue item.
type Message struct {
	ID            string
	Body          string
	ReceiptHandle string
	ReceiveCount  int
}

// Queue is a single SQS queue.
type Queue struct {
	client            SQSAPI
	name              string
	url               string
	visibilityTimeout int32
	logger            *slog.Logger
}

// New creates a Queue. visibilityTimeout (seconds) overrides the queue
// default on receive when positive.
func New(client SQSAPI, name, url string, visibilityTimeout int32, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		client:            client,
		name:              name,
		url:               url,
		visibilityTimeout: visibilityTimeout,
		logger:            logger,
	}
}

// Name returns the logical queue name used in logs and metrics.
func (q *Queue) Name() string {
	return q.name
}

// Send enqueues body verbatim.
func (q *Queue) Send(ctx context.Context, body string) error {
	return q.send(ctx, body, "")
}

// SendJSON marshals v and enqueues it with a "reason" attribute.
func (q *Queue) SendJSON(ctx context.Context, v any, reason string) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal payload for %s: %w", q.name, err)
	}
	return q.send(ctx, string(body), reason)
}

func (q *Queue) send(ctx context.Context, body, reason string) error {
	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.url),
		MessageBody: aws.String(body),
	}
	if reason != "" {
		input.MessageAttributes = map[string]sqsTypes.MessageAttributeValue{
			"reason": {
				DataType:    aws.String("String"),
				StringValue: aws.String(reason),
			},
		}
	}

	out, err := q.client.SendMessage(ctx, input)
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamQueue,
			fmt.Sprintf("failed to send message to %s", q.name), err)
	}

	q.logger.InfoContext(ctx, "queue message sent",
		"queue", q.name,
		"message_id", aws.ToString(out.MessageId),
		"reason", reason,
	)
	return nil
}

// Receive returns up to max messages, issuing as many ReceiveMessage calls
// as needed. waitSeconds applies long polling to the first call only; it
// stops at the first empty page.
func (q *Queue) Receive(ctx context.Context, max int, waitSeconds int32) ([]Message, error) {
	var out []Message
	wait := waitSeconds
	for len(out) < max {
		page := max - len(out)
		if page > maxReceivePage {
			page = maxReceivePage
		}
		input := &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(q.url),
			MaxNumberOfMessages: int32(page),
			WaitTimeSeconds:     wait,
			MessageSystemAttributeNames: []sqsTypes.MessageSystemAttributeName{
				sqsTypes.MessageSystemAttributeNameApproximateReceiveCount,
			},
		}
		if q.visibilityTimeout > 0 {
			input.VisibilityTimeout = q.visibilityTimeout
		}

		res, err := q.client.ReceiveMessage(ctx, input)
		if err != nil {
			return out, types.NewAppError(types.ErrCodeUpstreamQueue,
				fmt.Sprintf("failed to receive from %s", q.name), err)
		}
		if len(res.Messages) == 0 {
			break
		}
		for _, m := range res.Messages {
			count, _ := strconv.Atoi(m.Attributes[string(sqsTypes.MessageSystemAttributeNameApproximateReceiveCount)])
			out = append(out, Message{
				ID:            aws.ToString(m.MessageId),
				Body:          aws.ToString(m.Body),
				ReceiptHandle: aws.ToString(m.ReceiptHandle),
				ReceiveCount:  count,
			})
		}
		wait = 0
	}
	return out, nil
}

// Delete acknowledges a received message.
func (q *Queue) Delete(ctx context.Context, receiptHandle string) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.url),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamQueue,
			fmt.Sprintf("failed to delete message from %s", q.name), err)
	}
	return nil
}

// Depth returns the approximate number of visible messages.
func (q *Queue) Depth(ctx context.Context) (int, error) {
	out, err := q.client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl: aws.String(q.url),
		AttributeNames: []sqsTypes.QueueAttributeName{
			sqsTypes.QueueAttributeNameApproximateNumberOfMessages,
		},
	})
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeUpstreamQueue,
			fmt.Sprintf("failed to read attributes of %s", q.name), err)
	}
	raw := out.Attributes[string(sqsTypes.QueueAttributeNameApproximateNumberOfMessages)]
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeUpstreamQueue,
			fmt.Sprintf("unparseable depth %q for %s", raw, q.name), err)
	}
	return n, nil
}
