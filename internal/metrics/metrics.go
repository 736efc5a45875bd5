// Package metrics publishes operational signals to CloudWatch: queue depth
// gauges sampled by the CollectMetrics job and the Completed/Error events
// emitted when a job finishes.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"screeningcomms/internal/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Publisher writes metric data under one namespace. A Publisher with no
// client or an empty namespace accepts every call and publishes nothing.
type Publisher struct {
	client      CloudWatchClient
	namespace   string
	environment string
	logger      *slog.Logger
}

// NewPublisher creates a Publisher.
func NewPublisher(client CloudWatchClient, namespace, environment string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{client: client, namespace: namespace, environment: environment, logger: logger}
}

// Enabled reports whether data is actually published.
func (p *Publisher) Enabled() bool {
	return p != nil && p.client != nil && p.namespace != ""
}

func (p *Publisher) put(ctx context.Context, data ...cwtypes.MetricDatum) error {
	_, err := p.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(p.namespace),
		MetricData: data,
	})
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, "failed to publish metric data", err)
	}
	return nil
}

func (p *Publisher) dimension(name, value string) cwtypes.Dimension {
	return cwtypes.Dimension{Name: aws.String(name), Value: aws.String(value)}
}

// QueueDepth publishes a depth gauge for one queue.
func (p *Publisher) QueueDepth(ctx context.Context, queue string, depth int) error {
	if !p.Enabled() {
		return nil
	}
	return p.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricQueueDepth),
		Value:      aws.Float64(float64(depth)),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			p.dimension(types.DimQueue, queue),
			p.dimension(types.DimEnvironment, p.environment),
		},
	})
}

// JobEvent publishes a {job}Completed or {job}Error counter.
func (p *Publisher) JobEvent(ctx context.Context, job string, failed bool) error {
	if !p.Enabled() {
		return nil
	}
	name := job + "Completed"
	if failed {
		name = job + "Error"
	}
	return p.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			p.dimension(types.DimEnvironment, p.environment),
		},
	})
}

// DepthSource is a queue whose depth can be sampled.
type DepthSource interface {
	Name() string
	Depth(ctx context.Context) (int, error)
}

// Sample is one queue depth observation.
type Sample struct {
	Queue string
	Depth int
}

// Collector samples queue depths and publishes them as gauges.
type Collector struct {
	publisher *Publisher
	queues    []DepthSource
	logger    *slog.Logger
}

// NewCollector creates a Collector over queues.
func NewCollector(publisher *Publisher, queues []DepthSource, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{publisher: publisher, queues: queues, logger: logger}
}

// Collect samples every queue. A queue that cannot be sampled or published
// does not stop the others.
func (c *Collector) Collect(ctx context.Context) ([]Sample, error) {
	if !c.publisher.Enabled() {
		c.logger.InfoContext(ctx, "metrics namespace not configured, skipping queue depth gauges")
		return nil, nil
	}

	var (
		samples []Sample
		errs    []error
	)
	for _, q := range c.queues {
		depth, err := q.Depth(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("queue %s: %w", q.Name(), err))
			continue
		}
		if err := c.publisher.QueueDepth(ctx, q.Name(), depth); err != nil {
			errs = append(errs, fmt.Errorf("queue %s: %w", q.Name(), err))
			continue
		}
		c.logger.InfoContext(ctx, "queue depth", "queue", q.Name(), "depth", depth)
		samples = append(samples, Sample{Queue: q.Name(), Depth: depth})
	}
	return samples, errors.Join(errs...)
}
