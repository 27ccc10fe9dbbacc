package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"subledger/internal/ingest"
)

// Metric and dimension names for the webhook pipeline.
const (
	metricEventReceived     = "WebhookEventReceived"
	metricProcessingLatency = "WebhookProcessingLatency"

	dimEventType = "EventType"
	dimResult    = "Result"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchMetrics implements ingest.MetricsRecorder by emitting pipeline
// metrics to AWS CloudWatch.
//
// Metrics emitted:
//   - WebhookEventReceived:     Dims {EventType, Result} on every delivery
//   - WebhookProcessingLatency: Dims {EventType} per delivery, milliseconds
//
// Publish failures are logged and swallowed; metrics must never fail a
// webhook delivery.
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

var _ ingest.MetricsRecorder = (*CloudWatchMetrics)(nil)

// NewCloudWatchMetrics creates a CloudWatchMetrics publishing to the given
// namespace.
func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchMetrics {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchMetrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// EventReceived emits a count metric with EventType and Result dimensions.
func (m *CloudWatchMetrics) EventReceived(ctx context.Context, eventType string, result ingest.Result) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(metricEventReceived),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					{Name: aws.String(dimEventType), Value: aws.String(eventType)},
					{Name: aws.String(dimResult), Value: aws.String(string(result))},
				},
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.ErrorContext(ctx, "failed to record event metric",
			slog.String("event_type", eventType),
			slog.String("result", string(result)),
			slog.Any("error", err),
		)
	}
}

// ProcessingLatency emits the end-to-end pipeline latency in milliseconds.
func (m *CloudWatchMetrics) ProcessingLatency(ctx context.Context, eventType string, d time.Duration) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(metricProcessingLatency),
				Value:      aws.Float64(float64(d.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
				Dimensions: []cwtypes.Dimension{
					{Name: aws.String(dimEventType), Value: aws.String(eventType)},
				},
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.ErrorContext(ctx, "failed to record latency metric",
			slog.String("event_type", eventType),
			slog.Any("error", err),
		)
	}
}
