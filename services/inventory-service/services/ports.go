package services

import (
	"context"

	"github.com/yashrajoria/commerce-core/services/inventory-service/models"
)

// EventPublisher delivers committed stock changes. Failures are logged by
// the caller and never undo the change.
type EventPublisher interface {
	PublishStockEvent(ctx context.Context, evt models.StockEvent) error
}

// MetricsRecorder is satisfied by *aws.MetricsClient.
type MetricsRecorder interface {
	RecordCount(ctx context.Context, metricName string, dimensions map[string]string) error
	RecordCountN(ctx context.Context, metricName string, n int, dimensions map[string]string) error
}

type noopPublisher struct{}

func (noopPublisher) PublishStockEvent(context.Context, models.StockEvent) error { return nil }

type noopMetrics struct{}

func (noopMetrics) RecordCount(context.Context, string, map[string]string) error       { return nil }
func (noopMetrics) RecordCountN(context.Context, string, int, map[string]string) error { return nil }
