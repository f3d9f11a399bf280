package payroll

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hrpay/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// WorkflowMetrics receives payroll counters. telemetry.PayrollMetrics implements it.
type WorkflowMetrics interface {
	RecordProcessed(ctx context.Context, businessID uuid.UUID, count int)
	RecordApproved(ctx context.Context, businessID uuid.UUID, count int)
	RecordPaymentOutcome(ctx context.Context, businessID uuid.UUID, status, reason string)
	RecordNetPaid(ctx context.Context, businessID uuid.UUID, amount decimal.Decimal)
	RecordRemoteCall(ctx context.Context, collaborator string, d time.Duration, err error)
}

type noopMetrics struct{}

func (noopMetrics) RecordProcessed(context.Context, uuid.UUID, int) {}
func (noopMetrics) RecordApproved(context.Context, uuid.UUID, int) {}
func (noopMetrics) RecordPaymentOutcome(context.Context, uuid.UUID, string, string) {}
func (noopMetrics) RecordNetPaid(context.Context, uuid.UUID, decimal.Decimal) {}
func (noopMetrics) RecordRemoteCall(context.Context, string, time.Duration, error) {}

type eventSource interface {
	GetDomainEvents() []shared.DomainEvent
	ClearDomainEvents()
}

// publishEvents publishes and clears the pending events of committed aggregates.
// Delivery failures are logged; the state change is already durable.
func publishEvents(ctx context.Context, publisher shared.EventPublisher, logger *zap.Logger, sources ...eventSource) {
	var events []shared.DomainEvent
	for _, src := range sources {
		events = append(events, src.GetDomainEvents()...)
		src.ClearDomainEvents()
	}
	if publisher == nil || len(events) == 0 {
		return
	}
	if err := publisher.Publish(ctx, events...); err != nil {
		logger.Warn("failed to publish payroll events",
			zap.Int("event_count", len(events)),
			zap.Error(err),
		)
	}
}
