package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
)

// ErrMeterNil is returned when a metrics constructor receives no meter.
var ErrMeterNil = errors.New("telemetry: meter cannot be nil")

// PayrollMetrics records payroll workflow counters.
type PayrollMetrics struct {
	recordsProcessed *Counter
	recordsApproved  *Counter
	paymentOutcomes  *Counter
	netPaidCents     *Counter
	remoteCalls      *Histogram
}

// NewPayrollMetrics creates the payroll instruments on the given meter.
func NewPayrollMetrics(meter metric.Meter) (*PayrollMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}
	var err error
	m := &PayrollMetrics{}

	if m.recordsProcessed, err = NewCounter(meter,
		"payroll_records_processed_total", "Payroll records created by processing runs", "{records}"); err != nil {
		return nil, err
	}
	if m.recordsApproved, err = NewCounter(meter,
		"payroll_records_approved_total", "Payroll records moved to approved", "{records}"); err != nil {
		return nil, err
	}
	if m.paymentOutcomes, err = NewCounter(meter,
		"payroll_payment_outcomes_total", "Per-record results of payment batches", "{records}"); err != nil {
		return nil, err
	}
	if m.netPaidCents, err = NewCounter(meter,
		"payroll_net_paid_cents_total", "Net salary paid out in minor currency units", "{cents}"); err != nil {
		return nil, err
	}
	if m.remoteCalls, err = NewHistogram(meter, HistogramOpts{
		Name:        "payroll_remote_call_duration_seconds",
		Description: "Latency of tax engine and payment gateway calls",
		Unit:        "s",
		Boundaries:  RemoteCallBuckets,
	}); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordProcessed counts records created for a business.
func (m *PayrollMetrics) RecordProcessed(ctx context.Context, businessID uuid.UUID, count int) {
	m.recordsProcessed.Add(ctx, int64(count), AttrBusinessID.String(businessID.String()))
}

// RecordApproved counts records approved for a business.
func (m *PayrollMetrics) RecordApproved(ctx context.Context, businessID uuid.UUID, count int) {
	m.recordsApproved.Add(ctx, int64(count), AttrBusinessID.String(businessID.String()))
}

// RecordPaymentOutcome counts one per-record payment result.
func (m *PayrollMetrics) RecordPaymentOutcome(ctx context.Context, businessID uuid.UUID, status, reason string) {
	m.paymentOutcomes.Inc(ctx,
		AttrBusinessID.String(businessID.String()),
		AttrRecordStatus.String(status),
		AttrFailureReason.String(reason),
	)
}

// RecordNetPaid adds a paid net salary, converted to minor units.
func (m *PayrollMetrics) RecordNetPaid(ctx context.Context, businessID uuid.UUID, amount decimal.Decimal) {
	cents := amount.Mul(decimal.NewFromInt(100)).IntPart()
	m.netPaidCents.Add(ctx, cents, AttrBusinessID.String(businessID.String()))
}

// RecordRemoteCall records the latency of a collaborator call.
func (m *PayrollMetrics) RecordRemoteCall(ctx context.Context, collaborator string, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.remoteCalls.RecordDuration(ctx, d, AttrCollaborator.String(collaborator), AttrOutcome.String(outcome))
}
