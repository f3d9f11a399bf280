package payroll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hrpay/backend/internal/domain/payroll"
	"github.com/hrpay/backend/internal/domain/shared"
	"github.com/hrpay/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// remoteReasonPrefix marks outcomes whose transfer result is unknown.
// Such records stay Approved and can be re-driven.
const remoteReasonPrefix = "RemoteError: "

// settleTimeout bounds the commit that records a gateway answer. The commit
// ignores caller cancellation once the gateway has answered.
const settleTimeout = 15 * time.Second

// PeriodStateMachine drives a payroll period through
// Unprocessed -> Processed -> Approved -> Paid, one record at a time.
type PeriodStateMachine struct {
	txScope        TransactionScope
	periodRepo     payroll.PeriodRepository
	recordRepo     payroll.RecordRepository
	employeeRepo   payroll.EmployeeRepository
	reconciler     *DeductionReconciler
	binder         *PaymentChannelBinder
	gateway        payroll.PaymentGateway
	workflow       *PayrollWorkflowContext
	idempotency    shared.IdempotencyStore
	idempotencyTTL time.Duration
	eventPublisher shared.EventPublisher
	metrics        WorkflowMetrics
	logger         *zap.Logger
}

// NewPeriodStateMachine creates a new PeriodStateMachine
func NewPeriodStateMachine(
	txScope TransactionScope,
	repos Repositories,
	reconciler *DeductionReconciler,
	binder *PaymentChannelBinder,
	gateway payroll.PaymentGateway,
	workflow *PayrollWorkflowContext,
	logger *zap.Logger,
) *PeriodStateMachine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PeriodStateMachine{
		txScope:        txScope,
		periodRepo:     repos.Periods,
		recordRepo:     repos.Records,
		employeeRepo:   repos.Employees,
		reconciler:     reconciler,
		binder:         binder,
		gateway:        gateway,
		workflow:       workflow,
		idempotencyTTL: shared.DefaultIdempotencyTTL,
		metrics:        noopMetrics{},
		logger:         logger,
	}
}

// SetEventPublisher sets the event publisher for record events
func (m *PeriodStateMachine) SetEventPublisher(publisher shared.EventPublisher) {
	m.eventPublisher = publisher
}

// SetMetrics sets the metrics sink
func (m *PeriodStateMachine) SetMetrics(metrics WorkflowMetrics) {
	if metrics != nil {
		m.metrics = metrics
	}
}

// SetIdempotencyStore enables duplicate detection of payment batches
func (m *PeriodStateMachine) SetIdempotencyStore(store shared.IdempotencyStore, ttl time.Duration) {
	m.idempotency = store
	if ttl > 0 {
		m.idempotencyTTL = ttl
	}
}

// Workflow returns the shared workflow context
func (m *PeriodStateMachine) Workflow() *PayrollWorkflowContext {
	return m.workflow
}

// ProcessPeriod computes one Processed record per active employee. Prior
// records of the period are superseded and their installments reversed in
// the same transaction. A period with a Paid record is never reprocessed.
func (m *PeriodStateMachine) ProcessPeriod(
	ctx context.Context,
	businessID uuid.UUID,
	month, year int,
	settings *payroll.Settings,
) ([]*payroll.PayrollRecord, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payroll_period", "process")
	defer span.End()

	records, err := m.processPeriod(ctx, businessID, month, year, settings)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttributes(span,
		telemetry.SpanAttrBusinessID, businessID.String(),
		telemetry.SpanAttrPeriod, fmt.Sprintf("%04d-%02d", year, month),
		telemetry.SpanAttrRecordCount, len(records),
	)
	return records, nil
}

func (m *PeriodStateMachine) processPeriod(
	ctx context.Context,
	businessID uuid.UUID,
	month, year int,
	settings *payroll.Settings,
) ([]*payroll.PayrollRecord, error) {
	if settings == nil {
		return nil, shared.NewValidationError("payroll settings are required")
	}
	key, err := payroll.NewPeriodKey(businessID, month, year)
	if err != nil {
		return nil, err
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	if err := m.ensureReprocessable(ctx, key); err != nil {
		return nil, err
	}

	employees, err := m.employeeRepo.FindActive(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("failed to load employees: %w", err)
	}
	if len(employees) == 0 {
		return nil, shared.NewValidationError("no active employees to process for " + key.String())
	}

	lines, err := m.reconciler.ResolveLines(ctx, key, settings, employees)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		result     *Reconciliation
		superseded []uuid.UUID
		reversed   int
	)
	now := time.Now()
	err = m.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		period, err := repos.PeriodRepo().GetOrCreate(ctx, key)
		if err != nil {
			return err
		}
		if err := period.MarkProcessed(settings.Snapshot()); err != nil {
			return err
		}
		// Conditional on locked = false: a payment that committed after the
		// client-side check turns this into PERIOD_ALREADY_PAID.
		if err := repos.PeriodRepo().CommitProcessing(ctx, period); err != nil {
			return err
		}

		superseded, err = repos.RecordRepo().SupersedeCurrent(ctx, key, now)
		if err != nil {
			return fmt.Errorf("failed to supersede records: %w", err)
		}
		reversed, err = m.reconciler.ReverseInstallments(ctx, repos, businessID, superseded, now)
		if err != nil {
			return err
		}

		result, err = m.reconciler.BuildRecords(ctx, repos, period, settings, lines)
		if err != nil {
			return err
		}
		if err := repos.RecordRepo().CreateBatch(ctx, result.Records); err != nil {
			return fmt.Errorf("failed to insert records: %w", err)
		}
		if len(result.Installments) > 0 {
			if err := repos.InstallmentRepo().CreateBatch(ctx, result.Installments); err != nil {
				return fmt.Errorf("failed to write installment ledger: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.workflow.Replace(key, false, result.Records)
	m.metrics.RecordProcessed(ctx, businessID, len(result.Records))

	m.logger.Info("payroll period processed",
		zap.String("business_id", businessID.String()),
		zap.String("period", key.String()),
		zap.Int("records", len(result.Records)),
		zap.Int("superseded", len(superseded)),
		zap.Int("installments_applied", len(result.Installments)),
		zap.Int("installments_reversed", reversed),
	)

	sources := make([]eventSource, 0, len(result.Records)+len(result.Deductions))
	for _, r := range result.Records {
		sources = append(sources, r)
	}
	for _, d := range result.Deductions {
		sources = append(sources, d)
	}
	publishEvents(ctx, m.eventPublisher, m.logger, sources...)

	return result.Records, nil
}

// ensureReprocessable is the client-side half of the paid-period guard.
func (m *PeriodStateMachine) ensureReprocessable(ctx context.Context, key payroll.PeriodKey) error {
	period, err := m.periodRepo.FindByKey(ctx, key)
	switch {
	case err == nil:
		if err := period.EnsureReprocessable(); err != nil {
			return err
		}
	case errors.Is(err, shared.ErrNotFound):
	default:
		return fmt.Errorf("failed to load period: %w", err)
	}

	paid, err := m.recordRepo.CountPaid(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to count paid records: %w", err)
	}
	if paid > 0 {
		return payroll.ErrPeriodAlreadyPaid(key)
	}
	return nil
}

// ApprovePeriod moves the given Processed records to Approved. Records in any
// other status, or of another period, are left untouched, so repeating a call
// is harmless. The current state of the requested records is returned.
func (m *PeriodStateMachine) ApprovePeriod(
	ctx context.Context,
	businessID uuid.UUID,
	recordIDs []uuid.UUID,
	month, year int,
) ([]*payroll.PayrollRecord, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payroll_period", "approve")
	defer span.End()

	approved, current, err := m.transitionBatch(ctx, businessID, recordIDs, month, year, "approval",
		func(r *payroll.PayrollRecord) bool { return r.Status.CanApprove() },
		(*payroll.PayrollRecord).Approve,
	)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	telemetry.SetAttributes(span,
		telemetry.SpanAttrBusinessID, businessID.String(),
		telemetry.SpanAttrRecordCount, len(approved),
	)
	m.metrics.RecordApproved(ctx, businessID, len(approved))
	m.logger.Info("payroll records approved",
		zap.String("business_id", businessID.String()),
		zap.Int("requested", len(recordIDs)),
		zap.Int("approved", len(approved)),
	)

	sources := make([]eventSource, len(approved))
	for i, r := range approved {
		sources[i] = r
	}
	publishEvents(ctx, m.eventPublisher, m.logger, sources...)
	return current, nil
}

// RequeueFailed puts Failed records back to Approved so a partially failed
// batch can be dispatched again after the cause is fixed.
func (m *PeriodStateMachine) RequeueFailed(
	ctx context.Context,
	businessID uuid.UUID,
	recordIDs []uuid.UUID,
	month, year int,
) ([]*payroll.PayrollRecord, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payroll_period", "requeue_failed")
	defer span.End()

	requeued, current, err := m.transitionBatch(ctx, businessID, recordIDs, month, year, "requeue",
		func(r *payroll.PayrollRecord) bool { return r.Status.CanRequeue() },
		(*payroll.PayrollRecord).Requeue,
	)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	m.logger.Info("failed payroll records requeued",
		zap.String("business_id", businessID.String()),
		zap.Int("requeued", len(requeued)),
	)
	return current, nil
}

// transitionBatch applies a status transition to every eligible record in
// one transaction. A record moved by a concurrent writer is skipped.
func (m *PeriodStateMachine) transitionBatch(
	ctx context.Context,
	businessID uuid.UUID,
	recordIDs []uuid.UUID,
	month, year int,
	action string,
	eligible func(*payroll.PayrollRecord) bool,
	transition func(*payroll.PayrollRecord) error,
) (changed, current []*payroll.PayrollRecord, err error) {
	if len(recordIDs) == 0 {
		return nil, nil, shared.NewValidationError("no records selected for " + action)
	}
	key, err := payroll.NewPeriodKey(businessID, month, year)
	if err != nil {
		return nil, nil, err
	}
	ids := uniqueIDs(recordIDs)

	err = m.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		records, err := repos.RecordRepo().FindByIDs(ctx, businessID, ids)
		if err != nil {
			return err
		}
		for _, r := range records {
			if !inPeriod(r, key) || !eligible(r) {
				continue
			}
			from := r.Status
			if err := transition(r); err != nil {
				return err
			}
			if err := repos.RecordRepo().SaveTransition(ctx, r, from); err != nil {
				if errors.Is(err, shared.ErrConcurrencyConflict) {
					m.logger.Debug("record changed concurrently, skipping",
						zap.String("record_id", r.ID.String()),
						zap.String("action", action),
					)
					continue
				}
				return err
			}
			changed = append(changed, r)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	current, err = m.recordRepo.FindByIDs(ctx, businessID, ids)
	if err != nil {
		return nil, nil, err
	}
	m.workflow.Apply(key, current...)
	return changed, current, nil
}

// ProcessPayments transfers net salaries for the given Approved records.
// Each record is settled in its own transaction before the next transfer
// starts. Per-record failures are reported in the PaymentReport; an error is
// returned only for invalid input, duplicate idempotency keys, or
// cancellation, in which case the partial report is returned alongside it.
func (m *PeriodStateMachine) ProcessPayments(
	ctx context.Context,
	businessID uuid.UUID,
	recordIDs []uuid.UUID,
	month, year int,
	idempotencyKey string,
) (report *payroll.PaymentReport, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payroll_payments", "process")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrBusinessID, businessID.String(),
		telemetry.SpanAttrPeriod, fmt.Sprintf("%04d-%02d", year, month),
		telemetry.SpanAttrRecordCount, len(recordIDs),
	)

	if len(recordIDs) == 0 {
		return nil, shared.NewValidationError("no records selected for payment")
	}
	key, err := payroll.NewPeriodKey(businessID, month, year)
	if err != nil {
		return nil, err
	}

	release, err := m.claimIdempotencyKey(ctx, businessID, idempotencyKey)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	defer func() {
		if err != nil {
			release()
		}
	}()

	ids := uniqueIDs(recordIDs)
	report = payroll.NewPaymentReport(len(ids))

	records, err := m.recordRepo.FindByIDs(ctx, businessID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}
	byID := make(map[uuid.UUID]*payroll.PayrollRecord, len(records))
	var employeeIDs []uuid.UUID
	for _, r := range records {
		byID[r.ID] = r
		if r.Status.CanPay() {
			employeeIDs = append(employeeIDs, r.EmployeeID)
		}
	}
	destinations, err := m.binder.ResolveMany(ctx, businessID, employeeIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve payment channels: %w", err)
	}
	period, err := m.periodRepo.GetOrCreate(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load period: %w", err)
	}

	for _, id := range ids {
		if ctxErr := ctx.Err(); ctxErr != nil {
			telemetry.RecordError(span, ctxErr)
			return report, ctxErr
		}

		r, ok := byID[id]
		if !ok || !inPeriod(r, key) {
			report.Add(payroll.RecordOutcome{RecordID: id, Reason: payroll.ReasonNotFound})
			continue
		}
		if !r.Status.CanPay() {
			report.Add(payroll.RecordOutcome{RecordID: id, Status: r.Status, Reason: payroll.ReasonNotApproved})
			continue
		}
		if !r.NetSalary.IsPositive() {
			report.Add(m.failRecord(ctx, r, payroll.ReasonNonPositiveNetPay, false))
			continue
		}

		dest, ok := destinations[r.EmployeeID]
		if !ok {
			report.Add(m.failRecord(ctx, r, payroll.ReasonNoPaymentChannel, false))
			continue
		}

		report.Add(m.payRecord(ctx, period, r, dest))
		if ctxErr := ctx.Err(); ctxErr != nil {
			telemetry.RecordError(span, ctxErr)
			return report, ctxErr
		}
	}

	telemetry.SetAttribute(span, "processed_count", report.ProcessedCount)
	m.logger.Info("payroll payments processed",
		zap.String("business_id", businessID.String()),
		zap.String("period", key.String()),
		zap.Int("requested", len(ids)),
		zap.Int("paid", report.ProcessedCount),
	)
	return report, nil
}

// payRecord transfers one record and commits the resulting transition.
// A gateway answer is always committed, even when ctx is cancelled meanwhile.
func (m *PeriodStateMachine) payRecord(
	ctx context.Context,
	period *payroll.PayrollPeriod,
	r *payroll.PayrollRecord,
	dest payroll.PaymentDestination,
) payroll.RecordOutcome {
	start := time.Now()
	result, err := m.gateway.Transfer(ctx, payroll.TransferRequest{
		BusinessID:  r.TenantID,
		Reference:   r.ID.String(),
		EmployeeID:  r.EmployeeID,
		Amount:      r.NetSalary,
		Currency:    r.Currency,
		Destination: dest,
		Narration:   fmt.Sprintf("Salary %04d-%02d", r.Year, r.Month),
	})
	m.metrics.RecordRemoteCall(ctx, payroll.CollaboratorPaymentGateway, time.Since(start), err)
	if err != nil {
		remote := asRemoteError(payroll.CollaboratorPaymentGateway, err)
		m.logger.Warn("payment transfer failed, record left approved",
			zap.String("record_id", r.ID.String()),
			zap.Error(err),
		)
		m.metrics.RecordPaymentOutcome(ctx, r.TenantID, r.Status.String(), "RemoteError")
		return payroll.RecordOutcome{
			RecordID:  r.ID,
			Status:    r.Status,
			Reason:    remoteReasonPrefix + remote.Error(),
			Attempted: true,
		}
	}

	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()

	if !result.Accepted {
		reason := result.Reason
		if reason == "" {
			reason = "Declined"
		}
		return m.failRecord(settleCtx, r, reason, true)
	}

	reference := result.ExternalID
	if reference == "" {
		reference = r.ID.String()
	}
	from := r.Status
	err = m.txScope.Execute(settleCtx, func(repos TransactionalRepositories) error {
		if err := r.MarkPaid(reference); err != nil {
			return err
		}
		if err := repos.RecordRepo().SaveTransition(settleCtx, r, from); err != nil {
			return err
		}
		return repos.PeriodRepo().Lock(settleCtx, period.ID, time.Now())
	})
	if err != nil {
		// The money moved but the record could not be settled; the gateway
		// deduplicates on the record id if it is dispatched again.
		m.logger.Error("transfer accepted but record not settled",
			zap.String("record_id", r.ID.String()),
			zap.String("reference", reference),
			zap.Error(err),
		)
		return payroll.RecordOutcome{
			RecordID:  r.ID,
			Status:    from,
			Reason:    err.Error(),
			Attempted: true,
			Reference: reference,
		}
	}

	key := r.Key()
	m.workflow.Apply(key, r)
	m.workflow.MarkLocked(key)
	m.metrics.RecordPaymentOutcome(settleCtx, r.TenantID, r.Status.String(), "")
	m.metrics.RecordNetPaid(settleCtx, r.TenantID, r.NetSalary)
	publishEvents(settleCtx, m.eventPublisher, m.logger, r)

	return payroll.RecordOutcome{
		RecordID:  r.ID,
		Status:    r.Status,
		Attempted: true,
		Reference: reference,
	}
}

// failRecord commits Approved -> Failed with the given reason.
func (m *PeriodStateMachine) failRecord(ctx context.Context, r *payroll.PayrollRecord, reason string, attempted bool) payroll.RecordOutcome {
	from := r.Status
	err := m.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		if err := r.MarkFailed(reason); err != nil {
			return err
		}
		return repos.RecordRepo().SaveTransition(ctx, r, from)
	})
	if err != nil {
		m.logger.Warn("failed to record payment failure",
			zap.String("record_id", r.ID.String()),
			zap.String("reason", reason),
			zap.Error(err),
		)
		return payroll.RecordOutcome{RecordID: r.ID, Status: from, Reason: err.Error(), Attempted: attempted}
	}

	m.workflow.Apply(r.Key(), r)
	m.metrics.RecordPaymentOutcome(ctx, r.TenantID, r.Status.String(), reason)
	publishEvents(ctx, m.eventPublisher, m.logger, r)
	return payroll.RecordOutcome{RecordID: r.ID, Status: r.Status, Reason: reason, Attempted: attempted}
}

// claimIdempotencyKey marks the key as used and returns a func that frees it.
func (m *PeriodStateMachine) claimIdempotencyKey(ctx context.Context, businessID uuid.UUID, key string) (func(), error) {
	noop := func() {}
	if key == "" || m.idempotency == nil {
		return noop, nil
	}
	scoped := fmt.Sprintf("payroll:payments:%s:%s", businessID, key)
	fresh, err := m.idempotency.MarkProcessed(ctx, scoped, m.idempotencyTTL)
	if err != nil {
		return noop, fmt.Errorf("failed to check idempotency key: %w", err)
	}
	if !fresh {
		return noop, shared.ErrDuplicateRequest.WithDetails(key)
	}
	return func() {
		if err := m.idempotency.Release(context.WithoutCancel(ctx), scoped); err != nil {
			m.logger.Warn("failed to release idempotency key", zap.String("key", scoped), zap.Error(err))
		}
	}, nil
}

// GetHistory returns the current records of a period
func (m *PeriodStateMachine) GetHistory(ctx context.Context, businessID uuid.UUID, month, year int) ([]*payroll.PayrollRecord, error) {
	key, err := payroll.NewPeriodKey(businessID, month, year)
	if err != nil {
		return nil, err
	}
	snapshot, err := m.workflow.Refresh(ctx, key)
	if err != nil {
		return nil, err
	}
	return snapshot.Records, nil
}

// ListRecords lists records of a period with filters, optionally including superseded runs
func (m *PeriodStateMachine) ListRecords(
	ctx context.Context,
	businessID uuid.UUID,
	month, year int,
	filter payroll.RecordFilter,
) ([]*payroll.PayrollRecord, int64, error) {
	key, err := payroll.NewPeriodKey(businessID, month, year)
	if err != nil {
		return nil, 0, err
	}
	return m.recordRepo.FindHistory(ctx, key, filter)
}

// GetPeriod returns the period summary with its derived status and totals
func (m *PeriodStateMachine) GetPeriod(ctx context.Context, businessID uuid.UUID, month, year int) (*payroll.PeriodSummary, error) {
	key, err := payroll.NewPeriodKey(businessID, month, year)
	if err != nil {
		return nil, err
	}
	snapshot, err := m.workflow.Refresh(ctx, key)
	if err != nil {
		return nil, err
	}
	return payroll.NewPeriodSummary(key, snapshot.Locked, snapshot.Records), nil
}

// GetRecord returns a single record
func (m *PeriodStateMachine) GetRecord(ctx context.Context, businessID, recordID uuid.UUID) (*payroll.PayrollRecord, error) {
	return m.recordRepo.FindByID(ctx, businessID, recordID)
}

func inPeriod(r *payroll.PayrollRecord, key payroll.PeriodKey) bool {
	return r.IsCurrent() && r.Month == key.Month && r.Year == key.Year && r.TenantID == key.BusinessID
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
