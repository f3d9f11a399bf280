package payroll_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	apppayroll "github.com/hrpay/backend/internal/application/payroll"
	"github.com/hrpay/backend/internal/domain/payroll"
	"github.com/hrpay/backend/internal/domain/shared"
	"github.com/hrpay/backend/internal/infrastructure/cache"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessPeriod_OneRecordPerActiveEmployee(t *testing.T) {
	h := newHarness(t)
	alice := h.hire("Alice Njeri", 100000)
	bob := h.hire("Bob Otieno", 40000)
	carol := h.hire("Carol Wambui", 60000)
	_, err := h.employees.SetActive(h.ctx, h.businessID, carol.ID, false)
	require.NoError(t, err)

	records := h.process(4, 2024)
	require.Len(t, records, 2)

	got := byEmployee(records)
	require.Contains(t, got, alice.ID)
	require.Contains(t, got, bob.ID)
	assert.NotContains(t, got, carol.ID)

	a := got[alice.ID]
	assert.Equal(t, payroll.RecordStatusProcessed, a.Status)
	assert.Equal(t, "KES", a.Currency)
	// house 5000 fixed plus commuter 5% of basic; airtime is disabled
	require.Len(t, a.Allowances, 2)
	assert.True(t, a.GrossSalary.Equal(decimal.NewFromInt(110000)), a.GrossSalary.String())
	assert.NoError(t, a.CheckTotals())
	assert.True(t, a.NetSalary.Equal(a.GrossSalary.Sub(a.TotalDeductions())))
	for _, line := range a.Deductions {
		assert.True(t, line.IsStatutory(), "unexpected custom line %s", line.Name)
	}

	assert.Len(t, h.events.ofType(payroll.EventTypePayrollRecordProcessed), 2)
}

func TestProcessPeriod_Validation(t *testing.T) {
	h := newHarness(t)

	_, err := h.machine.ProcessPeriod(h.ctx, h.businessID, 4, 2024, defaultSettings())
	assert.True(t, payroll.IsValidation(err), "no employees: %v", err)

	h.hire("Alice Njeri", 50000)

	_, err = h.machine.ProcessPeriod(h.ctx, h.businessID, 13, 2024, defaultSettings())
	assert.True(t, payroll.IsValidation(err), "bad month: %v", err)

	_, err = h.machine.ProcessPeriod(h.ctx, h.businessID, 4, 2024, nil)
	assert.True(t, payroll.IsValidation(err), "nil settings: %v", err)

	bad := defaultSettings()
	bad.Allowances = append(bad.Allowances, bad.Allowances[0])
	_, err = h.machine.ProcessPeriod(h.ctx, h.businessID, 4, 2024, bad)
	assert.True(t, payroll.IsValidation(err), "duplicate allowance: %v", err)
}

func TestProcessPeriod_ReprocessSupersedes(t *testing.T) {
	h := newHarness(t)
	h.hire("Alice Njeri", 80000)
	h.hire("Bob Otieno", 45000)

	first := h.process(5, 2024)
	h.approveAll(5, 2024, first[:1])
	second := h.process(5, 2024)
	require.Len(t, second, 2)

	history, err := h.machine.GetHistory(h.ctx, h.businessID, 5, 2024)
	require.NoError(t, err)
	assert.ElementsMatch(t, ids(second), ids(history))
	for _, r := range history {
		assert.Equal(t, payroll.RecordStatusProcessed, r.Status)
	}

	all, total, err := h.machine.ListRecords(h.ctx, h.businessID, 5, 2024, payroll.RecordFilter{
		Filter:            shared.Filter{Page: 1, PageSize: 50},
		IncludeSuperseded: true,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 4, total)
	assert.Len(t, all, 4)

	old := h.record(first[0].ID)
	assert.False(t, old.IsCurrent())
}

func TestProcessPeriod_PaidPeriodIsNeverReprocessed(t *testing.T) {
	h := newHarness(t)
	alice := h.hire("Alice Njeri", 80000)
	h.withBank(alice)
	bob := h.hire("Bob Otieno", 45000)

	records := h.approveAll(6, 2024, h.process(6, 2024))
	paid := byEmployee(records)[alice.ID]

	report, err := h.machine.ProcessPayments(h.ctx, h.businessID, []uuid.UUID{paid.ID}, 6, 2024, "")
	require.NoError(t, err)
	require.Equal(t, 1, report.ProcessedCount)

	_, err = h.machine.ProcessPeriod(h.ctx, h.businessID, 6, 2024, defaultSettings())
	require.Error(t, err)
	assert.True(t, payroll.IsGuardViolation(err))
	assert.Equal(t, payroll.RulePeriodAlreadyPaid, domainError(t, err).Rule)

	// the guard wins over the empty roster check
	for _, e := range []uuid.UUID{alice.ID, bob.ID} {
		_, err = h.employees.SetActive(h.ctx, h.businessID, e, false)
		require.NoError(t, err)
	}
	_, err = h.machine.ProcessPeriod(h.ctx, h.businessID, 6, 2024, defaultSettings())
	assert.True(t, payroll.IsGuardViolation(err), "all staff inactive: %v", err)

	summary, err := h.machine.GetPeriod(h.ctx, h.businessID, 6, 2024)
	require.NoError(t, err)
	assert.True(t, summary.Locked)

	// nothing was superseded by the rejected run
	history, err := h.machine.GetHistory(h.ctx, h.businessID, 6, 2024)
	require.NoError(t, err)
	assert.ElementsMatch(t, ids(records), ids(history))
}

func TestApprovePeriod(t *testing.T) {
	h := newHarness(t)
	h.hire("Alice Njeri", 80000)
	h.hire("Bob Otieno", 45000)
	records := h.process(7, 2024)

	t.Run("empty selection is a validation error", func(t *testing.T) {
		_, err := h.machine.ApprovePeriod(h.ctx, h.businessID, nil, 7, 2024)
		assert.True(t, payroll.IsValidation(err))
	})

	t.Run("approves only processed records of the period", func(t *testing.T) {
		stranger := uuid.New()
		got, err := h.machine.ApprovePeriod(h.ctx, h.businessID, append(ids(records[:1]), stranger), 7, 2024)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, payroll.RecordStatusApproved, got[0].Status)
		assert.NotNil(t, got[0].ApprovedAt)
		assert.Equal(t, payroll.RecordStatusProcessed, h.record(records[1].ID).Status)
	})

	t.Run("repeating approval changes nothing", func(t *testing.T) {
		before := h.record(records[0].ID)
		got, err := h.machine.ApprovePeriod(h.ctx, h.businessID, ids(records[:1]), 7, 2024)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, before.Version, got[0].Version)
		assert.Len(t, h.events.ofType(payroll.EventTypePayrollRecordApproved), 1)
	})

	t.Run("records of another period are ignored", func(t *testing.T) {
		got, err := h.machine.ApprovePeriod(h.ctx, h.businessID, ids(records[1:]), 8, 2024)
		require.NoError(t, err)
		for _, r := range got {
			assert.Equal(t, payroll.RecordStatusProcessed, r.Status)
		}
	})
}

func TestProcessPayments_MixedChannels(t *testing.T) {
	h := newHarness(t)
	alice := h.hire("Alice Njeri", 90000)
	bob := h.hire("Bob Otieno", 50000)
	carol := h.hire("Carol Wambui", 30000)
	h.withBank(alice)
	h.withWallet(bob)

	records := h.approveAll(3, 2025, h.process(3, 2025))
	require.Len(t, records, 3)
	rec := byEmployee(records)

	report, err := h.machine.ProcessPayments(h.ctx, h.businessID, ids(records), 3, 2025, "")
	require.NoError(t, err)
	assert.Equal(t, 2, report.ProcessedCount)
	assert.True(t, report.HasFailures())
	assert.Equal(t, []uuid.UUID{rec[carol.ID].ID}, report.FailedIDs())

	a := outcomeOf(report, rec[alice.ID].ID)
	assert.Equal(t, payroll.RecordStatusPaid, a.Status)
	assert.True(t, a.Attempted)
	assert.NotEmpty(t, a.Reference)

	c := outcomeOf(report, rec[carol.ID].ID)
	assert.Equal(t, payroll.RecordStatusFailed, c.Status)
	assert.Equal(t, payroll.ReasonNoPaymentChannel, c.Reason)
	assert.False(t, c.Attempted)

	assert.Equal(t, 2, h.gateway.transfers())
	for _, call := range h.gateway.calls {
		switch call.EmployeeID {
		case alice.ID:
			assert.Equal(t, payroll.ChannelKindBank, call.Destination.Kind)
		case bob.ID:
			assert.Equal(t, payroll.ChannelKindWallet, call.Destination.Kind)
			assert.Equal(t, "+254712345678", call.Destination.PhoneNumber)
		}
		assert.True(t, call.Amount.IsPositive())
	}

	stored := h.record(rec[bob.ID].ID)
	assert.Equal(t, payroll.RecordStatusPaid, stored.Status)
	assert.NotNil(t, stored.PaidAt)
	assert.Equal(t, payroll.ReasonNoPaymentChannel, h.record(rec[carol.ID].ID).FailureReason)

	summary, err := h.machine.GetPeriod(h.ctx, h.businessID, 3, 2025)
	require.NoError(t, err)
	assert.True(t, summary.Locked)
	assert.Len(t, h.events.ofType(payroll.EventTypePayrollRecordPaid), 2)
	assert.Len(t, h.events.ofType(payroll.EventTypePayrollRecordFailed), 1)
}

func TestProcessPayments_OnlyApprovedRecordsArePaid(t *testing.T) {
	h := newHarness(t)
	alice := h.hire("Alice Njeri", 90000)
	h.withBank(alice)
	records := h.process(3, 2025)
	stranger := uuid.New()

	report, err := h.machine.ProcessPayments(h.ctx, h.businessID, []uuid.UUID{records[0].ID, stranger}, 3, 2025, "")
	require.NoError(t, err)
	assert.Zero(t, report.ProcessedCount)
	assert.Equal(t, payroll.ReasonNotApproved, outcomeOf(report, records[0].ID).Reason)
	assert.Equal(t, payroll.ReasonNotFound, outcomeOf(report, stranger).Reason)
	assert.Zero(t, h.gateway.transfers())

	_, err = h.machine.ProcessPayments(h.ctx, h.businessID, nil, 3, 2025, "")
	assert.True(t, payroll.IsValidation(err))
}

func TestProcessPayments_DeclineThenRequeue(t *testing.T) {
	h := newHarness(t)
	alice := h.hire("Alice Njeri", 90000)
	h.withBank(alice)
	records := h.approveAll(9, 2024, h.process(9, 2024))
	h.gateway.declined[alice.ID] = "AccountClosed"

	report, err := h.machine.ProcessPayments(h.ctx, h.businessID, ids(records), 9, 2024, "")
	require.NoError(t, err)
	o := outcomeOf(report, records[0].ID)
	assert.Equal(t, payroll.RecordStatusFailed, o.Status)
	assert.Equal(t, "AccountClosed", o.Reason)
	assert.True(t, o.Attempted)

	requeued, err := h.machine.RequeueFailed(h.ctx, h.businessID, ids(records), 9, 2024)
	require.NoError(t, err)
	require.Len(t, requeued, 1)
	assert.Equal(t, payroll.RecordStatusApproved, requeued[0].Status)
	assert.Empty(t, requeued[0].FailureReason)

	h.gateway.heal(alice.ID)
	report, err = h.machine.ProcessPayments(h.ctx, h.businessID, ids(records), 9, 2024, "")
	require.NoError(t, err)
	assert.Equal(t, 1, report.ProcessedCount)
}

func TestProcessPayments_TransportErrorLeavesRecordApproved(t *testing.T) {
	h := newHarness(t)
	alice := h.hire("Alice Njeri", 90000)
	h.withBank(alice)
	records := h.approveAll(10, 2024, h.process(10, 2024))
	h.gateway.broken[alice.ID] = payroll.ErrGatewayUnavailable

	report, err := h.machine.ProcessPayments(h.ctx, h.businessID, ids(records), 10, 2024, "")
	require.NoError(t, err)
	o := outcomeOf(report, records[0].ID)
	assert.Equal(t, payroll.RecordStatusApproved, o.Status)
	assert.True(t, strings.HasPrefix(o.Reason, "RemoteError: "), o.Reason)
	assert.Equal(t, payroll.RecordStatusApproved, h.record(records[0].ID).Status)

	summary, err := h.machine.GetPeriod(h.ctx, h.businessID, 10, 2024)
	require.NoError(t, err)
	assert.False(t, summary.Locked)
}

func TestProcessPayments_IdempotencyKey(t *testing.T) {
	h := newHarness(t)
	store := cache.NewInMemoryIdempotencyStore()
	t.Cleanup(func() { _ = store.Close() })
	h.machine.SetIdempotencyStore(store, time.Hour)

	alice := h.hire("Alice Njeri", 90000)
	h.withBank(alice)
	records := h.approveAll(11, 2024, h.process(11, 2024))

	_, err := h.machine.ProcessPayments(h.ctx, h.businessID, ids(records), 11, 2024, "batch-1")
	require.NoError(t, err)

	_, err = h.machine.ProcessPayments(h.ctx, h.businessID, ids(records), 11, 2024, "batch-1")
	assert.True(t, errors.Is(err, shared.ErrDuplicateRequest))
	assert.Equal(t, 1, h.gateway.transfers())

	t.Run("key is released when the batch errors", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(h.ctx)
		cancel()
		_, err := h.machine.ProcessPayments(cancelled, h.businessID, ids(records), 11, 2024, "batch-2")
		require.Error(t, err)

		_, err = h.machine.ProcessPayments(h.ctx, h.businessID, ids(records), 11, 2024, "batch-2")
		assert.NoError(t, err)
	})
}

func TestProcessPayments_CancelledContext(t *testing.T) {
	h := newHarness(t)
	alice := h.hire("Alice Njeri", 90000)
	h.withBank(alice)
	records := h.approveAll(12, 2024, h.process(12, 2024))

	ctx, cancel := context.WithCancel(h.ctx)
	cancel()
	report, err := h.machine.ProcessPayments(ctx, h.businessID, ids(records), 12, 2024, "")
	assert.ErrorIs(t, err, context.Canceled)
	if report != nil {
		assert.Zero(t, report.ProcessedCount)
	}
	assert.Equal(t, payroll.RecordStatusApproved, h.record(records[0].ID).Status)
}

func TestProcessPayments_NonPositiveNetIsNeverTransferred(t *testing.T) {
	h := newHarness(t)
	alice := h.hire("Alice Njeri", 5000)
	bob := h.hire("Bob Otieno", 50000)
	h.withBank(alice)
	h.withBank(bob)
	h.addLoan(alice, 20000, 20000, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	records := h.approveAll(3, 2024, h.process(3, 2024))
	rec := byEmployee(records)
	require.False(t, rec[alice.ID].NetSalary.IsPositive(), "installment exceeds gross pay")

	report, err := h.machine.ProcessPayments(h.ctx, h.businessID, ids(records), 3, 2024, "")
	require.NoError(t, err)
	assert.Equal(t, 1, report.ProcessedCount)

	out := outcomeOf(report, rec[alice.ID].ID)
	assert.Equal(t, payroll.RecordStatusFailed, out.Status)
	assert.Equal(t, payroll.ReasonNonPositiveNetPay, out.Reason)
	assert.False(t, out.Attempted)

	require.Len(t, h.gateway.amounts(), 1)
	assert.True(t, h.gateway.amounts()[0].Equal(rec[bob.ID].NetSalary))
	assert.Equal(t, payroll.RecordStatusFailed, h.record(rec[alice.ID].ID).Status)
}

func TestProcessPayments_CancelAfterAcceptStillSettles(t *testing.T) {
	h := newHarness(t)
	alice := h.hire("Alice Njeri", 90000)
	bob := h.hire("Bob Otieno", 50000)
	h.withBank(alice)
	h.withBank(bob)
	records := h.approveAll(6, 2024, h.process(6, 2024))
	rec := byEmployee(records)

	ctx, cancel := context.WithCancel(h.ctx)
	defer cancel()
	h.gateway.afterAccept = func(payroll.TransferRequest) { cancel() }

	report, err := h.machine.ProcessPayments(ctx, h.businessID,
		[]uuid.UUID{rec[alice.ID].ID, rec[bob.ID].ID}, 6, 2024, "")
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Equal(t, 1, report.ProcessedCount)
	assert.Equal(t, 1, h.gateway.transfers(), "no transfer starts after cancellation")

	paid := outcomeOf(report, rec[alice.ID].ID)
	assert.Equal(t, payroll.RecordStatusPaid, paid.Status)
	assert.Empty(t, paid.Reason)
	assert.Equal(t, payroll.RecordStatusPaid, h.record(rec[alice.ID].ID).Status)
	assert.Equal(t, payroll.RecordStatusApproved, h.record(rec[bob.ID].ID).Status)

	summary, err := h.machine.GetPeriod(h.ctx, h.businessID, 6, 2024)
	require.NoError(t, err)
	assert.True(t, summary.Locked)

	_, err = h.machine.ProcessPeriod(h.ctx, h.businessID, 6, 2024, defaultSettings())
	assert.True(t, payroll.IsGuardViolation(err))
}

func TestProcessPayments_CancelAfterDeclineStillFails(t *testing.T) {
	h := newHarness(t)
	alice := h.hire("Alice Njeri", 90000)
	h.withBank(alice)
	records := h.approveAll(7, 2024, h.process(7, 2024))

	ctx, cancel := context.WithCancel(h.ctx)
	defer cancel()
	h.gateway.declined[alice.ID] = "AccountClosed"
	h.gateway.afterDecline = func(payroll.TransferRequest) { cancel() }

	report, err := h.machine.ProcessPayments(ctx, h.businessID, ids(records), 7, 2024, "")
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Equal(t, "AccountClosed", outcomeOf(report, records[0].ID).Reason)

	failed := h.record(records[0].ID)
	assert.Equal(t, payroll.RecordStatusFailed, failed.Status)
	assert.Equal(t, "AccountClosed", failed.FailureReason)
}

func TestWorkflowContext_TTL(t *testing.T) {
	h := newHarness(t)
	h.hire("Alice Njeri", 90000)
	records := h.process(2, 2025)
	key, err := payroll.NewPeriodKey(h.businessID, 2, 2025)
	require.NoError(t, err)
	workflow := h.machine.Workflow()

	// another instance approves behind this one's back
	r := h.record(records[0].ID)
	require.NoError(t, r.Approve())
	require.NoError(t, h.repos.Records.SaveTransition(h.ctx, r, payroll.RecordStatusProcessed))

	snap, err := workflow.Snapshot(h.ctx, key)
	require.NoError(t, err)
	assert.Equal(t, payroll.RecordStatusProcessed, snap.Records[0].Status, "cached view is trusted without a TTL")

	workflow.SetTTL(time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	snap, err = workflow.Snapshot(h.ctx, key)
	require.NoError(t, err)
	assert.Equal(t, payroll.RecordStatusApproved, snap.Records[0].Status)
	assert.Equal(t, payroll.PeriodStatusApproved, snap.Status())
}

func TestBatchStage(t *testing.T) {
	stage, err := apppayroll.ParseBatchStage(" Payments ")
	require.NoError(t, err)
	assert.Equal(t, apppayroll.BatchStagePayments, stage)
	assert.Equal(t, payroll.RecordStatusApproved, stage.EligibleStatus())
	assert.Equal(t, payroll.RecordStatusProcessed, apppayroll.BatchStageReview.EligibleStatus())

	_, err = apppayroll.ParseBatchStage("archive")
	assert.True(t, payroll.IsValidation(err))
}
