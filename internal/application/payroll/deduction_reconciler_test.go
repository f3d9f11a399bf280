package payroll_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	apppayroll "github.com/hrpay/backend/internal/application/payroll"
	"github.com/hrpay/backend/internal/domain/payroll"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (h *harness) addLoan(e *payroll.Employee, amount, monthly int64, start time.Time) *payroll.CustomDeduction {
	h.t.Helper()
	d, err := h.reconciler.AddCustomDeduction(h.ctx, h.businessID, apppayroll.AddCustomDeductionRequest{
		EmployeeID:    e.ID,
		Description:   "Salary advance",
		Type:          string(payroll.CustomTypeLoan),
		Amount:        decimal.NewFromInt(amount),
		MonthlyAmount: decimal.NewFromInt(monthly),
		StartDate:     start,
	})
	require.NoError(h.t, err)
	return d
}

func customTotal(r *payroll.PayrollRecord) decimal.Decimal {
	return payroll.SumDeductions(r.CustomDeductions())
}

func TestDeductionReconciler_AmortizesOverTwelveMonths(t *testing.T) {
	h := newHarness(t)
	alice := h.hire("Alice Njeri", 120000)
	loan := h.addLoan(alice, 12000, 1000, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))

	for month := 1; month <= 12; month++ {
		records := h.process(month, 2024)
		require.Len(t, records, 1)
		assert.True(t, customTotal(records[0]).Equal(decimal.NewFromInt(1000)), "month %d", month)
		require.NoError(t, records[0].CheckTotals())
	}

	d, installments, err := h.reconciler.Ledger(h.ctx, h.businessID, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, payroll.DeductionStatusCompleted, d.Status)
	assert.True(t, d.RemainingAmount.IsZero())
	assert.NotNil(t, d.CompletedAt)
	assert.Len(t, installments, 12)
	assert.True(t, payroll.SumApplied(installments).Equal(decimal.NewFromInt(12000)))

	next := h.process(1, 2025)
	assert.Empty(t, next[0].CustomDeductions())
	assert.Len(t, h.events.ofType(payroll.EventTypeCustomDeductionCompleted), 1)
}

func TestDeductionReconciler_LastInstallmentIsTheRemainder(t *testing.T) {
	h := newHarness(t)
	alice := h.hire("Alice Njeri", 120000)
	h.addLoan(alice, 2500, 1000, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	var charged []string
	for month := 1; month <= 4; month++ {
		records := h.process(month, 2024)
		charged = append(charged, customTotal(records[0]).StringFixed(2))
	}
	assert.Equal(t, []string{"1000.00", "1000.00", "500.00", "0.00"}, charged)
}

func TestDeductionReconciler_ReprocessingDoesNotChargeTwice(t *testing.T) {
	h := newHarness(t)
	alice := h.hire("Alice Njeri", 120000)
	loan := h.addLoan(alice, 3000, 1000, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	h.process(1, 2024)
	h.process(1, 2024)
	records := h.process(1, 2024)
	assert.True(t, customTotal(records[0]).Equal(decimal.NewFromInt(1000)))

	d, installments, err := h.reconciler.Ledger(h.ctx, h.businessID, loan.ID)
	require.NoError(t, err)
	assert.True(t, d.RemainingAmount.Equal(decimal.NewFromInt(2000)), d.RemainingAmount.String())
	assert.Len(t, installments, 3)

	var open int
	for _, inst := range installments {
		if !inst.IsReversed() {
			open++
			assert.Equal(t, records[0].ID, inst.RecordID)
		}
	}
	assert.Equal(t, 1, open)
}

func TestDeductionReconciler_ReversalReactivatesCompletedDeduction(t *testing.T) {
	h := newHarness(t)
	alice := h.hire("Alice Njeri", 120000)
	loan := h.addLoan(alice, 1000, 1000, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))

	h.process(3, 2024)
	d, _, err := h.reconciler.Ledger(h.ctx, h.businessID, loan.ID)
	require.NoError(t, err)
	require.Equal(t, payroll.DeductionStatusCompleted, d.Status)

	records := h.process(3, 2024)
	assert.True(t, customTotal(records[0]).Equal(decimal.NewFromInt(1000)))
	d, _, err = h.reconciler.Ledger(h.ctx, h.businessID, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, payroll.DeductionStatusCompleted, d.Status)
	assert.True(t, d.RemainingAmount.IsZero())
}

func TestDeductionReconciler_WindowAndStatus(t *testing.T) {
	h := newHarness(t)
	alice := h.hire("Alice Njeri", 120000)
	end := time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC)
	d, err := h.reconciler.AddCustomDeduction(h.ctx, h.businessID, apppayroll.AddCustomDeductionRequest{
		EmployeeID:    alice.ID,
		Description:   "Welfare",
		Type:          string(payroll.CustomTypeOther),
		Amount:        decimal.NewFromInt(10000),
		MonthlyAmount: decimal.NewFromInt(500),
		StartDate:     time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		EndDate:       &end,
	})
	require.NoError(t, err)

	assert.Empty(t, h.process(3, 2024)[0].CustomDeductions(), "before the window")
	assert.Len(t, h.process(4, 2024)[0].CustomDeductions(), 1)

	cancelled, err := h.reconciler.UpdateDeductionStatus(h.ctx, h.businessID, d.ID, "CANCELLED")
	require.NoError(t, err)
	assert.Equal(t, payroll.DeductionStatusCancelled, cancelled.Status)
	assert.Empty(t, h.process(5, 2024)[0].CustomDeductions(), "cancelled")

	_, err = h.reconciler.UpdateDeductionStatus(h.ctx, h.businessID, d.ID, "active")
	require.NoError(t, err)
	assert.Len(t, h.process(5, 2024)[0].CustomDeductions(), 1)
	assert.Empty(t, h.process(6, 2024)[0].CustomDeductions(), "after the window")

	_, err = h.reconciler.UpdateDeductionStatus(h.ctx, h.businessID, d.ID, "completed")
	assert.True(t, payroll.IsGuardViolation(err), "remaining amount is not zero")

	_, err = h.reconciler.UpdateDeductionStatus(h.ctx, h.businessID, d.ID, "paused")
	assert.True(t, payroll.IsValidation(err))

	list, err := h.reconciler.ListCustomDeductions(h.ctx, h.businessID, alice.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestDeductionReconciler_AddValidation(t *testing.T) {
	h := newHarness(t)
	alice := h.hire("Alice Njeri", 120000)

	_, err := h.reconciler.AddCustomDeduction(h.ctx, h.businessID, apppayroll.AddCustomDeductionRequest{
		EmployeeID:    alice.ID,
		Description:   "Advance",
		Type:          string(payroll.CustomTypeLoan),
		Amount:        decimal.NewFromInt(100),
		MonthlyAmount: decimal.NewFromInt(500),
		StartDate:     time.Now(),
	})
	assert.True(t, payroll.IsValidation(err), "monthly above amount")

	_, err = h.reconciler.AddCustomDeduction(h.ctx, h.businessID, apppayroll.AddCustomDeductionRequest{
		EmployeeID:    uuid.New(),
		Description:   "Advance",
		Type:          string(payroll.CustomTypeLoan),
		Amount:        decimal.NewFromInt(1000),
		MonthlyAmount: decimal.NewFromInt(500),
		StartDate:     time.Now(),
	})
	assert.Error(t, err, "unknown employee")
}

// countingCalculator fails for one employee and counts calls
type countingCalculator struct {
	calls   atomic.Int32
	failFor uuid.UUID
}

func (c *countingCalculator) Calculate(_ context.Context, req payroll.TaxRequest) (*payroll.TaxResult, error) {
	c.calls.Add(1)
	if req.EmployeeID == c.failFor {
		return nil, errors.New("connection reset by peer")
	}
	return &payroll.TaxResult{Amounts: map[payroll.StatutoryKind]decimal.Decimal{
		payroll.StatutoryPAYE: decimal.NewFromInt(100),
	}}, nil
}

func TestDeductionReconciler_TaxEngineFailureAbortsRun(t *testing.T) {
	h := newHarness(t)
	alice := h.hire("Alice Njeri", 120000)
	h.hire("Bob Otieno", 60000)

	calc := &countingCalculator{failFor: alice.ID}
	txScope := apppayroll.NewNoOpTransactionScope(h.repos)
	reconciler := apppayroll.NewDeductionReconciler(txScope, h.repos, calc, nil)
	reconciler.SetTaxConcurrency(2)

	key, err := payroll.NewPeriodKey(h.businessID, 8, 2024)
	require.NoError(t, err)
	employees, err := h.repos.Employees.FindActive(h.ctx, h.businessID)
	require.NoError(t, err)

	_, err = reconciler.ResolveLines(h.ctx, key, defaultSettings(), employees)
	require.Error(t, err)
	assert.True(t, payroll.IsRemote(err))
	assert.GreaterOrEqual(t, calc.calls.Load(), int32(1))

	t.Run("no tax kinds means no engine calls", func(t *testing.T) {
		calc.calls.Store(0)
		settings := defaultSettings()
		settings.Tax = payroll.TaxSettings{}
		lines, err := reconciler.ResolveLines(h.ctx, key, settings, employees)
		require.NoError(t, err)
		assert.Len(t, lines, 2)
		assert.Zero(t, calc.calls.Load())
	})
}
