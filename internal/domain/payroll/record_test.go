package payroll_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/hrpay/backend/internal/domain/payroll"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecord(t *testing.T, key payroll.PeriodKey) *payroll.PayrollRecord {
	t.Helper()
	paye, err := payroll.NewStatutoryLine(payroll.StatutoryPAYE, decimal.NewFromInt(8000))
	require.NoError(t, err)
	nssf, err := payroll.NewStatutoryLine(payroll.StatutoryNSSF, decimal.NewFromInt(1080))
	require.NoError(t, err)
	loan, err := payroll.NewCustomLine(uuid.New(), payroll.CustomTypeLoan, "Car loan", decimal.NewFromInt(2000))
	require.NoError(t, err)

	r, err := payroll.NewPayrollRecord(payroll.RecordInput{
		EmployeeID:  uuid.New(),
		Key:         key,
		BasicSalary: decimal.NewFromInt(50000),
		Allowances: []payroll.AllowanceLine{
			{Name: "House", Amount: decimal.NewFromInt(7500)},
			{Name: "Transport", Amount: decimal.NewFromInt(3000)},
		},
		Deductions: []payroll.DeductionLine{paye, nssf, loan},
	})
	require.NoError(t, err)
	return r
}

func testKey(t *testing.T) payroll.PeriodKey {
	t.Helper()
	key, err := payroll.NewPeriodKey(uuid.New(), 6, 2024)
	require.NoError(t, err)
	return key
}

func TestNewPayrollRecord_Totals(t *testing.T) {
	r := newTestRecord(t, testKey(t))

	assert.Equal(t, payroll.RecordStatusProcessed, r.Status)
	assert.True(t, r.GrossSalary.Equal(decimal.NewFromInt(60500)))
	assert.True(t, r.NetSalary.Equal(decimal.NewFromInt(60500-8000-1080-2000)))
	assert.True(t, r.TaxableIncome.Equal(r.GrossSalary))
	assert.Equal(t, payroll.DefaultCurrency, r.Currency)
	assert.NoError(t, r.CheckTotals())
	assert.Len(t, r.StatutoryDeductions(), 2)
	assert.Len(t, r.CustomDeductions(), 1)
}

func TestNewPayrollRecord_RejectsUntaggedDeduction(t *testing.T) {
	_, err := payroll.NewPayrollRecord(payroll.RecordInput{
		EmployeeID:  uuid.New(),
		Key:         testKey(t),
		BasicSalary: decimal.NewFromInt(1000),
		Deductions:  []payroll.DeductionLine{{Name: "Salary advance", Amount: decimal.NewFromInt(100)}},
	})
	require.Error(t, err)
	assert.True(t, payroll.IsValidation(err))
}

func TestDeductionLine_TagConsistency(t *testing.T) {
	line := payroll.DeductionLine{
		Category:  payroll.DeductionCategoryStatutory,
		Statutory: payroll.StatutoryPAYE,
		RefID:     uuid.New(),
		Name:      "PAYE",
		Amount:    decimal.NewFromInt(10),
	}
	assert.Error(t, line.Validate())

	_, err := payroll.NewCustomLine(uuid.Nil, payroll.CustomTypeLoan, "Loan", decimal.NewFromInt(10))
	assert.Error(t, err)

	_, err = payroll.NewStatutoryLine(payroll.StatutoryHousingLevy, decimal.NewFromInt(-1))
	assert.Error(t, err)
}

func TestPayrollRecord_Transitions(t *testing.T) {
	r := newTestRecord(t, testKey(t))

	err := r.MarkPaid("ref")
	require.Error(t, err)
	assert.True(t, payroll.IsGuardViolation(err))

	require.NoError(t, r.Approve())
	assert.Equal(t, payroll.RecordStatusApproved, r.Status)
	assert.NotNil(t, r.ApprovedAt)

	assert.Error(t, r.Approve())

	require.NoError(t, r.MarkFailed(payroll.ReasonNoPaymentChannel))
	assert.Equal(t, payroll.ReasonNoPaymentChannel, r.FailureReason)

	require.NoError(t, r.Requeue())
	assert.Equal(t, payroll.RecordStatusApproved, r.Status)
	assert.Empty(t, r.FailureReason)

	require.NoError(t, r.MarkPaid("TX-1"))
	assert.Equal(t, payroll.RecordStatusPaid, r.Status)
	assert.Equal(t, "TX-1", r.PaymentReference)

	events := r.GetDomainEvents()
	require.NotEmpty(t, events)
	assert.Equal(t, payroll.EventTypePayrollRecordPaid, events[len(events)-1].EventType())
}

func TestPayrollRecord_TransitionsBumpVersion(t *testing.T) {
	r := newTestRecord(t, testKey(t))
	v := r.Version
	require.NoError(t, r.Approve())
	assert.Equal(t, v+1, r.Version)
}

func TestPayrollRecord_PaidCannotBeSuperseded(t *testing.T) {
	r := newTestRecord(t, testKey(t))
	require.NoError(t, r.Approve())
	require.NoError(t, r.MarkPaid("TX-1"))
	err := r.Supersede(r.UpdatedAt)
	assert.True(t, payroll.IsGuardViolation(err))
	assert.True(t, r.IsCurrent())
}
