package payroll

import (
	"time"

	"github.com/google/uuid"
	"github.com/hrpay/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// DefaultCurrency is the payroll currency when settings do not override it
const DefaultCurrency = "KES"

// RecordStatus represents the lifecycle state of a payroll record
type RecordStatus string

const (
	RecordStatusProcessed RecordStatus = "PROCESSED"
	RecordStatusApproved  RecordStatus = "APPROVED"
	RecordStatusPaid      RecordStatus = "PAID"
	RecordStatusFailed    RecordStatus = "FAILED"
)

// IsValid checks if the status is a valid RecordStatus
func (s RecordStatus) IsValid() bool {
	switch s {
	case RecordStatusProcessed, RecordStatusApproved, RecordStatusPaid, RecordStatusFailed:
		return true
	}
	return false
}

// String returns the string representation of RecordStatus
func (s RecordStatus) String() string {
	return string(s)
}

// CanApprove returns true if the record can be approved
func (s RecordStatus) CanApprove() bool {
	return s == RecordStatusProcessed
}

// CanPay returns true if a transfer may be attempted for the record
func (s RecordStatus) CanPay() bool {
	return s == RecordStatusApproved
}

// CanRequeue returns true if the record can be put back into the payment queue
func (s RecordStatus) CanRequeue() bool {
	return s == RecordStatusFailed
}

// RecordInput carries the resolved line items of one employee for one period
type RecordInput struct {
	// ID pre-allocates the record id so ledger rows can reference it.
	ID            uuid.UUID
	EmployeeID    uuid.UUID
	EmployeeName  string
	PeriodID      uuid.UUID
	Key           PeriodKey
	BasicSalary   decimal.Decimal
	Allowances    []AllowanceLine
	Deductions    []DeductionLine
	TaxableIncome decimal.Decimal
	Currency      string
}

// PayrollRecord is one employee's pay computation for one period
type PayrollRecord struct {
	shared.TenantAggregateRoot
	EmployeeID       uuid.UUID       `json:"employee_id"`
	EmployeeName     string          `json:"employee_name"`
	PeriodID         uuid.UUID       `json:"period_id"`
	Month            int             `json:"month"`
	Year             int             `json:"year"`
	BasicSalary      decimal.Decimal `json:"basic_salary"`
	Allowances       []AllowanceLine `json:"allowances"`
	Deductions       []DeductionLine `json:"deductions"`
	GrossSalary      decimal.Decimal `json:"gross_salary"`
	TaxableIncome    decimal.Decimal `json:"taxable_income"`
	NetSalary        decimal.Decimal `json:"net_salary"`
	Currency         string          `json:"currency"`
	Status           RecordStatus    `json:"status"`
	FailureReason    string          `json:"failure_reason,omitempty"`
	PaymentReference string          `json:"payment_reference,omitempty"`
	ApprovedAt       *time.Time      `json:"approved_at,omitempty"`
	PaidAt           *time.Time      `json:"paid_at,omitempty"`
	SupersededAt     *time.Time      `json:"superseded_at,omitempty"`
}

// NewPayrollRecord creates a Processed record and derives its totals
func NewPayrollRecord(in RecordInput) (*PayrollRecord, error) {
	if in.EmployeeID == uuid.Nil {
		return nil, shared.NewValidationError("employee id is required")
	}
	if err := in.Key.Validate(); err != nil {
		return nil, err
	}
	if in.BasicSalary.IsNegative() {
		return nil, shared.NewValidationError("basic salary cannot be negative")
	}
	for _, a := range in.Allowances {
		if a.Amount.IsNegative() {
			return nil, shared.NewValidationError("allowance " + a.Name + " has a negative amount")
		}
	}
	for _, d := range in.Deductions {
		if err := d.Validate(); err != nil {
			return nil, err
		}
	}
	currency := in.Currency
	if currency == "" {
		currency = DefaultCurrency
	}

	gross := in.BasicSalary.Add(SumAllowances(in.Allowances))
	taxable := in.TaxableIncome
	if taxable.IsZero() {
		taxable = gross
	}

	r := &PayrollRecord{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(in.Key.BusinessID),
		EmployeeID:          in.EmployeeID,
		EmployeeName:        in.EmployeeName,
		PeriodID:            in.PeriodID,
		Month:               in.Key.Month,
		Year:                in.Key.Year,
		BasicSalary:         in.BasicSalary,
		Allowances:          append([]AllowanceLine(nil), in.Allowances...),
		Deductions:          append([]DeductionLine(nil), in.Deductions...),
		GrossSalary:         gross,
		TaxableIncome:       taxable,
		NetSalary:           gross.Sub(SumDeductions(in.Deductions)),
		Currency:            currency,
		Status:              RecordStatusProcessed,
	}
	if in.ID != uuid.Nil {
		r.ID = in.ID
	}
	r.AddDomainEvent(NewPayrollRecordProcessedEvent(r))
	return r, nil
}

// Key returns the period the record belongs to
func (r *PayrollRecord) Key() PeriodKey {
	return PeriodKey{BusinessID: r.TenantID, Month: r.Month, Year: r.Year}
}

// TotalAllowances sums the allowance lines
func (r *PayrollRecord) TotalAllowances() decimal.Decimal {
	return SumAllowances(r.Allowances)
}

// TotalDeductions sums every deduction line
func (r *PayrollRecord) TotalDeductions() decimal.Decimal {
	return SumDeductions(r.Deductions)
}

// StatutoryDeductions returns the statutory lines in order
func (r *PayrollRecord) StatutoryDeductions() []DeductionLine {
	return r.filterDeductions(DeductionCategoryStatutory)
}

// CustomDeductions returns the custom lines in order
func (r *PayrollRecord) CustomDeductions() []DeductionLine {
	return r.filterDeductions(DeductionCategoryCustom)
}

func (r *PayrollRecord) filterDeductions(c DeductionCategory) []DeductionLine {
	out := make([]DeductionLine, 0, len(r.Deductions))
	for _, d := range r.Deductions {
		if d.Category == c {
			out = append(out, d)
		}
	}
	return out
}

// CheckTotals verifies gross = basic + allowances and net = gross - deductions
func (r *PayrollRecord) CheckTotals() error {
	if !r.GrossSalary.Equal(r.BasicSalary.Add(r.TotalAllowances())) {
		return shared.NewValidationError("gross salary does not equal basic salary plus allowances")
	}
	if !r.NetSalary.Equal(r.GrossSalary.Sub(r.TotalDeductions())) {
		return shared.NewValidationError("net salary does not equal gross salary minus deductions")
	}
	return nil
}

// IsCurrent reports whether the record has not been superseded by reprocessing
func (r *PayrollRecord) IsCurrent() bool {
	return r.SupersededAt == nil
}

// Supersede marks the record as replaced by a later processing run
func (r *PayrollRecord) Supersede(at time.Time) error {
	if r.Status == RecordStatusPaid {
		return ErrPeriodAlreadyPaid(r.Key())
	}
	r.SupersededAt = &at
	r.Touch()
	return nil
}

// Approve moves a Processed record to Approved
func (r *PayrollRecord) Approve() error {
	if !r.Status.CanApprove() {
		return ErrRecordTransition(r.ID, r.Status, RecordStatusApproved)
	}
	now := time.Now()
	r.Status = RecordStatusApproved
	r.ApprovedAt = &now
	r.Touch()
	r.AddDomainEvent(NewPayrollRecordApprovedEvent(r))
	return nil
}

// MarkPaid records a successful transfer
func (r *PayrollRecord) MarkPaid(reference string) error {
	if !r.Status.CanPay() {
		return ErrRecordTransition(r.ID, r.Status, RecordStatusPaid)
	}
	now := time.Now()
	r.Status = RecordStatusPaid
	r.PaymentReference = reference
	r.FailureReason = ""
	r.PaidAt = &now
	r.Touch()
	r.AddDomainEvent(NewPayrollRecordPaidEvent(r))
	return nil
}

// MarkFailed records a per-record payment failure
func (r *PayrollRecord) MarkFailed(reason string) error {
	if !r.Status.CanPay() {
		return ErrRecordTransition(r.ID, r.Status, RecordStatusFailed)
	}
	r.Status = RecordStatusFailed
	r.FailureReason = reason
	r.Touch()
	r.AddDomainEvent(NewPayrollRecordFailedEvent(r))
	return nil
}

// Requeue puts a Failed record back into the Approved state
func (r *PayrollRecord) Requeue() error {
	if !r.Status.CanRequeue() {
		return ErrRecordTransition(r.ID, r.Status, RecordStatusApproved)
	}
	r.Status = RecordStatusApproved
	r.FailureReason = ""
	r.Touch()
	return nil
}

// PeriodTotals aggregates money amounts over the records of a period
type PeriodTotals struct {
	Basic       decimal.Decimal `json:"basic"`
	Allowances  decimal.Decimal `json:"allowances"`
	Gross       decimal.Decimal `json:"gross"`
	Statutory   decimal.Decimal `json:"statutory"`
	Custom      decimal.Decimal `json:"custom"`
	Net         decimal.Decimal `json:"net"`
	PaidNet     decimal.Decimal `json:"paid_net"`
	PendingNet  decimal.Decimal `json:"pending_net"`
	FailedCount int             `json:"failed_count"`
}

func (t *PeriodTotals) add(r *PayrollRecord) {
	t.Basic = t.Basic.Add(r.BasicSalary)
	t.Allowances = t.Allowances.Add(r.TotalAllowances())
	t.Gross = t.Gross.Add(r.GrossSalary)
	t.Statutory = t.Statutory.Add(SumByCategory(r.Deductions, DeductionCategoryStatutory))
	t.Custom = t.Custom.Add(SumByCategory(r.Deductions, DeductionCategoryCustom))
	t.Net = t.Net.Add(r.NetSalary)
	switch r.Status {
	case RecordStatusPaid:
		t.PaidNet = t.PaidNet.Add(r.NetSalary)
	case RecordStatusFailed:
		t.FailedCount++
		t.PendingNet = t.PendingNet.Add(r.NetSalary)
	default:
		t.PendingNet = t.PendingNet.Add(r.NetSalary)
	}
}
