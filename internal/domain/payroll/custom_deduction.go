package payroll

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hrpay/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// DeductionStatus represents the amortization state of a custom deduction
type DeductionStatus string

const (
	DeductionStatusActive    DeductionStatus = "active"
	DeductionStatusCompleted DeductionStatus = "completed"
	DeductionStatusCancelled DeductionStatus = "cancelled"
)

// IsValid checks if the status is a valid DeductionStatus
func (s DeductionStatus) IsValid() bool {
	switch s {
	case DeductionStatusActive, DeductionStatusCompleted, DeductionStatusCancelled:
		return true
	}
	return false
}

// String returns the string representation of DeductionStatus
func (s DeductionStatus) String() string {
	return string(s)
}

// ParseDeductionStatus accepts the status case-insensitively
func ParseDeductionStatus(s string) (DeductionStatus, error) {
	st := DeductionStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", shared.NewValidationError(fmt.Sprintf("unknown deduction status %q", s))
	}
	return st, nil
}

// CustomDeductionInput holds the fields HR supplies when creating a deduction
type CustomDeductionInput struct {
	EmployeeID    uuid.UUID
	Description   string
	Type          CustomDeductionType
	Amount        decimal.Decimal
	MonthlyAmount decimal.Decimal
	StartDate     time.Time
	EndDate       *time.Time
}

// CustomDeduction is an employer-initiated deduction amortized over periods.
// RemainingAmount only decreases while the deduction is active, except when a
// superseded period's installment is reversed.
type CustomDeduction struct {
	shared.TenantAggregateRoot
	EmployeeID      uuid.UUID           `json:"employee_id"`
	Description     string              `json:"description"`
	Type            CustomDeductionType `json:"type"`
	Amount          decimal.Decimal     `json:"amount"`
	MonthlyAmount   decimal.Decimal     `json:"monthly_amount"`
	RemainingAmount decimal.Decimal     `json:"remaining_amount"`
	StartDate       time.Time           `json:"start_date"`
	EndDate         *time.Time          `json:"end_date,omitempty"`
	Status          DeductionStatus     `json:"status"`
	CompletedAt     *time.Time          `json:"completed_at,omitempty"`
}

// NewCustomDeduction validates the input and creates an active deduction
func NewCustomDeduction(businessID uuid.UUID, in CustomDeductionInput) (*CustomDeduction, error) {
	var details []string
	if in.EmployeeID == uuid.Nil {
		details = append(details, "employee_id is required")
	}
	desc := strings.TrimSpace(in.Description)
	if desc == "" {
		details = append(details, "description is required")
	}
	if len(desc) > 255 {
		details = append(details, "description cannot exceed 255 characters")
	}
	if !in.Type.IsValid() {
		details = append(details, fmt.Sprintf("type %q is not a known deduction type", in.Type))
	}
	if !in.Amount.IsPositive() {
		details = append(details, "amount must be greater than zero")
	}
	if !in.MonthlyAmount.IsPositive() {
		details = append(details, "monthly_amount must be greater than zero")
	}
	if in.MonthlyAmount.GreaterThan(in.Amount) {
		details = append(details, "monthly_amount cannot exceed amount")
	}
	if in.StartDate.IsZero() {
		details = append(details, "start_date is required")
	}
	if in.EndDate != nil && in.EndDate.Before(in.StartDate) {
		details = append(details, "end_date cannot be before start_date")
	}
	if len(details) > 0 {
		return nil, shared.NewValidationError("invalid custom deduction", details...)
	}

	d := &CustomDeduction{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(businessID),
		EmployeeID:          in.EmployeeID,
		Description:         desc,
		Type:                in.Type,
		Amount:              in.Amount,
		MonthlyAmount:       in.MonthlyAmount,
		RemainingAmount:     in.Amount,
		StartDate:           in.StartDate,
		EndDate:             in.EndDate,
		Status:              DeductionStatusActive,
	}
	d.AddDomainEvent(NewCustomDeductionCreatedEvent(d))
	return d, nil
}

// AppliesTo reports whether the deduction is active and the period lies in its window.
// Comparison is by calendar month so a mid-month start still covers its first month.
func (d *CustomDeduction) AppliesTo(key PeriodKey) bool {
	if d.Status != DeductionStatusActive || !d.RemainingAmount.IsPositive() {
		return false
	}
	idx := key.Index()
	if idx < monthIndex(d.StartDate) {
		return false
	}
	if d.EndDate != nil && idx > monthIndex(*d.EndDate) {
		return false
	}
	return true
}

// NextInstallment returns min(monthlyAmount, remainingAmount)
func (d *CustomDeduction) NextInstallment() decimal.Decimal {
	return decimal.Min(d.MonthlyAmount, d.RemainingAmount)
}

// ApplyInstallment deducts one installment for the period and returns the
// record line together with the ledger entry describing it.
func (d *CustomDeduction) ApplyInstallment(key PeriodKey, recordID uuid.UUID) (DeductionLine, *DeductionInstallment, error) {
	if !d.AppliesTo(key) {
		return DeductionLine{}, nil, shared.NewGuardViolation(RuleDeductionStatusChange,
			fmt.Sprintf("deduction %s does not apply to period %s", d.ID, key))
	}
	amount := d.NextInstallment()
	line, err := NewCustomLine(d.ID, d.Type, d.Description, amount)
	if err != nil {
		return DeductionLine{}, nil, err
	}

	d.RemainingAmount = d.RemainingAmount.Sub(amount)
	if d.RemainingAmount.IsZero() {
		now := time.Now()
		d.Status = DeductionStatusCompleted
		d.CompletedAt = &now
		d.AddDomainEvent(NewCustomDeductionCompletedEvent(d))
	}
	d.Touch()

	return line, NewDeductionInstallment(d, recordID, key, amount), nil
}

// Restore gives back a reversed installment. A deduction completed by that
// installment becomes active again.
func (d *CustomDeduction) Restore(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return shared.NewValidationError("restored amount must be greater than zero")
	}
	restored := d.RemainingAmount.Add(amount)
	if restored.GreaterThan(d.Amount) {
		return shared.NewValidationError(fmt.Sprintf("restoring %s would exceed the deduction amount %s", amount, d.Amount))
	}
	d.RemainingAmount = restored
	if d.Status == DeductionStatusCompleted {
		d.Status = DeductionStatusActive
		d.CompletedAt = nil
	}
	d.Touch()
	return nil
}

// ChangeStatus applies an HR status change.
// active->cancelled, cancelled->active (remaining > 0) and active->completed
// (remaining == 0) are the only allowed moves.
func (d *CustomDeduction) ChangeStatus(to DeductionStatus) error {
	if !to.IsValid() {
		return shared.NewValidationError(fmt.Sprintf("unknown deduction status %q", to))
	}
	if d.Status == to {
		return nil
	}
	ok := false
	switch {
	case d.Status == DeductionStatusActive && to == DeductionStatusCancelled:
		ok = true
	case d.Status == DeductionStatusCancelled && to == DeductionStatusActive:
		ok = d.RemainingAmount.IsPositive()
	case d.Status == DeductionStatusActive && to == DeductionStatusCompleted:
		ok = d.RemainingAmount.IsZero()
	}
	if !ok {
		return shared.NewGuardViolation(RuleDeductionStatusChange,
			fmt.Sprintf("deduction cannot move from %s to %s with %s remaining", d.Status, to, d.RemainingAmount))
	}
	from := d.Status
	d.Status = to
	if to == DeductionStatusCompleted {
		now := time.Now()
		d.CompletedAt = &now
	}
	d.Touch()
	d.AddDomainEvent(NewCustomDeductionStatusChangedEvent(d, from))
	return nil
}

// AppliedAmount is amount - remainingAmount
func (d *CustomDeduction) AppliedAmount() decimal.Decimal {
	return d.Amount.Sub(d.RemainingAmount)
}

// DeductionInstallment is a ledger row for one applied installment
type DeductionInstallment struct {
	shared.BaseEntity
	TenantID    uuid.UUID       `json:"tenant_id"`
	DeductionID uuid.UUID       `json:"deduction_id"`
	EmployeeID  uuid.UUID       `json:"employee_id"`
	RecordID    uuid.UUID       `json:"record_id"`
	Month       int             `json:"month"`
	Year        int             `json:"year"`
	Amount      decimal.Decimal `json:"amount"`
	ReversedAt  *time.Time      `json:"reversed_at,omitempty"`
}

// NewDeductionInstallment creates a ledger entry
func NewDeductionInstallment(d *CustomDeduction, recordID uuid.UUID, key PeriodKey, amount decimal.Decimal) *DeductionInstallment {
	return &DeductionInstallment{
		BaseEntity:  shared.NewBaseEntity(),
		TenantID:    d.TenantID,
		DeductionID: d.ID,
		EmployeeID:  d.EmployeeID,
		RecordID:    recordID,
		Month:       key.Month,
		Year:        key.Year,
		Amount:      amount,
	}
}

// Reverse marks the installment as undone
func (i *DeductionInstallment) Reverse(at time.Time) {
	i.ReversedAt = &at
	i.UpdatedAt = at
}

// IsReversed reports whether the installment was undone
func (i *DeductionInstallment) IsReversed() bool {
	return i.ReversedAt != nil
}

// SumApplied totals the installments that were not reversed
func SumApplied(installments []*DeductionInstallment) decimal.Decimal {
	total := decimal.Zero
	for _, i := range installments {
		if !i.IsReversed() {
			total = total.Add(i.Amount)
		}
	}
	return total
}

func monthIndex(t time.Time) int {
	return t.Year()*12 + int(t.Month()) - 1
}
