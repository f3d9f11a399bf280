package payroll

import (
	"github.com/google/uuid"
	"github.com/hrpay/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Event type names
const (
	EventTypePayrollRecordProcessed   = "PayrollRecordProcessed"
	EventTypePayrollRecordApproved    = "PayrollRecordApproved"
	EventTypePayrollRecordPaid        = "PayrollRecordPaid"
	EventTypePayrollRecordFailed      = "PayrollRecordFailed"
	EventTypeCustomDeductionCreated   = "CustomDeductionCreated"
	EventTypeCustomDeductionCompleted = "CustomDeductionCompleted"
	EventTypeCustomDeductionStatus    = "CustomDeductionStatusChanged"
	EventTypePaymentChannelChanged    = "PaymentChannelChanged"
)

const (
	aggregateTypePayrollRecord   = "PayrollRecord"
	aggregateTypeCustomDeduction = "CustomDeduction"
	aggregateTypeEmployee        = "Employee"
)

// PayrollRecordProcessedEvent is raised when a processing run creates a record
type PayrollRecordProcessedEvent struct {
	shared.BaseDomainEvent
	RecordID   uuid.UUID       `json:"record_id"`
	EmployeeID uuid.UUID       `json:"employee_id"`
	Month      int             `json:"month"`
	Year       int             `json:"year"`
	NetSalary  decimal.Decimal `json:"net_salary"`
}

// EventType returns the event type name
func (e *PayrollRecordProcessedEvent) EventType() string {
	return EventTypePayrollRecordProcessed
}

// NewPayrollRecordProcessedEvent creates a new PayrollRecordProcessedEvent
func NewPayrollRecordProcessedEvent(r *PayrollRecord) *PayrollRecordProcessedEvent {
	return &PayrollRecordProcessedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePayrollRecordProcessed, aggregateTypePayrollRecord, r.ID, r.TenantID),
		RecordID:        r.ID,
		EmployeeID:      r.EmployeeID,
		Month:           r.Month,
		Year:            r.Year,
		NetSalary:       r.NetSalary,
	}
}

// PayrollRecordApprovedEvent is raised when a record moves to Approved
type PayrollRecordApprovedEvent struct {
	shared.BaseDomainEvent
	RecordID   uuid.UUID `json:"record_id"`
	EmployeeID uuid.UUID `json:"employee_id"`
	Month      int       `json:"month"`
	Year       int       `json:"year"`
}

// EventType returns the event type name
func (e *PayrollRecordApprovedEvent) EventType() string {
	return EventTypePayrollRecordApproved
}

// NewPayrollRecordApprovedEvent creates a new PayrollRecordApprovedEvent
func NewPayrollRecordApprovedEvent(r *PayrollRecord) *PayrollRecordApprovedEvent {
	return &PayrollRecordApprovedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePayrollRecordApproved, aggregateTypePayrollRecord, r.ID, r.TenantID),
		RecordID:        r.ID,
		EmployeeID:      r.EmployeeID,
		Month:           r.Month,
		Year:            r.Year,
	}
}

// PayrollRecordPaidEvent is raised when the transfer for a record is accepted.
// The payslip publisher renders and stores the payslip on this event.
type PayrollRecordPaidEvent struct {
	shared.BaseDomainEvent
	RecordID         uuid.UUID       `json:"record_id"`
	EmployeeID       uuid.UUID       `json:"employee_id"`
	Month            int             `json:"month"`
	Year             int             `json:"year"`
	NetSalary        decimal.Decimal `json:"net_salary"`
	Currency         string          `json:"currency"`
	PaymentReference string          `json:"payment_reference"`
}

// EventType returns the event type name
func (e *PayrollRecordPaidEvent) EventType() string {
	return EventTypePayrollRecordPaid
}

// NewPayrollRecordPaidEvent creates a new PayrollRecordPaidEvent
func NewPayrollRecordPaidEvent(r *PayrollRecord) *PayrollRecordPaidEvent {
	return &PayrollRecordPaidEvent{
		BaseDomainEvent:  shared.NewBaseDomainEvent(EventTypePayrollRecordPaid, aggregateTypePayrollRecord, r.ID, r.TenantID),
		RecordID:         r.ID,
		EmployeeID:       r.EmployeeID,
		Month:            r.Month,
		Year:             r.Year,
		NetSalary:        r.NetSalary,
		Currency:         r.Currency,
		PaymentReference: r.PaymentReference,
	}
}

// PayrollRecordFailedEvent is raised when a payment attempt fails for a record
type PayrollRecordFailedEvent struct {
	shared.BaseDomainEvent
	RecordID   uuid.UUID `json:"record_id"`
	EmployeeID uuid.UUID `json:"employee_id"`
	Reason     string    `json:"reason"`
}

// EventType returns the event type name
func (e *PayrollRecordFailedEvent) EventType() string {
	return EventTypePayrollRecordFailed
}

// NewPayrollRecordFailedEvent creates a new PayrollRecordFailedEvent
func NewPayrollRecordFailedEvent(r *PayrollRecord) *PayrollRecordFailedEvent {
	return &PayrollRecordFailedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePayrollRecordFailed, aggregateTypePayrollRecord, r.ID, r.TenantID),
		RecordID:        r.ID,
		EmployeeID:      r.EmployeeID,
		Reason:          r.FailureReason,
	}
}

// CustomDeductionCreatedEvent is raised when HR creates a custom deduction
type CustomDeductionCreatedEvent struct {
	shared.BaseDomainEvent
	DeductionID   uuid.UUID           `json:"deduction_id"`
	EmployeeID    uuid.UUID           `json:"employee_id"`
	Type          CustomDeductionType `json:"type"`
	Amount        decimal.Decimal     `json:"amount"`
	MonthlyAmount decimal.Decimal     `json:"monthly_amount"`
}

// EventType returns the event type name
func (e *CustomDeductionCreatedEvent) EventType() string {
	return EventTypeCustomDeductionCreated
}

// NewCustomDeductionCreatedEvent creates a new CustomDeductionCreatedEvent
func NewCustomDeductionCreatedEvent(d *CustomDeduction) *CustomDeductionCreatedEvent {
	return &CustomDeductionCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeCustomDeductionCreated, aggregateTypeCustomDeduction, d.ID, d.TenantID),
		DeductionID:     d.ID,
		EmployeeID:      d.EmployeeID,
		Type:            d.Type,
		Amount:          d.Amount,
		MonthlyAmount:   d.MonthlyAmount,
	}
}

// CustomDeductionCompletedEvent is raised when the last installment is applied
type CustomDeductionCompletedEvent struct {
	shared.BaseDomainEvent
	DeductionID uuid.UUID `json:"deduction_id"`
	EmployeeID  uuid.UUID `json:"employee_id"`
}

// EventType returns the event type name
func (e *CustomDeductionCompletedEvent) EventType() string {
	return EventTypeCustomDeductionCompleted
}

// NewCustomDeductionCompletedEvent creates a new CustomDeductionCompletedEvent
func NewCustomDeductionCompletedEvent(d *CustomDeduction) *CustomDeductionCompletedEvent {
	return &CustomDeductionCompletedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeCustomDeductionCompleted, aggregateTypeCustomDeduction, d.ID, d.TenantID),
		DeductionID:     d.ID,
		EmployeeID:      d.EmployeeID,
	}
}

// CustomDeductionStatusChangedEvent is raised on an HR status change
type CustomDeductionStatusChangedEvent struct {
	shared.BaseDomainEvent
	DeductionID uuid.UUID       `json:"deduction_id"`
	From        DeductionStatus `json:"from"`
	To          DeductionStatus `json:"to"`
}

// EventType returns the event type name
func (e *CustomDeductionStatusChangedEvent) EventType() string {
	return EventTypeCustomDeductionStatus
}

// NewCustomDeductionStatusChangedEvent creates a new CustomDeductionStatusChangedEvent
func NewCustomDeductionStatusChangedEvent(d *CustomDeduction, from DeductionStatus) *CustomDeductionStatusChangedEvent {
	return &CustomDeductionStatusChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeCustomDeductionStatus, aggregateTypeCustomDeduction, d.ID, d.TenantID),
		DeductionID:     d.ID,
		From:            from,
		To:              d.Status,
	}
}

// PaymentChannelChangedEvent is raised when an employee's channel is switched or cleared
type PaymentChannelChangedEvent struct {
	shared.BaseDomainEvent
	EmployeeID uuid.UUID   `json:"employee_id"`
	From       ChannelKind `json:"from"`
	To         ChannelKind `json:"to"`
}

// EventType returns the event type name
func (e *PaymentChannelChangedEvent) EventType() string {
	return EventTypePaymentChannelChanged
}

// NewPaymentChannelChangedEvent creates a new PaymentChannelChangedEvent
func NewPaymentChannelChangedEvent(e *Employee, from ChannelKind) *PaymentChannelChangedEvent {
	return &PaymentChannelChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePaymentChannelChanged, aggregateTypeEmployee, e.ID, e.TenantID),
		EmployeeID:      e.ID,
		From:            from,
		To:              e.ActiveChannel(),
	}
}
