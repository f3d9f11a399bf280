package payroll

import (
	"time"

	"github.com/google/uuid"
	"github.com/hrpay/backend/internal/domain/payroll"
	"github.com/shopspring/decimal"
)

// ProcessPeriodRequest represents a request to process a payroll period
type ProcessPeriodRequest struct {
	Month    int               `json:"month" binding:"required,min=1,max=12"`
	Year     int               `json:"year" binding:"required,min=2000,max=2100"`
	Settings *payroll.Settings `json:"settings"`
}

// ApprovePeriodRequest represents a request to approve records of a period.
// employee_ids carries record ids for compatibility with existing clients.
type ApprovePeriodRequest struct {
	Month     int         `json:"month" binding:"required,min=1,max=12"`
	Year      int         `json:"year" binding:"required,min=2000,max=2100"`
	RecordIDs []uuid.UUID `json:"employee_ids"`
}

// ProcessPaymentsRequest represents a request to pay approved records
type ProcessPaymentsRequest struct {
	Month      int         `json:"month" binding:"required,min=1,max=12"`
	Year       int         `json:"year" binding:"required,min=2000,max=2100"`
	PaymentIDs []uuid.UUID `json:"payment_ids"`
}

// RequeueFailedRequest represents a request to put failed records back to approved
type RequeueFailedRequest struct {
	Month     int         `json:"month" binding:"required,min=1,max=12"`
	Year      int         `json:"year" binding:"required,min=2000,max=2100"`
	RecordIDs []uuid.UUID `json:"record_ids"`
}

// BatchDispatchRequest represents a selection dispatched from a workflow stage.
// With select_all every eligible record except exclude_ids is selected.
type BatchDispatchRequest struct {
	RecordIDs  []uuid.UUID `json:"record_ids"`
	SelectAll  bool        `json:"select_all"`
	ExcludeIDs []uuid.UUID `json:"exclude_ids"`
}

// BankAccountRequest represents one bank account of a bank channel
type BankAccountRequest struct {
	BankName      string `json:"bank_name" binding:"required,max=100"`
	AccountNumber string `json:"account_number" binding:"required,max=50"`
	AccountType   string `json:"account_type" binding:"required,oneof=SAVINGS CURRENT"`
	IsPrimary     bool   `json:"is_primary"`
}

// ToDomain converts the request to a domain bank account
func (r BankAccountRequest) ToDomain() payroll.BankAccount {
	return payroll.BankAccount{
		BankName:      r.BankName,
		AccountNumber: r.AccountNumber,
		AccountType:   payroll.BankAccountType(r.AccountType),
		IsPrimary:     r.IsPrimary,
	}
}

// SetBankChannelRequest replaces the channel with bank accounts
type SetBankChannelRequest struct {
	Accounts []BankAccountRequest `json:"accounts" binding:"required,min=1,dive"`
}

// ToDomain converts the request accounts
func (r SetBankChannelRequest) ToDomain() []payroll.BankAccount {
	out := make([]payroll.BankAccount, len(r.Accounts))
	for i, a := range r.Accounts {
		out[i] = a.ToDomain()
	}
	return out
}

// SetWalletChannelRequest replaces the channel with a mobile wallet
type SetWalletChannelRequest struct {
	WalletID    string `json:"wallet_id" binding:"required,max=100"`
	PhoneNumber string `json:"phone_number" binding:"required,ke_phone"`
	IsActive    *bool  `json:"is_active"`
}

// Active defaults is_active to true
func (r SetWalletChannelRequest) Active() bool {
	return r.IsActive == nil || *r.IsActive
}

// CreateEmployeeRequest represents a request to create an employee
type CreateEmployeeRequest struct {
	EmployeeNumber     string                     `json:"employee_number" binding:"max=50"`
	Name               string                     `json:"name" binding:"required,min=1,max=200"`
	Email              string                     `json:"email" binding:"omitempty,email"`
	BasicSalary        decimal.Decimal            `json:"basic_salary"`
	AllowanceOverrides map[string]decimal.Decimal `json:"allowance_overrides"`
}

// AddCustomDeductionRequest represents a request to create a custom deduction
type AddCustomDeductionRequest struct {
	EmployeeID    uuid.UUID       `json:"employee_id" binding:"required"`
	Description   string          `json:"description" binding:"required,max=255"`
	Type          string          `json:"type" binding:"required"`
	Amount        decimal.Decimal `json:"amount"`
	MonthlyAmount decimal.Decimal `json:"monthly_amount"`
	StartDate     time.Time       `json:"start_date" binding:"required"`
	EndDate       *time.Time      `json:"end_date"`
}

// UpdateDeductionStatusRequest represents an HR status change
type UpdateDeductionStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// InitiateUploadRequest asks for a presigned upload URL
type InitiateUploadRequest struct {
	Kind        string `json:"kind" binding:"required"`
	FileName    string `json:"file_name" binding:"required,max=255"`
	ContentType string `json:"content_type" binding:"required"`
}

// ConfirmUploadRequest confirms a finished upload
type ConfirmUploadRequest struct {
	SizeBytes int64 `json:"size_bytes" binding:"min=0"`
}

// RecordResponse represents a payroll record in API responses
type RecordResponse struct {
	ID                  uuid.UUID               `json:"id"`
	EmployeeID          uuid.UUID               `json:"employee_id"`
	EmployeeName        string                  `json:"employee_name"`
	Month               int                     `json:"month"`
	Year                int                     `json:"year"`
	BasicSalary         decimal.Decimal         `json:"basic_salary"`
	Allowances          []payroll.AllowanceLine `json:"allowances"`
	StatutoryDeductions []payroll.DeductionLine `json:"statutory_deductions"`
	CustomDeductions    []payroll.DeductionLine `json:"custom_deductions"`
	TotalAllowances     decimal.Decimal         `json:"total_allowances"`
	TotalDeductions     decimal.Decimal         `json:"total_deductions"`
	GrossSalary         decimal.Decimal         `json:"gross_salary"`
	TaxableIncome       decimal.Decimal         `json:"taxable_income"`
	NetSalary           decimal.Decimal         `json:"net_salary"`
	Currency            string                  `json:"currency"`
	Status              string                  `json:"status"`
	FailureReason       string                  `json:"failure_reason,omitempty"`
	PaymentReference    string                  `json:"payment_reference,omitempty"`
	ApprovedAt          *time.Time              `json:"approved_at,omitempty"`
	PaidAt              *time.Time              `json:"paid_at,omitempty"`
	SupersededAt        *time.Time              `json:"superseded_at,omitempty"`
	CreatedAt           time.Time               `json:"created_at"`
	Version             int                     `json:"version"`
}

// ToRecordResponse converts a record to its response
func ToRecordResponse(r *payroll.PayrollRecord) RecordResponse {
	return RecordResponse{
		ID:                  r.ID,
		EmployeeID:          r.EmployeeID,
		EmployeeName:        r.EmployeeName,
		Month:               r.Month,
		Year:                r.Year,
		BasicSalary:         r.BasicSalary,
		Allowances:          r.Allowances,
		StatutoryDeductions: r.StatutoryDeductions(),
		CustomDeductions:    r.CustomDeductions(),
		TotalAllowances:     r.TotalAllowances(),
		TotalDeductions:     r.TotalDeductions(),
		GrossSalary:         r.GrossSalary,
		TaxableIncome:       r.TaxableIncome,
		NetSalary:           r.NetSalary,
		Currency:            r.Currency,
		Status:              r.Status.String(),
		FailureReason:       r.FailureReason,
		PaymentReference:    r.PaymentReference,
		ApprovedAt:          r.ApprovedAt,
		PaidAt:              r.PaidAt,
		SupersededAt:        r.SupersededAt,
		CreatedAt:           r.CreatedAt,
		Version:             r.Version,
	}
}

// ToRecordResponses converts records to responses
func ToRecordResponses(records []*payroll.PayrollRecord) []RecordResponse {
	out := make([]RecordResponse, len(records))
	for i, r := range records {
		out[i] = ToRecordResponse(r)
	}
	return out
}

// PeriodResponse represents a period summary
type PeriodResponse struct {
	Month        int                  `json:"month"`
	Year         int                  `json:"year"`
	Status       string               `json:"status"`
	Locked       bool                 `json:"locked"`
	RecordCount  int                  `json:"record_count"`
	StatusCounts map[string]int       `json:"status_counts"`
	Totals       payroll.PeriodTotals `json:"totals"`
	Records      []RecordResponse     `json:"records"`
}

// ToPeriodResponse converts a period summary to its response
func ToPeriodResponse(s *payroll.PeriodSummary) PeriodResponse {
	return PeriodResponse{
		Month:        s.Key.Month,
		Year:         s.Key.Year,
		Status:       s.Status.String(),
		Locked:       s.Locked,
		RecordCount:  s.RecordCount,
		StatusCounts: s.StatusCounts,
		Totals:       s.Totals,
		Records:      ToRecordResponses(s.Records),
	}
}

// PaymentReportResponse represents the outcome of a payment batch
type PaymentReportResponse struct {
	ProcessedCount int                     `json:"processed_count"`
	PaymentStatus  map[string]string       `json:"payment_status"`
	FailedIDs      []uuid.UUID             `json:"failed_ids,omitempty"`
	Outcomes       []payroll.RecordOutcome `json:"outcomes"`
}

// ToPaymentReportResponse converts a payment report to its response
func ToPaymentReportResponse(r *payroll.PaymentReport) PaymentReportResponse {
	return PaymentReportResponse{
		ProcessedCount: r.ProcessedCount,
		PaymentStatus:  r.StatusByRecord(),
		FailedIDs:      r.FailedIDs(),
		Outcomes:       r.Outcomes,
	}
}

// DispatchResponse represents the result of a batch dispatch
type DispatchResponse struct {
	Stage   string                 `json:"stage"`
	Records []RecordResponse       `json:"records,omitempty"`
	Report  *PaymentReportResponse `json:"report,omitempty"`
}

// ToDispatchResponse converts a dispatch result to its response
func ToDispatchResponse(r *DispatchResult) DispatchResponse {
	resp := DispatchResponse{Stage: string(r.Stage)}
	if r.Records != nil {
		resp.Records = ToRecordResponses(r.Records)
	}
	if r.Report != nil {
		report := ToPaymentReportResponse(r.Report)
		resp.Report = &report
	}
	return resp
}

// DeductionResponse represents a custom deduction
type DeductionResponse struct {
	ID              uuid.UUID       `json:"id"`
	EmployeeID      uuid.UUID       `json:"employee_id"`
	Description     string          `json:"description"`
	Type            string          `json:"type"`
	Amount          decimal.Decimal `json:"amount"`
	MonthlyAmount   decimal.Decimal `json:"monthly_amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	AppliedAmount   decimal.Decimal `json:"applied_amount"`
	StartDate       time.Time       `json:"start_date"`
	EndDate         *time.Time      `json:"end_date,omitempty"`
	Status          string          `json:"status"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	Version         int             `json:"version"`
}

// ToDeductionResponse converts a deduction to its response
func ToDeductionResponse(d *payroll.CustomDeduction) DeductionResponse {
	return DeductionResponse{
		ID:              d.ID,
		EmployeeID:      d.EmployeeID,
		Description:     d.Description,
		Type:            string(d.Type),
		Amount:          d.Amount,
		MonthlyAmount:   d.MonthlyAmount,
		RemainingAmount: d.RemainingAmount,
		AppliedAmount:   d.AppliedAmount(),
		StartDate:       d.StartDate,
		EndDate:         d.EndDate,
		Status:          d.Status.String(),
		CompletedAt:     d.CompletedAt,
		CreatedAt:       d.CreatedAt,
		Version:         d.Version,
	}
}

// ToDeductionResponses converts deductions to responses
func ToDeductionResponses(ds []*payroll.CustomDeduction) []DeductionResponse {
	out := make([]DeductionResponse, len(ds))
	for i, d := range ds {
		out[i] = ToDeductionResponse(d)
	}
	return out
}

// LedgerResponse represents a deduction with its installment history
type LedgerResponse struct {
	Deduction    DeductionResponse               `json:"deduction"`
	Installments []*payroll.DeductionInstallment `json:"installments"`
	AppliedTotal decimal.Decimal                 `json:"applied_total"`
}

// ChannelResponse represents an employee's payment channel
type ChannelResponse struct {
	Kind         string                `json:"kind"`
	BankAccounts []payroll.BankAccount `json:"bank_accounts,omitempty"`
	Wallet       *payroll.Wallet       `json:"wallet,omitempty"`
}

// EmployeeResponse represents an employee
type EmployeeResponse struct {
	ID                 uuid.UUID                  `json:"id"`
	EmployeeNumber     string                     `json:"employee_number"`
	Name               string                     `json:"name"`
	Email              string                     `json:"email"`
	BasicSalary        decimal.Decimal            `json:"basic_salary"`
	Active             bool                       `json:"active"`
	AllowanceOverrides map[string]decimal.Decimal `json:"allowance_overrides,omitempty"`
	PaymentChannel     ChannelResponse            `json:"payment_channel"`
	CreatedAt          time.Time                  `json:"created_at"`
	Version            int                        `json:"version"`
}

// ToEmployeeResponse converts an employee to its response
func ToEmployeeResponse(e *payroll.Employee) EmployeeResponse {
	return EmployeeResponse{
		ID:                 e.ID,
		EmployeeNumber:     e.EmployeeNumber,
		Name:               e.Name,
		Email:              e.Email,
		BasicSalary:        e.BasicSalary,
		Active:             e.Active,
		AllowanceOverrides: e.AllowanceOverrides,
		PaymentChannel: ChannelResponse{
			Kind:         string(e.ActiveChannel()),
			BankAccounts: e.BankAccounts,
			Wallet:       e.Wallet,
		},
		CreatedAt: e.CreatedAt,
		Version:   e.Version,
	}
}

// ToEmployeeResponses converts employees to responses
func ToEmployeeResponses(es []*payroll.Employee) []EmployeeResponse {
	out := make([]EmployeeResponse, len(es))
	for i, e := range es {
		out[i] = ToEmployeeResponse(e)
	}
	return out
}

// DestinationResponse represents a resolved payment destination
type DestinationResponse struct {
	Resolved    bool                        `json:"resolved"`
	Destination *payroll.PaymentDestination `json:"destination,omitempty"`
}

// DocumentResponse represents an employee document
type DocumentResponse struct {
	ID           uuid.UUID  `json:"id"`
	EmployeeID   uuid.UUID  `json:"employee_id"`
	Kind         string     `json:"kind"`
	FileName     string     `json:"file_name"`
	ContentType  string     `json:"content_type"`
	SizeBytes    int64      `json:"size_bytes"`
	Status       string     `json:"status"`
	RecordID     *uuid.UUID `json:"record_id,omitempty"`
	RegisteredAt *time.Time `json:"registered_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// ToDocumentResponse converts a document to its response
func ToDocumentResponse(d *payroll.EmployeeDocument) DocumentResponse {
	return DocumentResponse{
		ID:           d.ID,
		EmployeeID:   d.EmployeeID,
		Kind:         string(d.Kind),
		FileName:     d.FileName,
		ContentType:  d.ContentType,
		SizeBytes:    d.SizeBytes,
		Status:       string(d.Status),
		RecordID:     d.RecordID,
		RegisteredAt: d.RegisteredAt,
		CreatedAt:    d.CreatedAt,
	}
}

// UploadURLResponse represents a pending document with its upload link
type UploadURLResponse struct {
	Document  DocumentResponse `json:"document"`
	UploadURL string           `json:"upload_url"`
	ExpiresAt time.Time        `json:"expires_at"`
}
