package payroll

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Collaborator names used in RemoteError messages
const (
	CollaboratorTaxEngine      = "tax engine"
	CollaboratorPaymentGateway = "payment gateway"
	CollaboratorObjectStorage  = "object storage"
)

var (
	ErrTaxEngineUnavailable = errors.New("taxengine: service unavailable")
	ErrGatewayUnavailable   = errors.New("disbursement: gateway unavailable")
	ErrGatewayRequestFailed = errors.New("disbursement: gateway request failed")
	ErrGatewayBadResponse   = errors.New("disbursement: invalid gateway response")
)

// TaxRequest asks the tax engine for one employee's statutory amounts
type TaxRequest struct {
	BusinessID     uuid.UUID       `json:"business_id"`
	EmployeeID     uuid.UUID       `json:"employee_id"`
	Month          int             `json:"month"`
	Year           int             `json:"year"`
	BasicSalary    decimal.Decimal `json:"basic_salary"`
	GrossSalary    decimal.Decimal `json:"gross_salary"`
	TaxableIncome  decimal.Decimal `json:"taxable_income"`
	Kinds          []StatutoryKind `json:"kinds"`
	PersonalRelief bool            `json:"personal_relief"`
}

// TaxResult is the tax engine's answer for one employee
type TaxResult struct {
	TaxableIncome decimal.Decimal                   `json:"taxable_income"`
	Amounts       map[StatutoryKind]decimal.Decimal `json:"amounts"`
}

// TaxCalculator computes statutory deductions. Formulas live in the engine.
type TaxCalculator interface {
	Calculate(ctx context.Context, req TaxRequest) (*TaxResult, error)
}

// TransferRequest is one payout instruction
type TransferRequest struct {
	BusinessID  uuid.UUID          `json:"business_id"`
	Reference   string             `json:"reference"`
	EmployeeID  uuid.UUID          `json:"employee_id"`
	Amount      decimal.Decimal    `json:"amount"`
	Currency    string             `json:"currency"`
	Destination PaymentDestination `json:"destination"`
	Narration   string             `json:"narration"`
}

// TransferResult is the gateway's decision on a transfer. A declined
// transfer is a result, not an error; errors mean the outcome is unknown.
type TransferResult struct {
	Accepted   bool   `json:"accepted"`
	ExternalID string `json:"external_id"`
	Reason     string `json:"reason,omitempty"`
}

// PaymentGateway executes transfers to bank accounts and mobile wallets
type PaymentGateway interface {
	Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
}
