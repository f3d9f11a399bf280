package payroll

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/hrpay/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// EmployeeInput holds the directory fields of an employee
type EmployeeInput struct {
	EmployeeNumber string
	Name           string
	Email          string
	BasicSalary    decimal.Decimal
}

// Employee is the directory entry the payroll core reads. It owns the
// payment channel, a single slot holding bank accounts, a wallet or nothing.
type Employee struct {
	shared.TenantAggregateRoot
	EmployeeNumber     string                     `json:"employee_number"`
	Name               string                     `json:"name"`
	Email              string                     `json:"email"`
	BasicSalary        decimal.Decimal            `json:"basic_salary"`
	Active             bool                       `json:"active"`
	AllowanceOverrides map[string]decimal.Decimal `json:"allowance_overrides,omitempty"`
	BankAccounts       []BankAccount              `json:"bank_accounts"`
	Wallet             *Wallet                    `json:"wallet,omitempty"`
}

// NewEmployee creates an active employee without a payment channel
func NewEmployee(businessID uuid.UUID, in EmployeeInput) (*Employee, error) {
	var details []string
	name := strings.TrimSpace(in.Name)
	if name == "" {
		details = append(details, "name is required")
	}
	if in.Email != "" {
		if _, err := mail.ParseAddress(in.Email); err != nil {
			details = append(details, "email is not a valid address")
		}
	}
	if in.BasicSalary.IsNegative() {
		details = append(details, "basic_salary cannot be negative")
	}
	if len(details) > 0 {
		return nil, shared.NewValidationError("invalid employee", details...)
	}
	return &Employee{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(businessID),
		EmployeeNumber:      strings.TrimSpace(in.EmployeeNumber),
		Name:                name,
		Email:               strings.TrimSpace(in.Email),
		BasicSalary:         in.BasicSalary,
		Active:              true,
		AllowanceOverrides:  make(map[string]decimal.Decimal),
	}, nil
}

// Deactivate removes the employee from future payroll runs
func (e *Employee) Deactivate() {
	if !e.Active {
		return
	}
	e.Active = false
	e.Touch()
}

// Activate includes the employee in future payroll runs
func (e *Employee) Activate() {
	if e.Active {
		return
	}
	e.Active = true
	e.Touch()
}

// SetAllowanceOverride pins the employee's amount for a named allowance
func (e *Employee) SetAllowanceOverride(name string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return shared.NewValidationError(fmt.Sprintf("allowance override %q cannot be negative", name))
	}
	if e.AllowanceOverrides == nil {
		e.AllowanceOverrides = make(map[string]decimal.Decimal)
	}
	e.AllowanceOverrides[name] = amount
	e.Touch()
	return nil
}

// ActiveChannel returns the populated channel variant
func (e *Employee) ActiveChannel() ChannelKind {
	switch {
	case len(e.BankAccounts) > 0:
		return ChannelKindBank
	case e.Wallet != nil:
		return ChannelKindWallet
	default:
		return ChannelKindNone
	}
}

// SetBankChannel replaces the channel with the given accounts, clearing any wallet
func (e *Employee) SetBankChannel(accounts []BankAccount) error {
	if err := ValidateBankAccounts(accounts); err != nil {
		return err
	}
	next := make([]BankAccount, len(accounts))
	for i, a := range accounts {
		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}
		next[i] = a
	}
	previous := e.ActiveChannel()
	e.Wallet = nil
	e.BankAccounts = next
	e.Touch()
	e.AddDomainEvent(NewPaymentChannelChangedEvent(e, previous))
	return nil
}

// SetWalletChannel replaces the channel with a wallet, clearing any bank accounts
func (e *Employee) SetWalletChannel(w *Wallet) error {
	if w == nil {
		return shared.NewValidationError("wallet is required")
	}
	previous := e.ActiveChannel()
	e.BankAccounts = nil
	e.Wallet = w
	e.Touch()
	e.AddDomainEvent(NewPaymentChannelChangedEvent(e, previous))
	return nil
}

// ClearChannel removes the active channel. An empty kind clears whichever is
// active; a kind that differs from the active channel is rejected.
func (e *Employee) ClearChannel(kind ChannelKind) error {
	active := e.ActiveChannel()
	if kind != "" && kind != active && active != ChannelKindNone {
		return shared.NewGuardViolation(RuleChannelKindMismatch,
			fmt.Sprintf("cannot clear %s channel while %s channel is active", kind, active))
	}
	if active == ChannelKindNone {
		return nil
	}
	e.BankAccounts = nil
	e.Wallet = nil
	e.Touch()
	e.AddDomainEvent(NewPaymentChannelChangedEvent(e, active))
	return nil
}

// AddBankAccount appends an account to an existing bank channel.
// It refuses to run while a wallet is configured.
func (e *Employee) AddBankAccount(account BankAccount) error {
	if e.Wallet != nil {
		return ErrChannelSwitchNotAtomic(ChannelKindWallet)
	}
	candidate := append(append([]BankAccount(nil), e.BankAccounts...), account)
	if err := ValidateBankAccounts(candidate); err != nil {
		return err
	}
	if account.ID == uuid.Nil {
		candidate[len(candidate)-1].ID = uuid.New()
	}
	previous := e.ActiveChannel()
	e.BankAccounts = candidate
	e.Touch()
	e.AddDomainEvent(NewPaymentChannelChangedEvent(e, previous))
	return nil
}

// AttachWallet sets a wallet when no bank accounts are configured
func (e *Employee) AttachWallet(w *Wallet) error {
	if len(e.BankAccounts) > 0 {
		return ErrChannelSwitchNotAtomic(ChannelKindBank)
	}
	return e.SetWalletChannel(w)
}

// ResolvePrimary picks the transfer destination: the primary account, else
// the first account, else an active wallet. ok is false when nothing resolves.
func (e *Employee) ResolvePrimary() (dest PaymentDestination, ok bool) {
	if len(e.BankAccounts) > 0 {
		acct := e.BankAccounts[0]
		for _, a := range e.BankAccounts {
			if a.IsPrimary {
				acct = a
				break
			}
		}
		return PaymentDestination{
			Kind:          ChannelKindBank,
			BankName:      acct.BankName,
			AccountNumber: acct.AccountNumber,
			AccountType:   acct.AccountType,
		}, true
	}
	if e.Wallet != nil && e.Wallet.IsActive {
		return PaymentDestination{
			Kind:        ChannelKindWallet,
			WalletID:    e.Wallet.WalletID,
			PhoneNumber: e.Wallet.PhoneNumber,
		}, true
	}
	return PaymentDestination{Kind: ChannelKindNone}, false
}
