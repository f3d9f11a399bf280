package payroll

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/hrpay/backend/internal/domain/shared"
)

// ChannelKind identifies the populated variant of an employee's payment channel
type ChannelKind string

const (
	ChannelKindNone   ChannelKind = "NONE"
	ChannelKindBank   ChannelKind = "BANK"
	ChannelKindWallet ChannelKind = "WALLET"
)

// IsValid checks if the kind is known
func (k ChannelKind) IsValid() bool {
	switch k {
	case ChannelKindNone, ChannelKindBank, ChannelKindWallet:
		return true
	}
	return false
}

// ParseChannelKind accepts bank/wallet case-insensitively; empty means "whichever is active"
func ParseChannelKind(s string) (ChannelKind, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "", nil
	}
	k := ChannelKind(s)
	if k != ChannelKindBank && k != ChannelKindWallet {
		return "", shared.NewValidationError(fmt.Sprintf("unknown payment channel kind %q", s))
	}
	return k, nil
}

// BankAccountType enumerates account types a bank transfer may target
type BankAccountType string

const (
	BankAccountSavings BankAccountType = "SAVINGS"
	BankAccountCurrent BankAccountType = "CURRENT"
)

// BankAccount is one bank destination of an employee
type BankAccount struct {
	ID            uuid.UUID       `json:"id"`
	BankName      string          `json:"bank_name"`
	AccountNumber string          `json:"account_number"`
	AccountType   BankAccountType `json:"account_type"`
	IsPrimary     bool            `json:"is_primary"`
}

// Wallet is a mobile-money destination of an employee
type Wallet struct {
	WalletID    string `json:"wallet_id"`
	PhoneNumber string `json:"phone_number"`
	IsActive    bool   `json:"is_active"`
}

// ValidateBankAccounts checks the account list of a bank channel:
// at least one account, required fields present, at most one primary.
func ValidateBankAccounts(accounts []BankAccount) error {
	if len(accounts) == 0 {
		return shared.NewValidationError("at least one bank account is required")
	}
	var details []string
	primaries := 0
	for i, a := range accounts {
		if strings.TrimSpace(a.BankName) == "" {
			details = append(details, fmt.Sprintf("accounts[%d].bank_name is required", i))
		}
		if strings.TrimSpace(a.AccountNumber) == "" {
			details = append(details, fmt.Sprintf("accounts[%d].account_number is required", i))
		}
		if a.AccountType != BankAccountSavings && a.AccountType != BankAccountCurrent {
			details = append(details, fmt.Sprintf("accounts[%d].account_type %q is not supported", i, a.AccountType))
		}
		if a.IsPrimary {
			primaries++
		}
	}
	if primaries > 1 {
		details = append(details, "at most one account can be primary")
	}
	if len(details) > 0 {
		return shared.NewValidationError("invalid bank accounts", details...)
	}
	return nil
}

var (
	phoneLocal        = regexp.MustCompile(`^07\d{8}$`)
	phoneShort        = regexp.MustCompile(`^7\d{8}$`)
	phoneIntl         = regexp.MustCompile(`^\+254\d{9}$`)
	phoneIntlNoPrefix = regexp.MustCompile(`^254\d{9}$`)
)

// NormalizePhoneNumber accepts 07XXXXXXXX, 7XXXXXXXX, +254XXXXXXXXX and
// 254XXXXXXXXX and returns the +254 form.
func NormalizePhoneNumber(raw string) (string, error) {
	p := strings.ReplaceAll(strings.TrimSpace(raw), " ", "")
	switch {
	case phoneLocal.MatchString(p):
		return "+254" + p[1:], nil
	case phoneShort.MatchString(p):
		return "+254" + p, nil
	case phoneIntl.MatchString(p):
		return p, nil
	case phoneIntlNoPrefix.MatchString(p):
		return "+" + p, nil
	}
	return "", shared.NewValidationError(fmt.Sprintf("phone number %q must match 07XXXXXXXX, 7XXXXXXXX, +254XXXXXXXXX or 254XXXXXXXXX", raw))
}

// IsValidPhoneNumber reports whether the phone number is in an accepted format
func IsValidPhoneNumber(raw string) bool {
	_, err := NormalizePhoneNumber(raw)
	return err == nil
}

// NewWallet validates the phone number and builds a Wallet
func NewWallet(walletID, phone string, isActive bool) (*Wallet, error) {
	walletID = strings.TrimSpace(walletID)
	if walletID == "" {
		return nil, shared.NewValidationError("wallet id is required")
	}
	normalized, err := NormalizePhoneNumber(phone)
	if err != nil {
		return nil, err
	}
	return &Wallet{WalletID: walletID, PhoneNumber: normalized, IsActive: isActive}, nil
}

// PaymentDestination is the resolved transfer target of an employee
type PaymentDestination struct {
	Kind          ChannelKind     `json:"kind"`
	BankName      string          `json:"bank_name,omitempty"`
	AccountNumber string          `json:"account_number,omitempty"`
	AccountType   BankAccountType `json:"account_type,omitempty"`
	WalletID      string          `json:"wallet_id,omitempty"`
	PhoneNumber   string          `json:"phone_number,omitempty"`
}
