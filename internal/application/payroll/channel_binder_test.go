package payroll_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/hrpay/backend/internal/domain/payroll"
	"github.com/hrpay/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestPaymentChannelBinder_SwitchesAtomically(t *testing.T) {
	h := newHarness(t)
	alice := h.hire("Alice Njeri", 90000)

	_, ok, err := h.binder.ResolvePrimary(h.ctx, h.businessID, alice.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	h.withBank(alice)
	e, err := h.binder.AddBankAccount(h.ctx, h.businessID, alice.ID, payroll.BankAccount{
		BankName:      "KCB",
		AccountNumber: "9988776655",
		AccountType:   payroll.BankAccountCurrent,
	})
	require.NoError(t, err)
	assert.Len(t, e.BankAccounts, 2)

	_, err = h.binder.AttachWallet(h.ctx, h.businessID, alice.ID, "MPESA", "0712345678", true)
	require.Error(t, err)
	assert.Equal(t, payroll.RuleChannelSwitchNotAtomic, domainError(t, err).Rule)

	dest, ok, err := h.binder.ResolvePrimary(h.ctx, h.businessID, alice.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, payroll.ChannelKindBank, dest.Kind)
	assert.Equal(t, "Equity", dest.BankName, "primary account wins")

	e, err = h.binder.SetWalletChannel(h.ctx, h.businessID, alice.ID, "MPESA", "254712345678", true)
	require.NoError(t, err)
	assert.Empty(t, e.BankAccounts)
	require.NotNil(t, e.Wallet)
	assert.Equal(t, "+254712345678", e.Wallet.PhoneNumber)

	stored, err := h.employees.Get(h.ctx, h.businessID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, payroll.ChannelKindWallet, stored.ActiveChannel())
	assert.Empty(t, stored.BankAccounts)

	_, err = h.binder.AddBankAccount(h.ctx, h.businessID, alice.ID, payroll.BankAccount{
		BankName:      "KCB",
		AccountNumber: "1",
		AccountType:   payroll.BankAccountCurrent,
	})
	assert.Equal(t, payroll.RuleChannelSwitchNotAtomic, domainError(t, err).Rule)

	assert.NotEmpty(t, h.events.ofType(payroll.EventTypePaymentChannelChanged))
}

func TestPaymentChannelBinder_Validation(t *testing.T) {
	h := newHarness(t)
	alice := h.hire("Alice Njeri", 90000)

	_, err := h.binder.SetWalletChannel(h.ctx, h.businessID, alice.ID, "MPESA", "12345", true)
	assert.True(t, payroll.IsValidation(err))

	_, err = h.binder.SetBankChannel(h.ctx, h.businessID, alice.ID, nil)
	assert.True(t, payroll.IsValidation(err))

	_, err = h.binder.SetBankChannel(h.ctx, h.businessID, alice.ID, []payroll.BankAccount{
		{BankName: "Equity", AccountNumber: "1", AccountType: payroll.BankAccountSavings, IsPrimary: true},
		{BankName: "KCB", AccountNumber: "2", AccountType: payroll.BankAccountSavings, IsPrimary: true},
	})
	assert.True(t, payroll.IsValidation(err), "two primary accounts")

	_, err = h.binder.SetBankChannel(h.ctx, h.businessID, uuid.New(), []payroll.BankAccount{
		{BankName: "Equity", AccountNumber: "1", AccountType: payroll.BankAccountSavings},
	})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestPaymentChannelBinder_ClearChannel(t *testing.T) {
	h := newHarness(t)
	alice := h.hire("Alice Njeri", 90000)
	h.withWallet(alice)

	_, err := h.binder.ClearChannel(h.ctx, h.businessID, alice.ID, payroll.ChannelKindBank)
	assert.Equal(t, payroll.RuleChannelKindMismatch, domainError(t, err).Rule)

	e, err := h.binder.ClearChannel(h.ctx, h.businessID, alice.ID, payroll.ChannelKindWallet)
	require.NoError(t, err)
	assert.Equal(t, payroll.ChannelKindNone, e.ActiveChannel())

	// clearing an empty channel is a no-op
	_, err = h.binder.ClearChannel(h.ctx, h.businessID, alice.ID, "")
	assert.NoError(t, err)
}

func TestPaymentChannelBinder_InactiveWalletDoesNotResolve(t *testing.T) {
	h := newHarness(t)
	alice := h.hire("Alice Njeri", 90000)
	_, err := h.binder.SetWalletChannel(h.ctx, h.businessID, alice.ID, "MPESA", "0712345678", false)
	require.NoError(t, err)

	resolved, err := h.binder.ResolveMany(h.ctx, h.businessID, []uuid.UUID{alice.ID})
	require.NoError(t, err)
	assert.Empty(t, resolved)
}

func TestPaymentChannelBinder_FailedWalletInsertKeepsBank(t *testing.T) {
	h := newHarness(t)
	alice := h.hire("Alice Njeri", 90000)
	h.withBank(alice)

	require.NoError(t, h.db.Callback().Create().Before("gorm:create").Register("test:fail_wallet", func(db *gorm.DB) {
		if db.Statement.Table == "employee_wallets" {
			_ = db.AddError(errors.New("wallet insert failed"))
		}
	}))

	_, err := h.binder.SetWalletChannel(h.ctx, h.businessID, alice.ID, "MPESA", "0712345678", true)
	require.Error(t, err)

	stored, err := h.employees.Get(h.ctx, h.businessID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, payroll.ChannelKindBank, stored.ActiveChannel())
	assert.Len(t, stored.BankAccounts, 1)
	assert.Nil(t, stored.Wallet)
}
