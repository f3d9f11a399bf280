package payroll

import (
	"context"

	"github.com/google/uuid"
	"github.com/hrpay/backend/internal/domain/payroll"
	"github.com/hrpay/backend/internal/domain/shared"
	"github.com/hrpay/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// PaymentChannelBinder maintains the bank XOR wallet channel of employees.
// Every switch is one version-guarded save of the employee aggregate, so a
// failure leaves the previous channel intact.
type PaymentChannelBinder struct {
	txScope        TransactionScope
	employeeRepo   payroll.EmployeeRepository
	eventPublisher shared.EventPublisher
	logger         *zap.Logger
}

// NewPaymentChannelBinder creates a new PaymentChannelBinder
func NewPaymentChannelBinder(txScope TransactionScope, employeeRepo payroll.EmployeeRepository, logger *zap.Logger) *PaymentChannelBinder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentChannelBinder{
		txScope:      txScope,
		employeeRepo: employeeRepo,
		logger:       logger,
	}
}

// SetEventPublisher sets the event publisher for channel change events
func (b *PaymentChannelBinder) SetEventPublisher(publisher shared.EventPublisher) {
	b.eventPublisher = publisher
}

// SetBankChannel replaces the employee's channel with bank accounts, clearing any wallet
func (b *PaymentChannelBinder) SetBankChannel(ctx context.Context, businessID, employeeID uuid.UUID, accounts []payroll.BankAccount) (*payroll.Employee, error) {
	if err := payroll.ValidateBankAccounts(accounts); err != nil {
		return nil, err
	}
	return b.mutate(ctx, businessID, employeeID, "set_bank", func(e *payroll.Employee) error {
		return e.SetBankChannel(accounts)
	})
}

// SetWalletChannel replaces the employee's channel with a mobile wallet, clearing any bank accounts
func (b *PaymentChannelBinder) SetWalletChannel(ctx context.Context, businessID, employeeID uuid.UUID, walletID, phone string, isActive bool) (*payroll.Employee, error) {
	wallet, err := payroll.NewWallet(walletID, phone, isActive)
	if err != nil {
		return nil, err
	}
	return b.mutate(ctx, businessID, employeeID, "set_wallet", func(e *payroll.Employee) error {
		return e.SetWalletChannel(wallet)
	})
}

// ClearChannel removes the active channel. A non-empty kind must match it.
func (b *PaymentChannelBinder) ClearChannel(ctx context.Context, businessID, employeeID uuid.UUID, kind payroll.ChannelKind) (*payroll.Employee, error) {
	return b.mutate(ctx, businessID, employeeID, "clear", func(e *payroll.Employee) error {
		return e.ClearChannel(kind)
	})
}

// AddBankAccount appends an account to an existing bank channel. It is
// rejected with CHANNEL_SWITCH_NOT_ATOMIC while a wallet is configured.
func (b *PaymentChannelBinder) AddBankAccount(ctx context.Context, businessID, employeeID uuid.UUID, account payroll.BankAccount) (*payroll.Employee, error) {
	return b.mutate(ctx, businessID, employeeID, "add_bank_account", func(e *payroll.Employee) error {
		return e.AddBankAccount(account)
	})
}

// AttachWallet sets a wallet on an employee without bank accounts. It is
// rejected with CHANNEL_SWITCH_NOT_ATOMIC while bank accounts exist.
func (b *PaymentChannelBinder) AttachWallet(ctx context.Context, businessID, employeeID uuid.UUID, walletID, phone string, isActive bool) (*payroll.Employee, error) {
	wallet, err := payroll.NewWallet(walletID, phone, isActive)
	if err != nil {
		return nil, err
	}
	return b.mutate(ctx, businessID, employeeID, "attach_wallet", func(e *payroll.Employee) error {
		return e.AttachWallet(wallet)
	})
}

// ResolvePrimary returns the transfer destination of an employee.
// ok is false when the employee has no usable channel.
func (b *PaymentChannelBinder) ResolvePrimary(ctx context.Context, businessID, employeeID uuid.UUID) (payroll.PaymentDestination, bool, error) {
	e, err := b.employeeRepo.FindByID(ctx, businessID, employeeID)
	if err != nil {
		return payroll.PaymentDestination{}, false, err
	}
	dest, ok := e.ResolvePrimary()
	return dest, ok, nil
}

// ResolveMany resolves destinations for a set of employees in one query.
// Employees without a usable channel are absent from the result.
func (b *PaymentChannelBinder) ResolveMany(ctx context.Context, businessID uuid.UUID, employeeIDs []uuid.UUID) (map[uuid.UUID]payroll.PaymentDestination, error) {
	employees, err := b.employeeRepo.FindByIDs(ctx, businessID, employeeIDs)
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]payroll.PaymentDestination, len(employees))
	for id, e := range employees {
		if dest, ok := e.ResolvePrimary(); ok {
			out[id] = dest
		}
	}
	return out, nil
}

func (b *PaymentChannelBinder) mutate(
	ctx context.Context,
	businessID, employeeID uuid.UUID,
	op string,
	fn func(e *payroll.Employee) error,
) (*payroll.Employee, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment_channel", op)
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrBusinessID, businessID.String(),
		telemetry.SpanAttrEmployeeID, employeeID.String(),
	)

	var employee *payroll.Employee
	err := b.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		e, err := repos.EmployeeRepo().FindByID(ctx, businessID, employeeID)
		if err != nil {
			return err
		}
		before := e.Version
		if err := fn(e); err != nil {
			return err
		}
		if e.Version != before {
			if err := repos.EmployeeRepo().SaveWithLock(ctx, e); err != nil {
				return err
			}
		}
		employee = e
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	telemetry.SetAttribute(span, telemetry.SpanAttrChannelKind, string(employee.ActiveChannel()))
	b.logger.Info("payment channel updated",
		zap.String("business_id", businessID.String()),
		zap.String("employee_id", employeeID.String()),
		zap.String("operation", op),
		zap.String("channel", string(employee.ActiveChannel())),
	)
	publishEvents(ctx, b.eventPublisher, b.logger, employee)
	return employee, nil
}
