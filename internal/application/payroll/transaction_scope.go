package payroll

import (
	"context"

	"github.com/hrpay/backend/internal/domain/payroll"
)

// TransactionScope provides transactional access to payroll repositories.
// Every repository handed to fn shares one database transaction which is
// committed when fn returns nil and rolled back otherwise.
type TransactionScope interface {
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides access to the payroll repositories within a transaction.
//
// Aggregate boundary notes:
//   - PeriodRepo owns the locked flag; the commit-time guard for paid periods
//     is a conditional update issued through it.
//   - RecordRepo writes status transitions as compare-and-set updates.
//   - EmployeeRepo persists the payment channel together with the employee row
//     so a channel switch is a single aggregate save.
//   - DeductionRepo and InstallmentRepo are always written together: every
//     change to a remaining amount has a matching ledger row.
type TransactionalRepositories interface {
	PeriodRepo() payroll.PeriodRepository
	RecordRepo() payroll.RecordRepository
	EmployeeRepo() payroll.EmployeeRepository
	DeductionRepo() payroll.CustomDeductionRepository
	InstallmentRepo() payroll.InstallmentRepository
	DocumentRepo() payroll.DocumentRepository
}

// Repositories bundles non-transactional repository handles.
// It doubles as the repository set of NoOpTransactionScope.
type Repositories struct {
	Periods      payroll.PeriodRepository
	Records      payroll.RecordRepository
	Employees    payroll.EmployeeRepository
	Deductions   payroll.CustomDeductionRepository
	Installments payroll.InstallmentRepository
	Documents    payroll.DocumentRepository
}

// NoOpTransactionScope runs fn against plain repositories without a transaction.
// This is useful for testing or when transaction support is not required.
type NoOpTransactionScope struct {
	repos Repositories
}

// NewNoOpTransactionScope creates a NoOpTransactionScope with the given repositories.
func NewNoOpTransactionScope(repos Repositories) *NoOpTransactionScope {
	return &NoOpTransactionScope{repos: repos}
}

// Execute runs the function without a real transaction.
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

func (s *NoOpTransactionScope) PeriodRepo() payroll.PeriodRepository { return s.repos.Periods }

func (s *NoOpTransactionScope) RecordRepo() payroll.RecordRepository { return s.repos.Records }

func (s *NoOpTransactionScope) EmployeeRepo() payroll.EmployeeRepository { return s.repos.Employees }

func (s *NoOpTransactionScope) DeductionRepo() payroll.CustomDeductionRepository {
	return s.repos.Deductions
}

func (s *NoOpTransactionScope) InstallmentRepo() payroll.InstallmentRepository {
	return s.repos.Installments
}

func (s *NoOpTransactionScope) DocumentRepo() payroll.DocumentRepository { return s.repos.Documents }

var _ TransactionScope = (*NoOpTransactionScope)(nil)
var _ TransactionalRepositories = (*NoOpTransactionScope)(nil)
