package persistence

import (
	"context"

	apppayroll "github.com/hrpay/backend/internal/application/payroll"
	"github.com/hrpay/backend/internal/domain/payroll"
	"gorm.io/gorm"
)

// GormTransactionScope implements TransactionScope using GORM transactions.
// It provides atomic execution of multiple repository operations.
type GormTransactionScope struct {
	db *gorm.DB
}

// NewGormTransactionScope creates a new GormTransactionScope.
func NewGormTransactionScope(db *gorm.DB) *GormTransactionScope {
	return &GormTransactionScope{db: db}
}

// Execute runs fn within a database transaction. The transaction is rolled
// back when fn returns an error and committed otherwise.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos apppayroll.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTransactionalRepositories{tx: tx})
	})
}

// gormTransactionalRepositories hands out repositories bound to one transaction.
type gormTransactionalRepositories struct {
	tx *gorm.DB
}

func (r *gormTransactionalRepositories) PeriodRepo() payroll.PeriodRepository {
	return NewGormPeriodRepository(r.tx)
}

func (r *gormTransactionalRepositories) RecordRepo() payroll.RecordRepository {
	return NewGormRecordRepository(r.tx)
}

func (r *gormTransactionalRepositories) EmployeeRepo() payroll.EmployeeRepository {
	return NewGormEmployeeRepository(r.tx)
}

func (r *gormTransactionalRepositories) DeductionRepo() payroll.CustomDeductionRepository {
	return NewGormCustomDeductionRepository(r.tx)
}

func (r *gormTransactionalRepositories) InstallmentRepo() payroll.InstallmentRepository {
	return NewGormInstallmentRepository(r.tx)
}

func (r *gormTransactionalRepositories) DocumentRepo() payroll.DocumentRepository {
	return NewGormDocumentRepository(r.tx)
}

// NewPayrollRepositories builds the non-transactional repository set
func NewPayrollRepositories(db *gorm.DB) apppayroll.Repositories {
	return apppayroll.Repositories{
		Periods:      NewGormPeriodRepository(db),
		Records:      NewGormRecordRepository(db),
		Employees:    NewGormEmployeeRepository(db),
		Deductions:   NewGormCustomDeductionRepository(db),
		Installments: NewGormInstallmentRepository(db),
		Documents:    NewGormDocumentRepository(db),
	}
}

// Ensure GormTransactionScope implements TransactionScope
var _ apppayroll.TransactionScope = (*GormTransactionScope)(nil)

// Ensure gormTransactionalRepositories implements TransactionalRepositories
var _ apppayroll.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
