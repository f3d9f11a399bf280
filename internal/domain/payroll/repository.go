package payroll

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hrpay/backend/internal/domain/shared"
)

// PeriodRepository persists PayrollPeriod rows
type PeriodRepository interface {
	// FindByKey returns the period row or shared.ErrNotFound
	FindByKey(ctx context.Context, key PeriodKey) (*PayrollPeriod, error)

	// GetOrCreate returns the period row, inserting an unlocked one if missing
	GetOrCreate(ctx context.Context, key PeriodKey) (*PayrollPeriod, error)

	// CommitProcessing writes the processing run metadata with a conditional
	// update on locked = false. A locked row yields ErrPeriodAlreadyPaid.
	CommitProcessing(ctx context.Context, period *PayrollPeriod) error

	// Lock sets locked = true. Locking an already locked period is a no-op.
	Lock(ctx context.Context, periodID uuid.UUID, at time.Time) error
}

// RecordFilter defines filtering options for history queries
type RecordFilter struct {
	shared.Filter
	EmployeeID        *uuid.UUID
	Status            *RecordStatus
	IncludeSuperseded bool
}

// RecordRepository persists PayrollRecord rows
type RecordRepository interface {
	// FindByID finds a record of the business
	FindByID(ctx context.Context, businessID, id uuid.UUID) (*PayrollRecord, error)

	// FindByIDs finds records of the business; unknown ids are skipped
	FindByIDs(ctx context.Context, businessID uuid.UUID, ids []uuid.UUID) ([]*PayrollRecord, error)

	// FindCurrentByPeriod returns the non-superseded records of a period
	FindCurrentByPeriod(ctx context.Context, key PeriodKey) ([]*PayrollRecord, error)

	// FindHistory lists records of a period with filters
	FindHistory(ctx context.Context, key PeriodKey, filter RecordFilter) ([]*PayrollRecord, int64, error)

	// CountPaid counts Paid records of a period, superseded or not
	CountPaid(ctx context.Context, key PeriodKey) (int64, error)

	// CreateBatch inserts new records
	CreateBatch(ctx context.Context, records []*PayrollRecord) error

	// SupersedeCurrent marks every current record of the period as superseded
	// and returns their ids. Paid records are never superseded.
	SupersedeCurrent(ctx context.Context, key PeriodKey, at time.Time) ([]uuid.UUID, error)

	// SaveTransition writes a status change with a conditional update on
	// (id, from, version-1). Zero affected rows yields shared.ErrConcurrencyConflict.
	SaveTransition(ctx context.Context, record *PayrollRecord, from RecordStatus) error
}

// EmployeeFilter defines filtering options for employee queries
type EmployeeFilter struct {
	shared.Filter
	Active *bool
}

// EmployeeRepository persists Employee aggregates including the payment channel
type EmployeeRepository interface {
	// FindByID finds an employee of the business
	FindByID(ctx context.Context, businessID, id uuid.UUID) (*Employee, error)

	// FindByIDs finds employees of the business keyed by id
	FindByIDs(ctx context.Context, businessID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]*Employee, error)

	// FindActive returns every active employee of the business ordered by name
	FindActive(ctx context.Context, businessID uuid.UUID) ([]*Employee, error)

	// FindAll lists employees with pagination
	FindAll(ctx context.Context, businessID uuid.UUID, filter EmployeeFilter) ([]*Employee, int64, error)

	// Create inserts a new employee
	Create(ctx context.Context, employee *Employee) error

	// SaveWithLock updates the employee and replaces its channel rows,
	// guarded by the aggregate version
	SaveWithLock(ctx context.Context, employee *Employee) error
}

// CustomDeductionRepository persists CustomDeduction aggregates
type CustomDeductionRepository interface {
	// FindByID finds a deduction of the business
	FindByID(ctx context.Context, businessID, id uuid.UUID) (*CustomDeduction, error)

	// FindByIDs finds deductions of the business keyed by id
	FindByIDs(ctx context.Context, businessID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]*CustomDeduction, error)

	// FindByEmployee lists every deduction of an employee, newest first
	FindByEmployee(ctx context.Context, businessID, employeeID uuid.UUID) ([]*CustomDeduction, error)

	// FindActive returns the active deductions of the given employees
	FindActive(ctx context.Context, businessID uuid.UUID, employeeIDs []uuid.UUID) ([]*CustomDeduction, error)

	// Create inserts a new deduction
	Create(ctx context.Context, deduction *CustomDeduction) error

	// SaveWithLock updates the deduction guarded by its version
	SaveWithLock(ctx context.Context, deduction *CustomDeduction) error
}

// InstallmentRepository is the append-mostly ledger of applied installments
type InstallmentRepository interface {
	// CreateBatch inserts ledger rows
	CreateBatch(ctx context.Context, installments []*DeductionInstallment) error

	// FindOpenByRecords returns the non-reversed installments of the given records
	FindOpenByRecords(ctx context.Context, recordIDs []uuid.UUID) ([]*DeductionInstallment, error)

	// FindByDeduction returns every installment of a deduction in period order
	FindByDeduction(ctx context.Context, deductionID uuid.UUID) ([]*DeductionInstallment, error)

	// MarkReversed stamps reversed_at on the given rows
	MarkReversed(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

// DocumentRepository persists EmployeeDocument rows
type DocumentRepository interface {
	FindByID(ctx context.Context, businessID, id uuid.UUID) (*EmployeeDocument, error)
	FindByEmployee(ctx context.Context, businessID, employeeID uuid.UUID) ([]*EmployeeDocument, error)
	Create(ctx context.Context, doc *EmployeeDocument) error
	SaveWithLock(ctx context.Context, doc *EmployeeDocument) error
}
