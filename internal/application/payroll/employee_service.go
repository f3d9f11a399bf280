package payroll

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hrpay/backend/internal/domain/payroll"
	"go.uber.org/zap"
)

// EmployeeService maintains the employee directory read by payroll runs
type EmployeeService struct {
	txScope      TransactionScope
	employeeRepo payroll.EmployeeRepository
	logger       *zap.Logger
}

// NewEmployeeService creates a new EmployeeService
func NewEmployeeService(txScope TransactionScope, employeeRepo payroll.EmployeeRepository, logger *zap.Logger) *EmployeeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmployeeService{txScope: txScope, employeeRepo: employeeRepo, logger: logger}
}

// Create adds an employee
func (s *EmployeeService) Create(ctx context.Context, businessID uuid.UUID, req CreateEmployeeRequest) (*payroll.Employee, error) {
	e, err := payroll.NewEmployee(businessID, payroll.EmployeeInput{
		EmployeeNumber: req.EmployeeNumber,
		Name:           req.Name,
		Email:          req.Email,
		BasicSalary:    req.BasicSalary,
	})
	if err != nil {
		return nil, err
	}
	for name, amount := range req.AllowanceOverrides {
		if err := e.SetAllowanceOverride(name, amount); err != nil {
			return nil, err
		}
	}
	if err := s.employeeRepo.Create(ctx, e); err != nil {
		return nil, fmt.Errorf("failed to create employee: %w", err)
	}
	s.logger.Info("employee created",
		zap.String("business_id", businessID.String()),
		zap.String("employee_id", e.ID.String()),
	)
	return e, nil
}

// Get returns one employee
func (s *EmployeeService) Get(ctx context.Context, businessID, employeeID uuid.UUID) (*payroll.Employee, error) {
	return s.employeeRepo.FindByID(ctx, businessID, employeeID)
}

// List returns a page of employees
func (s *EmployeeService) List(ctx context.Context, businessID uuid.UUID, filter payroll.EmployeeFilter) ([]*payroll.Employee, int64, error) {
	return s.employeeRepo.FindAll(ctx, businessID, filter)
}

// SetActive includes or excludes the employee from future payroll runs
func (s *EmployeeService) SetActive(ctx context.Context, businessID, employeeID uuid.UUID, active bool) (*payroll.Employee, error) {
	var employee *payroll.Employee
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		e, err := repos.EmployeeRepo().FindByID(ctx, businessID, employeeID)
		if err != nil {
			return err
		}
		before := e.Version
		if active {
			e.Activate()
		} else {
			e.Deactivate()
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
		return nil, err
	}
	return employee, nil
}
