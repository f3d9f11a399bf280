package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/hrpay/backend/internal/domain/payroll"
	"github.com/hrpay/backend/internal/domain/shared"
	"github.com/hrpay/backend/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormEmployeeRepository implements payroll.EmployeeRepository using GORM.
// Bank accounts and the wallet are child rows of the employee and are
// rewritten together with it.
type GormEmployeeRepository struct {
	db *gorm.DB
}

// NewGormEmployeeRepository creates a new GormEmployeeRepository
func NewGormEmployeeRepository(db *gorm.DB) *GormEmployeeRepository {
	return &GormEmployeeRepository{db: db}
}

func (r *GormEmployeeRepository) withChannel(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("BankAccounts", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Preload("Wallet")
}

// FindByID finds an employee of the business
func (r *GormEmployeeRepository) FindByID(ctx context.Context, businessID, id uuid.UUID) (*payroll.Employee, error) {
	var model models.EmployeeModel
	if err := r.withChannel(ctx).
		Where("tenant_id = ? AND id = ?", businessID, id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDs finds employees of the business keyed by id
func (r *GormEmployeeRepository) FindByIDs(ctx context.Context, businessID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]*payroll.Employee, error) {
	out := make(map[uuid.UUID]*payroll.Employee, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.EmployeeModel
	if err := r.withChannel(ctx).
		Where("tenant_id = ? AND id IN ?", businessID, ids).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		out[rows[i].ID] = rows[i].ToDomain()
	}
	return out, nil
}

// FindActive returns every active employee of the business ordered by name
func (r *GormEmployeeRepository) FindActive(ctx context.Context, businessID uuid.UUID) ([]*payroll.Employee, error) {
	var rows []models.EmployeeModel
	if err := r.withChannel(ctx).
		Where("tenant_id = ? AND active = ?", businessID, true).
		Order("name ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toEmployees(rows), nil
}

// FindAll lists employees with pagination
func (r *GormEmployeeRepository) FindAll(ctx context.Context, businessID uuid.UUID, filter payroll.EmployeeFilter) ([]*payroll.Employee, int64, error) {
	var total int64
	countQuery := r.applyFilter(r.db.WithContext(ctx).Model(&models.EmployeeModel{}).Where("tenant_id = ?", businessID), filter)
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query := r.applyFilter(r.withChannel(ctx).Model(&models.EmployeeModel{}).Where("tenant_id = ?", businessID), filter)
	query = query.Order(orderClause(filter.Filter, employeeSortColumns, "name"))
	if filter.Page > 0 && filter.PageSize > 0 {
		query = query.Offset(filter.Offset()).Limit(filter.Limit())
	}

	var rows []models.EmployeeModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return toEmployees(rows), total, nil
}

func (r *GormEmployeeRepository) applyFilter(query *gorm.DB, filter payroll.EmployeeFilter) *gorm.DB {
	if filter.Active != nil {
		query = query.Where("active = ?", *filter.Active)
	}
	if filter.Search != "" {
		pattern := "%" + strings.ToLower(filter.Search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(employee_number) LIKE ?", pattern, pattern)
	}
	return query
}

// Create inserts a new employee together with its channel rows
func (r *GormEmployeeRepository) Create(ctx context.Context, employee *payroll.Employee) error {
	return r.db.WithContext(ctx).Create(models.EmployeeModelFromDomain(employee)).Error
}

// SaveWithLock updates the employee guarded by its version and replaces the
// channel rows. Callers run it inside a transaction so a channel switch
// never leaves both kinds, or neither, visible.
func (r *GormEmployeeRepository) SaveWithLock(ctx context.Context, employee *payroll.Employee) error {
	model := models.EmployeeModelFromDomain(employee)
	db := r.db.WithContext(ctx)

	result := db.Model(&models.EmployeeModel{}).
		Where("id = ? AND tenant_id = ? AND version = ?", employee.ID, employee.TenantID, employee.Version-1).
		Updates(map[string]interface{}{
			"employee_number":     model.EmployeeNumber,
			"name":                model.Name,
			"email":               model.Email,
			"basic_salary":        model.BasicSalary,
			"active":              model.Active,
			"allowance_overrides": overridesJSON(model.AllowanceOverrides),
			"version":             model.Version,
			"updated_at":          model.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}

	if err := db.Where("employee_id = ?", employee.ID).Delete(&models.BankAccountModel{}).Error; err != nil {
		return err
	}
	if err := db.Where("employee_id = ?", employee.ID).Delete(&models.WalletModel{}).Error; err != nil {
		return err
	}
	if len(model.BankAccounts) > 0 {
		if err := db.Create(&model.BankAccounts).Error; err != nil {
			return err
		}
	}
	if model.Wallet != nil {
		if err := db.Create(model.Wallet).Error; err != nil {
			return err
		}
	}
	return nil
}

// overridesJSON encodes the override map the way the json serializer stores it;
// map updates bypass the field serializer.
func overridesJSON(overrides map[string]decimal.Decimal) string {
	if overrides == nil {
		return "null"
	}
	b, err := json.Marshal(overrides)
	if err != nil {
		return "null"
	}
	return string(b)
}

func toEmployees(rows []models.EmployeeModel) []*payroll.Employee {
	out := make([]*payroll.Employee, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out
}

// Ensure GormEmployeeRepository implements EmployeeRepository
var _ payroll.EmployeeRepository = (*GormEmployeeRepository)(nil)
