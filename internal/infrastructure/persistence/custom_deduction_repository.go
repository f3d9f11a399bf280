package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/hrpay/backend/internal/domain/payroll"
	"github.com/hrpay/backend/internal/domain/shared"
	"github.com/hrpay/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormCustomDeductionRepository implements payroll.CustomDeductionRepository using GORM
type GormCustomDeductionRepository struct {
	db *gorm.DB
}

// NewGormCustomDeductionRepository creates a new GormCustomDeductionRepository
func NewGormCustomDeductionRepository(db *gorm.DB) *GormCustomDeductionRepository {
	return &GormCustomDeductionRepository{db: db}
}

// FindByID finds a deduction of the business
func (r *GormCustomDeductionRepository) FindByID(ctx context.Context, businessID, id uuid.UUID) (*payroll.CustomDeduction, error) {
	var model models.CustomDeductionModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", businessID, id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDs finds deductions of the business keyed by id
func (r *GormCustomDeductionRepository) FindByIDs(ctx context.Context, businessID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]*payroll.CustomDeduction, error) {
	out := make(map[uuid.UUID]*payroll.CustomDeduction, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.CustomDeductionModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id IN ?", businessID, ids).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		out[rows[i].ID] = rows[i].ToDomain()
	}
	return out, nil
}

// FindByEmployee lists every deduction of an employee, newest first
func (r *GormCustomDeductionRepository) FindByEmployee(ctx context.Context, businessID, employeeID uuid.UUID) ([]*payroll.CustomDeduction, error) {
	var rows []models.CustomDeductionModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND employee_id = ?", businessID, employeeID).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDeductions(rows), nil
}

// FindActive returns the active deductions of the given employees in creation order
func (r *GormCustomDeductionRepository) FindActive(ctx context.Context, businessID uuid.UUID, employeeIDs []uuid.UUID) ([]*payroll.CustomDeduction, error) {
	if len(employeeIDs) == 0 {
		return []*payroll.CustomDeduction{}, nil
	}
	var rows []models.CustomDeductionModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND employee_id IN ? AND status = ?", businessID, employeeIDs, string(payroll.DeductionStatusActive)).
		Order("created_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDeductions(rows), nil
}

// Create inserts a new deduction
func (r *GormCustomDeductionRepository) Create(ctx context.Context, deduction *payroll.CustomDeduction) error {
	return r.db.WithContext(ctx).Create(models.CustomDeductionModelFromDomain(deduction)).Error
}

// SaveWithLock updates the deduction guarded by its version
func (r *GormCustomDeductionRepository) SaveWithLock(ctx context.Context, deduction *payroll.CustomDeduction) error {
	result := r.db.WithContext(ctx).
		Model(&models.CustomDeductionModel{}).
		Where("id = ? AND version = ?", deduction.ID, deduction.Version-1).
		Updates(map[string]interface{}{
			"remaining_amount": deduction.RemainingAmount,
			"status":           string(deduction.Status),
			"completed_at":     deduction.CompletedAt,
			"end_date":         deduction.EndDate,
			"version":          deduction.Version,
			"updated_at":       deduction.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

func toDeductions(rows []models.CustomDeductionModel) []*payroll.CustomDeduction {
	out := make([]*payroll.CustomDeduction, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out
}

// GormInstallmentRepository implements payroll.InstallmentRepository using GORM
type GormInstallmentRepository struct {
	db *gorm.DB
}

// NewGormInstallmentRepository creates a new GormInstallmentRepository
func NewGormInstallmentRepository(db *gorm.DB) *GormInstallmentRepository {
	return &GormInstallmentRepository{db: db}
}

// CreateBatch inserts ledger rows
func (r *GormInstallmentRepository) CreateBatch(ctx context.Context, installments []*payroll.DeductionInstallment) error {
	if len(installments) == 0 {
		return nil
	}
	rows := make([]*models.DeductionInstallmentModel, len(installments))
	for i, inst := range installments {
		rows[i] = models.DeductionInstallmentModelFromDomain(inst)
	}
	return r.db.WithContext(ctx).CreateInBatches(rows, 100).Error
}

// FindOpenByRecords returns the non-reversed installments of the given records
func (r *GormInstallmentRepository) FindOpenByRecords(ctx context.Context, recordIDs []uuid.UUID) ([]*payroll.DeductionInstallment, error) {
	if len(recordIDs) == 0 {
		return []*payroll.DeductionInstallment{}, nil
	}
	var rows []models.DeductionInstallmentModel
	if err := r.db.WithContext(ctx).
		Where("record_id IN ? AND reversed_at IS NULL", recordIDs).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toInstallments(rows), nil
}

// FindByDeduction returns every installment of a deduction in period order
func (r *GormInstallmentRepository) FindByDeduction(ctx context.Context, deductionID uuid.UUID) ([]*payroll.DeductionInstallment, error) {
	var rows []models.DeductionInstallmentModel
	if err := r.db.WithContext(ctx).
		Where("deduction_id = ?", deductionID).
		Order("year ASC, month ASC, created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toInstallments(rows), nil
}

// MarkReversed stamps reversed_at on the given rows
func (r *GormInstallmentRepository) MarkReversed(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.DeductionInstallmentModel{}).
		Where("id IN ? AND reversed_at IS NULL", ids).
		Updates(map[string]interface{}{
			"reversed_at": at,
			"updated_at":  at,
		}).Error
}

func toInstallments(rows []models.DeductionInstallmentModel) []*payroll.DeductionInstallment {
	out := make([]*payroll.DeductionInstallment, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out
}

// Ensure the repositories implement their domain interfaces
var (
	_ payroll.CustomDeductionRepository = (*GormCustomDeductionRepository)(nil)
	_ payroll.InstallmentRepository     = (*GormInstallmentRepository)(nil)
)
