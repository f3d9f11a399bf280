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
	"gorm.io/gorm/clause"
)

// GormPeriodRepository implements payroll.PeriodRepository using GORM
type GormPeriodRepository struct {
	db *gorm.DB
}

// NewGormPeriodRepository creates a new GormPeriodRepository
func NewGormPeriodRepository(db *gorm.DB) *GormPeriodRepository {
	return &GormPeriodRepository{db: db}
}

// FindByKey finds the period row of (business, month, year)
func (r *GormPeriodRepository) FindByKey(ctx context.Context, key payroll.PeriodKey) (*payroll.PayrollPeriod, error) {
	var model models.PayrollPeriodModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND month = ? AND year = ?", key.BusinessID, key.Month, key.Year).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// GetOrCreate returns the period row, inserting an unlocked one if missing.
// A concurrent insert of the same key is absorbed by ON CONFLICT DO NOTHING.
func (r *GormPeriodRepository) GetOrCreate(ctx context.Context, key payroll.PeriodKey) (*payroll.PayrollPeriod, error) {
	period, err := r.FindByKey(ctx, key)
	if err == nil {
		return period, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	fresh, err := payroll.NewPayrollPeriod(key)
	if err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(models.PayrollPeriodModelFromDomain(fresh)).Error; err != nil {
		return nil, err
	}
	return r.FindByKey(ctx, key)
}

// CommitProcessing stores the run metadata. The update only matches an
// unlocked row at the loaded version.
func (r *GormPeriodRepository) CommitProcessing(ctx context.Context, period *payroll.PayrollPeriod) error {
	result := r.db.WithContext(ctx).
		Model(&models.PayrollPeriodModel{}).
		Where("id = ? AND version = ? AND locked = ?", period.ID, period.Version-1, false).
		Updates(map[string]interface{}{
			"processed_at":  period.ProcessedAt,
			"run_count":     period.RunCount,
			"settings_json": period.SettingsJSON,
			"version":       period.Version,
			"updated_at":    period.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var current models.PayrollPeriodModel
	if err := r.db.WithContext(ctx).Select("locked").First(&current, "id = ?", period.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return shared.ErrNotFound
		}
		return err
	}
	if current.Locked {
		return payroll.ErrPeriodAlreadyPaid(period.Key())
	}
	return shared.ErrConcurrencyConflict
}

// Lock marks the period as paid. Locking twice is a no-op.
func (r *GormPeriodRepository) Lock(ctx context.Context, periodID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.PayrollPeriodModel{}).
		Where("id = ? AND locked = ?", periodID, false).
		Updates(map[string]interface{}{
			"locked":     true,
			"locked_at":  at,
			"version":    gorm.Expr("version + 1"),
			"updated_at": at,
		}).Error
}

// Ensure GormPeriodRepository implements PeriodRepository
var _ payroll.PeriodRepository = (*GormPeriodRepository)(nil)
