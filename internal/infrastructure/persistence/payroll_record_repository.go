package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hrpay/backend/internal/domain/payroll"
	"github.com/hrpay/backend/internal/domain/shared"
	"github.com/hrpay/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormRecordRepository implements payroll.RecordRepository using GORM
type GormRecordRepository struct {
	db *gorm.DB
}

// NewGormRecordRepository creates a new GormRecordRepository
func NewGormRecordRepository(db *gorm.DB) *GormRecordRepository {
	return &GormRecordRepository{db: db}
}

// FindByID finds a record of the business
func (r *GormRecordRepository) FindByID(ctx context.Context, businessID, id uuid.UUID) (*payroll.PayrollRecord, error) {
	var model models.PayrollRecordModel
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

// FindByIDs finds records of the business; unknown ids are skipped
func (r *GormRecordRepository) FindByIDs(ctx context.Context, businessID uuid.UUID, ids []uuid.UUID) ([]*payroll.PayrollRecord, error) {
	if len(ids) == 0 {
		return []*payroll.PayrollRecord{}, nil
	}
	var rows []models.PayrollRecordModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id IN ?", businessID, ids).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toRecords(rows), nil
}

// FindCurrentByPeriod returns the non-superseded records of a period ordered by employee name
func (r *GormRecordRepository) FindCurrentByPeriod(ctx context.Context, key payroll.PeriodKey) ([]*payroll.PayrollRecord, error) {
	var rows []models.PayrollRecordModel
	if err := r.periodScope(ctx, key).
		Where("superseded_at IS NULL").
		Order("employee_name ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toRecords(rows), nil
}

// FindHistory lists records of a period with filters and pagination
func (r *GormRecordRepository) FindHistory(ctx context.Context, key payroll.PeriodKey, filter payroll.RecordFilter) ([]*payroll.PayrollRecord, int64, error) {
	var total int64
	countQuery := r.applyHistoryFilter(r.periodScope(ctx, key), filter)
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query := r.applyHistoryFilter(r.periodScope(ctx, key), filter)
	query = query.Order(orderClause(filter.Filter, recordSortColumns, "employee_name")).Order("id ASC")
	if filter.Page > 0 && filter.PageSize > 0 {
		query = query.Offset(filter.Offset()).Limit(filter.Limit())
	}

	var rows []models.PayrollRecordModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return toRecords(rows), total, nil
}

func (r *GormRecordRepository) applyHistoryFilter(query *gorm.DB, filter payroll.RecordFilter) *gorm.DB {
	if !filter.IncludeSuperseded {
		query = query.Where("superseded_at IS NULL")
	}
	if filter.EmployeeID != nil {
		query = query.Where("employee_id = ?", *filter.EmployeeID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", string(*filter.Status))
	}
	if filter.Search != "" {
		query = query.Where("LOWER(employee_name) LIKE ?", "%"+strings.ToLower(filter.Search)+"%")
	}
	return query
}

// CountPaid counts Paid records of a period, superseded or not
func (r *GormRecordRepository) CountPaid(ctx context.Context, key payroll.PeriodKey) (int64, error) {
	var count int64
	if err := r.periodScope(ctx, key).
		Where("status = ?", string(payroll.RecordStatusPaid)).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// CreateBatch inserts new records
func (r *GormRecordRepository) CreateBatch(ctx context.Context, records []*payroll.PayrollRecord) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]*models.PayrollRecordModel, len(records))
	for i, rec := range records {
		rows[i] = models.PayrollRecordModelFromDomain(rec)
	}
	err := r.db.WithContext(ctx).CreateInBatches(rows, 100).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return shared.ErrAlreadyExists
	}
	return err
}

// SupersedeCurrent stamps superseded_at on every current non-paid record of
// the period and returns their ids
func (r *GormRecordRepository) SupersedeCurrent(ctx context.Context, key payroll.PeriodKey, at time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.periodScope(ctx, key).
		Where("superseded_at IS NULL AND status <> ?", string(payroll.RecordStatusPaid)).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return ids, nil
	}
	if err := r.db.WithContext(ctx).
		Model(&models.PayrollRecordModel{}).
		Where("id IN ? AND superseded_at IS NULL", ids).
		Updates(map[string]interface{}{
			"superseded_at": at,
			"version":       gorm.Expr("version + 1"),
			"updated_at":    at,
		}).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// SaveTransition writes a status change guarded by (id, from, version-1)
func (r *GormRecordRepository) SaveTransition(ctx context.Context, record *payroll.PayrollRecord, from payroll.RecordStatus) error {
	result := r.db.WithContext(ctx).
		Model(&models.PayrollRecordModel{}).
		Where("id = ? AND status = ? AND version = ?", record.ID, string(from), record.Version-1).
		Updates(map[string]interface{}{
			"status":            string(record.Status),
			"failure_reason":    record.FailureReason,
			"payment_reference": record.PaymentReference,
			"approved_at":       record.ApprovedAt,
			"paid_at":           record.PaidAt,
			"version":           record.Version,
			"updated_at":        record.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

func (r *GormRecordRepository) periodScope(ctx context.Context, key payroll.PeriodKey) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&models.PayrollRecordModel{}).
		Where("tenant_id = ? AND month = ? AND year = ?", key.BusinessID, key.Month, key.Year)
}

func toRecords(rows []models.PayrollRecordModel) []*payroll.PayrollRecord {
	out := make([]*payroll.PayrollRecord, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out
}

// Ensure GormRecordRepository implements RecordRepository
var _ payroll.RecordRepository = (*GormRecordRepository)(nil)
