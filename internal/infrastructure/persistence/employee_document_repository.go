package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/hrpay/backend/internal/domain/payroll"
	"github.com/hrpay/backend/internal/domain/shared"
	"github.com/hrpay/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormDocumentRepository implements payroll.DocumentRepository using GORM
type GormDocumentRepository struct {
	db *gorm.DB
}

// NewGormDocumentRepository creates a new GormDocumentRepository
func NewGormDocumentRepository(db *gorm.DB) *GormDocumentRepository {
	return &GormDocumentRepository{db: db}
}

// FindByID finds a document of the business
func (r *GormDocumentRepository) FindByID(ctx context.Context, businessID, id uuid.UUID) (*payroll.EmployeeDocument, error) {
	var model models.EmployeeDocumentModel
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

// FindByEmployee lists the documents of an employee, newest first
func (r *GormDocumentRepository) FindByEmployee(ctx context.Context, businessID, employeeID uuid.UUID) ([]*payroll.EmployeeDocument, error) {
	var rows []models.EmployeeDocumentModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND employee_id = ?", businessID, employeeID).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*payroll.EmployeeDocument, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

// Create inserts a document. A second document with the same storage key
// yields shared.ErrAlreadyExists.
func (r *GormDocumentRepository) Create(ctx context.Context, doc *payroll.EmployeeDocument) error {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.EmployeeDocumentModel{}).
		Where("storage_key = ?", doc.StorageKey).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return shared.ErrAlreadyExists
	}
	if err := r.db.WithContext(ctx).Create(models.EmployeeDocumentModelFromDomain(doc)).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// SaveWithLock updates the document guarded by its version
func (r *GormDocumentRepository) SaveWithLock(ctx context.Context, doc *payroll.EmployeeDocument) error {
	result := r.db.WithContext(ctx).
		Model(&models.EmployeeDocumentModel{}).
		Where("id = ? AND version = ?", doc.ID, doc.Version-1).
		Updates(map[string]interface{}{
			"size_bytes":    doc.SizeBytes,
			"status":        string(doc.Status),
			"registered_at": doc.RegisteredAt,
			"version":       doc.Version,
			"updated_at":    doc.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// Ensure GormDocumentRepository implements DocumentRepository
var _ payroll.DocumentRepository = (*GormDocumentRepository)(nil)
