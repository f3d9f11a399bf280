package payroll

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/hrpay/backend/internal/domain/payroll"
	"github.com/hrpay/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// ObjectStorageService defines the object storage operations documents need.
// It is implemented by the infrastructure layer (S3 or a compatible store).
type ObjectStorageService interface {
	// GenerateUploadURL returns a presigned PUT URL and its expiry
	GenerateUploadURL(ctx context.Context, storageKey, contentType string, expiresIn time.Duration) (string, time.Time, error)

	// GenerateDownloadURL returns a presigned GET URL and its expiry
	GenerateDownloadURL(ctx context.Context, storageKey string, expiresIn time.Duration) (string, time.Time, error)

	// PutObject uploads content under the key
	PutObject(ctx context.Context, storageKey, contentType string, body io.Reader, size int64) error

	// ObjectExists checks if an object exists in storage
	ObjectExists(ctx context.Context, storageKey string) (bool, error)
}

// DocumentServiceConfig holds presigned URL lifetimes
type DocumentServiceConfig struct {
	UploadURLExpiry   time.Duration
	DownloadURLExpiry time.Duration
}

// DefaultDocumentServiceConfig returns the default configuration
func DefaultDocumentServiceConfig() DocumentServiceConfig {
	return DocumentServiceConfig{
		UploadURLExpiry:   15 * time.Minute,
		DownloadURLExpiry: time.Hour,
	}
}

// PresignedURL is a time-limited link to an object
type PresignedURL struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// DocumentService handles employee documents and payslip downloads
type DocumentService struct {
	documentRepo payroll.DocumentRepository
	employeeRepo payroll.EmployeeRepository
	recordRepo   payroll.RecordRepository
	storage      ObjectStorageService
	config       DocumentServiceConfig
	logger       *zap.Logger
}

// NewDocumentService creates a new DocumentService
func NewDocumentService(repos Repositories, storage ObjectStorageService, logger *zap.Logger) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentService{
		documentRepo: repos.Documents,
		employeeRepo: repos.Employees,
		recordRepo:   repos.Records,
		storage:      storage,
		config:       DefaultDocumentServiceConfig(),
		logger:       logger,
	}
}

// SetConfig sets the service configuration
func (s *DocumentService) SetConfig(config DocumentServiceConfig) {
	s.config = config
}

// InitiateUpload creates a pending document and returns a presigned upload URL
func (s *DocumentService) InitiateUpload(
	ctx context.Context,
	businessID, employeeID uuid.UUID,
	kind payroll.DocumentKind,
	fileName, contentType string,
) (*payroll.EmployeeDocument, *PresignedURL, error) {
	if kind == payroll.DocumentKindPayslip {
		return nil, nil, shared.NewValidationError("payslips are generated by payroll and cannot be uploaded")
	}
	doc, err := payroll.NewEmployeeDocument(businessID, employeeID, kind, fileName, contentType)
	if err != nil {
		return nil, nil, err
	}
	if _, err := s.employeeRepo.FindByID(ctx, businessID, employeeID); err != nil {
		return nil, nil, err
	}

	url, expiresAt, err := s.storage.GenerateUploadURL(ctx, doc.StorageKey, doc.ContentType, s.config.UploadURLExpiry)
	if err != nil {
		return nil, nil, asRemoteError(payroll.CollaboratorObjectStorage, err)
	}
	if err := s.documentRepo.Create(ctx, doc); err != nil {
		return nil, nil, fmt.Errorf("failed to create document: %w", err)
	}
	return doc, &PresignedURL{URL: url, ExpiresAt: expiresAt}, nil
}

// ConfirmUpload registers a pending document once its object exists
func (s *DocumentService) ConfirmUpload(ctx context.Context, businessID, employeeID, documentID uuid.UUID, sizeBytes int64) (*payroll.EmployeeDocument, error) {
	doc, err := s.documentRepo.FindByID(ctx, businessID, documentID)
	if err != nil {
		return nil, err
	}
	if doc.EmployeeID != employeeID {
		return nil, shared.ErrNotFound
	}
	if doc.Status == payroll.DocumentStatusRegistered {
		return doc, nil
	}

	exists, err := s.storage.ObjectExists(ctx, doc.StorageKey)
	if err != nil {
		return nil, asRemoteError(payroll.CollaboratorObjectStorage, err)
	}
	if !exists {
		return nil, shared.NewValidationError("document upload has not completed", doc.StorageKey)
	}
	if err := doc.Register(sizeBytes); err != nil {
		return nil, err
	}
	if err := s.documentRepo.SaveWithLock(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// ListDocuments lists the documents of an employee
func (s *DocumentService) ListDocuments(ctx context.Context, businessID, employeeID uuid.UUID) ([]*payroll.EmployeeDocument, error) {
	return s.documentRepo.FindByEmployee(ctx, businessID, employeeID)
}

// DownloadURL returns a presigned download link for a registered document
func (s *DocumentService) DownloadURL(ctx context.Context, businessID, employeeID, documentID uuid.UUID) (*PresignedURL, error) {
	doc, err := s.documentRepo.FindByID(ctx, businessID, documentID)
	if err != nil {
		return nil, err
	}
	if doc.EmployeeID != employeeID {
		return nil, shared.ErrNotFound
	}
	if doc.Status != payroll.DocumentStatusRegistered {
		return nil, shared.NewGuardViolation("DOCUMENT_NOT_REGISTERED", "document upload has not been confirmed")
	}
	return s.presignDownload(ctx, doc.StorageKey)
}

// PayslipURL returns a presigned download link for a paid record's payslip
func (s *DocumentService) PayslipURL(ctx context.Context, businessID, recordID uuid.UUID) (*PresignedURL, error) {
	record, err := s.recordRepo.FindByID(ctx, businessID, recordID)
	if err != nil {
		return nil, err
	}
	if record.Status != payroll.RecordStatusPaid {
		return nil, shared.NewGuardViolation(payroll.RuleRecordStatusTransition,
			fmt.Sprintf("payslip is only available for paid records, record is %s", record.Status))
	}

	key := payroll.PayslipStorageKey(record)
	exists, err := s.storage.ObjectExists(ctx, key)
	if err != nil {
		return nil, asRemoteError(payroll.CollaboratorObjectStorage, err)
	}
	if !exists {
		return nil, shared.ErrNotFound.WithDetails("payslip for record " + recordID.String() + " is not generated yet")
	}
	return s.presignDownload(ctx, key)
}

func (s *DocumentService) presignDownload(ctx context.Context, key string) (*PresignedURL, error) {
	url, expiresAt, err := s.storage.GenerateDownloadURL(ctx, key, s.config.DownloadURLExpiry)
	if err != nil {
		return nil, asRemoteError(payroll.CollaboratorObjectStorage, err)
	}
	return &PresignedURL{URL: url, ExpiresAt: expiresAt}, nil
}

// StorePayslip uploads a rendered payslip and records it as an employee document.
// A payslip already stored for the record is left as is.
func (s *DocumentService) StorePayslip(ctx context.Context, record *payroll.PayrollRecord, pdf []byte) (*payroll.EmployeeDocument, error) {
	doc := payroll.NewPayslipDocument(record, int64(len(pdf)))
	if err := s.storage.PutObject(ctx, doc.StorageKey, doc.ContentType, bytes.NewReader(pdf), int64(len(pdf))); err != nil {
		return nil, asRemoteError(payroll.CollaboratorObjectStorage, err)
	}
	if err := s.documentRepo.Create(ctx, doc); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			return doc, nil
		}
		return nil, fmt.Errorf("failed to record payslip: %w", err)
	}
	s.logger.Info("payslip stored",
		zap.String("business_id", record.TenantID.String()),
		zap.String("record_id", record.ID.String()),
		zap.String("storage_key", doc.StorageKey),
	)
	return doc, nil
}
