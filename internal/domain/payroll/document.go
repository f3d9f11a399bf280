package payroll

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hrpay/backend/internal/domain/shared"
)

// DocumentKind classifies files attached to an employee
type DocumentKind string

const (
	DocumentKindContract  DocumentKind = "CONTRACT"
	DocumentKindIdentity  DocumentKind = "IDENTITY"
	DocumentKindInsurance DocumentKind = "INSURANCE"
	DocumentKindPayslip   DocumentKind = "PAYSLIP"
	DocumentKindOther     DocumentKind = "OTHER"
)

// IsValid checks if the kind is known
func (k DocumentKind) IsValid() bool {
	switch k {
	case DocumentKindContract, DocumentKindIdentity, DocumentKindInsurance, DocumentKindPayslip, DocumentKindOther:
		return true
	}
	return false
}

// DocumentStatus tracks the presigned upload handshake
type DocumentStatus string

const (
	DocumentStatusPending    DocumentStatus = "pending"
	DocumentStatusRegistered DocumentStatus = "registered"
)

var allowedDocumentTypes = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/png":       true,
}

// EmployeeDocument is a file stored in object storage and referenced by an employee.
// It starts pending when an upload URL is issued and becomes registered once the
// client confirms the upload.
type EmployeeDocument struct {
	shared.TenantAggregateRoot
	EmployeeID   uuid.UUID      `json:"employee_id"`
	Kind         DocumentKind   `json:"kind"`
	FileName     string         `json:"file_name"`
	ContentType  string         `json:"content_type"`
	StorageKey   string         `json:"storage_key"`
	SizeBytes    int64          `json:"size_bytes"`
	Status       DocumentStatus `json:"status"`
	RecordID     *uuid.UUID     `json:"record_id,omitempty"`
	RegisteredAt *time.Time     `json:"registered_at,omitempty"`
}

// NewEmployeeDocument creates a pending document with a generated storage key
func NewEmployeeDocument(businessID, employeeID uuid.UUID, kind DocumentKind, fileName, contentType string) (*EmployeeDocument, error) {
	var details []string
	if employeeID == uuid.Nil {
		details = append(details, "employee_id is required")
	}
	if !kind.IsValid() {
		details = append(details, fmt.Sprintf("document kind %q is not supported", kind))
	}
	fileName = path.Base(strings.TrimSpace(fileName))
	if fileName == "" || fileName == "." || fileName == "/" {
		details = append(details, "file_name is required")
	}
	if !allowedDocumentTypes[contentType] {
		details = append(details, fmt.Sprintf("content type %q is not allowed", contentType))
	}
	if len(details) > 0 {
		return nil, shared.NewValidationError("invalid document", details...)
	}
	d := &EmployeeDocument{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(businessID),
		EmployeeID:          employeeID,
		Kind:                kind,
		FileName:            fileName,
		ContentType:         contentType,
		Status:              DocumentStatusPending,
	}
	d.StorageKey = fmt.Sprintf("%s/employees/%s/%s/%s-%s", businessID, employeeID, strings.ToLower(string(kind)), d.ID, fileName)
	return d, nil
}

// NewPayslipDocument creates a registered document for a rendered payslip
func NewPayslipDocument(r *PayrollRecord, sizeBytes int64) *EmployeeDocument {
	now := time.Now()
	recordID := r.ID
	d := &EmployeeDocument{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(r.TenantID),
		EmployeeID:          r.EmployeeID,
		Kind:                DocumentKindPayslip,
		FileName:            fmt.Sprintf("payslip-%s.pdf", r.Key()),
		ContentType:         "application/pdf",
		SizeBytes:           sizeBytes,
		Status:              DocumentStatusRegistered,
		RecordID:            &recordID,
		RegisteredAt:        &now,
	}
	d.StorageKey = PayslipStorageKey(r)
	return d
}

// PayslipStorageKey is the object key of a record's payslip
func PayslipStorageKey(r *PayrollRecord) string {
	return fmt.Sprintf("%s/payslips/%04d/%02d/%s.pdf", r.TenantID, r.Year, r.Month, r.ID)
}

// Register confirms that the client finished the upload
func (d *EmployeeDocument) Register(sizeBytes int64) error {
	if d.Status == DocumentStatusRegistered {
		return nil
	}
	if sizeBytes < 0 {
		return shared.NewValidationError("size_bytes cannot be negative")
	}
	now := time.Now()
	d.Status = DocumentStatusRegistered
	d.SizeBytes = sizeBytes
	d.RegisteredAt = &now
	d.Touch()
	return nil
}
