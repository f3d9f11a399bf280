package payroll

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hrpay/backend/internal/domain/payroll"
	"github.com/hrpay/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// PayslipRenderer renders the payslip document of a paid record
type PayslipRenderer interface {
	Render(record *payroll.PayrollRecord, employee *payroll.Employee) ([]byte, error)
}

// PayslipPublisher handles PayrollRecordPaidEvent by rendering the payslip
// and storing it as an employee document. Storage is keyed by record, so a
// redelivered event finds the existing document.
type PayslipPublisher struct {
	recordRepo   payroll.RecordRepository
	employeeRepo payroll.EmployeeRepository
	documents    *DocumentService
	renderer     PayslipRenderer
	logger       *zap.Logger
}

// NewPayslipPublisher creates a new handler for paid record events
func NewPayslipPublisher(
	repos Repositories,
	documents *DocumentService,
	renderer PayslipRenderer,
	logger *zap.Logger,
) *PayslipPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PayslipPublisher{
		recordRepo:   repos.Records,
		employeeRepo: repos.Employees,
		documents:    documents,
		renderer:     renderer,
		logger:       logger,
	}
}

// EventTypes returns the event types this handler is interested in
func (h *PayslipPublisher) EventTypes() []string {
	return []string{payroll.EventTypePayrollRecordPaid}
}

// Handle processes a PayrollRecordPaidEvent
func (h *PayslipPublisher) Handle(ctx context.Context, event shared.DomainEvent) error {
	paid, ok := event.(*payroll.PayrollRecordPaidEvent)
	if !ok {
		h.logger.Error("unexpected event type",
			zap.String("expected", payroll.EventTypePayrollRecordPaid),
			zap.String("actual", event.EventType()),
		)
		return fmt.Errorf("unexpected event type: expected %s, got %s",
			payroll.EventTypePayrollRecordPaid, event.EventType())
	}

	if _, err := h.Publish(ctx, paid.TenantID(), paid.RecordID); err != nil {
		h.logger.Error("failed to publish payslip",
			zap.String("tenant_id", event.TenantID().String()),
			zap.String("record_id", paid.RecordID.String()),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// Publish renders and stores the payslip of a Paid record. It also backs
// the manual regenerate endpoint for payslips whose event was lost.
func (h *PayslipPublisher) Publish(ctx context.Context, businessID, recordID uuid.UUID) (*payroll.EmployeeDocument, error) {
	record, err := h.recordRepo.FindByID(ctx, businessID, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to load record: %w", err)
	}
	if record.Status != payroll.RecordStatusPaid {
		return nil, shared.NewValidationError("payslips are issued for paid records only")
	}
	employee, err := h.employeeRepo.FindByID(ctx, businessID, record.EmployeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load employee: %w", err)
	}

	pdf, err := h.renderer.Render(record, employee)
	if err != nil {
		return nil, fmt.Errorf("failed to render payslip: %w", err)
	}
	return h.documents.StorePayslip(ctx, record, pdf)
}
