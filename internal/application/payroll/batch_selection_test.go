package payroll_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/uuid"
	apppayroll "github.com/hrpay/backend/internal/application/payroll"
	"github.com/hrpay/backend/internal/domain/payroll"
	"github.com/hrpay/backend/internal/domain/shared"
	"github.com/hrpay/backend/internal/infrastructure/cache"
	"github.com/hrpay/backend/internal/infrastructure/event"
	"github.com/hrpay/backend/internal/infrastructure/payslip"
	"github.com/hrpay/backend/internal/infrastructure/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (h *harness) coordinator(month, year int, stage apppayroll.BatchStage) *apppayroll.BatchSelectionCoordinator {
	h.t.Helper()
	key, err := payroll.NewPeriodKey(h.businessID, month, year)
	require.NoError(h.t, err)
	return apppayroll.NewBatchSelectionCoordinator(key, stage, h.machine.Workflow(), h.machine)
}

func TestBatchSelection_ReviewThenPay(t *testing.T) {
	h := newHarness(t)
	alice := h.hire("Alice Njeri", 90000)
	bob := h.hire("Bob Otieno", 50000)
	carol := h.hire("Carol Wambui", 30000)
	h.withBank(alice)
	h.withWallet(bob)
	h.withBank(carol)
	records := h.process(2, 2024)
	rec := byEmployee(records)

	review := h.coordinator(2, 2024, apppayroll.BatchStageReview)
	n, err := review.SelectAll(h.ctx, func(r *payroll.PayrollRecord) bool {
		return r.EmployeeID != carol.ID
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	result, err := review.Dispatch(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, apppayroll.BatchStageReview, result.Stage)
	assert.Len(t, result.Records, 2)
	assert.Empty(t, review.Selected(), "selection clears after a successful dispatch")
	assert.Equal(t, payroll.RecordStatusProcessed, h.record(rec[carol.ID].ID).Status)

	pay := h.coordinator(2, 2024, apppayroll.BatchStagePayments)
	pay.SetIdempotencyKey("feb-run")
	n, err = pay.SelectAll(h.ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "only approved records are eligible for payment")

	assert.False(t, pay.Toggle(rec[bob.ID].ID))
	assert.Equal(t, []uuid.UUID{rec[alice.ID].ID}, pay.Selected())

	result, err = pay.Dispatch(h.ctx)
	require.NoError(t, err)
	require.NotNil(t, result.Report)
	assert.Equal(t, 1, result.Report.ProcessedCount)
	assert.Equal(t, payroll.RecordStatusPaid, h.record(rec[alice.ID].ID).Status)
	assert.Equal(t, payroll.RecordStatusApproved, h.record(rec[bob.ID].ID).Status)
}

func TestBatchSelection_IneligibleSelectionIsRejected(t *testing.T) {
	h := newHarness(t)
	h.hire("Alice Njeri", 90000)
	h.hire("Bob Otieno", 50000)
	records := h.process(2, 2024)

	pay := h.coordinator(2, 2024, apppayroll.BatchStagePayments)
	_, err := pay.Dispatch(h.ctx)
	assert.True(t, payroll.IsValidation(err), "empty selection")

	stranger := uuid.New()
	assert.True(t, pay.Toggle(records[0].ID))
	assert.True(t, pay.Toggle(stranger))

	_, err = pay.Dispatch(h.ctx)
	require.Error(t, err)
	de := domainError(t, err)
	assert.Equal(t, shared.CodeValidation, de.Code)
	assert.ElementsMatch(t, []string{records[0].ID.String(), stranger.String()}, de.Details)
	assert.Len(t, pay.Selected(), 2, "selection survives a failed dispatch")
	assert.Zero(t, h.gateway.transfers())

	pay.Clear()
	assert.Empty(t, pay.Selected())
}

func TestBatchSelection_SeesChangesFromOtherWriters(t *testing.T) {
	h := newHarness(t)
	h.hire("Alice Njeri", 90000)
	records := h.process(2, 2024)

	review := h.coordinator(2, 2024, apppayroll.BatchStageReview)
	review.Toggle(records[0].ID)

	// approved elsewhere after the selection was made
	r := h.record(records[0].ID)
	require.NoError(t, r.Approve())
	require.NoError(t, h.repos.Records.SaveTransition(h.ctx, r, payroll.RecordStatusProcessed))

	_, err := review.Dispatch(h.ctx)
	assert.True(t, payroll.IsValidation(err))
}

func TestPayslipPublisher(t *testing.T) {
	h := newHarness(t)
	alice := h.hire("Alice Njeri", 90000)
	h.withBank(alice)
	records := h.approveAll(1, 2024, h.process(1, 2024))

	objects := storage.NewStubObjectStorage()
	documents := apppayroll.NewDocumentService(h.repos, objects, nil)
	publisher := apppayroll.NewPayslipPublisher(h.repos, documents, payslip.NewRenderer("Acme Ltd"), nil)

	_, err := documents.PayslipURL(h.ctx, h.businessID, records[0].ID)
	assert.True(t, payroll.IsGuardViolation(err), "approved record has no payslip")
	_, err = publisher.Publish(h.ctx, h.businessID, records[0].ID)
	assert.True(t, payroll.IsValidation(err))

	// deliver paid events through the bus with dedupe by record
	bus := event.NewInMemoryEventBus(nil)
	store := cache.NewInMemoryIdempotencyStore()
	t.Cleanup(func() { _ = store.Close() })
	handler := event.NewIdempotentHandler(publisher, store, nil, event.WithKeyFunc(event.ByAggregate))
	bus.Subscribe(handler, publisher.EventTypes()...)
	h.machine.SetEventPublisher(bus)

	report, err := h.machine.ProcessPayments(h.ctx, h.businessID, ids(records), 1, 2024, "")
	require.NoError(t, err)
	require.Equal(t, 1, report.ProcessedCount)

	paid := h.record(records[0].ID)
	pdf, ok := objects.Object(payroll.PayslipStorageKey(paid))
	require.True(t, ok, "payslip stored on the paid event")
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))

	docs, err := documents.ListDocuments(h.ctx, h.businessID, alice.ID)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, payroll.DocumentKindPayslip, docs[0].Kind)
	require.NotNil(t, docs[0].RecordID)
	assert.Equal(t, paid.ID, *docs[0].RecordID)

	again, err := publisher.Publish(h.ctx, h.businessID, paid.ID)
	require.NoError(t, err)
	assert.Equal(t, docs[0].StorageKey, again.StorageKey)
	docs, err = documents.ListDocuments(h.ctx, h.businessID, alice.ID)
	require.NoError(t, err)
	assert.Len(t, docs, 1, "regenerating keeps one document per record")

	url, err := documents.PayslipURL(context.Background(), h.businessID, paid.ID)
	require.NoError(t, err)
	assert.Contains(t, url.URL, payroll.PayslipStorageKey(paid))
}

func TestDocumentService_UploadHandshake(t *testing.T) {
	h := newHarness(t)
	alice := h.hire("Alice Njeri", 90000)
	documents := apppayroll.NewDocumentService(h.repos, storage.NewStubObjectStorage(), nil)

	_, _, err := documents.InitiateUpload(h.ctx, h.businessID, alice.ID, payroll.DocumentKindPayslip, "slip.pdf", "application/pdf")
	assert.True(t, payroll.IsValidation(err), "payslips cannot be uploaded")

	doc, upload, err := documents.InitiateUpload(h.ctx, h.businessID, alice.ID, payroll.DocumentKindContract, "contract.pdf", "application/pdf")
	require.NoError(t, err)
	assert.NotEmpty(t, upload.URL)
	assert.Equal(t, payroll.DocumentStatusPending, doc.Status)

	_, err = documents.DownloadURL(h.ctx, h.businessID, alice.ID, doc.ID)
	assert.True(t, payroll.IsGuardViolation(err), "pending documents cannot be downloaded")

	_, err = documents.ConfirmUpload(h.ctx, h.businessID, uuid.New(), doc.ID, 2048)
	assert.ErrorIs(t, err, shared.ErrNotFound, "document of another employee")

	registered, err := documents.ConfirmUpload(h.ctx, h.businessID, alice.ID, doc.ID, 2048)
	require.NoError(t, err)
	assert.Equal(t, payroll.DocumentStatusRegistered, registered.Status)
	assert.EqualValues(t, 2048, registered.SizeBytes)

	download, err := documents.DownloadURL(h.ctx, h.businessID, alice.ID, doc.ID)
	require.NoError(t, err)
	assert.Contains(t, download.URL, doc.StorageKey)
}
