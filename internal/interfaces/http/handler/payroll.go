package handler

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	apppayroll "github.com/hrpay/backend/internal/application/payroll"
	"github.com/hrpay/backend/internal/domain/payroll"
	"github.com/hrpay/backend/internal/domain/shared"
	"github.com/hrpay/backend/internal/interfaces/http/dto"
	"github.com/hrpay/backend/internal/interfaces/http/middleware"
)

// PayrollHandler exposes the period workflow: process, approve, pay and
// the read side of a period.
type PayrollHandler struct {
	BaseHandler
	periods   *apppayroll.PeriodStateMachine
	documents *apppayroll.DocumentService
	payslips  *apppayroll.PayslipPublisher
	currency  string
}

// NewPayrollHandler creates a new PayrollHandler. payslips may be nil when
// payslip generation is disabled.
func NewPayrollHandler(
	periods *apppayroll.PeriodStateMachine,
	documents *apppayroll.DocumentService,
	payslips *apppayroll.PayslipPublisher,
) *PayrollHandler {
	return &PayrollHandler{periods: periods, documents: documents, payslips: payslips}
}

// SetDefaultCurrency fills the currency of submitted settings that omit one
func (h *PayrollHandler) SetDefaultCurrency(code string) {
	h.currency = code
}

// ProcessPeriod godoc
//
//	@Summary	Compute payroll records for a period
//	@Tags		payroll
//	@Router		/payroll/process [post]
func (h *PayrollHandler) ProcessPeriod(c *gin.Context) {
	biz, ok := h.requireBusiness(c)
	if !ok {
		return
	}
	var req apppayroll.ProcessPeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationFailed(c, err)
		return
	}
	if req.Settings != nil && req.Settings.Currency == "" {
		req.Settings.Currency = h.currency
	}

	records, err := h.periods.ProcessPeriod(c.Request.Context(), biz, req.Month, req.Year, req.Settings)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, apppayroll.ToRecordResponses(records))
}

// GetPeriod godoc
//
//	@Summary	Period summary with derived status and totals
//	@Tags		payroll
//	@Router		/payroll/period [get]
func (h *PayrollHandler) GetPeriod(c *gin.Context) {
	biz, ok := h.requireBusiness(c)
	if !ok {
		return
	}
	var q dto.PeriodQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.ValidationFailed(c, err)
		return
	}

	summary, err := h.periods.GetPeriod(c.Request.Context(), biz, q.Month, q.Year)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, apppayroll.ToPeriodResponse(summary))
}

// GetHistory returns the current records of a period
func (h *PayrollHandler) GetHistory(c *gin.Context) {
	biz, ok := h.requireBusiness(c)
	if !ok {
		return
	}
	var q dto.PeriodQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.ValidationFailed(c, err)
		return
	}

	records, err := h.periods.GetHistory(c.Request.Context(), biz, q.Month, q.Year)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, apppayroll.ToRecordResponses(records))
}

// listRecordsQuery filters the record list of a period
type listRecordsQuery struct {
	dto.PeriodQuery
	dto.ListRequest
	Status            string `form:"status"`
	EmployeeID        string `form:"employee_id" binding:"omitempty,uuid"`
	IncludeSuperseded bool   `form:"include_superseded"`
}

// ListRecords lists records of a period, paged, optionally with superseded runs
func (h *PayrollHandler) ListRecords(c *gin.Context) {
	biz, ok := h.requireBusiness(c)
	if !ok {
		return
	}
	q := listRecordsQuery{ListRequest: dto.DefaultListRequest()}
	if err := c.ShouldBindQuery(&q); err != nil {
		h.ValidationFailed(c, err)
		return
	}

	filter := payroll.RecordFilter{
		Filter:            shared.DefaultFilter(),
		IncludeSuperseded: q.IncludeSuperseded,
	}
	filter.Page = q.Page
	filter.PageSize = q.PageSize
	filter.OrderBy = q.OrderBy
	filter.OrderDir = q.OrderDir
	filter.Search = q.Search
	if q.Status != "" {
		status := payroll.RecordStatus(strings.ToUpper(q.Status))
		if !status.IsValid() {
			h.BadRequest(c, "Unknown record status: "+q.Status)
			return
		}
		filter.Status = &status
	}
	if q.EmployeeID != "" {
		id := uuid.MustParse(q.EmployeeID)
		filter.EmployeeID = &id
	}

	records, total, err := h.periods.ListRecords(c.Request.Context(), biz, q.Month, q.Year, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, apppayroll.ToRecordResponses(records), total, filter.Page, filter.PageSize)
}

// GetRecord returns one payroll record
func (h *PayrollHandler) GetRecord(c *gin.Context) {
	biz, ok := h.requireBusiness(c)
	if !ok {
		return
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		h.BadRequest(c, "Invalid record ID format")
		return
	}

	record, err := h.periods.GetRecord(c.Request.Context(), biz, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, apppayroll.ToRecordResponse(record))
}

// ApprovePeriod godoc
//
//	@Summary	Approve processed records
//	@Tags		payroll
//	@Router		/payroll/approve [post]
func (h *PayrollHandler) ApprovePeriod(c *gin.Context) {
	biz, ok := h.requireBusiness(c)
	if !ok {
		return
	}
	var req apppayroll.ApprovePeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationFailed(c, err)
		return
	}

	records, err := h.periods.ApprovePeriod(c.Request.Context(), biz, req.RecordIDs, req.Month, req.Year)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, apppayroll.ToRecordResponses(records))
}

// ProcessPayments godoc
//
//	@Summary	Pay approved records
//	@Description	Per-record failures are reported in the body with status 200.
//	@Description	Send Idempotency-Key to make a retried submission a no-op.
//	@Tags		payroll
//	@Router		/payroll/payments [post]
func (h *PayrollHandler) ProcessPayments(c *gin.Context) {
	biz, ok := h.requireBusiness(c)
	if !ok {
		return
	}
	var req apppayroll.ProcessPaymentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationFailed(c, err)
		return
	}

	report, err := h.periods.ProcessPayments(c.Request.Context(), biz, req.PaymentIDs, req.Month, req.Year,
		c.GetHeader(middleware.IdempotencyKeyHeader))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, apppayroll.ToPaymentReportResponse(report))
}

// RequeueFailed puts failed records back to approved
func (h *PayrollHandler) RequeueFailed(c *gin.Context) {
	biz, ok := h.requireBusiness(c)
	if !ok {
		return
	}
	var req apppayroll.RequeueFailedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationFailed(c, err)
		return
	}

	records, err := h.periods.RequeueFailed(c.Request.Context(), biz, req.RecordIDs, req.Month, req.Year)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, apppayroll.ToRecordResponses(records))
}

// DispatchBatch godoc
//
//	@Summary	Dispatch a selection from the review or payments screen
//	@Tags		payroll
//	@Param		stage	path	string	true	"review or payments"
//	@Router		/payroll/batches/{stage}/dispatch [post]
func (h *PayrollHandler) DispatchBatch(c *gin.Context) {
	biz, ok := h.requireBusiness(c)
	if !ok {
		return
	}
	stage, err := apppayroll.ParseBatchStage(c.Param("stage"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	var q dto.PeriodQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.ValidationFailed(c, err)
		return
	}
	var req apppayroll.BatchDispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationFailed(c, err)
		return
	}
	key, err := payroll.NewPeriodKey(biz, q.Month, q.Year)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	ctx := c.Request.Context()
	batch := apppayroll.NewBatchSelectionCoordinator(key, stage, h.periods.Workflow(), h.periods)
	batch.SetIdempotencyKey(c.GetHeader(middleware.IdempotencyKeyHeader))
	if req.SelectAll {
		excluded := make(map[uuid.UUID]struct{}, len(req.ExcludeIDs))
		for _, id := range req.ExcludeIDs {
			excluded[id] = struct{}{}
		}
		if _, err := batch.SelectAll(ctx, func(r *payroll.PayrollRecord) bool {
			_, skip := excluded[r.ID]
			return !skip
		}); err != nil {
			h.HandleError(c, err)
			return
		}
	} else {
		seen := make(map[uuid.UUID]struct{}, len(req.RecordIDs))
		for _, id := range req.RecordIDs {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			batch.Toggle(id)
		}
	}

	result, err := batch.Dispatch(ctx)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, apppayroll.ToDispatchResponse(result))
}

// PayslipURL returns a download link for the payslip of a paid record
func (h *PayrollHandler) PayslipURL(c *gin.Context) {
	biz, ok := h.requireBusiness(c)
	if !ok {
		return
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		h.BadRequest(c, "Invalid record ID format")
		return
	}

	url, err := h.documents.PayslipURL(c.Request.Context(), biz, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, url)
}

// RegeneratePayslip renders and stores the payslip of a paid record again
func (h *PayrollHandler) RegeneratePayslip(c *gin.Context) {
	biz, ok := h.requireBusiness(c)
	if !ok {
		return
	}
	if h.payslips == nil {
		h.HandleError(c, shared.NewGuardViolation("PAYSLIPS_DISABLED", "payslip generation is disabled"))
		return
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		h.BadRequest(c, "Invalid record ID format")
		return
	}

	doc, err := h.payslips.Publish(c.Request.Context(), biz, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, apppayroll.ToDocumentResponse(doc))
}
