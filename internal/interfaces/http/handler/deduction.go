package handler

import (
	"github.com/gin-gonic/gin"
	apppayroll "github.com/hrpay/backend/internal/application/payroll"
)

// DeductionHandler manages custom deductions and their installment ledgers
type DeductionHandler struct {
	BaseHandler
	reconciler *apppayroll.DeductionReconciler
}

// NewDeductionHandler creates a new DeductionHandler
func NewDeductionHandler(reconciler *apppayroll.DeductionReconciler) *DeductionHandler {
	return &DeductionHandler{reconciler: reconciler}
}

// Create godoc
//
//	@Summary	Add a custom deduction to an employee
//	@Description	Loans and advances are amortized over their months; the
//	@Description	remaining amount decreases as periods are processed.
//	@Tags		deductions
//	@Router		/deductions [post]
func (h *DeductionHandler) Create(c *gin.Context) {
	biz, ok := h.requireBusiness(c)
	if !ok {
		return
	}
	var req apppayroll.AddCustomDeductionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationFailed(c, err)
		return
	}

	deduction, err := h.reconciler.AddCustomDeduction(c.Request.Context(), biz, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, apppayroll.ToDeductionResponse(deduction))
}

// UpdateStatus pauses, resumes or cancels a deduction
func (h *DeductionHandler) UpdateStatus(c *gin.Context) {
	biz, ok := h.requireBusiness(c)
	if !ok {
		return
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		h.BadRequest(c, "Invalid deduction ID format")
		return
	}
	var req apppayroll.UpdateDeductionStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationFailed(c, err)
		return
	}

	deduction, err := h.reconciler.UpdateDeductionStatus(c.Request.Context(), biz, id, req.Status)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, apppayroll.ToDeductionResponse(deduction))
}

// ListByEmployee lists the deductions of the employee in :id
func (h *DeductionHandler) ListByEmployee(c *gin.Context) {
	biz, ok := h.requireBusiness(c)
	if !ok {
		return
	}
	employeeID, err := pathUUID(c, "id")
	if err != nil {
		h.BadRequest(c, "Invalid employee ID format")
		return
	}

	deductions, err := h.reconciler.ListCustomDeductions(c.Request.Context(), biz, employeeID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, apppayroll.ToDeductionResponses(deductions))
}

// Ledger returns a deduction with every installment applied so far
func (h *DeductionHandler) Ledger(c *gin.Context) {
	biz, ok := h.requireBusiness(c)
	if !ok {
		return
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		h.BadRequest(c, "Invalid deduction ID format")
		return
	}

	deduction, installments, err := h.reconciler.Ledger(c.Request.Context(), biz, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, apppayroll.LedgerResponse{
		Deduction:    apppayroll.ToDeductionResponse(deduction),
		Installments: installments,
		AppliedTotal: deduction.AppliedAmount(),
	})
}
