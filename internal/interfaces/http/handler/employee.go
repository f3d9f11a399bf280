package handler

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	apppayroll "github.com/hrpay/backend/internal/application/payroll"
	"github.com/hrpay/backend/internal/domain/payroll"
	"github.com/hrpay/backend/internal/domain/shared"
	"github.com/hrpay/backend/internal/interfaces/http/dto"
)

// EmployeeHandler manages employees and their payment channels
type EmployeeHandler struct {
	BaseHandler
	employees *apppayroll.EmployeeService
	channels  *apppayroll.PaymentChannelBinder
}

// NewEmployeeHandler creates a new EmployeeHandler
func NewEmployeeHandler(employees *apppayroll.EmployeeService, channels *apppayroll.PaymentChannelBinder) *EmployeeHandler {
	return &EmployeeHandler{employees: employees, channels: channels}
}

// Create godoc
//
//	@Summary	Create an employee
//	@Tags		employees
//	@Router		/employees [post]
func (h *EmployeeHandler) Create(c *gin.Context) {
	biz, ok := h.requireBusiness(c)
	if !ok {
		return
	}
	var req apppayroll.CreateEmployeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationFailed(c, err)
		return
	}

	employee, err := h.employees.Create(c.Request.Context(), biz, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, apppayroll.ToEmployeeResponse(employee))
}

type listEmployeesQuery struct {
	dto.ListRequest
	Active *bool `form:"active"`
}

// List returns a page of employees; search matches name, number or email
func (h *EmployeeHandler) List(c *gin.Context) {
	biz, ok := h.requireBusiness(c)
	if !ok {
		return
	}
	q := listEmployeesQuery{ListRequest: dto.DefaultListRequest()}
	if err := c.ShouldBindQuery(&q); err != nil {
		h.ValidationFailed(c, err)
		return
	}

	filter := payroll.EmployeeFilter{Filter: shared.DefaultFilter(), Active: q.Active}
	filter.Page = q.Page
	filter.PageSize = q.PageSize
	filter.OrderBy = q.OrderBy
	filter.OrderDir = q.OrderDir
	filter.Search = q.Search

	employees, total, err := h.employees.List(c.Request.Context(), biz, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, apppayroll.ToEmployeeResponses(employees), total, filter.Page, filter.PageSize)
}

// Get returns one employee
func (h *EmployeeHandler) Get(c *gin.Context) {
	biz, id, ok := h.employeeScope(c)
	if !ok {
		return
	}
	employee, err := h.employees.Get(c.Request.Context(), biz, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, apppayroll.ToEmployeeResponse(employee))
}

type setActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// SetActive includes or excludes the employee from future payroll runs
func (h *EmployeeHandler) SetActive(c *gin.Context) {
	biz, id, ok := h.employeeScope(c)
	if !ok {
		return
	}
	var req setActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationFailed(c, err)
		return
	}

	employee, err := h.employees.SetActive(c.Request.Context(), biz, id, *req.Active)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, apppayroll.ToEmployeeResponse(employee))
}

// SetBankChannel godoc
//
//	@Summary	Replace the payment channel with bank accounts
//	@Description	Any wallet is removed in the same write.
//	@Tags		employees
//	@Router		/employees/{id}/channel/bank [put]
func (h *EmployeeHandler) SetBankChannel(c *gin.Context) {
	biz, id, ok := h.employeeScope(c)
	if !ok {
		return
	}
	var req apppayroll.SetBankChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationFailed(c, err)
		return
	}

	employee, err := h.channels.SetBankChannel(c.Request.Context(), biz, id, req.ToDomain())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, apppayroll.ToEmployeeResponse(employee))
}

// SetWalletChannel godoc
//
//	@Summary	Replace the payment channel with a mobile wallet
//	@Description	Any bank accounts are removed in the same write.
//	@Tags		employees
//	@Router		/employees/{id}/channel/wallet [put]
func (h *EmployeeHandler) SetWalletChannel(c *gin.Context) {
	biz, id, ok := h.employeeScope(c)
	if !ok {
		return
	}
	var req apppayroll.SetWalletChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationFailed(c, err)
		return
	}

	employee, err := h.channels.SetWalletChannel(c.Request.Context(), biz, id, req.WalletID, req.PhoneNumber, req.Active())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, apppayroll.ToEmployeeResponse(employee))
}

// AddBankAccount appends an account to an existing bank channel
func (h *EmployeeHandler) AddBankAccount(c *gin.Context) {
	biz, id, ok := h.employeeScope(c)
	if !ok {
		return
	}
	var req apppayroll.BankAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationFailed(c, err)
		return
	}

	employee, err := h.channels.AddBankAccount(c.Request.Context(), biz, id, req.ToDomain())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, apppayroll.ToEmployeeResponse(employee))
}

// ClearChannel removes the payment channel. ?kind= must name the active channel when given.
func (h *EmployeeHandler) ClearChannel(c *gin.Context) {
	biz, id, ok := h.employeeScope(c)
	if !ok {
		return
	}
	kind, err := payroll.ParseChannelKind(c.Query("kind"))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	employee, err := h.channels.ClearChannel(c.Request.Context(), biz, id, kind)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, apppayroll.ToEmployeeResponse(employee))
}

// ResolvePrimary returns where a transfer to the employee would go
func (h *EmployeeHandler) ResolvePrimary(c *gin.Context) {
	biz, id, ok := h.employeeScope(c)
	if !ok {
		return
	}
	dest, resolved, err := h.channels.ResolvePrimary(c.Request.Context(), biz, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	resp := apppayroll.DestinationResponse{Resolved: resolved}
	if resolved {
		resp.Destination = &dest
	}
	h.Success(c, resp)
}

// employeeScope resolves the business and the :id path parameter
func (h *EmployeeHandler) employeeScope(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	biz, ok := h.requireBusiness(c)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		h.BadRequest(c, "Invalid employee ID format")
		return uuid.Nil, uuid.Nil, false
	}
	return biz, id, true
}

// DocumentHandler manages employee documents stored in object storage
type DocumentHandler struct {
	BaseHandler
	documents *apppayroll.DocumentService
}

// NewDocumentHandler creates a new DocumentHandler
func NewDocumentHandler(documents *apppayroll.DocumentService) *DocumentHandler {
	return &DocumentHandler{documents: documents}
}

// InitiateUpload godoc
//
//	@Summary	Create a pending document and return a presigned upload URL
//	@Tags		documents
//	@Router		/employees/{id}/documents [post]
func (h *DocumentHandler) InitiateUpload(c *gin.Context) {
	biz, employeeID, ok := h.scope(c)
	if !ok {
		return
	}
	var req apppayroll.InitiateUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationFailed(c, err)
		return
	}

	kind := payroll.DocumentKind(strings.ToUpper(strings.TrimSpace(req.Kind)))
	doc, url, err := h.documents.InitiateUpload(c.Request.Context(), biz, employeeID, kind, req.FileName, req.ContentType)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, apppayroll.UploadURLResponse{
		Document:  apppayroll.ToDocumentResponse(doc),
		UploadURL: url.URL,
		ExpiresAt: url.ExpiresAt,
	})
}

// ConfirmUpload registers a document once its object is in storage
func (h *DocumentHandler) ConfirmUpload(c *gin.Context) {
	biz, employeeID, ok := h.scope(c)
	if !ok {
		return
	}
	docID, err := pathUUID(c, "doc_id")
	if err != nil {
		h.BadRequest(c, "Invalid document ID format")
		return
	}
	var req apppayroll.ConfirmUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationFailed(c, err)
		return
	}

	doc, err := h.documents.ConfirmUpload(c.Request.Context(), biz, employeeID, docID, req.SizeBytes)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, apppayroll.ToDocumentResponse(doc))
}

// List returns every document of an employee, payslips included
func (h *DocumentHandler) List(c *gin.Context) {
	biz, employeeID, ok := h.scope(c)
	if !ok {
		return
	}
	docs, err := h.documents.ListDocuments(c.Request.Context(), biz, employeeID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	out := make([]apppayroll.DocumentResponse, len(docs))
	for i, d := range docs {
		out[i] = apppayroll.ToDocumentResponse(d)
	}
	h.Success(c, out)
}

// DownloadURL returns a presigned download link for a registered document
func (h *DocumentHandler) DownloadURL(c *gin.Context) {
	biz, employeeID, ok := h.scope(c)
	if !ok {
		return
	}
	docID, err := pathUUID(c, "doc_id")
	if err != nil {
		h.BadRequest(c, "Invalid document ID format")
		return
	}

	url, err := h.documents.DownloadURL(c.Request.Context(), biz, employeeID, docID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, url)
}

func (h *DocumentHandler) scope(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	biz, ok := h.requireBusiness(c)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		h.BadRequest(c, "Invalid employee ID format")
		return uuid.Nil, uuid.Nil, false
	}
	return biz, id, true
}
