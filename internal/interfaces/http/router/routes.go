package router

import (
	"github.com/gin-gonic/gin"
	"github.com/hrpay/backend/internal/infrastructure/authz"
	"github.com/hrpay/backend/internal/interfaces/http/handler"
)

// Handlers are the API handlers mounted by PayrollAPI
type Handlers struct {
	Payroll    *handler.PayrollHandler
	Employees  *handler.EmployeeHandler
	Documents  *handler.DocumentHandler
	Deductions *handler.DeductionHandler
	Auth       *handler.AuthHandler
}

// Guard returns the middleware that requires act on obj
type Guard func(obj, act string) gin.HandlerFunc

// PayrollAPI builds the authenticated route groups. Every route carries the
// permission it needs.
func PayrollAPI(h Handlers, guard Guard) []RouteRegistrar {
	payroll := NewResourceGroup("/payroll")
	payroll.
		POST("/process", guard(authz.ObjPeriod, authz.ActProcess), h.Payroll.ProcessPeriod).
		GET("/period", guard(authz.ObjPeriod, authz.ActRead), h.Payroll.GetPeriod).
		GET("/history", guard(authz.ObjRecord, authz.ActRead), h.Payroll.GetHistory).
		GET("/records", guard(authz.ObjRecord, authz.ActRead), h.Payroll.ListRecords).
		GET("/records/:id", guard(authz.ObjRecord, authz.ActRead), h.Payroll.GetRecord).
		GET("/records/:id/payslip", guard(authz.ObjPayslip, authz.ActRead), h.Payroll.PayslipURL).
		POST("/records/:id/payslip", guard(authz.ObjPayslip, authz.ActWrite), h.Payroll.RegeneratePayslip).
		POST("/approve", guard(authz.ObjPeriod, authz.ActApprove), h.Payroll.ApprovePeriod).
		POST("/payments", guard(authz.ObjPayment, authz.ActPay), h.Payroll.ProcessPayments).
		POST("/requeue", guard(authz.ObjPayment, authz.ActPay), h.Payroll.RequeueFailed).
		POST("/batches/review/dispatch", guard(authz.ObjPeriod, authz.ActApprove), withStage("review", h.Payroll.DispatchBatch)).
		POST("/batches/payments/dispatch", guard(authz.ObjPayment, authz.ActPay), withStage("payments", h.Payroll.DispatchBatch))

	employees := NewResourceGroup("/employees")
	employees.
		POST("", guard(authz.ObjEmployee, authz.ActWrite), h.Employees.Create).
		GET("", guard(authz.ObjEmployee, authz.ActRead), h.Employees.List).
		GET("/:id", guard(authz.ObjEmployee, authz.ActRead), h.Employees.Get).
		PUT("/:id/active", guard(authz.ObjEmployee, authz.ActWrite), h.Employees.SetActive).
		GET("/:id/channel", guard(authz.ObjChannel, authz.ActRead), h.Employees.ResolvePrimary).
		PUT("/:id/channel/bank", guard(authz.ObjChannel, authz.ActWrite), h.Employees.SetBankChannel).
		POST("/:id/channel/bank/accounts", guard(authz.ObjChannel, authz.ActWrite), h.Employees.AddBankAccount).
		PUT("/:id/channel/wallet", guard(authz.ObjChannel, authz.ActWrite), h.Employees.SetWalletChannel).
		DELETE("/:id/channel", guard(authz.ObjChannel, authz.ActWrite), h.Employees.ClearChannel).
		GET("/:id/deductions", guard(authz.ObjDeduction, authz.ActRead), h.Deductions.ListByEmployee).
		POST("/:id/documents", guard(authz.ObjDocument, authz.ActWrite), h.Documents.InitiateUpload).
		GET("/:id/documents", guard(authz.ObjDocument, authz.ActRead), h.Documents.List).
		POST("/:id/documents/:doc_id/confirm", guard(authz.ObjDocument, authz.ActWrite), h.Documents.ConfirmUpload).
		GET("/:id/documents/:doc_id/download", guard(authz.ObjDocument, authz.ActRead), h.Documents.DownloadURL)

	deductions := NewResourceGroup("/deductions")
	deductions.
		POST("", guard(authz.ObjDeduction, authz.ActWrite), h.Deductions.Create).
		PUT("/:id/status", guard(authz.ObjDeduction, authz.ActWrite), h.Deductions.UpdateStatus).
		GET("/:id/ledger", guard(authz.ObjDeduction, authz.ActRead), h.Deductions.Ledger)

	auth := NewResourceGroup("/auth")
	auth.
		POST("/logout", h.Auth.Logout).
		POST("/revoke", guard(authz.ObjAuth, authz.ActRevoke), h.Auth.Revoke)

	return []RouteRegistrar{payroll, employees, deductions, auth}
}

// withStage pins the :stage parameter for a fixed dispatch route
func withStage(stage string, next gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Params = append(c.Params, gin.Param{Key: "stage", Value: stage})
		next(c)
	}
}

// SystemRoutes mounts the unauthenticated health routes at the engine root
func SystemRoutes(engine *gin.Engine, h *handler.SystemHandler) {
	engine.GET("/health", h.Health)
	engine.GET("/ready", h.Ready)
	engine.GET("/api/v1/health", h.Health)
	engine.GET("/api/v1/system/info", h.Info)
}
