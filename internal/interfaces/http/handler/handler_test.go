package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	apppayroll "github.com/hrpay/backend/internal/application/payroll"
	"github.com/hrpay/backend/internal/domain/payroll"
	"github.com/hrpay/backend/internal/infrastructure/auth"
	"github.com/hrpay/backend/internal/infrastructure/cache"
	"github.com/hrpay/backend/internal/infrastructure/config"
	"github.com/hrpay/backend/internal/infrastructure/disbursement"
	"github.com/hrpay/backend/internal/infrastructure/payslip"
	"github.com/hrpay/backend/internal/infrastructure/persistence"
	"github.com/hrpay/backend/internal/infrastructure/persistence/models"
	"github.com/hrpay/backend/internal/infrastructure/storage"
	"github.com/hrpay/backend/internal/infrastructure/taxengine"
	"github.com/hrpay/backend/internal/interfaces/http/dto"
	"github.com/hrpay/backend/internal/interfaces/http/middleware"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	t          *testing.T
	engine     *gin.Engine
	jwt        *auth.JWTService
	blacklist  *auth.InMemoryTokenBlacklist
	businessID uuid.UUID
	token      string
	employees  *apppayroll.EmployeeService
	channels   *apppayroll.PaymentChannelBinder
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(models.PayrollModels()...))

	logger := zaptest.NewLogger(t)
	repos := persistence.NewPayrollRepositories(db)
	txScope := persistence.NewGormTransactionScope(db)

	channels := apppayroll.NewPaymentChannelBinder(txScope, repos.Employees, logger)
	reconciler := apppayroll.NewDeductionReconciler(txScope, repos, taxengine.NewStubCalculator(), logger)
	workflow := apppayroll.NewPayrollWorkflowContext(repos.Periods, repos.Records)
	periods := apppayroll.NewPeriodStateMachine(txScope, repos, reconciler, channels,
		disbursement.NewStubGateway(logger), workflow, logger)
	idempotency := cache.NewInMemoryIdempotencyStore()
	t.Cleanup(func() { _ = idempotency.Close() })
	periods.SetIdempotencyStore(idempotency, time.Hour)
	documents := apppayroll.NewDocumentService(repos, storage.NewStubObjectStorage(), logger)
	payslips := apppayroll.NewPayslipPublisher(repos, documents, payslip.NewRenderer("Acme Ltd"), logger)
	employees := apppayroll.NewEmployeeService(txScope, repos.Employees, logger)

	payrollHandler := NewPayrollHandler(periods, documents, payslips)
	employeeHandler := NewEmployeeHandler(employees, channels)
	deductionHandler := NewDeductionHandler(reconciler)
	blacklist := auth.NewInMemoryTokenBlacklist()
	authHandler := NewAuthHandler(blacklist, 15*time.Minute, logger)

	jwtService := auth.NewJWTService(config.JWTConfig{
		Secret:                "test-secret-key-at-least-32-chars",
		Issuer:                "hrpay-test",
		AccessTokenExpiration: 15 * time.Minute,
	})
	jwtConfig := middleware.DefaultJWTConfig(jwtService)
	jwtConfig.TokenBlacklist = blacklist
	jwtConfig.Logger = logger

	engine := gin.New()
	api := engine.Group("/api/v1",
		middleware.RequestID(),
		middleware.JWTAuthMiddleware(jwtConfig),
		middleware.BusinessContext(),
	)
	api.POST("/payroll/process", payrollHandler.ProcessPeriod)
	api.GET("/payroll/period", payrollHandler.GetPeriod)
	api.GET("/payroll/records", payrollHandler.ListRecords)
	api.GET("/payroll/records/:id", payrollHandler.GetRecord)
	api.POST("/payroll/records/:id/payslip", payrollHandler.RegeneratePayslip)
	api.GET("/payroll/records/:id/payslip", payrollHandler.PayslipURL)
	api.POST("/payroll/approve", payrollHandler.ApprovePeriod)
	api.POST("/payroll/payments", payrollHandler.ProcessPayments)
	api.POST("/payroll/batches/:stage/dispatch", payrollHandler.DispatchBatch)
	api.POST("/employees", employeeHandler.Create)
	api.PUT("/employees/:id/channel/bank", employeeHandler.SetBankChannel)
	api.POST("/deductions", deductionHandler.Create)
	api.POST("/auth/logout", authHandler.Logout)
	api.POST("/auth/revoke", authHandler.Revoke)

	s := &testServer{
		t:          t,
		engine:     engine,
		jwt:        jwtService,
		blacklist:  blacklist,
		businessID: uuid.New(),
		employees:  employees,
		channels:   channels,
	}
	s.token = s.issue(s.businessID)
	return s
}

func (s *testServer) issue(businessID uuid.UUID) string {
	s.t.Helper()
	token, _, err := s.jwt.IssueAccessToken(auth.IssueInput{
		BusinessID: businessID,
		UserID:     uuid.New(),
		Username:   "officer",
		Roles:      []string{"payroll_admin"},
	})
	require.NoError(s.t, err)
	return token
}

func (s *testServer) do(method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	s.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.AuthHeaderKey, middleware.BearerPrefix+s.token)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

// decode unpacks the envelope and, when out is non-nil, its data
func decode(t *testing.T, w *httptest.ResponseRecorder, out any) dto.Response {
	t.Helper()
	var envelope struct {
		dto.Response
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope), w.Body.String())
	if out != nil {
		require.NoError(t, json.Unmarshal(envelope.Data, out), w.Body.String())
	}
	return envelope.Response
}

func (s *testServer) hire(name string, basic int64) uuid.UUID {
	s.t.Helper()
	e, err := s.employees.Create(context.Background(), s.businessID, apppayroll.CreateEmployeeRequest{
		Name:        name,
		BasicSalary: decimal.NewFromInt(basic),
	})
	require.NoError(s.t, err)
	return e.ID
}

func settingsBody() *payroll.Settings {
	return &payroll.Settings{
		Currency: "KES",
		Tax:      payroll.TaxSettings{PAYE: true, NHIF: true, NSSF: true},
		Allowances: []payroll.AllowanceDefinition{
			{Name: "house", Mode: payroll.AllowanceModeFixed, Value: decimal.NewFromInt(5000), Enabled: true, Taxable: true},
		},
	}
}

func (s *testServer) process(month, year int) []apppayroll.RecordResponse {
	s.t.Helper()
	w := s.do(http.MethodPost, "/api/v1/payroll/process", apppayroll.ProcessPeriodRequest{
		Month: month, Year: year, Settings: settingsBody(),
	})
	require.Equal(s.t, http.StatusOK, w.Code, w.Body.String())
	var records []apppayroll.RecordResponse
	decode(s.t, w, &records)
	return records
}

func TestPayrollHandler_ProcessAndGetPeriod(t *testing.T) {
	s := newTestServer(t)
	s.hire("Alice Njeri", 90000)
	s.hire("Bob Otieno", 50000)

	records := s.process(3, 2024)
	require.Len(t, records, 2)
	for _, r := range records {
		assert.Equal(t, string(payroll.RecordStatusProcessed), r.Status)
		assert.True(t, r.GrossSalary.Equal(r.BasicSalary.Add(decimal.NewFromInt(5000))))
	}

	w := s.do(http.MethodGet, "/api/v1/payroll/period?month=3&year=2024", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var period apppayroll.PeriodResponse
	resp := decode(t, w, &period)
	assert.True(t, resp.Success)
	assert.Equal(t, string(payroll.PeriodStatusProcessed), period.Status)
	assert.Equal(t, 2, period.RecordCount)
	assert.False(t, period.Locked)

	w = s.do(http.MethodGet, "/api/v1/payroll/records?month=3&year=2024&page_size=1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var page []apppayroll.RecordResponse
	resp = decode(t, w, &page)
	assert.Len(t, page, 1)
	require.NotNil(t, resp.Meta)
	assert.EqualValues(t, 2, resp.Meta.Total)
	assert.Equal(t, 2, resp.Meta.TotalPages)
}

func TestPayrollHandler_ErrorMapping(t *testing.T) {
	s := newTestServer(t)
	s.hire("Alice Njeri", 90000)
	records := s.process(4, 2024)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{
			name:   "binding rejects month 13",
			method: http.MethodPost,
			path:   "/api/v1/payroll/process",
			body:   gin.H{"month": 13, "year": 2024},
			status: http.StatusBadRequest,
			code:   dto.ErrCodeValidation,
		},
		{
			name:   "missing settings",
			method: http.MethodPost,
			path:   "/api/v1/payroll/process",
			body:   gin.H{"month": 4, "year": 2024},
			status: http.StatusBadRequest,
			code:   dto.ErrCodeValidation,
		},
		{
			name:   "unknown record",
			method: http.MethodGet,
			path:   "/api/v1/payroll/records/" + uuid.NewString(),
			status: http.StatusNotFound,
			code:   dto.ErrCodeNotFound,
		},
		{
			name:   "malformed record id",
			method: http.MethodGet,
			path:   "/api/v1/payroll/records/not-a-uuid",
			status: http.StatusBadRequest,
			code:   dto.ErrCodeBadRequest,
		},
		{
			name:   "payslip of an unpaid record",
			method: http.MethodGet,
			path:   fmt.Sprintf("/api/v1/payroll/records/%s/payslip", records[0].ID),
			status: http.StatusUnprocessableEntity,
			code:   dto.ErrCodeGuardViolation,
		},
		{
			name:   "unknown batch stage",
			method: http.MethodPost,
			path:   "/api/v1/payroll/batches/archive/dispatch?month=4&year=2024",
			body:   apppayroll.BatchDispatchRequest{SelectAll: true},
			status: http.StatusBadRequest,
			code:   dto.ErrCodeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			resp := decode(t, w, nil)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.NotEmpty(t, resp.Error.RequestID)
		})
	}
}

func TestPayrollHandler_DispatchAndPay(t *testing.T) {
	s := newTestServer(t)
	alice := s.hire("Alice Njeri", 90000)
	bob := s.hire("Bob Otieno", 50000)

	w := s.do(http.MethodPut, fmt.Sprintf("/api/v1/employees/%s/channel/bank", alice), apppayroll.SetBankChannelRequest{
		Accounts: []apppayroll.BankAccountRequest{{
			BankName:      "Equity",
			AccountNumber: "0123456789",
			AccountType:   string(payroll.BankAccountSavings),
			IsPrimary:     true,
		}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	records := s.process(5, 2024)
	var bobRecord uuid.UUID
	for _, r := range records {
		if r.EmployeeID == bob {
			bobRecord = r.ID
		}
	}

	w = s.do(http.MethodPost, "/api/v1/payroll/batches/review/dispatch?month=5&year=2024",
		apppayroll.BatchDispatchRequest{SelectAll: true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var review apppayroll.DispatchResponse
	decode(t, w, &review)
	assert.Equal(t, string(apppayroll.BatchStageReview), review.Stage)
	assert.Len(t, review.Records, 2)
	assert.Nil(t, review.Report)

	w = s.do(http.MethodPost, "/api/v1/payroll/batches/payments/dispatch?month=5&year=2024",
		apppayroll.BatchDispatchRequest{SelectAll: true}, middleware.IdempotencyKeyHeader, "may-run")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var pay apppayroll.DispatchResponse
	decode(t, w, &pay)
	require.NotNil(t, pay.Report)
	assert.Equal(t, 1, pay.Report.ProcessedCount, "bob has no payment channel")
	assert.Equal(t, []uuid.UUID{bobRecord}, pay.Report.FailedIDs)

	all := make([]uuid.UUID, 0, len(records))
	for _, r := range records {
		all = append(all, r.ID)
	}
	w = s.do(http.MethodPost, "/api/v1/payroll/payments", apppayroll.ProcessPaymentsRequest{
		Month: 5, Year: 2024, PaymentIDs: all,
	}, middleware.IdempotencyKeyHeader, "may-run")
	assert.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	assert.Equal(t, dto.ErrCodeDuplicateRequest, decode(t, w, nil).Error.Code)

	w = s.do(http.MethodGet, "/api/v1/payroll/period?month=5&year=2024", nil)
	var period apppayroll.PeriodResponse
	decode(t, w, &period)
	assert.Equal(t, 1, period.StatusCounts[string(payroll.RecordStatusPaid)])
	assert.Equal(t, 1, period.StatusCounts[string(payroll.RecordStatusFailed)])
}

func TestAuthHandler_LogoutRevokesToken(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/v1/auth/logout", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodGet, "/api/v1/payroll/period?month=1&year=2024", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, dto.ErrCodeTokenRevoked, decode(t, w, nil).Error.Code)
}

func TestAuthHandler_Revoke(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/v1/auth/revoke", RevokeRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/api/v1/auth/revoke", RevokeRequest{TokenID: "jti-1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	revoked, err := s.blacklist.IsRevoked(context.Background(), "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestBusinessHeaderMismatchIsForbidden(t *testing.T) {
	s := newTestServer(t)
	w := s.do(http.MethodGet, "/api/v1/payroll/period?month=1&year=2024", nil,
		middleware.BusinessIDHeader, uuid.NewString())
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSystemHandler_Ready(t *testing.T) {
	healthy := NewSystemHandler("hrpay", "test", map[string]HealthCheck{
		"database": func(context.Context) error { return nil },
	})
	broken := NewSystemHandler("hrpay", "test", map[string]HealthCheck{
		"database": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("dial tcp: connection refused") },
	})

	engine := gin.New()
	engine.GET("/ready", healthy.Ready)
	engine.GET("/broken", broken.Ready)
	engine.GET("/info", healthy.Info)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/broken", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var results map[string]string
	decode(t, w, &results)
	assert.Equal(t, "ok", results["database"])
	assert.Contains(t, results["redis"], "connection refused")

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/info", nil))
	var info SystemInfoResponse
	decode(t, w, &info)
	assert.Equal(t, "hrpay", info.Name)
}
