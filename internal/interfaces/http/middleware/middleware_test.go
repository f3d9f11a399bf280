package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hrpay/backend/internal/infrastructure/auth"
	"github.com/hrpay/backend/internal/infrastructure/authz"
	"github.com/hrpay/backend/internal/infrastructure/config"
	"github.com/hrpay/backend/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestJWTService() *auth.JWTService {
	return auth.NewJWTService(config.JWTConfig{
		Secret:                "test-secret-key-at-least-32-chars",
		Issuer:                "hrpay-test",
		AccessTokenExpiration: 15 * time.Minute,
	})
}

func issueToken(t *testing.T, svc *auth.JWTService, businessID uuid.UUID, roles ...string) (string, *auth.Claims) {
	t.Helper()
	token, _, err := svc.IssueAccessToken(auth.IssueInput{
		BusinessID: businessID,
		UserID:     uuid.New(),
		Username:   "officer",
		Roles:      roles,
	})
	require.NoError(t, err)
	claims, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)
	return token, claims
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) *dto.ErrorInfo {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	return resp.Error
}

func protectedRouter(cfg JWTMiddlewareConfig, handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), JWTAuthMiddleware(cfg), BusinessContext())
	chain := append(handlers, func(c *gin.Context) {
		id, _ := GetBusinessID(c)
		c.JSON(http.StatusOK, gin.H{"business_id": id.String(), "roles": GetJWTRoles(c)})
	})
	r.GET("/api/v1/payroll", chain...)
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestJWTAuthMiddleware(t *testing.T) {
	svc := newTestJWTService()
	businessID := uuid.New()
	token, claims := issueToken(t, svc, businessID, auth.RoleViewer)

	t.Run("valid token resolves the business", func(t *testing.T) {
		r := protectedRouter(DefaultJWTConfig(svc))
		req := httptest.NewRequest(http.MethodGet, "/api/v1/payroll", nil)
		req.Header.Set(AuthHeaderKey, BearerPrefix+token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), businessID.String())
	})

	t.Run("skip path needs no token", func(t *testing.T) {
		r := protectedRouter(DefaultJWTConfig(svc))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	tests := []struct {
		name   string
		header string
		code   string
	}{
		{"missing header", "", dto.ErrCodeTokenInvalid},
		{"wrong scheme", "Basic abc", dto.ErrCodeTokenInvalid},
		{"garbage token", BearerPrefix + "not-a-jwt", dto.ErrCodeTokenInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := protectedRouter(DefaultJWTConfig(svc))
			req := httptest.NewRequest(http.MethodGet, "/api/v1/payroll", nil)
			if tt.header != "" {
				req.Header.Set(AuthHeaderKey, tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			errInfo := decodeError(t, w)
			assert.Equal(t, tt.code, errInfo.Code)
			assert.NotEmpty(t, errInfo.RequestID)
		})
	}

	t.Run("revoked token", func(t *testing.T) {
		blacklist := auth.NewInMemoryTokenBlacklist()
		require.NoError(t, blacklist.Revoke(context.Background(), claims.ID, time.Hour))

		cfg := DefaultJWTConfig(svc)
		cfg.TokenBlacklist = blacklist
		cfg.Logger = zaptest.NewLogger(t)
		r := protectedRouter(cfg)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/payroll", nil)
		req.Header.Set(AuthHeaderKey, BearerPrefix+token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, dto.ErrCodeTokenRevoked, decodeError(t, w).Code)
	})

	t.Run("revoked user", func(t *testing.T) {
		other, otherClaims := issueToken(t, svc, businessID, auth.RoleViewer)
		blacklist := auth.NewInMemoryTokenBlacklist()
		require.NoError(t, blacklist.RevokeUser(context.Background(), otherClaims.UserID, time.Hour))

		cfg := DefaultJWTConfig(svc)
		cfg.TokenBlacklist = blacklist
		r := protectedRouter(cfg)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/payroll", nil)
		req.Header.Set(AuthHeaderKey, BearerPrefix+other)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestBusinessContext_HeaderMismatch(t *testing.T) {
	svc := newTestJWTService()
	businessID := uuid.New()
	token, _ := issueToken(t, svc, businessID, auth.RoleViewer)
	r := protectedRouter(DefaultJWTConfig(svc))

	t.Run("matching header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/payroll", nil)
		req.Header.Set(AuthHeaderKey, BearerPrefix+token)
		req.Header.Set(BusinessIDHeader, businessID.String())
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("other business", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/payroll", nil)
		req.Header.Set(AuthHeaderKey, BearerPrefix+token)
		req.Header.Set(BusinessIDHeader, uuid.NewString())
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, dto.ErrCodeForbidden, decodeError(t, w).Code)
	})
}

func newTestAuthorizer(t *testing.T, mode authz.Mode) *authz.Authorizer {
	t.Helper()
	a, err := authz.NewAuthorizer(
		"../../../../config/authz/model.conf",
		"../../../../config/authz/policy.csv",
		mode,
		zaptest.NewLogger(t),
	)
	require.NoError(t, err)
	return a
}

func TestRequirePermission(t *testing.T) {
	svc := newTestJWTService()
	businessID := uuid.New()

	tests := []struct {
		name   string
		mode   authz.Mode
		role   string
		status int
	}{
		{"approver may pay", authz.ModeEnforce, auth.RoleApprover, http.StatusOK},
		{"admin inherits pay", authz.ModeEnforce, auth.RoleAdmin, http.StatusOK},
		{"officer may not pay", authz.ModeEnforce, auth.RoleOfficer, http.StatusForbidden},
		{"viewer may not pay", authz.ModeEnforce, auth.RoleViewer, http.StatusForbidden},
		{"shadow mode lets the denial through", authz.ModeShadow, auth.RoleViewer, http.StatusOK},
		{"disabled mode allows everything", authz.ModeDisabled, auth.RoleViewer, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, _ := issueToken(t, svc, businessID, tt.role)
			r := protectedRouter(DefaultJWTConfig(svc),
				RequirePermission(newTestAuthorizer(t, tt.mode), authz.ObjPayment, authz.ActPay, zaptest.NewLogger(t)))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/payroll", nil)
			req.Header.Set(AuthHeaderKey, BearerPrefix+token)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, GetRequestID(c)) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	generated := w.Header().Get(RequestIDHeader)
	_, err := uuid.Parse(generated)
	assert.NoError(t, err)
	assert.Equal(t, generated, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "client-req-1")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "client-req-1", w.Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", MaxRequestIDLength+1))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Len(t, w.Header().Get(RequestIDHeader), 36)
}

func TestBodyLimit(t *testing.T) {
	r := gin.New()
	r.Use(BodyLimit(16))
	r.POST("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":1}`)))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 64))))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, dto.ErrCodeRequestTooLarge, decodeError(t, w).Code)
}

func TestCORSWithConfig(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowOrigins = []string{"https://hr.example.com"}
	r := gin.New()
	r.Use(CORSWithConfig(cfg))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://hr.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://hr.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), IdempotencyKeyHeader)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestTimeout(t *testing.T) {
	r := gin.New()
	r.Use(Timeout(50 * time.Millisecond))
	r.GET("/", func(c *gin.Context) {
		deadline, ok := c.Request.Context().Deadline()
		assert.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(50*time.Millisecond), deadline, 50*time.Millisecond)
		c.Status(http.StatusOK)
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestIsKenyanPhone(t *testing.T) {
	valid := []string{"0712345678", "712345678", "+254712345678", "254112345678", "0712 345 678"}
	invalid := []string{"", "12345", "0812345678", "+255712345678", "07123456789"}
	for _, s := range valid {
		assert.True(t, IsKenyanPhone(s), s)
	}
	for _, s := range invalid {
		assert.False(t, IsKenyanPhone(s), s)
	}
}

func TestFormatValidationErrors(t *testing.T) {
	require.NoError(t, SetupValidator())

	type walletRequest struct {
		WalletID    string `json:"wallet_id" binding:"required"`
		PhoneNumber string `json:"phone_number" binding:"required,ke_phone"`
	}

	r := gin.New()
	r.Use(RequestID())
	r.POST("/", func(c *gin.Context) {
		var req walletRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleValidationError(c, err)
			return
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"phone_number":"12"}`)))
	require.Equal(t, http.StatusBadRequest, w.Code)

	errInfo := decodeError(t, w)
	assert.Equal(t, dto.ErrCodeValidation, errInfo.Code)
	fields := map[string]string{}
	for _, f := range errInfo.Fields {
		fields[f.Field] = f.Message
	}
	assert.Equal(t, "This field is required", fields["wallet_id"])
	assert.Equal(t, "Must be a Kenyan mobile number", fields["phone_number"])

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/",
		strings.NewReader(`{"wallet_id":"w-1","phone_number":"+254712345678"}`)))
	assert.Equal(t, http.StatusOK, w.Code)
}
