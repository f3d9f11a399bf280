package middleware

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/hrpay/backend/internal/infrastructure/auth"
	"github.com/hrpay/backend/internal/infrastructure/logger"
	"github.com/hrpay/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// Gin context keys set by JWTAuthMiddleware.
const (
	JWTClaimsKey     = "jwt_claims"
	JWTUserIDKey     = "jwt_user_id"
	JWTBusinessIDKey = "jwt_business_id"
	JWTRolesKey      = "jwt_roles"
)

const (
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
)

type JWTMiddlewareConfig struct {
	JWTService *auth.JWTService
	// TokenBlacklist may be nil; revocation is then not checked.
	TokenBlacklist auth.TokenBlacklist
	// SkipPaths are matched exactly against the request path.
	SkipPaths []string
	Logger    *zap.Logger
}

// DefaultJWTConfig leaves the health endpoints unauthenticated.
func DefaultJWTConfig(jwtService *auth.JWTService) JWTMiddlewareConfig {
	return JWTMiddlewareConfig{
		JWTService: jwtService,
		SkipPaths:  []string{"/health", "/ready", "/api/v1/health"},
	}
}

// JWTAuthMiddleware validates the bearer token and stores the caller's claims,
// user, business and roles on the gin context. Blacklist lookup errors are
// logged and the token is accepted.
func JWTAuthMiddleware(cfg JWTMiddlewareConfig) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		if slices.Contains(cfg.SkipPaths, c.Request.URL.Path) {
			c.Next()
			return
		}

		token, reason := bearerToken(c.GetHeader(AuthHeaderKey))
		if reason != "" {
			rejectToken(c, log, auth.ErrInvalidToken, reason)
			return
		}
		claims, err := cfg.JWTService.ValidateAccessToken(token)
		if err != nil {
			rejectToken(c, log, err, "Token validation failed")
			return
		}
		if reason := revocationReason(c.Request.Context(), cfg.TokenBlacklist, claims, log); reason != "" {
			rejectToken(c, log, auth.ErrTokenRevoked, reason)
			return
		}

		c.Set(JWTClaimsKey, claims)
		c.Set(JWTUserIDKey, claims.UserID)
		c.Set(JWTBusinessIDKey, claims.BusinessID)
		c.Set(JWTRolesKey, claims.Roles)

		ctx, _ := logger.WithUserID(c.Request.Context(), logger.FromContext(c.Request.Context()), claims.UserID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// bearerToken extracts the token, or returns why the header is unusable.
func bearerToken(header string) (string, string) {
	switch {
	case header == "":
		return "", "Missing authorization header"
	case !strings.HasPrefix(header, BearerPrefix):
		return "", "Invalid authorization header format"
	}
	token := strings.TrimSpace(header[len(BearerPrefix):])
	if token == "" {
		return "", "Missing token"
	}
	return token, ""
}

func revocationReason(ctx context.Context, blacklist auth.TokenBlacklist, claims *auth.Claims, log *zap.Logger) string {
	if blacklist == nil {
		return ""
	}
	if claims.ID != "" {
		revoked, err := blacklist.IsRevoked(ctx, claims.ID)
		if err != nil {
			log.Error("Token blacklist lookup failed", zap.String("jti", claims.ID), zap.Error(err))
		} else if revoked {
			return "Token has been revoked"
		}
	}
	revoked, err := blacklist.IsUserRevoked(ctx, claims.UserID, claims.IssuedAtTime())
	if err != nil {
		log.Error("User revocation lookup failed", zap.String("user_id", claims.UserID), zap.Error(err))
		return ""
	}
	if revoked {
		return "User sessions have been revoked"
	}
	return ""
}

func rejectToken(c *gin.Context, log *zap.Logger, err error, message string) {
	code := dto.ErrCodeTokenInvalid
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		code, message = dto.ErrCodeTokenExpired, "Token has expired"
	case errors.Is(err, auth.ErrTokenRevoked):
		code = dto.ErrCodeTokenRevoked
	case errors.Is(err, auth.ErrMissingBusinessID), errors.Is(err, auth.ErrMissingUserID), errors.Is(err, auth.ErrMissingRoles):
		message = "Token is missing required claims"
	}
	log.Warn("Rejected bearer token",
		zap.String("code", code),
		zap.String("reason", message),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err),
	)
	c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponseWithRequestID(code, message, GetRequestID(c)))
}

// GetJWTClaims returns nil on unauthenticated routes.
func GetJWTClaims(c *gin.Context) *auth.Claims {
	v, ok := c.Get(JWTClaimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*auth.Claims)
	return claims
}

func GetJWTUserID(c *gin.Context) string {
	return c.GetString(JWTUserIDKey)
}

func GetJWTRoles(c *gin.Context) []string {
	return c.GetStringSlice(JWTRolesKey)
}
