package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hrpay/backend/internal/infrastructure/logger"
	"github.com/hrpay/backend/internal/interfaces/http/dto"
)

const (
	// BusinessIDHeader may restate the business of the token; it never overrides it
	BusinessIDHeader = "X-Business-ID"
	BusinessIDKey    = "business_id"
)

// BusinessContext resolves the business every payroll call acts for. The
// business comes from the token; a differing X-Business-ID header is refused.
func BusinessContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetJWTClaims(c)
		if claims == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeUnauthorized, "Authentication required", GetRequestID(c)))
			return
		}
		businessID := claims.BusinessUUID()
		if businessID == uuid.Nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeTokenInvalid, "Token is missing required claims", GetRequestID(c)))
			return
		}

		if header := c.GetHeader(BusinessIDHeader); header != "" {
			requested, err := uuid.Parse(header)
			if err != nil || requested != businessID {
				c.AbortWithStatusJSON(http.StatusForbidden, dto.NewErrorResponseWithRequestID(
					dto.ErrCodeForbidden, "Token is not valid for the requested business", GetRequestID(c)))
				return
			}
		}

		c.Set(BusinessIDKey, businessID)
		ctx := c.Request.Context()
		ctx, _ = logger.WithBusinessID(ctx, logger.FromContext(ctx), businessID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// GetBusinessID returns the business resolved by BusinessContext
func GetBusinessID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(BusinessIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok && id != uuid.Nil
}
