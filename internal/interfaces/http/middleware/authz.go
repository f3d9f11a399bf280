package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hrpay/backend/internal/infrastructure/authz"
	"github.com/hrpay/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// PermissionChecker decides whether a set of roles may act on an object
type PermissionChecker interface {
	Authorize(roles []string, obj, act string) (authz.Decision, error)
}

// RequirePermission refuses the request unless the caller's roles grant act
// on obj. A nil checker allows everything.
func RequirePermission(checker PermissionChecker, obj, act string, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		if checker == nil {
			c.Next()
			return
		}
		decision, err := checker.Authorize(GetJWTRoles(c), obj, act)
		if err != nil {
			log.Error("authorization check failed",
				zap.String("object", obj),
				zap.String("action", act),
				zap.Error(err),
			)
			c.AbortWithStatusJSON(http.StatusInternalServerError, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeInternal, "Authorization check failed", GetRequestID(c)))
			return
		}
		if !decision.Allowed && decision.Enforced {
			c.AbortWithStatusJSON(http.StatusForbidden, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeForbidden, "Permission denied: "+obj+":"+act, GetRequestID(c)))
			return
		}
		c.Next()
	}
}
