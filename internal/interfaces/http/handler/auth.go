package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hrpay/backend/internal/infrastructure/auth"
	"github.com/hrpay/backend/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

// AuthHandler revokes access tokens. Tokens are issued elsewhere; this
// service only validates them.
type AuthHandler struct {
	BaseHandler
	blacklist auth.TokenBlacklist
	tokenTTL  time.Duration
	logger    *zap.Logger
}

// NewAuthHandler creates a new AuthHandler. tokenTTL is the longest access
// token lifetime, which bounds how long a revocation must be remembered.
func NewAuthHandler(blacklist auth.TokenBlacklist, tokenTTL time.Duration, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{blacklist: blacklist, tokenTTL: tokenTTL, logger: logger}
}

// RevokeRequest names one token or every token of a user
type RevokeRequest struct {
	TokenID string `json:"jti"`
	UserID  string `json:"user_id" binding:"omitempty,uuid"`
}

// Logout revokes the caller's own token for the rest of its lifetime
func (h *AuthHandler) Logout(c *gin.Context) {
	claims := middleware.GetJWTClaims(c)
	if claims == nil || claims.ID == "" {
		h.BadRequest(c, "Token has no identifier to revoke")
		return
	}
	if err := h.blacklist.Revoke(c.Request.Context(), claims.ID, claims.RemainingTTL()); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, gin.H{"revoked": claims.ID})
}

// Revoke godoc
//
//	@Summary	Revoke a token or all tokens of a user
//	@Tags		auth
//	@Router		/auth/revoke [post]
func (h *AuthHandler) Revoke(c *gin.Context) {
	var req RevokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationFailed(c, err)
		return
	}
	if req.TokenID == "" && req.UserID == "" {
		h.BadRequest(c, "jti or user_id is required")
		return
	}

	ctx := c.Request.Context()
	if req.TokenID != "" {
		if err := h.blacklist.Revoke(ctx, req.TokenID, h.tokenTTL); err != nil {
			h.HandleError(c, err)
			return
		}
	}
	if req.UserID != "" {
		if err := h.blacklist.RevokeUser(ctx, uuid.MustParse(req.UserID).String(), h.tokenTTL); err != nil {
			h.HandleError(c, err)
			return
		}
	}

	h.logger.Info("tokens revoked",
		zap.String("by", middleware.GetJWTUserID(c)),
		zap.String("jti", req.TokenID),
		zap.String("user_id", req.UserID),
	)
	h.Success(c, req)
}
