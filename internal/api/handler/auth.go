package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/ZakatLedger/internal/auth"
	"go.uber.org/zap"
)

const adminTokenTTL = 8 * time.Hour

// AuthHandler exchanges the static admin secret for a short-lived admin JWT.
type AuthHandler struct {
	tokens *auth.TokenIssuer
	logger *zap.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(tokens *auth.TokenIssuer, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{tokens: tokens, logger: logger}
}

// Register mounts the auth routes on the given router group.
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/auth/admin-token", h.AdminToken)
}

type adminTokenRequest struct {
	Secret string `json:"secret" binding:"required"`
}

// AdminToken handles POST /auth/admin-token.
func (h *AuthHandler) AdminToken(c *gin.Context) {
	if !h.tokens.Enabled() {
		c.JSON(http.StatusNotFound, gin.H{"error": "admin access is not configured"})
		return
	}
	var req adminTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tok, err := h.tokens.Exchange(req.Secret, adminTokenTTL)
	if err != nil {
		if errors.Is(err, auth.ErrBadSecret) {
			h.logger.Warn("admin token exchange rejected", zap.String("client_ip", c.ClientIP()))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid admin secret"})
			return
		}
		h.logger.Error("issue admin token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": tok,
		"token_type":   "Bearer",
		"expires_in":   int(adminTokenTTL.Seconds()),
	})
}
