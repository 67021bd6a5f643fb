package handlers

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mossy-p/videochat-signaling/internal/middleware"
	"github.com/mossy-p/videochat-signaling/internal/models"
)

// LoginRequest carries operator credentials. Username is only recorded as
// the token subject; the password alone is checked against ADMIN_PASSWORD.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse returns a bearer token for the /api/admin routes. UserID
// echoes the operator name the token was issued to.
type LoginResponse struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}

// Login issues an operator token when the password matches ADMIN_PASSWORD.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.cfg.Auth.AdminPassword)) != 1 {
		h.log.Warn("rejected admin login", slog.String("username", req.Username))
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Invalid credentials"})
		return
	}

	token, err := middleware.IssueToken(h.cfg.Auth.JWTSecret, req.Username, h.cfg.Auth.TokenTTL)
	if err != nil {
		h.log.Error("failed to sign token", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, LoginResponse{Token: token, UserID: req.Username})
}
