package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/postboard/postboard/backend/go-services/internal/config"
	"github.com/postboard/postboard/backend/go-services/internal/models"
	"github.com/postboard/postboard/backend/go-services/internal/sessions"
	"github.com/postboard/postboard/backend/go-services/internal/tokens"
	"github.com/postboard/postboard/backend/go-services/internal/users"
	"github.com/postboard/postboard/backend/go-services/pkg/logger"
	"github.com/postboard/postboard/backend/go-services/pkg/middleware"
)

// AuthHandler serves the caller's profile and logout. Tokens are issued by
// Keycloak; the dev-token endpoint exists only in development.
type AuthHandler struct {
	cfg      *config.Config
	usersSvc *users.Service
}

func NewAuthHandler(cfg *config.Config, u *users.Service) *AuthHandler {
	return &AuthHandler{cfg: cfg, usersSvc: u}
}

// Register routes under /api/auth. auth must be the bearer-token middleware.
func (h *AuthHandler) Register(r gin.IRouter, auth gin.HandlerFunc) {
	a := r.Group("/api/auth")
	a.GET("/me", auth, h.Me)
	a.POST("/logout", auth, h.Logout)
	if h.cfg.Server.Environment == "development" && h.cfg.JWT.Secret != "" {
		a.POST("/dev-token", h.DevToken)
	}
}

// Me upserts the local profile from the token claims and returns it. When
// the user store is unavailable the claims are returned as-is.
func (h *AuthHandler) Me(c *gin.Context) {
	claims := middleware.Claims(c)
	if h.usersSvc != nil {
		u, err := h.usersSvc.UpsertFromClaims(c.Request.Context(), claims)
		if err != nil {
			logger.Errorf("user upsert error: %v", err)
		} else if u != nil {
			c.JSON(http.StatusOK, gin.H{"user": u})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"claims": claims})
}

// Logout blacklists the presented access token until it expires.
func (h *AuthHandler) Logout(c *gin.Context) {
	if !sessions.BlacklistEnabled() {
		logger.Warnf("logout without Redis: token stays valid until it expires")
	}
	if err := sessions.RevokeAccessToken(c.Request.Context(), c.GetString("token")); err != nil {
		logger.Errorf("failed to blacklist access token: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to blacklist access token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// DevToken mints an HS256 token for local testing without Keycloak.
func (h *AuthHandler) DevToken(c *gin.Context) {
	var req struct {
		Sub   string   `json:"sub" binding:"required"`
		Name  string   `json:"name"`
		Email string   `json:"email"`
		Roles []string `json:"roles"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sub is required"})
		return
	}
	u := &models.User{Sub: req.Sub, Name: req.Name, Email: req.Email, Roles: req.Roles}
	ttl := h.cfg.JWT.AccessTokenTTL
	access, err := tokens.GenerateAccessToken(h.cfg, u, ttl)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create access token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"accessToken": access, "expiresIn": int(ttl.Seconds())})
}
