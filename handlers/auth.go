package handlers

import (
	"fmt"
	"net/http"
	"net/mail"
	"time"

	"github.com/alumni-network/alumni-backend-system/internal/config"
	"github.com/alumni-network/alumni-backend-system/internal/mailer"
	"github.com/alumni-network/alumni-backend-system/internal/models"
	"github.com/alumni-network/alumni-backend-system/internal/sessions"
	"github.com/alumni-network/alumni-backend-system/internal/tokens"
	"github.com/alumni-network/alumni-backend-system/internal/users"
	"github.com/alumni-network/alumni-backend-system/pkg/httperr"
	"github.com/alumni-network/alumni-backend-system/pkg/logger"
	"github.com/alumni-network/alumni-backend-system/pkg/middleware"
	"github.com/gin-gonic/gin"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// RegisterRequest is the self-service sign-up payload.
type RegisterRequest struct {
	FirstName      string `json:"firstName" binding:"required"`
	LastName       string `json:"lastName" binding:"required"`
	Email          string `json:"email" binding:"required,email"`
	Password       string `json:"password" binding:"required,min=8"`
	GraduationYear int    `json:"graduationYear" binding:"omitempty,min=1900,max=2100"`
	Degree         string `json:"degree"`
	Major          string `json:"major"`
	StudentID      string `json:"studentId"`
	Phone          string `json:"phone" binding:"omitempty,phone"`
}

// LoginRequest is the email/password login payload.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type passwordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required,min=8"`
}

// AuthHandler holds dependencies
type AuthHandler struct {
	cfg         *config.Config
	usersSvc    *users.Service
	sessionsSvc *sessions.Service
	mail        mailer.Mailer
}

func NewAuthHandler(cfg *config.Config, u *users.Service, s *sessions.Service, m mailer.Mailer) *AuthHandler {
	return &AuthHandler{cfg: cfg, usersSvc: u, sessionsSvc: s, mail: m}
}

// Register routes under /auth
func (h *AuthHandler) Register(rg *gin.RouterGroup, g Guards) {
	a := rg.Group("/auth")
	a.POST("/register", h.SignUp)
	a.POST("/login", h.Login)
	a.POST("/refresh", h.Refresh)
	a.POST("/logout", h.Logout)
	a.GET("/me", g.Auth, h.Me)
	a.PUT("/password", g.Auth, h.ChangePassword)
}

func (h *AuthHandler) accessTTL() time.Duration {
	if h.cfg.JWT.AccessTokenTTL > 0 {
		return h.cfg.JWT.AccessTokenTTL
	}
	return defaultAccessTTL
}

func (h *AuthHandler) refreshTTL() time.Duration {
	if h.cfg.JWT.RefreshTokenTTL > 0 {
		return h.cfg.JWT.RefreshTokenTTL
	}
	return defaultRefreshTTL
}

// issue creates a refresh session and an access token for u.
func (h *AuthHandler) issue(c *gin.Context, u *models.User) (gin.H, error) {
	rft, err := h.sessionsSvc.CreateSession(c.Request.Context(), u.ID, c.Request.UserAgent(), h.refreshTTL())
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	access, err := tokens.GenerateAccessToken(h.cfg, u, h.accessTTL())
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	return gin.H{
		"accessToken":  access,
		"refreshToken": rft,
		"expiresIn":    int(h.accessTTL().Seconds()),
		"user":         u,
	}, nil
}

// SignUp creates an alumni account and logs it in.
func (h *AuthHandler) SignUp(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.Bind(c, err)
		return
	}
	u, err := h.usersSvc.Register(c.Request.Context(), users.RegisterInput{
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Email:          req.Email,
		Password:       req.Password,
		GraduationYear: req.GraduationYear,
		Degree:         req.Degree,
		Major:          req.Major,
		StudentID:      req.StudentID,
		Phone:          req.Phone,
	})
	if err != nil {
		httperr.Write(c, err)
		return
	}
	resp, err := h.issue(c, u)
	if err != nil {
		httperr.Write(c, err)
		return
	}
	logger.With("user", u.ID).Infof("registered %s", u.Email)
	mailer.SendQuietly(c.Request.Context(), h.mail, mailer.Message{
		To:      mail.Address{Name: u.FullName(), Address: u.Email},
		Subject: "Welcome to the alumni network",
		Body: fmt.Sprintf("Hello %s,\n\nYour alumni account is ready. Sign in at %s to find classmates, events and job openings.\n",
			u.FirstName, h.cfg.App.FrontendURL),
	})
	c.JSON(http.StatusCreated, resp)
}

// Login authenticates with email and password.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.Bind(c, err)
		return
	}
	u, err := h.usersSvc.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		httperr.Write(c, err)
		return
	}
	resp, err := h.issue(c, u)
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Refresh accepts a refresh token and returns a new access token
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.Bind(c, err)
		return
	}
	sess, err := h.sessionsSvc.ValidateRefresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		httperr.Write(c, err)
		return
	}
	if sess == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	u, err := h.usersSvc.Get(c.Request.Context(), sess.UserID)
	if err != nil {
		httperr.Write(c, err)
		return
	}
	if !u.IsActive {
		c.JSON(http.StatusForbidden, gin.H{"error": "account is deactivated"})
		return
	}
	access, err := tokens.GenerateAccessToken(h.cfg, u, h.accessTTL())
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accessToken": access, "expiresIn": int(h.accessTTL().Seconds())})
}

// Logout invalidates the refresh token and blacklists the presented access
// token until it expires.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.Bind(c, err)
		return
	}
	var at string
	if n, _ := fmt.Sscanf(c.GetHeader("Authorization"), "Bearer %s", &at); n == 1 {
		if exp, err := tokens.ExpiresAt(at); err == nil {
			if err := sessions.BlacklistAccessToken(c.Request.Context(), at, time.Until(exp)); err != nil {
				httperr.Write(c, fmt.Errorf("blacklist access token: %w", err))
				return
			}
		}
	}
	if err := h.sessionsSvc.DeleteRefresh(c.Request.Context(), req.RefreshToken); err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Me returns the current user.
func (h *AuthHandler) Me(c *gin.Context) {
	u, err := h.usersSvc.Get(c.Request.Context(), actor(c).ID)
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// ChangePassword replaces the caller's password and ends their other sessions.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req passwordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.Bind(c, err)
		return
	}
	id := actor(c).ID
	if err := h.usersSvc.ChangePassword(c.Request.Context(), id, req.CurrentPassword, req.NewPassword); err != nil {
		httperr.Write(c, err)
		return
	}
	if _, err := h.sessionsSvc.RevokeUser(c.Request.Context(), id); err != nil {
		logger.With("user", id).Warnf("revoking sessions after password change: %v", err)
	}
	if raw := middleware.AccessToken(c); raw != "" {
		if exp, err := tokens.ExpiresAt(raw); err == nil {
			if err := sessions.BlacklistAccessToken(c.Request.Context(), raw, time.Until(exp)); err != nil {
				logger.With("user", id).Warnf("blacklisting access token after password change: %v", err)
			}
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "password updated"})
}
