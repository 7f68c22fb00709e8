package handlers

import (
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/fullpos/license-server/internal/logger"
	"github.com/fullpos/license-server/internal/middleware"
	"github.com/fullpos/license-server/internal/models"
	"github.com/fullpos/license-server/internal/security"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// LoginAttempt tracks failed login attempts
type LoginAttempt struct {
	Count     int
	LastTry   time.Time
	BlockedAt *time.Time
}

// LoginGuard blocks an IP for a while after too many failed logins.
type LoginGuard struct {
	mu            sync.Mutex
	attempts      map[string]*LoginAttempt
	maxAttempts   int
	blockDuration time.Duration
	now           func() time.Time
}

func NewLoginGuard(maxAttempts int, blockDuration time.Duration) *LoginGuard {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if blockDuration <= 0 {
		blockDuration = 15 * time.Minute
	}
	return &LoginGuard{
		attempts:      make(map[string]*LoginAttempt),
		maxAttempts:   maxAttempts,
		blockDuration: blockDuration,
		now:           time.Now,
	}
}

// Blocked reports whether ip is locked out and for how many more minutes.
func (g *LoginGuard) Blocked(ip string) (bool, int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	attempt, exists := g.attempts[ip]
	if !exists {
		return false, 0
	}
	now := g.now()

	if attempt.BlockedAt != nil {
		if elapsed := now.Sub(*attempt.BlockedAt); elapsed < g.blockDuration {
			remaining := int(math.Ceil((g.blockDuration - elapsed).Minutes()))
			return true, remaining
		}
		delete(g.attempts, ip)
		return false, 0
	}

	// Attempts expire after a quiet period
	if now.Sub(attempt.LastTry) > g.blockDuration {
		delete(g.attempts, ip)
	}
	return false, 0
}

// Fail records a failed attempt and returns how many remain before the block.
func (g *LoginGuard) Fail(ip string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	attempt, exists := g.attempts[ip]
	if !exists {
		attempt = &LoginAttempt{}
		g.attempts[ip] = attempt
	}

	now := g.now()
	attempt.Count++
	attempt.LastTry = now
	if attempt.Count >= g.maxAttempts {
		attempt.BlockedAt = &now
	}
	return g.maxAttempts - attempt.Count
}

// Clear forgets the failures of ip after a successful login.
func (g *LoginGuard) Clear(ip string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.attempts, ip)
}

type AuthHandler struct {
	db     *gorm.DB
	auth   *middleware.Auth
	sealer *security.Sealer
	guard  *LoginGuard
}

func NewAuthHandler(db *gorm.DB, auth *middleware.Auth, sealer *security.Sealer, guard *LoginGuard) *AuthHandler {
	if guard == nil {
		guard = NewLoginGuard(5, 15*time.Minute)
	}
	return &AuthHandler{db: db, auth: auth, sealer: sealer, guard: guard}
}

// LoginRequest represents login request body
type LoginRequest struct {
	Username  string `json:"username" validate:"required"`
	Password  string `json:"password" validate:"required"`
	TwoFACode string `json:"two_fa_code"`
}

// LoginResponse represents login response
type LoginResponse struct {
	Success     bool       `json:"success"`
	Message     string     `json:"message,omitempty"`
	Token       string     `json:"token,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	User        *UserInfo  `json:"user,omitempty"`
	Requires2FA bool       `json:"requires_2fa,omitempty"`
}

// UserInfo represents user info in response
type UserInfo struct {
	ID               string     `json:"id"`
	Username         string     `json:"username"`
	FullName         string     `json:"full_name"`
	TwoFactorEnabled bool       `json:"two_factor_enabled"`
	LastLogin        *time.Time `json:"last_login"`
}

func userInfo(u *models.AdminUser) *UserInfo {
	return &UserInfo{
		ID:               u.ID,
		Username:         u.Username,
		FullName:         u.FullName,
		TwoFactorEnabled: u.TwoFactorEnabled,
		LastLogin:        u.LastLogin,
	}
}

func (h *AuthHandler) rejectLogin(c *fiber.Ctx, message string) error {
	remaining := h.guard.Fail(c.IP())
	if remaining > 0 {
		message += ". " + strconv.Itoa(remaining) + " attempts remaining"
	}
	return c.Status(fiber.StatusUnauthorized).JSON(LoginResponse{
		Success: false,
		Message: message,
	})
}

// Login handles user login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	clientIP := c.IP()

	if blocked, remaining := h.guard.Blocked(clientIP); blocked {
		return c.Status(fiber.StatusTooManyRequests).JSON(LoginResponse{
			Success: false,
			Message: "Too many failed login attempts. Please try again in " + strconv.Itoa(remaining) + " minutes",
		})
	}

	var req LoginRequest
	if err := parseBody(c, &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(LoginResponse{
			Success: false,
			Message: "Username and password are required",
		})
	}

	var user models.AdminUser
	if err := h.db.WithContext(c.UserContext()).Where("username = ?", req.Username).First(&user).Error; err != nil {
		return h.rejectLogin(c, "Invalid username or password")
	}

	if !user.IsActive {
		return c.Status(fiber.StatusUnauthorized).JSON(LoginResponse{
			Success: false,
			Message: "Account is disabled",
		})
	}

	if !security.CheckPassword(user.Password, req.Password) {
		return h.rejectLogin(c, "Invalid username or password")
	}

	if user.TwoFactorEnabled {
		if req.TwoFACode == "" {
			return c.JSON(LoginResponse{
				Success:     false,
				Requires2FA: true,
				Message:     "2FA code required",
			})
		}
		secret, err := h.sealer.Open(user.TwoFactorSecret)
		if err != nil {
			logger.L().Error("Auth: 2FA secret unreadable", zap.String("user_id", user.ID), zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(LoginResponse{
				Success: false,
				Message: "Internal server error",
			})
		}
		if !security.ValidateTOTP(req.TwoFACode, secret, time.Now()) {
			return h.rejectLogin(c, "Invalid 2FA code")
		}
	}

	h.guard.Clear(clientIP)

	token, expiresAt, err := h.auth.GenerateToken(&user)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(LoginResponse{
			Success: false,
			Message: "Failed to generate token",
		})
	}

	now := time.Now().UTC()
	user.LastLogin = &now
	if err := h.db.Model(&models.AdminUser{}).Where("id = ?", user.ID).Update("last_login", now).Error; err != nil {
		logger.L().Warn("Auth: failed to update last login", zap.String("user_id", user.ID), zap.Error(err))
	}
	h.audit(c, &user, models.AuditActionLogin, "User logged in")

	return c.JSON(LoginResponse{
		Success:   true,
		Token:     token,
		ExpiresAt: &expiresAt,
		User:      userInfo(&user),
	})
}

func (h *AuthHandler) audit(c *fiber.Ctx, user *models.AdminUser, action models.AuditAction, description string) {
	entry := models.AuditLog{
		UserID:      user.ID,
		Username:    user.Username,
		Action:      action,
		EntityType:  "admin_user",
		EntityID:    user.ID,
		Description: description,
		Method:      c.Method(),
		Path:        c.Path(),
		StatusCode:  fiber.StatusOK,
		IPAddress:   c.IP(),
		UserAgent:   c.Get(fiber.HeaderUserAgent),
	}
	if err := h.db.Create(&entry).Error; err != nil {
		logger.L().Warn("Auth: failed to write audit entry", zap.Error(err))
	}
}

// Logout revokes the current token
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user != nil {
		h.audit(c, user, models.AuditActionLogout, "User logged out")
	}

	if err := h.auth.Revoke(c, middleware.GetCurrentToken(c)); err != nil {
		logger.L().Warn("Auth: failed to revoke token", zap.Error(err))
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Logged out successfully",
	})
}

// Me returns current user info
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "User not found",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"user":    userInfo(user),
	})
}
