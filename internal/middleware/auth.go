package middleware

import (
	"errors"
	"strings"
	"time"

	"github.com/fullpos/license-server/internal/database"
	"github.com/fullpos/license-server/internal/models"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
)

const tokenIssuer = "fullpos-license-server"

// JWTClaims represents JWT token claims
type JWTClaims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Auth issues and verifies back-office bearer tokens.
type Auth struct {
	secret []byte
	expire time.Duration
	db     *gorm.DB
	cache  *database.Cache
	now    func() time.Time
}

// NewAuth creates an Auth. cache may be nil, which disables logout revocation.
func NewAuth(secret string, expireHours int, db *gorm.DB, cache *database.Cache) *Auth {
	if expireHours <= 0 {
		expireHours = 12
	}
	return &Auth{
		secret: []byte(secret),
		expire: time.Duration(expireHours) * time.Hour,
		db:     db,
		cache:  cache,
		now:    time.Now,
	}
}

// SetClock replaces the time source.
func (a *Auth) SetClock(now func() time.Time) {
	a.now = now
}

// GenerateToken generates a new JWT token
func (a *Auth) GenerateToken(user *models.AdminUser) (string, time.Time, error) {
	now := a.now()
	expiresAt := now.Add(a.expire)
	claims := JWTClaims{
		UserID:   user.ID,
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Parse validates tokenString and returns its claims.
func (a *Auth) Parse(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// Revoke blacklists tokenString until its expiry.
func (a *Auth) Revoke(c *fiber.Ctx, tokenString string) error {
	claims, err := a.Parse(tokenString)
	if err != nil {
		return nil
	}
	return a.cache.BlacklistToken(c.UserContext(), tokenString, claims.ExpiresAt.Time)
}

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"success": false,
		"message": message,
	})
}

// BearerToken extracts the token from "Bearer <token>".
func BearerToken(c *fiber.Ctx) (string, bool) {
	parts := strings.Split(c.Get("Authorization"), " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// AuthRequired middleware to protect routes
func (a *Auth) AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Get("Authorization") == "" {
			return unauthorized(c, "Missing authorization header")
		}

		tokenString, ok := BearerToken(c)
		if !ok {
			return unauthorized(c, "Invalid authorization header format")
		}

		if a.cache.IsTokenBlacklisted(c.UserContext(), tokenString) {
			return unauthorized(c, "Token has been revoked (logged out)")
		}

		claims, err := a.Parse(tokenString)
		if err != nil {
			return unauthorized(c, "Invalid or expired token")
		}

		// Check if user still exists and is active
		var user models.AdminUser
		if err := a.db.WithContext(c.UserContext()).Where("id = ?", claims.UserID).First(&user).Error; err != nil {
			return unauthorized(c, "User not found")
		}
		if !user.IsActive {
			return unauthorized(c, "User account is disabled")
		}

		c.Locals("user", &user)
		c.Locals("userID", claims.UserID)
		c.Locals("username", claims.Username)
		c.Locals("token", tokenString)

		return c.Next()
	}
}

// GetCurrentUser returns the current user from context
func GetCurrentUser(c *fiber.Ctx) *models.AdminUser {
	user, ok := c.Locals("user").(*models.AdminUser)
	if !ok {
		return nil
	}
	return user
}

// GetCurrentToken returns the bearer token that authenticated the request.
func GetCurrentToken(c *fiber.Ctx) string {
	token, _ := c.Locals("token").(string)
	return token
}
