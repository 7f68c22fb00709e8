package middleware

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/fullpos/license-server/internal/logger"
	"github.com/fullpos/license-server/internal/models"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var idRegex = regexp.MustCompile(`/([0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12})(?:/|$)`)

// AuditLogger middleware logs API actions to audit log
func AuditLogger(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Skip non-modifying requests
		method := c.Method()
		if method == fiber.MethodGet || method == fiber.MethodHead || method == fiber.MethodOptions {
			return c.Next()
		}

		path := c.Path()
		entityType := getEntityTypeFromPath(path)
		if entityType == "" {
			return c.Next()
		}
		entityID := extractIDFromPath(path)

		// Name the entity before the handler runs so deletes still resolve.
		var entityName string
		if entityID != "" {
			entityName = getEntityName(db, entityType, entityID)
		} else if method == fiber.MethodPost {
			entityName = getNameFromRequestBody(c.Body())
		}

		user := GetCurrentUser(c)
		ip := c.IP()
		userAgent := c.Get(fiber.HeaderUserAgent)

		err := c.Next()

		// Only log successful responses
		statusCode := c.Response().StatusCode()
		if err != nil || statusCode < 200 || statusCode >= 400 || user == nil {
			return err
		}

		action := actionFor(method, path)
		entry := models.AuditLog{
			UserID:      user.ID,
			Username:    user.Username,
			Action:      action,
			EntityType:  entityType,
			EntityID:    entityID,
			Description: describe(action, entityType, entityName),
			Method:      method,
			Path:        truncate(path, 255),
			StatusCode:  statusCode,
			IPAddress:   ip,
			UserAgent:   truncate(userAgent, 255),
		}
		if err := db.Create(&entry).Error; err != nil {
			logger.L().Warn("Audit: failed to write entry", zap.String("path", path), zap.Error(err))
		}
		return nil
	}
}

// extractIDFromPath gets the UUID from URL path
func extractIDFromPath(path string) string {
	matches := idRegex.FindStringSubmatch(path)
	if len(matches) > 1 {
		return strings.ToLower(matches[1])
	}
	return ""
}

func getEntityTypeFromPath(path string) string {
	switch {
	case strings.Contains(path, "/admin/licenses"):
		return "license"
	case strings.Contains(path, "/admin/activations"):
		return "activation"
	case strings.Contains(path, "/auth/2fa"):
		return "admin_user"
	}
	return ""
}

func actionFor(method, path string) models.AuditAction {
	switch {
	case strings.HasSuffix(path, "/unblock"):
		return models.AuditActionUnblock
	case strings.HasSuffix(path, "/block"):
		return models.AuditActionBlock
	case strings.HasSuffix(path, "/activate-manual"):
		return models.AuditActionActivate
	case strings.HasSuffix(path, "/extend-days"):
		return models.AuditActionExtend
	case strings.HasSuffix(path, "/revoke"):
		return models.AuditActionRevoke
	case strings.HasSuffix(path, "/license-file"):
		return models.AuditActionExport
	case strings.HasSuffix(path, "/company"):
		return models.AuditActionLink
	case strings.Contains(path, "/2fa/"):
		return models.AuditActionUpdate
	}

	switch method {
	case fiber.MethodPost:
		return models.AuditActionCreate
	case fiber.MethodDelete:
		return models.AuditActionDelete
	}
	return models.AuditActionUpdate
}

var actionVerbs = map[models.AuditAction]string{
	models.AuditActionCreate:   "Created",
	models.AuditActionUpdate:   "Updated",
	models.AuditActionDelete:   "Deleted",
	models.AuditActionBlock:    "Blocked",
	models.AuditActionUnblock:  "Unblocked",
	models.AuditActionActivate: "Manually activated",
	models.AuditActionExtend:   "Extended",
	models.AuditActionRevoke:   "Revoked",
	models.AuditActionExport:   "Exported license file for",
	models.AuditActionLink:     "Linked company to",
}

func describe(action models.AuditAction, entityType, entityName string) string {
	verb := actionVerbs[action]
	if entityName != "" {
		return verb + " " + entityType + " \"" + entityName + "\""
	}
	return verb + " " + entityType
}

// getEntityName resolves a readable name: the license key or the activation's device.
func getEntityName(db *gorm.DB, entityType, id string) string {
	var name string
	switch entityType {
	case "license":
		db.Model(&models.License{}).Select("license_key").Where("id = ?", id).Limit(1).Scan(&name)
	case "activation":
		db.Model(&models.Activation{}).Select("device_id").Where("id = ?", id).Limit(1).Scan(&name)
	}
	return name
}

// getNameFromRequestBody extracts a name from a JSON request body
func getNameFromRequestBody(body []byte) string {
	var data map[string]interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return ""
	}
	for _, field := range []string{"license_key", "name", "username"} {
		if val, ok := data[field].(string); ok && val != "" {
			return val
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
