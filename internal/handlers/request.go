// Package handlers maps the HTTP surface onto the licensing, sync and backup core.
package handlers

import (
	"errors"
	"reflect"
	"strconv"
	"strings"

	"github.com/fullpos/license-server/internal/apperr"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// parseBody decodes the JSON body into dst and runs its validate tags.
func parseBody(c *fiber.Ctx, dst interface{}) error {
	if len(c.Body()) > 0 {
		if err := c.BodyParser(dst); err != nil {
			return apperr.ErrBadRequest.WithMessage("invalid request body")
		}
	}
	return validateStruct(dst)
}

func validateStruct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.ErrBadRequest.WithMessage(err.Error())
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return apperr.ErrBadRequest.WithMessage(strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	name := fe.Field()
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "gt", "gte", "min":
		return name + " must be at least " + fe.Param()
	case "lte", "max":
		return name + " must be at most " + fe.Param()
	case "oneof":
		return name + " must be one of " + fe.Param()
	case "uuid":
		return name + " must be a UUID"
	case "email":
		return name + " must be an email address"
	}
	return name + " is invalid"
}

// queryBool reads a flag passed as 1/true/yes.
func queryBool(c *fiber.Ctx, key string) bool {
	switch strings.ToLower(strings.TrimSpace(c.Query(key))) {
	case "1", "true", "yes":
		return true
	}
	return false
}

// queryInt reads an integer query parameter, falling back to def when absent or invalid.
func queryInt(c *fiber.Ctx, key string, def int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
