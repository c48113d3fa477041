package handler

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/rubrix-app/rubrix-api/internal/auth"
)

func currentUser(c *fiber.Ctx) *auth.User {
	return auth.UserFromContext(c.UserContext())
}

func rubricIDParam(c *fiber.Ctx) string {
	return strings.TrimSpace(c.Params("id"))
}

func isValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}
