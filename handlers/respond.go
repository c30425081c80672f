// handlers/respond.go
package handlers

import (
	"errors"
	"fmt"
	"strconv"

	"loyalty-draw-system/bingo"
	"loyalty-draw-system/scoring"
	"loyalty-draw-system/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

var (
	validate = validator.New(validator.WithRequiredStructEnabled())
	log      = logrus.WithField("component", "http")
)

// statusFor maps service errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, services.ErrDuplicateDefinition),
		errors.Is(err, services.ErrDrawTypeExists),
		errors.Is(err, services.ErrSupplyExhausted),
		errors.Is(err, services.ErrDefinitionInactive),
		errors.Is(err, services.ErrMissingWinningNumber):
		return fiber.StatusConflict
	case errors.Is(err, scoring.ErrInvalidOrigin),
		errors.Is(err, scoring.ErrUnknownAlgorithm),
		errors.Is(err, scoring.ErrInvalidThreshold),
		errors.Is(err, services.ErrInvalidLimit),
		errors.Is(err, services.ErrInvalidWinningNumber),
		errors.Is(err, services.ErrInvalidDrawType),
		errors.Is(err, services.ErrMissingInstanceOrType):
		return fiber.StatusBadRequest
	case errors.Is(err, bingo.ErrInsufficientCandidates):
		return fiber.StatusUnprocessableEntity
	}
	return fiber.StatusInternalServerError
}

func fail(c *fiber.Ctx, message string, err error) error {
	status := statusFor(err)
	if status == fiber.StatusInternalServerError {
		log.WithError(err).WithField("path", c.Path()).Error(message)
	}
	body := fiber.Map{"error": message, "cause": err.Error()}
	var dup *services.DuplicateDefinitionError
	if errors.As(err, &dup) {
		body["duplicates"] = dup.Instances
	}
	return c.Status(status).JSON(body)
}

// bind parses the JSON body into v and validates it.
func bind(c *fiber.Ctx, v any) error {
	if err := c.BodyParser(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

func badRequest(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": "invalid request",
		"cause": err.Error(),
	})
}

func queryLimit(c *fiber.Ctx, fallback int) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return fallback, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, services.ErrInvalidLimit
	}
	return limit, nil
}
