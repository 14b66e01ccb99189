package api

import (
	"errors"
	"log"

	"github.com/example/taskboard-api/domain/task"
	"github.com/gofiber/fiber/v2"
)

// Client-facing messages for errors that do not carry their own.
const (
	msgNotFound            = "Task not found"
	msgStoreUnavailable    = "Database unavailable, please retry"
	msgInternalServerError = "Internal Server Error"
	msgInvalidID           = "Invalid task id"
	msgInvalidBody         = "Invalid request body"
)

// classify maps an error to its HTTP status and client message.
func classify(err error) (int, string) {
	var (
		validationErr *task.ValidationError
		fiberErr      *fiber.Error
	)

	switch {
	case errors.As(err, &validationErr):
		return fiber.StatusBadRequest, validationErr.Error()
	case errors.Is(err, task.ErrInvalidTransition):
		return fiber.StatusBadRequest, err.Error()
	case errors.Is(err, task.ErrNotFound):
		return fiber.StatusNotFound, msgNotFound
	case errors.Is(err, task.ErrStoreUnavailable):
		return fiber.StatusServiceUnavailable, msgStoreUnavailable
	case errors.As(err, &fiberErr):
		return fiberErr.Code, fiberErr.Message
	default:
		return fiber.StatusInternalServerError, msgInternalServerError
	}
}

// errorHandler renders every route error as {success:false, error}.
// Unclassified errors carry the underlying message in detail only in development.
func errorHandler(development bool) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code, message := classify(err)

		body := fiber.Map{
			"success": false,
			"error":   message,
		}
		if code >= fiber.StatusInternalServerError {
			log.Printf("[api] %s %s failed: %v", c.Method(), c.Path(), err)
			if development && code == fiber.StatusInternalServerError {
				body["detail"] = err.Error()
			}
		}

		return c.Status(code).JSON(body)
	}
}
