package middlewares

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/khanghh/rootgate/internal/handlers/api"
)

func ErrorHandler(ctx *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
	}

	var message string
	switch code {
	case fiber.StatusBadRequest:
		message = api.MsgInvalidRequest
	case fiber.StatusUnauthorized:
		message = api.MsgNotAuthenticated
	case fiber.StatusForbidden:
		message = api.MsgForbidden
	case fiber.StatusNotFound, fiber.StatusMethodNotAllowed:
		message = api.MsgNotFound
	case fiber.StatusRequestEntityTooLarge:
		message = api.MsgInvalidRequest
	case fiber.StatusTooManyRequests:
		message = api.MsgTooManyRequests
	default:
		code = fiber.StatusInternalServerError
		message = api.MsgInternalError
		slog.Error("Unhandled error", "path", ctx.Path(), "error", err)
	}
	return ctx.Status(code).JSON(api.NewErrorResponse(code, message))
}
