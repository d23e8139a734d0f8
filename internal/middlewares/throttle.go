package middlewares

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/khanghh/rootgate/internal/handlers/api"
)

type ThrottleConfig struct {
	Max     int
	Window  time.Duration
	Storage fiber.Storage
}

// Throttle caps requests per client ip. It sits in front of the password
// check, the per identity OTP budget is enforced by the gate itself.
func Throttle(config ThrottleConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.Max,
		Expiration: config.Window,
		Storage:    config.Storage,
		KeyGenerator: func(ctx *fiber.Ctx) string {
			return "throttle:" + ctx.IP()
		},
		LimitReached: func(ctx *fiber.Ctx) error {
			slog.Warn("Login throttle reached", "ip", ctx.IP(), "path", ctx.Path())
			// the limiter has already set Retry-After
			retryAfter, _ := strconv.Atoi(string(ctx.Response().Header.Peek(fiber.HeaderRetryAfter)))
			resp := api.NewErrorResponse(fiber.StatusTooManyRequests, api.MsgTooManyRequests)
			resp.Error.RetryAfter = retryAfter
			return ctx.Status(fiber.StatusTooManyRequests).JSON(resp)
		},
	})
}
