// Package sessions resolves the root admin principal of a request from its
// cookies and manages the gate cookies.
package sessions

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/khanghh/rootgate/internal/session"
	"github.com/khanghh/rootgate/params"
)

const principalContextKey = "rootAdmin"

type Authenticator interface {
	Authenticate(ctx context.Context, token, legacyValue, clientIP string) (*session.Principal, error)
}

// Get returns the principal resolved for the request, or nil.
func Get(ctx *fiber.Ctx) *session.Principal {
	principal, _ := ctx.Locals(principalContextKey).(*session.Principal)
	return principal
}

// New resolves the principal behind the session cookies, if any. It never
// rejects a request, see RequireRootAdmin.
func New(auth Authenticator, config *CookieConfig) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		token := ctx.Cookies(params.SessionCookieName)
		legacyValue := ctx.Cookies(params.LegacySessionCookieName)
		if token == "" && legacyValue == "" {
			return ctx.Next()
		}

		principal, err := auth.Authenticate(ctx.Context(), token, legacyValue, ctx.IP())
		if err != nil {
			slog.Debug("Rejected root admin session", "ip", ctx.IP(), "error", err)
			return ctx.Next()
		}
		if principal.Variant == session.VariantSigned && legacyValue != "" {
			ClearLegacyCookie(ctx, config)
		}
		ctx.Locals(principalContextKey, principal)
		return ctx.Next()
	}
}

// RequireRootAdmin rejects requests without an authenticated principal.
func RequireRootAdmin() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		if Get(ctx) == nil {
			return fiber.ErrUnauthorized
		}
		return ctx.Next()
	}
}
