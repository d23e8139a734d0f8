package sessions

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/khanghh/rootgate/params"
	"github.com/valyala/fasthttp"
)

type CookieConfig struct {
	Secure        bool
	SessionMaxAge time.Duration
}

func setCookie(ctx *fiber.Ctx, config *CookieConfig, name, value string, maxAge time.Duration) {
	fcookie := fasthttp.AcquireCookie()
	defer fasthttp.ReleaseCookie(fcookie)
	fcookie.SetKey(name)
	fcookie.SetValue(value)
	fcookie.SetPath("/")
	fcookie.SetSecure(config.Secure)
	fcookie.SetHTTPOnly(true)
	fcookie.SetSameSite(fasthttp.CookieSameSiteLaxMode)
	if maxAge > 0 {
		fcookie.SetMaxAge(int(maxAge.Seconds()))
		fcookie.SetExpire(time.Now().Add(maxAge))
	} else {
		fcookie.SetExpire(fasthttp.CookieExpireDelete)
	}
	ctx.Response().Header.SetCookie(fcookie)
}

// SetSessionCookie stores a signed session token and drops the legacy
// marker cookie, a signed session supersedes it.
func SetSessionCookie(ctx *fiber.Ctx, config *CookieConfig, token string) {
	setCookie(ctx, config, params.SessionCookieName, token, config.SessionMaxAge)
	if ctx.Cookies(params.LegacySessionCookieName) != "" {
		ClearLegacyCookie(ctx, config)
	}
}

func SetChallengeCookie(ctx *fiber.Ctx, config *CookieConfig, token string, expiresAt time.Time) {
	setCookie(ctx, config, params.ChallengeCookieName, token, time.Until(expiresAt))
}

func ClearSessionCookie(ctx *fiber.Ctx, config *CookieConfig) {
	setCookie(ctx, config, params.SessionCookieName, "", 0)
}

func ClearChallengeCookie(ctx *fiber.Ctx, config *CookieConfig) {
	setCookie(ctx, config, params.ChallengeCookieName, "", 0)
}

func ClearLegacyCookie(ctx *fiber.Ctx, config *CookieConfig) {
	setCookie(ctx, config, params.LegacySessionCookieName, "", 0)
}
