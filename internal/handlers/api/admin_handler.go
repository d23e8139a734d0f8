package api

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/khanghh/rootgate/internal/gate"
	"github.com/khanghh/rootgate/internal/middlewares/sessions"
	"github.com/khanghh/rootgate/internal/ratelimit"
	"github.com/khanghh/rootgate/internal/session"
	"github.com/khanghh/rootgate/params"
)

type CredentialGate interface {
	BeginLogin(ctx context.Context, req gate.LoginRequest) (*gate.Challenge, error)
	CompleteLogin(ctx context.Context, req gate.OTPRequest) (*gate.Session, error)
	Logout(ctx context.Context, principal *session.Principal, clientIP, userAgent string) error
}

type AdminHandler struct {
	gate    CredentialGate
	cookies *sessions.CookieConfig
}

func (h *AdminHandler) PostLogin(ctx *fiber.Ctx) error {
	var req loginRequest
	if err := ctx.BodyParser(&req); err != nil || strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(NewErrorResponse(fiber.StatusBadRequest, MsgInvalidRequest))
	}

	challenge, err := h.gate.BeginLogin(ctx.Context(), gate.LoginRequest{
		Email:     req.Email,
		Password:  req.Password,
		IP:        ctx.IP(),
		UserAgent: ctx.Get(fiber.HeaderUserAgent),
	})
	if errors.Is(err, gate.ErrInvalidCredentials) {
		sessions.ClearChallengeCookie(ctx, h.cookies)
		return ctx.Status(fiber.StatusUnauthorized).JSON(NewErrorResponse(fiber.StatusUnauthorized, MsgLoginWrongCredentials))
	}
	if err != nil {
		return err
	}

	sessions.SetChallengeCookie(ctx, h.cookies, challenge.Token, challenge.ExpiresAt)
	return ctx.JSON(NewDataResponse(LoginResponse{
		State:     string(gate.StateAwaitingOTP),
		ExpiresAt: challenge.ExpiresAt,
	}))
}

func (h *AdminHandler) PostLoginOTP(ctx *fiber.Ctx) error {
	var req otpRequest
	if err := ctx.BodyParser(&req); err != nil || req.Code == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(NewErrorResponse(fiber.StatusBadRequest, MsgInvalidRequest))
	}
	challengeToken := ctx.Cookies(params.ChallengeCookieName)
	if challengeToken == "" {
		challengeToken = req.ChallengeToken
	}

	sess, err := h.gate.CompleteLogin(ctx.Context(), gate.OTPRequest{
		ChallengeToken: challengeToken,
		Email:          req.Email,
		Code:           strings.TrimSpace(req.Code),
		IP:             ctx.IP(),
		UserAgent:      ctx.Get(fiber.HeaderUserAgent),
	})
	if err != nil {
		return h.handleOTPError(ctx, err)
	}

	sessions.ClearChallengeCookie(ctx, h.cookies)
	sessions.SetSessionCookie(ctx, h.cookies, sess.Token)
	return ctx.JSON(NewDataResponse(sessionResponse(sess.Principal)))
}

// handleOTPError answers a failed second step. OTP mismatch and rate limit
// share one message, only the retry hint tells them apart.
func (h *AdminHandler) handleOTPError(ctx *fiber.Ctx, err error) error {
	var limited *gate.RateLimitedError
	switch {
	case errors.As(err, &limited):
		sessions.ClearChallengeCookie(ctx, h.cookies)
		retryAfter := ratelimit.Result{RetryAfter: limited.RetryAfter}.RetryAfterSeconds()
		ctx.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfter))
		resp := NewErrorResponse(fiber.StatusUnauthorized, MsgVerificationFailed)
		resp.Error.RetryAfter = retryAfter
		return ctx.Status(fiber.StatusUnauthorized).JSON(resp)
	case errors.Is(err, gate.ErrOTPMismatch):
		sessions.ClearChallengeCookie(ctx, h.cookies)
		return ctx.Status(fiber.StatusUnauthorized).JSON(NewErrorResponse(fiber.StatusUnauthorized, MsgVerificationFailed))
	case errors.Is(err, gate.ErrInvalidChallenge):
		sessions.ClearChallengeCookie(ctx, h.cookies)
		return ctx.Status(fiber.StatusUnauthorized).JSON(NewErrorResponse(fiber.StatusUnauthorized, MsgLoginSessionExpired))
	}
	slog.Error("Complete root admin login failed", "ip", ctx.IP(), "error", err)
	return err
}

func (h *AdminHandler) PostLogout(ctx *fiber.Ctx) error {
	principal := sessions.Get(ctx)
	if err := h.gate.Logout(ctx.Context(), principal, ctx.IP(), ctx.Get(fiber.HeaderUserAgent)); err != nil {
		slog.Error("Could not revoke session", "error", err)
	}
	sessions.ClearSessionCookie(ctx, h.cookies)
	sessions.ClearLegacyCookie(ctx, h.cookies)
	sessions.ClearChallengeCookie(ctx, h.cookies)
	return ctx.JSON(NewDataResponse(fiber.Map{"state": string(gate.StateUnauthenticated)}))
}

func (h *AdminHandler) GetSession(ctx *fiber.Ctx) error {
	principal := sessions.Get(ctx)
	if principal == nil {
		return fiber.ErrUnauthorized
	}
	return ctx.JSON(NewDataResponse(sessionResponse(principal)))
}

func sessionResponse(principal *session.Principal) SessionResponse {
	resp := SessionResponse{
		State:    string(gate.StateAuthenticated),
		Identity: principal.Identity,
		Variant:  string(principal.Variant),
	}
	if principal.Variant == session.VariantLegacy {
		resp.Deprecated = true
	} else {
		expiresAt := principal.ExpiresAt
		resp.ExpiresAt = &expiresAt
	}
	return resp
}

func NewAdminHandler(credentialGate CredentialGate, cookies *sessions.CookieConfig) *AdminHandler {
	return &AdminHandler{
		gate:    credentialGate,
		cookies: cookies,
	}
}
