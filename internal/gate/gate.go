// Package gate sequences the root admin step-up login: primary credentials,
// then a rate limited TOTP challenge, then a signed session.
package gate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/khanghh/rootgate/internal/audit"
	"github.com/khanghh/rootgate/internal/credentials"
	"github.com/khanghh/rootgate/internal/ratelimit"
	"github.com/khanghh/rootgate/internal/session"
	"github.com/khanghh/rootgate/internal/store"
	"github.com/khanghh/rootgate/internal/totp"
	"github.com/khanghh/rootgate/params"
)

type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateAwaitingOTP     State = "awaiting_otp"
	StateAuthenticated   State = "authenticated"
)

type LoginRequest struct {
	Email     string
	Password  string
	IP        string
	UserAgent string
}

type OTPRequest struct {
	ChallengeToken string
	Email          string
	Code           string
	IP             string
	UserAgent      string
}

type Session struct {
	Token     string
	Principal *session.Principal
}

// totpState is the last time step accepted for an identity.
type totpState struct {
	Step int64 `redis:"step"`
}

type revokedToken struct {
	Identity string `redis:"identity"`
}

type Config struct {
	Credentials    credentials.Checker
	TOTP           *totp.Engine
	Limiter        *ratelimit.Limiter
	Sessions       *session.TokenService
	Legacy         *session.LegacyVerifier
	Auditor        *audit.Auditor
	ChallengeKey   string
	ChallengeTTL   time.Duration
	RevokeOnLogout bool
	Now            func() time.Time
}

type Gate struct {
	config     Config
	challenges *challenger
	totpStates store.Store[totpState]
	revoked    store.Store[revokedToken]
	totpMu     sync.Mutex
}

// BeginLogin checks primary credentials and moves the caller to
// StateAwaitingOTP by issuing a challenge.
func (g *Gate) BeginLogin(ctx context.Context, req LoginRequest) (*Challenge, error) {
	email := credentials.NormalizeEmail(req.Email)
	event := audit.Event{Identity: email, IP: req.IP, UserAgent: req.UserAgent}

	err := g.config.Credentials.CheckCredentials(ctx, email, req.Password)
	if errors.Is(err, credentials.ErrInvalidCredentials) {
		event.Type = audit.EventTypeLoginFailure
		g.config.Auditor.Record(ctx, event)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("check credentials: %w", err)
	}

	challenge, err := g.challenges.issue(ctx, email, req.IP)
	if err != nil {
		return nil, err
	}
	event.Type = audit.EventTypeChallengeIssued
	g.config.Auditor.Record(ctx, event)
	return challenge, nil
}

// CompleteLogin verifies the OTP for a pending challenge and issues a
// session. Any failure consumes the challenge, the caller has to start over.
func (g *Gate) CompleteLogin(ctx context.Context, req OTPRequest) (*Session, error) {
	event := audit.Event{IP: req.IP, UserAgent: req.UserAgent}

	claims, err := g.challenges.parse(req.ChallengeToken)
	if err != nil {
		event.Type = audit.EventTypeChallengeRejected
		event.Identity = credentials.NormalizeEmail(req.Email)
		event.Reason = "invalid token"
		g.config.Auditor.Record(ctx, event)
		return nil, err
	}
	identity := claims.Subject
	event.Identity = identity
	if email := credentials.NormalizeEmail(req.Email); email != "" && email != identity {
		event.Type = audit.EventTypeChallengeRejected
		event.Reason = "identity mismatch"
		g.config.Auditor.Record(ctx, event)
		return nil, ErrInvalidChallenge
	}
	if err := g.challenges.pending(ctx, claims); err != nil {
		if errors.Is(err, ErrInvalidChallenge) {
			event.Type = audit.EventTypeChallengeRejected
			event.Reason = "not pending"
			g.config.Auditor.Record(ctx, event)
		}
		return nil, err
	}

	res, err := g.config.Limiter.Check(ctx, ratelimit.Identity(identity, req.IP))
	if err != nil {
		return nil, err
	}
	if !res.Allowed {
		g.abandon(ctx, claims)
		event.Type = audit.EventTypeRateLimited
		g.config.Auditor.Record(ctx, event)
		return nil, NewRateLimitedError(res.RetryAfter)
	}

	if err := g.verifyCode(ctx, identity, req.Code); err != nil {
		g.abandon(ctx, claims)
		if errors.Is(err, ErrOTPMismatch) {
			event.Type = audit.EventTypeOTPFailure
			g.config.Auditor.Record(ctx, event)
		}
		return nil, err
	}

	if err := g.challenges.consume(ctx, claims); err != nil {
		return nil, err
	}
	token, principal, err := g.config.Sessions.Issue(identity, req.IP)
	if err != nil {
		return nil, err
	}
	event.Type = audit.EventTypeLoginSuccess
	g.config.Auditor.Record(ctx, event)
	return &Session{Token: token, Principal: principal}, nil
}

// verifyCode checks code against the engine and rejects time steps that were
// already used by identity. The marker is read and advanced under totpMu so
// concurrent completions cannot both accept the same step.
func (g *Gate) verifyCode(ctx context.Context, identity, code string) error {
	step, ok := g.config.TOTP.VerifyStep(code, g.config.Now())
	if !ok {
		return ErrOTPMismatch
	}

	g.totpMu.Lock()
	defer g.totpMu.Unlock()
	state, err := g.totpStates.Get(ctx, identity)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("load totp state: %w", err)
	}
	if err == nil && step <= state.Step {
		return ErrOTPMismatch
	}
	if err := g.totpStates.Set(ctx, identity, totpState{Step: step}, params.TOTPStateMaxAge); err != nil {
		return fmt.Errorf("save totp state: %w", err)
	}
	return nil
}

func (g *Gate) abandon(ctx context.Context, claims *ChallengeClaims) {
	if err := g.challenges.consume(ctx, claims); err != nil && !errors.Is(err, ErrInvalidChallenge) {
		g.config.Auditor.Record(ctx, audit.Event{
			Type:     audit.EventTypeChallengeRejected,
			Identity: claims.Subject,
			Reason:   "could not delete challenge: " + err.Error(),
		})
	}
}

// Authenticate resolves the root admin behind a request. The signed token is
// tried first, the legacy cookie value only when it fails.
func (g *Gate) Authenticate(ctx context.Context, token, legacyValue, clientIP string) (*session.Principal, error) {
	if token != "" {
		principal, err := g.config.Sessions.Verify(token, clientIP)
		if err == nil {
			if err := g.checkRevoked(ctx, principal); err != nil {
				return nil, err
			}
			return principal, nil
		}
	}
	principal, err := g.config.Legacy.Verify(legacyValue, clientIP)
	if err != nil {
		return nil, ErrInvalidSession
	}
	g.config.Auditor.Record(ctx, audit.Event{
		Type:     audit.EventTypeLegacySession,
		Identity: principal.Identity,
		IP:       clientIP,
		Reason:   "deprecated unsigned cookie",
	})
	return principal, nil
}

func (g *Gate) checkRevoked(ctx context.Context, principal *session.Principal) error {
	if !g.config.RevokeOnLogout {
		return nil
	}
	_, err := g.revoked.Get(ctx, principal.TokenID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: revocation lookup: %v", ErrInvalidSession, err)
	}
	return ErrInvalidSession
}

// Logout records the logout and, when enabled, revokes a signed token for the
// rest of its lifetime.
func (g *Gate) Logout(ctx context.Context, principal *session.Principal, clientIP, userAgent string) error {
	if principal == nil {
		return nil
	}
	g.config.Auditor.Record(ctx, audit.Event{
		Type:      audit.EventTypeLogout,
		Identity:  principal.Identity,
		IP:        clientIP,
		UserAgent: userAgent,
	})
	if !g.config.RevokeOnLogout || principal.Variant != session.VariantSigned {
		return nil
	}
	ttl := principal.ExpiresAt.Sub(g.config.Now())
	if ttl <= 0 {
		return nil
	}
	return g.revoked.Set(ctx, principal.TokenID, revokedToken{Identity: principal.Identity}, ttl)
}

func (g *Gate) SessionMaxAge() time.Duration {
	return g.config.Sessions.MaxAge()
}

func NewGate(storage store.Storage, config Config) (*Gate, error) {
	if config.Credentials == nil || config.TOTP == nil || config.Limiter == nil || config.Sessions == nil {
		return nil, errors.New("gate: missing collaborator")
	}
	if config.ChallengeKey == "" {
		return nil, errors.New("gate: empty challenge key")
	}
	if config.ChallengeTTL <= 0 {
		config.ChallengeTTL = params.ChallengeExpiration
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Gate{
		config:     config,
		challenges: newChallenger(storage, []byte(config.ChallengeKey), config.ChallengeTTL, config.Now),
		totpStates: store.New[totpState](storage, params.TOTPStateKeyPrefix),
		revoked:    store.New[revokedToken](storage, params.RevokedTokenKeyPrefix),
	}, nil
}
