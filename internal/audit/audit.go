// Package audit records security relevant events of the root admin gate.
// Every event is logged, and persisted when a repository is configured.
package audit

import (
	"context"
	"log/slog"

	"github.com/khanghh/rootgate/model"
)

const (
	EventTypeLoginSuccess      = "login_success"
	EventTypeLoginFailure      = "login_failure"
	EventTypeChallengeIssued   = "otp_challenge_issued"
	EventTypeChallengeRejected = "otp_challenge_rejected"
	EventTypeOTPFailure        = "otp_failure"
	EventTypeRateLimited       = "rate_limited"
	EventTypeIdentityBlocked   = "identity_blocked"
	EventTypeLogout            = "logout"
	EventTypeLegacySession     = "legacy_session"
)

type Event struct {
	Type      string
	Identity  string
	IP        string
	UserAgent string
	Reason    string
}

func (e Event) level() slog.Level {
	switch e.Type {
	case EventTypeLoginSuccess, EventTypeChallengeIssued, EventTypeLogout:
		return slog.LevelInfo
	default:
		return slog.LevelWarn
	}
}

type Auditor struct {
	repo AuditEventRepository
}

// Record logs event and stores it. Storage failures are logged, never
// returned, so auditing cannot block a login.
func (a *Auditor) Record(ctx context.Context, event Event) {
	if a == nil {
		return
	}
	slog.Log(ctx, event.level(), "Audit event",
		"type", event.Type,
		"identity", event.Identity,
		"ip", event.IP,
		"reason", event.Reason,
	)
	if a.repo == nil {
		return
	}
	err := a.repo.RecordEvent(ctx, &model.AuditEvent{
		Identity:  event.Identity,
		EventType: event.Type,
		Reason:    event.Reason,
		IP:        event.IP,
		UserAgent: event.UserAgent,
	})
	if err != nil {
		slog.Error("Could not persist audit event", "type", event.Type, "error", err)
	}
}

// NewAuditor returns an Auditor, repo may be nil for log-only auditing.
func NewAuditor(repo AuditEventRepository) *Auditor {
	return &Auditor{
		repo: repo,
	}
}
