package session

import (
	"crypto/subtle"
	"log/slog"
	"time"

	"github.com/khanghh/rootgate/params"
)

// LegacyVerifier accepts the old unsigned `root_admin=1` marker cookie.
// It is strictly weaker than a signed token and only honoured until Until,
// a zero Until disables it.
//
// Deprecated: remove together with the legacy.* configuration once Until has
// passed in every deployment.
type LegacyVerifier struct {
	Enabled  bool
	Identity string
	Until    time.Time
	Now      func() time.Time
}

func (v *LegacyVerifier) active() bool {
	if v == nil || !v.Enabled || v.Identity == "" || v.Until.IsZero() {
		return false
	}
	now := time.Now
	if v.Now != nil {
		now = v.Now
	}
	return now().Before(v.Until)
}

// Verify returns a legacy principal when value is the marker and the
// compatibility window is still open.
func (v *LegacyVerifier) Verify(value, clientIP string) (*Principal, error) {
	if !v.active() || value == "" {
		return nil, ErrInvalidSession
	}
	if subtle.ConstantTimeCompare([]byte(value), []byte(params.LegacySessionCookieValue)) != 1 {
		return nil, ErrInvalidSession
	}
	slog.Warn("Accepted deprecated legacy root admin cookie", "identity", v.Identity, "clientIP", clientIP, "until", v.Until)
	return &Principal{
		Identity: v.Identity,
		Variant:  VariantLegacy,
	}, nil
}
