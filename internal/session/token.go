// Package session issues and verifies self-contained root admin session
// tokens. A token is base64url(payload) + "." + base64url(HMAC-SHA256(payload))
// and needs no server side lookup to validate.
package session

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/khanghh/rootgate/params"
)

type Variant string

const (
	VariantSigned Variant = "signed"
	// VariantLegacy is the unsigned marker cookie kept for old clients.
	VariantLegacy Variant = "legacy"
)

// Principal is an authenticated root admin.
type Principal struct {
	Identity  string
	Variant   Variant
	TokenID   string    // empty for the legacy variant
	BoundIP   string    // client ip at issuance, informational only
	IssuedAt  time.Time // zero for the legacy variant
	ExpiresAt time.Time // zero for the legacy variant
}

// payload field order is fixed, so encoding is deterministic.
type payload struct {
	ID        string `json:"id"`
	Subject   string `json:"sub"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
	IP        string `json:"ip,omitempty"`
}

// strict decoding rejects non-zero padding bits, so every character counts
var encoding = base64.RawURLEncoding.Strict()

type Config struct {
	Secret string
	MaxAge time.Duration
	Now    func() time.Time
}

type TokenService struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

func (s *TokenService) MaxAge() time.Duration {
	return s.maxAge
}

func (s *TokenService) sign(data []byte) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(data)
	return mac.Sum(nil)
}

// Issue mints a token for identity, optionally bound to clientIP.
func (s *TokenService) Issue(identity, clientIP string) (string, *Principal, error) {
	if identity == "" {
		return "", nil, ErrEmptyIdentity
	}
	now := s.now()
	p := payload{
		ID:        uuid.NewString(),
		Subject:   identity,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(s.maxAge).Unix(),
		IP:        clientIP,
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", nil, err
	}
	token := encoding.EncodeToString(data) + "." + encoding.EncodeToString(s.sign(data))
	return token, p.principal(), nil
}

// Verify checks signature and expiry of token. A bound ip that differs from
// clientIP is logged but does not invalidate the token, admins on mobile
// networks change address mid-session.
func (s *TokenService) Verify(token, clientIP string) (*Principal, error) {
	payloadPart, sigPart, ok := strings.Cut(token, ".")
	if !ok || payloadPart == "" || sigPart == "" || strings.Contains(sigPart, ".") {
		return nil, ErrInvalidSession
	}
	data, err := encoding.DecodeString(payloadPart)
	if err != nil {
		return nil, ErrInvalidSession
	}
	sig, err := encoding.DecodeString(sigPart)
	if err != nil {
		return nil, ErrInvalidSession
	}
	if !hmac.Equal(sig, s.sign(data)) {
		return nil, ErrInvalidSession
	}

	var p payload
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&p); err != nil || p.Subject == "" {
		return nil, ErrInvalidSession
	}
	if !s.now().Before(time.Unix(p.ExpiresAt, 0)) {
		return nil, ErrInvalidSession
	}
	if p.IP != "" && clientIP != "" && p.IP != clientIP {
		slog.Warn("Session used from a different ip", "identity", p.Subject, "tokenID", p.ID, "boundIP", p.IP, "clientIP", clientIP)
	}
	return p.principal(), nil
}

func (p *payload) principal() *Principal {
	return &Principal{
		Identity:  p.Subject,
		Variant:   VariantSigned,
		TokenID:   p.ID,
		BoundIP:   p.IP,
		IssuedAt:  time.Unix(p.IssuedAt, 0),
		ExpiresAt: time.Unix(p.ExpiresAt, 0),
	}
}

func NewTokenService(config Config) (*TokenService, error) {
	if config.Secret == "" {
		return nil, ErrEmptySecret
	}
	if len(config.Secret) < params.MinSessionSecretLength {
		slog.Warn("Session secret is shorter than recommended", "length", len(config.Secret), "recommended", params.MinSessionSecretLength)
	}
	if config.MaxAge <= 0 {
		config.MaxAge = params.SessionTokenExpiration
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &TokenService{
		secret: []byte(config.Secret),
		maxAge: config.MaxAge,
		now:    config.Now,
	}, nil
}
