// Package totp derives and checks RFC 6238 time-based one-time passwords
// (HMAC-SHA1, 30 second steps, 6 digits) from a fixed shared secret.
package totp

import (
	"crypto/subtle"
	"encoding/base32"
	"errors"
	"fmt"
	"time"

	"github.com/khanghh/rootgate/params"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

var (
	ErrEmptySecret   = errors.New("totp secret is empty")
	ErrUnknownPolicy = errors.New("unknown totp skew policy")
)

// SkewPolicy controls which neighbouring time steps are accepted.
type SkewPolicy string

const (
	// SkewBackward accepts the current and the previous step only.
	SkewBackward SkewPolicy = "backward"
	// SkewSymmetric accepts the previous, current and next step.
	SkewSymmetric SkewPolicy = "symmetric"
)

func ParseSkewPolicy(s string) (SkewPolicy, error) {
	switch SkewPolicy(s) {
	case "", SkewSymmetric:
		return SkewSymmetric, nil
	case SkewBackward:
		return SkewBackward, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
}

var base32NoPadding = base32.StdEncoding.WithPadding(base32.NoPadding)

func validateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    params.TOTPPeriod,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// Counter returns the RFC 6238 time step for t.
func Counter(t time.Time) int64 {
	return t.Unix() / params.TOTPPeriod
}

// GenerateCode returns the zero-padded code for the raw secret at time t.
// The secret bytes are the HMAC key as-is.
func GenerateCode(secret []byte, t time.Time) (string, error) {
	if len(secret) == 0 {
		return "", ErrEmptySecret
	}
	return totp.GenerateCodeCustom(base32NoPadding.EncodeToString(secret), t, validateOpts())
}

// Engine is immutable after construction and safe for concurrent use.
type Engine struct {
	secret []byte
	policy SkewPolicy
}

func (e *Engine) Policy() SkewPolicy {
	return e.policy
}

// Generate returns the code for time t.
func (e *Engine) Generate(t time.Time) (string, error) {
	return GenerateCode(e.secret, t)
}

// Verify reports whether code is accepted at time t.
func (e *Engine) Verify(code string, t time.Time) bool {
	_, ok := e.VerifyStep(code, t)
	return ok
}

// VerifyStep is like Verify and also returns the time step the code belongs to.
func (e *Engine) VerifyStep(code string, t time.Time) (int64, bool) {
	if len(code) != params.TOTPDigits {
		return 0, false
	}
	period := time.Duration(params.TOTPPeriod) * time.Second
	offsets := []time.Duration{0, -period}
	if e.policy == SkewSymmetric {
		offsets = append(offsets, period)
	}
	for _, offset := range offsets {
		at := t.Add(offset)
		expected, err := e.Generate(at)
		if err != nil {
			return 0, false
		}
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 {
			return Counter(at), true
		}
	}
	return 0, false
}

// ProvisioningURI returns an otpauth:// URL for enrolling the shared secret
// into an authenticator app.
func (e *Engine) ProvisioningURI(issuer, account string) (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		Period:      params.TOTPPeriod,
		Secret:      e.secret,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", err
	}
	return key.URL(), nil
}

func NewEngine(secret string, policy SkewPolicy) (*Engine, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if policy != SkewBackward && policy != SkewSymmetric {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, policy)
	}
	return &Engine{
		secret: []byte(secret),
		policy: policy,
	}, nil
}
