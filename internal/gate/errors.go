package gate

import (
	"errors"
	"time"

	"github.com/khanghh/rootgate/internal/credentials"
	"github.com/khanghh/rootgate/internal/session"
)

var (
	ErrInvalidCredentials = credentials.ErrInvalidCredentials
	ErrInvalidSession     = session.ErrInvalidSession
	ErrInvalidChallenge   = errors.New("invalid or expired challenge")
	ErrOTPMismatch        = errors.New("otp code mismatch")
)

// RateLimitedError is returned when the OTP budget of an identity is spent.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return "too many attempts"
}

func NewRateLimitedError(retryAfter time.Duration) *RateLimitedError {
	return &RateLimitedError{
		RetryAfter: retryAfter,
	}
}
