package session

import "errors"

var (
	// ErrInvalidSession covers every verification failure: bad encoding,
	// signature mismatch, expiry, revocation. Callers must not tell them apart.
	ErrInvalidSession = errors.New("invalid session")
	ErrEmptySecret    = errors.New("session secret is empty")
	ErrEmptyIdentity  = errors.New("session identity is empty")
)
