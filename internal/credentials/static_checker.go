package credentials

import (
	"context"
	"fmt"
)

// StaticAdmin is a root admin declared in the configuration file.
type StaticAdmin struct {
	Email        string
	PasswordHash string
}

// StaticChecker checks credentials against a fixed list of admins.
type StaticChecker struct {
	hashes map[string]string
}

func (c *StaticChecker) CheckCredentials(ctx context.Context, email, password string) error {
	return compareHash(c.hashes[NormalizeEmail(email)], password)
}

func (c *StaticChecker) Len() int {
	return len(c.hashes)
}

func NewStaticChecker(admins []StaticAdmin) (*StaticChecker, error) {
	hashes := make(map[string]string, len(admins))
	for _, admin := range admins {
		email := NormalizeEmail(admin.Email)
		if err := ValidateEmail(email); err != nil {
			return nil, fmt.Errorf("admin %q: %w", admin.Email, err)
		}
		if admin.PasswordHash == "" {
			return nil, fmt.Errorf("admin %q: empty password hash", admin.Email)
		}
		if _, ok := hashes[email]; ok {
			return nil, fmt.Errorf("admin %q: %w", admin.Email, ErrAdminExists)
		}
		hashes[email] = admin.PasswordHash
	}
	return &StaticChecker{hashes: hashes}, nil
}
