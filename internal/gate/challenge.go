package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/khanghh/rootgate/internal/store"
	"github.com/khanghh/rootgate/params"
)

const challengeIssuer = "rootgate"

// Challenge is handed to the client after a successful primary credential
// check. Presenting Token with a valid OTP completes the login.
type Challenge struct {
	Token     string
	Identity  string
	ExpiresAt time.Time
}

type ChallengeClaims struct {
	jwt.RegisteredClaims
}

// challengeRecord marks a challenge as pending. Deleting it makes the token
// unusable even before it expires.
type challengeRecord struct {
	Identity string `redis:"identity"`
	IP       string `redis:"ip"`
}

type challenger struct {
	key       []byte
	expiresIn time.Duration
	records   store.Store[challengeRecord]
	now       func() time.Time
}

func (c *challenger) issue(ctx context.Context, identity, ip string) (*Challenge, error) {
	now := c.now()
	claims := ChallengeClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   identity,
			Issuer:    challengeIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.expiresIn)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return nil, err
	}
	record := challengeRecord{Identity: identity, IP: ip}
	if err := c.records.Set(ctx, claims.ID, record, c.expiresIn); err != nil {
		return nil, fmt.Errorf("save challenge: %w", err)
	}
	return &Challenge{
		Token:     token,
		Identity:  identity,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// parse checks signature, issuer and expiry of token. It does not consult
// the store.
func (c *challenger) parse(token string) (*ChallengeClaims, error) {
	var claims ChallengeClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return c.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(challengeIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil || claims.ID == "" || claims.Subject == "" {
		return nil, ErrInvalidChallenge
	}
	return &claims, nil
}

// pending reports whether the challenge has not been consumed yet. Store
// failures are returned as is so the caller can fail closed.
func (c *challenger) pending(ctx context.Context, claims *ChallengeClaims) error {
	record, err := c.records.Get(ctx, claims.ID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrInvalidChallenge
	}
	if err != nil {
		return fmt.Errorf("load challenge: %w", err)
	}
	if record.Identity != claims.Subject {
		return ErrInvalidChallenge
	}
	return nil
}

// consume deletes the challenge. Only one caller can consume a challenge.
func (c *challenger) consume(ctx context.Context, claims *ChallengeClaims) error {
	err := c.records.Delete(ctx, claims.ID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrInvalidChallenge
	}
	return err
}

func newChallenger(storage store.Storage, key []byte, expiresIn time.Duration, now func() time.Time) *challenger {
	return &challenger{
		key:       key,
		expiresIn: expiresIn,
		records:   store.New[challengeRecord](storage, params.ChallengeKeyPrefix),
		now:       now,
	}
}
