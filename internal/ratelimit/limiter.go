// Package ratelimit bounds the number of attempts an identity may make within
// a fixed window. Every Check consumes one unit of budget, whatever the
// outcome of the attempt it guards.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/khanghh/rootgate/internal/store"
	"github.com/khanghh/rootgate/params"
)

// Entry is the persisted state of one identity. Timestamps are unix
// milliseconds, zero means unset.
type Entry struct {
	Attempts     int   `redis:"attempts"`
	WindowStart  int64 `redis:"window_start"`
	LastAttempt  int64 `redis:"last_attempt"`
	BlockedUntil int64 `redis:"blocked_until"`
}

func (e *Entry) isBlocked(now time.Time) bool {
	return e.BlockedUntil != 0 && now.Before(time.UnixMilli(e.BlockedUntil))
}

type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds.
func (r Result) RetryAfterSeconds() int {
	if r.RetryAfter <= 0 {
		return 0
	}
	return int(math.Ceil(r.RetryAfter.Seconds()))
}

// BlockFunc is called once when an identity becomes blocked.
type BlockFunc func(ctx context.Context, identity string, until time.Time)

type Config struct {
	MaxAttempts int
	Window      time.Duration
	Now         func() time.Time
	OnBlock     BlockFunc
}

type Limiter struct {
	config  Config
	entries store.Store[Entry]
	mu      sync.Mutex
}

// Check records an attempt for identity and reports whether it is allowed.
// When the store fails the attempt is denied and the error is returned.
func (l *Limiter) Check(ctx context.Context, identity string) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.config.Now()
	entry, err := l.entries.Get(ctx, identity)
	if errors.Is(err, store.ErrNotFound) {
		return l.startWindow(ctx, identity, now)
	}
	if err != nil {
		return Result{}, fmt.Errorf("load rate limit entry: %w", err)
	}

	if entry.isBlocked(now) {
		return Result{RetryAfter: time.UnixMilli(entry.BlockedUntil).Sub(now)}, nil
	}

	windowEnd := time.UnixMilli(entry.WindowStart).Add(l.config.Window)
	if !now.Before(windowEnd) {
		return l.startWindow(ctx, identity, now)
	}

	if entry.Attempts >= l.config.MaxAttempts {
		entry.BlockedUntil = windowEnd.UnixMilli()
		if err := l.entries.Set(ctx, identity, entry, windowEnd.Sub(now)); err != nil {
			return Result{}, fmt.Errorf("save rate limit entry: %w", err)
		}
		if l.config.OnBlock != nil {
			l.config.OnBlock(ctx, identity, windowEnd)
		}
		return Result{RetryAfter: windowEnd.Sub(now)}, nil
	}

	entry.Attempts++
	entry.LastAttempt = now.UnixMilli()
	if err := l.entries.Set(ctx, identity, entry, windowEnd.Sub(now)); err != nil {
		return Result{}, fmt.Errorf("save rate limit entry: %w", err)
	}
	return Result{Allowed: true, Remaining: l.config.MaxAttempts - entry.Attempts}, nil
}

func (l *Limiter) startWindow(ctx context.Context, identity string, now time.Time) (Result, error) {
	entry := Entry{
		Attempts:    1,
		WindowStart: now.UnixMilli(),
		LastAttempt: now.UnixMilli(),
	}
	if err := l.entries.Set(ctx, identity, entry, l.config.Window); err != nil {
		return Result{}, fmt.Errorf("save rate limit entry: %w", err)
	}
	return Result{Allowed: true, Remaining: l.config.MaxAttempts - 1}, nil
}

// Identity picks the bucket for a caller: the submitted email when present,
// otherwise the client ip. Callers with neither share a single bucket.
func Identity(email, ip string) string {
	if email = strings.ToLower(strings.TrimSpace(email)); email != "" {
		return "email:" + email
	}
	if parsed := net.ParseIP(strings.TrimSpace(ip)); parsed != nil {
		return "ip:" + parsed.String()
	}
	slog.Warn("Rate limit identity unavailable, using shared bucket", "bucket", params.RateLimitUnknownIdentity)
	return params.RateLimitUnknownIdentity
}

func NewLimiter(storage store.Storage, config Config) *Limiter {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = params.RateLimitMaxAttempts
	}
	if config.Window <= 0 {
		config.Window = params.RateLimitWindow
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Limiter{
		config:  config,
		entries: store.New[Entry](storage, params.RateLimitKeyPrefix),
	}
}
