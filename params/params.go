package params

import "time"

const (
	ServerBodyLimit          = 65536 // 64 KiB
	ServerIdleTimeout        = 30 * time.Second
	ServerReadTimeout        = 10 * time.Second
	ServerWriteTimeout       = 10 * time.Second
	RateLimitKeyPrefix       = "rl:"
	ChallengeKeyPrefix       = "c:"
	TOTPStateKeyPrefix       = "u:"
	RevokedTokenKeyPrefix    = "r:"
	SessionCookieName        = "root_admin_session"
	LegacySessionCookieName  = "root_admin"
	LegacySessionCookieValue = "1"
	ChallengeCookieName      = "root_admin_challenge"
	SessionTokenExpiration   = 1 * time.Hour    // signed session lifetime, also cookie max-age
	ChallengeExpiration      = 5 * time.Minute  // time allowed between password and OTP step
	TOTPPeriod               = 30               // seconds per time step
	TOTPDigits               = 6                // code length
	RateLimitMaxAttempts     = 5                // OTP checks allowed per window per identity
	RateLimitWindow          = 15 * time.Minute // OTP rate limit window
	RateLimitUnknownIdentity = "unknown"        // bucket used when neither email nor ip is known
	LoginThrottleMax         = 20               // password step requests per ip per window
	LoginThrottleWindow      = 1 * time.Minute  // password step throttle window
	StoreCapacity            = 1000             // max entries held by the memory store
	StoreSweepInterval       = 5 * time.Minute  // memory store eviction interval
	TOTPStateMaxAge          = 24 * time.Hour   // time to live for the totp replay marker
	MinSessionSecretLength   = 32               // shorter session secrets are accepted with a warning
	HealthCheckServerAddr    = ":3001"          // health check server address
	APIVersion               = "1.0"
)
