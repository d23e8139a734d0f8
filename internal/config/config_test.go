package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testConfig = `
listenAddr: ":8080"
otp:
  secret: "12345678901234567890"
  skew: backward
session:
  secret: "0123456789abcdef0123456789abcdef"
  maxAge: 30m
  cookieSecure: true
legacy:
  enabled: true
  identity: owner@example.com
  until: "2026-12-31"
rateLimit:
  maxAttempts: 3
  window: 10m
admins:
  - email: admin@example.com
    passwordHash: "$2a$10$abcdefghijklmnopqrstuu"
mail:
  alertRecipients: ["ops@example.com"]
  smtp:
    host: smtp.example.com
    port: 587
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func validConfig() Config {
	return Config{
		OTP:     OTPConfig{Secret: "otp"},
		Session: SessionConfig{Secret: "session"},
		Admins:  []AdminConfig{{Email: "admin@example.com", PasswordHash: "hash"}},
	}
}

func TestLoadConfig(t *testing.T) {
	config, err := LoadConfig(writeConfig(t, testConfig))
	require.NoError(t, err)

	require.Equal(t, ":8080", config.ListenAddr)
	require.Equal(t, "backward", config.OTP.Skew)
	require.Equal(t, DefaultServiceName, config.OTP.Issuer)
	require.Equal(t, 30*time.Minute, config.Session.MaxAge)
	require.True(t, config.Session.CookieSecure)
	require.Equal(t, 3, config.RateLimit.MaxAttempts)
	require.Equal(t, 10*time.Minute, config.RateLimit.Window)
	require.Equal(t, StoreBackendMemory, config.Store.Backend)
	require.Equal(t, 1000, config.Store.Capacity)
	require.Len(t, config.Admins, 1)
	require.Equal(t, "admin@example.com", config.Admins[0].Email)
	require.Equal(t, 2026, config.Legacy.UntilTime.Year())
	require.Equal(t, []string{"ops@example.com"}, config.Mail.AlertRecipients)
}

func TestLoadConfig_EnvOverridesSecrets(t *testing.T) {
	t.Setenv("SESSION_SECRET", "from-env-from-env-from-env-from-e")
	config, err := LoadConfig(writeConfig(t, testConfig))
	require.NoError(t, err)
	require.Equal(t, "from-env-from-env-from-env-from-e", config.Session.Secret)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("OTP_SECRET", "otp-secret")
	t.Setenv("SESSION_SECRET", "session-secret")
	t.Setenv("MYSQL_DSN", "root:pass@tcp(localhost:3306)/rootgate")

	config, err := LoadConfigFromEnv()
	require.NoError(t, err)
	require.Equal(t, "otp-secret", config.OTP.Secret)
	require.Equal(t, "root:pass@tcp(localhost:3306)/rootgate", config.MySQL.Dsn)
}

func TestSanitize_Defaults(t *testing.T) {
	config := validConfig()
	require.NoError(t, config.Sanitize())
	require.Equal(t, DefaultListenAddr, config.ListenAddr)
	require.Equal(t, time.Hour, config.Session.MaxAge)
	require.Equal(t, 5, config.RateLimit.MaxAttempts)
	require.Equal(t, 15*time.Minute, config.RateLimit.Window)
	require.Equal(t, 5*time.Minute, config.Store.SweepInterval)
	require.True(t, config.Legacy.UntilTime.IsZero())
}

func TestSanitize_FailsHard(t *testing.T) {
	cases := map[string]struct {
		mutate func(*Config)
		err    error
	}{
		"missing otp secret":     {func(c *Config) { c.OTP.Secret = "" }, ErrMissingOTPSecret},
		"missing session secret": {func(c *Config) { c.Session.Secret = "" }, ErrMissingSessionSecret},
		"legacy without id":      {func(c *Config) { c.Legacy.Enabled = true }, ErrMissingLegacyIdentity},
		"legacy without until":   {func(c *Config) { c.Legacy = LegacyConfig{Enabled: true, Identity: "owner@example.com"} }, ErrMissingLegacyUntil},
		"no credential source":   {func(c *Config) { c.Admins = nil }, ErrNoCredentialSource},
		"unknown backend":        {func(c *Config) { c.Store.Backend = "etcd" }, ErrUnknownStoreBackend},
		"redis without url":      {func(c *Config) { c.Store.Backend = StoreBackendRedis }, ErrRedisURLRequired},
		"alerts without smtp":    {func(c *Config) { c.Mail.AlertRecipients = []string{"ops@example.com"} }, ErrAlertRecipientsNoSMTP},
	}
	for name, tc := range cases {
		config := validConfig()
		tc.mutate(&config)
		require.ErrorIs(t, config.Sanitize(), tc.err, name)
	}

	config := validConfig()
	config.Legacy = LegacyConfig{Enabled: true, Identity: "owner@example.com", Until: "not a date"}
	require.Error(t, config.Sanitize())
}
