package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/khanghh/rootgate/params"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

const (
	DefaultListenAddr   = ":3000"
	DefaultServiceName  = "rootgate"
	DefaultStoreBackend = StoreBackendMemory
)

const (
	StoreBackendMemory = "memory"
	StoreBackendRedis  = "redis"
)

var (
	ErrMissingOTPSecret      = errors.New("otp.secret is required")
	ErrMissingSessionSecret  = errors.New("session.secret is required")
	ErrMissingLegacyIdentity = errors.New("legacy.identity is required when legacy.enabled is set")
	ErrMissingLegacyUntil    = errors.New("legacy.until is required when legacy.enabled is set")
	ErrNoCredentialSource    = errors.New("no credential source: configure admins or mysql.dsn")
	ErrUnknownStoreBackend   = errors.New("unknown store.backend")
	ErrRedisURLRequired      = errors.New("redis.url is required for the redis store backend")
	ErrAlertRecipientsNoSMTP = errors.New("mail.alertRecipients needs mail.smtp.host")
)

type OTPConfig struct {
	Secret string `mapstructure:"secret"`
	Skew   string `mapstructure:"skew"`
	Issuer string `mapstructure:"issuer"`
}

type SessionConfig struct {
	Secret         string        `mapstructure:"secret"`
	MaxAge         time.Duration `mapstructure:"maxAge"`
	CookieSecure   bool          `mapstructure:"cookieSecure"`
	RevokeOnLogout bool          `mapstructure:"revokeOnLogout"`
}

type LegacyConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Identity string `mapstructure:"identity"`
	// Until is any date format cast understands. Required when enabled.
	Until     string    `mapstructure:"until"`
	UntilTime time.Time `mapstructure:"-"`
}

type RateLimitConfig struct {
	MaxAttempts int           `mapstructure:"maxAttempts"`
	Window      time.Duration `mapstructure:"window"`
}

type LoginThrottleConfig struct {
	Max    int           `mapstructure:"max"`
	Window time.Duration `mapstructure:"window"`
}

type StoreConfig struct {
	Backend       string        `mapstructure:"backend"`
	Capacity      int           `mapstructure:"capacity"`
	SweepInterval time.Duration `mapstructure:"sweepInterval"`
}

type RedisConfig struct {
	URL         string `mapstructure:"url"`
	PoolSize    int    `mapstructure:"poolSize"`
	ClusterMode bool   `mapstructure:"clusterMode"`
}

type MySQLConfig struct {
	Dsn             string `mapstructure:"dsn"`
	TablePrefix     string `mapstructure:"tablePrefix"`
	MaxIdleConns    int    `mapstructure:"maxIdleConns"`
	MaxOpenConns    int    `mapstructure:"maxOpenConns"`
	ConnMaxIdleTime int    `mapstructure:"connMaxIdleTime"`
	ConnMaxLifetime int    `mapstructure:"connMaxLifetime"`
}

type AdminConfig struct {
	Email        string `mapstructure:"email"`
	PasswordHash string `mapstructure:"passwordHash"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	TLS      bool   `mapstructure:"tls"`
	CertFile string `mapstructure:"certFile"`
	KeyFile  string `mapstructure:"keyFile"`
	CAFile   string `mapstructure:"caFile"`
}

type MailConfig struct {
	From            string     `mapstructure:"from"`
	AlertRecipients []string   `mapstructure:"alertRecipients"`
	SMTP            SMTPConfig `mapstructure:"smtp"`
}

type Config struct {
	Debug         bool                `mapstructure:"debug"`
	ServiceName   string              `mapstructure:"serviceName"`
	ListenAddr    string              `mapstructure:"listenAddr"`
	TemplateDir   string              `mapstructure:"templateDir"`
	AllowOrigins  []string            `mapstructure:"allowOrigins"`
	OTP           OTPConfig           `mapstructure:"otp"`
	Session       SessionConfig       `mapstructure:"session"`
	Legacy        LegacyConfig        `mapstructure:"legacy"`
	RateLimit     RateLimitConfig     `mapstructure:"rateLimit"`
	LoginThrottle LoginThrottleConfig `mapstructure:"loginThrottle"`
	Store         StoreConfig         `mapstructure:"store"`
	Redis         RedisConfig         `mapstructure:"redis"`
	MySQL         MySQLConfig         `mapstructure:"mysql"`
	Admins        []AdminConfig       `mapstructure:"admins"`
	Mail          MailConfig          `mapstructure:"mail"`
}

// Sanitize fills defaults and rejects configurations the gate cannot run
// safely with. Secrets never fall back to other credentials.
func (c *Config) Sanitize() error {
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.ServiceName == "" {
		c.ServiceName = DefaultServiceName
	}
	if c.OTP.Issuer == "" {
		c.OTP.Issuer = c.ServiceName
	}
	if c.Session.MaxAge <= 0 {
		c.Session.MaxAge = params.SessionTokenExpiration
	}
	if c.RateLimit.MaxAttempts <= 0 {
		c.RateLimit.MaxAttempts = params.RateLimitMaxAttempts
	}
	if c.RateLimit.Window <= 0 {
		c.RateLimit.Window = params.RateLimitWindow
	}
	if c.LoginThrottle.Max <= 0 {
		c.LoginThrottle.Max = params.LoginThrottleMax
	}
	if c.LoginThrottle.Window <= 0 {
		c.LoginThrottle.Window = params.LoginThrottleWindow
	}
	if c.Store.Backend == "" {
		c.Store.Backend = DefaultStoreBackend
	}
	if c.Store.Capacity <= 0 {
		c.Store.Capacity = params.StoreCapacity
	}
	if c.Store.SweepInterval <= 0 {
		c.Store.SweepInterval = params.StoreSweepInterval
	}

	if c.OTP.Secret == "" {
		return ErrMissingOTPSecret
	}
	if c.Session.Secret == "" {
		return ErrMissingSessionSecret
	}
	if c.Legacy.Enabled {
		if c.Legacy.Identity == "" {
			return ErrMissingLegacyIdentity
		}
		if c.Legacy.Until == "" {
			return ErrMissingLegacyUntil
		}
		until, err := cast.ToTimeE(c.Legacy.Until)
		if err != nil {
			return fmt.Errorf("legacy.until: %w", err)
		}
		c.Legacy.UntilTime = until
	}
	if len(c.Admins) == 0 && c.MySQL.Dsn == "" {
		return ErrNoCredentialSource
	}
	switch c.Store.Backend {
	case StoreBackendMemory:
	case StoreBackendRedis:
		if c.Redis.URL == "" {
			return ErrRedisURLRequired
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStoreBackend, c.Store.Backend)
	}
	if len(c.Mail.AlertRecipients) > 0 && c.Mail.SMTP.Host == "" {
		return ErrAlertRecipientsNoSMTP
	}
	return nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only applies to keys viper already knows about.
	for _, key := range []string{"otp.secret", "session.secret", "mysql.dsn", "redis.url", "mail.smtp.password"} {
		v.BindEnv(key)
	}
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	if err := config.Sanitize(); err != nil {
		return nil, err
	}
	return &config, nil
}

func LoadConfig(filename string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(filename)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	return decode(v)
}

// LoadConfigFromEnv builds the configuration from environment variables
// only, e.g. OTP_SECRET and SESSION_SECRET.
func LoadConfigFromEnv() (*Config, error) {
	return decode(newViper())
}
