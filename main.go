package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/storage/memory/v2"
	"github.com/gofiber/storage/redis/v3"
	"github.com/khanghh/rootgate/internal/audit"
	"github.com/khanghh/rootgate/internal/common"
	"github.com/khanghh/rootgate/internal/config"
	"github.com/khanghh/rootgate/internal/credentials"
	"github.com/khanghh/rootgate/internal/gate"
	"github.com/khanghh/rootgate/internal/handlers/api"
	"github.com/khanghh/rootgate/internal/mail"
	"github.com/khanghh/rootgate/internal/middlewares"
	"github.com/khanghh/rootgate/internal/middlewares/csrf"
	"github.com/khanghh/rootgate/internal/middlewares/sessions"
	"github.com/khanghh/rootgate/internal/ratelimit"
	"github.com/khanghh/rootgate/internal/render"
	"github.com/khanghh/rootgate/internal/session"
	"github.com/khanghh/rootgate/internal/store"
	"github.com/khanghh/rootgate/internal/totp"
	"github.com/khanghh/rootgate/model"
	"github.com/khanghh/rootgate/params"
	"github.com/urfave/cli/v2"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

var (
	app       *cli.App
	gitCommit string
	gitDate   string
)

var (
	configFileFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "YAML config file",
		Value: "config.yaml",
	}
	debugFlag = &cli.BoolFlag{
		Name:  "debug",
		Usage: "Enable debug logging",
	}
)

func init() {
	app = cli.NewApp()
	app.EnableBashCompletion = true
	app.Usage = "rootgate - step-up authentication gate for the root admin surface"
	app.Flags = []cli.Flag{
		configFileFlag,
		debugFlag,
	}
	app.Commands = []*cli.Command{
		{
			Name: "version",
			Action: func(ctx *cli.Context) error {
				fmt.Println(params.VersionWithCommit(gitCommit, gitDate))
				return nil
			},
		},
		totpCommand,
		hashPasswordCommand,
		adminCommand,
	}
	app.Action = run
}

func mustInitLogger(debug bool) {
	logLevel := slog.LevelInfo
	if debug {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))
}

func mustInitDatabase(dbConfig config.MySQLConfig) *gorm.DB {
	db, err := gorm.Open(mysql.Open(dbConfig.Dsn), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			TablePrefix:   dbConfig.TablePrefix,
			SingularTable: true,
		},
	})
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	sqlDB, err := db.DB()
	if err != nil {
		slog.Error("Failed to get database handle", "error", err)
		os.Exit(1)
	}
	if dbConfig.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(dbConfig.MaxIdleConns)
	}
	if dbConfig.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(dbConfig.MaxOpenConns)
	}
	if dbConfig.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(time.Duration(dbConfig.ConnMaxIdleTime) * time.Second)
	}
	if dbConfig.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(dbConfig.ConnMaxLifetime) * time.Second)
	}

	if err := model.AutoMigrate(db); err != nil {
		slog.Error("Database migration failed", "error", err)
		os.Exit(1)
	}
	return db
}

func mustInitRedisStorage(redisCfg config.RedisConfig) *redis.Storage {
	return redis.New(redis.Config{
		URL:           redisCfg.URL,
		PoolSize:      redisCfg.PoolSize,
		IsClusterMode: redisCfg.ClusterMode,
	})
}

// mustInitStorage returns the gate storage and the storage backing the login
// throttle, both on the configured backend.
func mustInitStorage(cfg *config.Config, checks map[string]common.ReadinessCheck) (store.Storage, fiber.Storage, func()) {
	switch cfg.Store.Backend {
	case config.StoreBackendRedis:
		redisStorage := mustInitRedisStorage(cfg.Redis)
		storage := store.NewRedisStorage(redisStorage.Conn())
		checks["redis"] = storage.Ping
		slog.Warn("Redis store backend: rate limit checks are not atomic across instances")
		return storage, redisStorage, func() { redisStorage.Close() }
	default:
		storage := store.NewMemoryStorage(store.MemoryConfig{
			Capacity:      cfg.Store.Capacity,
			SweepInterval: cfg.Store.SweepInterval,
		})
		throttleStorage := memory.New(memory.Config{GCInterval: cfg.Store.SweepInterval})
		return storage, throttleStorage, func() {
			storage.Close()
			throttleStorage.Close()
		}
	}
}

func mustInitCredentials(cfg *config.Config, db *gorm.DB) credentials.Checker {
	if len(cfg.Admins) > 0 {
		admins := make([]credentials.StaticAdmin, 0, len(cfg.Admins))
		for _, admin := range cfg.Admins {
			admins = append(admins, credentials.StaticAdmin{Email: admin.Email, PasswordHash: admin.PasswordHash})
		}
		checker, err := credentials.NewStaticChecker(admins)
		if err != nil {
			slog.Error("Invalid admins configuration", "error", err)
			os.Exit(1)
		}
		if db != nil {
			slog.Warn("Both admins and mysql are configured, using the admins list for credentials")
		}
		return checker
	}
	return credentials.NewDBChecker(credentials.NewAdminRepository(db))
}

func mustInitLockoutNotifier(cfg *config.Config) *mail.LockoutNotifier {
	if len(cfg.Mail.AlertRecipients) == 0 {
		return nil
	}
	renderer, err := render.New(fiber.Map{"serviceName": cfg.ServiceName}, cfg.TemplateDir)
	if err != nil {
		slog.Error("Failed to load mail templates", "error", err)
		os.Exit(1)
	}
	smtpCfg := cfg.Mail.SMTP
	sender, err := mail.NewSMTPMailSender(mail.SMTPConfig{
		Host:     smtpCfg.Host,
		Port:     smtpCfg.Port,
		Username: smtpCfg.Username,
		Password: smtpCfg.Password,
		TLS:      smtpCfg.TLS,
		CertFile: smtpCfg.CertFile,
		KeyFile:  smtpCfg.KeyFile,
		CAFile:   smtpCfg.CAFile,
	}, cfg.Mail.From)
	if err != nil {
		slog.Error("Failed to init mail sender", "error", err)
		os.Exit(1)
	}
	return mail.NewLockoutNotifier(sender, renderer, cfg.Mail.AlertRecipients)
}

func mustInitGate(cfg *config.Config, storage store.Storage, checker credentials.Checker, auditor *audit.Auditor, notifier *mail.LockoutNotifier) *gate.Gate {
	policy, err := totp.ParseSkewPolicy(cfg.OTP.Skew)
	if err != nil {
		slog.Error("Invalid otp.skew", "error", err)
		os.Exit(1)
	}
	engine, err := totp.NewEngine(cfg.OTP.Secret, policy)
	if err != nil {
		slog.Error("Failed to init TOTP engine", "error", err)
		os.Exit(1)
	}
	tokens, err := session.NewTokenService(session.Config{
		Secret: cfg.Session.Secret,
		MaxAge: cfg.Session.MaxAge,
	})
	if err != nil {
		slog.Error("Failed to init session tokens", "error", err)
		os.Exit(1)
	}

	var legacy *session.LegacyVerifier
	if cfg.Legacy.Enabled {
		legacy = &session.LegacyVerifier{
			Enabled:  true,
			Identity: cfg.Legacy.Identity,
			Until:    cfg.Legacy.UntilTime,
		}
		slog.Warn("Legacy root admin cookie is accepted", "identity", cfg.Legacy.Identity, "until", cfg.Legacy.UntilTime)
	}

	limiter := ratelimit.NewLimiter(storage, ratelimit.Config{
		MaxAttempts: cfg.RateLimit.MaxAttempts,
		Window:      cfg.RateLimit.Window,
		OnBlock: func(ctx context.Context, identity string, until time.Time) {
			auditor.Record(ctx, audit.Event{
				Type:     audit.EventTypeIdentityBlocked,
				Identity: identity,
				Reason:   "blocked until " + until.UTC().Format(time.RFC3339),
			})
			notifier.NotifyBlocked(ctx, identity, until)
		},
	})

	g, err := gate.NewGate(storage, gate.Config{
		Credentials:    checker,
		TOTP:           engine,
		Limiter:        limiter,
		Sessions:       tokens,
		Legacy:         legacy,
		Auditor:        auditor,
		ChallengeKey:   common.DeriveKey(cfg.Session.Secret, "challenge-token"),
		RevokeOnLogout: cfg.Session.RevokeOnLogout,
	})
	if err != nil {
		slog.Error("Failed to init credential gate", "error", err)
		os.Exit(1)
	}
	return g
}

func setupAdminRoutes(router fiber.Router, credentialGate *gate.Gate, cookies *sessions.CookieConfig, throttle fiber.Handler) {
	adminHandler := api.NewAdminHandler(credentialGate, cookies)

	admin := router.Group("/admin")
	admin.Use(sessions.New(credentialGate, cookies))
	admin.Post("/login", throttle, adminHandler.PostLogin)
	admin.Post("/login/otp", adminHandler.PostLoginOTP)
	admin.Post("/logout", adminHandler.PostLogout)
	admin.Get("/session", sessions.RequireRootAdmin(), adminHandler.GetSession)
}

func run(ctx *cli.Context) error {
	config, err := config.LoadConfig(ctx.String(configFileFlag.Name))
	if err != nil {
		slog.Error("Could not load config file.", "error", err)
		return err
	}

	mustInitLogger(config.Debug || ctx.IsSet(debugFlag.Name))

	checks := make(map[string]common.ReadinessCheck)
	storage, throttleStorage, closeStorage := mustInitStorage(config, checks)
	defer closeStorage()

	var db *gorm.DB
	var auditRepo audit.AuditEventRepository
	if config.MySQL.Dsn != "" {
		db = mustInitDatabase(config.MySQL)
		auditRepo = audit.NewAuditEventRepository(db)
		checks["mysql"] = func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
	}

	var (
		auditor        = audit.NewAuditor(auditRepo)
		notifier       = mustInitLockoutNotifier(config)
		checker        = mustInitCredentials(config, db)
		credentialGate = mustInitGate(config, storage, checker, auditor, notifier)
		cookies        = &sessions.CookieConfig{
			Secure:        config.Session.CookieSecure,
			SessionMaxAge: credentialGate.SessionMaxAge(),
		}
	)

	router := fiber.New(fiber.Config{
		Prefork:       false,
		CaseSensitive: true,
		BodyLimit:     params.ServerBodyLimit,
		IdleTimeout:   params.ServerIdleTimeout,
		ReadTimeout:   params.ServerReadTimeout,
		WriteTimeout:  params.ServerWriteTimeout,
		ErrorHandler:  middlewares.ErrorHandler,
	})

	router.Use(recover.New())
	router.Use(logger.New())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(config.AllowOrigins, ", "),
		AllowHeaders:     "Origin, Content-Type, Accept",
		AllowCredentials: len(config.AllowOrigins) > 0,
	}))
	router.Use(csrf.New(csrf.Config{AllowOrigins: config.AllowOrigins}))

	throttle := middlewares.Throttle(middlewares.ThrottleConfig{
		Max:     config.LoginThrottle.Max,
		Window:  config.LoginThrottle.Window,
		Storage: throttleStorage,
	})
	setupAdminRoutes(router, credentialGate, cookies, throttle)

	sigCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		if err := common.StartHealthCheckServer(sigCtx, params.HealthCheckServerAddr, checks); err != nil {
			slog.Error("Health check server stopped", "error", err)
		}
	}()
	go func() {
		<-sigCtx.Done()
		router.Shutdown()
	}()

	slog.Info("Starting rootgate", "version", params.VersionWithCommit(gitCommit, gitDate), "addr", config.ListenAddr, "store", config.Store.Backend)
	return router.Listen(config.ListenAddr)
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
