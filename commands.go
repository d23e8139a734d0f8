package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/khanghh/rootgate/internal/common"
	"github.com/khanghh/rootgate/internal/config"
	"github.com/khanghh/rootgate/internal/credentials"
	"github.com/khanghh/rootgate/internal/totp"
	"github.com/spf13/cast"
	"github.com/urfave/cli/v2"
)

var (
	otpSecretFlag = &cli.StringFlag{
		Name:    "secret",
		Usage:   "Shared OTP secret, read from the config file when unset",
		EnvVars: []string{"OTP_SECRET"},
	}
	atFlag = &cli.StringFlag{
		Name:  "at",
		Usage: "Time to generate the code for (RFC 3339, date or unix seconds)",
	}
	accountFlag = &cli.StringFlag{
		Name:     "account",
		Usage:    "Account name shown in the authenticator app",
		Required: true,
	}
	issuerFlag = &cli.StringFlag{
		Name:  "issuer",
		Usage: "Issuer shown in the authenticator app",
		Value: config.DefaultServiceName,
	}
	lengthFlag = &cli.IntFlag{
		Name:  "length",
		Usage: "Secret length in characters",
		Value: 32,
	}
	emailFlag = &cli.StringFlag{
		Name:     "email",
		Usage:    "Root admin email",
		Required: true,
	}
)

var totpCommand = &cli.Command{
	Name:  "totp",
	Usage: "TOTP helpers",
	Subcommands: []*cli.Command{
		{
			Name:   "code",
			Usage:  "Print the current code for the shared secret",
			Flags:  []cli.Flag{otpSecretFlag, atFlag},
			Action: totpCode,
		},
		{
			Name:   "uri",
			Usage:  "Print the otpauth:// enrollment URI",
			Flags:  []cli.Flag{otpSecretFlag, accountFlag, issuerFlag},
			Action: totpURI,
		},
		{
			Name:   "new-secret",
			Usage:  "Generate a random shared secret",
			Flags:  []cli.Flag{lengthFlag},
			Action: totpNewSecret,
		},
	},
}

var hashPasswordCommand = &cli.Command{
	Name:   "hash-password",
	Usage:  "Read a password from stdin and print its bcrypt hash",
	Action: hashPassword,
}

var adminCommand = &cli.Command{
	Name:  "admin",
	Usage: "Manage root admins stored in MySQL",
	Subcommands: []*cli.Command{
		{
			Name:   "add",
			Usage:  "Add a root admin, the password is read from stdin",
			Flags:  []cli.Flag{emailFlag},
			Action: addAdmin,
		},
	},
}

func loadEngine(ctx *cli.Context) (*totp.Engine, error) {
	secret := ctx.String(otpSecretFlag.Name)
	policy := totp.SkewSymmetric
	if secret == "" {
		cfg, err := config.LoadConfig(ctx.String(configFileFlag.Name))
		if err != nil {
			return nil, err
		}
		secret = cfg.OTP.Secret
		if policy, err = totp.ParseSkewPolicy(cfg.OTP.Skew); err != nil {
			return nil, err
		}
	}
	return totp.NewEngine(secret, policy)
}

// parseTime accepts unix seconds or any layout cast understands.
func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Now(), nil
	}
	if secs, err := cast.ToInt64E(value); err == nil {
		return time.Unix(secs, 0), nil
	}
	return cast.ToTimeE(value)
}

func totpCode(ctx *cli.Context) error {
	engine, err := loadEngine(ctx)
	if err != nil {
		return err
	}
	at, err := parseTime(ctx.String(atFlag.Name))
	if err != nil {
		return fmt.Errorf("invalid --at: %w", err)
	}
	code, err := engine.Generate(at)
	if err != nil {
		return err
	}
	fmt.Println(code)
	return nil
}

func totpURI(ctx *cli.Context) error {
	engine, err := loadEngine(ctx)
	if err != nil {
		return err
	}
	uri, err := engine.ProvisioningURI(ctx.String(issuerFlag.Name), ctx.String(accountFlag.Name))
	if err != nil {
		return err
	}
	fmt.Println(uri)
	return nil
}

func totpNewSecret(ctx *cli.Context) error {
	length := ctx.Int(lengthFlag.Name)
	if length < 16 {
		return errors.New("secret length must be at least 16")
	}
	secret, err := common.GenerateSecret(length)
	if err != nil {
		return err
	}
	fmt.Println(secret)
	return nil
}

func readPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Password: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func hashPassword(ctx *cli.Context) error {
	password, err := readPassword()
	if err != nil {
		return err
	}
	hash, err := credentials.HashPassword(password)
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}

func addAdmin(ctx *cli.Context) error {
	cfg, err := config.LoadConfig(ctx.String(configFileFlag.Name))
	if err != nil {
		return err
	}
	if cfg.MySQL.Dsn == "" {
		return errors.New("mysql.dsn is not configured")
	}
	mustInitLogger(cfg.Debug)
	password, err := readPassword()
	if err != nil {
		return err
	}
	db := mustInitDatabase(cfg.MySQL)
	checker := credentials.NewDBChecker(credentials.NewAdminRepository(db))
	admin, err := checker.AddAdmin(ctx.Context, ctx.String(emailFlag.Name), password)
	if err != nil {
		return err
	}
	fmt.Printf("Added root admin %s (id %d)\n", admin.Email, admin.ID)
	return nil
}
