package cmd

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/example/court-scheduler/internal/accounts"
	"github.com/example/court-scheduler/internal/config"
	"github.com/example/court-scheduler/internal/crypto"
	"github.com/example/court-scheduler/internal/db"
	"github.com/example/court-scheduler/internal/gym"
	"github.com/example/court-scheduler/internal/internaltypes"
	"github.com/example/court-scheduler/internal/logging"
	"github.com/example/court-scheduler/internal/migrate"
	"github.com/example/court-scheduler/internal/ratelimit"
)

// loadConfig layers defaults, file and environment, then the global flags, then apply.
// It does not validate.
func loadConfig(g *globalFlags, apply func(*config.RunConfig)) (config.RunConfig, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return config.RunConfig{}, err
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	if g.logFormat != "" {
		cfg.LogFormat = g.logFormat
	}
	if g.account != "" {
		cfg.Account = g.account
	}
	if apply != nil {
		apply(&cfg)
	}
	return cfg, nil
}

func newLogger(cfg config.RunConfig) *log.Logger {
	return logging.NewLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)
}

// openStore connects to the credential database and applies pending migrations.
func openStore(ctx context.Context, cfg config.RunConfig, logger *log.Logger) (*db.DB, *accounts.Repo, error) {
	if cfg.DatabaseURL == "" {
		return nil, nil, internaltypes.NewConfigError("database-url", "DATABASE_URL is required for stored accounts")
	}
	if cfg.EncKey == "" {
		return nil, nil, internaltypes.NewConfigError("enc-key", "CRED_ENC_KEY is required for stored accounts (see `courtsched keys`)")
	}
	aead, err := crypto.FromBase64(cfg.EncKey)
	if err != nil {
		return nil, nil, &internaltypes.ConfigError{Field: "enc-key", Err: err}
	}
	d, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := migrate.Up(ctx, d, logger); err != nil {
		d.Close()
		return nil, nil, err
	}
	return d, accounts.NewRepo(d, aead), nil
}

// resolveCredentials fills token and open-id from the stored account when no token was given
// directly, then requires a token.
func resolveCredentials(ctx context.Context, cfg *config.RunConfig, logger *log.Logger) error {
	if cfg.Token == "" && cfg.Account != "" {
		d, repo, err := openStore(ctx, *cfg, logger)
		if err != nil {
			return err
		}
		defer d.Close()
		acct, err := repo.Get(ctx, cfg.Account)
		if errors.Is(err, internaltypes.ErrNotFound) {
			return internaltypes.NewConfigError("account", "no stored account %q", cfg.Account)
		}
		if err != nil {
			return fmt.Errorf("load account %s: %w", cfg.Account, err)
		}
		cfg.Token = acct.Token
		if cfg.OpenID == "" {
			cfg.OpenID = acct.OpenID
		}
		if cfg.SendKey == "" {
			cfg.SendKey = acct.SendKey
		}
		logger.WithField("account", cfg.Account).Info("loaded stored credentials")
	}
	if cfg.Token == "" {
		return internaltypes.NewConfigError("token", "no token given (flag, TOKEN, config file or --account)")
	}
	return nil
}

// prepare loads, resolves and validates the config and builds the logger for a command.
func prepare(ctx context.Context, g *globalFlags, apply func(*config.RunConfig)) (config.RunConfig, *log.Logger, error) {
	cfg, err := loadConfig(g, apply)
	if err != nil {
		return config.RunConfig{}, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return config.RunConfig{}, nil, err
	}
	logger := newLogger(cfg)
	if err := resolveCredentials(ctx, &cfg, logger); err != nil {
		return config.RunConfig{}, nil, err
	}
	return cfg, logger, nil
}

func newGymClient(cfg config.RunConfig, logger *log.Logger) *gym.Client {
	return gym.New(gym.Options{
		BaseURL: cfg.BaseURL,
		SportID: cfg.SportID,
		Token:   cfg.Token,
		OpenID:  cfg.OpenID,
		Timeout: cfg.AttemptTimeout,
		Limiter: ratelimit.New(config.Seconds(cfg.ReqInterval), config.Seconds(cfg.MaxReqInterval)),
		Logger:  logger,
	})
}
