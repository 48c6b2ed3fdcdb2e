package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Load reads the first .env file found walking up from the working directory
// for each candidate name, then processes the environment into App.
func Load(envFilePath ...string) (*App, error) {
	logger := slog.Default()
	logger.Info("Loading environment variables")

	// If no specific paths provided, try default .env
	if len(envFilePath) == 0 {
		logger.Debug("No environment file specified, trying default .env")
		if err := godotenv.Load(); err != nil {
			logger.Warn("No .env file found in current directory")
		}
		return loadFromEnv()
	}

	// Try each provided path until we find a valid one
	for _, path := range envFilePath {
		logger.Debug("Looking for environment file", "path", path)
		foundPath, err := FindEnvFile(path)
		if err != nil {
			logger.Debug("Environment file not found", "path", path, "error", err)
			continue
		}

		logger.Info("Loading environment from file", "path", foundPath)
		if err := godotenv.Load(foundPath); err != nil {
			logger.Error("Failed to load environment file", "path", foundPath, "error", err)
			continue
		}

		// Successfully loaded a file, proceed with config loading
		return loadFromEnv()
	}

	// No valid environment files found, try default .env as fallback
	logger.Info("No valid environment files found, using default .env")
	if err := godotenv.Load(); err != nil {
		logger.Warn("No .env file found in current directory")
	}
	return loadFromEnv()
}

// FindEnvFile resolves name against the working directory and its parents,
// stopping at the module root (the first directory holding go.mod). An
// absolute name is only checked for existence. An empty name means .env.
func FindEnvFile(name string) (string, error) {
	if name == "" {
		name = ".env"
	}
	if filepath.IsAbs(name) {
		if _, err := os.Stat(name); err != nil {
			return "", err
		}
		return name, nil
	}
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return "", fmt.Errorf("%s not found below module root %s: %w", name, dir, os.ErrNotExist)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", os.ErrNotExist
		}
		dir = parent
	}
}

func loadFromEnv() (*App, error) {
	var cfg App
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, err
	}

	// Set default values if not set
	if cfg.Env == "" {
		cfg.Env = "development"
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger := slog.Default()
	logger.Info("Environment variables loaded from .env file")
	logger.Info("App config loaded",
		"env", cfg.Env,
		"rate_limit_max_requests", cfg.RateLimit.MaxRequests,
		"rate_limit_window", cfg.RateLimit.Window,
		"db_driver", cfg.DB.Driver,
		"db", maskValue(cfg.DB.Url),
		"auth_strategy", cfg.Auth.Strategy,
		"auth_jwt_expiry", cfg.Auth.Jwt.Expiry,
		"event_bus", cfg.EventBus.Driver,
		"payment_provider", cfg.PaymentProviders.Driver,
		"stripe_api_key", maskValue(cfg.PaymentProviders.Stripe.ApiKey),
		"chain_driver", cfg.Chain.Driver,
		"chain_rpc", cfg.Chain.RPCURL,
		"chain_private_key", maskValue(cfg.Chain.PrivateKey),
		"saga_stale_after", cfg.Saga.StaleAfter,
	)
	return &cfg, nil
}

func maskValue(key string) string {
	if len(key) <= 6 {
		return "****"
	}
	return key[:2] + "****" + key[len(key)-4:]
}

func (c *App) validate() error {
	switch c.DB.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.DB.Driver)
	}
	switch c.EventBus.Driver {
	case "memory", "redis", "kafka":
	default:
		return fmt.Errorf("unsupported EVENT_BUS_DRIVER %q", c.EventBus.Driver)
	}
	switch c.PaymentProviders.Driver {
	case "visa_sim", "stripe":
	default:
		return fmt.Errorf("unsupported PAYMENT_PROVIDER_DRIVER %q", c.PaymentProviders.Driver)
	}
	switch c.Chain.Driver {
	case "sim", "eth":
	default:
		return fmt.Errorf("unsupported CHAIN_DRIVER %q", c.Chain.Driver)
	}
	switch c.Auth.Strategy {
	case "jwt":
		if c.Auth.Jwt.Secret == "" {
			return errors.New("AUTH_JWT_SECRET is required when AUTH_STRATEGY=jwt")
		}
	case "none":
		if c.Env == "production" {
			return errors.New("AUTH_STRATEGY=none is not allowed in production")
		}
	default:
		return fmt.Errorf("unsupported AUTH_STRATEGY %q", c.Auth.Strategy)
	}
	return nil
}
