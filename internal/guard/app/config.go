package app

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all runtime configuration, read from the environment with
// an optional .env file for local development.
type Config struct {
	Port int    `env:"GUARD_PORT" envDefault:"8080"`
	Env  string `env:"GUARD_ENV" envDefault:"development"`

	LogLevel  string `env:"GUARD_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"GUARD_LOG_FORMAT" envDefault:"json"`

	DatabaseFile string `env:"GUARD_DATABASE_FILE" envDefault:"guard.db"`

	// Issuer is the label authenticator apps display for enrolled secrets.
	Issuer string `env:"GUARD_ISSUER" envDefault:"PledgePoint"`

	// EncryptionKey is the base64 AES-256 key for secrets at rest.
	// Required outside development; a development run without one gets an
	// ephemeral key and loses stored secrets on restart.
	EncryptionKey string `env:"GUARD_ENCRYPTION_KEY"`

	// ServiceTokenSecret signs and verifies the HS256 bearer tokens other
	// platform services authenticate with.
	ServiceTokenSecret string `env:"GUARD_SERVICE_TOKEN_SECRET"`

	// PasswordPepper is mixed into every password hash.
	PasswordPepper string `env:"GUARD_PASSWORD_PEPPER"`

	LockoutThreshold int           `env:"GUARD_LOCKOUT_THRESHOLD" envDefault:"5"`
	LockoutDuration  time.Duration `env:"GUARD_LOCKOUT_DURATION" envDefault:"15m"`

	HousekeepingInterval time.Duration `env:"GUARD_HOUSEKEEPING_INTERVAL" envDefault:"1h"`
	ShutdownGracePeriod  time.Duration `env:"GUARD_SHUTDOWN_GRACE_PERIOD" envDefault:"10s"`
}

// LoadConfig reads configuration from the environment. A missing .env
// file is not an error.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Env != "development" {
		if cfg.EncryptionKey == "" {
			return Config{}, fmt.Errorf("GUARD_ENCRYPTION_KEY is required outside development")
		}
		if cfg.ServiceTokenSecret == "" {
			return Config{}, fmt.Errorf("GUARD_SERVICE_TOKEN_SECRET is required outside development")
		}
	}

	return cfg, nil
}
