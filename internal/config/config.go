// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

// Config aggregates application configuration values.
type Config struct {
	HTTP     HTTPConfig
	Store    StoreConfig
	Auth     AuthConfig
	Payments PaymentsConfig
	Logging  LoggingConfig
}

// HTTPConfig governs HTTP server behaviour.
type HTTPConfig struct {
	Host            string        `env:"HOST"                 envDefault:"0.0.0.0"`
	Port            int           `env:"PORT"                 envDefault:"3001"`
	ClientURL       string        `env:"CLIENT_URL"           envDefault:"http://localhost:5173"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT"    envDefault:"10s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT"   envDefault:"15s"`
	IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT"    envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	MetricsEnabled  bool          `env:"METRICS_ENABLED"      envDefault:"true"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Driver        string `env:"STORE_DRIVER"   envDefault:"sqlite"`
	DBPath        string `env:"DB_PATH"        envDefault:"./data/ubupresent.db"`
	MongoURI      string `env:"MONGO_URI"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"ubupresent"`
}

// AuthConfig describes how host tokens from the identity provider are verified.
type AuthConfig struct {
	JWTSecret string        `env:"AUTH_JWT_SECRET"`
	Issuer    string        `env:"AUTH_JWT_ISSUER"`
	TokenTTL  time.Duration `env:"AUTH_TOKEN_TTL" envDefault:"24h"`
}

// PaymentsConfig tunes initiation, settlement and expiry.
type PaymentsConfig struct {
	// Retention is how long a PENDING transaction waits for its callback.
	Retention     time.Duration `env:"TRANSACTION_RETENTION" envDefault:"1h"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL"        envDefault:"5m"`
	MaxAttempts   int           `env:"SETTLE_MAX_ATTEMPTS"   envDefault:"8"`

	// CallbackSecret, when set, requires webhook callbacks to be HMAC-signed.
	CallbackSecret string `env:"PAYMENT_CALLBACK_SECRET"`
}

// LoggingConfig controls structured logging settings.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL"  envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"text"` // text|json
}

// Load reads optional dotenv files (".env" when none are given) into the process
// environment, then parses and validates the configuration.
// Variables already set in the environment win over dotenv values.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", file, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("port %d is out of range", c.HTTP.Port)
	}

	switch c.Store.Driver {
	case DriverSQLite:
		if strings.TrimSpace(c.Store.DBPath) == "" {
			return fmt.Errorf("DB_PATH is required for the sqlite driver")
		}
	case DriverMongo:
		if strings.TrimSpace(c.Store.MongoURI) == "" {
			return fmt.Errorf("MONGO_URI is required for the mongo driver")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q (want %s or %s)", c.Store.Driver, DriverSQLite, DriverMongo)
	}

	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("AUTH_JWT_SECRET must be at least 16 characters")
	}

	if c.Payments.Retention <= 0 {
		return fmt.Errorf("TRANSACTION_RETENTION must be positive")
	}
	if c.Payments.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive")
	}
	if c.Payments.MaxAttempts < 1 {
		return fmt.Errorf("SETTLE_MAX_ATTEMPTS must be at least 1")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown LOG_FORMAT %q (want text or json)", c.Logging.Format)
	}

	return nil
}

// Addr is the listen address for the HTTP server.
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AllowedOrigins splits CLIENT_URL on commas.
func (c HTTPConfig) AllowedOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(c.ClientURL, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}
