// Package config loads the server configuration from the environment.
//
// SOURCES, IN ORDER:
//  1. An optional .env file in the working directory (godotenv). Variables
//     already set in the process environment win over the file.
//  2. The process environment, decoded into Config with envdecode tags.
//  3. Defaults from the tags for anything still unset.
//
// Example .env for local development:
//
//	PORT=8080
//	DB_PATH=data/warbler.db
//	SECRET_KEY=change-me-to-something-long-and-random
//	LOG_LEVEL=debug
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/gorilla/securecookie"
	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"

	"github.com/sakif/warbler/internal/auth"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds everything main needs to build the server.
type Config struct {
	Port int `env:"PORT,default=8080"`

	DBDriver    string `env:"DB_DRIVER,default=sqlite"`
	DBPath      string `env:"DB_PATH,default=data/warbler.db"`
	DatabaseURL string `env:"DATABASE_URL"` // required when DBDriver is postgres

	SecretKey     string `env:"SECRET_KEY"`
	SecureCookies bool   `env:"SECURE_COOKIES,default=false"`
	BcryptCost    int    `env:"BCRYPT_COST,default=12"`

	// Per-client budget for POST /login and POST /signup.
	AuthRatePerMinute int `env:"AUTH_RATE_PER_MINUTE,default=10"`
	AuthRateBurst     int `env:"AUTH_RATE_BURST,default=5"`

	StaticDir string `env:"STATIC_DIR,default=web/static"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=text"` // text | json

	// Secret is the decoded signing key. When SECRET_KEY is unset a random
	// key is generated and GeneratedSecret is true: sessions then do not
	// survive a restart.
	Secret          []byte
	GeneratedSecret bool
}

// Load reads .env (if present) and the environment.
func Load() (Config, error) {
	return load(".env")
}

func load(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: reading env file: %w", err)
	}

	var cfg Config
	// ErrNoTargetFieldsAreSet only means nothing was set explicitly; the
	// tag defaults still apply.
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("config: decoding environment: %w", err)
	}

	if err := cfg.finish(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// finish normalises the decoded values and checks them.
func (c *Config) finish() error {
	c.DBDriver = strings.ToLower(strings.TrimSpace(c.DBDriver))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: PORT %d out of range", c.Port)
	}

	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			return errors.New("config: DB_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("config: unknown DB_DRIVER %q (want sqlite or postgres)", c.DBDriver)
	}

	if c.AuthRatePerMinute <= 0 || c.AuthRateBurst <= 0 {
		return errors.New("config: AUTH_RATE_PER_MINUTE and AUTH_RATE_BURST must be positive")
	}

	if c.SecretKey == "" {
		c.Secret = securecookie.GenerateRandomKey(32)
		if c.Secret == nil {
			return errors.New("config: generating secret key")
		}
		c.GeneratedSecret = true
		return nil
	}
	if len(c.SecretKey) < auth.MinSecretLength {
		return fmt.Errorf("config: SECRET_KEY must be at least %d bytes", auth.MinSecretLength)
	}
	c.Secret = []byte(c.SecretKey)
	return nil
}
