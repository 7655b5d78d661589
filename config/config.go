// Package config reads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full runtime configuration.
type Config struct {
	Debug bool `env:"DEBUG"`

	Listen string `env:"LISTEN_ADDR" envDefault:":8080"`

	LedgerHost    string        `env:"LEDGER_HOST"    envDefault:"http://localhost:8090"`
	LedgerNetwork string        `env:"LEDGER_NETWORK" envDefault:"test"`
	LedgerDB      string        `env:"LEDGER_DB"      envDefault:"lists"`
	LedgerTimeout time.Duration `env:"LEDGER_TIMEOUT" envDefault:"15s"`

	SettleDelay     time.Duration `env:"CONFIRM_SETTLE_DELAY"    envDefault:"1s"`
	ConfirmDeadline time.Duration `env:"CONFIRM_DEADLINE"        envDefault:"10s"`
	BackoffInitial  time.Duration `env:"CONFIRM_BACKOFF_INITIAL" envDefault:"250ms"`
	BackoffMax      time.Duration `env:"CONFIRM_BACKOFF_MAX"     envDefault:"2s"`

	TxExpiry time.Duration `env:"TX_EXPIRY" envDefault:"2m"`
	TxFuel   int64         `env:"TX_FUEL"   envDefault:"100000"`

	IdentitiesFile string `env:"IDENTITIES_FILE" envDefault:"identities.yaml"`

	RedisConnectionString string        `env:"REDIS_CONNECTION_STRING"`
	CacheTTL              time.Duration `env:"CACHE_TTL" envDefault:"5m"`
	NonceTTL              time.Duration `env:"NONCE_TTL" envDefault:"24h"`

	StorageConnectionString string `env:"STORAGE_CONNECTION_STRING"`
	JournalTable            string `env:"JOURNAL_TABLE" envDefault:"ledgeroutcomes"`

	Auth0TestMode  bool          `env:"AUTH0_TEST_MODE"`
	TestJWTSecret  string        `env:"TEST_JWT_SECRET"`
	Auth0Domain    string        `env:"AUTH0_DOMAIN"`
	Auth0Audience  string        `env:"AUTH0_AUDIENCE"`
	JWKSCacheTTL   time.Duration `env:"JWKS_CACHE_TTL" envDefault:"15m"`
	HeaderIdentity bool          `env:"HEADER_IDENTITY"`

	OTelEnabled  bool   `env:"OTEL_ENABLED" envDefault:"true"`
	OTelEndpoint string `env:"OTEL_ENDPOINT"`
	ServiceName  string `env:"OTEL_SERVICE_NAME" envDefault:"ledger-lists"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values env tags cannot express.
func (c Config) Validate() error {
	u, err := url.Parse(c.LedgerHost)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid LEDGER_HOST %q", c.LedgerHost)
	}
	if c.LedgerNetwork == "" || c.LedgerDB == "" {
		return errors.New("LEDGER_NETWORK and LEDGER_DB are required")
	}
	if c.SettleDelay < time.Second {
		return errors.New("CONFIRM_SETTLE_DELAY must be at least 1s")
	}
	if c.ConfirmDeadline < c.SettleDelay {
		return errors.New("CONFIRM_DEADLINE must not be shorter than CONFIRM_SETTLE_DELAY")
	}
	if c.BackoffInitial <= 0 || c.BackoffMax < c.BackoffInitial {
		return errors.New("invalid confirmation backoff bounds")
	}
	if c.TxExpiry <= 0 || c.TxFuel <= 0 {
		return errors.New("TX_EXPIRY and TX_FUEL must be positive")
	}
	if c.Auth0TestMode && c.TestJWTSecret == "" {
		return errors.New("TEST_JWT_SECRET must be set when AUTH0_TEST_MODE=1")
	}
	if !c.Auth0TestMode && !c.HeaderIdentity && (c.Auth0Domain == "" || c.Auth0Audience == "") {
		return errors.New("missing Auth0 config")
	}
	return nil
}

// DB is the ledger database path, network/db.
func (c Config) DB() string {
	return c.LedgerNetwork + "/" + c.LedgerDB
}
