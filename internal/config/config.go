package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "treasury.config"

const (
	DefaultShutdownTimeout   = 30 * time.Second
	DefaultReservationPeriod = 120 * time.Second
)

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

// RunMode selects how the treasury talks to the outside world.
type RunMode string

const (
	RunModeServe RunMode = "serve" // API server (default)
	RunModeDev   RunMode = "dev"   // API server with the in-memory ledger and dev routes
)

func (m RunMode) Valid() bool {
	switch m {
	case RunModeServe, RunModeDev, "":
		return true
	default:
		return false
	}
}

func (m RunMode) IsDevMode() bool {
	return m == RunModeDev
}

// StateBackend names the store behind the engine.
type StateBackend string

const (
	StateMemory StateBackend = "memory"
	StateBadger StateBackend = "badger"
	StateRedis  StateBackend = "redis"
)

func (b StateBackend) Valid() bool {
	switch b {
	case StateMemory, StateBadger, StateRedis:
		return true
	default:
		return false
	}
}

// Governance holds the parameters `init` and `serve` initialize a fresh
// treasury with.
type Governance struct {
	Quorum           int64 `yaml:"quorum"           split_words:"true"`
	ContributionDays int64 `yaml:"contributionDays" split_words:"true"`
	VoteMinutes      int64 `yaml:"voteMinutes"      split_words:"true"`
}

type Config struct {
	BindAddr          string        `yaml:"bindAddr"          split_words:"true"`
	Port              uint          `yaml:"port"`
	MetricsPort       uint          `yaml:"metricsPort"       split_words:"true"`
	StateBackend      StateBackend  `yaml:"stateBackend"      split_words:"true"`
	DatabasePath      string        `yaml:"databasePath"      split_words:"true"`
	RedisURL          string        `yaml:"redisUrl"          envconfig:"REDIS_URL"`
	RedisNamespace    string        `yaml:"redisNamespace"    split_words:"true"`
	JournalDSN        string        `yaml:"journalDsn"        envconfig:"JOURNAL_DSN"`
	TreasuryIdentity  string        `yaml:"treasuryIdentity"  split_words:"true"`
	JWTSecret         string        `yaml:"jwtSecret"         envconfig:"JWT_SECRET"`
	LedgerFee         uint64        `yaml:"ledgerFee"         split_words:"true"`
	ReservationPeriod time.Duration `yaml:"reservationPeriod" split_words:"true"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout"   split_words:"true"`
	RunMode           RunMode       `yaml:"runMode"           split_words:"true"`
	Debug             bool          `yaml:"debug"`
	Governance        Governance    `yaml:"governance"`
}

// Default returns a fresh copy of the built-in defaults.
func Default() *Config {
	return &Config{
		BindAddr:          "0.0.0.0",
		Port:              8080,
		MetricsPort:       12799,
		StateBackend:      StateBadger,
		DatabasePath:      ".treasury",
		RedisNamespace:    "treasury:",
		JournalDSN:        "file:.treasury/journal.db",
		TreasuryIdentity:  "contract:treasury",
		LedgerFee:         10000,
		ReservationPeriod: DefaultReservationPeriod,
		ShutdownTimeout:   DefaultShutdownTimeout,
		RunMode:           RunModeServe,
		Governance: Governance{
			Quorum:           50,
			ContributionDays: 30,
			VoteMinutes:      7 * 24 * 60,
		},
	}
}

// Load overlays the yaml file (if any) and then TREASURY_* environment
// variables onto the defaults.
func Load(configFile string) (*Config, error) {
	cfg := Default()
	if configFile == "" {
		// Check for config file in this path: ~/.treasury/treasury.yaml
		if homeDir, err := os.UserHomeDir(); err == nil {
			userPath := filepath.Join(homeDir, ".treasury", "treasury.yaml")
			if _, err := os.Stat(userPath); err == nil {
				configFile = userPath
			}
		}
	}
	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	if err := envconfig.Process("treasury", cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	if !c.RunMode.Valid() {
		return fmt.Errorf("invalid runMode: %q (must be 'serve' or 'dev')", c.RunMode)
	}
	if c.RunMode == "" {
		c.RunMode = RunModeServe
	}
	if !c.StateBackend.Valid() {
		return fmt.Errorf("invalid stateBackend: %q (must be 'memory', 'badger' or 'redis')", c.StateBackend)
	}
	if c.StateBackend == StateRedis && c.RedisURL == "" {
		return errors.New("stateBackend redis needs redisUrl")
	}
	if c.TreasuryIdentity == "" {
		return errors.New("treasuryIdentity must be set")
	}
	if c.ReservationPeriod <= 0 {
		return errors.New("reservationPeriod must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	return nil
}
