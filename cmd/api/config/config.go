// Package config handles configuration loading for the circulation service.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/circulation-service/cmd/api/circulation"
	"github.com/shopspring/decimal"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config holds all configuration for the circulation service.
type Config struct {
	Port                   int
	Environment            string
	Store                  string
	DatabaseURL            string
	DatabaseMigrationsPath string
	SeedFile               string
	RequestTimeout         time.Duration
	Circulation            circulation.Settings
	LockTimeout            time.Duration
	TxTimeout              time.Duration
	RetryMaxAttempts       int
	RetryBaseDelay         time.Duration
	RedisAddr              string
	RedisPassword          string
	NtfyEnabled            bool
	NtfyBaseURL            string
	NtfyTimeout            time.Duration
}

// Load reads configuration from environment variables. Values that do not
// parse are reported together.
func Load() (*Config, error) {
	p := parser{}
	defaults := circulation.DefaultSettings()

	cfg := &Config{
		Port:                   p.getInt("PORT", 8080),
		Environment:            GetEnv("ENVIRONMENT", "production"),
		DatabaseURL:            GetEnv("DATABASE_URL", ""),
		DatabaseMigrationsPath: GetEnv("DATABASE_MIGRATIONS_PATH", "migrations"),
		SeedFile:               GetEnv("SEED_FILE", ""),
		RequestTimeout:         p.getDuration("HTTP_REQUEST_TIMEOUT", 5*time.Second),
		Circulation: circulation.Settings{
			BorrowPeriodDays:   p.getInt("BORROW_PERIOD_DAYS", defaults.BorrowPeriodDays),
			FinePerDay:         p.getDecimal("FINE_PER_DAY", defaults.FinePerDay),
			MaxBooksPerStudent: p.getInt("MAX_BOOKS_PER_STUDENT", defaults.MaxBooksPerStudent),
		},
		LockTimeout:      p.getDuration("LOCK_TIMEOUT", 2*time.Second),
		TxTimeout:        p.getDuration("TX_TIMEOUT", 5*time.Second),
		RetryMaxAttempts: p.getInt("RETRY_MAX_ATTEMPTS", 5),
		RetryBaseDelay:   p.getDuration("RETRY_BASE_DELAY", 10*time.Millisecond),
		RedisAddr:        GetEnv("REDIS_ADDR", ""),
		RedisPassword:    GetEnv("REDIS_PASSWORD", ""),
		NtfyEnabled:      p.getBool("NTFY_ENABLED", false),
		NtfyBaseURL:      GetEnv("NTFY_BASE_URL", ""),
		NtfyTimeout:      p.getDuration("NTFY_TIMEOUT", 2*time.Second),
	}

	defaultStore := StorePostgres
	if cfg.DatabaseURL == "" {
		defaultStore = StoreMemory
	}
	cfg.Store = GetEnv("STORE", defaultStore)

	if err := cfg.validate(); err != nil {
		p.errs = append(p.errs, err)
	}
	if len(p.errs) > 0 {
		return nil, fmt.Errorf("loading config: %w", errors.Join(p.errs...))
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("STORE=postgres needs DATABASE_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE must be %q or %q, got %q", StoreMemory, StorePostgres, c.Store))
	}
	if c.Circulation.BorrowPeriodDays <= 0 {
		errs = append(errs, errors.New("BORROW_PERIOD_DAYS must be positive"))
	}
	if c.Circulation.MaxBooksPerStudent <= 0 {
		errs = append(errs, errors.New("MAX_BOOKS_PER_STUDENT must be positive"))
	}
	if c.Circulation.FinePerDay.IsNegative() {
		errs = append(errs, errors.New("FINE_PER_DAY must not be negative"))
	}
	if c.RetryMaxAttempts <= 0 {
		errs = append(errs, errors.New("RETRY_MAX_ATTEMPTS must be positive"))
	}
	if c.NtfyEnabled && c.NtfyBaseURL == "" {
		errs = append(errs, errors.New("NTFY_ENABLED needs NTFY_BASE_URL"))
	}
	return errors.Join(errs...)
}

// GetEnv returns the variable or defaultValue when it is unset or empty.
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

type parser struct {
	errs []error
}

func (p *parser) getInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return n
}

func (p *parser) getBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return b
}

// Durations need a unit suffix, like "5s".
func (p *parser) getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	if d <= 0 {
		p.errs = append(p.errs, fmt.Errorf("%s must be positive", key))
		return defaultValue
	}
	return d
}

func (p *parser) getDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return d
}
