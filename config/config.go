// Package config loads the server's runtime configuration. Every setting
// has an environment variable; command-line flags override it.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds configuration knobs for the HTTP server, storage and
// collaborators.
type Config struct {
	Port            int
	StoreDriver     string
	DBPath          string
	DatabaseURL     string
	TxMaxAttempts   int
	IdentityURL     string
	IdentityTimeout time.Duration
	SeedAdminSecret string

	OTLPEndpoint string
	ServiceName  string
	LogLevel     string

	OverdueCheckInterval time.Duration
	Timezone             string
	ShutdownTimeout      time.Duration

	// DemoScenarios exposes /api/scenarios, whose load endpoint wipes the
	// store. Off unless set, and never allowed against PostgreSQL.
	DemoScenarios bool
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoienv(key string, def int) int {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func boolenv(key string, def bool) bool {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func durenv(key string, def time.Duration) time.Duration {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// Load reads the environment, then parses args (without the program name)
// on top of it.
func Load(args []string) (Config, error) {
	var c Config
	fs := flag.NewFlagSet("sales-server", flag.ContinueOnError)

	fs.IntVar(&c.Port, "port", atoienv("PORT", 8080), "HTTP server port")
	fs.StringVar(&c.StoreDriver, "store", getenv("STORE_DRIVER", DriverSQLite), "storage driver: memory, sqlite or postgres")
	fs.StringVar(&c.DBPath, "db", getenv("DB_PATH", "sales.db"), "SQLite database path (\":memory:\" for in-memory)")
	fs.StringVar(&c.DatabaseURL, "database-url", getenv("DATABASE_URL", ""), "PostgreSQL connection URL")
	fs.IntVar(&c.TxMaxAttempts, "tx-max-attempts", atoienv("TX_MAX_ATTEMPTS", 5), "attempts per transaction before aborting")
	fs.StringVar(&c.IdentityURL, "identity-url", getenv("IDENTITY_URL", ""), "identity service base URL (empty: local directory)")
	fs.DurationVar(&c.IdentityTimeout, "identity-timeout", durenv("IDENTITY_TIMEOUT", 5*time.Second), "identity service timeout")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", getenv("OTEL_EXPORTER_OTLP_ENDPOINT", ""), "OTLP/HTTP collector host:port (empty: telemetry off)")
	fs.StringVar(&c.ServiceName, "service-name", getenv("SERVICE_NAME", "sales-engine"), "service name reported to telemetry")
	fs.StringVar(&c.LogLevel, "log-level", getenv("LOG_LEVEL", "info"), "debug, info, warn or error")
	fs.DurationVar(&c.OverdueCheckInterval, "overdue-interval", durenv("OVERDUE_CHECK_INTERVAL", time.Hour), "how often to scan for overdue installments (0 disables)")
	fs.StringVar(&c.Timezone, "timezone", getenv("TIMEZONE", "UTC"), "IANA zone deciding calendar days for due dates")
	fs.DurationVar(&c.ShutdownTimeout, "shutdown-timeout", durenv("SHUTDOWN_TIMEOUT", 30*time.Second), "graceful shutdown timeout")
	fs.BoolVar(&c.DemoScenarios, "demo-scenarios", boolenv("DEMO_SCENARIOS", false), "expose demo scenario endpoints (resets the store)")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	c.SeedAdminSecret = os.Getenv("SEED_ADMIN_PASSWORD")

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	switch c.StoreDriver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("store %q requires DATABASE_URL", c.StoreDriver)
		}
		if c.DemoScenarios {
			return fmt.Errorf("demo scenarios reset the store and are not allowed with %q", c.StoreDriver)
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.TxMaxAttempts < 1 {
		return fmt.Errorf("tx-max-attempts must be at least 1, got %d", c.TxMaxAttempts)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves Timezone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
