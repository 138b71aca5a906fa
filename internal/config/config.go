// ABOUTME: Configuration loader with flag > environment variable > .env file > default precedence
// ABOUTME: Validation is fail-fast: missing required fields is an Error before any RPC

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Error marks a configuration validation failure, distinct from transport
// or planning errors so the CLI can report it before attempting any RPC.
type Error struct {
	Field string
	Msg   string
}

func (e *Error) Error() string { return fmt.Sprintf("config: %s: %s", e.Field, e.Msg) }

// Config holds everything the CLI needs for one planning run.
type Config struct {
	Endpoint   string
	Username   string
	Password   string
	Datacenter string
	Insecure   bool

	DryRun             bool
	Aggressiveness     int
	RunBalance         bool
	RunAntiAffinity    bool
	IgnoreAntiAffinity bool
	Metrics            []string
	MaxMigrations      int

	Socks5Proxy string

	Timeout   int // seconds
	LogFormat string
	LogLevel  string
}

const (
	defaultAggressiveness = 3
	defaultMaxMigrations  = 20
	defaultTimeoutSeconds = 120
	defaultLogFormat      = "text"
	defaultLogLevel       = "info"
)

// LoadDotEnv loads an optional .env-style file before flag and environment
// values are resolved by Load, so
// CI pipelines can avoid passing credentials on the command line. A missing
// file is not an error; an explicit path that cannot be read is.
func LoadDotEnv(path string) error {
	if path != "" {
		return godotenv.Load(path)
	}
	if err := godotenv.Load(); err == nil {
		return nil
	}
	return nil // no .env in the working directory is not an error
}

// FlagValues carries whatever the CLI layer parsed from flags; zero values
// mean "not set on the command line" and fall through to env/default.
type FlagValues struct {
	Endpoint           string
	Username           string
	Password           string
	Datacenter         string
	Insecure           *bool
	DryRun             *bool
	Aggressiveness     *int
	RunBalance         *bool
	RunAntiAffinity    *bool
	IgnoreAntiAffinity *bool
	Metrics            []string
	MaxMigrations      *int
	Socks5Proxy        string
	Timeout            *int
	LogFormat          string
	LogLevel           string
}

// Load resolves the final Config from flags, then environment, then
// documented defaults, validating required connection fields.
func Load(flags FlagValues) (*Config, error) {
	cfg := &Config{
		Endpoint:           firstNonEmpty(flags.Endpoint, os.Getenv("VCBALANCER_ENDPOINT")),
		Username:           firstNonEmpty(flags.Username, os.Getenv("VCBALANCER_USERNAME")),
		Password:           firstNonEmpty(flags.Password, os.Getenv("VCBALANCER_PASSWORD")),
		Datacenter:         firstNonEmpty(flags.Datacenter, os.Getenv("VCBALANCER_DATACENTER")),
		Insecure:           boolOr(flags.Insecure, getEnvBool("VCBALANCER_INSECURE", false)),
		DryRun:             boolOr(flags.DryRun, getEnvBool("VCBALANCER_DRY_RUN", false)),
		Aggressiveness:     intOr(flags.Aggressiveness, getEnvInt("VCBALANCER_AGGRESSIVENESS", defaultAggressiveness)),
		RunBalance:         boolOr(flags.RunBalance, getEnvBool("VCBALANCER_BALANCE", true)),
		RunAntiAffinity:    boolOr(flags.RunAntiAffinity, getEnvBool("VCBALANCER_APPLY_ANTI_AFFINITY", true)),
		IgnoreAntiAffinity: boolOr(flags.IgnoreAntiAffinity, getEnvBool("VCBALANCER_IGNORE_ANTI_AFFINITY", false)),
		Metrics:            stringsOr(flags.Metrics, getEnvStringList("VCBALANCER_METRICS")),
		MaxMigrations:      intOr(flags.MaxMigrations, getEnvInt("VCBALANCER_MAX_MIGRATIONS", defaultMaxMigrations)),
		Socks5Proxy:        firstNonEmpty(flags.Socks5Proxy, os.Getenv("VCBALANCER_SOCKS5_PROXY")),
		Timeout:            intOr(flags.Timeout, getEnvInt("VCBALANCER_TIMEOUT_SECONDS", defaultTimeoutSeconds)),
		LogFormat:          firstNonEmpty(flags.LogFormat, getEnv("VCBALANCER_LOG_FORMAT", defaultLogFormat)),
		LogLevel:           firstNonEmpty(flags.LogLevel, getEnv("VCBALANCER_LOG_LEVEL", defaultLogLevel)),
	}

	if cfg.Endpoint == "" {
		return nil, &Error{Field: "endpoint", Msg: "required (--endpoint or VCBALANCER_ENDPOINT)"}
	}
	if cfg.Username == "" {
		return nil, &Error{Field: "username", Msg: "required (--username or VCBALANCER_USERNAME)"}
	}
	if cfg.Password == "" {
		return nil, &Error{Field: "password", Msg: "required (--password or VCBALANCER_PASSWORD)"}
	}
	if cfg.Datacenter == "" {
		return nil, &Error{Field: "datacenter", Msg: "required (--datacenter or VCBALANCER_DATACENTER)"}
	}
	if cfg.Aggressiveness < 1 || cfg.Aggressiveness > 5 {
		return nil, &Error{Field: "aggressiveness", Msg: "must be between 1 and 5"}
	}
	if cfg.MaxMigrations < 0 {
		return nil, &Error{Field: "max-migrations", Msg: "must be non-negative"}
	}

	return cfg, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func boolOr(flag *bool, fallback bool) bool {
	if flag != nil {
		return *flag
	}
	return fallback
}

func intOr(flag *int, fallback int) int {
	if flag != nil {
		return *flag
	}
	return fallback
}

func stringsOr(flag []string, fallback []string) []string {
	if len(flag) > 0 {
		return flag
	}
	return fallback
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvStringList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
