package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port               string
	RateLimitPerMinute int
	// CIDRs whose X-Forwarded-For is trusted, on top of private ranges
	TrustedProxies []string

	LogLevel string

	// Database
	SQLiteDBPath string

	// Routing table; empty uses the built-in one
	RoutingFile string

	// AMQP (optional; batch events are not published without it)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Locking
	LockBackend   string
	LockTTL       time.Duration
	RedisAddress  string
	RedisPassword string

	// Google Sheets mirror (worker only)
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// Worker
	DepositSyncInterval  time.Duration
	DepositSyncBatchSize int

	// Maintenance
	RecalcConcurrency int
}

func Load() *Config {
	cfg := &Config{
		Port:               getEnv("PORT", "8081"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		TrustedProxies:     getEnvList("TRUSTED_PROXIES"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		SQLiteDBPath:       getEnv("SQLITE_DB_PATH", "./data/cuentas.db"),
		RoutingFile:        getEnv("ROUTING_FILE", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "cuentas"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "batch_processed"),

		LockBackend:   getEnv("LOCK_BACKEND", "memory"),
		LockTTL:       getEnvDuration("LOCK_TTL", 30*time.Second),
		RedisAddress:  getEnv("REDIS_ADDRESS", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "Caja"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),

		DepositSyncInterval:  getEnvDuration("DEPOSIT_SYNC_INTERVAL", time.Minute),
		DepositSyncBatchSize: getEnvInt("DEPOSIT_SYNC_BATCH_SIZE", 100),

		RecalcConcurrency: getEnvInt("RECALC_CONCURRENCY", 4),
	}

	return cfg
}

// SheetsEnabled reports whether the worker should mirror batches to Sheets.
func (c *Config) SheetsEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	for _, cidr := range c.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			errors = append(errors, fmt.Sprintf("invalid trusted proxy '%s': must be a CIDR", cidr))
		}
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if c.RoutingFile != "" {
		if _, err := os.Stat(c.RoutingFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("routing file does not exist: %s", c.RoutingFile))
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	switch c.LockBackend {
	case "memory":
	case "redis":
		if c.RedisAddress == "" {
			errors = append(errors, "REDIS_ADDRESS is required when LOCK_BACKEND is redis")
		}
		if c.LockTTL < time.Second {
			errors = append(errors, fmt.Sprintf("invalid lock TTL %v: must be at least 1 second", c.LockTTL))
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid lock backend '%s': must be one of [memory redis]", c.LockBackend))
	}

	if c.SheetsEnabled() {
		if c.GoogleSheetName == "" {
			errors = append(errors, "Google Sheet name is required when a spreadsheet is configured")
		}
		hasFile := c.GoogleServiceAccountFile != ""
		if !hasFile && c.GoogleServiceAccountJSON == "" {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_SERVICE_ACCOUNT_JSON must be provided for the sheets mirror")
		}
		if hasFile {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	if c.DepositSyncInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid deposit sync interval %v: must be at least 1 second", c.DepositSyncInterval))
	} else if c.DepositSyncInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid deposit sync interval %v: must be at most 24 hours", c.DepositSyncInterval))
	}
	if c.DepositSyncBatchSize < 1 || c.DepositSyncBatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid deposit sync batch size %d: must be between 1 and 1000", c.DepositSyncBatchSize))
	}

	if c.RecalcConcurrency < 1 || c.RecalcConcurrency > 64 {
		errors = append(errors, fmt.Sprintf("invalid recalc concurrency %d: must be between 1 and 64", c.RecalcConcurrency))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList splits a comma-separated value, dropping empty items.
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
