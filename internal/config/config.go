package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP server
	Port               string
	RateLimitPerMinute int

	// Storage; StorageBackend is "sqlite" or "memory".
	StorageBackend string
	SQLiteDBPath   string

	// AMQP; an empty URL disables record-changed events.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Logging
	LogLevel  string
	LogFormat string

	// Member directory cache
	MemberCacheTTL  time.Duration
	MemberCacheSize int

	// Duplicate detection window, in days either side of the candidate.
	DedupLookbackDays int

	// Worker
	RecurringInterval time.Duration
	WorkerMetricsPort string
}

func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8081"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),

		StorageBackend: getEnv("STORAGE_BACKEND", "sqlite"),
		SQLiteDBPath:   getEnv("SQLITE_DB_PATH", "./data/delat.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "delat"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "record_changes"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		MemberCacheTTL:  getEnvDuration("MEMBER_CACHE_TTL", 5*time.Minute),
		MemberCacheSize: getEnvInt("MEMBER_CACHE_SIZE", 256),

		DedupLookbackDays: getEnvInt("DEDUP_LOOKBACK_DAYS", 31),

		RecurringInterval: getEnvDuration("RECURRING_INTERVAL", time.Hour),
		WorkerMetricsPort: getEnv("WORKER_METRICS_PORT", "9091"),
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errors []string

	if msg := validatePort(c.Port); msg != "" {
		errors = append(errors, msg)
	}
	if msg := validatePort(c.WorkerMetricsPort); msg != "" {
		errors = append(errors, "worker metrics: "+msg)
	} else if c.WorkerMetricsPort == c.Port {
		errors = append(errors, fmt.Sprintf("worker metrics port %s must differ from the server port", c.WorkerMetricsPort))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	switch strings.ToLower(c.StorageBackend) {
	case "sqlite":
		if strings.TrimSpace(c.SQLiteDBPath) == "" {
			errors = append(errors, "SQLite database path cannot be empty")
		}
	case "memory":
	default:
		errors = append(errors, fmt.Sprintf("invalid storage backend '%s': must be 'sqlite' or 'memory'", c.StorageBackend))
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

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	if c.MemberCacheTTL <= 0 {
		errors = append(errors, fmt.Sprintf("invalid member cache TTL %v: must be positive", c.MemberCacheTTL))
	}
	if c.MemberCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid member cache size %d: must be at least 1", c.MemberCacheSize))
	}

	if c.DedupLookbackDays < 3 || c.DedupLookbackDays > 366 {
		errors = append(errors, fmt.Sprintf("invalid dedup lookback %d days: must be between 3 and 366", c.DedupLookbackDays))
	}

	if c.RecurringInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid recurring interval %v: must be at least 1 minute", c.RecurringInterval))
	} else if c.RecurringInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid recurring interval %v: must be at most 24 hours", c.RecurringInterval))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// EventsEnabled reports whether record-changed events should be published.
func (c *Config) EventsEnabled() bool {
	return c.AMQPURL != ""
}

func validatePort(raw string) string {
	port, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Sprintf("invalid port '%s': must be a number", raw)
	}
	if port < 1 || port > 65535 {
		return fmt.Sprintf("invalid port %d: must be between 1 and 65535", port)
	}
	return ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
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
