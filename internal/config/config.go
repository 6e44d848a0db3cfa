package config

import (
	"os"
	"strconv"
	"time"
)

// ServerConfig holds configuration for the gridshift API server.
type ServerConfig struct {
	Addr       string // Listen address (default ":8080")
	LogLevel   string // Log level: debug, info, warn, error
	LogFormat  string // Log format: text, json
	RedisAddr  string // Redis address (default localhost:6379, REDIS_ADDR env)
	DBPath     string // SQLite database path for standalone mode (":memory:" for testing)
	Standalone bool   // Run scheduler and workers in-process on SQLite + memory queues
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:      ":8080",
		LogLevel:  "info",
		LogFormat: "text",
		RedisAddr: EnvString("REDIS_ADDR", "localhost:6379"),
	}
}

// SchedulerConfig holds configuration for the scheduler process.
type SchedulerConfig struct {
	LogLevel     string
	LogFormat    string
	RedisAddr    string
	PolicyPath   string        // YAML policy file; empty uses the built-in default policy
	TickInterval time.Duration // Loop cadence (TICK_INTERVAL env, default 2s)
	RetryBackoff time.Duration // Fixed delay before retrying a failed tick

	// Defaults for the built-in policy when no policy file is given.
	LowThreshold       int // LOW_THRESHOLD env, default 200
	HighThreshold      int // HIGH_THRESHOLD env, default 400
	MaxDeferralSeconds int // MAX_DEFERRAL_SECONDS env, default 600

	// Carbon signal selection.
	CarbonFixed int    // CARBON_FIXED env; > 0 pins the reading
	CarbonURL   string // CARBON_API_URL env; live intensity API
	CarbonToken string // CARBON_API_TOKEN env
}

// DefaultSchedulerConfig returns sensible defaults, honouring the same
// environment variables the original services read.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		LogLevel:           "info",
		LogFormat:          "text",
		RedisAddr:          EnvString("REDIS_ADDR", "localhost:6379"),
		TickInterval:       EnvDuration("TICK_INTERVAL", 2*time.Second),
		RetryBackoff:       500 * time.Millisecond,
		LowThreshold:       EnvInt("LOW_THRESHOLD", 200),
		HighThreshold:      EnvInt("HIGH_THRESHOLD", 400),
		MaxDeferralSeconds: EnvInt("MAX_DEFERRAL_SECONDS", 600),
		CarbonFixed:        EnvInt("CARBON_FIXED", 0),
		CarbonURL:          EnvString("CARBON_API_URL", ""),
		CarbonToken:        EnvString("CARBON_API_TOKEN", ""),
	}
}

// WorkerConfig holds configuration for a worker process.
type WorkerConfig struct {
	LogLevel  string
	LogFormat string
	RedisAddr string
	Mode      string        // fast or eco (MODE env)
	Poll      time.Duration // Queue polling interval
}

// DefaultWorkerConfig returns sensible defaults.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		LogLevel:  "info",
		LogFormat: "text",
		RedisAddr: EnvString("REDIS_ADDR", "localhost:6379"),
		Mode:      EnvString("MODE", "fast"),
		Poll:      3 * time.Second,
	}
}

// EnvString returns the environment value for key, or def when unset.
func EnvString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// EnvInt returns the integer environment value for key, or def when unset or
// unparseable.
func EnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// EnvDuration returns the duration environment value for key, or def when
// unset or unparseable.
func EnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
