package scheduler

import (
	"os"
	"strconv"
	"time"
)

// Config holds scheduler configuration
type Config struct {
	// Enabled controls whether the scheduler runs
	Enabled bool

	// CachePruneInterval is the interval for pruning the cold cache tier
	CachePruneInterval time.Duration

	// StaleSweepInterval is the interval for recovering stale claims and jobs
	StaleSweepInterval time.Duration

	// DeadLetterRetentionInterval is the interval for expiring resolved
	// dead letters
	DeadLetterRetentionInterval time.Duration

	// DeadLetterRetentionDays is how long resolved dead letters are kept
	DeadLetterRetentionDays int

	// Cron schedule overrides (take precedence over intervals when set)
	// Cron format with seconds: "second minute hour day-of-month month day-of-week"
	// Examples: "0 */5 * * * *" (every 5 min), "0 0 2 * * *" (daily at 2am)
	CachePruneSchedule          string
	StaleSweepSchedule          string
	DeadLetterRetentionSchedule string
}

// NewConfig creates a new Config from environment variables
func NewConfig() *Config {
	return &Config{
		Enabled:                     getEnvBool("SCHEDULER_ENABLED", true),
		CachePruneInterval:          getEnvDuration("CACHE_PRUNE_INTERVAL_MS", time.Hour),
		StaleSweepInterval:          getEnvDuration("STALE_SWEEP_INTERVAL_MS", 5*time.Minute),
		DeadLetterRetentionInterval: getEnvDuration("DEAD_LETTER_RETENTION_INTERVAL_MS", 6*time.Hour),
		DeadLetterRetentionDays:     getEnvInt("DEAD_LETTER_RETENTION_DAYS", 30),
		// Cron schedule overrides (empty string means use interval)
		CachePruneSchedule:          getEnvString("CACHE_PRUNE_SCHEDULE", ""),
		StaleSweepSchedule:          getEnvString("STALE_SWEEP_SCHEDULE", ""),
		DeadLetterRetentionSchedule: getEnvString("DEAD_LETTER_RETENTION_SCHEDULE", ""),
	}
}

// DeadLetterRetention returns the retention window as a Duration
func (c *Config) DeadLetterRetention() time.Duration {
	return time.Duration(c.DeadLetterRetentionDays) * 24 * time.Hour
}

// getEnvBool returns a boolean from an environment variable
func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvInt returns an integer from an environment variable
func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvDuration returns a duration from an environment variable (in milliseconds)
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if ms, err := strconv.Atoi(val); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultVal
}

// getEnvString returns a string from an environment variable
func getEnvString(key string, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
