// Package config provides centralized configuration loaded from environment
// variables. Shared by both cmd/api and cmd/goalctl.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Config struct — populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// Database
	DatabaseURL    string
	DBPoolMinConns int
	DBPoolMaxConns int
	DBPoolMaxLife  time.Duration

	// API server
	APIHost     string
	APIPort     int
	Environment string // development, staging, production
	Debug       bool

	// CORS
	CORSAllowOrigins []string

	// Rate limiting
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Evaluation engine
	CooldownDuration  time.Duration
	DailyCap          int
	InactivityAfter   time.Duration
	ScoreThreshold    float64
	SmallTargetCutoff float64
	EvalWorkers       int
	EvalQueueSize     int

	// Relevance score weights
	WeightBehind     float64
	WeightMilestone  float64
	WeightInactivity float64
	WeightDeadline   float64
	WeightHabit      float64

	// Maintenance intervals
	SweepInterval     time.Duration
	ExpiryInterval    time.Duration
	RetentionInterval time.Duration
	RetentionMaxAge   time.Duration

	// Dispatch
	FCMCredentialsFile string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	dbURL := envOr("DATABASE_URL", envOr("SUPABASE_DATABASE_URL", ""))
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL or SUPABASE_DATABASE_URL must be set")
	}

	return &Config{
		DatabaseURL:    dbURL,
		DBPoolMinConns: envInt("DB_POOL_MIN_CONNS", 2),
		DBPoolMaxConns: envInt("DB_POOL_MAX_CONNS", 10),
		DBPoolMaxLife:  time.Duration(envInt("DB_POOL_MAX_LIFE_MINUTES", 30)) * time.Minute,

		APIHost:     envOr("API_HOST", "0.0.0.0"),
		APIPort:     envInt("API_PORT", envInt("PORT", 8000)),
		Environment: envOr("ENVIRONMENT", "development"),
		Debug:       envBool("DEBUG", false),

		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{
			"http://localhost:3000",
			"http://localhost:5173",
		}),

		RateLimitEnabled:  envBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequests: envInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   time.Duration(envInt("RATE_LIMIT_WINDOW", 60)) * time.Second,

		CooldownDuration:  time.Duration(envInt("NOTIFY_COOLDOWN_HOURS", 18)) * time.Hour,
		DailyCap:          envInt("NOTIFY_DAILY_CAP", 2),
		InactivityAfter:   time.Duration(envInt("INACTIVITY_DAYS", 3)) * 24 * time.Hour,
		ScoreThreshold:    envFloat("SCORE_THRESHOLD", 0.6),
		SmallTargetCutoff: envFloat("SMALL_TARGET_CUTOFF", 20),
		EvalWorkers:       envInt("EVAL_WORKERS", 4),
		EvalQueueSize:     envInt("EVAL_QUEUE_SIZE", 256),

		WeightBehind:     envFloat("WEIGHT_BEHIND", 0.6),
		WeightMilestone:  envFloat("WEIGHT_MILESTONE", 0.4),
		WeightInactivity: envFloat("WEIGHT_INACTIVITY", 0.5),
		WeightDeadline:   envFloat("WEIGHT_DEADLINE", 0.5),
		WeightHabit:      envFloat("WEIGHT_HABIT", 0.2),

		SweepInterval:     time.Duration(envInt("SWEEP_INTERVAL_MINUTES", 5)) * time.Minute,
		ExpiryInterval:    time.Duration(envInt("EXPIRY_INTERVAL_MINUTES", 15)) * time.Minute,
		RetentionInterval: time.Duration(envInt("RETENTION_INTERVAL_HOURS", 24)) * time.Hour,
		RetentionMaxAge:   time.Duration(envInt("RETENTION_MAX_AGE_DAYS", 180)) * 24 * time.Hour,

		FCMCredentialsFile: envOr("FIREBASE_CREDENTIALS_FILE", ""),
	}, nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
