// Package config loads the discovery engine's runtime configuration
// from the environment. ScoringOverlay only names the YAML scoring
// overlay file; this package does not read it (scoring.LoadOverlay does).
package config

import (
	"os"
	"strconv"
	"strings"
)

// Config holds the engine's top-level runtime configuration.
//
//nolint:govet // fieldalignment: struct layout kept readable over packed
type Config struct {
	Port            string
	LogLevel        string
	DatabaseURL     string
	DatabaseDialect string // "postgres" or "sqlite"
	LLMServiceURL   string
	LLMAPIKey       string
	CRMBaseURL      string
	CRMJWTSecret    string
	S3Bucket        string
	S3Region        string
	RedisURL        string
	StrictMode      bool
	DryRun          bool
	ScoringOverlay  string // path to an optional scoring.yaml overlay
	OtelEndpoint    string
}

// Load reads Config from the environment, matching defaults chosen for
// a local/dev posture (SQLite, no CRM target) so the engine starts up
// with nothing configured.
func Load() *Config {
	return &Config{
		Port:            getenv("PORT", "8090"),
		LogLevel:        getenv("LOG_LEVEL", "INFO"),
		DatabaseURL:     getenv("DATABASE_URL", "sourcing.db"),
		DatabaseDialect: getenv("DATABASE_DIALECT", "sqlite"),
		LLMServiceURL:   getenv("LLM_SERVICE_URL", "http://localhost:1234/v1/chat/completions"),
		LLMAPIKey:       os.Getenv("LLM_API_KEY"),
		CRMBaseURL:      os.Getenv("CRM_BASE_URL"),
		CRMJWTSecret:    os.Getenv("CRM_JWT_SECRET"),
		S3Bucket:        os.Getenv("ARCHIVE_S3_BUCKET"),
		S3Region:        getenv("ARCHIVE_S3_REGION", "us-east-1"),
		RedisURL:        os.Getenv("REDIS_URL"),
		StrictMode:      getenvBool("STRICT_MODE", false),
		DryRun:          getenvBool("DRY_RUN", false),
		ScoringOverlay:  os.Getenv("SCORING_OVERLAY_PATH"),
		OtelEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(strings.ToLower(v))
	if err != nil {
		return fallback
	}
	return parsed
}
