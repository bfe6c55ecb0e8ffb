package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/sgerhart/aegisflux/analyzer/internal/model"
)

// Config holds the analyzer service settings, read from the environment
type Config struct {
	HTTPAddr       string
	NatsURL        string
	NatsQueue      string
	RulesPath      string
	HotReload      bool
	DebounceMs     int
	Platform       model.Platform
	MaxResults     int
	DedupeCap      int
	RegexCacheSize int
	LogLevel       string
}

// Load reads the configuration from environment variables with defaults.
// An empty ANALYZER_NATS_URL disables NATS; an empty ANALYZER_RULES_PATH
// selects the embedded rules.
func Load() *Config {
	platform := model.CurrentPlatform()
	if value := os.Getenv("ANALYZER_PLATFORM"); value != "" {
		if parsed, err := model.ParsePlatform(value); err == nil {
			platform = parsed
		}
	}

	return &Config{
		HTTPAddr:       getEnv("ANALYZER_HTTP_ADDR", ":8080"),
		NatsURL:        getEnv("ANALYZER_NATS_URL", ""),
		NatsQueue:      getEnv("ANALYZER_NATS_QUEUE", "analyzer"),
		RulesPath:      getEnv("ANALYZER_RULES_PATH", ""),
		HotReload:      getEnvBool("ANALYZER_HOT_RELOAD", false),
		DebounceMs:     getEnvInt("ANALYZER_DEBOUNCE_MS", 1000),
		Platform:       platform,
		MaxResults:     getEnvInt("ANALYZER_MAX_RESULTS", 10000),
		DedupeCap:      getEnvInt("ANALYZER_DEDUPE_CAP", 100000),
		RegexCacheSize: getEnvInt("ANALYZER_REGEX_CACHE", 256),
		LogLevel:       getEnv("ANALYZER_LOG_LEVEL", "info"),
	}
}

// NatsEnabled reports whether a NATS URL was configured
func (c *Config) NatsEnabled() bool {
	return c.NatsURL != ""
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as an integer with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool gets an environment variable as a boolean with a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
