// Package config loads BearMemori's runtime configuration from environment
// variables. The variable set is small and flat, so a hand-rolled loader
// beats pulling in a layered config library.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every environment-derived setting the core service reads.
type Config struct {
	DatabasePath      string
	ImageStoragePath  string
	RedisURL          string
	CoreHost          string
	CorePort          int
	MetricsAddr       string

	LLMBaseURL     string
	LLMAPIKey      string
	LLMVisionModel string
	LLMTextModel   string
	LLMMaxRetries  int

	LLMUnavailableHorizon time.Duration
	SchedulerInterval     time.Duration
	MemoryPendingTTL      time.Duration
	SuggestedTagTTL       time.Duration
	EventRequeueAfter     time.Duration
	MessageStaleAfter     time.Duration
}

// Load reads and validates configuration from the environment, applying the
// defaults listed in the external interfaces section of the specification.
func Load() (*Config, error) {
	cfg := &Config{
		DatabasePath:     getenv("DATABASE_PATH", "./bearmemori.db"),
		ImageStoragePath: getenv("IMAGE_STORAGE_PATH", "./images"),
		RedisURL:         getenv("REDIS_URL", "redis://127.0.0.1:6379/0"),
		CoreHost:         getenv("CORE_HOST", "0.0.0.0"),
		MetricsAddr:      getenv("METRICS_ADDR", ":9090"),

		LLMBaseURL:     getenv("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMAPIKey:      os.Getenv("LLM_API_KEY"),
		LLMVisionModel: getenv("LLM_VISION_MODEL", "gpt-4o-mini"),
		LLMTextModel:   getenv("LLM_TEXT_MODEL", "gpt-4o-mini"),
	}

	var err error
	if cfg.CorePort, err = getenvInt("CORE_PORT", 8080); err != nil {
		return nil, err
	}
	if cfg.LLMMaxRetries, err = getenvInt("LLM_MAX_RETRIES", 5); err != nil {
		return nil, err
	}

	horizonDays, err := getenvInt("LLM_UNAVAILABLE_HORIZON_DAYS", 14)
	if err != nil {
		return nil, err
	}
	cfg.LLMUnavailableHorizon = time.Duration(horizonDays) * 24 * time.Hour

	schedulerSeconds, err := getenvInt("SCHEDULER_INTERVAL_SECONDS", 30)
	if err != nil {
		return nil, err
	}
	cfg.SchedulerInterval = time.Duration(schedulerSeconds) * time.Second

	pendingDays, err := getenvInt("MEMORY_PENDING_TTL_DAYS", 7)
	if err != nil {
		return nil, err
	}
	cfg.MemoryPendingTTL = time.Duration(pendingDays) * 24 * time.Hour

	suggestedDays, err := getenvInt("SUGGESTED_TAG_TTL_DAYS", 7)
	if err != nil {
		return nil, err
	}
	cfg.SuggestedTagTTL = time.Duration(suggestedDays) * 24 * time.Hour

	requeueHours, err := getenvInt("EVENT_REQUEUE_HOURS", 24)
	if err != nil {
		return nil, err
	}
	cfg.EventRequeueAfter = time.Duration(requeueHours) * time.Hour

	staleSeconds, err := getenvInt("MESSAGE_STALE_SECONDS", 300)
	if err != nil {
		return nil, err
	}
	cfg.MessageStaleAfter = time.Duration(staleSeconds) * time.Second

	if cfg.LLMAPIKey == "" {
		return nil, fmt.Errorf("config: LLM_API_KEY is required")
	}

	return cfg, nil
}

// Addr returns the host:port pair the HTTP surface should bind.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.CoreHost, c.CorePort)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: invalid integer for %s: %w", key, err)
	}
	return v, nil
}
