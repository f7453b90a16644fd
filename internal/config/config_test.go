package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LLM_API_KEY", "test-key")
	for _, k := range []string{
		"DATABASE_PATH", "IMAGE_STORAGE_PATH", "REDIS_URL", "CORE_HOST", "CORE_PORT",
		"LLM_BASE_URL", "LLM_VISION_MODEL", "LLM_TEXT_MODEL", "LLM_MAX_RETRIES",
		"LLM_UNAVAILABLE_HORIZON_DAYS", "SCHEDULER_INTERVAL_SECONDS",
		"MEMORY_PENDING_TTL_DAYS", "SUGGESTED_TAG_TTL_DAYS", "EVENT_REQUEUE_HOURS",
		"MESSAGE_STALE_SECONDS",
	} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.CorePort)
	require.Equal(t, 5, cfg.LLMMaxRetries)
	require.Equal(t, 14*24*time.Hour, cfg.LLMUnavailableHorizon)
	require.Equal(t, 30*time.Second, cfg.SchedulerInterval)
	require.Equal(t, 7*24*time.Hour, cfg.MemoryPendingTTL)
	require.Equal(t, 7*24*time.Hour, cfg.SuggestedTagTTL)
	require.Equal(t, 24*time.Hour, cfg.EventRequeueAfter)
	require.Equal(t, 300*time.Second, cfg.MessageStaleAfter)
}

func TestLoadMissingAPIKey(t *testing.T) {
	t.Setenv("LLM_API_KEY", "")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadInvalidInt(t *testing.T) {
	t.Setenv("LLM_API_KEY", "test-key")
	t.Setenv("CORE_PORT", "not-a-number")
	_, err := Load()
	require.Error(t, err)
}
