package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, int64(180_000), cfg.MaxTokensPerTrace)
	assert.Equal(t, 180*time.Second, cfg.MaxWallClockPerTrace)
	assert.Equal(t, 5, cfg.CircuitFailureThreshold)
	assert.Equal(t, 60, cfg.CircuitRecoverySeconds)
}

func TestDiscoverWorkerURLs(t *testing.T) {
	t.Setenv("WORKER_OUTLINE_URL", "http://outline.internal")
	t.Setenv("WORKER_SLIDE_WRITER_URL", "http://slides.internal")

	urls := discoverWorkerURLs()
	assert.Equal(t, "http://outline.internal", urls["outline"])
	assert.Equal(t, "http://slides.internal", urls["slide_writer"])
}

func TestLoadInvalidIntReturnsError(t *testing.T) {
	t.Setenv("MAX_TOKENS_PER_TRACE", "not-a-number")
	_, err := Load()
	require.Error(t, err)
}

func TestGetPortInt(t *testing.T) {
	cfg := &Config{Port: "9090"}
	assert.Equal(t, 9090, cfg.GetPortInt())
}
