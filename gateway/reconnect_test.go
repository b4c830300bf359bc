package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReconnectBackoffIsExponential(t *testing.T) {
	cfg := ReconnectConfig{
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0,
	}

	assert.Equal(t, 1*time.Second, cfg.backoff(1))
	assert.Equal(t, 2*time.Second, cfg.backoff(2))
	assert.Equal(t, 4*time.Second, cfg.backoff(3))
	assert.Equal(t, 8*time.Second, cfg.backoff(4))
}

func TestReconnectBackoffCapsAtMax(t *testing.T) {
	cfg := ReconnectConfig{
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0,
	}

	assert.Equal(t, 5*time.Second, cfg.backoff(10))
}

func TestReconnectBackoffAppliesJitterWithinBounds(t *testing.T) {
	cfg := ReconnectConfig{
		InitialBackoff:    10 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.2,
	}

	base := 10 * time.Second
	lower := time.Duration(float64(base) * 0.8)
	upper := time.Duration(float64(base) * 1.2)
	for i := 0; i < 50; i++ {
		d := cfg.backoff(1)
		assert.GreaterOrEqual(t, d, lower)
		assert.LessOrEqual(t, d, upper)
	}
}
