package gateway

import (
	"math"
	"math/rand"
	"time"
)

// ReconnectConfig controls the backoff Client.ensureConnected uses between
// failed dial attempts. Mirrors mcp_gateway.rs's single --reconnect-interval
// flag but keeps max/multiplier/jitter knobs so a caller can widen the window
// for a flaky upstream instead of hardcoding one interval.
type ReconnectConfig struct {
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	Jitter            float64
}

// backoff computes the delay before dial attempt+1: InitialBackoff scaled by
// BackoffMultiplier^(attempt-1), capped at MaxBackoff, with a ±Jitter
// fraction applied, mirroring runtime/a2a/retry.Config's calculateBackoff.
func (r ReconnectConfig) backoff(attempt int) time.Duration {
	d := float64(r.InitialBackoff) * math.Pow(r.BackoffMultiplier, float64(attempt-1))
	if d > float64(r.MaxBackoff) {
		d = float64(r.MaxBackoff)
	}
	if r.Jitter > 0 {
		d += d * r.Jitter * (rand.Float64()*2 - 1) //nolint:gosec // jitter doesn't need crypto rand
	}
	return time.Duration(d)
}

// DefaultReconnect mirrors mcp_gateway.rs's --reconnect-interval default of 2
// seconds.
func DefaultReconnect() ReconnectConfig {
	return ReconnectConfig{
		InitialBackoff:    2 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.2,
	}
}
