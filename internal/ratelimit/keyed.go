// Package ratelimit limits request rates per key (user ID, client IP) with
// token buckets from golang.org/x/time/rate.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/garyellow/itmo-advisor-go/internal/metrics"
)

// KeyedConfig configures a KeyedLimiter instance.
type KeyedConfig struct {
	// Name identifies this limiter for metrics (e.g., "user_llm", "api")
	Name string

	// Token bucket settings
	Burst      int        // Maximum tokens (burst capacity)
	RefillRate rate.Limit // Tokens refilled per second

	// CleanupPeriod is how often idle keys are dropped. Zero disables cleanup.
	CleanupPeriod time.Duration

	// Optional metrics reporter
	Metrics *metrics.Metrics
}

// PerMinute converts a requests-per-minute budget into a refill rate.
func PerMinute(n float64) rate.Limit {
	return rate.Limit(n / 60)
}

// KeyedLimiter tracks rate limits per key. It creates a separate token bucket
// for each key and periodically drops buckets that have refilled completely.
type KeyedLimiter struct {
	mu      sync.RWMutex
	entries map[string]*rate.Limiter
	config  KeyedConfig
	stopCh  chan struct{}
}

// NewKeyedLimiter creates a new per-key rate limiter. Call Stop to end the
// cleanup goroutine.
//
// Example:
//
//	limiter := NewKeyedLimiter(KeyedConfig{
//	    Name:          "user_llm",
//	    Burst:         3,
//	    RefillRate:    PerMinute(6),
//	    CleanupPeriod: 5 * time.Minute,
//	})
//	defer limiter.Stop()
func NewKeyedLimiter(cfg KeyedConfig) *KeyedLimiter {
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	kl := &KeyedLimiter{
		entries: make(map[string]*rate.Limiter),
		config:  cfg,
		stopCh:  make(chan struct{}),
	}
	if cfg.CleanupPeriod > 0 {
		go kl.cleanupLoop()
	}
	return kl
}

// Allow reports whether a request for key may proceed and consumes a token
// when it may. The empty key is never limited.
func (kl *KeyedLimiter) Allow(key string) bool {
	if kl == nil || key == "" {
		return true
	}
	if kl.limiter(key).Allow() {
		return true
	}
	kl.config.Metrics.RecordRateLimiterDrop(kl.config.Name)
	return false
}

// RetryAfter returns how long key must wait for its next token, or 0.
func (kl *KeyedLimiter) RetryAfter(key string) time.Duration {
	if kl == nil || key == "" {
		return 0
	}
	kl.mu.RLock()
	l, ok := kl.entries[key]
	kl.mu.RUnlock()
	if !ok {
		return 0
	}

	r := l.Reserve()
	defer r.Cancel()
	return r.Delay()
}

// limiter returns the bucket for key, creating it if needed.
func (kl *KeyedLimiter) limiter(key string) *rate.Limiter {
	kl.mu.RLock()
	l, ok := kl.entries[key]
	kl.mu.RUnlock()
	if ok {
		return l
	}

	kl.mu.Lock()
	defer kl.mu.Unlock()

	// Double-check after acquiring write lock
	if l, ok = kl.entries[key]; ok {
		return l
	}
	l = rate.NewLimiter(kl.config.RefillRate, kl.config.Burst)
	kl.entries[key] = l
	return l
}

// GetActiveCount returns the number of tracked keys.
func (kl *KeyedLimiter) GetActiveCount() int {
	kl.mu.RLock()
	defer kl.mu.RUnlock()
	return len(kl.entries)
}

// cleanupLoop periodically removes idle limiters.
func (kl *KeyedLimiter) cleanupLoop() {
	ticker := time.NewTicker(kl.config.CleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-kl.stopCh:
			return
		case <-ticker.C:
			kl.cleanup()
		}
	}
}

// cleanup drops every bucket that is full again.
func (kl *KeyedLimiter) cleanup() {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	for key, l := range kl.entries {
		if l.Tokens() >= float64(l.Burst()) {
			delete(kl.entries, key)
		}
	}
}

// Stop gracefully stops the cleanup goroutine.
// Safe to call multiple times.
func (kl *KeyedLimiter) Stop() {
	if kl == nil {
		return
	}
	select {
	case <-kl.stopCh:
		// Already stopped
	default:
		close(kl.stopCh)
	}
}
