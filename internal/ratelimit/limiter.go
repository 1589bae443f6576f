// Package ratelimit throttles requests per caller. Authenticated principals
// and anonymous clients (keyed by address) get separate budgets.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config defines the rate limiting configuration.
type Config struct {
	PrincipalRPS    float64       // Requests per second for an authenticated principal
	PrincipalBurst  int           // Burst size for an authenticated principal
	AnonymousRPS    float64       // Requests per second for an unauthenticated client
	AnonymousBurst  int           // Burst size for an unauthenticated client
	CleanupInterval time.Duration // How often to drop idle limiters
}

// DefaultConfig is generous enough that a test run never trips it.
var DefaultConfig = Config{
	PrincipalRPS:    1000,
	PrincipalBurst:  2000,
	AnonymousRPS:    100,
	AnonymousBurst:  200,
	CleanupInterval: time.Hour,
}

// Key identifies a caller.
type Key struct {
	ID            string
	Authenticated bool
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// RateLimiter manages per-caller limiters.
type RateLimiter struct {
	limiters map[Key]*limiterEntry
	mu       sync.Mutex
	config   Config

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewRateLimiter creates a rate limiter and starts its cleanup goroutine.
func NewRateLimiter(config Config) *RateLimiter {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultConfig.CleanupInterval
	}
	rl := &RateLimiter{
		limiters: make(map[Key]*limiterEntry),
		config:   config,
		stopCh:   make(chan struct{}),
	}

	rl.wg.Add(1)
	go rl.cleanupLoop()

	return rl
}

// Allow reports whether one more request from key fits its budget.
func (rl *RateLimiter) Allow(key Key) bool {
	return rl.GetLimiter(key).Allow()
}

// GetLimiter returns the limiter for key, creating it on first use.
func (rl *RateLimiter) GetLimiter(key Key) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if entry, ok := rl.limiters[key]; ok {
		entry.lastUsed = time.Now()
		return entry.limiter
	}

	rps, burst := rl.config.AnonymousRPS, rl.config.AnonymousBurst
	if key.Authenticated {
		rps, burst = rl.config.PrincipalRPS, rl.config.PrincipalBurst
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	rl.limiters[key] = &limiterEntry{limiter: limiter, lastUsed: time.Now()}
	return limiter
}

// Cleanup removes limiters idle for longer than the cleanup interval.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-rl.config.CleanupInterval)
	for key, entry := range rl.limiters {
		if entry.lastUsed.Before(cutoff) {
			delete(rl.limiters, key)
		}
	}
}

func (rl *RateLimiter) cleanupLoop() {
	defer rl.wg.Done()

	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.Cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// Stop stops the cleanup goroutine and waits for it to finish.
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
	rl.wg.Wait()
}

// Len returns the number of live limiters.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}
