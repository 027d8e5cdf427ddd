package termsession

import (
	"sync"
	"time"
)

// Limits applied to input coming from display surfaces.
const (
	// MaxInputMessageSize is the maximum size in bytes of one input message.
	// Larger messages are rejected before they reach the transport.
	MaxInputMessageSize = 64 * 1024

	// MessageRateLimit is the sustained number of input messages per second
	// accepted from one display stream.
	MessageRateLimit = 200
	// MessageRateBurst allows short bursts such as paste operations.
	MessageRateBurst = 200
)

// RateLimiter implements a simple token bucket rate limiter for input messages.
type RateLimiter struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	now        func() time.Time
}

// NewRateLimiter creates a rate limiter with the given rate (tokens/sec) and burst size.
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	return &RateLimiter{
		tokens:     float64(burst),
		maxTokens:  float64(burst),
		refillRate: rate,
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

// Allow returns true if a message is permitted, consuming one token.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	elapsed := now.Sub(rl.lastRefill).Seconds()
	rl.lastRefill = now

	rl.tokens += elapsed * rl.refillRate
	if rl.tokens > rl.maxTokens {
		rl.tokens = rl.maxTokens
	}

	if rl.tokens < 1 {
		return false
	}
	rl.tokens--
	return true
}
