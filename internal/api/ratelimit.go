package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// ──────────────────────────────────────────────────────────────────────
// Per-IP Token Bucket Rate Limiter, Weighted By Join Tree Size
//
// The bucket itself uses only the standard library; gin is imported for
// the middleware wrapper.
//
// Every phase of the oblivious pipeline walks every node of the submitted
// tree, so a ten-table band join costs the engine far more than a
// two-table equijoin. A flat per-request limit lets a client dodge it by
// submitting fewer, bigger trees, so submissions are charged in proportion
// to their node count rather than one token each.
//
// A background goroutine cleans up buckets that have been idle for more
// than cleanupIdleDuration to prevent unbounded memory growth from
// transient IPs.
// ──────────────────────────────────────────────────────────────────────

const cleanupIdleDuration = 10 * time.Minute

type ipBucket struct {
	tokens   float64
	lastSeen time.Time
	mu       sync.Mutex
}

// JoinRateLimiter holds per-IP token bucket state for the join API.
type JoinRateLimiter struct {
	rate    float64 // tokens added per second
	burst   float64 // max bucket capacity
	mu      sync.Mutex
	buckets map[string]*ipBucket
}

// NewJoinRateLimiter creates a rate limiter replenishing `ratePerMin`
// tokens per minute per IP, with a burst capacity of `burst` tokens.
func NewJoinRateLimiter(ratePerMin, burst int) *JoinRateLimiter {
	rl := &JoinRateLimiter{
		rate:    float64(ratePerMin) / 60.0,
		burst:   float64(burst),
		buckets: make(map[string]*ipBucket),
	}
	go rl.cleanupLoop()
	return rl
}

// submissionCost returns how many tokens a join submission with nodeCount
// nodes consumes. One token per node, floored at one: an empty or
// single-node tree still costs a full token.
func submissionCost(nodeCount int) float64 {
	if nodeCount < 1 {
		nodeCount = 1
	}
	return float64(nodeCount)
}

func (rl *JoinRateLimiter) allow(ip string, cost float64) (bool, time.Duration) {
	rl.mu.Lock()
	bucket, ok := rl.buckets[ip]
	if !ok {
		bucket = &ipBucket{tokens: rl.burst}
		rl.buckets[ip] = bucket
	}
	rl.mu.Unlock()

	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	now := time.Now()
	// Refill tokens based on elapsed time since last request.
	elapsed := now.Sub(bucket.lastSeen).Seconds()
	bucket.tokens += elapsed * rl.rate
	if bucket.tokens > rl.burst {
		bucket.tokens = rl.burst
	}
	bucket.lastSeen = now

	if bucket.tokens >= cost {
		bucket.tokens -= cost
		return true, 0
	}

	// Calculate how long until enough tokens have refilled.
	retryAfter := time.Duration((cost-bucket.tokens)/rl.rate*1000) * time.Millisecond
	return false, retryAfter
}

// Middleware returns a Gin handler charging a flat single token per
// request, for the cheap read endpoints (run status, run listing).
func (rl *JoinRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		allowed, retryAfter := rl.allow(ip, 1)
		if !allowed {
			c.Header("Retry-After", retryAfter.String())
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":      "join API rate limit exceeded",
				"retryAfter": retryAfter.String(),
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// ChargeSubmission charges a join submission proportional to its tree's
// node count, so a client can't evade the per-IP budget by submitting
// fewer, larger join trees instead of many small ones.
func (rl *JoinRateLimiter) ChargeSubmission(ip string, nodeCount int) (bool, time.Duration) {
	return rl.allow(ip, submissionCost(nodeCount))
}

// cleanupLoop removes stale IP buckets every cleanupIdleDuration.
func (rl *JoinRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(cleanupIdleDuration)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-cleanupIdleDuration)
		rl.mu.Lock()
		for ip, b := range rl.buckets {
			b.mu.Lock()
			idle := b.lastSeen.Before(cutoff)
			b.mu.Unlock()
			if idle {
				delete(rl.buckets, ip)
			}
		}
		rl.mu.Unlock()
	}
}
