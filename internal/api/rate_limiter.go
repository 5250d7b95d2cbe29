package api

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter manages per-user rate limiting for API requests
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex

	// Requests per second per tier
	freeTierLimit    rate.Limit
	premiumTierLimit rate.Limit

	burstSize int
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(freeTierRPS, premiumTierRPS int) *RateLimiter {
	return &RateLimiter{
		limiters:         make(map[string]*rate.Limiter),
		freeTierLimit:    rate.Limit(freeTierRPS),
		premiumTierLimit: rate.Limit(premiumTierRPS),
		burstSize:        10,
	}
}

// getLimiter returns the rate limiter for a specific caller
func (rl *RateLimiter) getLimiter(key string, premium bool) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.limiters[key]
	rl.mu.RUnlock()

	if exists {
		return limiter
	}

	limit := rl.freeTierLimit
	if premium {
		limit = rl.premiumTierLimit
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Another goroutine may have created it between the locks
	if limiter, exists := rl.limiters[key]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(limit, rl.burstSize)
	rl.limiters[key] = limiter

	return limiter
}

// RateLimitMiddleware creates a middleware that enforces per-user rate
// limiting. Runs after auth so the limit key is the resolved user ID;
// unauthenticated requests fall back to the remote address.
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := UserIDFromContext(r.Context())
			if key == "" {
				key = r.RemoteAddr
			}

			premium := r.Header.Get("X-User-Tier") == "premium"
			limiter := rl.getLimiter(key, premium)

			if !limiter.Allow() {
				respondError(w, http.StatusTooManyRequests, ErrCodeRateLimitExceeded, "Rate limit exceeded. Please try again later.", map[string]interface{}{
					"limit": limiter.Limit(),
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
