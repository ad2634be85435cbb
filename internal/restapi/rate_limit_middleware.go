package restapi

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/clock"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/logging"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/models"
)

// rateLimitClient tracks the limiter and its last usage time.
// This allows us to remove inactive users without disrupting active ones.
type rateLimitClient struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // Unix nanoseconds (time.Time.UnixNano())
}

// RateLimitMiddleware provides per-client rate limiting. Clients are keyed by
// remote IP.
type RateLimitMiddleware struct {
	limiters    map[string]*rateLimitClient
	mu          sync.RWMutex
	rateLimit   rate.Limit
	burstSize   int
	cleanupTick *time.Ticker
	exemptKeys  map[string]bool
	stopChan    chan struct{}
	stopOnce    sync.Once
	clock       clock.Clock
}

// NewRateLimitMiddleware allows ratePerInterval requests per interval for
// each client, with the same number as burst. A negative rate disables
// limiting and zero rejects everything. exemptClients are never limited.
func NewRateLimitMiddleware(ratePerInterval int, interval time.Duration, exemptClients []string, clock clock.Clock) *RateLimitMiddleware {
	// Handle zero rate limit case
	var rateLimit rate.Limit
	if ratePerInterval <= 0 {
		rateLimit = rate.Inf
		if ratePerInterval == 0 {
			rateLimit = 0
		}
	} else {
		rateLimit = rate.Every(interval / time.Duration(ratePerInterval))
	}

	exemptMap := make(map[string]bool)
	for _, key := range exemptClients {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey != "" {
			exemptMap[trimmedKey] = true
		}
	}

	middleware := &RateLimitMiddleware{
		limiters:    make(map[string]*rateLimitClient),
		rateLimit:   rateLimit,
		burstSize:   max(ratePerInterval, 0),
		cleanupTick: time.NewTicker(5 * time.Minute), // Cleanup old limiters every 5 minutes
		exemptKeys:  exemptMap,
		stopChan:    make(chan struct{}),
		clock:       clock,
	}

	// Start cleanup goroutine
	go middleware.cleanup()

	return middleware
}

// Handler returns the HTTP middleware handler function
func (rl *RateLimitMiddleware) Handler() func(http.Handler) http.Handler {
	return rl.rateLimitHandler
}

// getLimiter gets or creates the limiter for a client and updates its last
// usage timestamp.
func (rl *RateLimitMiddleware) getLimiter(clientKey string) *rate.Limiter {
	// If the client exists, update lastSeen and return using only a Read Lock.
	rl.mu.RLock()
	if client, exists := rl.limiters[clientKey]; exists {
		client.lastSeen.Store(rl.clock.Now().UnixNano())
		rl.mu.RUnlock()
		return client.limiter
	}
	rl.mu.RUnlock()

	// Client does not exist, acquire a full Write Lock to create it.
	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Another goroutine might have created it while we were waiting for the lock.
	if client, exists := rl.limiters[clientKey]; exists {
		client.lastSeen.Store(rl.clock.Now().UnixNano())
		return client.limiter
	}

	// Create new limiter and wrap it in our client struct
	limiter := rate.NewLimiter(rl.rateLimit, rl.burstSize)
	newClient := &rateLimitClient{
		limiter: limiter,
	}
	newClient.lastSeen.Store(rl.clock.Now().UnixNano())
	rl.limiters[clientKey] = newClient

	return limiter
}

// rateLimitHandler is the HTTP middleware function
func (rl *RateLimitMiddleware) rateLimitHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientKey := clientIP(r)

		if rl.exemptKeys[clientKey] {
			next.ServeHTTP(w, r)
			return
		}

		limiter := rl.getLimiter(clientKey)

		// Check if request is allowed
		if !limiter.Allow() {
			rl.sendRateLimitExceeded(w, r)
			return
		}

		// Request is allowed, continue to next handler
		next.ServeHTTP(w, r)
	})
}

// sendRateLimitExceeded sends a 429 Too Many Requests response
func (rl *RateLimitMiddleware) sendRateLimitExceeded(w http.ResponseWriter, r *http.Request) {
	var retryAfter time.Duration
	switch rl.rateLimit {
	case 0:
		retryAfter = time.Hour
	case rate.Inf:
		retryAfter = time.Second
	default:
		retryAfter = max(time.Duration(float64(time.Second)/float64(rl.rateLimit)), time.Second)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.burstSize))
	w.Header().Set("X-RateLimit-Remaining", "0")
	w.WriteHeader(http.StatusTooManyRequests)

	response := models.NewResponse(http.StatusTooManyRequests, nil, "Rate limit exceeded. Please try again later.", rl.clock)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logging.LogError(logging.FromContext(r.Context()), "failed to encode rate limit response", err)
	}
}

// clientIP is the first X-Forwarded-For hop when present, else the remote
// address without its port.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// cleanupOnce performs a single iteration of removing old, unused limiters.
// It is separated from the background loop so tests can trigger it synchronously.
func (rl *RateLimitMiddleware) cleanupOnce() {
	threshold := 10 * time.Minute

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()

	for key, client := range rl.limiters {
		if !rl.exemptKeys[key] {
			lastSeenNano := client.lastSeen.Load()
			if lastSeenNano == 0 {
				continue
			}
			lastSeenTime := time.Unix(0, lastSeenNano)
			if now.Sub(lastSeenTime) > threshold {
				delete(rl.limiters, key)
			}
		}
	}
}

// cleanup periodically removes old, unused limiters to prevent memory leaks
func (rl *RateLimitMiddleware) cleanup() {
	for {
		select {
		case <-rl.cleanupTick.C:
			rl.cleanupOnce()
		case <-rl.stopChan:
			return
		}
	}
}

// Stop stops the cleanup goroutine. It is safe to call multiple times.
// Note: This does not affect in-flight requests - it only stops the
// background cleanup goroutine.
func (rl *RateLimitMiddleware) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopChan)
		if rl.cleanupTick != nil {
			rl.cleanupTick.Stop()
		}
	})
}
