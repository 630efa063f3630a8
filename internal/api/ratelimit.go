package api

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Defaults for pruning idle per-IP buckets. Pruning rides along on allow
// calls, so no background goroutine is needed.
const (
	defaultSweepEvery = 5 * time.Minute
	defaultStaleAfter = 10 * time.Minute
)

// ipBucket is one client's token bucket and the last time it was used.
type ipBucket struct {
	tokens   *rate.Limiter
	lastSeen time.Time
}

// rateLimiter hands out one token bucket per client IP. Buckets refill at
// perSecond and hold at most burst tokens; idle buckets are swept after
// staleAfter so the map stays bounded by the recently-active client set.
type rateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*ipBucket
	perSecond rate.Limit
	burst     int

	sweepEvery time.Duration
	staleAfter time.Duration
	lastSweep  time.Time
}

func newRateLimiter(rps float64, burst int) *rateLimiter {
	return &rateLimiter{
		buckets:    make(map[string]*ipBucket),
		perSecond:  rate.Limit(rps),
		burst:      burst,
		sweepEvery: defaultSweepEvery,
		staleAfter: defaultStaleAfter,
		lastSweep:  time.Now(),
	}
}

// allow takes one token from ip's bucket, creating the bucket on first
// sight. A fresh bucket starts full, so a new client always gets its burst.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.sweep(now)

	b, ok := rl.buckets[ip]
	if !ok {
		b = &ipBucket{tokens: rate.NewLimiter(rl.perSecond, rl.burst)}
		rl.buckets[ip] = b
	}
	b.lastSeen = now
	return b.tokens.Allow()
}

// sweep drops buckets idle past staleAfter, at most once per sweepEvery.
// Caller holds rl.mu.
func (rl *rateLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastSweep) <= rl.sweepEvery {
		return
	}
	for ip, b := range rl.buckets {
		if now.Sub(b.lastSeen) > rl.staleAfter {
			delete(rl.buckets, ip)
		}
	}
	rl.lastSweep = now
}

// rateLimitMiddleware rejects requests from IPs that exhausted their token
// bucket. Denied requests carry a Retry-After hint.
func rateLimitMiddleware(rl *rateLimiter, trustProxy bool, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r, trustProxy)
			if !rl.allow(ip) {
				logger.Warn("rate limit exceeded",
					"method", r.Method,
					"path", r.URL.Path,
					"ip", ip,
					"request_id", requestIDFromContext(r.Context()),
				)
				w.Header().Set("Retry-After", "1")
				WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", logger)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP resolves the address used as the rate-limit key. Proxy headers
// are honored only when trustProxy is set, and only when they parse as real
// IPs, so clients cannot spray the bucket map with arbitrary keys. Without a
// trusted proxy the key is RemoteAddr with the port stripped.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip := headerIP(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
		// First X-Forwarded-For entry is the originating client.
		first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ",")
		if ip := headerIP(first); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// headerIP parses a proxy-supplied address, returning "" when it is absent
// or not an IP.
func headerIP(raw string) string {
	ip := net.ParseIP(strings.TrimSpace(raw))
	if ip == nil {
		return ""
	}
	return ip.String()
}
