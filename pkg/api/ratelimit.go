package api

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/qrdesk/qrdesk/pkg/config"
	"golang.org/x/time/rate"
)

const (
	rateLimitCleanupInterval = 5 * time.Minute
	rateLimitEntryTTL        = 10 * time.Minute
)

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type rateLimiterMap struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
	rps      rate.Limit
	burst    int
}

func newRateLimiterMap(requestsPerMinute int, done <-chan struct{}) *rateLimiterMap {
	rl := &rateLimiterMap{
		limiters: make(map[string]*ipLimiter, 64),
		rps:      rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:    requestsPerMinute,
	}

	go rl.cleanup(done)

	return rl
}

func (rl *rateLimiterMap) getLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, exists := rl.limiters[ip]
	if !exists {
		limiter := rate.NewLimiter(rl.rps, rl.burst)
		rl.limiters[ip] = &ipLimiter{
			limiter:  limiter,
			lastSeen: time.Now(),
		}

		return limiter
	}

	entry.lastSeen = time.Now()

	return entry.limiter
}

func (rl *rateLimiterMap) cleanup(done <-chan struct{}) {
	ticker := time.NewTicker(rateLimitCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.prune(time.Now())
		case <-done:
			return
		}
	}
}

func (rl *rateLimiterMap) prune(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for ip, entry := range rl.limiters {
		if now.Sub(entry.lastSeen) > rateLimitEntryTTL {
			delete(rl.limiters, ip)
		}
	}
}

// rateLimitMiddleware returns a per-IP rate limiting middleware for
// the given tier configuration.
func (s *server) rateLimitMiddleware(
	tier config.RateLimitTier,
) func(http.Handler) http.Handler {
	limiterMap := newRateLimiterMap(tier.RequestsPerMinute, s.done)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiterMap.getLimiter(s.clientIP(r)).Allow() {
				writeJSON(w, http.StatusTooManyRequests,
					errorResponse{Error: "rate limit exceeded"})

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP returns the address a request is attributed to.
func (s *server) clientIP(r *http.Request) string {
	return extractIP(r, s.trusted)
}

// extractIP returns the client's IP address from the request. The socket
// peer is used unless it is a trusted proxy, in which case X-Forwarded-For
// is walked from the right and the first untrusted hop wins.
func extractIP(r *http.Request, trusted []netip.Prefix) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}

	peer, err := netip.ParseAddr(host)
	if err != nil || !isTrusted(peer, trusted) {
		return host
	}

	xff := r.Header.Values("X-Forwarded-For")
	if len(xff) == 0 {
		return host
	}

	hops := strings.Split(strings.Join(xff, ","), ",")

	client := host

	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])

		addr, err := netip.ParseAddr(hop)
		if err != nil {
			break
		}

		client = addr.Unmap().String()

		if !isTrusted(addr, trusted) {
			break
		}
	}

	return client
}

func isTrusted(addr netip.Addr, trusted []netip.Prefix) bool {
	addr = addr.Unmap()

	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}

	return false
}
