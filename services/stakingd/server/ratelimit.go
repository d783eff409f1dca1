package server

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"stakeledger/observability"
)

// RateLimit bounds requests per caller.
type RateLimit struct {
	RequestsPerMinute float64
	Burst             int
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per caller. Callers are keyed by their
// authenticated address when available, otherwise by client IP. Idle buckets
// are pruned lazily.
type RateLimiter struct {
	limit    RateLimit
	idle     time.Duration
	mu       sync.Mutex
	visitors map[string]*visitor
	clockNow func() time.Time
	metrics  *observability.HTTPMetrics
}

// NewRateLimiter returns nil when limit disables throttling.
func NewRateLimiter(limit RateLimit) *RateLimiter {
	if limit.RequestsPerMinute <= 0 {
		return nil
	}
	if limit.Burst <= 0 {
		limit.Burst = 1
	}
	return &RateLimiter{
		limit:    limit,
		idle:     10 * time.Minute,
		visitors: make(map[string]*visitor),
		clockNow: time.Now,
		metrics:  observability.HTTP(),
	}
}

// Middleware throttles requests. A nil limiter passes everything through.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(callerKey(r)) {
			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			l.metrics.RecordThrottle(route)
			w.Header().Set("Retry-After", "1")
			writeProblem(w, http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests), 0, "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *RateLimiter) allow(key string) bool {
	now := l.clockNow()
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.visitors[key]
	if !ok {
		if len(l.visitors) >= 4096 {
			l.pruneLocked(now)
		}
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(l.limit.RequestsPerMinute/60.0), l.limit.Burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

func (l *RateLimiter) pruneLocked(now time.Time) {
	for key, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.idle {
			delete(l.visitors, key)
		}
	}
}

func callerKey(r *http.Request) string {
	if p, ok := PrincipalFromContext(r.Context()); ok {
		return "addr:" + p.Address.String()
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return "ip:" + ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if parsed := net.ParseIP(strings.TrimSpace(first)); parsed != nil {
			return "ip:" + parsed.String()
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}
