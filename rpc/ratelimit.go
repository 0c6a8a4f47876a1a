package rpc

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"deficore/observability"
)

const visitorTTL = 5 * time.Minute

type RateLimit struct {
	RequestsPerSecond float64
	Burst             int
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client address.
type RateLimiter struct {
	limit    RateLimit
	mu       sync.Mutex
	visitors map[string]*visitor
	now      func() time.Time
}

func NewRateLimiter(limit RateLimit) *RateLimiter {
	if limit.Burst <= 0 {
		limit.Burst = 1
	}
	return &RateLimiter{
		limit:    limit,
		visitors: make(map[string]*visitor),
		now:      time.Now,
	}
}

// Allow reports whether the client may issue another request.
func (r *RateLimiter) Allow(client string) bool {
	if r == nil || r.limit.RequestsPerSecond <= 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	for id, v := range r.visitors {
		if now.Sub(v.lastSeen) > visitorTTL {
			delete(r.visitors, id)
		}
	}
	v, ok := r.visitors[client]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(r.limit.RequestsPerSecond), r.limit.Burst)}
		r.visitors[client] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// Middleware rejects requests over the limit with a JSON-RPC error.
func (r *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !r.Allow(clientID(req)) {
			observability.RPC().RecordThrottle("rate_limit")
			w.Header().Set("Content-Type", "application/json")
			writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "rate limit exceeded", nil)
			return
		}
		next.ServeHTTP(w, req)
	})
}

func clientID(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if parsed := net.ParseIP(strings.TrimSpace(first)); parsed != nil {
			return parsed.String()
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
