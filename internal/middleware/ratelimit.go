package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"xdp-service/pkg/httputil"
)

// limiterTTL を超えて使われていない呼び出し元のリミッターは破棄する。
const limiterTTL = 10 * time.Minute

type callerLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	ttl     time.Duration
	entries map[string]*limiterEntry
}

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newCallerLimiter(limit rate.Limit, burst int, ttl time.Duration) *callerLimiter {
	return &callerLimiter{
		limit:   limit,
		burst:   burst,
		ttl:     ttl,
		entries: make(map[string]*limiterEntry),
	}
}

func (c *callerLimiter) allow(key string) bool {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entries[key]
	if e == nil {
		e = &limiterEntry{lim: rate.NewLimiter(c.limit, c.burst), lastSeen: now}
		c.entries[key] = e
	}
	e.lastSeen = now

	for k, v := range c.entries {
		if now.Sub(v.lastSeen) > c.ttl {
			delete(c.entries, k)
		}
	}
	return e.lim.Allow()
}

// RateLimit は呼び出し元の SID ごとにリクエストを制限する。
// 認証前の場合はリモートアドレスで制限する。limit が 0 以下なら制限しない。
func RateLimit(limit float64, burst int) func(http.Handler) http.Handler {
	if limit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	limiter := newCallerLimiter(rate.Limit(limit), burst, limiterTTL)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := remoteHost(r)
			if caller, ok := CallerIdentity(r.Context()); ok {
				key = "sid:" + caller.SID
			}
			if !limiter.allow(key) {
				slog.WarnContext(r.Context(), "rate limit exceeded",
					"operation", "rate_limit",
					"key", key,
				)
				httputil.Error(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
