package middleware

import (
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"lendcore/observability"
)

// RateLimit is a token bucket refilled at RequestsPerMinute.
type RateLimit struct {
	RequestsPerMinute float64
	Burst             int
}

func (l RateLimit) limiter() *rate.Limiter {
	perSecond := l.RequestsPerMinute / 60.0
	if perSecond <= 0 {
		perSecond = 1
	}
	burst := l.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter meters each caller per route group. Authenticated requests
// are metered by token subject so one account cannot spread load across
// addresses; anonymous requests fall back to the client IP. Groups without
// a configured limit pass through.
type RateLimiter struct {
	logger   *slog.Logger
	limits   map[string]RateLimit
	idle     time.Duration
	mu       sync.Mutex
	buckets  map[string]*bucket
	clockNow func() time.Time
}

func NewRateLimiter(limits map[string]RateLimit, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{
		logger:   logger,
		limits:   limits,
		idle:     5 * time.Minute,
		buckets:  make(map[string]*bucket),
		clockNow: time.Now,
	}
}

func (r *RateLimiter) Middleware(group string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			limit, ok := r.limits[group]
			if !ok {
				next.ServeHTTP(w, req)
				return
			}
			caller := callerKey(req)
			reservation := r.bucketFor(group+"|"+caller, limit).ReserveN(r.clockNow(), 1)
			if delay := reservation.DelayFrom(r.clockNow()); !reservation.OK() || delay > 0 {
				reservation.CancelAt(r.clockNow())
				observability.ModuleMetrics().RecordThrottle("comptrollerd", group)
				r.logger.Debug("request throttled", "group", group, "caller", caller, "retry_after", delay)
				writeThrottled(w, delay)
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

func writeThrottled(w http.ResponseWriter, delay time.Duration) {
	seconds := int(math.Ceil(delay.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
}

func (r *RateLimiter) bucketFor(id string, cfg RateLimit) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clockNow()
	for key, b := range r.buckets {
		if now.Sub(b.lastSeen) > r.idle {
			delete(r.buckets, key)
		}
	}
	if b, ok := r.buckets[id]; ok {
		b.lastSeen = now
		return b.limiter
	}
	limiter := cfg.limiter()
	r.buckets[id] = &bucket{limiter: limiter, lastSeen: now}
	return limiter
}

func callerKey(r *http.Request) string {
	if subject, ok := SubjectFromContext(r.Context()); ok && subject != "" {
		return "sub:" + strings.ToLower(subject)
	}
	return "ip:" + clientIP(r)
}

func clientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
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
