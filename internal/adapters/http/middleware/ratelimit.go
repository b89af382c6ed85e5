package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// staleAfter is how long an idle client's bucket is kept.
const staleAfter = 5 * time.Minute

// RateLimiter is a token bucket per client key. Buckets refill continuously
// and hold at most burst tokens.
type RateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	burst     float64
	perSecond float64
	now       func() time.Time
	lastSweep time.Time
}

type bucket struct {
	tokens float64
	seen   time.Time
}

// NewRateLimiter allows burst requests per interval for each client.
// PRE: burst > 0, interval > 0
func NewRateLimiter(burst int, interval time.Duration) *RateLimiter {
	return &RateLimiter{
		buckets:   make(map[string]*bucket),
		burst:     float64(burst),
		perSecond: float64(burst) / interval.Seconds(),
		now:       time.Now,
	}
}

// Allow takes a token for key.
// POST: when refused, wait is how long until a token is available
func (rl *RateLimiter) Allow(key string) (ok bool, wait time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.sweep(now)

	b, exists := rl.buckets[key]
	if !exists {
		b = &bucket{tokens: rl.burst, seen: now}
		rl.buckets[key] = b
	}
	b.tokens = math.Min(rl.burst, b.tokens+now.Sub(b.seen).Seconds()*rl.perSecond)
	b.seen = now

	if b.tokens < 1 {
		return false, time.Duration((1 - b.tokens) / rl.perSecond * float64(time.Second))
	}
	b.tokens--
	return true, 0
}

// sweep drops idle buckets at most once a minute.
// PRE: rl.mu is held
func (rl *RateLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastSweep) < time.Minute {
		return
	}
	rl.lastSweep = now
	for key, b := range rl.buckets {
		if now.Sub(b.seen) > staleAfter {
			delete(rl.buckets, key)
		}
	}
}

// ClientKey identifies the caller for rate limiting. Kiosks sharing one
// address are told apart by their device cookie, but only when the cookie is
// a UUID that known accepts; anything else is charged to the address.
func ClientKey(deviceCookie string, known func(id string) bool) func(*http.Request) string {
	return func(r *http.Request) string {
		if id, ok := knownDevice(r, deviceCookie, known); ok {
			return "device:" + id
		}
		return AddressKey(r)
	}
}

// AddressKey identifies the caller by remote host alone.
func AddressKey(r *http.Request) string {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return "ip:" + host
}

func knownDevice(r *http.Request, deviceCookie string, known func(string) bool) (string, bool) {
	c, err := r.Cookie(deviceCookie)
	if err != nil || known == nil {
		return "", false
	}
	if _, err := uuid.Parse(c.Value); err != nil {
		return "", false
	}
	return c.Value, known(c.Value)
}

// AddressScope selects the requests charged to the per-address limiter:
// every request to one of guarded, and requests under kioskPrefixes that do
// not carry a known device cookie.
func AddressScope(deviceCookie string, known func(id string) bool, guarded []string, kioskPrefixes []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		for _, p := range guarded {
			if r.URL.Path == p {
				return true
			}
		}
		for _, p := range kioskPrefixes {
			if strings.HasPrefix(r.URL.Path, p) {
				_, ok := knownDevice(r, deviceCookie, known)
				return !ok
			}
		}
		return false
	}
}

// RateLimit returns middleware that refuses clients over their budget with 429.
func RateLimit(limiter *RateLimiter, key func(*http.Request) string) func(http.Handler) http.Handler {
	return RateLimitWhen(limiter, key, nil)
}

// RateLimitWhen is RateLimit applied only to requests in scope. A nil scope
// covers every request.
func RateLimitWhen(limiter *RateLimiter, key func(*http.Request) string, scope func(*http.Request) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if scope != nil && !scope(r) {
				next.ServeHTTP(w, r)
				return
			}
			k := key(r)
			if ok, wait := limiter.Allow(k); !ok {
				slog.Warn("rate_limit_exceeded", "client", k, "path", r.URL.Path)
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
