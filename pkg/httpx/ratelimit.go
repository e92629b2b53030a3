package httpx

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/TimurCravtov/CraftHub/pkg/slogx"
	"github.com/patrickmn/go-cache"
)

// DefaultEndpointKey names the bucket family used when no override matches.
const DefaultEndpointKey = "default"

// RateLimitConfig describes one token bucket: it holds at most Capacity
// tokens and regains RefillTokens every RefillPeriod, continuously.
type RateLimitConfig struct {
	Capacity     int
	RefillTokens int
	RefillPeriod time.Duration

	// Key groups requests that share a bucket. Defaults to the override pattern.
	Key string
}

// perSecond is the refill rate in tokens per second.
func (c RateLimitConfig) perSecond() float64 {
	if c.RefillTokens <= 0 || c.RefillPeriod <= 0 {
		return 0
	}
	return float64(c.RefillTokens) / c.RefillPeriod.Seconds()
}

// Decision is the outcome of a single Allow call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
}

type bucketState struct {
	tokens float64
	last   time.Time
}

// bucket is a lock-free token bucket. Every consume is a compare-and-swap of
// an immutable state snapshot, so concurrent callers never take more than
// the available tokens.
type bucket struct {
	state atomic.Pointer[bucketState]
}

func newBucket(capacity int, now time.Time) *bucket {
	b := &bucket{}
	b.state.Store(&bucketState{tokens: float64(capacity), last: now})
	return b
}

func (b *bucket) take(cfg RateLimitConfig, now time.Time) Decision {
	capacity := float64(cfg.Capacity)
	rate := cfg.perSecond()

	for {
		old := b.state.Load()

		tokens := old.tokens
		last := old.last
		if now.After(last) {
			tokens = math.Min(capacity, tokens+now.Sub(last).Seconds()*rate)
			last = now
		}

		d := Decision{Limit: cfg.Capacity}
		next := &bucketState{tokens: tokens, last: last}
		if tokens >= 1 {
			next.tokens = tokens - 1
			d.Allowed = true
		}

		if !b.state.CompareAndSwap(old, next) {
			continue
		}

		d.Remaining = int(math.Floor(next.tokens))
		if rate == 0 {
			d.ResetAt = now.Add(cfg.RefillPeriod)
			if !d.Allowed {
				d.RetryAfter = cfg.RefillPeriod
			}
			return d
		}

		d.ResetAt = now.Add(secondsToDuration((capacity - next.tokens) / rate))
		if !d.Allowed {
			d.RetryAfter = secondsToDuration((1 - next.tokens) / rate)
		}
		return d
	}
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(math.Ceil(s * float64(time.Second)))
}

type rateLimitOverride struct {
	method string
	path   string
	cfg    RateLimitConfig
}

func (o rateLimitOverride) matches(r *http.Request) bool {
	if o.method != "" && o.method != r.Method {
		return false
	}
	if strings.HasSuffix(o.path, "/") {
		return strings.HasPrefix(r.URL.Path, o.path)
	}
	return r.URL.Path == o.path
}

// RateLimiter owns the bucket table. Buckets are created lazily on first
// use and evicted once they have been idle for the configured TTL.
type RateLimiter struct {
	def       RateLimitConfig
	overrides []rateLimitOverride
	buckets   *cache.Cache
	now       func() time.Time
	onReject  func(endpoint string)
}

// NewRateLimiter builds a limiter. Override patterns are either a path or
// "METHOD path"; a trailing slash matches the whole subtree.
func NewRateLimiter(def RateLimitConfig, idleTTL time.Duration, overrides map[string]RateLimitConfig) *RateLimiter {
	if def.Key == "" {
		def.Key = DefaultEndpointKey
	}

	l := &RateLimiter{
		def:     def,
		buckets: cache.New(idleTTL, 0),
		now:     time.Now,
	}

	for pattern, cfg := range overrides {
		if cfg.Key == "" {
			cfg.Key = pattern
		}
		o := rateLimitOverride{path: pattern, cfg: cfg}
		if method, path, ok := strings.Cut(pattern, " "); ok {
			o.method, o.path = method, strings.TrimSpace(path)
		}
		l.overrides = append(l.overrides, o)
	}

	// Most specific pattern wins.
	sort.Slice(l.overrides, func(i, j int) bool {
		a, b := l.overrides[i], l.overrides[j]
		if len(a.path) != len(b.path) {
			return len(a.path) > len(b.path)
		}
		return a.method > b.method
	})

	return l
}

// WithClock replaces the time source. It must be called before the limiter
// serves traffic.
func (l *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	l.now = now
	return l
}

// OnReject registers a callback invoked with the endpoint key of every
// rejected request.
func (l *RateLimiter) OnReject(fn func(endpoint string)) *RateLimiter {
	l.onReject = fn
	return l
}

// Resolve returns the bucket configuration that applies to r.
func (l *RateLimiter) Resolve(r *http.Request) RateLimitConfig {
	for _, o := range l.overrides {
		if o.matches(r) {
			return o.cfg
		}
	}
	return l.def
}

// Allow consumes one token from the bucket identified by key.
func (l *RateLimiter) Allow(key string, cfg RateLimitConfig) Decision {
	now := l.now()
	return l.bucketFor(key, cfg.Capacity, now).take(cfg, now)
}

func (l *RateLimiter) bucketFor(key string, capacity int, now time.Time) *bucket {
	for {
		if v, ok := l.buckets.Get(key); ok {
			l.buckets.Set(key, v, cache.DefaultExpiration)
			return v.(*bucket)
		}
		b := newBucket(capacity, now)
		if err := l.buckets.Add(key, b, cache.DefaultExpiration); err == nil {
			return b
		}
	}
}

// DeleteExpired drops buckets that have been idle past the TTL.
func (l *RateLimiter) DeleteExpired() {
	l.buckets.DeleteExpired()
}

// Len reports the number of live buckets.
func (l *RateLimiter) Len() int {
	return l.buckets.ItemCount()
}

// KeyExtractor is a function that extracts a unique key from the request
// for rate limiting purposes.
type KeyExtractor func(*http.Request) string

// ClientIP extracts the client IP address from the request.
// It handles X-Forwarded-For and X-Real-IP headers for proxied requests.
func ClientIP(r *http.Request) string {
	// First X-Forwarded-For entry that is not "unknown"
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, ip := range strings.Split(xff, ",") {
			ip = strings.TrimSpace(ip)
			if ip != "" && !strings.EqualFold(ip, "unknown") {
				return ip
			}
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// RateLimitMiddleware enforces the limiter for every request. The bucket is
// keyed by client identity and endpoint key.
func RateLimitMiddleware(l *RateLimiter, keyExtractor KeyExtractor) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cfg := l.Resolve(r)
			client := keyExtractor(r)
			d := l.Allow(client+"|"+cfg.Key, cfg)

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

			if d.Allowed {
				h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
				next.ServeHTTP(w, r)
				return
			}

			retryAfter := max(int(math.Ceil(d.RetryAfter.Seconds())), 1)
			h.Set("X-RateLimit-Remaining", "0")
			h.Set("Retry-After", strconv.Itoa(retryAfter))

			slogx.FromContext(r.Context()).Warn("rate limit exceeded",
				"client", client,
				"endpoint", cfg.Key,
				"path", r.URL.Path,
				"retry_after", retryAfter,
			)
			if l.onReject != nil {
				l.onReject(cfg.Key)
			}

			WriteJSON(w, http.StatusTooManyRequests, map[string]string{
				"error":   "Too Many Requests",
				"message": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds.", retryAfter),
			})
		})
	}
}
