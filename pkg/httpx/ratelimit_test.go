package httpx_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/TimurCravtov/CraftHub/pkg/httpx"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doRequest(h http.Handler, method, path, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestClientIP(t *testing.T) {
	t.Run("extracts from RemoteAddr", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"

		require.Equal(t, "192.168.1.1", httpx.ClientIP(req))
	})

	t.Run("prefers X-Forwarded-For", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		req.Header.Set("X-Forwarded-For", "203.0.113.1, 192.168.1.1")

		require.Equal(t, "203.0.113.1", httpx.ClientIP(req))
	})

	t.Run("skips unknown X-Forwarded-For entries", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		req.Header.Set("X-Forwarded-For", "unknown, 203.0.113.7")

		require.Equal(t, "203.0.113.7", httpx.ClientIP(req))
	})

	t.Run("uses X-Real-IP if X-Forwarded-For absent", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		req.Header.Set("X-Real-IP", "203.0.113.2")

		require.Equal(t, "203.0.113.2", httpx.ClientIP(req))
	})

	t.Run("RemoteAddr without port", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.9"

		require.Equal(t, "10.0.0.9", httpx.ClientIP(req))
	})
}

func TestRateLimiterAllow(t *testing.T) {
	t.Run("capacity five without refill rejects the sixth request", func(t *testing.T) {
		clock := newFakeClock()
		cfg := httpx.RateLimitConfig{Capacity: 5, RefillTokens: 0, RefillPeriod: time.Minute}
		l := httpx.NewRateLimiter(cfg, time.Hour, nil).WithClock(clock.Now)

		for i := range 5 {
			d := l.Allow("client", cfg)
			require.True(t, d.Allowed, "request %d should succeed", i+1)
			require.Equal(t, 4-i, d.Remaining)
		}

		d := l.Allow("client", cfg)
		require.False(t, d.Allowed)
		require.Equal(t, 0, d.Remaining)
		require.Equal(t, time.Minute, d.RetryAfter)

		clock.Advance(time.Hour)
		require.False(t, l.Allow("client", cfg).Allowed, "zero refill never recovers")
	})

	t.Run("continuous refill", func(t *testing.T) {
		clock := newFakeClock()
		cfg := httpx.RateLimitConfig{Capacity: 2, RefillTokens: 2, RefillPeriod: time.Second}
		l := httpx.NewRateLimiter(cfg, time.Hour, nil).WithClock(clock.Now)

		require.True(t, l.Allow("k", cfg).Allowed)
		require.True(t, l.Allow("k", cfg).Allowed)

		d := l.Allow("k", cfg)
		require.False(t, d.Allowed)
		require.Equal(t, 500*time.Millisecond, d.RetryAfter)

		clock.Advance(500 * time.Millisecond)
		require.True(t, l.Allow("k", cfg).Allowed)
		require.False(t, l.Allow("k", cfg).Allowed)
	})

	t.Run("refill is capped at capacity", func(t *testing.T) {
		clock := newFakeClock()
		cfg := httpx.RateLimitConfig{Capacity: 3, RefillTokens: 3, RefillPeriod: time.Second}
		l := httpx.NewRateLimiter(cfg, time.Hour, nil).WithClock(clock.Now)

		require.True(t, l.Allow("k", cfg).Allowed)
		clock.Advance(time.Hour)

		for range 3 {
			require.True(t, l.Allow("k", cfg).Allowed)
		}
		require.False(t, l.Allow("k", cfg).Allowed)
	})

	t.Run("different keys are tracked separately", func(t *testing.T) {
		cfg := httpx.RateLimitConfig{Capacity: 1, RefillPeriod: time.Minute}
		l := httpx.NewRateLimiter(cfg, time.Hour, nil)

		require.True(t, l.Allow("a", cfg).Allowed)
		require.False(t, l.Allow("a", cfg).Allowed)
		require.True(t, l.Allow("b", cfg).Allowed)
		require.Equal(t, 2, l.Len())
	})
}

func TestRateLimiterConcurrency(t *testing.T) {
	const capacity = 50
	cfg := httpx.RateLimitConfig{Capacity: capacity, RefillPeriod: time.Minute}
	l := httpx.NewRateLimiter(cfg, time.Hour, nil).WithClock(newFakeClock().Now)

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for range 500 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("shared", cfg).Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int64(capacity), allowed.Load())
}

func TestRateLimiterIdleEviction(t *testing.T) {
	cfg := httpx.RateLimitConfig{Capacity: 1, RefillPeriod: time.Minute}
	l := httpx.NewRateLimiter(cfg, 10*time.Millisecond, nil)

	require.True(t, l.Allow("k", cfg).Allowed)
	require.False(t, l.Allow("k", cfg).Allowed)

	time.Sleep(20 * time.Millisecond)
	l.DeleteExpired()
	require.Equal(t, 0, l.Len())

	require.True(t, l.Allow("k", cfg).Allowed, "evicted bucket starts full")
}

func TestRateLimiterResolve(t *testing.T) {
	def := httpx.RateLimitConfig{Capacity: 30, RefillTokens: 30, RefillPeriod: time.Minute}
	l := httpx.NewRateLimiter(def, time.Hour, map[string]httpx.RateLimitConfig{
		"POST /api/auth/signin": {Capacity: 5, RefillTokens: 5, RefillPeriod: time.Minute},
		"POST /api/oauth/":      {Capacity: 10, RefillTokens: 10, RefillPeriod: time.Minute, Key: "oauth"},
		"/api/auth/me":          {Capacity: 20, RefillTokens: 20, RefillPeriod: time.Minute},
	})

	tests := []struct {
		method, path string
		wantKey      string
		wantCap      int
	}{
		{http.MethodPost, "/api/auth/signin", "POST /api/auth/signin", 5},
		{http.MethodGet, "/api/auth/signin", httpx.DefaultEndpointKey, 30},
		{http.MethodPost, "/api/oauth/google", "oauth", 10},
		{http.MethodPost, "/api/oauth/github", "oauth", 10},
		{http.MethodGet, "/api/auth/me", "/api/auth/me", 20},
		{http.MethodGet, "/api/auth/me/extra", httpx.DefaultEndpointKey, 30},
		{http.MethodGet, "/livez", httpx.DefaultEndpointKey, 30},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			cfg := l.Resolve(req)
			require.Equal(t, tt.wantKey, cfg.Key)
			require.Equal(t, tt.wantCap, cfg.Capacity)
		})
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Run("allows requests under limit with headers", func(t *testing.T) {
		clock := newFakeClock()
		l := httpx.NewRateLimiter(httpx.RateLimitConfig{Capacity: 5, RefillTokens: 5, RefillPeriod: time.Minute}, time.Hour, nil).
			WithClock(clock.Now)
		h := httpx.RateLimitMiddleware(l, httpx.ClientIP)(okHandler())

		rec := doRequest(h, http.MethodGet, "/", "192.168.1.1:12345")
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
		require.Equal(t, "4", rec.Header().Get("X-RateLimit-Remaining"))
		require.Equal(t, strconv.FormatInt(clock.Now().Add(12*time.Second).Unix(), 10), rec.Header().Get("X-RateLimit-Reset"))
	})

	t.Run("blocks requests over limit", func(t *testing.T) {
		clock := newFakeClock()
		l := httpx.NewRateLimiter(httpx.RateLimitConfig{Capacity: 3, RefillPeriod: time.Minute}, time.Hour, nil).
			WithClock(clock.Now)

		var calls atomic.Int32
		h := httpx.RateLimitMiddleware(l, httpx.ClientIP)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusOK)
		}))

		for i := range 3 {
			rec := doRequest(h, http.MethodGet, "/", "192.168.1.1:12345")
			require.Equal(t, http.StatusOK, rec.Code, "request %d should succeed", i+1)
		}

		rec := doRequest(h, http.MethodGet, "/", "192.168.1.1:12345")
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		require.Equal(t, int32(3), calls.Load(), "handler must not run for rejected requests")

		require.Equal(t, "60", rec.Header().Get("Retry-After"))
		require.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
		require.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
		require.Equal(t, strconv.FormatInt(clock.Now().Add(time.Minute).Unix(), 10), rec.Header().Get("X-RateLimit-Reset"))

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, "Too Many Requests", body["error"])
		require.Equal(t, "Rate limit exceeded. Try again in 60 seconds.", body["message"])
	})

	t.Run("different clients are tracked separately", func(t *testing.T) {
		l := httpx.NewRateLimiter(httpx.RateLimitConfig{Capacity: 1, RefillPeriod: time.Minute}, time.Hour, nil)
		h := httpx.RateLimitMiddleware(l, httpx.ClientIP)(okHandler())

		require.Equal(t, http.StatusOK, doRequest(h, http.MethodGet, "/", "192.168.1.1:1").Code)
		require.Equal(t, http.StatusTooManyRequests, doRequest(h, http.MethodGet, "/", "192.168.1.1:2").Code)
		require.Equal(t, http.StatusOK, doRequest(h, http.MethodGet, "/", "192.168.1.2:1").Code)
	})

	t.Run("endpoint overrides use their own bucket", func(t *testing.T) {
		l := httpx.NewRateLimiter(
			httpx.RateLimitConfig{Capacity: 100, RefillPeriod: time.Minute},
			time.Hour,
			map[string]httpx.RateLimitConfig{
				"POST /api/auth/signin": {Capacity: 2, RefillPeriod: time.Minute},
			},
		)

		var rejected []string
		l.OnReject(func(endpoint string) { rejected = append(rejected, endpoint) })
		h := httpx.RateLimitMiddleware(l, httpx.ClientIP)(okHandler())

		for range 2 {
			require.Equal(t, http.StatusOK, doRequest(h, http.MethodPost, "/api/auth/signin", "10.0.0.1:1").Code)
		}
		require.Equal(t, http.StatusTooManyRequests, doRequest(h, http.MethodPost, "/api/auth/signin", "10.0.0.1:1").Code)
		require.Equal(t, http.StatusOK, doRequest(h, http.MethodGet, "/api/auth/me", "10.0.0.1:1").Code)
		require.Equal(t, []string{"POST /api/auth/signin"}, rejected)
	})
}

func BenchmarkRateLimitMiddleware(b *testing.B) {
	l := httpx.NewRateLimiter(httpx.RateLimitConfig{Capacity: 1000, RefillTokens: 1000000, RefillPeriod: time.Second}, time.Hour, nil)
	h := httpx.RateLimitMiddleware(l, httpx.ClientIP)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.1:12345"

	b.ResetTimer()
	for range b.N {
		h.ServeHTTP(httptest.NewRecorder(), req)
	}
}
