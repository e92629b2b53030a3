package service_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/TimurCravtov/CraftHub/internal/auth/service"
	"github.com/TimurCravtov/CraftHub/pkg/httpx"
	"github.com/TimurCravtov/CraftHub/pkg/slogx"
	"github.com/stretchr/testify/require"
)

type countingSweeper struct{ sweeps atomic.Int32 }

func (s *countingSweeper) DeleteExpired() { s.sweeps.Add(1) }
func (s *countingSweeper) Len() int       { return 0 }

func TestHousekeepingSweepsExpiredCodesAndBuckets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.codes.Put(ctx, "u1", "111111", time.Minute))
	require.NoError(t, f.codes.Put(ctx, "u2", "222222", time.Hour))

	limiter := httpx.NewRateLimiter(httpx.RateLimitConfig{Capacity: 1, RefillTokens: 1, RefillPeriod: time.Minute}, 10*time.Millisecond, nil)
	limiter.Allow("10.0.0.1|default", httpx.RateLimitConfig{Capacity: 1, RefillTokens: 1, RefillPeriod: time.Minute, Key: httpx.DefaultEndpointKey})
	require.Equal(t, 1, limiter.Len())

	hk := service.NewHousekeepingService(f.store, slogx.Discard(), time.Hour, map[string]service.Sweeper{
		"otp":        f.codes,
		"rate_limit": limiter,
	})

	time.Sleep(20 * time.Millisecond)
	f.clock.Advance(2 * time.Minute)
	hk.RunOnce(ctx)

	require.Equal(t, 0, limiter.Len())
	require.Equal(t, 1, f.codes.Len())
}

func TestHousekeepingStartStop(t *testing.T) {
	sw := &countingSweeper{}
	hk := service.NewHousekeepingService(nil, slogx.Discard(), 5*time.Millisecond, map[string]service.Sweeper{"fake": sw})

	hk.Start()
	require.Eventually(t, func() bool { return sw.sweeps.Load() >= 2 }, time.Second, time.Millisecond)
	hk.Stop()
	hk.Stop()

	after := sw.sweeps.Load()
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, after, sw.sweeps.Load())
}

func TestHousekeepingStopBeforeStart(t *testing.T) {
	hk := service.NewHousekeepingService(nil, slogx.Discard(), 0, nil)
	require.Equal(t, time.Hour, hk.Interval)
	hk.Stop()
}
