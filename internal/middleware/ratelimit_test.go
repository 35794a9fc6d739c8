package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gdg-portal/permission-portal/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLimitedRouter(l Limiter) *gin.Engine {
	r := gin.New()
	r.Use(RateLimitMiddleware(l))
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return r
}

func hit(r http.Handler, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = ip + ":12345"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ---------------------------------------------------------------------------
// MemoryLimiter
// ---------------------------------------------------------------------------

func TestMemoryLimiter_BurstThenThrottle(t *testing.T) {
	ml := NewMemoryLimiter(60, 3)
	defer ml.Stop()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := ml.Allow(ctx, "ip:10.0.0.1")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d should be allowed", i)
	}

	d, err := ml.Allow(ctx, "ip:10.0.0.1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))

	d, _ = ml.Allow(ctx, "ip:10.0.0.2")
	assert.True(t, d.Allowed, "other keys have their own bucket")
}

func TestMemoryLimiter_EvictIdle(t *testing.T) {
	ml := NewMemoryLimiter(60, 1)
	defer ml.Stop()

	_, _ = ml.Allow(context.Background(), "ip:10.0.0.1")
	ml.evictIdle(time.Now().Add(ml.idleTTL + time.Second))

	ml.mu.Lock()
	n := len(ml.buckets)
	ml.mu.Unlock()
	assert.Zero(t, n)
}

func TestMemoryLimiter_StopTwice(t *testing.T) {
	ml := NewMemoryLimiter(60, 1)
	ml.Stop()
	assert.NotPanics(t, ml.Stop)
}

// ---------------------------------------------------------------------------
// RateLimitMiddleware
// ---------------------------------------------------------------------------

func TestRateLimitMiddleware_Returns429(t *testing.T) {
	ml := NewMemoryLimiter(60, 2)
	defer ml.Stop()
	r := newLimitedRouter(ml)

	assert.Equal(t, http.StatusOK, hit(r, "192.0.2.1").Code)
	assert.Equal(t, http.StatusOK, hit(r, "192.0.2.1").Code)

	w := hit(r, "192.0.2.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, hit(r, "192.0.2.2").Code)
}

func TestRateLimitMiddleware_NilLimiterDisabled(t *testing.T) {
	r := newLimitedRouter(nil)
	for i := 0; i < 50; i++ {
		require.Equal(t, http.StatusOK, hit(r, "192.0.2.1").Code)
	}
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (Decision, error) {
	return Decision{}, errors.New("connection refused")
}

func TestRateLimitMiddleware_FailsOpen(t *testing.T) {
	w := hit(newLimitedRouter(brokenLimiter{}), "192.0.2.1")
	assert.Equal(t, http.StatusOK, w.Code)
}

// ---------------------------------------------------------------------------
// NewLimiter
// ---------------------------------------------------------------------------

func TestNewLimiter(t *testing.T) {
	cfg := &config.Config{}

	l, stop, err := NewLimiter(cfg)
	require.NoError(t, err)
	assert.Nil(t, l, "disabled limiting yields no limiter")
	stop()

	cfg.Security.RateLimiting = config.RateLimitingConfig{Enabled: true, Backend: "memory", RequestsPerMinute: 60, Burst: 5}
	l, stop, err = NewLimiter(cfg)
	require.NoError(t, err)
	assert.IsType(t, &MemoryLimiter{}, l)
	stop()

	cfg.Security.RateLimiting.Backend = "redis"
	cfg.Redis.Addr = "127.0.0.1:1"
	l, stop, err = NewLimiter(cfg)
	require.NoError(t, err)
	assert.IsType(t, &RedisLimiter{}, l)
	stop()

	cfg.Security.RateLimiting.Backend = "memcached"
	_, _, err = NewLimiter(cfg)
	assert.Error(t, err)
}
