// ratelimit.go throttles clients with a token bucket per key. The memory backend
// keeps buckets in process; the redis backend shares them across replicas.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gdg-portal/permission-portal/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter decides whether the client identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// ---------------------------------------------------------------------------
// Memory backend
// ---------------------------------------------------------------------------

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// MemoryLimiter keeps one x/time/rate limiter per key and forgets keys idle
// longer than idleTTL.
type MemoryLimiter struct {
	perMinute int
	burst     int
	idleTTL   time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
	stopCh  chan struct{}
	once    sync.Once
}

// NewMemoryLimiter starts a limiter and its cleanup loop. Call Stop to end it.
func NewMemoryLimiter(perMinute, burst int) *MemoryLimiter {
	ml := &MemoryLimiter{
		perMinute: perMinute,
		burst:     burst,
		idleTTL:   10 * time.Minute,
		buckets:   make(map[string]*bucket),
		stopCh:    make(chan struct{}),
	}
	go ml.cleanup(time.Minute)
	return ml
}

func (ml *MemoryLimiter) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ml.evictIdle(time.Now())
		case <-ml.stopCh:
			return
		}
	}
}

func (ml *MemoryLimiter) evictIdle(now time.Time) {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	for key, b := range ml.buckets {
		if now.Sub(b.lastSeen) > ml.idleTTL {
			delete(ml.buckets, key)
		}
	}
}

// Stop ends the cleanup loop. Safe to call more than once.
func (ml *MemoryLimiter) Stop() {
	ml.once.Do(func() { close(ml.stopCh) })
}

// Allow never returns an error.
func (ml *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	now := time.Now()
	b, ok := ml.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rate.Limit(float64(ml.perMinute)/60.0), ml.burst)}
		ml.buckets[key] = b
	}
	b.lastSeen = now

	r := b.lim.ReserveN(now, 1)
	if !r.OK() {
		return Decision{Allowed: false, RetryAfter: time.Minute}, nil
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return Decision{Allowed: false, RetryAfter: delay}, nil
	}
	return Decision{Allowed: true, Remaining: int(b.lim.TokensAt(now))}, nil
}

// ---------------------------------------------------------------------------
// Redis backend
// ---------------------------------------------------------------------------

// RedisLimiter is a GCRA limiter stored in redis via redis_rate.
type RedisLimiter struct {
	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
}

func NewRedisLimiter(client redis.UniversalClient, perMinute, burst int) *RedisLimiter {
	return &RedisLimiter{
		limiter: redis_rate.NewLimiter(client),
		limit:   redis_rate.Limit{Rate: perMinute, Burst: burst, Period: time.Minute},
	}
}

func (rl *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	res, err := rl.limiter.Allow(ctx, "portal:ratelimit:"+key, rl.limit)
	if err != nil {
		return Decision{}, err
	}
	return Decision{Allowed: res.Allowed > 0, Remaining: res.Remaining, RetryAfter: res.RetryAfter}, nil
}

// NewLimiter builds the backend named in cfg. A nil Limiter means rate
// limiting is disabled. The returned func releases the backend's resources.
func NewLimiter(cfg *config.Config) (Limiter, func(), error) {
	rl := cfg.Security.RateLimiting
	if !rl.Enabled {
		return nil, func() {}, nil
	}

	switch rl.Backend {
	case "", "memory":
		ml := NewMemoryLimiter(rl.RequestsPerMinute, rl.Burst)
		return ml, ml.Stop, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return NewRedisLimiter(client, rl.RequestsPerMinute, rl.Burst), func() { _ = client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown rate limiting backend %q", rl.Backend)
	}
}

// RateLimitMiddleware rejects throttled clients with 429. Limiter errors fail
// open so a redis outage does not take the portal down.
func RateLimitMiddleware(limiter Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}

		d, err := limiter.Allow(c.Request.Context(), "ip:"+c.ClientIP())
		if err != nil {
			slog.WarnContext(c.Request.Context(), "rate limiter unavailable", "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		if !d.Allowed {
			retry := int(d.RetryAfter.Round(time.Second) / time.Second)
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			c.String(http.StatusTooManyRequests, "Too many requests. Please slow down.")
			c.Abort()
			return
		}

		c.Next()
	}
}
