// Package rate limita intentos por clave con ventana fija. El dashboard lo usa
// para frenar intentos de login repetidos.
package rate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	rdb "github.com/redis/go-redis/v9"
)

type Result struct {
	Allowed     bool
	Remaining   int64
	RetryAfter  time.Duration
	CurrentHits int64
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

func result(hits, max int64, ttl, window time.Duration) Result {
	res := Result{Allowed: hits <= max, Remaining: max - hits, CurrentHits: hits}
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	if !res.Allowed {
		res.RetryAfter = ttl
		if res.RetryAfter <= 0 {
			res.RetryAfter = window
		}
	}
	return res
}

// RedisLimiter: fixed window sencillo (INCR + EXPIRE), compartido entre
// procesos que usan el mismo redis.
type RedisLimiter struct {
	Client *rdb.Client
	Prefix string
	Max    int64
	Window time.Duration
}

func NewRedisLimiter(client *rdb.Client, prefix string, max int, window time.Duration) *RedisLimiter {
	if prefix == "" {
		prefix = "rl:"
	}
	return &RedisLimiter{Client: client, Prefix: prefix, Max: int64(max), Window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	winStart := time.Now().UTC().Truncate(l.Window)
	redisKey := fmt.Sprintf("%s%s:%d", l.Prefix, strings.ReplaceAll(key, " ", "_"), winStart.Unix())

	pipe := l.Client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.TTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, err
	}
	// primer hit de la ventana: fijar expiración
	if incr.Val() == 1 {
		_ = l.Client.Expire(ctx, redisKey, l.Window).Err()
		ttl = l.Client.TTL(ctx, redisKey)
	}
	return result(incr.Val(), l.Max, ttl.Val(), l.Window), nil
}

// MemoryLimiter es la variante en proceso, con las ventanas en go-cache.
type MemoryLimiter struct {
	Max    int64
	Window time.Duration

	mu      sync.Mutex
	windows *gocache.Cache
}

func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		Max:     int64(max),
		Window:  window,
		windows: gocache.New(window, 2*window),
	}
}

type memWindow struct {
	hits    int64
	expires time.Time
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	w, ok := l.windows.Get(key)
	win, _ := w.(*memWindow)
	if !ok || win == nil || !now.Before(win.expires) {
		win = &memWindow{expires: now.Add(l.Window)}
		l.windows.Set(key, win, l.Window)
	}
	win.hits++
	return result(win.hits, l.Max, win.expires.Sub(now), l.Window), nil
}
