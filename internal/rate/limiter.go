// Package rate limita operaciones por ventana fija.
//
// Tres familias de keys en este servicio: "verify:<contacto>" frena el spam
// de OTP, "sign:<identity>" acota ceremonias de firma e "ip:<addr>" cubre el
// borde HTTP. Backends: memoria (single node y tests) y redis (contadores
// compartidos entre réplicas).
package rate

import (
	"context"
	"fmt"
	"strings"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

// Result es el veredicto de una consulta al limiter.
type Result struct {
	Allowed   bool
	Remaining int64
	// RetryAfter solo viene poblado al bloquear: lo que falta para que la
	// ventana actual se cierre.
	RetryAfter time.Duration
}

// Limiter define la interfaz mínima de un rate limiter.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// RedisLimiter cuenta hits por ventana fija con INCR + EXPIRE.
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
	return &RedisLimiter{
		Client: client,
		Prefix: prefix,
		Max:    int64(max),
		Window: window,
	}
}

// windowKey estampa la key con el inicio de la ventana: el contador de una
// ventana cerrada nunca se reusa, muere solo con su EXPIRE.
func (l *RedisLimiter) windowKey(key string, winStart time.Time) string {
	return fmt.Sprintf("%s%s:%d", l.Prefix, strings.ReplaceAll(key, " ", "_"), winStart.Unix())
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	winStart := time.Now().UTC().Truncate(l.Window)
	k := l.windowKey(key, winStart)

	pipe := l.Client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	ttl := pipe.TTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, err
	}

	// primer hit de la ventana: armar el expiry
	if incr.Val() == 1 {
		_ = l.Client.Expire(ctx, k, l.Window).Err()
		ttl = l.Client.TTL(ctx, k)
	}

	hits := incr.Val()
	remaining := l.Max - hits
	if remaining < 0 {
		remaining = 0
	}

	res := Result{Allowed: hits <= l.Max, Remaining: remaining}
	if !res.Allowed {
		res.RetryAfter = ttl.Val()
		if res.RetryAfter <= 0 {
			res.RetryAfter = l.Window
		}
	}
	return res, nil
}
