// Package ratelimit throttles mutating requests per identity with a
// redis sliding window.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/realisereallies/anime/internal/auth"
	"github.com/realisereallies/anime/pkg/logger"
)

const keyPrefix = "ratelimit:"

type Limiter struct {
	redis       *redis.Client
	maxRequests int
	window      time.Duration

	// Now is the clock used for window boundaries.
	Now func() time.Time
}

type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// New returns a limiter allowing maxRequests per window. A nil client
// disables limiting.
func New(client *redis.Client, maxRequests int, window time.Duration) *Limiter {
	if maxRequests <= 0 {
		maxRequests = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{redis: client, maxRequests: maxRequests, window: window, Now: time.Now}
}

func (l *Limiter) Enabled() bool {
	return l != nil && l.redis != nil
}

// Allow records one request for identifier and reports whether it fits
// in the current window.
func (l *Limiter) Allow(ctx context.Context, identifier string) (Decision, error) {
	key := keyPrefix + identifier
	now := l.Now()
	windowStart := now.Add(-l.window)

	pipe := l.redis.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.UnixNano(), 10))
	countCmd := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: strconv.FormatInt(now.UnixNano(), 10) + ":" + uuid.NewString(),
	})
	pipe.Expire(ctx, key, l.window+time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("rate limit pipeline: %w", err)
	}

	count := int(countCmd.Val())
	remaining := l.maxRequests - count - 1
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count < l.maxRequests,
		Remaining: remaining,
		ResetAt:   now.Add(l.window),
	}, nil
}

// Middleware must run after the gate so authenticated callers are keyed
// by user id. Anonymous callers fall back to the client IP. Redis errors
// let the request through.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Enabled() {
			c.Next()
			return
		}

		identifier := "ip:" + c.ClientIP()
		if id, ok := auth.IdentityFrom(c); ok {
			identifier = "user:" + id.UserID
		}

		d, err := l.Allow(c.Request.Context(), identifier)
		if err != nil {
			logger.FromContext(c.Request.Context()).Error().
				Err(err).
				Str("identifier", identifier).
				Msg("rate limiter error")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(l.maxRequests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

		if !d.Allowed {
			retry := d.ResetAt.Sub(l.Now()).Round(time.Second)
			logger.FromContext(c.Request.Context()).Warn().
				Str("identifier", identifier).
				Int("limit", l.maxRequests).
				Msg("rate limit exceeded")
			c.Header("Retry-After", strconv.Itoa(int(retry.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": retry.Seconds(),
			})
			return
		}
		c.Next()
	}
}

// Connect builds a client for addr and pings it. An empty addr returns
// a nil client.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	if addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}
