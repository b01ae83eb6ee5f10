package middleware

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"vortexx/internal/models"
	"vortexx/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// Rule is a fixed-window limit applied to one route.
type Rule struct {
	Name   string
	Limit  int
	Window time.Duration
}

// Limiter counts hits per caller in Redis. A nil client or an unreachable
// Redis lets every request through.
type Limiter struct {
	rdb     *redis.Client
	enabled bool
}

// NewLimiter builds a limiter for the configured environment. Limits are not
// enforced in development and test.
func NewLimiter(rdb *redis.Client, env string) *Limiter {
	switch env {
	case "", "development", "test":
		return &Limiter{rdb: rdb}
	}
	return &Limiter{rdb: rdb, enabled: true}
}

// Enabled reports whether limits are enforced.
func (l *Limiter) Enabled() bool { return l.enabled }

// Allow counts one hit for caller under rule. It returns whether the hit fits
// the window and how long until the window resets.
func (l *Limiter) Allow(ctx context.Context, rule Rule, caller string) (bool, time.Duration, error) {
	if !l.enabled {
		return true, 0, nil
	}
	if l.rdb == nil {
		return false, 0, errors.New("redis client is nil")
	}

	key := "rl:" + rule.Name + ":" + caller
	cnt, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, err
	}
	if cnt == 1 {
		if err := l.rdb.Expire(ctx, key, rule.Window).Err(); err != nil {
			return false, 0, err
		}
	}
	if cnt <= int64(rule.Limit) {
		return true, 0, nil
	}
	ttl, err := l.rdb.PTTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = rule.Window
	}
	return false, ttl, nil
}

// Handler enforces rule, keyed by the signed-in username or else the remote
// IP. Callers over the limit get 429 with Retry-After.
func (l *Limiter) Handler(rule Rule) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller := "ip:" + c.IP()
		if username, ok := c.Locals("username").(string); ok && username != "" {
			caller = "user:" + username
		}

		allowed, retry, err := l.Allow(c.UserContext(), rule, caller)
		switch {
		case err != nil:
			observability.RateLimitDecisions.WithLabelValues(rule.Name, "unavailable").Inc()
			Logger.WarnContext(c.UserContext(), "rate limit unavailable, letting request through",
				slog.String("rule", rule.Name),
				slog.String("error", err.Error()),
			)
			return c.Next()
		case !allowed:
			observability.RateLimitDecisions.WithLabelValues(rule.Name, "denied").Inc()
			secs := int(retry.Round(time.Second) / time.Second)
			if secs < 1 {
				secs = 1
			}
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(secs))
			return c.Status(fiber.StatusTooManyRequests).JSON(models.ErrorResponse{
				Error: "Too many requests, please try again later",
			})
		}
		if l.enabled {
			observability.RateLimitDecisions.WithLabelValues(rule.Name, "allowed").Inc()
		}
		return c.Next()
	}
}
