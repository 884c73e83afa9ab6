package loginguard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrThrottled means the email or IP exhausted its failed-attempt budget.
	ErrThrottled = errors.New("login throttled")

	errRedisUnavailable = errors.New("login guard redis unavailable")
)

// Guard counts failed login attempts in redis, per email and per client IP,
// over a fixed window. Counters only grow on failures; a successful login
// clears the email counter.
type Guard struct {
	redis       *redis.Client
	maxAttempts int
	window      time.Duration
}

func New(redisClient *redis.Client, maxAttempts int, window time.Duration) *Guard {
	if maxAttempts <= 0 {
		maxAttempts = 10
	}

	if window <= 0 {
		window = 5 * time.Minute
	}

	return &Guard{
		redis:       redisClient,
		maxAttempts: maxAttempts,
		window:      window,
	}
}

// Allow reports whether a login attempt for this email/IP pair may proceed.
func (g *Guard) Allow(ctx context.Context, email, ip string) error {
	if err := g.check(ctx, emailKey(email)); err != nil {
		return err
	}

	if ip != "" {
		return g.check(ctx, ipKey(ip))
	}

	return nil
}

// RecordFailure bumps both counters after a rejected credential check.
func (g *Guard) RecordFailure(ctx context.Context, email, ip string) error {
	if err := g.bump(ctx, emailKey(email)); err != nil {
		return err
	}

	if ip != "" {
		return g.bump(ctx, ipKey(ip))
	}

	return nil
}

// RecordSuccess resets the email counter so a recovered user is not locked
// out by stale failures. The IP counter is left to expire on its own.
func (g *Guard) RecordSuccess(ctx context.Context, email string) error {
	err := g.redis.Del(ctx, emailKey(email)).Err()

	if err != nil {
		return fmt.Errorf("%w: %v", errRedisUnavailable, err)
	}

	return nil
}

func (g *Guard) check(ctx context.Context, key string) error {
	count, err := g.redis.Get(ctx, key).Int64()

	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}

		return fmt.Errorf("%w: %v", errRedisUnavailable, err)
	}

	if count >= int64(g.maxAttempts) {
		return ErrThrottled
	}

	return nil
}

func (g *Guard) bump(ctx context.Context, key string) error {
	count, err := g.redis.Incr(ctx, key).Result()

	if err != nil {
		return fmt.Errorf("%w: %v", errRedisUnavailable, err)
	}

	if count == 1 {
		if err := g.redis.Expire(ctx, key, g.window).Err(); err != nil {
			return fmt.Errorf("%w: %v", errRedisUnavailable, err)
		}
	}

	return nil
}

func emailKey(email string) string {
	return "lg:email:" + strings.ToLower(email)
}

func ipKey(ip string) string {
	return "lg:ip:" + ip
}
