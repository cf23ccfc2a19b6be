// Package ratelimit throttles repeated failed logins.
//
// Failures are counted per username in Redis under a fixed window: the
// first failure starts the window (LOGIN_COOLDOWN), later failures only
// increment. Once the count reaches the limit every further attempt for
// that username is refused until the key expires. A successful login
// deletes the counter.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sakif/account-scaffold/internal/apperror"
)

// MsgThrottled is the detail sent with 429 responses.
const MsgThrottled = "Request was throttled."

// ErrUnavailable wraps Redis failures so callers can tell them apart from
// a throttling decision.
var ErrUnavailable = errors.New("ratelimit: redis unavailable")

// Config holds the attempt budget.
type Config struct {
	MaxAttempts int
	Cooldown    time.Duration
}

// Limiter enforces the login attempt budget using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a Limiter backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{redis: redisClient, config: cfg}
}

// Check returns a throttling error when username has used up its budget.
// A missing counter means no recent failures.
func (l *Limiter) Check(ctx context.Context, username string) error {
	count, err := l.Attempts(ctx, username)
	if err != nil {
		return err
	}

	if count >= l.config.MaxAttempts {
		return apperror.Throttled(MsgThrottled)
	}
	return nil
}

// Fail records a failed attempt for username.
func (l *Limiter) Fail(ctx context.Context, username string) error {
	count, err := l.redis.Incr(ctx, loginKey(username)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, loginKey(username), l.config.Cooldown).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return nil
}

// Reset clears the counter after a successful login.
func (l *Limiter) Reset(ctx context.Context, username string) error {
	if err := l.redis.Del(ctx, loginKey(username)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Attempts returns the current failure count for username, zero when no
// window is open.
func (l *Limiter) Attempts(ctx context.Context, username string) (int, error) {
	count, err := l.redis.Get(ctx, loginKey(username)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return count, nil
}

func loginKey(username string) string {
	return "login:" + username
}

// Nop never throttles. It is used when no Redis is configured.
type Nop struct{}

func (Nop) Check(context.Context, string) error { return nil }
func (Nop) Fail(context.Context, string) error  { return nil }
func (Nop) Reset(context.Context, string) error { return nil }
