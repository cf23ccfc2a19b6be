// Package redis puts a read-through Redis cache in front of a token store.
//
// Every authenticated request resolves its token key, so the lookup is the
// hottest query in the service. Entries live under "token:<key>" as JSON and
// are written on issuance, filled on a miss and evicted on deletion. An
// entry never outlives the token's own expiry.
//
// Redis errors never fail a request: the cache logs them and falls through
// to the backing store, which stays the source of truth.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sakif/account-scaffold/internal/model"
	"github.com/sakif/account-scaffold/internal/repository"
)

// DefaultTTL bounds how long a cached entry may go unrefreshed.
const DefaultTTL = 5 * time.Minute

const keyPrefix = "token:"

// TokenCache decorates a repository.TokenRepository.
type TokenCache struct {
	next   repository.TokenRepository
	redis  redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

var _ repository.TokenRepository = (*TokenCache)(nil)

// NewTokenCache wraps next. A ttl of zero means DefaultTTL.
func NewTokenCache(next repository.TokenRepository, rdb redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *TokenCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &TokenCache{next: next, redis: rdb, ttl: ttl, logger: logger, now: time.Now}
}

// cachedToken is the JSON form of a cache entry.
type cachedToken struct {
	AccountID string     `json:"account_id"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// CreateToken writes through: the store first, then the cache.
func (c *TokenCache) CreateToken(ctx context.Context, token *model.Token) error {
	if err := c.next.CreateToken(ctx, token); err != nil {
		return err
	}
	c.put(ctx, token)
	return nil
}

// GetToken serves from Redis when possible and fills the cache on a miss.
func (c *TokenCache) GetToken(ctx context.Context, key string) (*model.Token, error) {
	raw, err := c.redis.Get(ctx, keyPrefix+key).Bytes()
	switch {
	case err == nil:
		var ct cachedToken
		if jsonErr := json.Unmarshal(raw, &ct); jsonErr == nil {
			return &model.Token{Key: key, AccountID: ct.AccountID, CreatedAt: ct.CreatedAt, ExpiresAt: ct.ExpiresAt}, nil
		}
		c.logger.Warn("discarding corrupt token cache entry")
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("token cache read failed", slog.String("error", err.Error()))
	}

	token, err := c.next.GetToken(ctx, key)
	if err != nil {
		return nil, err
	}
	c.put(ctx, token)
	return token, nil
}

// DeleteToken removes the token from the store, then from the cache.
func (c *TokenCache) DeleteToken(ctx context.Context, key string) error {
	if err := c.next.DeleteToken(ctx, key); err != nil {
		return err
	}
	c.evict(ctx, key)
	return nil
}

func (c *TokenCache) put(ctx context.Context, token *model.Token) {
	ttl := c.ttl
	if token.ExpiresAt != nil {
		left := token.ExpiresAt.Sub(c.now())
		if left <= 0 {
			return
		}
		ttl = min(ttl, left)
	}

	raw, err := json.Marshal(cachedToken{AccountID: token.AccountID, CreatedAt: token.CreatedAt, ExpiresAt: token.ExpiresAt})
	if err != nil {
		c.logger.Warn("token cache encode failed", slog.String("error", err.Error()))
		return
	}
	if err := c.redis.Set(ctx, keyPrefix+token.Key, raw, ttl).Err(); err != nil {
		c.logger.Warn("token cache write failed", slog.String("error", err.Error()))
	}
}

func (c *TokenCache) evict(ctx context.Context, key string) {
	if err := c.redis.Del(ctx, keyPrefix+key).Err(); err != nil {
		c.logger.Warn("token cache evict failed", slog.String("error", err.Error()))
	}
}
