package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sakif/account-scaffold/internal/auth"
	"github.com/sakif/account-scaffold/internal/config"
	"github.com/sakif/account-scaffold/internal/ratelimit"
	"github.com/sakif/account-scaffold/internal/repository"
	pgRepo "github.com/sakif/account-scaffold/internal/repository/postgres"
	redisRepo "github.com/sakif/account-scaffold/internal/repository/redis"
	sqliteRepo "github.com/sakif/account-scaffold/internal/repository/sqlite"
	"github.com/sakif/account-scaffold/internal/service"
	"github.com/sakif/account-scaffold/internal/validator"
)

// Deps is the assembled dependency graph. The HTTP server and the
// createsuperuser command both build one, so they share exactly the same
// store, hasher and validation rules.
//
//	config → Store (sqlite | postgres) ─┬→ TokenCache (if Redis) → TokenIssuer
//	                                    └→ AccountService, AuthService
//	       → Redis ─→ ratelimit.Limiter ──→ AuthService
type Deps struct {
	Store    repository.Store
	Redis    *redis.Client // nil without REDIS_URL
	Accounts *service.AccountService
	Auth     *service.AuthService
}

// Build opens the store (and Redis, when configured) and wires the services.
// The caller owns the result and must call Close.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Deps, error) {
	hasher, err := newHasher(cfg)
	if err != nil {
		return nil, err
	}

	var (
		keys   auth.KeyGenerator = auth.OpaqueKeys{}
		signer *auth.TokenService
	)
	if cfg.TokenFormat == config.TokenJWT {
		if signer, err = auth.NewTokenService(cfg.TokenSecret); err != nil {
			return nil, fmt.Errorf("creating token signer: %w", err)
		}
		keys = signer
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	d := &Deps{Store: store}

	var (
		tokens  repository.TokenRepository = store
		limiter service.LoginLimiter
	)
	if cfg.RedisURL != "" {
		rdb, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.Redis = rdb
		tokens = redisRepo.NewTokenCache(store, rdb, redisRepo.DefaultTTL, logger)
		limiter = ratelimit.New(rdb, ratelimit.Config{
			MaxAttempts: cfg.LoginMaxAttempts,
			Cooldown:    cfg.LoginCooldown,
		})
	} else {
		logger.Info("REDIS_URL not set: token cache and login throttling disabled")
	}

	v := validator.New(cfg.UsernameBlacklist)
	issuer := service.NewTokenIssuer(tokens, keys, cfg.TokenTTL, logger)

	d.Accounts = service.NewAccountService(store, v, hasher, issuer, logger)
	d.Auth = service.NewAuthService(service.AuthDeps{
		Accounts:  store,
		Tokens:    tokens,
		Issuer:    issuer,
		Hasher:    hasher,
		Validator: v,
		Limiter:   limiter,
		Signer:    signer,
		Logger:    logger,
	})
	return d, nil
}

// Close releases Redis and the store.
func (d *Deps) Close() error {
	var errs []error
	if d.Redis != nil {
		errs = append(errs, d.Redis.Close())
	}
	if d.Store != nil {
		errs = append(errs, d.Store.Close())
	}
	return errors.Join(errs...)
}

func newHasher(cfg *config.Config) (auth.PasswordHasher, error) {
	switch cfg.PasswordHasher {
	case config.HasherArgon2id:
		h, err := auth.NewArgon2(auth.DefaultArgon2Config())
		if err != nil {
			return nil, fmt.Errorf("creating argon2id hasher: %w", err)
		}
		return h, nil
	default:
		h, err := auth.NewPasswordServiceWithCost(cfg.BcryptCost)
		if err != nil {
			return nil, fmt.Errorf("creating bcrypt hasher: %w", err)
		}
		return h, nil
	}
}

// openStore picks the backend from DATABASE_URL.
func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	if cfg.UsesPostgres() {
		db, err := pgRepo.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("opening postgres: %w", err)
		}
		return db, nil
	}

	// os.MkdirAll creates all parent directories if needed (like `mkdir -p`).
	if cfg.DatabaseURL != ":memory:" {
		dir := filepath.Dir(cfg.DatabaseURL)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
		}
	}
	db, err := sqliteRepo.New(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	return db, nil
}

func openRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return rdb, nil
}
