// Package config loads runtime settings from environment variables.
//
// cmd/server loads an optional .env file first (godotenv), so everything
// here can come from either the real environment or that file. Every key
// has a default except TOKEN_SECRET, which is only required for JWT keys.
// Any value that fails to parse stops startup: a typo in LOGIN_COOLDOWN
// should not silently fall back to the default.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Token formats.
const (
	TokenOpaque = "opaque"
	TokenJWT    = "jwt"
)

// Password hashers.
const (
	HasherBcrypt   = "bcrypt"
	HasherArgon2id = "argon2id"
)

// Log formats.
const (
	LogText = "text"
	LogJSON = "json"
)

// Config holds every runtime setting.
type Config struct {
	Port int

	// DatabaseURL is a SQLite path, or a postgres:// URL.
	DatabaseURL string
	// RedisURL enables the token cache and login throttling when set.
	RedisURL string

	TokenFormat string
	TokenSecret string
	// TokenTTL of zero means tokens never expire.
	TokenTTL time.Duration

	PasswordHasher string
	BcryptCost     int

	UsernameBlacklist []string

	LoginMaxAttempts int
	LoginCooldown    time.Duration

	LogLevel  slog.Level
	LogFormat string
}

// UsesPostgres reports whether DatabaseURL points at Postgres.
func (c *Config) UsesPostgres() bool {
	return strings.HasPrefix(c.DatabaseURL, "postgres://") ||
		strings.HasPrefix(c.DatabaseURL, "postgresql://")
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	var err error
	cfg := &Config{
		DatabaseURL:       getEnv("DATABASE_URL", "data/accounts.db"),
		RedisURL:          os.Getenv("REDIS_URL"),
		TokenFormat:       strings.ToLower(getEnv("TOKEN_FORMAT", TokenOpaque)),
		TokenSecret:       os.Getenv("TOKEN_SECRET"),
		PasswordHasher:    strings.ToLower(getEnv("PASSWORD_HASHER", HasherBcrypt)),
		UsernameBlacklist: splitList(getEnv("USERNAME_BLACKLIST", "me")),
		LogFormat:         strings.ToLower(getEnv("LOG_FORMAT", LogText)),
	}

	if cfg.Port, err = getInt("PORT", 8080); err != nil {
		return nil, err
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("config: PORT %d out of range", cfg.Port)
	}
	if cfg.TokenTTL, err = getDuration("TOKEN_TTL", 0); err != nil {
		return nil, err
	}
	if cfg.BcryptCost, err = getInt("BCRYPT_COST", 12); err != nil {
		return nil, err
	}
	if cfg.LoginMaxAttempts, err = getInt("LOGIN_MAX_ATTEMPTS", 5); err != nil {
		return nil, err
	}
	if cfg.LoginCooldown, err = getDuration("LOGIN_COOLDOWN", 15*time.Minute); err != nil {
		return nil, err
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("config: LOG_LEVEL: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.TokenFormat {
	case TokenOpaque:
	case TokenJWT:
		if len(c.TokenSecret) < 16 {
			return errors.New("config: TOKEN_SECRET must be at least 16 characters when TOKEN_FORMAT=jwt")
		}
	default:
		return fmt.Errorf("config: unknown TOKEN_FORMAT %q", c.TokenFormat)
	}

	switch c.PasswordHasher {
	case HasherBcrypt, HasherArgon2id:
	default:
		return fmt.Errorf("config: unknown PASSWORD_HASHER %q", c.PasswordHasher)
	}

	switch c.LogFormat {
	case LogText, LogJSON:
	default:
		return fmt.Errorf("config: unknown LOG_FORMAT %q", c.LogFormat)
	}

	if c.TokenTTL < 0 {
		return errors.New("config: TOKEN_TTL must not be negative")
	}
	if c.LoginMaxAttempts < 1 {
		return errors.New("config: LOGIN_MAX_ATTEMPTS must be at least 1")
	}
	if c.LoginCooldown <= 0 {
		return errors.New("config: LOGIN_COOLDOWN must be positive")
	}
	return nil
}

// getEnv returns the value of key, or defaultValue when unset or empty.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %q is not an integer", key, raw)
	}
	return n, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %q is not a duration (e.g. 15m, 24h)", key, raw)
	}
	return d, nil
}

// splitList splits a comma-separated value, dropping empty entries.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
