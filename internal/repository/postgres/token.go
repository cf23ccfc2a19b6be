package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sakif/account-scaffold/internal/apperror"
	"github.com/sakif/account-scaffold/internal/model"
)

func (db *DB) CreateToken(ctx context.Context, token *model.Token) error {
	uid, err := uuid.Parse(token.AccountID)
	if err != nil {
		return apperror.NotFound("account", token.AccountID)
	}

	err = db.pool.QueryRow(ctx,
		`INSERT INTO tokens (key, account_id, expires_at) VALUES ($1, $2, $3) RETURNING created_at`,
		token.Key, uid, token.ExpiresAt,
	).Scan(&token.CreatedAt)
	if err != nil {
		if _, ok := asPgError(err, uniqueViolation); ok {
			return apperror.Duplicate("token", "key")
		}
		if _, ok := asPgError(err, foreignKeyViolation); ok {
			return apperror.NotFound("account", token.AccountID)
		}
		return fmt.Errorf("postgres: inserting token for account %s: %w", token.AccountID, err)
	}
	return nil
}

func (db *DB) GetToken(ctx context.Context, key string) (*model.Token, error) {
	var (
		t         model.Token
		accountID uuid.UUID
		expiresAt *time.Time
	)
	err := db.pool.QueryRow(ctx,
		`SELECT key, account_id, created_at, expires_at FROM tokens WHERE key = $1`, key,
	).Scan(&t.Key, &accountID, &t.CreatedAt, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("token", "<redacted>")
		}
		return nil, fmt.Errorf("postgres: getting token: %w", err)
	}

	t.AccountID = accountID.String()
	t.ExpiresAt = expiresAt
	return &t, nil
}

func (db *DB) DeleteToken(ctx context.Context, key string) error {
	if _, err := db.pool.Exec(ctx, `DELETE FROM tokens WHERE key = $1`, key); err != nil {
		return fmt.Errorf("postgres: deleting token: %w", err)
	}
	return nil
}
