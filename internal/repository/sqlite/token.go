package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/account-scaffold/internal/apperror"
	"github.com/sakif/account-scaffold/internal/model"
)

// CreateToken inserts a token record. The key is the primary key, so a
// collision surfaces as a DuplicateError on "key"; an unknown account
// violates the foreign key and is reported as not found.
func (db *DB) CreateToken(ctx context.Context, token *model.Token) error {
	now := time.Now().UTC()

	var expiresAt sql.NullTime
	if token.ExpiresAt != nil {
		expiresAt = sql.NullTime{Time: token.ExpiresAt.UTC(), Valid: true}
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO tokens (key, account_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		token.Key,
		token.AccountID,
		now,
		expiresAt,
	)
	if err != nil {
		if code, ok := sqliteCode(err); ok {
			switch code {
			case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
				return apperror.Duplicate("token", "key")
			case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
				return apperror.NotFound("account", token.AccountID)
			}
		}
		return fmt.Errorf("sqlite: inserting token for account %s: %w", token.AccountID, err)
	}

	token.CreatedAt = now
	return nil
}

// GetToken looks a token up by key.
func (db *DB) GetToken(ctx context.Context, key string) (*model.Token, error) {
	var (
		t         model.Token
		expiresAt sql.NullTime
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT key, account_id, created_at, expires_at FROM tokens WHERE key = ?`, key,
	).Scan(&t.Key, &t.AccountID, &t.CreatedAt, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// The key itself is a secret; keep it out of the message.
			return nil, apperror.NotFound("token", "<redacted>")
		}
		return nil, fmt.Errorf("sqlite: getting token: %w", err)
	}

	if expiresAt.Valid {
		exp := expiresAt.Time
		t.ExpiresAt = &exp
	}
	return &t, nil
}

// DeleteToken removes a token. Deleting a missing key is not an error.
func (db *DB) DeleteToken(ctx context.Context, key string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM tokens WHERE key = ?`, key); err != nil {
		return fmt.Errorf("sqlite: deleting token: %w", err)
	}
	return nil
}
