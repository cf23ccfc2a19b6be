package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sakif/account-scaffold/internal/apperror"
	"github.com/sakif/account-scaffold/internal/model"
	"github.com/sakif/account-scaffold/internal/repository"
)

var _ repository.Store = (*DB)(nil)

// SQLSTATE codes and constraint names from the migrations.
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"

	usernameConstraint = "accounts_username_key"
	emailConstraint    = "accounts_email_key"
)

const accountColumns = `id, username, email, password_hash, is_superuser, created_at`

// CreateAccount inserts the account and lets the unique constraints decide
// whether username and email are free.
func (db *DB) CreateAccount(ctx context.Context, account *model.Account) error {
	id := uuid.New()

	err := db.pool.QueryRow(ctx,
		`INSERT INTO accounts (id, username, email, password_hash, is_superuser)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at`,
		id, account.Username, account.Email, account.PasswordHash, account.IsSuperuser,
	).Scan(&account.CreatedAt)
	if err != nil {
		if pgErr, ok := asPgError(err, uniqueViolation); ok {
			return db.duplicateAccount(ctx, account, uuid.Nil, pgErr)
		}
		return fmt.Errorf("postgres: inserting account %q: %w", account.Username, err)
	}

	account.ID = id.String()
	return nil
}

func (db *DB) GetAccountByID(ctx context.Context, id string) (*model.Account, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, apperror.NotFound("account", id)
	}
	row := db.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, uid)
	return scanAccount(row, "id", id)
}

func (db *DB) GetAccountByUsername(ctx context.Context, username string) (*model.Account, error) {
	row := db.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE username = $1`, username)
	return scanAccount(row, "username", username)
}

func (db *DB) UpdateAccount(ctx context.Context, account *model.Account) error {
	uid, err := uuid.Parse(account.ID)
	if err != nil {
		return apperror.NotFound("account", account.ID)
	}

	tag, err := db.pool.Exec(ctx,
		`UPDATE accounts SET username = $1, email = $2, password_hash = $3 WHERE id = $4`,
		account.Username, account.Email, account.PasswordHash, uid,
	)
	if err != nil {
		if pgErr, ok := asPgError(err, uniqueViolation); ok {
			return db.duplicateAccount(ctx, account, uid, pgErr)
		}
		return fmt.Errorf("postgres: updating account %s: %w", account.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("account", account.ID)
	}
	return nil
}

// DeleteAccount removes the account; tokens follow by ON DELETE CASCADE.
func (db *DB) DeleteAccount(ctx context.Context, id string) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return apperror.NotFound("account", id)
	}

	tag, err := db.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, uid)
	if err != nil {
		return fmt.Errorf("postgres: deleting account %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("account", id)
	}
	return nil
}

func (db *DB) CountAccounts(ctx context.Context) (int, error) {
	var n int
	if err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: counting accounts: %w", err)
	}
	return n, nil
}

// duplicateAccount reports every field that collides with another account.
// Postgres names only the first constraint it tripped over; the lookup
// finds the other one.
func (db *DB) duplicateAccount(ctx context.Context, account *model.Account, self uuid.UUID, cause *pgconn.PgError) error {
	var usernameTaken, emailTaken bool
	err := db.pool.QueryRow(ctx,
		`SELECT COALESCE(bool_or(username = $1), false), COALESCE(bool_or(email = $2), false)
		 FROM accounts
		 WHERE (username = $1 OR email = $2) AND id <> $3`,
		account.Username, account.Email, self,
	).Scan(&usernameTaken, &emailTaken)
	if err != nil {
		return fmt.Errorf("postgres: resolving duplicate account: %w", err)
	}

	switch cause.ConstraintName {
	case usernameConstraint:
		usernameTaken = true
	case emailConstraint:
		emailTaken = true
	}

	var fields []string
	if usernameTaken {
		fields = append(fields, "username")
	}
	if emailTaken {
		fields = append(fields, "email")
	}
	if len(fields) == 0 {
		return fmt.Errorf("postgres: unresolved unique violation: %w", cause)
	}
	return apperror.Duplicate("user", fields...)
}

func scanAccount(row pgx.Row, by, value string) (*model.Account, error) {
	var (
		a  model.Account
		id uuid.UUID
	)
	err := row.Scan(&id, &a.Username, &a.Email, &a.PasswordHash, &a.IsSuperuser, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("account", value)
		}
		return nil, fmt.Errorf("postgres: getting account by %s: %w", by, err)
	}
	a.ID = id.String()
	return &a, nil
}

// asPgError reports whether err is a server error with the given SQLSTATE.
func asPgError(err error, code string) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == code {
		return pgErr, true
	}
	return nil, false
}
