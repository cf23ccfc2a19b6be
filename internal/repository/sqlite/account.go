package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/account-scaffold/internal/apperror"
	"github.com/sakif/account-scaffold/internal/model"
	"github.com/sakif/account-scaffold/internal/repository"
)

// compile-time check that *DB implements repository.Store
var _ repository.Store = (*DB)(nil)

const accountColumns = `id, username, email, password_hash, is_superuser, created_at`

// CreateAccount inserts a new account.
//
// UNIQUENESS WITHOUT CHECK-THEN-INSERT:
// A SELECT followed by an INSERT leaves a window in which a concurrent
// request can insert the same username. Instead the INSERT runs straight
// away and the unique indexes on username and email decide. When one fires,
// duplicateAccount works out which fields collided.
//
// ID GENERATION WITH xid:
// 20 chars, URL-safe, sortable by creation time. Example: "cv37rs3pp9olc6atsptg"
func (db *DB) CreateAccount(ctx context.Context, account *model.Account) error {
	id := xid.New().String()
	now := time.Now().UTC()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO accounts (`+accountColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		id,
		account.Username,
		account.Email,
		account.PasswordHash,
		account.IsSuperuser,
		now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return db.duplicateAccount(ctx, account, "", err)
		}
		return fmt.Errorf("sqlite: inserting account %q: %w", account.Username, err)
	}

	account.ID = id
	account.CreatedAt = now
	return nil
}

// GetAccountByID retrieves an account by its ID.
// Returns apperror.ErrNotFound if no account exists with that ID.
func (db *DB) GetAccountByID(ctx context.Context, id string) (*model.Account, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	return scanAccount(row, "id", id)
}

// GetAccountByUsername retrieves an account by its exact (case-sensitive) username.
func (db *DB) GetAccountByUsername(ctx context.Context, username string) (*model.Account, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE username = ?`, username)
	return scanAccount(row, "username", username)
}

// UpdateAccount rewrites the mutable columns of an existing account.
// Collisions with another account are reported the same way as in CreateAccount.
func (db *DB) UpdateAccount(ctx context.Context, account *model.Account) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE accounts SET username = ?, email = ?, password_hash = ? WHERE id = ?`,
		account.Username,
		account.Email,
		account.PasswordHash,
		account.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return db.duplicateAccount(ctx, account, account.ID, err)
		}
		return fmt.Errorf("sqlite: updating account %s: %w", account.ID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("account", account.ID)
	}
	return nil
}

// DeleteAccount removes an account. Its tokens go with it (ON DELETE CASCADE).
func (db *DB) DeleteAccount(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting account %s: %w", id, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("account", id)
	}
	return nil
}

// CountAccounts returns the number of stored accounts.
func (db *DB) CountAccounts(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: counting accounts: %w", err)
	}
	return n, nil
}

// duplicateAccount turns a unique-index failure into a DuplicateError that
// names every colliding field.
//
// SQLite stops at the first violated index, so its error names only one
// column. A follow-up lookup finds the rest; if that row vanished in the
// meantime the column from the error message is still reported.
func (db *DB) duplicateAccount(ctx context.Context, account *model.Account, selfID string, cause error) error {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT username = ?, email = ? FROM accounts
		 WHERE (username = ? OR email = ?) AND id <> ?`,
		account.Username, account.Email,
		account.Username, account.Email,
		selfID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: resolving duplicate account: %w", err)
	}
	defer rows.Close()

	var usernameTaken, emailTaken bool
	for rows.Next() {
		var u, e bool
		if err := rows.Scan(&u, &e); err != nil {
			return fmt.Errorf("sqlite: scanning duplicate account: %w", err)
		}
		usernameTaken = usernameTaken || u
		emailTaken = emailTaken || e
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlite: iterating duplicate accounts: %w", err)
	}

	msg := cause.Error()
	if !usernameTaken && !emailTaken {
		usernameTaken = strings.Contains(msg, "accounts.username")
		emailTaken = strings.Contains(msg, "accounts.email")
	}

	var fields []string
	if usernameTaken {
		fields = append(fields, "username")
	}
	if emailTaken {
		fields = append(fields, "email")
	}
	if len(fields) == 0 {
		return fmt.Errorf("sqlite: unresolved unique violation: %w", cause)
	}
	return apperror.Duplicate("user", fields...)
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner, by, value string) (*model.Account, error) {
	var a model.Account
	err := row.Scan(
		&a.ID,
		&a.Username,
		&a.Email,
		&a.PasswordHash,
		&a.IsSuperuser,
		&a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("account", value)
		}
		return nil, fmt.Errorf("sqlite: getting account by %s: %w", by, err)
	}
	return &a, nil
}

// sqliteCode extracts the extended result code from a driver error.
func sqliteCode(err error) (int, bool) {
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code(), true
	}
	return 0, false
}

func isUniqueViolation(err error) bool {
	code, ok := sqliteCode(err)
	return ok && (code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY)
}
