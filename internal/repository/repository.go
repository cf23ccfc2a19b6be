// Package repository declares the storage contracts the services depend on.
//
// Two backends implement them: repository/sqlite (embedded, default) and
// repository/postgres. repository/redis adds a read-through token cache in
// front of either.
//
// ERROR CONTRACT (every implementation):
//   - a missing row is an *apperror.AppError wrapping apperror.ErrNotFound
//   - a unique-index violation is an *apperror.DuplicateError naming every
//     colliding field ("username", "email" or "key")
package repository

import (
	"context"

	"github.com/sakif/account-scaffold/internal/model"
)

// AccountRepository persists accounts. Username and email uniqueness is
// enforced by the store itself, never by a prior lookup.
type AccountRepository interface {
	// CreateAccount inserts account and fills in ID and CreatedAt.
	CreateAccount(ctx context.Context, account *model.Account) error
	GetAccountByID(ctx context.Context, id string) (*model.Account, error)
	GetAccountByUsername(ctx context.Context, username string) (*model.Account, error)
	// UpdateAccount rewrites username, email and password hash.
	UpdateAccount(ctx context.Context, account *model.Account) error
	// DeleteAccount removes the account and every token it owns.
	DeleteAccount(ctx context.Context, id string) error
	CountAccounts(ctx context.Context) (int, error)
}

// TokenRepository persists token records.
type TokenRepository interface {
	// CreateToken inserts token and fills in CreatedAt. A key collision is a
	// DuplicateError on "key"; callers mint a new key and retry.
	CreateToken(ctx context.Context, token *model.Token) error
	GetToken(ctx context.Context, key string) (*model.Token, error)
	DeleteToken(ctx context.Context, key string) error
}

// Store is a complete storage backend.
type Store interface {
	AccountRepository
	TokenRepository
	Ping(ctx context.Context) error
	Close() error
}
