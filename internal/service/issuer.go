package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/account-scaffold/internal/apperror"
	"github.com/sakif/account-scaffold/internal/auth"
	"github.com/sakif/account-scaffold/internal/model"
	"github.com/sakif/account-scaffold/internal/repository"
)

// maxIssueAttempts bounds retries after a key collision. With 160 random
// bits a single retry is already astronomically unlikely.
const maxIssueAttempts = 3

// TokenIssuer mints a token key and persists the token record.
//
// Issuance is append-only: every call creates a new record, and earlier
// tokens of the same account keep working.
type TokenIssuer struct {
	tokens repository.TokenRepository
	keys   auth.KeyGenerator
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewTokenIssuer creates a TokenIssuer. A ttl of zero issues tokens that
// never expire.
func NewTokenIssuer(tokens repository.TokenRepository, keys auth.KeyGenerator, ttl time.Duration, logger *slog.Logger) *TokenIssuer {
	return &TokenIssuer{
		tokens: tokens,
		keys:   keys,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Issue creates a new token for account.
func (i *TokenIssuer) Issue(ctx context.Context, account *model.Account) (*model.Token, error) {
	var expiresAt *time.Time
	if i.ttl > 0 {
		exp := i.now().Add(i.ttl).UTC().Truncate(time.Second)
		expiresAt = &exp
	}

	for attempt := 1; attempt <= maxIssueAttempts; attempt++ {
		key, err := i.keys.NewKey(account.ID, expiresAt)
		if err != nil {
			return nil, fmt.Errorf("service/issuer: minting key: %w", err)
		}

		token := &model.Token{Key: key, AccountID: account.ID, ExpiresAt: expiresAt}
		err = i.tokens.CreateToken(ctx, token)
		if err == nil {
			return token, nil
		}

		var dup *apperror.DuplicateError
		if !errors.As(err, &dup) {
			return nil, fmt.Errorf("service/issuer: storing token for account %s: %w", account.ID, err)
		}
		i.logger.Warn("token key collision, retrying",
			slog.String("accountID", account.ID),
			slog.Int("attempt", attempt),
		)
	}

	return nil, fmt.Errorf("service/issuer: no unique key after %d attempts", maxIssueAttempts)
}
