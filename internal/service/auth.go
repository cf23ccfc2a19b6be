package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sakif/account-scaffold/internal/apperror"
	"github.com/sakif/account-scaffold/internal/auth"
	"github.com/sakif/account-scaffold/internal/model"
	"github.com/sakif/account-scaffold/internal/ratelimit"
	"github.com/sakif/account-scaffold/internal/repository"
	"github.com/sakif/account-scaffold/internal/validator"
)

// LoginLimiter counts failed logins per username. ratelimit.Limiter and
// ratelimit.Nop implement it.
type LoginLimiter interface {
	Check(ctx context.Context, username string) error
	Fail(ctx context.Context, username string) error
	Reset(ctx context.Context, username string) error
}

// AuthService handles login and token authentication.
//
//	AuthHandler (HTTP) → AuthService → AccountRepository / TokenRepository
//	                                 ↘ TokenIssuer, PasswordHasher, LoginLimiter
type AuthService struct {
	accounts  repository.AccountRepository
	tokens    repository.TokenRepository
	issuer    *TokenIssuer
	hasher    auth.PasswordHasher
	validator *validator.Validator
	limiter   LoginLimiter
	// signer is set when keys are JWTs; their signature is checked before
	// the store is consulted.
	signer *auth.TokenService
	logger *slog.Logger
	now    func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// AuthDeps lists AuthService's collaborators. Limiter and Signer are optional.
type AuthDeps struct {
	Accounts  repository.AccountRepository
	Tokens    repository.TokenRepository
	Issuer    *TokenIssuer
	Hasher    auth.PasswordHasher
	Validator *validator.Validator
	Limiter   LoginLimiter
	Signer    *auth.TokenService
	Logger    *slog.Logger
}

// NewAuthService creates an AuthService. Call this in server.go when wiring
// the dependency graph.
func NewAuthService(d AuthDeps) *AuthService {
	limiter := d.Limiter
	if limiter == nil {
		limiter = ratelimit.Nop{}
	}
	return &AuthService{
		accounts:  d.Accounts,
		tokens:    d.Tokens,
		issuer:    d.Issuer,
		hasher:    d.Hasher,
		validator: d.Validator,
		limiter:   limiter,
		signer:    d.Signer,
		logger:    d.Logger,
		now:       time.Now,
	}
}

// Login exchanges a username and password for a fresh token.
//
// An unknown username and a wrong password produce the same error, and
// the unknown-username path still spends one hash verification so that
// response timing does not tell them apart either.
func (s *AuthService) Login(ctx context.Context, username, password *string) (*model.Token, error) {
	username = validator.Trim(username)
	if err := s.validator.ValidateLogin(username, password).Err(); err != nil {
		return nil, err
	}

	if err := s.limiter.Check(ctx, *username); err != nil {
		if errors.Is(err, apperror.ErrThrottled) {
			s.logger.Warn("login throttled", slog.String("username", *username))
			return nil, err
		}
		s.logger.Warn("login limiter unavailable", slog.String("error", err.Error()))
	}

	account, err := s.accounts.GetAccountByUsername(ctx, *username)
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			return nil, fmt.Errorf("service/auth: looking up %q: %w", *username, err)
		}
		_ = s.hasher.Verify(s.timingHash(), *password)
		return nil, s.loginFailed(ctx, *username)
	}

	if err := s.hasher.Verify(account.PasswordHash, *password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, s.loginFailed(ctx, *username)
		}
		return nil, fmt.Errorf("service/auth: verifying password for %s: %w", account.ID, err)
	}

	if err := s.limiter.Reset(ctx, *username); err != nil {
		s.logger.Warn("login limiter reset failed", slog.String("error", err.Error()))
	}

	token, err := s.issuer.Issue(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing token: %w", err)
	}

	s.logger.Info("login succeeded", slog.String("accountID", account.ID))
	return token, nil
}

func (s *AuthService) loginFailed(ctx context.Context, username string) error {
	s.logger.Info("login failed", slog.String("username", username))
	if err := s.limiter.Fail(ctx, username); err != nil {
		s.logger.Warn("login limiter update failed", slog.String("error", err.Error()))
	}
	return apperror.InvalidCredentials()
}

// timingHash is a hash of a throwaway password, made with the configured
// hasher so that verifying against it costs the same as a real check.
func (s *AuthService) timingHash() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash("timing-equaliser-password")
		if err != nil {
			s.logger.Warn("could not prepare timing hash", slog.String("error", err.Error()))
			return
		}
		s.dummyHash = h
	})
	return s.dummyHash
}

// AuthenticateToken resolves a presented key to its account. It implements
// auth.Authenticator.
//
// Every rejection is an *apperror.AppError wrapping ErrUnauthorized with the
// detail to show the client. Expired tokens are deleted on sight.
func (s *AuthService) AuthenticateToken(ctx context.Context, key string) (*model.Account, error) {
	var subject string
	if s.signer != nil {
		sub, err := s.signer.Validate(key)
		switch {
		case errors.Is(err, auth.ErrTokenExpired):
			s.revoke(ctx, key)
			return nil, apperror.Unauthorized(auth.MsgTokenExpired)
		case err != nil:
			return nil, apperror.Unauthorized(auth.MsgInvalidToken)
		}
		subject = sub
	}

	token, err := s.tokens.GetToken(ctx, key)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized(auth.MsgInvalidToken)
		}
		return nil, fmt.Errorf("service/auth: looking up token: %w", err)
	}

	if subject != "" && subject != token.AccountID {
		return nil, apperror.Unauthorized(auth.MsgInvalidToken)
	}

	if token.Expired(s.now()) {
		s.revoke(ctx, key)
		return nil, apperror.Unauthorized(auth.MsgTokenExpired)
	}

	account, err := s.accounts.GetAccountByID(ctx, token.AccountID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			// A cached token may outlive its account for a moment.
			s.revoke(ctx, key)
			return nil, apperror.Unauthorized(auth.MsgInvalidToken)
		}
		return nil, fmt.Errorf("service/auth: loading account %s: %w", token.AccountID, err)
	}

	return account, nil
}

func (s *AuthService) revoke(ctx context.Context, key string) {
	if err := s.tokens.DeleteToken(ctx, key); err != nil {
		s.logger.Warn("could not delete rejected token", slog.String("error", err.Error()))
	}
}
