// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// Services take repository interfaces, never a concrete store, and return
// domain errors from apperror. The handler translates those into status
// codes; nothing in this package knows about HTTP.
//
// THE DEPENDENCY CHAIN:
//
//	server.go creates:  Store → TokenIssuer → AccountService / AuthService → Handler
//	At runtime:         Handler calls Service calls Repository calls DB
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/account-scaffold/internal/apperror"
	"github.com/sakif/account-scaffold/internal/auth"
	"github.com/sakif/account-scaffold/internal/model"
	"github.com/sakif/account-scaffold/internal/repository"
	"github.com/sakif/account-scaffold/internal/validator"
)

// MsgPermissionDenied is the 403 detail for acting on another account.
const MsgPermissionDenied = "You do not have permission to perform this action."

// RegistrationState tracks how far a registration got.
//
//	Validating → Persisting → Issuing → Complete
//	Validating → Rejected   (field errors)
//	Persisting → Rejected   (username or email taken)
type RegistrationState int

const (
	StateValidating RegistrationState = iota
	StatePersisting
	StateIssuing
	StateComplete
	StateRejected
)

func (s RegistrationState) String() string {
	switch s {
	case StateValidating:
		return "validating"
	case StatePersisting:
		return "persisting"
	case StateIssuing:
		return "issuing"
	case StateComplete:
		return "complete"
	case StateRejected:
		return "rejected"
	}
	return "unknown"
}

// Registration is the outcome of Register. Account and Token are set only
// once the corresponding step has succeeded.
type Registration struct {
	State   RegistrationState
	Account *model.Account
	Token   *model.Token
}

// AccountService owns account creation and the owner-restricted profile
// operations.
type AccountService struct {
	accounts  repository.AccountRepository
	validator *validator.Validator
	hasher    auth.PasswordHasher
	issuer    *TokenIssuer
	logger    *slog.Logger
}

// NewAccountService creates an AccountService with all required dependencies.
func NewAccountService(
	accounts repository.AccountRepository,
	v *validator.Validator,
	hasher auth.PasswordHasher,
	issuer *TokenIssuer,
	logger *slog.Logger,
) *AccountService {
	return &AccountService{
		accounts:  accounts,
		validator: v,
		hasher:    hasher,
		issuer:    issuer,
		logger:    logger,
	}
}

// Register validates creds, stores a new account and issues its first token.
//
// A Rejected registration returns apperror.FieldErrors (validation) or an
// *apperror.DuplicateError (uniqueness), and nothing is persisted. Any
// other error is internal. If issuing the token fails the account is
// removed again, so a registration either completes or leaves no trace.
func (s *AccountService) Register(ctx context.Context, creds validator.Credentials) (*Registration, error) {
	reg := &Registration{State: StateValidating}
	creds = creds.Trimmed()

	if err := s.validator.Validate(creds).Err(); err != nil {
		reg.State = StateRejected
		s.logger.Info("registration rejected", slog.String("reason", "validation"))
		return reg, err
	}

	reg.State = StatePersisting
	account, err := s.create(ctx, *creds.Username, *creds.Email, *creds.Password, false)
	if err != nil {
		var dup *apperror.DuplicateError
		if errors.As(err, &dup) {
			reg.State = StateRejected
			s.logger.Info("registration rejected",
				slog.String("reason", "duplicate"),
				slog.Any("fields", dup.Fields),
			)
		}
		return reg, err
	}
	reg.Account = account

	reg.State = StateIssuing
	token, err := s.issuer.Issue(ctx, account)
	if err != nil {
		if delErr := s.accounts.DeleteAccount(ctx, account.ID); delErr != nil {
			s.logger.Error("could not roll back account after token failure",
				slog.String("accountID", account.ID),
				slog.String("error", delErr.Error()),
			)
		}
		return reg, fmt.Errorf("service/account: issuing first token: %w", err)
	}
	reg.Token = token
	reg.State = StateComplete

	s.logger.Info("account registered",
		slog.String("accountID", account.ID),
		slog.String("username", account.Username),
	)
	return reg, nil
}

// CreateSuperuser stores an account with the superuser flag set. It goes
// through the same validation as Register but issues no token.
func (s *AccountService) CreateSuperuser(ctx context.Context, creds validator.Credentials) (*model.Account, error) {
	creds = creds.Trimmed()
	if err := s.validator.Validate(creds).Err(); err != nil {
		return nil, err
	}

	account, err := s.create(ctx, *creds.Username, *creds.Email, *creds.Password, true)
	if err != nil {
		return nil, err
	}

	s.logger.Info("superuser created",
		slog.String("accountID", account.ID),
		slog.String("username", account.Username),
	)
	return account, nil
}

func (s *AccountService) create(ctx context.Context, username, email, password string, superuser bool) (*model.Account, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("service/account: hashing password: %w", err)
	}

	account := &model.Account{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		IsSuperuser:  superuser,
	}
	if err := s.accounts.CreateAccount(ctx, account); err != nil {
		var dup *apperror.DuplicateError
		if errors.As(err, &dup) {
			return nil, err
		}
		return nil, fmt.Errorf("service/account: creating account: %w", err)
	}
	return account, nil
}

// Get returns the account named username, provided caller owns it.
//
// ORDER OF CHECKS: an unknown username is 404 even for a caller who could
// never see it, and only an existing account of someone else is 403.
func (s *AccountService) Get(ctx context.Context, caller *model.Account, username string) (*model.Account, error) {
	target, err := s.accounts.GetAccountByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("service/account: fetching %q: %w", username, err)
	}

	if caller == nil || caller.ID != target.ID {
		return nil, apperror.Forbidden(MsgPermissionDenied)
	}
	return target, nil
}

// ProfileUpdate carries the fields of a PUT or PATCH. nil means absent.
type ProfileUpdate struct {
	Username *string
	Email    *string
}

// Update changes the caller's username and/or email. With partial false
// (PUT) both fields are required; with partial true (PATCH) absent fields
// keep their value.
func (s *AccountService) Update(ctx context.Context, caller *model.Account, username string, upd ProfileUpdate, partial bool) (*model.Account, error) {
	target, err := s.Get(ctx, caller, username)
	if err != nil {
		return nil, err
	}

	upd.Username, upd.Email = validator.Trim(upd.Username), validator.Trim(upd.Email)
	if err := s.validator.ValidateProfile(upd.Username, upd.Email, !partial).Err(); err != nil {
		return nil, err
	}

	updated := *target
	if upd.Username != nil {
		updated.Username = *upd.Username
	}
	if upd.Email != nil {
		updated.Email = *upd.Email
	}

	if err := s.accounts.UpdateAccount(ctx, &updated); err != nil {
		var dup *apperror.DuplicateError
		if errors.As(err, &dup) || errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("service/account: updating %s: %w", target.ID, err)
	}

	s.logger.Info("account updated", slog.String("accountID", updated.ID))
	return &updated, nil
}

// Delete removes the caller's own account together with its tokens.
func (s *AccountService) Delete(ctx context.Context, caller *model.Account, username string) error {
	target, err := s.Get(ctx, caller, username)
	if err != nil {
		return err
	}

	if err := s.accounts.DeleteAccount(ctx, target.ID); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return err
		}
		return fmt.Errorf("service/account: deleting %s: %w", target.ID, err)
	}

	s.logger.Info("account deleted", slog.String("accountID", target.ID))
	return nil
}
