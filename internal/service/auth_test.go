package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/account-scaffold/internal/apperror"
	"github.com/sakif/account-scaffold/internal/auth"
	"github.com/sakif/account-scaffold/internal/model"
	"github.com/sakif/account-scaffold/internal/validator"
)

// =========================================================================
// LOGIN TESTS
// =========================================================================

func TestLogin_Success(t *testing.T) {
	env := newTestEnv(t)
	reg := env.register(t, "test_user", "test_user@foothub.com", "test_password")

	tok, err := env.auth.Login(context.Background(), ptr("test_user"), ptr("test_password"))
	require.NoError(t, err)

	assert.Equal(t, reg.Account.ID, tok.AccountID)
	assert.Equal(t, 1, env.limiter.resets)
}

// Each login issues a fresh token; earlier ones keep working.
func TestLogin_IssuesFreshToken(t *testing.T) {
	env := newTestEnv(t)
	reg := env.register(t, "test_user", "test_user@foothub.com", "test_password")

	tok, err := env.auth.Login(context.Background(), ptr("test_user"), ptr("test_password"))
	require.NoError(t, err)

	assert.NotEqual(t, reg.Token.Key, tok.Key)
	assert.Equal(t, 2, env.store.tokenCount())

	_, err = env.auth.AuthenticateToken(context.Background(), reg.Token.Key)
	assert.NoError(t, err)
}

// Wrong password and unknown user must be indistinguishable.
func TestLogin_InvalidCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "test_user", "test_user@foothub.com", "test_password")

	_, wrongPass := env.auth.Login(context.Background(), ptr("test_user"), ptr("wrong_password"))
	_, noUser := env.auth.Login(context.Background(), ptr("ghost"), ptr("test_password"))

	for _, err := range []error{wrongPass, noUser} {
		var appErr *apperror.AppError
		require.True(t, errors.As(err, &appErr))
		assert.ErrorIs(t, err, apperror.ErrInvalidCredentials)
		assert.Equal(t, "Unable to log in with provided credentials.", appErr.Message)
	}
	assert.Equal(t, wrongPass.Error(), noUser.Error())

	assert.Equal(t, 1, env.limiter.fails["test_user"])
	assert.Equal(t, 1, env.limiter.fails["ghost"])
}

func TestLogin_MissingFields(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.auth.Login(context.Background(), nil, nil)

	var fe apperror.FieldErrors
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, apperror.FieldErrors{
		"username": {"This field is required."},
		"password": {"This field is required."},
	}, fe)
}

func TestLogin_Throttled(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "test_user", "test_user@foothub.com", "test_password")
	env.limiter.throttle = true

	_, err := env.auth.Login(context.Background(), ptr("test_user"), ptr("test_password"))
	assert.ErrorIs(t, err, apperror.ErrThrottled)
}

// A broken limiter must not lock everybody out.
func TestLogin_LimiterFailureIsIgnored(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "test_user", "test_user@foothub.com", "test_password")
	env.limiter.checkErr = errors.New("redis down")

	_, err := env.auth.Login(context.Background(), ptr("test_user"), ptr("test_password"))
	assert.NoError(t, err)
}

func TestLogin_StoreFailure(t *testing.T) {
	env := newTestEnv(t)
	env.store.getAccountErr = errDB

	_, err := env.auth.Login(context.Background(), ptr("test_user"), ptr("test_password"))
	assert.ErrorIs(t, err, errDB)
	assert.False(t, errors.Is(err, apperror.ErrInvalidCredentials))
}

// =========================================================================
// TOKEN AUTHENTICATION TESTS
// =========================================================================

func TestAuthenticateToken_Valid(t *testing.T) {
	env := newTestEnv(t)
	reg := env.register(t, "test_user", "test_user@foothub.com", "test_password")

	account, err := env.auth.AuthenticateToken(context.Background(), reg.Token.Key)
	require.NoError(t, err)
	assert.Equal(t, reg.Account.ID, account.ID)
}

func TestAuthenticateToken_Unknown(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.auth.AuthenticateToken(context.Background(), "nope")
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
	assert.EqualError(t, err, auth.MsgInvalidToken)
}

func TestAuthenticateToken_ExpiredIsDeleted(t *testing.T) {
	env := newTestEnv(t)
	reg := env.register(t, "test_user", "test_user@foothub.com", "test_password")

	past := time.Now().Add(-time.Minute)
	require.NoError(t, env.store.CreateToken(context.Background(),
		&model.Token{Key: "old", AccountID: reg.Account.ID, ExpiresAt: &past}))

	_, err := env.auth.AuthenticateToken(context.Background(), "old")
	assert.EqualError(t, err, auth.MsgTokenExpired)

	_, err = env.store.GetToken(context.Background(), "old")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestAuthenticateToken_AccountGone(t *testing.T) {
	env := newTestEnv(t)
	reg := env.register(t, "test_user", "test_user@foothub.com", "test_password")
	// Simulate a stale token whose account vanished.
	env.store.mu.Lock()
	delete(env.store.accounts, reg.Account.ID)
	env.store.mu.Unlock()

	_, err := env.auth.AuthenticateToken(context.Background(), reg.Token.Key)
	assert.EqualError(t, err, auth.MsgInvalidToken)
	assert.Equal(t, 0, env.store.tokenCount())
}

// With JWT keys the signature and the stored record must both agree.
func TestAuthenticateToken_JWT(t *testing.T) {
	store := newFakeStore()
	signer, err := auth.NewTokenService("test-secret-at-least-16-chars!!")
	require.NoError(t, err)
	logger := discardLogger()
	hasher := auth.NewPasswordServiceForTest()
	v := validator.New(nil)
	issuer := NewTokenIssuer(store, signer, time.Hour, logger)
	accounts := NewAccountService(store, v, hasher, issuer, logger)
	svc := NewAuthService(AuthDeps{
		Accounts: store, Tokens: store, Issuer: issuer, Hasher: hasher,
		Validator: v, Signer: signer, Logger: logger,
	})

	reg, err := accounts.Register(context.Background(), creds("test_user", "test_user@foothub.com", "test_password"))
	require.NoError(t, err)
	require.NotNil(t, reg.Token.ExpiresAt)

	account, err := svc.AuthenticateToken(context.Background(), reg.Token.Key)
	require.NoError(t, err)
	assert.Equal(t, reg.Account.ID, account.ID)

	// A tampered signature never reaches the store.
	_, err = svc.AuthenticateToken(context.Background(), reg.Token.Key[:len(reg.Token.Key)-3]+"xxx")
	assert.EqualError(t, err, auth.MsgInvalidToken)

	// A validly signed key that was never stored is rejected too.
	forged, err := signer.NewKey(reg.Account.ID, nil)
	require.NoError(t, err)
	_, err = svc.AuthenticateToken(context.Background(), forged)
	assert.EqualError(t, err, auth.MsgInvalidToken)
}

// =========================================================================
// ISSUER TESTS
// =========================================================================

func TestIssue_RetriesOnCollision(t *testing.T) {
	env := newTestEnv(t)
	reg := env.register(t, "test_user", "test_user@foothub.com", "test_password")

	env.keys.keys = []string{reg.Token.Key, "fresh-key"}
	tok, err := env.issuer.Issue(context.Background(), reg.Account)
	require.NoError(t, err)
	assert.Equal(t, "fresh-key", tok.Key)
}

func TestIssue_GivesUpAfterRepeatedCollisions(t *testing.T) {
	env := newTestEnv(t)
	reg := env.register(t, "test_user", "test_user@foothub.com", "test_password")

	k := reg.Token.Key
	env.keys.keys = []string{k, k, k, k}
	_, err := env.issuer.Issue(context.Background(), reg.Account)
	assert.Error(t, err)
}

func TestIssue_TTLStampsExpiry(t *testing.T) {
	store := newFakeStore()
	issuer := NewTokenIssuer(store, auth.OpaqueKeys{}, time.Hour, discardLogger())
	a := &model.Account{Username: "u", Email: "u@foothub.com"}
	require.NoError(t, store.CreateAccount(context.Background(), a))

	tok, err := issuer.Issue(context.Background(), a)
	require.NoError(t, err)

	require.NotNil(t, tok.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(time.Hour), *tok.ExpiresAt, 2*time.Second)
}
