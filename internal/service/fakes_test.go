package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/sakif/account-scaffold/internal/apperror"
	"github.com/sakif/account-scaffold/internal/auth"
	"github.com/sakif/account-scaffold/internal/model"
	"github.com/sakif/account-scaffold/internal/validator"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeStore is an in-memory AccountRepository + TokenRepository.
// Using a fake (not a mock framework) keeps tests easy to read: you can see
// exactly what the fake does. It enforces uniqueness the way a real store
// does, at insert time.
type fakeStore struct {
	mu       sync.Mutex
	accounts map[string]*model.Account // keyed by ID
	tokens   map[string]*model.Token   // keyed by key
	nextID   int

	// set to a non-nil error to simulate a database failure
	createAccountErr error
	createTokenErr   error
	getAccountErr    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts: make(map[string]*model.Account),
		tokens:   make(map[string]*model.Token),
	}
}

func (f *fakeStore) duplicates(a *model.Account) []string {
	var fields []string
	for _, other := range f.accounts {
		if other.ID == a.ID {
			continue
		}
		if other.Username == a.Username && !contains(fields, "username") {
			fields = append(fields, "username")
		}
		if other.Email == a.Email && !contains(fields, "email") {
			fields = append(fields, "email")
		}
	}
	if len(fields) == 2 && fields[0] == "email" {
		fields[0], fields[1] = "username", "email"
	}
	return fields
}

func contains(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}

func (f *fakeStore) CreateAccount(_ context.Context, a *model.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createAccountErr != nil {
		return f.createAccountErr
	}
	if fields := f.duplicates(a); len(fields) > 0 {
		return apperror.Duplicate("user", fields...)
	}
	f.nextID++
	a.ID = fmt.Sprintf("acc-%d", f.nextID)
	a.CreatedAt = time.Now()
	cp := *a
	f.accounts[a.ID] = &cp
	return nil
}

func (f *fakeStore) GetAccountByID(_ context.Context, id string) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getAccountErr != nil {
		return nil, f.getAccountErr
	}
	a, ok := f.accounts[id]
	if !ok {
		return nil, apperror.NotFound("account", id)
	}
	cp := *a
	return &cp, nil
}

func (f *fakeStore) GetAccountByUsername(_ context.Context, username string) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getAccountErr != nil {
		return nil, f.getAccountErr
	}
	for _, a := range f.accounts {
		if a.Username == username {
			cp := *a
			return &cp, nil
		}
	}
	return nil, apperror.NotFound("account", username)
}

func (f *fakeStore) UpdateAccount(_ context.Context, a *model.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.accounts[a.ID]; !ok {
		return apperror.NotFound("account", a.ID)
	}
	if fields := f.duplicates(a); len(fields) > 0 {
		return apperror.Duplicate("user", fields...)
	}
	cp := *a
	f.accounts[a.ID] = &cp
	return nil
}

func (f *fakeStore) DeleteAccount(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.accounts[id]; !ok {
		return apperror.NotFound("account", id)
	}
	delete(f.accounts, id)
	for k, t := range f.tokens {
		if t.AccountID == id {
			delete(f.tokens, k)
		}
	}
	return nil
}

func (f *fakeStore) CountAccounts(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.accounts), nil
}

func (f *fakeStore) CreateToken(_ context.Context, t *model.Token) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createTokenErr != nil {
		return f.createTokenErr
	}
	if _, ok := f.tokens[t.Key]; ok {
		return apperror.Duplicate("token", "key")
	}
	t.CreatedAt = time.Now()
	cp := *t
	f.tokens[t.Key] = &cp
	return nil
}

func (f *fakeStore) GetToken(_ context.Context, key string) (*model.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tokens[key]
	if !ok {
		return nil, apperror.NotFound("token", "<redacted>")
	}
	cp := *t
	return &cp, nil
}

func (f *fakeStore) DeleteToken(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tokens, key)
	return nil
}

func (f *fakeStore) tokenCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tokens)
}

// sequenceKeys hands out keys from a fixed list, then falls back to random
// ones. It makes key collisions reproducible.
type sequenceKeys struct {
	keys []string
}

func (s *sequenceKeys) NewKey(accountID string, exp *time.Time) (string, error) {
	if len(s.keys) == 0 {
		return auth.OpaqueKeys{}.NewKey(accountID, exp)
	}
	k := s.keys[0]
	s.keys = s.keys[1:]
	return k, nil
}

// fakeLimiter records calls and throttles when told to.
type fakeLimiter struct {
	throttle bool
	checkErr error
	fails    map[string]int
	resets   int
}

func newFakeLimiter() *fakeLimiter { return &fakeLimiter{fails: make(map[string]int)} }

func (l *fakeLimiter) Check(context.Context, string) error {
	if l.throttle {
		return apperror.Throttled("Request was throttled.")
	}
	return l.checkErr
}

func (l *fakeLimiter) Fail(_ context.Context, username string) error {
	l.fails[username]++
	return nil
}

func (l *fakeLimiter) Reset(context.Context, string) error {
	l.resets++
	return nil
}

var errDB = errors.New("database is on fire")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ptr(s string) *string { return &s }

func creds(username, email, password string) validator.Credentials {
	return validator.Credentials{Username: ptr(username), Email: ptr(email), Password: ptr(password)}
}

// testEnv bundles the services under test with their fakes.
type testEnv struct {
	store    *fakeStore
	limiter  *fakeLimiter
	keys     *sequenceKeys
	issuer   *TokenIssuer
	accounts *AccountService
	auth     *AuthService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := newFakeStore()
	limiter := newFakeLimiter()
	keys := &sequenceKeys{}
	hasher := auth.NewPasswordServiceForTest()
	v := validator.New(nil)
	logger := discardLogger()

	issuer := NewTokenIssuer(store, keys, 0, logger)
	return &testEnv{
		store:    store,
		limiter:  limiter,
		keys:     keys,
		issuer:   issuer,
		accounts: NewAccountService(store, v, hasher, issuer, logger),
		auth: NewAuthService(AuthDeps{
			Accounts:  store,
			Tokens:    store,
			Issuer:    issuer,
			Hasher:    hasher,
			Validator: v,
			Limiter:   limiter,
			Logger:    logger,
		}),
	}
}

// register creates an account through the public path and fails the test on error.
func (e *testEnv) register(t *testing.T, username, email, password string) *Registration {
	t.Helper()
	reg, err := e.accounts.Register(context.Background(), creds(username, email, password))
	if err != nil {
		t.Fatalf("Register(%q) error = %v", username, err)
	}
	return reg
}
