package sqlite

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/account-scaffold/internal/apperror"
	"github.com/sakif/account-scaffold/internal/model"
)

// newTestDB creates a fresh in-memory database for each test.
// ":memory:" databases vanish when closed, so tests never see each other's data.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	// t.Cleanup registers a function to run when the test finishes.
	t.Cleanup(func() { db.Close() })
	return db
}

// createTestAccount creates an account and fails the test if it errors.
func createTestAccount(t *testing.T, db *DB, username, email string) *model.Account {
	t.Helper()
	a := &model.Account{Username: username, Email: email, PasswordHash: "hash"}
	if err := db.CreateAccount(context.Background(), a); err != nil {
		t.Fatalf("failed to create test account: %v", err)
	}
	return a
}

// =========================================================================
// CREATE TESTS
// =========================================================================

func TestCreateAccount(t *testing.T) {
	db := newTestDB(t)

	a := &model.Account{Username: "test_user", Email: "test_user@foothub.com", PasswordHash: "hash"}
	require.NoError(t, db.CreateAccount(context.Background(), a))

	assert.NotEmpty(t, a.ID)
	assert.False(t, a.CreatedAt.IsZero())

	got, err := db.GetAccountByID(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, "test_user", got.Username)
	assert.Equal(t, "test_user@foothub.com", got.Email)
	assert.Equal(t, "hash", got.PasswordHash)
	assert.False(t, got.IsSuperuser)
	assert.WithinDuration(t, a.CreatedAt, got.CreatedAt, time.Second)
}

func TestCreateAccount_Superuser(t *testing.T) {
	db := newTestDB(t)

	a := &model.Account{Username: "root", Email: "root@foothub.com", PasswordHash: "hash", IsSuperuser: true}
	require.NoError(t, db.CreateAccount(context.Background(), a))

	got, err := db.GetAccountByUsername(context.Background(), "root")
	require.NoError(t, err)
	assert.True(t, got.IsSuperuser)
}

func TestCreateAccount_Duplicates(t *testing.T) {
	tests := []struct {
		name       string
		username   string
		email      string
		wantFields []string
		wantIs     []error
	}{
		{
			name:       "same username",
			username:   "test_user",
			email:      "other@foothub.com",
			wantFields: []string{"username"},
			wantIs:     []error{apperror.ErrConflict, apperror.ErrDuplicateUsername},
		},
		{
			name:       "same email",
			username:   "other_user",
			email:      "test_user@foothub.com",
			wantFields: []string{"email"},
			wantIs:     []error{apperror.ErrConflict, apperror.ErrDuplicateEmail},
		},
		{
			name:       "both",
			username:   "test_user",
			email:      "test_user@foothub.com",
			wantFields: []string{"username", "email"},
			wantIs:     []error{apperror.ErrDuplicateUsername, apperror.ErrDuplicateEmail},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newTestDB(t)
			createTestAccount(t, db, "test_user", "test_user@foothub.com")

			err := db.CreateAccount(context.Background(), &model.Account{
				Username: tt.username, Email: tt.email, PasswordHash: "hash",
			})

			var dup *apperror.DuplicateError
			require.True(t, errors.As(err, &dup), "got %v", err)
			assert.Equal(t, tt.wantFields, dup.Fields)
			for _, target := range tt.wantIs {
				assert.ErrorIs(t, err, target)
			}

			n, err := db.CountAccounts(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 1, n, "a rejected insert must not persist anything")
		})
	}
}

// Username and email collide with two different existing accounts.
func TestCreateAccount_DuplicatesAcrossAccounts(t *testing.T) {
	db := newTestDB(t)
	createTestAccount(t, db, "alice", "alice@foothub.com")
	createTestAccount(t, db, "bob", "bob@foothub.com")

	err := db.CreateAccount(context.Background(), &model.Account{
		Username: "alice", Email: "bob@foothub.com", PasswordHash: "hash",
	})

	var dup *apperror.DuplicateError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, []string{"username", "email"}, dup.Fields)
}

// Usernames are case-sensitive: "Test_User" is a different account.
func TestCreateAccount_UsernameCaseSensitive(t *testing.T) {
	db := newTestDB(t)
	createTestAccount(t, db, "test_user", "a@foothub.com")

	err := db.CreateAccount(context.Background(), &model.Account{
		Username: "Test_User", Email: "b@foothub.com", PasswordHash: "hash",
	})
	assert.NoError(t, err)
}

// Concurrent registrations of the same username: exactly one wins.
func TestCreateAccount_ConcurrentSameUsername(t *testing.T) {
	db := newTestDB(t)

	const workers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := db.CreateAccount(context.Background(), &model.Account{
				Username:     "racer",
				Email:        fmt.Sprintf("racer%d@foothub.com", i),
				PasswordHash: "hash",
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, apperror.ErrDuplicateUsername):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, conflicts)
}

// =========================================================================
// GET TESTS
// =========================================================================

func TestGetAccount_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetAccountByID(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = db.GetAccountByUsername(context.Background(), "nobody")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestGetAccountByUsername(t *testing.T) {
	db := newTestDB(t)
	created := createTestAccount(t, db, "test_user", "test_user@foothub.com")

	got, err := db.GetAccountByUsername(context.Background(), "test_user")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
}

// =========================================================================
// UPDATE TESTS
// =========================================================================

func TestUpdateAccount(t *testing.T) {
	db := newTestDB(t)
	a := createTestAccount(t, db, "test_user", "test_user@foothub.com")

	a.Username = "renamed"
	a.Email = "renamed@foothub.com"
	require.NoError(t, db.UpdateAccount(context.Background(), a))

	got, err := db.GetAccountByID(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Username)
	assert.Equal(t, "renamed@foothub.com", got.Email)
}

// Saving an account with its own unchanged values is not a collision.
func TestUpdateAccount_KeepsOwnValues(t *testing.T) {
	db := newTestDB(t)
	a := createTestAccount(t, db, "test_user", "test_user@foothub.com")

	assert.NoError(t, db.UpdateAccount(context.Background(), a))
}

func TestUpdateAccount_Duplicate(t *testing.T) {
	db := newTestDB(t)
	createTestAccount(t, db, "alice", "alice@foothub.com")
	bob := createTestAccount(t, db, "bob", "bob@foothub.com")

	bob.Email = "alice@foothub.com"
	err := db.UpdateAccount(context.Background(), bob)

	var dup *apperror.DuplicateError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, []string{"email"}, dup.Fields)
}

func TestUpdateAccount_NotFound(t *testing.T) {
	db := newTestDB(t)

	err := db.UpdateAccount(context.Background(), &model.Account{ID: "ghost", Username: "ghost", Email: "ghost@foothub.com"})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

// =========================================================================
// DELETE TESTS
// =========================================================================

func TestDeleteAccount_CascadesTokens(t *testing.T) {
	db := newTestDB(t)
	a := createTestAccount(t, db, "test_user", "test_user@foothub.com")
	require.NoError(t, db.CreateToken(context.Background(), &model.Token{Key: "k1", AccountID: a.ID}))

	require.NoError(t, db.DeleteAccount(context.Background(), a.ID))

	_, err := db.GetAccountByID(context.Background(), a.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	_, err = db.GetToken(context.Background(), "k1")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestDeleteAccount_NotFound(t *testing.T) {
	db := newTestDB(t)

	assert.ErrorIs(t, db.DeleteAccount(context.Background(), "ghost"), apperror.ErrNotFound)
}

func TestCountAccounts(t *testing.T) {
	db := newTestDB(t)

	n, err := db.CountAccounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	createTestAccount(t, db, "a", "a@foothub.com")
	createTestAccount(t, db, "b", "b@foothub.com")

	n, err = db.CountAccounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestPing(t *testing.T) {
	assert.NoError(t, newTestDB(t).Ping(context.Background()))
}
