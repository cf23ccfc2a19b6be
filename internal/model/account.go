// Package model defines the data structures used throughout the application.
package model

import "time"

// Account is a registered user identity.
//
// PasswordHash carries the `json:"-"` tag so that no code path can leak it
// by accident: even if an Account is passed straight to writeJSON, the hash
// is dropped. Handlers still respond with AccountSummary, which has no such
// field at all.
//
// IsSuperuser can only be set through the createsuperuser command; public
// registration always stores false.
type Account struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsSuperuser  bool      `json:"-"`
	CreatedAt    time.Time `json:"-"`
}

// AccountSummary is the outward representation of an account.
type AccountSummary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Summary returns the outward representation of a.
func (a *Account) Summary() AccountSummary {
	return AccountSummary{
		ID:       a.ID,
		Username: a.Username,
		Email:    a.Email,
	}
}
