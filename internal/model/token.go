package model

import "time"

// Token is an opaque bearer secret authorising requests as one account.
//
// Tokens are separate records that point back at their account. Issuing a
// token never mutates the account, and an account may hold many tokens.
// ExpiresAt is nil when tokens are configured to never expire.
type Token struct {
	Key       string     `json:"token"`
	AccountID string     `json:"-"`
	CreatedAt time.Time  `json:"-"`
	ExpiresAt *time.Time `json:"-"`
}

// Expired reports whether t has an expiry at or before now.
func (t *Token) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && !now.Before(*t.ExpiresAt)
}
