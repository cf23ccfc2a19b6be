// Package auth holds the credential primitives: password hashers, token key
// generators and the Token authentication middleware.
//
// TOKEN KEYS
// A token key is the secret a client presents as "Authorization: Token <key>".
// Two formats exist, both behind KeyGenerator:
//   - OpaqueKeys (default): 40 hex characters from 20 random bytes.
//   - TokenService: an HS256 JWT whose subject is the account ID.
//
// Either way the key is persisted and looked up on every request, so
// revocation (account deletion, expiry) behaves the same for both. The JWT
// signature is an extra check done before the lookup: a forged or tampered
// key never reaches the store.
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: algorithm + token type → {"alg":"HS256","typ":"JWT"}
//	- Payload: claims → {"sub":"accountID","jti":"...","exp":1234567890}
//	- Signature: HMAC-SHA256(header+"."+payload, secretKey)
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/xid"
)

const jwtIssuer = "account-scaffold"

var (
	// ErrTokenExpired is returned by Validate for a JWT past its exp claim.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenInvalid covers every other reason a JWT is rejected.
	ErrTokenInvalid = errors.New("auth: invalid token")
)

// TokenService mints and validates signed JWT token keys.
//
// It holds the HMAC secret key used to sign and verify tokens.
// The same secret must be used for both operations, so every instance
// serving the same store needs the same TOKEN_SECRET.
type TokenService struct {
	secret []byte
	now    func() time.Time
}

var _ KeyGenerator = (*TokenService)(nil)

// NewTokenService creates a TokenService with the given secret.
// The secret should be at least 32 bytes of random data in production.
// Example: TOKEN_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: token secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret), now: time.Now}, nil
}

// claims is the JWT payload. "sub" carries the account ID and "jti" a
// random ID so that two keys minted in the same second still differ.
type claims struct {
	jwt.RegisteredClaims
}

// NewKey signs a JWT for accountID. A nil expiresAt produces a token with no
// exp claim; expiry is then governed by the stored record alone.
//
// Signing algorithm: HS256 (HMAC-SHA256)
// - Symmetric: same key for signing and verifying
// - Fast and simple, good for single-service deployments
func (s *TokenService) NewKey(accountID string, expiresAt *time.Time) (string, error) {
	if accountID == "" {
		return "", errors.New("auth: token subject is empty")
	}

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       xid.New().String(),
			Subject:  accountID,
			IssuedAt: jwt.NewNumericDate(s.now()),
			Issuer:   jwtIssuer,
		},
	}
	if expiresAt != nil {
		c.ExpiresAt = jwt.NewNumericDate(*expiresAt)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Validate parses and verifies a JWT string and returns the account ID
// stored in its "sub" claim.
//
// VALIDATION CHECKS (performed by the jwt library):
//   - Signature is valid (wasn't tampered with)
//   - Token is not expired, when it carries an exp claim
//   - Issuer matches (prevents tokens from other apps)
//   - Algorithm is HS256 (prevents algorithm confusion attacks)
//
// ALGORITHM CONFUSION ATTACK:
// Without checking the algorithm, an attacker could send a token signed with
// "none" and the library might accept it. Passing jwt.WithValidMethods prevents this.
func (s *TokenService) Validate(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(jwtIssuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", ErrTokenInvalid
	}
	if c.Subject == "" {
		return "", fmt.Errorf("%w: no subject", ErrTokenInvalid)
	}

	return c.Subject, nil
}
