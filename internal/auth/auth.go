// Package auth implements the bearer-token authentication boundary:
// bcrypt password verification and JWT issuance/validation with a
// jti-keyed revocation table, mirroring the source's active_tokens
// bookkeeping (a token minted for a user invalidates that user's prior
// token).
package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// TokenTTL is how long an issued access token remains valid.
const TokenTTL = 14 * 24 * time.Hour

// ErrInvalidCredentials is returned when a username/password pair does
// not match, or the username is unknown.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// ErrTokenRevoked is returned when a token's jti no longer matches the
// holder's active token (a newer token was issued since).
var ErrTokenRevoked = errors.New("auth: token revoked")

// Claims is the JWT claim set issued for an authenticated session.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

// Authenticator verifies credentials and issues/validates bearer
// tokens. It holds exactly one configured user, matching the source's
// single-operator design (USERNAME/PASSWORD_HASH in the environment).
type Authenticator struct {
	secretKey    []byte
	username     string
	passwordHash string

	mu           sync.Mutex
	activeTokens map[string]string // username -> current jti
}

// NewAuthenticator builds an Authenticator for the single configured
// user.
func NewAuthenticator(secretKey, username, passwordHash string) *Authenticator {
	return &Authenticator{
		secretKey:    []byte(secretKey),
		username:     username,
		passwordHash: passwordHash,
		activeTokens: make(map[string]string),
	}
}

// IssueToken verifies username/password and, on success, mints a new
// signed JWT. Minting a token revokes any token previously issued to
// the same user: only the most recent one validates.
func (a *Authenticator) IssueToken(username, password string) (string, error) {
	if username != a.username {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.passwordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	jti := uuid.New().String()
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
		},
		Username: username,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secretKey)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	a.mu.Lock()
	a.activeTokens[username] = jti
	a.mu.Unlock()

	return signed, nil
}

// Validate parses and verifies a bearer token, checking its signature,
// expiry, and that its jti is still the active one for its subject.
func (a *Authenticator) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", t.Header["alg"])
		}
		return a.secretKey, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}

	a.mu.Lock()
	current, ok := a.activeTokens[claims.Username]
	a.mu.Unlock()
	if !ok || current != claims.ID {
		return nil, ErrTokenRevoked
	}

	return claims, nil
}
