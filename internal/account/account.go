// Package account implements the registry's self-service login surface
// (SPEC_FULL.md ambient stack "admin session password hashing"): human
// users register with a username/password, log in to receive a
// short-lived session token, and use that session to mint the
// long-lived API tokens the Identity Service resolves on publish.
// Modeled on the teacher's register/login handlers in
// internal/api/handlers_auth.go, generalized from the ebuild role
// model to a single account kind.
package account

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"islandregistry/internal/models"
	"islandregistry/internal/regerr"
)

// Store is the persistence dependency this package needs.
type Store interface {
	CreateAccount(ctx context.Context, username, passwordHash string) (*models.Account, error)
	GetAccountByUsername(ctx context.Context, username string) (*models.Account, error)
}

// sessionClaims is the short-lived session token's payload, issued on
// login and required to call the token-issuance endpoint.
type sessionClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// SessionTTL bounds how long a login session can be used to mint API
// tokens before the user must log in again.
const SessionTTL = 30 * time.Minute

// Service registers and authenticates accounts and issues session
// tokens, HS256-signed with a server-held signing key, the same
// algorithm the teacher's internal/auth package uses.
type Service struct {
	store      Store
	signingKey []byte
}

// New creates an account Service over the given store and signing key.
func New(store Store, signingKey []byte) *Service {
	return &Service{store: store, signingKey: signingKey}
}

// Register creates a new account with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, username, password string) (*models.Account, error) {
	if len(password) < 8 {
		return nil, regerr.New(regerr.KindInvalidManifest, "password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, regerr.Wrap(regerr.KindInternal, err)
	}
	return s.store.CreateAccount(ctx, username, string(hash))
}

// Login verifies a password and issues a session token.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	a, err := s.store.GetAccountByUsername(ctx, username)
	if err != nil {
		return "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)) != nil {
		return "", regerr.New(regerr.KindTokenInvalid, "invalid credentials")
	}
	claims := sessionClaims{
		Username: a.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(SessionTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
}

// ResolveSession verifies a session token and returns the account's
// principal ID ("user:"+username).
func (s *Service) ResolveSession(tokenStr string) (string, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}))
	var claims sessionClaims
	_, err := parser.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		return s.signingKey, nil
	})
	if err != nil {
		return "", regerr.Wrap(regerr.KindTokenInvalid, err)
	}
	return "user:" + claims.Username, nil
}
