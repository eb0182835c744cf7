package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"islandregistry/internal/models"
)

// LookupAPIToken implements identity.APITokenLookup: resolve a hashed
// bearer token to the principal and scopes it grants, rejecting
// revoked or expired tokens.
func (s *Store) LookupAPIToken(ctx context.Context, tokenHash string) (string, []string, error) {
	var t models.APIToken
	err := s.DB.GetContext(ctx, &t,
		`SELECT id, token_hash, principal_id, name, scopes, created_at, expires_at, last_used_at, revoked
		 FROM api_tokens WHERE token_hash = ?`, tokenHash)
	if err != nil {
		return "", nil, err
	}
	if t.Revoked {
		return "", nil, sql.ErrNoRows
	}
	if t.ExpiresAt != nil && t.ExpiresAt.Before(time.Now().UTC()) {
		return "", nil, sql.ErrNoRows
	}

	now := time.Now().UTC()
	_, _ = s.DB.ExecContext(ctx, `UPDATE api_tokens SET last_used_at = ? WHERE id = ?`, now, t.ID)

	var scopes []string
	if t.Scopes != "" {
		scopes = strings.Split(t.Scopes, ",")
	}
	return t.PrincipalID, scopes, nil
}

// CreateAPIToken stores a newly issued, already-hashed token.
func (s *Store) CreateAPIToken(ctx context.Context, tokenHash, principalID, name string, scopes []string) (int64, error) {
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO api_tokens (token_hash, principal_id, name, scopes, created_at, revoked) VALUES (?, ?, ?, ?, ?, 0)`,
		tokenHash, principalID, name, strings.Join(scopes, ","), time.Now().UTC(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// RevokeAPIToken marks a token unusable without deleting its audit trail.
func (s *Store) RevokeAPIToken(ctx context.Context, tokenHash string) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE api_tokens SET revoked = 1 WHERE token_hash = ?`, tokenHash)
	return err
}
