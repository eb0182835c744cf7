package store

import (
	"context"
	"database/sql"
	"time"

	"islandregistry/internal/models"
	"islandregistry/internal/regerr"
)

// CreateAccount inserts a new human account with an already-hashed
// password, rejecting a duplicate username the way Publish rejects a
// duplicate package claim.
func (s *Store) CreateAccount(ctx context.Context, username, passwordHash string) (*models.Account, error) {
	now := time.Now().UTC()
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO accounts (username, password_hash, created_at) VALUES (?, ?, ?)`,
		username, passwordHash, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, regerr.New(regerr.KindForbidden, "username already registered").
				WithSubReason("name-claimed")
		}
		return nil, regerr.Wrap(regerr.KindInternal, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, regerr.Wrap(regerr.KindInternal, err)
	}
	return &models.Account{ID: id, Username: username, PasswordHash: passwordHash, CreatedAt: now}, nil
}

// GetAccountByUsername looks up an account for login.
func (s *Store) GetAccountByUsername(ctx context.Context, username string) (*models.Account, error) {
	var a models.Account
	err := s.DB.GetContext(ctx, &a,
		`SELECT id, username, password_hash, created_at FROM accounts WHERE username = ?`, username)
	if err == sql.ErrNoRows {
		return nil, regerr.New(regerr.KindTokenInvalid, "invalid credentials")
	}
	if err != nil {
		return nil, regerr.Wrap(regerr.KindInternal, err)
	}
	return &a, nil
}
