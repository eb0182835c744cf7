package store

import (
	"context"
	"testing"

	"islandregistry/internal/regerr"
)

func TestCreateAccountAndLookup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.CreateAccount(ctx, "alice", "hashed"); err != nil {
		t.Fatalf("create account: %v", err)
	}
	a, err := s.GetAccountByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if a.Username != "alice" || a.PasswordHash != "hashed" {
		t.Fatalf("unexpected account: %+v", a)
	}
	if a.PrincipalID() != "user:alice" {
		t.Fatalf("unexpected principal id: %s", a.PrincipalID())
	}
}

func TestCreateAccountDuplicateUsernameRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.CreateAccount(ctx, "alice", "hashed"); err != nil {
		t.Fatalf("create account: %v", err)
	}
	_, err := s.CreateAccount(ctx, "alice", "other")
	if regerr.KindOf(err) != regerr.KindForbidden {
		t.Fatalf("expected forbidden/name-claimed for a duplicate username, got %v", err)
	}
}

func TestGetAccountByUsernameMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetAccountByUsername(context.Background(), "nope")
	if regerr.KindOf(err) != regerr.KindTokenInvalid {
		t.Fatalf("expected token-invalid for an unknown username, got %v", err)
	}
}
