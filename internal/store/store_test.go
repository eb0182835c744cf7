package store

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"islandregistry/internal/identity"
	"islandregistry/internal/regerr"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	s, err := New(db)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func claimParams() PublishParams {
	return PublishParams{
		PackageName:  "pokemon_emerald",
		DisplayGame:  "Pokemon Emerald",
		Version:      "1.0.0",
		MinimumAP:    "0.5.0",
		ManifestJSON: `{"name":"pokemon_emerald","version":"1.0.0"}`,
		EntryPoints:  map[string]string{"pokemon_emerald": "pokemon_emerald.world:World"},
		PublishedBy:  "alice",
		Distributions: []DistributionInput{
			{Filename: "pokemon_emerald-1.0.0-py3_none_any.apworld", PlatformTag: "py3-none-any", Sha256: "abc123", SizeBytes: 42, ExternalURL: "https://example.com/a.apworld"},
		},
		IsClaim: true,
	}
}

func TestPublishClaimsNewPackage(t *testing.T) {
	s := newTestStore(t)
	res, err := s.Publish(context.Background(), claimParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Replay {
		t.Fatal("first publish should not be a replay")
	}

	v, err := s.GetVersion(context.Background(), "pokemon_emerald", "1.0.0")
	if err != nil {
		t.Fatalf("version not found after publish: %v", err)
	}
	if v.PublishedBy != "alice" {
		t.Fatalf("unexpected publisher: %+v", v)
	}

	rec, exists, err := s.LookupOwnership(context.Background(), "pokemon_emerald")
	if err != nil || !exists {
		t.Fatalf("expected ownership record to exist, err=%v", err)
	}
	if rec.Owner != "alice" {
		t.Fatalf("unexpected owner: %+v", rec)
	}
}

func TestPublishIdempotentReplay(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.Publish(ctx, claimParams()); err != nil {
		t.Fatalf("first publish failed: %v", err)
	}

	p := claimParams()
	p.IsClaim = false
	res, err := s.Publish(ctx, p)
	if err != nil {
		t.Fatalf("expected replay to succeed, got error: %v", err)
	}
	if !res.Replay {
		t.Fatal("expected byte-identical re-publish to be recognized as a replay")
	}
}

func TestPublishReplayWithDifferentDistributionsRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.Publish(ctx, claimParams()); err != nil {
		t.Fatalf("first publish failed: %v", err)
	}

	p := claimParams()
	p.IsClaim = false
	p.Distributions = []DistributionInput{
		{Filename: "pokemon_emerald-1.0.0-py3_none_any.apworld", PlatformTag: "py3-none-any", Sha256: "different-digest", SizeBytes: 42, ExternalURL: "https://example.com/a.apworld"},
	}
	_, err := s.Publish(ctx, p)
	if regerr.KindOf(err) != regerr.KindVersionExists {
		t.Fatalf("expected version-exists for a same-manifest, different-distributions re-publish, got %v", err)
	}
}

func TestPublishConflictingVersionRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.Publish(ctx, claimParams()); err != nil {
		t.Fatalf("first publish failed: %v", err)
	}

	p := claimParams()
	p.IsClaim = false
	p.ManifestJSON = `{"name":"pokemon_emerald","version":"1.0.0","description":"different"}`
	_, err := s.Publish(ctx, p)
	if regerr.KindOf(err) != regerr.KindVersionExists {
		t.Fatalf("expected version-exists for a conflicting re-publish, got %v", err)
	}
}

func TestPublishDuplicateClaimRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.Publish(ctx, claimParams()); err != nil {
		t.Fatalf("first publish failed: %v", err)
	}

	p := claimParams()
	p.Version = "1.0.1"
	p.PublishedBy = "mallory"
	_, err := s.Publish(ctx, p)
	if regerr.KindOf(err) != regerr.KindForbidden {
		t.Fatalf("expected forbidden/name-claimed for re-claiming an owned package, got %v", err)
	}
}

func TestYankMarksVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.Publish(ctx, claimParams()); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if err := s.Yank(ctx, "pokemon_emerald", "1.0.0", "alice", "user", "superseded"); err != nil {
		t.Fatalf("yank failed: %v", err)
	}
	v, err := s.GetVersion(ctx, "pokemon_emerald", "1.0.0")
	if err != nil {
		t.Fatalf("get version failed: %v", err)
	}
	if !v.Yanked || v.YankReason != "superseded" {
		t.Fatalf("expected yanked version: %+v", v)
	}
}

func TestYankMissingVersion(t *testing.T) {
	s := newTestStore(t)
	err := s.Yank(context.Background(), "nope", "1.0.0", "alice", "user", "reason")
	if regerr.KindOf(err) != regerr.KindVersionNotFound {
		t.Fatalf("expected version-not-found, got %v", err)
	}
}

func TestAPITokenLookupRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	hash := identity.HashToken("rgtok_abc123")
	if _, err := s.CreateAPIToken(ctx, hash, "alice", "ci token", []string{"publish"}); err != nil {
		t.Fatalf("create token: %v", err)
	}

	principal, scopes, err := s.LookupAPIToken(ctx, hash)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if principal != "alice" || len(scopes) != 1 || scopes[0] != "publish" {
		t.Fatalf("unexpected lookup result: %s %v", principal, scopes)
	}
}

func TestAPITokenLookupRevoked(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	hash := identity.HashToken("rgtok_revoked")
	if _, err := s.CreateAPIToken(ctx, hash, "alice", "", nil); err != nil {
		t.Fatalf("create token: %v", err)
	}
	if err := s.RevokeAPIToken(ctx, hash); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, _, err := s.LookupAPIToken(ctx, hash); err == nil {
		t.Fatal("expected error looking up a revoked token")
	}
}

func TestListPackagesAndVersions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.Publish(ctx, claimParams()); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	pkgs, err := s.ListPackages(ctx, 10, 0)
	if err != nil || len(pkgs) != 1 {
		t.Fatalf("expected one package, got %v err=%v", pkgs, err)
	}

	versions, err := s.ListVersions(ctx, "pokemon_emerald")
	if err != nil || len(versions) != 1 {
		t.Fatalf("expected one version, got %v err=%v", versions, err)
	}
}
