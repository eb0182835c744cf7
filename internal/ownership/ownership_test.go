package ownership

import (
	"context"
	"testing"

	"islandregistry/internal/identity"
	"islandregistry/internal/regerr"
)

type fakeLookup struct {
	records map[string]*Record
}

func (f *fakeLookup) LookupOwnership(ctx context.Context, name string) (*Record, bool, error) {
	r, ok := f.records[name]
	return r, ok, nil
}

func TestAuthorizeClaimsNewPackage(t *testing.T) {
	reg := New(&fakeLookup{records: map[string]*Record{}})
	d, err := reg.Authorize(context.Background(), &identity.Principal{ID: "alice", Kind: identity.KindAPIToken}, "pokemon_emerald")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.IsClaim {
		t.Fatal("expected a claim decision for a nonexistent package")
	}
}

func TestAuthorizeOwnerAllowed(t *testing.T) {
	reg := New(&fakeLookup{records: map[string]*Record{
		"pkg": {Owner: "alice"},
	}})
	d, err := reg.Authorize(context.Background(), &identity.Principal{ID: "alice", Kind: identity.KindAPIToken}, "pkg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.IsClaim {
		t.Fatal("owner should not be treated as a claim")
	}
}

func TestAuthorizeCollaboratorAllowed(t *testing.T) {
	reg := New(&fakeLookup{records: map[string]*Record{
		"pkg": {Owner: "alice", Collaborators: []string{"bob"}},
	}})
	_, err := reg.Authorize(context.Background(), &identity.Principal{ID: "bob", Kind: identity.KindAPIToken}, "pkg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAuthorizeStrangerDenied(t *testing.T) {
	reg := New(&fakeLookup{records: map[string]*Record{
		"pkg": {Owner: "alice"},
	}})
	_, err := reg.Authorize(context.Background(), &identity.Principal{ID: "mallory", Kind: identity.KindAPIToken}, "pkg")
	if regerr.KindOf(err) != regerr.KindForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
	rerr, ok := err.(*regerr.Error)
	if !ok || rerr.SubReason() != "not-owner" {
		t.Fatalf("expected not-owner sub-reason, got %v", err)
	}
}

func TestAuthorizeTrustedPublisherMatch(t *testing.T) {
	reg := New(&fakeLookup{records: map[string]*Record{
		"pkg": {
			Owner: "alice",
			TrustedPublishers: []TrustedPublisherRule{
				{Provider: "github-actions", Repository: "org/repo", Workflow: "release.yml"},
			},
		},
	}})
	p := &identity.Principal{
		Kind: identity.KindFederated,
		Federated: &identity.FederatedClaims{
			Provider:   "github-actions",
			Repository: "org/repo",
			Workflow:   "release.yml",
		},
	}
	_, err := reg.Authorize(context.Background(), p, "pkg")
	if err != nil {
		t.Fatalf("expected trusted-publisher match to authorize, got %v", err)
	}
}

func TestAuthorizeTrustedPublisherNoMatch(t *testing.T) {
	reg := New(&fakeLookup{records: map[string]*Record{
		"pkg": {
			Owner: "alice",
			TrustedPublishers: []TrustedPublisherRule{
				{Provider: "github-actions", Repository: "org/repo"},
			},
		},
	}})
	p := &identity.Principal{
		Kind: identity.KindFederated,
		Federated: &identity.FederatedClaims{
			Provider:   "github-actions",
			Repository: "org/other-repo",
		},
	}
	_, err := reg.Authorize(context.Background(), p, "pkg")
	if regerr.KindOf(err) != regerr.KindForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestAuthorizeAnonymousRejected(t *testing.T) {
	reg := New(&fakeLookup{records: map[string]*Record{}})
	_, err := reg.Authorize(context.Background(), identity.ResolveAnonymous("1.2.3.4"), "pkg")
	if regerr.KindOf(err) != regerr.KindUnauthenticated {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
}

func TestAuthorizeMutationOnlyOwner(t *testing.T) {
	reg := New(&fakeLookup{records: map[string]*Record{
		"pkg": {Owner: "alice", Collaborators: []string{"bob"}},
	}})
	if _, err := reg.AuthorizeMutation(context.Background(), &identity.Principal{ID: "bob"}, "pkg"); regerr.KindOf(err) != regerr.KindForbidden {
		t.Fatalf("expected collaborator to be rejected for mutation, got %v", err)
	}
	if _, err := reg.AuthorizeMutation(context.Background(), &identity.Principal{ID: "alice"}, "pkg"); err != nil {
		t.Fatalf("expected owner mutation to succeed, got %v", err)
	}
}

func TestInitialTrustedPublisherFederatedClaim(t *testing.T) {
	p := &identity.Principal{
		Kind: identity.KindFederated,
		Federated: &identity.FederatedClaims{Provider: "github-actions", Repository: "org/repo"},
	}
	rule := InitialTrustedPublisher(p)
	if rule == nil || rule.Repository != "org/repo" {
		t.Fatalf("unexpected rule: %+v", rule)
	}
}

func TestInitialTrustedPublisherNonFederated(t *testing.T) {
	p := &identity.Principal{Kind: identity.KindAPIToken}
	if rule := InitialTrustedPublisher(p); rule != nil {
		t.Fatalf("expected nil rule for non-federated principal, got %+v", rule)
	}
}
