// Package ownership implements the Ownership Registry (spec §4.7):
// answering "is this principal authorized to publish/yank for this
// package name?" against stored owner, collaborator, and
// trusted-publisher records. Modeled on the claim-or-check flow in
// island_api.routes.register.verify_package_ownership, expressed
// against a store-backed lookup interface the way the teacher's
// handlers consult internal/store rather than querying sqlx directly.
package ownership

import (
	"context"

	"islandregistry/internal/identity"
	"islandregistry/internal/regerr"
)

// TrustedPublisherRule is a standing authorization grant for a
// federated identity matching a repository (and optionally workflow or
// environment) to publish a given package without being listed as a
// collaborator.
type TrustedPublisherRule struct {
	Provider    string
	Repository  string
	Workflow    string // empty matches any workflow
	Environment string // empty matches any environment
}

// matches reports whether claims satisfy this rule, per spec §4.7 rule 3.
func (r TrustedPublisherRule) matches(c *identity.FederatedClaims) bool {
	if c == nil || c.Provider != r.Provider || c.Repository != r.Repository {
		return false
	}
	if r.Workflow != "" && r.Workflow != c.Workflow {
		return false
	}
	if r.Environment != "" && r.Environment != c.Environment {
		return false
	}
	return true
}

// Record is the stored ownership state for one package name.
type Record struct {
	Owner             string
	Collaborators     []string
	TrustedPublishers []TrustedPublisherRule
}

func (r *Record) isCollaborator(principal string) bool {
	if principal == r.Owner {
		return true
	}
	for _, c := range r.Collaborators {
		if c == principal {
			return true
		}
	}
	return false
}

// Lookup is the store dependency: fetch the ownership record for a
// package name, or ok=false if the package does not yet exist.
type Lookup interface {
	LookupOwnership(ctx context.Context, packageName string) (*Record, bool, error)
}

// Registry answers authorization questions against a Lookup.
type Registry struct {
	store Lookup
}

// New creates an ownership Registry over the given store lookup.
func New(store Lookup) *Registry {
	return &Registry{store: store}
}

// Decision is the outcome of an authorization check, distinguishing a
// first-publish claim (spec §4.7 rule 1) from an authorization against
// existing ownership, since the Registration Coordinator commits a new
// ownership record only on a claim.
type Decision struct {
	IsClaim bool
	Record  *Record // nil on a claim; the existing record otherwise
}

// Authorize implements spec §4.7's four rules for a (principal,
// package-name) pair attempting to publish or yank.
func (r *Registry) Authorize(ctx context.Context, p *identity.Principal, packageName string) (*Decision, error) {
	if p == nil || p.Kind == identity.KindAnonymous {
		return nil, regerr.New(regerr.KindUnauthenticated, "publish requires an authenticated principal")
	}

	rec, exists, err := r.store.LookupOwnership(ctx, packageName)
	if err != nil {
		return nil, regerr.Wrap(regerr.KindInternal, err)
	}
	if !exists {
		return &Decision{IsClaim: true}, nil
	}

	if rec.isCollaborator(p.ID) {
		return &Decision{Record: rec}, nil
	}

	if p.Kind == identity.KindFederated {
		for _, rule := range rec.TrustedPublishers {
			if rule.matches(p.Federated) {
				return &Decision{Record: rec}, nil
			}
		}
		return nil, regerr.New(regerr.KindForbidden, "no matching trusted-publisher rule for this repository").
			WithSubReason("no-matching-trusted-publisher")
	}

	return nil, regerr.New(regerr.KindForbidden, "principal is not the owner or a collaborator").
		WithSubReason("not-owner")
}

// AuthorizeMutation checks whether a principal may modify ownership
// (add collaborators, edit trusted-publisher rules) for a package,
// which spec §4.7 restricts to the owner alone.
func (r *Registry) AuthorizeMutation(ctx context.Context, p *identity.Principal, packageName string) (*Record, error) {
	if p == nil || p.Kind == identity.KindAnonymous {
		return nil, regerr.New(regerr.KindUnauthenticated, "ownership mutation requires an authenticated principal")
	}
	rec, exists, err := r.store.LookupOwnership(ctx, packageName)
	if err != nil {
		return nil, regerr.Wrap(regerr.KindInternal, err)
	}
	if !exists {
		return nil, regerr.New(regerr.KindPackageNotFound, "package does not exist").
			WithDetails(map[string]any{"name": packageName})
	}
	if rec.Owner != p.ID {
		return nil, regerr.New(regerr.KindForbidden, "only the owner may modify ownership").
			WithSubReason("not-owner")
	}
	return rec, nil
}

// InitialTrustedPublisher returns the implicit trusted-publisher rule
// spec §4.7 rule 1 records for a claim made by a federated principal,
// or nil for a non-federated claim.
func InitialTrustedPublisher(p *identity.Principal) *TrustedPublisherRule {
	if p == nil || p.Kind != identity.KindFederated || p.Federated == nil {
		return nil
	}
	return &TrustedPublisherRule{
		Provider:   p.Federated.Provider,
		Repository: p.Federated.Repository,
	}
}

// NameClaimedError builds the forbidden/name-claimed error spec §4.7
// names for a claim attempt racing against an already-claimed name
// (the store's unique constraint on package name is the authoritative
// check; this wraps that conflict in the registry's error shape).
func NameClaimedError(packageName string) error {
	return regerr.New(regerr.KindForbidden, "package name is already claimed").
		WithSubReason("name-claimed").
		WithDetails(map[string]any{"name": packageName})
}
