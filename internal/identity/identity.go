// Package identity implements the Identity Service (spec §4.6):
// resolving an inbound credential to a principal, either a stored API
// token or a verified federated (OIDC) identity token, falling back to
// an anonymous principal for unauthenticated reads.
package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"islandregistry/internal/regerr"
)

// Kind distinguishes how a Principal was authenticated.
type Kind string

const (
	KindAPIToken  Kind = "api-token"
	KindFederated Kind = "federated"
	KindAnonymous Kind = "anonymous"
)

// FederatedClaims carries the provenance spec §3 attaches to a version
// registered via a federated identity token.
type FederatedClaims struct {
	Provider    string
	Repository  string
	Workflow    string
	CommitSHA   string
	Environment string
}

// Principal is the resolved identity of a request, per spec §4.6.
type Principal struct {
	ID        string
	Kind      Kind
	Scopes    []string
	Federated *FederatedClaims
}

// APITokenLookup is the store dependency the Identity Service needs:
// resolve a hashed bearer token to the principal it is bound to.
// Defined here (consumer side) so this package does not import the
// store package.
type APITokenLookup interface {
	LookupAPIToken(ctx context.Context, tokenHash string) (principal string, scopes []string, err error)
}

// HashToken returns the stored lookup key for a raw API token: a
// SHA-256 hex digest, matching the teacher's hashTokenRaw convention.
func HashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// Service resolves credentials to principals.
type Service struct {
	tokens    APITokenLookup
	providers map[string]*Provider // keyed by issuer
}

// New creates an identity Service over the given token store and set of
// configured federated-identity providers.
func New(tokens APITokenLookup, providers ...*Provider) *Service {
	s := &Service{tokens: tokens, providers: map[string]*Provider{}}
	for _, p := range providers {
		s.providers[p.Issuer] = p
	}
	return s
}

// ResolveAnonymous returns the anonymous principal bucketed by source
// address, used for unauthenticated read requests (spec §4.6).
func ResolveAnonymous(sourceAddr string) *Principal {
	return &Principal{ID: "anon:" + sourceAddr, Kind: KindAnonymous}
}

// looksLikeJWT distinguishes a federated identity token from an opaque
// API token by structure: three dot-separated base64url segments (spec
// §6 "Credentials").
func looksLikeJWT(bearer string) bool {
	return strings.Count(bearer, ".") == 2 && !strings.Contains(bearer, " ")
}

// Resolve authenticates a bearer credential, distinguishing API tokens
// from federated identity JWTs by structure.
func (s *Service) Resolve(ctx context.Context, bearer string) (*Principal, error) {
	if bearer == "" {
		return nil, regerr.New(regerr.KindUnauthenticated, "missing bearer credential")
	}
	if looksLikeJWT(bearer) {
		return s.resolveFederated(ctx, bearer)
	}
	return s.resolveAPIToken(ctx, bearer)
}

func (s *Service) resolveAPIToken(ctx context.Context, raw string) (*Principal, error) {
	hash := HashToken(raw)
	principal, scopes, err := s.tokens.LookupAPIToken(ctx, hash)
	if err != nil {
		return nil, regerr.Wrap(regerr.KindTokenInvalid, err)
	}
	return &Principal{ID: principal, Kind: KindAPIToken, Scopes: scopes}, nil
}

func (s *Service) resolveFederated(ctx context.Context, tokenStr string) (*Principal, error) {
	var unverified oidcClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, &unverified); err != nil {
		return nil, regerr.Wrap(regerr.KindTokenInvalid, err)
	}
	provider, ok := s.providers[unverified.Issuer]
	if !ok {
		return nil, regerr.New(regerr.KindTokenInvalid, "unrecognized token issuer").
			WithDetails(map[string]any{"issuer": unverified.Issuer})
	}

	keys, err := provider.keys.Get(ctx)
	if err != nil {
		return nil, regerr.Wrap(regerr.KindTokenInvalid, err)
	}

	var claims oidcClaims
	_, err = jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		key, ok := keys[kid]
		if !ok {
			return nil, regerr.New(regerr.KindTokenInvalid, "unknown signing key id")
		}
		return key, nil
	}, jwt.WithValidMethods([]string{"RS256"}), jwt.WithIssuer(provider.Issuer), jwt.WithAudience(provider.Audience))

	if err != nil {
		if strings.Contains(err.Error(), "token is expired") {
			return nil, regerr.Wrap(regerr.KindTokenExpired, err)
		}
		return nil, regerr.Wrap(regerr.KindTokenInvalid, err)
	}

	return &Principal{
		ID:   "federated:" + provider.Name + ":" + claims.Repository,
		Kind: KindFederated,
		Federated: &FederatedClaims{
			Provider:    provider.Name,
			Repository:  claims.Repository,
			Workflow:    claims.Workflow,
			CommitSHA:   claims.SHA,
			Environment: claims.Environment,
		},
	}, nil
}

// oidcClaims mirrors the GitHub-Actions-shaped OIDC claims the original
// island_api.auth.oidc module parses, plus the registered JWT claims
// golang-jwt validates issuer/audience/expiry against.
type oidcClaims struct {
	Repository      string `json:"repository"`
	RepositoryOwner string `json:"repository_owner"`
	Workflow        string `json:"workflow"`
	Ref             string `json:"ref"`
	SHA             string `json:"sha"`
	Environment     string `json:"environment"`
	jwt.RegisteredClaims
}
