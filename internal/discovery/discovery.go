// Package discovery implements the Discovery Engine (spec §4.10):
// read-only queries over committed registry state — listing,
// fetching, searching, and snapshotting packages and versions. It
// composes the store's primitive queries with the version package's
// total order, since sqlite collation cannot express semver ordering.
package discovery

import (
	"context"
	"sort"
	"strings"
	"time"

	"islandregistry/internal/fetch"
	"islandregistry/internal/models"
	"islandregistry/internal/regerr"
	"islandregistry/internal/store"
	"islandregistry/internal/version"
)

// staleURLCheck is how long a distribution's URL health can go
// unchecked before GetVersion triggers a lazy recheck (supplemented
// URL health tracking feature, SPEC_FULL.md).
const staleURLCheck = 24 * time.Hour

// Engine answers discovery queries against the Store.
type Engine struct {
	store   *store.Store
	fetcher *fetch.Fetcher
}

// Option configures an Engine.
type Option func(*Engine)

// WithFetcher enables the lazy URL-health recheck GetVersion performs
// on stale distributions. Without it, GetVersion never rechecks.
func WithFetcher(f *fetch.Fetcher) Option {
	return func(e *Engine) { e.fetcher = f }
}

// New creates a discovery Engine over the given store.
func New(s *store.Store, opts ...Option) *Engine {
	e := &Engine{store: s}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// PackageSummary is a package's display metadata plus its collapsed
// version list (spec §4.10 "Get package").
type PackageSummary struct {
	models.Package
	Versions []string `json:"versions"`
}

// VersionDetail is a full version record with its distributions.
type VersionDetail struct {
	models.Version
	EntryPoints   map[string]string     `json:"entry_points"`
	Distributions []models.Distribution `json:"distributions"`
}

// ListPackagesResult is a page of packages plus the total count, for
// pagination headers.
type ListPackagesResult struct {
	Packages []models.Package
	Total    int
}

// ListPackages returns a page of packages sorted by last-updated
// descending.
func (e *Engine) ListPackages(ctx context.Context, limit, offset int) (*ListPackagesResult, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	pkgs, err := e.store.ListPackages(ctx, limit, offset)
	if err != nil {
		return nil, regerr.Wrap(regerr.KindInternal, err)
	}
	total, err := e.store.CountPackages(ctx)
	if err != nil {
		return nil, regerr.Wrap(regerr.KindInternal, err)
	}
	return &ListPackagesResult{Packages: pkgs, Total: total}, nil
}

// GetPackage returns a package's display metadata and its versions,
// sorted version-descending.
func (e *Engine) GetPackage(ctx context.Context, name string) (*PackageSummary, error) {
	p, err := e.store.GetPackage(ctx, name)
	if store.IsNotFound(err) {
		return nil, regerr.New(regerr.KindPackageNotFound, "package not found").
			WithDetails(map[string]any{"name": name})
	}
	if err != nil {
		return nil, regerr.Wrap(regerr.KindInternal, err)
	}
	versions, err := e.ListVersions(ctx, name)
	if err != nil {
		return nil, err
	}
	vstrs := make([]string, 0, len(versions))
	for _, v := range versions {
		vstrs = append(vstrs, v.Version)
	}
	return &PackageSummary{Package: *p, Versions: vstrs}, nil
}

// ListVersions returns every version of a package sorted newest-first
// under the Version Algebra's total order (spec §4.1, §4.10).
func (e *Engine) ListVersions(ctx context.Context, packageName string) ([]models.Version, error) {
	versions, err := e.store.ListVersions(ctx, packageName)
	if err != nil {
		return nil, regerr.Wrap(regerr.KindInternal, err)
	}
	if len(versions) == 0 {
		if _, err := e.store.GetPackage(ctx, packageName); err != nil {
			if store.IsNotFound(err) {
				return nil, regerr.New(regerr.KindPackageNotFound, "package not found").
					WithDetails(map[string]any{"name": packageName})
			}
			return nil, regerr.Wrap(regerr.KindInternal, err)
		}
	}
	sortVersionsDescending(versions)
	return versions, nil
}

// GetVersion returns a full version record with its distributions and
// entry-point map.
func (e *Engine) GetVersion(ctx context.Context, packageName, ver string) (*VersionDetail, error) {
	v, err := e.store.GetVersion(ctx, packageName, ver)
	if store.IsNotFound(err) {
		return nil, regerr.New(regerr.KindVersionNotFound, "version not found").
			WithDetails(map[string]any{"name": packageName, "version": ver})
	}
	if err != nil {
		return nil, regerr.Wrap(regerr.KindInternal, err)
	}
	dists, err := e.store.Distributions(ctx, v.ID)
	if err != nil {
		return nil, regerr.Wrap(regerr.KindInternal, err)
	}
	eps, err := e.store.EntryPoints(ctx, v.ID)
	if err != nil {
		return nil, regerr.Wrap(regerr.KindInternal, err)
	}
	e.rechecksStaleURLs(dists)
	return &VersionDetail{Version: *v, EntryPoints: eps, Distributions: dists}, nil
}

// rechecksStaleURLs fires off a background health check for any
// distribution whose URL hasn't been verified recently, updating
// url_status for the next read rather than blocking this one.
func (e *Engine) rechecksStaleURLs(dists []models.Distribution) {
	if e.fetcher == nil {
		return
	}
	for _, d := range dists {
		if d.LastVerifiedAt != nil && time.Since(*d.LastVerifiedAt) < staleURLCheck {
			continue
		}
		d := d
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			status := models.URLStatusUnavailable
			if e.fetcher.CheckHealth(ctx, d.ExternalURL) {
				status = models.URLStatusActive
			}
			_ = e.store.RecheckDistributionURL(context.Background(), d.ID, status)
		}()
	}
}

// SearchQuery is the set of combinable search predicates spec §4.10
// defines, implicitly ANDed.
type SearchQuery struct {
	Text           string // matches name, game, description, keyword
	Game           string // exact match on game title
	EntryPoint     string // exact match on any entry-point identifier
	CompatibleWith string // version X; matches iff min <= X <= max
	Platform       string // any distribution has a matching platform tag
}

// SearchResult is one matching (package, version) pair.
type SearchResult struct {
	Package models.Package `json:"package"`
	Version models.Version `json:"version"`
}

// Search evaluates every combinable predicate over committed state and
// returns matches sorted by relevance then last-updated, per spec
// §4.10. Yanked versions are included and flagged, per §9 decision 2.
func (e *Engine) Search(ctx context.Context, q SearchQuery) ([]SearchResult, error) {
	candidates, err := e.store.SearchCandidates(ctx)
	if err != nil {
		return nil, regerr.Wrap(regerr.KindInternal, err)
	}

	var compat *version.Version
	if q.CompatibleWith != "" {
		compat, err = version.Parse(q.CompatibleWith)
		if err != nil {
			return nil, err
		}
	}

	type scored struct {
		result   SearchResult
		relevant int
	}
	var matches []scored

	for _, c := range candidates {
		if q.Game != "" && c.Version.Game != q.Game {
			continue
		}
		if q.EntryPoint != "" && !containsExact(c.EntryPoints, q.EntryPoint) {
			continue
		}
		if q.Platform != "" && !anyHasSuffix(c.PlatformTags, q.Platform) {
			continue
		}
		if compat != nil && !versionCompatible(c.Version, compat) {
			continue
		}
		relevance := 0
		if q.Text != "" {
			relevance = textRelevance(c, q.Text)
			if relevance == 0 {
				continue
			}
		}
		matches = append(matches, scored{
			result:   SearchResult{Package: c.Package, Version: c.Version},
			relevant: relevance,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].relevant != matches[j].relevant {
			return matches[i].relevant > matches[j].relevant
		}
		return matches[i].result.Package.UpdatedAt.After(matches[j].result.Package.UpdatedAt)
	})

	results := make([]SearchResult, 0, len(matches))
	for _, m := range matches {
		results = append(results, m.result)
	}
	return results, nil
}

func versionCompatible(v models.Version, x *version.Version) bool {
	min, err := version.Parse(v.MinimumAPVersion)
	if err != nil {
		return false
	}
	var max *version.Version
	if v.MaximumAPVersion != "" {
		max, err = version.Parse(v.MaximumAPVersion)
		if err != nil {
			return false
		}
	}
	return x.InRange(min, max)
}

func containsExact(haystack []string, needle string) bool {
	for _, h := range haystack {
		if h == needle {
			return true
		}
	}
	return false
}

func anyHasSuffix(tags []string, suffix string) bool {
	for _, t := range tags {
		if strings.HasSuffix(t, suffix) {
			return true
		}
	}
	return false
}

// textRelevance scores a free-text match across name, game,
// description, and keywords; higher is more relevant, 0 means no
// match at all.
func textRelevance(c store.SearchCandidate, text string) int {
	needle := strings.ToLower(text)
	score := 0
	if strings.Contains(strings.ToLower(c.Package.Name), needle) {
		score += 3
	}
	if strings.Contains(strings.ToLower(c.Version.Game), needle) {
		score += 2
	}
	if strings.Contains(strings.ToLower(c.Package.Description), needle) {
		score += 1
	}
	for _, kw := range c.Keywords {
		if strings.EqualFold(kw, text) {
			score += 2
		}
	}
	return score
}

func sortVersionsDescending(versions []models.Version) {
	parsed := make([]*version.Version, len(versions))
	for i, v := range versions {
		pv, err := version.Parse(v.Version)
		if err != nil {
			continue
		}
		parsed[i] = pv
	}
	sort.SliceStable(versions, func(i, j int) bool {
		if parsed[i] == nil || parsed[j] == nil {
			return false
		}
		return parsed[j].LessThan(parsed[i])
	})
}

// Snapshot is the single JSON document spec §4.10 defines for offline
// or air-gapped consumers: every package, every version (yanked ones
// flagged rather than omitted), and every distribution with its URL
// and digest.
type Snapshot struct {
	Packages []SnapshotPackage `json:"packages"`
}

// SnapshotPackage is one package's entry in a Snapshot.
type SnapshotPackage struct {
	models.Package
	Versions []SnapshotVersion `json:"versions"`
}

// SnapshotVersion is one version's entry in a Snapshot.
type SnapshotVersion struct {
	Version       string                `json:"version"`
	Game          string                `json:"game"`
	EntryPoints   map[string]string     `json:"entry_points"`
	Distributions []models.Distribution `json:"distributions"`
	Yanked        bool                  `json:"yanked"`
	YankReason    string                `json:"yank_reason,omitempty"`
}

// Snapshot assembles the full §4.10 snapshot document. Snapshot reads
// observe a consistent point: every read here runs against the same
// store, and the store's write path only ever makes a publish visible
// atomically, so a snapshot never straddles a half-committed publish.
// Yanked versions stay in the document, flagged, so that every result
// a search can return is also reachable here (spec §8 property 7).
func (e *Engine) Snapshot(ctx context.Context) (*Snapshot, error) {
	pkgs, err := e.store.ListPackages(ctx, 1<<30, 0)
	if err != nil {
		return nil, regerr.Wrap(regerr.KindInternal, err)
	}

	snap := &Snapshot{}
	for _, p := range pkgs {
		versions, err := e.ListVersions(ctx, p.Name)
		if err != nil {
			return nil, err
		}
		sp := SnapshotPackage{Package: p}
		for _, v := range versions {
			dists, err := e.store.Distributions(ctx, v.ID)
			if err != nil {
				return nil, regerr.Wrap(regerr.KindInternal, err)
			}
			eps, err := e.store.EntryPoints(ctx, v.ID)
			if err != nil {
				return nil, regerr.Wrap(regerr.KindInternal, err)
			}
			sp.Versions = append(sp.Versions, SnapshotVersion{
				Version:       v.Version,
				Game:          v.Game,
				EntryPoints:   eps,
				Distributions: dists,
				Yanked:        v.Yanked,
				YankReason:    v.YankReason,
			})
		}
		snap.Packages = append(snap.Packages, sp)
	}
	return snap, nil
}
