package store

import (
	"context"

	"islandregistry/internal/models"
)

// GetPackage fetches a package's top-level record.
func (s *Store) GetPackage(ctx context.Context, name string) (*models.Package, error) {
	var p models.Package
	if err := s.DB.GetContext(ctx, &p,
		`SELECT name, display_name, description, license, homepage, repository, created_at, updated_at
		 FROM packages WHERE name = ?`, name); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPackages returns a page of packages sorted by last-updated
// descending (spec §4.10 "List packages").
func (s *Store) ListPackages(ctx context.Context, limit, offset int) ([]models.Package, error) {
	var pkgs []models.Package
	err := s.DB.SelectContext(ctx, &pkgs,
		`SELECT name, display_name, description, license, homepage, repository, created_at, updated_at
		 FROM packages ORDER BY updated_at DESC LIMIT ? OFFSET ?`, limit, offset)
	return pkgs, err
}

// CountPackages returns the total package count, for pagination.
func (s *Store) CountPackages(ctx context.Context) (int, error) {
	var n int
	err := s.DB.GetContext(ctx, &n, `SELECT COUNT(*) FROM packages`)
	return n, err
}

// ListVersions returns every version of a package, unordered; callers
// apply the version-descending sort (§4.1) since sqlite collation
// cannot express semver total order.
func (s *Store) ListVersions(ctx context.Context, packageName string) ([]models.Version, error) {
	var versions []models.Version
	err := s.DB.SelectContext(ctx, &versions,
		`SELECT id, package_name, version, game, minimum_ap_version, maximum_ap_version, manifest_json,
			published_by, published_at, yanked, yank_reason,
			provenance_provider, provenance_repository, provenance_workflow, provenance_commit
		 FROM versions WHERE package_name = ?`, packageName)
	return versions, err
}

// GetVersion fetches one version record (without distributions/entry
// points attached; see Distributions/EntryPoints below).
func (s *Store) GetVersion(ctx context.Context, packageName, version string) (*models.Version, error) {
	var v models.Version
	err := s.DB.GetContext(ctx, &v,
		`SELECT id, package_name, version, game, minimum_ap_version, maximum_ap_version, manifest_json,
			published_by, published_at, yanked, yank_reason,
			provenance_provider, provenance_repository, provenance_workflow, provenance_commit
		 FROM versions WHERE package_name = ? AND version = ?`, packageName, version)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Distributions returns the distributions belonging to a version.
func (s *Store) Distributions(ctx context.Context, versionID int64) ([]models.Distribution, error) {
	var dists []models.Distribution
	err := s.DB.SelectContext(ctx, &dists,
		`SELECT id, version_id, filename, platform_tag, sha256, size_bytes, external_url, registered_at, last_verified_at, url_status
		 FROM distributions WHERE version_id = ?`, versionID)
	return dists, err
}

// EntryPoints returns the {identifier: target} map for a version.
func (s *Store) EntryPoints(ctx context.Context, versionID int64) (map[string]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT identifier, target FROM entry_points WHERE version_id = ?`, versionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var id, target string
		if err := rows.Scan(&id, &target); err != nil {
			return nil, err
		}
		out[id] = target
	}
	return out, rows.Err()
}

// SearchCandidate is a denormalized join row the Discovery Engine's
// search predicates filter in-process; entry points and platform tags
// are expanded here rather than in SQL because spec §4.10's
// compatible_with predicate needs the version package's total order,
// which sqlite cannot express.
type SearchCandidate struct {
	Package      models.Package
	Version      models.Version
	EntryPoints  []string
	Keywords     []string
	PlatformTags []string
}

// SearchCandidates returns every (package, version) pair joined with
// its entry-point identifiers, keywords, and distribution platform
// tags, for the Discovery Engine to filter and rank in-process.
func (s *Store) SearchCandidates(ctx context.Context) ([]SearchCandidate, error) {
	var versions []models.Version
	if err := s.DB.SelectContext(ctx, &versions,
		`SELECT id, package_name, version, game, minimum_ap_version, maximum_ap_version, manifest_json,
			published_by, published_at, yanked, yank_reason,
			provenance_provider, provenance_repository, provenance_workflow, provenance_commit
		 FROM versions`); err != nil {
		return nil, err
	}

	packages := map[string]models.Package{}
	var names []string
	for _, v := range versions {
		if _, ok := packages[v.PackageName]; !ok {
			names = append(names, v.PackageName)
		}
	}
	for _, name := range names {
		p, err := s.GetPackage(ctx, name)
		if err != nil {
			return nil, err
		}
		packages[name] = *p
	}

	candidates := make([]SearchCandidate, 0, len(versions))
	for _, v := range versions {
		eps, err := s.EntryPoints(ctx, v.ID)
		if err != nil {
			return nil, err
		}
		epIDs := make([]string, 0, len(eps))
		for id := range eps {
			epIDs = append(epIDs, id)
		}

		var keywords []string
		if err := s.DB.SelectContext(ctx, &keywords, `SELECT keyword FROM keywords WHERE package_name = ?`, v.PackageName); err != nil {
			return nil, err
		}

		dists, err := s.Distributions(ctx, v.ID)
		if err != nil {
			return nil, err
		}
		tags := make([]string, 0, len(dists))
		for _, d := range dists {
			tags = append(tags, d.PlatformTag)
		}

		candidates = append(candidates, SearchCandidate{
			Package:      packages[v.PackageName],
			Version:      v,
			EntryPoints:  epIDs,
			Keywords:     keywords,
			PlatformTags: tags,
		})
	}
	return candidates, nil
}

// RecheckDistributionURL updates a distribution's health status from
// an out-of-band recheck (supplemented URL health tracking feature).
func (s *Store) RecheckDistributionURL(ctx context.Context, distributionID int64, status string) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE distributions SET url_status = ?, last_verified_at = datetime('now') WHERE id = ?`, status, distributionID)
	return err
}
