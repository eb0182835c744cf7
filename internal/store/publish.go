package store

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"islandregistry/internal/models"
	"islandregistry/internal/ownership"
	"islandregistry/internal/regerr"
)

// DistributionInput is one distribution to commit alongside a version.
type DistributionInput struct {
	Filename    string
	PlatformTag string
	Sha256      string
	SizeBytes   int64
	ExternalURL string
}

// ProvenanceInput carries federated-identity provenance onto a version
// record, when the publish was authenticated that way.
type ProvenanceInput struct {
	Provider   string
	Repository string
	Workflow   string
	Commit     string
}

// PublishParams is everything the Registration Coordinator (§4.8) has
// assembled by the time it is ready to commit a verified publish.
type PublishParams struct {
	PackageName  string
	DisplayGame  string
	Description  string
	License      string
	Homepage     string
	Repository   string
	Version      string
	MinimumAP    string
	MaximumAP    string
	ManifestJSON string
	EntryPoints  map[string]string
	Keywords     []string
	PublishedBy  string

	Distributions []DistributionInput
	Provenance    *ProvenanceInput

	IsClaim                 bool
	InitialTrustedPublisher *ownership.TrustedPublisherRule
}

// PublishResult reports whether the commit happened or the request was
// recognized as an idempotent replay of a prior successful publish
// (spec §4.8 step 4, §9 decision 1).
type PublishResult struct {
	Replay bool
}

// Publish commits a verified publish atomically: the package row on a
// claim, the version row, its distributions and entry points, and the
// owning publisher row, all-or-nothing. Concurrent claims of the same
// name or concurrent publishes of the same (name, version) are
// resolved by the unique constraints in schema.go surfacing as
// version-exists/name-claimed rather than silently overwriting.
func (s *Store) Publish(ctx context.Context, p PublishParams) (*PublishResult, error) {
	var result PublishResult

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		now := time.Now().UTC()

		if p.IsClaim {
			if _, err := tx.Exec(
				`INSERT INTO packages (name, display_name, description, license, homepage, repository, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				p.PackageName, p.DisplayGame, p.Description, p.License, p.Homepage, p.Repository, now, now,
			); err != nil {
				if isUniqueViolation(err) {
					return ownership.NameClaimedError(p.PackageName)
				}
				return err
			}
		} else {
			if _, err := tx.Exec(
				`UPDATE packages SET description = ?, license = ?, homepage = ?, repository = ?, updated_at = ? WHERE name = ?`,
				p.Description, p.License, p.Homepage, p.Repository, now, p.PackageName,
			); err != nil {
				return err
			}
		}

		existing, err := existingVersion(tx, p.PackageName, p.Version)
		if err != nil {
			return err
		}
		if existing != nil {
			existingDists, err := existingDistributions(tx, existing.ID)
			if err != nil {
				return err
			}
			if ReplayMatches(existing, existingDists, p) {
				result.Replay = true
				return nil
			}
			return regerr.New(regerr.KindVersionExists, "version already published").
				WithDetails(map[string]any{"name": p.PackageName, "version": p.Version})
		}

		var prov ProvenanceInput
		if p.Provenance != nil {
			prov = *p.Provenance
		}

		res, err := tx.Exec(
			`INSERT INTO versions (package_name, version, game, minimum_ap_version, maximum_ap_version, manifest_json,
				published_by, published_at, yanked, yank_reason,
				provenance_provider, provenance_repository, provenance_workflow, provenance_commit)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, '', ?, ?, ?, ?)`,
			p.PackageName, p.Version, p.DisplayGame, p.MinimumAP, p.MaximumAP, p.ManifestJSON,
			p.PublishedBy, now, prov.Provider, prov.Repository, prov.Workflow, prov.Commit,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return regerr.New(regerr.KindVersionExists, "version already published").
					WithDetails(map[string]any{"name": p.PackageName, "version": p.Version})
			}
			return err
		}
		versionID, err := res.LastInsertId()
		if err != nil {
			return err
		}

		for _, d := range p.Distributions {
			if _, err := tx.Exec(
				`INSERT INTO distributions (version_id, filename, platform_tag, sha256, size_bytes, external_url, registered_at, last_verified_at, url_status)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				versionID, d.Filename, d.PlatformTag, d.Sha256, d.SizeBytes, d.ExternalURL, now, now, models.URLStatusActive,
			); err != nil {
				return err
			}
		}

		for id, target := range p.EntryPoints {
			if _, err := tx.Exec(`INSERT INTO entry_points (version_id, identifier, target) VALUES (?, ?, ?)`, versionID, id, target); err != nil {
				return err
			}
		}

		for _, kw := range p.Keywords {
			if _, err := tx.Exec(`INSERT INTO keywords (package_name, keyword) VALUES (?, ?)`, p.PackageName, kw); err != nil {
				return err
			}
		}

		if p.IsClaim {
			ptype := models.PublisherTypeUser
			if p.Provenance != nil {
				ptype = models.PublisherTypeTrustedPublisher
			}
			if _, err := tx.Exec(
				`INSERT INTO publishers (package_name, publisher_id, publisher_type, is_owner, added_at, github_repository, github_workflow)
				 VALUES (?, ?, ?, 1, ?, '', '')`,
				p.PackageName, p.PublishedBy, ptype, now,
			); err != nil {
				return err
			}
			if p.InitialTrustedPublisher != nil {
				if _, err := tx.Exec(
					`INSERT INTO publishers (package_name, publisher_id, publisher_type, is_owner, added_at, provider, github_repository, github_workflow)
					 VALUES (?, ?, ?, 0, ?, ?, ?, ?)`,
					p.PackageName, p.InitialTrustedPublisher.Repository, models.PublisherTypeTrustedPublisher, now,
					p.InitialTrustedPublisher.Provider, p.InitialTrustedPublisher.Repository, p.InitialTrustedPublisher.Workflow,
				); err != nil {
					return err
				}
			}
		}

		if _, err := tx.Exec(
			`INSERT INTO audit_logs (package_name, version, action, actor_id, actor_type, timestamp, details)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			p.PackageName, p.Version, models.ActionPublish, p.PublishedBy, actorType(p.Provenance), now, "",
		); err != nil {
			return err
		}

		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func actorType(prov *ProvenanceInput) string {
	if prov != nil {
		return models.PublisherTypeTrustedPublisher
	}
	return models.PublisherTypeUser
}

// existingVersion looks up a version row without failing the
// transaction when none exists.
func existingVersion(tx *sqlx.Tx, packageName, version string) (*models.Version, error) {
	var v models.Version
	err := tx.Get(&v, `SELECT id, package_name, version, game, minimum_ap_version, maximum_ap_version, manifest_json,
		published_by, published_at, yanked, yank_reason,
		provenance_provider, provenance_repository, provenance_workflow, provenance_commit
		FROM versions WHERE package_name = ? AND version = ?`, packageName, version)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// existingDistributions looks up the distributions already committed
// for a version, within the same transaction ReplayMatches checks
// against.
func existingDistributions(tx *sqlx.Tx, versionID int64) ([]models.Distribution, error) {
	var dists []models.Distribution
	err := tx.Select(&dists,
		`SELECT id, version_id, filename, platform_tag, sha256, size_bytes, external_url, registered_at, last_verified_at, url_status
		 FROM distributions WHERE version_id = ?`, versionID)
	return dists, err
}

// ReplayMatches implements spec §4.8 step 4's idempotency exception:
// the same principal re-submitting a byte-identical manifest AND an
// identical set of distributions is acknowledged as success rather
// than rejected as version-exists. A manifest match with a different
// distribution set is a genuine conflict, not a replay. Exported so
// the Registration Coordinator can run the same comparison ahead of
// the network fetch, not just inside this transaction.
func ReplayMatches(existing *models.Version, existingDists []models.Distribution, p PublishParams) bool {
	if existing.PublishedBy != p.PublishedBy || existing.ManifestJSON != p.ManifestJSON {
		return false
	}
	if len(existingDists) != len(p.Distributions) {
		return false
	}
	want := make(map[string]DistributionInput, len(p.Distributions))
	for _, d := range p.Distributions {
		want[d.Filename] = d
	}
	for _, ed := range existingDists {
		d, ok := want[ed.Filename]
		if !ok {
			return false
		}
		if ed.PlatformTag != d.PlatformTag || ed.Sha256 != d.Sha256 ||
			ed.SizeBytes != d.SizeBytes || ed.ExternalURL != d.ExternalURL {
			return false
		}
	}
	return true
}

// Yank sets the yanked flag on an existing version (spec §4.8 "Yank").
func (s *Store) Yank(ctx context.Context, packageName, version, actorID, actorType, reason string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		existing, err := existingVersion(tx, packageName, version)
		if err != nil {
			return err
		}
		if existing == nil {
			return regerr.New(regerr.KindVersionNotFound, "version not found").
				WithDetails(map[string]any{"name": packageName, "version": version})
		}
		if _, err := tx.Exec(`UPDATE versions SET yanked = 1, yank_reason = ? WHERE id = ?`, reason, existing.ID); err != nil {
			return err
		}
		_, err = tx.Exec(
			`INSERT INTO audit_logs (package_name, version, action, actor_id, actor_type, timestamp, details)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			packageName, version, models.ActionYank, actorID, actorType, time.Now().UTC(), reason,
		)
		return err
	})
}
