package store

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"islandregistry/internal/models"
	"islandregistry/internal/ownership"
)

// LookupOwnership implements ownership.Lookup against the publishers
// table: the is_owner row gives the owner, every other row is either a
// plain collaborator or a trusted-publisher rule.
func (s *Store) LookupOwnership(ctx context.Context, packageName string) (*ownership.Record, bool, error) {
	var exists int
	if err := s.DB.GetContext(ctx, &exists, `SELECT 1 FROM packages WHERE name = ?`, packageName); isNotFound(err) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, err
	}

	var rows []models.Publisher
	if err := s.DB.SelectContext(ctx, &rows,
		`SELECT id, package_name, publisher_id, publisher_type, is_owner, added_at, provider, github_repository, github_workflow, github_environment
		 FROM publishers WHERE package_name = ?`, packageName); err != nil {
		return nil, true, err
	}

	rec := &ownership.Record{}
	for _, row := range rows {
		if row.IsOwner {
			rec.Owner = row.PublisherID
			continue
		}
		if row.PublisherType == models.PublisherTypeTrustedPublisher {
			rec.TrustedPublishers = append(rec.TrustedPublishers, ownership.TrustedPublisherRule{
				Provider:    row.Provider,
				Repository:  row.GitHubRepo,
				Workflow:    row.GitHubWorkflow,
				Environment: row.GitHubEnv,
			})
			continue
		}
		rec.Collaborators = append(rec.Collaborators, row.PublisherID)
	}
	return rec, true, nil
}

// AddCollaborator grants an additional user publish rights on a
// package, restricted to the owner by ownership.Registry.AuthorizeMutation.
func (s *Store) AddCollaborator(ctx context.Context, packageName, principalID, actorID string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		now := time.Now().UTC()
		if _, err := tx.Exec(
			`INSERT OR IGNORE INTO publishers (package_name, publisher_id, publisher_type, is_owner, added_at, github_repository, github_workflow)
			 VALUES (?, ?, ?, 0, ?, '', '')`,
			packageName, principalID, models.PublisherTypeUser, now,
		); err != nil {
			return err
		}
		_, err := tx.Exec(
			`INSERT INTO audit_logs (package_name, version, action, actor_id, actor_type, timestamp, details)
			 VALUES (?, '', ?, ?, ?, ?, ?)`,
			packageName, models.ActionAddCollaborator, actorID, models.PublisherTypeUser, now, principalID,
		)
		return err
	})
}

// AddTrustedPublisher records a standing trusted-publisher rule.
func (s *Store) AddTrustedPublisher(ctx context.Context, packageName string, rule ownership.TrustedPublisherRule, actorID string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		now := time.Now().UTC()
		if _, err := tx.Exec(
			`INSERT OR IGNORE INTO publishers (package_name, publisher_id, publisher_type, is_owner, added_at, provider, github_repository, github_workflow, github_environment)
			 VALUES (?, ?, ?, 0, ?, ?, ?, ?, ?)`,
			packageName, rule.Repository, models.PublisherTypeTrustedPublisher, now, rule.Provider, rule.Repository, rule.Workflow, rule.Environment,
		); err != nil {
			return err
		}
		_, err := tx.Exec(
			`INSERT INTO audit_logs (package_name, version, action, actor_id, actor_type, timestamp, details)
			 VALUES (?, '', ?, ?, ?, ?, ?)`,
			packageName, models.ActionAddTrustedRule, actorID, models.PublisherTypeUser, now, rule.Repository,
		)
		return err
	})
}

// RemoveCollaborator revokes a collaborator's publish rights, leaving
// the owner row untouched (the owner is never removable this way).
func (s *Store) RemoveCollaborator(ctx context.Context, packageName, principalID string) error {
	_, err := s.DB.ExecContext(ctx,
		`DELETE FROM publishers WHERE package_name = ? AND publisher_id = ? AND publisher_type = ? AND is_owner = 0`,
		packageName, principalID, models.PublisherTypeUser,
	)
	return err
}

// RemoveTrustedPublisher deletes one trusted-publisher row by id,
// scoped to the package so a caller cannot delete another package's
// rule by guessing an id.
func (s *Store) RemoveTrustedPublisher(ctx context.Context, packageName string, publisherRowID int64) error {
	_, err := s.DB.ExecContext(ctx,
		`DELETE FROM publishers WHERE package_name = ? AND id = ? AND publisher_type = ?`,
		packageName, publisherRowID, models.PublisherTypeTrustedPublisher,
	)
	return err
}

// ListPublishers returns every ownership/trusted-publisher row for a
// package, owner first, then by added_at. No HTTP route serves it.
func (s *Store) ListPublishers(ctx context.Context, packageName string) ([]models.Publisher, error) {
	var rows []models.Publisher
	err := s.DB.SelectContext(ctx, &rows,
		`SELECT id, package_name, publisher_id, publisher_type, is_owner, added_at, provider, github_repository, github_workflow, github_environment
		 FROM publishers WHERE package_name = ? ORDER BY is_owner DESC, added_at ASC`, packageName)
	return rows, err
}
