// Package models holds the persisted record types for the registry's
// data model (spec §3): packages, versions, distributions, ownership,
// API tokens, and audit entries. Field tags follow the teacher's
// convention of a db tag for sqlx and a json tag for API responses.
package models

import "time"

// Package is a registered plugin's top-level record, keyed by name.
type Package struct {
	Name        string    `db:"name" json:"name"`
	DisplayName string    `db:"display_name" json:"display_name"`
	Description string    `db:"description" json:"description,omitempty"`
	License     string    `db:"license" json:"license,omitempty"`
	Homepage    string    `db:"homepage" json:"homepage,omitempty"`
	Repository  string    `db:"repository" json:"repository,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Version is one published (name, version) pair.
type Version struct {
	ID               int64     `db:"id" json:"-"`
	PackageName      string    `db:"package_name" json:"-"`
	Version          string    `db:"version" json:"version"`
	Game             string    `db:"game" json:"game"`
	MinimumAPVersion string    `db:"minimum_ap_version" json:"minimum_ap_version"`
	MaximumAPVersion string    `db:"maximum_ap_version" json:"maximum_ap_version,omitempty"`
	ManifestJSON     string    `db:"manifest_json" json:"manifest"`
	PublishedBy      string    `db:"published_by" json:"published_by"`
	PublishedAt      time.Time `db:"published_at" json:"published_at"`
	Yanked           bool      `db:"yanked" json:"yanked"`
	YankReason       string    `db:"yank_reason" json:"yank_reason,omitempty"`

	// Provenance, populated only when published via a federated
	// identity token (spec §3).
	ProvenanceProvider   string `db:"provenance_provider" json:"provenance_provider,omitempty"`
	ProvenanceRepository string `db:"provenance_repository" json:"provenance_repository,omitempty"`
	ProvenanceWorkflow   string `db:"provenance_workflow" json:"provenance_workflow,omitempty"`
	ProvenanceCommit     string `db:"provenance_commit" json:"provenance_commit,omitempty"`
}

// Distribution is one externally-hosted artifact reference belonging
// to a version. The registry never stores the bytes, only metadata
// and the verifying URL (spec §1).
type Distribution struct {
	ID             int64      `db:"id" json:"-"`
	VersionID      int64      `db:"version_id" json:"-"`
	Filename       string     `db:"filename" json:"filename"`
	PlatformTag    string     `db:"platform_tag" json:"platform_tag"`
	Sha256         string     `db:"sha256" json:"sha256"`
	SizeBytes      int64      `db:"size_bytes" json:"size_bytes"`
	ExternalURL    string     `db:"external_url" json:"url"`
	RegisteredAt   time.Time  `db:"registered_at" json:"registered_at"`
	LastVerifiedAt *time.Time `db:"last_verified_at" json:"last_verified_at,omitempty"`
	URLStatus      string     `db:"url_status" json:"url_status"`
}

// URL health status values for Distribution.URLStatus.
const (
	URLStatusActive      = "active"
	URLStatusUnavailable = "unavailable"
)

// Publisher is one ownership or trusted-publisher grant for a package,
// mirroring the teacher's flat authorization-row convention rather
// than a separate owners/collaborators/rules table per concern.
type Publisher struct {
	ID             int64     `db:"id" json:"-"`
	PackageName    string    `db:"package_name" json:"-"`
	PublisherID    string    `db:"publisher_id" json:"publisher_id"`
	PublisherType  string    `db:"publisher_type" json:"publisher_type"`
	IsOwner        bool      `db:"is_owner" json:"is_owner"`
	AddedAt        time.Time `db:"added_at" json:"added_at"`
	Provider       string    `db:"provider" json:"provider,omitempty"`
	GitHubRepo     string    `db:"github_repository" json:"github_repository,omitempty"`
	GitHubWorkflow string    `db:"github_workflow" json:"github_workflow,omitempty"`
	GitHubEnv      string    `db:"github_environment" json:"github_environment,omitempty"`
}

// Publisher.PublisherType values.
const (
	PublisherTypeUser             = "user"
	PublisherTypeTrustedPublisher = "trusted_publisher"
)

// APIToken is a stored, hashed bearer credential (spec §4.6).
type APIToken struct {
	ID          int64      `db:"id" json:"-"`
	TokenHash   string     `db:"token_hash" json:"-"`
	PrincipalID string     `db:"principal_id" json:"principal_id"`
	Name        string     `db:"name" json:"name,omitempty"`
	Scopes      string     `db:"scopes" json:"scopes"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	ExpiresAt   *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	LastUsedAt  *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
	Revoked     bool       `db:"revoked" json:"revoked"`
}

// AuditLog records one mutating action for traceability, per the
// supplemented audit log feature (SPEC_FULL.md).
type AuditLog struct {
	ID          int64     `db:"id" json:"id"`
	PackageName string    `db:"package_name" json:"package_name"`
	Version     string    `db:"version" json:"version,omitempty"`
	Action      string    `db:"action" json:"action"`
	ActorID     string    `db:"actor_id" json:"actor_id"`
	ActorType   string    `db:"actor_type" json:"actor_type"`
	Timestamp   time.Time `db:"timestamp" json:"timestamp"`
	Details     string    `db:"details" json:"details,omitempty"`
}

// Audit action names.
const (
	ActionPublish         = "publish"
	ActionYank            = "yank"
	ActionAddCollaborator = "add_collaborator"
	ActionAddTrustedRule  = "add_trusted_publisher"
)
