package store

// schema is applied on every startup; CREATE TABLE/INDEX IF NOT EXISTS
// statements make it idempotent, the same convention
// cmd/server/main.go's dev bootstrap relies on for the teacher's
// sqlite-backed store.
const schema = `
CREATE TABLE IF NOT EXISTS packages (
	name         TEXT PRIMARY KEY,
	display_name TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	license      TEXT NOT NULL DEFAULT '',
	homepage     TEXT NOT NULL DEFAULT '',
	repository   TEXT NOT NULL DEFAULT '',
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS versions (
	id                    INTEGER PRIMARY KEY AUTOINCREMENT,
	package_name          TEXT NOT NULL REFERENCES packages(name) ON DELETE CASCADE,
	version               TEXT NOT NULL,
	game                  TEXT NOT NULL,
	minimum_ap_version    TEXT NOT NULL,
	maximum_ap_version    TEXT NOT NULL DEFAULT '',
	manifest_json         TEXT NOT NULL,
	published_by          TEXT NOT NULL,
	published_at          DATETIME NOT NULL,
	yanked                INTEGER NOT NULL DEFAULT 0,
	yank_reason           TEXT NOT NULL DEFAULT '',
	provenance_provider   TEXT NOT NULL DEFAULT '',
	provenance_repository TEXT NOT NULL DEFAULT '',
	provenance_workflow   TEXT NOT NULL DEFAULT '',
	provenance_commit     TEXT NOT NULL DEFAULT '',
	UNIQUE (package_name, version)
);

CREATE TABLE IF NOT EXISTS distributions (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	version_id       INTEGER NOT NULL REFERENCES versions(id) ON DELETE CASCADE,
	filename         TEXT NOT NULL,
	platform_tag     TEXT NOT NULL,
	sha256           TEXT NOT NULL,
	size_bytes       INTEGER NOT NULL,
	external_url     TEXT NOT NULL,
	registered_at    DATETIME NOT NULL,
	last_verified_at DATETIME,
	url_status       TEXT NOT NULL DEFAULT 'active',
	UNIQUE (version_id, filename)
);

CREATE TABLE IF NOT EXISTS entry_points (
	version_id INTEGER NOT NULL REFERENCES versions(id) ON DELETE CASCADE,
	identifier TEXT NOT NULL,
	target     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entry_points_identifier ON entry_points(identifier);

CREATE TABLE IF NOT EXISTS keywords (
	package_name TEXT NOT NULL REFERENCES packages(name) ON DELETE CASCADE,
	keyword      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_keywords_keyword ON keywords(keyword);

CREATE TABLE IF NOT EXISTS publishers (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	package_name       TEXT NOT NULL REFERENCES packages(name) ON DELETE CASCADE,
	publisher_id       TEXT NOT NULL,
	publisher_type     TEXT NOT NULL,
	is_owner           INTEGER NOT NULL DEFAULT 0,
	added_at           DATETIME NOT NULL,
	provider           TEXT NOT NULL DEFAULT '',
	github_repository  TEXT NOT NULL DEFAULT '',
	github_workflow    TEXT NOT NULL DEFAULT '',
	github_environment TEXT NOT NULL DEFAULT '',
	UNIQUE (package_name, publisher_id, publisher_type, github_repository, github_workflow, github_environment)
);
CREATE INDEX IF NOT EXISTS idx_publishers_package ON publishers(package_name);

CREATE TABLE IF NOT EXISTS api_tokens (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	token_hash    TEXT NOT NULL UNIQUE,
	principal_id  TEXT NOT NULL,
	name          TEXT NOT NULL DEFAULT '',
	scopes        TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL,
	expires_at    DATETIME,
	last_used_at  DATETIME,
	revoked       INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_api_tokens_principal ON api_tokens(principal_id);

CREATE TABLE IF NOT EXISTS accounts (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_logs (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	package_name TEXT NOT NULL,
	version      TEXT NOT NULL DEFAULT '',
	action       TEXT NOT NULL,
	actor_id     TEXT NOT NULL,
	actor_type   TEXT NOT NULL,
	timestamp    DATETIME NOT NULL,
	details      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_audit_logs_package ON audit_logs(package_name);
CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs(timestamp);
`
