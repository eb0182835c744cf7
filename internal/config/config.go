// Package config reads the registry's process-wide, init-time
// configuration (spec §6 "Configuration") from environment variables
// into a typed struct, the same os.Getenv convention the teacher's
// cmd/server/main.go and handlers_auth.go cookie flags use — no
// configuration framework appears anywhere in the example corpus.
package config

import (
	"os"
	"strconv"
	"time"

	"islandregistry/internal/fetch"
	"islandregistry/internal/ratelimit"
)

// OIDCProvider is one configured federated identity source.
type OIDCProvider struct {
	Name     string
	Issuer   string
	Audience string
	JWKSURL  string
}

// Config is the full set of init-time settings a running server needs.
type Config struct {
	ListenAddr string
	DBPath     string

	SessionSigningKey []byte

	Fetch fetch.Config

	AuthenticatedRateLimit ratelimit.Config
	AnonymousRateLimit     ratelimit.Config

	OIDCProviders []OIDCProvider
}

// Load reads Config from the process environment, falling back to the
// registry's chosen defaults (spec §9) for anything unset.
func Load() Config {
	cfg := Config{
		ListenAddr:             getEnv("REGISTRY_LISTEN_ADDR", ":8080"),
		DBPath:                 getEnv("REGISTRY_DB_PATH", "registry.db"),
		SessionSigningKey:      []byte(getEnv("REGISTRY_SESSION_SIGNING_KEY", "dev-signing-key")),
		Fetch:                  fetch.DefaultConfig(),
		AuthenticatedRateLimit: ratelimit.DefaultAuthenticatedConfig(),
		AnonymousRateLimit:     ratelimit.DefaultAnonymousConfig(),
	}

	if v := os.Getenv("REGISTRY_FETCH_MAX_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Fetch.MaxBytes = n
		}
	}
	if v := os.Getenv("REGISTRY_FETCH_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Fetch.Timeout = time.Duration(n) * time.Second
		}
	}

	if name, issuer, audience, jwksURL := os.Getenv("REGISTRY_OIDC_NAME"), os.Getenv("REGISTRY_OIDC_ISSUER"),
		os.Getenv("REGISTRY_OIDC_AUDIENCE"), os.Getenv("REGISTRY_OIDC_JWKS_URL"); name != "" && issuer != "" && jwksURL != "" {
		cfg.OIDCProviders = append(cfg.OIDCProviders, OIDCProvider{
			Name: name, Issuer: issuer, Audience: audience, JWKSURL: jwksURL,
		})
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
