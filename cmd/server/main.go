package main

import (
	"log"

	"islandregistry/internal/account"
	"islandregistry/internal/api"
	"islandregistry/internal/config"
	"islandregistry/internal/coordinator"
	"islandregistry/internal/discovery"
	"islandregistry/internal/fetch"
	"islandregistry/internal/identity"
	"islandregistry/internal/ownership"
	"islandregistry/internal/ratelimit"
	"islandregistry/internal/store"
)

func main() {
	cfg := config.Load()

	s, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer s.Close()

	f := fetch.New(fetch.WithConfig(cfg.Fetch))
	defer f.Close()

	providers := make([]*identity.Provider, 0, len(cfg.OIDCProviders))
	for _, p := range cfg.OIDCProviders {
		providers = append(providers, identity.NewProvider(p.Name, p.Issuer, p.Audience, p.JWKSURL))
	}
	idsvc := identity.New(s, providers...)

	ownReg := ownership.New(s)
	coord := coordinator.New(s, ownReg, f)
	disc := discovery.New(s, discovery.WithFetcher(f))
	acct := account.New(s, cfg.SessionSigningKey)

	deps := &api.Deps{
		Store:       s,
		Discovery:   disc,
		Coordinator: coord,
		Ownership:   ownReg,
		Identity:    idsvc,
		Account:     acct,
		AuthLimiter: ratelimit.New(cfg.AuthenticatedRateLimit),
		AnonLimiter: ratelimit.New(cfg.AnonymousRateLimit),
	}

	r := api.SetupRouter(deps)

	log.Printf("starting server on %s", cfg.ListenAddr)
	if err := r.Run(cfg.ListenAddr); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
