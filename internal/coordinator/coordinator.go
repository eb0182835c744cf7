// Package coordinator implements the Registration Coordinator
// (spec §4.8): the single publish operation that validates a
// manifest, authorizes the principal, verifies every distribution
// against its declared digest and size, and commits the whole
// registration atomically. Concurrent distribution verification uses
// an errgroup.Group the way yeetrun-yeet/pkg/svc fans out independent
// startup steps and waits for the first failure.
package coordinator

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"islandregistry/internal/digest"
	"islandregistry/internal/fetch"
	"islandregistry/internal/filenamefmt"
	"islandregistry/internal/identity"
	"islandregistry/internal/manifest"
	"islandregistry/internal/ownership"
	"islandregistry/internal/regerr"
	"islandregistry/internal/store"
)

// DistributionRegistration is one caller-supplied distribution to
// register alongside a manifest (spec §4.8 "Input").
type DistributionRegistration struct {
	Filename       string
	URL            string
	DeclaredDigest string
	DeclaredSize   int64
	PlatformTag    string
}

// PublishRequest is the full input to a publish operation.
type PublishRequest struct {
	ManifestJSON  []byte
	Distributions []DistributionRegistration
}

// PublishOutcome is the committed result of a successful publish.
type PublishOutcome struct {
	Manifest *manifest.Manifest
	Replay   bool
}

// Coordinator wires the manifest, ownership, fetch, and store
// components into the single publish/yank operation.
type Coordinator struct {
	store     *store.Store
	ownership *ownership.Registry
	fetcher   *fetch.Fetcher
}

// New creates a Coordinator over the given store, ownership registry,
// and artifact fetcher.
func New(s *store.Store, own *ownership.Registry, f *fetch.Fetcher) *Coordinator {
	return &Coordinator{store: s, ownership: own, fetcher: f}
}

// Publish runs the full §4.8 algorithm: validate, authorize, check
// each distribution's filename/scheme/digest-width agreement with the
// manifest, fetch-and-verify every distribution concurrently, then
// commit atomically. Any failure aborts before any store effect. The
// whole publish runs under a 5 minute deadline.
func (c *Coordinator) Publish(ctx context.Context, principal *identity.Principal, req PublishRequest) (*PublishOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	m, err := manifest.Parse(req.ManifestJSON)
	if err != nil {
		return nil, err
	}

	decision, err := c.ownership.Authorize(ctx, principal, m.Name)
	if err != nil {
		return nil, err
	}

	if err := checkDistributions(m, req.Distributions); err != nil {
		return nil, err
	}

	params := buildPublishParams(m, req.Distributions, principal, decision)

	replay, err := c.precheckExistingVersion(ctx, m, params)
	if err != nil {
		return nil, err
	}

	if !replay {
		if err := c.verifyDistributions(ctx, req.Distributions); err != nil {
			return nil, err
		}
	}

	result, err := c.store.Publish(ctx, params)
	if err != nil {
		return nil, err
	}
	return &PublishOutcome{Manifest: m, Replay: result.Replay}, nil
}

// precheckExistingVersion implements spec §4.8 step 4 ahead of step 5:
// a republish of an already-committed (name, version) is resolved —
// as a replay or as a conflict — before any network fetch runs, so a
// duplicate publish fails fast with version-exists instead of paying
// for a fetch it was always going to discard, and a byte-identical
// replay skips re-verifying distributions it already verified once.
// The store still re-checks at commit time under its transaction;
// this is a fast path, not the only guard against a race.
func (c *Coordinator) precheckExistingVersion(ctx context.Context, m *manifest.Manifest, params store.PublishParams) (replay bool, err error) {
	existing, err := c.store.GetVersion(ctx, m.Name, m.Version)
	if store.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, regerr.Wrap(regerr.KindInternal, err)
	}

	dists, err := c.store.Distributions(ctx, existing.ID)
	if err != nil {
		return false, regerr.Wrap(regerr.KindInternal, err)
	}
	if store.ReplayMatches(existing, dists, params) {
		return true, nil
	}
	return false, regerr.New(regerr.KindVersionExists, "version already published").
		WithDetails(map[string]any{"name": m.Name, "version": m.Version})
}

// Yank sets the yanked flag on an existing version, after the same
// authorization check a publish would require (spec §4.8 "Yank").
func (c *Coordinator) Yank(ctx context.Context, principal *identity.Principal, packageName, ver, reason string) error {
	if _, err := c.ownership.Authorize(ctx, principal, packageName); err != nil {
		return err
	}
	actorType := "user"
	if principal.Kind == identity.KindFederated {
		actorType = "trusted_publisher"
	}
	return c.store.Yank(ctx, packageName, ver, principal.ID, actorType, reason)
}

// checkDistributions implements §4.8 step 3: each distribution's
// filename must parse under the filename grammar (§4.2) and agree with
// the manifest's name, version, and declared digest width.
func checkDistributions(m *manifest.Manifest, regs []DistributionRegistration) error {
	if len(regs) == 0 {
		return regerr.New(regerr.KindInvalidFilename, "at least one distribution is required")
	}
	for _, r := range regs {
		parsed, err := filenamefmt.Parse(r.Filename)
		if err != nil {
			return err
		}
		if err := filenamefmt.CheckAgreement(parsed, m.Name, m.Version, r.PlatformTag); err != nil {
			return err
		}
		if !strings.HasPrefix(r.URL, "https://") {
			return regerr.New(regerr.KindURLNotHTTPS, "distribution URL must use https").
				WithDetails(map[string]any{"url": r.URL})
		}
		if len(r.DeclaredDigest) != digest.HexWidth {
			return regerr.New(regerr.KindDigestMismatch, "declared digest has the wrong width for sha256").
				WithDetails(map[string]any{"filename": r.Filename, "width": len(r.DeclaredDigest)})
		}
	}
	return nil
}

// verifyDistributions fetches and verifies every distribution
// concurrently (spec §4.8 step 5), at most 8 at a time; the first
// failure cancels the rest via the errgroup's derived context, and no
// partial state is ever visible to the store.
func (c *Coordinator) verifyDistributions(ctx context.Context, regs []DistributionRegistration) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, r := range regs {
		r := r
		g.Go(func() error {
			_, err := c.fetcher.FetchAndVerify(gctx, r.URL, r.DeclaredDigest, r.DeclaredSize)
			return err
		})
	}
	return g.Wait()
}

func buildPublishParams(m *manifest.Manifest, regs []DistributionRegistration, p *identity.Principal, decision *ownership.Decision) store.PublishParams {
	dists := make([]store.DistributionInput, 0, len(regs))
	for _, r := range regs {
		parsed, _ := filenamefmt.Parse(r.Filename)
		platformTag := r.PlatformTag
		if platformTag == "" && parsed.Kind == filenamefmt.KindBinary {
			platformTag = parsed.Tag.String()
		}
		dists = append(dists, store.DistributionInput{
			Filename:    r.Filename,
			PlatformTag: platformTag,
			Sha256:      strings.ToLower(r.DeclaredDigest),
			SizeBytes:   r.DeclaredSize,
			ExternalURL: r.URL,
		})
	}

	var prov *store.ProvenanceInput
	if p.Kind == identity.KindFederated && p.Federated != nil {
		prov = &store.ProvenanceInput{
			Provider:   p.Federated.Provider,
			Repository: p.Federated.Repository,
			Workflow:   p.Federated.Workflow,
			Commit:     p.Federated.CommitSHA,
		}
	}

	params := store.PublishParams{
		PackageName:  m.Name,
		DisplayGame:  m.Game,
		Description:  m.Description,
		License:      m.License,
		Homepage:     m.Homepage,
		Repository:   m.Repository,
		Version:      m.Version,
		MinimumAP:    m.MinimumAPVersion,
		MaximumAP:    m.MaximumAPVersion,
		ManifestJSON: string(m.RawJSON),
		EntryPoints:  m.EntryPoints,
		Keywords:     m.Keywords,
		PublishedBy:  p.ID,

		Distributions: dists,
		Provenance:    prov,
		IsClaim:       decision.IsClaim,
	}
	if decision.IsClaim {
		params.InitialTrustedPublisher = ownership.InitialTrustedPublisher(p)
	}
	return params
}
