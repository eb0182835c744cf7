// Package api implements the HTTP Surface (spec §4.12): the gin
// routes binding the registry's internal services to the `/v1/*`
// wire contract, plus the supplemented account/ownership
// administration endpoints (SPEC_FULL.md). Modeled on the teacher's
// SetupRouter, generalized from the ebuild route table to the
// registry's package/version/distribution domain.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"islandregistry/internal/account"
	"islandregistry/internal/coordinator"
	"islandregistry/internal/discovery"
	"islandregistry/internal/identity"
	"islandregistry/internal/ownership"
	"islandregistry/internal/ratelimit"
	"islandregistry/internal/store"
)

// Deps bundles every service the HTTP Surface wires into routes.
type Deps struct {
	Store       *store.Store
	Discovery   *discovery.Engine
	Coordinator *coordinator.Coordinator
	Ownership   *ownership.Registry
	Identity    *identity.Service
	Account     *account.Service
	AuthLimiter *ratelimit.Limiter
	AnonLimiter *ratelimit.Limiter
}

// SetupRouter builds the gin Engine for the registry server.
func SetupRouter(d *Deps) *gin.Engine {
	r := gin.Default()
	r.GET("/", func(c *gin.Context) { c.Redirect(http.StatusFound, "/v1/health") })

	r.Use(AuthMiddleware(d.Identity))

	v1 := r.Group("/v1")

	v1.GET("/health", HealthHandler())

	readLimit := RateLimitMiddleware(d.AuthLimiter, d.AnonLimiter, ratelimit.CostRead)
	publishLimit := RateLimitMiddleware(d.AuthLimiter, d.AnonLimiter, ratelimit.CostPublish)

	// discovery (spec §4.12, all anonymous-readable)
	v1.GET("/packages", readLimit, ListPackagesHandler(d.Discovery))
	v1.GET("/packages/:name", readLimit, GetPackageHandler(d.Discovery))
	v1.GET("/packages/:name/versions", readLimit, ListVersionsHandler(d.Discovery))
	v1.GET("/packages/:name/:version", readLimit, GetVersionHandler(d.Discovery))
	v1.GET("/search", readLimit, SearchHandler(d.Discovery))
	v1.GET("/index.json", readLimit, SnapshotHandler(d.Discovery))

	// publish (spec §4.12, auth required)
	v1.POST("/register", publishLimit, RequireAuthenticated(), RegisterHandler(d.Coordinator))

	// ownership administration (SPEC_FULL.md supplemented feature, owner-only).
	// These DELETE routes register their static "collaborators"/
	// "trusted-publishers" segments under /packages/:name/ before yank's
	// :version wildcard is registered below — gin's radix tree only
	// allows a wildcard to join a node that already has static
	// children, not the reverse, so this ordering (not the route
	// shapes themselves) is what keeps the DELETE method's tree free
	// of the "conflicts with existing wildcard" panic.
	v1.POST("/packages/:name/collaborators", publishLimit, RequireAuthenticated(), AddCollaboratorHandler(d.Ownership, d.Store))
	v1.DELETE("/packages/:name/collaborators/:principal", publishLimit, RequireAuthenticated(), RemoveCollaboratorHandler(d.Ownership, d.Store))
	v1.POST("/packages/:name/trusted-publishers", publishLimit, RequireAuthenticated(), AddTrustedPublisherHandler(d.Ownership, d.Store))
	v1.DELETE("/packages/:name/trusted-publishers/:id", publishLimit, RequireAuthenticated(), RemoveTrustedPublisherHandler(d.Ownership, d.Store))

	// yank (spec §4.12, auth required) — registered last in the DELETE
	// tree, see the ordering note above.
	v1.DELETE("/packages/:name/:version/yank", publishLimit, RequireAuthenticated(), YankHandler(d.Coordinator))

	// account self-service: login/register a human account and mint the
	// opaque API tokens the Identity Service resolves above.
	v1.POST("/accounts", readLimit, RegisterAccountHandler(d.Account))
	v1.POST("/login", readLimit, LoginHandler(d.Account))
	tokens := v1.Group("/tokens")
	tokens.Use(CSRFMiddleware())
	tokens.POST("", SessionMiddleware(d.Account), CreateTokenHandler(d.Store))
	tokens.POST("/revoke", SessionMiddleware(d.Account), RevokeTokenHandler(d.Store))

	return r
}
