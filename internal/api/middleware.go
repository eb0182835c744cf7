package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"islandregistry/internal/account"
	"islandregistry/internal/identity"
	"islandregistry/internal/ratelimit"
	"islandregistry/internal/regerr"
)

type ctxKey string

const ctxPrincipal ctxKey = "principal"

// AuthMiddleware resolves the Authorization header to a Principal via
// the Identity Service, falling back to an anonymous principal
// bucketed by source address for unauthenticated reads (spec §4.6).
// It aborts only when an Authorization header is present but malformed
// or its credential is rejected; a request without one continues as
// anonymous, and routes that require a non-anonymous principal chain
// RequireAuthenticated after it.
func AuthMiddleware(idsvc *identity.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" {
			c.Set(string(ctxPrincipal), identity.ResolveAnonymous(c.ClientIP()))
			c.Next()
			return
		}
		parts := strings.SplitN(authz, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeError(c, regerr.New(regerr.KindUnauthenticated, "malformed Authorization header"))
			c.Abort()
			return
		}
		principal, err := idsvc.Resolve(c.Request.Context(), parts[1])
		if err != nil {
			writeError(c, err)
			c.Abort()
			return
		}
		c.Set(string(ctxPrincipal), principal)
		c.Next()
	}
}

// principalFrom reads the Principal AuthMiddleware attached to the
// request context.
func principalFrom(c *gin.Context) *identity.Principal {
	v, _ := c.Get(string(ctxPrincipal))
	p, _ := v.(*identity.Principal)
	return p
}

// SessionMiddleware resolves an account session cookie set at login
// into the account's principal ID, distinct from AuthMiddleware's
// bearer-token resolution: sessions authenticate the account surface
// (issuing/revoking API tokens), never a publish.
func SessionMiddleware(acct *account.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ck, err := c.Request.Cookie("registry_session")
		if err != nil {
			writeError(c, regerr.New(regerr.KindUnauthenticated, "missing session cookie"))
			c.Abort()
			return
		}
		principalID, err := acct.ResolveSession(ck.Value)
		if err != nil {
			writeError(c, err)
			c.Abort()
			return
		}
		c.Set("session_principal", principalID)
		c.Next()
	}
}

// RequireAuthenticated rejects anonymous principals, for routes spec
// §4.12 marks "auth: required" (register, yank, ownership admin).
func RequireAuthenticated() gin.HandlerFunc {
	return func(c *gin.Context) {
		p := principalFrom(c)
		if p == nil || p.Kind == identity.KindAnonymous {
			writeError(c, regerr.New(regerr.KindUnauthenticated, "this operation requires an authenticated principal"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// RateLimitMiddleware draws cost tokens from the Rate Limiter bucket
// appropriate to the resolved principal: anonymous traffic draws from
// anonLimiter's buckets, keyed by source address; authenticated
// principals draw from authLimiter's buckets,
// keyed by principal ID (spec §4.11).
func RateLimitMiddleware(authLimiter, anonLimiter *ratelimit.Limiter, cost ratelimit.Cost) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := principalFrom(c)
		limiter, key := anonLimiter, c.ClientIP()
		if p != nil && p.Kind != identity.KindAnonymous {
			limiter, key = authLimiter, p.ID
		}
		if _, err := limiter.Allow(key, cost); err != nil {
			writeError(c, err)
			c.Abort()
			return
		}
		c.Next()
	}
}

// CSRFMiddleware guards the cookie-session account surface exactly as
// the teacher's CSRFMiddleware guards its cookie-session flow: bearer
// callers are exempt, since a stolen cookie is the threat this guards
// against, not a stolen bearer token.
func CSRFMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		m := c.Request.Method
		if m != "POST" && m != "PUT" && m != "DELETE" && m != "PATCH" {
			c.Next()
			return
		}
		if c.GetHeader("Authorization") != "" {
			c.Next()
			return
		}
		hdr := c.GetHeader("X-CSRF-Token")
		ck, err := c.Request.Cookie("registry_csrf")
		if err != nil || ck == nil || hdr == "" || ck.Value != hdr {
			writeError(c, regerr.New(regerr.KindForbidden, "csrf token mismatch"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// writeError renders err in the stable {error:{code,message,details}}
// shape spec §4.12 requires, mapping its Kind to the status table in
// spec §6. Internal errors are logged with a correlation ID and
// returned opaquely (spec §7's propagation policy).
func writeError(c *gin.Context, err error) {
	status := regerr.StatusOf(err)
	kind := regerr.KindOf(err)
	if kind == "" || kind == regerr.KindInternal {
		corrID := logInternalError(c, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{
			"code":    "internal-error",
			"message": "an internal error occurred",
			"details": gin.H{"correlation_id": corrID},
		}})
		return
	}
	body := gin.H{"code": string(kind), "message": err.Error()}
	if re, ok := err.(*regerr.Error); ok {
		if re.Details() != nil {
			body["details"] = re.Details()
		}
		if re.SubReason() != "" {
			body["sub_reason"] = re.SubReason()
		}
	}
	c.JSON(status, gin.H{"error": body})
}
