package api

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"islandregistry/internal/account"
	"islandregistry/internal/identity"
	"islandregistry/internal/regerr"
	"islandregistry/internal/store"
)

// registerAccountRequest is the `POST /v1/accounts` body.
type registerAccountRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RegisterAccountHandler creates a human account able to self-issue API
// tokens (SPEC_FULL.md ambient stack "admin session password hashing").
func RegisterAccountHandler(acct *account.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerAccountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, regerr.New(regerr.KindInvalidManifest, "username and password are required"))
			return
		}
		a, err := acct.Register(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"username": a.Username})
	}
}

// loginRequest is the `POST /v1/login` body.
type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginHandler exchanges a username/password for a session, set as an
// httponly cookie the way the teacher's LoginHandler sets its refresh
// cookie, plus a readable CSRF cookie for the mutating endpoints this
// session can reach.
func LoginHandler(acct *account.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, regerr.New(regerr.KindInvalidManifest, "username and password are required"))
			return
		}
		session, err := acct.Login(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			writeError(c, err)
			return
		}

		csrfBytes := make([]byte, 32)
		if _, err := rand.Read(csrfBytes); err != nil {
			writeError(c, regerr.Wrap(regerr.KindInternal, err))
			return
		}
		csrf := hex.EncodeToString(csrfBytes)

		secure := os.Getenv("REGISTRY_COOKIE_SECURE") == "1"
		samesite := http.SameSiteStrictMode
		if os.Getenv("REGISTRY_COOKIE_SAMESITE") == "Lax" {
			samesite = http.SameSiteLaxMode
		}
		http.SetCookie(c.Writer, &http.Cookie{
			Name: "registry_session", Value: session, Path: "/", HttpOnly: true,
			Secure: secure, SameSite: samesite, MaxAge: int(account.SessionTTL.Seconds()),
		})
		http.SetCookie(c.Writer, &http.Cookie{
			Name: "registry_csrf", Value: csrf, Path: "/", HttpOnly: false,
			Secure: secure, SameSite: samesite, MaxAge: int(account.SessionTTL.Seconds()),
		})
		c.JSON(http.StatusOK, gin.H{"csrf": csrf})
	}
}

// createTokenRequest is the `POST /v1/tokens` body.
type createTokenRequest struct {
	Name   string   `json:"name"`
	Scopes []string `json:"scopes"`
}

// CreateTokenHandler mints a new opaque API token bound to the
// session's account, for the Identity Service to resolve on a later
// publish. Generated as random bytes, not a JWT, so
// identity.looksLikeJWT correctly routes it to the API-token path.
func CreateTokenHandler(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		principalID, _ := c.Get("session_principal")
		principal, _ := principalID.(string)

		var req createTokenRequest
		_ = c.ShouldBindJSON(&req)

		raw := make([]byte, 32)
		if _, err := rand.Read(raw); err != nil {
			writeError(c, regerr.Wrap(regerr.KindInternal, err))
			return
		}
		token := "reg_" + hex.EncodeToString(raw)
		hash := identity.HashToken(token)

		if _, err := s.CreateAPIToken(c.Request.Context(), hash, principal, req.Name, req.Scopes); err != nil {
			writeError(c, regerr.Wrap(regerr.KindInternal, err))
			return
		}
		c.JSON(http.StatusCreated, gin.H{"token": token})
	}
}

// revokeTokenRequest is the `POST /v1/tokens/revoke` body.
type revokeTokenRequest struct {
	Token string `json:"token" binding:"required"`
}

// RevokeTokenHandler revokes an API token by its raw value.
func RevokeTokenHandler(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req revokeTokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, regerr.New(regerr.KindInvalidManifest, "token is required"))
			return
		}
		if err := s.RevokeAPIToken(c.Request.Context(), identity.HashToken(req.Token)); err != nil {
			writeError(c, regerr.Wrap(regerr.KindInternal, err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "revoked"})
	}
}
