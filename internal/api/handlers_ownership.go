package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"islandregistry/internal/ownership"
	"islandregistry/internal/regerr"
	"islandregistry/internal/store"
)

type collaboratorRequest struct {
	PrincipalID string `json:"principal_id" binding:"required"`
}

type trustedPublisherRequest struct {
	Provider    string `json:"provider" binding:"required"`
	Repository  string `json:"repository" binding:"required"`
	Workflow    string `json:"workflow"`
	Environment string `json:"environment"`
}

// AddCollaboratorHandler implements `POST /v1/packages/{name}/collaborators`
// (SPEC_FULL.md "Publisher/collaborator administration surface"),
// owner-only per spec §4.7.
func AddCollaboratorHandler(own *ownership.Registry, s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")
		principal := principalFrom(c)
		if _, err := own.AuthorizeMutation(c.Request.Context(), principal, name); err != nil {
			writeError(c, err)
			return
		}
		var req collaboratorRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, regerr.New(regerr.KindInvalidManifest, "principal_id is required"))
			return
		}
		if err := s.AddCollaborator(c.Request.Context(), name, req.PrincipalID, principal.ID); err != nil {
			writeError(c, regerr.Wrap(regerr.KindInternal, err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "added"})
	}
}

// RemoveCollaboratorHandler implements
// `DELETE /v1/packages/{name}/collaborators/{principal}`.
func RemoveCollaboratorHandler(own *ownership.Registry, s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")
		principal := principalFrom(c)
		if _, err := own.AuthorizeMutation(c.Request.Context(), principal, name); err != nil {
			writeError(c, err)
			return
		}
		if err := s.RemoveCollaborator(c.Request.Context(), name, c.Param("principal")); err != nil {
			writeError(c, regerr.Wrap(regerr.KindInternal, err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "removed"})
	}
}

// AddTrustedPublisherHandler implements
// `POST /v1/packages/{name}/trusted-publishers`.
func AddTrustedPublisherHandler(own *ownership.Registry, s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")
		principal := principalFrom(c)
		if _, err := own.AuthorizeMutation(c.Request.Context(), principal, name); err != nil {
			writeError(c, err)
			return
		}
		var req trustedPublisherRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, regerr.New(regerr.KindInvalidManifest, "provider and repository are required"))
			return
		}
		rule := ownership.TrustedPublisherRule{
			Provider:    req.Provider,
			Repository:  req.Repository,
			Workflow:    req.Workflow,
			Environment: req.Environment,
		}
		if err := s.AddTrustedPublisher(c.Request.Context(), name, rule, principal.ID); err != nil {
			writeError(c, regerr.Wrap(regerr.KindInternal, err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "added"})
	}
}

// RemoveTrustedPublisherHandler implements
// `DELETE /v1/packages/{name}/trusted-publishers/{id}`.
func RemoveTrustedPublisherHandler(own *ownership.Registry, s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")
		principal := principalFrom(c)
		if _, err := own.AuthorizeMutation(c.Request.Context(), principal, name); err != nil {
			writeError(c, err)
			return
		}
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			writeError(c, regerr.New(regerr.KindInvalidManifest, "id must be numeric"))
			return
		}
		if err := s.RemoveTrustedPublisher(c.Request.Context(), name, id); err != nil {
			writeError(c, regerr.Wrap(regerr.KindInternal, err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "removed"})
	}
}
