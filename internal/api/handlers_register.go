package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"islandregistry/internal/coordinator"
	"islandregistry/internal/regerr"
)

// distributionRequest is one entry of the `distributions` array in the
// publish request body (spec §6).
type distributionRequest struct {
	Filename    string `json:"filename"`
	URL         string `json:"url"`
	Sha256      string `json:"sha256"`
	Size        int64  `json:"size"`
	PlatformTag string `json:"platform_tag"`
}

// RegisterHandler implements `POST /v1/register` (spec §4.12, §4.8):
// the single publish operation. The request body is the manifest's
// fields plus a `distributions` array; the array is split out before
// the remainder is handed to manifest.Parse as the stored snapshot, so
// `distributions` never leaks into the manifest's verbatim JSON.
func RegisterHandler(coord *coordinator.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body map[string]json.RawMessage
		if err := c.ShouldBindJSON(&body); err != nil {
			writeError(c, regerr.New(regerr.KindInvalidManifest, "request body is not valid JSON").
				WithDetails(map[string]any{"error": err.Error()}))
			return
		}

		var dists []distributionRequest
		if raw, ok := body["distributions"]; ok {
			if err := json.Unmarshal(raw, &dists); err != nil {
				writeError(c, regerr.New(regerr.KindInvalidManifest, "distributions must be an array").
					WithDetails(map[string]any{"error": err.Error()}))
				return
			}
			delete(body, "distributions")
		}

		manifestJSON, err := json.Marshal(body)
		if err != nil {
			writeError(c, regerr.Wrap(regerr.KindInternal, err))
			return
		}

		regs := make([]coordinator.DistributionRegistration, 0, len(dists))
		for _, d := range dists {
			regs = append(regs, coordinator.DistributionRegistration{
				Filename:       d.Filename,
				URL:            d.URL,
				DeclaredDigest: d.Sha256,
				DeclaredSize:   d.Size,
				PlatformTag:    d.PlatformTag,
			})
		}

		principal := principalFrom(c)
		outcome, err := coord.Publish(c.Request.Context(), principal, coordinator.PublishRequest{
			ManifestJSON:  manifestJSON,
			Distributions: regs,
		})
		if err != nil {
			writeError(c, err)
			return
		}

		// Idempotent replay returns 200 with a body identical in shape
		// to the original successful publish (spec §9 decision 1).
		c.JSON(http.StatusOK, gin.H{
			"name":    outcome.Manifest.Name,
			"version": outcome.Manifest.Version,
			"replay":  outcome.Replay,
		})
	}
}

// yankRequest is the `DELETE /v1/packages/{name}/{version}/yank` body.
type yankRequest struct {
	Reason string `json:"reason"`
}

// YankHandler implements `DELETE /v1/packages/{name}/{version}/yank`.
func YankHandler(coord *coordinator.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req yankRequest
		_ = c.ShouldBindJSON(&req)

		principal := principalFrom(c)
		err := coord.Yank(c.Request.Context(), principal, c.Param("name"), c.Param("version"), req.Reason)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "yanked"})
	}
}
