package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"islandregistry/internal/discovery"
)

// ListPackagesHandler implements `GET /v1/packages` (spec §4.12).
func ListPackagesHandler(disc *discovery.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.Query("limit"))
		offset, _ := strconv.Atoi(c.Query("offset"))
		result, err := disc.ListPackages(c.Request.Context(), limit, offset)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"packages": result.Packages, "total": result.Total})
	}
}

// GetPackageHandler implements `GET /v1/packages/{name}`.
func GetPackageHandler(disc *discovery.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		pkg, err := disc.GetPackage(c.Request.Context(), c.Param("name"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, pkg)
	}
}

// ListVersionsHandler implements `GET /v1/packages/{name}/versions`.
func ListVersionsHandler(disc *discovery.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		versions, err := disc.ListVersions(c.Request.Context(), c.Param("name"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"versions": versions})
	}
}

// GetVersionHandler implements `GET /v1/packages/{name}/{version}`.
func GetVersionHandler(disc *discovery.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, err := disc.GetVersion(c.Request.Context(), c.Param("name"), c.Param("version"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, v)
	}
}

// SearchHandler implements `GET /v1/search`, translating query
// parameters into discovery.SearchQuery's combinable predicates
// (spec §4.10, §6 "S5").
func SearchHandler(disc *discovery.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		q := discovery.SearchQuery{
			Text:           c.Query("q"),
			Game:           c.Query("game"),
			EntryPoint:     c.Query("entry_point"),
			CompatibleWith: c.Query("compatible_with"),
			Platform:       c.Query("platform"),
		}
		results, err := disc.Search(c.Request.Context(), q)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"results": results})
	}
}

// SnapshotHandler implements `GET /v1/index.json`, the single-document
// export spec §4.10 and §8's property 7 (snapshot completeness) define.
func SnapshotHandler(disc *discovery.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap, err := disc.Snapshot(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, snap)
	}
}

// HealthHandler implements `GET /v1/health`.
func HealthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
