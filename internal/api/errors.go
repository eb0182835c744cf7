package api

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// logInternalError logs err with a correlation ID and returns that ID
// for inclusion in the opaque response body, per spec §7's
// "internal errors are logged with a correlation ID and returned
// opaquely" propagation policy.
func logInternalError(c *gin.Context, err error) string {
	id := uuid.New().String()
	log.Printf("internal error [%s] %s %s: %v", id, c.Request.Method, c.Request.URL.Path, err)
	return id
}
