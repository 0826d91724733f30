// internal/api/middleware.go
package api

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"cooin-core/internal/common/auth"
	"cooin-core/internal/common/errors"
	"cooin-core/internal/common/logger"
	"cooin-core/internal/common/observability"
)

const identityKey = "identity"

// AuthMiddleware verifies the bearer token and stores the caller's identity
// in the request context.
func AuthMiddleware(verifier auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(c, errors.NewNotAuthorizedError("missing bearer token"))
			c.Abort()
			return
		}

		identity, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			writeError(c, err)
			c.Abort()
			return
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

// callerID returns the authenticated user id, or "" when the auth
// middleware did not run.
func callerID(c *gin.Context) string {
	v, ok := c.Get(identityKey)
	if !ok {
		return ""
	}
	identity, ok := v.(*auth.Identity)
	if !ok {
		return ""
	}
	return identity.UserID
}

// RequestLogger logs one line per request and feeds the request metrics.
// obs may be nil in tests.
func RequestLogger(log logger.Logger, obs *observability.Observability) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if obs != nil {
			obs.RecordRequest(c.Request.Context(), route, strconv.Itoa(status))
			obs.RecordRequestDuration(c.Request.Context(), time.Since(started), route)
		}

		log.Info("request handled", map[string]interface{}{
			"method":   c.Request.Method,
			"path":     route,
			"status":   status,
			"duration": time.Since(started).String(),
		})
	}
}
