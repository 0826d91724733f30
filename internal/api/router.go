// internal/api/router.go
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"cooin-core/internal/common/auth"
	"cooin-core/internal/common/logger"
	"cooin-core/internal/common/observability"
)

// NewRouter assembles the HTTP surface of the matching core.
func NewRouter(h *Handlers, verifier auth.Verifier, log logger.Logger, obs *observability.Observability) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(log, obs))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	v1.Use(AuthMiddleware(verifier))
	{
		v1.GET("/tickets/:id/matches", h.GetMatches)
		v1.GET("/criteria", h.ListCriteria)

		v1.POST("/connections", h.ProposeConnection)
		v1.GET("/connections", h.ListConnections)
		v1.GET("/connections/:id", h.GetConnection)
		v1.POST("/connections/:id/respond", h.RespondConnection)

		v1.POST("/blocks", h.CreateBlock)
	}

	return router
}
