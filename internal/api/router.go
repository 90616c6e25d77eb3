package api

import (
	"net/http"
	"time"

	"minutes-orchestrator/internal/api/handler"
	"minutes-orchestrator/internal/logging"

	"github.com/gin-gonic/gin"
)

// NewRouter wires the REST routes plus the metrics and MCP handlers.
func NewRouter(h *handler.WorkflowHandler, metrics http.Handler, mcp http.Handler, logger *logging.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	router.POST("/workflows", h.SubmitWorkflow)
	router.GET("/workflows", h.ListWorkflows)
	router.GET("/workflows/:id", h.GetWorkflow)
	router.GET("/events", h.ListEvents)
	router.GET("/health", h.Health)

	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}
	if mcp != nil {
		router.Any("/mcp/*path", gin.WrapH(mcp))
	}
	return router
}

func requestLogger(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Debug("request handled",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start),
		)
	}
}
