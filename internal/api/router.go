package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"execengine/internal/config"
	"execengine/internal/middleware"
)

// NewRouter builds the gin engine with every middleware and route
// wired up.
func NewRouter(h *Handler, cfg config.Config) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.Security())
	router.Use(corsMiddleware(cfg.CORSAllowedOrigins))
	router.Use(middleware.Timeout(cfg.RequestTimeout))

	router.GET("/v1/healthz", h.Healthz)

	v1 := router.Group("/v1")
	{
		v1.POST("/executions", middleware.SubmissionRateLimit(cfg.SubmissionRPM, cfg.SubmissionBurst), h.SubmitExecution)
		v1.GET("/executions", h.ListExecutions)
		v1.GET("/executions/running", h.ListRunningExecutions)
		v1.GET("/executions/:id", h.GetExecution)
		v1.DELETE("/executions", h.PruneExecutions)

		v1.GET("/programs", h.ListPrograms)
		v1.GET("/programs/:id", h.GetProgram)

		v1.GET("/images", h.ListImages)
		v1.GET("/containers", h.ListActiveContainers)
		v1.GET("/containers/logs", h.ContainerLogsByImage)

		v1.POST("/catalog/reload", h.ReloadCatalog)
	}

	return router
}

// corsMiddleware configures gin-contrib/cors with an explicit origin
// allowlist.
func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	c := cors.DefaultConfig()
	c.AllowOrigins = allowedOrigins
	c.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	c.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "X-Request-ID"}
	c.AllowCredentials = true
	return cors.New(c)
}
