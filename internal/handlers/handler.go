package handlers

import (
	"ecs_event_collector/internal/logger"
	"ecs_event_collector/internal/metrics"
	"ecs_event_collector/internal/service"

	"github.com/gin-gonic/gin"
)

// Handler wires HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	log      *logger.Logger
}

// NewHandler constructs a new HTTP handler with dependencies.
func NewHandler(services *service.Service, log *logger.Logger) *Handler {
	return &Handler{services: services, log: log}
}

// InitRoutes builds and returns the Gin router with all routes registered.
// The status API is read-only.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), h.requestLogger)

	router.GET("/health", h.health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	h.registerAPIRoutes(router)

	return router
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		api.GET("/runs", h.listRuns)
	}
}
