// internal/app/router.go
package app

import (
	"net/http"

	queueHandler "frontdesk-service/internal/handlers/queue"
	syncHandler "frontdesk-service/internal/handlers/sync"
	visitHandler "frontdesk-service/internal/handlers/visit"
	wsHandler "frontdesk-service/internal/handlers/websocket"
	"frontdesk-service/internal/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HealthSource reports whether the backing store is reachable.
type HealthSource interface {
	Online() bool
}

type Handlers struct {
	VisitHandler   *visitHandler.VisitHandler
	QueueHandler   *queueHandler.QueueHandler
	SyncHandler    *syncHandler.SyncHandler
	WSHandler      *wsHandler.WebSocketHandler
	AuthMiddleware *middleware.AuthMiddleware
	Health         HealthSource
}

func SetupRouter(r *gin.Engine, logger *zap.Logger, h *Handlers) {
	api := r.Group("/api/v1")

	// ==================== Health Check ====================
	// the process is healthy while offline; store reachability is informational
	health := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "store_online": h.Health.Online()})
	}
	// root path for load balancer probes
	r.GET("/health", health)
	api.GET("/health", health)

	// ==================== WebSocket ====================
	r.GET("/ws", h.WSHandler.HandleConnection)

	staff := h.AuthMiddleware.Staff()
	managers := h.AuthMiddleware.ManagerOnly()

	// ==================== Visits ====================
	visits := api.Group("/visits")
	visits.Use(staff...)
	{
		visits.POST("", h.VisitHandler.SubmitVisit)
		visits.GET("/:id", h.VisitHandler.GetVisit)
		visits.PUT("/:id/status", h.VisitHandler.UpdateStatus)
	}

	assign := api.Group("/visits")
	assign.Use(managers...)
	{
		assign.POST("/:id/assign", h.VisitHandler.Assign)
		assign.POST("/:id/assign/auto", h.VisitHandler.AssignAuto)
		assign.POST("/:id/score", h.VisitHandler.Score)
	}

	// ==================== Queue ====================
	queue := api.Group("/queue")
	queue.Use(staff...)
	{
		queue.GET("", h.QueueHandler.ListQueue)
		queue.GET("/summary", h.QueueHandler.Summary)
		queue.GET("/pending", h.QueueHandler.ListPending)
		queue.GET("/active", h.QueueHandler.ListActive)
		queue.GET("/status/:status", h.QueueHandler.ListByStatus)
	}

	consultants := api.Group("/consultants")
	consultants.Use(staff...)
	{
		consultants.GET("/load", h.QueueHandler.ConsultantLoads)
	}

	// ==================== Offline sync ====================
	sync := api.Group("/sync")
	sync.Use(staff...)
	{
		sync.GET("/pending", h.SyncHandler.ListPending)
		sync.GET("/attention", h.SyncHandler.ListAttention)
		sync.POST("/drain", h.SyncHandler.Drain)
	}
	api.GET("/connectivity", append(staff, h.SyncHandler.Connectivity)...)

	// ==================== Admin ====================
	api.GET("/ws/stats", append(managers, h.WSHandler.GetStats)...)

	logger.Info("routes registered", zap.Int("count", len(r.Routes())))
}
