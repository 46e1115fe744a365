package routes

import (
	"github.com/gin-gonic/gin"

	"taskquest/internal/api/handlers"
	"taskquest/internal/api/middleware"
	"taskquest/internal/realtime"
)

type Router struct {
	engine    *gin.Engine
	hub       *realtime.Hub
	jwtSecret string
}

func NewRouter(hub *realtime.Hub, jwtSecret string) *Router {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.LogAPI())
	engine.Use(middleware.CORS())

	return &Router{
		engine:    engine,
		hub:       hub,
		jwtSecret: jwtSecret,
	}
}

func (r *Router) SetupRoutes() {
	rt := handlers.NewRealtimeHandler(r.hub)

	r.engine.GET("/ws", middleware.WSAuth(r.jwtSecret), rt.HandleWebSocket)

	api := r.engine.Group("/api/v1")
	{
		api.GET("/presence/online", rt.GetOnlineUsers)
		// Called by the task-tracker CRUD service after a mutation.
		api.POST("/teams/:teamId/notify", rt.NotifyRoom)
	}

	r.engine.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "connections": r.hub.Registry().Len()})
	})
}

func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
