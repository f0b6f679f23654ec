package http

import (
	"github.com/gin-gonic/gin"

	"github.com/lucasmnrd/requestline/internal/delivery/ws"
	"github.com/lucasmnrd/requestline/internal/service"
)

// NewRouter wires the public API, the DJ API and the websocket endpoint.
func NewRouter(h *Handler, wsHandler *ws.Handler, djSvc service.DJService, mode string) *gin.Engine {
	gin.SetMode(mode)

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", h.Health)
	r.GET("/ws", wsHandler.Serve)

	api := r.Group("/api")

	auth := api.Group("/auth")
	{
		auth.POST("/register", h.Register)
		auth.POST("/login", h.Login)
		auth.GET("/me", RequireAuth(djSvc), h.CurrentDJ)
	}

	dj := api.Group("/dj", RequireAuth(djSvc))
	{
		dj.GET("/dashboard", h.Dashboard)
		dj.GET("/history", h.History)
	}

	events := api.Group("/events", OptionalAuth(djSvc))
	{
		events.POST("", RequireAuth(djSvc), h.CreateEvent)
		events.GET("/:eventId", h.GetEvent)
		events.POST("/:eventId/end", h.EndEvent)
		events.GET("/:eventId/stats", h.EventStats)
		events.GET("/:eventId/pending", h.PendingRequests)
		events.POST("/:eventId/toggle-votes", h.ToggleVotes)
		events.POST("/:eventId/toggle-duplicates", h.ToggleDuplicates)
		events.POST("/:eventId/toggle-auto-accept", h.ToggleAutoAccept)
		events.POST("/:eventId/update-rate-limit", h.UpdateRateLimit)
		events.POST("/:eventId/add-song-dj", h.AddSongDJ)
	}

	sp := api.Group("/spotify")
	{
		sp.GET("/search", h.SearchTracks)
		sp.POST("/play", h.Play)
	}

	return r
}
