package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lucasmnrd/requestline/internal/models"
	"github.com/lucasmnrd/requestline/internal/service"
	"github.com/lucasmnrd/requestline/internal/spotify"
	"github.com/lucasmnrd/requestline/pkg/logger"
)

type Handler struct {
	eventSvc     service.EventService
	admissionSvc service.AdmissionService
	djSvc        service.DJService
	spotifyCli   spotify.Client
	baseURL      string
	l            logger.Logger
}

func NewHandler(
	eventSvc service.EventService,
	admissionSvc service.AdmissionService,
	djSvc service.DJService,
	spotifyCli spotify.Client,
	baseURL string,
	l logger.Logger,
) *Handler {
	return &Handler{
		eventSvc:     eventSvc,
		admissionSvc: admissionSvc,
		djSvc:        djSvc,
		spotifyCli:   spotifyCli,
		baseURL:      baseURL,
		l:            l,
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type registerRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	dj, token, err := h.djSvc.Register(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrEmailTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
			return
		}
		h.fail(c, "Register", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"dj": dj, "token": token})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	dj, token, err := h.djSvc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
			return
		}
		h.fail(c, "Login", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"dj": dj, "token": token})
}

func (h *Handler) CurrentDJ(c *gin.Context) {
	dj, err := h.djSvc.Get(c.Request.Context(), *djID(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown dj"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"dj": dj})
}

func (h *Handler) Dashboard(c *gin.Context) {
	dash, events, err := h.djSvc.Dashboard(c.Request.Context(), *djID(c))
	if err != nil {
		h.fail(c, "Dashboard", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dashboard": dash, "active_events": events})
}

func (h *Handler) History(c *gin.Context) {
	events, err := h.djSvc.History(c.Request.Context(), *djID(c))
	if err != nil {
		h.fail(c, "History", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

type createEventRequest struct {
	Name string `json:"name" binding:"required,max=120"`
}

func (h *Handler) CreateEvent(c *gin.Context) {
	var req createEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	event, err := h.eventSvc.Create(c.Request.Context(), req.Name, djID(c))
	if err != nil {
		h.fail(c, "CreateEvent", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"event":    event,
		"join_url": h.baseURL + "/event/" + event.ID,
	})
}

func (h *Handler) GetEvent(c *gin.Context) {
	event, queue, err := h.eventSvc.Get(c.Request.Context(), c.Param("eventId"))
	if err != nil {
		h.eventErr(c, "GetEvent", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"event": event, "queue": queue})
}

func (h *Handler) EndEvent(c *gin.Context) {
	if err := h.eventSvc.End(c.Request.Context(), c.Param("eventId"), djID(c)); err != nil {
		h.eventErr(c, "EndEvent", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) EventStats(c *gin.Context) {
	stats, top, err := h.eventSvc.Stats(c.Request.Context(), c.Param("eventId"))
	if err != nil {
		h.eventErr(c, "EventStats", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats, "top_tracks": top})
}

func (h *Handler) PendingRequests(c *gin.Context) {
	pending, err := h.eventSvc.Pending(c.Request.Context(), c.Param("eventId"))
	if err != nil {
		h.eventErr(c, "PendingRequests", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": pending})
}

type toggleRequest struct {
	Enabled bool `json:"enabled"`
}

func (h *Handler) ToggleVotes(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	err := h.eventSvc.SetVotesEnabled(c.Request.Context(), c.Param("eventId"), djID(c), req.Enabled)
	if err != nil {
		h.eventErr(c, "ToggleVotes", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"votes_enabled": req.Enabled})
}

func (h *Handler) ToggleAutoAccept(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	err := h.eventSvc.SetAutoAccept(c.Request.Context(), c.Param("eventId"), djID(c), req.Enabled)
	if err != nil {
		h.eventErr(c, "ToggleAutoAccept", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"auto_accept_enabled": req.Enabled})
}

func (h *Handler) ToggleDuplicates(c *gin.Context) {
	allowed, err := h.eventSvc.ToggleDuplicates(c.Request.Context(), c.Param("eventId"), djID(c))
	if err != nil {
		h.eventErr(c, "ToggleDuplicates", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"allow_duplicates": allowed})
}

type rateLimitRequest struct {
	Max           int `json:"max" binding:"required,min=1"`
	WindowMinutes int `json:"window_minutes" binding:"required,min=1"`
}

func (h *Handler) UpdateRateLimit(c *gin.Context) {
	var req rateLimitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	err := h.eventSvc.UpdateRateLimitPolicy(c.Request.Context(), c.Param("eventId"), djID(c), req.Max, req.WindowMinutes)
	if err != nil {
		h.eventErr(c, "UpdateRateLimit", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"max": req.Max, "window_minutes": req.WindowMinutes})
}

type addSongRequest struct {
	Track    models.Track `json:"track" binding:"required"`
	UserName string       `json:"user_name"`
}

// AddSongDJ lets the booth queue a track directly, without admission
// checks.
func (h *Handler) AddSongDJ(c *gin.Context) {
	var req addSongRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	reqID, pos, err := h.admissionSvc.AddByDJ(c.Request.Context(), c.Param("eventId"), req.Track, req.UserName)
	if err != nil {
		h.eventErr(c, "AddSongDJ", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "request_id": reqID, "queue_position": pos})
}

func (h *Handler) SearchTracks(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q parameter required"})
		return
	}

	tracks, err := h.spotifyCli.Search(c.Request.Context(), query)
	if err != nil {
		h.fail(c, "SearchTracks", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tracks": tracks})
}

type playRequest struct {
	URI         string `json:"uri" binding:"required"`
	DeviceID    string `json:"device_id"`
	AccessToken string `json:"access_token" binding:"required"`
}

func (h *Handler) Play(c *gin.Context) {
	var req playRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	err := h.spotifyCli.Play(c.Request.Context(), req.AccessToken, req.DeviceID, req.URI)
	if err != nil {
		switch {
		case errors.Is(err, spotify.ErrDeviceNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "no active playback device"})
		case errors.Is(err, spotify.ErrPremiumRequired):
			c.JSON(http.StatusForbidden, gin.H{"error": "playback requires a premium account"})
		default:
			h.fail(c, "Play", err)
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "device_id": req.DeviceID})
}

// eventErr maps event-scoped service failures onto HTTP statuses.
func (h *Handler) eventErr(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, service.ErrEventNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
	case errors.Is(err, service.ErrEventEnded):
		c.JSON(http.StatusGone, gin.H{"error": "event has ended"})
	case errors.Is(err, service.ErrNotEventOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": "event belongs to another dj"})
	default:
		h.fail(c, op, err)
	}
}

func (h *Handler) fail(c *gin.Context, op string, err error) {
	h.l.Errorf(c.Request.Context(), "httpHandler.%s: %v", op, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
