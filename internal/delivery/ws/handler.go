package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lucasmnrd/requestline/internal/broadcast"
	"github.com/lucasmnrd/requestline/internal/models"
	"github.com/lucasmnrd/requestline/internal/service"
	"github.com/lucasmnrd/requestline/pkg/logger"
)

// Inbound action names.
const (
	actionJoinEvent      = "join-event"
	actionRequestSong    = "request-song"
	actionVote           = "vote"
	actionAcceptRequest  = "accept-request"
	actionRejectRequest  = "reject-request"
	actionReorderQueue   = "reorder-queue"
	actionMarkPlayed     = "mark-played"
	actionUpdateSettings = "update-event-settings"
)

type action struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload"`
}

type errorPayload struct {
	Type    string `json:"type,omitempty"`
	Message string `json:"message"`
}

type Handler struct {
	hub          *Hub
	admissionSvc service.AdmissionService
	voteSvc      service.VoteService
	upgrader     websocket.Upgrader
	l            logger.Logger
}

func NewHandler(hub *Hub, admissionSvc service.AdmissionService, voteSvc service.VoteService, l logger.Logger) *Handler {
	return &Handler{
		hub:          hub,
		admissionSvc: admissionSvc,
		voteSvc:      voteSvc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		l: l,
	}
}

// Serve upgrades the connection and runs the client pumps. Each socket is
// assigned a fresh channel id; identity does not survive reconnects.
func (h *Handler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.l.Warnf(c.Request.Context(), "ws.Handler.Serve: upgrade failed: %v", err)
		return
	}

	client := &Client{
		hub:       h.hub,
		conn:      conn,
		channelID: uuid.New().String(),
		send:      make(chan []byte, sendBuffer),
	}
	h.hub.register(client)

	go client.writePump()
	go client.readPump(context.Background(), h)
}

// dispatch routes one inbound frame. Engine calls run in their own
// goroutine so a slow store never stalls the read pump.
func (h *Handler) dispatch(ctx context.Context, c *Client, raw []byte) {
	var act action
	if err := json.Unmarshal(raw, &act); err != nil {
		c.emit(broadcast.NameRequestError, errorPayload{Message: "malformed action"})
		return
	}

	switch act.Action {
	case actionJoinEvent:
		go h.handleJoin(ctx, c, act.Payload)
	case actionRequestSong:
		go h.handleRequestSong(ctx, c, act.Payload)
	case actionVote:
		go h.handleVote(ctx, c, act.Payload)
	case actionAcceptRequest:
		go h.handleAccept(ctx, c, act.Payload)
	case actionRejectRequest:
		go h.handleReject(ctx, c, act.Payload)
	case actionReorderQueue:
		go h.handleReorder(ctx, c, act.Payload)
	case actionMarkPlayed:
		go h.handleMarkPlayed(ctx, c, act.Payload)
	case actionUpdateSettings:
		go h.handleUpdateSettings(ctx, c, act.Payload)
	default:
		c.emit(broadcast.NameRequestError, errorPayload{Message: "unknown action"})
	}
}

func (h *Handler) handleJoin(ctx context.Context, c *Client, raw json.RawMessage) {
	var p struct {
		EventID string `json:"event_id"`
	}
	if err := json.Unmarshal(raw, &p); err != nil || p.EventID == "" {
		return
	}

	h.hub.join(c, p.EventID)

	status, err := h.admissionSvc.RateLimitStatus(ctx, c.channelID, p.EventID)
	if err != nil {
		h.l.Errorf(ctx, "ws.Handler.handleJoin: %v", err)
		return
	}
	c.emit(broadcast.NameRateLimitStatus, status)
}

func (h *Handler) handleRequestSong(ctx context.Context, c *Client, raw json.RawMessage) {
	var p struct {
		EventID  string       `json:"event_id"`
		Track    models.Track `json:"track"`
		UserName string       `json:"user_name"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		c.emit(broadcast.NameRequestError, errorPayload{Message: "malformed request"})
		return
	}

	out, err := h.admissionSvc.Submit(ctx, service.SubmitInput{
		EventID:   p.EventID,
		Track:     p.Track,
		UserName:  p.UserName,
		ChannelID: c.channelID,
	})
	if err != nil {
		c.emit(broadcast.NameRequestError, submitError(err))
		return
	}

	c.emit(broadcast.NameRequestCreated, out)
	c.emit(broadcast.NameRateLimitStatus, out.RateLimit)
}

func (h *Handler) handleVote(ctx context.Context, c *Client, raw json.RawMessage) {
	var p struct {
		RequestID string          `json:"request_id"`
		VoteType  models.VoteType `json:"vote_type"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}

	if _, err := h.voteSvc.Vote(ctx, p.RequestID, c.channelID, p.VoteType); err != nil {
		// Invalid targets are dropped quietly, other failures surface.
		switch {
		case errors.Is(err, service.ErrInvalidVoteType),
			errors.Is(err, service.ErrRequestNotFound),
			errors.Is(err, service.ErrInvalidTransition):
			return
		case errors.Is(err, service.ErrVotingDisabled):
			c.emit(broadcast.NameVoteError, errorPayload{Message: "votes are disabled for this event"})
		default:
			h.l.Errorf(ctx, "ws.Handler.handleVote: %v", err)
			c.emit(broadcast.NameVoteError, errorPayload{Message: "vote failed"})
		}
	}
}

func (h *Handler) handleAccept(ctx context.Context, c *Client, raw json.RawMessage) {
	var p struct {
		RequestID string `json:"request_id"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}

	if err := h.admissionSvc.Accept(ctx, p.RequestID); err != nil {
		h.logDecisionErr(ctx, "handleAccept", err)
	}
}

func (h *Handler) handleReject(ctx context.Context, c *Client, raw json.RawMessage) {
	var p struct {
		RequestID string `json:"request_id"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}

	if err := h.admissionSvc.Reject(ctx, p.RequestID); err != nil {
		h.logDecisionErr(ctx, "handleReject", err)
	}
}

func (h *Handler) handleReorder(ctx context.Context, c *Client, raw json.RawMessage) {
	var p struct {
		EventID    string   `json:"event_id"`
		OrderedIDs []string `json:"ordered_ids"`
	}
	if err := json.Unmarshal(raw, &p); err != nil || p.EventID == "" {
		return
	}

	if err := h.admissionSvc.Reorder(ctx, p.EventID, p.OrderedIDs); err != nil {
		h.logDecisionErr(ctx, "handleReorder", err)
	}
}

func (h *Handler) handleMarkPlayed(ctx context.Context, c *Client, raw json.RawMessage) {
	var p struct {
		RequestID string `json:"request_id"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}

	if err := h.admissionSvc.MarkPlayed(ctx, p.RequestID); err != nil {
		h.logDecisionErr(ctx, "handleMarkPlayed", err)
	}
}

func (h *Handler) handleUpdateSettings(ctx context.Context, c *Client, raw json.RawMessage) {
	var p struct {
		EventID           string `json:"event_id"`
		VotesEnabled      *bool  `json:"votes_enabled"`
		AutoAcceptEnabled *bool  `json:"auto_accept_enabled"`
	}
	if err := json.Unmarshal(raw, &p); err != nil || p.EventID == "" {
		return
	}

	patch := service.SettingsPatch{
		VotesEnabled:      p.VotesEnabled,
		AutoAcceptEnabled: p.AutoAcceptEnabled,
	}
	if err := h.admissionSvc.UpdateSettings(ctx, p.EventID, patch); err != nil {
		h.logDecisionErr(ctx, "handleUpdateSettings", err)
	}
}

// logDecisionErr records DJ action failures. Invalid transitions are an
// expected outcome of concurrent booth clicks and only logged at debug.
func (h *Handler) logDecisionErr(ctx context.Context, op string, err error) {
	if errors.Is(err, service.ErrInvalidTransition) || errors.Is(err, service.ErrRequestNotFound) {
		h.l.Debugf(ctx, "ws.Handler.%s: %v", op, err)
		return
	}
	h.l.Errorf(ctx, "ws.Handler.%s: %v", op, err)
}

// submitError maps an admission failure to the payload the submitter sees.
func submitError(err error) errorPayload {
	var rl *service.RateLimitedError
	if errors.As(err, &rl) {
		return errorPayload{
			Type:    "rate-limit",
			Message: rl.Error(),
		}
	}

	var dup *service.DuplicateError
	if errors.As(err, &dup) {
		where := "pending requests"
		if dup.Location == service.DuplicateLocationQueue {
			where = "the queue"
		}
		return errorPayload{
			Type:    "duplicate",
			Message: "this track is already in " + where,
		}
	}

	switch {
	case errors.Is(err, service.ErrEventNotFound):
		return errorPayload{Message: "event not found"}
	case errors.Is(err, service.ErrEventEnded):
		return errorPayload{Message: "event has ended"}
	}

	return errorPayload{Message: "request failed"}
}
