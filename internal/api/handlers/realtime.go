package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"taskquest/internal/realtime"
	"taskquest/pkg/response"
)

type RealtimeHandler struct {
	hub *realtime.Hub
}

func NewRealtimeHandler(hub *realtime.Hub) *RealtimeHandler {
	return &RealtimeHandler{hub: hub}
}

// HandleWebSocket upgrades the request and hands it to the hub. The
// WSAuth middleware already pinned the token's user id in the context.
func (h *RealtimeHandler) HandleWebSocket(c *gin.Context) {
	userID := c.GetString("user_id")
	realtime.ServeWS(h.hub, c.Writer, c.Request, userID)
}

// GetOnlineUsers answers "who is online" from the tracker's in-memory
// snapshot; no directory round-trip.
func (h *RealtimeHandler) GetOnlineUsers(c *gin.Context) {
	response.OK(c, http.StatusOK, gin.H{
		"users": h.hub.Presence().Snapshot(),
	})
}

type notifyRequest struct {
	EventKind string         `json:"event_kind" binding:"required"`
	Payload   map[string]any `json:"payload"`
}

// NotifyRoom lets the CRUD layer push a business event into a team's
// live room after a successful mutation. This is the only coupling
// point between the REST endpoints and the realtime engine.
func (h *RealtimeHandler) NotifyRoom(c *gin.Context) {
	teamID := c.Param("teamId")
	if teamID == "" {
		response.Error(c, http.StatusBadRequest, "team id is required")
		return
	}

	var req notifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	kind := realtime.MessageType(req.EventKind)
	if !kind.IsEvent() {
		response.Error(c, http.StatusBadRequest, "unknown event kind: "+req.EventKind)
		return
	}

	h.hub.NotifyRoom(realtime.RoomForTeam(teamID), kind, req.Payload)
	response.OK(c, http.StatusAccepted, nil)
}
