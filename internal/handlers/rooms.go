package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mossy-p/videochat-signaling/internal/middleware"
	"github.com/mossy-p/videochat-signaling/internal/models"
	"github.com/pion/webrtc/v4"
)

// GetRoom reports how many clients are in a live room (public)
func (h *Handler) GetRoom(c *gin.Context) {
	roomID := c.Param("roomId")

	members := h.router.Registry().RoomMembers(roomID)
	if len(members) == 0 {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "Room not found"})
		return
	}

	c.JSON(http.StatusOK, models.RoomInfo{ID: roomID, MemberCount: len(members)})
}

// ListRooms returns every live room with its members (admin)
func (h *Handler) ListRooms(c *gin.Context) {
	c.JSON(http.StatusOK, models.RoomList{Rooms: h.router.Registry().Rooms()})
}

// KickClient closes every socket open under a client id, which removes it
// from the registry and its rooms through the normal disconnect path (admin)
func (h *Handler) KickClient(c *gin.Context) {
	clientID := c.Param("clientId")

	closed := h.closeClient(clientID)
	if closed == 0 {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "Client not connected"})
		return
	}

	h.log.Info("client kicked",
		slog.String("client_id", clientID),
		slog.Int("sockets", closed),
		slog.String("by", c.GetString(middleware.ContextUserKey)),
	)
	c.JSON(http.StatusAccepted, gin.H{"message": "Client disconnected"})
}

// ICEServers lists the STUN and TURN servers browsers should configure
func (h *Handler) ICEServers(c *gin.Context) {
	rtc := h.cfg.WebRTC
	servers := make([]webrtc.ICEServer, 0, 2)

	if len(rtc.STUNServers) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: rtc.STUNServers})
	}
	if rtc.TURNServer != "" {
		servers = append(servers, webrtc.ICEServer{
			URLs:       []string{rtc.TURNServer},
			Username:   rtc.TURNUsername,
			Credential: rtc.TURNPassword,
		})
	}

	c.JSON(http.StatusOK, models.ICEServersResponse{ICEServers: servers})
}
