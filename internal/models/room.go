package models

import (
	"github.com/mossy-p/videochat-signaling/internal/registry"
	"github.com/pion/webrtc/v4"
)

// RoomInfo is the public view of a live room
type RoomInfo struct {
	ID          string `json:"id"`
	MemberCount int    `json:"member_count"`
}

// RoomList is the admin view of every live room
type RoomList struct {
	Rooms []registry.RoomSnapshot `json:"rooms"`
}

// HealthResponse reports liveness plus registry counters
type HealthResponse struct {
	Status  string `json:"status"`
	Clients int    `json:"clients"`
	Rooms   int    `json:"rooms"`
}

// ICEServersResponse carries the STUN/TURN servers browsers should use
type ICEServersResponse struct {
	ICEServers []webrtc.ICEServer `json:"ice_servers"`
}

// ErrorResponse is the body of every failed API call
type ErrorResponse struct {
	Error string `json:"error"`
}
