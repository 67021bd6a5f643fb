// Package registry tracks connected clients and the rooms they have joined.
package registry

import (
	"errors"
	"slices"
	"sort"
	"sync"
)

// ErrDuplicateClient is returned by ConnectUnique when the id is already connected.
var ErrDuplicateClient = errors.New("client id already connected")

// Channel is the outbound send handle of one client's transport connection.
type Channel interface {
	Send(data []byte) error
	Close() error
}

// Target is a resolved delivery destination.
type Target struct {
	ID      string
	Channel Channel
}

// RoomSnapshot is a point-in-time copy of one room's membership.
type RoomSnapshot struct {
	ID      string   `json:"id"`
	Members []string `json:"members"`
}

// Registry owns the connected-client map and the room map. A single mutex
// guards both; every method is safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	clients map[string]Channel
	rooms   map[string][]string
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		clients: make(map[string]Channel),
		rooms:   make(map[string][]string),
	}
}

// Connect records the client's channel, replacing any channel already stored
// for the same id. The replaced channel, if any, is returned and left open.
func (r *Registry) Connect(clientID string, ch Channel) (replaced Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	replaced = r.clients[clientID]
	r.clients[clientID] = ch
	return replaced
}

// ConnectUnique is Connect for deployments that refuse a second connection
// under an id that is still connected.
func (r *Registry) ConnectUnique(clientID string, ch Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.clients[clientID]; exists {
		return ErrDuplicateClient
	}
	r.clients[clientID] = ch
	return nil
}

// Disconnect removes the client and strips it from every room, deleting rooms
// that end up empty. It returns the ids of the rooms the client was removed
// from, in lexical order. Unknown ids are a no-op.
func (r *Registry) Disconnect(clientID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.clients, clientID)

	var left []string
	for roomID, members := range r.rooms {
		idx := slices.Index(members, clientID)
		if idx < 0 {
			continue
		}
		members = slices.Delete(members, idx, idx+1)
		if len(members) == 0 {
			delete(r.rooms, roomID)
		} else {
			r.rooms[roomID] = members
		}
		left = append(left, roomID)
	}
	sort.Strings(left)
	return left
}

// JoinRoom appends the client to the room, creating the room on first join.
// Joining a room twice leaves its membership unchanged.
func (r *Registry) JoinRoom(clientID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.rooms[roomID]
	if slices.Contains(members, clientID) {
		return
	}
	r.rooms[roomID] = append(members, clientID)
}

// RoomMembers returns a copy of the room's membership in join order, or an
// empty slice when the room does not exist.
func (r *Registry) RoomMembers(roomID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string{}, r.rooms[roomID]...)
}

// LookupChannel returns the client's channel if it is connected.
func (r *Registry) LookupChannel(clientID string) (Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.clients[clientID]
	return ch, ok
}

// Peers resolves every member of the room other than exclude to its channel,
// reading membership and channels in one critical section. Members without a
// connected channel are skipped.
func (r *Registry) Peers(roomID, exclude string) []Target {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.rooms[roomID]
	targets := make([]Target, 0, len(members))
	for _, id := range members {
		if id == exclude {
			continue
		}
		if ch, ok := r.clients[id]; ok {
			targets = append(targets, Target{ID: id, Channel: ch})
		}
	}
	return targets
}

// Rooms returns a snapshot of every room ordered by id.
func (r *Registry) Rooms() []RoomSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshots := make([]RoomSnapshot, 0, len(r.rooms))
	for id, members := range r.rooms {
		snapshots = append(snapshots, RoomSnapshot{
			ID:      id,
			Members: append([]string{}, members...),
		})
	}
	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].ID < snapshots[j].ID })
	return snapshots
}

// Stats reports the number of connected clients and live rooms.
func (r *Registry) Stats() (clients, rooms int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.clients), len(r.rooms)
}
