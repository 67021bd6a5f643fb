// Package signaling routes session-negotiation and chat messages between
// clients that share a room.
package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mossy-p/videochat-signaling/internal/models"
	"github.com/mossy-p/videochat-signaling/internal/registry"
	"golang.org/x/time/rate"
)

const defaultPresenceTimeout = 2 * time.Second

// Conn is one client's transport connection.
type Conn interface {
	registry.Channel

	// Receive blocks until the next text frame arrives or the connection
	// is closed.
	Receive() ([]byte, error)
}

// Presence is notified of membership changes so they can be mirrored
// outside the process.
type Presence interface {
	Joined(ctx context.Context, roomID, clientID string) error
	Left(ctx context.Context, clientID string, roomIDs []string) error
}

// Options tune a Router. The zero value routes without rate limiting or
// presence reporting and lets a second connection replace the first.
type Options struct {
	Logger   *slog.Logger
	Presence Presence

	// RateLimit is the sustained inbound message rate per connection;
	// zero disables limiting.
	RateLimit rate.Limit
	RateBurst int

	// RejectDuplicates refuses a connection whose id is already connected.
	RejectDuplicates bool

	PresenceTimeout time.Duration
}

// Router owns connection lifetimes and dispatches inbound messages.
type Router struct {
	registry *registry.Registry
	opts     Options
	log      *slog.Logger
}

// NewRouter creates a router backed by reg.
func NewRouter(reg *registry.Registry, opts Options) *Router {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.PresenceTimeout <= 0 {
		opts.PresenceTimeout = defaultPresenceTimeout
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 1
	}
	return &Router{
		registry: reg,
		opts:     opts,
		log:      opts.Logger.With(slog.String("component", "router")),
	}
}

// Registry returns the registry the router writes to.
func (rt *Router) Registry() *registry.Registry {
	return rt.registry
}

// Serve runs one connection to completion: it registers the client, routes
// every received frame in order, and deregisters the client however the
// receive loop ends. The returned error is the one that ended the loop.
func (rt *Router) Serve(ctx context.Context, clientID string, conn Conn) error {
	if err := rt.OnConnect(clientID, conn); err != nil {
		return err
	}
	defer rt.OnClose(ctx, clientID)

	var limiter *rate.Limiter
	if rt.opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rt.opts.RateLimit, rt.opts.RateBurst)
	}

	for {
		raw, err := conn.Receive()
		if err != nil {
			return err
		}
		if limiter != nil && !limiter.Allow() {
			rt.log.Warn("rate limit exceeded, dropping message", slog.String("client_id", clientID))
			continue
		}
		rt.OnMessage(ctx, clientID, raw)
	}
}

// OnConnect registers the client's channel.
func (rt *Router) OnConnect(clientID string, ch registry.Channel) error {
	log := rt.log.With(slog.String("client_id", clientID))

	if rt.opts.RejectDuplicates {
		if err := rt.registry.ConnectUnique(clientID, ch); err != nil {
			log.Warn("refusing connection", slog.Any("error", err))
			return fmt.Errorf("connect %s: %w", clientID, err)
		}
	} else if replaced := rt.registry.Connect(clientID, ch); replaced != nil {
		log.Warn("client id reused, previous connection no longer receives messages")
	}

	clients, _ := rt.registry.Stats()
	log.Info("client connected", slog.Int("clients", clients))
	return nil
}

// OnClose deregisters the client from the registry and every room.
func (rt *Router) OnClose(ctx context.Context, clientID string) {
	left := rt.registry.Disconnect(clientID)

	if rt.opts.Presence != nil && len(left) > 0 {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rt.opts.PresenceTimeout)
		defer cancel()
		if err := rt.opts.Presence.Left(pctx, clientID, left); err != nil {
			rt.log.Warn("presence update failed", slog.String("client_id", clientID), slog.Any("error", err))
		}
	}

	clients, rooms := rt.registry.Stats()
	rt.log.Info("client disconnected",
		slog.String("client_id", clientID),
		slog.Any("rooms_left", left),
		slog.Int("clients", clients),
		slog.Int("rooms", rooms),
	)
}

// OnMessage decodes and routes one frame from clientID. Malformed frames and
// unknown types are dropped; nothing is reported back to the client.
func (rt *Router) OnMessage(ctx context.Context, clientID string, raw []byte) {
	log := rt.log.With(slog.String("client_id", clientID))

	defer func() {
		if r := recover(); r != nil {
			log.Error("recovered while routing message", slog.Any("panic", r))
		}
	}()

	switch msg := models.Decode(raw).(type) {
	case models.JoinRoom:
		rt.handleJoin(ctx, log, clientID, msg)
	case models.Signal:
		rt.handleSignal(log, clientID, msg)
	case models.Chat:
		rt.broadcast(log, clientID, msg.RoomID, models.NewChatBroadcast(msg, clientID))
	case models.Ignored:
		if msg.Err != nil {
			log.Warn("dropping malformed message", slog.Any("error", msg.Err))
		} else {
			log.Debug("ignoring message", slog.String("type", string(msg.Type)))
		}
	}
}

func (rt *Router) handleJoin(ctx context.Context, log *slog.Logger, clientID string, msg models.JoinRoom) {
	rt.registry.JoinRoom(clientID, msg.RoomID)
	log.Info("joined room", slog.String("room_id", msg.RoomID))

	if rt.opts.Presence != nil {
		pctx, cancel := context.WithTimeout(ctx, rt.opts.PresenceTimeout)
		if err := rt.opts.Presence.Joined(pctx, msg.RoomID, clientID); err != nil {
			log.Warn("presence update failed", slog.Any("error", err))
		}
		cancel()
	}

	rt.broadcast(log, clientID, msg.RoomID, models.NewUserJoined(clientID))

	var others []string
	for _, id := range rt.registry.RoomMembers(msg.RoomID) {
		if id != clientID {
			others = append(others, id)
		}
	}
	rt.sendTo(log, clientID, models.NewRoomUsers(others))
}

func (rt *Router) handleSignal(log *slog.Logger, clientID string, msg models.Signal) {
	data, err := msg.WithSender(clientID)
	if err != nil {
		log.Warn("failed to encode signal", slog.Any("error", err))
		return
	}

	if msg.TargetID == "" {
		rt.broadcastRaw(log, clientID, msg.RoomID, data)
		return
	}

	ch, ok := rt.registry.LookupChannel(msg.TargetID)
	if !ok {
		log.Debug("signal target not connected",
			slog.String("type", string(msg.Type)),
			slog.String("target_id", msg.TargetID),
		)
		return
	}
	rt.deliver(log, registry.Target{ID: msg.TargetID, Channel: ch}, data)
}

func (rt *Router) sendTo(log *slog.Logger, clientID string, v any) {
	ch, ok := rt.registry.LookupChannel(clientID)
	if !ok {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		log.Warn("failed to marshal message", slog.Any("error", err))
		return
	}
	rt.deliver(log, registry.Target{ID: clientID, Channel: ch}, data)
}

func (rt *Router) broadcast(log *slog.Logger, senderID, roomID string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Warn("failed to marshal message", slog.Any("error", err))
		return
	}
	rt.broadcastRaw(log, senderID, roomID, data)
}

func (rt *Router) broadcastRaw(log *slog.Logger, senderID, roomID string, data []byte) {
	targets := rt.registry.Peers(roomID, senderID)
	log.Debug("broadcasting", slog.String("room_id", roomID), slog.Int("targets", len(targets)))
	for _, target := range targets {
		rt.deliver(log, target, data)
	}
}

// deliver sends to one recipient. Failures, panics included, are logged and
// go no further than this recipient.
func (rt *Router) deliver(log *slog.Logger, target registry.Target, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("recovered while sending message", slog.String("target_id", target.ID), slog.Any("panic", r))
		}
	}()

	if err := target.Channel.Send(data); err != nil {
		log.Warn("failed to send message", slog.String("target_id", target.ID), slog.Any("error", err))
	}
}
