// Package handlers exposes the HTTP surface: the websocket signaling
// endpoint, the client page, and a small JSON API.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/mossy-p/videochat-signaling/config"
	"github.com/mossy-p/videochat-signaling/internal/middleware"
	"github.com/mossy-p/videochat-signaling/internal/models"
	"github.com/mossy-p/videochat-signaling/internal/signaling"
)

// Handler holds the dependencies shared by every endpoint.
type Handler struct {
	router   *signaling.Router
	cfg      *config.Config
	log      *slog.Logger
	upgrader websocket.Upgrader

	// Every upgraded socket, keyed to its client id. A socket replaced in
	// the registry by a reused id stays here until its session ends.
	mu       sync.Mutex
	conns    map[*wsConn]string
	sessions sync.WaitGroup
}

// New creates a Handler serving sessions through router.
func New(router *signaling.Router, cfg *config.Config, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		router: router,
		cfg:    cfg,
		log:    log.With(slog.String("component", "http")),
		conns:  make(map[*wsConn]string),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.HTTP.AllowedOrigins),
		},
	}
}

// Engine builds the gin engine with every route mounted.
func (h *Handler) Engine() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(h.log), CORS(h.cfg.HTTP.AllowedOrigins))

	router.GET("/health", h.Health)

	router.GET("/", h.Index)
	router.GET("/room/:roomId", h.Index)
	router.Static("/static", h.cfg.HTTP.StaticDir)

	router.GET("/ws", h.HandleSignaling)
	router.GET("/ws/:clientId", h.HandleSignaling)

	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/rooms/:roomId", h.GetRoom)
		apiGroup.GET("/ice-servers", h.ICEServers)

		if h.cfg.AdminEnabled() {
			apiGroup.POST("/auth/login", h.Login)

			admin := apiGroup.Group("/admin", middleware.JWTAuth(h.cfg.Auth.JWTSecret))
			admin.GET("/rooms", h.ListRooms)
			admin.DELETE("/clients/:clientId", h.KickClient)
		}
	}

	return router
}

// Health reports liveness and registry counters.
func (h *Handler) Health(c *gin.Context) {
	clients, rooms := h.router.Registry().Stats()
	c.JSON(http.StatusOK, models.HealthResponse{Status: "ok", Clients: clients, Rooms: rooms})
}

// Index serves the client page. Room links serve the same page; the page
// reads the room id from its own URL.
func (h *Handler) Index(c *gin.Context) {
	c.File(filepath.Join(h.cfg.HTTP.StaticDir, "index.html"))
}

func (h *Handler) track(ws *wsConn, clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[ws] = clientID
}

func (h *Handler) untrack(ws *wsConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, ws)
}

// closeClient closes every open socket of clientID and reports how many it
// found.
func (h *Handler) closeClient(clientID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0
	for ws, id := range h.conns {
		if id == clientID {
			_ = ws.Close()
			n++
		}
	}
	return n
}

// CloseSessions closes every open socket, including ones whose client id
// was taken over by a newer connection, and waits for their sessions to
// finish or for ctx to expire.
func (h *Handler) CloseSessions(ctx context.Context) error {
	h.mu.Lock()
	for ws := range h.conns {
		_ = ws.Close()
	}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
