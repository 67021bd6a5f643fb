package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mossy-p/videochat-signaling/config"
	"github.com/mossy-p/videochat-signaling/internal/registry"
)

var (
	// ErrSendBufferFull is returned by Send when the client is not draining
	// its queue fast enough.
	ErrSendBufferFull = errors.New("send buffer full")
	// ErrConnClosed is returned by Send after the connection was closed.
	ErrConnClosed = errors.New("connection closed")
)

// wsConn adapts a websocket connection to signaling.Conn. Outbound frames go
// through a bounded queue drained by writePump, so Send never blocks.
type wsConn struct {
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	closeCode int
	closeText string

	writeWait  time.Duration
	pongWait   time.Duration
	pingPeriod time.Duration

	log *slog.Logger
}

func newWSConn(conn *websocket.Conn, cfg config.WebSocketConfig, log *slog.Logger) *wsConn {
	c := &wsConn{
		conn:       conn,
		send:       make(chan []byte, cfg.SendBuffer),
		done:       make(chan struct{}),
		closeCode:  websocket.CloseNormalClosure,
		writeWait:  cfg.WriteWait,
		pongWait:   cfg.PongWait,
		pingPeriod: (cfg.PongWait * 9) / 10,
		log:        log,
	}

	conn.SetReadLimit(cfg.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(c.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.pongWait))
	})
	return c
}

// Send queues data for delivery.
func (c *wsConn) Send(data []byte) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Receive returns the next data frame. Any read error, including a close
// frame or a missed pong deadline, ends the connection.
func (c *wsConn) Receive() ([]byte, error) {
	_, message, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return message, nil
}

// Close stops the write pump, which sends a close frame and tears down the
// socket. That in turn unblocks Receive.
func (c *wsConn) Close() error {
	return c.closeWith(websocket.CloseNormalClosure, "")
}

func (c *wsConn) closeWith(code int, text string) error {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeText = text
		close(c.done)
	})
	return nil
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Debug("failed to write message", slog.Any("error", err))
				_ = c.Close()
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.Close()
				return
			}

		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(c.closeCode, c.closeText),
				time.Now().Add(c.writeWait))
			return
		}
	}
}

// HandleSignaling upgrades the request and runs the signaling session until
// the connection ends. The client id comes from the :clientId path segment;
// when absent a random one is assigned.
func (h *Handler) HandleSignaling(c *gin.Context) {
	clientID := c.Param("clientId")
	if clientID == "" {
		clientID = uuid.NewString()
	}
	log := h.log.With(slog.String("client_id", clientID))

	if h.cfg.WebSocket.DuplicateIDPolicy == config.PolicyReject {
		if _, taken := h.router.Registry().LookupChannel(clientID); taken {
			c.JSON(http.StatusConflict, gin.H{"error": registry.ErrDuplicateClient.Error()})
			return
		}
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn("failed to upgrade connection", slog.Any("error", err))
		return
	}

	h.sessions.Add(1)
	defer h.sessions.Done()

	ws := newWSConn(conn, h.cfg.WebSocket, log)
	h.track(ws, clientID)
	defer h.untrack(ws)
	go ws.writePump()

	err = h.router.Serve(c.Request.Context(), clientID, ws)
	switch {
	case errors.Is(err, registry.ErrDuplicateClient):
		_ = ws.closeWith(websocket.ClosePolicyViolation, "client id already connected")
	case websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		log.Warn("websocket closed unexpectedly", slog.Any("error", err))
		_ = ws.Close()
	default:
		_ = ws.Close()
	}
}
