package realtime

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Client to server messages.
const (
	EventJoinRoom  = "joinRoom"
	EventLeaveRoom = "leaveRoom"
	EventJoined    = "joined"
	EventLeft      = "left"
	EventError     = "error"
)

type ClientMessage struct {
	Event string `json:"event"`
	Room  string `json:"room"`
}

// Caller identifies the user behind an upgrade request.
type Caller struct {
	Identity string
	Admin    bool
}

// CallerFunc resolves the caller of an upgrade request; ok is false for anonymous requests.
type CallerFunc func(r *http.Request) (caller Caller, ok bool)

type Handler struct {
	hub      *Hub
	caller   CallerFunc
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewHandler(hub *Hub, caller CallerFunc, logger *slog.Logger) *Handler {
	return &Handler{
		hub:    hub,
		caller: caller,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// ServeHTTP upgrades the request and joins the caller's own room, plus the
// admin room for the admin identity.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(r)
	if !ok {
		http.Error(w, "missing user identity", http.StatusUnauthorized)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	conn := newWSConn(ws, caller)
	if err := h.hub.Join(conn, UserRoom(caller.Identity)); err != nil {
		conn.Close()
		return
	}
	if caller.Admin {
		_ = h.hub.Join(conn, AdminRoom)
	}
	h.logger.Info("realtime client connected", "conn_id", conn.ID(), "identity", caller.Identity, "admin", caller.Admin)

	go conn.writePump(h.logger)
	conn.readPump(h)

	h.hub.LeaveAll(conn)
	conn.Close()
	h.logger.Info("realtime client disconnected", "conn_id", conn.ID(), "identity", caller.Identity)
}

// resolveRoom maps a client room name to a hub room the caller may join.
// Customers name their own identity, the admin may also name "admin" or any customer.
func resolveRoom(caller Caller, requested string) (string, bool) {
	requested = strings.TrimSpace(requested)
	switch {
	case requested == "":
		return "", false
	case requested == AdminRoom:
		return AdminRoom, caller.Admin
	case strings.EqualFold(requested, caller.Identity):
		return UserRoom(caller.Identity), true
	case caller.Admin:
		return UserRoom(requested), true
	default:
		return "", false
	}
}

func (h *Handler) handleClientMessage(conn *wsConn, msg ClientMessage) {
	switch msg.Event {
	case EventJoinRoom:
		room, ok := resolveRoom(conn.caller, msg.Room)
		if !ok {
			conn.Send(Message{EventError, map[string]string{"message": "not allowed to join room " + msg.Room}})
			return
		}
		if err := h.hub.Join(conn, room); err != nil {
			conn.Send(Message{EventError, map[string]string{"message": err.Error()}})
			return
		}
		conn.Send(Message{EventJoined, map[string]string{"room": msg.Room}})
	case EventLeaveRoom:
		room, ok := resolveRoom(conn.caller, msg.Room)
		if ok {
			h.hub.Leave(conn, room)
		}
		conn.Send(Message{EventLeft, map[string]string{"room": msg.Room}})
	default:
		conn.Send(Message{EventError, map[string]string{"message": "unknown event " + msg.Event}})
	}
}

type wsConn struct {
	id     string
	caller Caller
	ws     *websocket.Conn
	send   chan Message

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func newWSConn(ws *websocket.Conn, caller Caller) *wsConn {
	return &wsConn{
		id:     uuid.NewString(),
		caller: caller,
		ws:     ws,
		send:   make(chan Message, sendBuffer),
		done:   make(chan struct{}),
	}
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) Send(msg Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *wsConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}

func (c *wsConn) readPump(h *Handler) {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg ClientMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read failed", "conn_id", c.id, "error", err)
			}
			return
		}
		h.handleClientMessage(c, msg)
	}
}

// writePump is the only writer on the socket.
func (c *wsConn) writePump(logger *slog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(msg); err != nil {
				logger.Debug("websocket write failed", "conn_id", c.id, "error", err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
