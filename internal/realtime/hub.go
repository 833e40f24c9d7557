package realtime

import (
	"errors"
	"log/slog"
	"sync"
)

const AdminRoom = "admin"

var ErrHubClosed = errors.New("realtime hub is closed")

// UserRoom is the room a customer's sessions share.
func UserRoom(identity string) string {
	return "user:" + identity
}

type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Conn is one live subscriber. Send must not block; it reports false when the
// connection cannot keep up and should be dropped.
type Conn interface {
	ID() string
	Send(msg Message) bool
	Close()
}

// Hub owns the room membership table. Membership is not durable: a publish
// reaches only the connections joined at that moment.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]Conn     // room -> connID -> conn
	joined map[string]map[string]struct{} // connID -> rooms
	closed bool
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[string]Conn),
		joined: make(map[string]map[string]struct{}),
		logger: logger,
	}
}

func (h *Hub) Join(conn Conn, room string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}

	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]Conn)
		h.rooms[room] = members
	}
	members[conn.ID()] = conn

	rooms, ok := h.joined[conn.ID()]
	if !ok {
		rooms = make(map[string]struct{})
		h.joined[conn.ID()] = rooms
	}
	rooms[room] = struct{}{}
	return nil
}

func (h *Hub) Leave(conn Conn, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(conn.ID(), room)
}

// LeaveAll removes the connection from every room it joined.
func (h *Hub) LeaveAll(conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room := range h.joined[conn.ID()] {
		h.leaveLocked(conn.ID(), room)
	}
}

func (h *Hub) leaveLocked(connID, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	if rooms, ok := h.joined[connID]; ok {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(h.joined, connID)
		}
	}
}

// Publish enqueues msg on every connection in room and returns how many accepted it.
// Connections whose buffers are full are evicted and closed.
func (h *Hub) Publish(room string, msg Message) int {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return 0
	}
	delivered := 0
	var slow []Conn
	for _, conn := range h.rooms[room] {
		if conn.Send(msg) {
			delivered++
		} else {
			slow = append(slow, conn)
		}
	}
	h.mu.RUnlock()

	for _, conn := range slow {
		h.logger.Warn("dropping slow realtime connection", "conn_id", conn.ID(), "room", room)
		h.LeaveAll(conn)
		conn.Close()
	}
	return delivered
}

func (h *Hub) Members(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Online reports whether the identity has at least one connected session.
func (h *Hub) Online(identity string) bool {
	return h.Members(UserRoom(identity)) > 0
}

// Close disconnects every connection. Later joins fail and publishes are dropped.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	conns := make(map[string]Conn)
	for _, members := range h.rooms {
		for id, conn := range members {
			conns[id] = conn
		}
	}
	h.rooms = make(map[string]map[string]Conn)
	h.joined = make(map[string]map[string]struct{})
	h.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
	h.logger.Info("realtime hub closed", "connections", len(conns))
}
