// Package realtime pushes live events to connected browser sessions. Sessions
// join rooms keyed by clinic or doctor; events are emitted either to one room
// or to every connected session.
package realtime

import (
	"encoding/json"
	"sync"
	"time"
)

// Room identifies a group of sessions. Keys are typed by prefix.
type Room string

// ClinicRoom returns the room key for a clinic.
func ClinicRoom(clinicID string) Room { return Room("clinic:" + clinicID) }

// DoctorRoom returns the room key for a doctor.
func DoctorRoom(doctorID string) Room { return Room("doctor:" + doctorID) }

// Frame is the server-to-client message.
type Frame struct {
	Event     string          `json:"event"`
	Room      Room            `json:"room,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Session is one live client connection. Outbound frames are queued on Send;
// the transport drains it.
type Session struct {
	ID   string
	Send chan []byte
}

// NewSession creates a session with a send buffer of the given size.
func NewSession(id string, buffer int) *Session {
	return &Session{ID: id, Send: make(chan []byte, buffer)}
}

// Hub tracks live sessions and their room memberships. All operations are
// thread-safe via sync.RWMutex.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[Room]map[*Session]struct{}
	joined  map[*Session]map[Room]struct{}
	metrics *Metrics
}

// NewHub creates an empty Hub. metrics may be nil.
func NewHub(metrics *Metrics) *Hub {
	return &Hub{
		rooms:   make(map[Room]map[*Session]struct{}),
		joined:  make(map[*Session]map[Room]struct{}),
		metrics: metrics,
	}
}

// Register adds a connected session with no room memberships.
func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.joined[s]; ok {
		return
	}
	h.joined[s] = make(map[Room]struct{})
	h.metrics.SetSessions(len(h.joined))
}

// Join adds the session to a room. Joining twice is a no-op. Unregistered
// sessions are ignored.
func (h *Hub) Join(s *Session, room Room) {
	h.mu.Lock()
	defer h.mu.Unlock()

	memberships, ok := h.joined[s]
	if !ok {
		return
	}
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Session]struct{})
	}
	h.rooms[room][s] = struct{}{}
	memberships[room] = struct{}{}
}

// Leave removes the session from a room.
func (h *Hub) Leave(s *Session, room Room) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(s, room)
}

func (h *Hub) leaveLocked(s *Session, room Room) {
	if members, ok := h.rooms[room]; ok {
		delete(members, s)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	if memberships, ok := h.joined[s]; ok {
		delete(memberships, room)
	}
}

// Disconnect removes the session from every room and closes its Send channel.
func (h *Hub) Disconnect(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	memberships, ok := h.joined[s]
	if !ok {
		return
	}
	for room := range memberships {
		h.leaveLocked(s, room)
	}
	delete(h.joined, s)
	close(s.Send)
	h.metrics.SetSessions(len(h.joined))
}

// Deliver queues data on every session in scope and returns how many sessions
// accepted it. Sessions with a full buffer are skipped.
func (h *Hub) Deliver(scope Scope, data []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	send := func(s *Session) {
		select {
		case s.Send <- data:
			delivered++
		default:
			h.metrics.IncDropped()
		}
	}

	switch scope.Kind {
	case ScopeAll:
		for s := range h.joined {
			send(s)
		}
	case ScopeRoom:
		for s := range h.rooms[scope.Room] {
			send(s)
		}
	}
	return delivered
}

// SessionCount returns the number of connected sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.joined)
}

// MemberCount returns the number of sessions in a room.
func (h *Hub) MemberCount(room Room) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Rooms returns the rooms a session has joined.
func (h *Hub) Rooms(s *Session) []Room {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Room, 0, len(h.joined[s]))
	for r := range h.joined[s] {
		out = append(out, r)
	}
	return out
}
