package realtime

import "fmt"

// ScopeKind says whether an emit targets one room or every session.
type ScopeKind string

const (
	ScopeRoom ScopeKind = "room"
	ScopeAll  ScopeKind = "all"
)

// Scope is the audience of an emitted event.
type Scope struct {
	Kind ScopeKind `json:"kind"`
	Room Room      `json:"room,omitempty"`
}

// RoomScope targets the members of a single room.
func RoomScope(room Room) Scope { return Scope{Kind: ScopeRoom, Room: room} }

// AllSessions targets every connected session regardless of room.
func AllSessions() Scope { return Scope{Kind: ScopeAll} }

// Validate rejects scopes that would deliver nowhere.
func (s Scope) Validate() error {
	switch s.Kind {
	case ScopeAll:
		return nil
	case ScopeRoom:
		if s.Room == "" {
			return fmt.Errorf("room scope requires a room")
		}
		return nil
	default:
		return fmt.Errorf("unknown scope kind %q", s.Kind)
	}
}
