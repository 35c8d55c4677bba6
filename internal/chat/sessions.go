package chat

import (
	"fmt"

	"github.com/samber/lo"
)

// Session binds one connection to a username and the single room it is in.
type Session struct {
	Conn     ConnID
	Username string
	Room     string
}

// SessionTable maps connections to sessions and keeps room membership in
// step with it. Not safe for concurrent use; the Coordinator serializes
// access.
type SessionTable struct {
	rooms    *RoomRegistry
	sessions map[ConnID]Session
}

// NewSessionTable returns an empty table bound to rooms.
func NewSessionTable(rooms *RoomRegistry) *SessionTable {
	return &SessionTable{rooms: rooms, sessions: make(map[ConnID]Session)}
}

// Get returns the session of a connection.
func (t *SessionTable) Get(conn ConnID) (Session, bool) {
	s, ok := t.sessions[conn]
	return s, ok
}

// Len is the number of bound connections.
func (t *SessionTable) Len() int { return len(t.sessions) }

// Bind attaches conn to room as username. A connection that already has a
// session is detached from its previous room first; that session is
// returned with hadPrev set. The room must exist.
func (t *SessionTable) Bind(conn ConnID, username, room string) (prev Session, hadPrev bool, err error) {
	target, ok := t.rooms.Get(room)
	if !ok {
		return Session{}, false, fmt.Errorf("%w: %s", ErrRoomNotFound, room)
	}

	prev, hadPrev = t.sessions[conn]
	if hadPrev {
		t.detach(prev)
	}

	target.addMember(username)
	t.sessions[conn] = Session{Conn: conn, Username: username, Room: room}
	t.rooms.Touch(room)
	return prev, hadPrev, nil
}

// Unbind removes the session of conn and returns what it vacated. Calling
// it for a connection without a session is a no-op.
func (t *SessionTable) Unbind(conn ConnID) (Session, bool) {
	s, ok := t.sessions[conn]
	if !ok {
		return Session{}, false
	}
	t.detach(s)
	return s, true
}

// detach drops the session and clears its presence in its room. The
// username stays a member while another connection still uses it there.
func (t *SessionTable) detach(s Session) {
	delete(t.sessions, s.Conn)

	room, ok := t.rooms.Get(s.Room)
	if !ok {
		return
	}
	room.clearTyping(s.Username)
	if !t.shared(s) {
		room.removeMember(s.Username)
	}
	t.rooms.Touch(s.Room)
}

func (t *SessionTable) shared(s Session) bool {
	return lo.SomeBy(lo.Values(t.sessions), func(other Session) bool {
		return other.Conn != s.Conn && other.Room == s.Room && other.Username == s.Username
	})
}
