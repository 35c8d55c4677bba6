package chat

import (
	"slices"
	"time"

	"github.com/Tyrowin/roomchat/internal/clock"
	"github.com/samber/lo"
)

// Room is a named channel. Membership is by username; members and typing
// keep insertion order so room_users lists people in the order they arrived.
type Room struct {
	Name         string
	members      []string
	typing       []string
	messages     []*Message
	lastActivity time.Time
}

// Members returns a copy of the member names.
func (r *Room) Members() []string { return slices.Clone(r.members) }

// Typing returns a copy of the names currently typing.
func (r *Room) Typing() []string { return slices.Clone(r.typing) }

// LastActivity is the time of the last join, leave, send or typing event.
func (r *Room) LastActivity() time.Time { return r.lastActivity }

func (r *Room) hasMember(username string) bool { return lo.Contains(r.members, username) }

func (r *Room) addMember(username string) {
	if !r.hasMember(username) {
		r.members = append(r.members, username)
	}
}

func (r *Room) removeMember(username string) { r.members = lo.Without(r.members, username) }

func (r *Room) setTyping(username string) {
	if !lo.Contains(r.typing, username) {
		r.typing = append(r.typing, username)
	}
}

func (r *Room) clearTyping(username string) { r.typing = lo.Without(r.typing, username) }

// RoomRegistry owns the set of rooms. It is not safe for concurrent use;
// the Coordinator serializes access.
type RoomRegistry struct {
	rooms       map[string]*Room
	order       []string
	defaultRoom string
	inactivity  time.Duration
	clock       clock.Clock
}

// NewRoomRegistry returns a registry that already holds the default room.
func NewRoomRegistry(defaultRoom string, inactivity time.Duration, clk clock.Clock) *RoomRegistry {
	r := &RoomRegistry{
		rooms:       make(map[string]*Room),
		defaultRoom: defaultRoom,
		inactivity:  inactivity,
		clock:       clk,
	}
	r.Ensure(defaultRoom)
	return r
}

// Ensure returns the named room, creating it if needed. created reports
// whether this call created it.
func (r *RoomRegistry) Ensure(name string) (room *Room, created bool) {
	if room, ok := r.rooms[name]; ok {
		return room, false
	}
	room = &Room{Name: name, lastActivity: r.clock.Now()}
	r.rooms[name] = room
	r.order = append(r.order, name)
	return room, true
}

// Get looks up a room without creating it.
func (r *RoomRegistry) Get(name string) (*Room, bool) {
	room, ok := r.rooms[name]
	return room, ok
}

// List returns room names in creation order. The default room is first.
func (r *RoomRegistry) List() []string { return slices.Clone(r.order) }

// Touch records activity on a room. Unknown rooms are ignored.
func (r *RoomRegistry) Touch(name string) {
	if room, ok := r.rooms[name]; ok {
		room.lastActivity = r.clock.Now()
	}
}

// IsDefault reports whether name is the room that is never removed.
func (r *RoomRegistry) IsDefault(name string) bool { return name == r.defaultRoom }

// RemoveIfEligible deletes a room that is not the default room, has no
// members and has been idle for longer than the inactivity timeout.
func (r *RoomRegistry) RemoveIfEligible(name string) bool {
	room, ok := r.rooms[name]
	if !ok || r.IsDefault(name) || len(room.members) > 0 {
		return false
	}
	if r.clock.Now().Sub(room.lastActivity) <= r.inactivity {
		return false
	}
	delete(r.rooms, name)
	r.order = lo.Without(r.order, name)
	return true
}
