package chat

import (
	"time"

	"github.com/Tyrowin/roomchat/internal/clock"
)

type typingKey struct {
	conn ConnID
	room string
}

type typingTimer struct {
	generation uint64
	username   string
	timer      *clock.Timer
}

// TypingTracker keeps the typing flags of rooms and one debounce timer per
// (connection, room). An entry in timers is the single authoritative armed
// flag: a firing timer whose generation no longer matches is stale and does
// nothing.
type TypingTracker struct {
	rooms      *RoomRegistry
	clock      clock.Clock
	timeout    time.Duration
	timers     map[typingKey]*typingTimer
	generation uint64
	onExpire   func(conn ConnID, room string, generation uint64)
}

// NewTypingTracker returns a tracker whose timers call onExpire when they
// fire. onExpire runs outside any lock of the tracker's owner and is
// expected to take that lock and call Expire.
func NewTypingTracker(rooms *RoomRegistry, clk clock.Clock, timeout time.Duration,
	onExpire func(conn ConnID, room string, generation uint64)) *TypingTracker {
	return &TypingTracker{
		rooms:    rooms,
		clock:    clk,
		timeout:  timeout,
		timers:   make(map[typingKey]*typingTimer),
		onExpire: onExpire,
	}
}

// Start flags username as typing in room and (re)arms the debounce timer.
func (t *TypingTracker) Start(conn ConnID, room, username string) {
	r, ok := t.rooms.Get(room)
	if !ok {
		return
	}
	r.setTyping(username)

	key := typingKey{conn: conn, room: room}
	t.cancel(key)
	t.arm(key, username)
}

func (t *TypingTracker) arm(key typingKey, username string) {
	t.generation++
	generation := t.generation
	t.timers[key] = &typingTimer{
		generation: generation,
		username:   username,
		timer: t.clock.AfterFunc(t.timeout, func() {
			t.onExpire(key.conn, key.room, generation)
		}),
	}
}

// Stop clears the typing flag and disarms the timer.
func (t *TypingTracker) Stop(conn ConnID, room, username string) {
	t.cancel(typingKey{conn: conn, room: room})
	if r, ok := t.rooms.Get(room); ok {
		r.clearTyping(username)
	}
}

// Expire is called when a timer fires. It clears the flag and returns the
// username only if the timer is still the armed one for its key.
func (t *TypingTracker) Expire(conn ConnID, room string, generation uint64) (string, bool) {
	key := typingKey{conn: conn, room: room}
	armed, ok := t.timers[key]
	if !ok || armed.generation != generation {
		return "", false
	}
	delete(t.timers, key)
	if r, ok := t.rooms.Get(room); ok {
		r.clearTyping(armed.username)
	}
	return armed.username, true
}

// CancelConn disarms every timer owned by conn without emitting anything.
func (t *TypingTracker) CancelConn(conn ConnID) int {
	n := 0
	for key := range t.timers {
		if key.conn == conn {
			t.cancel(key)
			n++
		}
	}
	return n
}

// Armed reports whether a timer is pending for conn in room.
func (t *TypingTracker) Armed(conn ConnID, room string) bool {
	_, ok := t.timers[typingKey{conn: conn, room: room}]
	return ok
}

func (t *TypingTracker) cancel(key typingKey) {
	if armed, ok := t.timers[key]; ok {
		armed.timer.Stop()
		delete(t.timers, key)
	}
}

// armedFor returns the timers currently armed for conn.
func (t *TypingTracker) armedFor(conn ConnID) map[typingKey]*typingTimer {
	armed := make(map[typingKey]*typingTimer)
	for key, timer := range t.timers {
		if key.conn == conn {
			armed[key] = timer
		}
	}
	return armed
}

// restore puts the timers of conn back to saved. Timers armed since are
// disarmed; saved timers that were cancelled since are armed again with a
// full timeout.
func (t *TypingTracker) restore(conn ConnID, saved map[typingKey]*typingTimer) {
	for key, current := range t.armedFor(conn) {
		if saved[key] != current {
			t.cancel(key)
		}
	}
	for key, timer := range saved {
		if t.timers[key] != timer {
			t.arm(key, timer.username)
		}
	}
}
