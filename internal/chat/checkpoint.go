package chat

import (
	"maps"
	"slices"
	"time"
)

// roomImage is a copy of one room's mutable fields. A nil room means the
// room did not exist when the image was taken.
type roomImage struct {
	room         *Room
	members      []string
	typing       []string
	messages     []*Message
	lastActivity time.Time
}

// messageImage is a copy of the mutable fields of one stored message.
type messageImage struct {
	msg      *Message
	state    DeliveryState
	receipts map[string]struct{}
}

// checkpoint is the state a command may touch, taken before it runs so that
// a failing command can be undone as a whole.
type checkpoint struct {
	conn       ConnID
	session    Session
	hadSession bool
	order      []string
	rooms      map[string]roomImage
	message    *messageImage
	timers     map[typingKey]*typingTimer
}

// checkpoint captures the rooms, session, message and typing timers that
// cmd can mutate for conn.
func (c *Coordinator) checkpoint(conn ConnID, cmd Command) *checkpoint {
	cp := &checkpoint{
		conn:   conn,
		order:  c.rooms.List(),
		rooms:  make(map[string]roomImage),
		timers: c.typing.armedFor(conn),
	}
	cp.session, cp.hadSession = c.sessions.Get(conn)
	if cp.hadSession {
		c.saveRoom(cp, cp.session.Room)
	}

	switch cmd := cmd.(type) {
	case JoinRoom:
		c.saveRoom(cp, cmd.Room)
	case SendMessage:
		c.saveRoom(cp, cmd.Room)
	case TypingStart:
		c.saveRoom(cp, cmd.Room)
	case TypingStop:
		c.saveRoom(cp, cmd.Room)
	case MessageReceived:
		if cp.hadSession {
			if msg, ok := c.messages.Find(cp.session.Room, cmd.MessageID); ok {
				cp.message = &messageImage{msg: msg, state: msg.State, receipts: maps.Clone(msg.receipts)}
			}
		}
	}
	return cp
}

func (c *Coordinator) saveRoom(cp *checkpoint, name string) {
	if _, saved := cp.rooms[name]; saved {
		return
	}
	r, ok := c.rooms.Get(name)
	if !ok {
		cp.rooms[name] = roomImage{}
		return
	}
	cp.rooms[name] = roomImage{
		room:         r,
		members:      slices.Clone(r.members),
		typing:       slices.Clone(r.typing),
		messages:     slices.Clone(r.messages),
		lastActivity: r.lastActivity,
	}
}

// rollback restores everything captured in cp. Events already handed to
// the sink stay sent; subscriptions are put back to match the session.
func (c *Coordinator) rollback(cp *checkpoint) {
	for name, image := range cp.rooms {
		if image.room == nil {
			delete(c.rooms.rooms, name)
			continue
		}
		image.room.members = image.members
		image.room.typing = image.typing
		image.room.messages = image.messages
		image.room.lastActivity = image.lastActivity
		c.rooms.rooms[name] = image.room
	}
	c.rooms.order = cp.order

	if m := cp.message; m != nil {
		m.msg.State = m.state
		m.msg.receipts = m.receipts
	}

	current, bound := c.sessions.Get(cp.conn)
	if cp.hadSession {
		c.sessions.sessions[cp.conn] = cp.session
	} else {
		delete(c.sessions.sessions, cp.conn)
	}
	c.typing.restore(cp.conn, cp.timers)

	if bound != cp.hadSession || current.Room != cp.session.Room {
		c.resubscribe(cp.conn, current, bound, cp.session, cp.hadSession)
	}
}

func (c *Coordinator) resubscribe(conn ConnID, current Session, bound bool, saved Session, hadSaved bool) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Restoring subscriptions panicked", "conn", conn, "panic", r)
		}
	}()
	if bound {
		c.sink.Unsubscribe(conn, current.Room)
	}
	if hadSaved {
		c.sink.Subscribe(conn, saved.Room)
	}
}
