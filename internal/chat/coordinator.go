// Package chat is the room, session and receipt coordinator of the chat
// server. All state is owned by a Coordinator and mutated under its single
// lock: every command, typing timer firing and reaper sweep is one atomic
// step, and everything it emits goes to an abstract Sink in commit order.
package chat

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Tyrowin/roomchat/internal/clock"
	"github.com/go-playground/validator/v10"
)

// Coordinator dispatches commands against the room, session, message,
// receipt and typing stores and publishes the resulting events.
type Coordinator struct {
	mu       sync.Mutex
	cfg      Config
	sink     Sink
	log      *slog.Logger
	validate *validator.Validate

	rooms    *RoomRegistry
	sessions *SessionTable
	messages *MessageStore
	receipts *ReceiptTracker
	typing   *TypingTracker
}

// NewCoordinator returns a Coordinator holding only the default room. Zero
// fields of cfg take their defaults.
func NewCoordinator(cfg Config, sink Sink, clk clock.Clock, log *slog.Logger) *Coordinator {
	cfg = cfg.withDefaults()
	rooms := NewRoomRegistry(cfg.DefaultRoom, cfg.InactivityTimeout, clk)
	messages := NewMessageStore(rooms, cfg.HistoryLimit, cfg.MaxBodyLength, clk)

	c := &Coordinator{
		cfg:      cfg,
		sink:     sink,
		log:      log,
		validate: newValidator(),
		rooms:    rooms,
		sessions: NewSessionTable(rooms),
		messages: messages,
		receipts: NewReceiptTracker(rooms, messages),
	}
	c.typing = NewTypingTracker(rooms, clk, cfg.TypingTimeout, c.expireTyping)
	return c
}

// HandleFrame decodes a raw inbound frame and dispatches it. Decoding
// failures are reported to conn like any other command failure.
func (c *Coordinator) HandleFrame(conn ConnID, frame []byte) error {
	cmd, err := DecodeFrame(frame)
	if err != nil {
		c.reportError(conn, "frame", err)
		return err
	}
	return c.Dispatch(conn, cmd)
}

// Dispatch applies one command for conn. A failure (including a panic)
// is logged and reported to conn alone as an error event, and it is also
// returned to the caller. State the command changed before failing is rolled
// back; events it already emitted are not retracted.
func (c *Coordinator) Dispatch(conn ConnID, cmd Command) (err error) {
	if cmd == nil {
		err = fmt.Errorf("%w: empty command", ErrInvalidCommand)
		c.reportError(conn, "unknown", err)
		return err
	}
	defer func() {
		if err != nil {
			c.reportError(conn, cmd.Name(), err)
		}
	}()

	if err := validateCommand(c.validate, cmd); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cp := c.checkpoint(conn, cmd)
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Command panicked", "conn", conn, "command", cmd.Name(), "panic", r)
			c.rollback(cp)
			err = fmt.Errorf("%w: %v", ErrInternal, r)
		}
	}()

	if err = c.apply(conn, cmd); err != nil {
		c.rollback(cp)
	}
	return err
}

func (c *Coordinator) apply(conn ConnID, cmd Command) error {
	switch cmd := cmd.(type) {
	case Connect:
		c.connect(conn)
	case JoinRoom:
		return c.join(conn, cmd)
	case LeaveRoom:
		c.leave(conn)
	case SendMessage:
		return c.send(conn, cmd)
	case MessageReceived:
		return c.acknowledge(conn, cmd)
	case TypingStart:
		return c.typingStart(conn, cmd)
	case TypingStop:
		return c.typingStop(conn, cmd)
	case Disconnect:
		c.disconnect(conn)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownEvent, cmd)
	}
	return nil
}

// reportError runs after the lock is released. A sink that panics while
// reporting is logged and otherwise ignored.
func (c *Coordinator) reportError(conn ConnID, command string, err error) {
	c.log.Warn("Command failed", "conn", conn, "command", command, "error", err)
	message := err.Error()
	if errors.Is(err, ErrInternal) {
		message = ErrInternal.Error()
	}
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Reporting error panicked", "conn", conn, "panic", r)
		}
	}()
	c.sink.Publish(ToConn(conn), EventError, ErrorPayload{Message: message})
}

func (c *Coordinator) connect(conn ConnID) {
	c.sink.Publish(ToConn(conn), EventRoomList, RoomsPayload{Rooms: c.rooms.List()})
}

func (c *Coordinator) join(conn ConnID, cmd JoinRoom) error {
	if current, ok := c.sessions.Get(conn); ok && current.Room == cmd.Room && current.Username == cmd.Username {
		c.rooms.Touch(cmd.Room)
		c.publishRoomUsers(cmd.Room)
		c.publishHistory(conn, cmd.Room)
		return nil
	}

	if _, created := c.rooms.Ensure(cmd.Room); created {
		c.log.Info("Room created", "room", cmd.Room)
		c.sink.Publish(ToAll(), EventRoomCreated, RoomPayload{Room: cmd.Room})
	}

	alreadyPresent := false
	if r, ok := c.rooms.Get(cmd.Room); ok {
		alreadyPresent = r.hasMember(cmd.Username)
	}

	c.typing.CancelConn(conn)
	prev, moved, err := c.sessions.Bind(conn, cmd.Username, cmd.Room)
	if err != nil {
		return err
	}
	if moved {
		c.sink.Unsubscribe(conn, prev.Room)
	}
	c.sink.Subscribe(conn, cmd.Room)

	if moved {
		c.publishUserLeft(prev)
	}
	c.publishRoomList()
	c.publishRoomUsers(cmd.Room)
	c.publishHistory(conn, cmd.Room)
	if !alreadyPresent {
		c.sink.Publish(ToRoomExcept(cmd.Room, conn), EventUserJoined, UserPayload{Username: cmd.Username, Room: cmd.Room})
	}
	return nil
}

func (c *Coordinator) leave(conn ConnID) {
	c.typing.CancelConn(conn)
	vacated, ok := c.sessions.Unbind(conn)
	if !ok {
		return
	}
	c.sink.Unsubscribe(conn, vacated.Room)
	c.publishUserLeft(vacated)
	c.publishRoomList()
}

func (c *Coordinator) disconnect(conn ConnID) {
	c.leave(conn)
}

func (c *Coordinator) send(conn ConnID, cmd SendMessage) error {
	s, err := c.boundSession(conn, cmd.Room)
	if err != nil {
		return err
	}

	msg, err := c.messages.Append(cmd.Room, s.Username, cmd.Message, cmd.Timestamp)
	if err != nil {
		return err
	}
	c.rooms.Touch(cmd.Room)
	c.sink.Publish(ToRoom(cmd.Room), EventReceiveMessage, msg.snapshot())

	if c.receipts.MarkDelivered(msg) {
		c.sink.Publish(ToConn(conn), EventMessageStatus, StatusPayload{MessageID: msg.ID, Status: Delivered})
	}
	return nil
}

func (c *Coordinator) acknowledge(conn ConnID, cmd MessageReceived) error {
	s, ok := c.sessions.Get(conn)
	if !ok {
		return ErrNoSession
	}
	if _, read := c.receipts.Acknowledge(s.Room, cmd.MessageID, s.Username); read {
		c.sink.Publish(ToRoom(s.Room), EventMessageStatus, StatusPayload{MessageID: cmd.MessageID, Status: Read})
	}
	return nil
}

func (c *Coordinator) typingStart(conn ConnID, cmd TypingStart) error {
	s, err := c.boundSession(conn, cmd.Room)
	if err != nil {
		return err
	}
	c.typing.Start(conn, cmd.Room, s.Username)
	c.rooms.Touch(cmd.Room)
	c.sink.Publish(ToRoomExcept(cmd.Room, conn), EventUserTyping, UserPayload{Username: s.Username, Room: cmd.Room})
	return nil
}

func (c *Coordinator) typingStop(conn ConnID, cmd TypingStop) error {
	s, err := c.boundSession(conn, cmd.Room)
	if err != nil {
		return err
	}
	c.typing.Stop(conn, cmd.Room, s.Username)
	c.rooms.Touch(cmd.Room)
	c.sink.Publish(ToRoomExcept(cmd.Room, conn), EventUserStoppedTyping, UserPayload{Username: s.Username, Room: cmd.Room})
	return nil
}

// expireTyping is the debounce timer callback. It runs on the timer's
// goroutine (or inside FakeClock.Advance) and takes the lock itself.
func (c *Coordinator) expireTyping(conn ConnID, room string, generation uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	username, ok := c.typing.Expire(conn, room, generation)
	if !ok {
		return
	}
	c.sink.Publish(ToRoomExcept(room, conn), EventUserStoppedTyping, UserPayload{Username: username, Room: room})
}

// boundSession returns the session of conn, which must be in room.
func (c *Coordinator) boundSession(conn ConnID, room string) (Session, error) {
	s, ok := c.sessions.Get(conn)
	if !ok {
		return Session{}, ErrNoSession
	}
	if _, ok := c.rooms.Get(room); !ok {
		return Session{}, fmt.Errorf("%w: %s", ErrRoomNotFound, room)
	}
	if s.Room != room {
		return Session{}, fmt.Errorf("%w: %s", ErrNotInRoom, room)
	}
	return s, nil
}

// publishUserLeft announces that s left its room. user_left is skipped
// while another connection keeps the username in the room.
func (c *Coordinator) publishUserLeft(s Session) {
	if r, ok := c.rooms.Get(s.Room); ok && r.hasMember(s.Username) {
		c.publishRoomUsers(s.Room)
		return
	}
	c.sink.Publish(ToRoom(s.Room), EventUserLeft, UserPayload{Username: s.Username, Room: s.Room})
	c.publishRoomUsers(s.Room)
}

func (c *Coordinator) publishRoomUsers(room string) {
	users := []string{}
	if r, ok := c.rooms.Get(room); ok {
		users = r.Members()
	}
	c.sink.Publish(ToRoom(room), EventRoomUsers, RoomUsersPayload{Users: users, Room: room})
}

func (c *Coordinator) publishHistory(conn ConnID, room string) {
	c.sink.Publish(ToConn(conn), EventMessageHistory, HistoryPayload{
		Messages: c.messages.Recent(room, c.cfg.HistoryLimit),
		Room:     room,
	})
}

func (c *Coordinator) publishRoomList() {
	c.sink.Publish(ToAll(), EventRoomUpdated, RoomsPayload{Rooms: c.rooms.List()})
}

// Sweep removes every room eligible for reaping and broadcasts
// room_deleted for each. It returns the removed names.
func (c *Coordinator) Sweep() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var removed []string
	for _, name := range c.rooms.List() {
		if c.rooms.RemoveIfEligible(name) {
			removed = append(removed, name)
			c.sink.Publish(ToAll(), EventRoomDeleted, RoomPayload{Room: name})
		}
	}
	return removed
}

// Rooms lists room names, default room first.
func (c *Coordinator) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rooms.List()
}

// Members lists the members of room, or nil if it does not exist.
func (c *Coordinator) Members(room string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.rooms.Get(room); ok {
		return r.Members()
	}
	return nil
}

// Typing lists who is flagged as typing in room.
func (c *Coordinator) Typing(room string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.rooms.Get(room); ok {
		return r.Typing()
	}
	return nil
}

// History returns the stored messages of room, oldest first.
func (c *Coordinator) History(room string) []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messages.Recent(room, c.cfg.HistoryLimit)
}

// Session returns the session bound to conn.
func (c *Coordinator) Session(conn ConnID) (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions.Get(conn)
}

// TypingArmed reports whether a debounce timer is pending for conn in room.
func (c *Coordinator) TypingArmed(conn ConnID, room string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.typing.Armed(conn, room)
}
