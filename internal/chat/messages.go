package chat

import (
	"fmt"
	"maps"
	"slices"
	"time"
	"unicode/utf8"

	"github.com/Tyrowin/roomchat/internal/clock"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// DeliveryState only moves forward: Sent, then Delivered, then Read.
type DeliveryState int

const (
	Sent DeliveryState = iota
	Delivered
	Read
)

func (s DeliveryState) String() string {
	switch s {
	case Sent:
		return "sent"
	case Delivered:
		return "delivered"
	case Read:
		return "read"
	default:
		return fmt.Sprintf("DeliveryState(%d)", int(s))
	}
}

func (s DeliveryState) MarshalText() ([]byte, error) {
	if s < Sent || s > Read {
		return nil, fmt.Errorf("invalid delivery state %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *DeliveryState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "sent":
		*s = Sent
	case "delivered":
		*s = Delivered
	case "read":
		*s = Read
	default:
		return fmt.Errorf("invalid delivery state %q", text)
	}
	return nil
}

// Message is one entry of a room's log. Its JSON form is the wire shape
// {id, room, username, message, timestamp, status}.
type Message struct {
	ID     string `json:"id"`
	Room   string `json:"room"`
	Author string `json:"username"`
	Body   string `json:"message"`
	// Timestamp echoes the client-supplied send time. It is never used
	// for ordering; arrival order is.
	Timestamp  string        `json:"timestamp"`
	ReceivedAt time.Time     `json:"-"`
	State      DeliveryState `json:"status"`

	receipts map[string]struct{}
}

// Receipts returns who acknowledged the message, author included.
func (m Message) Receipts() []string {
	names := lo.Keys(m.receipts)
	slices.Sort(names)
	return names
}

// advance moves the delivery state forward. It reports false, leaving the
// message untouched, when to is not ahead of the current state.
func (m *Message) advance(to DeliveryState) bool {
	if to <= m.State {
		return false
	}
	m.State = to
	return true
}

// MessageStore keeps the bounded per-room message logs. Logs live on the
// rooms of the registry, so a removed room takes its log with it.
type MessageStore struct {
	rooms    *RoomRegistry
	capacity int
	maxBody  int
	clock    clock.Clock
	newID    func() string
}

// NewMessageStore returns a store keeping at most capacity messages per
// room and truncating bodies to maxBody runes.
func NewMessageStore(rooms *RoomRegistry, capacity, maxBody int, clk clock.Clock) *MessageStore {
	return &MessageStore{
		rooms:    rooms,
		capacity: capacity,
		maxBody:  maxBody,
		clock:    clk,
		newID:    uuid.NewString,
	}
}

// Append stores a new message at the end of the room's log, evicting the
// oldest entries beyond capacity.
func (s *MessageStore) Append(room, author, body, timestamp string) (*Message, error) {
	r, ok := s.rooms.Get(room)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, room)
	}

	now := s.clock.Now()
	if timestamp == "" {
		timestamp = now.UTC().Format(time.RFC3339Nano)
	}
	msg := &Message{
		ID:         s.newID(),
		Room:       room,
		Author:     author,
		Body:       truncate(body, s.maxBody),
		Timestamp:  timestamp,
		ReceivedAt: now,
		State:      Sent,
		receipts:   map[string]struct{}{author: {}},
	}

	r.messages = append(r.messages, msg)
	if overflow := len(r.messages) - s.capacity; overflow > 0 {
		n := copy(r.messages, r.messages[overflow:])
		clear(r.messages[n:])
		r.messages = r.messages[:n]
	}
	return msg, nil
}

// Recent returns up to limit of the newest messages, oldest first. A
// non-positive limit means the whole log. The result never aliases the log.
func (s *MessageStore) Recent(room string, limit int) []Message {
	r, ok := s.rooms.Get(room)
	if !ok {
		return []Message{}
	}
	if limit <= 0 || limit > len(r.messages) {
		limit = len(r.messages)
	}
	tail := r.messages[len(r.messages)-limit:]
	return lo.Map(tail, func(m *Message, _ int) Message { return m.snapshot() })
}

func (m *Message) snapshot() Message {
	cp := *m
	cp.receipts = maps.Clone(m.receipts)
	return cp
}

// Find locates a message that is still in the room's log.
func (s *MessageStore) Find(room, id string) (*Message, bool) {
	r, ok := s.rooms.Get(room)
	if !ok {
		return nil, false
	}
	return lo.Find(r.messages, func(m *Message) bool { return m.ID == id })
}

func truncate(body string, limit int) string {
	if utf8.RuneCountInString(body) <= limit {
		return body
	}
	return string([]rune(body)[:limit])
}
