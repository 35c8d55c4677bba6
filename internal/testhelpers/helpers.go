// Package testhelpers provides common utilities shared by the chat and
// server tests: a recording event sink and WebSocket client helpers that
// speak the {"event","data"} envelope.
package testhelpers

import (
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// Published is one event captured by a RecordingSink.
type Published struct {
	Target  chat.Target
	Event   string
	Payload any
}

// RecordingSink is a chat.Sink that keeps every published event in order
// and tracks room subscriptions. It is safe for concurrent use.
type RecordingSink struct {
	mu      sync.Mutex
	events  []Published
	members map[string][]chat.ConnID
}

func NewRecordingSink() *RecordingSink {
	return &RecordingSink{members: make(map[string][]chat.ConnID)}
}

func (s *RecordingSink) Publish(target chat.Target, event string, payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, Published{Target: target, Event: event, Payload: payload})
}

func (s *RecordingSink) Subscribe(conn chat.ConnID, room string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Contains(s.members[room], conn) {
		s.members[room] = append(s.members[room], conn)
	}
}

func (s *RecordingSink) Unsubscribe(conn chat.ConnID, room string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[room] = slices.DeleteFunc(s.members[room], func(c chat.ConnID) bool { return c == conn })
}

// Events returns a copy of everything published so far.
func (s *RecordingSink) Events() []Published {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.events)
}

// Named returns the published events with the given name, in order.
func (s *RecordingSink) Named(event string) []Published {
	return slices.DeleteFunc(s.Events(), func(p Published) bool { return p.Event != event })
}

// Subscribers returns the connections subscribed to room.
func (s *RecordingSink) Subscribers(room string) []chat.ConnID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.members[room])
}

// Reset forgets the recorded events but keeps subscriptions.
func (s *RecordingSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

// FaultySink is a RecordingSink that can be armed to panic on one upcoming
// Publish. The panicking call is not recorded.
type FaultySink struct {
	*RecordingSink

	mu        sync.Mutex
	countdown int
}

func NewFaultySink() *FaultySink {
	return &FaultySink{RecordingSink: NewRecordingSink()}
}

// PanicOnPublish makes the nth Publish from now panic, once.
func (s *FaultySink) PanicOnPublish(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.countdown = n
}

func (s *FaultySink) Publish(target chat.Target, event string, payload any) {
	s.mu.Lock()
	fail := false
	if s.countdown > 0 {
		s.countdown--
		fail = s.countdown == 0
	}
	s.mu.Unlock()
	if fail {
		panic("sink failure on " + event)
	}
	s.RecordingSink.Publish(target, event, payload)
}

// Frame is a decoded outbound envelope.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Decode unmarshals the frame's data into v.
func (f Frame) Decode(t *testing.T, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(f.Data, v), "decode %s payload", f.Event)
}

// WebSocketURL turns an httptest server URL into the ws:// URL of path.
func WebSocketURL(serverURL, path string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http") + path
}

// ConnectWebSocket dials url with the given Origin header.
func ConnectWebSocket(t *testing.T, url, origin string) *websocket.Conn {
	t.Helper()
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	require.NoError(t, err, "dial %s", url)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// SendEvent writes one {"event","data"} frame.
func SendEvent(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	frame, err := json.Marshal(Frame{Event: event, Data: raw})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

// reader buffers frames that arrived batched in one WebSocket message.
type reader struct {
	mu      sync.Mutex
	pending map[*websocket.Conn][]Frame
}

var frames = &reader{pending: make(map[*websocket.Conn][]Frame)}

// ReadEvent returns the next outbound frame, failing the test after
// timeout. Newline-batched messages are split into their frames.
func ReadEvent(t *testing.T, conn *websocket.Conn, timeout time.Duration) Frame {
	t.Helper()

	frames.mu.Lock()
	if queued := frames.pending[conn]; len(queued) > 0 {
		next := queued[0]
		frames.pending[conn] = queued[1:]
		frames.mu.Unlock()
		return next
	}
	frames.mu.Unlock()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	_, message, err := conn.ReadMessage()
	require.NoError(t, err, "read frame")

	var batch []Frame
	for _, line := range strings.Split(strings.TrimSpace(string(message)), "\n") {
		if line == "" {
			continue
		}
		var f Frame
		require.NoError(t, json.Unmarshal([]byte(line), &f), "frame %q", line)
		batch = append(batch, f)
	}
	require.NotEmpty(t, batch)

	frames.mu.Lock()
	frames.pending[conn] = append(frames.pending[conn], batch[1:]...)
	frames.mu.Unlock()
	return batch[0]
}

// ReadUntil skips frames until one named event arrives.
func ReadUntil(t *testing.T, conn *websocket.Conn, event string, timeout time.Duration) Frame {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		require.True(t, remaining > 0, "timed out waiting for %s", event)
		if f := ReadEvent(t, conn, remaining); f.Event == event {
			return f
		}
	}
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}
