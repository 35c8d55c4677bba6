package server_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/internal/clock"
	"github.com/Tyrowin/roomchat/internal/server"
	th "github.com/Tyrowin/roomchat/internal/testhelpers"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

const (
	allowedOrigin = "http://localhost:3000"
	readTimeout   = 2 * time.Second
)

func startApp(t *testing.T, customize func(cfg *server.Config)) (*server.App, *httptest.Server) {
	t.Helper()
	cfg := server.NewConfig()
	if customize != nil {
		customize(cfg)
	}

	app := server.NewApp(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), clock.Real())
	app.Start(context.Background())
	ts := httptest.NewServer(app.Handler())

	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = app.Shutdown(ctx)
	})
	return app, ts
}

func connect(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	conn := th.ConnectWebSocket(t, th.WebSocketURL(ts.URL, "/ws"), allowedOrigin)
	var rooms chat.RoomsPayload
	th.ReadUntil(t, conn, chat.EventRoomList, readTimeout).Decode(t, &rooms)
	require.Contains(t, rooms.Rooms, "General")
	return conn
}

func join(t *testing.T, conn *websocket.Conn, username, room string) chat.HistoryPayload {
	t.Helper()
	th.SendEvent(t, conn, chat.EventJoinRoom, chat.JoinRoom{Username: username, Room: room})
	var history chat.HistoryPayload
	th.ReadUntil(t, conn, chat.EventMessageHistory, readTimeout).Decode(t, &history)
	return history
}

func TestApp_JoinSendAcknowledge(t *testing.T) {
	_, ts := startApp(t, nil)

	alice := connect(t, ts)
	history := join(t, alice, "alice", "General")
	require.Empty(t, history.Messages)
	require.Equal(t, "General", history.Room)

	bob := connect(t, ts)
	join(t, bob, "bob", "General")

	var joined chat.UserPayload
	th.ReadUntil(t, alice, chat.EventUserJoined, readTimeout).Decode(t, &joined)
	require.Equal(t, chat.UserPayload{Username: "bob", Room: "General"}, joined)

	// Alice sends; both see the message, only Alice sees delivered
	th.SendEvent(t, alice, chat.EventSendMessage, chat.SendMessage{Room: "General", Message: "hi", Timestamp: "2026-01-01T00:00:00Z"})

	var sent chat.Message
	th.ReadUntil(t, alice, chat.EventReceiveMessage, readTimeout).Decode(t, &sent)
	require.Equal(t, "hi", sent.Body)
	require.Equal(t, "alice", sent.Author)
	require.Equal(t, chat.Sent, sent.State)
	require.Equal(t, "2026-01-01T00:00:00Z", sent.Timestamp)

	var status chat.StatusPayload
	th.ReadUntil(t, alice, chat.EventMessageStatus, readTimeout).Decode(t, &status)
	require.Equal(t, chat.StatusPayload{MessageID: sent.ID, Status: chat.Delivered}, status)

	var received chat.Message
	th.ReadUntil(t, bob, chat.EventReceiveMessage, readTimeout).Decode(t, &received)
	require.Equal(t, sent.ID, received.ID)

	// Bob acknowledges; the room covers {alice, bob} and the message is read
	th.SendEvent(t, bob, chat.EventMessageReceived, chat.MessageReceived{MessageID: received.ID})

	th.ReadUntil(t, alice, chat.EventMessageStatus, readTimeout).Decode(t, &status)
	require.Equal(t, chat.StatusPayload{MessageID: sent.ID, Status: chat.Read}, status)
	th.ReadUntil(t, bob, chat.EventMessageStatus, readTimeout).Decode(t, &status)
	require.Equal(t, chat.Read, status.Status)
}

func TestApp_DisconnectRunsLeavePath(t *testing.T) {
	app, ts := startApp(t, nil)

	alice := connect(t, ts)
	join(t, alice, "alice", "General")
	bob := connect(t, ts)
	join(t, bob, "bob", "General")

	require.NoError(t, th.CloseWebSocket(bob))

	var left chat.UserPayload
	th.ReadUntil(t, alice, chat.EventUserLeft, readTimeout).Decode(t, &left)
	require.Equal(t, chat.UserPayload{Username: "bob", Room: "General"}, left)
	require.Eventually(t, func() bool {
		return len(app.Coordinator().Members("General")) == 1
	}, readTimeout, 10*time.Millisecond)
	require.Eventually(t, func() bool { return app.Hub().ClientCount() == 1 }, readTimeout, 10*time.Millisecond)
}

func TestApp_ErrorsGoToSenderOnly(t *testing.T) {
	_, ts := startApp(t, nil)

	alice := connect(t, ts)
	th.SendEvent(t, alice, chat.EventSendMessage, chat.SendMessage{Room: "General", Message: "hi"})

	var failure chat.ErrorPayload
	th.ReadUntil(t, alice, chat.EventError, readTimeout).Decode(t, &failure)
	require.Equal(t, "join a room first", failure.Message)

	th.SendEvent(t, alice, "shout", map[string]string{})
	th.ReadUntil(t, alice, chat.EventError, readTimeout).Decode(t, &failure)
	require.Contains(t, failure.Message, "unknown event")
}

func TestApp_RoomsAPIReflectsJoins(t *testing.T) {
	_, ts := startApp(t, nil)

	alice := connect(t, ts)
	join(t, alice, "alice", "Random")

	resp, err := http.Get(ts.URL + "/api/rooms")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"rooms":["General","Random"]}`, string(body))
}

func TestApp_RejectsDisallowedOrigin(t *testing.T) {
	_, ts := startApp(t, nil)

	dialer := websocket.Dialer{HandshakeTimeout: readTimeout}
	headers := http.Header{}
	headers.Set("Origin", "http://evil.example")
	conn, resp, err := dialer.Dial(th.WebSocketURL(ts.URL, "/ws"), headers)
	if conn != nil {
		_ = conn.Close()
	}

	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestApp_OversizedFrameClosesConnection(t *testing.T) {
	_, ts := startApp(t, func(cfg *server.Config) { cfg.MaxMessageSize = 64 })

	alice := connect(t, ts)
	require.NoError(t, alice.WriteMessage(websocket.TextMessage, make([]byte, 256)))

	require.NoError(t, alice.SetReadDeadline(time.Now().Add(readTimeout)))
	for {
		if _, _, err := alice.ReadMessage(); err != nil {
			return
		}
	}
}

func TestApp_ShutdownClosesClients(t *testing.T) {
	app, ts := startApp(t, nil)
	alice := connect(t, ts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, app.Shutdown(ctx))

	require.NoError(t, alice.SetReadDeadline(time.Now().Add(readTimeout)))
	for {
		_, _, err := alice.ReadMessage()
		if err != nil {
			require.False(t, isTimeout(err), "connection was not closed: %v", err)
			return
		}
	}
}

func isTimeout(err error) bool {
	type timeout interface{ Timeout() bool }
	t, ok := err.(timeout)
	return ok && t.Timeout()
}
