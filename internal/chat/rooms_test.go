package chat_test

import (
	"encoding/json"
	"maps"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/internal/clock"
	"github.com/stretchr/testify/require"
)

func TestRoomRegistry_DefaultRoomExists(t *testing.T) {
	rooms := chat.NewRoomRegistry("General", time.Minute, clock.Fake(epoch))

	room, ok := rooms.Get("General")
	require.True(t, ok)
	require.Equal(t, "General", room.Name)
	require.True(t, rooms.IsDefault("General"))
	require.Equal(t, []string{"General"}, rooms.List())
}

func TestRoomRegistry_EnsureIsIdempotent(t *testing.T) {
	rooms := chat.NewRoomRegistry("General", time.Minute, clock.Fake(epoch))

	first, created := rooms.Ensure("Random")
	require.True(t, created)
	second, created := rooms.Ensure("Random")
	require.False(t, created)
	require.Same(t, first, second)
	require.Equal(t, []string{"General", "Random"}, rooms.List())
}

func TestRoomRegistry_RemoveIfEligible(t *testing.T) {
	clk := clock.Fake(epoch)
	rooms := chat.NewRoomRegistry("General", time.Minute, clk)
	sessions := chat.NewSessionTable(rooms)
	rooms.Ensure("Idle")
	rooms.Ensure("Occupied")
	_, _, err := sessions.Bind("a", "A", "Occupied")
	require.NoError(t, err)

	require.False(t, rooms.RemoveIfEligible("Idle"), "not idle long enough")

	clk.Advance(2 * time.Minute)

	require.False(t, rooms.RemoveIfEligible("General"), "default room")
	require.False(t, rooms.RemoveIfEligible("Occupied"), "has members")
	require.False(t, rooms.RemoveIfEligible("Missing"))
	require.True(t, rooms.RemoveIfEligible("Idle"))

	_, ok := rooms.Get("Idle")
	require.False(t, ok)
	require.Equal(t, []string{"General", "Occupied"}, rooms.List())
}

func TestRoomRegistry_TouchResetsIdleTime(t *testing.T) {
	clk := clock.Fake(epoch)
	rooms := chat.NewRoomRegistry("General", time.Minute, clk)
	room, _ := rooms.Ensure("Random")

	clk.Advance(50 * time.Second)
	rooms.Touch("Random")
	clk.Advance(50 * time.Second)

	require.Equal(t, epoch.Add(50*time.Second), room.LastActivity())
	require.False(t, rooms.RemoveIfEligible("Random"))
}

func TestMessageStore_AppendAndEvict(t *testing.T) {
	clk := clock.Fake(epoch)
	rooms := chat.NewRoomRegistry("General", time.Minute, clk)
	store := chat.NewMessageStore(rooms, 3, 1000, clk)

	var ids []string
	for _, body := range []string{"one", "two", "three", "four"} {
		msg, err := store.Append("General", "A", body, "")
		require.NoError(t, err)
		ids = append(ids, msg.ID)
	}

	recent := store.Recent("General", 0)
	require.Len(t, recent, 3)
	require.Equal(t, []string{"two", "three", "four"}, []string{recent[0].Body, recent[1].Body, recent[2].Body})

	_, ok := store.Find("General", ids[0])
	require.False(t, ok, "evicted message is gone")
	found, ok := store.Find("General", ids[3])
	require.True(t, ok)
	require.Equal(t, "four", found.Body)

	require.Len(t, store.Recent("General", 2), 2)
	require.Equal(t, "three", store.Recent("General", 2)[0].Body)
}

func TestMessageStore_AppendUnknownRoom(t *testing.T) {
	clk := clock.Fake(epoch)
	store := chat.NewMessageStore(chat.NewRoomRegistry("General", time.Minute, clk), 3, 10, clk)

	_, err := store.Append("Nowhere", "A", "hi", "")

	require.ErrorIs(t, err, chat.ErrRoomNotFound)
	require.Empty(t, store.Recent("Nowhere", 0))
	require.NotNil(t, store.Recent("Nowhere", 0))
}

func TestMessageStore_TruncatesByCharacter(t *testing.T) {
	clk := clock.Fake(epoch)
	store := chat.NewMessageStore(chat.NewRoomRegistry("General", time.Minute, clk), 3, 5, clk)

	msg, err := store.Append("General", "A", strings.Repeat("é", 8), "")

	require.NoError(t, err)
	require.Equal(t, strings.Repeat("é", 5), msg.Body)
	require.Equal(t, []string{"A"}, msg.Receipts())
	require.Equal(t, chat.Sent, msg.State)
	require.Equal(t, epoch, msg.ReceivedAt)
}

func TestMessage_WireFields(t *testing.T) {
	clk := clock.Fake(epoch)
	store := chat.NewMessageStore(chat.NewRoomRegistry("General", time.Minute, clk), 3, 100, clk)
	msg, err := store.Append("General", "A", "hi", "2026-01-01T12:00:00Z")
	require.NoError(t, err)

	raw, err := json.Marshal(store.Recent("General", 0)[0])
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	require.Equal(t,
		[]string{"id", "message", "room", "status", "timestamp", "username"},
		slices.Sorted(maps.Keys(fields)))
	require.Equal(t, msg.ID, fields["id"])
	require.Equal(t, "sent", fields["status"])
}

func TestMessageStore_RecentDoesNotAlias(t *testing.T) {
	clk := clock.Fake(epoch)
	rooms := chat.NewRoomRegistry("General", time.Minute, clk)
	store := chat.NewMessageStore(rooms, 3, 100, clk)
	msg, err := store.Append("General", "A", "hi", "")
	require.NoError(t, err)

	snapshot := store.Recent("General", 0)
	snapshot[0].Body = "changed"

	found, _ := store.Find("General", msg.ID)
	require.Equal(t, "hi", found.Body)
}

func TestDeliveryState_Text(t *testing.T) {
	for _, state := range []chat.DeliveryState{chat.Sent, chat.Delivered, chat.Read} {
		text, err := state.MarshalText()
		require.NoError(t, err)

		var decoded chat.DeliveryState
		require.NoError(t, decoded.UnmarshalText(text))
		require.Equal(t, state, decoded)
	}

	var bad chat.DeliveryState
	require.Error(t, bad.UnmarshalText([]byte("seen")))
	_, err := chat.DeliveryState(7).MarshalText()
	require.Error(t, err)
}

func TestSessionTable_BindMovesBetweenRooms(t *testing.T) {
	rooms := chat.NewRoomRegistry("General", time.Minute, clock.Fake(epoch))
	rooms.Ensure("Random")
	sessions := chat.NewSessionTable(rooms)

	_, hadPrev, err := sessions.Bind("a", "A", "General")
	require.NoError(t, err)
	require.False(t, hadPrev)

	prev, hadPrev, err := sessions.Bind("a", "A", "Random")
	require.NoError(t, err)
	require.True(t, hadPrev)
	require.Equal(t, "General", prev.Room)

	general, _ := rooms.Get("General")
	random, _ := rooms.Get("Random")
	require.Empty(t, general.Members())
	require.Equal(t, []string{"A"}, random.Members())
	require.Equal(t, 1, sessions.Len())
}

func TestSessionTable_BindUnknownRoomKeepsSession(t *testing.T) {
	rooms := chat.NewRoomRegistry("General", time.Minute, clock.Fake(epoch))
	sessions := chat.NewSessionTable(rooms)
	_, _, err := sessions.Bind("a", "A", "General")
	require.NoError(t, err)

	_, _, err = sessions.Bind("a", "A", "Nowhere")

	require.ErrorIs(t, err, chat.ErrRoomNotFound)
	s, ok := sessions.Get("a")
	require.True(t, ok)
	require.Equal(t, "General", s.Room)
}

func TestSessionTable_UnbindWithoutSession(t *testing.T) {
	sessions := chat.NewSessionTable(chat.NewRoomRegistry("General", time.Minute, clock.Fake(epoch)))

	_, ok := sessions.Unbind("a")

	require.False(t, ok)
}

func TestReceiptTracker_ReadAgainstCurrentMembership(t *testing.T) {
	clk := clock.Fake(epoch)
	rooms := chat.NewRoomRegistry("General", time.Minute, clk)
	sessions := chat.NewSessionTable(rooms)
	store := chat.NewMessageStore(rooms, 10, 100, clk)
	receipts := chat.NewReceiptTracker(rooms, store)

	for _, s := range []struct {
		conn chat.ConnID
		name string
	}{{"a", "A"}, {"b", "B"}, {"c", "C"}} {
		_, _, err := sessions.Bind(s.conn, s.name, "General")
		require.NoError(t, err)
	}
	msg, err := store.Append("General", "A", "hi", "")
	require.NoError(t, err)
	require.True(t, receipts.MarkDelivered(msg))
	require.False(t, receipts.MarkDelivered(msg), "state never moves back or repeats")

	_, read := receipts.Acknowledge("General", msg.ID, "B")
	require.False(t, read)

	// C leaves, so {A, B} now covers the room
	sessions.Unbind("c")
	_, read = receipts.Acknowledge("General", msg.ID, "B")
	require.True(t, read)
	require.Equal(t, chat.Read, msg.State)

	_, read = receipts.Acknowledge("General", "missing", "B")
	require.False(t, read)
}
