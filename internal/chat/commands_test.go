package chat_test

import (
	"strings"
	"testing"

	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrame(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		want    chat.Command
		wantErr error
	}{
		{
			name:  "join_room",
			frame: `{"event":"join_room","data":{"username":"alice","room":"General"}}`,
			want:  chat.JoinRoom{Username: "alice", Room: "General"},
		},
		{
			name:  "leave_room without data",
			frame: `{"event":"leave_room"}`,
			want:  chat.LeaveRoom{},
		},
		{
			name:  "send_message",
			frame: `{"event":"send_message","data":{"room":"General","message":"hi","username":"alice","timestamp":"t0"}}`,
			want:  chat.SendMessage{Room: "General", Message: "hi", Username: "alice", Timestamp: "t0"},
		},
		{
			name:  "typing_start",
			frame: `{"event":"typing_start","data":{"room":"General","username":"alice"}}`,
			want:  chat.TypingStart{Room: "General", Username: "alice"},
		},
		{
			name:  "typing_stop",
			frame: `{"event":"typing_stop","data":{"room":"General"}}`,
			want:  chat.TypingStop{Room: "General"},
		},
		{
			name:  "message_received",
			frame: `{"event":"message_received","data":{"messageId":"m1"}}`,
			want:  chat.MessageReceived{MessageID: "m1"},
		},
		{
			name:    "unknown event",
			frame:   `{"event":"connect"}`,
			wantErr: chat.ErrUnknownEvent,
		},
		{
			name:    "malformed envelope",
			frame:   `{"event":`,
			wantErr: chat.ErrInvalidCommand,
		},
		{
			name:    "wrong payload type",
			frame:   `{"event":"join_room","data":{"username":42}}`,
			wantErr: chat.ErrInvalidCommand,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := chat.DecodeFrame([]byte(tt.frame))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestDispatch_ValidationMessages(t *testing.T) {
	f := newFixture(t)

	err := f.coord.Dispatch("a", chat.JoinRoom{Username: "alice", Room: strings.Repeat("r", 65)})

	require.ErrorIs(t, err, chat.ErrInvalidCommand)
	require.ErrorContains(t, err, "room must be at most 64 characters")
	require.Empty(t, f.coord.Members("General"))
}

func TestDispatch_NilCommand(t *testing.T) {
	f := newFixture(t)

	err := f.coord.Dispatch("a", nil)

	require.ErrorIs(t, err, chat.ErrInvalidCommand)
	require.Len(t, f.sink.Named(chat.EventError), 1)
}
