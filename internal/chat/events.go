package chat

// Outbound event names.
const (
	EventRoomList          = "room_list"
	EventRoomCreated       = "room_created"
	EventRoomDeleted       = "room_deleted"
	EventRoomUpdated       = "room_updated"
	EventRoomUsers         = "room_users"
	EventMessageHistory    = "message_history"
	EventUserJoined        = "user_joined"
	EventUserLeft          = "user_left"
	EventReceiveMessage    = "receive_message"
	EventMessageStatus     = "message_status"
	EventUserTyping        = "user_typing"
	EventUserStoppedTyping = "user_stopped_typing"
	EventError             = "error"
)

type RoomsPayload struct {
	Rooms []string `json:"rooms"`
}

type RoomPayload struct {
	Room string `json:"room"`
}

type RoomUsersPayload struct {
	Users []string `json:"users"`
	Room  string   `json:"room"`
}

type HistoryPayload struct {
	Messages []Message `json:"messages"`
	Room     string    `json:"room"`
}

// UserPayload is shared by user_joined, user_left, user_typing and
// user_stopped_typing.
type UserPayload struct {
	Username string `json:"username"`
	Room     string `json:"room"`
}

type StatusPayload struct {
	MessageID string        `json:"messageId"`
	Status    DeliveryState `json:"status"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
