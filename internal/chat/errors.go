package chat

import "fmt"

var (
	ErrRoomNotFound   = fmt.Errorf("room not found")
	ErrNoSession      = fmt.Errorf("join a room first")
	ErrNotInRoom      = fmt.Errorf("not in room")
	ErrInvalidCommand = fmt.Errorf("invalid command")
	ErrUnknownEvent   = fmt.Errorf("unknown event")
	ErrInternal       = fmt.Errorf("internal error")
)
