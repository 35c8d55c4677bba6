package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

// Inbound event names.
const (
	EventJoinRoom        = "join_room"
	EventLeaveRoom       = "leave_room"
	EventSendMessage     = "send_message"
	EventTypingStart     = "typing_start"
	EventTypingStop      = "typing_stop"
	EventMessageReceived = "message_received"
)

// Command is the closed set of things a connection can ask the Coordinator
// to do. Connect and Disconnect come from the transport, never the wire.
type Command interface {
	Name() string
}

type Connect struct{}

type JoinRoom struct {
	Username string `json:"username" validate:"required,max=64"`
	Room     string `json:"room" validate:"required,max=64"`
}

// LeaveRoom leaves whatever room the session is in. The payload fields are
// accepted for wire compatibility but the session is authoritative.
type LeaveRoom struct {
	Username string `json:"username"`
	Room     string `json:"room"`
}

type SendMessage struct {
	Room      string `json:"room" validate:"required"`
	Message   string `json:"message" validate:"required"`
	Username  string `json:"username"`
	Timestamp string `json:"timestamp"`
}

type TypingStart struct {
	Room     string `json:"room" validate:"required"`
	Username string `json:"username"`
}

type TypingStop struct {
	Room     string `json:"room" validate:"required"`
	Username string `json:"username"`
}

type MessageReceived struct {
	MessageID string `json:"messageId" validate:"required"`
}

type Disconnect struct{}

func (Connect) Name() string         { return "connect" }
func (JoinRoom) Name() string        { return EventJoinRoom }
func (LeaveRoom) Name() string       { return EventLeaveRoom }
func (SendMessage) Name() string     { return EventSendMessage }
func (TypingStart) Name() string     { return EventTypingStart }
func (TypingStop) Name() string      { return EventTypingStop }
func (MessageReceived) Name() string { return EventMessageReceived }
func (Disconnect) Name() string      { return "disconnect" }

// Envelope is the frame format in both directions: {"event": ..., "data": ...}.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// DecodeFrame parses one inbound WebSocket frame into a Command.
func DecodeFrame(frame []byte) (Command, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: malformed frame: %v", ErrInvalidCommand, err)
	}
	return DecodeCommand(env.Event, env.Data)
}

// DecodeCommand maps an inbound event name and payload to a Command.
func DecodeCommand(event string, data []byte) (Command, error) {
	switch event {
	case EventJoinRoom:
		return decode[JoinRoom](event, data)
	case EventLeaveRoom:
		return decode[LeaveRoom](event, data)
	case EventSendMessage:
		return decode[SendMessage](event, data)
	case EventTypingStart:
		return decode[TypingStart](event, data)
	case EventTypingStop:
		return decode[TypingStop](event, data)
	case EventMessageReceived:
		return decode[MessageReceived](event, data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, event)
	}
}

func decode[T Command](event string, data []byte) (Command, error) {
	var cmd T
	if len(data) == 0 || string(data) == "null" {
		return cmd, nil
	}
	if err := json.Unmarshal(data, &cmd); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidCommand, event, err)
	}
	return cmd, nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validateCommand(v *validator.Validate, cmd Command) error {
	err := v.Struct(cmd)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %s: %v", ErrInvalidCommand, cmd.Name(), err)
	}
	reasons := lo.Map(fieldErrs, func(fe validator.FieldError, _ int) string {
		switch fe.Tag() {
		case "required":
			return fe.Field() + " is required"
		case "max":
			return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
		default:
			return fe.Field() + " is invalid"
		}
	})
	return fmt.Errorf("%w: %s: %s", ErrInvalidCommand, cmd.Name(), strings.Join(reasons, "; "))
}
