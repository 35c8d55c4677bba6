//go:generate go run go.uber.org/mock/mockgen -source=sink.go -destination=../mocks/mock_sink.go -package=mocks
package chat

import "fmt"

// ConnID is the opaque handle of one client connection.
type ConnID string

// Scope selects who receives a published event.
type Scope int

const (
	ScopeConnection Scope = iota
	ScopeRoom
	ScopeBroadcast
)

// Target addresses an outbound event. For ScopeRoom, Except (when set) is
// left out of the fan-out, which is how "the rest of the room" is expressed.
type Target struct {
	Scope  Scope
	Conn   ConnID
	Room   string
	Except ConnID
}

func ToConn(conn ConnID) Target { return Target{Scope: ScopeConnection, Conn: conn} }

func ToRoom(room string) Target { return Target{Scope: ScopeRoom, Room: room} }

func ToRoomExcept(room string, conn ConnID) Target {
	return Target{Scope: ScopeRoom, Room: room, Except: conn}
}

func ToAll() Target { return Target{Scope: ScopeBroadcast} }

func (t Target) String() string {
	switch t.Scope {
	case ScopeConnection:
		return fmt.Sprintf("conn:%s", t.Conn)
	case ScopeRoom:
		if t.Except != "" {
			return fmt.Sprintf("room:%s-%s", t.Room, t.Except)
		}
		return fmt.Sprintf("room:%s", t.Room)
	default:
		return "all"
	}
}

// Sink receives everything the Coordinator emits. The Coordinator calls it
// while holding its lock, so implementations must not block and must not
// call back into the Coordinator.
//
// Subscribe and Unsubscribe mirror room membership of a connection so that
// room-scoped targets can be resolved by the sink.
type Sink interface {
	Publish(target Target, event string, payload any)
	Subscribe(conn ConnID, room string)
	Unsubscribe(conn ConnID, room string)
}
