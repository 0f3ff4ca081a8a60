//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import "chat-sync/domain/chat"

// EventSink pushes one server-to-client event onto a connection's outbound
// queue. Implementations must not block: a full queue drops the event and
// returns an error instead of stalling the caller.
type EventSink interface {
	Deliver(event string, payload any) error
}

// Session is the live server-side state of one authenticated connection.
// Room is empty until the connection joins one; SetRoom records the current
// room for typing and authorization scoping but never relabels past messages.
type Session interface {
	EventSink
	Identity() chat.Identity
	Room() string
	SetRoom(room string)
}
