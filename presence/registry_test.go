package presence

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"chat-sync/contract"
	"chat-sync/domain/chat"
)

type fakeSession struct {
	room string
}

func (s *fakeSession) Deliver(event string, payload any) error { return nil }
func (s *fakeSession) Identity() chat.Identity                 { return chat.Identity{} }
func (s *fakeSession) Room() string                            { return s.room }
func (s *fakeSession) SetRoom(room string)                     { s.room = room }

var _ contract.Session = (*fakeSession)(nil)

func identity(username string) chat.Identity {
	return chat.Identity{UserID: uuid.NewString(), Username: username}
}

func TestRegistry_Register_One_User(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	alice := identity("alice")
	session := &fakeSession{}

	// Given no user is connected
	req.Empty(registry.Snapshot())

	// When a user registers
	previous := registry.Register(alice, session)

	// Then there was nothing to replace
	req.Nil(previous)

	// And the user is resolvable and visible in the snapshot
	resolved, ok := registry.Resolve(alice.UserID)
	req.True(ok)
	req.Same(session, resolved)
	req.Len(registry.Snapshot(), 1)
	req.Equal(alice, registry.Snapshot()[0].Identity)
}

func TestRegistry_Register_Same_User_Replaces_Session(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	alice := identity("alice")
	first := &fakeSession{}
	second := &fakeSession{}

	// Given a connected user
	registry.Register(alice, first)

	// When the same identity connects again
	previous := registry.Register(alice, second)

	// Then the new session replaces the old one
	req.Same(first, previous)
	resolved, ok := registry.Resolve(alice.UserID)
	req.True(ok)
	req.Same(second, resolved)

	// And there still is a single entry
	req.Len(registry.Snapshot(), 1)
}

func TestRegistry_Unregister_With_Stale_Session_Is_A_NoOp(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	alice := identity("alice")
	first := &fakeSession{}
	second := &fakeSession{}

	// Given a user whose connection was superseded
	registry.Register(alice, first)
	registry.Register(alice, second)

	// When the superseded connection disconnects late
	removed := registry.Unregister(alice.UserID, first)

	// Then the newer session is not evicted
	req.False(removed)
	resolved, ok := registry.Resolve(alice.UserID)
	req.True(ok)
	req.Same(second, resolved)
}

func TestRegistry_Unregister_Removes_Entry(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	alice := identity("alice")
	session := &fakeSession{}

	// Given a connected user
	registry.Register(alice, session)

	// When its own session unregisters
	removed := registry.Unregister(alice.UserID, session)

	// Then the entry is gone
	req.True(removed)
	_, ok := registry.Resolve(alice.UserID)
	req.False(ok)
	req.Empty(registry.Snapshot())
}

func TestRegistry_Snapshot_Preserves_Insertion_Order(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	alice := identity("alice")
	bob := identity("bob")
	clara := identity("clara")

	// Given three users connected in order
	registry.Register(alice, &fakeSession{})
	registry.Register(bob, &fakeSession{})
	registry.Register(clara, &fakeSession{})

	// When the middle user reconnects
	registry.Register(bob, &fakeSession{})

	// Then the snapshot keeps the original order
	snapshot := registry.Snapshot()
	req.Len(snapshot, 3)
	req.Equal(alice, snapshot[0].Identity)
	req.Equal(bob, snapshot[1].Identity)
	req.Equal(clara, snapshot[2].Identity)
}
