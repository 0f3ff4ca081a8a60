// Package presence is the in-memory directory of currently connected
// identities. Registry state is transient: it is rebuilt from scratch on
// process restart.
package presence

import (
	"sync"

	"chat-sync/contract"
	"chat-sync/domain/chat"
)

// Entry binds one identity to its active session.
type Entry struct {
	Identity chat.Identity
	Session  contract.Session
}

// Registry enforces at most one live entry per user: registering an already
// connected user replaces the previous session. All operations on the same
// userId are linearized under the registry mutex.
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]Entry
	order  []string
}

func NewRegistry() *Registry {
	return &Registry{byUser: make(map[string]Entry)}
}

// Register inserts or overwrites the entry for identity.UserID and returns
// the session it replaced, if any. A replaced user keeps its original
// position in the snapshot order.
func (r *Registry) Register(identity chat.Identity, session contract.Session) contract.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous, exists := r.byUser[identity.UserID]
	r.byUser[identity.UserID] = Entry{Identity: identity, Session: session}
	if !exists {
		r.order = append(r.order, identity.UserID)
		return nil
	}
	return previous.Session
}

// Unregister removes the entry for userID only when session still is the
// registered one. A stale disconnect from a superseded connection must not
// evict a newer session. Reports whether an entry was removed.
func (r *Registry) Unregister(userID string, session contract.Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.byUser[userID]
	if !ok || entry.Session != session {
		return false
	}
	delete(r.byUser, userID)
	for i, id := range r.order {
		if id == userID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Snapshot returns all live entries in insertion order. It is used for
// full-state presence broadcasts, which are self-correcting: a client that
// missed one change converges again on the next snapshot.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]Entry, 0, len(r.order))
	for _, id := range r.order {
		if entry, ok := r.byUser[id]; ok {
			entries = append(entries, entry)
		}
	}
	return entries
}

// Resolve returns the session registered for userID, for targeted delivery.
func (r *Registry) Resolve(userID string) (contract.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.byUser[userID]
	if !ok {
		return nil, false
	}
	return entry.Session, true
}
