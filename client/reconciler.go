// Package client holds the client half of the synchronization engine: a
// reconciler that folds the asynchronous server event stream into a
// consistent local view, and the compose state driving outbound signals.
package client

import (
	"encoding/json"

	"chat-sync/protocol"
)

// State is one client's local view of the room.
type State struct {
	Messages []protocol.MessagePayload
	Online   []protocol.PresenceUser
	Typing   []protocol.TypingUser
}

// Reconciler applies each inbound event as a total function over State.
// Events must be applied synchronously in arrival order on a single logical
// thread; the Reconciler performs no locking of its own.
type Reconciler struct {
	state State
}

func NewReconciler() *Reconciler {
	return &Reconciler{}
}

// Apply folds one event into the state. Events that target an unknown
// message id are no-ops: after a history reload, stale updates may still be
// in flight and must not corrupt the view.
func (r *Reconciler) Apply(env protocol.Envelope) error {
	switch env.Event {
	case protocol.EventMessagesHistory:
		var history []protocol.MessagePayload
		if err := json.Unmarshal(env.Data, &history); err != nil {
			return err
		}
		r.state.Messages = history

	case protocol.EventMessage, protocol.EventPrivateMessage:
		var message protocol.MessagePayload
		if err := json.Unmarshal(env.Data, &message); err != nil {
			return err
		}
		r.state.Messages = append(r.state.Messages, message)

	case protocol.EventMessageUpdated:
		var updated protocol.MessagePayload
		if err := json.Unmarshal(env.Data, &updated); err != nil {
			return err
		}
		for i, message := range r.state.Messages {
			if message.ID == updated.ID {
				r.state.Messages[i] = updated
				break
			}
		}

	case protocol.EventMessageDeleted:
		var deleted protocol.DeletedPayload
		if err := json.Unmarshal(env.Data, &deleted); err != nil {
			return err
		}
		kept := r.state.Messages[:0]
		for _, message := range r.state.Messages {
			if message.ID != deleted.MessageID {
				kept = append(kept, message)
			}
		}
		r.state.Messages = kept

	case protocol.EventMessageStarred:
		var starred protocol.StarredPayload
		if err := json.Unmarshal(env.Data, &starred); err != nil {
			return err
		}
		for i, message := range r.state.Messages {
			if message.ID == starred.MessageID {
				r.state.Messages[i].StarredBy = starred.StarredBy
				break
			}
		}

	case protocol.EventUserTyping:
		var typing protocol.TypingUser
		if err := json.Unmarshal(env.Data, &typing); err != nil {
			return err
		}
		kept := r.state.Typing[:0]
		for _, user := range r.state.Typing {
			if user.UserID != typing.UserID {
				kept = append(kept, user)
			}
		}
		r.state.Typing = append(kept, typing)

	case protocol.EventUserStopTyping:
		var userID string
		if err := json.Unmarshal(env.Data, &userID); err != nil {
			return err
		}
		kept := r.state.Typing[:0]
		for _, user := range r.state.Typing {
			if user.UserID != userID {
				kept = append(kept, user)
			}
		}
		r.state.Typing = kept

	case protocol.EventOnlineUsers:
		var users []protocol.PresenceUser
		if err := json.Unmarshal(env.Data, &users); err != nil {
			return err
		}
		r.state.Online = users
	}
	return nil
}

// Messages returns a copy of the current message list, oldest first.
func (r *Reconciler) Messages() []protocol.MessagePayload {
	return append([]protocol.MessagePayload{}, r.state.Messages...)
}

// OnlineUsers returns a copy of the latest presence snapshot.
func (r *Reconciler) OnlineUsers() []protocol.PresenceUser {
	return append([]protocol.PresenceUser{}, r.state.Online...)
}

// TypingUsers returns a copy of the users currently typing.
func (r *Reconciler) TypingUsers() []protocol.TypingUser {
	return append([]protocol.TypingUser{}, r.state.Typing...)
}

// ReplyPreview resolves the reply reference of a message for display. A
// legacy bare-id reference is filled in from the local message list; a
// reference that cannot be resolved suppresses the preview rather than
// failing.
func (r *Reconciler) ReplyPreview(message protocol.MessagePayload) (protocol.ReplyRef, bool) {
	if message.RepliedTo == nil {
		return protocol.ReplyRef{}, false
	}
	ref := *message.RepliedTo
	if ref.Content == "" {
		for _, other := range r.state.Messages {
			if other.ID == ref.ID {
				ref.Content = other.Content
				ref.SenderName = other.SenderName
				break
			}
		}
	}
	if ref.Content == "" {
		return protocol.ReplyRef{}, false
	}
	return ref, true
}
