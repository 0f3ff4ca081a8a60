// Package protocol defines the wire format of the chat event stream: the
// event catalog, the JSON envelope framing, and the payload shapes exchanged
// between clients and the server. Legacy payload shapes are normalized here
// so that no other package ever sees more than one representation.
package protocol

import "encoding/json"

// Client-to-server events.
const (
	EventJoinRoom       = "joinRoom"
	EventSendMessage    = "sendMessage"
	EventTyping         = "typing"
	EventStopTyping     = "stopTyping"
	EventStarMessage    = "starMessage"
	EventEditMessage    = "editMessage"
	EventDeleteMessage  = "deleteMessage"
	EventPrivateReply   = "sendPrivateReply"
	EventSearchMessages = "searchMessages"
)

// Server-to-client events.
const (
	EventMessagesHistory = "messagesHistory"
	EventMessage         = "message"
	EventPrivateMessage  = "privateMessage"
	EventUserTyping      = "userTyping"
	EventUserStopTyping  = "userStopTyping"
	EventOnlineUsers     = "onlineUsers"
	EventMessageStarred  = "messageStarred"
	EventMessageUpdated  = "messageUpdated"
	EventMessageDeleted  = "messageDeleted"
	EventSearchResults   = "searchResults"
	EventError           = "error"
)

// Envelope frames every message on the wire.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals payload into a ready-to-send frame.
func NewEnvelope(event string, payload any) (Envelope, error) {
	if payload == nil {
		return Envelope{Event: event}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: data}, nil
}
