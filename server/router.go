// Package server hosts the real-time synchronization engine: the
// per-connection protocol handler that validates inbound events, drives the
// message store and presence registry, and chooses the broadcast scope of
// every outbound event.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"chat-sync/contract"
	"chat-sync/domain/chat"
	apperrors "chat-sync/errors"
	"chat-sync/observability"
	"chat-sync/presence"
	"chat-sync/protocol"
	"chat-sync/repositories"
	"chat-sync/search"
)

// DefaultRoom is joined when a client names no room.
const DefaultRoom = "global"

const defaultSearchLimit = 20

// Router dispatches one connection's events. Each handler is independently
// fallible: a failure answers the acting client with an error event and is
// never broadcast or allowed to take the connection down.
type Router struct {
	log          *slog.Logger
	registry     *presence.Registry
	store        repositories.IMessageStore
	index        search.IMessageIndex
	monitor      *observability.Monitor
	validate     *validator.Validate
	historyLimit int
}

func NewRouter(log *slog.Logger, registry *presence.Registry, store repositories.IMessageStore,
	index search.IMessageIndex, monitor *observability.Monitor, historyLimit int) *Router {
	if historyLimit <= 0 {
		historyLimit = repositories.DefaultHistoryLimit
	}
	return &Router{
		log:          log,
		registry:     registry,
		store:        store,
		index:        index,
		monitor:      monitor,
		validate:     validator.New(),
		historyLimit: historyLimit,
	}
}

// HandleEvent routes one inbound frame. Unknown events are ignored so newer
// clients never kill older servers.
func (r *Router) HandleEvent(ctx context.Context, s contract.Session, env protocol.Envelope) {
	switch env.Event {
	case protocol.EventJoinRoom:
		r.handleJoinRoom(s, env.Data)
	case protocol.EventSendMessage:
		r.handleSendMessage(s, env.Data)
	case protocol.EventTyping:
		r.handleTyping(s)
	case protocol.EventStopTyping:
		r.handleStopTyping(s)
	case protocol.EventStarMessage:
		r.handleStarMessage(s, env.Data)
	case protocol.EventEditMessage:
		r.handleEditMessage(s, env.Data)
	case protocol.EventDeleteMessage:
		r.handleDeleteMessage(s, env.Data)
	case protocol.EventPrivateReply:
		r.handlePrivateReply(s, env.Data)
	case protocol.EventSearchMessages:
		r.handleSearch(ctx, s, env.Data)
	default:
		r.log.Debug("Unknown event ignored", "event", env.Event, "user_id", s.Identity().UserID)
	}
}

func (r *Router) handleJoinRoom(s contract.Session, data json.RawMessage) {
	var req protocol.JoinRoomRequest
	if len(data) > 0 {
		if err := r.decode(data, &req); err != nil {
			r.log.Warn("Joining room failed", "user_id", s.Identity().UserID, "error", err)
			r.sendError(s, "Failed to join room")
			return
		}
	}
	room := req.Room
	if room == "" {
		room = DefaultRoom
	}
	s.SetRoom(room)

	identity := s.Identity()
	if previous := r.registry.Register(identity, s); previous != nil && previous != s {
		// Single active session per identity: the replaced connection is
		// evicted from presence without being notified or closed.
		r.log.Info("Presence entry replaced", "user_id", identity.UserID)
	}
	r.broadcastAll(protocol.EventOnlineUsers, r.onlineUsers())

	history, err := r.store.History(room, r.historyLimit)
	if err != nil {
		r.log.Error("Fetching history failed", "room", room, "error", err)
		r.sendError(s, "Failed to join room")
		return
	}
	payload := lo.Map(history, func(m chat.Message, _ int) protocol.MessagePayload {
		return protocol.FromMessage(m)
	})
	if payload == nil {
		payload = []protocol.MessagePayload{}
	}
	r.deliver(s, protocol.EventMessagesHistory, payload)
}

func (r *Router) handleSendMessage(s contract.Session, data json.RawMessage) {
	var req protocol.SendMessageRequest
	if err := json.Unmarshal(data, &req); err != nil {
		r.sendError(s, "Failed to send message")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		r.sendError(s, "Message content cannot be empty")
		return
	}
	if s.Room() == "" {
		r.sendError(s, "Join a room before sending messages")
		return
	}

	identity := s.Identity()
	room := req.Room
	if room == "" {
		room = s.Room()
	}
	message := chat.Message{
		SenderID:   identity.UserID,
		SenderName: identity.Username,
		Content:    req.Content,
		Room:       room,
		Kind:       chat.KindText,
	}
	if req.RepliedTo != "" {
		target, err := r.repliedTarget(req.RepliedTo)
		if err != nil {
			r.sendError(s, "Replied-to message not found")
			return
		}
		message.RepliedToID = &target
		message.Kind = chat.KindReply
	}
	private := req.Receiver != ""
	if private {
		// Private messages never carry a room, so they cannot leak into
		// anyone's room history.
		message.ReceiverID = req.Receiver
		message.Room = ""
	}

	stored, err := r.store.Append(message)
	if err != nil {
		if errors.Is(err, apperrors.ErrEmptyContent) {
			r.sendError(s, "Message content cannot be empty")
			return
		}
		r.log.Error("Storing message failed", "user_id", identity.UserID, "error", err)
		r.sendError(s, "Failed to send message")
		return
	}
	r.monitor.IncrMessagesPosted()
	r.indexMessage(stored)

	payload := protocol.FromMessage(stored)
	if private {
		r.deliverPrivate(s, stored.ReceiverID, payload)
		return
	}
	r.broadcastRoom(room, protocol.EventMessage, payload, "")
}

func (r *Router) handleTyping(s contract.Session) {
	room := s.Room()
	if room == "" {
		return
	}
	identity := s.Identity()
	typing := protocol.TypingUser{UserID: identity.UserID, Username: identity.Username}
	r.broadcastRoom(room, protocol.EventUserTyping, typing, identity.UserID)
}

func (r *Router) handleStopTyping(s contract.Session) {
	room := s.Room()
	if room == "" {
		return
	}
	identity := s.Identity()
	r.broadcastRoom(room, protocol.EventUserStopTyping, identity.UserID, identity.UserID)
}

func (r *Router) handleStarMessage(s contract.Session, data json.RawMessage) {
	var req protocol.StarMessageRequest
	if err := r.decode(data, &req); err != nil {
		r.sendError(s, "Failed to star message")
		return
	}
	if s.Room() == "" {
		r.sendError(s, "Join a room before starring messages")
		return
	}
	messageID, err := uuid.Parse(req.MessageID)
	if err != nil {
		r.sendError(s, "Message not found")
		return
	}
	isStarred, starredBy, err := r.store.ToggleStar(messageID, s.Identity().UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrMessageNotFound) {
			r.sendError(s, "Message not found")
			return
		}
		r.log.Error("Toggling star failed", "message_id", messageID, "error", err)
		r.sendError(s, "Failed to star message")
		return
	}
	if starredBy == nil {
		starredBy = []string{}
	}
	r.broadcastRoom(s.Room(), protocol.EventMessageStarred, protocol.StarredPayload{
		MessageID: req.MessageID,
		StarredBy: starredBy,
		IsStarred: isStarred,
	}, "")
}

func (r *Router) handleEditMessage(s contract.Session, data json.RawMessage) {
	var req protocol.EditMessageRequest
	if err := json.Unmarshal(data, &req); err != nil {
		r.sendError(s, "Failed to edit message")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		r.sendError(s, "Message content cannot be empty")
		return
	}
	if s.Room() == "" {
		r.sendError(s, "Join a room before editing messages")
		return
	}
	current, ok := r.ownedMessage(s, req.MessageID, "Cannot edit this message")
	if !ok {
		return
	}
	updated, err := r.store.Update(current.ID, req.Content)
	if err != nil {
		if errors.Is(err, apperrors.ErrEmptyContent) {
			r.sendError(s, "Message content cannot be empty")
			return
		}
		r.log.Error("Updating message failed", "message_id", current.ID, "error", err)
		r.sendError(s, "Failed to edit message")
		return
	}
	r.indexMessage(updated)
	r.broadcastRoom(s.Room(), protocol.EventMessageUpdated, protocol.FromMessage(updated), "")
}

func (r *Router) handleDeleteMessage(s contract.Session, data json.RawMessage) {
	var req protocol.DeleteMessageRequest
	if err := r.decode(data, &req); err != nil {
		r.sendError(s, "Failed to delete message")
		return
	}
	if s.Room() == "" {
		r.sendError(s, "Join a room before deleting messages")
		return
	}
	current, ok := r.ownedMessage(s, req.MessageID, "Cannot delete this message")
	if !ok {
		return
	}
	if err := r.store.SoftDelete(current.ID); err != nil {
		r.log.Error("Deleting message failed", "message_id", current.ID, "error", err)
		r.sendError(s, "Failed to delete message")
		return
	}
	if err := r.index.Remove(current.ID); err != nil {
		r.log.Warn("Removing message from index failed", "message_id", current.ID, "error", err)
	}
	r.broadcastRoom(s.Room(), protocol.EventMessageDeleted, protocol.DeletedPayload{
		MessageID: req.MessageID,
		DeletedBy: s.Identity().UserID,
		DeletedAt: time.Now().UTC(),
	}, "")
}

func (r *Router) handlePrivateReply(s contract.Session, data json.RawMessage) {
	var req protocol.PrivateReplyRequest
	if err := json.Unmarshal(data, &req); err != nil || req.ReceiverID == "" {
		r.sendError(s, "Failed to send private reply")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		r.sendError(s, "Message content cannot be empty")
		return
	}

	identity := s.Identity()
	message := chat.Message{
		SenderID:   identity.UserID,
		SenderName: identity.Username,
		Content:    req.Content,
		ReceiverID: req.ReceiverID,
		Kind:       chat.KindPrivate,
	}
	if req.RepliedTo != "" {
		target, err := r.repliedTarget(req.RepliedTo)
		if err != nil {
			r.sendError(s, "Replied-to message not found")
			return
		}
		message.RepliedToID = &target
	}

	stored, err := r.store.Append(message)
	if err != nil {
		if errors.Is(err, apperrors.ErrEmptyContent) {
			r.sendError(s, "Message content cannot be empty")
			return
		}
		r.log.Error("Storing private reply failed", "user_id", identity.UserID, "error", err)
		r.sendError(s, "Failed to send private reply")
		return
	}
	r.monitor.IncrMessagesPosted()
	r.deliverPrivate(s, stored.ReceiverID, protocol.FromMessage(stored))
}

func (r *Router) handleSearch(ctx context.Context, s contract.Session, data json.RawMessage) {
	var req protocol.SearchRequest
	if err := r.decode(data, &req); err != nil {
		r.sendError(s, "Failed to search messages")
		return
	}
	room := s.Room()
	if room == "" {
		r.sendError(s, "Join a room before searching messages")
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	ids, err := r.index.Search(ctx, room, req.Query, limit)
	if err != nil {
		r.log.Error("Search failed", "room", room, "query", req.Query, "error", err)
		r.sendError(s, "Failed to search messages")
		return
	}
	results := make([]protocol.MessagePayload, 0, len(ids))
	for _, id := range ids {
		message, err := r.store.Get(id)
		if err != nil || message.IsDeleted {
			continue
		}
		results = append(results, protocol.FromMessage(message))
	}
	r.deliver(s, protocol.EventSearchResults, results)
}

// Disconnect runs the departure cleanup: presence removal, the full-snapshot
// presence broadcast and the typing-stop on behalf of the departed identity.
// Every step runs even if an earlier one has nothing to do.
func (r *Router) Disconnect(s contract.Session) {
	identity := s.Identity()
	removed := r.registry.Unregister(identity.UserID, s)
	if !removed {
		// A superseded connection disconnecting late must not evict the
		// newer session or announce a departure that did not happen.
		r.log.Debug("Stale disconnect ignored", "user_id", identity.UserID)
		return
	}
	r.broadcastAll(protocol.EventOnlineUsers, r.onlineUsers())
	if room := s.Room(); room != "" {
		r.broadcastRoom(room, protocol.EventUserStopTyping, identity.UserID, identity.UserID)
	}
	r.log.Info("Client disconnected", "user_id", identity.UserID, "username", identity.Username)
}

// ownedMessage loads a live message and enforces that the acting session is
// its sender. Soft-deleted records are treated as absent for mutations.
func (r *Router) ownedMessage(s contract.Session, rawID, rejection string) (chat.Message, bool) {
	messageID, err := uuid.Parse(rawID)
	if err != nil {
		r.sendError(s, rejection)
		return chat.Message{}, false
	}
	message, err := r.store.Get(messageID)
	if err != nil || message.IsDeleted || message.SenderID != s.Identity().UserID {
		r.sendError(s, rejection)
		return chat.Message{}, false
	}
	return message, true
}

// repliedTarget resolves a reply reference, requiring the target to exist at
// send time. Dangling references are only tolerated later, on display.
func (r *Router) repliedTarget(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperrors.ErrMessageNotFound
	}
	if _, err := r.store.Get(id); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (r *Router) indexMessage(message chat.Message) {
	if message.Room == "" {
		return
	}
	if err := r.index.Index(message); err != nil {
		r.log.Warn("Indexing message failed", "message_id", message.ID, "error", err)
	}
}

func (r *Router) deliverPrivate(s contract.Session, receiverID string, payload protocol.MessagePayload) {
	receiver, online := r.registry.Resolve(receiverID)
	if online {
		payload.ReceiverName = receiver.Identity().Username
	}
	if online {
		r.deliver(receiver, protocol.EventPrivateMessage, payload)
	}
	// The sender has no authoritative copy of the stored message; always
	// echo it back, even when the receiver is offline.
	r.deliver(s, protocol.EventPrivateMessage, payload)
}

func (r *Router) onlineUsers() []protocol.PresenceUser {
	users := lo.Map(r.registry.Snapshot(), func(entry presence.Entry, _ int) protocol.PresenceUser {
		return protocol.PresenceUser{
			UserID:   entry.Identity.UserID,
			Username: entry.Identity.Username,
		}
	})
	if users == nil {
		users = []protocol.PresenceUser{}
	}
	return users
}

func (r *Router) broadcastAll(event string, payload any) {
	for _, entry := range r.registry.Snapshot() {
		r.deliver(entry.Session, event, payload)
	}
}

func (r *Router) broadcastRoom(room, event string, payload any, excludeUserID string) {
	for _, entry := range r.registry.Snapshot() {
		if entry.Session.Room() != room {
			continue
		}
		if excludeUserID != "" && entry.Identity.UserID == excludeUserID {
			continue
		}
		r.deliver(entry.Session, event, payload)
	}
}

func (r *Router) deliver(s contract.Session, event string, payload any) {
	if err := s.Deliver(event, payload); err != nil {
		r.monitor.IncrEventsDropped()
		r.log.Debug("Event dropped", "event", event, "user_id", s.Identity().UserID, "error", err)
	}
}

func (r *Router) sendError(s contract.Session, message string) {
	r.monitor.IncrErrorCount()
	if err := s.Deliver(protocol.EventError, message); err != nil {
		r.monitor.IncrEventsDropped()
	}
}

func (r *Router) decode(data json.RawMessage, dest any) error {
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrMalformedPayload, err)
	}
	if err := r.validate.Struct(dest); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrMalformedPayload, err)
	}
	return nil
}
