// Package chat contains core concepts of the chat system.
// This file defines Message records and related invariants.
// No runtime, network, or UI logic should be added here.
package chat

import (
	"time"

	"github.com/google/uuid"
)

// Kind classifies how a message was produced and how it must be routed.
type Kind string

const (
	KindText    Kind = "text"
	KindReply   Kind = "reply"
	KindPrivate Kind = "private"
)

// ReplyPreview is the denormalized excerpt of a referenced message, embedded
// in the referencing message so clients never need a second lookup.
type ReplyPreview struct {
	ID         uuid.UUID
	Content    string
	SenderName string
}

// Message is one durable chat record. ID, SenderID and CreatedAt never change
// after creation; edits only touch Content, IsEdited and EditedAt.
type Message struct {
	ID          uuid.UUID
	SenderID    string
	SenderName  string
	Content     string
	Room        string
	ReceiverID  string
	Kind        Kind
	RepliedToID *uuid.UUID
	RepliedTo   *ReplyPreview
	StarredBy   []string
	IsEdited    bool
	EditedAt    *time.Time
	IsDeleted   bool
	CreatedAt   time.Time
}

// IsStarredBy reports whether userID is currently in the starredBy set.
func (m Message) IsStarredBy(userID string) bool {
	for _, id := range m.StarredBy {
		if id == userID {
			return true
		}
	}
	return false
}
