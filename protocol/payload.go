package protocol

import (
	"time"

	"chat-sync/domain/chat"
)

// JoinRoomRequest carries the room to join. See decode.go for the legacy
// bare-string form.
type JoinRoomRequest struct {
	Room string `json:"room"`
}

type SendMessageRequest struct {
	Content     string `json:"content" validate:"required"`
	Room        string `json:"room"`
	Receiver    string `json:"receiver"`
	RepliedTo   string `json:"repliedTo"`
	MessageType string `json:"messageType"`
}

type StarMessageRequest struct {
	MessageID string `json:"messageId" validate:"required"`
}

type EditMessageRequest struct {
	MessageID string `json:"messageId" validate:"required"`
	Content   string `json:"content" validate:"required"`
}

type DeleteMessageRequest struct {
	MessageID string `json:"messageId" validate:"required"`
}

type PrivateReplyRequest struct {
	Content    string `json:"content" validate:"required"`
	ReceiverID string `json:"receiverId" validate:"required"`
	RepliedTo  string `json:"repliedTo"`
}

type SearchRequest struct {
	Query string `json:"query" validate:"required"`
	Limit int    `json:"limit" validate:"omitempty,min=1,max=100"`
}

// ReplyRef is the reply preview embedded in a message payload. Content and
// SenderName are empty when the reference arrived in the legacy bare-id form.
type ReplyRef struct {
	ID         string `json:"id"`
	Content    string `json:"content,omitempty"`
	SenderName string `json:"senderName,omitempty"`
}

// MessagePayload is the full projection of one message as pushed to clients.
type MessagePayload struct {
	ID           string     `json:"id"`
	Content      string     `json:"content"`
	SenderName   string     `json:"senderName"`
	SenderID     string     `json:"senderId"`
	Timestamp    time.Time  `json:"timestamp"`
	Room         string     `json:"room,omitempty"`
	MessageType  string     `json:"messageType"`
	RepliedTo    *ReplyRef  `json:"repliedTo,omitempty"`
	StarredBy    []string   `json:"starredBy"`
	IsEdited     bool       `json:"isEdited"`
	EditedAt     *time.Time `json:"editedAt,omitempty"`
	ReceiverID   string     `json:"receiverId,omitempty"`
	ReceiverName string     `json:"receiverName,omitempty"`
}

type PresenceUser struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type TypingUser struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type StarredPayload struct {
	MessageID string   `json:"messageId"`
	StarredBy []string `json:"starredBy"`
	IsStarred bool     `json:"isStarred"`
}

// DeletedPayload announces a soft delete. It carries the actor and timestamp,
// never the removed content.
type DeletedPayload struct {
	MessageID string    `json:"messageId"`
	DeletedBy string    `json:"deletedBy"`
	DeletedAt time.Time `json:"deletedAt"`
}

// FromMessage builds the client projection of a stored message.
func FromMessage(m chat.Message) MessagePayload {
	starredBy := m.StarredBy
	if starredBy == nil {
		starredBy = []string{}
	}
	payload := MessagePayload{
		ID:          m.ID.String(),
		Content:     m.Content,
		SenderName:  m.SenderName,
		SenderID:    m.SenderID,
		Timestamp:   m.CreatedAt,
		Room:        m.Room,
		MessageType: string(m.Kind),
		StarredBy:   starredBy,
		IsEdited:    m.IsEdited,
		EditedAt:    m.EditedAt,
		ReceiverID:  m.ReceiverID,
	}
	if m.RepliedTo != nil {
		payload.RepliedTo = &ReplyRef{
			ID:         m.RepliedTo.ID.String(),
			Content:    m.RepliedTo.Content,
			SenderName: m.RepliedTo.SenderName,
		}
	} else if m.RepliedToID != nil {
		payload.RepliedTo = &ReplyRef{ID: m.RepliedToID.String()}
	}
	return payload
}
