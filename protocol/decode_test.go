package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"chat-sync/domain/chat"
)

func TestJoinRoomRequest_Accepts_Both_Wire_Shapes(t *testing.T) {
	req := require.New(t)

	// When the room arrives as a legacy bare string
	var bare JoinRoomRequest
	req.NoError(json.Unmarshal([]byte(`"random"`), &bare))
	req.Equal("random", bare.Room)

	// And when it arrives as an object
	var structured JoinRoomRequest
	req.NoError(json.Unmarshal([]byte(`{"room":"random"}`), &structured))

	// Then both forms normalize to the same request
	req.Equal(bare, structured)
}

func TestReplyRef_Accepts_Both_Wire_Shapes(t *testing.T) {
	req := require.New(t)
	id := uuid.NewString()

	// When the reference arrives as a legacy bare id
	var bare ReplyRef
	req.NoError(json.Unmarshal([]byte(`"`+id+`"`), &bare))

	// Then only the id is populated
	req.Equal(id, bare.ID)
	req.Empty(bare.Content)
	req.Empty(bare.SenderName)

	// And the structured form carries the full preview
	var structured ReplyRef
	raw := `{"id":"` + id + `","content":"hello","senderName":"alice"}`
	req.NoError(json.Unmarshal([]byte(raw), &structured))
	req.Equal(ReplyRef{ID: id, Content: "hello", SenderName: "alice"}, structured)
}

func TestDeletedPayload_Accepts_Both_Wire_Shapes(t *testing.T) {
	req := require.New(t)
	id := uuid.NewString()

	// When the deletion arrives as a legacy bare id
	var bare DeletedPayload
	req.NoError(json.Unmarshal([]byte(`"`+id+`"`), &bare))
	req.Equal(id, bare.MessageID)
	req.Empty(bare.DeletedBy)

	// And when it arrives structured
	var structured DeletedPayload
	raw := `{"messageId":"` + id + `","deletedBy":"u1","deletedAt":"2026-08-30T10:00:00Z"}`
	req.NoError(json.Unmarshal([]byte(raw), &structured))

	// Then the actor and timestamp survive
	req.Equal(id, structured.MessageID)
	req.Equal("u1", structured.DeletedBy)
	req.False(structured.DeletedAt.IsZero())
}

func TestFromMessage_Projects_A_Stored_Message(t *testing.T) {
	req := require.New(t)
	target := uuid.New()
	message := chat.Message{
		ID:         uuid.New(),
		SenderID:   "u1",
		SenderName: "alice",
		Content:    "see above",
		Room:       "global",
		Kind:       chat.KindReply,
		RepliedTo: &chat.ReplyPreview{
			ID:         target,
			Content:    "original",
			SenderName: "bob",
		},
		CreatedAt: time.Now().UTC(),
	}

	// When the stored message is projected
	payload := FromMessage(message)

	// Then the preview is expanded and starredBy is never null
	req.Equal(message.ID.String(), payload.ID)
	req.Equal("reply", payload.MessageType)
	req.NotNil(payload.RepliedTo)
	req.Equal(target.String(), payload.RepliedTo.ID)
	req.Equal("original", payload.RepliedTo.Content)
	req.Equal("bob", payload.RepliedTo.SenderName)
	req.NotNil(payload.StarredBy)
	req.Empty(payload.StarredBy)
}

func TestFromMessage_Falls_Back_To_Bare_Reference(t *testing.T) {
	req := require.New(t)
	target := uuid.New()
	message := chat.Message{
		ID:          uuid.New(),
		SenderID:    "u1",
		SenderName:  "alice",
		Content:     "dangling",
		Room:        "global",
		Kind:        chat.KindReply,
		RepliedToID: &target,
		CreatedAt:   time.Now().UTC(),
	}

	// When the preview could not be expanded
	payload := FromMessage(message)

	// Then the reference degrades to the bare id
	req.NotNil(payload.RepliedTo)
	req.Equal(target.String(), payload.RepliedTo.ID)
	req.Empty(payload.RepliedTo.Content)
}

func TestNewEnvelope_Frames_Events(t *testing.T) {
	req := require.New(t)

	// When an event with a payload is framed
	env, err := NewEnvelope(EventUserStopTyping, "u1")
	req.NoError(err)

	// Then the frame round-trips through JSON
	raw, err := json.Marshal(env)
	req.NoError(err)
	req.JSONEq(`{"event":"userStopTyping","data":"u1"}`, string(raw))

	// And a payload-free event has no data field
	env, err = NewEnvelope(EventTyping, nil)
	req.NoError(err)
	raw, err = json.Marshal(env)
	req.NoError(err)
	req.JSONEq(`{"event":"typing"}`, string(raw))
}
