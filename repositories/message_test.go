package repositories

import (
	"log/slog"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"chat-sync/domain/chat"
	apperrors "chat-sync/errors"
)

func newTestStore(t *testing.T) *MessageStore {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewMessageStore(db, slog.Default())
}

func textMessage(sender, name, room, content string) chat.Message {
	return chat.Message{
		SenderID:   sender,
		SenderName: name,
		Content:    content,
		Room:       room,
		Kind:       chat.KindText,
	}
}

func TestAppend_Assigns_Identity_And_Timestamp(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)

	// When a message is appended
	stored, err := store.Append(textMessage("u1", "alice", "global", "  hello world  "))

	// Then the store assigns id and creation time and trims the content
	req.NoError(err)
	req.NotEqual(uuid.Nil, stored.ID)
	req.False(stored.CreatedAt.IsZero())
	req.Equal("hello world", stored.Content)
	req.False(stored.IsEdited)
	req.False(stored.IsDeleted)
	req.Empty(stored.StarredBy)

	// And the record can be read back unchanged
	loaded, err := store.Get(stored.ID)
	req.NoError(err)
	req.Equal(stored, loaded)
}

func TestAppend_Rejects_Blank_Content(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)

	// When a message with only whitespace is appended
	_, err := store.Append(textMessage("u1", "alice", "global", "   \t  "))

	// Then the append is refused
	req.ErrorIs(err, apperrors.ErrEmptyContent)
}

func TestHistory_Returns_Most_Recent_In_Ascending_Order(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)

	// Given three messages in one room and one in another
	first, err := store.Append(textMessage("u1", "alice", "global", "first"))
	req.NoError(err)
	second, err := store.Append(textMessage("u2", "bob", "global", "second"))
	req.NoError(err)
	third, err := store.Append(textMessage("u1", "alice", "global", "third"))
	req.NoError(err)
	_, err = store.Append(textMessage("u3", "clara", "random", "elsewhere"))
	req.NoError(err)

	// When the history is limited to two
	history, err := store.History("global", 2)

	// Then the two newest come back, oldest first
	req.NoError(err)
	req.Len(history, 2)
	req.Equal(second.ID, history[0].ID)
	req.Equal(third.ID, history[1].ID)

	// And an unlimited query returns everything in order
	history, err = store.History("global", 0)
	req.NoError(err)
	req.Len(history, 3)
	req.Equal(first.ID, history[0].ID)
}

func TestHistory_Excludes_Deleted_Messages(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)

	// Given two messages, one soft-deleted
	kept, err := store.Append(textMessage("u1", "alice", "global", "kept"))
	req.NoError(err)
	gone, err := store.Append(textMessage("u1", "alice", "global", "gone"))
	req.NoError(err)
	req.NoError(store.SoftDelete(gone.ID))

	// When history is read
	history, err := store.History("global", 0)

	// Then only the live message remains
	req.NoError(err)
	req.Len(history, 1)
	req.Equal(kept.ID, history[0].ID)

	// But a direct lookup still finds the deleted record
	loaded, err := store.Get(gone.ID)
	req.NoError(err)
	req.True(loaded.IsDeleted)
}

func TestHistory_Expands_Reply_Previews(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)

	// Given a message and a reply to it
	target, err := store.Append(textMessage("u1", "alice", "global", "original"))
	req.NoError(err)
	reply := textMessage("u2", "bob", "global", "replying")
	reply.Kind = chat.KindReply
	reply.RepliedToID = &target.ID
	_, err = store.Append(reply)
	req.NoError(err)

	// When history is read
	history, err := store.History("global", 0)

	// Then the reply carries an inline preview of its target
	req.NoError(err)
	req.Len(history, 2)
	req.NotNil(history[1].RepliedTo)
	req.Equal(target.ID, history[1].RepliedTo.ID)
	req.Equal("original", history[1].RepliedTo.Content)
	req.Equal("alice", history[1].RepliedTo.SenderName)
}

func TestUpdate_Stamps_The_Edit(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)

	// Given a stored message
	stored, err := store.Append(textMessage("u1", "alice", "global", "tyop"))
	req.NoError(err)

	// When it is edited twice
	_, err = store.Update(stored.ID, "typo")
	req.NoError(err)
	updated, err := store.Update(stored.ID, "fixed")
	req.NoError(err)

	// Then the last content wins and the edit is stamped
	req.Equal("fixed", updated.Content)
	req.True(updated.IsEdited)
	req.NotNil(updated.EditedAt)

	// And identity, creation time and room are untouched
	req.Equal(stored.ID, updated.ID)
	req.Equal(stored.CreatedAt, updated.CreatedAt)
	req.Equal(stored.Room, updated.Room)
}

func TestUpdate_Rejects_Missing_Or_Blank(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)

	stored, err := store.Append(textMessage("u1", "alice", "global", "hello"))
	req.NoError(err)

	// When the id is unknown
	_, err = store.Update(uuid.New(), "anything")
	req.ErrorIs(err, apperrors.ErrMessageNotFound)

	// When the replacement content is blank
	_, err = store.Update(stored.ID, "   ")
	req.ErrorIs(err, apperrors.ErrEmptyContent)
}

func TestSoftDelete_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)

	stored, err := store.Append(textMessage("u1", "alice", "global", "bye"))
	req.NoError(err)

	// When the message is deleted twice
	req.NoError(store.SoftDelete(stored.ID))
	req.NoError(store.SoftDelete(stored.ID))

	// Then deleting an unknown id is still an error
	req.ErrorIs(store.SoftDelete(uuid.New()), apperrors.ErrMessageNotFound)
}

func TestToggleStar_Round_Trip(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)

	stored, err := store.Append(textMessage("u1", "alice", "global", "starrable"))
	req.NoError(err)

	// When two users star the message
	isStarred, starredBy, err := store.ToggleStar(stored.ID, "u2")
	req.NoError(err)
	req.True(isStarred)
	req.Equal([]string{"u2"}, starredBy)

	isStarred, starredBy, err = store.ToggleStar(stored.ID, "u3")
	req.NoError(err)
	req.True(isStarred)
	req.Equal([]string{"u2", "u3"}, starredBy)

	// And the first user toggles again
	isStarred, starredBy, err = store.ToggleStar(stored.ID, "u2")

	// Then only the second star remains
	req.NoError(err)
	req.False(isStarred)
	req.Equal([]string{"u3"}, starredBy)

	// And an unknown id is refused
	_, _, err = store.ToggleStar(uuid.New(), "u2")
	req.ErrorIs(err, apperrors.ErrMessageNotFound)
}

func TestAppend_Keeps_Private_Messages_Out_Of_Room_History(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)

	// Given a room message and a private one
	_, err := store.Append(textMessage("u1", "alice", "global", "public"))
	req.NoError(err)
	private := chat.Message{
		SenderID:   "u1",
		SenderName: "alice",
		Content:    "just for you",
		ReceiverID: "u2",
		Kind:       chat.KindPrivate,
	}
	stored, err := store.Append(private)
	req.NoError(err)

	// When the room history is read
	history, err := store.History("global", 0)

	// Then the private message is absent but still retrievable by id
	req.NoError(err)
	req.Len(history, 1)
	loaded, err := store.Get(stored.ID)
	req.NoError(err)
	req.Equal("u2", loaded.ReceiverID)
	req.Equal(chat.KindPrivate, loaded.Kind)
}
