//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_store.go -package=mocks
package repositories

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"chat-sync/domain/chat"
	apperrors "chat-sync/errors"
)

// DefaultHistoryLimit bounds history queries when the caller passes no limit.
const DefaultHistoryLimit = 50

type IMessageStore interface {
	Append(message chat.Message) (chat.Message, error)
	Get(id uuid.UUID) (chat.Message, error)
	History(room string, limit int) ([]chat.Message, error)
	Update(id uuid.UUID, content string) (chat.Message, error)
	SoftDelete(id uuid.UUID) error
	ToggleStar(id uuid.UUID, userID string) (bool, []string, error)
}

// MessageStore persists messages in BadgerDB. Every operation is a single
// read-modify-write against one record inside one transaction; no caller may
// assume stronger guarantees than that per-record atomicity.
type MessageStore struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageStore(db *badger.DB, log *slog.Logger) *MessageStore {
	return &MessageStore{db: db, log: log}
}

// record is the on-disk shape of a message, encoded with CBOR.
// Timestamps are stored as UnixNano to survive codec round trips exactly.
type record struct {
	ID          string   `cbor:"id"`
	SenderID    string   `cbor:"sender_id"`
	SenderName  string   `cbor:"sender_name"`
	Content     string   `cbor:"content"`
	Room        string   `cbor:"room"`
	ReceiverID  string   `cbor:"receiver_id,omitempty"`
	Kind        string   `cbor:"kind"`
	RepliedToID string   `cbor:"replied_to,omitempty"`
	StarredBy   []string `cbor:"starred_by,omitempty"`
	IsEdited    bool     `cbor:"is_edited,omitempty"`
	EditedAt    int64    `cbor:"edited_at,omitempty"`
	IsDeleted   bool     `cbor:"is_deleted,omitempty"`
	CreatedAt   int64    `cbor:"created_at"`
}

// primaryKey is "msg:{room}:{timestamp_padded}:{uuid}":
//  1. The 19-digit zero padding makes lexicographic order chronological.
//  2. The UUID suffix disambiguates two messages stored in the same nanosecond.
func primaryKey(room string, createdAt time.Time, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", room, createdAt.UnixNano(), id))
}

// indexKey points from a message id to its primary key, so id lookups do not
// need to know the room or timestamp.
func indexKey(id uuid.UUID) []byte {
	return []byte("idx:" + id.String())
}

// Append assigns the id and creation timestamp, validates the content and
// persists the record together with its id index entry.
func (s *MessageStore) Append(message chat.Message) (chat.Message, error) {
	message.Content = strings.TrimSpace(message.Content)
	if message.Content == "" {
		return chat.Message{}, apperrors.ErrEmptyContent
	}
	message.ID = uuid.New()
	message.CreatedAt = time.Now().UTC()

	rec := fromMessage(message)
	data, err := cbor.Marshal(rec)
	if err != nil {
		return chat.Message{}, fmt.Errorf("encoding message: %w", err)
	}

	key := primaryKey(message.Room, message.CreatedAt, message.ID)
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, data); err != nil {
			return err
		}
		if err := txn.Set(indexKey(message.ID), key); err != nil {
			return err
		}
		// Expand the reply preview inside the same transaction so the
		// returned message is ready for broadcast without a second read.
		message = s.withPreview(txn, message)
		return nil
	})
	if err != nil {
		return chat.Message{}, fmt.Errorf("storing message: %w", err)
	}
	return message, nil
}

// Get returns the record for id, deleted or not. Missing ids map to
// ErrMessageNotFound.
func (s *MessageStore) Get(id uuid.UUID) (chat.Message, error) {
	var message chat.Message
	err := s.db.View(func(txn *badger.Txn) error {
		rec, _, err := getRecord(txn, id)
		if err != nil {
			return err
		}
		message, err = toMessage(rec)
		if err != nil {
			return err
		}
		message = s.withPreview(txn, message)
		return nil
	})
	if err != nil {
		return chat.Message{}, err
	}
	return message, nil
}

// History returns the most recent limit messages of a room in ascending
// creation order, excluding soft-deleted records, with reply previews
// expanded inline.
func (s *MessageStore) History(room string, limit int) ([]chat.Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	var messages []chat.Message
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("msg:%s:", room))
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		// Seek past the newest possible key, then walk backwards.
		seekKey := append(append([]byte{}, prefix...), 0xff)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if len(messages) == limit {
				break
			}
			var rec record
			err := it.Item().Value(func(value []byte) error {
				return cbor.Unmarshal(value, &rec)
			})
			if err != nil {
				return err
			}
			if rec.IsDeleted {
				continue
			}
			message, err := toMessage(rec)
			if err != nil {
				return err
			}
			messages = append(messages, s.withPreview(txn, message))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading history for room %q: %w", room, err)
	}
	// Reverse scan collected newest first; history is served oldest first.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// Update replaces the content of an existing message and stamps the edit.
// ID, sender, creation time and stars are left untouched.
func (s *MessageStore) Update(id uuid.UUID, content string) (chat.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return chat.Message{}, apperrors.ErrEmptyContent
	}
	var message chat.Message
	err := s.db.Update(func(txn *badger.Txn) error {
		rec, key, err := getRecord(txn, id)
		if err != nil {
			return err
		}
		rec.Content = content
		rec.IsEdited = true
		rec.EditedAt = time.Now().UTC().UnixNano()
		if err := putRecord(txn, key, rec); err != nil {
			return err
		}
		message, err = toMessage(rec)
		if err != nil {
			return err
		}
		message = s.withPreview(txn, message)
		return nil
	})
	if err != nil {
		return chat.Message{}, err
	}
	return message, nil
}

// SoftDelete hides a message from history without erasing it. Deleting an
// already-deleted message is a no-op success.
func (s *MessageStore) SoftDelete(id uuid.UUID) error {
	return s.db.Update(func(txn *badger.Txn) error {
		rec, key, err := getRecord(txn, id)
		if err != nil {
			return err
		}
		if rec.IsDeleted {
			return nil
		}
		rec.IsDeleted = true
		return putRecord(txn, key, rec)
	})
}

// ToggleStar flips userID's membership in the starredBy set and returns the
// new membership state together with the whole set. Two concurrent toggles
// on the same message resolve last-write-wins; the per-record transaction is
// the only isolation in play.
func (s *MessageStore) ToggleStar(id uuid.UUID, userID string) (bool, []string, error) {
	var (
		isStarred bool
		starredBy []string
	)
	err := s.db.Update(func(txn *badger.Txn) error {
		rec, key, err := getRecord(txn, id)
		if err != nil {
			return err
		}
		found := false
		kept := rec.StarredBy[:0]
		for _, starrer := range rec.StarredBy {
			if starrer == userID {
				found = true
				continue
			}
			kept = append(kept, starrer)
		}
		if found {
			rec.StarredBy = kept
		} else {
			rec.StarredBy = append(rec.StarredBy, userID)
		}
		isStarred = !found
		starredBy = append([]string{}, rec.StarredBy...)
		return putRecord(txn, key, rec)
	})
	if err != nil {
		return false, nil, err
	}
	return isStarred, starredBy, nil
}

// getRecord resolves a message id through the index and decodes the record,
// returning the primary key alongside for in-place rewrites.
func getRecord(txn *badger.Txn, id uuid.UUID) (record, []byte, error) {
	item, err := txn.Get(indexKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return record{}, nil, apperrors.ErrMessageNotFound
	}
	if err != nil {
		return record{}, nil, err
	}
	var key []byte
	if err := item.Value(func(value []byte) error {
		key = append([]byte{}, value...)
		return nil
	}); err != nil {
		return record{}, nil, err
	}

	item, err = txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return record{}, nil, apperrors.ErrMessageNotFound
	}
	if err != nil {
		return record{}, nil, err
	}
	var rec record
	if err := item.Value(func(value []byte) error {
		return cbor.Unmarshal(value, &rec)
	}); err != nil {
		return record{}, nil, err
	}
	return rec, key, nil
}

func putRecord(txn *badger.Txn, key []byte, rec record) error {
	data, err := cbor.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	return txn.Set(key, data)
}

// withPreview expands the replied-to reference into an inline preview. A
// dangling reference is tolerated: the preview is simply absent.
func (s *MessageStore) withPreview(txn *badger.Txn, message chat.Message) chat.Message {
	if message.RepliedToID == nil {
		return message
	}
	rec, _, err := getRecord(txn, *message.RepliedToID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrMessageNotFound) {
			s.log.Warn("reply preview lookup failed",
				"message_id", message.ID, "replied_to", *message.RepliedToID, "error", err)
		}
		return message
	}
	targetID, err := uuid.Parse(rec.ID)
	if err != nil {
		return message
	}
	message.RepliedTo = &chat.ReplyPreview{
		ID:         targetID,
		Content:    rec.Content,
		SenderName: rec.SenderName,
	}
	return message
}

func fromMessage(message chat.Message) record {
	rec := record{
		ID:         message.ID.String(),
		SenderID:   message.SenderID,
		SenderName: message.SenderName,
		Content:    message.Content,
		Room:       message.Room,
		ReceiverID: message.ReceiverID,
		Kind:       string(message.Kind),
		StarredBy:  message.StarredBy,
		IsEdited:   message.IsEdited,
		IsDeleted:  message.IsDeleted,
		CreatedAt:  message.CreatedAt.UnixNano(),
	}
	if message.RepliedToID != nil {
		rec.RepliedToID = message.RepliedToID.String()
	}
	if message.EditedAt != nil {
		rec.EditedAt = message.EditedAt.UnixNano()
	}
	return rec
}

func toMessage(rec record) (chat.Message, error) {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return chat.Message{}, fmt.Errorf("corrupt message id %q: %w", rec.ID, err)
	}
	message := chat.Message{
		ID:         id,
		SenderID:   rec.SenderID,
		SenderName: rec.SenderName,
		Content:    rec.Content,
		Room:       rec.Room,
		ReceiverID: rec.ReceiverID,
		Kind:       chat.Kind(rec.Kind),
		StarredBy:  rec.StarredBy,
		IsEdited:   rec.IsEdited,
		IsDeleted:  rec.IsDeleted,
		CreatedAt:  time.Unix(0, rec.CreatedAt).UTC(),
	}
	if rec.RepliedToID != "" {
		repliedTo, err := uuid.Parse(rec.RepliedToID)
		if err != nil {
			return chat.Message{}, fmt.Errorf("corrupt replied-to id %q: %w", rec.RepliedToID, err)
		}
		message.RepliedToID = &repliedTo
	}
	if rec.EditedAt != 0 {
		editedAt := time.Unix(0, rec.EditedAt).UTC()
		message.EditedAt = &editedAt
	}
	return message, nil
}
