//go:generate go run go.uber.org/mock/mockgen -source=index.go -destination=../mocks/mock_message_index.go -package=mocks

// Package search maintains a full-text index over live message content so
// clients can search their room's history. The index is a cache over the
// message store: it is rebuilt empty on restart and repopulated as messages
// flow, never treated as a source of truth.
package search

import (
	"context"
	"fmt"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"

	"chat-sync/domain/chat"
)

type IMessageIndex interface {
	Index(message chat.Message) error
	Remove(id uuid.UUID) error
	Search(ctx context.Context, room, terms string, limit int) ([]uuid.UUID, error)
	Close() error
}

// MessageIndex wraps a Bluge writer. The writer serializes concurrent
// updates internally, so no additional locking is needed here.
type MessageIndex struct {
	writer *bluge.Writer
}

// NewInMemoryIndex opens a memory-only Bluge index.
func NewInMemoryIndex() (*MessageIndex, error) {
	writer, err := bluge.OpenWriter(bluge.InMemoryOnlyConfig())
	if err != nil {
		return nil, fmt.Errorf("opening search index: %w", err)
	}
	return &MessageIndex{writer: writer}, nil
}

// Index inserts or refreshes the document for a message. Called on append
// and on edit; the document id is the message id, so edits overwrite.
func (i *MessageIndex) Index(message chat.Message) error {
	doc := bluge.NewDocument(message.ID.String()).
		AddField(bluge.NewTextField("content", message.Content)).
		AddField(bluge.NewKeywordField("room", message.Room)).
		AddField(bluge.NewKeywordField("sender", message.SenderName))
	return i.writer.Update(doc.ID(), doc)
}

// Remove drops a message from the index. Used on soft delete so hidden
// messages stop matching searches even though the store retains them.
func (i *MessageIndex) Remove(id uuid.UUID) error {
	return i.writer.Delete(bluge.Identifier(id.String()))
}

// Search returns the ids of the best-matching messages in a room, most
// relevant first.
func (i *MessageIndex) Search(ctx context.Context, room, terms string, limit int) ([]uuid.UUID, error) {
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, fmt.Errorf("opening index reader: %w", err)
	}
	defer func() { _ = reader.Close() }()

	query := bluge.NewBooleanQuery().
		AddMust(bluge.NewMatchQuery(terms).SetField("content")).
		AddMust(bluge.NewTermQuery(room).SetField("room"))
	iterator, err := reader.Search(ctx, bluge.NewTopNSearch(limit, query))
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}

	var ids []uuid.UUID
	for {
		match, err := iterator.Next()
		if err != nil {
			return nil, fmt.Errorf("iterating matches: %w", err)
		}
		if match == nil {
			return ids, nil
		}
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			if field != "_id" {
				return true
			}
			if id, parseErr := uuid.Parse(string(value)); parseErr == nil {
				ids = append(ids, id)
			}
			return true
		})
		if err != nil {
			return nil, err
		}
	}
}

func (i *MessageIndex) Close() error {
	return i.writer.Close()
}
