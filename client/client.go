package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chat-sync/protocol"
)

const emitTimeout = 10 * time.Second

// Client maintains one live connection to the chat server, feeds every
// inbound frame to its Reconciler and exposes the outbound intents.
type Client struct {
	log  *slog.Logger
	conn *websocket.Conn
	rec  *Reconciler

	writeMu sync.Mutex
}

// Dial connects and authenticates in one step: the bearer token rides on the
// handshake and is the only credential this protocol ever sees.
func Dial(ctx context.Context, serverURL, token string, log *slog.Logger) (*Client, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, serverURL, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("connection refused: invalid token")
		}
		return nil, fmt.Errorf("dialing %s: %w", serverURL, err)
	}
	return &Client{log: log, conn: conn, rec: NewReconciler()}, nil
}

func (c *Client) Reconciler() *Reconciler { return c.rec }

// Listen reads frames until the connection drops or ctx is canceled. Each
// event is folded into the reconciler and then handed to onEvent (which may
// be nil). onEvent runs on the read goroutine, so reconciler accessors are
// safe to call from inside it.
func (c *Client) Listen(ctx context.Context, onEvent func(protocol.Envelope)) error {
	go func() {
		<-ctx.Done()
		_ = c.conn.Close()
	}()

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("connection lost: %w", err)
		}
		var env protocol.Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			c.log.Warn("Dropping unreadable frame", "error", err)
			continue
		}
		if err := c.rec.Apply(env); err != nil {
			c.log.Warn("Dropping malformed event", "event", env.Event, "error", err)
			continue
		}
		if onEvent != nil {
			onEvent(env)
		}
	}
}

func (c *Client) JoinRoom(room string) error {
	return c.emit(protocol.EventJoinRoom, protocol.JoinRoomRequest{Room: room})
}

func (c *Client) SendMessage(content, room, repliedTo string) error {
	return c.emit(protocol.EventSendMessage, protocol.SendMessageRequest{
		Content:   content,
		Room:      room,
		RepliedTo: repliedTo,
	})
}

func (c *Client) SendPrivateReply(content, receiverID, repliedTo string) error {
	return c.emit(protocol.EventPrivateReply, protocol.PrivateReplyRequest{
		Content:    content,
		ReceiverID: receiverID,
		RepliedTo:  repliedTo,
	})
}

func (c *Client) EditMessage(messageID, content string) error {
	return c.emit(protocol.EventEditMessage, protocol.EditMessageRequest{
		MessageID: messageID,
		Content:   content,
	})
}

func (c *Client) DeleteMessage(messageID string) error {
	return c.emit(protocol.EventDeleteMessage, protocol.DeleteMessageRequest{MessageID: messageID})
}

func (c *Client) StarMessage(messageID string) error {
	return c.emit(protocol.EventStarMessage, protocol.StarMessageRequest{MessageID: messageID})
}

func (c *Client) SearchMessages(query string, limit int) error {
	return c.emit(protocol.EventSearchMessages, protocol.SearchRequest{Query: query, Limit: limit})
}

func (c *Client) Typing() error {
	return c.emit(protocol.EventTyping, nil)
}

func (c *Client) StopTyping() error {
	return c.emit(protocol.EventStopTyping, nil)
}

func (c *Client) Close() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(emitTimeout))
	return c.conn.Close()
}

func (c *Client) emit(event string, payload any) error {
	env, err := protocol.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(emitTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}
