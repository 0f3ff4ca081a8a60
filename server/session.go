package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chat-sync/domain/chat"
	"chat-sync/observability"
	"chat-sync/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 8192
	sendBufferSize = 256
)

// wsSession binds one websocket connection to its authenticated identity and
// current room. Outbound delivery goes through a buffered channel so a slow
// reader drops events instead of stalling the router.
type wsSession struct {
	log      *slog.Logger
	conn     *websocket.Conn
	router   *Router
	monitor  *observability.Monitor
	identity chat.Identity

	mu   sync.RWMutex
	room string

	send chan []byte
	done chan struct{}
	once sync.Once
}

func newSession(log *slog.Logger, conn *websocket.Conn, router *Router,
	monitor *observability.Monitor, identity chat.Identity) *wsSession {
	return &wsSession{
		log:      log,
		conn:     conn,
		router:   router,
		monitor:  monitor,
		identity: identity,
		send:     make(chan []byte, sendBufferSize),
		done:     make(chan struct{}),
	}
}

func (s *wsSession) Identity() chat.Identity { return s.identity }

func (s *wsSession) Room() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.room
}

func (s *wsSession) SetRoom(room string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room = room
}

// Deliver enqueues one outbound frame without blocking.
func (s *wsSession) Deliver(event string, payload any) error {
	env, err := protocol.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return err
	}
	select {
	case <-s.done:
		return fmt.Errorf("session closed")
	case s.send <- frame:
		return nil
	default:
		return fmt.Errorf("send buffer full, event %q dropped", event)
	}
}

// readPump consumes inbound frames until the connection drops, then runs the
// disconnect cleanup exactly once.
func (s *wsSession) readPump(ctx context.Context) {
	defer s.close()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("Read failed", "user_id", s.identity.UserID, "error", err)
			}
			return
		}
		var env protocol.Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			_ = s.Deliver(protocol.EventError, "Malformed event frame")
			continue
		}
		s.router.HandleEvent(ctx, s, env)
	}
}

// writePump owns all writes to the connection: queued frames and keepalive
// pings. Writes never happen from any other goroutine.
func (s *wsSession) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for {
		select {
		case frame := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (s *wsSession) close() {
	s.once.Do(func() {
		close(s.done)
		s.router.Disconnect(s)
		s.monitor.DecrConnections()
		_ = s.conn.Close()
	})
}
