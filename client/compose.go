package client

import (
	"sync"
	"time"

	"chat-sync/protocol"
)

// DefaultQuietPeriod is how long after the last keystroke the stop-typing
// signal fires.
const DefaultQuietPeriod = time.Second

// Emitter sends compose signals upstream. Both signals are best effort;
// callers ignore delivery failures.
type Emitter interface {
	Typing() error
	StopTyping() error
}

// Composer tracks the pending action of one compose session: at most one of
// replying-to or editing, selecting one clears the other. It also owns the
// typing debounce timer for its session; the timer handle lives here and is
// never shared with any other session.
type Composer struct {
	emitter Emitter
	quiet   time.Duration

	mu         sync.Mutex
	timer      *time.Timer
	typing     bool
	replyingTo *protocol.MessagePayload
	editing    *protocol.MessagePayload
}

func NewComposer(emitter Emitter, quiet time.Duration) *Composer {
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	return &Composer{emitter: emitter, quiet: quiet}
}

// Keystroke emits a typing signal on the first stroke and re-arms the
// single-shot stop timer on every subsequent one.
func (c *Composer) Keystroke() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.typing {
		c.typing = true
		_ = c.emitter.Typing()
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.quiet, c.quietElapsed)
}

func (c *Composer) quietElapsed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.typing {
		return
	}
	c.typing = false
	_ = c.emitter.StopTyping()
}

// Submit clears the pending action after a send and stops typing
// immediately instead of waiting out the quiet period.
func (c *Composer) Submit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	c.replyingTo = nil
	c.editing = nil
}

// Cancel abandons the pending action without sending.
func (c *Composer) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	c.replyingTo = nil
	c.editing = nil
}

// ReplyTo selects the message being replied to, clearing any pending edit.
func (c *Composer) ReplyTo(message protocol.MessagePayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replyingTo = &message
	c.editing = nil
}

// Edit selects the message being edited, clearing any pending reply.
func (c *Composer) Edit(message protocol.MessagePayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.editing = &message
	c.replyingTo = nil
}

// Pending returns the current pending action; at most one is non-nil.
func (c *Composer) Pending() (replyingTo, editing *protocol.MessagePayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.replyingTo, c.editing
}

func (c *Composer) stopLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.typing {
		c.typing = false
		_ = c.emitter.StopTyping()
	}
}
