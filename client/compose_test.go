package client

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// countingEmitter counts compose signals behind a lock; the stop timer fires
// on a background goroutine.
type countingEmitter struct {
	mu      sync.Mutex
	typing  int
	stopped int
}

func (e *countingEmitter) Typing() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.typing++
	return nil
}

func (e *countingEmitter) StopTyping() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped++
	return nil
}

func (e *countingEmitter) counts() (typing, stopped int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.typing, e.stopped
}

func waitForStop(t *testing.T, emitter *countingEmitter, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, stopped := emitter.counts(); stopped == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	_, stopped := emitter.counts()
	require.Equal(t, want, stopped, "stop-typing signal count")
}

func TestComposer_Debounces_Keystrokes(t *testing.T) {
	req := require.New(t)
	emitter := &countingEmitter{}
	composer := NewComposer(emitter, 30*time.Millisecond)

	// When a burst of keystrokes arrives within the quiet period
	composer.Keystroke()
	composer.Keystroke()
	composer.Keystroke()

	// Then a single typing signal was emitted
	typing, stopped := emitter.counts()
	req.Equal(1, typing)
	req.Zero(stopped)

	// And one stop signal follows once the typist goes quiet
	waitForStop(t, emitter, 1)

	// And a fresh burst starts the cycle again
	composer.Keystroke()
	typing, _ = emitter.counts()
	req.Equal(2, typing)
	waitForStop(t, emitter, 2)
}

func TestComposer_Submit_Stops_Typing_Immediately(t *testing.T) {
	req := require.New(t)
	emitter := &countingEmitter{}
	composer := NewComposer(emitter, time.Minute)

	// Given an in-flight compose session
	composer.Keystroke()

	// When the message is submitted
	composer.Submit()

	// Then the stop signal fires without waiting out the quiet period
	typing, stopped := emitter.counts()
	req.Equal(1, typing)
	req.Equal(1, stopped)

	// And submitting again emits nothing further
	composer.Submit()
	_, stopped = emitter.counts()
	req.Equal(1, stopped)
}

func TestComposer_Pending_Actions_Are_Mutually_Exclusive(t *testing.T) {
	req := require.New(t)
	composer := NewComposer(&countingEmitter{}, time.Minute)
	original := payload("m1", "alice", "original")
	mine := payload("m2", "me", "mine")

	// When a reply is selected and then an edit
	composer.ReplyTo(original)
	composer.Edit(mine)

	// Then only the edit is pending
	replyingTo, editing := composer.Pending()
	req.Nil(replyingTo)
	req.NotNil(editing)
	req.Equal("m2", editing.ID)

	// And selecting a reply clears the edit again
	composer.ReplyTo(original)
	replyingTo, editing = composer.Pending()
	req.NotNil(replyingTo)
	req.Nil(editing)

	// And cancel clears everything
	composer.Cancel()
	replyingTo, editing = composer.Pending()
	req.Nil(replyingTo)
	req.Nil(editing)
}
