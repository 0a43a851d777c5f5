package testutil

import (
	"sync"

	"github.com/roach88/teamtask/internal/notify"
)

// RecordingConn is a notify.Conn that keeps every message it is sent.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type RecordingConn struct {
	mu       sync.Mutex
	messages []notify.Message
	err      error
}

// NewRecordingConn creates an empty recording connection.
func NewRecordingConn() *RecordingConn {
	return &RecordingConn{}
}

// Send records msg, or returns the configured failure without recording.
func (c *RecordingConn) Send(msg notify.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.messages = append(c.messages, msg)
	return nil
}

// FailWith makes subsequent sends return err. A nil err restores normal
// recording.
func (c *RecordingConn) FailWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

// Messages returns a copy of the recorded messages in arrival order.
func (c *RecordingConn) Messages() []notify.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]notify.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Events returns the event names of the recorded messages in order.
func (c *RecordingConn) Events() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.messages))
	for i, m := range c.messages {
		out[i] = m.Event
	}
	return out
}

// Len returns the number of recorded messages.
func (c *RecordingConn) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}
