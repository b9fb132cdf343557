// Package broadcast implements the daemon's subscribe-key fan-out: a
// plug-in publishes to a key, every session currently subscribed to that
// key gets the payload, and a key with no remaining listener resets
// itself to zero so the plug-in stops paying to format broadcasts nobody
// reads.
package broadcast

import (
	"github.com/periphd/periphd/internal/protocol"
	"github.com/periphd/periphd/internal/slot"
)

// Writer performs the actual per-fd write. It is a narrow interface so
// this package does not need to know whether fd is a raw socket, a pipe,
// or (in tests) a fake.
type Writer interface {
	Write(fd int, data []byte) error
}

// SessionSource exposes the live session table. The broadcast engine
// never owns sessions; it only walks and mutates the state
// (SubscribeKey, Close) the protocol layer already defined.
type SessionSource interface {
	Sessions() []*protocol.Session
}

// Engine fans a published payload out to every matching session.
type Engine struct {
	sessions SessionSource
	writer   Writer
}

// New constructs an Engine.
func New(sessions SessionSource, writer Writer) *Engine {
	return &Engine{sessions: sessions, writer: writer}
}

// Publish writes payload to every session whose SubscribeKey equals key.
// A session whose write fails or blocks is closed, matching spec.md §5's
// "session closure is the only back-pressure policy". If no live session
// still matches after the walk, resource's BroadcastKey resets to zero,
// so the plug-in's next attempt to publish short-circuits without
// formatting a payload nobody will read.
func (e *Engine) Publish(key uint32, payload []byte, resource *slot.Resource) {
	if key == 0 {
		return
	}
	matched := false
	for _, s := range e.sessions.Sessions() {
		if s == nil || s.Closed() || s.SubscribeKey != key {
			continue
		}
		if err := e.writer.Write(s.FD, payload); err != nil {
			s.Close()
			continue
		}
		matched = true
	}
	if !matched && resource != nil {
		resource.BroadcastKey = 0
	}
}
