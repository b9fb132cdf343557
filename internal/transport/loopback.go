package transport

import "sync"

// Loopback is an Enumerator double that echoes every Send straight back
// to its subscribers, synchronously. It is sufficient to exercise
// internal/plugins/fpgabridge's async-reply bookkeeping in tests without
// a real serial transport.
type Loopback struct {
	mu   sync.Mutex
	subs map[uint16][]func(Packet)
}

// NewLoopback constructs an empty Loopback.
func NewLoopback() *Loopback {
	return &Loopback{subs: make(map[uint16][]func(Packet))}
}

// Send implements Enumerator by immediately delivering pkt to every
// subscriber registered for pkt.Register.
func (l *Loopback) Send(pkt Packet) error {
	l.mu.Lock()
	subs := append([]func(Packet){}, l.subs[pkt.Register]...)
	l.mu.Unlock()
	for _, fn := range subs {
		if fn != nil {
			fn(pkt)
		}
	}
	return nil
}

// Subscribe implements Enumerator.
func (l *Loopback) Subscribe(register uint16, onReply func(Packet)) (cancel func()) {
	l.mu.Lock()
	l.subs[register] = append(l.subs[register], onReply)
	idx := len(l.subs[register]) - 1
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		bucket := l.subs[register]
		if idx < len(bucket) {
			bucket[idx] = nil
		}
	}
}
