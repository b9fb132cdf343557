// Package transport defines the core-facing contract a downstream
// serial-attached FPGA bridge plug-in depends on. The wire protocol,
// framing, and retry behavior of the actual transport are explicitly out
// of scope (see SPEC_FULL.md §12); this package exists only so
// internal/plugins/fpgabridge has something concrete to call and
// internal/plugins/fpgabridge's tests have something concrete to fake.
package transport

// Packet is one register read/write exchanged with a downstream device.
type Packet struct {
	Register uint16
	Value    []byte
}

// Enumerator discovers and addresses downstream peripherals reachable
// through a transport. Send is fire-and-forget from the caller's
// perspective: a reply, if any, arrives asynchronously through the
// callback registered via Subscribe, mirroring spec.md §5's "Plug-ins...
// register themselves with the reactor" async-bridge pattern.
type Enumerator interface {
	// Send writes pkt downstream.
	Send(pkt Packet) error
	// Subscribe registers onReply to be invoked for every inbound packet
	// addressed to register. The returned cancel func removes the
	// subscription; it is always safe to call more than once.
	Subscribe(register uint16, onReply func(Packet)) (cancel func())
}
