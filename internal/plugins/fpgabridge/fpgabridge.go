// Package fpgabridge implements a transport-bridged peripheral: writes to
// its "reg" resource go out over a transport.Enumerator and the resource
// does not report success until the downstream device replies (a watchdog
// logs a warning if no reply arrives in time, without completing or
// releasing the request). This is the worked example for the
// daemon's asynchronous reply / single-reader-lock machinery described
// in SPEC_FULL.md's plug-in contract and watchdog sections.
package fpgabridge

import (
	"fmt"
	"time"

	"github.com/periphd/periphd/internal/protocol"
	"github.com/periphd/periphd/internal/slot"
	"github.com/periphd/periphd/internal/transport"
	"github.com/periphd/periphd/internal/watchdog"
)

// Name is the plug-in's registered LOADSO name.
const Name = "fpgabridge"

// register is the single downstream register this worked example bridges.
// Transport-bridging plug-ins that need more would define one Resource
// (and one watchdog category) per register.
const register uint16 = 0x10

// noAckTimeout is how long a SET waits for a downstream reply before the
// watchdog logs a no-ack warning; the SET keeps waiting after that.
const noAckTimeout = 100 * time.Millisecond

func init() {
	slot.Register(Name, func() slot.Plugin { return &Plugin{} })
}

// Plugin bridges one Enumerator-reachable register into a Resource. Unlike
// demo, irc and gamepad, its Set does not complete synchronously: it hands
// the write to the transport and returns protocol.ErrReplyPending, leaving
// the resource claimed until onReply releases it; the watchdog only logs.
type Plugin struct {
	host  slot.Host
	link  transport.Enumerator
	dogs  *watchdog.Group
	value []byte

	// regRes is this plug-in's own entry in the slot's resource table,
	// kept so set/onReply can read and clear the core's PendingOwner lock
	// directly instead of tracking a private duplicate of it.
	regRes      *slot.Resource
	watchHandle *watchdog.Watch

	// inFlight and syncReply bridge transports (like the in-process
	// Loopback used in tests) that deliver the reply synchronously from
	// within Send, before the dispatcher has had a chance to assign
	// regRes.PendingOwner to this exchange. inFlight marks that set's own
	// Send call is still on the stack; syncReply is onReply's way of
	// handing that call its answer directly instead of via Host.Reply.
	// Neither duplicates PendingOwner: they disambiguate a call-stack
	// reentrancy, not which session is waiting.
	inFlight  bool
	syncReply *string
}

// New constructs a Plugin bound to a specific Enumerator. cmd/periphd
// wires the real transport; tests wire a transport.Loopback.
func New(link transport.Enumerator) *Plugin {
	return &Plugin{link: link}
}

// Initialize implements slot.Plugin.
func (p *Plugin) Initialize(s *slot.Slot, host slot.Host) error {
	if p.link == nil {
		return fmt.Errorf("fpgabridge: no transport.Enumerator was provided")
	}
	p.host = host
	p.dogs = watchdog.NewGroup(host, warnLogger{host}, noAckTimeout, time.Second, 1)

	s.Name = Name
	s.Description = "bridges a downstream FPGA register over a transport"
	s.Help = "GET <slot> reg | SET <slot> reg <hex-bytes>"
	s.Resources = []slot.Resource{
		{
			Name:         "reg",
			Capabilities: slot.Readable | slot.Writable,
			Get:          p.get,
			Set:          p.set,
			PendingOwner: slot.NoPendingOwner,
		},
	}
	p.regRes = &s.Resources[0]
	s.Private = p

	p.link.Subscribe(register, p.onReply)
	return nil
}

func (p *Plugin) get() (string, error) {
	return fmt.Sprintf("%x", p.value), nil
}

// set hands the write off to the transport. If the downstream reply
// arrives synchronously (from within Send) it returns the reply directly;
// otherwise it returns protocol.ErrReplyPending, and the dispatcher's busy
// check (on Resource.PendingOwner) refuses any further GET/SET against
// this resource until onReply completes the exchange.
func (p *Plugin) set(operand string) (string, error) {
	p.syncReply = nil
	p.inFlight = true
	p.watchHandle = p.dogs.Arm(register)
	err := p.link.Send(transport.Packet{Register: register, Value: []byte(operand)})
	p.inFlight = false
	if err != nil {
		if p.watchHandle != nil {
			p.watchHandle.Cancel()
			p.watchHandle = nil
		}
		return "", err
	}
	if p.syncReply != nil {
		reply := *p.syncReply
		p.syncReply = nil
		return reply, nil
	}
	return "", protocol.ErrReplyPending
}

// onReply is the success path. A reply with nothing in flight and no
// call to set currently on the stack is a stray and is ignored outright,
// leaving the resource's last-known value untouched. Otherwise it cancels
// the watchdog, records the new value, and either hands the reply back
// directly to set (the synchronous-transport case) or clears the core's
// busy lock and delivers it to whichever session is still waiting (a
// no-op if that session has since disconnected).
func (p *Plugin) onReply(pkt transport.Packet) {
	owner := p.regRes.PendingOwner
	if owner == slot.NoPendingOwner && !p.inFlight {
		return
	}
	p.value = pkt.Value
	if p.watchHandle != nil {
		p.watchHandle.Cancel()
		p.watchHandle = nil
	}
	reply := fmt.Sprintf("%x", p.value)
	if owner == slot.NoPendingOwner {
		p.syncReply = &reply
		return
	}
	p.regRes.PendingOwner = slot.NoPendingOwner
	p.host.Reply(owner, reply)
}

type warnLogger struct{ host slot.Host }

func (w warnLogger) Warn(msg string) { w.host.Log("warn", msg) }
