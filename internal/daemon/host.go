// Package daemon wires the independently testable packages (reactor,
// protocol, broadcast, slot, logging, config) into one running process:
// the concrete slot.Host implementation, static plug-in loading, and the
// top-level Run loop cmd/periphd calls into.
package daemon

import (
	"time"

	"github.com/periphd/periphd/internal/broadcast"
	"github.com/periphd/periphd/internal/logging"
	"github.com/periphd/periphd/internal/protocol"
	"github.com/periphd/periphd/internal/reactor"
	"github.com/periphd/periphd/internal/slot"
)

// Host implements slot.Host over a real Reactor, broadcast.Engine, and
// slot.Table, translating between each package's own vocabulary (an
// oneShot bool versus a reactor.TimerKind, a bare uint32 key versus a
// *slot.Resource pointer) so no plug-in needs to import reactor or
// broadcast directly.
type Host struct {
	reactor *reactor.Reactor
	engine  *broadcast.Engine
	server  *protocol.Server
	slots   *slot.Table
	log     *logging.Logger
}

// NewHost constructs a Host bound to the given components. server may be
// nil in tests that never exercise Reply.
func NewHost(r *reactor.Reactor, engine *broadcast.Engine, server *protocol.Server, slots *slot.Table, log *logging.Logger) *Host {
	return &Host{reactor: r, engine: engine, server: server, slots: slots, log: log}
}

// ScheduleTimer implements slot.Host and watchdog.Scheduler.
func (h *Host) ScheduleTimer(oneShot bool, interval time.Duration, cb func()) (uint64, error) {
	kind := reactor.Periodic
	if oneShot {
		kind = reactor.OneShot
	}
	handle, err := h.reactor.ScheduleTimer(kind, time.Now(), interval, cb)
	return uint64(handle), err
}

// CancelTimer implements slot.Host and watchdog.Scheduler.
func (h *Host) CancelTimer(handle uint64) {
	h.reactor.CancelTimer(reactor.TimerHandle(handle))
}

// RegisterFD implements slot.Host, adapting its combined readable/writable
// boolean pair onto the reactor's separate read/write callback slots. The
// two directions share one closure; a tick in which both fire invokes it
// twice, once per direction, which onReady's signature already expects.
func (h *Host) RegisterFD(fd int, readable, writable bool, onReady func(readable, writable bool)) error {
	var events reactor.IOEvents
	if readable {
		events |= reactor.EventRead
	}
	if writable {
		events |= reactor.EventWrite
	}
	cb := func(_ int, dir reactor.IOEvents) {
		onReady(dir&reactor.EventRead != 0, dir&reactor.EventWrite != 0)
	}
	var readCB, writeCB reactor.Callback
	if readable {
		readCB = cb
	}
	if writable {
		writeCB = cb
	}
	return h.reactor.RegisterFD(fd, events, readCB, writeCB)
}

// UnregisterFD implements slot.Host.
func (h *Host) UnregisterFD(fd int) error { return h.reactor.UnregisterFD(fd) }

// Broadcast implements slot.Host, resolving key back to the resource
// currently holding it (if any) so the engine can reset it to zero once
// no subscriber remains. The trailing newline is added here, not by
// broadcast.Engine, since Engine deals in raw buffers and it is this
// wire-facing layer that knows every CAT subscriber expects one line per
// published payload.
func (h *Host) Broadcast(key uint32, payload string) {
	r := h.slots.FindResourceByBroadcastKey(key)
	h.engine.Publish(key, []byte(payload+"\n"), r)
}

// Reply implements slot.Host, forwarding a plug-in's deferred reply to the
// session that triggered the pending operation.
func (h *Host) Reply(owner slot.PendingOwner, text string) {
	h.server.CompleteReply(protocol.SessionID(owner), text)
}

// Log implements slot.Host. Only arguments that are logging.Field are
// honored; a plug-in wanting typed fields imports internal/logging and
// constructs them with logging.Str/Int/Err/Bool, keeping slot.Host's
// signature free of a logging dependency.
func (h *Host) Log(level, msg string, fields ...any) {
	var lf []logging.Field
	for _, f := range fields {
		if field, ok := f.(logging.Field); ok {
			lf = append(lf, field)
		}
	}
	switch level {
	case "debug":
		h.log.Debug(msg, lf...)
	case "warn":
		h.log.Warn(msg, lf...)
	case "error":
		h.log.Error(msg, lf...)
	default:
		h.log.Info(msg, lf...)
	}
}
