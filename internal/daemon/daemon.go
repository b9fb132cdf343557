package daemon

import (
	"context"
	"time"

	"github.com/periphd/periphd/internal/broadcast"
	"github.com/periphd/periphd/internal/config"
	"github.com/periphd/periphd/internal/logging"
	"github.com/periphd/periphd/internal/protocol"
	"github.com/periphd/periphd/internal/reactor"
	"github.com/periphd/periphd/internal/slot"
)

// hostRef breaks the construction cycle between slot.Table (which needs a
// slot.Host at NewTable time) and Host (which needs the broadcast.Engine,
// which needs the protocol.Server, which needs the slot.Table's
// Dispatcher). The Table only ever calls through ref during a later
// Load, by which point h is populated.
type hostRef struct{ h *Host }

func (r *hostRef) ScheduleTimer(oneShot bool, interval time.Duration, cb func()) (uint64, error) {
	return r.h.ScheduleTimer(oneShot, interval, cb)
}
func (r *hostRef) CancelTimer(handle uint64) { r.h.CancelTimer(handle) }
func (r *hostRef) RegisterFD(fd int, readable, writable bool, onReady func(readable, writable bool)) error {
	return r.h.RegisterFD(fd, readable, writable, onReady)
}
func (r *hostRef) UnregisterFD(fd int) error            { return r.h.UnregisterFD(fd) }
func (r *hostRef) Broadcast(key uint32, payload string) { r.h.Broadcast(key, payload) }
func (r *hostRef) Reply(owner slot.PendingOwner, text string) { r.h.Reply(owner, text) }
func (r *hostRef) Log(level, msg string, fields ...any) { r.h.Log(level, msg, fields...) }

// Daemon owns every long-lived component a running process needs: the
// reactor, the slot table, the accept loop, and the broadcast engine tying
// them together.
type Daemon struct {
	Reactor *reactor.Reactor
	Slots   *slot.Table
	Server  *protocol.Server
	Engine  *broadcast.Engine
	Host    *Host

	log *logging.Logger
}

// New assembles a Daemon from cfg. It does not bind a socket or start the
// reactor loop; call Listen then Run.
func New(cfg *config.Config, log *logging.Logger) *Daemon {
	r := reactor.New(
		reactor.WithLogger(log.ReactorLogger()),
		reactor.WithIdlePollBudget(cfg.IdlePollBudget),
	)

	ref := &hostRef{}
	slots := slot.NewTable(cfg.MaxSlots, ref)

	dispatcher := &protocol.Dispatcher{Slots: slots}
	srv := protocol.NewServer(cfg, r, dispatcher, log.ReactorLogger())

	engine := broadcast.New(srv, srv)
	host := NewHost(r, engine, srv, slots, log)
	ref.h = host

	return &Daemon{
		Reactor: r,
		Slots:   slots,
		Server:  srv,
		Engine:  engine,
		Host:    host,
		log:     log,
	}
}

// LoadStaticPlugins loads cfg.StaticPlugins into slots in order. A plugin
// that fails to load is logged and skipped; it does not abort startup,
// matching spec.md §7's "initialization failure rolls back to Empty"
// per-slot semantics rather than a whole-daemon failure.
func (d *Daemon) LoadStaticPlugins(cfg *config.Config) {
	for _, name := range cfg.StaticPlugins {
		if _, err := d.Slots.Load(name); err != nil {
			d.log.Warn("failed to load static plug-in", logging.Str("plugin", name), logging.Err(err))
		}
	}
}

// Listen binds and arms the listening socket.
func (d *Daemon) Listen(cfg *config.Config) error { return d.Server.Listen(cfg) }

// Run executes the reactor loop until ctx is cancelled, then closes the
// listening socket and every live session.
func (d *Daemon) Run(ctx context.Context) error {
	defer d.Server.Close()
	return d.Reactor.Run(ctx)
}
