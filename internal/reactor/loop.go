package reactor

import (
	"context"
	"time"

	"github.com/joeycumines/go-catrate"
)

// Logger is the structural logging dependency the reactor needs, kept to
// plain strings so any logger (including a zero-field
// *internal/logging.Logger call) satisfies it without this package
// importing internal/logging.
type Logger interface {
	Warn(msg string)
	Error(msg string)
}

// loopOptions holds configuration applied before Run is called.
type loopOptions struct {
	logger     Logger
	pollBudget int // max wait, in milliseconds, when nothing is scheduled
}

// Option configures a Reactor at construction time, following the
// teacher's LoopOption/loopOptionImpl functional-options shape.
type Option interface {
	apply(*loopOptions)
}

type optionFunc func(*loopOptions)

func (f optionFunc) apply(o *loopOptions) { f(o) }

// WithLogger sets the reactor's diagnostic logger. The default logger
// discards everything.
func WithLogger(l Logger) Option {
	return optionFunc(func(o *loopOptions) { o.logger = l })
}

// WithIdlePollBudget bounds how long a tick may block when no timer is
// due sooner, whether or not any fd is registered, so Run can still
// observe context cancellation promptly. The default is 1 second.
func WithIdlePollBudget(d time.Duration) Option {
	return optionFunc(func(o *loopOptions) {
		if d > 0 {
			o.pollBudget = int(d / time.Millisecond)
		}
	})
}

type nopLogger struct{}

func (nopLogger) Warn(string)  {}
func (nopLogger) Error(string) {}

// Reactor is the daemon's event loop: a bounded fd table, a bounded timer
// table, and the OS readiness poller that drives both. There is exactly
// one of these per daemon process.
type Reactor struct {
	opts    loopOptions
	poller  poller
	fds     [maxFDs]fdEntry
	timers  *timerTable
	state   RunState
	overrun *catrate.Limiter
}

// New constructs a Reactor. The underlying OS poller is not opened until
// Run is called.
func New(opts ...Option) *Reactor {
	o := loopOptions{logger: nopLogger{}, pollBudget: 1000}
	for _, opt := range opts {
		opt.apply(&o)
	}
	r := &Reactor{
		opts:   o,
		poller: newPoller(),
		timers: newTimerTable(),
		state:  StateCreated,
		// One overrun warning per timer handle per 10 seconds: a
		// persistently overloaded periodic timer must not flood the log.
		overrun: catrate.NewLimiter(map[time.Duration]int{10 * time.Second: 1}),
	}
	for i := range r.fds {
		r.fds[i].fd = -1
	}
	return r
}

// State reports the reactor's current run state.
func (r *Reactor) State() RunState { return r.state }

// RegisterFD adds fd to the registry, polled for the given directions.
// Callers needing per-fd context close over it in readCB/writeCB, matching
// how the daemon's session and slot callbacks are wired.
func (r *Reactor) RegisterFD(fd int, events IOEvents, readCB, writeCB Callback) error {
	if fd < 0 || fd >= maxFDs {
		return ErrFDOutOfRange
	}
	if readCB == nil && writeCB == nil {
		return ErrNoCallback
	}
	if r.fds[fd].inUse {
		return ErrFDAlreadyRegistered
	}
	r.fds[fd] = fdEntry{
		fd:      fd,
		events:  events,
		readCB:  readCB,
		writeCB: writeCB,
		inUse:   true,
	}
	if r.state == StateRunning {
		return r.poller.add(fd, events)
	}
	return nil
}

// ModifyFD changes the polled directions for an already-registered fd.
func (r *Reactor) ModifyFD(fd int, events IOEvents) error {
	if fd < 0 || fd >= maxFDs || !r.fds[fd].inUse {
		return ErrFDOutOfRange
	}
	r.fds[fd].events = events
	if r.state == StateRunning {
		return r.poller.modify(fd, events)
	}
	return nil
}

// UnregisterFD removes fd from the registry. It is idempotent: removing
// an fd that is not registered is a no-op, since a callback may race to
// unregister an fd that a peer callback already tore down within the
// same tick.
func (r *Reactor) UnregisterFD(fd int) error {
	if fd < 0 || fd >= maxFDs || !r.fds[fd].inUse {
		return nil
	}
	r.fds[fd] = fdEntry{fd: -1}
	if r.state == StateRunning {
		return r.poller.remove(fd)
	}
	return nil
}

// ScheduleTimer arms a new timer relative to now. now is supplied by the
// caller (rather than taken internally) so tests can drive deterministic
// clocks, matching the teacher's injectable-clock test pattern.
func (r *Reactor) ScheduleTimer(kind TimerKind, now time.Time, interval time.Duration, cb func()) (TimerHandle, error) {
	if cb == nil {
		return 0, ErrNoCallback
	}
	return r.timers.schedule(kind, now, interval, cb)
}

// CancelTimer cancels a previously scheduled timer. Idempotent.
func (r *Reactor) CancelTimer(h TimerHandle) { r.timers.cancel(h) }

// Run opens the OS poller and executes the cooperative loop described by
// spec.md §4.1 until ctx is cancelled or Stop causes the next tick to
// exit. Run may only be called once per Reactor.
func (r *Reactor) Run(ctx context.Context) error {
	if r.state != StateCreated {
		return ErrAlreadyRunning
	}
	if err := r.poller.init(); err != nil {
		return err
	}
	defer r.poller.close()

	for fd := range r.fds {
		if r.fds[fd].inUse {
			if err := r.poller.add(fd, r.fds[fd].events); err != nil {
				return err
			}
		}
	}

	r.state = StateRunning
	for r.state == StateRunning {
		if err := ctx.Err(); err != nil {
			r.state = StateStopped
			return nil
		}

		timeoutMs := r.opts.pollBudget
		if deadline, ok := r.timers.nextDeadline(); ok {
			now := time.Now()
			if !deadline.After(now) {
				timeoutMs = 0
			} else if d := deadline.Sub(now); int(d/time.Millisecond) < timeoutMs {
				timeoutMs = int(d / time.Millisecond)
			}
		}

		if err := r.poller.wait(timeoutMs, r.dispatchFD); err != nil {
			r.opts.logger.Error("poller wait failed")
			return err
		}

		r.timers.fireExpired(time.Now(), r.onTimerOverrun)
	}
	return nil
}

// Stop requests that the next tick boundary exit Run. Since the reactor
// is single-threaded, Stop is only meaningful when called from within a
// callback running on the Run goroutine (e.g. a SHUTDOWN command
// handler); calling it from any other goroutine is a data race by
// construction and is not supported, per spec.md's no-threading model.
func (r *Reactor) Stop() {
	if r.state == StateRunning {
		r.state = StateStopped
	}
}

func (r *Reactor) dispatchFD(fd int, ev IOEvents) {
	if fd < 0 || fd >= maxFDs {
		return
	}
	e := &r.fds[fd]
	if !e.inUse {
		return
	}
	if ev&EventRead != 0 && e.readCB != nil {
		e.readCB(fd, EventRead)
	}
	// Re-validate: the read callback may have unregistered this fd (e.g.
	// on EOF) before the write half is dispatched in the same tick.
	if !e.inUse {
		return
	}
	if ev&EventWrite != 0 && e.writeCB != nil {
		e.writeCB(fd, EventWrite)
	}
}

func (r *Reactor) onTimerOverrun(h TimerHandle) {
	if _, ok := r.overrun.Allow(h); ok {
		r.opts.logger.Warn("periodic timer overrun, deadline clamped to now")
	}
}
