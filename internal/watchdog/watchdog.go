// Package watchdog factors out the "schedule a one-shot timer, cancel it
// on reply, log a warning if it ever fires" dance that spec.md §5
// describes every transport-bridging plug-in doing for itself
// ("Plug-ins... schedule their own OneShot timers (conventionally 100ms)
// and log a no-ack warning on expiry"). It stays a plug-in-level concern,
// not a reactor-level one: the reactor has no idea what an "ack" is.
package watchdog

import (
	"time"

	"github.com/joeycumines/go-catrate"
)

// Scheduler is the minimal reactor surface a Watch needs.
type Scheduler interface {
	ScheduleTimer(oneShot bool, interval time.Duration, cb func()) (uint64, error)
	CancelTimer(handle uint64)
}

// Logger receives the no-ack warning.
type Logger interface {
	Warn(msg string)
}

// Watch is one armed no-ack timer, keyed by whatever the caller uses to
// identify the outstanding request (a register address, a session ID).
type Watch struct {
	scheduler Scheduler
	handle    uint64
	armed     bool
}

// Group owns the rate limiter shared across every Watch it arms, so a
// slot whose downstream peripheral is persistently unresponsive logs at
// most a bounded rate instead of once per timeout.
type Group struct {
	scheduler Scheduler
	logger    Logger
	limiter   *catrate.Limiter
	timeout   time.Duration
}

// NewGroup constructs a Group. timeout is the conventional no-ack window
// (spec.md suggests 100ms); logRate bounds how often the warning may
// repeat for the same category.
func NewGroup(scheduler Scheduler, logger Logger, timeout time.Duration, logRate time.Duration, logBurst int) *Group {
	return &Group{
		scheduler: scheduler,
		logger:    logger,
		limiter:   catrate.NewLimiter(map[time.Duration]int{logRate: logBurst}),
		timeout:   timeout,
	}
}

// Arm schedules the watchdog for category. Calling Arm again for a
// category that already has a live Watch is a caller error (the plug-in
// should Cancel its previous Watch first); Arm does not attempt to
// detect that, since it has no notion of "category" beyond whatever the
// caller passes to Allow.
func (g *Group) Arm(category any) *Watch {
	w := &Watch{scheduler: g.scheduler}
	handle, err := g.scheduler.ScheduleTimer(true, g.timeout, func() {
		w.armed = false
		if _, ok := g.limiter.Allow(category); ok {
			g.logger.Warn("no-ack watchdog expired")
		}
	})
	if err != nil {
		return w
	}
	w.handle = handle
	w.armed = true
	return w
}

// Cancel disarms the watchdog, typically called when the expected reply
// arrives. Idempotent.
func (w *Watch) Cancel() {
	if !w.armed {
		return
	}
	w.scheduler.CancelTimer(w.handle)
	w.armed = false
}

// Armed reports whether the watchdog has neither fired nor been
// cancelled yet.
func (w *Watch) Armed() bool { return w.armed }
