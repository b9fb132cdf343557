// Package reactor implements the daemon's single-threaded event
// multiplexor: a bounded file-descriptor registry driven by epoll/kqueue,
// a bounded timer wheel, and the cooperative loop that drives both.
//
// # Execution model
//
// There is exactly one goroutine running inside [Reactor.Run]. Every other
// method on [Reactor] — RegisterFD, UnregisterFD, ScheduleTimer,
// CancelTimer — is only safe to call from a callback running on that same
// goroutine; none of it is thread-safe, and none of it needs to be, since
// the daemon this package drives never submits work from another
// goroutine. This is a deliberate departure from proactor-style event
// loops that accept concurrent submission: see DESIGN.md for the rationale.
//
// # Ordering
//
// Within one tick: every timer whose deadline has passed fires before any
// FD callback runs. There is no ordering guarantee between timers expiring
// in the same tick, nor between FD callbacks in the same tick. A callback
// may register, unregister, schedule, or cancel freely — the reactor
// re-validates liveness of each table entry immediately before dispatch,
// so self-mutation during iteration is safe.
package reactor
