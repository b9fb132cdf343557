package slot

import "time"

// Host is the surface a Plugin may call back into while it is loaded,
// matching spec.md §6's plug-in contract: timer scheduling, fd
// registration, broadcast, deferred replies, and logging. One Host is
// shared by every slot of a Table.
type Host interface {
	ScheduleTimer(oneShot bool, interval time.Duration, cb func()) (uint64, error)
	CancelTimer(handle uint64)
	RegisterFD(fd int, readable, writable bool, onReady func(readable, writable bool)) error
	UnregisterFD(fd int) error
	Broadcast(key uint32, payload string)
	// Reply delivers a deferred reply to the session that triggered the
	// operation owning owner, releasing it from its awaiting-reply lock.
	// It is the other half of ErrReplyPending: a plug-in that returns it
	// from a SetFunc (or GetFunc) must eventually call Reply with the same
	// PendingOwner it was handed, or that session never unblocks.
	Reply(owner PendingOwner, text string)
	Log(level string, msg string, fields ...any)
}

// Plugin is implemented by every compiled-in peripheral. Initialize is
// called once, when the plug-in is loaded into a Slot via LOADSO; it must
// populate the slot's Name/Description/Help/Resources or return an error,
// which rolls the slot back to Empty.
type Plugin interface {
	Initialize(s *Slot, host Host) error
}

// Factory constructs a fresh Plugin instance for one LOADSO call. Each
// load gets its own instance, so a plug-in loaded into two slots never
// shares private state between them.
type Factory func() Plugin
