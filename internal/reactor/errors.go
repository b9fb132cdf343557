package reactor

import "errors"

// Standard errors returned by Reactor methods.
var (
	// ErrAlreadyRunning is returned when Run is called on a reactor that is
	// already running or has already finished Run.
	ErrAlreadyRunning = errors.New("reactor: already running")

	// ErrStopped reports a reactor that has finished Run. No Reactor
	// method returns it: a second Run returns ErrAlreadyRunning.
	ErrStopped = errors.New("reactor: stopped")

	// ErrNoCallback is returned by RegisterFD when neither a read nor a
	// write callback was supplied, and by ScheduleTimer when cb is nil.
	ErrNoCallback = errors.New("reactor: a callback is required")

	// ErrBadInterval is returned by ScheduleTimer when a Periodic timer is
	// given a non-positive interval.
	ErrBadInterval = errors.New("reactor: periodic timer interval must be positive")

	// ErrTimerTableFull is returned by ScheduleTimer when the fixed-size
	// timer table has no free entry. The caller must treat this as
	// scheduling failure, per spec: the table does not grow.
	ErrTimerTableFull = errors.New("reactor: timer table is full")

	// ErrFDOutOfRange is returned by RegisterFD/UnregisterFD when fd falls
	// outside the supported descriptor range.
	ErrFDOutOfRange = errors.New("reactor: fd out of range")

	// ErrFDAlreadyRegistered is returned by RegisterFD when fd is already
	// present in the registry.
	ErrFDAlreadyRegistered = errors.New("reactor: fd already registered")
)
