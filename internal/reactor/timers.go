package reactor

import (
	"container/heap"
	"time"
)

// TimerKind distinguishes one-shot from periodic timers, per spec.md §3's
// Timer entity (state ∈ {Unused, OneShot, Periodic}).
type TimerKind int

const (
	// OneShot timers fire exactly once then free their slot.
	OneShot TimerKind = iota
	// Periodic timers re-arm themselves after firing.
	Periodic
)

// TimerHandle identifies a scheduled timer. The zero value is never
// returned by a successful ScheduleTimer and denotes "no timer" to
// callers, matching spec.md §4.3's "null handle" on capacity exhaustion.
type TimerHandle uint64

// timerEntry is one row of the bounded timer table.
type timerEntry struct {
	handle   TimerHandle
	kind     TimerKind
	deadline time.Time
	period   time.Duration
	cb       func()
	inUse    bool
	// heapIndex is maintained by container/heap for O(log n) removal.
	heapIndex int
}

// maxTimers bounds the timer table, matching spec.md §4.3: capacity is
// fixed and schedule_timer fails rather than growing.
const maxTimers = 4096

// timerHeap is a min-heap over timerEntry pointers ordered by deadline,
// following the teacher's container/heap-based timerHeap in loop.go.
type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	return h[i].deadline.Before(h[j].deadline)
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}
func (h *timerHeap) Push(x any) {
	e := x.(*timerEntry)
	e.heapIndex = len(*h)
	*h = append(*h, e)
}
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.heapIndex = -1
	*h = old[:n-1]
	return e
}

// timerTable owns the bounded array of timer slots plus the heap used to
// find the next deadline in O(log n).
type timerTable struct {
	entries [maxTimers]timerEntry
	byIndex map[TimerHandle]int // handle -> index into entries
	heap    timerHeap
	nextID  uint64
}

func newTimerTable() *timerTable {
	return &timerTable{byIndex: make(map[TimerHandle]int, maxTimers)}
}

// schedule allocates the first free entry. Returns ErrTimerTableFull when
// none remain, per spec.md §4.3.
func (t *timerTable) schedule(kind TimerKind, now time.Time, interval time.Duration, cb func()) (TimerHandle, error) {
	if kind == Periodic && interval <= 0 {
		return 0, ErrBadInterval
	}
	idx := -1
	for i := range t.entries {
		if !t.entries[i].inUse {
			idx = i
			break
		}
	}
	if idx < 0 {
		return 0, ErrTimerTableFull
	}
	t.nextID++
	handle := TimerHandle(t.nextID)
	e := &t.entries[idx]
	*e = timerEntry{
		handle:   handle,
		kind:     kind,
		deadline: now.Add(interval),
		period:   interval,
		cb:       cb,
		inUse:    true,
	}
	t.byIndex[handle] = idx
	heap.Push(&t.heap, e)
	return handle, nil
}

// cancel is idempotent: a handle to an already-unused entry, or one out of
// the table's range, is ignored, per spec.md §4.3.
func (t *timerTable) cancel(h TimerHandle) {
	idx, ok := t.byIndex[h]
	if !ok {
		return
	}
	e := &t.entries[idx]
	if !e.inUse || e.handle != h {
		return
	}
	if e.heapIndex >= 0 {
		heap.Remove(&t.heap, e.heapIndex)
	}
	delete(t.byIndex, h)
	*e = timerEntry{}
}

// nextDeadline returns the earliest pending deadline and whether any timer
// exists.
func (t *timerTable) nextDeadline() (time.Time, bool) {
	if len(t.heap) == 0 {
		return time.Time{}, false
	}
	return t.heap[0].deadline, true
}

// fireExpired invokes cb for every timer expiring at or before now, each
// at most once per call, reinserting Periodic timers with the CPU-hog
// clamp from spec.md §4.1: if old_deadline+period is still <= now, the
// next deadline is clamped to now and onOverrun is called so the caller
// can log it. Re-armed timers are pushed back after the pass, so a
// clamped timer fires again on the next call rather than this one.
func (t *timerTable) fireExpired(now time.Time, onOverrun func(h TimerHandle)) {
	type rearmed struct {
		e      *timerEntry
		handle TimerHandle
	}
	var rearm []rearmed
	defer func() {
		for _, r := range rearm {
			// Skip entries cancelled (or reused) by a callback in this pass.
			if r.e.inUse && r.e.handle == r.handle && r.e.heapIndex < 0 {
				heap.Push(&t.heap, r.e)
			}
		}
	}()
	for len(t.heap) > 0 && !t.heap[0].deadline.After(now) {
		e := heap.Pop(&t.heap).(*timerEntry)
		cb := e.cb
		handle := e.handle

		if e.kind == OneShot {
			delete(t.byIndex, handle)
			*e = timerEntry{}
		} else {
			next := e.deadline.Add(e.period)
			if !next.After(now) {
				next = now
				if onOverrun != nil {
					onOverrun(handle)
				}
			}
			e.deadline = next
			rearm = append(rearm, rearmed{e, handle})
		}

		if cb != nil {
			cb()
		}
	}
}
