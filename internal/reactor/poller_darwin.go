//go:build darwin

package reactor

import (
	"golang.org/x/sys/unix"
)

// kqueuePoller implements poller using Darwin kqueue, following the shape
// of the teacher's FastPoller for darwin (poller_darwin.go): one kqueue
// instance, read and write interest registered as separate filters since
// kqueue (unlike epoll) tracks them independently.
type kqueuePoller struct {
	kq       int
	eventBuf [256]unix.Kevent_t
}

func newPoller() poller {
	return &kqueuePoller{kq: -1}
}

func (p *kqueuePoller) init() error {
	kq, err := unix.Kqueue()
	if err != nil {
		return err
	}
	unix.CloseOnExec(kq)
	p.kq = kq
	return nil
}

func (p *kqueuePoller) close() error {
	if p.kq < 0 {
		return nil
	}
	err := unix.Close(p.kq)
	p.kq = -1
	return err
}

func (p *kqueuePoller) changeList(fd int, events IOEvents, addFlags uint16) []unix.Kevent_t {
	var changes []unix.Kevent_t
	add := func(filter int16) {
		changes = append(changes, unix.Kevent_t{
			Ident:  uint64(fd),
			Filter: filter,
			Flags:  addFlags,
		})
	}
	if events&EventRead != 0 {
		add(unix.EVFILT_READ)
	}
	if events&EventWrite != 0 {
		add(unix.EVFILT_WRITE)
	}
	return changes
}

func (p *kqueuePoller) add(fd int, events IOEvents) error {
	changes := p.changeList(fd, events, unix.EV_ADD|unix.EV_ENABLE)
	if len(changes) == 0 {
		return nil
	}
	_, err := unix.Kevent(p.kq, changes, nil, nil)
	return err
}

func (p *kqueuePoller) modify(fd int, events IOEvents) error {
	// kqueue has no single "replace interest" verb: delete both filters
	// unconditionally (ignoring ENOENT for the one that wasn't set) then
	// re-add the requested set.
	_, _ = unix.Kevent(p.kq, []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE},
	}, nil, nil)
	return p.add(fd, events)
}

func (p *kqueuePoller) remove(fd int) error {
	_, err := unix.Kevent(p.kq, []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE},
	}, nil, nil)
	return err
}

func (p *kqueuePoller) wait(timeoutMs int, dispatch func(fd int, ev IOEvents)) error {
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		t := unix.NsecToTimespec(int64(timeoutMs) * int64(1e6))
		ts = &t
	}
	n, err := unix.Kevent(p.kq, nil, p.eventBuf[:], ts)
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return err
	}
	for i := 0; i < n; i++ {
		ev := p.eventBuf[i]
		var dir IOEvents
		switch ev.Filter {
		case unix.EVFILT_READ:
			dir = EventRead
		case unix.EVFILT_WRITE:
			dir = EventWrite
		}
		if ev.Flags&unix.EV_EOF != 0 {
			dir |= EventRead
		}
		dispatch(int(ev.Ident), dir)
	}
	return nil
}
