package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/periphd/periphd/internal/slot"
)

type noopHost struct{}

func (noopHost) ScheduleTimer(bool, time.Duration, func()) (uint64, error) { return 0, nil }
func (noopHost) CancelTimer(uint64)                                       {}
func (noopHost) RegisterFD(int, bool, bool, func(bool, bool)) error       { return nil }
func (noopHost) UnregisterFD(int) error                                  { return nil }
func (noopHost) Broadcast(uint32, string)                                {}
func (noopHost) Reply(slot.PendingOwner, string)                         {}
func (noopHost) Log(string, string, ...any)                              {}

func newTestTable(t *testing.T) *slot.Table {
	t.Helper()
	tbl := slot.NewTable(4, noopHost{})
	value := "hello"
	slot.Register("dispatchdemo", func() slot.Plugin {
		return pluginFunc(func(s *slot.Slot, host slot.Host) error {
			s.Name = "dispatchdemo"
			s.Description = "test fixture"
			s.Help = "dispatchdemo help text"
			s.Resources = []slot.Resource{
				{
					// readonly sits at index 0 deliberately, so "message"
					// (index 1) gets a non-zero CAT key even though its
					// slot index is also 0 — slot 0 / resource 0 would
					// otherwise collide with the "no subscriber" sentinel.
					Name:         "readonly",
					Capabilities: slot.Readable,
					Get:          func() (string, error) { return "fixed", nil },
				},
				{
					Name:         "message",
					Capabilities: slot.Readable | slot.Writable | slot.Broadcastable,
					Get:          func() (string, error) { return value, nil },
					Set: func(operand string) (string, error) {
						value = operand
						return "OK", nil
					},
				},
			}
			return nil
		})
	})
	_, err := tbl.Load("dispatchdemo")
	require.NoError(t, err)
	return tbl
}

type pluginFunc func(s *slot.Slot, host slot.Host) error

func (f pluginFunc) Initialize(s *slot.Slot, host slot.Host) error { return f(s, host) }

func TestDispatchGet(t *testing.T) {
	d := &Dispatcher{Slots: newTestTable(t)}
	sess := NewSession(1, 9, 64)
	lines := d.Dispatch(sess, ParseLine("GET 0 message"))
	require.Equal(t, []string{"hello"}, lines)
}

func TestDispatchSetThenGetRoundTrips(t *testing.T) {
	d := &Dispatcher{Slots: newTestTable(t)}
	sess := NewSession(1, 9, 64)
	lines := d.Dispatch(sess, ParseLine("SET 0 message goodbye"))
	require.Equal(t, []string{"OK"}, lines)

	lines = d.Dispatch(sess, ParseLine("GET 0 message"))
	require.Equal(t, []string{"goodbye"}, lines)
}

func TestDispatchSetOnReadOnlyIsNotWritableError(t *testing.T) {
	d := &Dispatcher{Slots: newTestTable(t)}
	sess := NewSession(1, 9, 64)
	lines := d.Dispatch(sess, ParseLine("SET 0 readonly x"))
	require.Len(t, lines, 1)
	require.Contains(t, lines[0], "ERROR 007")
}

func TestDispatchUnknownSlot(t *testing.T) {
	d := &Dispatcher{Slots: newTestTable(t)}
	sess := NewSession(1, 9, 64)
	lines := d.Dispatch(sess, ParseLine("GET 9 message"))
	require.Len(t, lines, 1)
	require.Contains(t, lines[0], "ERROR 003")
}

func TestDispatchUnknownVerb(t *testing.T) {
	d := &Dispatcher{Slots: newTestTable(t)}
	sess := NewSession(1, 9, 64)
	lines := d.Dispatch(sess, ParseLine("FROBNICATE"))
	require.Len(t, lines, 1)
	require.Contains(t, lines[0], "ERROR 001")
}

func TestDispatchCatSetsSessionStateAndComputesCompositeKey(t *testing.T) {
	tbl := newTestTable(t)
	d := &Dispatcher{Slots: tbl}
	sess := NewSession(1, 9, 64)
	lines := d.Dispatch(sess, ParseLine("CAT 0 message"))
	require.Nil(t, lines)
	require.Equal(t, StateMonitoring, sess.State)

	wantKey := slot.CompositeBroadcastKey(0, 1)
	require.Equal(t, wantKey, sess.SubscribeKey)

	_, r, ok := tbl.Slot(0).ResourceIndexByName("message")
	require.True(t, ok)
	require.Equal(t, wantKey, r.BroadcastKey)
}

func TestDispatchCatNonBroadcastableIsNotReadableError(t *testing.T) {
	d := &Dispatcher{Slots: newTestTable(t)}
	sess := NewSession(1, 9, 64)
	lines := d.Dispatch(sess, ParseLine("CAT 0 readonly"))
	require.Contains(t, lines[0], "ERROR 006")
	require.Equal(t, StateCommand, sess.State)
}

func TestDispatchStatusEmitsOneJSONLinePerSlot(t *testing.T) {
	d := &Dispatcher{Slots: newTestTable(t)}
	lines := d.Dispatch(nil, ParseLine("STATUS"))
	require.Len(t, lines, 1)
	require.Contains(t, lines[0], `"name":"dispatchdemo"`)
	require.Contains(t, lines[0], `"flags":"rwb"`)
}

func TestDispatchSetPendingReplyLeavesNoResponseLine(t *testing.T) {
	tbl := slot.NewTable(4, noopHost{})
	slot.Register("pendingdemo", func() slot.Plugin {
		return pluginFunc(func(s *slot.Slot, host slot.Host) error {
			s.Name = "pendingdemo"
			s.Resources = []slot.Resource{{
				Name:         "reg",
				Capabilities: slot.Writable,
				Set:          func(string) (string, error) { return "", ErrReplyPending },
			}}
			return nil
		})
	})
	_, err := tbl.Load("pendingdemo")
	require.NoError(t, err)

	d := &Dispatcher{Slots: tbl}
	sess := NewSession(1, 9, 64)
	lines := d.Dispatch(sess, ParseLine("SET 0 reg 1"))
	require.Empty(t, lines)
	require.Equal(t, StateAwaitingReply, sess.State)
}

func TestDispatchGetPendingReplyLeavesNoResponseLine(t *testing.T) {
	tbl := slot.NewTable(4, noopHost{})
	slot.Register("pendinggetdemo", func() slot.Plugin {
		return pluginFunc(func(s *slot.Slot, host slot.Host) error {
			s.Name = "pendinggetdemo"
			s.Resources = []slot.Resource{{
				Name:         "reg",
				Capabilities: slot.Readable,
				Get:          func() (string, error) { return "", ErrReplyPending },
			}}
			return nil
		})
	})
	_, err := tbl.Load("pendinggetdemo")
	require.NoError(t, err)

	d := &Dispatcher{Slots: tbl}
	sess := NewSession(1, 9, 64)
	lines := d.Dispatch(sess, ParseLine("GET 0 reg"))
	require.Empty(t, lines)
	require.Equal(t, StateAwaitingReply, sess.State)
}

func TestDispatchSetWhileResourceBusyIsResourceBusyError(t *testing.T) {
	tbl := slot.NewTable(4, noopHost{})
	slot.Register("busysetdemo", func() slot.Plugin {
		return pluginFunc(func(s *slot.Slot, host slot.Host) error {
			s.Name = "busysetdemo"
			s.Resources = []slot.Resource{{
				Name:         "reg",
				Capabilities: slot.Writable,
				Set:          func(string) (string, error) { return "", ErrReplyPending },
			}}
			return nil
		})
	})
	_, err := tbl.Load("busysetdemo")
	require.NoError(t, err)

	d := &Dispatcher{Slots: tbl}
	first := NewSession(1, 9, 64)
	lines := d.Dispatch(first, ParseLine("SET 0 reg 1"))
	require.Empty(t, lines)
	require.Equal(t, StateAwaitingReply, first.State)

	second := NewSession(2, 10, 64)
	lines = d.Dispatch(second, ParseLine("SET 0 reg 2"))
	require.Len(t, lines, 1)
	require.Contains(t, lines[0], "ERROR 005")
	require.Equal(t, StateCommand, second.State)
}

func TestDispatchGetWhileResourceBusyIsResourceBusyError(t *testing.T) {
	tbl := slot.NewTable(4, noopHost{})
	slot.Register("busygetdemo", func() slot.Plugin {
		return pluginFunc(func(s *slot.Slot, host slot.Host) error {
			s.Name = "busygetdemo"
			s.Resources = []slot.Resource{{
				Name:         "reg",
				Capabilities: slot.Readable | slot.Writable,
				Get:          func() (string, error) { return "", ErrReplyPending },
				Set:          func(string) (string, error) { return "", ErrReplyPending },
			}}
			return nil
		})
	})
	_, err := tbl.Load("busygetdemo")
	require.NoError(t, err)

	d := &Dispatcher{Slots: tbl}
	first := NewSession(1, 9, 64)
	lines := d.Dispatch(first, ParseLine("SET 0 reg 1"))
	require.Empty(t, lines)
	require.Equal(t, StateAwaitingReply, first.State)

	second := NewSession(2, 10, 64)
	lines = d.Dispatch(second, ParseLine("GET 0 reg"))
	require.Len(t, lines, 1)
	require.Contains(t, lines[0], "ERROR 005")
	require.Equal(t, StateCommand, second.State)
}
