package daemon

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/periphd/periphd/internal/broadcast"
	"github.com/periphd/periphd/internal/config"
	"github.com/periphd/periphd/internal/logging"
	"github.com/periphd/periphd/internal/protocol"
	"github.com/periphd/periphd/internal/reactor"
	"github.com/periphd/periphd/internal/slot"
)

type fakeSessions struct{ sessions []*protocol.Session }

func (f *fakeSessions) Sessions() []*protocol.Session { return f.sessions }

type recordingWriter struct{ writes map[int][][]byte }

func newRecordingWriter() *recordingWriter { return &recordingWriter{writes: make(map[int][][]byte)} }

func (w *recordingWriter) Write(fd int, data []byte) error {
	w.writes[fd] = append(w.writes[fd], append([]byte(nil), data...))
	return nil
}

func TestScheduleAndCancelTimerRoundTrip(t *testing.T) {
	r := reactor.New()
	h := NewHost(r, broadcast.New(&fakeSessions{}, newRecordingWriter()), nil, slot.NewTable(1, nil), logging.NewDiscard())

	fired := false
	handle, err := h.ScheduleTimer(true, time.Hour, func() { fired = true })
	require.NoError(t, err)
	require.NotZero(t, handle)

	h.CancelTimer(handle)
	require.False(t, fired)
}

func TestRegisterFDRejectsDuplicateRegistration(t *testing.T) {
	r := reactor.New()
	h := NewHost(r, broadcast.New(&fakeSessions{}, newRecordingWriter()), nil, slot.NewTable(1, nil), logging.NewDiscard())

	require.NoError(t, h.RegisterFD(3, true, false, func(bool, bool) {}))
	require.Error(t, h.RegisterFD(3, true, false, func(bool, bool) {}))
	require.NoError(t, h.UnregisterFD(3))
	require.NoError(t, h.UnregisterFD(3)) // idempotent
}

func TestBroadcastResetsKeyWhenNoSubscriberMatches(t *testing.T) {
	w := newRecordingWriter()
	slots := slot.NewTable(2, nil)
	h := NewHost(reactor.New(), broadcast.New(&fakeSessions{}, w), nil, slots, logging.NewDiscard())

	slot.Register("daemonhosttest", func() slot.Plugin {
		return pluginFunc(func(s *slot.Slot, host slot.Host) error {
			s.Name = "daemonhosttest"
			s.Resources = []slot.Resource{{
				Name:         "value",
				Capabilities: slot.Readable | slot.Broadcastable,
				Get:          func() (string, error) { return "", nil },
			}}
			return nil
		})
	})
	// Load twice and use slot 1: slot 0 / resource 0 packs to key 0, the
	// no-subscriber value, so a reset there could not be observed.
	_, err := slots.Load("daemonhosttest")
	require.NoError(t, err)
	_, err = slots.Load("daemonhosttest")
	require.NoError(t, err)

	_, r, ok := slots.Slot(1).ResourceIndexByName("value")
	require.True(t, ok)
	r.BroadcastKey = slot.CompositeBroadcastKey(1, 0)
	require.NotEqual(t, uint32(0), r.BroadcastKey)

	h.Broadcast(r.BroadcastKey, "tick")
	require.Equal(t, uint32(0), r.BroadcastKey)
}

func TestBroadcastDeliversToMatchingSession(t *testing.T) {
	w := newRecordingWriter()
	sess := protocol.NewSession(1, 99, 64)
	sess.SubscribeKey = slot.CompositeBroadcastKey(2, 1)
	sessions := &fakeSessions{sessions: []*protocol.Session{sess}}

	slots := slot.NewTable(4, nil)
	h := NewHost(reactor.New(), broadcast.New(sessions, w), nil, slots, logging.NewDiscard())

	h.Broadcast(sess.SubscribeKey, "hello")
	require.Equal(t, [][]byte{[]byte("hello\n")}, w.writes[99])
}

func TestLogOnlyHonorsTypedFields(t *testing.T) {
	h := NewHost(reactor.New(), broadcast.New(&fakeSessions{}, newRecordingWriter()), nil, slot.NewTable(1, nil), logging.NewDiscard())
	h.Log("warn", "something happened", "not a field", logging.Str("key", "val"))
	h.Log("error", "boom")
	h.Log("debug", "trace")
	h.Log("info", "fyi")
}

type pluginFunc func(s *slot.Slot, host slot.Host) error

func (f pluginFunc) Initialize(s *slot.Slot, host slot.Host) error { return f(s, host) }

// TestHostReplyForwardsDeferredReplyToWaitingSession exercises the full
// plug-in-contract completion path this type only otherwise gets exercised
// through fpgabridge: a SET that returns protocol.ErrReplyPending leaves
// its session unprompted until something calls Host.Reply with the same
// owner, at which point the session's line and prompt finally arrive.
func TestHostReplyForwardsDeferredReplyToWaitingSession(t *testing.T) {
	r := reactor.New()
	slots := slot.NewTable(4, nil)
	dispatcher := &protocol.Dispatcher{Slots: slots}
	cfg := config.New(config.WithBindAddress("127.0.0.1"), config.WithPort(0), config.WithMaxSessions(4))
	srv := protocol.NewServer(cfg, r, dispatcher, nil)
	h := NewHost(r, broadcast.New(srv, srv), srv, slots, logging.NewDiscard())

	slot.Register("hostreplytest", func() slot.Plugin {
		return pluginFunc(func(s *slot.Slot, host slot.Host) error {
			s.Name = "hostreplytest"
			s.Resources = []slot.Resource{{
				Name:         "reg",
				Capabilities: slot.Writable,
				Set:          func(string) (string, error) { return "", protocol.ErrReplyPending },
			}}
			return nil
		})
	})
	_, err := slots.Load("hostreplytest")
	require.NoError(t, err)

	require.NoError(t, srv.Listen(cfg))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	addr, err := srv.Addr()
	require.NoError(t, err)
	conn, reader := dialAndRead(t, addr)
	defer conn.Close()

	_, err = conn.Write([]byte("SET 0 reg 1\n"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	buf := make([]byte, 16)
	_, err = conn.Read(buf)
	require.Error(t, err, "no line or prompt should arrive until Host.Reply is called")

	h.Reply(0, "OK")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.Equal(t, "OK\n", readUntilPrompt(t, reader))
}
