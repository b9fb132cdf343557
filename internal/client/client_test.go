//go:build linux || darwin

package client

import (
	"bytes"
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/periphd/periphd/internal/config"
	"github.com/periphd/periphd/internal/protocol"
	"github.com/periphd/periphd/internal/reactor"
	"github.com/periphd/periphd/internal/slot"
)

type fakeHost struct{}

func (fakeHost) ScheduleTimer(bool, time.Duration, func()) (uint64, error) { return 0, nil }
func (fakeHost) CancelTimer(uint64)                                        {}
func (fakeHost) RegisterFD(int, bool, bool, func(bool, bool)) error        { return nil }
func (fakeHost) UnregisterFD(int) error                                    { return nil }
func (fakeHost) Broadcast(uint32, string)                                  {}
func (fakeHost) Reply(slot.PendingOwner, string)                           {}
func (fakeHost) Log(string, string, ...any)                                {}

type echoPlugin struct{ message string }

func (p *echoPlugin) Initialize(s *slot.Slot, host slot.Host) error {
	p.message = "hi"
	s.Name = "echoer"
	s.Description = "says hi"
	s.Help = "GET <slot> message"
	s.Resources = []slot.Resource{{
		Name:         "message",
		Capabilities: slot.Readable | slot.Writable | slot.Broadcastable,
		Get:          func() (string, error) { return p.message, nil },
		Set: func(operand string) (string, error) {
			p.message = operand
			return "OK", nil
		},
	}}
	return nil
}

func init() {
	slot.Register("echoer", func() slot.Plugin { return &echoPlugin{} })
}

func newTestDaemon(t *testing.T) (addr string, cleanup func()) {
	t.Helper()
	r := reactor.New()
	slots := slot.NewTable(4, fakeHost{})
	d := &protocol.Dispatcher{Slots: slots}
	cfg := config.New(config.WithBindAddress("127.0.0.1"), config.WithPort(0), config.WithMaxSessions(4))
	srv := protocol.NewServer(cfg, r, d, nil)
	require.NoError(t, srv.Listen(cfg))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx)
	}()

	a, err := srv.Addr()
	require.NoError(t, err)
	return a, func() {
		srv.Close()
		cancel()
		<-done
	}
}

func dialPort(t *testing.T, addr string) int {
	t.Helper()
	_, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return port
}

func TestDialSendCommandStreamUntilPromptRoundTrip(t *testing.T) {
	addr, cleanup := newTestDaemon(t)
	defer cleanup()
	port := dialPort(t, addr)

	c, err := Dial("127.0.0.1", port)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.SendCommand("LOADSO", []string{"echoer"}))
	var out bytes.Buffer
	require.NoError(t, c.StreamUntilPrompt(&out))
	require.Equal(t, "0\n", out.String())

	out.Reset()
	require.NoError(t, c.SendCommand("GET", []string{"0", "message"}))
	require.NoError(t, c.StreamUntilPrompt(&out))
	require.Equal(t, "hi\n", out.String())
}

func TestSendCommandJoinsArgsWithSingleSpaces(t *testing.T) {
	addr, cleanup := newTestDaemon(t)
	defer cleanup()
	port := dialPort(t, addr)

	c, err := Dial("127.0.0.1", port)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.SendCommand("LOADSO", []string{"echoer"}))
	var out bytes.Buffer
	require.NoError(t, c.StreamUntilPrompt(&out))

	require.NoError(t, c.SendCommand("SET", []string{"0", "message", "hello", "there"}))
	out.Reset()
	require.NoError(t, c.StreamUntilPrompt(&out))
	require.Equal(t, "OK\n", out.String())

	require.NoError(t, c.SendCommand("GET", []string{"0", "message"}))
	out.Reset()
	require.NoError(t, c.StreamUntilPrompt(&out))
	require.Equal(t, "hello there\n", out.String())
}

func TestStreamUntilPromptStopsOnConnectionClose(t *testing.T) {
	addr, cleanup := newTestDaemon(t)
	defer cleanup()
	port := dialPort(t, addr)

	c, err := Dial("127.0.0.1", port)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.SendCommand("LOADSO", []string{"echoer"}))
	var out bytes.Buffer
	require.NoError(t, c.StreamUntilPrompt(&out))
	out.Reset()

	require.NoError(t, c.SendCommand("CAT", []string{"0", "message"}))
	done := make(chan error, 1)
	go func() { done <- c.StreamUntilPrompt(&out) }()

	select {
	case <-done:
		t.Fatal("StreamUntilPrompt returned before the connection was closed")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, c.Close())
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("StreamUntilPrompt did not return after Close")
	}
}
