package protocol

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"

	"github.com/periphd/periphd/internal/config"
	"github.com/periphd/periphd/internal/reactor"
)

// Reactor is the minimal reactor surface Server needs: fd registration for
// the listening socket and every accepted connection. protocol is allowed
// to depend on reactor directly (reactor sits below it), so this just
// narrows *reactor.Reactor's method set rather than redeclaring its types.
type Reactor interface {
	RegisterFD(fd int, events reactor.IOEvents, readCB, writeCB reactor.Callback) error
	UnregisterFD(fd int) error
}

// Logger is the structural logging dependency the accept loop needs.
type Logger interface {
	Warn(msg string)
	Error(msg string)
}

type nopLogger struct{}

func (nopLogger) Warn(string)  {}
func (nopLogger) Error(string) {}

// Server owns the listening socket and the fixed session table, following
// the teacher's raw-fd pattern (eventloop/fd_unix.go's
// readFD/writeFD/closeFD) rather than net.Listener/net.Conn, so every
// connection is just another entry in the reactor's fd-indexed registry.
type Server struct {
	reactor    Reactor
	dispatcher *Dispatcher
	logger     Logger

	bufSize  int
	listenFD int
	sessions []*Session // fixed-size, indexed by SessionID
	readBuf  [4096]byte // shared read scratch; safe since the reactor is single-threaded
}

// NewServer constructs a Server bound to r and dispatching through d. The
// session table size and per-session buffer size come from cfg.
func NewServer(cfg *config.Config, r Reactor, d *Dispatcher, logger Logger) *Server {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Server{
		reactor:    r,
		dispatcher: d,
		logger:     logger,
		bufSize:    cfg.SessionReadBufferSize,
		listenFD:   -1,
		sessions:   make([]*Session, cfg.MaxSessions),
	}
}

// Sessions implements broadcast.SessionSource.
func (s *Server) Sessions() []*Session {
	return s.sessions
}

// Write implements broadcast.Writer.
func (s *Server) Write(fd int, data []byte) error {
	_, err := unix.Write(fd, data)
	return err
}

// Listen creates, binds and arms the listening socket, registering it
// with the reactor for read (= connection-acceptable) readiness. It does
// not block; the caller still has to run the reactor's loop.
func (s *Server) Listen(cfg *config.Config) error {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return fmt.Errorf("protocol: socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return fmt.Errorf("protocol: setsockopt: %w", err)
	}

	addr, err := sockaddr(cfg.BindAddress, cfg.Port)
	if err != nil {
		unix.Close(fd)
		return err
	}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return fmt.Errorf("protocol: bind: %w", err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		return fmt.Errorf("protocol: listen: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return fmt.Errorf("protocol: set listen fd non-blocking: %w", err)
	}

	s.listenFD = fd
	return s.reactor.RegisterFD(fd, reactor.EventRead, s.onAcceptable, nil)
}

// Addr reports the actual address the listening socket is bound to,
// resolving an ephemeral port (cfg.Port == 0) after Listen succeeds.
// Mainly useful in tests that bind to port 0.
func (s *Server) Addr() (string, error) {
	sa, err := unix.Getsockname(s.listenFD)
	if err != nil {
		return "", err
	}
	v4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return "", fmt.Errorf("protocol: unexpected sockaddr type %T", sa)
	}
	ip := net.IP(v4.Addr[:])
	return net.JoinHostPort(ip.String(), fmt.Sprintf("%d", v4.Port)), nil
}

// Close tears down the listening socket and every live session.
func (s *Server) Close() {
	if s.listenFD >= 0 {
		s.reactor.UnregisterFD(s.listenFD)
		unix.Close(s.listenFD)
		s.listenFD = -1
	}
	for i, sess := range s.sessions {
		if sess != nil {
			s.closeSession(sess)
			s.sessions[i] = nil
		}
	}
}

func sockaddr(bindAddress string, port int) (unix.Sockaddr, error) {
	ip := net.ParseIP(bindAddress)
	if bindAddress == "" || bindAddress == "0.0.0.0" {
		return &unix.SockaddrInet4{Port: port}, nil
	}
	if ip == nil {
		return nil, fmt.Errorf("protocol: invalid bind address %q", bindAddress)
	}
	v4 := ip.To4()
	if v4 == nil {
		return nil, fmt.Errorf("protocol: bind address %q is not IPv4", bindAddress)
	}
	var addr unix.SockaddrInet4
	addr.Port = port
	copy(addr.Addr[:], v4)
	return &addr, nil
}

// onAcceptable drains every connection currently queued on the listening
// socket, since edge-triggered and level-triggered pollers alike may only
// report readiness once per batch of pending connections.
func (s *Server) onAcceptable(fd int, _ reactor.IOEvents) {
	for {
		connFD, _, err := unix.Accept(fd)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			if err == unix.EINTR {
				continue
			}
			s.logger.Error("accept failed")
			return
		}
		if err := s.accept(connFD); err != nil {
			s.logger.Warn("dropping connection: " + err.Error())
			unix.Close(connFD)
		}
	}
}

func (s *Server) accept(connFD int) error {
	id := s.freeSessionSlot()
	if id < 0 {
		return fmt.Errorf("protocol: session table is full")
	}
	if err := unix.SetNonblock(connFD, true); err != nil {
		return err
	}

	sess := NewSession(SessionID(id), connFD, s.bufSize)
	s.sessions[id] = sess

	if err := s.reactor.RegisterFD(connFD, reactor.EventRead, s.onReadable, nil); err != nil {
		s.sessions[id] = nil
		return err
	}
	return nil
}

func (s *Server) freeSessionSlot() int {
	for i, sess := range s.sessions {
		if sess == nil {
			return i
		}
	}
	return -1
}

func (s *Server) onReadable(fd int, _ reactor.IOEvents) {
	sess := s.sessionByFD(fd)
	if sess == nil {
		return
	}
	if sess.State == StateAwaitingReply {
		// The session's single-reader lock is held by an outstanding
		// asynchronous GET or SET; its fd stays registered (so the reactor still
		// sees EOF/hangup) but its bytes are not consumed into the buffer
		// until the lock clears, per spec.md's awaiting-reply invariant.
		return
	}

	n, err := unix.Read(fd, s.readBuf[:])
	if n > 0 {
		lines, feedErr := sess.Feed(s.readBuf[:n])
		for _, line := range lines {
			s.runLine(sess, line)
			if sess.Closed() || sess.State == StateAwaitingReply {
				// Once a GET or SET goes async the session's lock is held; any
				// further lines already extracted from this same read are
				// dropped rather than queued, so a client must wait for
				// one reply before pipelining its next command.
				return
			}
		}
		if feedErr != nil {
			s.writeLine(sess, NewCodeError(ErrCodeInvalidValue, feedErr.Error()).Error())
			s.closeSession(sess)
			return
		}
	}
	if err != nil && err != unix.EAGAIN && err != unix.EWOULDBLOCK {
		s.closeSession(sess)
		return
	}
	if n == 0 && err == nil {
		s.closeSession(sess)
	}
}

func (s *Server) runLine(sess *Session, line string) {
	cmd := ParseLine(line)
	lines := s.dispatcher.Dispatch(sess, cmd)
	for _, l := range lines {
		s.writeLine(sess, l)
	}
	if cmd.Verb == "CAT" && lines == nil {
		// A successful CAT never prompts: the session is now monitoring,
		// not waiting on a command result. A failed CAT falls through
		// (its ERROR line is non-nil and state stayed StateCommand).
		return
	}
	if sess.State == StateCommand || sess.State == StateMonitoring {
		s.writePrompt(sess)
	}
}

func (s *Server) writeLine(sess *Session, line string) {
	s.writeAll(sess, []byte(line+"\n"))
}

func (s *Server) writePrompt(sess *Session) {
	s.writeAll(sess, []byte{Prompt})
}

// writeAll retries a short non-blocking write (n < len(buf), err == nil)
// until buf is fully written, closing the session on any actual error
// (including EAGAIN, which this server does not arm write-readiness
// polling to wait out) instead of silently dropping the remainder, per
// spec.md §5.
func (s *Server) writeAll(sess *Session, buf []byte) {
	for len(buf) > 0 {
		n, err := unix.Write(sess.FD, buf)
		if err != nil {
			s.closeSession(sess)
			return
		}
		buf = buf[n:]
	}
}

// CompleteReply delivers a deferred reply to the session that issued the
// operation which produced it, writing the reply line and releasing it
// from StateAwaitingReply back to StateCommand with its prompt. A reply
// for a session that has since disconnected or is no longer waiting is
// silently discarded, matching spec.md §7's "silently cleared... on its
// next reply attempt" watchdog-expiry language.
func (s *Server) CompleteReply(id SessionID, text string) {
	if int(id) < 0 || int(id) >= len(s.sessions) {
		return
	}
	sess := s.sessions[id]
	if sess == nil || sess.Closed() || sess.State != StateAwaitingReply {
		return
	}
	s.writeLine(sess, text)
	sess.State = StateCommand
	s.writePrompt(sess)
}

func (s *Server) sessionByFD(fd int) *Session {
	for _, sess := range s.sessions {
		if sess != nil && sess.FD == fd {
			return sess
		}
	}
	return nil
}

func (s *Server) closeSession(sess *Session) {
	if sess.Closed() {
		return
	}
	sess.Close()
	s.reactor.UnregisterFD(sess.FD)
	unix.Close(sess.FD)
	for i, cand := range s.sessions {
		if cand == sess {
			s.sessions[i] = nil
			return
		}
	}
}
