// Package client implements the thin TCP client the daemon's control
// protocol was designed for: dial, write one command line, stream the
// reply back to standard output until the prompt byte or EOF.
package client

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/periphd/periphd/internal/protocol"
)

// Client holds one connection to a daemon instance.
type Client struct {
	conn net.Conn
}

// Dial connects to addr:port. The connection has no read/write deadline;
// callers that need one should set it on Conn themselves.
func Dial(addr string, port int) (*Client, error) {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(addr, fmt.Sprintf("%d", port)), 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("client: dial: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Conn exposes the underlying connection, mainly so callers can set
// deadlines or wire up signal-driven cancellation on a long CAT.
func (c *Client) Conn() net.Conn { return c.conn }

// Close closes the connection.
func (c *Client) Close() error { return c.conn.Close() }

// SendCommand writes "<verb> <args...>\n", joining args with single
// spaces exactly as spec.md §4.7 requires.
func (c *Client) SendCommand(verb string, args []string) error {
	line := verb
	if len(args) > 0 {
		line = line + " " + strings.Join(args, " ")
	}
	_, err := c.conn.Write([]byte(line + "\n"))
	if err != nil {
		return fmt.Errorf("client: write command: %w", err)
	}
	return nil
}

// StreamUntilPrompt copies bytes read from the connection to w, stopping
// as soon as it observes the prompt byte or the connection closes. A
// CAT-like command never sends a prompt; StreamUntilPrompt then blocks
// until the connection is closed out from under it (by the server, or by
// the caller interrupting and closing c).
func (c *Client) StreamUntilPrompt(w io.Writer) error {
	var buf [4096]byte
	for {
		n, err := c.conn.Read(buf[:])
		if n > 0 {
			chunk := buf[:n]
			if idx := bytes.IndexByte(chunk, protocol.Prompt); idx >= 0 {
				if _, werr := w.Write(chunk[:idx]); werr != nil {
					return werr
				}
				return nil
			}
			if _, werr := w.Write(chunk); werr != nil {
				return werr
			}
		}
		if err != nil {
			if err == io.EOF || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("client: read reply: %w", err)
		}
	}
}
