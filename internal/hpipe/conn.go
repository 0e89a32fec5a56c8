package hpipe

import (
	"fmt"
	"io"
	"net"
	"syscall"
)

// Conn is one end of a connected pipe.
//
// A Conn is used by a single worker goroutine;
// the only concurrent call permitted is Close,
// which aborts the worker's in-flight blocking I/O.
type Conn struct {
	uc *net.UnixConn
}

// MessageTooLargeError is returned from [Conn.Receive] when the peer's
// message did not fit the caller's buffer.
// The kernel has already discarded the tail at that point,
// so the message is unrecoverable and the session must end.
type MessageTooLargeError struct {
	Limit int
}

func (e MessageTooLargeError) Error() string {
	return fmt.Sprintf("peer message exceeds %d byte receive buffer", e.Limit)
}

func newConn(uc *net.UnixConn) *Conn {
	// Buffer sizes are a hint; failure to apply them is harmless.
	_ = uc.SetReadBuffer(socketBufferSize)
	_ = uc.SetWriteBuffer(socketBufferSize)
	return &Conn{uc: uc}
}

// Dial connects to a server endpoint.
func Dial(dir string, ep Endpoint) (*Conn, error) {
	path := ep.Path(dir)
	uc, err := net.DialUnix("unixpacket", nil, &net.UnixAddr{Name: path, Net: "unixpacket"})
	if err != nil {
		return nil, fmt.Errorf("failed to open endpoint %s: %w", path, err)
	}
	return newConn(uc), nil
}

// Send delivers b as exactly one framed message.
// A partial write is an error; the connection is unusable after one.
func (c *Conn) Send(b []byte) error {
	n, err := c.uc.Write(b)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	if n != len(b) {
		return fmt.Errorf("short send of %d/%d bytes: %w", n, len(b), io.ErrShortWrite)
	}
	return nil
}

// Receive blocks until one whole message arrives, copying it into buf
// and returning its length.
//
// A message longer than buf fails with [MessageTooLargeError].
// A peer that closed cleanly yields [io.EOF].
func (c *Conn) Receive(buf []byte) (int, error) {
	n, _, flags, _, err := c.uc.ReadMsgUnix(buf, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to receive message: %w", err)
	}
	if flags&syscall.MSG_TRUNC != 0 {
		return 0, MessageTooLargeError{Limit: len(buf)}
	}

	// The protocol has no zero-length messages,
	// so an empty read can only be the peer closing.
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Close closes the connection, unblocking any in-flight Send or Receive.
func (c *Conn) Close() error {
	return c.uc.Close()
}
