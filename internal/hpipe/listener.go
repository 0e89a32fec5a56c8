package hpipe

import (
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
)

// Listener is the server end of a pipe endpoint.
// It serves one client at a time.
type Listener struct {
	ul   *net.UnixListener
	path string
}

// EndpointBusyError is returned from [Listen] when another live server
// already owns the endpoint.
type EndpointBusyError struct {
	Path string
}

func (e EndpointBusyError) Error() string {
	return "endpoint " + e.Path + " is owned by another server"
}

// Listen binds the endpoint's socket.
//
// A socket file left behind by a crashed server is cleared,
// but an endpoint with a live listener behind it
// fails with [EndpointBusyError]: the protocol is single-instance.
func Listen(dir string, ep Endpoint) (*Listener, error) {
	path := ep.Path(dir)

	ul, err := listenPacket(path)
	if err != nil && errors.Is(err, syscall.EADDRINUSE) {
		if probe, perr := net.Dial("unixpacket", path); perr == nil {
			probe.Close()
			return nil, EndpointBusyError{Path: path}
		}

		// Nothing answered, so the file is stale.
		if rerr := os.Remove(path); rerr != nil {
			return nil, fmt.Errorf("failed to clear stale endpoint %s: %w", path, rerr)
		}
		ul, err = listenPacket(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to listen on endpoint %s: %w", path, err)
	}

	return &Listener{ul: ul, path: path}, nil
}

func listenPacket(path string) (*net.UnixListener, error) {
	return net.ListenUnix("unixpacket", &net.UnixAddr{Name: path, Net: "unixpacket"})
}

// Accept blocks until a client connects.
// Closing the listener from another goroutine
// makes a blocked Accept return an error.
func (l *Listener) Accept() (*Conn, error) {
	uc, err := l.ul.AcceptUnix()
	if err != nil {
		return nil, fmt.Errorf("failed to accept on endpoint %s: %w", l.path, err)
	}
	return newConn(uc), nil
}

// Path returns the socket path the listener is bound to.
func (l *Listener) Path() string {
	return l.path
}

// Close closes the endpoint, unblocking any in-flight Accept.
// The socket file is unlinked.
func (l *Listener) Close() error {
	return l.ul.Close()
}
