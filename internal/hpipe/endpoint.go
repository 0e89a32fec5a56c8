// Package hpipe provides the local message-preserving duplex pipe
// the bridge runs over.
//
// The transport is a SOCK_SEQPACKET unix socket:
// connection-oriented, kernel-framed datagrams, local by construction.
// One send delivers exactly one message; one receive returns exactly
// one whole message or fails.
// Closing an endpoint from another goroutine aborts any in-flight
// blocking I/O on it, which is how shutdown is delivered.
package hpipe

import (
	"os"
	"path/filepath"
)

// Endpoint names one of the two well-known server endpoints.
type Endpoint uint8

const (
	// Primary is the endpoint every current client connects to.
	Primary Endpoint = iota

	// Secondary is reserved for future dual-server operation.
	// A server binds it only when configured to use the secondary endpoint.
	Secondary
)

const endpointPrefix = "com.motionreality.rendermanagerserver."

func (e Endpoint) name() string {
	if e == Secondary {
		return endpointPrefix + "secondary"
	}
	return endpointPrefix + "primary"
}

// Path returns the filesystem path of the endpoint's socket.
// An empty dir selects the OS temporary directory.
func (e Endpoint) Path(dir string) string {
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, e.name())
}

// socketBufferSize is the per-direction kernel buffer hint.
// Control messages are small; 1 KiB covers every request.
const socketBufferSize = 1024
