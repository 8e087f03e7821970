package transport

import (
	"fmt"
	"time"

	"github.com/nczempin/httpserver-go-uring/errors"
)

// Conn is an accepted connection the server reads one request from and writes one response to
type Conn interface {
	// Read receives data from the peer
	// Returns the number of bytes read
	Read(buf []byte) (int, error)

	// Write sends all of buf to the peer
	// Returns the number of bytes written
	Write(buf []byte) (int, error)

	// SetReadDeadline bounds pending and future reads. A zero time clears it.
	SetReadDeadline(t time.Time) error

	// SetWriteDeadline bounds pending and future writes. A zero time clears it.
	SetWriteDeadline(t time.Time) error

	// RemoteAddr returns the peer address for logging
	RemoteAddr() string

	// Close closes the connection
	Close() error
}

// Listener defines the interface for accepting connections
type Listener interface {
	// Listen binds to addr. For Unix sockets addr is the socket path.
	Listen(addr string) error

	// Accept blocks until a connection arrives.
	// Returns a TransportErrorListenerClosed error once Close has been called.
	Accept() (Conn, error)

	// Addr returns the bound address
	Addr() string

	// Close stops accepting. Already accepted connections stay usable.
	Close() error

	// Destroy releases everything, including io_uring instances.
	// Call it after every accepted connection has been closed.
	Destroy()
}

// Kind selects the I/O engine behind a Listener
type Kind string

const (
	KindNet     Kind = "net"
	KindIoUring Kind = "iouring"
	KindUring   Kind = "uring"
)

// NewListener creates a listener of the given kind for network "tcp" or "unix"
func NewListener(kind Kind, network string) (Listener, error) {
	if network != "tcp" && network != "unix" {
		return nil, errors.NewConfigError(fmt.Sprintf("unsupported network %q", network))
	}

	switch kind {
	case KindNet:
		if network == "unix" {
			return NewUnixListener(), nil
		}
		return NewTcpListener(), nil
	case KindIoUring:
		return NewUringListener(network)
	case KindUring:
		return NewUringListenerV2(network)
	default:
		return nil, errors.NewConfigError(fmt.Sprintf("unsupported transport %q", kind))
	}
}
