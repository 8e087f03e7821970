package transport

import (
	stderrors "errors"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/nczempin/httpserver-go-uring/errors"
)

// socketFile is satisfied by *net.TCPConn and *net.UnixConn
type socketFile interface {
	File() (*os.File, error)
}

// detachSocket takes ownership of an accepted connection's descriptor away from the
// runtime poller so it can be driven through io_uring. The net.Conn is closed; the
// returned file owns the duplicated descriptor.
func detachSocket(conn net.Conn, network string) (*os.File, string, error) {
	remote := peerName(conn.RemoteAddr())
	defer conn.Close()

	sf, ok := conn.(socketFile)
	if !ok {
		return nil, remote, errors.NewTransportError(
			errors.TransportErrorSocketCreateFailure,
			"connection does not expose a file descriptor",
			nil,
		)
	}

	file, err := sf.File()
	if err != nil {
		return nil, remote, errors.NewTransportError(
			errors.TransportErrorSocketCreateFailure,
			"failed to duplicate socket descriptor",
			err,
		)
	}

	if network == "tcp" {
		// Set TCP_NODELAY
		if err := unix.SetsockoptInt(int(file.Fd()), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
			file.Close()
			return nil, remote, errors.NewTransportError(
				errors.TransportErrorSocketCreateFailure,
				"failed to set TCP_NODELAY",
				err,
			)
		}
	}

	return file, remote, nil
}

// fdDeadline emulates net.Conn deadlines for a raw descriptor: when the timer fires
// the socket is shut down in the direction the deadline guards, which completes any
// in-flight ring operation on that side. The other direction stays usable.
type fdDeadline struct {
	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	stopped bool
	expired atomic.Bool
}

func (d *fdDeadline) set(t time.Time, fd int, how int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	d.expired.Store(false)

	if t.IsZero() || d.stopped {
		return
	}

	gen := d.gen
	d.timer = time.AfterFunc(time.Until(t), func() {
		d.mu.Lock()
		defer d.mu.Unlock()

		// A later set or stop owns the descriptor's fate now
		if d.gen != gen || d.stopped {
			return
		}
		d.expired.Store(true)
		unix.Shutdown(fd, how)
	})
}

// stop disarms the deadline for good. Must be called before the descriptor is closed.
func (d *fdDeadline) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *fdDeadline) hasExpired() bool {
	return d.expired.Load()
}

// classifyRingError maps a failed ring completion to a transport error kind
func classifyRingError(err error, deadline *fdDeadline, kind errors.TransportError, message string) error {
	if deadline.hasExpired() {
		return errors.NewTransportError(errors.TransportErrorTimeout, "deadline exceeded", err)
	}
	if stderrors.Is(err, unix.EPIPE) || stderrors.Is(err, unix.ECONNRESET) {
		return errors.NewTransportError(errors.TransportErrorConnectionClosed, "connection closed by peer", err)
	}
	return errors.NewTransportError(kind, message, err)
}

// closedByPeer is returned when a ring read completes with zero bytes
func closedByPeer(deadline *fdDeadline) error {
	if deadline.hasExpired() {
		return errors.NewTransportError(errors.TransportErrorTimeout, "deadline exceeded", nil)
	}
	return errors.NewTransportError(errors.TransportErrorConnectionClosed, "connection closed by peer", nil)
}
