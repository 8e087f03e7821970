package transport

import (
	"os"
	"time"

	"github.com/godzie44/go-uring/uring"
	"golang.org/x/sys/unix"

	"github.com/nczempin/httpserver-go-uring/errors"
)

// connRingSize is the queue depth of each per-connection ring. A connection never has
// more than one operation in flight.
const connRingSize = 4

// UringListenerV2 implements Listener using godzie44/go-uring. Rings are not safe for
// concurrent use, so every accepted connection gets its own.
type UringListenerV2 struct {
	streamListener
}

// NewUringListenerV2 creates a listener backed by io_uring (v2 using godzie44/go-uring).
// A probe ring is created up front so unsupported kernels fail here, not on first accept.
func NewUringListenerV2(network string) (*UringListenerV2, error) {
	ring, err := uring.New(connRingSize)
	if err != nil {
		return nil, errors.NewTransportError(
			errors.TransportErrorIoUringInit,
			"failed to initialize io_uring",
			err,
		)
	}
	ring.Close()

	return &UringListenerV2{
		streamListener: streamListener{network: network},
	}, nil
}

// Listen binds the listener
func (l *UringListenerV2) Listen(addr string) error {
	if l.network == "unix" {
		if err := removeStaleSocket(addr); err != nil {
			return err
		}
	}
	return l.listen(addr)
}

// Accept waits for a connection and gives it a private ring
func (l *UringListenerV2) Accept() (Conn, error) {
	conn, err := l.acceptNet()
	if err != nil {
		return nil, err
	}

	file, remote, err := detachSocket(conn, l.network)
	if err != nil {
		return nil, err
	}

	ring, err := uring.New(connRingSize)
	if err != nil {
		file.Close()
		return nil, errors.NewTransportError(
			errors.TransportErrorIoUringInit,
			"failed to initialize io_uring",
			err,
		)
	}

	return &uringConnV2{
		ring:   ring,
		file:   file,
		fd:     int(file.Fd()),
		remote: remote,
	}, nil
}

// Destroy closes the listener. Rings are released with their connections.
func (l *UringListenerV2) Destroy() {
	l.Close()
}

// uringConnV2 drives one socket through its own ring
type uringConnV2 struct {
	ring          *uring.Ring
	file          *os.File
	fd            int
	remote        string
	readDeadline  fdDeadline
	writeDeadline fdDeadline
}

// complete queues sqe, submits it and waits for its completion
func (c *uringConnV2) complete(sqe uring.Operation, deadline *fdDeadline, kind errors.TransportError, op string) (int, error) {
	if err := c.ring.QueueSQE(sqe, 0, 0); err != nil {
		return 0, errors.NewTransportError(
			errors.TransportErrorIoUringSubmit,
			"failed to queue "+op+" request",
			err,
		)
	}

	// Submit and wait
	if _, err := c.ring.Submit(); err != nil {
		return 0, errors.NewTransportError(
			errors.TransportErrorIoUringSubmit,
			"failed to submit "+op+" request",
			err,
		)
	}

	// Wait for completion
	cqe, err := c.ring.WaitCQEvents(1)
	if err != nil {
		return 0, classifyRingError(err, deadline, kind, "failed to wait for "+op+" completion")
	}

	if err := cqe.Error(); err != nil {
		c.ring.SeenCQE(cqe)
		return 0, classifyRingError(err, deadline, kind, op+" operation failed")
	}

	n := int(cqe.Res)
	c.ring.SeenCQE(cqe)
	return n, nil
}

// Read receives data from the socket using io_uring
func (c *uringConnV2) Read(buf []byte) (int, error) {
	if c.ring == nil {
		return 0, errors.NewTransportError(
			errors.TransportErrorConnectionClosed,
			"connection closed",
			nil,
		)
	}

	n, err := c.complete(uring.Read(c.file.Fd(), buf, 0), &c.readDeadline, errors.TransportErrorSocketReadFailure, "read")
	if err != nil {
		return 0, err
	}

	if n == 0 && len(buf) > 0 {
		return 0, closedByPeer(&c.readDeadline)
	}

	return n, nil
}

// Write sends all of buf using io_uring
func (c *uringConnV2) Write(buf []byte) (int, error) {
	if c.ring == nil {
		return 0, errors.NewTransportError(
			errors.TransportErrorConnectionClosed,
			"connection closed",
			nil,
		)
	}

	totalWritten := 0
	for totalWritten < len(buf) {
		n, err := c.complete(uring.Write(c.file.Fd(), buf[totalWritten:], 0), &c.writeDeadline, errors.TransportErrorSocketWriteFailure, "write")
		if err != nil {
			return totalWritten, err
		}

		if n <= 0 {
			return totalWritten, closedByPeer(&c.writeDeadline)
		}

		totalWritten += n
	}

	return totalWritten, nil
}

func (c *uringConnV2) SetReadDeadline(t time.Time) error {
	c.readDeadline.set(t, c.fd, unix.SHUT_RD)
	return nil
}

func (c *uringConnV2) SetWriteDeadline(t time.Time) error {
	c.writeDeadline.set(t, c.fd, unix.SHUT_WR)
	return nil
}

func (c *uringConnV2) RemoteAddr() string {
	return c.remote
}

// Close closes the socket and releases the connection's ring
func (c *uringConnV2) Close() error {
	if c.ring == nil {
		return nil
	}

	c.readDeadline.stop()
	c.writeDeadline.stop()

	err := c.file.Close()
	c.ring.Close()
	c.ring = nil

	if err != nil {
		return errors.NewTransportError(
			errors.TransportErrorSocketCloseFailure,
			"failed to close socket",
			err,
		)
	}

	return nil
}
