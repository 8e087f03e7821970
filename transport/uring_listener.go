package transport

import (
	"os"
	"sync/atomic"
	"time"

	"github.com/iceber/iouring-go"
	"golang.org/x/sys/unix"

	"github.com/nczempin/httpserver-go-uring/errors"
)

// uringEntries is the submission queue depth of the shared ring
const uringEntries = 256

// UringListener implements Listener with accepted sockets driven through one shared
// io_uring instance. Connections are accepted by the runtime and then detached.
type UringListener struct {
	streamListener
	iour *iouring.IOURing
}

// NewUringListener creates a listener backed by io_uring for async socket I/O
func NewUringListener(network string) (*UringListener, error) {
	iour, err := iouring.New(uringEntries)
	if err != nil {
		return nil, errors.NewTransportError(
			errors.TransportErrorIoUringInit,
			"failed to initialize io_uring",
			err,
		)
	}

	return &UringListener{
		streamListener: streamListener{network: network},
		iour:           iour,
	}, nil
}

// Listen binds the listener
func (l *UringListener) Listen(addr string) error {
	if l.network == "unix" {
		if err := removeStaleSocket(addr); err != nil {
			return err
		}
	}
	return l.listen(addr)
}

// Accept waits for a connection and hands its descriptor to the ring
func (l *UringListener) Accept() (Conn, error) {
	conn, err := l.acceptNet()
	if err != nil {
		return nil, err
	}

	file, remote, err := detachSocket(conn, l.network)
	if err != nil {
		return nil, err
	}

	return &uringConn{
		iour:   l.iour,
		file:   file,
		fd:     int(file.Fd()),
		remote: remote,
	}, nil
}

// Destroy cleans up resources including the io_uring instance
func (l *UringListener) Destroy() {
	l.Close()
	if l.iour != nil {
		l.iour.Close()
		l.iour = nil
	}
}

// uringConn submits Recv/Send requests for one socket to the shared ring
type uringConn struct {
	iour          *iouring.IOURing
	file          *os.File
	fd            int
	remote        string
	closed        atomic.Bool
	readDeadline  fdDeadline
	writeDeadline fdDeadline
}

// submit queues one request and waits for it. Recv and Send carry no result
// resolver, so the raw completion result is read back: a byte count, or a
// negated errno.
func (c *uringConn) submit(prep iouring.PrepRequest, op string) (int, error) {
	ch := make(chan iouring.Result, 1)
	req, err := c.iour.SubmitRequest(prep, ch)
	if err != nil {
		return 0, errors.NewTransportError(
			errors.TransportErrorIoUringSubmit,
			"failed to submit "+op+" request",
			err,
		)
	}

	<-ch
	res, err := req.GetRes()
	if err != nil {
		return 0, err
	}
	if res < 0 {
		return 0, unix.Errno(-res)
	}
	return res, nil
}

// Read receives data from the socket using io_uring
func (c *uringConn) Read(buf []byte) (int, error) {
	if c.closed.Load() {
		return 0, errors.NewTransportError(
			errors.TransportErrorConnectionClosed,
			"connection closed",
			nil,
		)
	}

	n, err := c.submit(iouring.Recv(c.fd, buf, 0), "read")
	if err != nil {
		if errors.IsTransport(err, errors.TransportErrorIoUringSubmit) {
			return 0, err
		}
		return 0, classifyRingError(err, &c.readDeadline, errors.TransportErrorSocketReadFailure, "read failed")
	}

	if n == 0 && len(buf) > 0 {
		return 0, closedByPeer(&c.readDeadline)
	}

	return n, nil
}

// Write sends all of buf using io_uring
func (c *uringConn) Write(buf []byte) (int, error) {
	if c.closed.Load() {
		return 0, errors.NewTransportError(
			errors.TransportErrorConnectionClosed,
			"connection closed",
			nil,
		)
	}

	totalWritten := 0
	for totalWritten < len(buf) {
		n, err := c.submit(iouring.Send(c.fd, buf[totalWritten:], 0), "write")
		if err != nil {
			if errors.IsTransport(err, errors.TransportErrorIoUringSubmit) {
				return totalWritten, err
			}
			return totalWritten, classifyRingError(err, &c.writeDeadline, errors.TransportErrorSocketWriteFailure, "write failed")
		}

		if n <= 0 {
			return totalWritten, closedByPeer(&c.writeDeadline)
		}

		totalWritten += n
	}

	return totalWritten, nil
}

func (c *uringConn) SetReadDeadline(t time.Time) error {
	c.readDeadline.set(t, c.fd, unix.SHUT_RD)
	return nil
}

func (c *uringConn) SetWriteDeadline(t time.Time) error {
	c.writeDeadline.set(t, c.fd, unix.SHUT_WR)
	return nil
}

func (c *uringConn) RemoteAddr() string {
	return c.remote
}

// Close closes the socket. The shared ring stays with the listener.
func (c *uringConn) Close() error {
	if c.closed.Swap(true) {
		return nil // Already closed
	}

	c.readDeadline.stop()
	c.writeDeadline.stop()

	if err := c.file.Close(); err != nil {
		return errors.NewTransportError(
			errors.TransportErrorSocketCloseFailure,
			"failed to close socket",
			err,
		)
	}

	return nil
}
