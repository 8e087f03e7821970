package transport

import (
	"errors"
	"io"
	"net"
	"os"
	"syscall"
	"time"

	httperrors "github.com/nczempin/httpserver-go-uring/errors"
)

// netConn adapts a net.Conn to Conn, classifying errors into transport kinds
type netConn struct {
	conn   net.Conn
	remote string
}

func newNetConn(conn net.Conn) *netConn {
	return &netConn{conn: conn, remote: peerName(conn.RemoteAddr())}
}

func peerName(addr net.Addr) string {
	if addr == nil || addr.String() == "" {
		return "@" // unnamed unix peer
	}
	return addr.String()
}

// Read receives data from the peer
func (c *netConn) Read(buf []byte) (int, error) {
	if c.conn == nil {
		return 0, httperrors.NewTransportError(httperrors.TransportErrorSocketReadFailure, "not connected", nil)
	}

	n, err := c.conn.Read(buf)
	if err != nil {
		switch {
		case errors.Is(err, io.EOF), errors.Is(err, syscall.ECONNRESET):
			return n, httperrors.NewTransportError(httperrors.TransportErrorConnectionClosed, "connection closed by peer", err)
		case errors.Is(err, os.ErrDeadlineExceeded):
			return n, httperrors.NewTransportError(httperrors.TransportErrorTimeout, "read deadline exceeded", err)
		default:
			return n, httperrors.NewTransportError(httperrors.TransportErrorSocketReadFailure, "read failed", err)
		}
	}

	return n, nil
}

// Write sends data to the peer
func (c *netConn) Write(buf []byte) (int, error) {
	if c.conn == nil {
		return 0, httperrors.NewTransportError(httperrors.TransportErrorSocketWriteFailure, "not connected", nil)
	}

	n, err := c.conn.Write(buf)
	if err != nil {
		switch {
		case errors.Is(err, syscall.EPIPE), errors.Is(err, syscall.ECONNRESET):
			return n, httperrors.NewTransportError(httperrors.TransportErrorConnectionClosed, "connection closed during write", err)
		case errors.Is(err, os.ErrDeadlineExceeded):
			return n, httperrors.NewTransportError(httperrors.TransportErrorTimeout, "write deadline exceeded", err)
		default:
			return n, httperrors.NewTransportError(httperrors.TransportErrorSocketWriteFailure, "write failed", err)
		}
	}

	return n, nil
}

func (c *netConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *netConn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

func (c *netConn) RemoteAddr() string {
	return c.remote
}

// Close closes the connection
func (c *netConn) Close() error {
	if c.conn == nil {
		return nil // Idempotent close
	}

	err := c.conn.Close()
	c.conn = nil

	if err != nil {
		return httperrors.NewTransportError(httperrors.TransportErrorSocketCloseFailure, "close failed", err)
	}

	return nil
}
