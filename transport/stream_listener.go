package transport

import (
	"errors"
	"net"

	httperrors "github.com/nczempin/httpserver-go-uring/errors"
)

// streamListener is the net.Listener plumbing shared by every Listener implementation
type streamListener struct {
	network string
	ln      net.Listener
}

func (l *streamListener) listen(addr string) error {
	if l.ln != nil {
		return httperrors.NewTransportError(
			httperrors.TransportErrorSocketBindFailure,
			"already listening",
			nil,
		)
	}

	ln, err := net.Listen(l.network, addr)
	if err != nil {
		return httperrors.NewTransportError(
			httperrors.TransportErrorSocketBindFailure,
			"failed to bind "+addr,
			err,
		)
	}

	l.ln = ln
	return nil
}

func (l *streamListener) acceptNet() (net.Conn, error) {
	if l.ln == nil {
		return nil, httperrors.NewTransportError(
			httperrors.TransportErrorListenerClosed,
			"not listening",
			nil,
		)
	}

	conn, err := l.ln.Accept()
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			return nil, httperrors.NewTransportError(
				httperrors.TransportErrorListenerClosed,
				"listener closed",
				err,
			)
		}
		return nil, httperrors.NewTransportError(
			httperrors.TransportErrorSocketAcceptFailure,
			"accept failed",
			err,
		)
	}

	return conn, nil
}

// Addr returns the bound address, or "" before Listen
func (l *streamListener) Addr() string {
	if l.ln == nil {
		return ""
	}
	return l.ln.Addr().String()
}

// Close stops accepting new connections
func (l *streamListener) Close() error {
	if l.ln == nil {
		return nil // Never listened
	}

	err := l.ln.Close()
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return httperrors.NewTransportError(
			httperrors.TransportErrorSocketCloseFailure,
			"failed to close listener",
			err,
		)
	}

	return nil
}
