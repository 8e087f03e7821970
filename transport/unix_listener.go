package transport

import (
	"errors"
	"io/fs"
	"os"

	httperrors "github.com/nczempin/httpserver-go-uring/errors"
)

// UnixListener implements Listener using Unix domain sockets
type UnixListener struct {
	streamListener
}

// NewUnixListener creates a new UnixListener instance
func NewUnixListener() *UnixListener {
	return &UnixListener{
		streamListener: streamListener{network: "unix"},
	}
}

// Listen binds the listener to a socket path, replacing a stale socket file
func (l *UnixListener) Listen(path string) error {
	if err := removeStaleSocket(path); err != nil {
		return err
	}
	return l.listen(path)
}

// Accept waits for the next Unix socket connection
func (l *UnixListener) Accept() (Conn, error) {
	conn, err := l.acceptNet()
	if err != nil {
		return nil, err
	}
	return newNetConn(conn), nil
}

// Destroy closes the listener. The socket file is unlinked by the runtime.
func (l *UnixListener) Destroy() {
	l.Close()
}

// removeStaleSocket deletes path if it is a socket left behind by a previous run
func removeStaleSocket(path string) error {
	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return httperrors.NewTransportError(httperrors.TransportErrorSocketBindFailure, "cannot stat "+path, err)
	}

	if info.Mode()&fs.ModeSocket == 0 {
		return httperrors.NewTransportError(httperrors.TransportErrorSocketBindFailure, path+" exists and is not a socket", nil)
	}

	if err := os.Remove(path); err != nil {
		return httperrors.NewTransportError(httperrors.TransportErrorSocketBindFailure, "cannot remove stale socket "+path, err)
	}

	return nil
}
