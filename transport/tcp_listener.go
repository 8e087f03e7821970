package transport

import "net"

// TcpListener implements Listener using the runtime's TCP sockets
type TcpListener struct {
	streamListener
}

// NewTcpListener creates a new TcpListener instance
func NewTcpListener() *TcpListener {
	return &TcpListener{
		streamListener: streamListener{network: "tcp"},
	}
}

// Listen binds the listener to a host:port address
func (l *TcpListener) Listen(addr string) error {
	return l.listen(addr)
}

// Accept waits for the next TCP connection
func (l *TcpListener) Accept() (Conn, error) {
	conn, err := l.acceptNet()
	if err != nil {
		return nil, err
	}

	// Responses are written in one go, Nagle only adds latency
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetNoDelay(true)
	}

	return newNetConn(conn), nil
}

// Destroy closes the listener
func (l *TcpListener) Destroy() {
	l.Close()
}
