package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nczempin/httpserver-go-uring/errors"
	"github.com/nczempin/httpserver-go-uring/protocol"
	"github.com/nczempin/httpserver-go-uring/router"
	"github.com/nczempin/httpserver-go-uring/storage"
	"github.com/nczempin/httpserver-go-uring/transport"
)

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// Server accepts connections and answers one request per connection
type Server struct {
	cfg        Config
	logger     *slog.Logger
	dispatcher *router.Dispatcher
	reader     *protocol.RequestReader
	metrics    *Metrics
	listener   transport.Listener
}

// New validates cfg and prepares a server. The /files directory, when configured,
// must already exist.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	var files router.FileStore
	if cfg.Directory != "" {
		dir, err := storage.NewDirectory(cfg.Directory)
		if err != nil {
			return nil, err
		}
		files = dir
		logger.Info("serving files", "directory", dir.Base())
	}

	return &Server{
		cfg:        cfg,
		logger:     logger,
		dispatcher: router.NewDispatcher(files, logger),
		reader:     protocol.NewRequestReader(cfg.MaxHeaderBytes, cfg.MaxBodyBytes),
		metrics:    &Metrics{},
	}, nil
}

// Listen binds the configured address
func (s *Server) Listen() error {
	l, err := transport.NewListener(s.cfg.Transport, s.cfg.Network)
	if err != nil {
		return err
	}

	if err := l.Listen(s.cfg.Addr); err != nil {
		l.Destroy()
		return err
	}

	s.listener = l
	return nil
}

// Addr returns the bound address, or "" before Listen
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr()
}

// Metrics exposes the server's counters
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// ListenAndServe binds the configured address and serves until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve runs the accept loop on the bound listener until ctx is cancelled. It then
// stops accepting, waits for in-flight connections and releases the listener.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return errors.NewTransportError(errors.TransportErrorListenerClosed, "Serve called before Listen", nil)
	}
	l := s.listener

	var wg sync.WaitGroup
	defer func() {
		wg.Wait()
		l.Destroy()
		s.logger.Info("server stopped", "addr", l.Addr())
	}()

	// Accept unblocks once the listener is closed
	stopClose := context.AfterFunc(ctx, func() {
		l.Close()
	})
	defer stopClose()

	workers := make(chan struct{}, s.cfg.MaxWorkers)
	backoff := time.Duration(0)

	s.logger.Info("server is ready to handle requests",
		"addr", l.Addr(),
		"network", s.cfg.Network,
		"transport", s.cfg.Transport,
		"workers", s.cfg.MaxWorkers,
	)

	for {
		select {
		case workers <- struct{}{}:
		case <-ctx.Done():
			return nil
		}

		conn, err := l.Accept()
		if err != nil {
			<-workers

			if errors.IsTransport(err, errors.TransportErrorListenerClosed) {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}

			s.metrics.acceptFailed()
			if backoff == 0 {
				backoff = minAcceptBackoff
			} else if backoff *= 2; backoff > maxAcceptBackoff {
				backoff = maxAcceptBackoff
			}
			s.logger.Error("accept failed", "err", err, "retry_in", backoff)

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		backoff = 0

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-workers }()
			s.serveConn(conn)
		}()
	}
}

// serveConn reads one request, answers it and closes the connection
func (s *Server) serveConn(conn transport.Conn) {
	start := time.Now()
	remote := conn.RemoteAddr()

	s.metrics.connOpened()
	defer s.metrics.connClosed()
	defer conn.Close()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("connection handler panicked", "remote", remote, "panic", r)
		}
	}()

	if s.cfg.ReadTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	}

	var (
		resp    *protocol.HttpResponse
		outcome router.Outcome
		method  string
		path    string
	)

	req, err := s.reader.ReadRequest(conn)
	conn.SetReadDeadline(time.Time{})

	switch {
	case err == nil:
		method, path = req.Method, req.Path
		resp, outcome = s.dispatcher.Dispatch(req)
	case isProtocolError(err):
		s.logger.Warn("bad request", "remote", remote, "err", err)
		resp, outcome = router.BadRequest(err)
	case errors.IsConnectionClosed(err):
		s.logger.Debug("connection closed before request", "remote", remote)
		return
	default:
		s.metrics.transportFailed()
		s.logger.Error("read failed", "remote", remote, "err", err)
		return
	}

	if s.cfg.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}

	if _, err := conn.Write(resp.Bytes()); err != nil {
		s.metrics.transportFailed()
		s.logger.Error("write failed", "remote", remote, "err", err)
		return
	}

	s.metrics.observe(outcome)
	s.logger.Info("request",
		"remote", remote,
		"method", method,
		"path", path,
		"status", resp.Status.Code,
		"outcome", outcome.String(),
		"duration", time.Since(start),
	)
}

func isProtocolError(err error) bool {
	_, ok := errors.IsProtocol(err)
	return ok
}
