package server

import (
	"fmt"
	"time"

	"github.com/nczempin/httpserver-go-uring/errors"
	"github.com/nczempin/httpserver-go-uring/protocol"
	"github.com/nczempin/httpserver-go-uring/transport"
)

const (
	DefaultAddr         = "127.0.0.1:4221"
	DefaultMaxWorkers   = 128
	DefaultReadTimeout  = 10 * time.Second
	DefaultWriteTimeout = 10 * time.Second
)

// Config holds everything needed to run a Server
type Config struct {
	Network   string         // "tcp" or "unix"
	Addr      string         // host:port, or socket path for unix
	Transport transport.Kind // I/O engine for accepted connections

	// Directory backs the /files routes. Empty disables them.
	Directory string

	// MaxWorkers bounds concurrently served connections. The accept loop waits for a
	// free worker before accepting the next connection.
	MaxWorkers int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	MaxHeaderBytes int
	MaxBodyBytes   int
}

// DefaultConfig returns the configuration used when no flags are given
func DefaultConfig() Config {
	return Config{
		Network:        "tcp",
		Addr:           DefaultAddr,
		Transport:      transport.KindNet,
		MaxWorkers:     DefaultMaxWorkers,
		ReadTimeout:    DefaultReadTimeout,
		WriteTimeout:   DefaultWriteTimeout,
		MaxHeaderBytes: protocol.DefaultMaxHeaderBytes,
		MaxBodyBytes:   protocol.DefaultMaxBodyBytes,
	}
}

// Validate reports the first invalid setting
func (c Config) Validate() error {
	switch {
	case c.Network != "tcp" && c.Network != "unix":
		return errors.NewConfigError(fmt.Sprintf("network must be tcp or unix, got %q", c.Network))
	case c.Addr == "":
		return errors.NewConfigError("listen address is required")
	case c.Transport != transport.KindNet && c.Transport != transport.KindIoUring && c.Transport != transport.KindUring:
		return errors.NewConfigError(fmt.Sprintf("unknown transport %q", c.Transport))
	case c.MaxWorkers <= 0:
		return errors.NewConfigError(fmt.Sprintf("max workers must be positive, got %d", c.MaxWorkers))
	case c.ReadTimeout < 0 || c.WriteTimeout < 0:
		return errors.NewConfigError("timeouts must not be negative")
	case c.MaxHeaderBytes <= 0 || c.MaxBodyBytes <= 0:
		return errors.NewConfigError("size limits must be positive")
	}
	return nil
}
