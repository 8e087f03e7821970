package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nczempin/httpserver-go-uring/client"
	"github.com/nczempin/httpserver-go-uring/server"
	"github.com/nczempin/httpserver-go-uring/transport"
)

/*
curl -v http://127.0.0.1:4221/echo/abc
curl -v --data-binary @some.bin http://127.0.0.1:4221/files/some.bin
httpserver -d /tmp/files -transport iouring
httpserver -probe -addr 127.0.0.1:4221
*/

func main() {
	cfg := server.DefaultConfig()

	var transportKind, logLevel string
	var probe bool

	flag.StringVar(&cfg.Directory, "directory", "", "Directory served by /files.")
	flag.StringVar(&cfg.Directory, "d", "", "Shorthand for -directory.")
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "Listen address, or socket path for -network unix.")
	flag.StringVar(&cfg.Network, "network", cfg.Network, "Network to listen on: tcp or unix.")
	flag.StringVar(&transportKind, "transport", string(cfg.Transport), "Connection I/O: net, iouring or uring.")
	flag.IntVar(&cfg.MaxWorkers, "workers", cfg.MaxWorkers, "Maximum connections served at once.")
	flag.DurationVar(&cfg.ReadTimeout, "read-timeout", cfg.ReadTimeout, "Deadline for reading a request, 0 disables it.")
	flag.DurationVar(&cfg.WriteTimeout, "write-timeout", cfg.WriteTimeout, "Deadline for writing a response, 0 disables it.")
	flag.IntVar(&cfg.MaxHeaderBytes, "max-header-bytes", cfg.MaxHeaderBytes, "Largest accepted request head.")
	flag.IntVar(&cfg.MaxBodyBytes, "max-body-bytes", cfg.MaxBodyBytes, "Largest accepted request body.")
	flag.StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error.")
	flag.BoolVar(&probe, "probe", false, "Check that a server answers at -addr and exit.")
	flag.Parse()

	cfg.Transport = transport.Kind(transportKind)

	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "invalid -log-level %q\n", logLevel)
		os.Exit(2)
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	if probe {
		if err := runProbe(cfg, logger); err != nil {
			logger.Error("probe failed", "addr", cfg.Addr, "err", err)
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("server is starting", "addr", cfg.Addr)
	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	err = srv.ListenAndServe(ctx)

	snap := srv.Metrics().Snapshot()
	logger.Info("served",
		"connections", snap.Accepted,
		"requests", snap.Requests(),
		"accept_errors", snap.AcceptErrors,
		"transport_errors", snap.TransportErrors,
	)

	if err != nil {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}

// runProbe sends GET / and expects 200
func runProbe(cfg server.Config, logger *slog.Logger) error {
	resp, err := client.NewHttpClient(cfg.Network, cfg.Addr).Get("/")
	if err != nil {
		return err
	}
	if resp.StatusCode != 200 {
		return fmt.Errorf("unexpected status %d %s", resp.StatusCode, resp.StatusMessage)
	}
	logger.Info("probe ok", "addr", cfg.Addr, "status", resp.StatusCode)
	return nil
}
