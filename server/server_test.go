package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/nczempin/httpserver-go-uring/client"
	"github.com/nczempin/httpserver-go-uring/errors"
	"github.com/nczempin/httpserver-go-uring/router"
	"github.com/nczempin/httpserver-go-uring/transport"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setupTestServer starts a server on a free loopback port with a temporary files
// directory. The returned stop func cancels Serve and waits for it to return.
func setupTestServer(t *testing.T, configure func(*Config)) (*Server, *client.HttpClient, func()) {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.Directory = t.TempDir()
	cfg.ReadTimeout = 2 * time.Second
	if configure != nil {
		configure(&cfg)
	}

	srv, err := New(cfg, discardLogger())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := srv.Listen(); err != nil {
		if errors.IsTransport(err, errors.TransportErrorIoUringInit) && os.Getenv("HTTPSERVER_REQUIRE_URING") == "" {
			t.Skipf("io_uring unavailable: %v", err)
		}
		t.Fatalf("Listen failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(ctx)
	}()

	stopped := false
	stop := func() {
		if stopped {
			return
		}
		stopped = true
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Serve returned error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Serve did not return after cancel")
		}
	}
	t.Cleanup(stop)

	return srv, client.NewHttpClient(cfg.Network, srv.Addr()), stop
}

func transportKinds() []transport.Kind {
	return []transport.Kind{transport.KindNet, transport.KindIoUring, transport.KindUring}
}

func expectStatus(t *testing.T, resp *client.HttpResponse, err error, code int) {
	t.Helper()

	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != code {
		t.Fatalf("Expected status %d, got %d %s (body %q)", code, resp.StatusCode, resp.StatusMessage, resp.Body)
	}
}

func TestServer_Routes(t *testing.T) {
	for _, kind := range transportKinds() {
		t.Run(string(kind), func(t *testing.T) {
			_, c, _ := setupTestServer(t, func(cfg *Config) { cfg.Transport = kind })

			t.Run("root", func(t *testing.T) {
				resp, err := c.Get("/")
				expectStatus(t, resp, err, 200)
				if resp.StatusMessage != "OK" || len(resp.Body) != 0 {
					t.Errorf("Expected empty 200 OK, got %q %q", resp.StatusMessage, resp.Body)
				}
			})

			t.Run("echo", func(t *testing.T) {
				for _, s := range []string{"abc", "hello-world", "", "a%20b"} {
					resp, err := c.Get("/echo/" + s)
					expectStatus(t, resp, err, 200)
					if string(resp.Body) != s {
						t.Errorf("Expected body %q, got %q", s, resp.Body)
					}
					if resp.ContentLength != len(s) {
						t.Errorf("Expected Content-Length %d, got %d", len(s), resp.ContentLength)
					}
					if value, _ := resp.Header("Content-Type"); value != "text/plain" {
						t.Errorf("Expected text/plain, got %q", value)
					}
				}
			})

			t.Run("not found", func(t *testing.T) {
				resp, err := c.Get("/does-not-exist")
				expectStatus(t, resp, err, 404)
				if resp.StatusMessage != "NOT FOUND" || len(resp.Body) != 0 {
					t.Errorf("Expected empty 404 NOT FOUND, got %q %q", resp.StatusMessage, resp.Body)
				}
			})

			t.Run("user agent", func(t *testing.T) {
				resp, err := c.Get("/user-agent", client.HttpHeader{Key: "User-Agent", Value: "foo/1.0"})
				expectStatus(t, resp, err, 200)
				if string(resp.Body) != "foo/1.0" {
					t.Errorf("Expected body %q, got %q", "foo/1.0", resp.Body)
				}
			})

			t.Run("files round trip", func(t *testing.T) {
				resp, err := c.Post("/files/test.txt", []byte("hello"))
				expectStatus(t, resp, err, 201)

				resp, err = c.Get("/files/test.txt")
				expectStatus(t, resp, err, 200)
				if string(resp.Body) != "hello" {
					t.Errorf("Expected body %q, got %q", "hello", resp.Body)
				}
				if value, _ := resp.Header("Content-Type"); value != "application/octet-stream" {
					t.Errorf("Expected application/octet-stream, got %q", value)
				}
			})

			t.Run("missing file", func(t *testing.T) {
				resp, err := c.Get("/files/missing.txt")
				expectStatus(t, resp, err, 404)
			})
		})
	}
}

func TestServer_ExactWireFormat(t *testing.T) {
	srv, _, _ := setupTestServer(t, nil)

	conn, err := net.Dial("tcp", srv.Addr())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	conn.Write([]byte("GET /echo/abc HTTP/1.1\r\n\r\n"))
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	// The server closes after one response
	raw, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}

	expected := "HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: 3\r\n\r\nabc"
	if string(raw) != expected {
		t.Errorf("Expected %q, got %q", expected, raw)
	}
}

func TestServer_BinaryRoundTrip(t *testing.T) {
	for _, kind := range transportKinds() {
		t.Run(string(kind), func(t *testing.T) {
			_, c, _ := setupTestServer(t, func(cfg *Config) { cfg.Transport = kind })

			payloads := map[string][]byte{
				"nuls.bin":     {0, 'a', 0, 'b', 0, 0},
				"invalid-utf8": {0xff, 0xfe, 0xfd},
				"large.bin":    bytes.Repeat([]byte("0123456789abcdef\x00"), 600), // spans many reads
			}

			for name, payload := range payloads {
				resp, err := c.Post("/files/"+name, payload)
				expectStatus(t, resp, err, 201)

				resp, err = c.Get("/files/" + name)
				expectStatus(t, resp, err, 200)
				if !bytes.Equal(resp.Body, payload) {
					t.Errorf("%s: round trip mismatch, sent %d bytes, got %d", name, len(payload), len(resp.Body))
				}
			}
		})
	}
}

func TestServer_PostWithoutContentLength(t *testing.T) {
	srv, c, _ := setupTestServer(t, nil)

	resp, err := c.SendRaw([]byte("POST /files/legacy.txt HTTP/1.1\r\nHost: x\r\n\r\nhello"))
	expectStatus(t, resp, err, 201)

	data, err := os.ReadFile(filepath.Join(srv.cfg.Directory, "legacy.txt"))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("Expected %q, got %q", "hello", data)
	}
}

func TestServer_BadRequests(t *testing.T) {
	_, c, _ := setupTestServer(t, func(cfg *Config) {
		cfg.MaxHeaderBytes = 256
		cfg.MaxBodyBytes = 16
	})

	tests := []struct {
		name string
		raw  string
		body string
	}{
		{"lowercase user agent header", "GET /user-agent HTTP/1.1\r\nuser-agent: foo/1.0\r\n\r\n", "missing header"},
		{"no user agent", "GET /user-agent HTTP/1.1\r\n\r\n", "missing header"},
		{"single token request line", "HELLO\r\n\r\n", "invalid request line"},
		{"invalid utf8", "GET /\xff HTTP/1.1\r\n\r\n", "invalid encoding"},
		{"unsupported method on files", "DELETE /files/a HTTP/1.1\r\n\r\n", "unsupported method"},
		{"bad content length", "POST /files/a HTTP/1.1\r\nContent-Length: nope\r\n\r\n", "invalid header"},
		{"body too large", "POST /files/a HTTP/1.1\r\nContent-Length: 17\r\n\r\n", "message too large"},
		{"head too large", "GET /" + strings.Repeat("x", 300) + " HTTP/1.1\r\n\r\n", "message too large"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := c.SendRaw([]byte(tt.raw))
			expectStatus(t, resp, err, 400)
			if string(resp.Body) != tt.body {
				t.Errorf("Expected body %q, got %q", tt.body, resp.Body)
			}
		})
	}

	// The server survives all of the above
	resp, err := c.Get("/")
	expectStatus(t, resp, err, 200)
}

func TestServer_UnixSocket(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "httpserver.sock")

	_, c, _ := setupTestServer(t, func(cfg *Config) {
		cfg.Network = "unix"
		cfg.Addr = socketPath
	})

	resp, err := c.Get("/echo/unix")
	expectStatus(t, resp, err, 200)
	if string(resp.Body) != "unix" {
		t.Errorf("Expected body %q, got %q", "unix", resp.Body)
	}
}

func TestServer_NoDirectory(t *testing.T) {
	_, c, _ := setupTestServer(t, func(cfg *Config) { cfg.Directory = "" })

	resp, err := c.Post("/files/a.txt", []byte("x"))
	expectStatus(t, resp, err, 404)

	resp, err = c.Get("/echo/still-works")
	expectStatus(t, resp, err, 200)
}

func TestServer_ReadTimeoutClosesSilentClient(t *testing.T) {
	for _, kind := range transportKinds() {
		t.Run(string(kind), func(t *testing.T) {
			srv, c, _ := setupTestServer(t, func(cfg *Config) {
				cfg.Transport = kind
				cfg.ReadTimeout = 100 * time.Millisecond
			})

			conn, err := net.Dial("tcp", srv.Addr())
			if err != nil {
				t.Fatalf("Dial failed: %v", err)
			}
			defer conn.Close()

			conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			start := time.Now()
			n, err := conn.Read(make([]byte, 64))
			if n != 0 || err == nil {
				t.Fatalf("Expected the server to close without answering, got %d bytes, err %v", n, err)
			}
			if elapsed := time.Since(start); elapsed > 3*time.Second {
				t.Errorf("Silent client held for %v", elapsed)
			}

			// A prompt client is still answered
			resp, err := c.Get("/echo/after-timeout")
			expectStatus(t, resp, err, 200)
		})
	}
}

func TestServer_WorkerLimit(t *testing.T) {
	const readTimeout = 300 * time.Millisecond

	srv, c, _ := setupTestServer(t, func(cfg *Config) {
		cfg.MaxWorkers = 1
		cfg.ReadTimeout = readTimeout
	})

	// Occupy the only worker with a client that never sends
	idle, err := net.Dial("tcp", srv.Addr())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer idle.Close()

	// Let the accept loop hand the idle connection to the worker
	deadline := time.Now().Add(2 * time.Second)
	for srv.Metrics().Snapshot().Active != 1 {
		if time.Now().After(deadline) {
			t.Fatal("Idle connection was never accepted")
		}
		time.Sleep(5 * time.Millisecond)
	}

	start := time.Now()
	resp, err := c.Get("/echo/queued")
	expectStatus(t, resp, err, 200)

	if elapsed := time.Since(start); elapsed < readTimeout/2 {
		t.Errorf("Second request served after %v, before the busy worker was released", elapsed)
	}
}

func TestServer_ConcurrentClients(t *testing.T) {
	_, c, _ := setupTestServer(t, func(cfg *Config) { cfg.MaxWorkers = 4 })

	const clients = 32
	errs := make(chan error, clients)
	for i := 0; i < clients; i++ {
		go func(i int) {
			s := strconv.Itoa(i)
			resp, err := c.Get("/echo/" + s)
			if err == nil && string(resp.Body) != s {
				err = fmt.Errorf("expected body %q, got %q", s, resp.Body)
			}
			errs <- err
		}(i)
	}

	for i := 0; i < clients; i++ {
		if err := <-errs; err != nil {
			t.Errorf("Client failed: %v", err)
		}
	}
}

func TestServer_MetricsAndShutdown(t *testing.T) {
	srv, c, stop := setupTestServer(t, nil)

	c.Get("/")
	c.Get("/echo/x")
	c.Get("/nope")
	c.SendRaw([]byte("BROKEN\r\n\r\n"))

	stop()

	snap := srv.Metrics().Snapshot()
	if snap.Accepted != 4 {
		t.Errorf("Expected 4 accepted connections, got %d", snap.Accepted)
	}
	if snap.Active != 0 {
		t.Errorf("Expected no active connections after shutdown, got %d", snap.Active)
	}
	if snap.Requests() != 4 {
		t.Errorf("Expected 4 answered requests, got %d", snap.Requests())
	}

	for outcome, expected := range map[router.Outcome]int64{
		router.OutcomeRootOK:     1,
		router.OutcomeEchoOK:     1,
		router.OutcomeNotFound:   1,
		router.OutcomeBadRequest: 1,
	} {
		if snap.Outcomes[outcome] != expected {
			t.Errorf("Expected %d %v, got %d", expected, outcome, snap.Outcomes[outcome])
		}
	}

	// Nothing listens any more
	if _, err := c.Get("/"); !errors.IsTransport(err, errors.TransportErrorSocketConnectFailure) {
		t.Errorf("Expected connect failure after shutdown, got %v", err)
	}
}

func TestServer_ServeBeforeListen(t *testing.T) {
	srv, err := New(DefaultConfig(), discardLogger())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	err = srv.Serve(context.Background())
	if !errors.IsTransport(err, errors.TransportErrorListenerClosed) {
		t.Errorf("Expected ListenerClosed, got %v", err)
	}
}

func TestNew_MissingDirectory(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Directory = filepath.Join(t.TempDir(), "nope")

	_, err := New(cfg, discardLogger())
	httpErr, ok := errors.AsHttpError(err)
	if !ok || httpErr.Type != errors.ErrorFilesystem {
		t.Errorf("Expected filesystem error, got %v", err)
	}
}
