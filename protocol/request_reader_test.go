package protocol

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/nczempin/httpserver-go-uring/errors"
)

// chunkedReader returns its data a few bytes per Read to exercise reassembly
type chunkedReader struct {
	data  []byte
	chunk int
	err   error // returned once data is exhausted
}

func (r *chunkedReader) Read(buf []byte) (int, error) {
	if len(r.data) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		return 0, io.EOF
	}

	n := r.chunk
	if n > len(r.data) {
		n = len(r.data)
	}
	if n > len(buf) {
		n = len(buf)
	}
	copy(buf, r.data[:n])
	r.data = r.data[n:]
	return n, nil
}

func TestRequestReader_Defaults(t *testing.T) {
	r := NewRequestReader(0, -1)
	if r.MaxHeaderBytes != DefaultMaxHeaderBytes {
		t.Errorf("Expected MaxHeaderBytes %d, got %d", DefaultMaxHeaderBytes, r.MaxHeaderBytes)
	}
	if r.MaxBodyBytes != DefaultMaxBodyBytes {
		t.Errorf("Expected MaxBodyBytes %d, got %d", DefaultMaxBodyBytes, r.MaxBodyBytes)
	}
}

func TestRequestReader_SingleRead(t *testing.T) {
	src := strings.NewReader("GET /echo/abc HTTP/1.1\r\nHost: localhost\r\n\r\n")

	req, err := NewRequestReader(0, 0).ReadRequest(src)
	if err != nil {
		t.Fatalf("ReadRequest failed: %v", err)
	}
	if req.Path != "/echo/abc" {
		t.Errorf("Expected path %q, got %q", "/echo/abc", req.Path)
	}
	if len(req.Body) != 0 {
		t.Errorf("Expected empty body, got %q", req.Body)
	}
}

func TestRequestReader_ReassemblesChunks(t *testing.T) {
	body := bytes.Repeat([]byte("0123456789"), 300) // spans several reads
	raw := "POST /files/big HTTP/1.1\r\nContent-Length: 3000\r\n\r\n" + string(body)

	src := &chunkedReader{data: []byte(raw), chunk: 7}
	req, err := NewRequestReader(0, 0).ReadRequest(src)
	if err != nil {
		t.Fatalf("ReadRequest failed: %v", err)
	}
	if !bytes.Equal(req.Body, body) {
		t.Errorf("Body mismatch: got %d bytes", len(req.Body))
	}
}

func TestRequestReader_IgnoresBytesPastContentLength(t *testing.T) {
	src := strings.NewReader("POST /files/a HTTP/1.1\r\nContent-Length: 3\r\n\r\nabcdef")

	req, err := NewRequestReader(0, 0).ReadRequest(src)
	if err != nil {
		t.Fatalf("ReadRequest failed: %v", err)
	}
	if string(req.Body) != "abc" {
		t.Errorf("Expected body %q, got %q", "abc", req.Body)
	}
}

func TestRequestReader_BodyWithNULs(t *testing.T) {
	body := []byte{0, 'x', 0, 0}
	raw := append([]byte("POST /files/nul HTTP/1.1\r\nContent-Length: 4\r\n\r\n"), body...)

	req, err := NewRequestReader(0, 0).ReadRequest(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("ReadRequest failed: %v", err)
	}
	if !bytes.Equal(req.Body, body) {
		t.Errorf("Expected body %q, got %q", body, req.Body)
	}
}

func TestRequestReader_ClosedBeforeAnything(t *testing.T) {
	closed := errors.NewTransportError(errors.TransportErrorConnectionClosed, "connection closed by peer", nil)
	src := &chunkedReader{err: closed}

	_, err := NewRequestReader(0, 0).ReadRequest(src)
	if !errors.IsConnectionClosed(err) {
		t.Errorf("Expected ConnectionClosed, got %v", err)
	}
	if _, ok := errors.IsProtocol(err); ok {
		t.Error("An idle close must not be reported as a protocol error")
	}
}

func TestRequestReader_Errors(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		header int
		body   int
		kind   errors.ProtocolError
	}{
		{"head without end", "GET / HTTP/1.1\r\nHost: x\r\n", 0, 0, errors.ProtocolErrorIncompleteRequest},
		{"head too large", "GET /" + strings.Repeat("a", 200) + " HTTP/1.1\r\n\r\n", 64, 0, errors.ProtocolErrorMessageTooLarge},
		{"body too large", "POST /files/a HTTP/1.1\r\nContent-Length: 100\r\n\r\n", 0, 10, errors.ProtocolErrorMessageTooLarge},
		{"truncated body", "POST /files/a HTTP/1.1\r\nContent-Length: 100\r\n\r\nabc", 0, 0, errors.ProtocolErrorIncompleteRequest},
		{"bad content length", "POST /files/a HTTP/1.1\r\nContent-Length: x\r\n\r\n", 0, 0, errors.ProtocolErrorInvalidHeader},
		{"bad request line", "BROKEN\r\n\r\n", 0, 0, errors.ProtocolErrorInvalidRequestLine},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &chunkedReader{data: []byte(tt.raw), chunk: 16}
			_, err := NewRequestReader(tt.header, tt.body).ReadRequest(src)
			expectProtocolError(t, err, tt.kind)
		})
	}
}
