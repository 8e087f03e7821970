package client

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/nczempin/httpserver-go-uring/errors"
)

const readChunkSize = 1024

var headEnd = []byte("\r\n\r\n")

// HttpHeader is one header line
type HttpHeader struct {
	Key   string
	Value string
}

// HttpRequest is a request to send
type HttpRequest struct {
	Method  string
	Path    string
	Headers []HttpHeader
	Body    []byte
}

// HttpResponse is a parsed response. ContentLength is -1 when the server sent none and
// the body ran until the connection closed.
type HttpResponse struct {
	StatusCode    int
	StatusMessage string
	Headers       []HttpHeader
	Body          []byte
	ContentLength int
}

// Header returns the first header named key, compared case-insensitively
func (r *HttpResponse) Header(key string) (string, bool) {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Key, key) {
			return h.Value, true
		}
	}
	return "", false
}

// HttpClient sends one request per connection, matching a server without keep-alive
type HttpClient struct {
	network string
	addr    string
	timeout time.Duration
}

// NewHttpClient creates a client for a server at addr ("tcp" host:port or "unix" path)
func NewHttpClient(network, addr string) *HttpClient {
	return &HttpClient{network: network, addr: addr, timeout: 5 * time.Second}
}

// SetTimeout bounds each exchange, dial included
func (c *HttpClient) SetTimeout(d time.Duration) {
	c.timeout = d
}

// Get performs a GET request
func (c *HttpClient) Get(path string, headers ...HttpHeader) (*HttpResponse, error) {
	return c.Do(&HttpRequest{Method: "GET", Path: path, Headers: headers})
}

// Post performs a POST request. Content-Length is added when missing.
func (c *HttpClient) Post(path string, body []byte, headers ...HttpHeader) (*HttpResponse, error) {
	req := &HttpRequest{Method: "POST", Path: path, Headers: headers, Body: body}
	if !req.hasHeader("Content-Length") {
		req.Headers = append(req.Headers, HttpHeader{Key: "Content-Length", Value: strconv.Itoa(len(body))})
	}
	return c.Do(req)
}

func (r *HttpRequest) hasHeader(key string) bool {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Key, key) {
			return true
		}
	}
	return false
}

// Do sends req and reads the response
func (c *HttpClient) Do(req *HttpRequest) (*HttpResponse, error) {
	if req.Method == "" || req.Path == "" {
		return nil, errors.NewConfigError("request needs a method and a path")
	}
	return c.SendRaw(req.encode())
}

// SendRaw writes raw as the request and parses whatever the server answers
func (c *HttpClient) SendRaw(raw []byte) (*HttpResponse, error) {
	conn, err := net.DialTimeout(c.network, c.addr, c.timeout)
	if err != nil {
		return nil, errors.NewTransportError(
			errors.TransportErrorSocketConnectFailure,
			fmt.Sprintf("dial %s %s", c.network, c.addr),
			err,
		)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(c.timeout))

	if _, err := conn.Write(raw); err != nil {
		return nil, errors.NewTransportError(errors.TransportErrorSocketWriteFailure, "sending request", err)
	}

	return readResponse(conn)
}

func (r *HttpRequest) encode() []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %s HTTP/1.1\r\n", r.Method, r.Path)
	for _, h := range r.Headers {
		fmt.Fprintf(&buf, "%s: %s\r\n", h.Key, h.Value)
	}
	buf.WriteString("\r\n")
	buf.Write(r.Body)
	return buf.Bytes()
}

// readResponse reads the head, then Content-Length body bytes, or everything up to EOF
// when the server sent no length
func readResponse(src io.Reader) (*HttpResponse, error) {
	data := make([]byte, 0, readChunkSize)
	chunk := make([]byte, readChunkSize)

	var resp *HttpResponse
	bodyStart := -1

	for {
		n, readErr := src.Read(chunk)
		data = append(data, chunk[:n]...)

		if resp == nil {
			if end := bytes.Index(data, headEnd); end >= 0 {
				head, err := parseHead(string(data[:end]))
				if err != nil {
					return nil, err
				}
				resp, bodyStart = head, end+len(headEnd)
			}
		}

		if resp != nil && resp.ContentLength >= 0 && len(data)-bodyStart >= resp.ContentLength {
			resp.Body = data[bodyStart : bodyStart+resp.ContentLength]
			return resp, nil
		}

		if readErr == nil {
			continue
		}
		if !stderrors.Is(readErr, io.EOF) {
			return nil, errors.NewTransportError(errors.TransportErrorSocketReadFailure, "reading response", readErr)
		}

		switch {
		case resp == nil:
			return nil, errors.NewProtocolError(
				errors.ProtocolErrorInvalidStatusLine,
				fmt.Sprintf("connection closed after %d bytes without a complete head", len(data)),
			)
		case resp.ContentLength >= 0:
			return nil, errors.NewProtocolError(
				errors.ProtocolErrorIncompleteResponse,
				fmt.Sprintf("got %d of %d body bytes", len(data)-bodyStart, resp.ContentLength),
			)
		default:
			resp.Body = data[bodyStart:]
			return resp, nil
		}
	}
}

// parseHead parses the status line and headers of a response
func parseHead(head string) (*HttpResponse, error) {
	lines := strings.Split(head, "\r\n")

	// "HTTP/1.1 200 OK"; the reason may be missing or contain spaces
	_, status, found := strings.Cut(lines[0], " ")
	if !found {
		return nil, errors.NewProtocolError(errors.ProtocolErrorInvalidStatusLine, fmt.Sprintf("status line %q", lines[0]))
	}
	codeText, reason, _ := strings.Cut(status, " ")
	code, err := strconv.Atoi(codeText)
	if err != nil {
		return nil, errors.NewProtocolError(errors.ProtocolErrorInvalidStatusLine, fmt.Sprintf("status code %q", codeText))
	}

	resp := &HttpResponse{StatusCode: code, StatusMessage: reason, ContentLength: -1}
	for _, line := range lines[1:] {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		resp.Headers = append(resp.Headers, HttpHeader{Key: key, Value: strings.TrimSpace(value)})
	}

	if value, ok := resp.Header("Content-Length"); ok {
		length, err := strconv.Atoi(value)
		if err != nil || length < 0 {
			return nil, errors.NewProtocolError(errors.ProtocolErrorInvalidHeader, fmt.Sprintf("Content-Length %q", value))
		}
		resp.ContentLength = length
	}

	return resp, nil
}
