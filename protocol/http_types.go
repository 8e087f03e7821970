package protocol

import "fmt"

// HttpMethod represents the request methods the server routes on
type HttpMethod int

const (
	MethodGet HttpMethod = iota
	MethodPost
)

func (m HttpMethod) String() string {
	switch m {
	case MethodGet:
		return "GET"
	case MethodPost:
		return "POST"
	default:
		return fmt.Sprintf("HttpMethod(%d)", int(m))
	}
}

// HeaderMap maps header names to values exactly as received. Names are not case
// folded and the last occurrence of a name wins.
type HeaderMap map[string]string

// Get looks a header up by its exact name
func (h HeaderMap) Get(name string) (string, bool) {
	value, ok := h[name]
	return value, ok
}

// HttpRequest is one parsed request
type HttpRequest struct {
	// Method is the raw first token of the request line. It is only interpreted by
	// routes that branch on it, see ParseMethod.
	Method      string
	Path        string
	Version     string
	HeaderLines []string // request line first
	Headers     HeaderMap
	Body        []byte
}

// HttpMethod interprets the method token
func (r *HttpRequest) HttpMethod() (HttpMethod, error) {
	return ParseMethod(r.Method)
}

// Status is a response status line
type Status struct {
	Code   int
	Reason string
}

var (
	StatusOK         = Status{Code: 200, Reason: "OK"}
	StatusCreated    = Status{Code: 201, Reason: "Created"}
	StatusBadRequest = Status{Code: 400, Reason: "Bad Request"}
	StatusNotFound   = Status{Code: 404, Reason: "NOT FOUND"}
)

func (s Status) String() string {
	return fmt.Sprintf("%d %s", s.Code, s.Reason)
}

const (
	ContentTypePlain       = "text/plain"
	ContentTypeOctetStream = "application/octet-stream"
)

// HttpResponse is a response ready for serialization
type HttpResponse struct {
	Status      Status
	ContentType string // omitted from the wire when empty
	Body        []byte
}
