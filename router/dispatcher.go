package router

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/nczempin/httpserver-go-uring/errors"
	"github.com/nczempin/httpserver-go-uring/protocol"
)

// Outcome classifies how a request was answered
type Outcome int

const (
	OutcomeRootOK Outcome = iota
	OutcomeEchoOK
	OutcomeUserAgentOK
	OutcomeFileGetOK
	OutcomeFileGetNotFound
	OutcomeFilePostCreated
	OutcomeFilePostNotFound
	OutcomeNotFound
	OutcomeBadRequest
	numOutcomes
)

// Outcomes lists every outcome in declaration order
func Outcomes() []Outcome {
	all := make([]Outcome, numOutcomes)
	for i := range all {
		all[i] = Outcome(i)
	}
	return all
}

func (o Outcome) String() string {
	switch o {
	case OutcomeRootOK:
		return "root-ok"
	case OutcomeEchoOK:
		return "echo-ok"
	case OutcomeUserAgentOK:
		return "user-agent-ok"
	case OutcomeFileGetOK:
		return "file-get-ok"
	case OutcomeFileGetNotFound:
		return "file-get-not-found"
	case OutcomeFilePostCreated:
		return "file-post-created"
	case OutcomeFilePostNotFound:
		return "file-post-not-found"
	case OutcomeNotFound:
		return "not-found"
	case OutcomeBadRequest:
		return "bad-request"
	default:
		return fmt.Sprintf("outcome-%d", int(o))
	}
}

const (
	echoPrefix      = "/echo/"
	userAgentPrefix = "/user-agent"
	filesPrefix     = "/files"
	userAgentHeader = "User-Agent"
)

// FileStore is the filesystem collaborator behind /files
type FileStore interface {
	Read(name string) ([]byte, error)
	Write(name string, data []byte) error
}

// Dispatcher matches request paths against the fixed route table
type Dispatcher struct {
	files  FileStore
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher. files may be nil when no directory is
// configured; /files requests then answer 404.
func NewDispatcher(files FileStore, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		files:  files,
		logger: logger,
	}
}

// Dispatch answers a parsed request. Routes are tried in a fixed order by prefix.
func (d *Dispatcher) Dispatch(req *protocol.HttpRequest) (*protocol.HttpResponse, Outcome) {
	path := req.Path

	switch {
	case path == "/":
		return protocol.NewResponse(protocol.StatusOK), OutcomeRootOK

	case strings.HasPrefix(path, echoPrefix):
		echo := strings.TrimPrefix(path, echoPrefix)
		return protocol.NewResponseWithBody(protocol.StatusOK, protocol.ContentTypePlain, []byte(echo)), OutcomeEchoOK

	case strings.HasPrefix(path, userAgentPrefix):
		userAgent, ok := req.Headers.Get(userAgentHeader)
		if !ok {
			return BadRequest(errors.NewProtocolError(errors.ProtocolErrorMissingHeader, "User-Agent header is required"))
		}
		return protocol.NewResponseWithBody(protocol.StatusOK, protocol.ContentTypePlain, []byte(userAgent)), OutcomeUserAgentOK

	case strings.HasPrefix(path, filesPrefix):
		return d.dispatchFiles(req)

	default:
		return protocol.NewResponse(protocol.StatusNotFound), OutcomeNotFound
	}
}

func (d *Dispatcher) dispatchFiles(req *protocol.HttpRequest) (*protocol.HttpResponse, Outcome) {
	method, err := req.HttpMethod()
	if err != nil {
		return BadRequest(err)
	}

	name := req.Path[strings.LastIndex(req.Path, "/")+1:]

	notFound := OutcomeFileGetNotFound
	if method == protocol.MethodPost {
		notFound = OutcomeFilePostNotFound
	}

	if d.files == nil {
		d.logger.Warn("files route requested without a directory", "method", req.Method, "path", req.Path)
		return protocol.NewResponse(protocol.StatusNotFound), notFound
	}

	switch method {
	case protocol.MethodPost:
		if err := d.files.Write(name, req.Body); err != nil {
			d.logger.Debug("file write failed", "file", name, "err", err)
			return protocol.NewResponse(protocol.StatusNotFound), notFound
		}
		return protocol.NewResponse(protocol.StatusCreated), OutcomeFilePostCreated

	default:
		data, err := d.files.Read(name)
		if err != nil {
			d.logger.Debug("file read failed", "file", name, "err", err)
			return protocol.NewResponse(protocol.StatusNotFound), notFound
		}
		return protocol.NewResponseWithBody(protocol.StatusOK, protocol.ContentTypeOctetStream, data), OutcomeFileGetOK
	}
}

// BadRequest is the answer to a request that could not be parsed or lacks what its
// route requires
func BadRequest(err error) (*protocol.HttpResponse, Outcome) {
	body := []byte(err.Error())
	if httpErr, ok := errors.AsHttpError(err); ok && httpErr.Type == errors.ErrorProtocol {
		body = []byte(httpErr.ProtocolErr.String())
	}
	return protocol.NewResponseWithBody(protocol.StatusBadRequest, protocol.ContentTypePlain, body), OutcomeBadRequest
}
