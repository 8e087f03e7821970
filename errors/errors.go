package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents the category of error
type ErrorType int

const (
	ErrorNone ErrorType = iota
	ErrorTransport
	ErrorProtocol
	ErrorFilesystem
	ErrorConfig
)

func (t ErrorType) String() string {
	switch t {
	case ErrorNone:
		return "none"
	case ErrorTransport:
		return "transport"
	case ErrorProtocol:
		return "protocol"
	case ErrorFilesystem:
		return "filesystem"
	case ErrorConfig:
		return "config"
	default:
		return fmt.Sprintf("error type %d", int(t))
	}
}

// TransportError represents transport-layer specific errors
type TransportError int

const (
	TransportErrorNone TransportError = iota
	TransportErrorSocketCreateFailure
	TransportErrorSocketBindFailure
	TransportErrorSocketConnectFailure
	TransportErrorSocketAcceptFailure
	TransportErrorSocketReadFailure
	TransportErrorSocketWriteFailure
	TransportErrorConnectionClosed
	TransportErrorSocketCloseFailure
	TransportErrorListenerClosed
	TransportErrorTimeout
	TransportErrorIoUringInit
	TransportErrorIoUringSubmit
)

func (e TransportError) String() string {
	switch e {
	case TransportErrorNone:
		return "none"
	case TransportErrorSocketCreateFailure:
		return "socket create failed"
	case TransportErrorSocketBindFailure:
		return "socket bind failed"
	case TransportErrorSocketConnectFailure:
		return "socket connect failed"
	case TransportErrorSocketAcceptFailure:
		return "socket accept failed"
	case TransportErrorSocketReadFailure:
		return "socket read failed"
	case TransportErrorSocketWriteFailure:
		return "socket write failed"
	case TransportErrorConnectionClosed:
		return "connection closed"
	case TransportErrorSocketCloseFailure:
		return "socket close failed"
	case TransportErrorListenerClosed:
		return "listener closed"
	case TransportErrorTimeout:
		return "timeout"
	case TransportErrorIoUringInit:
		return "io_uring init failed"
	case TransportErrorIoUringSubmit:
		return "io_uring submit failed"
	default:
		return fmt.Sprintf("transport error %d", int(e))
	}
}

// ProtocolError represents message parsing errors
type ProtocolError int

const (
	ProtocolErrorNone ProtocolError = iota
	ProtocolErrorInvalidEncoding
	ProtocolErrorInvalidRequestLine
	ProtocolErrorUnsupportedMethod
	ProtocolErrorMissingHeader
	ProtocolErrorInvalidHeader
	ProtocolErrorMessageTooLarge
	ProtocolErrorIncompleteRequest
	ProtocolErrorInvalidStatusLine
	ProtocolErrorIncompleteResponse
)

func (e ProtocolError) String() string {
	switch e {
	case ProtocolErrorNone:
		return "none"
	case ProtocolErrorInvalidEncoding:
		return "invalid encoding"
	case ProtocolErrorInvalidRequestLine:
		return "invalid request line"
	case ProtocolErrorUnsupportedMethod:
		return "unsupported method"
	case ProtocolErrorMissingHeader:
		return "missing header"
	case ProtocolErrorInvalidHeader:
		return "invalid header"
	case ProtocolErrorMessageTooLarge:
		return "message too large"
	case ProtocolErrorIncompleteRequest:
		return "incomplete request"
	case ProtocolErrorInvalidStatusLine:
		return "invalid status line"
	case ProtocolErrorIncompleteResponse:
		return "incomplete response"
	default:
		return fmt.Sprintf("protocol error %d", int(e))
	}
}

// FilesystemError represents failures of the file store behind /files
type FilesystemError int

const (
	FilesystemErrorNone FilesystemError = iota
	FilesystemErrorNotConfigured
	FilesystemErrorInvalidPath
	FilesystemErrorReadFailure
	FilesystemErrorWriteFailure
)

func (e FilesystemError) String() string {
	switch e {
	case FilesystemErrorNone:
		return "none"
	case FilesystemErrorNotConfigured:
		return "no directory configured"
	case FilesystemErrorInvalidPath:
		return "invalid path"
	case FilesystemErrorReadFailure:
		return "read failed"
	case FilesystemErrorWriteFailure:
		return "write failed"
	default:
		return fmt.Sprintf("filesystem error %d", int(e))
	}
}

// HttpError is the main error type for the server
type HttpError struct {
	Type          ErrorType
	TransportErr  TransportError
	ProtocolErr   ProtocolError
	FilesystemErr FilesystemError
	Message       string
	UnderlyingErr error
}

// Error implements the error interface
func (e *HttpError) Error() string {
	if e == nil {
		return "no error"
	}

	var typeStr string
	switch e.Type {
	case ErrorTransport:
		typeStr = fmt.Sprintf("Transport error (%s)", e.TransportErr)
	case ErrorProtocol:
		typeStr = fmt.Sprintf("Protocol error (%s)", e.ProtocolErr)
	case ErrorFilesystem:
		typeStr = fmt.Sprintf("Filesystem error (%s)", e.FilesystemErr)
	case ErrorConfig:
		typeStr = "Config error"
	default:
		typeStr = "Unknown error"
	}

	if e.Message != "" {
		typeStr = fmt.Sprintf("%s: %s", typeStr, e.Message)
	}

	if e.UnderlyingErr != nil {
		return fmt.Sprintf("%s (caused by: %v)", typeStr, e.UnderlyingErr)
	}

	return typeStr
}

// Unwrap returns the underlying error for error chain support
func (e *HttpError) Unwrap() error {
	return e.UnderlyingErr
}

// NewTransportError creates a new transport error
func NewTransportError(err TransportError, message string, underlying error) *HttpError {
	return &HttpError{
		Type:          ErrorTransport,
		TransportErr:  err,
		Message:       message,
		UnderlyingErr: underlying,
	}
}

// NewProtocolError creates a new protocol error
func NewProtocolError(err ProtocolError, message string) *HttpError {
	return &HttpError{
		Type:        ErrorProtocol,
		ProtocolErr: err,
		Message:     message,
	}
}

// NewFilesystemError creates a new filesystem error
func NewFilesystemError(err FilesystemError, message string, underlying error) *HttpError {
	return &HttpError{
		Type:          ErrorFilesystem,
		FilesystemErr: err,
		Message:       message,
		UnderlyingErr: underlying,
	}
}

// NewConfigError creates a new configuration error
func NewConfigError(message string) *HttpError {
	return &HttpError{
		Type:    ErrorConfig,
		Message: message,
	}
}

// AsHttpError finds the first *HttpError in err's chain.
func AsHttpError(err error) (*HttpError, bool) {
	var httpErr *HttpError
	if stderrors.As(err, &httpErr) {
		return httpErr, true
	}
	return nil, false
}

// IsProtocol reports whether err is a protocol error and returns its kind.
func IsProtocol(err error) (ProtocolError, bool) {
	httpErr, ok := AsHttpError(err)
	if !ok || httpErr.Type != ErrorProtocol {
		return ProtocolErrorNone, false
	}
	return httpErr.ProtocolErr, true
}

// IsTransport reports whether err is a transport error of the given kind.
func IsTransport(err error, kind TransportError) bool {
	httpErr, ok := AsHttpError(err)
	return ok && httpErr.Type == ErrorTransport && httpErr.TransportErr == kind
}

// IsConnectionClosed reports whether the peer went away.
func IsConnectionClosed(err error) bool {
	return IsTransport(err, TransportErrorConnectionClosed)
}
