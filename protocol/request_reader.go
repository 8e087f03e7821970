package protocol

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"

	"github.com/nczempin/httpserver-go-uring/errors"
)

// ReadChunkSize is the size of each socket read
const ReadChunkSize = 1024

const (
	DefaultMaxHeaderBytes = 8 << 10
	DefaultMaxBodyBytes   = 1 << 20
)

// RequestReader frames one request off a connection: it reads until the section end,
// then reads Content-Length body bytes, enforcing size limits on both.
type RequestReader struct {
	MaxHeaderBytes int
	MaxBodyBytes   int
}

// NewRequestReader creates a reader with the given limits. Non-positive limits fall
// back to the defaults.
func NewRequestReader(maxHeaderBytes, maxBodyBytes int) *RequestReader {
	if maxHeaderBytes <= 0 {
		maxHeaderBytes = DefaultMaxHeaderBytes
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &RequestReader{
		MaxHeaderBytes: maxHeaderBytes,
		MaxBodyBytes:   maxBodyBytes,
	}
}

func isPeerClosed(err error) bool {
	return stderrors.Is(err, io.EOF) || errors.IsConnectionClosed(err)
}

// ReadRequest reads and parses one request from src.
// A peer that closes before sending anything yields its closed error unchanged so the
// caller can drop the connection silently; every malformed request is a protocol error.
func (r *RequestReader) ReadRequest(src io.Reader) (*HttpRequest, error) {
	buffer := make([]byte, 0, ReadChunkSize)
	readBuf := make([]byte, ReadChunkSize)

	headerSize := 0
	for headerSize == 0 {
		n, err := src.Read(readBuf)
		buffer = append(buffer, readBuf[:n]...)

		// Look for header separator
		if pos := bytes.Index(buffer, sectionEnd); pos >= 0 {
			headerSize = pos + len(sectionEnd)
			break
		}

		if len(buffer) > r.MaxHeaderBytes {
			return nil, errors.NewProtocolError(
				errors.ProtocolErrorMessageTooLarge,
				fmt.Sprintf("request head exceeds %d bytes", r.MaxHeaderBytes),
			)
		}

		if err != nil {
			if isPeerClosed(err) && len(buffer) > 0 {
				return nil, errors.NewProtocolError(
					errors.ProtocolErrorIncompleteRequest,
					"connection closed before end of request head",
				)
			}
			return nil, err
		}
	}

	if headerSize-len(sectionEnd) > r.MaxHeaderBytes {
		return nil, errors.NewProtocolError(
			errors.ProtocolErrorMessageTooLarge,
			fmt.Sprintf("request head exceeds %d bytes", r.MaxHeaderBytes),
		)
	}

	contentLength, err := parseContentLength(buffer[:headerSize-len(sectionEnd)])
	if err != nil {
		return nil, err
	}

	if contentLength < 0 {
		// No framing information: the body is whatever arrived with the head
		return ParseRequest(buffer)
	}

	if contentLength > r.MaxBodyBytes {
		return nil, errors.NewProtocolError(
			errors.ProtocolErrorMessageTooLarge,
			fmt.Sprintf("body of %d bytes exceeds %d", contentLength, r.MaxBodyBytes),
		)
	}

	total := headerSize + contentLength
	for len(buffer) < total {
		n, err := src.Read(readBuf)
		buffer = append(buffer, readBuf[:n]...)
		if len(buffer) >= total {
			break
		}

		if err != nil {
			if isPeerClosed(err) {
				return nil, errors.NewProtocolError(
					errors.ProtocolErrorIncompleteRequest,
					fmt.Sprintf("connection closed after %d of %d body bytes", len(buffer)-headerSize, contentLength),
				)
			}
			return nil, err
		}
	}

	return ParseRequest(buffer[:total])
}
