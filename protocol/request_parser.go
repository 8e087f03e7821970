package protocol

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/nczempin/httpserver-go-uring/errors"
)

var (
	sectionEnd       = []byte("\r\n\r\n")
	contentLengthKey = []byte("content-length:")
)

const newLine = "\r\n"

// ParseHeaderLines splits a raw header block into lines. Trailing NUL padding left by
// an under-filled read buffer is stripped and empty lines are dropped. The first line
// is the request line.
func ParseHeaderLines(raw []byte) ([]string, error) {
	raw = bytes.TrimRight(raw, "\x00")

	if !utf8.Valid(raw) {
		return nil, errors.NewProtocolError(
			errors.ProtocolErrorInvalidEncoding,
			"request head is not valid UTF-8",
		)
	}

	var lines []string
	for _, line := range strings.Split(string(raw), newLine) {
		if line != "" {
			lines = append(lines, line)
		}
	}

	if len(lines) == 0 {
		return nil, errors.NewProtocolError(
			errors.ProtocolErrorInvalidRequestLine,
			"empty request",
		)
	}

	return lines, nil
}

// BuildHeaderMap turns header lines (without the request line) into a lookup table.
// Each line is split once on the first colon and both halves are trimmed; a line
// without a colon becomes a key with an empty value.
func BuildHeaderMap(lines []string) HeaderMap {
	headers := make(HeaderMap, len(lines))
	for _, line := range lines {
		name, value, found := strings.Cut(line, ":")
		if !found {
			headers[line] = ""
			continue
		}
		headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	return headers
}

// ParseRequestLine extracts method, path and version from the request line.
// Tokens are separated by single spaces; the path is taken as-is.
func ParseRequestLine(line string) (method, path, version string, err error) {
	tokens := strings.Split(line, " ")
	if len(tokens) < 2 {
		return "", "", "", errors.NewProtocolError(
			errors.ProtocolErrorInvalidRequestLine,
			fmt.Sprintf("expected method and path in %q", line),
		)
	}

	if len(tokens) > 2 {
		version = tokens[2]
	}

	return tokens[0], tokens[1], version, nil
}

// ParseMethod maps a method token to one of the supported methods
func ParseMethod(token string) (HttpMethod, error) {
	switch token {
	case "GET":
		return MethodGet, nil
	case "POST":
		return MethodPost, nil
	default:
		return 0, errors.NewProtocolError(
			errors.ProtocolErrorUnsupportedMethod,
			fmt.Sprintf("unsupported method %q", token),
		)
	}
}

// ExtractBody returns everything after the first section end with trailing NUL
// padding trimmed. Requests without a section end have no body.
func ExtractBody(raw []byte) []byte {
	pos := bytes.Index(raw, sectionEnd)
	if pos < 0 {
		return nil
	}
	return bytes.TrimRight(raw[pos+len(sectionEnd):], "\x00")
}

// parseContentLength extracts Content-Length from a header block.
// Returns -1 when the header is absent. The name is matched case-insensitively here
// because it frames the message; route lookups stay exact.
func parseContentLength(headBlock []byte) (int, error) {
	lines := bytes.Split(headBlock, []byte(newLine))
	if len(lines) < 2 {
		return -1, nil
	}

	length := -1
	for _, line := range lines[1:] { // Skip request line
		if len(line) == 0 {
			break
		}

		if !bytes.HasPrefix(bytes.ToLower(line), contentLengthKey) {
			continue
		}

		valueStr := strings.TrimSpace(string(line[len(contentLengthKey):]))
		value, err := strconv.Atoi(valueStr)
		if err != nil || !isDigits(valueStr) {
			return -1, errors.NewProtocolError(
				errors.ProtocolErrorInvalidHeader,
				fmt.Sprintf("invalid Content-Length %q", valueStr),
			)
		}

		// Repeats are tolerated only when they agree
		if length >= 0 && value != length {
			return -1, errors.NewProtocolError(
				errors.ProtocolErrorInvalidHeader,
				fmt.Sprintf("conflicting Content-Length %d and %d", length, value),
			)
		}
		length = value
	}

	return length, nil
}

// isDigits reports whether s is a non-empty run of ASCII digits. strconv.Atoi alone
// would also take a sign.
func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// ParseRequest parses a complete request held in raw, which may carry trailing NUL
// padding. When Content-Length is present exactly that many body bytes are taken and
// no trimming is applied; otherwise the body is extracted with ExtractBody.
func ParseRequest(raw []byte) (*HttpRequest, error) {
	headEnd := bytes.Index(raw, sectionEnd)
	headBlock := raw
	if headEnd >= 0 {
		headBlock = raw[:headEnd]
	}

	lines, err := ParseHeaderLines(headBlock)
	if err != nil {
		return nil, err
	}

	method, path, version, err := ParseRequestLine(lines[0])
	if err != nil {
		return nil, err
	}

	req := &HttpRequest{
		Method:      method,
		Path:        path,
		Version:     version,
		HeaderLines: lines,
		Headers:     BuildHeaderMap(lines[1:]),
	}

	if headEnd < 0 {
		return req, nil
	}

	contentLength, err := parseContentLength(headBlock)
	if err != nil {
		return nil, err
	}

	if contentLength < 0 {
		req.Body = ExtractBody(raw)
		return req, nil
	}

	rest := raw[headEnd+len(sectionEnd):]
	if len(rest) < contentLength {
		return nil, errors.NewProtocolError(
			errors.ProtocolErrorIncompleteRequest,
			fmt.Sprintf("body has %d of %d bytes", len(rest), contentLength),
		)
	}
	req.Body = rest[:contentLength]

	return req, nil
}
