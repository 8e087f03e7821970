package protocol

import (
	"strconv"
)

// NewResponse creates a response without body or content type
func NewResponse(status Status) *HttpResponse {
	return &HttpResponse{Status: status}
}

// NewResponseWithBody creates a response carrying body as contentType
func NewResponseWithBody(status Status, contentType string, body []byte) *HttpResponse {
	return &HttpResponse{
		Status:      status,
		ContentType: contentType,
		Body:        body,
	}
}

// Bytes serializes the response, see BuildResponse
func (r *HttpResponse) Bytes() []byte {
	return BuildResponse(r.Status, r.ContentType, r.Body)
}

// BuildResponse formats a response in wire format. Every response has the same shape:
// status line, optional Content-Type, Content-Length, blank line, body.
func BuildResponse(status Status, contentType string, body []byte) []byte {
	buffer := make([]byte, 0, 64+len(contentType)+len(body))

	// Status line
	buffer = append(buffer, "HTTP/1.1 "...)
	buffer = strconv.AppendInt(buffer, int64(status.Code), 10)
	buffer = append(buffer, ' ')
	buffer = append(buffer, status.Reason...)
	buffer = append(buffer, newLine...)

	// Headers
	if contentType != "" {
		buffer = append(buffer, "Content-Type: "...)
		buffer = append(buffer, contentType...)
		buffer = append(buffer, newLine...)
	}
	buffer = append(buffer, "Content-Length: "...)
	buffer = strconv.AppendInt(buffer, int64(len(body)), 10)
	buffer = append(buffer, newLine...)

	// Blank line
	buffer = append(buffer, newLine...)

	return append(buffer, body...)
}
