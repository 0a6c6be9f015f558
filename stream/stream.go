// Package stream wraps a connected socket into a protocol-specific sender:
// HTTP/1.1 over a single exclusive connection, or a shared HTTP/2 session
// multiplexed by endpoint key. ALPN decides which; the pool never has to
// know the difference.
package stream

import (
	"context"
	"io"

	"github.com/corvid-labs/wireclient/header"
)

// Request is one outbound HTTP request, with its header order already
// decided by the caller (the transaction layer sends user headers, then the
// jar's Cookie, then profile defaults such as Accept-Encoding and UA).
type Request struct {
	Method        string
	Path          string // request-target, e.g. "/a/b?x=1"
	Authority     string // Host header / :authority
	Scheme        string
	Headers       *header.Header
	Body          io.ReadCloser
	ContentLength int64 // -1 means unknown/chunked
}

// Response is the HTTP response, with headers in whatever order the peer
// sent them (response header order isn't a fingerprinting surface).
type Response struct {
	StatusCode int
	Header     map[string][]string
	Body       io.ReadCloser
	Proto      string // "HTTP/1.1" or "HTTP/2.0"
}

// Sender sends one request over an already-established connection.
type Sender interface {
	Send(ctx context.Context, req *Request) (*Response, error)

	// Protocol reports "h2" or "http/1.1", for retry/error classification.
	Protocol() string
}
