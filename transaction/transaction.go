// Package transaction implements the per-request state machine: acquire a
// socket from the pool, send one request in fingerprint order, read the
// response, forward Set-Cookie to the jar, and retry, up to three attempts
// in total, on a narrow class of reused-socket failures.
package transaction

import (
	"context"
	"io"
	"math/rand"
	"net/url"
	"strconv"
	"time"

	"github.com/corvid-labs/wireclient/cookiejar"
	"github.com/corvid-labs/wireclient/header"
	"github.com/corvid-labs/wireclient/metrics"
	"github.com/corvid-labs/wireclient/netsock"
	"github.com/corvid-labs/wireclient/profile"
	"github.com/corvid-labs/wireclient/stream"
	"github.com/corvid-labs/wireclient/wireerr"
)

const (
	maxAttempts  = 3
	backoffBase  = 100 * time.Millisecond
	backoffCap   = 5 * time.Second
	jitterFactor = 0.1
)

// SocketPool is the subset of *pool.Pool the transaction layer needs,
// narrowed to an interface so tests can substitute a fake.
type SocketPool interface {
	Acquire(ctx context.Context, key string, priority int) (*netsock.Socket, error)
	Release(key string, socket *netsock.Socket)
}

// StreamOpener is the subset of *stream.Factory the transaction layer needs.
type StreamOpener interface {
	Open(ctx context.Context, key, host, port, negotiatedProto string, socket *netsock.Socket) (stream.Sender, error)
}

// CookieJar is the subset of *cookiejar.Jar the transaction layer needs.
type CookieJar interface {
	Get(rawURL string, reqCtx cookiejar.RequestContext) ([]cookiejar.Cookie, error)
	Set(rawURL, value string) error
}

// Dependencies bundles the shared, per-Context state a Transaction consults.
type Dependencies struct {
	Pool    SocketPool
	Streams StreamOpener
	Jar     CookieJar // nil disables cookie send/forward
	Profile *profile.EmulationProfile
	Metrics *metrics.Metrics // nil disables counter updates
}

// Outbound is one request to execute, with the caller's own headers already
// in their intended order; Execute overlays Cookie/profile defaults on top.
type Outbound struct {
	Method         string
	URL            *url.URL
	Headers        *header.Header
	Body           io.ReadCloser
	ContentLength  int64 // -1 for unknown/chunked
	SiteForCookies cookiejar.RequestContext
	Priority       int
}

// Transaction executes one Outbound against a single endpoint key (the
// pool group / H2 session this request belongs to).
type Transaction struct {
	deps Dependencies
	key  string
}

// New returns a Transaction scoped to key (typically "host:port" or a
// proxy-qualified variant — the same key the pool and stream factory use).
func New(deps Dependencies, key string) *Transaction {
	return &Transaction{deps: deps, key: key}
}

// Execute runs CreateStream → SendRequest → ReadHeaders → ReadBody,
// retrying once per failure on a reused socket whose failure kind is in
// the retryable set, up to maxAttempts total tries with exponential
// backoff and jitter.
func (t *Transaction) Execute(ctx context.Context, req *Outbound) (*stream.Response, error) {
	var lastErr error
	backoff := backoffBase

	for attempt := 0; attempt < maxAttempts; attempt++ {
		socket, err := t.deps.Pool.Acquire(ctx, t.key, req.Priority)
		if err != nil {
			return nil, err
		}
		reused := socket.WasEverUsed()

		resp, err := t.attempt(ctx, socket, req)
		if err == nil {
			t.deps.Pool.Release(t.key, socket)
			return resp, nil
		}
		_ = socket.Close()

		werr, ok := err.(*wireerr.Error)
		if !ok || !reused || !wireerr.Retryable(werr.Kind) || attempt == maxAttempts-1 {
			return nil, err
		}
		lastErr = err
		if t.deps.Metrics != nil {
			t.deps.Metrics.IncrementRetries()
		}

		if err := sleepWithJitter(ctx, backoff); err != nil {
			return nil, lastErr
		}
		backoff *= 2
		if backoff > backoffCap {
			backoff = backoffCap
		}
	}
	return nil, lastErr
}

func (t *Transaction) attempt(ctx context.Context, socket *netsock.Socket, req *Outbound) (*stream.Response, error) {
	host := req.URL.Hostname()
	port := portOf(req.URL)

	sender, err := t.deps.Streams.Open(ctx, t.key, host, strconv.Itoa(port), socket.ALPN(), socket)
	if err != nil {
		return nil, err
	}

	hdrs, err := t.buildHeaders(req)
	if err != nil {
		return nil, err
	}

	sreq := &stream.Request{
		Method:        req.Method,
		Path:          req.URL.RequestURI(),
		Authority:     profile.AuthorityFor(host, port, req.URL.Scheme),
		Scheme:        req.URL.Scheme,
		Headers:       hdrs,
		Body:          req.Body,
		ContentLength: req.ContentLength,
	}

	resp, err := sender.Send(ctx, sreq)
	if err != nil {
		return nil, err
	}

	if t.deps.Jar != nil {
		for _, sc := range resp.Header["Set-Cookie"] {
			_ = t.deps.Jar.Set(req.URL.String(), sc)
		}
	}

	resp.Body = &contentLengthBody{ReadCloser: resp.Body, host: host}
	return resp, nil
}

// buildHeaders assembles the wire header order: the caller's own headers
// first, then the Cookie header the jar resolves for this URL, then every
// profile default the caller didn't already set, in the profile's order.
func (t *Transaction) buildHeaders(req *Outbound) (*header.Header, error) {
	h := header.New()
	if req.Headers != nil {
		req.Headers.Each(func(name, value string) { h.Append(name, value) })
	}

	if t.deps.Jar != nil && !h.Has("Cookie") {
		cookies, err := t.deps.Jar.Get(req.URL.String(), req.SiteForCookies)
		if err == nil && len(cookies) > 0 {
			h.Append("Cookie", joinCookies(cookies))
		}
	}

	if t.deps.Profile != nil {
		t.deps.Profile.Headers().Each(func(name, value string) {
			if !h.Has(name) {
				h.Append(name, value)
			}
		})
	}
	return h, nil
}

func joinCookies(cookies []cookiejar.Cookie) string {
	var sb []byte
	for i, c := range cookies {
		if i > 0 {
			sb = append(sb, "; "...)
		}
		sb = append(sb, c.Name...)
		sb = append(sb, '=')
		sb = append(sb, c.Value...)
	}
	return string(sb)
}

func portOf(u *url.URL) int {
	if p := u.Port(); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			return n
		}
	}
	if u.Scheme == "https" {
		return 443
	}
	return 80
}

// sleepWithJitter blocks for d ± jitterFactor, returning early with ctx's
// error if it's canceled first.
func sleepWithJitter(ctx context.Context, d time.Duration) error {
	delta := time.Duration(float64(d) * jitterFactor)
	offset := time.Duration(0)
	if delta > 0 {
		offset = time.Duration(rand.Int63n(int64(2*delta+1))) - delta
	}
	timer := time.NewTimer(d + offset)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// contentLengthBody turns the body reader's generic "connection closed
// early" error into the taxonomy's ContentLengthMismatch, so a declared
// Content-Length that the peer didn't honor surfaces as a structured error
// instead of a bare io error.
type contentLengthBody struct {
	io.ReadCloser
	host string
}

func (b *contentLengthBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if err == io.ErrUnexpectedEOF {
		return n, wireerr.New(wireerr.KindContentLengthMismatch, b.host, "", err)
	}
	return n, err
}
