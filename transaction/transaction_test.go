package transaction

import (
	"context"
	"io"
	"net"
	"net/url"
	"strings"
	"testing"

	"github.com/corvid-labs/wireclient/cookiejar"
	"github.com/corvid-labs/wireclient/header"
	"github.com/corvid-labs/wireclient/netsock"
	"github.com/corvid-labs/wireclient/stream"
	"github.com/corvid-labs/wireclient/wireerr"
)

type fakePool struct {
	acquired []*netsock.Socket
	released []*netsock.Socket
	next     func() (*netsock.Socket, error)
}

func (p *fakePool) Acquire(ctx context.Context, key string, priority int) (*netsock.Socket, error) {
	s, err := p.next()
	if err == nil {
		p.acquired = append(p.acquired, s)
	}
	return s, err
}

func (p *fakePool) Release(key string, socket *netsock.Socket) {
	p.released = append(p.released, socket)
}

type fakeOpener struct {
	sends func(req *stream.Request) (*stream.Response, error)
}

func (o *fakeOpener) Open(ctx context.Context, key, host, port, proto string, socket *netsock.Socket) (stream.Sender, error) {
	return &fakeSender{sends: o.sends}, nil
}

type fakeSender struct {
	sends func(req *stream.Request) (*stream.Response, error)
}

func (s *fakeSender) Protocol() string { return "http/1.1" }
func (s *fakeSender) Send(ctx context.Context, req *stream.Request) (*stream.Response, error) {
	return s.sends(req)
}

func newPipeSocket(t *testing.T) *netsock.Socket {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { client.Close(); server.Close() })
	return netsock.Wrap(client, netsock.KindPlain)
}

func TestExecuteBuildsHeadersAndForwardsSetCookie(t *testing.T) {
	jar := cookiejar.New()
	_ = jar.Set("https://example.com/", "existing=1; Path=/")

	var sentReq *stream.Request
	opener := &fakeOpener{sends: func(req *stream.Request) (*stream.Response, error) {
		sentReq = req
		return &stream.Response{
			StatusCode: 200,
			Header:     map[string][]string{"Set-Cookie": {"fresh=2; Path=/"}},
			Body:       io.NopCloser(strings.NewReader("ok")),
		}, nil
	}}
	pool := &fakePool{next: func() (*netsock.Socket, error) { return newPipeSocket(t), nil }}

	tx := New(Dependencies{Pool: pool, Streams: opener, Jar: jar}, "example.com:443")
	u, _ := url.Parse("https://example.com/path")
	h := header.New(header.Pair{Name: "X-Custom", Value: "1"})

	resp, err := tx.Execute(context.Background(), &Outbound{Method: "GET", URL: u, Headers: h, ContentLength: 0})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}

	if v, ok := sentReq.Headers.Get("X-Custom"); !ok || v != "1" {
		t.Fatalf("expected caller header preserved, got %q ok=%v", v, ok)
	}
	if v, ok := sentReq.Headers.Get("Cookie"); !ok || v != "existing=1" {
		t.Fatalf("expected Cookie header from jar, got %q ok=%v", v, ok)
	}

	got, _ := jar.Get("https://example.com/", cookiejar.RequestContext{})
	names := map[string]bool{}
	for _, c := range got {
		names[c.Name] = true
	}
	if !names["fresh"] {
		t.Fatal("expected Set-Cookie from response forwarded into jar")
	}
}

func TestExecuteRetriesOnReusedSocketRetryableFailure(t *testing.T) {
	attempts := 0
	opener := &fakeOpener{sends: func(req *stream.Request) (*stream.Response, error) {
		attempts++
		if attempts == 1 {
			return nil, wireerr.New(wireerr.KindConnectionReset, "example.com", "443", nil)
		}
		return &stream.Response{StatusCode: 200, Body: io.NopCloser(strings.NewReader(""))}, nil
	}}

	first := newPipeSocket(t)
	first.MarkUsed() // simulate a reused socket from the pool
	second := newPipeSocket(t)
	calls := 0
	pool := &fakePool{next: func() (*netsock.Socket, error) {
		calls++
		if calls == 1 {
			return first, nil
		}
		return second, nil
	}}

	tx := New(Dependencies{Pool: pool, Streams: opener}, "example.com:443")
	u, _ := url.Parse("https://example.com/")

	resp, err := tx.Execute(context.Background(), &Outbound{Method: "GET", URL: u})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	if attempts != 2 {
		t.Fatalf("expected exactly one retry (2 attempts), got %d", attempts)
	}
}

func TestExecuteDoesNotRetryFreshSocketFailure(t *testing.T) {
	attempts := 0
	opener := &fakeOpener{sends: func(req *stream.Request) (*stream.Response, error) {
		attempts++
		return nil, wireerr.New(wireerr.KindConnectionReset, "example.com", "443", nil)
	}}
	pool := &fakePool{next: func() (*netsock.Socket, error) { return newPipeSocket(t), nil }} // never used -> "fresh"

	tx := New(Dependencies{Pool: pool, Streams: opener}, "example.com:443")
	u, _ := url.Parse("https://example.com/")

	_, err := tx.Execute(context.Background(), &Outbound{Method: "GET", URL: u})
	if err == nil {
		t.Fatal("expected terminal failure on a fresh socket")
	}
	if attempts != 1 {
		t.Fatalf("expected no retry for a fresh-connection failure, got %d attempts", attempts)
	}
}

func TestExecuteDoesNotRetryNonRetryableKind(t *testing.T) {
	attempts := 0
	opener := &fakeOpener{sends: func(req *stream.Request) (*stream.Response, error) {
		attempts++
		return nil, wireerr.New(wireerr.KindTLSHandshakeFailed, "example.com", "443", nil)
	}}
	s := newPipeSocket(t)
	s.MarkUsed()
	pool := &fakePool{next: func() (*netsock.Socket, error) { return s, nil }}

	tx := New(Dependencies{Pool: pool, Streams: opener}, "example.com:443")
	u, _ := url.Parse("https://example.com/")

	_, err := tx.Execute(context.Background(), &Outbound{Method: "GET", URL: u})
	if err == nil {
		t.Fatal("expected failure")
	}
	if attempts != 1 {
		t.Fatalf("expected no retry for a non-retryable kind, got %d attempts", attempts)
	}
}

func TestContentLengthMismatchTranslated(t *testing.T) {
	body := &contentLengthBody{ReadCloser: io.NopCloser(&shortReader{}), host: "example.com"}
	_, err := body.Read(make([]byte, 10))
	werr, ok := err.(*wireerr.Error)
	if !ok || werr.Kind != wireerr.KindContentLengthMismatch {
		t.Fatalf("expected ContentLengthMismatch, got %v", err)
	}
}

type shortReader struct{}

func (s *shortReader) Read(p []byte) (int, error) { return 0, io.ErrUnexpectedEOF }
