package stream

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/net/http2"

	"github.com/corvid-labs/wireclient/header"
	"github.com/corvid-labs/wireclient/netsock"
	"github.com/corvid-labs/wireclient/wireerr"
)

// H2Settings carries the profile-driven HTTP/2 settings, generalized from a
// single hardcoded browser version into whatever the active emulation
// profile specifies. NewFactory applies HeaderTableSize and
// MaxHeaderListSize; InitialWindowSize and ConnWindowSize are carried but
// not applied to the session.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc7540#section-6.5
type H2Settings struct {
	HeaderTableSize   uint32
	InitialWindowSize uint32
	ConnWindowSize    uint32
	MaxHeaderListSize uint32
}

// DefaultH2Settings mirrors a real Chrome 120 client, captured the same way
// the teacher's h2_transport.go documents its constants.
var DefaultH2Settings = H2Settings{
	HeaderTableSize:   65536,
	InitialWindowSize: 6291456,
	ConnWindowSize:    15663105,
	MaxHeaderListSize: 262144,
}

// Factory hands out Senders for pool sockets, caching one HTTP/2 session
// per endpoint key so every request to the same origin multiplexes onto it
// until the peer closes it or sends GOAWAY — the pool still counts that
// session as a single occupied slot regardless of how many streams ride it.
type Factory struct {
	settings H2Settings

	mu       sync.Mutex
	sessions map[string]*http2.ClientConn
	h2t      *http2.Transport
}

// NewFactory returns a Factory whose HTTP/2 sessions use settings' header
// table size and max header-list size; the two window sizes in settings are
// not used.
func NewFactory(settings H2Settings) *Factory {
	return &Factory{
		settings: settings,
		sessions: make(map[string]*http2.ClientConn),
		h2t: &http2.Transport{
			MaxDecoderHeaderTableSize: settings.HeaderTableSize,
			MaxEncoderHeaderTableSize: settings.HeaderTableSize,
			MaxHeaderListSize:         settings.MaxHeaderListSize,
			DisableCompression:        false,
		},
	}
}

// Open returns a Sender for socket, dispatching on negotiatedProto ("h2" or
// anything else, treated as HTTP/1.1). key identifies the origin for H/2
// session reuse; host/port feed error context for the HTTP/1.1 path.
func (f *Factory) Open(ctx context.Context, key, host, port, negotiatedProto string, socket *netsock.Socket) (Sender, error) {
	if negotiatedProto != "h2" {
		return newH1Sender(socket, host, port), nil
	}

	f.mu.Lock()
	if cc, ok := f.sessions[key]; ok && cc.CanTakeNewRequest() {
		f.mu.Unlock()
		return &h2Sender{cc: cc}, nil
	}
	f.mu.Unlock()

	cc, err := f.h2t.NewClientConn(socket)
	if err != nil {
		return nil, wireerr.New(wireerr.KindHTTP2ProtocolError, host, port, err).WithOp("h2-session-init")
	}

	f.mu.Lock()
	f.sessions[key] = cc
	f.mu.Unlock()

	return &h2Sender{cc: cc}, nil
}

// Evict drops a dead or GOAWAY'd session so the next Open dials fresh.
func (f *Factory) Evict(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, key)
}

// ActiveStreams reports whether key currently has a reusable H/2 session,
// for the pool's "treat an H/2 session as one occupied slot" accounting.
func (f *Factory) ActiveStreams(key string) (active bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cc, ok := f.sessions[key]
	return ok && cc.CanTakeNewRequest()
}

type h2Sender struct {
	cc *http2.ClientConn
}

func (s *h2Sender) Protocol() string { return "h2" }

func (s *h2Sender) Send(ctx context.Context, req *Request) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, fmt.Sprintf("%s://%s%s", req.Scheme, req.Authority, req.Path), req.Body)
	if err != nil {
		return nil, err
	}
	httpReq.ContentLength = req.ContentLength

	// The pseudo-header order (:method, :authority, :scheme, :path) that a
	// real browser sends is not configurable through golang.org/x/net/http2's
	// public API; ClientConn always writes them in its own fixed order. Full
	// wire fidelity there would need a patched http2 package, a limitation
	// the teacher's h2_transport.go documents rather than working around.
	httpReq.Header = make(http.Header)
	req.Headers.Each(func(name, value string) {
		httpReq.Header.Add(name, value)
	})

	resp, err := s.cc.RoundTrip(httpReq)
	if err != nil {
		return nil, wireerr.New(wireerr.KindHTTP2ProtocolError, req.Authority, "", err).WithOp("h2-roundtrip")
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Header:     map[string][]string(resp.Header),
		Body:       resp.Body,
		Proto:      resp.Proto,
	}, nil
}
