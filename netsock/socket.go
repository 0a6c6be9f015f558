// Package netsock provides the polymorphic stream abstraction every
// connection in the pool is stored as: plain TCP, TLS over TCP, or TLS over
// TLS for HTTPS-proxy tunneling. Its distinguishing feature over a bare
// net.Conn is Probe, a non-consuming liveness check.
package netsock

import (
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/corvid-labs/wireclient/wireerr"
)

// Kind identifies the layering of a Socket, used by the pool's endpoint key
// and by diagnostics; it does not change Probe's semantics.
type Kind int

const (
	KindPlain Kind = iota
	KindTLS
	KindTLSInTLS
)

func (k Kind) String() string {
	switch k {
	case KindPlain:
		return "plain"
	case KindTLS:
		return "tls"
	case KindTLSInTLS:
		return "tls-in-tls"
	default:
		return "unknown"
	}
}

// Socket wraps a net.Conn (of any layering) with the was-ever-used flag and
// non-consuming liveness probe the pool needs. The liveness probe reaches
// the concrete inner connection directly — Socket never downcasts a
// polymorphic handle to get there, it simply owns the innermost net.Conn
// from construction, so no interface escape hatch is needed to reach it.
type Socket struct {
	conn net.Conn
	kind Kind
	alpn string

	everUsed atomic.Bool

	mu      sync.Mutex
	pending []byte // at most one byte peeked ahead by Probe, replayed by Read
}

// Wrap constructs a Socket around an already-established conn (raw TCP, a
// *utls.UConn, or a TLS connection layered atop another Socket for
// HTTPS-proxy tunneling).
func Wrap(conn net.Conn, kind Kind) *Socket {
	return &Socket{conn: conn, kind: kind}
}

// Kind reports the socket's layering.
func (s *Socket) Kind() Kind { return s.kind }

// SetALPN records the protocol negotiated during the TLS handshake ("h2" or
// "http/1.1"), so the stream factory can dispatch without re-inspecting the
// connection's TLS state. A plain socket leaves this empty.
func (s *Socket) SetALPN(proto string) { s.alpn = proto }

// ALPN returns the negotiated protocol recorded by SetALPN, or "" if none.
func (s *Socket) ALPN() string { return s.alpn }

// MarkUsed flips the was-ever-used flag. The transaction layer calls this
// once a request has been fully sent on the socket, not merely acquired —
// an acquired-but-unsent socket is still "never used" for Probe purposes.
func (s *Socket) MarkUsed() { s.everUsed.Store(true) }

// WasEverUsed reports whether the socket has served at least one
// transaction.
func (s *Socket) WasEverUsed() bool { return s.everUsed.Load() }

// Read satisfies net.Conn. Any byte stashed by a prior Probe call is
// replayed first so Probe never loses data from the caller's perspective.
func (s *Socket) Read(p []byte) (int, error) {
	s.mu.Lock()
	if len(s.pending) > 0 {
		n := copy(p, s.pending)
		s.pending = s.pending[n:]
		s.mu.Unlock()
		return n, nil
	}
	s.mu.Unlock()
	return s.conn.Read(p)
}

func (s *Socket) Write(p []byte) (int, error)        { return s.conn.Write(p) }
func (s *Socket) Close() error                       { return s.conn.Close() }
func (s *Socket) LocalAddr() net.Addr                { return s.conn.LocalAddr() }
func (s *Socket) RemoteAddr() net.Addr               { return s.conn.RemoteAddr() }
func (s *Socket) SetDeadline(t time.Time) error      { return s.conn.SetDeadline(t) }
func (s *Socket) SetReadDeadline(t time.Time) error  { return s.conn.SetReadDeadline(t) }
func (s *Socket) SetWriteDeadline(t time.Time) error { return s.conn.SetWriteDeadline(t) }

// Unwrap returns the underlying net.Conn, for layers that need the raw
// connection (e.g. wrapping it in another TLS layer for TLS-in-TLS).
func (s *Socket) Unwrap() net.Conn { return s.conn }

// Probe checks liveness without consuming bytes from the logical stream:
//
//   - If the socket was never used, only connectedness matters: a closed
//     peer makes it unusable, anything else (including unexpected early
//     data) leaves it usable.
//   - If the socket was ever used, it is usable only when it is both
//     connected and idle — a pending byte on a keep-alive socket means the
//     peer sent something the caller isn't expecting, so the socket is
//     discarded rather than handed out.
//
// Probe blocks for at most a millisecond: it sets a read deadline that
// close in the future so a read with no data pending returns with a timeout
// error, then restores the conn's deadline to none. (A deadline already in
// the past would fail the read before it looks at any pending data.)
func (s *Socket) Probe() (usable bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) > 0 {
		if s.everUsed.Load() {
			return false, wireerr.Sentinel(wireerr.KindDataReceivedUnexpectedly)
		}
		return true, nil
	}

	_ = s.conn.SetReadDeadline(time.Now().Add(time.Millisecond))
	buf := make([]byte, 1)
	n, readErr := s.conn.Read(buf)
	_ = s.conn.SetReadDeadline(time.Time{})

	switch {
	case n > 0:
		s.pending = buf[:n]
		if s.everUsed.Load() {
			return false, wireerr.Sentinel(wireerr.KindDataReceivedUnexpectedly)
		}
		return true, nil
	case isTimeout(readErr):
		return true, nil
	case readErr == io.EOF || isClosedConnErr(readErr):
		return false, wireerr.Sentinel(wireerr.KindSocketRemoteClosed)
	case readErr != nil:
		return false, readErr
	default:
		return true, nil
	}
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

func isClosedConnErr(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection reset by peer")
}
