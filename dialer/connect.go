package dialer

import (
	"context"
	"net"
	"strconv"
	"syscall"

	"github.com/corvid-labs/wireclient/netsock"
	"github.com/corvid-labs/wireclient/proxycfg"
	"github.com/corvid-labs/wireclient/security"
	"github.com/corvid-labs/wireclient/tlsprofile"
	"github.com/corvid-labs/wireclient/wireerr"
)

// Options bundles everything a single connect attempt needs beyond the
// target itself: the proxy hop (if any), the TLS profile to present to the
// target, a separate profile for the proxy's own TLS layer when the proxy
// is HTTPS, and the security stores consulted inline.
type Options struct {
	Proxy          proxycfg.Config
	TargetProfile  *tlsprofile.Profile
	ProxyProfile   *tlsprofile.Profile
	Connectors     *tlsprofile.Cache
	Pins           *security.PinStore
	AuthCache      *AuthCache
	Resolver       *net.Resolver
	SkipCertVerify bool
}

// Connect runs the full pipeline for target: DNS, Happy Eyeballs, the
// optional proxy handshake, and the optional target TLS handshake with pin
// verification. It returns a netsock.Socket ready to be handed to the
// stream layer, tagged with the negotiated ALPN protocol (empty for
// plaintext HTTP/1.1).
func Connect(ctx context.Context, target Target, opts Options) (*netsock.Socket, string, error) {
	if opts.AuthCache == nil {
		opts.AuthCache = NewAuthCache(0)
	}

	conn, err := dialTransport(ctx, target, opts)
	if err != nil {
		return nil, "", err
	}

	if target.Scheme != "https" {
		return netsock.Wrap(conn, netsock.KindPlain), "", nil
	}

	connector, err := opts.Connectors.Get(opts.TargetProfile)
	if err != nil {
		_ = conn.Close()
		return nil, "", wireerr.New(wireerr.KindTLSHandshakeFailed, target.Host, strconv.Itoa(target.Port), err)
	}

	uconn, err := connector.Handshake(ctx, conn, tlsprofile.SNIFor(target.Host), opts.SkipCertVerify)
	if err != nil {
		_ = conn.Close()
		return nil, "", wireerr.New(wireerr.KindTLSHandshakeFailed, target.Host, strconv.Itoa(target.Port), err)
	}

	if opts.Pins != nil {
		state := uconn.ConnectionState()
		if err := opts.Pins.Verify(target.Host, state.PeerCertificates); err != nil {
			_ = uconn.Close()
			return nil, "", wireerr.New(wireerr.KindPinnedKeyNotInChain, target.Host, strconv.Itoa(target.Port), err)
		}
	}

	kind := netsock.KindTLS
	if opts.Proxy.Scheme == proxycfg.SchemeHTTPS {
		kind = netsock.KindTLSInTLS
	}
	proto := uconn.ConnectionState().NegotiatedProtocol
	sock := netsock.Wrap(uconn, kind)
	sock.SetALPN(proto)
	return sock, proto, nil
}

// dialTransport runs DNS + Happy Eyeballs for whichever host needs dialing
// (the proxy, if one is configured; the target otherwise), then layers on
// whatever proxy handshake the configured scheme requires.
func dialTransport(ctx context.Context, target Target, opts Options) (net.Conn, error) {
	switch opts.Proxy.Scheme {
	case proxycfg.SchemeNone:
		return dialDirect(ctx, target, opts.Resolver)
	case proxycfg.SchemeHTTP:
		return dialThroughHTTPProxy(ctx, opts.Proxy, target, opts.AuthCache)
	case proxycfg.SchemeHTTPS:
		proxyConnector, err := opts.Connectors.Get(opts.ProxyProfile)
		if err != nil {
			return nil, wireerr.New(wireerr.KindTLSHandshakeFailed, opts.Proxy.Host, strconv.Itoa(opts.Proxy.Port), err)
		}
		return dialThroughHTTPSProxy(ctx, opts.Proxy, target, opts.AuthCache, proxyConnector)
	case proxycfg.SchemeSOCKS5:
		return dialThroughSOCKS5(ctx, opts.Proxy, target)
	default:
		return dialDirect(ctx, target, opts.Resolver)
	}
}

func dialDirect(ctx context.Context, target Target, resolver *net.Resolver) (net.Conn, error) {
	addrs, err := resolveAddrs(ctx, resolver, target.Host)
	if err != nil {
		return nil, err
	}

	var d net.Dialer
	conn, _, err := raceDial(ctx, addrs, func(ctx context.Context, ip net.IP) (net.Conn, error) {
		return d.DialContext(ctx, "tcp", net.JoinHostPort(ip.String(), strconv.Itoa(target.Port)))
	})
	if err != nil {
		return nil, classifyDialErr(target.Host, target.Port, err)
	}
	return conn, nil
}

// classifyDialErr maps a raw dial error into the taxonomy's
// ConnectionRefused/ConnectionTimedOut/ConnectionReset distinction so
// callers above the dialer never need to inspect syscall errors themselves.
func classifyDialErr(host string, port int, err error) error {
	if werr, ok := err.(*wireerr.Error); ok {
		if werr.Host == "" {
			werr.Host = host
			werr.Port = strconv.Itoa(port)
		}
		return werr
	}
	var opErr *net.OpError
	if e, ok := err.(*net.OpError); ok {
		opErr = e
	}
	if opErr != nil {
		if opErr.Timeout() {
			return wireerr.New(wireerr.KindConnectionTimedOut, host, strconv.Itoa(port), err)
		}
		if errIs(opErr.Err, syscall.ECONNREFUSED) {
			return wireerr.New(wireerr.KindConnectionRefused, host, strconv.Itoa(port), err)
		}
		if errIs(opErr.Err, syscall.ECONNRESET) {
			return wireerr.New(wireerr.KindConnectionReset, host, strconv.Itoa(port), err)
		}
	}
	return wireerr.New(wireerr.KindConnectionTimedOut, host, strconv.Itoa(port), err)
}

func errIs(err error, target syscall.Errno) bool {
	for err != nil {
		if errno, ok := err.(syscall.Errno); ok {
			return errno == target
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}
