package dialer

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/net/proxy"

	"github.com/corvid-labs/wireclient/proxycfg"
	"github.com/corvid-labs/wireclient/tlsprofile"
	"github.com/corvid-labs/wireclient/wireerr"
)

// httpConnect issues an HTTP CONNECT request for target over conn and waits
// for the tunnel to be accepted. The credential cached for proxyHost, if
// any, is sent as Proxy-Authorization on the first attempt. On a 407
// response that cached credential is invalidated and the CONNECT is retried
// exactly once on the same conn, without a Proxy-Authorization header; a
// non-2xx answer to the retry fails with ProxyAuthRequested.
func httpConnect(ctx context.Context, conn net.Conn, proxyHost string, target Target, cache *AuthCache) error {
	cred, _ := cache.Get(proxyHost)
	if err := sendConnect(conn, target, cred); err != nil {
		return err
	}
	resp, err := readConnectResponse(ctx, conn, target)
	if err != nil {
		return err
	}
	if resp.StatusCode/100 == 2 {
		return nil
	}
	if resp.StatusCode != http.StatusProxyAuthRequired {
		return wireerr.New(wireerr.KindProxyConnectionFailed, target.Host, strconv.Itoa(target.Port), fmt.Errorf("proxy CONNECT failed: %s", resp.Status))
	}

	cache.Invalidate(proxyHost)
	if err := sendConnect(conn, target, ""); err != nil {
		return err
	}
	resp, err = readConnectResponse(ctx, conn, target)
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		return wireerr.New(wireerr.KindProxyAuthRequested, target.Host, strconv.Itoa(target.Port), fmt.Errorf("proxy CONNECT failed after retry: %s", resp.Status))
	}
	return nil
}

func sendConnect(conn net.Conn, target Target, proxyAuth string) error {
	addr := target.addr()
	req := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: addr},
		Host:   addr,
		Header: make(http.Header),
	}
	if proxyAuth != "" {
		req.Header.Set("Proxy-Authorization", proxyAuth)
	}
	if err := req.Write(conn); err != nil {
		return wireerr.New(wireerr.KindProxyConnectionFailed, target.Host, strconv.Itoa(target.Port), err)
	}
	return nil
}

// readConnectResponse reads the proxy's response to a CONNECT request,
// tolerating a response delivered across several TCP segments (the reader
// buffers until it has seen the terminating blank line).
func readConnectResponse(ctx context.Context, conn net.Conn, target Target) (*http.Response, error) {
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(dl)
	}
	defer conn.SetReadDeadline(time.Time{})

	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, &http.Request{Method: http.MethodConnect})
	if err != nil {
		return nil, wireerr.New(wireerr.KindProxyConnectionFailed, target.Host, strconv.Itoa(target.Port), err)
	}
	_ = resp.Body.Close()
	return resp, nil
}

// basicAuthHeader builds the "Basic <base64>" Proxy-Authorization value for
// a proxy config carrying credentials.
func basicAuthHeader(cfg proxycfg.Config) string {
	if !cfg.HasAuth() {
		return ""
	}
	raw := cfg.Username + ":" + cfg.Password
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(raw))
}

// dialThroughHTTPProxy opens a TCP connection to an HTTP-scheme proxy and
// runs the CONNECT handshake for target over it, returning the raw tunnel
// socket ready for the target TLS handshake (if any).
func dialThroughHTTPProxy(ctx context.Context, cfg proxycfg.Config, target Target, cache *AuthCache) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", cfg.Addr())
	if err != nil {
		return nil, classifyDialErr(cfg.Host, cfg.Port, err)
	}

	key := cfg.Addr()
	if cfg.HasAuth() {
		if _, ok := cache.Get(key); !ok {
			cache.Set(key, basicAuthHeader(cfg))
		}
	}

	if err := httpConnect(ctx, conn, cfg.Addr(), target, cache); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// dialThroughHTTPSProxy performs TLS to the proxy itself using a
// proxy-specific connector, then runs the CONNECT handshake over that TLS
// stream (TLS-in-TLS once the target handshake is layered on top).
func dialThroughHTTPSProxy(ctx context.Context, cfg proxycfg.Config, target Target, cache *AuthCache, proxyConnector *tlsprofile.Connector) (net.Conn, error) {
	var d net.Dialer
	raw, err := d.DialContext(ctx, "tcp", cfg.Addr())
	if err != nil {
		return nil, classifyDialErr(cfg.Host, cfg.Port, err)
	}

	tlsConn, err := proxyConnector.Handshake(ctx, raw, tlsprofile.SNIFor(cfg.Host), false)
	if err != nil {
		_ = raw.Close()
		return nil, wireerr.New(wireerr.KindTLSHandshakeFailed, cfg.Host, strconv.Itoa(cfg.Port), err)
	}

	key := cfg.Addr()
	if cfg.HasAuth() {
		if _, ok := cache.Get(key); !ok {
			cache.Set(key, basicAuthHeader(cfg))
		}
	}

	if err := httpConnect(ctx, tlsConn, cfg.Addr(), target, cache); err != nil {
		_ = tlsConn.Close()
		return nil, err
	}
	return tlsConn, nil
}

// dialThroughSOCKS5 establishes a SOCKS5 tunnel (RFC 1928, optional RFC 1929
// auth) to target through cfg, preferring the library's DOMAINNAME ATYP by
// handing it the hostname rather than a pre-resolved address.
func dialThroughSOCKS5(ctx context.Context, cfg proxycfg.Config, target Target) (net.Conn, error) {
	var auth *proxy.Auth
	if cfg.HasAuth() {
		auth = &proxy.Auth{User: cfg.Username, Password: cfg.Password}
	}

	socksDialer, err := proxy.SOCKS5("tcp", cfg.Addr(), auth, proxy.Direct)
	if err != nil {
		return nil, wireerr.New(wireerr.KindProxyConnectionFailed, cfg.Host, strconv.Itoa(cfg.Port), err)
	}

	type dialResult struct {
		conn net.Conn
		err  error
	}
	done := make(chan dialResult, 1)
	go func() {
		conn, err := socksDialer.Dial("tcp", target.addr())
		done <- dialResult{conn, err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, wireerr.New(wireerr.KindProxyConnectionFailed, target.Host, strconv.Itoa(target.Port), res.err)
		}
		return res.conn, nil
	case <-ctx.Done():
		return nil, wireerr.New(wireerr.KindConnectionTimedOut, target.Host, strconv.Itoa(target.Port), ctx.Err())
	}
}
