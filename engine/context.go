// Package engine wires the connection pool, cookie jar, HSTS store, TLS
// profile cache, and the maintenance scheduler that sweeps them into a
// single Context, and exposes the one entry point callers use: Do. A
// Context is cheap and fully self-contained — nothing in this package
// reaches for a process-wide singleton, so a test (or a program juggling
// many identities) can create as many independent Contexts as it needs
// without cross-talk.
package engine

import (
	"context"
	"io"
	"net/url"

	"github.com/corvid-labs/wireclient/auth"
	"github.com/corvid-labs/wireclient/clientconfig"
	"github.com/corvid-labs/wireclient/cookiejar"
	"github.com/corvid-labs/wireclient/dialer"
	"github.com/corvid-labs/wireclient/header"
	"github.com/corvid-labs/wireclient/maintenance"
	"github.com/corvid-labs/wireclient/metrics"
	"github.com/corvid-labs/wireclient/netsock"
	"github.com/corvid-labs/wireclient/pool"
	"github.com/corvid-labs/wireclient/profile"
	"github.com/corvid-labs/wireclient/proxycfg"
	"github.com/corvid-labs/wireclient/request"
	"github.com/corvid-labs/wireclient/security"
	"github.com/corvid-labs/wireclient/stream"
	"github.com/corvid-labs/wireclient/tlsprofile"
	"github.com/corvid-labs/wireclient/transaction"
)

// Context bundles one identity's worth of state: its socket pool, cookie
// jar, HSTS store, pin store, and the emulation profile every request on it
// presents. Safe for concurrent use; every field it owns already is.
type Context struct {
	cfg     *clientconfig.Config
	profile *profile.EmulationProfile
	proxy   proxycfg.Config

	pool    *pool.Pool
	jar     *cookiejar.Jar
	hsts    *security.HSTSStore
	pins    *security.PinStore
	certs   *tlsprofile.Cache
	streams *stream.Factory
	metrics *metrics.Metrics
	auth    *auth.Authenticator
	maint   *maintenance.Scheduler
}

// New builds a Context from cfg and prof. A nil cfg uses
// clientconfig.Default(); a nil prof uses profile.ChromeEmulationProfile().
func New(cfg *clientconfig.Config, prof *profile.EmulationProfile) (*Context, error) {
	if cfg == nil {
		cfg = clientconfig.Default()
	}
	if prof == nil {
		prof = profile.ChromeEmulationProfile()
	}
	if err := prof.Validate(); err != nil {
		return nil, err
	}

	var proxy proxycfg.Config
	if cfg.Proxy != "" {
		p, err := proxycfg.Parse(cfg.Proxy)
		if err != nil {
			return nil, err
		}
		proxy = p
	}

	c := &Context{
		cfg:     cfg,
		profile: prof,
		proxy:   proxy,
		jar:     cookiejar.New(),
		hsts:    security.NewHSTSStore(),
		pins:    security.NewPinStore(),
		certs:   tlsprofile.NewCache(),
		streams: stream.NewFactory(prof.H2),
		metrics: metrics.New(),
	}
	c.pool = pool.NewWithLimits(c.connectSocket, cfg.MaxSocketsPerHost, cfg.MaxSocketsGlobal)
	c.maint = maintenance.New(c.pool, c.hsts, c.jar, cfg.MaintenanceInterval, nil)
	c.maint.Start()
	return c, nil
}

// Close stops the Context's maintenance scheduler. It does not close
// sockets currently checked out.
func (c *Context) Close() {
	c.maint.Stop()
	c.pool.Close()
}

// HSTS returns the Context's HSTS store, so a caller can Preload a known
// HSTS host before the first request.
func (c *Context) HSTS() *security.HSTSStore { return c.hsts }

// Pins returns the Context's certificate pin store.
func (c *Context) Pins() *security.PinStore { return c.pins }

// Jar returns the Context's cookie jar.
func (c *Context) Jar() *cookiejar.Jar { return c.jar }

// Metrics returns the Context's request counters.
func (c *Context) Metrics() *metrics.Metrics { return c.metrics }

// SetAuthenticator attaches a, whose Token is injected as a Bearer
// Authorization header on every request Do issues from then on. A nil a
// disables injection again.
func (c *Context) SetAuthenticator(a *auth.Authenticator) { c.auth = a }

// Authenticator returns the Context's bearer token manager, or nil if none
// has been set.
func (c *Context) Authenticator() *auth.Authenticator { return c.auth }

// connectSocket is the pool's ConnectFunc: it resolves key back into a
// dialer.Target and runs the connect pipeline.
func (c *Context) connectSocket(ctx context.Context, key string) (*netsock.Socket, error) {
	target, err := dialer.ResolveTarget(key, c.hsts)
	if err != nil {
		return nil, err
	}

	sock, _, err := dialer.Connect(ctx, target, dialer.Options{
		Proxy:          c.proxy,
		TargetProfile:  c.profile.TLS,
		ProxyProfile:   c.profile.TLS,
		Connectors:     c.certs,
		Pins:           c.pins,
		SkipCertVerify: c.cfg.SkipCertVerify,
	})
	return sock, err
}

// Outbound is one request a caller wants the Context to execute, before
// the redirect loop and transaction layer stamp in the wire details.
type Outbound struct {
	Method  string
	URL     string
	Headers *header.Header
	Body    io.ReadCloser

	// ContentLength is -1 for a chunked/unknown-length body, 0 for none.
	ContentLength int64
}

// Do executes req end to end: HSTS gate, redirect loop, per-hop
// transaction, cookie send/forward. The returned stream.Response's Body
// must be closed by the caller.
func (c *Context) Do(ctx context.Context, req *Outbound) (*stream.Response, error) {
	c.metrics.IncrementTotal()

	u, err := url.Parse(req.URL)
	if err != nil {
		c.metrics.IncrementFailed()
		return nil, err
	}

	headers := req.Headers
	if c.auth != nil {
		if headers != nil {
			headers = headers.Clone()
		} else {
			headers = header.New()
		}
		c.auth.Apply(headers)
	}

	runner := &request.Runner{
		HSTS: c.hsts,
		KeyFor: func(u *url.URL) string {
			return u.Scheme + "://" + u.Hostname() + ":" + portFor(u)
		},
		NewTx: func(key string) *transaction.Transaction {
			return transaction.New(transaction.Dependencies{
				Pool:    c.pool,
				Streams: c.streams,
				Jar:     c.jar,
				Profile: c.profile,
				Metrics: c.metrics,
			}, key)
		},
		Metrics: c.metrics,
	}

	out := &transaction.Outbound{
		Method:        req.Method,
		URL:           u,
		Headers:       headers,
		Body:          req.Body,
		ContentLength: req.ContentLength,
	}

	resp, err := runner.Do(ctx, out)
	if err != nil {
		c.metrics.IncrementFailed()
		return nil, err
	}
	c.metrics.IncrementSuccess()
	resp.Body = &countingBody{ReadCloser: resp.Body, m: c.metrics}
	return resp, nil
}

// countingBody feeds every byte read from a response body into the
// Context's BytesRead counter.
type countingBody struct {
	io.ReadCloser
	m *metrics.Metrics
}

func (b *countingBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if n > 0 {
		b.m.AddBytesRead(uint64(n))
	}
	return n, err
}

func portFor(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	if u.Scheme == "https" {
		return "443"
	}
	return "80"
}
