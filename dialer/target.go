// Package dialer implements the connect pipeline: the sequence that turns
// an endpoint key into a live netsock.Socket, including the HSTS gate, DNS
// resolution, Happy Eyeballs racing, proxy handshakes, and the target TLS
// handshake with pin verification.
package dialer

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/corvid-labs/wireclient/security"
	"github.com/corvid-labs/wireclient/wireerr"
)

// Target is the resolved (scheme, host, port) triple a connect attempt
// dials, after the HSTS gate has had a chance to upgrade it.
type Target struct {
	Scheme string
	Host   string
	Port   int
}

// Key returns the string used as the connection pool's endpoint key
// component for this target (proxy and TLS-profile hash are layered on by
// the caller, since Target itself knows nothing about either).
func (t Target) Key() string {
	return fmt.Sprintf("%s://%s:%d", t.Scheme, t.Host, t.Port)
}

func (t Target) addr() string { return fmt.Sprintf("%s:%d", t.Host, t.Port) }

// ResolveTarget parses rawURL and applies the HSTS gate before any network
// activity happens, so an http:// URL to a covered host is upgraded to
// https before DNS resolution even starts.
func ResolveTarget(rawURL string, hsts *security.HSTSStore) (Target, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Target{}, wireerr.NewURL(wireerr.KindInvalidURL, rawURL, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return Target{}, wireerr.NewURL(wireerr.KindInvalidURL, rawURL, fmt.Errorf("unsupported scheme %q", u.Scheme))
	}
	host := u.Hostname()
	if host == "" {
		return Target{}, wireerr.NewURL(wireerr.KindInvalidURL, rawURL, fmt.Errorf("missing host"))
	}

	port := defaultPortFor(scheme)
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Target{}, wireerr.NewURL(wireerr.KindInvalidURL, rawURL, fmt.Errorf("invalid port %q", p))
		}
		port = n
	}

	if hsts != nil {
		scheme, port = hsts.UpgradeScheme(scheme, host, port)
	}
	return Target{Scheme: scheme, Host: host, Port: port}, nil
}

func defaultPortFor(scheme string) int {
	if scheme == "https" {
		return 443
	}
	return 80
}
