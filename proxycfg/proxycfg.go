// Package proxycfg models the proxy configuration surface: none | http |
// https | socks5, each optionally with basic auth, plus curl-compatible
// resolution from NO_PROXY/HTTP_PROXY/HTTPS_PROXY/ALL_PROXY when no
// explicit override is given.
package proxycfg

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// Scheme identifies the proxy protocol.
type Scheme int

const (
	SchemeNone Scheme = iota
	SchemeHTTP
	SchemeHTTPS
	SchemeSOCKS5
)

func (s Scheme) String() string {
	switch s {
	case SchemeHTTP:
		return "http"
	case SchemeHTTPS:
		return "https"
	case SchemeSOCKS5:
		return "socks5"
	default:
		return "none"
	}
}

// Config describes one proxy hop. The zero value is SchemeNone (direct
// connection).
type Config struct {
	Scheme   Scheme
	Host     string
	Port     int
	Username string
	Password string
}

// HasAuth reports whether credentials were supplied.
func (c Config) HasAuth() bool { return c.Username != "" }

// Addr returns "host:port".
func (c Config) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

// String renders the config as a URL-shaped string suitable for logging
// (credentials are redacted).
func (c Config) String() string {
	if c.Scheme == SchemeNone {
		return "direct"
	}
	if c.HasAuth() {
		return fmt.Sprintf("%s://%s@%s", c.Scheme, c.Username, c.Addr())
	}
	return fmt.Sprintf("%s://%s", c.Scheme, c.Addr())
}

// Parse reads a proxy URL string of the form
// "scheme://[user:pass@]host:port" into a Config. An empty string yields
// SchemeNone (direct).
func Parse(raw string) (Config, error) {
	if strings.TrimSpace(raw) == "" {
		return Config{}, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Config{}, fmt.Errorf("proxycfg: parse %q: %w", raw, err)
	}

	var scheme Scheme
	switch strings.ToLower(u.Scheme) {
	case "http":
		scheme = SchemeHTTP
	case "https":
		scheme = SchemeHTTPS
	case "socks5", "socks5h":
		scheme = SchemeSOCKS5
	default:
		return Config{}, fmt.Errorf("proxycfg: unsupported proxy scheme %q", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return Config{}, fmt.Errorf("proxycfg: %q has no host", raw)
	}

	port := 0
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return Config{}, fmt.Errorf("proxycfg: invalid port in %q: %w", raw, err)
		}
	} else {
		port = defaultPort(scheme)
	}

	cfg := Config{Scheme: scheme, Host: host, Port: port}
	if u.User != nil {
		cfg.Username = u.User.Username()
		cfg.Password, _ = u.User.Password()
	}
	return cfg, nil
}

func defaultPort(s Scheme) int {
	switch s {
	case SchemeHTTP:
		return 80
	case SchemeHTTPS:
		return 443
	case SchemeSOCKS5:
		return 1080
	default:
		return 0
	}
}

// FromEnvironment resolves a proxy for targetScheme ("http" or "https")
// following curl's precedence: an explicit override wins; otherwise
// HTTPS_PROXY (for https targets) or HTTP_PROXY (for http targets) is
// consulted, then the scheme-agnostic ALL_PROXY; NO_PROXY suppresses
// proxying for matching hosts (comma-separated suffixes, "*" disables
// proxying entirely).
func FromEnvironment(targetScheme, targetHost, override string) (Config, error) {
	if override != "" {
		return Parse(override)
	}
	if bypassed(targetHost, os.Getenv("NO_PROXY")) || bypassed(targetHost, os.Getenv("no_proxy")) {
		return Config{}, nil
	}

	candidates := []string{}
	if strings.EqualFold(targetScheme, "https") {
		candidates = append(candidates, os.Getenv("HTTPS_PROXY"), os.Getenv("https_proxy"))
	} else {
		candidates = append(candidates, os.Getenv("HTTP_PROXY"), os.Getenv("http_proxy"))
	}
	candidates = append(candidates, os.Getenv("ALL_PROXY"), os.Getenv("all_proxy"))

	for _, c := range candidates {
		if c != "" {
			return Parse(c)
		}
	}
	return Config{}, nil
}

// bypassed reports whether host matches any entry in a NO_PROXY-style
// comma-separated list (suffix match, "*" matches everything).
func bypassed(host, noProxy string) bool {
	if noProxy == "" {
		return false
	}
	for _, entry := range strings.Split(noProxy, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if entry == "*" {
			return true
		}
		entry = strings.TrimPrefix(entry, ".")
		if host == entry || strings.HasSuffix(host, "."+entry) {
			return true
		}
	}
	return false
}
