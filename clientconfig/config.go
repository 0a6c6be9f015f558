// Package clientconfig provides production-grade configuration management
// for the client engine. It supports JSON-based configuration loading with
// safe defaults tuned for high-concurrency request workloads.
package clientconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Config holds all tunable parameters for a Context. The struct is designed
// to be loaded once at startup and then shared read-only across goroutines,
// making it inherently thread-safe after initialization. Fields cover
// connection-pool tuning, TLS/HTTP2 behavior, and proxy configuration.
type Config struct {
	// RequestTimeout is an end-to-end timeout for a single request.
	// engine.New does not apply it; a caller enforces it through the
	// context passed to Do, as cmd/demo does with context.WithTimeout.
	RequestTimeout time.Duration `json:"request_timeout"`

	// MaxRetries is a retry bound for reused-socket failures. engine.New
	// does not consult it: the transaction layer's bound is fixed at three
	// attempts in total.
	MaxRetries int `json:"max_retries"`

	// MaxRedirects is a redirect-hop bound. engine.New does not consult it:
	// the redirect loop's cap is fixed at 20 hops.
	MaxRedirects int `json:"max_redirects"`

	// Proxy is an optional proxy URL string (e.g. "http://host:port",
	// "socks5://host:port"). Empty means direct.
	Proxy string `json:"proxy"`

	// MaxSocketsPerHost caps concurrent sockets (idle + active) held open
	// to a single endpoint key.
	MaxSocketsPerHost int `json:"max_sockets_per_host"`

	// MaxSocketsGlobal caps the pool's total socket count across every
	// endpoint key.
	MaxSocketsGlobal int `json:"max_sockets_global"`

	// SkipCertVerify disables certificate chain verification during the
	// TLS handshake. Only meant for talking to an intentionally
	// self-signed test origin; never set this against production traffic.
	SkipCertVerify bool `json:"skip_cert_verify"`

	// MaintenanceInterval is how often the Context's background scheduler
	// sweeps the socket pool's idle reaper, the HSTS store's expired-entry
	// prune, and the cookie jar's expired-cookie GC. Non-positive falls
	// back to maintenance.DefaultInterval.
	MaintenanceInterval time.Duration `json:"maintenance_interval"`
}

// Load reads a JSON file at filename and deserialises it into a Config. It
// returns an error if the file cannot be opened or the JSON is malformed.
func Load(filename string) (*Config, error) {
	f, err := os.Open(filename) // #nosec G304 -- filename is caller-provided config path
	if err != nil {
		return nil, fmt.Errorf("clientconfig: open %q: %w", filename, err)
	}
	defer f.Close()

	var cfg Config
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("clientconfig: decode %q: %w", filename, err)
	}
	return &cfg, nil
}

// Default returns a Config pre-filled with sensible defaults. Each call
// returns a fresh, independent copy; callers are free to mutate it before
// passing it to engine.New.
func Default() *Config {
	return &Config{
		RequestTimeout:    30 * time.Second,
		MaxRetries:        3,
		MaxRedirects:      20,
		Proxy:             "",
		MaxSocketsPerHost: 6,
		MaxSocketsGlobal:  256,
		SkipCertVerify:    false,

		MaintenanceInterval: 60 * time.Second,
	}
}
