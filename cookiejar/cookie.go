// Package cookiejar implements the canonical cookie store: RFC 6265
// parsing and matching, the `__Secure-`/`__Host-` name-prefix rules,
// SameSite validation, public-suffix domain gating, and per-domain/global
// eviction.
package cookiejar

import "time"

// Priority mirrors the modern browser cookie priority tiers, consulted by
// eviction after expiry and before recency.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
)

// SameSite is the cookie's cross-site send policy.
type SameSite int

const (
	SameSiteUnspecified SameSite = iota
	SameSiteNone
	SameSiteLax
	SameSiteStrict
)

// Cookie is one canonical, stored cookie. The (Name, Domain, Path) triple
// is unique within a Jar.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Creation time.Time
	Expires  time.Time // zero means session cookie (no expiry)
	HostOnly bool
	Secure   bool
	HTTPOnly bool
	SameSite SameSite
	Priority Priority

	LastAccess time.Time
}

func (c *Cookie) hasExpiry() bool { return !c.Expires.IsZero() }

func (c *Cookie) expired(now time.Time) bool {
	return c.hasExpiry() && now.After(c.Expires)
}

func (c *Cookie) key() cookieKey {
	return cookieKey{name: c.Name, domain: c.Domain, path: c.Path}
}

type cookieKey struct {
	name, domain, path string
}
