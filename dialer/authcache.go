package dialer

import (
	"sync"
	"time"
)

// credential is one cached Proxy-Authorization value plus the time it
// expires (zero when the cache has no TTL), so AuthCache can expire stale
// entries instead of retrying a rejected credential forever.
type credential struct {
	value     string
	expiresAt time.Time
}

// AuthCache stores one resolved Proxy-Authorization header value per proxy
// endpoint, consulted by the connect pipeline's HTTP-CONNECT step when a
// proxy returns 407. It is a from-scratch adaptation of the teacher's
// TokenRefreshManager: an RWMutex-guarded credential slot per key rather
// than one JWT for the whole process, since a single engine Context may
// dial through several distinct proxies.
type AuthCache struct {
	mu      sync.RWMutex
	entries map[string]credential
	ttl     time.Duration
}

// NewAuthCache returns an AuthCache whose entries expire after ttl. A ttl of
// zero means entries never expire on their own (only Invalidate removes
// them).
func NewAuthCache(ttl time.Duration) *AuthCache {
	return &AuthCache{entries: make(map[string]credential), ttl: ttl}
}

// Get returns the cached Proxy-Authorization value for key ("host:port"),
// and whether a live (unexpired) entry exists.
func (c *AuthCache) Get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cred, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if c.ttl > 0 && time.Now().After(cred.expiresAt) {
		return "", false
	}
	return cred.value, true
}

// Set installs or replaces the credential for key.
func (c *AuthCache) Set(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	exp := time.Time{}
	if c.ttl > 0 {
		exp = time.Now().Add(c.ttl)
	}
	c.entries[key] = credential{value: value, expiresAt: exp}
}

// Invalidate drops the cached credential for key — called when a CONNECT
// sent with the cached credential comes back 407, so a rejected credential
// is not sent again.
func (c *AuthCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}
