package cookiejar

import (
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/corvid-labs/wireclient/wireerr"
)

const (
	maxPerDomain = 50
	maxGlobal    = 3000
)

// bucket holds every cookie for one registrable domain under its own lock,
// so a write to example.com never blocks a read for unrelated.org.
type bucket struct {
	mu      sync.Mutex
	cookies map[cookieKey]*Cookie
}

// RequestContext carries the same-site decision inputs Get needs: the
// registrable domain of the context the request is issued from, and
// whether it is a top-level, safe-method navigation (the case SameSite=Lax
// still allows cross-site).
type RequestContext struct {
	SiteForCookies string
	IsSafeTopLevel bool
}

// Jar is the canonical cookie store: one bucket per registrable domain,
// RFC 6265 matching, `__Secure-`/`__Host-` prefix enforcement, SameSite
// validation, and per-domain/global LRU eviction. The zero value is not
// usable; construct with New.
type Jar struct {
	mu          sync.RWMutex
	buckets     map[string]*bucket
	globalCount atomic.Int64
	evictMu     sync.Mutex
}

// New returns an empty Jar.
func New() *Jar {
	return &Jar{buckets: make(map[string]*bucket)}
}

func (j *Jar) bucketFor(domain string) *bucket {
	j.mu.RLock()
	b, ok := j.buckets[domain]
	j.mu.RUnlock()
	if ok {
		return b
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if b, ok := j.buckets[domain]; ok {
		return b
	}
	b = &bucket{cookies: make(map[cookieKey]*Cookie)}
	j.buckets[domain] = b
	return b
}

// Set parses value as a Set-Cookie header observed on a response from
// rawURL and admits it into the jar, applying the domain rule, the
// `__Secure-`/`__Host-` prefix rules, the SameSite-None-requires-Secure
// rule, replace-on-identical-key, and the per-domain and global caps.
// A rejected cookie is dropped; the caller decides whether to log it.
func (j *Jar) Set(rawURL, value string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return wireerr.NewURL(wireerr.KindInvalidURL, rawURL, err)
	}

	c, err := parseSetCookie(u, value, time.Now())
	if err != nil {
		return err
	}

	domain := registrableDomain(c.Domain)
	b := j.bucketFor(domain)

	b.mu.Lock()
	k := c.key()
	_, replacing := b.cookies[k]
	b.cookies[k] = c
	if !replacing {
		j.globalCount.Add(1)
	}
	j.evictBucketLocked(b)
	b.mu.Unlock()

	if j.globalCount.Load() > maxGlobal {
		j.evictGlobal()
	}
	return nil
}

// evictBucketLocked enforces the per-domain cap on b, which must already be
// locked. It adjusts the jar's global counter for anything it removes.
func (j *Jar) evictBucketLocked(b *bucket) {
	for len(b.cookies) > maxPerDomain {
		victim := pickVictim(b.cookies)
		if victim == nil {
			return
		}
		delete(b.cookies, victim.key())
		j.globalCount.Add(-1)
	}
}

// evictGlobal enforces the global cap by scanning every bucket for the
// single best eviction candidate and removing it, repeating until back
// under the cap. It runs behind evictMu so concurrent Sets that both
// overshoot don't double-evict past the target.
func (j *Jar) evictGlobal() {
	j.evictMu.Lock()
	defer j.evictMu.Unlock()

	for j.globalCount.Load() > maxGlobal {
		j.mu.RLock()
		buckets := make([]*bucket, 0, len(j.buckets))
		for _, b := range j.buckets {
			buckets = append(buckets, b)
		}
		j.mu.RUnlock()

		var worstBucket *bucket
		var worst *Cookie
		for _, b := range buckets {
			b.mu.Lock()
			v := pickVictim(b.cookies)
			if v != nil && (worst == nil || worse(v, worst)) {
				worst = v
				worstBucket = b
			}
			b.mu.Unlock()
		}
		if worst == nil {
			return
		}

		worstBucket.mu.Lock()
		if cur, ok := worstBucket.cookies[worst.key()]; ok && cur == worst {
			delete(worstBucket.cookies, worst.key())
			j.globalCount.Add(-1)
		}
		worstBucket.mu.Unlock()
	}
}

// pickVictim returns the cookie in cookies that eviction should remove
// first: expired cookies before live ones, then lowest priority, then
// least-recently accessed. cookies must already be locked by the caller.
func pickVictim(cookies map[cookieKey]*Cookie) *Cookie {
	var victim *Cookie
	now := time.Now()
	for _, c := range cookies {
		if victim == nil {
			victim = c
			continue
		}
		if worse(c, victim) {
			victim = c
		}
		_ = now
	}
	return victim
}

// worse reports whether a is a better eviction candidate than b under the
// expired > lowest-priority > least-recently-accessed ordering.
func worse(a, b *Cookie) bool {
	now := time.Now()
	ae, be := a.expired(now), b.expired(now)
	if ae != be {
		return ae
	}
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.LastAccess.Before(b.LastAccess)
}

// Get returns the cookies that should be sent on a request to rawURL under
// reqCtx, sorted by (path length desc, creation asc) per RFC 6265 §5.4, and
// marks each returned cookie's LastAccess as now.
func (j *Jar) Get(rawURL string, reqCtx RequestContext) ([]Cookie, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, wireerr.NewURL(wireerr.KindInvalidURL, rawURL, err)
	}

	domain := registrableDomain(u.Hostname())
	b := j.bucketFor(domain)
	now := time.Now()

	b.mu.Lock()
	defer b.mu.Unlock()

	var out []Cookie
	for k, c := range b.cookies {
		if c.expired(now) {
			delete(b.cookies, k)
			j.globalCount.Add(-1)
			continue
		}
		if !hostMatches(c, u.Hostname()) {
			continue
		}
		if !pathMatches(c.Path, u.Path) {
			continue
		}
		if c.Secure && !strings.EqualFold(u.Scheme, "https") {
			continue
		}
		if !sendAllowed(c, reqCtx, domain) {
			continue
		}
		c.LastAccess = now
		out = append(out, *c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if len(out[i].Path) != len(out[j].Path) {
			return len(out[i].Path) > len(out[j].Path)
		}
		return out[i].Creation.Before(out[j].Creation)
	})
	return out, nil
}

func hostMatches(c *Cookie, host string) bool {
	if c.HostOnly {
		return strings.EqualFold(c.Domain, host)
	}
	return domainMatches(host, c.Domain)
}

// pathMatches implements the RFC 6265 §5.1.4 path-match algorithm.
func pathMatches(cookiePath, requestPath string) bool {
	if requestPath == "" {
		requestPath = "/"
	}
	if cookiePath == requestPath {
		return true
	}
	if !strings.HasPrefix(requestPath, cookiePath) {
		return false
	}
	if strings.HasSuffix(cookiePath, "/") {
		return true
	}
	return requestPath[len(cookiePath)] == '/'
}

func sendAllowed(c *Cookie, reqCtx RequestContext, domain string) bool {
	if reqCtx.SiteForCookies == "" || strings.EqualFold(reqCtx.SiteForCookies, domain) {
		return true
	}
	switch c.SameSite {
	case SameSiteStrict:
		return false
	case SameSiteNone:
		return true
	default: // Lax and Unspecified default to Lax
		return reqCtx.IsSafeTopLevel
	}
}

// Count reports the number of cookies currently held for domain's registrable
// domain, for tests and diagnostics.
func (j *Jar) Count(domain string) int {
	b := j.bucketFor(registrableDomain(domain))
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.cookies)
}

// Total reports the global cookie count across every domain.
func (j *Jar) Total() int {
	return int(j.globalCount.Load())
}

// GC removes every expired cookie from every bucket and returns how many it
// removed. Get already deletes an expired cookie the moment it's looked up,
// but a cookie for a domain nobody requests again would otherwise sit in
// its bucket forever; GC is the sweep that catches those.
func (j *Jar) GC() int {
	j.mu.RLock()
	buckets := make([]*bucket, 0, len(j.buckets))
	for _, b := range j.buckets {
		buckets = append(buckets, b)
	}
	j.mu.RUnlock()

	now := time.Now()
	removed := 0
	for _, b := range buckets {
		b.mu.Lock()
		for k, c := range b.cookies {
			if c.expired(now) {
				delete(b.cookies, k)
				j.globalCount.Add(-1)
				removed++
			}
		}
		b.mu.Unlock()
	}
	return removed
}
