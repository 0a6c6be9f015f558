package cookiejar

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/corvid-labs/wireclient/wireerr"
)

// parseSetCookie turns one Set-Cookie header value observed on a response to
// u into a Cookie, applying the domain and prefix rules from RFC 6265 plus
// the `__Secure-`/`__Host-` and SameSite-None-requires-Secure extensions.
// now is the creation/last-access timestamp (injected so callers can test
// deterministically).
func parseSetCookie(u *url.URL, value string, now time.Time) (*Cookie, error) {
	hc, err := http.ParseSetCookie(value)
	if err != nil || hc.Name == "" {
		return nil, wireerr.NewURL(wireerr.KindInvalidHeader, u.String(), err).WithOp("parse-set-cookie")
	}

	c := &Cookie{
		Name:       hc.Name,
		Value:      hc.Value,
		Path:       hc.Path,
		Creation:   now,
		LastAccess: now,
		Secure:     hc.Secure,
		HTTPOnly:   hc.HttpOnly,
		Priority:   priorityFromRaw(hc.Raw),
	}

	if c.Path == "" {
		c.Path = defaultPath(u.Path)
	}

	if hc.Domain == "" {
		c.HostOnly = true
		c.Domain = u.Hostname()
	} else {
		domain := strings.TrimPrefix(strings.ToLower(hc.Domain), ".")
		if !domainMatches(u.Hostname(), domain) {
			return nil, wireerr.NewURL(wireerr.KindInvalidHeader, u.String(), nil).WithOp("cookie-domain-mismatch")
		}
		if isPublicSuffix(domain) {
			return nil, wireerr.NewURL(wireerr.KindInvalidHeader, u.String(), nil).WithOp("cookie-domain-public-suffix")
		}
		c.HostOnly = false
		c.Domain = domain
	}

	switch {
	case hc.MaxAge > 0:
		c.Expires = now.Add(time.Duration(hc.MaxAge) * time.Second)
	case hc.MaxAge < 0:
		// MaxAge < 0 means "Max-Age=0" or negative, which asks for immediate
		// expiry; leave Expires in the past so the caller evicts it.
		c.Expires = now.Add(-time.Second)
	case !hc.Expires.IsZero():
		c.Expires = hc.Expires
	}

	switch hc.SameSite {
	case http.SameSiteNoneMode:
		c.SameSite = SameSiteNone
	case http.SameSiteLaxMode:
		c.SameSite = SameSiteLax
	case http.SameSiteStrictMode:
		c.SameSite = SameSiteStrict
	default:
		c.SameSite = SameSiteUnspecified
	}

	if err := validatePrefix(c); err != nil {
		return nil, wireerr.NewURL(wireerr.KindInvalidHeader, u.String(), err).WithOp("cookie-prefix-rule")
	}
	if c.SameSite == SameSiteNone && !c.Secure {
		return nil, wireerr.NewURL(wireerr.KindInvalidHeader, u.String(), nil).WithOp("cookie-samesite-none-requires-secure")
	}

	return c, nil
}

func validatePrefix(c *Cookie) error {
	switch {
	case strings.HasPrefix(c.Name, "__Host-"):
		if !c.Secure || c.Path != "/" || !c.HostOnly {
			return errHostPrefixViolation
		}
	case strings.HasPrefix(c.Name, "__Secure-"):
		if !c.Secure {
			return errSecurePrefixViolation
		}
	}
	return nil
}

// priorityFromRaw extracts Chrome's non-standard Priority=Low|Medium|High
// attribute, which net/http.ParseSetCookie leaves unparsed.
func priorityFromRaw(raw string) Priority {
	for _, part := range strings.Split(raw, ";") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 || !strings.EqualFold(kv[0], "Priority") {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[1])) {
		case "low":
			return PriorityLow
		case "high":
			return PriorityHigh
		}
		return PriorityMedium
	}
	return PriorityMedium
}

func defaultPath(urlPath string) string {
	i := strings.LastIndexByte(urlPath, '/')
	if i <= 0 {
		return "/"
	}
	return urlPath[:i]
}

func domainMatches(host, domain string) bool {
	host = strings.ToLower(host)
	if host == domain {
		return true
	}
	return strings.HasSuffix(host, "."+domain)
}
