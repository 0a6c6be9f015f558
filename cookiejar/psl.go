package cookiejar

import (
	"errors"

	"golang.org/x/net/publicsuffix"
)

var (
	errHostPrefixViolation   = errors.New("__Host- cookie requires Secure, Path=/, and host-only scope")
	errSecurePrefixViolation = errors.New("__Secure- cookie requires Secure")
)

// isPublicSuffix reports whether domain is itself a public suffix (".com",
// ".co.uk", "github.io"), which §4.6 step 2 forbids as a cookie Domain.
func isPublicSuffix(domain string) bool {
	suffix, _ := publicsuffix.PublicSuffix(domain)
	return suffix == domain
}

// registrableDomain returns the eTLD+1 for domain, used to bucket the jar's
// per-domain storage and enforce the per-registrable-domain cap.
func registrableDomain(host string) string {
	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		// host is itself a public suffix or malformed; fall back to the raw
		// host so it still gets a bucket instead of being silently dropped.
		return host
	}
	return d
}
