// Package profile bundles the pieces that together decide what a request
// looks like to the peer: the TLS fingerprint, the default header order
// and values, and the browser-version-specific SameSite default. A caller
// picks one EmulationProfile per Context; nothing in the request path
// consults raw browser-version strings directly.
package profile

import (
	"strconv"

	"github.com/corvid-labs/wireclient/cookiejar"
	"github.com/corvid-labs/wireclient/header"
	"github.com/corvid-labs/wireclient/stream"
	"github.com/corvid-labs/wireclient/tlsprofile"
)

// EmulationProfile is the full wire-level personality a Context presents.
type EmulationProfile struct {
	Name string

	TLS *tlsprofile.Profile
	H2  stream.H2Settings

	// DefaultHeaders lists the header names and values a real browser sends
	// on every request of this profile, in wire order. The transaction layer
	// sends the caller's own headers first, then the jar's Cookie, then each
	// of these the caller did not set (caller wins on a name collision).
	DefaultHeaders []header.Pair

	UserAgent string

	// SameSiteDefault records this browser version's default for a cookie
	// with SameSite unspecified. Nothing in the request path reads it:
	// cookiejar treats an unspecified SameSite as Lax for every profile.
	SameSiteDefault cookiejar.SameSite
}

// Headers returns a fresh Header seeded with the profile's default set plus
// UserAgent, whose entries the transaction layer appends after the caller's
// headers when the caller has not set them.
func (p *EmulationProfile) Headers() *header.Header {
	h := header.New(p.DefaultHeaders...)
	if p.UserAgent != "" && !h.Has("User-Agent") {
		h.Append("User-Agent", p.UserAgent)
	}
	return h
}

// ChromeEmulationProfile returns a Chrome-120-on-Windows profile: the
// teacher's fingerprint.ChromeProfile TLS shape plus its
// ChromeOrderedHeaders header list, generalized into this package's bundle
// type.
func ChromeEmulationProfile() *EmulationProfile {
	ua := "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	return &EmulationProfile{
		Name: "chrome-120-windows",
		TLS:  tlsprofile.Chrome120(),
		H2:   stream.DefaultH2Settings,
		DefaultHeaders: []header.Pair{
			{Name: "sec-ch-ua", Value: `"Not_A Brand";v="8", "Chromium";v="120", "Google Chrome";v="120"`},
			{Name: "sec-ch-ua-mobile", Value: "?0"},
			{Name: "sec-ch-ua-platform", Value: `"Windows"`},
			{Name: "Upgrade-Insecure-Requests", Value: "1"},
			{Name: "User-Agent", Value: ua},
			{Name: "Accept", Value: "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8"},
			{Name: "Sec-Fetch-Site", Value: "none"},
			{Name: "Sec-Fetch-Mode", Value: "navigate"},
			{Name: "Sec-Fetch-User", Value: "?1"},
			{Name: "Sec-Fetch-Dest", Value: "document"},
			{Name: "Accept-Encoding", Value: "gzip, deflate, br"},
			{Name: "Accept-Language", Value: "en-US,en;q=0.9"},
		},
		UserAgent:       ua,
		SameSiteDefault: cookiejar.SameSiteLax,
	}
}

// AuthorityFor formats a request-target authority the way the wire expects:
// "host" or "host:port" when port isn't the scheme default.
func AuthorityFor(host string, port int, scheme string) string {
	def := 80
	if scheme == "https" {
		def = 443
	}
	if port == def {
		return host
	}
	return host + ":" + strconv.Itoa(port)
}
