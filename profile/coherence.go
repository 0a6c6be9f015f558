package profile

import (
	"fmt"
	"strings"
)

// browserFamily identifies which browser a profile or User-Agent string
// claims to be, for cross-checking that the two agree.
type browserFamily int

const (
	familyUnknown browserFamily = iota
	familyChrome
	familyFirefox
	familySafari
)

func familyOf(s string) browserFamily {
	s = strings.ToLower(s)
	switch {
	case strings.Contains(s, "firefox"):
		return familyFirefox
	case strings.Contains(s, "chrome"), strings.Contains(s, "chromium"):
		return familyChrome
	case strings.Contains(s, "safari") && !strings.Contains(s, "chrome"):
		return familySafari
	default:
		return familyUnknown
	}
}

// Validate checks that a profile has a TLS fingerprint and a User-Agent, and
// that its declared name, User-Agent and client-hint headers agree on a
// single browser identity; the TLS fingerprint's own browser family is not
// compared. Advanced anti-bot systems
// correlate these three signals; a Chrome-shaped ClientHello paired with a
// Firefox User-Agent (or vice versa) is a reliable automation tell, so a
// mismatch here is a configuration bug worth catching before the profile
// ever reaches the wire.
func (p *EmulationProfile) Validate() error {
	if p.TLS == nil {
		return fmt.Errorf("profile: %s has no TLS fingerprint", p.Name)
	}
	if p.UserAgent == "" {
		return fmt.Errorf("profile: %s has no User-Agent", p.Name)
	}

	nameFamily := familyOf(p.Name)
	uaFamily := familyOf(p.UserAgent)
	if nameFamily != familyUnknown && uaFamily != familyUnknown && nameFamily != uaFamily {
		return fmt.Errorf("profile: %s declares %s but User-Agent %q looks like %s",
			p.Name, nameFamily, p.UserAgent, uaFamily)
	}

	hasClientHints := p.Headers().Has("sec-ch-ua")
	if uaFamily == familyChrome && !hasClientHints {
		return fmt.Errorf("profile: %s has a Chrome User-Agent but no sec-ch-ua client hints", p.Name)
	}
	if uaFamily == familyFirefox && hasClientHints {
		return fmt.Errorf("profile: %s has a Firefox User-Agent but sends Chrome-only sec-ch-ua client hints", p.Name)
	}

	return nil
}

func (f browserFamily) String() string {
	switch f {
	case familyChrome:
		return "Chrome"
	case familyFirefox:
		return "Firefox"
	case familySafari:
		return "Safari"
	default:
		return "unknown"
	}
}
