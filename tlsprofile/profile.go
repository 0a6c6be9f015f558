// Package tlsprofile declares the ClientHello shape the engine presents on
// the wire and caches the built connector per profile.
//
// Building a uTLS ClientHelloSpec and its derived internal tables is the
// dominant connection-setup cost; without caching, every connection would
// pay a multi-millisecond penalty to re-derive a spec it already built for
// an earlier connection sharing the same profile. Profile
// is immutable once passed to Build, and Cache keys the built Connector by
// the profile's structural hash so concurrent connections to any number of
// origins share one Connector per distinct fingerprint.
package tlsprofile

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	utls "github.com/refraction-networking/utls"
)

// CertCompressionAlgo mirrors utls.CertCompressionAlgo so callers outside
// this package don't need to import utls directly to build a Profile.
type CertCompressionAlgo = utls.CertCompressionAlgo

// Profile declaratively configures a ClientHello. It is immutable after
// Build is called on it — callers that need a variant should clone the
// fields into a new Profile rather than mutate one that has already been
// cached.
type Profile struct {
	// Base seeds the profile from a real browser's parrot spec shipped by
	// uTLS (e.g. utls.HelloChrome_120). When Base is the zero value the
	// profile is built entirely from the explicit fields below.
	Base utls.ClientHelloID

	MinVersion uint16
	MaxVersion uint16

	// CipherSuites, in wire order. Nil means "inherit from Base".
	CipherSuites []uint16

	// ALPN lists application protocols in preference order, e.g.
	// []string{"h2", "http/1.1"}.
	ALPN []string

	// NamedGroups lists TLS supported_groups (curves/FFDHE groups) in order.
	NamedGroups []utls.CurveID

	// SignatureAlgorithms lists the signature_algorithms extension values.
	SignatureAlgorithms []utls.SignatureScheme

	// GREASE toggles RFC 8701 GREASE placeholder values: with a zero Base,
	// Build prepends a GREASE cipher suite and puts a GREASE extension at
	// each end of the extension list. Supported-groups and ALPN lists get no
	// GREASE values, and a parrot Base keeps its own GREASE placement.
	GREASE bool

	// ALPS toggles the application-settings extension (used by Chrome for
	// HTTP/2 ALPS) when the negotiated ALPN is h2.
	ALPS bool

	// CertCompression lists accepted certificate-compression algorithms in
	// preference order (e.g. brotli alone, as Chrome120 sets it).
	CertCompression []CertCompressionAlgo

	// PermutationSeed drives the deterministic shuffle of non-GREASE
	// extensions that some browser versions apply (Chrome randomizes
	// extension order per connection but within a profile the engine pins
	// one seed so the fingerprint is stable across requests, which is what
	// callers rely on for consistent reuse).
	PermutationSeed int64
}

// Hash returns a stable hex digest of every field that affects the wire
// shape of the ClientHello. Two Profiles with equal Hash produce byte
// identical (GREASE aside) ClientHellos and may safely share a Connector.
func (p *Profile) Hash() string {
	h := sha256.New()
	write := func(vs ...uint64) {
		var buf [8]byte
		for _, v := range vs {
			binary.BigEndian.PutUint64(buf[:], v)
			h.Write(buf[:])
		}
	}
	h.Write([]byte(p.Base.Client))
	h.Write([]byte(p.Base.Version))
	write(uint64(p.MinVersion), uint64(p.MaxVersion), uint64(p.PermutationSeed))
	write(uint64(len(p.CipherSuites)))
	for _, c := range p.CipherSuites {
		write(uint64(c))
	}
	write(uint64(len(p.ALPN)))
	for _, a := range p.ALPN {
		write(uint64(len(a)))
		h.Write([]byte(a))
	}
	write(uint64(len(p.NamedGroups)))
	for _, g := range p.NamedGroups {
		write(uint64(g))
	}
	write(uint64(len(p.SignatureAlgorithms)))
	for _, s := range p.SignatureAlgorithms {
		write(uint64(s))
	}
	write(uint64(len(p.CertCompression)))
	for _, c := range p.CertCompression {
		write(uint64(c))
	}
	if p.GREASE {
		h.Write([]byte{1})
	}
	if p.ALPS {
		h.Write([]byte{2})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Chrome120 returns a Profile parroting Chrome 120 on Windows, seeded from
// uTLS's own Chrome 120 parrot table and layering the certificate-compression
// preference a current Chrome build advertises.
func Chrome120() *Profile {
	return &Profile{
		Base:       utls.HelloChrome_120,
		MinVersion: utls.VersionTLS12,
		MaxVersion: utls.VersionTLS13,
		ALPN:       []string{"h2", "http/1.1"},
		GREASE:     true,
		ALPS:       true,
		CertCompression: []CertCompressionAlgo{
			utls.CertCompressionBrotli,
		},
		PermutationSeed: 120,
	}
}

// Validate reports a configuration error that would make Build produce a
// nonsensical ClientHelloSpec: a profile with neither a Base parrot nor
// explicit CipherSuites. No other field is checked.
func (p *Profile) Validate() error {
	if p.Base == (utls.ClientHelloID{}) && len(p.CipherSuites) == 0 {
		return fmt.Errorf("tlsprofile: profile has neither a Base parrot nor explicit CipherSuites")
	}
	return nil
}
