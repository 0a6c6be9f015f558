package tlsprofile

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"sync"

	utls "github.com/refraction-networking/utls"
)

// greaseValues are the sixteen reserved cipher/extension/group/version
// values from RFC 8701, all of the form 0x?A?A. A real browser picks one at
// random per connection; Build picks one per Profile.PermutationSeed so a
// custom profile's GREASE value stays stable across requests instead of
// changing the fingerprint on every handshake.
var greaseValues = []uint16{
	0x0a0a, 0x1a1a, 0x2a2a, 0x3a3a, 0x4a4a, 0x5a5a, 0x6a6a, 0x7a7a,
	0x8a8a, 0x9a9a, 0xaaaa, 0xbaba, 0xcaca, 0xdada, 0xeaea, 0xfafa,
}

// Connector holds the derived ClientHelloSpec for one Profile and performs
// handshakes against arbitrary connections. Connector is safe for
// concurrent use — Handshake builds a fresh *utls.UConn per call, only the
// (read-only, post-ApplyPreset) spec is shared.
type Connector struct {
	profile *Profile
	spec    utls.ClientHelloSpec
}

// Handshake wraps conn in a uTLS client configured per c's spec and performs
// the TLS handshake. serverName is the SNI hostname; per RFC 6066, SNI is
// omitted entirely when the target host is an IP literal, so callers should
// pass "" in that case rather than the dotted/colon address.
func (c *Connector) Handshake(ctx context.Context, conn net.Conn, serverName string, insecureSkipVerify bool) (*utls.UConn, error) {
	cfg := &utls.Config{
		ServerName:         serverName,
		InsecureSkipVerify: insecureSkipVerify,
	}
	helloID := c.profile.Base
	if helloID == (utls.ClientHelloID{}) {
		helloID = utls.HelloCustom
	}
	uconn := utls.UClient(conn, cfg, helloID)
	specCopy := c.spec
	if err := uconn.ApplyPreset(&specCopy); err != nil {
		return nil, fmt.Errorf("tlsprofile: apply preset %s: %w", helloID.Str(), err)
	}
	if err := uconn.HandshakeContext(ctx); err != nil {
		return nil, fmt.Errorf("tlsprofile: handshake: %w", err)
	}
	return uconn, nil
}

// SNIFor returns the hostname to present as SNI for host, or "" if host is
// an IP literal and SNI must be omitted (RFC 6066 §3).
func SNIFor(host string) string {
	if net.ParseIP(host) != nil {
		return ""
	}
	return host
}

// Build derives a uTLS ClientHelloSpec from p. When p.Base names a known
// uTLS parrot, the parrot's spec is used as the starting point (it already
// encodes GREASE placeholders, cipher order and the browser's shuffled
// extension order); explicit Profile fields then override the
// corresponding pieces of that spec. When p.Base is the zero value the spec
// is built field-by-field, and p.GREASE/p.PermutationSeed are applied
// directly since there is no parrot already carrying that behavior.
func Build(p *Profile) (*Connector, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	isParrot := p.Base != (utls.ClientHelloID{})

	var spec utls.ClientHelloSpec
	if isParrot {
		s, err := utls.UTLSIdToSpec(p.Base)
		if err != nil {
			return nil, fmt.Errorf("tlsprofile: resolve base parrot %s: %w", p.Base.Str(), err)
		}
		spec = s
	} else {
		spec = utls.ClientHelloSpec{CompressionMethods: []uint8{0}}
	}

	if len(p.CipherSuites) > 0 {
		spec.CipherSuites = p.CipherSuites
	}
	if p.MinVersion != 0 {
		spec.TLSVersMin = p.MinVersion
	}
	if p.MaxVersion != 0 {
		spec.TLSVersMax = p.MaxVersion
	}
	if len(p.ALPN) > 0 {
		replaceExtension(&spec, func(e utls.TLSExtension) bool {
			_, ok := e.(*utls.ALPNExtension)
			return ok
		}, &utls.ALPNExtension{AlpnProtocols: p.ALPN})
	}
	if len(p.NamedGroups) > 0 {
		replaceExtension(&spec, func(e utls.TLSExtension) bool {
			_, ok := e.(*utls.SupportedCurvesExtension)
			return ok
		}, &utls.SupportedCurvesExtension{Curves: p.NamedGroups})
	}
	if len(p.SignatureAlgorithms) > 0 {
		replaceExtension(&spec, func(e utls.TLSExtension) bool {
			_, ok := e.(*utls.SignatureAlgorithmsExtension)
			return ok
		}, &utls.SignatureAlgorithmsExtension{SupportedSignatureAlgorithms: p.SignatureAlgorithms})
	}
	if len(p.CertCompression) > 0 {
		replaceExtension(&spec, func(e utls.TLSExtension) bool {
			_, ok := e.(*utls.UtlsCompressCertExtension)
			return ok
		}, &utls.UtlsCompressCertExtension{Algorithms: p.CertCompression})
	}
	if p.ALPS {
		hasALPS := false
		for _, e := range spec.Extensions {
			if _, ok := e.(*utls.ApplicationSettingsExtension); ok {
				hasALPS = true
				break
			}
		}
		if !hasALPS {
			spec.Extensions = append(spec.Extensions, &utls.ApplicationSettingsExtension{SupportedProtocols: []string{"h2"}})
		}
	}

	if !isParrot {
		if p.PermutationSeed != 0 {
			shuffleExtensions(&spec, p.PermutationSeed)
		}
		if p.GREASE {
			insertGrease(&spec, p.PermutationSeed)
		}
	}

	return &Connector{profile: p, spec: spec}, nil
}

// shuffleExtensions deterministically reorders spec.Extensions using seed.
// Chrome randomizes extension order per connection; a custom profile pins
// one seed instead so repeated Acquire calls against the same Profile keep
// sending the same ClientHello shape. Only meaningful for the non-parrot
// path — a parrot's Extensions already carry the browser's own order, which
// callers rely on for an exact match and which this would only scramble.
func shuffleExtensions(spec *utls.ClientHelloSpec, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(spec.Extensions), func(i, j int) {
		spec.Extensions[i], spec.Extensions[j] = spec.Extensions[j], spec.Extensions[i]
	})
}

// insertGrease brackets spec.Extensions with a GREASE extension at each end
// and prepends a GREASE cipher suite, the shape real browsers send per
// RFC 8701. seed picks which of the sixteen reserved values is used, keeping
// the choice stable across requests for the same Profile rather than
// rerolling it per handshake.
func insertGrease(spec *utls.ClientHelloSpec, seed int64) {
	v := greaseValues[uint64(seed)%uint64(len(greaseValues))]
	spec.CipherSuites = append([]uint16{v}, spec.CipherSuites...)
	spec.Extensions = append([]utls.TLSExtension{&utls.UtlsGREASEExtension{}}, spec.Extensions...)
	spec.Extensions = append(spec.Extensions, &utls.UtlsGREASEExtension{})
}

// replaceExtension swaps the first extension matching match for repl,
// appending repl if nothing matched. Order among the remaining extensions is
// left untouched, preserving the parrot's fingerprint shape.
func replaceExtension(spec *utls.ClientHelloSpec, match func(utls.TLSExtension) bool, repl utls.TLSExtension) {
	for i, e := range spec.Extensions {
		if match(e) {
			spec.Extensions[i] = repl
			return
		}
	}
	spec.Extensions = append(spec.Extensions, repl)
}

// Cache maps a Profile's structural hash to its built Connector. Entries are
// never evicted or replaced once built, and Cache is safe for concurrent
// use.
type Cache struct {
	mu    sync.RWMutex
	store map[string]*Connector
}

// NewCache returns an empty Cache.
func NewCache() *Cache {
	return &Cache{store: make(map[string]*Connector)}
}

// Get returns the cached Connector for p, building and storing one if this
// is the first request for p's fingerprint.
func (c *Cache) Get(p *Profile) (*Connector, error) {
	key := p.Hash()

	c.mu.RLock()
	conn, ok := c.store[key]
	c.mu.RUnlock()
	if ok {
		return conn, nil
	}

	built, err := Build(p)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if existing, ok := c.store[key]; ok {
		c.mu.Unlock()
		return existing, nil
	}
	c.store[key] = built
	c.mu.Unlock()
	return built, nil
}

// Len reports how many distinct fingerprints are currently cached.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}
