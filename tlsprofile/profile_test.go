package tlsprofile

import "testing"

func TestHashStableAcrossCalls(t *testing.T) {
	p := Chrome120()
	h1 := p.Hash()
	h2 := p.Hash()
	if h1 != h2 {
		t.Fatalf("Hash must be deterministic, got %q then %q", h1, h2)
	}
}

func TestHashDiffersOnALPN(t *testing.T) {
	a := Chrome120()
	b := Chrome120()
	b.ALPN = []string{"http/1.1"}
	if a.Hash() == b.Hash() {
		t.Fatal("profiles with different ALPN lists must not collide")
	}
}

func TestSNIForIPLiteralOmitsHostname(t *testing.T) {
	if got := SNIFor("93.184.216.34"); got != "" {
		t.Fatalf("SNI must be omitted for IPv4 literals, got %q", got)
	}
	if got := SNIFor("::1"); got != "" {
		t.Fatalf("SNI must be omitted for IPv6 literals, got %q", got)
	}
	if got := SNIFor("example.com"); got != "example.com" {
		t.Fatalf("SNI must be sent for DNS names, got %q", got)
	}
}

func TestCacheReturnsSameConnectorForEqualProfile(t *testing.T) {
	cache := NewCache()
	p1 := Chrome120()
	p2 := Chrome120()

	c1, err := cache.Get(p1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	c2, err := cache.Get(p2)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if c1 != c2 {
		t.Fatal("two structurally equal profiles must share one cached Connector")
	}
	if cache.Len() != 1 {
		t.Fatalf("expected exactly one cache entry, got %d", cache.Len())
	}
}

func TestCacheDistinctProfilesDistinctConnectors(t *testing.T) {
	cache := NewCache()
	p1 := Chrome120()
	p2 := Chrome120()
	p2.GREASE = false

	c1, _ := cache.Get(p1)
	c2, _ := cache.Get(p2)
	if c1 == c2 {
		t.Fatal("profiles differing in GREASE must not share a Connector")
	}
}
