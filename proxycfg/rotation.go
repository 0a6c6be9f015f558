package proxycfg

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Rotator hands out Configs from a fixed list in round-robin order,
// generalized to parsed Config values rather than an opaque proxy string so
// each hop carries its own scheme/host/port/auth.
//
// Thread-safety: a sync.Mutex serializes all mutations of index, so Next may
// be called from any number of goroutines simultaneously without data
// races.
type Rotator struct {
	proxies []Config
	index   int
	mu      sync.Mutex
}

// LoadFile reads a newline-delimited list of proxy URLs from filename and
// replaces the rotator's list. Lines that are blank or start with '#' are
// skipped. It is the caller's responsibility not to call LoadFile
// concurrently with Next.
func (r *Rotator) LoadFile(filename string) error {
	f, err := os.Open(filename) // #nosec G304 -- filename is an operator-supplied config path
	if err != nil {
		return fmt.Errorf("proxycfg: open %q: %w", filename, err)
	}
	defer f.Close()

	var loaded []Config
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		cfg, err := Parse(line)
		if err != nil {
			return fmt.Errorf("proxycfg: %q: %w", filename, err)
		}
		loaded = append(loaded, cfg)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("proxycfg: read %q: %w", filename, err)
	}

	r.mu.Lock()
	r.proxies = loaded
	r.index = 0
	r.mu.Unlock()
	return nil
}

// Next returns the next Config in rotation and advances the index. The zero
// Config (direct) is returned if no proxies are loaded.
func (r *Rotator) Next() Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.proxies) == 0 {
		return Config{}
	}
	p := r.proxies[r.index]
	r.index = (r.index + 1) % len(r.proxies)
	return p
}

// Count returns the number of loaded proxies.
func (r *Rotator) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.proxies)
}
