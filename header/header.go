// Package header provides an insertion-order-preserving header multimap.
//
// net/http's http.Header is a map[string][]string, which both reorders
// entries and canonicalizes every key. Neither is acceptable here: HTTP/2
// transmits headers in the order they were added, and fingerprinting
// requires that order — and the exact casing — to be stable across requests
// sharing an emulation profile. Header is the engine's replacement for
// http.Header on every path that touches the wire.
package header

import "strings"

// entry stores one header pair with its original casing.
type entry struct {
	name  string // as supplied by the caller, original casing
	value string
}

// Header is a sequence of (name, value) pairs preserving insertion order.
//
// Header is NOT safe for concurrent use without external synchronization —
// in practice each request builds exactly one Header before handing it to
// the transaction layer, so no locking is needed.
type Header struct {
	entries []entry
	// index maps a lowercased name to the entries slice positions holding
	// it, kept in sync by every mutating method so Get/Values stay O(k)
	// in the number of matches rather than O(n) in total header count.
	index map[string][]int
}

func lower(name string) string { return strings.ToLower(name) }

func (h *Header) ensureIndex() {
	if h.index == nil {
		h.index = make(map[string][]int)
	}
}

func (h *Header) rebuildIndex() {
	h.index = make(map[string][]int, len(h.entries))
	for i, e := range h.entries {
		k := lower(e.name)
		h.index[k] = append(h.index[k], i)
	}
}

// Append adds name/value to the end of the sequence without deduplicating
// any existing entry for the same name. Name is stored with the exact
// casing given; lookups are case-insensitive.
func (h *Header) Append(name, value string) {
	h.ensureIndex()
	k := lower(name)
	h.index[k] = append(h.index[k], len(h.entries))
	h.entries = append(h.entries, entry{name: name, value: value})
}

// Insert replaces the first existing entry for name in place (preserving its
// position) and drops any further duplicates for that name. If name is not
// present, Insert behaves like Append.
func (h *Header) Insert(name, value string) {
	h.ensureIndex()
	k := lower(name)
	positions := h.index[k]
	if len(positions) == 0 {
		h.Append(name, value)
		return
	}
	first := positions[0]
	h.entries[first] = entry{name: name, value: value}
	if len(positions) == 1 {
		return
	}
	// Drop the duplicate positions, then rebuild the index since every
	// position after the first removed slot shifts.
	drop := make(map[int]bool, len(positions)-1)
	for _, p := range positions[1:] {
		drop[p] = true
	}
	out := h.entries[:0:0]
	for i, e := range h.entries {
		if drop[i] {
			continue
		}
		out = append(out, e)
	}
	h.entries = out
	h.rebuildIndex()
}

// Remove strips every entry matching name (case-insensitive).
func (h *Header) Remove(name string) {
	if h.index == nil {
		return
	}
	k := lower(name)
	if _, ok := h.index[k]; !ok {
		return
	}
	out := h.entries[:0:0]
	for _, e := range h.entries {
		if lower(e.name) == k {
			continue
		}
		out = append(out, e)
	}
	h.entries = out
	h.rebuildIndex()
}

// Get returns the value of the first entry matching name, and whether any
// entry was found.
func (h *Header) Get(name string) (string, bool) {
	if h.index == nil {
		return "", false
	}
	positions := h.index[lower(name)]
	if len(positions) == 0 {
		return "", false
	}
	return h.entries[positions[0]].value, true
}

// Values returns every value stored for name, in insertion order.
func (h *Header) Values(name string) []string {
	if h.index == nil {
		return nil
	}
	positions := h.index[lower(name)]
	if len(positions) == 0 {
		return nil
	}
	out := make([]string, len(positions))
	for i, p := range positions {
		out[i] = h.entries[p].value
	}
	return out
}

// Has reports whether any entry matches name.
func (h *Header) Has(name string) bool {
	_, ok := h.Get(name)
	return ok
}

// Len returns the number of entries, counting duplicates.
func (h *Header) Len() int { return len(h.entries) }

// Pair is one (name, value) tuple yielded by Each, in wire casing.
type Pair struct {
	Name  string
	Value string
}

// Each calls fn once per entry in insertion order. fn must not mutate h.
func (h *Header) Each(fn func(name, value string)) {
	for _, e := range h.entries {
		fn(e.name, e.value)
	}
}

// Pairs returns a snapshot of every entry in insertion order.
func (h *Header) Pairs() []Pair {
	out := make([]Pair, len(h.entries))
	for i, e := range h.entries {
		out[i] = Pair{Name: e.name, Value: e.value}
	}
	return out
}

// Clone returns a deep-enough copy: mutating the clone never affects h.
func (h *Header) Clone() *Header {
	c := &Header{entries: make([]entry, len(h.entries))}
	copy(c.entries, h.entries)
	c.rebuildIndex()
	return c
}

// Merge appends every entry of other onto h in other's order, preserving
// duplicates — used when overlaying caller-supplied headers on top of an
// emulation profile's default send order.
func (h *Header) Merge(other *Header) {
	if other == nil {
		return
	}
	for _, e := range other.entries {
		h.Append(e.name, e.value)
	}
}

// New builds a Header from an ordered list of pairs, for tests and fixed
// profile construction.
func New(pairs ...Pair) *Header {
	h := &Header{}
	for _, p := range pairs {
		h.Append(p.Name, p.Value)
	}
	return h
}
