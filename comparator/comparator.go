// Package comparator defines the named three-way key ordering used by
// ordered engines (spec §3.5, §4.6).
package comparator

import "bytes"

// DefaultName is the reserved name of the lexicographic byte comparator.
const DefaultName = "__pmemkv_binary_comparator"

// Func is a total order over byte strings: negative if a < b, zero if equal,
// positive if a > b. Implementations must be Send+Sync-equivalent — i.e.
// safe to call concurrently from multiple reader goroutines — because
// ordered engines may invoke them from several readers at once (spec §9).
type Func func(a, b []byte) int

// Comparator is a named comparator, persisted with the region on create and
// checked against on reopen (spec §3.5).
type Comparator struct {
	name    string
	compare Func
}

// New wraps a comparison function under a stable name.
func New(name string, fn Func) *Comparator {
	return &Comparator{name: name, compare: fn}
}

// Name returns the comparator's persisted identifier.
func (c *Comparator) Name() string {
	if c == nil {
		return DefaultName
	}
	return c.name
}

// Compare evaluates the three-way order of a against b.
func (c *Comparator) Compare(a, b []byte) int {
	if c == nil {
		return bytes.Compare(a, b)
	}
	return c.compare(a, b)
}

// Default is the lexicographic byte-order comparator installed when config
// carries none.
var Default = New(DefaultName, bytes.Compare)
