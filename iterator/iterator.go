// Package iterator defines the cursor capability set shared by read and
// write iterators over both kinds of engines (spec §3.6, §4.5).
package iterator

// Visitor visits one (key, value) pair during a bulk scan; a non-zero
// return stops iteration early (spec §4.1 "get_all").
type Visitor func(key, value []byte) int

// Reader is the capability set every iterator offers: seek, key, a
// read-only view into the current value, and forward advance.
type Reader interface {
	// Seek positions the cursor at the exact key. Any uncommitted writes
	// on a write iterator are silently aborted first.
	Seek(key []byte) error

	// Key returns the current key view; error if unpositioned.
	Key() ([]byte, error)

	// ReadRange returns a read-only view of bytes [pos, min(pos+n, len))
	// of the current value; zero-sized if pos >= len.
	ReadRange(pos, n int) ([]byte, error)

	// Next advances in the engine's ordering.
	Next() error

	// IsNext reports whether a following element exists.
	IsNext() bool

	// Close releases the cursor's reference to the owning engine.
	Close() error
}

// Bidirectional is implemented by iterators over engines that advertise the
// "bidirectional" capability (HBT; not HLS, spec §4.5).
type Bidirectional interface {
	Reader

	Prev() error
	SeekToFirst() error
	SeekToLast() error
	SeekLower(key []byte) error
	SeekLowerEq(key []byte) error
	SeekHigher(key []byte) error
	SeekHigherEq(key []byte) error
}

// Writer adds staged in-place value mutation under a commit/abort protocol
// (spec §3.6, §4.5).
type Writer interface {
	Reader

	// WriteRange returns a writable view of the current value starting at
	// pos, staged in a per-iterator log until Commit.
	WriteRange(pos, n int) ([]byte, error)

	// Commit applies the staged log atomically to the underlying value.
	Commit() error

	// Abort discards the staged log.
	Abort() error
}
