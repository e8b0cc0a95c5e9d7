package hbt

import "nvmkv/status"

// cursor is HBT's bidirectional snapshot cursor (spec §4.5): HBT advertises
// the "bidirectional" capability, unlike HLS. It copies every key and value,
// in ascending key order, at construction time, matching HLS's read
// iterator's snapshot-isolation shape.
type cursor struct {
	t    *Tree
	keys [][]byte
	vals [][]byte
	pos  int // -1 before the first Seek*/Next/Prev
}

func newCursor(t *Tree) *cursor {
	c := &cursor{t: t, pos: -1}
	t.visitRange(nil, nil, false, false, func(k, v []byte) int {
		c.keys = append(c.keys, append([]byte(nil), k...))
		c.vals = append(c.vals, append([]byte(nil), v...))
		return 0
	})
	return c
}

func (c *cursor) positioned() bool { return c.pos >= 0 && c.pos < len(c.keys) }

func (c *cursor) Seek(key []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	for i, k := range c.keys {
		if c.t.compare(k, key) == 0 {
			c.pos = i
			return nil
		}
	}
	return status.New(status.NotFound, "hbt: seek: key not found")
}

func (c *cursor) SeekLower(key []byte) error    { return c.seekRel(key, false, false) }
func (c *cursor) SeekLowerEq(key []byte) error  { return c.seekRel(key, false, true) }
func (c *cursor) SeekHigher(key []byte) error   { return c.seekRel(key, true, false) }
func (c *cursor) SeekHigherEq(key []byte) error { return c.seekRel(key, true, true) }

func (c *cursor) seekRel(key []byte, higher, orEqual bool) error {
	if err := validateKey(key); err != nil {
		return err
	}
	best := -1
	for i, k := range c.keys {
		cmp := c.t.compare(k, key)
		if cmp == 0 && orEqual {
			c.pos = i
			return nil
		}
		if higher && cmp > 0 {
			if best == -1 || c.t.compare(c.keys[i], c.keys[best]) < 0 {
				best = i
			}
		}
		if !higher && cmp < 0 {
			if best == -1 || c.t.compare(c.keys[i], c.keys[best]) > 0 {
				best = i
			}
		}
	}
	if best == -1 {
		return status.New(status.NotFound, "hbt: no matching key")
	}
	c.pos = best
	return nil
}

func (c *cursor) SeekToFirst() error {
	if len(c.keys) == 0 {
		return status.New(status.NotFound, "hbt: empty")
	}
	c.pos = 0
	return nil
}

func (c *cursor) SeekToLast() error {
	if len(c.keys) == 0 {
		return status.New(status.NotFound, "hbt: empty")
	}
	c.pos = len(c.keys) - 1
	return nil
}

func (c *cursor) Key() ([]byte, error) {
	if !c.positioned() {
		return nil, status.New(status.InvalidArgument, "hbt: iterator is unpositioned")
	}
	return c.keys[c.pos], nil
}

func (c *cursor) ReadRange(pos, n int) ([]byte, error) {
	if !c.positioned() {
		return nil, status.New(status.InvalidArgument, "hbt: iterator is unpositioned")
	}
	value := c.vals[c.pos]
	if pos >= len(value) {
		return []byte{}, nil
	}
	end := pos + n
	if end > len(value) {
		end = len(value)
	}
	out := make([]byte, end-pos)
	copy(out, value[pos:end])
	return out, nil
}

func (c *cursor) Next() error {
	if c.pos+1 >= len(c.keys) {
		c.pos = len(c.keys)
		return status.New(status.NotFound, "hbt: no further elements")
	}
	c.pos++
	return nil
}

func (c *cursor) IsNext() bool { return c.pos+1 < len(c.keys) }

func (c *cursor) Prev() error {
	if c.pos <= 0 {
		c.pos = -1
		return status.New(status.NotFound, "hbt: no prior elements")
	}
	c.pos--
	return nil
}

func (c *cursor) Close() error {
	c.keys = nil
	c.vals = nil
	return nil
}

// writeCursor adds staged in-place value mutation to cursor (spec §4.5,
// component I "write cursors with in-place mutation"). A write is staged
// into a local buffer and only applied to the underlying leaf slot on
// Commit, matching HLS's reasoning that mutations must not be visible to
// concurrent readers mid-edit.
type writeCursor struct {
	cursor
	staged    []byte
	hasStaged bool
}

func newWriteCursor(t *Tree) *writeCursor {
	return &writeCursor{cursor: cursor{t: t, pos: -1}}
}

func (w *writeCursor) Seek(key []byte) error {
	w.staged = nil
	w.hasStaged = false
	if len(w.keys) == 0 {
		w.keys = nil
		w.vals = nil
		w.t.visitRange(nil, nil, false, false, func(k, v []byte) int {
			w.keys = append(w.keys, append([]byte(nil), k...))
			w.vals = append(w.vals, append([]byte(nil), v...))
			return 0
		})
	}
	return w.cursor.Seek(key)
}

func (w *writeCursor) WriteRange(pos, n int) ([]byte, error) {
	if !w.positioned() {
		return nil, status.New(status.InvalidArgument, "hbt: iterator is unpositioned")
	}
	if !w.hasStaged {
		w.staged = append([]byte(nil), w.vals[w.pos]...)
		w.hasStaged = true
	}
	if pos+n > len(w.staged) {
		grown := make([]byte, pos+n)
		copy(grown, w.staged)
		w.staged = grown
	}
	return w.staged[pos : pos+n], nil
}

func (w *writeCursor) Commit() error {
	if !w.hasStaged {
		return nil
	}
	if !w.positioned() {
		return status.New(status.InvalidArgument, "hbt: iterator is unpositioned")
	}
	key := w.keys[w.pos]
	if err := validateValue(w.staged); err != nil {
		return err
	}
	w.t.mu.Lock()
	defer w.t.mu.Unlock()
	routeIdx := w.t.routeIndex(key)
	lf := leaf{t: w.t, offset: w.t.routes[routeIdx].offset}
	slotIdx, ok := lf.find(key, w.t.compare)
	if !ok {
		return status.New(status.NotFound, "hbt: key not found")
	}
	if lf.allocSlots() < LeafKeys {
		lf.updateAt(slotIdx, key, w.staged)
	} else if err := w.t.split(routeIdx, lf, key, w.staged); err != nil {
		return err
	}
	w.vals[w.pos] = append([]byte(nil), w.staged...)
	w.staged = nil
	w.hasStaged = false
	return nil
}

func (w *writeCursor) Abort() error {
	w.staged = nil
	w.hasStaged = false
	return nil
}
