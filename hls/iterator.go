package hls

import "nvmkv/status"

// readIterator is a snapshot cursor over HLS's unordered keyspace. HLS does
// not advertise the "bidirectional" capability (spec §4.5): only forward
// Next/IsNext and Seek are supported.
type readIterator struct {
	store    *Store
	snapshot []indexEntry
	pos      int // -1 before the first Seek/Next
}

func newReadIterator(s *Store) *readIterator {
	it := &readIterator{store: s, pos: -1}
	s.index.rangeAll(func(e indexEntry) bool {
		it.snapshot = append(it.snapshot, e)
		return true
	})
	return it
}

func (it *readIterator) Seek(key []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	fk := toFixedKey(key)
	for i, e := range it.snapshot {
		if e.Key == fk {
			it.pos = i
			return nil
		}
	}
	return status.New(status.NotFound, "hls: seek: key not found")
}

func (it *readIterator) Key() ([]byte, error) {
	if it.pos < 0 || it.pos >= len(it.snapshot) {
		return nil, status.New(status.InvalidArgument, "hls: iterator is unpositioned")
	}
	key := it.snapshot[it.pos].Key
	out := make([]byte, KeySize)
	copy(out, key[:])
	return out, nil
}

func (it *readIterator) currentValue() ([]byte, error) {
	if it.pos < 0 || it.pos >= len(it.snapshot) {
		return nil, status.New(status.InvalidArgument, "hls: iterator is unpositioned")
	}
	e := it.snapshot[it.pos]
	_, value, _ := it.store.shards[e.Shard].readRecord(int(e.Offset))
	return value, nil
}

func (it *readIterator) ReadRange(pos, n int) ([]byte, error) {
	value, err := it.currentValue()
	if err != nil {
		return nil, err
	}
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

func (it *readIterator) Next() error {
	if it.pos+1 >= len(it.snapshot) {
		it.pos = len(it.snapshot)
		return status.New(status.NotFound, "hls: no further elements")
	}
	it.pos++
	return nil
}

func (it *readIterator) IsNext() bool {
	return it.pos+1 < len(it.snapshot)
}

func (it *readIterator) Close() error {
	it.snapshot = nil
	return nil
}
