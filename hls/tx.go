package hls

import "nvmkv/status"

type hlsOp struct {
	key    [KeySize]byte
	value  []byte
	remove bool
}

// tx is HLS's transaction handle (spec §4.7): operations are staged and
// applied on Commit one at a time through the ordinary put path, with no
// shared epoch. A crash during Commit therefore recovers every op whose
// record was written before the crash and none of the later ones.
type tx struct {
	store *Store
	ops   []hlsOp
	done  bool
}

func newTx(s *Store) *tx {
	return &tx{store: s}
}

func (t *tx) Put(key, value []byte) error {
	if t.done {
		return status.New(status.InvalidArgument, "hls: tx already committed or ended")
	}
	if err := validateKey(key); err != nil {
		return err
	}
	if err := validateValue(value); err != nil {
		return err
	}
	valueCopy := append([]byte(nil), value...)
	t.ops = append(t.ops, hlsOp{key: toFixedKey(key), value: valueCopy})
	return nil
}

func (t *tx) Remove(key []byte) error {
	if t.done {
		return status.New(status.InvalidArgument, "hls: tx already committed or ended")
	}
	if err := validateKey(key); err != nil {
		return err
	}
	t.ops = append(t.ops, hlsOp{key: toFixedKey(key), remove: true})
	return nil
}

func (t *tx) Commit() error {
	if t.done {
		return status.New(status.InvalidArgument, "hls: tx already committed or ended")
	}
	t.done = true
	for _, op := range t.ops {
		if op.remove {
			if _, ok := t.store.index.lookup(op.key); !ok {
				continue // already absent; removing within a batch is not an error
			}
			if err := t.store.put(op.key, nil, true); err != nil {
				return err
			}
			continue
		}
		if err := t.store.put(op.key, op.value, false); err != nil {
			return err
		}
	}
	return nil
}

func (t *tx) End() error {
	if t.done {
		return status.New(status.InvalidArgument, "hls: tx already committed or ended")
	}
	t.done = true
	t.ops = nil
	return nil
}
