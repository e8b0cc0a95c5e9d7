package hbt

import "nvmkv/status"

type hbtOp struct {
	key    []byte
	value  []byte
	remove bool
}

// tx is HBT's transaction handle (spec §4.7): operations are staged and
// applied in order on Commit, matching HLS's tx semantics so both engines
// give transactions the same externally observable behavior.
type tx struct {
	t    *Tree
	ops  []hbtOp
	done bool
}

func newTx(t *Tree) *tx {
	return &tx{t: t}
}

func (t *tx) Put(key, value []byte) error {
	if t.done {
		return status.New(status.InvalidArgument, "hbt: tx already committed or ended")
	}
	if err := validateKey(key); err != nil {
		return err
	}
	if err := validateValue(value); err != nil {
		return err
	}
	t.ops = append(t.ops, hbtOp{key: append([]byte(nil), key...), value: append([]byte(nil), value...)})
	return nil
}

func (t *tx) Remove(key []byte) error {
	if t.done {
		return status.New(status.InvalidArgument, "hbt: tx already committed or ended")
	}
	if err := validateKey(key); err != nil {
		return err
	}
	t.ops = append(t.ops, hbtOp{key: append([]byte(nil), key...), remove: true})
	return nil
}

func (t *tx) Commit() error {
	if t.done {
		return status.New(status.InvalidArgument, "hbt: tx already committed or ended")
	}
	t.done = true
	for _, op := range t.ops {
		if op.remove {
			if err := t.t.Remove(op.key); err != nil && status.Of(err) != status.NotFound {
				return err
			}
			continue
		}
		if err := t.t.Put(op.key, op.value); err != nil {
			return err
		}
	}
	return nil
}

func (t *tx) End() error {
	if t.done {
		return status.New(status.InvalidArgument, "hbt: tx already committed or ended")
	}
	t.done = true
	t.ops = nil
	return nil
}
