// Package hbt implements the hybrid B+-tree (spec §4.4): an ordered map
// with persistent leaves (fixed-capacity slot arrays with a
// double-buffered, atomically-switched sorted index) and volatile inner
// routing rebuilt from the leaf chain on every open.
package hbt

import (
	"encoding/binary"

	"nvmkv/status"
)

const (
	// LeafKeys is a leaf's fixed slot capacity (spec §4.4).
	LeafKeys = 48
	// InnerKeys is the inner-node key count of spec §4.4. The flat routing
	// slice in tree.go is not bounded by it; nothing in this package reads it.
	InnerKeys = 4
	// KeyCap and ValueCap are this engine's compile-time per-slot caps
	// (spec §4.4 "per-engine compile-time caps (e.g. 20 and 200 bytes)").
	KeyCap   = 64
	ValueCap = 512

	unusedIdx uint8 = 0xFF

	// EngineName is the name this backend registers and persists in the
	// region header (spec §6 "tree3").
	EngineName = "tree3"
)

// slot layout within a leaf: phash(1) | key_len(2) | val_len(2) | key[KeyCap] | value[ValueCap]
const slotHeaderSize = 1 + 2 + 2
const slotSize = slotHeaderSize + KeyCap + ValueCap

// leaf header layout (fixed part preceding the two index arrays and the
// slot array):
//
//	usedSlots   uint8
//	consistentID uint8
//	superseded  uint8  (1 once this leaf has been replaced by a split)
//	allocSlots  uint8  (physical slots ever handed out; see leaf.allocSlots)
//	next        uint64 (absolute payload offset of the next leaf; 0 = none)
//	checksum    uint64 (reserved; not written or checked by this package)
const (
	leafFixedHeaderSize = 1 + 1 + 1 + 1 + 8 + 8
	leafIdxArraysSize   = 2 * LeafKeys
	leafHeaderSize      = leafFixedHeaderSize + leafIdxArraysSize
	// LeafSize is the total persisted size of one leaf.
	LeafSize = leafHeaderSize + LeafKeys*slotSize
)

func validateKey(key []byte) error {
	if len(key) == 0 || len(key) > KeyCap {
		return status.New(status.InvalidArgument, "hbt: key length %d out of range (1..%d)", len(key), KeyCap)
	}
	return nil
}

func validateValue(value []byte) error {
	if len(value) > ValueCap {
		return status.New(status.InvalidArgument, "hbt: value length %d > %d", len(value), ValueCap)
	}
	return nil
}

// pearsonTable is a fixed byte permutation used by pearsonHash. Built once
// from a simple affine generator rather than hand-transcribed, since only
// determinism (not cryptographic mixing) matters for a negative-lookup
// pre-filter.
var pearsonTable = func() [256]byte {
	var t [256]byte
	for i := range t {
		t[i] = byte(i*167 + 23)
	}
	return t
}()

// pearsonHash is the 1-byte hash precomputed per key to accelerate negative
// lookups within a leaf (spec §4.4 "Per-leaf 1-byte Pearson hash").
func pearsonHash(key []byte) uint8 {
	var h byte
	for _, b := range key {
		h = pearsonTable[h^b]
	}
	return h
}

func putUint64(dst []byte, v uint64) { binary.LittleEndian.PutUint64(dst, v) }
func getUint64(src []byte) uint64    { return binary.LittleEndian.Uint64(src) }
func putUint16(dst []byte, v uint16) { binary.LittleEndian.PutUint16(dst, v) }
func getUint16(src []byte) uint16    { return binary.LittleEndian.Uint16(src) }
