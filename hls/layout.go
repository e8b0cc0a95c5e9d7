// Package hls implements the hash-indexed log store (spec §4.3): an
// unordered, concurrent, crash-consistent backend for fixed-width 16-byte
// keys and values capped at 1024 bytes, persisted on nvmkv/pmem
// and indexed by a volatile, rebuilt-on-open DRAM hash table.
package hls

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"nvmkv/status"
)

const (
	// KeySize is the fixed key width the engine accepts (spec §3.1).
	KeySize = 16
	// MaxValueSize is the largest value a record may hold (spec §3.1).
	MaxValueSize = 1024
	// BlockSize is the on-media allocation granularity records are padded
	// to (spec §4.3).
	BlockSize = 32
	// ThreadNum is the fixed shard count the value log is partitioned
	// into (spec §4.3 "THREAD_NUM shards, e.g. 16").
	ThreadNum = 16

	// slotHeaderSize is the 6-byte packed {value_size:16, block_size:8,
	// version:8, checksum:16} record header (spec §4.3).
	slotHeaderSize = 6
)

// EngineName is the name this backend registers and persists in the region
// header (spec §6 "fmap").
const EngineName = "fmap"

// slotHeader is the decoded form of the 6-byte on-media record header.
type slotHeader struct {
	ValueSize uint16
	BlockSize uint8
	Version   uint8
	Checksum  uint16 // low 16 bits of the xxhash64 block checksum
}

func (h slotHeader) encode(dst []byte) {
	binary.LittleEndian.PutUint16(dst[0:2], h.ValueSize)
	dst[2] = h.BlockSize
	dst[3] = h.Version
	binary.LittleEndian.PutUint16(dst[4:6], h.Checksum)
}

func decodeSlotHeader(src []byte) slotHeader {
	return slotHeader{
		ValueSize: binary.LittleEndian.Uint16(src[0:2]),
		BlockSize: src[2],
		Version:   src[3],
		Checksum:  binary.LittleEndian.Uint16(src[4:6]),
	}
}

func (h slotHeader) isZero() bool {
	return h.ValueSize == 0 && h.BlockSize == 0 && h.Version == 0 && h.Checksum == 0
}

// recordSize is the unpadded byte length of a record with the given value
// size: header + key + value.
func recordSize(valueSize int) int {
	return slotHeaderSize + KeySize + valueSize
}

// blocksFor returns the block_size (in BlockSize-byte units) needed to hold
// a record of valueSize bytes (spec §4.3 "ceil((key+value+header)/BLOCK_SIZE)").
func blocksFor(valueSize int) int {
	n := recordSize(valueSize)
	return (n + BlockSize - 1) / BlockSize
}

// hashKey computes the xxhash64 digest of a key, used both for bucket/slot
// routing and as the checksum seed (spec §4.3 write path and recovery).
func hashKey(key []byte) uint64 {
	return xxhash.Sum64(key)
}

// checksumBlock computes the block checksum: xxhash64 of the value, seeded
// by the key's hash, truncated to the 16 bits the on-media header carries
// (spec §4.3 "Recompute the value checksum (xxhash64 seeded by the key's
// hash)").
func checksumBlock(keyHash uint64, value []byte) uint16 {
	d := xxhash.New()
	var seed [8]byte
	binary.LittleEndian.PutUint64(seed[:], keyHash)
	d.Write(seed[:])
	d.Write(value)
	return uint16(d.Sum64())
}

func validateKey(key []byte) error {
	if len(key) != KeySize {
		return status.New(status.InvalidArgument, "hls: key length %d != %d", len(key), KeySize)
	}
	return nil
}

func validateValue(value []byte) error {
	if len(value) > MaxValueSize {
		return status.New(status.InvalidArgument, "hls: value length %d > %d", len(value), MaxValueSize)
	}
	return nil
}
