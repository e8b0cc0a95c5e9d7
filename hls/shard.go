package hls

import (
	"nvmkv/pmem"
	"nvmkv/status"
)

// shard owns a disjoint slice of the region's value log (spec glossary
// "Shard"). Allocation (head bump + free-list) is guarded by its own
// spinLock, separate from the hash index's per-slot locks, matching spec
// §4.3 write-path step 2 ("allocate a new block off-slot (no lock)") being
// distinct from step 3's slot lock acquisition.
type shard struct {
	region *pmem.Region
	base   int // absolute offset into region.Payload() where this shard begins
	size   int // total bytes owned by this shard

	allocMu  spinLock
	head     int                 // next never-touched offset (bump-allocate frontier)
	freeList map[uint8][]int     // block_size -> list of free block offsets (shard-local)
}

func newShard(region *pmem.Region, base, size int) *shard {
	return &shard{
		region:   region,
		base:     base,
		size:     size,
		freeList: make(map[uint8][]int),
	}
}

func (s *shard) bytes() []byte {
	return s.region.Payload()[s.base : s.base+s.size]
}

// allocate reserves blocks*BlockSize contiguous bytes within the shard
// following the policy of spec §4.3: same-size free-list entry, then
// bump-allocate, then a first-fit scan of larger free-list entries,
// otherwise OutOfMemory.
func (s *shard) allocate(blocks int) (int, error) {
	if blocks <= 0 || blocks > 255 {
		return 0, status.New(status.InvalidArgument, "hls: invalid block count %d", blocks)
	}
	s.allocMu.Lock()
	defer s.allocMu.Unlock()

	bsz := uint8(blocks)
	if list := s.freeList[bsz]; len(list) > 0 {
		off := list[len(list)-1]
		s.freeList[bsz] = list[:len(list)-1]
		return off, nil
	}

	need := blocks * BlockSize
	if s.head+need <= s.size {
		off := s.head
		s.head += need
		return off, nil
	}

	for candidate := bsz + 1; candidate > bsz; candidate++ {
		list := s.freeList[candidate]
		if len(list) == 0 {
			if candidate == 255 {
				break
			}
			continue
		}
		off := list[len(list)-1]
		s.freeList[candidate] = list[:len(list)-1]
		return off, nil
	}

	return 0, status.New(status.OutOfMemory, "hls: shard exhausted (need %d bytes)", need)
}

// free returns a block to the shard's free list, indexed by its size, so a
// future allocation of the same size can reuse it without a bump (spec
// §4.3 write-path step 5).
func (s *shard) free(off int, blocks int) {
	s.allocMu.Lock()
	defer s.allocMu.Unlock()
	bsz := uint8(blocks)
	s.freeList[bsz] = append(s.freeList[bsz], off)
}

// writeRecord serializes and persists a [header|key|value|pad] record at a
// freshly allocated offset, then flushes exactly that range (spec §4.3
// write-path step 2: "persist that exact range with a non-temporal-store +
// drain sequence").
func (s *shard) writeRecord(key [KeySize]byte, value []byte, version uint8, tombstone bool) (off int, blocks int, err error) {
	valueSize := len(value)
	blocks = blocksFor(valueSize)
	off, err = s.allocate(blocks)
	if err != nil {
		return 0, 0, err
	}

	keyHash := hashKey(key[:])
	vsField := uint16(valueSize)
	if tombstone {
		vsField = tombstoneValueSize
	}
	hdr := slotHeader{
		ValueSize: vsField,
		BlockSize: uint8(blocks),
		Version:   version,
		Checksum:  checksumBlock(keyHash, value),
	}

	buf := s.bytes()
	rec := buf[off : off+blocks*BlockSize]
	for i := range rec {
		rec[i] = 0
	}
	hdr.encode(rec[0:slotHeaderSize])
	copy(rec[slotHeaderSize:slotHeaderSize+KeySize], key[:])
	copy(rec[slotHeaderSize+KeySize:slotHeaderSize+KeySize+valueSize], value)

	if err := s.region.Flush(s.base+off, blocks*BlockSize); err != nil {
		return 0, 0, err
	}
	return off, blocks, nil
}

// readRecord decodes the header and copies the key of the record at off;
// the returned value slice is not copied: it aliases shard storage and is
// only valid until the next write to this shard.
func (s *shard) readRecord(off int) (key [KeySize]byte, value []byte, hdr slotHeader) {
	buf := s.bytes()
	hdr = decodeSlotHeader(buf[off : off+slotHeaderSize])
	copy(key[:], buf[off+slotHeaderSize:off+slotHeaderSize+KeySize])
	valueSize := hdr.ValueSize
	if valueSize > MaxValueSize {
		valueSize = 0 // tombstone: no payload to read
	}
	value = buf[off+slotHeaderSize+KeySize : off+slotHeaderSize+KeySize+int(valueSize)]
	return key, value, hdr
}

// tombstoneValueSize is a reserved out-of-domain value_size (valid values
// are 0..MaxValueSize) marking a removal record, resolving spec §9's open
// question about remove's on-media encoding ("install a tombstone meta with
// a new version").
const tombstoneValueSize = 0xFFFF
