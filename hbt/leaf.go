package hbt

import "nvmkv/comparator"

// leaf is a handle onto one persisted leaf: a fixed-capacity slot array plus
// a double-buffered sorted index (spec §4.4 "persistent leaves: fixed-size
// arrays of {key, value} slots with a sorted index for binary search").
// Only one of the two index arrays is authoritative at a time, selected by
// consistentID; publishing a structural change means building the new
// array in the *inactive* slot, flushing it, then flipping consistentID —
// a crash before the flip leaves the old array (and old leaf contents)
// intact, and a crash after leaves the new array intact.
type leaf struct {
	t      *Tree
	offset int // absolute offset into payload
}

func (lf leaf) bytes() []byte {
	return lf.t.payload[lf.offset : lf.offset+LeafSize]
}

func (lf leaf) usedSlots() int    { return int(lf.bytes()[0]) }
func (lf leaf) consistentID() int { return int(lf.bytes()[1]) }
func (lf leaf) superseded() bool  { return lf.bytes()[2] != 0 }

// allocSlots is the count of physical slots this leaf has ever handed out.
// It only grows, even across removes: a removed entry's physical slot is
// never reused, so the active index is always consistent with every slot
// index it references (spec §4.4 "the leaf itself never shrinks or
// compacts its slot array"). It is stored in the header's pad byte.
func (lf leaf) allocSlots() int       { return int(lf.bytes()[3]) }
func (lf leaf) next() uint64          { return getUint64(lf.bytes()[4:12]) }
func (lf leaf) checksum() uint64      { return getUint64(lf.bytes()[12:20]) }

func (lf leaf) setUsedSlots(n int)     { lf.bytes()[0] = byte(n) }
func (lf leaf) setConsistentID(id int) { lf.bytes()[1] = byte(id) }
func (lf leaf) setSuperseded(v bool) {
	if v {
		lf.bytes()[2] = 1
	} else {
		lf.bytes()[2] = 0
	}
}
func (lf leaf) setAllocSlots(n int)    { lf.bytes()[3] = byte(n) }
func (lf leaf) setNext(off uint64)     { putUint64(lf.bytes()[4:12], off) }
func (lf leaf) setChecksum(sum uint64) { putUint64(lf.bytes()[12:20], sum) }

// idxArray returns the which-th (0 or 1) index array: a dense prefix of
// usedSlots() physical slot numbers listing slots in ascending key order,
// padded with unusedIdx.
func (lf leaf) idxArray(which int) []byte {
	start := leafFixedHeaderSize + which*LeafKeys
	return lf.bytes()[start : start+LeafKeys]
}

func (lf leaf) activeIdx() []byte { return lf.idxArray(lf.consistentID()) }

func (lf leaf) slot(i int) []byte {
	start := leafHeaderSize + i*slotSize
	return lf.bytes()[start : start+slotSize]
}

func (lf leaf) slotPhash(i int) uint8 { return lf.slot(i)[0] }
func (lf leaf) slotKeyLen(i int) int  { return int(getUint16(lf.slot(i)[1:3])) }
func (lf leaf) slotValLen(i int) int  { return int(getUint16(lf.slot(i)[3:5])) }
func (lf leaf) slotKey(i int) []byte {
	return lf.slot(i)[slotHeaderSize : slotHeaderSize+lf.slotKeyLen(i)]
}
// writeSlot stores key/value into physical slot i without touching any
// index array.
func (lf leaf) writeSlot(i int, key, value []byte) {
	s := lf.slot(i)
	for j := range s {
		s[j] = 0
	}
	s[0] = pearsonHash(key)
	putUint16(s[1:3], uint16(len(key)))
	putUint16(s[3:5], uint16(len(value)))
	copy(s[slotHeaderSize:slotHeaderSize+len(key)], key)
	copy(s[slotHeaderSize+KeyCap:slotHeaderSize+KeyCap+len(value)], value)
}

func (lf leaf) readSlotValue(i int) []byte {
	vl := lf.slotValLen(i)
	s := lf.slot(i)
	return s[slotHeaderSize+KeyCap : slotHeaderSize+KeyCap+vl]
}

// initEmpty zeroes a freshly allocated leaf's header and marks it live with
// no entries and an empty active index.
func (lf leaf) initEmpty(next uint64) {
	h := lf.bytes()[:leafHeaderSize]
	for i := range h {
		h[i] = 0
	}
	lf.setNext(next)
}

// find returns (physical slot index, true) if key is present, else
// (insertion position within the active index array, false).
func (lf leaf) find(key []byte, cmp comparator.Func) (int, bool) {
	idx := lf.activeIdx()
	n := lf.usedSlots()
	lo, hi := 0, n
	for lo < hi {
		mid := (lo + hi) / 2
		c := cmp(lf.slotKey(int(idx[mid])), key)
		if c == 0 {
			return int(idx[mid]), true
		}
		if c < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo, false
}

// firstKey returns the smallest live key in the leaf, used as the routing
// key for this leaf in the volatile inner index. Must not be called on an
// empty leaf, whose active index holds only unusedIdx; callers check
// usedSlots() first.
func (lf leaf) firstKey() []byte {
	idx := lf.activeIdx()
	return append([]byte(nil), lf.slotKey(int(idx[0]))...)
}

// publishIdx builds a new sorted index array (one insertion or one removal
// relative to the current active array) into the inactive buffer, flushes
// it, then flips consistentID as the single-byte publish point (spec §4.4
// "double-buffered sorted index").
func (lf leaf) publishIdx(newOrder []byte, newUsed int) {
	nextID := 1 - lf.consistentID()
	dst := lf.idxArray(nextID)
	for i := range dst {
		dst[i] = unusedIdx
	}
	copy(dst, newOrder)
	lf.t.region.Flush(lf.offset+leafFixedHeaderSize+nextID*LeafKeys, LeafKeys)
	lf.setUsedSlots(newUsed)
	lf.setConsistentID(nextID)
	lf.t.region.Flush(lf.offset, leafFixedHeaderSize)
}

// insertAt inserts key/value into the leaf, which must have a spare physical
// slot (allocSlots() < LeafKeys), at sorted position insertPos within the
// active index.
func (lf leaf) insertAt(insertPos int, key, value []byte) {
	newSlot := lf.allocSlots()
	lf.writeSlot(newSlot, key, value)
	lf.t.region.Flush(lf.offset+leafHeaderSize+newSlot*slotSize, slotSize)
	lf.setAllocSlots(newSlot + 1)

	cur := lf.activeIdx()
	used := lf.usedSlots()
	order := make([]byte, used+1)
	copy(order, cur[:insertPos])
	order[insertPos] = byte(newSlot)
	copy(order[insertPos+1:], cur[insertPos:used])
	lf.publishIdx(order, used+1)
}

// updateAt overwrites the value of a key already present in the leaf.
// Rather than mutating the live slot bytes in place (which could tear under
// a crash mid-write while the index still points at it), the new key/value
// is written into a freshly allocated slot and the active index is
// published to point at it via the same double-buffer-then-flip mechanism
// insertAt/removeAt use (spec §4.4 "persistent leaf transactions" / §8
// crash-consistency). Callers must ensure the leaf has room
// (allocSlots() < LeafKeys); a full leaf routes an update through split
// instead.
func (lf leaf) updateAt(physicalSlot int, key, value []byte) {
	newSlot := lf.allocSlots()
	lf.writeSlot(newSlot, key, value)
	lf.t.region.Flush(lf.offset+leafHeaderSize+newSlot*slotSize, slotSize)
	lf.setAllocSlots(newSlot + 1)

	cur := lf.activeIdx()
	used := lf.usedSlots()
	order := make([]byte, used)
	copy(order, cur[:used])
	for i := range order {
		if int(order[i]) == physicalSlot {
			order[i] = byte(newSlot)
			break
		}
	}
	lf.publishIdx(order, used)
}

// removeAt deletes the entry at sorted position pos within the active
// index (spec §4.4: the leaf itself never shrinks or compacts its slot
// array, only the index is updated).
func (lf leaf) removeAt(pos int) {
	cur := lf.activeIdx()
	n := lf.usedSlots()
	order := make([]byte, n-1)
	copy(order, cur[:pos])
	copy(order[pos:], cur[pos+1:n])
	lf.publishIdx(order, n-1)
}

// all returns the leaf's live (key, value) pairs in ascending order.
func (lf leaf) all() [][2][]byte {
	idx := lf.activeIdx()
	n := lf.usedSlots()
	out := make([][2][]byte, n)
	for i := 0; i < n; i++ {
		slotIdx := int(idx[i])
		out[i] = [2][]byte{
			append([]byte(nil), lf.slotKey(slotIdx)...),
			append([]byte(nil), lf.readSlotValue(slotIdx)...),
		}
	}
	return out
}
