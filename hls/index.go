package hls

import "sync/atomic"

const (
	// HashTotalBuckets is the number of buckets in the volatile DRAM hash
	// table (spec §4.3).
	HashTotalBuckets = 1 << 14
	// SlotGrain is the number of buckets one striped lock protects
	// (spec §4.3 "SLOT_NUM = HASH_TOTAL_BUCKETS / 8").
	SlotGrain = 8
	// SlotNum is the number of striped spin locks guarding bucket
	// mutation.
	SlotNum = HashTotalBuckets / SlotGrain
)

// indexEntry is the volatile (never persisted) resolution of a live key to
// its current block in the log (spec §4.3 "An entry is {key(16) | meta(8)}
// with meta encoding {block_off, value_size, block_size, version}").
// Tombstones are never resident here — once Remove completes, the key is
// simply absent from the index; the on-media tombstone record exists only
// to make a crash mid-remove replay correctly on the next recovery scan.
type indexEntry struct {
	Key       [KeySize]byte
	Shard     uint8
	Offset    uint32
	ValueSize uint16
	BlockSize uint8
	Version   uint8
}

// hashIndex is the DRAM hash table rebuilt from the log on every open. Each
// bucket is an atomically-swapped immutable entry slice: readers load the
// current slice with no lock at all (a strictly stronger guarantee than the
// original's load-meta/acquire-fence/re-read-meta retry loop, since a Go
// atomic.Pointer swap is indivisible), and writers copy-on-write under a
// striped spinLock (spec §4.3's "slot lock array... protects hash
// mutations").
type hashIndex struct {
	buckets [HashTotalBuckets]atomic.Pointer[[]indexEntry]
	locks   [SlotNum]spinLock
	count   atomic.Int64
}

func bucketForHash(h uint64) int {
	return int(h % HashTotalBuckets)
}

func slotForBucket(bucket int) int {
	return bucket / SlotGrain
}

func (idx *hashIndex) bucketSlice(bucket int) []indexEntry {
	p := idx.buckets[bucket].Load()
	if p == nil {
		return nil
	}
	return *p
}

// lookup is the lock-free read path (spec §4.3 "Read path").
func (idx *hashIndex) lookup(key [KeySize]byte) (indexEntry, bool) {
	h := hashKey(key[:])
	bucket := bucketForHash(h)
	for _, e := range idx.bucketSlice(bucket) {
		if e.Key == key {
			return e, true
		}
	}
	return indexEntry{}, false
}

// upsert installs entry under key, returning the entry it replaced (if any)
// so the caller can push its old block to the shard free list (spec §4.3
// write-path step 5).
func (idx *hashIndex) upsert(key [KeySize]byte, entry indexEntry) (old indexEntry, hadOld bool) {
	h := hashKey(key[:])
	bucket := bucketForHash(h)
	slot := slotForBucket(bucket)

	idx.locks[slot].Lock()
	defer idx.locks[slot].Unlock()

	cur := idx.bucketSlice(bucket)
	next := make([]indexEntry, 0, len(cur)+1)
	found := false
	for _, e := range cur {
		if e.Key == key {
			old = e
			hadOld = true
			found = true
			next = append(next, entry)
			continue
		}
		next = append(next, e)
	}
	if !found {
		next = append(next, entry)
		idx.count.Add(1)
	}
	idx.buckets[bucket].Store(&next)
	return old, hadOld
}

// delete removes key from the index, returning the removed entry if present.
func (idx *hashIndex) delete(key [KeySize]byte) (old indexEntry, hadOld bool) {
	h := hashKey(key[:])
	bucket := bucketForHash(h)
	slot := slotForBucket(bucket)

	idx.locks[slot].Lock()
	defer idx.locks[slot].Unlock()

	cur := idx.bucketSlice(bucket)
	if len(cur) == 0 {
		return indexEntry{}, false
	}
	next := make([]indexEntry, 0, len(cur))
	for _, e := range cur {
		if e.Key == key {
			old = e
			hadOld = true
			continue
		}
		next = append(next, e)
	}
	if hadOld {
		idx.buckets[bucket].Store(&next)
		idx.count.Add(-1)
	}
	return old, hadOld
}

// rangeAll visits every live entry in bucket order; stopping early is the
// caller's responsibility (used to implement GetAll's STOPPED_BY_CB).
func (idx *hashIndex) rangeAll(fn func(indexEntry) bool) {
	for b := 0; b < HashTotalBuckets; b++ {
		for _, e := range idx.bucketSlice(b) {
			if !fn(e) {
				return
			}
		}
	}
}

// relocate updates an existing live entry's physical location without
// touching its version or the live count, used by Defrag to compact a
// shard's log in place (spec §4.3/§9 "hint-only best-effort rebuild").
func (idx *hashIndex) relocate(key [KeySize]byte, shardIdx uint8, offset uint32) {
	h := hashKey(key[:])
	bucket := bucketForHash(h)
	slot := slotForBucket(bucket)

	idx.locks[slot].Lock()
	defer idx.locks[slot].Unlock()

	cur := idx.bucketSlice(bucket)
	next := make([]indexEntry, len(cur))
	copy(next, cur)
	for i := range next {
		if next[i].Key == key {
			next[i].Shard = shardIdx
			next[i].Offset = offset
			break
		}
	}
	idx.buckets[bucket].Store(&next)
}

func (idx *hashIndex) installDuringRecovery(entry indexEntry) {
	bucket := bucketForHash(hashKey(entry.Key[:]))
	cur := idx.bucketSlice(bucket)
	next := append(append([]indexEntry{}, cur...), entry)
	idx.buckets[bucket].Store(&next)
	idx.count.Add(1)
}
