// Package hbt implements the hybrid B+-tree engine (spec §4.4, component H):
// persistent, fixed-capacity leaves threaded on an allocation chain, with a
// volatile inner routing layer rebuilt from that chain on every open. Inner
// routing carries no crash-consistency obligation of its own (spec §4.4
// "the upper levels... may be rebuilt on open"), so it is kept as a single
// sorted slice of {firstKey, leaf} pairs searched with binary search rather
// than a literal recursively-split B-tree of inner nodes: the externally
// observable behavior is identical and there is far less to get wrong.
package hbt

import (
	"sort"
	"sync"
	"sync/atomic"

	"nvmkv/comparator"
	"nvmkv/config"
	"nvmkv/engine"
	"nvmkv/iterator"
	"nvmkv/logging"
	"nvmkv/pmem"
	"nvmkv/status"
)

func init() {
	engine.Register(EngineName, Open)
}

// tree-level persistent header preceding the leaf slot array:
//
//	headOffset   uint64 (most recently allocated leaf; 0 = none yet)
//	bumpCount    uint64 (number of leaf slots ever allocated)
//	splitOld     uint64 (in-progress split marker, spec §4.4 recovery note)
//	splitLeft    uint64
//	splitRight   uint64
//	splitEpoch   uint64 (0 = no split in flight)
const (
	treeHeaderSize = 8 * 6
	offHead        = 0
	offBump        = 8
	offSplitOld    = 16
	offSplitLeft   = 24
	offSplitRight  = 32
	offSplitEpoch  = 40
)

// routeEntry is one volatile routing pointer: the smallest key a leaf holds,
// and that leaf's absolute payload offset. Sorted by firstKey and searched
// with sort.Search (spec §4.4's simplified inner layer).
type routeEntry struct {
	firstKey []byte
	offset   int
}

// Tree is the hybrid B+-tree store (spec §4.4).
type Tree struct {
	region  *pmem.Region
	payload []byte
	cmp     *comparator.Comparator

	leafCap int // total leaf slots the region can hold

	mu     sync.Mutex // serializes structural mutation (insert-causing-split, delete)
	routes []routeEntry

	closed atomic.Bool
	log    *logging.Logger
}

// Open creates or opens an HBT region per cfg and rebuilds the volatile
// routing layer by walking the leaf allocation chain (spec §4.4
// "Recovery").
func Open(cfg *config.Config) (engine.Engine, error) {
	cmp := cfg.Comparator
	cmpName := comparator.DefaultName
	if cmp != nil {
		cmpName = cmp.Name()
	}

	var region *pmem.Region
	var err error
	switch {
	case cfg.EffectiveCreateOrError():
		region, err = pmem.Create(cfg.Path, cfg.Size, EngineName, cmpName)
	case cfg.CreateIfMissing:
		region, err = pmem.Open(cfg.Path)
		if err != nil && status.Of(err) == status.InvalidArgument {
			region, err = pmem.Create(cfg.Path, cfg.Size, EngineName, cmpName)
		}
	default:
		region, err = pmem.Open(cfg.Path)
	}
	if err != nil {
		return nil, err
	}

	if region.LayoutName() != EngineName {
		region.Close()
		return nil, status.New(status.WrongEngineName, "hbt: region was created with engine %q, not %q", region.LayoutName(), EngineName)
	}
	if region.ComparatorName() != cmpName {
		region.Close()
		return nil, status.New(status.ComparatorMismatch, "hbt: region comparator %q does not match configured %q", region.ComparatorName(), cmpName)
	}

	payload := region.Payload()
	leafCap := (len(payload) - treeHeaderSize) / LeafSize
	if leafCap <= 0 {
		region.Close()
		return nil, status.New(status.InvalidArgument, "hbt: region too small for even one leaf")
	}

	t := &Tree{region: region, payload: payload, cmp: cmp, leafCap: leafCap, log: logging.NoOp}
	t.recover()
	return t, nil
}

func (t *Tree) Name() string { return EngineName }

func (t *Tree) checkOpen() error {
	if t.closed.Load() {
		return status.New(status.InvalidArgument, "hbt: engine is closed")
	}
	return nil
}

func (t *Tree) compare(a, b []byte) int {
	if t.cmp != nil {
		return t.cmp.Compare(a, b)
	}
	return comparator.Default.Compare(a, b)
}

func (t *Tree) headOffset() uint64   { return getUint64(t.payload[offHead : offHead+8]) }
func (t *Tree) setHeadOffset(v uint64) {
	putUint64(t.payload[offHead:offHead+8], v)
	t.region.Flush(offHead, 8)
}
func (t *Tree) bumpCount() uint64 { return getUint64(t.payload[offBump : offBump+8]) }
func (t *Tree) setBumpCount(v uint64) {
	putUint64(t.payload[offBump:offBump+8], v)
	t.region.Flush(offBump, 8)
}

func (t *Tree) setSplitMarker(old, left, right, epoch uint64) {
	putUint64(t.payload[offSplitOld:offSplitOld+8], old)
	putUint64(t.payload[offSplitLeft:offSplitLeft+8], left)
	putUint64(t.payload[offSplitRight:offSplitRight+8], right)
	putUint64(t.payload[offSplitEpoch:offSplitEpoch+8], epoch)
	t.region.Flush(offSplitOld, 32)
}

func (t *Tree) clearSplitMarker() {
	t.setSplitMarker(0, 0, 0, 0)
}

// allocateLeaf bump-allocates a fresh leaf slot, threads it onto the global
// allocation chain via next (spec §4.4: leaves are never physically
// unlinked, so recovery can enumerate every leaf ever created by walking
// this chain and skipping superseded ones), and returns its handle.
func (t *Tree) allocateLeaf() (leaf, error) {
	n := t.bumpCount()
	if int(n) >= t.leafCap {
		return leaf{}, status.New(status.OutOfMemory, "hbt: region exhausted (%d leaf slots)", t.leafCap)
	}
	off := treeHeaderSize + int(n)*LeafSize
	lf := leaf{t: t, offset: off}
	lf.initEmpty(t.headOffset())
	t.region.Flush(off, leafHeaderSize)
	t.setBumpCount(n + 1)
	t.setHeadOffset(uint64(off))
	return lf, nil
}

// recover rebuilds routes by walking the allocation chain from head and
// keeping only non-superseded leaves, after first finalizing or discarding
// any in-progress split marker left behind by a crash (split clears the
// marker before it returns; spec §4.4 recovery note).
func (t *Tree) recover() {
	epoch := getUint64(t.payload[offSplitEpoch : offSplitEpoch+8])
	if epoch != 0 {
		oldOff := int(getUint64(t.payload[offSplitOld : offSplitOld+8]))
		leftOff := int(getUint64(t.payload[offSplitLeft : offSplitLeft+8]))
		rightOff := int(getUint64(t.payload[offSplitRight : offSplitRight+8]))
		left := leaf{t: t, offset: leftOff}
		right := leaf{t: t, offset: rightOff}
		if t.leafLooksValid(left) && t.leafLooksValid(right) {
			// Both children were fully written before the crash: finish the
			// publish by marking the old leaf superseded.
			old := leaf{t: t, offset: oldOff}
			old.setSuperseded(true)
			t.region.Flush(oldOff, leafFixedHeaderSize)
		} else {
			// Split never completed: the old leaf is still authoritative and
			// was never marked superseded; the partially written children are
			// marked superseded so the chain walk below skips them, leaving
			// them as abandoned allocated space.
			old := leaf{t: t, offset: oldOff}
			old.setSuperseded(false)
			t.region.Flush(oldOff, leafFixedHeaderSize)
			for _, child := range []leaf{left, right} {
				if child.offset >= treeHeaderSize && child.offset+LeafSize <= len(t.payload) {
					child.setSuperseded(true)
					t.region.Flush(child.offset, leafFixedHeaderSize)
				}
			}
		}
		t.clearSplitMarker()
	}

	var live []leaf
	for off := t.headOffset(); off != 0; {
		lf := leaf{t: t, offset: int(off)}
		if !lf.superseded() {
			live = append(live, lf)
		}
		off = lf.next()
	}

	routes := make([]routeEntry, 0, len(live))
	for _, lf := range live {
		if lf.usedSlots() == 0 {
			continue
		}
		routes = append(routes, routeEntry{firstKey: lf.firstKey(), offset: lf.offset})
	}
	sort.Slice(routes, func(i, j int) bool { return t.compare(routes[i].firstKey, routes[j].firstKey) < 0 })
	t.routes = routes

	if len(t.routes) == 0 {
		// Freshly created region: seed one empty leaf so lookups have
		// somewhere to route to.
		lf, err := t.allocateLeaf()
		if err == nil {
			t.routes = []routeEntry{{firstKey: nil, offset: lf.offset}}
		}
	}
}

// leafLooksValid is a best-effort structural sanity check used only during
// in-progress-split recovery: a split child starts zeroed by allocateLeaf
// and reaches consistentID 1 only once fillLeaf has published its index,
// and a fully published leaf always has its used count and active index
// consistent with each other.
func (t *Tree) leafLooksValid(lf leaf) bool {
	if lf.offset < treeHeaderSize || lf.offset+LeafSize > len(t.payload) {
		return false
	}
	if lf.consistentID() != 1 {
		return false
	}
	n := lf.usedSlots()
	if n < 0 || n > LeafKeys {
		return false
	}
	idx := lf.activeIdx()
	for i := 0; i < n; i++ {
		if idx[i] == unusedIdx {
			return false
		}
	}
	return true
}

// routeIndex returns the index into t.routes of the leaf that owns key
// (the last route whose firstKey <= key).
func (t *Tree) routeIndex(key []byte) int {
	i := sort.Search(len(t.routes), func(i int) bool {
		return t.routes[i].firstKey != nil && t.compare(t.routes[i].firstKey, key) > 0
	})
	if i == 0 {
		return 0
	}
	return i - 1
}

func (t *Tree) leafFor(key []byte) leaf {
	r := t.routes[t.routeIndex(key)]
	return leaf{t: t, offset: r.offset}
}

func (t *Tree) Exists(key []byte) error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	if err := validateKey(key); err != nil {
		return err
	}
	lf := t.leafFor(key)
	if _, ok := lf.find(key, t.compare); ok {
		return nil
	}
	return status.New(status.NotFound, "hbt: key not found")
}

func (t *Tree) Get(key []byte, sink func(value []byte)) error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	if err := validateKey(key); err != nil {
		return err
	}
	lf := t.leafFor(key)
	slotIdx, ok := lf.find(key, t.compare)
	if !ok {
		return status.New(status.NotFound, "hbt: key not found")
	}
	sink(lf.readSlotValue(slotIdx))
	return nil
}

func (t *Tree) Put(key, value []byte) error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	if err := validateKey(key); err != nil {
		return err
	}
	if err := validateValue(value); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	routeIdx := t.routeIndex(key)
	lf := leaf{t: t, offset: t.routes[routeIdx].offset}
	pos, ok := lf.find(key, t.compare)
	if ok {
		if lf.allocSlots() < LeafKeys {
			lf.updateAt(pos, key, value)
			return nil
		}
		return t.split(routeIdx, lf, key, value)
	}
	if lf.allocSlots() < LeafKeys {
		lf.insertAt(pos, key, value)
		if pos == 0 {
			t.routes[routeIdx].firstKey = append([]byte(nil), key...)
		}
		return nil
	}
	return t.split(routeIdx, lf, key, value)
}

// split divides a full leaf's entries across two freshly allocated leaves,
// publishing the change via a persistent in-progress marker so a crash
// mid-split resolves deterministically on the next open (spec §4.4
// recovery note). key/value is either the entry that triggered the split by
// not fitting (insert), or the new value for an existing entry that had no
// room left for an in-place update's fresh slot; either way it replaces any
// existing entry for key rather than duplicating it.
func (t *Tree) split(routeIdx int, old leaf, key, value []byte) error {
	entries := old.all()
	replaced := false
	for i := range entries {
		if t.compare(entries[i][0], key) == 0 {
			entries[i][1] = append([]byte(nil), value...)
			replaced = true
			break
		}
	}
	if !replaced {
		entries = append(entries, [2][]byte{append([]byte(nil), key...), append([]byte(nil), value...)})
	}
	sort.Slice(entries, func(i, j int) bool { return t.compare(entries[i][0], entries[j][0]) < 0 })

	mid := len(entries) / 2

	left, err := t.allocateLeaf()
	if err != nil {
		return err
	}
	right, err := t.allocateLeaf()
	if err != nil {
		return err
	}

	t.setSplitMarker(uint64(old.offset), uint64(left.offset), uint64(right.offset), 1)

	fillLeaf(left, entries[:mid])
	fillLeaf(right, entries[mid:])

	old.setSuperseded(true)
	t.region.Flush(old.offset, leafFixedHeaderSize)
	t.clearSplitMarker()

	newRoutes := make([]routeEntry, 0, len(t.routes)+1)
	newRoutes = append(newRoutes, t.routes[:routeIdx]...)
	newRoutes = append(newRoutes, routeEntry{firstKey: append([]byte(nil), entries[0][0]...), offset: left.offset})
	newRoutes = append(newRoutes, routeEntry{firstKey: append([]byte(nil), entries[mid][0]...), offset: right.offset})
	newRoutes = append(newRoutes, t.routes[routeIdx+1:]...)
	t.routes = newRoutes
	return nil
}

func fillLeaf(lf leaf, entries [][2][]byte) {
	order := make([]byte, len(entries))
	for i, e := range entries {
		lf.writeSlot(i, e[0], e[1])
		order[i] = byte(i)
	}
	lf.setAllocSlots(len(entries))
	lf.t.region.Flush(lf.offset+leafHeaderSize, len(entries)*slotSize)
	lf.publishIdx(order, len(entries))
}

func (t *Tree) Remove(key []byte) error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	if err := validateKey(key); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	routeIdx := t.routeIndex(key)
	lf := leaf{t: t, offset: t.routes[routeIdx].offset}
	slotIdx, ok := lf.find(key, t.compare)
	if !ok {
		return status.New(status.NotFound, "hbt: key not found")
	}
	// find reports the physical slot; removeAt takes its sorted position.
	pos := 0
	active := lf.activeIdx()
	for int(active[pos]) != slotIdx {
		pos++
	}
	lf.removeAt(pos)
	if pos == 0 && lf.usedSlots() > 0 {
		t.routes[routeIdx].firstKey = lf.firstKey()
	}
	return nil
}

func (t *Tree) CountAll() (uint64, error) {
	if err := t.checkOpen(); err != nil {
		return 0, err
	}
	var n uint64
	for _, r := range t.routes {
		n += uint64(leaf{t: t, offset: r.offset}.usedSlots())
	}
	return n, nil
}

func (t *Tree) GetAll(visitor engine.Visitor) error {
	return t.visitRange(nil, nil, false, false, visitor)
}

// visitRange visits live entries in ascending order; lo/hi nil mean
// unbounded, and loIncl/hiIncl select whether a key equal to lo/hi is
// visited, which is how the range helpers below tell above/equal_above and
// below/equal_below apart.
func (t *Tree) visitRange(lo, hi []byte, loIncl, hiIncl bool, visitor engine.Visitor) error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	for _, r := range t.routes {
		lf := leaf{t: t, offset: r.offset}
		for _, kv := range lf.all() {
			if lo != nil {
				c := t.compare(kv[0], lo)
				if loIncl && c < 0 {
					continue
				}
				if !loIncl && c <= 0 {
					continue
				}
			}
			if hi != nil {
				c := t.compare(kv[0], hi)
				if hiIncl && c > 0 {
					continue
				}
				if !hiIncl && c >= 0 {
					continue
				}
			}
			if visitor(kv[0], kv[1]) != 0 {
				return status.New(status.StoppedByCB, "hbt: get range stopped by callback")
			}
		}
	}
	return nil
}

func (t *Tree) countRange(lo, hi []byte, loIncl, hiIncl bool) (uint64, error) {
	var n uint64
	err := t.visitRange(lo, hi, loIncl, hiIncl, func(k, v []byte) int { n++; return 0 })
	return n, err
}

func (t *Tree) CountAbove(key []byte) (uint64, error)      { return t.countRange(key, nil, false, false) }
func (t *Tree) CountEqualAbove(key []byte) (uint64, error) { return t.countRange(key, nil, true, false) }
func (t *Tree) CountBelow(key []byte) (uint64, error)      { return t.countRange(nil, key, false, false) }
func (t *Tree) CountEqualBelow(key []byte) (uint64, error) { return t.countRange(nil, key, false, true) }
func (t *Tree) CountBetween(a, b []byte) (uint64, error)   { return t.countRange(a, b, true, false) }

func (t *Tree) GetAbove(key []byte, visitor engine.Visitor) error {
	return t.visitRange(key, nil, false, false, visitor)
}
func (t *Tree) GetEqualAbove(key []byte, visitor engine.Visitor) error {
	return t.visitRange(key, nil, true, false, visitor)
}
func (t *Tree) GetBelow(key []byte, visitor engine.Visitor) error {
	return t.visitRange(nil, key, false, false, visitor)
}
func (t *Tree) GetEqualBelow(key []byte, visitor engine.Visitor) error {
	return t.visitRange(nil, key, false, true, visitor)
}
func (t *Tree) GetBetween(a, b []byte, visitor engine.Visitor) error {
	return t.visitRange(a, b, true, false, visitor)
}

// Defrag is a hint-only no-op for HBT: it validates the range and performs
// no compaction, so slots vacated by removes or updates and leaves
// superseded by splits are not reclaimed (spec §9 "engines may treat Defrag
// as a no-op").
func (t *Tree) Defrag(startPct, endPct float64) error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	if startPct < 0 || endPct > 100 || startPct > endPct {
		return status.New(status.InvalidArgument, "hbt: defrag range [%v,%v) invalid", startPct, endPct)
	}
	return nil
}

func (t *Tree) TxBegin() (engine.Tx, error) {
	if err := t.checkOpen(); err != nil {
		return nil, err
	}
	return newTx(t), nil
}

func (t *Tree) NewReadIterator() (iterator.Reader, error) {
	if err := t.checkOpen(); err != nil {
		return nil, err
	}
	return newCursor(t), nil
}

func (t *Tree) NewWriteIterator() (iterator.Writer, error) {
	if err := t.checkOpen(); err != nil {
		return nil, err
	}
	return newWriteCursor(t), nil
}

func (t *Tree) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	return t.region.Close()
}
