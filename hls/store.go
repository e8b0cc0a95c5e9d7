package hls

import (
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

// Store is the hash-indexed log store (spec §4.3).
type Store struct {
	region *pmem.Region
	shards [ThreadNum]*shard
	index  *hashIndex

	// versions tracks the next version to assign per key across the
	// store's lifetime, so overwrite/remove races resolve deterministically
	// on recovery (spec §4.3 "Version monotonicity").
	versions   sync.Map // [KeySize]byte -> *uint32
	writeMu    sync.Mutex // serializes the read-modify-write of the version counter only
	closed     atomic.Bool
	log        *logging.Logger
}

// Open creates or opens an HLS region per cfg and recovers its volatile
// index from the persisted log (spec §4.3 "Recovery").
func Open(cfg *config.Config) (engine.Engine, error) {
	if cfg.Comparator != nil {
		return nil, status.New(status.InvalidArgument, "hls: %s does not support custom comparators", EngineName)
	}

	var region *pmem.Region
	var err error
	switch {
	case cfg.EffectiveCreateOrError():
		region, err = pmem.Create(cfg.Path, cfg.Size, EngineName, comparator.DefaultName)
	case cfg.CreateIfMissing:
		region, err = pmem.Open(cfg.Path)
		if err != nil && status.Of(err) == status.InvalidArgument {
			region, err = pmem.Create(cfg.Path, cfg.Size, EngineName, comparator.DefaultName)
		}
	default:
		region, err = pmem.Open(cfg.Path)
	}
	if err != nil {
		return nil, err
	}

	if region.LayoutName() != EngineName {
		region.Close()
		return nil, status.New(status.WrongEngineName, "hls: region was created with engine %q, not %q", region.LayoutName(), EngineName)
	}

	s := &Store{region: region, index: &hashIndex{}, log: logging.NoOp}

	payload := region.Payload()
	shardSize := (len(payload) / ThreadNum / BlockSize) * BlockSize
	for i := 0; i < ThreadNum; i++ {
		s.shards[i] = newShard(region, i*shardSize, shardSize)
	}

	s.recover()
	return s, nil
}

func (s *Store) Name() string { return EngineName }

func shardIndexForKey(key []byte) int {
	return int(hashKey(key) % ThreadNum)
}

func (s *Store) checkOpen() error {
	if s.closed.Load() {
		return status.New(status.InvalidArgument, "hls: engine is closed")
	}
	return nil
}

func toFixedKey(key []byte) [KeySize]byte {
	var k [KeySize]byte
	copy(k[:], key)
	return k
}

func (s *Store) nextVersion(key [KeySize]byte) uint8 {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	v, _ := s.versions.LoadOrStore(key, new(uint32))
	counter := v.(*uint32)
	*counter++
	return uint8(*counter)
}

func (s *Store) Exists(key []byte) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := validateKey(key); err != nil {
		return err
	}
	if _, ok := s.index.lookup(toFixedKey(key)); ok {
		return nil
	}
	return status.New(status.NotFound, "hls: key not found")
}

func (s *Store) Get(key []byte, sink func(value []byte)) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := validateKey(key); err != nil {
		return err
	}
	fk := toFixedKey(key)
	entry, ok := s.index.lookup(fk)
	if !ok {
		return status.New(status.NotFound, "hls: key not found")
	}
	sh := s.shards[entry.Shard]
	_, value, hdr := sh.readRecord(int(entry.Offset))
	// Re-validate against the index snapshot: if the bucket changed under
	// us between lookup and read, entry.Version still pins which physical
	// write we intended to observe.
	if hdr.Version != entry.Version {
		// Extremely rare race with a concurrent overwrite that reused this
		// exact offset; retry once against the fresh index entry.
		entry, ok = s.index.lookup(fk)
		if !ok {
			return status.New(status.NotFound, "hls: key not found")
		}
		sh = s.shards[entry.Shard]
		_, value, _ = sh.readRecord(int(entry.Offset))
	}
	sink(value)
	return nil
}

func (s *Store) Put(key, value []byte) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := validateKey(key); err != nil {
		return err
	}
	if err := validateValue(value); err != nil {
		return err
	}
	return s.put(toFixedKey(key), value, false)
}

func (s *Store) put(fk [KeySize]byte, value []byte, tombstone bool) error {
	version := s.nextVersion(fk)
	shardIdx := shardIndexForKey(fk[:])
	sh := s.shards[shardIdx]

	off, blocks, err := sh.writeRecord(fk, value, version, tombstone)
	if err != nil {
		return err
	}

	newEntry := indexEntry{Key: fk, Shard: uint8(shardIdx), Offset: uint32(off), ValueSize: uint16(len(value)), BlockSize: uint8(blocks), Version: version}
	if tombstone {
		old, hadOld := s.index.delete(fk)
		if hadOld {
			s.shards[old.Shard].free(int(old.Offset), int(old.BlockSize))
		}
		// The tombstone record's own block stays allocated (not freed here):
		// a replayed recovery scan must still see it ahead of any
		// pre-removal record that could otherwise be resurrected if this
		// space were reused before the next crash. Defrag reclaims it once
		// it rebuilds the shard, since tombstones are never in the index.
		return nil
	}

	old, hadOld := s.index.upsert(fk, newEntry)
	if hadOld {
		s.shards[old.Shard].free(int(old.Offset), int(old.BlockSize))
	}
	return nil
}

func (s *Store) Remove(key []byte) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := validateKey(key); err != nil {
		return err
	}
	fk := toFixedKey(key)
	if _, ok := s.index.lookup(fk); !ok {
		return status.New(status.NotFound, "hls: key not found")
	}
	return s.put(fk, nil, true)
}

func (s *Store) CountAll() (uint64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	return uint64(s.index.count.Load()), nil
}

func (s *Store) GetAll(visitor engine.Visitor) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	stopped := false
	s.index.rangeAll(func(e indexEntry) bool {
		_, value, _ := s.shards[e.Shard].readRecord(int(e.Offset))
		if visitor(e.Key[:], value) != 0 {
			stopped = true
			return false
		}
		return true
	})
	if stopped {
		return status.New(status.StoppedByCB, "hls: get_all stopped by callback")
	}
	return nil
}

// Ordered-only operations are not supported on this unordered engine
// (spec §4.3 "No ordered operations").

func (s *Store) CountAbove(key []byte) (uint64, error) { return 0, notOrdered() }
func (s *Store) CountEqualAbove(key []byte) (uint64, error) { return 0, notOrdered() }
func (s *Store) CountBelow(key []byte) (uint64, error) { return 0, notOrdered() }
func (s *Store) CountEqualBelow(key []byte) (uint64, error) { return 0, notOrdered() }
func (s *Store) CountBetween(a, b []byte) (uint64, error) { return 0, notOrdered() }
func (s *Store) GetAbove(key []byte, visitor engine.Visitor) error { return notOrdered() }
func (s *Store) GetEqualAbove(key []byte, visitor engine.Visitor) error { return notOrdered() }
func (s *Store) GetBelow(key []byte, visitor engine.Visitor) error { return notOrdered() }
func (s *Store) GetEqualBelow(key []byte, visitor engine.Visitor) error { return notOrdered() }
func (s *Store) GetBetween(a, b []byte, visitor engine.Visitor) error { return notOrdered() }

func notOrdered() error {
	return status.New(status.NotSupported, "hls: ordered operations are not supported")
}

func (s *Store) NewReadIterator() (iterator.Reader, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return newReadIterator(s), nil
}

// NewWriteIterator is NotSupported: HLS values are immutable in place, so
// there is no write iterator (spec §4.5, §9).
func (s *Store) NewWriteIterator() (iterator.Writer, error) {
	return nil, status.New(status.NotSupported, "hls: write iterator is not supported (values are immutable in place)")
}

func (s *Store) TxBegin() (engine.Tx, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return newTx(s), nil
}

func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.region.Close()
}
