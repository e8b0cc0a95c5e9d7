package hls

import "nvmkv/status"

// Defrag is a hint-only best-effort rebuild of the value log between the
// two percentiles of key space (spec §9): it compacts the shards whose
// index falls in [startPct, endPct) of ThreadNum, packing their live
// records contiguously from offset 0 and discarding stale/freed space.
// Concurrent Put/Remove/Get against the shards being compacted is not
// coordinated by Defrag itself — callers that need that guarantee should
// quiesce writers against the affected key range first; Defrag never
// corrupts data it does not touch.
func (s *Store) Defrag(startPct, endPct float64) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if startPct < 0 || endPct > 100 || startPct > endPct {
		return status.New(status.InvalidArgument, "hls: defrag range [%v,%v) invalid", startPct, endPct)
	}
	if startPct == endPct {
		return nil
	}

	startShard := int(startPct / 100 * ThreadNum)
	endShard := int((endPct/100*ThreadNum) + 0.999999)
	if endShard > ThreadNum {
		endShard = ThreadNum
	}

	codec := NewZstdCodec()

	for i := startShard; i < endShard; i++ {
		s.defragShard(i, codec)
	}
	return nil
}

func (s *Store) defragShard(shardIdx int, codec DefragCodec) {
	sh := s.shards[shardIdx]

	type live struct {
		key    [KeySize]byte
		offset int
	}
	var entries []live
	s.index.rangeAll(func(e indexEntry) bool {
		if int(e.Shard) == shardIdx {
			entries = append(entries, live{key: e.Key, offset: int(e.Offset)})
		}
		return true
	})

	sh.allocMu.Lock()
	defer sh.allocMu.Unlock()

	// Sort by current offset so the in-place compaction below only ever
	// moves a record backward into already-vacated space.
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].offset < entries[j-1].offset; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}

	buf := sh.bytes()
	newOffset := 0
	var sampledRatio float64
	sampled := 0

	for _, le := range entries {
		key, value, hdr := sh.readRecord(le.offset)
		_ = key
		blocks := int(hdr.BlockSize)

		if sampled < 8 && len(value) > 0 {
			if compressed, err := codec.Compress(value); err == nil && len(compressed) > 0 {
				sampledRatio += float64(len(compressed)) / float64(len(value))
				sampled++
			}
		}

		if newOffset != le.offset {
			rec := make([]byte, blocks*BlockSize)
			copy(rec, buf[le.offset:le.offset+blocks*BlockSize])
			copy(buf[newOffset:newOffset+blocks*BlockSize], rec)
			s.index.relocate(le.key, uint8(shardIdx), uint32(newOffset))
		}
		newOffset += blocks * BlockSize
	}

	sh.head = newOffset
	sh.freeList = make(map[uint8][]int)

	s.region.Flush(sh.base, sh.size)

	if sampled > 0 {
		s.log.Info("hls.defrag", "compacted shard", map[string]interface{}{
			"shard":            shardIdx,
			"codec":            codec.Name(),
			"avg_sample_ratio": sampledRatio / float64(sampled),
			"live_records":     len(entries),
		})
	}
}
