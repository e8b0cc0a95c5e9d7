package hls

// recover rebuilds the volatile hash index for every shard by scanning its
// log from offset 0 (spec §4.3 "Recovery").
func (s *Store) recover() {
	for i, sh := range s.shards {
		s.recoverShard(i, sh)
	}
}

type recoveredRecord struct {
	key       [KeySize]byte
	offset    int
	blocks    int
	valueSize int
	version   uint8
	tombstone bool
}

func (s *Store) recoverShard(shardIdx int, sh *shard) {
	buf := sh.bytes()
	offset := 0

	var records []recoveredRecord
	winner := make(map[[KeySize]byte]int) // key -> index into records of the current winner

	for offset+slotHeaderSize <= sh.size {
		hdr := decodeSlotHeader(buf[offset : offset+slotHeaderSize])
		if hdr.isZero() {
			break // end of log for this shard
		}
		blocks := int(hdr.BlockSize)
		if blocks == 0 || offset+blocks*BlockSize > sh.size {
			break // corrupt length: treat the remainder as a torn tail
		}

		var key [KeySize]byte
		copy(key[:], buf[offset+slotHeaderSize:offset+slotHeaderSize+KeySize])

		tombstone := hdr.ValueSize == tombstoneValueSize
		valueSize := int(hdr.ValueSize)
		if tombstone {
			valueSize = 0
		}
		value := buf[offset+slotHeaderSize+KeySize : offset+slotHeaderSize+KeySize+valueSize]

		keyHash := hashKey(key[:])
		if checksumBlock(keyHash, value) != hdr.Checksum {
			break // torn tail: recompute mismatch, stop scanning this shard
		}

		rec := recoveredRecord{key: key, offset: offset, blocks: blocks, valueSize: valueSize, version: hdr.Version, tombstone: tombstone}
		idx := len(records)
		records = append(records, rec)

		if cur, ok := winner[key]; !ok || rec.version > records[cur].version {
			winner[key] = idx
		}

		offset += blocks * BlockSize
	}

	sh.head = offset

	for i, rec := range records {
		if winner[rec.key] != i {
			sh.free(rec.offset, rec.blocks) // superseded by a newer version elsewhere in the log
			continue
		}
		if rec.tombstone {
			// deleted: do not install. The tombstone's block stays allocated
			// so it keeps shadowing older records of this key (see put).
		} else {
			s.index.installDuringRecovery(indexEntry{
				Key:       rec.key,
				Shard:     uint8(shardIdx),
				Offset:    uint32(rec.offset),
				ValueSize: uint16(rec.valueSize),
				BlockSize: uint8(rec.blocks),
				Version:   rec.version,
			})
		}
		counter := uint32(rec.version)
		s.versions.Store(rec.key, &counter)
	}
}
