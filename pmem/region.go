// Package pmem is the persistent-memory substrate (spec §3.4, component A):
// it maps a named region, flushes/persists byte ranges, and survives a
// crash between the flush and the next open. On real non-volatile memory
// this would be a direct mmap of a DAX device; here (as on any ordinary
// filesystem) it is a memory-mapped regular file, following the same
// "map a file, treat it as the durable medium" shape the teacher's storage
// engines use for their on-disk state, but wired to the real OS mmap
// syscalls via golang.org/x/sys/unix instead of the teacher's in-memory
// map[string]string stand-in (storage/storage_pure.go).
package pmem

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"

	"nvmkv/status"
)

// openPaths guards against mapping the same region twice in one process
// (spec §5 "opening the same region twice in one process is undefined
// behavior and implementations may detect and refuse with INVALID_ARGUMENT").
var openPaths sync.Map // map[string]struct{}

func claimPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	if _, loaded := openPaths.LoadOrStore(abs, struct{}{}); loaded {
		return "", status.New(status.InvalidArgument, "pmem: %s is already open in this process", path)
	}
	return abs, nil
}

func releasePath(abs string) {
	if abs != "" {
		openPaths.Delete(abs)
	}
}

const (
	magic         uint64 = 0x6e766d6b762d3031 // "nvmkv-01"
	formatVersion uint32 = 1

	layoutNameSize     = 16
	comparatorNameSize = 64

	// HeaderSize is the fixed on-media header preceding engine payload
	// (spec §3.4 "a small header identifying the layout").
	HeaderSize = 8 /*magic*/ + layoutNameSize + 4 /*version*/ + comparatorNameSize + 8 /*region size*/
)

// header is the fixed pool-file header (spec §6 "Region file").
type header struct {
	Magic          uint64
	LayoutName     [layoutNameSize]byte
	FormatVersion  uint32
	ComparatorName [comparatorNameSize]byte
	RegionSize     uint64
}

func (h *header) encode() []byte {
	buf := make([]byte, HeaderSize)
	off := 0
	binary.LittleEndian.PutUint64(buf[off:], h.Magic)
	off += 8
	copy(buf[off:off+layoutNameSize], h.LayoutName[:])
	off += layoutNameSize
	binary.LittleEndian.PutUint32(buf[off:], h.FormatVersion)
	off += 4
	copy(buf[off:off+comparatorNameSize], h.ComparatorName[:])
	off += comparatorNameSize
	binary.LittleEndian.PutUint64(buf[off:], h.RegionSize)
	return buf
}

func decodeHeader(buf []byte) (*header, error) {
	if len(buf) < HeaderSize {
		return nil, status.New(status.UnknownError, "pmem: truncated header")
	}
	h := &header{}
	off := 0
	h.Magic = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	copy(h.LayoutName[:], buf[off:off+layoutNameSize])
	off += layoutNameSize
	h.FormatVersion = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	copy(h.ComparatorName[:], buf[off:off+comparatorNameSize])
	off += comparatorNameSize
	h.RegionSize = binary.LittleEndian.Uint64(buf[off:])
	return h, nil
}

func fixedString(b []byte) string {
	n := bytes.IndexByte(b, 0)
	if n < 0 {
		n = len(b)
	}
	return string(b[:n])
}

func putFixedString(dst []byte, s string) {
	for i := range dst {
		dst[i] = 0
	}
	copy(dst, s)
}

// Region is a single contiguous mapped byte region backing one persistent
// engine instance (spec §3.4). Payload() is the engine-specific area after
// the header; the header itself is managed by Create/Open/comparator name
// accessors.
type Region struct {
	file    *os.File
	data    []byte // full mapping: header + payload
	absPath string
}

// Create maps a new region of the given total size at path, failing if the
// file already exists. layoutName and comparatorName are persisted into the
// header (spec §6, §4.6).
func Create(path string, size uint64, layoutName, comparatorName string) (*Region, error) {
	if size <= uint64(HeaderSize) {
		return nil, status.New(status.InvalidArgument, "pmem: size %d too small for header", size)
	}
	abs, err := claimPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		releasePath(abs)
		if os.IsExist(err) {
			return nil, status.New(status.InvalidArgument, "pmem: %s already exists", path)
		}
		return nil, status.New(status.UnknownError, "pmem: create %s: %v", path, err)
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		os.Remove(path)
		releasePath(abs)
		return nil, status.New(status.UnknownError, "pmem: truncate %s: %v", path, err)
	}

	r, err := mapFile(f, int(size))
	if err != nil {
		f.Close()
		os.Remove(path)
		releasePath(abs)
		return nil, err
	}
	r.absPath = abs

	h := &header{Magic: magic, FormatVersion: formatVersion, RegionSize: size}
	putFixedString(h.LayoutName[:], layoutName)
	putFixedString(h.ComparatorName[:], comparatorName)
	copy(r.data, h.encode())
	if err := r.Persist(); err != nil {
		r.Close()
		os.Remove(path)
		return nil, err
	}
	return r, nil
}

// Open maps an existing region at path and validates its header magic.
func Open(path string) (*Region, error) {
	abs, err := claimPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		releasePath(abs)
		if os.IsNotExist(err) {
			return nil, status.New(status.InvalidArgument, "pmem: %s does not exist", path)
		}
		return nil, status.New(status.UnknownError, "pmem: open %s: %v", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		releasePath(abs)
		return nil, status.New(status.UnknownError, "pmem: stat %s: %v", path, err)
	}

	r, err := mapFile(f, int(fi.Size()))
	if err != nil {
		f.Close()
		releasePath(abs)
		return nil, err
	}
	r.absPath = abs

	h, err := decodeHeader(r.data)
	if err != nil {
		r.Close()
		return nil, err
	}
	if h.Magic != magic {
		r.Close()
		return nil, status.New(status.UnknownError, "pmem: %s is not a valid region (bad magic)", path)
	}
	return r, nil
}

func mapFile(f *os.File, size int) (*Region, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, status.New(status.UnknownError, "pmem: mmap: %v", err)
	}
	return &Region{file: f, data: data}, nil
}

// Payload is the mutable engine-specific area following the header.
func (r *Region) Payload() []byte {
	return r.data[HeaderSize:]
}

// LayoutName returns the engine layout name persisted at create time.
func (r *Region) LayoutName() string {
	h, _ := decodeHeader(r.data)
	return fixedString(h.LayoutName[:])
}

// ComparatorName returns the comparator name persisted at create time.
func (r *Region) ComparatorName() string {
	h, _ := decodeHeader(r.data)
	return fixedString(h.ComparatorName[:])
}

// Size is the total mapped region size, header included.
func (r *Region) Size() uint64 {
	return uint64(len(r.data))
}

// Flush issues the non-temporal-store-equivalent durability operation for a
// byte range of Payload(): on ordinary mmap'd files this is msync over the
// page range covering [off, off+length) (spec §4.3 write path step 2,
// "persist that exact range with a non-temporal-store + drain sequence").
func (r *Region) Flush(off, length int) error {
	if length == 0 {
		return nil
	}
	absStart := HeaderSize + off
	absEnd := absStart + length
	pageStart := (absStart / os.Getpagesize()) * os.Getpagesize()
	pageEnd := ((absEnd + os.Getpagesize() - 1) / os.Getpagesize()) * os.Getpagesize()
	if pageEnd > len(r.data) {
		pageEnd = len(r.data)
	}
	if err := unix.Msync(r.data[pageStart:pageEnd], unix.MS_SYNC); err != nil {
		return status.New(status.UnknownError, "pmem: msync: %v", err)
	}
	return nil
}

// Persist flushes the entire region (header and payload); Create uses it
// after writing the header.
func (r *Region) Persist() error {
	if err := unix.Msync(r.data, unix.MS_SYNC); err != nil {
		return status.New(status.UnknownError, "pmem: msync: %v", err)
	}
	return nil
}

// Close unmaps the region and closes the underlying file descriptor.
func (r *Region) Close() error {
	var firstErr error
	if r.data != nil {
		if err := unix.Munmap(r.data); err != nil {
			firstErr = status.New(status.UnknownError, "pmem: munmap: %v", err)
		}
		r.data = nil
	}
	if r.file != nil {
		if err := r.file.Close(); err != nil && firstErr == nil {
			firstErr = status.New(status.UnknownError, "pmem: close: %v", err)
		}
		r.file = nil
	}
	releasePath(r.absPath)
	r.absPath = ""
	return firstErr
}
