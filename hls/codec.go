package hls

import (
	"bytes"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// DefragCodec estimates how compressible a cold value block is during
// Defrag's best-effort rebuild (spec §4.3/§9 "hint-only best-effort rebuild
// of the value log"). Mirrors the teacher's CompressionAlgorithm interface
// (advanced/compression/engine.go) cut down to the one thing Defrag needs:
// a cheap compress round-trip to size up reclaimable space, without
// changing the on-media record format or the read path.
type DefragCodec interface {
	Name() string
	Compress(data []byte) ([]byte, error)
}

type zstdCodec struct{ enc *zstd.Encoder }

// NewZstdCodec is the codec Defrag uses (klauspost/compress/zstd),
// the teacher's pick for cold-data compression
// (compression.ColdDataCompressionPolicy).
func NewZstdCodec() DefragCodec {
	enc, _ := zstd.NewWriter(nil)
	return &zstdCodec{enc: enc}
}

func (c *zstdCodec) Name() string { return "zstd" }
func (c *zstdCodec) Compress(data []byte) ([]byte, error) {
	return c.enc.EncodeAll(data, nil), nil
}

type snappyCodec struct{}

// NewSnappyCodec returns a snappy-backed DefragCodec; Defrag itself always
// uses zstd.
func NewSnappyCodec() DefragCodec { return snappyCodec{} }

func (snappyCodec) Name() string { return "snappy" }
func (snappyCodec) Compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

type lz4Codec struct{}

// NewLZ4Codec returns an lz4-backed DefragCodec; Defrag itself always uses
// zstd.
func NewLZ4Codec() DefragCodec { return lz4Codec{} }

func (lz4Codec) Name() string { return "lz4" }
func (lz4Codec) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
