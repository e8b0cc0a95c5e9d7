package pmem

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateOpenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool")
	r, err := Create(path, 1<<20, "tree3", "__pmemkv_binary_comparator")
	require.NoError(t, err)
	copy(r.Payload(), []byte("hello"))
	require.NoError(t, r.Flush(0, 5))
	require.NoError(t, r.Close())

	r2, err := Open(path)
	require.NoError(t, err)
	defer r2.Close()
	require.Equal(t, "tree3", r2.LayoutName())
	require.Equal(t, "__pmemkv_binary_comparator", r2.ComparatorName())
	require.Equal(t, []byte("hello"), r2.Payload()[:5])
}

func TestCreateRejectsExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool")
	r, err := Create(path, 1<<16, "fmap", "x")
	require.NoError(t, err)
	r.Close()

	_, err = Create(path, 1<<16, "fmap", "x")
	require.Error(t, err)
}

func TestDoubleOpenSamePathRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool")
	r, err := Create(path, 1<<16, "fmap", "x")
	require.NoError(t, err)
	defer r.Close()

	_, err = Open(path)
	require.Error(t, err)
}
