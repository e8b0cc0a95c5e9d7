package hbt

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"nvmkv/comparator"
	"nvmkv/config"
	"nvmkv/status"
)

func openTree(t *testing.T, size uint64) *Tree {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pool")
	eng, err := Open(&config.Config{Path: path, Size: size, CreateOrErrorIfExists: true})
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })
	return eng.(*Tree)
}

func TestPutGetExistsRemove(t *testing.T) {
	tr := openTree(t, 4<<20)

	require.NoError(t, tr.Put([]byte("alpha"), []byte("1")))
	require.NoError(t, tr.Put([]byte("beta"), []byte("2")))

	require.NoError(t, tr.Exists([]byte("alpha")))
	require.Equal(t, status.NotFound, status.Of(tr.Exists([]byte("gamma"))))

	var got []byte
	require.NoError(t, tr.Get([]byte("beta"), func(v []byte) { got = append([]byte(nil), v...) }))
	require.Equal(t, []byte("2"), got)

	require.NoError(t, tr.Remove([]byte("alpha")))
	require.Equal(t, status.NotFound, status.Of(tr.Exists([]byte("alpha"))))
	require.Equal(t, status.NotFound, status.Of(tr.Remove([]byte("alpha"))))
}

func TestPutOverwriteInPlace(t *testing.T) {
	tr := openTree(t, 4<<20)
	require.NoError(t, tr.Put([]byte("k"), []byte("v1")))
	require.NoError(t, tr.Put([]byte("k"), []byte("v2longer")))

	var got []byte
	require.NoError(t, tr.Get([]byte("k"), func(v []byte) { got = append([]byte(nil), v...) }))
	require.Equal(t, []byte("v2longer"), got)

	n, err := tr.CountAll()
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestOrderedRangeOperations(t *testing.T) {
	tr := openTree(t, 4<<20)
	for _, k := range []string{"b", "d", "a", "c", "e"} {
		require.NoError(t, tr.Put([]byte(k), []byte(k)))
	}

	var seen []string
	require.NoError(t, tr.GetAll(func(k, v []byte) int {
		seen = append(seen, string(k))
		return 0
	}))
	require.Equal(t, []string{"a", "b", "c", "d", "e"}, seen)

	n, err := tr.CountAbove([]byte("b"))
	require.NoError(t, err)
	require.EqualValues(t, 3, n) // c, d, e

	n, err = tr.CountEqualAbove([]byte("b"))
	require.NoError(t, err)
	require.EqualValues(t, 4, n) // b, c, d, e

	n, err = tr.CountBelow([]byte("d"))
	require.NoError(t, err)
	require.EqualValues(t, 3, n) // a, b, c

	n, err = tr.CountBetween([]byte("a"), []byte("e"))
	require.NoError(t, err)
	require.EqualValues(t, 4, n) // a, b, c, d
}

func TestSplitAcrossManyKeys(t *testing.T) {
	tr := openTree(t, 8<<20)
	const n = 500
	for i := 0; i < n; i++ {
		k := fmt.Sprintf("key-%04d", i)
		require.NoError(t, tr.Put([]byte(k), []byte(k)))
	}

	count, err := tr.CountAll()
	require.NoError(t, err)
	require.EqualValues(t, n, count)

	for i := 0; i < n; i += 37 {
		k := fmt.Sprintf("key-%04d", i)
		var got []byte
		require.NoError(t, tr.Get([]byte(k), func(v []byte) { got = append([]byte(nil), v...) }))
		require.Equal(t, k, string(got))
	}

	var seen []string
	require.NoError(t, tr.GetAll(func(k, v []byte) int {
		seen = append(seen, string(k))
		return 0
	}))
	require.Len(t, seen, n)
	for i := 1; i < len(seen); i++ {
		require.Less(t, seen[i-1], seen[i])
	}
}

func TestReopenRecoversEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool")
	eng, err := Open(&config.Config{Path: path, Size: 4 << 20, CreateOrErrorIfExists: true})
	require.NoError(t, err)
	for _, k := range []string{"a", "b", "c", "d"} {
		require.NoError(t, eng.Put([]byte(k), []byte(k)))
	}
	require.NoError(t, eng.Remove([]byte("b")))
	require.NoError(t, eng.Close())

	eng2, err := Open(&config.Config{Path: path, CreateIfMissing: true})
	require.NoError(t, err)
	defer eng2.Close()

	require.NoError(t, eng2.Exists([]byte("a")))
	require.Equal(t, status.NotFound, status.Of(eng2.Exists([]byte("b"))))

	n, err := eng2.CountAll()
	require.NoError(t, err)
	require.EqualValues(t, 3, n)
}

func TestBidirectionalIterator(t *testing.T) {
	tr := openTree(t, 4<<20)
	for _, k := range []string{"a", "b", "c", "d"} {
		require.NoError(t, tr.Put([]byte(k), []byte(k)))
	}

	rd, err := tr.NewReadIterator()
	require.NoError(t, err)
	defer rd.Close()

	bd, ok := rd.(interface {
		SeekToFirst() error
		SeekToLast() error
		Prev() error
		SeekHigher(key []byte) error
	})
	require.True(t, ok)

	require.NoError(t, bd.SeekToFirst())
	k, err := rd.Key()
	require.NoError(t, err)
	require.Equal(t, "a", string(k))

	require.NoError(t, bd.SeekToLast())
	k, err = rd.Key()
	require.NoError(t, err)
	require.Equal(t, "d", string(k))

	require.NoError(t, bd.Prev())
	k, err = rd.Key()
	require.NoError(t, err)
	require.Equal(t, "c", string(k))

	require.NoError(t, bd.SeekHigher([]byte("b")))
	k, err = rd.Key()
	require.NoError(t, err)
	require.Equal(t, "c", string(k))
}

func TestWriteIteratorInPlaceMutation(t *testing.T) {
	tr := openTree(t, 4<<20)
	require.NoError(t, tr.Put([]byte("k"), []byte("0123456789")))

	wr, err := tr.NewWriteIterator()
	require.NoError(t, err)
	require.NoError(t, wr.Seek([]byte("k")))

	buf, err := wr.WriteRange(2, 3)
	require.NoError(t, err)
	copy(buf, []byte("XYZ"))
	require.NoError(t, wr.Commit())
	require.NoError(t, wr.Close())

	var got []byte
	require.NoError(t, tr.Get([]byte("k"), func(v []byte) { got = append([]byte(nil), v...) }))
	require.Equal(t, []byte("01XYZ56789"), got)
}

func TestTransactionBatchesPutAndRemove(t *testing.T) {
	tr := openTree(t, 4<<20)
	require.NoError(t, tr.Put([]byte("existing"), []byte("v")))

	txn, err := tr.TxBegin()
	require.NoError(t, err)
	require.NoError(t, txn.Put([]byte("new"), []byte("v2")))
	require.NoError(t, txn.Remove([]byte("existing")))
	require.NoError(t, txn.Commit())

	require.Equal(t, status.NotFound, status.Of(tr.Exists([]byte("existing"))))
	require.NoError(t, tr.Exists([]byte("new")))

	require.Equal(t, status.InvalidArgument, status.Of(txn.Put([]byte("late"), []byte("v"))))
}

func TestInvalidKeyAndValueSizes(t *testing.T) {
	tr := openTree(t, 4<<20)
	require.Equal(t, status.InvalidArgument, status.Of(tr.Put(nil, []byte("v"))))
	require.Equal(t, status.InvalidArgument, status.Of(tr.Put(make([]byte, KeyCap+1), []byte("v"))))
	require.Equal(t, status.InvalidArgument, status.Of(tr.Put([]byte("k"), make([]byte, ValueCap+1))))
}

func TestComparatorMismatchOnReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool")
	eng, err := Open(&config.Config{Path: path, Size: 4 << 20, CreateOrErrorIfExists: true})
	require.NoError(t, err)
	require.NoError(t, eng.Close())

	rev := comparator.New("reverse", func(a, b []byte) int { return comparator.Default.Compare(b, a) })
	_, err = Open(&config.Config{Path: path, CreateIfMissing: true, Comparator: rev})
	require.Equal(t, status.ComparatorMismatch, status.Of(err))
}
