package hls

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"nvmkv/config"
	"nvmkv/status"
)

func key16(s string) []byte {
	k := make([]byte, KeySize)
	copy(k, s)
	return k
}

func openStore(t *testing.T, size uint64) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pool")
	eng, err := Open(&config.Config{Path: path, Size: size, CreateOrErrorIfExists: true})
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })
	return eng.(*Store)
}

func TestGetAfterPut(t *testing.T) {
	s := openStore(t, 4<<20)
	require.NoError(t, s.Put(key16("alpha"), []byte("v1")))

	var got []byte
	require.NoError(t, s.Get(key16("alpha"), func(v []byte) { got = append([]byte(nil), v...) }))
	require.Equal(t, []byte("v1"), got)

	require.Equal(t, status.NotFound, status.Of(s.Get(key16("missing"), func([]byte) {})))
}

func TestRemoveAfterPut(t *testing.T) {
	s := openStore(t, 4<<20)
	require.NoError(t, s.Put(key16("alpha"), []byte("v1")))
	require.NoError(t, s.Remove(key16("alpha")))
	require.Equal(t, status.NotFound, status.Of(s.Exists(key16("alpha"))))
	require.Equal(t, status.NotFound, status.Of(s.Remove(key16("alpha"))))
}

func TestCountConsistency(t *testing.T) {
	s := openStore(t, 4<<20)
	for i := 0; i < 20; i++ {
		require.NoError(t, s.Put(key16(fmt.Sprintf("k%d", i)), []byte("v")))
	}
	n, err := s.CountAll()
	require.NoError(t, err)
	require.EqualValues(t, 20, n)

	require.NoError(t, s.Remove(key16("k5")))
	n, err = s.CountAll()
	require.NoError(t, err)
	require.EqualValues(t, 19, n)

	// Overwriting an existing key must not change the live count.
	require.NoError(t, s.Put(key16("k6"), []byte("v2")))
	n, err = s.CountAll()
	require.NoError(t, err)
	require.EqualValues(t, 19, n)
}

func TestGetAllStopsByCallback(t *testing.T) {
	s := openStore(t, 4<<20)
	for i := 0; i < 10; i++ {
		require.NoError(t, s.Put(key16(fmt.Sprintf("k%d", i)), []byte("v")))
	}

	visited := 0
	err := s.GetAll(func(k, v []byte) int {
		visited++
		return 1 // stop immediately
	})
	require.Equal(t, status.StoppedByCB, status.Of(err))
	require.Equal(t, 1, visited)
}

func TestOverwriteThenReopenRecovers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool")
	eng, err := Open(&config.Config{Path: path, Size: 4 << 20, CreateOrErrorIfExists: true})
	require.NoError(t, err)

	require.NoError(t, eng.Put(key16("k"), []byte("v1")))
	require.NoError(t, eng.Put(key16("k"), []byte("v2")))
	require.NoError(t, eng.Put(key16("other"), []byte("x")))
	require.NoError(t, eng.Remove(key16("other")))
	require.NoError(t, eng.Close())

	eng2, err := Open(&config.Config{Path: path, CreateIfMissing: true})
	require.NoError(t, err)
	defer eng2.Close()

	var got []byte
	require.NoError(t, eng2.Get(key16("k"), func(v []byte) { got = append([]byte(nil), v...) }))
	require.Equal(t, []byte("v2"), got)
	require.Equal(t, status.NotFound, status.Of(eng2.Exists(key16("other"))))

	n, err := eng2.CountAll()
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestOrderedOperationsNotSupported(t *testing.T) {
	s := openStore(t, 4<<20)
	_, err := s.CountAbove(key16("x"))
	require.Equal(t, status.NotSupported, status.Of(err))
	require.Equal(t, status.NotSupported, status.Of(s.GetAbove(key16("x"), func([]byte, []byte) int { return 0 })))

	_, err = s.NewWriteIterator()
	require.Equal(t, status.NotSupported, status.Of(err))
}

func TestTransactionBatch(t *testing.T) {
	s := openStore(t, 4<<20)
	require.NoError(t, s.Put(key16("existing"), []byte("v")))

	txn, err := s.TxBegin()
	require.NoError(t, err)
	require.NoError(t, txn.Put(key16("new"), []byte("v2")))
	require.NoError(t, txn.Remove(key16("existing")))
	require.NoError(t, txn.Commit())

	require.Equal(t, status.NotFound, status.Of(s.Exists(key16("existing"))))
	require.NoError(t, s.Exists(key16("new")))

	require.Equal(t, status.InvalidArgument, status.Of(txn.End()))
}
