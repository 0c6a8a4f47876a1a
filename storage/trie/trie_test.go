package trie

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"deficore/storage"
)

func TestTrieCommitFlushPersistsData(t *testing.T) {
	dir := t.TempDir()

	db1, err := storage.NewLevelDB(dir, storage.LevelOptions{})
	require.NoError(t, err)

	tr, err := NewTrie(db1, nil)
	require.NoError(t, err)

	key := crypto.Keccak256Hash([]byte("lending/pool"))
	value := []byte("pool-record")

	require.NoError(t, tr.Update(key.Bytes(), value))
	root, err := tr.Commit(common.Hash{}, 1)
	require.NoError(t, err)

	db1.Close()

	db2, err := storage.NewLevelDB(dir, storage.LevelOptions{})
	require.NoError(t, err)
	defer db2.Close()

	restored, err := NewTrie(db2, root.Bytes())
	require.NoError(t, err)

	got, err := restored.Get(key.Bytes())
	require.NoError(t, err)
	require.Equal(t, value, got)
}

func TestTrieResetDiscardsUncommittedWrites(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()

	tr, err := NewTrie(db, nil)
	require.NoError(t, err)

	committed := crypto.Keccak256([]byte("committed"))
	require.NoError(t, tr.Update(committed, []byte{1}))
	root, err := tr.Commit(tr.Root(), 1)
	require.NoError(t, err)

	pending := crypto.Keccak256([]byte("pending"))
	require.NoError(t, tr.Update(pending, []byte{2}))
	require.NoError(t, tr.Reset(root))

	got, err := tr.Get(pending)
	require.NoError(t, err)
	require.Empty(t, got)

	got, err = tr.Get(committed)
	require.NoError(t, err)
	require.Equal(t, []byte{1}, got)
	require.Equal(t, root, tr.Hash())
}

func TestTrieCheckpointRevert(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()

	tr, err := NewTrie(db, nil)
	require.NoError(t, err)

	first := crypto.Keccak256([]byte("first"))
	second := crypto.Keccak256([]byte("second"))

	require.NoError(t, tr.Update(first, []byte{1}))
	id := tr.Checkpoint()
	require.NoError(t, tr.Update(second, []byte{2}))
	require.NoError(t, tr.Delete(first))

	require.NoError(t, tr.RevertToCheckpoint(id))

	got, err := tr.Get(first)
	require.NoError(t, err)
	require.Equal(t, []byte{1}, got)
	got, err = tr.Get(second)
	require.NoError(t, err)
	require.Empty(t, got)

	require.Error(t, tr.RevertToCheckpoint(id))
}
