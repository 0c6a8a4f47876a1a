package trie

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	gethtrie "github.com/ethereum/go-ethereum/trie"
	"github.com/ethereum/go-ethereum/trie/trienode"
	"github.com/ethereum/go-ethereum/triedb"

	"deficore/storage"
)

// Trie wraps go-ethereum's trie with the commit/rollback lifecycle the protocol
// host needs.
//
// The wrapper tracks the last committed root and recreates the underlying trie
// after each commit or reset. Checkpoints capture copies of the in-memory trie
// so a caller can discard part of an uncommitted transition without losing the
// rest of it.
//
// Keys are expected to be hashed (keccak256) by the caller.
//
// Trie is not safe for concurrent use.
type Trie struct {
	store       storage.Database
	trieDB      *triedb.Database
	trie        *gethtrie.Trie
	root        common.Hash
	checkpoints []*gethtrie.Trie
}

// NewTrie creates a trie backed by the provided storage and optional root. A nil
// or empty root denotes the empty trie.
func NewTrie(store storage.Database, root []byte) (*Trie, error) {
	trieDB := store.TrieDB()
	rootHash := gethtypes.EmptyRootHash
	if len(root) > 0 {
		rootHash = common.BytesToHash(root)
	}
	underlying, err := gethtrie.New(gethtrie.TrieID(rootHash), trieDB)
	if err != nil {
		return nil, err
	}
	return &Trie{
		store:  store,
		trieDB: trieDB,
		trie:   underlying,
		root:   rootHash,
	}, nil
}

// Get retrieves a value from the trie for the provided key. Missing keys
// return an empty slice and no error.
func (t *Trie) Get(key []byte) ([]byte, error) {
	return t.trie.Get(key)
}

// Update inserts or updates a value in the trie for the provided key.
func (t *Trie) Update(key, value []byte) error {
	return t.trie.Update(key, value)
}

// Delete removes the key from the trie. Deleting a missing key is a no-op.
func (t *Trie) Delete(key []byte) error {
	return t.trie.Delete(key)
}

// Hash returns the root hash of the trie reflecting all in-memory mutations.
func (t *Trie) Hash() common.Hash {
	return t.trie.Hash()
}

// Root returns the last committed root hash.
func (t *Trie) Root() common.Hash {
	return t.root
}

// Checkpoint records the current in-memory state and returns its identifier.
func (t *Trie) Checkpoint() int {
	t.checkpoints = append(t.checkpoints, t.trie.Copy())
	return len(t.checkpoints) - 1
}

// RevertToCheckpoint restores the in-memory state captured by Checkpoint and
// drops that checkpoint along with every later one.
func (t *Trie) RevertToCheckpoint(id int) error {
	if id < 0 || id >= len(t.checkpoints) {
		return fmt.Errorf("trie: unknown checkpoint %d", id)
	}
	t.trie = t.checkpoints[id]
	t.checkpoints = t.checkpoints[:id]
	return nil
}

// Reset discards any in-memory changes and reloads the trie at the provided
// root. It is used to roll back a failed state transition.
func (t *Trie) Reset(root common.Hash) error {
	underlying, err := gethtrie.New(gethtrie.TrieID(root), t.trieDB)
	if err != nil {
		return err
	}
	t.trie = underlying
	t.root = root
	t.checkpoints = nil
	return nil
}

// Commit persists the trie changes to the backing database and returns the new
// root hash. After committing the wrapper recreates the underlying trie so it
// can be reused for subsequent transitions.
func (t *Trie) Commit(parent common.Hash, height uint64) (common.Hash, error) {
	newRoot, nodes := t.trie.Commit(false)
	if nodes != nil {
		merged := trienode.NewMergedNodeSet()
		if err := merged.Merge(nodes); err != nil {
			return common.Hash{}, err
		}
		if err := t.trieDB.Update(newRoot, parent, height, merged, nil); err != nil {
			return common.Hash{}, err
		}
		if err := t.trieDB.Commit(newRoot, false); err != nil {
			return common.Hash{}, err
		}
	}
	underlying, err := gethtrie.New(gethtrie.TrieID(newRoot), t.trieDB)
	if err != nil {
		return common.Hash{}, err
	}
	t.trie = underlying
	t.root = newRoot
	t.checkpoints = nil
	return newRoot, nil
}

// Store exposes the backing storage in case callers need to access it directly.
func (t *Trie) Store() storage.Database {
	return t.store
}
