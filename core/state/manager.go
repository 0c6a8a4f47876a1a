package state

import (
	"bytes"
	"fmt"
	"reflect"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"deficore/storage/trie"
)

// Manager reads and writes namespaced protocol records on top of the state
// trie. Every engine reaches persistent state through a Manager.
type Manager struct {
	trie *trie.Trie
}

// NewManager creates a state manager operating on the provided trie.
func NewManager(tr *trie.Trie) *Manager {
	return &Manager{trie: tr}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// KVPut RLP-encodes value and stores it under key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.trie.Update(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.trie.Get(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes the record stored under key.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	return m.trie.Delete(kvKey(key))
}

// KVAppend appends the provided value to the RLP-encoded byte slice list stored
// under the supplied key. Duplicate values are ignored to keep the index
// deterministic.
func (m *Manager) KVAppend(key []byte, value []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	var list [][]byte
	if _, err := m.KVGet(key, &list); err != nil {
		return err
	}
	for _, existing := range list {
		if bytes.Equal(existing, value) {
			return nil
		}
	}
	list = append(list, append([]byte(nil), value...))
	return m.KVPut(key, list)
}

// KVGetList retrieves an RLP-encoded slice stored under the provided key and
// decodes it into the supplied destination slice pointer. When no value is
// present the destination is initialised with an empty slice.
func (m *Manager) KVGetList(key []byte, out interface{}) error {
	val := reflect.ValueOf(out)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return fmt.Errorf("kv: destination must be a non-nil pointer")
	}
	elem := val.Elem()
	if elem.Kind() != reflect.Slice {
		return fmt.Errorf("kv: destination must point to a slice")
	}
	ok, err := m.KVGet(key, out)
	if err != nil {
		return err
	}
	if !ok {
		elem.Set(reflect.MakeSlice(elem.Type(), 0, 0))
	}
	return nil
}

// Snapshot marks the current uncommitted state so a later RevertToSnapshot can
// discard everything written after it.
func (m *Manager) Snapshot() int {
	return m.trie.Checkpoint()
}

// RevertToSnapshot restores the state captured by Snapshot.
func (m *Manager) RevertToSnapshot(id int) error {
	return m.trie.RevertToCheckpoint(id)
}
