package storage

import (
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethdb"
	gethleveldb "github.com/ethereum/go-ethereum/ethdb/leveldb"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// Database is the persistence boundary for protocol state. Raw Put/Get are
// used for head metadata while the trie database stores state nodes.
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	TrieDB() *triedb.Database
	Close()
}

type backend struct {
	kv     ethdb.Database
	trieDB *triedb.Database
}

func newBackend(kv ethdb.KeyValueStore) *backend {
	db := rawdb.NewDatabase(kv)
	return &backend{
		kv:     db,
		trieDB: triedb.NewDatabase(db, triedb.HashDefaults),
	}
}

func (b *backend) Put(key []byte, value []byte) error {
	return b.kv.Put(key, value)
}

func (b *backend) Get(key []byte) ([]byte, error) {
	return b.kv.Get(key)
}

func (b *backend) Has(key []byte) (bool, error) {
	return b.kv.Has(key)
}

func (b *backend) TrieDB() *triedb.Database {
	return b.trieDB
}

func (b *backend) Close() {
	_ = b.trieDB.Close()
	_ = b.kv.Close()
}

// --- In-Memory DB (for tests and dev mode) ---

type MemDB struct {
	*backend
}

func NewMemDB() *MemDB {
	return &MemDB{backend: newBackend(memorydb.New())}
}

// --- Persistent DB ---

// LevelOptions tunes the LevelDB backend.
type LevelOptions struct {
	CacheMB int
	Handles int
}

// LevelDB is a persistent key-value store using LevelDB.
type LevelDB struct {
	*backend
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string, opts LevelOptions) (*LevelDB, error) {
	if opts.CacheMB <= 0 {
		opts.CacheMB = 16
	}
	if opts.Handles <= 0 {
		opts.Handles = 64
	}
	kv, err := gethleveldb.NewCustom(path, "deficore/db/", func(o *opt.Options) {
		o.BlockCacheCapacity = opts.CacheMB / 2 * opt.MiB
		o.WriteBuffer = opts.CacheMB / 4 * opt.MiB
		o.OpenFilesCacheCapacity = opts.Handles
	})
	if err != nil {
		return nil, err
	}
	return &LevelDB{backend: newBackend(kv)}, nil
}
