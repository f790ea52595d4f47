package storage

import (
	"os"

	"github.com/pkg/errors"

	"github.com/phoreproject/xchain/chainhash"
)

// ErrNotFound is returned when a block or a tag is not in storage.
var ErrNotFound = errors.New("not found in storage")

// Storage is a very basic interface for pluggable block storage. Blocks are
// written by hash as opaque bytes and never removed; tags are named pointers
// to a block hash.
type Storage interface {
	PutBlock(h chainhash.Hash, data []byte) error
	GetBlock(h chainhash.Hash) ([]byte, error)
	HasBlock(h chainhash.Hash) (bool, error)
	GetTag(name string) (*chainhash.Hash, error)
	SetTag(name string, h chainhash.Hash) error
	Close() error
}

// Config selects and configures a storage backend.
type Config struct {
	// Path is the directory of the badger database.
	Path string

	// InMemory keeps everything in memory and ignores Path.
	InMemory bool
}

// NewConfig creates a config for an on-disk store at path.
func NewConfig(path string) Config {
	return Config{Path: path}
}

// Init opens the storage described by the config.
func Init(c Config) (Storage, error) {
	if c.InMemory {
		return NewMemoryStorage(), nil
	}

	if c.Path == "" {
		return nil, errors.New("storage path is not set")
	}

	err := os.MkdirAll(c.Path, 0777)
	if err != nil {
		return nil, errors.Wrapf(err, "could not create storage directory %s", c.Path)
	}

	return NewBadgerStorage(c.Path)
}
