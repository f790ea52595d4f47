package storage

import (
	"github.com/dgraph-io/badger"
	"github.com/pkg/errors"

	"github.com/phoreproject/xchain/chainhash"
)

var _ Storage = (*BadgerStorage)(nil)

// BadgerStorage is a wrapper around the badger database to provide functions for
// storing blocks and tags.
type BadgerStorage struct {
	db *badger.DB
}

// NewBadgerStorage opens the badger database in the supplied directory.
func NewBadgerStorage(databaseDir string) (*BadgerStorage, error) {
	db, err := badger.Open(badger.DefaultOptions(databaseDir))
	if err != nil {
		return nil, errors.Wrap(err, "could not open badger database")
	}

	return &BadgerStorage{
		db: db,
	}, nil
}

var blockPrefix = []byte("block")
var tagPrefix = []byte("tag")

func blockKey(h chainhash.Hash) []byte {
	key := make([]byte, 0, len(blockPrefix)+chainhash.HashSize)
	key = append(key, blockPrefix...)
	return append(key, h[:]...)
}

func tagKey(name string) []byte {
	key := make([]byte, 0, len(tagPrefix)+len(name))
	key = append(key, tagPrefix...)
	return append(key, name...)
}

func (b *BadgerStorage) get(key []byte) ([]byte, error) {
	txn := b.db.NewTransaction(false)
	defer txn.Discard()
	i, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return i.ValueCopy(nil)
}

// PutBlock stores the serialized block under its hash.
func (b *BadgerStorage) PutBlock(h chainhash.Hash, data []byte) error {
	key := blockKey(h)
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

// GetBlock gets the serialized block for a hash.
func (b *BadgerStorage) GetBlock(h chainhash.Hash) ([]byte, error) {
	return b.get(blockKey(h))
}

// HasBlock checks if a block is stored without reading its value.
func (b *BadgerStorage) HasBlock(h chainhash.Hash) (bool, error) {
	found := false
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(blockKey(h))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, err
}

// GetTag gets the hash a tag points to.
func (b *BadgerStorage) GetTag(name string) (*chainhash.Hash, error) {
	hashBytes, err := b.get(tagKey(name))
	if err != nil {
		return nil, err
	}

	return chainhash.NewHash(hashBytes)
}

// SetTag points a tag to a hash.
func (b *BadgerStorage) SetTag(name string, h chainhash.Hash) error {
	key := tagKey(name)
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, h[:])
	})
}

// Close closes the database.
func (b *BadgerStorage) Close() error {
	return b.db.Close()
}
