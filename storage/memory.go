package storage

import (
	"sync"

	"github.com/phoreproject/xchain/chainhash"
)

var _ Storage = (*MemoryStorage)(nil)

// MemoryStorage is a very basic in-memory block storage.
type MemoryStorage struct {
	blocks map[chainhash.Hash][]byte
	tags   map[string]chainhash.Hash
	lock   *sync.Mutex
}

// NewMemoryStorage initializes a new in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		blocks: make(map[chainhash.Hash][]byte),
		tags:   make(map[string]chainhash.Hash),
		lock:   new(sync.Mutex),
	}
}

// PutBlock adds the block to storage.
func (s *MemoryStorage) PutBlock(h chainhash.Hash, data []byte) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)
	s.blocks[h] = dataCopy
	return nil
}

// GetBlock is a storage lookup function.
func (s *MemoryStorage) GetBlock(h chainhash.Hash) ([]byte, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	data, found := s.blocks[h]
	if !found {
		return nil, ErrNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// HasBlock checks if the block is stored.
func (s *MemoryStorage) HasBlock(h chainhash.Hash) (bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	_, found := s.blocks[h]
	return found, nil
}

// GetTag gets the hash a tag points to.
func (s *MemoryStorage) GetTag(name string) (*chainhash.Hash, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	h, found := s.tags[name]
	if !found {
		return nil, ErrNotFound
	}
	return &h, nil
}

// SetTag points a tag to a hash.
func (s *MemoryStorage) SetTag(name string, h chainhash.Hash) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.tags[name] = h
	return nil
}

// BlockCount returns the number of stored blocks.
func (s *MemoryStorage) BlockCount() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.blocks)
}

// Close closes the storage.
func (s *MemoryStorage) Close() error {
	return nil
}
