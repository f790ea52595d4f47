package tpool

import (
	"sort"
	"sync"
	"time"

	"github.com/phoreproject/xchain/clock"
)

type entry[T any] struct {
	received time.Time
	seq      uint64
	tx       T
}

// Entry is a transaction in the pool with the time it was received.
type Entry[ID comparable, T any] struct {
	ID          ID
	Received    time.Time
	Transaction T
}

// TPool keeps track of the transactions that could be inserted into a block,
// along with the time they were received. Eviction is purely by age.
type TPool[ID comparable, T any] struct {
	clock   clock.Clock
	content map[ID]entry[T]
	nextSeq uint64
	lock    sync.RWMutex
}

// New creates an empty pool stamping arrivals with c.
func New[ID comparable, T any](c clock.Clock) *TPool[ID, T] {
	return &TPool[ID, T]{
		clock:   c,
		content: make(map[ID]entry[T]),
	}
}

// Exist checks if a transaction is already in the pool.
func (p *TPool[ID, T]) Exist(id ID) bool {
	p.lock.RLock()
	defer p.lock.RUnlock()
	_, found := p.content[id]
	return found
}

// Add adds a transaction into the pool. A transaction with the same id is
// replaced and its arrival time reset.
func (p *TPool[ID, T]) Add(id ID, tx T) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.content[id] = entry[T]{
		received: p.clock.Now(),
		seq:      p.nextSeq,
		tx:       tx,
	}
	p.nextSeq++
}

// GC removes every transaction older than expiry and returns how many were
// removed.
func (p *TPool[ID, T]) GC(expiry time.Duration) int {
	p.lock.Lock()
	defer p.lock.Unlock()

	now := p.clock.Now()
	removed := 0
	for id, e := range p.content {
		if now.Sub(e.received) > expiry {
			delete(p.content, id)
			removed++
		}
	}
	return removed
}

// Len gets the number of transactions in the pool.
func (p *TPool[ID, T]) Len() int {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return len(p.content)
}

// Get gets a transaction from the pool.
func (p *TPool[ID, T]) Get(id ID) (T, bool) {
	p.lock.RLock()
	defer p.lock.RUnlock()
	e, found := p.content[id]
	return e.tx, found
}

// Snapshot copies the content of the pool, oldest first.
func (p *TPool[ID, T]) Snapshot() []Entry[ID, T] {
	p.lock.RLock()
	entries := make([]entry[T], 0, len(p.content))
	ids := make(map[uint64]ID, len(p.content))
	for id, e := range p.content {
		entries = append(entries, e)
		ids[e.seq] = id
	}
	p.lock.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].received.Equal(entries[j].received) {
			return entries[i].received.Before(entries[j].received)
		}
		return entries[i].seq < entries[j].seq
	})

	out := make([]Entry[ID, T], len(entries))
	for i, e := range entries {
		out[i] = Entry[ID, T]{
			ID:          ids[e.seq],
			Received:    e.received,
			Transaction: e.tx,
		}
	}
	return out
}

// Remove removes transactions from the pool, usually because they were
// included in a block. It returns how many were in the pool.
func (p *TPool[ID, T]) Remove(ids ...ID) int {
	p.lock.Lock()
	defer p.lock.Unlock()

	removed := 0
	for _, id := range ids {
		if _, found := p.content[id]; found {
			delete(p.content, id)
			removed++
		}
	}
	return removed
}
