package blockchain

import (
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/phoreproject/xchain/chainhash"
	"github.com/phoreproject/xchain/primitives"
	"github.com/phoreproject/xchain/storage"
)

// DefaultRestoreCacheSize is the number of chain states the restorer keeps.
const DefaultRestoreCacheSize = 4096

// ChainState summarizes the chain ending at LastBlock. LastDate is nil for the
// genesis block, which has length 0. Chain states are never modified once
// created.
type ChainState struct {
	LastBlock   chainhash.Hash
	LastDate    *primitives.BlockDate
	ChainLength uint64
}

// StateRestorer computes the chain state of the chain ending at target.
type StateRestorer interface {
	Restore(store storage.Storage, genesis *primitives.GenesisData, target chainhash.Hash) (ChainState, error)
}

// Restorer restores chain states by following parent links back to genesis.
// Blocks are content addressed, so the state of a block never changes and
// computed states are cached.
type Restorer struct {
	cache *lru.Cache
}

// NewRestorer creates a restorer remembering up to cacheSize chain states.
func NewRestorer(cacheSize int) (*Restorer, error) {
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "could not create chain state cache")
	}
	return &Restorer{cache: cache}, nil
}

func loadBlock(store storage.Storage, h chainhash.Hash) (*primitives.Block, error) {
	data, err := store.GetBlock(h)
	if err == storage.ErrNotFound {
		return nil, errors.Wrapf(ErrBlockNotFound, "block %s", h)
	}
	if err != nil {
		return nil, err
	}
	return primitives.DeserializeBlock(data)
}

// Restore implements StateRestorer. Every block from target back to genesis
// must be in storage and dates must strictly increase along the chain.
func (r *Restorer) Restore(store storage.Storage, genesis *primitives.GenesisData, target chainhash.Hash) (ChainState, error) {
	genesisHash := genesis.Hash()

	var path []*primitives.Block
	var base ChainState
	baseDate := genesis.Date

	current := target
	for {
		if current == genesisHash {
			base = ChainState{LastBlock: genesisHash}
			break
		}
		if cached, found := r.cache.Get(current); found {
			base = cached.(ChainState)
			baseDate = *base.LastDate
			break
		}

		block, err := loadBlock(store, current)
		if err != nil {
			return ChainState{}, errors.Wrapf(err, "could not load ancestor of %s", target)
		}
		if block.ParentHash().IsZero() {
			return ChainState{}, errors.Errorf("chain ending at %s does not lead to genesis", target)
		}

		path = append(path, block)
		current = block.ParentHash()
	}

	state := base
	previousDate := baseDate
	for i := len(path) - 1; i >= 0; i-- {
		block := path[i]
		date := block.BlockHeader.Date
		if !previousDate.Less(date) {
			return ChainState{}, errors.Errorf("block %s has date %s, not after its parent's %s", block.Hash(), date, previousDate)
		}

		state = ChainState{
			LastBlock:   block.Hash(),
			LastDate:    &date,
			ChainLength: state.ChainLength + 1,
		}
		r.cache.Add(state.LastBlock, state)
		previousDate = date
	}

	return state, nil
}
