package blockchain

import (
	"bytes"
	"sort"
	"sync"

	"github.com/pkg/errors"
	logger "github.com/sirupsen/logrus"

	"github.com/phoreproject/xchain/chainhash"
	"github.com/phoreproject/xchain/primitives"
	"github.com/phoreproject/xchain/storage"
)

// TipTag is the storage tag pointing to the current tip.
const TipTag = "HEAD"

// ErrBlockNotFound is returned when a block is not in storage.
var ErrBlockNotFound = errors.New("block not found")

// ErrNotAncestor is returned when a range is requested between blocks that
// are not on the same chain.
var ErrNotAncestor = errors.New("block is not an ancestor of the target")

// MaxBlockRange is the most blocks GetBlockRange returns.
const MaxBlockRange = 1000

// Sollicitor asks the network for a missing block.
type Sollicitor interface {
	SollicitBlock(h chainhash.Hash)
}

// SollicitorFunc adapts a function to the Sollicitor interface.
type SollicitorFunc func(h chainhash.Hash)

// SollicitBlock implements Sollicitor.
func (f SollicitorFunc) SollicitBlock(h chainhash.Hash) {
	f(h)
}

type noSollicitor struct{}

func (noSollicitor) SollicitBlock(h chainhash.Hash) {
	logger.WithField("hash", h).Debug("no network to sollicit block from")
}

// Option configures a Blockchain.
type Option func(*Blockchain)

// WithRestorer sets how chain states are computed.
func WithRestorer(r StateRestorer) Option {
	return func(b *Blockchain) {
		b.restorer = r
	}
}

// WithSollicitor sets where requests for missing blocks go.
func WithSollicitor(s Sollicitor) Option {
	return func(b *Blockchain) {
		b.sollicitor = s
	}
}

// Blockchain tracks the canonical tip among all the blocks received. Blocks
// whose parent is unknown are kept aside until the parent arrives.
type Blockchain struct {
	genesis     *primitives.GenesisData
	genesisHash chainhash.Hash
	storage     storage.Storage
	restorer    StateRestorer
	sollicitor  Sollicitor

	chainState ChainState

	// missing parent hash -> block hash -> block
	unconnected map[chainhash.Hash]map[chainhash.Hash]*primitives.Block

	lock sync.RWMutex
}

// FromStorage loads the blockchain from storage. The genesis block is written
// if the storage is new. An error means the chain state at the stored tip
// could not be restored and the node must not start.
func FromStorage(genesis *primitives.GenesisData, store storage.Storage, opts ...Option) (*Blockchain, error) {
	b := &Blockchain{
		genesis:     genesis,
		genesisHash: genesis.Hash(),
		storage:     store,
		sollicitor:  noSollicitor{},
		unconnected: make(map[chainhash.Hash]map[chainhash.Hash]*primitives.Block),
	}
	for _, opt := range opts {
		opt(b)
	}

	if b.restorer == nil {
		r, err := NewRestorer(DefaultRestoreCacheSize)
		if err != nil {
			return nil, err
		}
		b.restorer = r
	}

	hasGenesis, err := store.HasBlock(b.genesisHash)
	if err != nil {
		return nil, errors.Wrap(err, "could not check for genesis block")
	}
	if !hasGenesis {
		logger.WithField("genesisHash", b.genesisHash).Info("initializing blockchain with genesis block")

		data, err := genesis.Block().Serialize()
		if err != nil {
			return nil, err
		}
		if err := store.PutBlock(b.genesisHash, data); err != nil {
			return nil, errors.Wrap(err, "could not store genesis block")
		}
	}

	tip := b.genesisHash
	storedTip, err := store.GetTag(TipTag)
	switch {
	case err == storage.ErrNotFound:
	case err != nil:
		return nil, errors.Wrap(err, "could not read tip")
	default:
		tip = *storedTip
	}

	state, err := b.restorer.Restore(store, genesis, tip)
	if err != nil {
		return nil, errors.Wrapf(err, "could not restore chain state at %s", tip)
	}
	b.chainState = state

	logger.WithFields(logger.Fields{
		"tip":    state.LastBlock,
		"length": state.ChainLength,
	}).Info("loaded blockchain")

	return b, nil
}

// SetSollicitor changes where requests for missing blocks go.
func (b *Blockchain) SetSollicitor(s Sollicitor) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.sollicitor = s
}

// GetTip gets the hash and date of the canonical tip.
func (b *Blockchain) GetTip() (chainhash.Hash, primitives.BlockDate) {
	b.lock.RLock()
	defer b.lock.RUnlock()
	if b.chainState.LastDate == nil {
		return b.chainState.LastBlock, b.genesis.Date
	}
	return b.chainState.LastBlock, *b.chainState.LastDate
}

// GetChainState gets the state of the canonical chain.
func (b *Blockchain) GetChainState() ChainState {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.chainState
}

// GetStorage gets the block storage.
func (b *Blockchain) GetStorage() storage.Storage {
	return b.storage
}

// GetGenesisHash gets the hash of the genesis block.
func (b *Blockchain) GetGenesisHash() chainhash.Hash {
	return b.genesisHash
}

// GetGenesis gets the genesis the chain was started from.
func (b *Blockchain) GetGenesis() *primitives.GenesisData {
	return b.genesis
}

// HandleIncomingBlock takes a block from the network or from this node. It is
// stored and considered for the tip if its parent is known, otherwise it waits
// for the parent, which is asked for once.
func (b *Blockchain) HandleIncomingBlock(block *primitives.Block) {
	b.lock.Lock()
	defer b.lock.Unlock()

	blockHash := block.Hash()
	parentHash := block.ParentHash()

	if blockHash == b.genesisHash {
		return
	}
	if parentHash.IsZero() {
		logger.WithField("hash", blockHash).Warn("ignoring block without parent")
		return
	}

	if b.blockExists(parentHash) {
		b.handleConnectedBlock(blockHash, block)
		return
	}

	children, waiting := b.unconnected[parentHash]
	if !waiting {
		children = make(map[chainhash.Hash]*primitives.Block)
		b.unconnected[parentHash] = children
	}
	children[blockHash] = block

	logger.WithFields(logger.Fields{
		"hash":   blockHash,
		"parent": parentHash,
	}).Debug("received block with unknown parent")

	if !waiting {
		b.sollicitor.SollicitBlock(parentHash)
	}
}

type pendingBlock struct {
	hash  chainhash.Hash
	block *primitives.Block
}

// handleConnectedBlock connects a block whose parent is stored, then every
// block that was waiting on it, breadth first.
func (b *Blockchain) handleConnectedBlock(blockHash chainhash.Hash, block *primitives.Block) {
	queue := []pendingBlock{{hash: blockHash, block: block}}

	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]

		if !b.connectBlock(next.hash, next.block) {
			// children stay buffered, their parent is still not stored
			continue
		}

		children, found := b.unconnected[next.hash]
		if !found {
			continue
		}
		delete(b.unconnected, next.hash)

		waiting := make([]pendingBlock, 0, len(children))
		for h, child := range children {
			waiting = append(waiting, pendingBlock{hash: h, block: child})
		}
		sort.Slice(waiting, func(i, j int) bool {
			return bytes.Compare(waiting[i].hash[:], waiting[j].hash[:]) < 0
		})
		queue = append(queue, waiting...)
	}
}

// connectBlock stores a block and switches the tip to it if its chain is
// longer. It returns false if the block could not be stored.
func (b *Blockchain) connectBlock(blockHash chainhash.Hash, block *primitives.Block) bool {
	if blockHash == b.chainState.LastBlock {
		return true
	}

	data, err := block.Serialize()
	if err != nil {
		logger.WithError(err).WithField("hash", blockHash).Error("could not serialize block")
		return false
	}
	if err := b.storage.PutBlock(blockHash, data); err != nil {
		logger.WithError(err).WithField("hash", blockHash).Error("could not store block")
		return false
	}

	newState, err := b.restorer.Restore(b.storage, b.genesis, blockHash)
	if err != nil {
		logger.WithError(err).WithField("hash", blockHash).Warn("could not restore chain state for block")
		return true
	}

	if newState.ChainLength <= b.chainState.ChainLength {
		logger.WithFields(logger.Fields{
			"hash":      blockHash,
			"length":    newState.ChainLength,
			"tipLength": b.chainState.ChainLength,
		}).Debug("block does not extend the longest chain")
		return true
	}

	if err := b.storage.SetTag(TipTag, blockHash); err != nil {
		logger.WithError(err).WithField("hash", blockHash).Error("could not persist tip")
	}
	b.chainState = newState

	logger.WithFields(logger.Fields{
		"hash":   blockHash,
		"length": newState.ChainLength,
		"date":   newState.LastDate,
	}).Info("new tip")

	return true
}

func (b *Blockchain) blockExists(h chainhash.Hash) bool {
	has, err := b.storage.HasBlock(h)
	if err != nil {
		logger.WithError(err).WithField("hash", h).Error("could not check for block")
		return false
	}
	return has
}

// BlockExists checks if a block is stored. A stored block always has all of
// its ancestors stored too.
func (b *Blockchain) BlockExists(h chainhash.Hash) bool {
	return b.blockExists(h)
}

// SollicitBlock asks the network for a block.
func (b *Blockchain) SollicitBlock(h chainhash.Hash) {
	b.lock.RLock()
	s := b.sollicitor
	b.lock.RUnlock()
	s.SollicitBlock(h)
}

// OrphanCount gets the number of blocks waiting for their parent.
func (b *Blockchain) OrphanCount() int {
	b.lock.RLock()
	defer b.lock.RUnlock()
	count := 0
	for _, children := range b.unconnected {
		count += len(children)
	}
	return count
}

// GetBlock gets a stored block.
func (b *Blockchain) GetBlock(h chainhash.Hash) (*primitives.Block, error) {
	return loadBlock(b.storage, h)
}

// ValidateBlock checks a block received from the network before it is
// handled. The date must come after the parent's if the parent is known.
func (b *Blockchain) ValidateBlock(block *primitives.Block) error {
	if err := block.CheckContent(); err != nil {
		return err
	}

	parent, err := b.GetBlock(block.ParentHash())
	if errors.Cause(err) == ErrBlockNotFound {
		return nil
	}
	if err != nil {
		return err
	}

	if !parent.BlockHeader.Date.Less(block.BlockHeader.Date) {
		return errors.Errorf("block date %s is not after parent date %s", block.BlockHeader.Date, parent.BlockHeader.Date)
	}
	return nil
}

// GetBlockRange gets the blocks after from up to and including to, oldest
// first. If from equals to, only that block is returned.
func (b *Blockchain) GetBlockRange(from chainhash.Hash, to chainhash.Hash) ([]*primitives.Block, error) {
	if from == to {
		block, err := b.GetBlock(to)
		if err != nil {
			return nil, err
		}
		return []*primitives.Block{block}, nil
	}

	var blocks []*primitives.Block
	current := to
	for current != from {
		block, err := b.GetBlock(current)
		if err != nil {
			return nil, err
		}
		if block.ParentHash().IsZero() {
			return nil, errors.Wrapf(ErrNotAncestor, "%s is not an ancestor of %s", from, to)
		}
		if len(blocks) == MaxBlockRange {
			return nil, errors.Errorf("range from %s to %s is longer than %d blocks", from, to, MaxBlockRange)
		}
		blocks = append(blocks, block)
		current = block.ParentHash()
	}

	for i, j := 0, len(blocks)-1; i < j; i, j = i+1, j-1 {
		blocks[i], blocks[j] = blocks[j], blocks[i]
	}
	return blocks, nil
}

// GetHeaders gets the headers after the first locator hash found on the
// chain ending at target, up to and including target. If no locator hash is
// on that chain, headers start after genesis. At most max headers are
// returned, oldest first; max <= 0 means no limit.
func (b *Blockchain) GetHeaders(locator []chainhash.Hash, target chainhash.Hash, max int) ([]*primitives.BlockHeader, error) {
	known := make(map[chainhash.Hash]struct{}, len(locator))
	for _, h := range locator {
		known[h] = struct{}{}
	}

	var headers []*primitives.BlockHeader
	current := target
	for current != b.genesisHash {
		if _, found := known[current]; found {
			break
		}
		block, err := b.GetBlock(current)
		if err != nil {
			return nil, err
		}
		header := block.BlockHeader
		headers = append(headers, &header)
		if block.ParentHash().IsZero() {
			break
		}
		current = block.ParentHash()
	}

	for i, j := 0, len(headers)-1; i < j; i, j = i+1, j-1 {
		headers[i], headers[j] = headers[j], headers[i]
	}
	if max > 0 && len(headers) > max {
		headers = headers[:max]
	}
	return headers, nil
}
