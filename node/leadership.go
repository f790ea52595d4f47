package node

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"

	"github.com/phoreproject/xchain/blockchain"
	"github.com/phoreproject/xchain/intercom"
	"github.com/phoreproject/xchain/primitives"
	"github.com/phoreproject/xchain/task"
)

// MaxBlockTransactions is the most transactions put in a produced block.
const MaxBlockTransactions = 500

// Leadership periodically cleans up the transaction pool and, when this node
// is a leader, produces a block from it.
type Leadership struct {
	chain  *blockchain.Blockchain
	pool   *TransactionPool
	blocks task.MessageBox[intercom.BlockMsg]
	leader bool
	expiry time.Duration
}

// NewLeadership creates the leadership worker. Produced blocks are sent to
// blocks.
func NewLeadership(chain *blockchain.Blockchain, pool *TransactionPool, blocks task.MessageBox[intercom.BlockMsg], leader bool, expiry time.Duration) *Leadership {
	return &Leadership{
		chain:  chain,
		pool:   pool,
		blocks: blocks,
		leader: leader,
		expiry: expiry,
	}
}

// Tick runs one round of the leadership loop.
func (l *Leadership) Tick() {
	size := l.pool.Len()
	removed := l.pool.GC(l.expiry)

	logger.WithFields(logger.Fields{
		"transactions": size,
		"expired":      removed,
	}).Info("leadership waking up")

	if !l.leader || l.pool.Len() == 0 {
		return
	}

	block := l.ProduceBlock()
	logger.WithFields(logger.Fields{
		"hash":         block.Hash(),
		"date":         block.BlockHeader.Date,
		"transactions": len(block.BlockBody.Transactions),
	}).Info("produced block")

	l.blocks.SendOrLog(intercom.LeadershipBlock{Block: block})
}

// ProduceBlock creates a block on the current tip with the oldest
// transactions of the pool.
func (l *Leadership) ProduceBlock() *primitives.Block {
	tip, date := l.chain.GetTip()

	entries := l.pool.Snapshot()
	if len(entries) > MaxBlockTransactions {
		entries = entries[:MaxBlockTransactions]
	}
	txs := make([]primitives.Transaction, len(entries))
	for i, e := range entries {
		txs[i] = *e.Transaction
	}

	return primitives.NewBlock(tip, date.Next(l.chain.GetGenesis().SlotsPerEpoch), txs)
}

// Run ticks every interval until ctx is done.
func (l *Leadership) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Tick()
		}
	}
}
