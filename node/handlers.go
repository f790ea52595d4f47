package node

import (
	"github.com/pkg/errors"
	logger "github.com/sirupsen/logrus"

	"github.com/phoreproject/xchain/blockchain"
	"github.com/phoreproject/xchain/chainhash"
	"github.com/phoreproject/xchain/intercom"
	"github.com/phoreproject/xchain/primitives"
	"github.com/phoreproject/xchain/task"
	"github.com/phoreproject/xchain/tpool"
)

// MaxHeaders is the most headers answered to a single request.
const MaxHeaders = 2000

// TransactionPool holds transactions waiting to be included in a block.
type TransactionPool = tpool.TPool[chainhash.Hash, *primitives.Transaction]

// TransactionHandler adds transactions to the pool.
type TransactionHandler struct {
	pool    *TransactionPool
	network task.MessageBox[intercom.NetworkMsg]
}

// NewTransactionHandler creates a transaction handler. Client transactions are
// relayed through network.
func NewTransactionHandler(pool *TransactionPool, network task.MessageBox[intercom.NetworkMsg]) *TransactionHandler {
	return &TransactionHandler{pool: pool, network: network}
}

func (h *TransactionHandler) add(tx *primitives.Transaction) (chainhash.Hash, bool) {
	id := tx.ID()
	if h.pool.Exist(id) {
		return id, false
	}
	h.pool.Add(id, tx)
	return id, true
}

// Handle handles a single transaction message.
func (h *TransactionHandler) Handle(msg intercom.TransactionMsg) {
	switch m := msg.(type) {
	case intercom.NetworkTransaction:
		if id, added := h.add(m.Transaction); added {
			logger.WithField("id", id).Debug("received transaction from network")
		}
	case intercom.ClientTransaction:
		id, added := h.add(m.Transaction)
		if added {
			logger.WithField("id", id).Debug("received transaction from client")
			h.network.SendOrLog(intercom.BroadcastTransaction{Transaction: m.Transaction})
		}
		m.Reply.ReplyOk(id)
	default:
		logger.WithField("message", msg).Warn("unknown transaction message")
	}
}

// Run handles messages until the input is closed.
func (h *TransactionHandler) Run(in <-chan intercom.TransactionMsg) {
	for msg := range in {
		h.Handle(msg)
	}
}

// BlockHandler gives received blocks to the blockchain.
type BlockHandler struct {
	chain   *blockchain.Blockchain
	pool    *TransactionPool
	network task.MessageBox[intercom.NetworkMsg]
}

// NewBlockHandler creates a block handler.
func NewBlockHandler(chain *blockchain.Blockchain, pool *TransactionPool, network task.MessageBox[intercom.NetworkMsg]) *BlockHandler {
	return &BlockHandler{chain: chain, pool: pool, network: network}
}

// Handle handles a single block message. Network blocks are validated first.
func (h *BlockHandler) Handle(msg intercom.BlockMsg) {
	switch m := msg.(type) {
	case intercom.NetworkBlock:
		if err := h.chain.ValidateBlock(m.Block); err != nil {
			logger.WithFields(logger.Fields{
				"hash":  m.Block.Hash(),
				"error": err,
			}).Warn("rejected block from network")
			return
		}
		if h.process(m.Block) {
			// peers missing it will ask for it
			header := m.Block.BlockHeader
			h.network.SendOrLog(intercom.BroadcastHeader{Header: &header})
		}
	case intercom.LeadershipBlock:
		if h.process(m.Block) {
			h.network.SendOrLog(intercom.BroadcastBlock{Block: m.Block})
		}
	default:
		logger.WithField("message", msg).Warn("unknown block message")
	}
}

// process returns true if the block moved the tip.
func (h *BlockHandler) process(block *primitives.Block) bool {
	before, _ := h.chain.GetTip()
	h.chain.HandleIncomingBlock(block)
	after, _ := h.chain.GetTip()
	if before == after {
		return false
	}

	h.removeIncluded(before, after)
	return true
}

// removeIncluded removes transactions of the new canonical blocks from the
// pool.
func (h *BlockHandler) removeIncluded(oldTip chainhash.Hash, newTip chainhash.Hash) {
	blocks, err := h.chain.GetBlockRange(oldTip, newTip)
	if errors.Cause(err) == blockchain.ErrNotAncestor {
		// reorganization, only the new tip is cleaned
		var tip *primitives.Block
		tip, err = h.chain.GetBlock(newTip)
		blocks = []*primitives.Block{tip}
	}
	if err != nil {
		logger.WithError(err).Warn("could not get new blocks")
		return
	}

	var ids []chainhash.Hash
	for _, b := range blocks {
		for i := range b.BlockBody.Transactions {
			ids = append(ids, b.BlockBody.Transactions[i].ID())
		}
	}
	if removed := h.pool.Remove(ids...); removed > 0 {
		logger.WithField("removed", removed).Debug("removed included transactions from pool")
	}
}

// Run handles messages until the input is closed.
func (h *BlockHandler) Run(in <-chan intercom.BlockMsg) {
	for msg := range in {
		h.Handle(msg)
	}
}

// ClientHandler answers queries about the blockchain.
type ClientHandler struct {
	chain *blockchain.Blockchain
}

// NewClientHandler creates a client query handler.
func NewClientHandler(chain *blockchain.Blockchain) *ClientHandler {
	return &ClientHandler{chain: chain}
}

// Handle answers a single query through its reply.
func (h *ClientHandler) Handle(msg intercom.ClientMsg) {
	switch m := msg.(type) {
	case intercom.GetBlockTip:
		tip, _ := h.chain.GetTip()
		block, err := h.chain.GetBlock(tip)
		if err != nil {
			m.Reply.ReplyError(intercom.NewError(err))
			return
		}
		m.Reply.ReplyOk(&block.BlockHeader)
	case intercom.GetBlockHeaders:
		headers, err := h.chain.GetHeaders(m.Locator, m.Target, MaxHeaders)
		intercom.Respond(m.Reply, headers, err)
	case intercom.GetBlocks:
		blocks, err := h.chain.GetBlockRange(m.From, m.To)
		if err != nil {
			m.Reply.SendError(intercom.NewError(err))
		}
		for _, b := range blocks {
			m.Reply.Send(b)
		}
		m.Reply.Close()
	default:
		logger.WithField("message", msg).Warn("unknown client message")
	}
}

// Run handles messages until the input is closed.
func (h *ClientHandler) Run(in <-chan intercom.ClientMsg) {
	for msg := range in {
		h.Handle(msg)
	}
}
