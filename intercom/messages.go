package intercom

import (
	"github.com/phoreproject/xchain/chainhash"
	"github.com/phoreproject/xchain/primitives"
)

// ClientMsg is a request from a connected peer or a local client.
type ClientMsg interface {
	clientMsg()
}

// GetBlockTip asks for the header of the current tip.
type GetBlockTip struct {
	Reply Reply[*primitives.BlockHeader]
}

// GetBlockHeaders asks for the headers after the first locator hash that is
// an ancestor of Target, up to and including Target.
type GetBlockHeaders struct {
	Locator []chainhash.Hash
	Target  chainhash.Hash
	Reply   Reply[[]*primitives.BlockHeader]
}

// GetBlocks asks for the blocks from From (exclusive) to To (inclusive). When
// From equals To the single block is sent.
type GetBlocks struct {
	From  chainhash.Hash
	To    chainhash.Hash
	Reply StreamReply[*primitives.Block]
}

func (GetBlockTip) clientMsg()     {}
func (GetBlockHeaders) clientMsg() {}
func (GetBlocks) clientMsg()       {}

// BlockMsg is a message for the block task.
type BlockMsg interface {
	blockMsg()
}

// NetworkBlock is an untrusted block received from the network.
type NetworkBlock struct {
	Block *primitives.Block
}

// LeadershipBlock is a trusted block produced by this node.
type LeadershipBlock struct {
	Block *primitives.Block
}

func (NetworkBlock) blockMsg()    {}
func (LeadershipBlock) blockMsg() {}

// NetworkMsg is a message for the network task.
type NetworkMsg interface {
	networkMsg()
}

// NetworkBroadcastMsg is sent to every connected peer.
type NetworkBroadcastMsg interface {
	NetworkMsg
	broadcastMsg()
}

// BroadcastBlock announces a block.
type BroadcastBlock struct {
	Block *primitives.Block
}

// BroadcastHeader announces a header.
type BroadcastHeader struct {
	Header *primitives.BlockHeader
}

// BroadcastTransaction relays a transaction.
type BroadcastTransaction struct {
	Transaction *primitives.Transaction
}

// SollicitBlock asks peers for a block we are missing.
type SollicitBlock struct {
	Hash chainhash.Hash
}

func (BroadcastBlock) networkMsg()       {}
func (BroadcastHeader) networkMsg()      {}
func (BroadcastTransaction) networkMsg() {}
func (SollicitBlock) networkMsg()        {}

func (BroadcastBlock) broadcastMsg()       {}
func (BroadcastHeader) broadcastMsg()      {}
func (BroadcastTransaction) broadcastMsg() {}

// TransactionMsg is a message for the transaction task.
type TransactionMsg interface {
	transactionMsg()
}

// NetworkTransaction is a transaction relayed by a peer.
type NetworkTransaction struct {
	Transaction *primitives.Transaction
}

// ClientTransaction is a transaction submitted by a local client. It is
// answered with the transaction id.
type ClientTransaction struct {
	Transaction *primitives.Transaction
	Reply       Reply[chainhash.Hash]
}

func (NetworkTransaction) transactionMsg() {}
func (ClientTransaction) transactionMsg()  {}
