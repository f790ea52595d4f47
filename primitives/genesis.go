package primitives

import (
	"github.com/phoreproject/xchain/chainhash"
)

// GenesisData is the configuration the chain starts from.
type GenesisData struct {
	Date          BlockDate
	SlotsPerEpoch uint64
	Message       []byte
}

// DefaultGenesis is the genesis used when none is configured.
var DefaultGenesis = GenesisData{
	Date:          BlockDate{Epoch: 0, Slot: 0},
	SlotsPerEpoch: 100,
	Message:       []byte("xchain genesis"),
}

// Block gets the genesis block. It has no parent and no transactions; its
// content hash commits to the genesis message instead.
func (g *GenesisData) Block() *Block {
	return &Block{
		BlockHeader: BlockHeader{
			ParentHash:  chainhash.Hash{},
			Date:        g.Date,
			ContentHash: chainhash.HashH(g.Message),
		},
		BlockBody: BlockBody{
			Transactions: []Transaction{},
		},
	}
}

// Hash gets the hash of the genesis block.
func (g *GenesisData) Hash() chainhash.Hash {
	return g.Block().Hash()
}
