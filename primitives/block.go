package primitives

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
	"github.com/prysmaticlabs/go-ssz"

	"github.com/phoreproject/xchain/chainhash"
)

// ErrInvalidContentHash is returned when the header does not commit to the body.
var ErrInvalidContentHash = errors.New("block content hash does not match body")

// ErrMissingParent is returned for a non-genesis block without a parent hash.
var ErrMissingParent = errors.New("block does not reference a parent")

// BlockDate is the (epoch, slot) a block was produced for.
type BlockDate struct {
	Epoch uint64
	Slot  uint64
}

// Less returns true if d comes strictly before other.
func (d BlockDate) Less(other BlockDate) bool {
	if d.Epoch != other.Epoch {
		return d.Epoch < other.Epoch
	}
	return d.Slot < other.Slot
}

// Next returns the date of the following slot.
func (d BlockDate) Next(slotsPerEpoch uint64) BlockDate {
	if d.Slot+1 >= slotsPerEpoch {
		return BlockDate{Epoch: d.Epoch + 1, Slot: 0}
	}
	return BlockDate{Epoch: d.Epoch, Slot: d.Slot + 1}
}

func (d BlockDate) String() string {
	return fmt.Sprintf("%d.%d", d.Epoch, d.Slot)
}

// BlockHeader is the header of a block. The block hash is the hash of the header.
type BlockHeader struct {
	ParentHash  chainhash.Hash
	Date        BlockDate
	ContentHash chainhash.Hash
}

// Hash gets the hash of the block header.
func (bh *BlockHeader) Hash() chainhash.Hash {
	var buf bytes.Buffer
	// a header is fixed size, so encoding it can't fail
	_ = binary.Write(&buf, binary.BigEndian, bh)
	return chainhash.HashH(buf.Bytes())
}

// Serialize encodes the header for the wire.
func (bh *BlockHeader) Serialize() ([]byte, error) {
	return ssz.Marshal(*bh)
}

// DeserializeHeader decodes a header encoded with Serialize.
func DeserializeHeader(b []byte) (*BlockHeader, error) {
	bh := new(BlockHeader)
	if err := ssz.Unmarshal(b, bh); err != nil {
		return nil, errors.Wrap(err, "could not decode block header")
	}
	return bh, nil
}

// BlockBody is the content of a block.
type BlockBody struct {
	Transactions []Transaction
}

// ContentHash computes the commitment a header holds for this body.
func (bb *BlockBody) ContentHash() chainhash.Hash {
	preimage := make([]byte, 0, len(bb.Transactions)*chainhash.HashSize)
	for i := range bb.Transactions {
		id := bb.Transactions[i].ID()
		preimage = append(preimage, id[:]...)
	}
	return chainhash.HashH(preimage)
}

// Block is a header and the body it commits to.
type Block struct {
	BlockHeader BlockHeader
	BlockBody   BlockBody
}

// NewBlock creates a block on top of parent holding the given transactions.
func NewBlock(parent chainhash.Hash, date BlockDate, txs []Transaction) *Block {
	b := &Block{
		BlockHeader: BlockHeader{
			ParentHash: parent,
			Date:       date,
		},
		BlockBody: BlockBody{
			Transactions: txs,
		},
	}
	b.BlockHeader.ContentHash = b.BlockBody.ContentHash()
	return b
}

// Hash gets the hash of the block header.
func (b *Block) Hash() chainhash.Hash {
	return b.BlockHeader.Hash()
}

// ParentHash gets the hash the block declares as parent.
func (b *Block) ParentHash() chainhash.Hash {
	return b.BlockHeader.ParentHash
}

// CheckContent does the context-free checks on a block: it must have a parent
// and its header must commit to its body.
func (b *Block) CheckContent() error {
	if b.BlockHeader.ParentHash.IsZero() {
		return ErrMissingParent
	}
	if b.BlockBody.ContentHash() != b.BlockHeader.ContentHash {
		return ErrInvalidContentHash
	}
	return nil
}

// Serialize encodes the block for storage and for the wire.
func (b *Block) Serialize() ([]byte, error) {
	return ssz.Marshal(*b)
}

// DeserializeBlock decodes a block encoded with Serialize.
func DeserializeBlock(data []byte) (*Block, error) {
	b := new(Block)
	if err := ssz.Unmarshal(data, b); err != nil {
		return nil, errors.Wrap(err, "could not decode block")
	}
	return b, nil
}
