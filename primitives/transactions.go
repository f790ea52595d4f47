package primitives

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/prysmaticlabs/go-ssz"

	"github.com/phoreproject/xchain/chainhash"
)

// Transaction is an opaque payload waiting to be included in a block.
type Transaction struct {
	Nonce   uint64
	Payload []byte
}

// ID gets the identifier of the transaction.
func (t *Transaction) ID() chainhash.Hash {
	preimage := make([]byte, 8+len(t.Payload))
	binary.BigEndian.PutUint64(preimage, t.Nonce)
	copy(preimage[8:], t.Payload)
	return chainhash.HashH(preimage)
}

// Serialize encodes the transaction for the wire.
func (t *Transaction) Serialize() ([]byte, error) {
	return ssz.Marshal(*t)
}

// DeserializeTransaction decodes a transaction encoded with Serialize.
func DeserializeTransaction(data []byte) (*Transaction, error) {
	t := new(Transaction)
	if err := ssz.Unmarshal(data, t); err != nil {
		return nil, errors.Wrap(err, "could not decode transaction")
	}
	return t, nil
}
