package rpc

import (
	"github.com/pkg/errors"
	"github.com/prysmaticlabs/go-ssz"

	"github.com/phoreproject/xchain/chainhash"
	"github.com/phoreproject/xchain/primitives"
)

// HeadersRequest is the payload of GetBlockHeaders.
type HeadersRequest struct {
	Locator []chainhash.Hash
	Target  chainhash.Hash
}

// HeadersResponse is the answer to GetBlockHeaders.
type HeadersResponse struct {
	Headers []primitives.BlockHeader
}

// BlocksRequest is the payload of GetBlocks.
type BlocksRequest struct {
	From chainhash.Hash
	To   chainhash.Hash
}

func decode(data []byte, out interface{}) error {
	if err := ssz.Unmarshal(data, out); err != nil {
		return errors.Wrapf(err, "could not decode %T", out)
	}
	return nil
}
