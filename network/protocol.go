package network

import (
	"github.com/libp2p/go-libp2p-core/protocol"
	"github.com/libp2p/go-msgio"
	"github.com/pkg/errors"
	"github.com/prysmaticlabs/go-ssz"

	"github.com/phoreproject/xchain/chainhash"
	"github.com/phoreproject/xchain/primitives"
)

// Gossip topics.
const (
	BlockTopic       = "xchain/block"
	HeaderTopic      = "xchain/header"
	TransactionTopic = "xchain/tx"
)

// BlocksProtocol is the protocol peers use to ask each other for blocks.
const BlocksProtocol = protocol.ID("/xchain/blocks/0.0.1")

// MaxMessageSize is the largest frame accepted on a block request stream.
const MaxMessageSize = 4 << 20

const (
	frameBlock byte = iota
	frameError
	frameEnd
)

// BlockRequest asks for the blocks after From up to and including To.
type BlockRequest struct {
	From chainhash.Hash
	To   chainhash.Hash
}

func writeRequest(w msgio.Writer, req BlockRequest) error {
	data, err := ssz.Marshal(req)
	if err != nil {
		return err
	}
	return w.WriteMsg(data)
}

func readRequest(r msgio.Reader) (*BlockRequest, error) {
	data, err := r.ReadMsg()
	if err != nil {
		return nil, err
	}
	req := new(BlockRequest)
	if err := ssz.Unmarshal(data, req); err != nil {
		return nil, errors.Wrap(err, "could not decode block request")
	}
	return req, nil
}

func writeFrame(w msgio.Writer, kind byte, payload []byte) error {
	frame := make([]byte, 1+len(payload))
	frame[0] = kind
	copy(frame[1:], payload)
	return w.WriteMsg(frame)
}

// readResponse reads frames until the end frame. An error frame ends the
// response with the error the peer sent.
func readResponse(r msgio.Reader) ([]*primitives.Block, error) {
	var blocks []*primitives.Block
	for {
		frame, err := r.ReadMsg()
		if err != nil {
			return nil, err
		}
		if len(frame) == 0 {
			return nil, errors.New("empty frame")
		}

		switch frame[0] {
		case frameBlock:
			block, err := primitives.DeserializeBlock(frame[1:])
			if err != nil {
				return nil, err
			}
			blocks = append(blocks, block)
		case frameError:
			return nil, errors.Errorf("peer error: %s", frame[1:])
		case frameEnd:
			return blocks, nil
		default:
			return nil, errors.Errorf("unknown frame kind %d", frame[0])
		}
	}
}
