package rpc

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/prysmaticlabs/go-ssz"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/phoreproject/xchain/chainhash"
	"github.com/phoreproject/xchain/primitives"
)

// Client calls the node RPC service.
type Client struct {
	conn *grpc.ClientConn
}

// NewClient creates a client on an existing connection.
func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

// Dial connects to a node listening on a multiaddr.
func Dial(addr string) (*Client, error) {
	netAddr, err := toNetAddr(addr)
	if err != nil {
		return nil, err
	}

	conn, err := grpc.Dial(netAddr.String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, errors.Wrapf(err, "could not connect to %s", addr)
	}
	return NewClient(conn), nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// GetBlockTip gets the header of the node's tip.
func (c *Client) GetBlockTip(ctx context.Context) (*primitives.BlockHeader, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.conn.Invoke(ctx, GetBlockTipMethod, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return primitives.DeserializeHeader(out.GetValue())
}

// GetBlockHeaders gets the headers after the first known locator hash up to
// target.
func (c *Client) GetBlockHeaders(ctx context.Context, locator []chainhash.Hash, target chainhash.Hash) ([]primitives.BlockHeader, error) {
	data, err := ssz.Marshal(HeadersRequest{Locator: locator, Target: target})
	if err != nil {
		return nil, err
	}

	out := new(wrapperspb.BytesValue)
	if err := c.conn.Invoke(ctx, GetBlockHeadersMethod, wrapperspb.Bytes(data), out); err != nil {
		return nil, err
	}

	resp := new(HeadersResponse)
	if err := decode(out.GetValue(), resp); err != nil {
		return nil, err
	}
	return resp.Headers, nil
}

// GetBlocks gets the blocks after from up to and including to.
func (c *Client) GetBlocks(ctx context.Context, from chainhash.Hash, to chainhash.Hash) ([]*primitives.Block, error) {
	data, err := ssz.Marshal(BlocksRequest{From: from, To: to})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := c.conn.NewStream(ctx, &NodeServiceDesc.Streams[0], GetBlocksMethod)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(wrapperspb.Bytes(data)); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}

	var blocks []*primitives.Block
	for {
		out := new(wrapperspb.BytesValue)
		err := stream.RecvMsg(out)
		if err == io.EOF {
			return blocks, nil
		}
		if err != nil {
			return nil, err
		}

		block, err := primitives.DeserializeBlock(out.GetValue())
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, block)
	}
}

// SubmitTransaction submits a transaction and returns its id.
func (c *Client) SubmitTransaction(ctx context.Context, tx *primitives.Transaction) (chainhash.Hash, error) {
	data, err := tx.Serialize()
	if err != nil {
		return chainhash.Hash{}, err
	}

	out := new(wrapperspb.BytesValue)
	if err := c.conn.Invoke(ctx, SubmitTransactionMethod, wrapperspb.Bytes(data), out); err != nil {
		return chainhash.Hash{}, err
	}
	return chainhash.BytesToHash(out.GetValue())
}
