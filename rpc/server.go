package rpc

import (
	"context"
	"io"
	"net"

	"github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr-net"
	"github.com/pkg/errors"
	"github.com/prysmaticlabs/go-ssz"
	logger "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/phoreproject/xchain/blockchain"
	"github.com/phoreproject/xchain/chainhash"
	"github.com/phoreproject/xchain/intercom"
	"github.com/phoreproject/xchain/primitives"
	"github.com/phoreproject/xchain/task"
)

// streamBuffer is how many blocks the node can queue ahead of a slow client.
const streamBuffer = 16

// Server answers RPC calls by sending requests to the node tasks.
type Server struct {
	client       task.MessageBox[intercom.ClientMsg]
	transactions task.MessageBox[intercom.TransactionMsg]
}

var _ NodeServer = &Server{}

// NewServer creates a server sending requests to the given tasks.
func NewServer(client task.MessageBox[intercom.ClientMsg], transactions task.MessageBox[intercom.TransactionMsg]) *Server {
	return &Server{
		client:       client,
		transactions: transactions,
	}
}

func toStatus(err error) error {
	if err == context.DeadlineExceeded || err == context.Canceled {
		return status.FromContextError(err).Err()
	}
	switch errors.Cause(err) {
	case blockchain.ErrBlockNotFound:
		return status.Error(codes.NotFound, err.Error())
	case blockchain.ErrNotAncestor:
		return status.Error(codes.InvalidArgument, err.Error())
	case task.ErrClosed, task.ErrNoMessageBox:
		return status.Error(codes.Unavailable, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// GetBlockTip gets the header of the current tip.
func (s *Server) GetBlockTip(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.BytesValue, error) {
	reply, future := intercom.NewReplyFuture[*primitives.BlockHeader]()
	if err := s.client.Send(intercom.GetBlockTip{Reply: reply}); err != nil {
		return nil, toStatus(err)
	}

	header, err := future.Wait(ctx)
	if err != nil {
		return nil, toStatus(err)
	}

	data, err := header.Serialize()
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Bytes(data), nil
}

// GetBlockHeaders gets headers on the way to a target block.
func (s *Server) GetBlockHeaders(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	req := new(HeadersRequest)
	if err := decode(in.GetValue(), req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	reply, future := intercom.NewReplyFuture[[]*primitives.BlockHeader]()
	err := s.client.Send(intercom.GetBlockHeaders{
		Locator: req.Locator,
		Target:  req.Target,
		Reply:   reply,
	})
	if err != nil {
		return nil, toStatus(err)
	}

	headers, err := future.Wait(ctx)
	if err != nil {
		return nil, toStatus(err)
	}

	resp := HeadersResponse{Headers: make([]primitives.BlockHeader, len(headers))}
	for i, h := range headers {
		resp.Headers[i] = *h
	}

	data, err := ssz.Marshal(resp)
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Bytes(data), nil
}

// GetBlocks streams the blocks of a range.
func (s *Server) GetBlocks(in *wrapperspb.BytesValue, stream grpc.ServerStream) error {
	req := new(BlocksRequest)
	if err := decode(in.GetValue(), req); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}

	reply, blocks := intercom.NewReplyStream[*primitives.Block](streamBuffer)
	defer blocks.Stop()

	err := s.client.Send(intercom.GetBlocks{
		From:  req.From,
		To:    req.To,
		Reply: reply,
	})
	if err != nil {
		return toStatus(err)
	}

	ctx := stream.Context()
	for {
		block, err := blocks.Next(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return toStatus(err)
		}

		data, err := block.Serialize()
		if err != nil {
			return toStatus(err)
		}
		if err := stream.SendMsg(wrapperspb.Bytes(data)); err != nil {
			return err
		}
	}
}

// SubmitTransaction adds a transaction to the pool and relays it. The
// transaction id is returned.
func (s *Server) SubmitTransaction(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	tx, err := primitives.DeserializeTransaction(in.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	reply, future := intercom.NewReplyFuture[chainhash.Hash]()
	if err := s.transactions.Send(intercom.ClientTransaction{Transaction: tx, Reply: reply}); err != nil {
		return nil, toStatus(err)
	}

	id, err := future.Wait(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Bytes(id[:]), nil
}

// NewGRPCServer creates a gRPC server with the node service and reflection
// registered.
func NewGRPCServer(srv NodeServer) *grpc.Server {
	s := grpc.NewServer()
	RegisterNodeServer(s, srv)
	// Register reflection service on gRPC server.
	reflection.Register(s)
	return s
}

// Listen listens on a multiaddr such as /ip4/127.0.0.1/tcp/20002.
func Listen(addr string) (net.Listener, error) {
	netAddr, err := toNetAddr(addr)
	if err != nil {
		return nil, err
	}
	return net.Listen(netAddr.Network(), netAddr.String())
}

func toNetAddr(addr string) (net.Addr, error) {
	maddr, err := multiaddr.NewMultiaddr(addr)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid rpc address %s", addr)
	}
	return manet.ToNetAddr(maddr)
}

// Serve serves RPC calls on a listener until the server is stopped.
func Serve(lis net.Listener, s *grpc.Server) {
	logger.WithField("addr", lis.Addr()).Info("serving rpc")
	if err := s.Serve(lis); err != nil {
		logger.WithError(err).Error("rpc server stopped")
	}
}
