package network

import (
	"context"
	"time"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p-core/crypto"
	"github.com/libp2p/go-libp2p-core/host"
	"github.com/libp2p/go-libp2p-core/network"
	"github.com/libp2p/go-libp2p-core/peer"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-msgio"
	"github.com/multiformats/go-multiaddr"
	"github.com/pkg/errors"
	logger "github.com/sirupsen/logrus"

	"github.com/phoreproject/xchain/chainhash"
	"github.com/phoreproject/xchain/intercom"
	"github.com/phoreproject/xchain/primitives"
	"github.com/phoreproject/xchain/task"
)

// BlockIndex tells if a block is already known.
type BlockIndex interface {
	BlockExists(h chainhash.Hash) bool
}

// Inbound is where messages received from peers go.
type Inbound struct {
	Blocks       task.MessageBox[intercom.BlockMsg]
	Transactions task.MessageBox[intercom.TransactionMsg]
	Client       task.MessageBox[intercom.ClientMsg]
	Index        BlockIndex
}

// Config is the configuration of the network service.
type Config struct {
	ListenAddress  string
	Peers          []peer.AddrInfo
	PrivateKey     crypto.PrivKey
	UseMDNS        bool
	RequestTimeout time.Duration
}

// NewConfig creates a default config.
func NewConfig() Config {
	return Config{
		ListenAddress:  "/ip4/0.0.0.0/tcp/20000",
		RequestTimeout: 10 * time.Second,
	}
}

// Service connects the node to its peers. Blocks, headers and transactions
// are gossiped; missing blocks are requested from peers directly.
type Service struct {
	host      host.Host
	gossipSub *pubsub.PubSub
	inbound   Inbound
	timeout   time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

// NewService starts a libp2p host listening on the configured address and
// joins the gossip topics.
func NewService(ctx context.Context, c Config, inbound Inbound) (*Service, error) {
	addr, err := multiaddr.NewMultiaddr(c.ListenAddress)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid listen address %s", c.ListenAddress)
	}

	opts := []libp2p.Option{libp2p.ListenAddrs(addr)}
	if c.PrivateKey != nil {
		opts = append(opts, libp2p.Identity(c.PrivateKey))
	}

	ctx, cancel := context.WithCancel(ctx)
	h, err := libp2p.New(ctx, opts...)
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "could not create host")
	}

	g, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		cancel()
		_ = h.Close()
		return nil, errors.Wrap(err, "could not start gossipsub")
	}

	s := &Service{
		host:      h,
		gossipSub: g,
		inbound:   inbound,
		timeout:   c.RequestTimeout,
		ctx:       ctx,
		cancel:    cancel,
	}
	if s.timeout == 0 {
		s.timeout = 10 * time.Second
	}

	h.SetStreamHandler(BlocksProtocol, s.handleBlocksStream)

	topics := map[string]func([]byte, peer.ID) error{
		BlockTopic:       s.onBlock,
		HeaderTopic:      s.onHeader,
		TransactionTopic: s.onTransaction,
	}
	for topic, handler := range topics {
		if err := s.subscribe(topic, handler); err != nil {
			s.Close()
			return nil, err
		}
	}

	addrs, err := s.Addrs()
	if err == nil {
		for _, a := range addrs {
			logger.WithField("addr", a).Info("binding to address")
		}
	}

	if c.UseMDNS {
		if err := s.startMDNS(); err != nil {
			s.Close()
			return nil, err
		}
	}

	for _, p := range c.Peers {
		go func(p peer.AddrInfo) {
			if err := s.Connect(p); err != nil {
				logger.WithField("peer", p.ID).WithError(err).Warn("could not connect to peer")
			}
		}(p)
	}

	return s, nil
}

func (s *Service) subscribe(topic string, handler func([]byte, peer.ID) error) error {
	sub, err := s.gossipSub.Subscribe(topic)
	if err != nil {
		return errors.Wrapf(err, "could not subscribe to %s", topic)
	}

	go func() {
		defer sub.Cancel()
		for {
			msg, err := sub.Next(s.ctx)
			if err != nil {
				if s.ctx.Err() == nil {
					logger.WithField("error", err).Warn("error when getting next topic message")
				}
				return
			}

			from := peer.ID(msg.From)
			if from == s.host.ID() {
				continue
			}

			if err := handler(msg.Data, from); err != nil {
				logger.WithFields(logger.Fields{
					"topic": topic,
					"from":  from,
					"error": err,
				}).Warn("error when handling message")
			}
		}
	}()

	return nil
}

func (s *Service) onBlock(data []byte, from peer.ID) error {
	block, err := primitives.DeserializeBlock(data)
	if err != nil {
		return err
	}
	return s.inbound.Blocks.Send(intercom.NetworkBlock{Block: block})
}

func (s *Service) onHeader(data []byte, from peer.ID) error {
	header, err := primitives.DeserializeHeader(data)
	if err != nil {
		return err
	}
	h := header.Hash()
	if s.inbound.Index != nil && s.inbound.Index.BlockExists(h) {
		return nil
	}
	go s.sollicit([]peer.ID{from}, h)
	return nil
}

func (s *Service) onTransaction(data []byte, from peer.ID) error {
	tx, err := primitives.DeserializeTransaction(data)
	if err != nil {
		return err
	}
	return s.inbound.Transactions.Send(intercom.NetworkTransaction{Transaction: tx})
}

// Broadcast sends a message to every peer subscribed to its topic.
func (s *Service) Broadcast(msg intercom.NetworkBroadcastMsg) error {
	var topic string
	var data []byte
	var err error

	switch m := msg.(type) {
	case intercom.BroadcastBlock:
		topic = BlockTopic
		data, err = m.Block.Serialize()
	case intercom.BroadcastHeader:
		topic = HeaderTopic
		data, err = m.Header.Serialize()
	case intercom.BroadcastTransaction:
		topic = TransactionTopic
		data, err = m.Transaction.Serialize()
	default:
		return errors.Errorf("unknown broadcast message %T", msg)
	}
	if err != nil {
		return err
	}

	return s.gossipSub.Publish(topic, data)
}

// HandleMessage handles a message sent to the network task.
func (s *Service) HandleMessage(msg intercom.NetworkMsg) {
	switch m := msg.(type) {
	case intercom.SollicitBlock:
		go s.sollicit(s.Peers(), m.Hash)
	case intercom.NetworkBroadcastMsg:
		if err := s.Broadcast(m); err != nil {
			logger.WithError(err).Warn("could not broadcast message")
		}
	default:
		logger.WithField("message", msg).Warn("unknown network message")
	}
}

// Run handles messages until the input is closed.
func (s *Service) Run(in <-chan intercom.NetworkMsg) {
	for msg := range in {
		s.HandleMessage(msg)
	}
}

// sollicit asks peers in turn for a block until one has it.
func (s *Service) sollicit(peers []peer.ID, h chainhash.Hash) {
	for _, p := range peers {
		blocks, err := s.RequestBlocks(s.ctx, p, h, h)
		if err != nil {
			logger.WithFields(logger.Fields{
				"peer":  p,
				"hash":  h,
				"error": err,
			}).Debug("peer could not provide block")
			continue
		}
		if len(blocks) != 1 || blocks[0].Hash() != h {
			logger.WithField("peer", p).Debug("peer answered with the wrong block")
			continue
		}

		s.inbound.Blocks.SendOrLog(intercom.NetworkBlock{Block: blocks[0]})
		return
	}

	logger.WithField("hash", h).Warn("no peer could provide block")
}

// RequestBlocks asks a peer for the blocks after from up to and including to.
func (s *Service) RequestBlocks(ctx context.Context, p peer.ID, from chainhash.Hash, to chainhash.Hash) ([]*primitives.Block, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	stream, err := s.host.NewStream(ctx, p, BlocksProtocol)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open stream to %s", p)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = stream.SetDeadline(deadline)
	}

	if err := writeRequest(msgio.NewWriter(stream), BlockRequest{From: from, To: to}); err != nil {
		_ = stream.Reset()
		return nil, err
	}

	blocks, err := readResponse(msgio.NewReaderSize(stream, MaxMessageSize))
	if err != nil {
		_ = stream.Reset()
		return nil, err
	}

	_ = stream.Close()
	return blocks, nil
}

func (s *Service) handleBlocksStream(stream network.Stream) {
	from := stream.Conn().RemotePeer()
	_ = stream.SetReadDeadline(time.Now().Add(s.timeout))

	req, err := readRequest(msgio.NewReaderSize(stream, MaxMessageSize))
	if err != nil {
		logger.WithField("peer", from).WithError(err).Debug("invalid block request")
		_ = stream.Reset()
		return
	}

	logger.WithFields(logger.Fields{
		"peer": from,
		"from": req.From,
		"to":   req.To,
	}).Debug("received block request")

	err = s.inbound.Client.Send(intercom.GetBlocks{
		From:  req.From,
		To:    req.To,
		Reply: newStreamReply(stream, s.timeout),
	})
	if err != nil {
		logger.WithError(err).Warn("could not handle block request")
		_ = stream.Reset()
	}
}

// Connect connects to a peer.
func (s *Service) Connect(p peer.AddrInfo) error {
	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()
	return s.host.Connect(ctx, p)
}

// Peers gets the peers we are connected to.
func (s *Service) Peers() []peer.ID {
	return s.host.Network().Peers()
}

// ID gets the peer ID of this node.
func (s *Service) ID() peer.ID {
	return s.host.ID()
}

// AddrInfo gets the ID and listen addresses of this node.
func (s *Service) AddrInfo() peer.AddrInfo {
	return peer.AddrInfo{
		ID:    s.host.ID(),
		Addrs: s.host.Addrs(),
	}
}

// Addrs gets the full addresses other peers can connect to.
func (s *Service) Addrs() ([]multiaddr.Multiaddr, error) {
	info := s.AddrInfo()
	return peer.AddrInfoToP2pAddrs(&info)
}

// Close stops the service and closes all connections.
func (s *Service) Close() error {
	s.cancel()
	return s.host.Close()
}
