package network

import (
	"time"

	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery"
	"github.com/multiformats/go-multiaddr"
	logger "github.com/sirupsen/logrus"
)

// Discovery interval for multicast DNS querying.
var discoveryInterval = 1 * time.Minute

// mDNSTag is the name of the mDNS service.
var mDNSTag = "_xchain-discovery._udp"

func (s *Service) startMDNS() error {
	mdnsService, err := discovery.NewMdnsService(s.ctx, s.host, discoveryInterval, mDNSTag)
	if err != nil {
		return err
	}

	mdnsService.RegisterNotifee(&mdnsNotifee{service: s})
	return nil
}

// mdnsNotifee connects to peers found with mDNS.
type mdnsNotifee struct {
	service *Service
}

func (n *mdnsNotifee) HandlePeerFound(pi peer.AddrInfo) {
	if pi.ID == n.service.ID() {
		return
	}
	logger.WithField("peer", pi.ID).Debug("found peer with mDNS")
	if err := n.service.Connect(pi); err != nil {
		logger.WithField("peer", pi.ID).WithError(err).Debug("could not connect to discovered peer")
	}
}

// ParseInitialConnections parses multiaddresses with a peer ID into peer info.
// Invalid addresses are skipped.
func ParseInitialConnections(in []string) []peer.AddrInfo {
	peers := make([]peer.AddrInfo, 0, len(in))

	for _, currentAddr := range in {
		if len(currentAddr) == 0 {
			continue
		}
		maddr, err := multiaddr.NewMultiaddr(currentAddr)
		if err != nil {
			logger.WithField("addr", currentAddr).Warn("invalid multiaddr")
			continue
		}
		info, err := peer.AddrInfoFromP2pAddr(maddr)
		if err != nil {
			logger.WithField("addr", currentAddr).Warn("invalid multiaddr")
			continue
		}

		peers = append(peers, *info)
	}

	return peers
}
