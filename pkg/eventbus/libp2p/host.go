package libp2p

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	"github.com/multiformats/go-multiaddr"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// NewHost creates a libp2p host listening on the given port. A nil prvKey
// generates an ephemeral Ed25519 identity.
func NewHost(port int, prvKey crypto.PrivKey, opts ...libp2p.Option) (host.Host, error) {
	if prvKey == nil {
		var err error
		prvKey, _, err = crypto.GenerateKeyPairWithReader(crypto.Ed25519, -1, rand.Reader)
		if err != nil {
			return nil, errors.Wrap(err, "generating host keypair")
		}
	}

	addrs := []string{
		"/ip4/0.0.0.0/tcp/%d",
		"/ip4/0.0.0.0/udp/%d/quic-v1",
		"/ip6/::/tcp/%d",
		"/ip6/::/udp/%d/quic-v1",
	}
	listenAddrs := make([]multiaddr.Multiaddr, 0, len(addrs))
	for _, s := range addrs {
		addr, addrErr := multiaddr.NewMultiaddr(fmt.Sprintf(s, port))
		if addrErr != nil {
			return nil, addrErr
		}
		listenAddrs = append(listenAddrs, addr)
	}

	opts = append(opts, libp2p.ListenAddrs(listenAddrs...), libp2p.Identity(prvKey))
	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, err
	}

	log.Info().
		Strs("listening-addresses", lo.Map(h.Addrs(), func(m multiaddr.Multiaddr, _ int) string {
			return m.String()
		})).
		Stringer("host-id", h.ID()).
		Msg("started libp2p host")
	return h, nil
}

// ConnectToPeers dials the given peer multiaddresses, grouping addresses per
// peer so each peer is dialed once.
func ConnectToPeers(ctx context.Context, h host.Host, peers []multiaddr.Multiaddr) error {
	var dialErrors []error
	grouped := map[peer.ID][]multiaddr.Multiaddr{}
	for _, peerAddress := range peers {
		info, err := peer.AddrInfoFromP2pAddr(peerAddress)
		if err != nil {
			dialErrors = append(dialErrors, err)
			log.Ctx(ctx).Warn().Err(err).Msgf("error parsing peer address")
			continue
		}
		grouped[info.ID] = append(grouped[info.ID], info.Addrs...)
	}

	for id, addresses := range grouped {
		h.Peerstore().AddAddrs(id, addresses, peerstore.PermanentAddrTTL)
		err := h.Connect(ctx, peer.AddrInfo{ID: id, Addrs: addresses})
		if err != nil {
			dialErrors = append(dialErrors, err)
			log.Ctx(ctx).Warn().Err(err).Stringer("peer", id).Msgf("error connecting to peer, continuing")
		}
	}
	if len(dialErrors) > 0 {
		return fmt.Errorf("connecting to peers: %s", dialErrors)
	}
	return nil
}
