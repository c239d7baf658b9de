package cli

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"github.com/multiformats/go-multiaddr"
	"github.com/pkg/errors"

	"github.com/dvm-project/dvmkit/pkg/eventbus"
	buslibp2p "github.com/dvm-project/dvmkit/pkg/eventbus/libp2p"
	"github.com/dvm-project/dvmkit/pkg/payments"
)

// newIdentity returns a fresh 32-byte hex identity key.
func newIdentity() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", errors.Wrap(err, "generating identity key")
	}
	return hex.EncodeToString(raw), nil
}

// setupBus starts a libp2p host on the configured swarm port, dials the
// configured peers and returns a gossipsub-backed event bus.
func setupBus(ctx context.Context, minDifficulty int) (eventbus.EventBus, error) {
	host, err := buslibp2p.NewHost(swarmPort, nil)
	if err != nil {
		return nil, err
	}

	if len(peerConnect) > 0 {
		peers := make([]multiaddr.Multiaddr, 0, len(peerConnect))
		for _, s := range peerConnect {
			addr, addrErr := multiaddr.NewMultiaddr(s)
			if addrErr != nil {
				return nil, errors.Wrapf(addrErr, "parsing peer address %s", s)
			}
			peers = append(peers, addr)
		}
		if err := buslibp2p.ConnectToPeers(ctx, host, peers); err != nil {
			return nil, err
		}
	}

	return buslibp2p.NewBus(ctx, buslibp2p.BusParams{
		Host:          host,
		MinDifficulty: minDifficulty,
	})
}

// setupPayments returns the Lightning REST provider when an endpoint is
// configured, and an in-memory provider that settles immediately otherwise.
// The in-memory fallback exists for local development against a devstack.
func setupPayments(lndEndpoint, lndMacaroon string) payments.Provider {
	if lndEndpoint != "" {
		return payments.NewLNRestProvider(payments.LNRestProviderParams{
			BaseURL:  lndEndpoint,
			Macaroon: lndMacaroon,
		})
	}
	provider := payments.NewInMemoryProvider()
	provider.PaySettlesImmediately = true
	return provider
}
