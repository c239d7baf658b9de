package stamper

import (
	"context"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/dvm-project/dvmkit/pkg/models"
)

// checkInterval is how many nonce attempts happen between context checks.
const checkInterval = 4096

// MinerParams configures a proof-of-work Miner.
type MinerParams struct {
	// Concurrency bounds how many mining operations may run at once per
	// process. Mining is CPU-bound and must not starve the event loops.
	// Defaults to 1.
	Concurrency int
}

// Miner is a Stamper that grinds a nonce tag until the content-derived event
// ID carries the requested number of leading zero bits. Mining operations are
// concurrency-limited process-wide and cancellable through the context, so an
// obsolete event does not keep burning CPU.
type Miner struct {
	slots chan struct{}
}

func NewMiner(params MinerParams) *Miner {
	if params.Concurrency <= 0 {
		params.Concurrency = 1
	}
	return &Miner{
		slots: make(chan struct{}, params.Concurrency),
	}
}

func (m *Miner) RaiseDifficulty(ctx context.Context, event *models.Event, targetDifficulty int) (*models.Event, error) {
	if event.Difficulty() >= targetDifficulty && event.ID != "" {
		return event, nil
	}

	select {
	case m.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-m.slots }()

	mined := *event
	mined.Tags = withoutNonceTag(event.Tags)
	nonceIndex := len(mined.Tags)
	mined.Tags = append(mined.Tags, []string{models.TagNonce, "", strconv.Itoa(targetDifficulty)})

	for nonce := uint64(0); ; nonce++ {
		if nonce%checkInterval == 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
		}

		mined.Tags[nonceIndex][1] = strconv.FormatUint(nonce, 10)
		mined.Seal()
		if mined.Difficulty() >= targetDifficulty {
			log.Ctx(ctx).Debug().
				Int("difficulty", mined.Difficulty()).
				Int("target", targetDifficulty).
				Uint64("nonce", nonce).
				Msg("mined admission proof")
			return &mined, nil
		}
	}
}

func withoutNonceTag(tags [][]string) [][]string {
	out := make([][]string, 0, len(tags))
	for _, tag := range tags {
		if len(tag) > 0 && tag[0] == models.TagNonce {
			continue
		}
		out = append(out, tag)
	}
	return out
}

// compile-time interface check
var _ Stamper = (*Miner)(nil)
