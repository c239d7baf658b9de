// Package publisher publishes signed events to an explicit endpoint set,
// transparently satisfying per-endpoint admission-control requirements by
// re-stamping the event with a higher proof-of-work before retrying.
package publisher

import (
	"context"
	"regexp"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/dvm-project/dvmkit/pkg/eventbus"
	"github.com/dvm-project/dvmkit/pkg/models"
	"github.com/dvm-project/dvmkit/pkg/stamper"
)

// DefaultMaxAttempts bounds how many publish rounds (including re-stamping
// rounds) are made before giving up.
const DefaultMaxAttempts = 3

// difficultyPattern extracts the required difficulty from an admission
// rejection reason, e.g. "pow: difficulty 28 required".
var difficultyPattern = regexp.MustCompile(`(?i)difficulty\s*:?\s*(\d+)`)

type PublisherParams struct {
	Bus     eventbus.EventBus
	Stamper stamper.Stamper
	// MaxAttempts bounds publish rounds. Defaults to DefaultMaxAttempts.
	MaxAttempts int
}

type Publisher struct {
	bus         eventbus.EventBus
	stamper     stamper.Stamper
	maxAttempts int
}

func NewPublisher(params PublisherParams) *Publisher {
	if params.MaxAttempts <= 0 {
		params.MaxAttempts = DefaultMaxAttempts
	}
	if params.Stamper == nil {
		params.Stamper = stamper.NewNoop()
	}
	return &Publisher{
		bus:         params.Bus,
		stamper:     params.Stamper,
		maxAttempts: params.MaxAttempts,
	}
}

// Publish seals and publishes the event. A publish succeeds overall when at
// least one endpoint accepts. Endpoints rejecting with an admission
// difficulty requirement are retried with a re-stamped event; re-stamping
// reassigns the event ID, and the returned event is the latest version that
// at least one endpoint actually admitted, so callers must read the
// correlation id from the return value. A re-stamped version whose republish
// round wins no acceptance is never returned.
func (p *Publisher) Publish(
	ctx context.Context,
	event *models.Event,
	endpoints []string,
) (*models.Event, []eventbus.EndpointOutcome, error) {
	if len(endpoints) == 0 {
		return nil, nil, eventbus.ErrNoEndpoints
	}
	if event.ID == "" {
		event.Seal()
	}

	var accepted []eventbus.EndpointOutcome
	var acceptedEvent *models.Event
	remaining := endpoints
	finalOutcomes := make(map[string]eventbus.EndpointOutcome)

	for attempt := 0; attempt < p.maxAttempts && len(remaining) > 0; attempt++ {
		outcomes, err := p.bus.Publish(ctx, event, remaining)
		if err != nil {
			return nil, nil, err
		}

		var rejecting []string
		requiredDifficulty := 0
		for _, outcome := range outcomes {
			finalOutcomes[outcome.Endpoint] = outcome
			if outcome.Accepted {
				accepted = append(accepted, outcome)
				// the accepted version is the one published this round
				acceptedEvent = event
				continue
			}
			if difficulty, ok := parseRequiredDifficulty(outcome.Reason); ok && difficulty > event.Difficulty() {
				rejecting = append(rejecting, outcome.Endpoint)
				if difficulty > requiredDifficulty {
					requiredDifficulty = difficulty
				}
				continue
			}
			// soft failure: unreachable endpoint, no active subscription,
			// or a rejection we cannot satisfy. Logged and left behind.
			log.Ctx(ctx).Debug().
				Str("endpoint", outcome.Endpoint).
				Str("reason", outcome.Reason).
				AnErr("error", outcome.Err).
				Msg("endpoint did not accept event")
		}

		if requiredDifficulty == 0 {
			break
		}

		stamped, err := p.stamper.RaiseDifficulty(ctx, event, requiredDifficulty)
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).
				Int("difficulty", requiredDifficulty).
				Msg("failed to raise admission proof")
			break
		}
		log.Ctx(ctx).Debug().
			Str("oldID", event.ID).
			Str("newID", stamped.ID).
			Int("difficulty", requiredDifficulty).
			Strs("endpoints", rejecting).
			Msg("re-publishing event with raised admission proof")
		event = stamped
		remaining = rejecting
	}

	allOutcomes := make([]eventbus.EndpointOutcome, 0, len(finalOutcomes))
	for _, endpoint := range endpoints {
		if outcome, ok := finalOutcomes[endpoint]; ok {
			allOutcomes = append(allOutcomes, outcome)
		}
	}
	if len(accepted) == 0 {
		return nil, allOutcomes, NewErrAllEndpointsRejected(allOutcomes)
	}
	return acceptedEvent, allOutcomes, nil
}

func parseRequiredDifficulty(reason string) (int, bool) {
	match := difficultyPattern.FindStringSubmatch(reason)
	if match == nil {
		return 0, false
	}
	difficulty, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, false
	}
	return difficulty, true
}
