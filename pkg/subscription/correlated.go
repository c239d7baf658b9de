// Package subscription provides a filtered, deduplicated stream of events
// correlated to a single job across an explicit relay set.
package subscription

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dvm-project/dvmkit/pkg/eventbus"
	"github.com/dvm-project/dvmkit/pkg/models"
)

type CorrelatedParams struct {
	Bus eventbus.EventBus
	// JobID is the correlation id of the request event.
	JobID string
	// RequestKind is the kind of the originating request, used to derive the
	// result kind to watch.
	RequestKind int
	// ProcessorKey is the expected counterparty identity when known. Events
	// claiming to be results or feedback for this job from any other
	// identity are dropped.
	ProcessorKey string
	// Endpoints is the explicit relay set. It must match the set the request
	// was published to; there is deliberately no default here.
	Endpoints []string
	// OnEvent receives each qualifying event at most once.
	OnEvent func(ctx context.Context, event *models.Event)
	// OnCaughtUp fires once, after every endpoint finished backlog replay.
	// It signals liveness for "still waiting" UX, not correctness.
	OnCaughtUp func()
}

// Correlated is a live subscription handle for one job.
type Correlated struct {
	sub       eventbus.Subscription
	closeOnce sync.Once

	mu           sync.Mutex
	seen         map[string]struct{}
	pendingEose  int
	caughtUpOnce sync.Once
}

// Open subscribes for the feedback and result events of one job. The result
// kinds and the feedback kind are registered as two separate filter clauses:
// results and feedback are distinct protocol concerns, and widening one
// filter to cover both has historically matched events it should not.
func Open(ctx context.Context, params CorrelatedParams) (*Correlated, error) {
	if len(params.Endpoints) == 0 {
		return nil, eventbus.ErrNoEndpoints
	}
	if params.OnEvent == nil {
		return nil, eventbus.ErrNoHandler
	}

	var authors []string
	if params.ProcessorKey != "" {
		authors = []string{params.ProcessorKey}
	}
	filters := []eventbus.Filter{
		{
			Kinds:          []int{models.ResultKind(params.RequestKind)},
			Authors:        authors,
			CorrelationIDs: []string{params.JobID},
		},
		{
			Kinds:          []int{models.KindJobFeedback},
			Authors:        authors,
			CorrelationIDs: []string{params.JobID},
		},
	}

	c := &Correlated{
		seen:        make(map[string]struct{}),
		pendingEose: len(params.Endpoints),
	}

	sub, err := params.Bus.Subscribe(ctx, eventbus.SubscribeRequest{
		Filters:   filters,
		Endpoints: params.Endpoints,
		OnEvent: func(ctx context.Context, event *models.Event) {
			if !c.firstDelivery(event.ID) {
				return
			}
			if params.ProcessorKey != "" && event.PubKey != params.ProcessorKey {
				// late identity check for buses that do not filter authors
				log.Ctx(ctx).Debug().
					Str("jobID", params.JobID).
					Str("publisher", event.PubKey).
					Str("expected", params.ProcessorKey).
					Msg("dropping job event from unexpected identity")
				return
			}
			params.OnEvent(ctx, event)
		},
		OnCaughtUp: func(endpoint string) {
			c.endpointCaughtUp(params.OnCaughtUp)
		},
	})
	if err != nil {
		return nil, err
	}
	c.sub = sub
	return c, nil
}

// firstDelivery records the event id and reports whether it was unseen.
func (c *Correlated) firstDelivery(eventID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.seen[eventID]; ok {
		return false
	}
	c.seen[eventID] = struct{}{}
	return true
}

func (c *Correlated) endpointCaughtUp(onCaughtUp func()) {
	c.mu.Lock()
	c.pendingEose--
	done := c.pendingEose <= 0
	c.mu.Unlock()
	if done && onCaughtUp != nil {
		c.caughtUpOnce.Do(onCaughtUp)
	}
}

// Close stops delivery. Idempotent.
func (c *Correlated) Close() {
	c.closeOnce.Do(func() {
		if c.sub != nil {
			c.sub.Close()
		}
	})
}
