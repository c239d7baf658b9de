package eventbus

import (
	"context"
	"fmt"
	"sync"

	"github.com/dvm-project/dvmkit/pkg/models"
)

// InMemoryBus is a multi-relay in-memory event bus used for testing and the
// local devstack. Each named endpoint behaves as an independent relay with its
// own stored backlog and admission policy, so relay-set mismatches and
// per-relay proof-of-work rejections can be reproduced without a network.
type InMemoryBus struct {
	mu     sync.RWMutex
	relays map[string]*memoryRelay
}

type memoryRelay struct {
	name string
	// minDifficulty is the admission proof-of-work floor. Zero accepts all.
	minDifficulty int
	// unreachable simulates a soft per-endpoint transport failure.
	unreachable bool
	backlog     []*models.Event
	subscribers map[int]*memorySubscription
	nextSubID   int
}

type memorySubscription struct {
	bus       *InMemoryBus
	relays    []*memoryRelay
	ids       map[*memoryRelay]int
	request   SubscribeRequest
	closeOnce sync.Once
}

func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{
		relays: make(map[string]*memoryRelay),
	}
}

// SetMinDifficulty configures an admission proof-of-work floor for one
// endpoint. Events below the floor are rejected with a difficulty reason.
func (b *InMemoryBus) SetMinDifficulty(endpoint string, difficulty int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.relay(endpoint).minDifficulty = difficulty
}

// SetUnreachable marks an endpoint as failing all publishes with a transport
// error, simulating a dead relay.
func (b *InMemoryBus) SetUnreachable(endpoint string, unreachable bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.relay(endpoint).unreachable = unreachable
}

// relay returns the named relay, creating it on first use. Callers must hold mu.
func (b *InMemoryBus) relay(endpoint string) *memoryRelay {
	r, ok := b.relays[endpoint]
	if !ok {
		r = &memoryRelay{
			name:        endpoint,
			subscribers: make(map[int]*memorySubscription),
		}
		b.relays[endpoint] = r
	}
	return r
}

func (b *InMemoryBus) Publish(ctx context.Context, event *models.Event, endpoints []string) ([]EndpointOutcome, error) {
	if len(endpoints) == 0 {
		return nil, ErrNoEndpoints
	}
	if event.ID == "" {
		return nil, ErrUnsealedEvent
	}

	b.mu.Lock()
	outcomes := make([]EndpointOutcome, 0, len(endpoints))
	var deliveries []func()
	for _, endpoint := range endpoints {
		r := b.relay(endpoint)
		switch {
		case r.unreachable:
			outcomes = append(outcomes, EndpointOutcome{
				Endpoint: endpoint,
				Err:      fmt.Errorf("endpoint %s unreachable", endpoint),
			})
		case event.Difficulty() < r.minDifficulty:
			outcomes = append(outcomes, EndpointOutcome{
				Endpoint: endpoint,
				Reason:   fmt.Sprintf("pow: difficulty %d required", r.minDifficulty),
			})
		default:
			r.backlog = append(r.backlog, event)
			for _, sub := range r.subscribers {
				if MatchesAny(sub.request.Filters, event) {
					onEvent := sub.request.OnEvent
					deliveries = append(deliveries, func() { onEvent(ctx, event) })
				}
			}
			outcomes = append(outcomes, EndpointOutcome{Endpoint: endpoint, Accepted: true})
		}
	}

	b.mu.Unlock()

	// deliver after releasing the lock so handlers may publish or subscribe
	for _, deliver := range deliveries {
		deliver()
	}
	return outcomes, nil
}

func (b *InMemoryBus) Subscribe(ctx context.Context, request SubscribeRequest) (Subscription, error) {
	if len(request.Endpoints) == 0 {
		return nil, ErrNoEndpoints
	}
	if request.OnEvent == nil {
		return nil, ErrNoHandler
	}

	b.mu.Lock()
	sub := &memorySubscription{
		bus:     b,
		ids:     make(map[*memoryRelay]int),
		request: request,
	}
	var replay []*models.Event
	for _, endpoint := range request.Endpoints {
		r := b.relay(endpoint)
		r.nextSubID++
		r.subscribers[r.nextSubID] = sub
		sub.relays = append(sub.relays, r)
		sub.ids[r] = r.nextSubID
		for _, event := range r.backlog {
			if MatchesAny(request.Filters, event) {
				replay = append(replay, event)
			}
		}
	}
	b.mu.Unlock()

	for _, event := range replay {
		request.OnEvent(ctx, event)
	}
	if request.OnCaughtUp != nil {
		for _, endpoint := range request.Endpoints {
			request.OnCaughtUp(endpoint)
		}
	}
	return sub, nil
}

func (s *memorySubscription) Close() {
	s.closeOnce.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		for _, r := range s.relays {
			delete(r.subscribers, s.ids[r])
		}
	})
}

func (b *InMemoryBus) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range b.relays {
		r.subscribers = make(map[int]*memorySubscription)
	}
	return nil
}

// compile-time interface assertions
var _ EventBus = (*InMemoryBus)(nil)
var _ Subscription = (*memorySubscription)(nil)
