// Package libp2p implements the event bus over gossipsub. Each endpoint name
// maps to one gossipsub topic, and admission policy runs as a topic
// validator: on a gossip mesh every node is also a relay, so the local node
// rejects sub-difficulty events the same way its peers would.
package libp2p

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	libp2p_pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/dvm-project/dvmkit/pkg/eventbus"
	"github.com/dvm-project/dvmkit/pkg/models"
)

type BusParams struct {
	Host   host.Host
	PubSub *libp2p_pubsub.PubSub
	// MinDifficulty is the admission difficulty this node enforces on every
	// topic it relays. Zero admits everything.
	MinDifficulty int
	// IgnoreLocal drops self-published messages on delivery. Leave it off
	// when submitter and processor share a host, as they do in tests.
	IgnoreLocal bool
}

type Bus struct {
	hostID        string
	pubSub        *libp2p_pubsub.PubSub
	minDifficulty int
	ignoreLocal   bool

	mu     sync.Mutex
	topics map[string]*topicHandle
	closed bool
}

// topicHandle is shared by every publisher and subscriber of one endpoint.
// Topics stay joined until the bus is closed.
type topicHandle struct {
	topic     *libp2p_pubsub.Topic
	validated bool
}

func NewBus(ctx context.Context, params BusParams) (*Bus, error) {
	pubSub := params.PubSub
	if pubSub == nil {
		var err error
		pubSub, err = libp2p_pubsub.NewGossipSub(ctx, params.Host)
		if err != nil {
			return nil, errors.Wrap(err, "creating gossipsub router")
		}
	}
	return &Bus{
		hostID:        params.Host.ID().String(),
		pubSub:        pubSub,
		minDifficulty: params.MinDifficulty,
		ignoreLocal:   params.IgnoreLocal,
		topics:        make(map[string]*topicHandle),
	}, nil
}

func (b *Bus) Publish(ctx context.Context, event *models.Event, endpoints []string) ([]eventbus.EndpointOutcome, error) {
	if len(endpoints) == 0 {
		return nil, eventbus.ErrNoEndpoints
	}
	if event.ID == "" {
		return nil, eventbus.ErrUnsealedEvent
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, errors.Wrap(err, "marshalling event")
	}

	outcomes := make([]eventbus.EndpointOutcome, 0, len(endpoints))
	for _, endpoint := range endpoints {
		outcome := eventbus.EndpointOutcome{Endpoint: endpoint}
		if b.minDifficulty > 0 && event.Difficulty() < b.minDifficulty {
			outcome.Reason = fmt.Sprintf("pow: difficulty %d required", b.minDifficulty)
			outcomes = append(outcomes, outcome)
			continue
		}
		handle, err := b.joinTopic(endpoint)
		if err != nil {
			outcome.Err = err
			outcomes = append(outcomes, outcome)
			continue
		}
		if err := handle.topic.Publish(ctx, payload); err != nil {
			outcome.Err = err
			outcomes = append(outcomes, outcome)
			continue
		}
		outcome.Accepted = true
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

func (b *Bus) Subscribe(ctx context.Context, request eventbus.SubscribeRequest) (eventbus.Subscription, error) {
	if len(request.Endpoints) == 0 {
		return nil, eventbus.ErrNoEndpoints
	}
	if request.OnEvent == nil {
		return nil, eventbus.ErrNoHandler
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &busSubscription{cancel: cancel}
	for _, endpoint := range request.Endpoints {
		handle, err := b.joinTopic(endpoint)
		if err != nil {
			sub.Close()
			return nil, err
		}
		topicSub, err := handle.topic.Subscribe()
		if err != nil {
			sub.Close()
			return nil, errors.Wrapf(err, "subscribing to topic %s", endpoint)
		}
		sub.subs = append(sub.subs, topicSub)
		go b.listenForEvents(subCtx, endpoint, topicSub, request)

		// gossipsub carries no stored backlog, so a fresh subscription is
		// caught up as soon as it joins the mesh
		if request.OnCaughtUp != nil {
			request.OnCaughtUp(endpoint)
		}
	}
	return sub, nil
}

func (b *Bus) listenForEvents(
	ctx context.Context,
	endpoint string,
	topicSub *libp2p_pubsub.Subscription,
	request eventbus.SubscribeRequest,
) {
	for {
		msg, err := topicSub.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				log.Ctx(ctx).Trace().Str("endpoint", endpoint).Msgf("gossipsub subscription shutting down: %v", err)
			} else {
				log.Ctx(ctx).Error().Str("endpoint", endpoint).Msgf(
					"gossipsub subscription encountered an unexpected error, shutting down: %v", err)
			}
			return
		}
		if b.ignoreLocal && msg.GetFrom().String() == b.hostID {
			continue
		}
		var event models.Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			log.Ctx(ctx).Error().Str("endpoint", endpoint).Msgf("error unmarshalling gossipsub payload: %v", err)
			continue
		}
		if !eventbus.MatchesAny(request.Filters, &event) {
			continue
		}
		request.OnEvent(ctx, &event)
	}
}

// joinTopic joins the topic once and registers the admission validator.
func (b *Bus) joinTopic(endpoint string) (*topicHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errors.New("event bus is closed")
	}
	if handle, ok := b.topics[endpoint]; ok {
		return handle, nil
	}

	if err := b.pubSub.RegisterTopicValidator(endpoint, b.validateMessage); err != nil {
		return nil, errors.Wrapf(err, "registering validator for topic %s", endpoint)
	}
	topic, err := b.pubSub.Join(endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "joining topic %s", endpoint)
	}
	handle := &topicHandle{topic: topic, validated: true}
	b.topics[endpoint] = handle
	return handle, nil
}

// validateMessage gates forwarding: malformed events, events whose id does
// not match their content and events below the admission difficulty are
// dropped so they never propagate through this node's mesh links.
func (b *Bus) validateMessage(ctx context.Context, _ peer.ID, msg *libp2p_pubsub.Message) bool {
	var event models.Event
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		return false
	}
	if !event.Verify() {
		return false
	}
	if b.minDifficulty > 0 && event.Difficulty() < b.minDifficulty {
		return false
	}
	return true
}

func (b *Bus) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	var errs *multierror.Error
	for endpoint, handle := range b.topics {
		if handle.validated {
			if err := b.pubSub.UnregisterTopicValidator(endpoint); err != nil {
				errs = multierror.Append(errs, errors.Wrapf(err, "unregistering validator for %s", endpoint))
			}
		}
		if err := handle.topic.Close(); err != nil {
			errs = multierror.Append(errs, errors.Wrapf(err, "closing topic %s", endpoint))
		}
	}
	b.topics = make(map[string]*topicHandle)
	if errs != nil {
		log.Ctx(ctx).Debug().Msgf("event bus shutdown: %v", errs)
	}
	return errs.ErrorOrNil()
}

type busSubscription struct {
	cancel    context.CancelFunc
	subs      []*libp2p_pubsub.Subscription
	closeOnce sync.Once
}

func (s *busSubscription) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		for _, sub := range s.subs {
			sub.Cancel()
		}
	})
}

var _ eventbus.EventBus = (*Bus)(nil)
