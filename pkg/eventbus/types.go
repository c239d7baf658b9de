//go:generate mockgen --source types.go --destination mocks.go --package eventbus
package eventbus

import (
	"context"

	"github.com/dvm-project/dvmkit/pkg/models"
)

// EndpointOutcome is the per-relay result of a publish attempt.
type EndpointOutcome struct {
	Endpoint string
	Accepted bool
	// Reason holds the relay's rejection reason when not accepted, e.g. an
	// admission policy message such as "pow: difficulty 28 required".
	Reason string
	// Err holds a transport-level failure, if any. Soft per-endpoint errors
	// (endpoint unreachable, no active subscription) appear here and are
	// non-fatal as long as another endpoint accepts.
	Err error
}

// SubscribeRequest describes one subscription across an explicit endpoint set.
//
// Endpoints are always explicit. There is no default relay list anywhere in
// this package: the two peers of a job are configured independently, and a
// publish or subscribe that silently falls back to a process-wide default is
// how the two sides end up on disjoint relay sets.
type SubscribeRequest struct {
	// Filters are the filter clauses, ORed together. Logically distinct
	// concerns (e.g. result kinds vs feedback kind) should be separate
	// clauses rather than one widened filter.
	Filters   []Filter
	Endpoints []string
	// OnEvent is invoked for each matching event. Delivery may include
	// duplicates across endpoints; callers needing at-most-once delivery
	// should dedupe by event ID (see pkg/subscription).
	OnEvent func(ctx context.Context, event *models.Event)
	// OnCaughtUp is invoked once per endpoint when backlog replay completes.
	OnCaughtUp func(endpoint string)
}

// Subscription is a handle to an open subscription.
type Subscription interface {
	// Close stops delivery and releases resources. Idempotent.
	Close()
}

// EventBus is the gossip transport capability consumed by the protocol engine.
// Signing, verification and the wire format are owned by implementations.
type EventBus interface {
	// Publish sends the event to every endpoint and reports the outcome per
	// endpoint. The returned error is non-nil only for caller mistakes
	// (no endpoints, unsealed event) or total transport failure.
	Publish(ctx context.Context, event *models.Event, endpoints []string) ([]EndpointOutcome, error)
	// Subscribe opens a live subscription. Backlog events stored by an
	// endpoint are replayed before OnCaughtUp fires for that endpoint.
	Subscribe(ctx context.Context, request SubscribeRequest) (Subscription, error)
	// Close releases all resources held by the bus.
	Close(ctx context.Context) error
}
