package eventbus

import "errors"

var (
	// ErrNoEndpoints is returned when a publish or subscribe is attempted
	// with an empty endpoint set. Endpoint sets are always explicit.
	ErrNoEndpoints = errors.New("no endpoints provided: endpoint sets must be passed explicitly")

	// ErrUnsealedEvent is returned when an event without an ID is published.
	ErrUnsealedEvent = errors.New("event has no ID: call Seal() before publishing")

	// ErrNoHandler is returned when a subscription is opened without an
	// OnEvent callback.
	ErrNoHandler = errors.New("subscription has no OnEvent handler")
)
