package store

// PendingState is the lifecycle state of a pending job held by the processor.
// Terminal outcomes (completed, failed, expired, timed out) are not states:
// a job reaching one is deleted from the store.
type PendingState int

const (
	PendingStateUndefined PendingState = iota
	// PendingStateAwaitingPayment: invoice issued, payment-required feedback
	// published, waiting for settlement.
	PendingStateAwaitingPayment
	// PendingStateOptimisticallyServing: the optimistic-processing threshold
	// was reached and the job is being served ahead of final confirmation.
	PendingStateOptimisticallyServing
	// PendingStatePaid: settlement confirmed, not yet picked up for serving.
	PendingStatePaid
	// PendingStateServing: inference in progress after confirmed payment.
	PendingStateServing
)

func (s PendingState) String() string {
	switch s {
	case PendingStateAwaitingPayment:
		return "AwaitingPayment"
	case PendingStateOptimisticallyServing:
		return "OptimisticallyServing"
	case PendingStatePaid:
		return "Paid"
	case PendingStateServing:
		return "Serving"
	default:
		return "Undefined"
	}
}

// IsServing returns true while the job occupies an inference slot.
func (s PendingState) IsServing() bool {
	return s == PendingStateServing || s == PendingStateOptimisticallyServing
}
