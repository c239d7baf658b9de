package models

// Event kinds. Job requests occupy a reserved range; each request kind has a
// matching result kind offset by a fixed amount, and all status feedback
// shares a single kind regardless of job type.
const (
	KindJobRequestMin = 5000
	KindJobRequestMax = 5999

	KindJobRequestTextGeneration = 5050

	kindResultOffset = 1000

	KindJobFeedback = 7000
)

// Well-known tag names carried on protocol events.
const (
	// TagCorrelation references the originating job request event ID.
	TagCorrelation = "e"
	// TagTarget addresses an event to a counterparty identity.
	TagTarget = "p"
	// TagStatus carries the feedback status string.
	TagStatus = "status"
	// TagAmount carries "<units> <invoice>" on payment-required feedback.
	TagAmount = "amount"
	// TagEncrypted marks an encrypted payload.
	TagEncrypted = "encrypted"
	// TagNonce carries the proof-of-work nonce and target difficulty.
	TagNonce = "nonce"
)

// IsJobRequestKind returns true for kinds in the job request range.
func IsJobRequestKind(kind int) bool {
	return kind >= KindJobRequestMin && kind <= KindJobRequestMax
}

// ResultKind maps a job request kind to its result kind.
func ResultKind(requestKind int) int {
	return requestKind + kindResultOffset
}

// IsJobResultKind returns true for kinds in the job result range.
func IsJobResultKind(kind int) bool {
	return kind >= KindJobRequestMin+kindResultOffset && kind <= KindJobRequestMax+kindResultOffset
}
