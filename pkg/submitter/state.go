package submitter

// JobState is the submitter-side lifecycle state of one job.
type JobState int

const (
	JobStateUndefined JobState = iota
	// JobStateRequested: request published, waiting for the processor.
	JobStateRequested
	// JobStateAwaitingPayment: a quote arrived. Before paying this means
	// "deciding/approving"; after a successful pay call it means "paid from
	// our side, awaiting the provider's confirmation or result".
	JobStateAwaitingPayment
	// JobStatePaying: the payment call is in flight.
	JobStatePaying
	JobStateCompleted
	JobStateFailed
	JobStateTimedOut
)

func (s JobState) String() string {
	switch s {
	case JobStateRequested:
		return "Requested"
	case JobStateAwaitingPayment:
		return "AwaitingPayment"
	case JobStatePaying:
		return "Paying"
	case JobStateCompleted:
		return "Completed"
	case JobStateFailed:
		return "Failed"
	case JobStateTimedOut:
		return "TimedOut"
	default:
		return "Undefined"
	}
}

// IsTerminal returns true once the job can receive no further transitions.
func (s JobState) IsTerminal() bool {
	return s == JobStateCompleted || s == JobStateFailed || s == JobStateTimedOut
}
