package models

// JobStatus enumerates the feedback statuses a processor can publish for a job.
type JobStatus string

const (
	JobStatusPaymentRequired JobStatus = "payment-required"
	JobStatusProcessing      JobStatus = "processing"
	JobStatusSuccess         JobStatus = "success"
	JobStatusError           JobStatus = "error"
)

func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusPaymentRequired, JobStatusProcessing, JobStatusSuccess, JobStatusError:
		return true
	}
	return false
}

// JobRequest is the submitter's side of a job: one inference request published
// to the gossip network. The ID is assigned by the transport when the request
// event is sealed, and the request is immutable afterwards.
type JobRequest struct {
	// ID is the correlation identifier all feedback and results reference.
	ID string
	// SubmitterKey is the identity that published the request.
	SubmitterKey string
	// ProcessorKeyHint optionally targets a specific processor. It is a
	// routing hint, not access control: any processor may answer.
	ProcessorKeyHint string
	// PayloadKind is the job request event kind, e.g. text generation.
	PayloadKind int
	// Input is the encoded job input, possibly encrypted to ProcessorKeyHint.
	Input string
	// Encrypted reports whether Input is end-to-end encrypted.
	Encrypted bool
}

// JobFeedback is one status update for a job. A processor may publish zero or
// more of these per job; each is a distinct immutable event.
type JobFeedback struct {
	JobID        string
	ProcessorKey string
	SubmitterKey string
	Status       JobStatus
	// Detail is an optional human-readable explanation.
	Detail string
	// AmountUnits and Invoice are set only when Status is payment-required.
	AmountUnits uint64
	Invoice     string
}

// UsageMeta is optional accounting data attached to a result.
type UsageMeta struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
}

// JobResult is the terminal output of a job, published at most once per job
// and only after payment confirmation or the optimistic-processing threshold.
type JobResult struct {
	JobID        string
	ProcessorKey string
	SubmitterKey string
	// Output is the encoded result payload, possibly encrypted to the submitter.
	Output    string
	Encrypted bool
	Usage     *UsageMeta
}
