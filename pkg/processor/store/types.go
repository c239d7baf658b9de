//go:generate mockgen --source types.go --destination mocks.go --package store
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/dvm-project/dvmkit/pkg/models"
)

// PendingJob tracks one admitted job from invoice issue until a terminal
// transition removes it. Exactly one PendingJob exists per request id; the
// store enforces the deduplication.
type PendingJob struct {
	// Request is the originating job request.
	Request models.JobRequest
	// Invoice is the opaque payment-request string quoted to the submitter.
	Invoice string
	// PaymentReference matches a settled payment back to the invoice.
	PaymentReference string
	// PriceUnits is the quoted price.
	PriceUnits uint64

	State   PendingState
	Version int

	CreatedAt time.Time
	// LastPolledAt and PollAttempts are the payment poll bookkeeping,
	// mutated only by the payment poller.
	LastPolledAt time.Time
	PollAttempts int
	// OptimisticallyProcessed is set once the job has been served ahead of
	// final payment confirmation.
	OptimisticallyProcessed bool
}

func (j *PendingJob) String() string {
	return fmt.Sprintf("{Job: %s, State: %s, PollAttempts: %d}", j.Request.ID, j.State, j.PollAttempts)
}

// ToSummary returns a summary of the pending job for logging and debug info.
func (j *PendingJob) ToSummary() JobSummary {
	return JobSummary{
		JobID:        j.Request.ID,
		State:        j.State.String(),
		PriceUnits:   j.PriceUnits,
		CreatedAt:    j.CreatedAt,
		PollAttempts: j.PollAttempts,
	}
}

type JobSummary struct {
	JobID        string    `json:"JobID"`
	State        string    `json:"State"`
	PriceUnits   uint64    `json:"PriceUnits"`
	CreatedAt    time.Time `json:"CreatedAt"`
	PollAttempts int       `json:"PollAttempts"`
}

// StateHistory is one recorded state transition of a pending job.
type StateHistory struct {
	JobID         string
	PreviousState PendingState
	NewState      PendingState
	NewVersion    int
	Comment       string
	Time          time.Time
}

// UpdateJobStateRequest updates a job's state with optional optimistic
// concurrency checks. A non-zero ExpectedState or ExpectedVersion makes the
// update conditional, which is how concurrent sweep and delivery tasks avoid
// double-serving a job.
type UpdateJobStateRequest struct {
	JobID           string
	NewState        PendingState
	ExpectedState   PendingState
	ExpectedVersion int
	Comment         string
}

// UpdatePollRequest records one payment poll against a job.
type UpdatePollRequest struct {
	JobID    string
	PolledAt time.Time
}

// Store is the in-memory metadata store of jobs pending payment or serving on
// this processor. Individual entry updates are atomic; iteration may proceed
// concurrently with point mutations.
type Store interface {
	// GetJob returns the pending job for a request id.
	GetJob(ctx context.Context, jobID string) (PendingJob, error)
	// GetJobs returns all pending jobs, oldest first.
	GetJobs(ctx context.Context) ([]PendingJob, error)
	// GetJobHistory returns the recorded transitions of a pending job.
	GetJobHistory(ctx context.Context, jobID string) ([]StateHistory, error)
	// CreateJob admits a new pending job. Creating an id that already
	// exists fails with ErrJobAlreadyExists.
	CreateJob(ctx context.Context, job PendingJob) error
	// UpdateJobState transitions a job, honoring expected-state/version.
	UpdateJobState(ctx context.Context, request UpdateJobStateRequest) error
	// RecordPoll increments poll bookkeeping for a job.
	RecordPoll(ctx context.Context, request UpdatePollRequest) error
	// MarkOptimisticallyProcessed flags the job as served before settlement.
	MarkOptimisticallyProcessed(ctx context.Context, jobID string) error
	// DeleteJob removes a job on a terminal transition.
	DeleteJob(ctx context.Context, jobID string) error
	// Close releases store resources.
	Close(ctx context.Context) error
}
