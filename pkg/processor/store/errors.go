package store

import "fmt"

// ErrJobNotFound is returned when the job is not in the pending map.
type ErrJobNotFound struct {
	JobID string
}

func NewErrJobNotFound(jobID string) ErrJobNotFound {
	return ErrJobNotFound{JobID: jobID}
}

func (e ErrJobNotFound) Error() string {
	return "pending job not found: " + e.JobID
}

// ErrJobAlreadyExists is returned when admitting a duplicate request id.
type ErrJobAlreadyExists struct {
	JobID string
}

func NewErrJobAlreadyExists(jobID string) ErrJobAlreadyExists {
	return ErrJobAlreadyExists{JobID: jobID}
}

func (e ErrJobAlreadyExists) Error() string {
	return "pending job already exists: " + e.JobID
}

// ErrJobHistoryNotFound is returned when no history exists for the job.
type ErrJobHistoryNotFound struct {
	JobID string
}

func NewErrJobHistoryNotFound(jobID string) ErrJobHistoryNotFound {
	return ErrJobHistoryNotFound{JobID: jobID}
}

func (e ErrJobHistoryNotFound) Error() string {
	return "no history found for pending job: " + e.JobID
}

// ErrInvalidJobState is returned when a conditional update does not match the
// job's current state or version.
type ErrInvalidJobState struct {
	JobID    string
	Actual   PendingState
	Expected PendingState
}

func NewErrInvalidJobState(jobID string, actual, expected PendingState) ErrInvalidJobState {
	return ErrInvalidJobState{JobID: jobID, Actual: actual, Expected: expected}
}

func (e ErrInvalidJobState) Error() string {
	return fmt.Sprintf("job %s is in state %s, expected %s", e.JobID, e.Actual, e.Expected)
}

// ErrInvalidJobVersion is returned when a conditional update sees a stale
// version.
type ErrInvalidJobVersion struct {
	JobID    string
	Actual   int
	Expected int
}

func NewErrInvalidJobVersion(jobID string, actual, expected int) ErrInvalidJobVersion {
	return ErrInvalidJobVersion{JobID: jobID, Actual: actual, Expected: expected}
}

func (e ErrInvalidJobVersion) Error() string {
	return fmt.Sprintf("job %s has version %d, expected %d", e.JobID, e.Actual, e.Expected)
}
