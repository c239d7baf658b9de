package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dvm-project/dvmkit/pkg/processor/store"
)

const newJobComment = "PendingJob created"

// Store is the in-memory pending-job store. A crash loses in-flight jobs,
// which is acceptable: submitters time out independently and may retry.
type Store struct {
	jobs    map[string]store.PendingJob
	history map[string][]store.StateHistory
	mu      sync.RWMutex
}

func NewStore() *Store {
	return &Store{
		jobs:    make(map[string]store.PendingJob),
		history: make(map[string][]store.StateHistory),
	}
}

func (s *Store) GetJob(ctx context.Context, jobID string) (store.PendingJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return job, store.NewErrJobNotFound(jobID)
	}
	return job, nil
}

func (s *Store) GetJobs(ctx context.Context) ([]store.PendingJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	jobs := make([]store.PendingJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job)
	}
	// oldest first, so sweeps time out the longest-waiting jobs first
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	return jobs, nil
}

func (s *Store) GetJobHistory(ctx context.Context, jobID string) ([]store.StateHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history, ok := s.history[jobID]
	if !ok {
		return history, store.NewErrJobHistoryNotFound(jobID)
	}
	return history, nil
}

func (s *Store) CreateJob(ctx context.Context, job store.PendingJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobID := job.Request.ID
	if _, ok := s.jobs[jobID]; ok {
		return store.NewErrJobAlreadyExists(jobID)
	}
	if job.State == store.PendingStateUndefined {
		job.State = store.PendingStateAwaitingPayment
	}
	if job.Version == 0 {
		job.Version = 1
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	s.jobs[jobID] = job
	s.appendHistory(job, store.PendingStateUndefined, newJobComment, job.CreatedAt)
	return nil
}

func (s *Store) UpdateJobState(ctx context.Context, request store.UpdateJobStateRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[request.JobID]
	if !ok {
		return store.NewErrJobNotFound(request.JobID)
	}
	if request.ExpectedState != store.PendingStateUndefined && job.State != request.ExpectedState {
		return store.NewErrInvalidJobState(request.JobID, job.State, request.ExpectedState)
	}
	if request.ExpectedVersion != 0 && job.Version != request.ExpectedVersion {
		return store.NewErrInvalidJobVersion(request.JobID, job.Version, request.ExpectedVersion)
	}

	previousState := job.State
	job.State = request.NewState
	job.Version += 1
	s.jobs[request.JobID] = job
	s.appendHistory(job, previousState, request.Comment, time.Now().UTC())
	return nil
}

func (s *Store) RecordPoll(ctx context.Context, request store.UpdatePollRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[request.JobID]
	if !ok {
		return store.NewErrJobNotFound(request.JobID)
	}
	job.LastPolledAt = request.PolledAt
	job.PollAttempts += 1
	s.jobs[request.JobID] = job
	return nil
}

func (s *Store) MarkOptimisticallyProcessed(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return store.NewErrJobNotFound(jobID)
	}
	job.OptimisticallyProcessed = true
	s.jobs[jobID] = job
	return nil
}

func (s *Store) DeleteJob(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, jobID)
	delete(s.history, jobID)
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	return nil
}

// appendHistory records a transition. Callers must hold mu.
func (s *Store) appendHistory(job store.PendingJob, previousState store.PendingState, comment string, at time.Time) {
	s.history[job.Request.ID] = append(s.history[job.Request.ID], store.StateHistory{
		JobID:         job.Request.ID,
		PreviousState: previousState,
		NewState:      job.State,
		NewVersion:    job.Version,
		Comment:       comment,
		Time:          at,
	})
}

// compile-time check that we implement the interface Store
var _ store.Store = (*Store)(nil)
