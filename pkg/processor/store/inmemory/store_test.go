package inmemory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/dvm-project/dvmkit/pkg/models"
	"github.com/dvm-project/dvmkit/pkg/processor/store"
)

type Suite struct {
	suite.Suite
	jobStore store.Store
	job      store.PendingJob
}

func (s *Suite) SetupTest() {
	s.jobStore = NewStore()
	s.job = newPendingJob()
}

func TestSuite(t *testing.T) {
	suite.Run(t, new(Suite))
}

func (s *Suite) TestCreateJob() {
	err := s.jobStore.CreateJob(context.Background(), s.job)
	s.NoError(err)

	read, err := s.jobStore.GetJob(context.Background(), s.job.Request.ID)
	s.NoError(err)
	s.Equal(s.job.Request.ID, read.Request.ID)
	s.Equal(store.PendingStateAwaitingPayment, read.State)
	s.Equal(1, read.Version)
	s.False(read.CreatedAt.IsZero())
}

func (s *Suite) TestCreateJob_AlreadyExists() {
	err := s.jobStore.CreateJob(context.Background(), s.job)
	s.NoError(err)

	err = s.jobStore.CreateJob(context.Background(), s.job)
	s.Error(err)
	s.IsType(store.ErrJobAlreadyExists{}, err)
}

func (s *Suite) TestGetJob_DoesntExist() {
	_, err := s.jobStore.GetJob(context.Background(), uuid.NewString())
	s.Error(err)
	s.IsType(store.ErrJobNotFound{}, err)
}

func (s *Suite) TestGetJobs_OldestFirst() {
	ctx := context.Background()
	older := newPendingJob()
	older.CreatedAt = time.Now().UTC().Add(-time.Hour)
	s.NoError(s.jobStore.CreateJob(ctx, s.job))
	s.NoError(s.jobStore.CreateJob(ctx, older))

	jobs, err := s.jobStore.GetJobs(ctx)
	s.NoError(err)
	s.Len(jobs, 2)
	s.Equal(older.Request.ID, jobs[0].Request.ID)
	s.Equal(s.job.Request.ID, jobs[1].Request.ID)
}

func (s *Suite) TestUpdateJobState() {
	ctx := context.Background()
	s.NoError(s.jobStore.CreateJob(ctx, s.job))

	err := s.jobStore.UpdateJobState(ctx, store.UpdateJobStateRequest{
		JobID:    s.job.Request.ID,
		NewState: store.PendingStatePaid,
		Comment:  "settlement confirmed",
	})
	s.NoError(err)

	read, err := s.jobStore.GetJob(ctx, s.job.Request.ID)
	s.NoError(err)
	s.Equal(store.PendingStatePaid, read.State)
	s.Equal(2, read.Version)
}

func (s *Suite) TestUpdateJobState_ConditionsPass() {
	ctx := context.Background()
	s.NoError(s.jobStore.CreateJob(ctx, s.job))

	err := s.jobStore.UpdateJobState(ctx, store.UpdateJobStateRequest{
		JobID:           s.job.Request.ID,
		NewState:        store.PendingStatePaid,
		ExpectedState:   store.PendingStateAwaitingPayment,
		ExpectedVersion: 1,
	})
	s.NoError(err)
}

func (s *Suite) TestUpdateJobState_WrongExpectedState() {
	ctx := context.Background()
	s.NoError(s.jobStore.CreateJob(ctx, s.job))

	err := s.jobStore.UpdateJobState(ctx, store.UpdateJobStateRequest{
		JobID:         s.job.Request.ID,
		NewState:      store.PendingStateServing,
		ExpectedState: store.PendingStatePaid,
	})
	s.Error(err)
	s.IsType(store.ErrInvalidJobState{}, err)
}

func (s *Suite) TestUpdateJobState_WrongExpectedVersion() {
	ctx := context.Background()
	s.NoError(s.jobStore.CreateJob(ctx, s.job))

	err := s.jobStore.UpdateJobState(ctx, store.UpdateJobStateRequest{
		JobID:           s.job.Request.ID,
		NewState:        store.PendingStatePaid,
		ExpectedVersion: 7,
	})
	s.Error(err)
	s.IsType(store.ErrInvalidJobVersion{}, err)
}

func (s *Suite) TestRecordPoll() {
	ctx := context.Background()
	s.NoError(s.jobStore.CreateJob(ctx, s.job))

	polledAt := time.Now().UTC()
	s.NoError(s.jobStore.RecordPoll(ctx, store.UpdatePollRequest{
		JobID:    s.job.Request.ID,
		PolledAt: polledAt,
	}))
	s.NoError(s.jobStore.RecordPoll(ctx, store.UpdatePollRequest{
		JobID:    s.job.Request.ID,
		PolledAt: polledAt.Add(time.Second),
	}))

	read, err := s.jobStore.GetJob(ctx, s.job.Request.ID)
	s.NoError(err)
	s.Equal(2, read.PollAttempts)
	s.Equal(polledAt.Add(time.Second), read.LastPolledAt)
}

func (s *Suite) TestMarkOptimisticallyProcessed() {
	ctx := context.Background()
	s.NoError(s.jobStore.CreateJob(ctx, s.job))

	s.NoError(s.jobStore.MarkOptimisticallyProcessed(ctx, s.job.Request.ID))
	read, err := s.jobStore.GetJob(ctx, s.job.Request.ID)
	s.NoError(err)
	s.True(read.OptimisticallyProcessed)
}

func (s *Suite) TestHistory() {
	ctx := context.Background()
	s.NoError(s.jobStore.CreateJob(ctx, s.job))
	s.NoError(s.jobStore.UpdateJobState(ctx, store.UpdateJobStateRequest{
		JobID:    s.job.Request.ID,
		NewState: store.PendingStatePaid,
		Comment:  "settlement confirmed",
	}))

	history, err := s.jobStore.GetJobHistory(ctx, s.job.Request.ID)
	s.NoError(err)
	s.Len(history, 2)
	s.Equal(store.PendingStateUndefined, history[0].PreviousState)
	s.Equal(store.PendingStateAwaitingPayment, history[0].NewState)
	s.Equal(store.PendingStateAwaitingPayment, history[1].PreviousState)
	s.Equal(store.PendingStatePaid, history[1].NewState)
	s.Equal("settlement confirmed", history[1].Comment)
}

func (s *Suite) TestHistory_DoesntExist() {
	_, err := s.jobStore.GetJobHistory(context.Background(), uuid.NewString())
	s.Error(err)
	s.IsType(store.ErrJobHistoryNotFound{}, err)
}

func (s *Suite) TestDeleteJob() {
	ctx := context.Background()
	s.NoError(s.jobStore.CreateJob(ctx, s.job))
	s.NoError(s.jobStore.DeleteJob(ctx, s.job.Request.ID))

	_, err := s.jobStore.GetJob(ctx, s.job.Request.ID)
	s.Error(err)
	_, err = s.jobStore.GetJobHistory(ctx, s.job.Request.ID)
	s.Error(err)
}

func newPendingJob() store.PendingJob {
	return store.PendingJob{
		Request: models.JobRequest{
			ID:           uuid.NewString(),
			SubmitterKey: uuid.NewString(),
			PayloadKind:  models.KindJobRequestTextGeneration,
			Input:        "summarize the meeting notes",
		},
		Invoice:          "lnbc10n1" + uuid.NewString(),
		PaymentReference: uuid.NewString(),
		PriceUnits:       10,
	}
}
