package subscription

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/dvm-project/dvmkit/pkg/eventbus"
	"github.com/dvm-project/dvmkit/pkg/logger"
	"github.com/dvm-project/dvmkit/pkg/models"
)

type CorrelatedSuite struct {
	suite.Suite
	bus      *eventbus.InMemoryBus
	received []*models.Event
	caughtUp int
}

func (s *CorrelatedSuite) SetupTest() {
	logger.ConfigureTestLogging(s.T())
	s.bus = eventbus.NewInMemoryBus()
	s.received = nil
	s.caughtUp = 0
}

func TestCorrelatedSuite(t *testing.T) {
	suite.Run(t, new(CorrelatedSuite))
}

func (s *CorrelatedSuite) open(jobID, processorKey string, endpoints ...string) *Correlated {
	sub, err := Open(context.Background(), CorrelatedParams{
		Bus:          s.bus,
		JobID:        jobID,
		RequestKind:  models.KindJobRequestTextGeneration,
		ProcessorKey: processorKey,
		Endpoints:    endpoints,
		OnEvent: func(_ context.Context, event *models.Event) {
			s.received = append(s.received, event)
		},
		OnCaughtUp: func() {
			s.caughtUp++
		},
	})
	s.Require().NoError(err)
	return sub
}

func (s *CorrelatedSuite) feedback(jobID, processorKey string) *models.Event {
	event := models.NewEvent(processorKey, models.KindJobFeedback, "")
	event.AppendTag(models.TagCorrelation, jobID)
	event.AppendTag(models.TagStatus, string(models.JobStatusProcessing))
	event.Seal()
	return event
}

func (s *CorrelatedSuite) result(jobID, processorKey string) *models.Event {
	event := models.NewEvent(processorKey, models.ResultKind(models.KindJobRequestTextGeneration), "output")
	event.AppendTag(models.TagCorrelation, jobID)
	event.Seal()
	return event
}

func (s *CorrelatedSuite) TestRequiresEndpoints() {
	_, err := Open(context.Background(), CorrelatedParams{
		Bus:     s.bus,
		JobID:   "job-1",
		OnEvent: func(context.Context, *models.Event) {},
	})
	s.ErrorIs(err, eventbus.ErrNoEndpoints)
}

func (s *CorrelatedSuite) TestReceivesFeedbackAndResults() {
	sub := s.open("job-1", "", "relay-a")
	defer sub.Close()

	ctx := context.Background()
	_, err := s.bus.Publish(ctx, s.feedback("job-1", "bob"), []string{"relay-a"})
	s.Require().NoError(err)
	_, err = s.bus.Publish(ctx, s.result("job-1", "bob"), []string{"relay-a"})
	s.Require().NoError(err)

	s.Len(s.received, 2)
}

func (s *CorrelatedSuite) TestIgnoresOtherJobs() {
	sub := s.open("job-1", "", "relay-a")
	defer sub.Close()

	_, err := s.bus.Publish(context.Background(), s.feedback("job-2", "bob"), []string{"relay-a"})
	s.Require().NoError(err)
	s.Empty(s.received)
}

func (s *CorrelatedSuite) TestDeduplicatesAcrossEndpoints() {
	sub := s.open("job-1", "", "relay-a", "relay-b")
	defer sub.Close()

	event := s.feedback("job-1", "bob")
	_, err := s.bus.Publish(context.Background(), event, []string{"relay-a", "relay-b"})
	s.Require().NoError(err)

	// one delivery despite two subscribed endpoints carrying the event
	s.Len(s.received, 1)
}

func (s *CorrelatedSuite) TestDropsUnexpectedIdentity() {
	sub := s.open("job-1", "bob", "relay-a")
	defer sub.Close()

	ctx := context.Background()
	_, err := s.bus.Publish(ctx, s.result("job-1", "mallory"), []string{"relay-a"})
	s.Require().NoError(err)
	s.Empty(s.received)

	_, err = s.bus.Publish(ctx, s.result("job-1", "bob"), []string{"relay-a"})
	s.Require().NoError(err)
	s.Len(s.received, 1)
}

func (s *CorrelatedSuite) TestCaughtUpFiresOnceAfterAllEndpoints() {
	sub := s.open("job-1", "", "relay-a", "relay-b", "relay-c")
	defer sub.Close()
	s.Equal(1, s.caughtUp)
}

func (s *CorrelatedSuite) TestReplaysBacklog() {
	ctx := context.Background()
	event := s.feedback("job-1", "bob")
	_, err := s.bus.Publish(ctx, event, []string{"relay-a"})
	s.Require().NoError(err)

	sub := s.open("job-1", "", "relay-a")
	defer sub.Close()

	s.Require().Len(s.received, 1)
	s.Equal(event.ID, s.received[0].ID)
	s.Equal(1, s.caughtUp)
}

func (s *CorrelatedSuite) TestCloseIsIdempotent() {
	sub := s.open("job-1", "", "relay-a")
	sub.Close()
	sub.Close()

	_, err := s.bus.Publish(context.Background(), s.feedback("job-1", "bob"), []string{"relay-a"})
	s.Require().NoError(err)
	s.Empty(s.received)
}
