package submitter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/dvm-project/dvmkit/pkg/codec"
	"github.com/dvm-project/dvmkit/pkg/config"
	"github.com/dvm-project/dvmkit/pkg/eventbus"
	"github.com/dvm-project/dvmkit/pkg/logger"
	"github.com/dvm-project/dvmkit/pkg/models"
	"github.com/dvm-project/dvmkit/pkg/payments"
)

const testEndpoint = "relay-a"

type SubmitterSuite struct {
	suite.Suite
	bus       *eventbus.InMemoryBus
	provider  *payments.InMemoryProvider
	submitter *Submitter
}

func (s *SubmitterSuite) SetupTest() {
	logger.ConfigureTestLogging(s.T())
	s.bus = eventbus.NewInMemoryBus()
	s.provider = payments.NewInMemoryProvider()
	s.submitter = NewSubmitter(SubmitterParams{
		SubmitterKey: "alice",
		Bus:          s.bus,
		Payments:     s.provider,
		Config: config.SubmitterConfig{
			Endpoints:           []string{testEndpoint},
			AutoPayCeilingUnits: 10,
			ResponseTimeout:     5 * time.Second,
		},
	})
}

func TestSubmitterSuite(t *testing.T) {
	suite.Run(t, new(SubmitterSuite))
}

func (s *SubmitterSuite) submit(prompt string) *Job {
	job, err := s.submitter.Submit(context.Background(), SubmitParams{Prompt: prompt})
	s.Require().NoError(err)
	return job
}

// quote creates a real invoice and publishes payment-required feedback for
// the job, as a processor would.
func (s *SubmitterSuite) quote(job *Job, processorKey string, amountUnits uint64) payments.Invoice {
	invoice, err := s.provider.CreateInvoice(context.Background(), amountUnits, "")
	s.Require().NoError(err)

	event, err := codec.BuildFeedbackEvent(models.JobFeedback{
		JobID:        job.ID(),
		ProcessorKey: processorKey,
		SubmitterKey: "alice",
		Status:       models.JobStatusPaymentRequired,
		AmountUnits:  amountUnits,
		Invoice:      invoice.Invoice,
	})
	s.Require().NoError(err)
	event.Seal()
	_, err = s.bus.Publish(context.Background(), event, []string{testEndpoint})
	s.Require().NoError(err)
	return invoice
}

func (s *SubmitterSuite) publishResult(job *Job, processorKey, output string) {
	event, err := codec.BuildResultEvent(models.JobResult{
		JobID:        job.ID(),
		ProcessorKey: processorKey,
		SubmitterKey: "alice",
		Output:       output,
	}, models.KindJobRequestTextGeneration)
	s.Require().NoError(err)
	event.Seal()
	_, err = s.bus.Publish(context.Background(), event, []string{testEndpoint})
	s.Require().NoError(err)
}

func (s *SubmitterSuite) publishErrorFeedback(job *Job, processorKey, detail string) {
	event, err := codec.BuildFeedbackEvent(models.JobFeedback{
		JobID:        job.ID(),
		ProcessorKey: processorKey,
		Status:       models.JobStatusError,
		Detail:       detail,
	})
	s.Require().NoError(err)
	event.Seal()
	_, err = s.bus.Publish(context.Background(), event, []string{testEndpoint})
	s.Require().NoError(err)
}

func (s *SubmitterSuite) wait(job *Job) Update {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	update, err := job.Wait(ctx)
	s.Require().NoError(err)
	return update
}

func (s *SubmitterSuite) TestSubmitPublishesRequest() {
	var requests []*models.Event
	_, err := s.bus.Subscribe(context.Background(), eventbus.SubscribeRequest{
		Filters:   []eventbus.Filter{{Kinds: []int{models.KindJobRequestTextGeneration}}},
		Endpoints: []string{testEndpoint},
		OnEvent: func(_ context.Context, event *models.Event) {
			requests = append(requests, event)
		},
	})
	s.Require().NoError(err)

	job := s.submit("write a haiku")
	defer job.Cancel()

	s.Require().Len(requests, 1)
	s.Equal(job.ID(), requests[0].ID)
	s.Equal("write a haiku", requests[0].Content)
}

func (s *SubmitterSuite) TestAutoPaysWithinCeilingAndCompletes() {
	job := s.submit("write a haiku")

	invoice := s.quote(job, "bob", 3)

	// the quote is under the ceiling, so the actor pays without approval
	s.Require().Eventually(func() bool {
		status, err := s.provider.CheckSettlement(context.Background(), invoice.PaymentReference)
		return err == nil && status.HasProof()
	}, 2*time.Second, 10*time.Millisecond)

	s.publishResult(job, "bob", "an old silent pond")

	update := s.wait(job)
	s.Equal(JobStateCompleted, update.State)
	s.Require().NotNil(update.Result)
	s.Equal("an old silent pond", update.Result.Output)
	s.EqualValues(3, update.AmountUnits)
}

func (s *SubmitterSuite) TestHoldsOverCeilingQuoteUntilApproved() {
	job := s.submit("expensive work")
	invoice := s.quote(job, "bob", 50)

	approved := false
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var last Update
	for update := range job.Updates() {
		last = update
		if update.RequiresApproval {
			// nothing was paid while holding
			status, err := s.provider.CheckSettlement(ctx, invoice.PaymentReference)
			s.Require().NoError(err)
			s.False(status.HasProof())

			approved = true
			job.Approve()
			s.publishResult(job, "bob", "worth it")
		}
		if update.State.IsTerminal() {
			break
		}
	}

	s.True(approved)
	s.Equal(JobStateCompleted, last.State)

	status, err := s.provider.CheckSettlement(ctx, invoice.PaymentReference)
	s.Require().NoError(err)
	s.True(status.HasProof())
}

func (s *SubmitterSuite) TestProviderErrorFeedbackFailsJob() {
	job := s.submit("doomed")
	s.publishErrorFeedback(job, "bob", "unsupported model")

	update := s.wait(job)
	s.Equal(JobStateFailed, update.State)
	s.Contains(update.Detail, "provider reported failure")
	s.Contains(update.Detail, "unsupported model")
}

func (s *SubmitterSuite) TestPaymentFailureFailsJob() {
	job := s.submit("bad invoice")

	// feedback quoting an invoice the wallet cannot pay
	event, err := codec.BuildFeedbackEvent(models.JobFeedback{
		JobID:        job.ID(),
		ProcessorKey: "bob",
		Status:       models.JobStatusPaymentRequired,
		AmountUnits:  3,
		Invoice:      "lnmem1unknown",
	})
	s.Require().NoError(err)
	event.Seal()
	_, err = s.bus.Publish(context.Background(), event, []string{testEndpoint})
	s.Require().NoError(err)

	update := s.wait(job)
	s.Equal(JobStateFailed, update.State)
	s.Contains(update.Detail, "payment failed")
}

func (s *SubmitterSuite) TestTimesOutWithoutResponse() {
	quick := NewSubmitter(SubmitterParams{
		SubmitterKey: "alice",
		Bus:          s.bus,
		Payments:     s.provider,
		Config: config.SubmitterConfig{
			Endpoints:       []string{testEndpoint},
			ResponseTimeout: 50 * time.Millisecond,
		},
	})
	job, err := quick.Submit(context.Background(), SubmitParams{Prompt: "anyone there?"})
	s.Require().NoError(err)

	update := s.wait(job)
	s.Equal(JobStateTimedOut, update.State)
	s.Contains(update.Detail, "timed out")
}

func (s *SubmitterSuite) TestLocksOntoFirstRespondingIdentity() {
	job := s.submit("who answers first")
	s.quote(job, "bob", 3)

	// a different identity tries to take over the job with a bogus result
	s.publishResult(job, "mallory", "not yours")
	s.publishResult(job, "bob", "the real answer")

	update := s.wait(job)
	s.Equal(JobStateCompleted, update.State)
	s.Equal("the real answer", update.Result.Output)
}

func (s *SubmitterSuite) TestResultWithoutQuoteCompletes() {
	// a processor may serve for free and skip the quote entirely
	job := s.submit("gratis")
	s.publishResult(job, "bob", "on the house")

	update := s.wait(job)
	s.Equal(JobStateCompleted, update.State)
	s.Equal("on the house", update.Result.Output)
}
