// Package submitter implements the consumer side of the job protocol: it
// builds and publishes job requests, follows the correlated feedback and
// result stream, pays quoted invoices subject to an auto-pay policy and
// surfaces the final outcome.
package submitter

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"github.com/dvm-project/dvmkit/pkg/codec"
	"github.com/dvm-project/dvmkit/pkg/config"
	"github.com/dvm-project/dvmkit/pkg/eventbus"
	"github.com/dvm-project/dvmkit/pkg/models"
	"github.com/dvm-project/dvmkit/pkg/payments"
	"github.com/dvm-project/dvmkit/pkg/publisher"
	"github.com/dvm-project/dvmkit/pkg/sealer"
	"github.com/dvm-project/dvmkit/pkg/stamper"
	"github.com/dvm-project/dvmkit/pkg/subscription"
)

type SubmitterParams struct {
	// SubmitterKey is this submitter's publishing identity.
	SubmitterKey string
	Bus          eventbus.EventBus
	Payments     payments.Provider
	Sealer       sealer.Sealer
	Stamper      stamper.Stamper
	Config       config.SubmitterConfig
	Clock        clock.Clock
}

type Submitter struct {
	submitterKey string
	bus          eventbus.EventBus
	payments     payments.Provider
	sealer       sealer.Sealer
	publisher    *publisher.Publisher
	cfg          config.SubmitterConfig
	clock        clock.Clock
}

func NewSubmitter(params SubmitterParams) *Submitter {
	cfg := params.Config.WithDefaults()
	if params.Sealer == nil {
		params.Sealer = sealer.NewPassthrough()
	}
	if params.Clock == nil {
		params.Clock = clock.New()
	}
	return &Submitter{
		submitterKey: params.SubmitterKey,
		bus:          params.Bus,
		payments:     params.Payments,
		sealer:       params.Sealer,
		publisher: publisher.NewPublisher(publisher.PublisherParams{
			Bus:         params.Bus,
			Stamper:     params.Stamper,
			MaxAttempts: cfg.PublishMaxAttempts,
		}),
		cfg:   cfg,
		clock: params.Clock,
	}
}

// SubmitParams describe one job submission.
type SubmitParams struct {
	Prompt string
	// TargetProcessor optionally routes and encrypts the job to one
	// processor identity.
	TargetProcessor string
	// PayloadKind defaults to text generation.
	PayloadKind int
}

// Submit publishes a job request and returns a handle following its
// lifecycle. The job's correlation id is assigned by the transport at
// publish time and read back from the accepted event.
func (s *Submitter) Submit(ctx context.Context, params SubmitParams) (*Job, error) {
	request, err := BuildRequest(ctx, BuildRequestParams{
		SubmitterKey:    s.submitterKey,
		Prompt:          params.Prompt,
		TargetProcessor: params.TargetProcessor,
		PayloadKind:     params.PayloadKind,
	}, s.sealer)
	if err != nil {
		return nil, errors.Wrap(err, "building job request")
	}

	event, err := codec.BuildRequestEvent(request)
	if err != nil {
		return nil, errors.Wrap(err, "encoding job request")
	}

	accepted, _, err := s.publisher.Publish(ctx, event, s.cfg.Endpoints)
	if err != nil {
		return nil, errors.Wrap(err, "publishing job request")
	}
	jobID := accepted.ID

	job := &Job{
		id:      jobID,
		events:  make(chan *models.Event, 16),
		approve: make(chan struct{}, 1),
		abort:   make(chan struct{}, 1),
		updates: make(chan Update, 16),
	}

	sub, err := subscription.Open(ctx, subscription.CorrelatedParams{
		Bus:          s.bus,
		JobID:        jobID,
		RequestKind:  request.PayloadKind,
		ProcessorKey: request.ProcessorKeyHint,
		Endpoints:    s.cfg.Endpoints,
		OnEvent: func(ctx context.Context, event *models.Event) {
			select {
			case job.events <- event:
			case <-ctx.Done():
			}
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "subscribing for job updates")
	}
	job.sub = sub

	go job.run(ctx, jobActorParams{
		payments:          s.payments,
		sealer:            s.sealer,
		clock:             s.clock,
		autoPayCeiling:    s.cfg.AutoPayCeilingUnits,
		maxFeeUnits:       s.cfg.MaxFeeUnits,
		responseTimeout:   s.cfg.ResponseTimeout,
		expectedProcessor: request.ProcessorKeyHint,
	})
	return job, nil
}
