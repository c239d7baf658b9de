// Package processor implements the provider side of the job protocol: it
// admits job requests from the gossip network, quotes and invoices them,
// polls for payment and serves paid jobs through an inference engine.
package processor

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"

	"github.com/dvm-project/dvmkit/pkg/eventbus"
	"github.com/dvm-project/dvmkit/pkg/inference"
	"github.com/dvm-project/dvmkit/pkg/lib/backoff"
	"github.com/dvm-project/dvmkit/pkg/models"
	"github.com/dvm-project/dvmkit/pkg/payments"
	"github.com/dvm-project/dvmkit/pkg/processor/store"
	"github.com/dvm-project/dvmkit/pkg/publisher"
	"github.com/dvm-project/dvmkit/pkg/sealer"
	"github.com/dvm-project/dvmkit/pkg/stamper"

	"github.com/dvm-project/dvmkit/pkg/config"
)

type ProcessorParams struct {
	// ProcessorKey is this processor's publishing identity.
	ProcessorKey string
	Bus          eventbus.EventBus
	Store        store.Store
	Payments     payments.Provider
	Engine       inference.Engine
	Sealer       sealer.Sealer
	Stamper      stamper.Stamper
	Config       config.ProcessorConfig
	Clock        clock.Clock
}

// Processor ties the admission handler, payment poller and servicer together
// behind one Start/Stop lifecycle.
type Processor struct {
	processorKey string
	bus          eventbus.EventBus
	store        store.Store
	handler      *Handler
	poller       *Poller
	cfg          config.ProcessorConfig

	subscription eventbus.Subscription
	startOnce    sync.Once
	stopOnce     sync.Once
}

func NewProcessor(params ProcessorParams) *Processor {
	cfg := params.Config.WithDefaults()
	pub := publisher.NewPublisher(publisher.PublisherParams{
		Bus:         params.Bus,
		Stamper:     params.Stamper,
		MaxAttempts: cfg.PublishMaxAttempts,
	})
	quoter := NewQuoter(QuoterParams{
		BasePriceUnits:  cfg.BasePriceUnits,
		PricePerKBUnits: cfg.PricePerKBUnits,
		MinPriceUnits:   cfg.MinPriceUnits,
	})
	handler := NewHandler(HandlerParams{
		ProcessorKey: params.ProcessorKey,
		Store:        params.Store,
		Payments:     params.Payments,
		Publisher:    pub,
		Quoter:       quoter,
		Clock:        params.Clock,
	})
	servicer := NewServicer(ServicerParams{
		ProcessorKey: params.ProcessorKey,
		Store:        params.Store,
		Engine:       params.Engine,
		Sealer:       params.Sealer,
		Publisher:    pub,
		RunParams:    cfg.RunParams,
	})
	poller := NewPoller(PollerParams{
		ProcessorKey:        params.ProcessorKey,
		Store:               params.Store,
		Payments:            params.Payments,
		Publisher:           pub,
		Servicer:            servicer,
		Backoff:             backoff.NewExponential(cfg.PollBaseBackoff, cfg.PollBackoffFactor, cfg.PollMaxBackoff),
		SweepInterval:       cfg.SweepInterval,
		PaymentTimeout:      cfg.PaymentTimeout,
		OptimisticThreshold: cfg.OptimisticThreshold,
		Workers:             cfg.ServingWorkers,
		Clock:               params.Clock,
	})
	return &Processor{
		processorKey: params.ProcessorKey,
		bus:          params.Bus,
		store:        params.Store,
		handler:      handler,
		poller:       poller,
		cfg:          cfg,
	}
}

// Start subscribes for job requests on the configured relay set and begins
// the payment sweep.
func (p *Processor) Start(ctx context.Context) error {
	var startErr error
	p.startOnce.Do(func() {
		sub, err := p.bus.Subscribe(ctx, eventbus.SubscribeRequest{
			Filters: []eventbus.Filter{
				{Kinds: p.cfg.SupportedKinds},
			},
			Endpoints: p.cfg.Endpoints,
			OnEvent: func(ctx context.Context, event *models.Event) {
				if err := p.handler.HandleRequest(ctx, event, p.cfg.Endpoints); err != nil {
					// a bad request must never crash the delivery task
					log.Ctx(ctx).Error().Err(err).Str("eventID", event.ID).Msg("failed to handle job request")
				}
			},
		})
		if err != nil {
			startErr = err
			return
		}
		p.subscription = sub
		p.poller.Start(ctx, p.cfg.Endpoints)
		log.Ctx(ctx).Info().
			Strs("endpoints", p.cfg.Endpoints).
			Ints("kinds", p.cfg.SupportedKinds).
			Msg("processor started")
	})
	return startErr
}

// Stop closes the request subscription and drains the poller.
func (p *Processor) Stop(ctx context.Context) {
	p.stopOnce.Do(func() {
		if p.subscription != nil {
			p.subscription.Close()
		}
		p.poller.Stop(ctx)
	})
}

// PendingJobSummaries enumerates the jobs currently held by this processor,
// for logging and debug endpoints.
func (p *Processor) PendingJobSummaries(ctx context.Context) ([]store.JobSummary, error) {
	jobs, err := p.store.GetJobs(ctx)
	if err != nil {
		return nil, err
	}
	summaries := make([]store.JobSummary, 0, len(jobs))
	for i := range jobs {
		summaries = append(summaries, jobs[i].ToSummary())
	}
	return summaries, nil
}
