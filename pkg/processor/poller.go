package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"

	"github.com/dvm-project/dvmkit/pkg/codec"
	"github.com/dvm-project/dvmkit/pkg/lib/backoff"
	"github.com/dvm-project/dvmkit/pkg/models"
	"github.com/dvm-project/dvmkit/pkg/payments"
	"github.com/dvm-project/dvmkit/pkg/processor/store"
	"github.com/dvm-project/dvmkit/pkg/publisher"
)

const (
	// DefaultPollerWorkers is the default number of parallel serving workers.
	DefaultPollerWorkers = 3
	// DefaultTransientRetries bounds inline retries of a settlement lookup
	// that fails transiently before the poll counts as "checked, pending".
	DefaultTransientRetries = 2
	// DefaultTransientRetryDelay is the fixed wait between inline retries.
	DefaultTransientRetryDelay = 250 * time.Millisecond
)

type PollerParams struct {
	ProcessorKey string
	Store        store.Store
	Payments     payments.Provider
	Publisher    *publisher.Publisher
	Servicer     *Servicer
	// Backoff is the per-job delay schedule keyed by poll attempts.
	Backoff backoff.Backoff
	// SweepInterval is the global sweep period, the floor under any per-job
	// backoff delay.
	SweepInterval time.Duration
	// PaymentTimeout bounds the total age of a pending job. A job exceeding
	// it is timed out even mid-backoff.
	PaymentTimeout time.Duration
	// OptimisticThreshold is the number of clean pending polls after which
	// the job is served ahead of settlement. Zero disables optimistic
	// processing.
	OptimisticThreshold int
	// Workers bounds parallel serving goroutines.
	Workers int

	TransientRetries    int
	TransientRetryDelay time.Duration

	// Clock is the clock used for time-based operations.
	// If not provided, the system clock is used.
	Clock clock.Clock
}

// Poller is the single place payment polling happens: one periodic sweep over
// all pending jobs, each with its own exponential backoff, expiry and hard
// timeout. Nothing else in the processor talks to the payment provider about
// settlement.
type Poller struct {
	processorKey        string
	store               store.Store
	payments            payments.Provider
	publisher           *publisher.Publisher
	servicer            *Servicer
	backoff             backoff.Backoff
	sweepInterval       time.Duration
	paymentTimeout      time.Duration
	optimisticThreshold int
	transientRetries    int
	transientRetryDelay time.Duration
	clock               clock.Clock

	workersSem chan struct{}
	waitGroup  sync.WaitGroup
	startOnce  sync.Once
	stopOnce   sync.Once
	stopChan   chan struct{}

	// endpoints is the explicit relay set feedback is published to, fixed at
	// Start from the processor's per-job configuration record.
	endpoints []string
}

func NewPoller(params PollerParams) *Poller {
	if params.Workers == 0 {
		params.Workers = DefaultPollerWorkers
	}
	if params.Clock == nil {
		params.Clock = clock.New()
	}
	if params.TransientRetries == 0 {
		params.TransientRetries = DefaultTransientRetries
	}
	if params.TransientRetryDelay == 0 {
		params.TransientRetryDelay = DefaultTransientRetryDelay
	}
	return &Poller{
		processorKey:        params.ProcessorKey,
		store:               params.Store,
		payments:            params.Payments,
		publisher:           params.Publisher,
		servicer:            params.Servicer,
		backoff:             params.Backoff,
		sweepInterval:       params.SweepInterval,
		paymentTimeout:      params.PaymentTimeout,
		optimisticThreshold: params.OptimisticThreshold,
		transientRetries:    params.TransientRetries,
		transientRetryDelay: params.TransientRetryDelay,
		clock:               params.Clock,
		workersSem:          make(chan struct{}, params.Workers),
		stopChan:            make(chan struct{}),
	}
}

// Start begins the sweep task, publishing feedback to the given endpoints.
func (p *Poller) Start(ctx context.Context, endpoints []string) {
	p.startOnce.Do(func() {
		p.endpoints = endpoints
		go p.run(ctx)
	})
}

// Stop terminates the sweep and waits for in-flight serving to finish, or
// until the context is done.
func (p *Poller) Stop(ctx context.Context) {
	p.stopOnce.Do(func() {
		close(p.stopChan)

		waitGroupDone := make(chan struct{})
		go func() {
			p.waitGroup.Wait()
			close(waitGroupDone)
		}()

		select {
		case <-waitGroupDone:
		case <-ctx.Done():
		}
	})
}

func (p *Poller) run(ctx context.Context) {
	ticker := p.clock.Ticker(p.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.Sweep(ctx)
		case <-ctx.Done():
			log.Ctx(ctx).Debug().Msg("context cancelled, stopping payment poller")
			return
		case <-p.stopChan:
			log.Ctx(ctx).Debug().Msg("stop requested, stopping payment poller")
			return
		}
	}
}

// Sweep examines every pending job once. Exported so tests can drive the
// poller deterministically without the ticker.
func (p *Poller) Sweep(ctx context.Context) {
	jobs, err := p.store.GetJobs(ctx)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to list pending jobs")
		return
	}

	now := p.clock.Now()
	for i := range jobs {
		job := jobs[i]
		switch job.State {
		case store.PendingStateAwaitingPayment, store.PendingStateOptimisticallyServing:
			p.checkJob(ctx, job, now)
		default:
			// Paid and Serving jobs are owned by a serving worker
		}
	}
}

func (p *Poller) checkJob(ctx context.Context, job store.PendingJob, now time.Time) {
	// the hard timeout applies independently of backoff
	if now.Sub(job.CreatedAt) >= p.paymentTimeout {
		p.timeoutJob(ctx, job)
		return
	}

	// eligibility: one check per backoff window
	if !job.LastPolledAt.IsZero() && now.Sub(job.LastPolledAt) < p.backoff.BackoffDuration(job.PollAttempts) {
		return
	}

	status, err := p.checkSettlement(ctx, job.PaymentReference)

	// the attempt advances the backoff whatever the outcome
	if recordErr := p.store.RecordPoll(ctx, store.UpdatePollRequest{
		JobID:    job.Request.ID,
		PolledAt: now,
	}); recordErr != nil {
		log.Ctx(ctx).Debug().Err(recordErr).Str("jobID", job.Request.ID).Msg("failed to record poll")
	}

	if err != nil {
		log.Ctx(ctx).Warn().Err(err).
			Str("jobID", job.Request.ID).
			Int("pollAttempts", job.PollAttempts+1).
			Msg("settlement lookup failed, job still pending")
		return
	}

	switch {
	case status.HasProof():
		p.settleJob(ctx, job, status)
	case status.Expired:
		p.expireJob(ctx, job)
	case p.optimisticThreshold > 0 &&
		job.State == store.PendingStateAwaitingPayment &&
		job.PollAttempts+1 >= p.optimisticThreshold:
		p.serveOptimistically(ctx, job)
	}
}

// checkSettlement queries the provider, retrying transient failures a bounded
// number of times with a short fixed delay.
func (p *Poller) checkSettlement(ctx context.Context, paymentReference string) (payments.SettlementStatus, error) {
	var status payments.SettlementStatus
	var err error
	for attempt := 0; ; attempt++ {
		status, err = p.payments.CheckSettlement(ctx, paymentReference)
		if err == nil || !payments.IsTransient(err) || attempt >= p.transientRetries {
			return status, err
		}
		select {
		case <-p.clock.After(p.transientRetryDelay):
		case <-ctx.Done():
			return status, ctx.Err()
		}
	}
}

// settleJob handles a confirmed settlement. For a job already served
// optimistically this is an idempotent cleanup; otherwise the job moves to
// Paid and a serving worker picks it up.
func (p *Poller) settleJob(ctx context.Context, job store.PendingJob, status payments.SettlementStatus) {
	if job.State == store.PendingStateOptimisticallyServing {
		if !job.OptimisticallyProcessed {
			// serve still in flight; the settlement needs no action now
			return
		}
		if err := p.store.DeleteJob(ctx, job.Request.ID); err != nil {
			log.Ctx(ctx).Error().Err(err).Str("jobID", job.Request.ID).Msg("failed to remove settled job")
			return
		}
		log.Ctx(ctx).Info().
			Str("jobID", job.Request.ID).
			Uint64("settledAmount", status.SettledAmount).
			Msg("late settlement confirmed for optimistically served job")
		return
	}

	err := p.store.UpdateJobState(ctx, store.UpdateJobStateRequest{
		JobID:         job.Request.ID,
		NewState:      store.PendingStatePaid,
		ExpectedState: store.PendingStateAwaitingPayment,
		Comment:       "payment settled",
	})
	if err != nil {
		// another sweep or delivery won the transition
		log.Ctx(ctx).Debug().Err(err).Str("jobID", job.Request.ID).Msg("job already transitioned")
		return
	}
	log.Ctx(ctx).Info().Str("jobID", job.Request.ID).Msg("payment confirmed")
	p.dispatchServe(ctx, job.Request.ID, store.PendingStatePaid, store.PendingStateServing, false)
}

func (p *Poller) serveOptimistically(ctx context.Context, job store.PendingJob) {
	err := p.store.UpdateJobState(ctx, store.UpdateJobStateRequest{
		JobID:         job.Request.ID,
		NewState:      store.PendingStateOptimisticallyServing,
		ExpectedState: store.PendingStateAwaitingPayment,
		Comment:       fmt.Sprintf("optimistic threshold of %d polls reached", p.optimisticThreshold),
	})
	if err != nil {
		log.Ctx(ctx).Debug().Err(err).Str("jobID", job.Request.ID).Msg("job already transitioned")
		return
	}
	log.Ctx(ctx).Info().
		Str("jobID", job.Request.ID).
		Int("pollAttempts", job.PollAttempts+1).
		Msg("serving job ahead of settlement confirmation")
	p.dispatchServe(ctx, job.Request.ID, store.PendingStateUndefined, store.PendingStateUndefined, true)
}

// dispatchServe hands the job to a serving worker. The conditional transition
// into Serving happened before dispatch, so no two workers serve one job.
func (p *Poller) dispatchServe(ctx context.Context, jobID string, fromState, toState store.PendingState, optimistic bool) {
	select {
	case p.workersSem <- struct{}{}:
	case <-p.stopChan:
		return
	case <-ctx.Done():
		return
	}
	p.waitGroup.Add(1)

	go func() {
		defer p.waitGroup.Done()
		defer func() { <-p.workersSem }()

		if toState != store.PendingStateUndefined {
			err := p.store.UpdateJobState(ctx, store.UpdateJobStateRequest{
				JobID:         jobID,
				NewState:      toState,
				ExpectedState: fromState,
				Comment:       "serving",
			})
			if err != nil {
				log.Ctx(ctx).Debug().Err(err).Str("jobID", jobID).Msg("job no longer eligible for serving")
				return
			}
		}
		if err := p.servicer.Serve(ctx, jobID, p.endpoints, optimistic); err != nil {
			log.Ctx(ctx).Error().Err(err).Str("jobID", jobID).Msg("serving job failed")
		}
	}()
}

// expireJob handles a provider-reported invoice expiry before payment.
func (p *Poller) expireJob(ctx context.Context, job store.PendingJob) {
	if job.State == store.PendingStateOptimisticallyServing {
		p.abandonJob(ctx, job, "invoice expired after optimistic serve")
		return
	}
	log.Ctx(ctx).Info().Str("jobID", job.Request.ID).Msg("invoice expired before payment")
	p.terminateUnpaid(ctx, job, "expired: invoice expired before payment was received")
}

// timeoutJob handles a job whose total pending age exceeded the payment
// timeout.
func (p *Poller) timeoutJob(ctx context.Context, job store.PendingJob) {
	if job.State == store.PendingStateOptimisticallyServing {
		p.abandonJob(ctx, job, "payment never confirmed before timeout")
		return
	}
	log.Ctx(ctx).Info().
		Str("jobID", job.Request.ID).
		Dur("age", p.clock.Now().Sub(job.CreatedAt)).
		Msg("timed out waiting for payment")
	p.terminateUnpaid(ctx, job, "timed out: payment was not received in time")
}

// abandonJob cleans up an optimistically served job whose payment never
// arrived. The result was already delivered; there is no refund mechanism,
// so this is logged as its own outcome, distinct from normal completion.
func (p *Poller) abandonJob(ctx context.Context, job store.PendingJob, reason string) {
	log.Ctx(ctx).Warn().
		Str("jobID", job.Request.ID).
		Uint64("priceUnits", job.PriceUnits).
		Str("reason", reason).
		Msg("abandoning optimistically served job without payment")
	if err := p.store.DeleteJob(ctx, job.Request.ID); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("jobID", job.Request.ID).Msg("failed to remove abandoned job")
	}
}

// terminateUnpaid publishes error feedback explaining why the job ended and
// removes it. No JobResult is ever published for such a job.
func (p *Poller) terminateUnpaid(ctx context.Context, job store.PendingJob, detail string) {
	feedback, err := codec.BuildFeedbackEvent(models.JobFeedback{
		JobID:        job.Request.ID,
		ProcessorKey: p.processorKey,
		SubmitterKey: job.Request.SubmitterKey,
		Status:       models.JobStatusError,
		Detail:       detail,
	})
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("jobID", job.Request.ID).Msg("failed to build error feedback")
	} else if _, _, err := p.publisher.Publish(ctx, feedback, p.endpoints); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("jobID", job.Request.ID).Msg("failed to publish error feedback")
	}
	if err := p.store.DeleteJob(ctx, job.Request.ID); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("jobID", job.Request.ID).Msg("failed to remove terminated job")
	}
}
