package submitter

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"

	"github.com/dvm-project/dvmkit/pkg/codec"
	"github.com/dvm-project/dvmkit/pkg/models"
	"github.com/dvm-project/dvmkit/pkg/payments"
	"github.com/dvm-project/dvmkit/pkg/sealer"
	"github.com/dvm-project/dvmkit/pkg/subscription"
)

// Update is one observable change in a job's lifecycle. Terminal updates
// carry either the result or a failure detail; the Detail strings keep the
// three failure families apart: provider rejection, payment failure and
// timeout are different problems with different fixes.
type Update struct {
	State JobState
	// Detail is a human-readable note, set on quotes, approvals and
	// terminal failures.
	Detail string
	// AmountUnits is the quoted price, populated from AwaitingPayment on.
	AmountUnits uint64
	// RequiresApproval is set when the quote exceeded the auto-pay ceiling
	// and the job is holding for an explicit Approve call.
	RequiresApproval bool
	// Result is set on the Completed update.
	Result *models.JobResult
}

// Job is a single in-flight submission. All lifecycle work happens on one
// goroutine: subscription deliveries, approval, timeout and payment calls are
// serialized through the actor loop, so there is no shared mutable state.
type Job struct {
	id string

	events  chan *models.Event
	approve chan struct{}
	abort   chan struct{}
	updates chan Update

	sub *subscription.Correlated
}

// ID returns the job correlation id assigned at publish time.
func (j *Job) ID() string {
	return j.id
}

// Updates delivers lifecycle updates in order. The channel closes after the
// terminal update.
func (j *Job) Updates() <-chan Update {
	return j.updates
}

// Approve releases a job holding for approval of an over-ceiling quote.
func (j *Job) Approve() {
	select {
	case j.approve <- struct{}{}:
	default:
	}
}

// Cancel abandons the job locally. No protocol message is sent; the
// processor cleans up independently through its own payment timeout.
func (j *Job) Cancel() {
	select {
	case j.abort <- struct{}{}:
	default:
	}
}

// Wait consumes updates until the job reaches a terminal state.
func (j *Job) Wait(ctx context.Context) (Update, error) {
	var last Update
	for {
		select {
		case update, ok := <-j.updates:
			if !ok {
				return last, nil
			}
			last = update
			if update.State.IsTerminal() {
				return update, nil
			}
		case <-ctx.Done():
			j.Cancel()
			return last, ctx.Err()
		}
	}
}

// jobActorParams is everything the actor loop needs, passed at spawn time
// rather than captured from the submitter, so a reconfigured submitter never
// leaks stale dependencies into running jobs.
type jobActorParams struct {
	payments          payments.Provider
	sealer            sealer.Sealer
	clock             clock.Clock
	autoPayCeiling    uint64
	maxFeeUnits       uint64
	responseTimeout   time.Duration
	expectedProcessor string
}

func (j *Job) run(ctx context.Context, params jobActorParams) {
	defer close(j.updates)
	defer j.sub.Close()

	state := JobStateRequested
	expectedProcessor := params.expectedProcessor
	var invoice string
	var amount uint64
	paidFromOurSide := false
	holdingForApproval := false

	timeout := params.clock.Timer(params.responseTimeout)
	defer timeout.Stop()

	emit := func(update Update) {
		update.AmountUnits = amount
		select {
		case j.updates <- update:
		case <-ctx.Done():
		}
	}

	fail := func(detail string) {
		state = JobStateFailed
		emit(Update{State: state, Detail: detail})
	}

	pay := func() {
		state = JobStatePaying
		emit(Update{State: state})
		result, err := params.payments.PayInvoice(ctx, invoice, params.maxFeeUnits)
		if err != nil {
			fail("payment failed: " + err.Error())
			return
		}
		// a wallet-layer "pending" is not a protocol error: the payment is
		// in flight and the processor's poller will observe the settlement
		paidFromOurSide = true
		state = JobStateAwaitingPayment
		emit(Update{State: state, Detail: fmt.Sprintf("paid (settled=%v), awaiting result", result.Settled)})
	}

	for !state.IsTerminal() {
		select {
		case event := <-j.events:
			if expectedProcessor != "" && event.PubKey != expectedProcessor {
				log.Ctx(ctx).Debug().
					Str("jobID", j.id).
					Str("publisher", event.PubKey).
					Msg("dropping event from unexpected processor identity")
				continue
			}

			switch {
			case event.Kind == models.KindJobFeedback:
				feedback, err := codec.ParseFeedbackEvent(event)
				if err != nil {
					log.Ctx(ctx).Debug().Err(err).Str("jobID", j.id).Msg("dropping malformed feedback event")
					continue
				}
				if expectedProcessor == "" {
					// lock onto the first identity that answers
					expectedProcessor = feedback.ProcessorKey
				}

				switch feedback.Status {
				case models.JobStatusPaymentRequired:
					if paidFromOurSide || invoice != "" {
						// replayed or duplicate quote
						continue
					}
					invoice = feedback.Invoice
					amount = feedback.AmountUnits
					state = JobStateAwaitingPayment
					if amount <= params.autoPayCeiling {
						emit(Update{State: state, Detail: "quote within auto-pay ceiling"})
						pay()
					} else {
						holdingForApproval = true
						emit(Update{
							State:            state,
							Detail:           "quote exceeds auto-pay ceiling, approval required",
							RequiresApproval: true,
						})
					}
				case models.JobStatusProcessing:
					emit(Update{State: state, Detail: "processor is serving the job"})
				case models.JobStatusError:
					state = JobStateFailed
					detail := feedback.Detail
					if detail == "" {
						detail = "provider rejected the job"
					}
					emit(Update{State: state, Detail: "provider reported failure: " + detail})
				case models.JobStatusSuccess:
					// informational; completion is driven by the result event
				}

			case models.IsJobResultKind(event.Kind):
				result, err := codec.ParseResultEvent(event)
				if err != nil {
					log.Ctx(ctx).Debug().Err(err).Str("jobID", j.id).Msg("dropping malformed result event")
					continue
				}
				if result.Encrypted {
					output, err := params.sealer.Decrypt(result.Output, result.ProcessorKey)
					if err != nil {
						fail("decrypting result failed: " + err.Error())
						continue
					}
					result.Output = output
					result.Encrypted = false
				}
				// a result with no preceding payment-required is legal: a
				// processor may serve for free and skip feedback entirely
				state = JobStateCompleted
				emit(Update{State: state, Result: &result})
			}

		case <-j.approve:
			if holdingForApproval && state == JobStateAwaitingPayment {
				holdingForApproval = false
				pay()
			}

		case <-timeout.C:
			if state == JobStateRequested || state == JobStateAwaitingPayment {
				state = JobStateTimedOut
				emit(Update{State: state, Detail: "timed out waiting for response"})
			}

		case <-j.abort:
			log.Ctx(ctx).Debug().Str("jobID", j.id).Msg("job cancelled by caller")
			return

		case <-ctx.Done():
			return
		}
	}
}
