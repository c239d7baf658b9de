package processor

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/dvm-project/dvmkit/pkg/codec"
	"github.com/dvm-project/dvmkit/pkg/models"
	"github.com/dvm-project/dvmkit/pkg/payments"
	"github.com/dvm-project/dvmkit/pkg/processor/store"
	"github.com/dvm-project/dvmkit/pkg/publisher"
)

type HandlerParams struct {
	ProcessorKey string
	Store        store.Store
	Payments     payments.Provider
	Publisher    *publisher.Publisher
	Quoter       *Quoter
	Clock        clock.Clock
}

// Handler admits inbound job requests: it deduplicates by request id, quotes
// a price, requests an invoice, records the pending job and publishes the
// payment-required feedback.
type Handler struct {
	processorKey string
	store        store.Store
	payments     payments.Provider
	publisher    *publisher.Publisher
	quoter       *Quoter
	clock        clock.Clock

	// admitMu serializes admissions so the dedupe check and invoice issue
	// are atomic per request id. A duplicate delivery must be a no-op, not
	// a second invoice.
	admitMu sync.Mutex
}

func NewHandler(params HandlerParams) *Handler {
	if params.Clock == nil {
		params.Clock = clock.New()
	}
	return &Handler{
		processorKey: params.ProcessorKey,
		store:        params.Store,
		payments:     params.Payments,
		publisher:    params.Publisher,
		quoter:       params.Quoter,
		clock:        params.Clock,
	}
}

// HandleRequest admits one request event. Endpoints are the explicit relay
// set the resulting feedback is published to.
func (h *Handler) HandleRequest(ctx context.Context, event *models.Event, endpoints []string) error {
	request, err := codec.ParseRequestEvent(event)
	if err != nil {
		return errors.Wrap(err, "parsing job request")
	}

	h.admitMu.Lock()
	defer h.admitMu.Unlock()

	if _, err := h.store.GetJob(ctx, request.ID); err == nil {
		// duplicate delivery of an admitted request
		log.Ctx(ctx).Debug().Str("jobID", request.ID).Msg("ignoring duplicate job request")
		return nil
	}

	priceUnits := h.quoter.Quote(request)
	invoice, err := h.payments.CreateInvoice(ctx, priceUnits, "job "+request.ID)
	if err != nil {
		return errors.Wrapf(err, "creating invoice for job %s", request.ID)
	}

	job := store.PendingJob{
		Request:          request,
		Invoice:          invoice.Invoice,
		PaymentReference: invoice.PaymentReference,
		PriceUnits:       priceUnits,
		State:            store.PendingStateAwaitingPayment,
		CreatedAt:        h.clock.Now().UTC(),
	}
	if err := h.store.CreateJob(ctx, job); err != nil {
		var alreadyExists store.ErrJobAlreadyExists
		if errors.As(err, &alreadyExists) {
			log.Ctx(ctx).Debug().Str("jobID", request.ID).Msg("job admitted concurrently, dropping duplicate")
			return nil
		}
		return errors.Wrapf(err, "recording pending job %s", request.ID)
	}

	feedback, err := codec.BuildFeedbackEvent(models.JobFeedback{
		JobID:        request.ID,
		ProcessorKey: h.processorKey,
		SubmitterKey: request.SubmitterKey,
		Status:       models.JobStatusPaymentRequired,
		AmountUnits:  priceUnits,
		Invoice:      invoice.Invoice,
	})
	if err != nil {
		return errors.Wrap(err, "building payment-required feedback")
	}
	if _, _, err := h.publisher.Publish(ctx, feedback, endpoints); err != nil {
		// the job stays pending; the submitter will either learn the price
		// from another relay or time out on its side
		return errors.Wrapf(err, "publishing payment-required feedback for job %s", request.ID)
	}

	log.Ctx(ctx).Info().
		Str("jobID", request.ID).
		Uint64("priceUnits", priceUnits).
		Msg("admitted job, awaiting payment")
	return nil
}
