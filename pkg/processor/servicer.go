package processor

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/dvm-project/dvmkit/pkg/codec"
	"github.com/dvm-project/dvmkit/pkg/inference"
	"github.com/dvm-project/dvmkit/pkg/models"
	"github.com/dvm-project/dvmkit/pkg/processor/store"
	"github.com/dvm-project/dvmkit/pkg/publisher"
	"github.com/dvm-project/dvmkit/pkg/sealer"
)

type ServicerParams struct {
	ProcessorKey string
	Store        store.Store
	Engine       inference.Engine
	Sealer       sealer.Sealer
	Publisher    *publisher.Publisher
	RunParams    inference.RunParams
}

// Servicer runs inference for a job and publishes the result. It is invoked
// by the payment poller once a job is paid or crosses the optimistic
// threshold; it never runs for a job that is merely awaiting payment.
type Servicer struct {
	processorKey string
	store        store.Store
	engine       inference.Engine
	sealer       sealer.Sealer
	publisher    *publisher.Publisher
	runParams    inference.RunParams
}

func NewServicer(params ServicerParams) *Servicer {
	if params.Sealer == nil {
		params.Sealer = sealer.NewPassthrough()
	}
	return &Servicer{
		processorKey: params.ProcessorKey,
		store:        params.Store,
		engine:       params.Engine,
		sealer:       params.Sealer,
		publisher:    params.Publisher,
		runParams:    params.RunParams,
	}
}

// Serve runs the job and publishes a result plus success feedback. For a paid
// job the pending entry is deleted on completion; an optimistically served
// job stays pending (flagged OptimisticallyProcessed) so the poller can keep
// watching for the late settlement.
func (s *Servicer) Serve(ctx context.Context, jobID string, endpoints []string, optimistic bool) error {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return errors.Wrapf(err, "loading job %s for serving", jobID)
	}

	s.publishFeedback(ctx, job, models.JobStatusProcessing, "", endpoints)

	input := job.Request.Input
	if job.Request.Encrypted {
		decrypted, err := s.sealer.Decrypt(input, job.Request.SubmitterKey)
		if err != nil {
			return s.failJob(ctx, job, errors.Wrap(err, "decrypting job input"), endpoints)
		}
		input = decrypted
	}

	output, err := s.engine.Run(ctx, input, s.runParams)
	if err != nil {
		return s.failJob(ctx, job, errors.Wrap(err, "running inference"), endpoints)
	}

	resultPayload := output.Text
	if job.Request.Encrypted {
		encrypted, err := s.sealer.Encrypt(resultPayload, job.Request.SubmitterKey)
		if err != nil {
			return s.failJob(ctx, job, errors.Wrap(err, "encrypting job result"), endpoints)
		}
		resultPayload = encrypted
	}

	resultEvent, err := codec.BuildResultEvent(models.JobResult{
		JobID:        job.Request.ID,
		ProcessorKey: s.processorKey,
		SubmitterKey: job.Request.SubmitterKey,
		Output:       resultPayload,
		Encrypted:    job.Request.Encrypted,
		Usage:        &output.Usage,
	}, job.Request.PayloadKind)
	if err != nil {
		return s.failJob(ctx, job, errors.Wrap(err, "building result event"), endpoints)
	}
	if _, _, err := s.publisher.Publish(ctx, resultEvent, endpoints); err != nil {
		return s.failJob(ctx, job, errors.Wrap(err, "publishing result"), endpoints)
	}

	s.publishFeedback(ctx, job, models.JobStatusSuccess, "", endpoints)

	if optimistic {
		// keep the pending entry so the poller can match the settlement
		// when it eventually lands, or report the job abandoned
		if err := s.store.MarkOptimisticallyProcessed(ctx, job.Request.ID); err != nil {
			return errors.Wrapf(err, "flagging optimistic serve of job %s", job.Request.ID)
		}
		log.Ctx(ctx).Info().Str("jobID", job.Request.ID).Msg("served job ahead of settlement confirmation")
		return nil
	}

	if err := s.store.DeleteJob(ctx, job.Request.ID); err != nil {
		return errors.Wrapf(err, "removing completed job %s", job.Request.ID)
	}
	log.Ctx(ctx).Info().Str("jobID", job.Request.ID).Msg("job completed")
	return nil
}

// failJob reports an inference-side failure to the submitter and removes the
// pending job. This is a processor-local failure, not a protocol error.
func (s *Servicer) failJob(ctx context.Context, job store.PendingJob, cause error, endpoints []string) error {
	log.Ctx(ctx).Error().Err(cause).Str("jobID", job.Request.ID).Msg("job failed")
	s.publishFeedback(ctx, job, models.JobStatusError, cause.Error(), endpoints)
	if err := s.store.DeleteJob(ctx, job.Request.ID); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("jobID", job.Request.ID).Msg("failed to remove failed job")
	}
	return cause
}

func (s *Servicer) publishFeedback(ctx context.Context, job store.PendingJob, status models.JobStatus, detail string, endpoints []string) {
	feedback, err := codec.BuildFeedbackEvent(models.JobFeedback{
		JobID:        job.Request.ID,
		ProcessorKey: s.processorKey,
		SubmitterKey: job.Request.SubmitterKey,
		Status:       status,
		Detail:       detail,
	})
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("jobID", job.Request.ID).Msg("failed to build feedback event")
		return
	}
	if _, _, err := s.publisher.Publish(ctx, feedback, endpoints); err != nil {
		log.Ctx(ctx).Warn().Err(err).
			Str("jobID", job.Request.ID).
			Str("status", string(status)).
			Msg("failed to publish feedback")
	}
}
