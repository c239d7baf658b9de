// Package codec builds and parses the tagged status and result events
// exchanged between the submitter and processor roles. All constructors
// enforce the presence of the job correlation tag at build time.
package codec

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/dvm-project/dvmkit/pkg/models"
)

const usageTag = "usage"

// BuildRequestEvent renders a JobRequest as an unsealed event. The event ID
// (and thus the request's correlation id) is assigned when the event is
// sealed at publish time.
func BuildRequestEvent(request models.JobRequest) (*models.Event, error) {
	if !models.IsJobRequestKind(request.PayloadKind) {
		return nil, NewErrUnexpectedKind("job request", request.PayloadKind)
	}
	event := models.NewEvent(request.SubmitterKey, request.PayloadKind, request.Input)
	if request.ProcessorKeyHint != "" {
		event.AppendTag(models.TagTarget, request.ProcessorKeyHint)
	}
	if request.Encrypted {
		event.AppendTag(models.TagEncrypted, "true")
	}
	return event, nil
}

// ParseRequestEvent decodes a job request event.
func ParseRequestEvent(event *models.Event) (models.JobRequest, error) {
	if !models.IsJobRequestKind(event.Kind) {
		return models.JobRequest{}, NewErrUnexpectedKind("job request", event.Kind)
	}
	request := models.JobRequest{
		ID:           event.ID,
		SubmitterKey: event.PubKey,
		PayloadKind:  event.Kind,
		Input:        event.Content,
	}
	if target, ok := event.Tag(models.TagTarget); ok {
		request.ProcessorKeyHint = target
	}
	if _, ok := event.Tag(models.TagEncrypted); ok {
		request.Encrypted = true
	}
	return request, nil
}

// BuildFeedbackEvent renders a JobFeedback as an unsealed event.
func BuildFeedbackEvent(feedback models.JobFeedback) (*models.Event, error) {
	if feedback.JobID == "" {
		return nil, NewErrMissingCorrelation(models.KindJobFeedback)
	}
	if !feedback.Status.IsValid() {
		return nil, NewErrInvalidStatus(string(feedback.Status))
	}

	event := models.NewEvent(feedback.ProcessorKey, models.KindJobFeedback, feedback.Detail)
	event.AppendTag(models.TagCorrelation, feedback.JobID)
	if feedback.SubmitterKey != "" {
		event.AppendTag(models.TagTarget, feedback.SubmitterKey)
	}
	event.AppendTag(models.TagStatus, string(feedback.Status))
	if feedback.Status == models.JobStatusPaymentRequired {
		event.AppendTag(models.TagAmount, strconv.FormatUint(feedback.AmountUnits, 10), feedback.Invoice)
	}
	return event, nil
}

// ParseFeedbackEvent decodes a feedback event, rejecting events that violate
// the correlation invariant.
func ParseFeedbackEvent(event *models.Event) (models.JobFeedback, error) {
	if event.Kind != models.KindJobFeedback {
		return models.JobFeedback{}, NewErrUnexpectedKind("job feedback", event.Kind)
	}
	jobID, ok := event.CorrelationID()
	if !ok {
		return models.JobFeedback{}, NewErrMissingCorrelation(event.Kind)
	}
	statusString, _ := event.Tag(models.TagStatus)
	status := models.JobStatus(statusString)
	if !status.IsValid() {
		return models.JobFeedback{}, NewErrInvalidStatus(statusString)
	}

	feedback := models.JobFeedback{
		JobID:        jobID,
		ProcessorKey: event.PubKey,
		Status:       status,
		Detail:       event.Content,
	}
	if target, ok := event.Tag(models.TagTarget); ok {
		feedback.SubmitterKey = target
	}
	if amount := event.TagValues(models.TagAmount); len(amount) > 0 {
		units, err := strconv.ParseUint(strings.TrimSpace(amount[0]), 10, 64)
		if err != nil {
			return models.JobFeedback{}, fmt.Errorf("parsing feedback amount %q: %w", amount[0], err)
		}
		feedback.AmountUnits = units
		if len(amount) > 1 {
			feedback.Invoice = amount[1]
		}
	}
	return feedback, nil
}

// BuildResultEvent renders a JobResult as an unsealed event. The result kind
// is derived from the originating request kind.
func BuildResultEvent(result models.JobResult, requestKind int) (*models.Event, error) {
	if result.JobID == "" {
		return nil, NewErrMissingCorrelation(models.ResultKind(requestKind))
	}
	if !models.IsJobRequestKind(requestKind) {
		return nil, NewErrUnexpectedKind("job request", requestKind)
	}

	event := models.NewEvent(result.ProcessorKey, models.ResultKind(requestKind), result.Output)
	event.AppendTag(models.TagCorrelation, result.JobID)
	if result.SubmitterKey != "" {
		event.AppendTag(models.TagTarget, result.SubmitterKey)
	}
	if result.Encrypted {
		event.AppendTag(models.TagEncrypted, "true")
	}
	if result.Usage != nil {
		usage, err := json.Marshal(result.Usage)
		if err != nil {
			return nil, fmt.Errorf("marshalling usage meta: %w", err)
		}
		event.AppendTag(usageTag, string(usage))
	}
	return event, nil
}

// ParseResultEvent decodes a result event.
func ParseResultEvent(event *models.Event) (models.JobResult, error) {
	if !models.IsJobResultKind(event.Kind) {
		return models.JobResult{}, NewErrUnexpectedKind("job result", event.Kind)
	}
	jobID, ok := event.CorrelationID()
	if !ok {
		return models.JobResult{}, NewErrMissingCorrelation(event.Kind)
	}

	result := models.JobResult{
		JobID:        jobID,
		ProcessorKey: event.PubKey,
		Output:       event.Content,
	}
	if target, ok := event.Tag(models.TagTarget); ok {
		result.SubmitterKey = target
	}
	if _, ok := event.Tag(models.TagEncrypted); ok {
		result.Encrypted = true
	}
	if usage, ok := event.Tag(usageTag); ok {
		var meta models.UsageMeta
		if err := json.Unmarshal([]byte(usage), &meta); err != nil {
			return models.JobResult{}, fmt.Errorf("unmarshalling usage meta: %w", err)
		}
		result.Usage = &meta
	}
	return result, nil
}
