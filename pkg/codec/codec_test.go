package codec

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dvm-project/dvmkit/pkg/models"
)

func TestRequestEventRoundTrip(t *testing.T) {
	request := models.JobRequest{
		SubmitterKey:     "alice",
		ProcessorKeyHint: "bob",
		PayloadKind:      models.KindJobRequestTextGeneration,
		Input:            "ciphertext",
		Encrypted:        true,
	}
	event, err := BuildRequestEvent(request)
	require.NoError(t, err)
	event.Seal()

	parsed, err := ParseRequestEvent(event)
	require.NoError(t, err)
	require.Equal(t, event.ID, parsed.ID)
	require.Equal(t, "alice", parsed.SubmitterKey)
	require.Equal(t, "bob", parsed.ProcessorKeyHint)
	require.Equal(t, "ciphertext", parsed.Input)
	require.True(t, parsed.Encrypted)
}

func TestBuildRequestEventRejectsBadKind(t *testing.T) {
	_, err := BuildRequestEvent(models.JobRequest{
		SubmitterKey: "alice",
		PayloadKind:  models.KindJobFeedback,
	})
	require.Error(t, err)
	require.IsType(t, ErrUnexpectedKind{}, err)
}

func TestFeedbackEventCarriesQuote(t *testing.T) {
	event, err := BuildFeedbackEvent(models.JobFeedback{
		JobID:        "job-1",
		ProcessorKey: "bob",
		SubmitterKey: "alice",
		Status:       models.JobStatusPaymentRequired,
		AmountUnits:  21,
		Invoice:      "lnbc21n1invoice",
	})
	require.NoError(t, err)
	event.Seal()

	correlation, ok := event.CorrelationID()
	require.True(t, ok)
	require.Equal(t, "job-1", correlation)

	parsed, err := ParseFeedbackEvent(event)
	require.NoError(t, err)
	require.Equal(t, "job-1", parsed.JobID)
	require.Equal(t, "bob", parsed.ProcessorKey)
	require.Equal(t, models.JobStatusPaymentRequired, parsed.Status)
	require.EqualValues(t, 21, parsed.AmountUnits)
	require.Equal(t, "lnbc21n1invoice", parsed.Invoice)
}

func TestBuildFeedbackEventRequiresCorrelation(t *testing.T) {
	_, err := BuildFeedbackEvent(models.JobFeedback{
		ProcessorKey: "bob",
		Status:       models.JobStatusProcessing,
	})
	require.Error(t, err)
	require.IsType(t, ErrMissingCorrelation{}, err)
}

func TestBuildFeedbackEventRejectsUnknownStatus(t *testing.T) {
	_, err := BuildFeedbackEvent(models.JobFeedback{
		JobID:        "job-1",
		ProcessorKey: "bob",
		Status:       models.JobStatus("done-ish"),
	})
	require.Error(t, err)
	require.IsType(t, ErrInvalidStatus{}, err)
}

func TestParseFeedbackEventRejectsMissingCorrelation(t *testing.T) {
	event := models.NewEvent("bob", models.KindJobFeedback, "")
	event.AppendTag(models.TagStatus, string(models.JobStatusProcessing))
	event.Seal()

	_, err := ParseFeedbackEvent(event)
	require.Error(t, err)
	require.IsType(t, ErrMissingCorrelation{}, err)
}

func TestResultEventRoundTrip(t *testing.T) {
	event, err := BuildResultEvent(models.JobResult{
		JobID:        "job-1",
		ProcessorKey: "bob",
		SubmitterKey: "alice",
		Output:       "the answer",
		Usage:        &models.UsageMeta{PromptTokens: 12, CompletionTokens: 34},
	}, models.KindJobRequestTextGeneration)
	require.NoError(t, err)
	event.Seal()
	require.Equal(t, models.ResultKind(models.KindJobRequestTextGeneration), event.Kind)

	parsed, err := ParseResultEvent(event)
	require.NoError(t, err)
	require.Equal(t, "job-1", parsed.JobID)
	require.Equal(t, "the answer", parsed.Output)
	require.NotNil(t, parsed.Usage)
	require.Equal(t, 12, parsed.Usage.PromptTokens)
	require.Equal(t, 34, parsed.Usage.CompletionTokens)
}

func TestBuildResultEventRequiresCorrelation(t *testing.T) {
	_, err := BuildResultEvent(models.JobResult{
		ProcessorKey: "bob",
		Output:       "the answer",
	}, models.KindJobRequestTextGeneration)
	require.Error(t, err)
	require.IsType(t, ErrMissingCorrelation{}, err)
}
