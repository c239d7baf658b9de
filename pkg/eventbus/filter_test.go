package eventbus

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dvm-project/dvmkit/pkg/models"
)

func feedbackEvent(author, jobID string) *models.Event {
	event := models.NewEvent(author, models.KindJobFeedback, "")
	event.AppendTag(models.TagCorrelation, jobID)
	event.Seal()
	return event
}

func TestFilterMatches(t *testing.T) {
	event := feedbackEvent("processor-1", "job-1")

	require.True(t, Filter{}.Matches(event))
	require.True(t, Filter{Kinds: []int{models.KindJobFeedback}}.Matches(event))
	require.False(t, Filter{Kinds: []int{models.KindJobRequestTextGeneration}}.Matches(event))
	require.True(t, Filter{Authors: []string{"processor-1", "processor-2"}}.Matches(event))
	require.False(t, Filter{Authors: []string{"processor-2"}}.Matches(event))
	require.True(t, Filter{CorrelationIDs: []string{"job-1"}}.Matches(event))
	require.False(t, Filter{CorrelationIDs: []string{"job-2"}}.Matches(event))
}

func TestFilterCorrelationRequiresTag(t *testing.T) {
	event := models.NewEvent("processor-1", models.KindJobFeedback, "")
	event.Seal()
	require.False(t, Filter{CorrelationIDs: []string{"job-1"}}.Matches(event))
}

func TestMatchesAny(t *testing.T) {
	event := feedbackEvent("processor-1", "job-1")

	require.False(t, MatchesAny(nil, event))
	require.False(t, MatchesAny([]Filter{}, event))
	require.True(t, MatchesAny([]Filter{
		{Kinds: []int{models.KindJobRequestTextGeneration}},
		{Kinds: []int{models.KindJobFeedback}},
	}, event))
}
