package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSealIsDeterministic(t *testing.T) {
	event := NewEvent("alice", KindJobRequestTextGeneration, "hello")
	event.AppendTag(TagTarget, "bob")

	first := event.Seal()
	second := event.Seal()
	require.Equal(t, first, second)
	require.Len(t, first, 64)
	require.True(t, event.Verify())
}

func TestSealChangesWithContent(t *testing.T) {
	event := NewEvent("alice", KindJobRequestTextGeneration, "hello")
	sealed := event.Seal()

	event.AppendTag(TagNonce, "42", "8")
	require.Equal(t, sealed, event.ID)
	require.False(t, event.Verify())
	require.NotEqual(t, sealed, event.Seal())
}

func TestVerifyRejectsUnsealed(t *testing.T) {
	event := NewEvent("alice", KindJobRequestTextGeneration, "hello")
	require.False(t, event.Verify())
}

func TestDifficulty(t *testing.T) {
	testcases := []struct {
		id       string
		expected int
	}{
		{"", 0},
		{"not-hex", 0},
		{"ff00", 0},
		{"7f00", 1},
		{"0f00", 4},
		{"00ff", 8},
		{"002f", 10},
		{"0000000000", 40},
	}
	for _, tc := range testcases {
		event := &Event{ID: tc.id}
		require.Equal(t, tc.expected, event.Difficulty(), "id %q", tc.id)
	}
}

func TestTagAccessors(t *testing.T) {
	event := NewEvent("alice", KindJobFeedback, "")
	event.AppendTag(TagCorrelation, "job-1")
	event.AppendTag(TagAmount, "21", "lnbc21n1invoice")

	correlation, ok := event.CorrelationID()
	require.True(t, ok)
	require.Equal(t, "job-1", correlation)

	require.Equal(t, []string{"21", "lnbc21n1invoice"}, event.TagValues(TagAmount))

	_, ok = event.Tag(TagStatus)
	require.False(t, ok)
}

func TestKindRanges(t *testing.T) {
	require.True(t, IsJobRequestKind(KindJobRequestTextGeneration))
	require.False(t, IsJobRequestKind(KindJobFeedback))
	require.Equal(t, 6050, ResultKind(KindJobRequestTextGeneration))
	require.True(t, IsJobResultKind(ResultKind(KindJobRequestTextGeneration)))
	require.False(t, IsJobResultKind(KindJobRequestTextGeneration))
}
