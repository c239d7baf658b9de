package eventbus

import (
	"github.com/dvm-project/dvmkit/pkg/models"
	"golang.org/x/exp/slices"
)

// Filter selects events by kind, author and correlation tag. Empty fields
// match everything, so the zero Filter matches every event.
type Filter struct {
	// Kinds restricts matches to the listed event kinds.
	Kinds []int
	// Authors restricts matches to events published by the listed identities.
	Authors []string
	// CorrelationIDs restricts matches to events whose correlation tag
	// references one of the listed job request IDs.
	CorrelationIDs []string
}

// Matches reports whether the event satisfies every populated field.
func (f Filter) Matches(event *models.Event) bool {
	if len(f.Kinds) > 0 && !slices.Contains(f.Kinds, event.Kind) {
		return false
	}
	if len(f.Authors) > 0 && !slices.Contains(f.Authors, event.PubKey) {
		return false
	}
	if len(f.CorrelationIDs) > 0 {
		correlation, ok := event.CorrelationID()
		if !ok || !slices.Contains(f.CorrelationIDs, correlation) {
			return false
		}
	}
	return true
}

// MatchesAny reports whether any filter clause matches the event. An empty
// clause list matches nothing: a subscription with no filters is a mistake,
// not a firehose.
func MatchesAny(filters []Filter, event *models.Event) bool {
	for _, f := range filters {
		if f.Matches(event) {
			return true
		}
	}
	return false
}
