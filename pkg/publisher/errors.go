package publisher

import (
	"fmt"
	"strings"

	"github.com/dvm-project/dvmkit/pkg/eventbus"
)

// ErrAllEndpointsRejected is returned when no endpoint accepted the event
// within the attempt budget.
type ErrAllEndpointsRejected struct {
	Outcomes []eventbus.EndpointOutcome
}

func NewErrAllEndpointsRejected(outcomes []eventbus.EndpointOutcome) ErrAllEndpointsRejected {
	return ErrAllEndpointsRejected{Outcomes: outcomes}
}

func (e ErrAllEndpointsRejected) Error() string {
	reasons := make([]string, 0, len(e.Outcomes))
	for _, outcome := range e.Outcomes {
		switch {
		case outcome.Err != nil:
			reasons = append(reasons, fmt.Sprintf("%s: %v", outcome.Endpoint, outcome.Err))
		case outcome.Reason != "":
			reasons = append(reasons, fmt.Sprintf("%s: %s", outcome.Endpoint, outcome.Reason))
		default:
			reasons = append(reasons, outcome.Endpoint+": rejected")
		}
	}
	return "no endpoint accepted the event: " + strings.Join(reasons, "; ")
}
