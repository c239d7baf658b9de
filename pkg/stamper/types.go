//go:generate mockgen --source types.go --destination mocks.go --package stamper
package stamper

import (
	"context"

	"github.com/dvm-project/dvmkit/pkg/models"
)

// Stamper raises an event's admission proof to satisfy endpoint spam policy.
// Raising the proof recomputes the event ID, so the returned event is the
// same logical event under a new identifier.
type Stamper interface {
	RaiseDifficulty(ctx context.Context, event *models.Event, targetDifficulty int) (*models.Event, error)
}
