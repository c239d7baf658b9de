package stamper

import (
	"context"

	"github.com/dvm-project/dvmkit/pkg/models"
)

// Noop is a Stamper that returns the event unchanged. Useful when every
// configured endpoint admits events without proof-of-work.
type Noop struct{}

func NewNoop() *Noop {
	return &Noop{}
}

func (n *Noop) RaiseDifficulty(ctx context.Context, event *models.Event, targetDifficulty int) (*models.Event, error) {
	return event, nil
}

// compile-time interface check
var _ Stamper = (*Noop)(nil)
