package inference

import (
	"context"
	"errors"
)

// EchoEngine returns its input, optionally failing, for tests and devstack.
type EchoEngine struct {
	// Prefix is prepended to the echoed input.
	Prefix string
	// FailWith, when set, makes every run fail with this message.
	FailWith string
}

func NewEchoEngine() *EchoEngine {
	return &EchoEngine{}
}

func (e *EchoEngine) Run(ctx context.Context, input string, params RunParams) (Output, error) {
	if e.FailWith != "" {
		return Output{}, errors.New(e.FailWith)
	}
	return Output{Text: e.Prefix + input}, nil
}

// compile-time interface check
var _ Engine = (*EchoEngine)(nil)
