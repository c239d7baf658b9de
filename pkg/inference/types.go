//go:generate mockgen --source types.go --destination mocks.go --package inference
package inference

import (
	"context"

	"github.com/dvm-project/dvmkit/pkg/models"
)

// RunParams tune one inference invocation.
type RunParams struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// Output is the decoded result of an inference run.
type Output struct {
	Text  string
	Usage models.UsageMeta
}

// Engine is the language-model invocation capability. Implementations may be
// local or remote; failures are processor-local and reported to the
// submitter as error feedback, never as protocol failures.
type Engine interface {
	Run(ctx context.Context, input string, params RunParams) (Output, error)
}
