package analysis

import (
	"context"
	"fmt"

	"github.com/basket/sentinel/internal/settings"
)

// NoopInstantiator is the default production Instantiator when no real
// inference runtime is configured: every Get fails, which the Analysis
// Engine treats as "heuristics only" rather than a fatal error. A real ONNX
// (or HTTP sidecar) runtime is wired in by swapping this out, per the
// Classifier Cache's contract.
type NoopInstantiator struct{}

func (NoopInstantiator) Instantiate(ctx context.Context, def settings.ModelDef) (InferenceRunner, error) {
	return nil, fmt.Errorf("analysis: no inference runtime configured for model %q", def.ID)
}
