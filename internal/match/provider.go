package match

import (
	"context"
	"fmt"

	"github.com/erazemk/najdeno/internal/model"
)

// Provider scores the similarity of two items on a single signal.
// Implementations return a value in [0, 100].
type Provider interface {
	Name() string
	Score(ctx context.Context, a, b model.Item) (float64, error)
}

// ProviderError reports a failed or timed out provider call. The scorer
// substitutes Neutral for the signal and keeps evaluating the candidate.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("similarity provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
