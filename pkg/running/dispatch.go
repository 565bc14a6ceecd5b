package running

import (
	"context"
	"errors"

	"benchrun/pkg/models"
)

// ErrAmbiguousTarget is returned by the single-result entry points when a
// target expands to more than one summary.
var ErrAmbiguousTarget = errors.New("target produced more than one summary")

// dispatch hands ds to the engine. An empty batch never reaches it.
func (r *Runner) dispatch(ctx context.Context, ds []models.RunDescriptor) ([]*models.Summary, error) {
	if len(ds) == 0 {
		return []*models.Summary{}, nil
	}
	return r.engine.Execute(ctx, ds)
}

// single unwraps the result of a single-target call. No results means
// nothing was run.
func single(results []*models.Summary) (*models.Summary, error) {
	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return nil, ErrAmbiguousTarget
	}
}
