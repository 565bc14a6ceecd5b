package running

import (
	"benchrun/pkg/metrics"
	"benchrun/pkg/models"
)

// contain runs fn and turns a declaration error into a placeholder built by
// wrap. The error message goes to the diagnostic sink once. Any other error
// is returned as is.
func contain[T any](r *Runner, shape string, fn func() (T, error), wrap func(*models.Summary) T) (T, bool, error) {
	v, err := fn()
	if err == nil {
		return v, false, nil
	}

	declErr, ok := models.AsDeclarationError(err)
	if !ok {
		var zero T
		return zero, false, err
	}

	msg := declErr.Error()
	r.diagnostics().Error(msg)
	metrics.DeclarationErrors.WithLabelValues(shape).Inc()
	return wrap(models.NothingToRun(msg, "", "")), true, nil
}

func asSingle(s *models.Summary) *models.Summary { return s }

func asBatch(s *models.Summary) []*models.Summary { return []*models.Summary{s} }
