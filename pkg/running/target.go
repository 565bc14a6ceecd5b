package running

import (
	"context"
	"fmt"

	"benchrun/pkg/models"
	"benchrun/pkg/runconfig"
)

// target is one of the six shapes a caller can hand to the runner.
type target interface {
	shape() string
}

type byType struct{ t models.TypeDescriptor }

type byTypeAndMethods struct {
	t       models.TypeDescriptor
	methods []string
}

type byModule struct{ m models.Module }

type byURL struct{ url string }

type bySource struct{ text string }

type byDescriptors struct{ ds []models.RunDescriptor }

func (byType) shape() string           { return "type" }
func (byTypeAndMethods) shape() string { return "methods" }
func (byModule) shape() string         { return "module" }
func (byURL) shape() string            { return "url" }
func (bySource) shape() string         { return "source" }
func (byDescriptors) shape() string    { return "descriptors" }

// normalize converts tgt into descriptors. Descriptor order follows the
// module's type order; types with nothing to run are dropped.
func (r *Runner) normalize(ctx context.Context, tgt target, cfg *runconfig.Config, args []string) ([]models.RunDescriptor, error) {
	switch t := tgt.(type) {
	case byType:
		d, err := r.converter.TypeToDescriptor(ctx, t.t, cfg, args)
		return optional(d), err

	case byTypeAndMethods:
		d, err := r.converter.MethodsToDescriptor(ctx, t.t, t.methods, cfg, args)
		return optional(d), err

	case byModule:
		var ds []models.RunDescriptor
		for _, typ := range r.enumerator.RunnableTypes(t.m) {
			d, err := r.converter.TypeToDescriptor(ctx, typ, cfg, args)
			if err != nil {
				return nil, err
			}
			if d != nil {
				ds = append(ds, *d)
			}
		}
		return ds, nil

	case byURL:
		if err := r.checkDynamicSource(tgt); err != nil {
			return nil, err
		}
		return r.converter.URLToDescriptors(ctx, t.url, cfg, args)

	case bySource:
		if err := r.checkDynamicSource(tgt); err != nil {
			return nil, err
		}
		return r.converter.SourceToDescriptors(ctx, t.text, cfg, args)

	case byDescriptors:
		return t.ds, nil

	default:
		return nil, fmt.Errorf("unknown target shape %T", tgt)
	}
}

// checkDynamicSource fails before any fetch or compile work when the host
// cannot build source at run time.
func (r *Runner) checkDynamicSource(tgt target) error {
	if !r.caps.SupportsDynamicSourceCompilation() {
		return fmt.Errorf("run by %s: %w", tgt.shape(), models.ErrUnsupported)
	}
	return nil
}

func optional(d *models.RunDescriptor) []models.RunDescriptor {
	if d == nil {
		return nil
	}
	return []models.RunDescriptor{*d}
}
