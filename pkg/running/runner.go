// Package running is the entry surface for benchmark runs. Every entry point
// holds the resolution guard while it converts and executes its target,
// reports invalid targets as placeholder summaries instead of errors, and
// refuses source-based targets on hosts that cannot compile them.
package running

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"benchrun/pkg/converter"
	"benchrun/pkg/executor"
	"benchrun/pkg/host"
	"benchrun/pkg/logger"
	"benchrun/pkg/metrics"
	"benchrun/pkg/models"
	tracing "benchrun/pkg/observability"
	"benchrun/pkg/resolution"
	"benchrun/pkg/runconfig"
)

// Runner dispatches benchmark targets to an execution engine.
type Runner struct {
	converter  Converter
	engine     Engine
	enumerator Enumerator
	caps       host.Capabilities
	guard      *resolution.Guard
	sink       *zap.Logger
}

// Option configures a Runner.
type Option func(*Runner)

func WithConverter(c Converter) Option { return func(r *Runner) { r.converter = c } }

func WithEngine(e Engine) Option { return func(r *Runner) { r.engine = e } }

func WithEnumerator(e Enumerator) Option { return func(r *Runner) { r.enumerator = e } }

func WithCapabilities(c host.Capabilities) Option { return func(r *Runner) { r.caps = c } }

// WithGuard replaces the process-wide resolution guard. Runners sharing a
// resolver must share its guard.
func WithGuard(g *resolution.Guard) Option { return func(r *Runner) { r.guard = g } }

// WithDiagnosticSink sets where contained declaration errors are logged.
// The global logger is used otherwise.
func WithDiagnosticSink(l *zap.Logger) Option { return func(r *Runner) { r.sink = l } }

// New creates a runner. Collaborators not set by an option default to the
// converter and engine in this module, resolution.DefaultGuard and a host
// toolchain probe.
func New(opts ...Option) *Runner {
	r := &Runner{}
	for _, opt := range opts {
		opt(r)
	}
	if r.guard == nil {
		r.guard = resolution.DefaultGuard
	}
	if r.converter == nil {
		r.converter = converter.New(converter.WithResolver(r.guard.Resolver()))
	}
	if r.engine == nil {
		r.engine = executor.NewEngine()
	}
	if r.enumerator == nil {
		r.enumerator = converter.Enumerator{}
	}
	if r.caps == nil {
		r.caps = host.NewDetector()
	}
	return r
}

// Run benchmarks the type T.
func Run[T any](ctx context.Context, r *Runner, cfg *runconfig.Config, args ...string) (*models.Summary, error) {
	return r.RunType(ctx, converter.Describe[T](), cfg, args...)
}

// RunType benchmarks every benchmark method of t. A type without benchmark
// methods yields a nil summary.
func (r *Runner) RunType(ctx context.Context, t models.TypeDescriptor, cfg *runconfig.Config, args ...string) (*models.Summary, error) {
	return r.runOne(ctx, byType{t: t}, cfg, args)
}

// RunMethods benchmarks only the named methods of t.
func (r *Runner) RunMethods(ctx context.Context, t models.TypeDescriptor, methods []string, cfg *runconfig.Config, args ...string) (*models.Summary, error) {
	return r.runOne(ctx, byTypeAndMethods{t: t, methods: methods}, cfg, args)
}

// RunModule benchmarks every runnable type of m, in declaration order.
func (r *Runner) RunModule(ctx context.Context, m models.Module, cfg *runconfig.Config, args ...string) ([]*models.Summary, error) {
	return r.runBatch(ctx, byModule{m: m}, cfg, args)
}

// RunURL downloads Go benchmark source and runs it. It fails with
// models.ErrUnsupported on hosts without a Go toolchain.
func (r *Runner) RunURL(ctx context.Context, url string, cfg *runconfig.Config, args ...string) (*models.Summary, error) {
	return r.runOne(ctx, byURL{url: url}, cfg, args)
}

// RunSource compiles and runs Go benchmark source. It fails with
// models.ErrUnsupported on hosts without a Go toolchain.
func (r *Runner) RunSource(ctx context.Context, text string, cfg *runconfig.Config, args ...string) (*models.Summary, error) {
	return r.runOne(ctx, bySource{text: text}, cfg, args)
}

// RunDescriptor executes an already converted descriptor.
func (r *Runner) RunDescriptor(ctx context.Context, d models.RunDescriptor) (*models.Summary, error) {
	return r.runOne(ctx, byDescriptors{ds: []models.RunDescriptor{d}}, nil, nil)
}

// RunDescriptors executes already converted descriptors in order.
func (r *Runner) RunDescriptors(ctx context.Context, ds []models.RunDescriptor) ([]*models.Summary, error) {
	return r.runBatch(ctx, byDescriptors{ds: ds}, nil, nil)
}

func (r *Runner) runOne(ctx context.Context, tgt target, cfg *runconfig.Config, args []string) (*models.Summary, error) {
	ctx, span := tracing.StartSpan(ctx, "running."+tgt.shape())
	defer span.End()

	token := r.guard.Acquire()
	defer token.Release()

	s, contained, err := contain(r, tgt.shape(), func() (*models.Summary, error) {
		ds, err := r.normalize(ctx, tgt, cfg, args)
		if err != nil {
			return nil, err
		}
		results, err := r.dispatch(ctx, ds)
		if err != nil {
			return nil, err
		}
		return single(results)
	}, asSingle)

	r.record(ctx, tgt.shape(), s == nil, contained, err)
	return s, err
}

func (r *Runner) runBatch(ctx context.Context, tgt target, cfg *runconfig.Config, args []string) ([]*models.Summary, error) {
	ctx, span := tracing.StartSpan(ctx, "running."+tgt.shape())
	defer span.End()

	token := r.guard.Acquire()
	defer token.Release()

	results, contained, err := contain(r, tgt.shape(), func() ([]*models.Summary, error) {
		ds, err := r.normalize(ctx, tgt, cfg, args)
		if err != nil {
			return nil, err
		}
		return r.dispatch(ctx, ds)
	}, asBatch)

	span.SetAttributes(attribute.Int("summaries", len(results)))
	r.record(ctx, tgt.shape(), len(results) == 0, contained, err)
	return results, err
}

func (r *Runner) record(ctx context.Context, shape string, empty, contained bool, err error) {
	outcome := "succeeded"
	switch {
	case errors.Is(err, models.ErrUnsupported):
		outcome = "unsupported"
	case err != nil:
		outcome = "failed"
		tracing.SetError(ctx, err)
	case contained:
		outcome = "invalid"
		tracing.AddEvent(ctx, "declaration error contained")
	case empty:
		outcome = "empty"
	}
	metrics.RecordRun(shape, outcome)
}

func (r *Runner) diagnostics() *zap.Logger {
	if r.sink != nil {
		return r.sink
	}
	return logger.Get()
}
