// Package converter turns benchmark targets (Go types, method subsets,
// modules, source text and URLs) into run descriptors.
//
// A target with nothing to benchmark yields a nil descriptor. A target that is
// declared wrongly yields a *models.DeclarationError. Anything else, such as a
// failed download or an unresolvable required module, is returned as a plain
// error.
package converter

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"benchrun/pkg/host"
	"benchrun/pkg/models"
	"benchrun/pkg/resolution"
	"benchrun/pkg/runconfig"
)

// Converter is the default conversion implementation.
type Converter struct {
	resolver *resolution.Resolver
	fetcher  *Fetcher
}

// Option configures a Converter.
type Option func(*Converter)

// WithResolver resolves required modules through r instead of resolution.Default.
func WithResolver(r *resolution.Resolver) Option {
	return func(c *Converter) { c.resolver = r }
}

// WithFetcher downloads URL targets through f.
func WithFetcher(f *Fetcher) Option {
	return func(c *Converter) { c.fetcher = f }
}

// New creates a converter.
func New(opts ...Option) *Converter {
	c := &Converter{}
	for _, opt := range opts {
		opt(c)
	}
	if c.resolver == nil {
		c.resolver = resolution.Default
	}
	if c.fetcher == nil {
		c.fetcher = NewFetcher(nil, nil)
	}
	return c
}

// TypeToDescriptor converts every benchmark method of t.
func (c *Converter) TypeToDescriptor(ctx context.Context, t models.TypeDescriptor, cfg *runconfig.Config, args []string) (*models.RunDescriptor, error) {
	opts, resolved, err := ParseArgs(args, cfg)
	if err != nil {
		return nil, err
	}
	if opts.Info {
		logInfo(ctx, resolved)
		return nil, nil
	}
	if err := checkType(t); err != nil {
		return nil, err
	}

	var selected []models.MethodDescriptor
	for _, m := range t.Methods {
		if !isBenchmarkName(m.Name) {
			continue
		}
		if err := checkBenchmark(t, m); err != nil {
			return nil, err
		}
		selected = append(selected, m)
	}
	return c.build(t, selected, resolved, opts)
}

// MethodsToDescriptor converts only the named methods of t. Every name must
// refer to an exported method with a benchmark signature; the Benchmark name
// prefix is not required.
func (c *Converter) MethodsToDescriptor(ctx context.Context, t models.TypeDescriptor, methods []string, cfg *runconfig.Config, args []string) (*models.RunDescriptor, error) {
	opts, resolved, err := ParseArgs(args, cfg)
	if err != nil {
		return nil, err
	}
	if opts.Info {
		logInfo(ctx, resolved)
		return nil, nil
	}
	if err := checkType(t); err != nil {
		return nil, err
	}

	selected := make([]models.MethodDescriptor, 0, len(methods))
	for _, name := range methods {
		m, ok := t.Method(name)
		if !ok {
			return nil, models.NewDeclarationError(t.FullName(), name, "method not found")
		}
		if err := checkBenchmark(t, m); err != nil {
			return nil, err
		}
		selected = append(selected, m)
	}
	return c.build(t, selected, resolved, opts)
}

// SourceToDescriptors parses text as a Go test file and returns one
// descriptor for its benchmark functions, or none if it declares none.
func (c *Converter) SourceToDescriptors(ctx context.Context, text string, cfg *runconfig.Config, args []string) ([]models.RunDescriptor, error) {
	return c.sourceToDescriptors(ctx, InlineOrigin, text, cfg, args)
}

// URLToDescriptors downloads rawURL and converts it like SourceToDescriptors.
func (c *Converter) URLToDescriptors(ctx context.Context, rawURL string, cfg *runconfig.Config, args []string) ([]models.RunDescriptor, error) {
	if _, _, err := ParseArgs(args, cfg); err != nil {
		return nil, err
	}
	text, err := c.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return c.sourceToDescriptors(ctx, rawURL, text, cfg, args)
}

func (c *Converter) sourceToDescriptors(ctx context.Context, origin, text string, cfg *runconfig.Config, args []string) ([]models.RunDescriptor, error) {
	opts, resolved, err := ParseArgs(args, cfg)
	if err != nil {
		return nil, err
	}
	if opts.Info {
		logInfo(ctx, resolved)
		return nil, nil
	}

	pkg, funcs, err := parseSource(origin, text)
	if err != nil {
		return nil, err
	}

	t := models.TypeDescriptor{Name: pkg, Methods: funcs}
	d, err := c.build(t, funcs, resolved, opts)
	if err != nil || d == nil {
		return nil, err
	}
	d.Source = &models.SourceUnit{Origin: origin, Text: text}
	return []models.RunDescriptor{*d}, nil
}

// build applies filters, resolves required modules and assembles the
// descriptor. No surviving benchmarks means nil.
func (c *Converter) build(t models.TypeDescriptor, methods []models.MethodDescriptor, cfg *runconfig.Config, opts Options) (*models.RunDescriptor, error) {
	target := t.FullName()
	benchmarks := make([]models.Benchmark, 0, len(methods))
	for _, m := range methods {
		if !matchesFilters(cfg.Filters, target, m.Name) {
			continue
		}
		benchmarks = append(benchmarks, models.Benchmark{
			Name:   m.Name,
			Target: target,
			TakesB: len(m.Params) == 1,
		})
	}
	if len(benchmarks) == 0 {
		return nil, nil
	}

	setup, err := checkHook(t, setupHook)
	if err != nil {
		return nil, err
	}
	cleanup, err := checkHook(t, cleanupHook)
	if err != nil {
		return nil, err
	}

	if _, err := c.resolver.ResolveAll(t.Requires); err != nil {
		return nil, err
	}

	if opts.List {
		names := make([]string, len(benchmarks))
		for i, b := range benchmarks {
			names[i] = b.FullName()
		}
		cfg.Log("benchmarks", zap.String("target", target), zap.String("names", strings.Join(names, ", ")))
		return nil, nil
	}

	return &models.RunDescriptor{
		ID:         uuid.New(),
		Type:       t,
		Benchmarks: benchmarks,
		Config:     cfg,
		Setup:      setup,
		Cleanup:    cleanup,
	}, nil
}

func logInfo(ctx context.Context, cfg *runconfig.Config) {
	cfg.Log(host.CollectEnvironmentInfo(ctx).String())
}
