package runner

import (
	"context"
	"time"

	"benchrun/pkg/models"
)

// Output captures what running one descriptor produced.
type Output struct {
	Reports  []models.Report
	Log      string // raw benchmark output, archived next to the report
	Duration time.Duration
}

// BenchRunner executes the benchmarks of a single descriptor.
type BenchRunner interface {
	// Name identifies the runner in metrics and logs.
	Name() string

	// Accepts reports whether the runner can execute d.
	Accepts(d models.RunDescriptor) bool

	// Run executes every benchmark of d Count times.
	Run(ctx context.Context, d models.RunDescriptor) (Output, error)
}
