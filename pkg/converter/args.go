package converter

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"

	"benchrun/pkg/runconfig"
)

// Options are the run arguments that change what conversion produces rather
// than how benchmarks are configured.
type Options struct {
	Info bool // print host information instead of running
	List bool // print benchmark names instead of running
}

// ParseArgs applies run arguments on top of cfg. cfg itself is not modified;
// the returned config is a resolved copy.
func ParseArgs(args []string, cfg *runconfig.Config) (Options, *runconfig.Config, error) {
	resolved := runconfig.Resolve(cfg)
	var opts Options
	if len(args) == 0 {
		return opts, resolved, nil
	}

	fs := pflag.NewFlagSet("benchrun", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var filters []string
	benchMem := resolved.BenchMem()
	fs.BoolVar(&opts.Info, "info", false, "print host environment information and exit")
	fs.BoolVar(&opts.List, "list", false, "print the selected benchmarks and exit")
	fs.StringSliceVar(&filters, "filter", nil, "glob patterns selecting benchmarks")
	fs.DurationVar(&resolved.BenchTime, "benchtime", resolved.BenchTime, "target duration of each benchmark")
	fs.IntVar(&resolved.Count, "count", resolved.Count, "run each benchmark n times")
	fs.BoolVar(&benchMem, "benchmem", benchMem, "collect allocation statistics")
	fs.StringVar(&resolved.ArtifactsPath, "artifacts", resolved.ArtifactsPath, "directory for reports and logs")

	if err := fs.Parse(args); err != nil {
		return Options{}, nil, fmt.Errorf("parse run args: %w", err)
	}
	if rest := fs.Args(); len(rest) > 0 {
		return Options{}, nil, fmt.Errorf("parse run args: unexpected arguments %s", strings.Join(rest, " "))
	}
	if resolved.Count < 1 {
		return Options{}, nil, fmt.Errorf("parse run args: count must be positive, got %d", resolved.Count)
	}

	resolved.NoBenchMem = !benchMem
	resolved.Filters = append(resolved.Filters, filters...)
	return opts, resolved, nil
}
