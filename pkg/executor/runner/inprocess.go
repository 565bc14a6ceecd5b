package runner

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"benchrun/pkg/models"
	"benchrun/pkg/runconfig"
)

// InProcessRunner measures benchmark methods of live Go types with
// testing.Benchmark. The bench time is fixed by the testing package and
// cannot be set per run.
type InProcessRunner struct {
	bench func(func(*testing.B)) testing.BenchmarkResult
}

func NewInProcessRunner() *InProcessRunner {
	return &InProcessRunner{bench: testing.Benchmark}
}

func (r *InProcessRunner) Name() string { return "inprocess" }

func (r *InProcessRunner) Accepts(d models.RunDescriptor) bool {
	return d.Source == nil && d.Type.Type != nil
}

func (r *InProcessRunner) Run(ctx context.Context, d models.RunDescriptor) (Output, error) {
	start := time.Now()
	cfg := runconfig.Resolve(d.Config)

	var out Output
	var log strings.Builder
	for _, b := range d.Benchmarks {
		fn, err := benchFunc(d, b, cfg.BenchMem())
		if err != nil {
			return Output{}, err
		}
		for i := 0; i < cfg.Count; i++ {
			if err := ctx.Err(); err != nil {
				return Output{}, err
			}
			res := r.bench(fn)
			if res.N == 0 {
				return Output{}, fmt.Errorf("benchmark %s failed or was skipped", b.FullName())
			}
			out.Reports = append(out.Reports, models.Report{
				Benchmark:   b.FullName(),
				N:           res.N,
				NsPerOp:     float64(res.T.Nanoseconds()) / float64(res.N),
				BytesPerOp:  uint64(res.AllocedBytesPerOp()),
				AllocsPerOp: uint64(res.AllocsPerOp()),
			})
			fmt.Fprintf(&log, "%s\t%s", b.FullName(), res.String())
			if cfg.BenchMem() {
				fmt.Fprintf(&log, "\t%s", res.MemString())
			}
			log.WriteString("\n")
		}
	}
	out.Log = log.String()
	out.Duration = time.Since(start)
	return out, nil
}

// benchFunc builds the testing callback for b. Every invocation gets a fresh
// instance with Setup and Cleanup run outside the timed region.
func benchFunc(d models.RunDescriptor, b models.Benchmark, benchMem bool) (func(*testing.B), error) {
	t := d.Type.Type
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	pt := reflect.PointerTo(t)

	method, ok := pt.MethodByName(b.Name)
	if !ok {
		return nil, fmt.Errorf("benchmark %s not found on %s", b.Name, t)
	}
	hook := func(name string) (reflect.Method, bool) {
		if name == "" {
			return reflect.Method{}, false
		}
		return pt.MethodByName(name)
	}
	setup, hasSetup := hook(d.Setup)
	cleanup, hasCleanup := hook(d.Cleanup)

	return func(tb *testing.B) {
		inst := reflect.New(t)
		if hasSetup {
			setup.Func.Call([]reflect.Value{inst})
		}
		if benchMem {
			tb.ReportAllocs()
		}

		tb.ResetTimer()
		if b.TakesB {
			method.Func.Call([]reflect.Value{inst, reflect.ValueOf(tb)})
		} else {
			in := []reflect.Value{inst}
			for i := 0; i < tb.N; i++ {
				method.Func.Call(in)
			}
		}
		tb.StopTimer()

		if hasCleanup {
			cleanup.Func.Call([]reflect.Value{inst})
		}
	}, nil
}
