package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/tools/benchmark/parse"

	"benchrun/pkg/models"
	"benchrun/pkg/runconfig"
)

const (
	generatedModule = "benchrun.local/generated"
	generatedFile   = "bench_test.go"
	maxStderrTail   = 4096
)

// GoTestRunner compiles benchmark source with the go toolchain and runs it
// through "go test -bench" in a scratch module.
type GoTestRunner struct {
	goBin   string
	workDir string // parent of the scratch modules, os.TempDir when empty
	env     []string
}

// NewGoTestRunner creates a runner using the go binary at goBin.
func NewGoTestRunner(goBin string) *GoTestRunner {
	if goBin == "" {
		goBin = "go"
	}
	env := append(os.Environ(), "GOWORK=off", "GOFLAGS=-mod=mod")
	return &GoTestRunner{goBin: goBin, env: env}
}

func (r *GoTestRunner) Name() string { return "gotest" }

func (r *GoTestRunner) Accepts(d models.RunDescriptor) bool {
	return d.Source != nil
}

func (r *GoTestRunner) Run(ctx context.Context, d models.RunDescriptor) (Output, error) {
	cfg := runconfig.Resolve(d.Config)

	dir, err := os.MkdirTemp(r.workDir, "benchrun-*")
	if err != nil {
		return Output{}, fmt.Errorf("failed to create scratch module: %w", err)
	}
	defer os.RemoveAll(dir)

	gomod := fmt.Sprintf("module %s\n\ngo 1.24\n", generatedModule)
	if err := os.WriteFile(filepath.Join(dir, "go.mod"), []byte(gomod), 0644); err != nil {
		return Output{}, fmt.Errorf("failed to write go.mod: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, generatedFile), []byte(d.Source.Text), 0644); err != nil {
		return Output{}, fmt.Errorf("failed to write benchmark source: %w", err)
	}

	res := RunCommand(ctx, dir, r.env, r.goBin, testArgs(d.Benchmarks, cfg)...)
	if res.ExitCode != 0 {
		return Output{}, fmt.Errorf("go test exited with code %d: %s", res.ExitCode, tail(res.Stderr+res.Stdout))
	}

	reports, err := parseReports(d.Type.FullName(), res.Stdout)
	if err != nil {
		return Output{}, err
	}
	return Output{
		Reports:  reports,
		Log:      fmt.Sprintf("STDOUT:\n%s\nSTDERR:\n%s", res.Stdout, res.Stderr),
		Duration: res.Duration,
	}, nil
}

func testArgs(benchmarks []models.Benchmark, cfg *runconfig.Config) []string {
	names := make([]string, len(benchmarks))
	for i, b := range benchmarks {
		names[i] = regexp.QuoteMeta(b.Name)
	}
	args := []string{
		"test", "-run", "^$",
		"-bench", "^(" + strings.Join(names, "|") + ")$",
		"-benchtime", cfg.BenchTime.String(),
		"-count", strconv.Itoa(cfg.Count),
	}
	if cfg.BenchMem() {
		args = append(args, "-benchmem")
	}
	return args
}

// parseReports reads go test output in the standard benchmark format and
// returns one report per result line, in output order.
func parseReports(target, stdout string) ([]models.Report, error) {
	set, err := parse.ParseSet(strings.NewReader(stdout))
	if err != nil {
		return nil, fmt.Errorf("failed to parse benchmark output: %w", err)
	}

	var all []*parse.Benchmark
	for _, bs := range set {
		all = append(all, bs...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Ord < all[j].Ord })

	reports := make([]models.Report, 0, len(all))
	for _, b := range all {
		reports = append(reports, models.Report{
			Benchmark:   target + "." + trimProcs(b.Name),
			N:           b.N,
			NsPerOp:     b.NsPerOp,
			BytesPerOp:  b.AllocedBytesPerOp,
			AllocsPerOp: b.AllocsPerOp,
		})
	}
	return reports, nil
}

// trimProcs drops the "-GOMAXPROCS" suffix go test appends to names.
func trimProcs(name string) string {
	i := strings.LastIndexByte(name, '-')
	if i < 0 {
		return name
	}
	if _, err := strconv.Atoi(name[i+1:]); err != nil {
		return name
	}
	return name[:i]
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStderrTail {
		return "..." + s[len(s)-maxStderrTail:]
	}
	return s
}

