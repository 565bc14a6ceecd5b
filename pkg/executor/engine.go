// Package executor runs converted benchmark descriptors and, in service
// mode, consumes queued run requests.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"benchrun/pkg/executor/runner"
	"benchrun/pkg/host"
	"benchrun/pkg/logger"
	"benchrun/pkg/metrics"
	"benchrun/pkg/models"
	tracing "benchrun/pkg/observability"
	"benchrun/pkg/runconfig"
)

const (
	reportFile = "report.json"
	logFile    = "run.log"
)

// Engine executes run descriptors one after another with the first runner
// that accepts each of them, and writes their artifacts to disk.
type Engine struct {
	runners  []runner.BenchRunner
	hostInfo func(context.Context) host.EnvironmentInfo
}

// NewEngine creates an engine. Without runners it uses the in-process runner
// followed by the go test runner.
func NewEngine(runners ...runner.BenchRunner) *Engine {
	if len(runners) == 0 {
		runners = []runner.BenchRunner{
			runner.NewInProcessRunner(),
			runner.NewGoTestRunner(host.NewDetector().GoToolchain()),
		}
	}
	return &Engine{runners: runners, hostInfo: host.CollectEnvironmentInfo}
}

// Execute runs ds and returns one summary per descriptor in input order.
// The first runner failure aborts the batch.
func (e *Engine) Execute(ctx context.Context, ds []models.RunDescriptor) ([]*models.Summary, error) {
	ctx, span := tracing.StartSpan(ctx, "engine.execute", attribute.Int("descriptors", len(ds)))
	defer span.End()

	info := e.hostInfo(ctx).String()
	summaries := make([]*models.Summary, 0, len(ds))
	for _, d := range ds {
		s, err := e.executeOne(ctx, d, info)
		if err != nil {
			tracing.SetError(ctx, err)
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}

func (e *Engine) executeOne(ctx context.Context, d models.RunDescriptor, info string) (*models.Summary, error) {
	r := e.pick(d)
	if r == nil {
		return nil, fmt.Errorf("no runner can execute %s", d.Title())
	}

	logger.Info("Running benchmarks",
		zap.String("title", d.Title()),
		zap.String("runner", r.Name()),
		zap.Int("benchmarks", len(d.Benchmarks)))

	out, err := r.Run(ctx, d)
	if err != nil {
		metrics.RecordExecution(r.Name(), "failed", 0, out.Duration.Seconds())
		return nil, fmt.Errorf("failed to run %s: %w", d.Title(), err)
	}
	metrics.RecordExecution(r.Name(), "succeeded", len(out.Reports), out.Duration.Seconds())

	id := d.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	s := &models.Summary{
		ID:                  id,
		Title:               d.Title(),
		HostEnvironmentInfo: info,
		Reports:             out.Reports,
		TotalTime:           out.Duration,
		CreatedAt:           time.Now(),
	}
	if err := writeArtifacts(s, d, out); err != nil {
		return nil, err
	}
	return s, nil
}

func (e *Engine) pick(d models.RunDescriptor) runner.BenchRunner {
	for _, r := range e.runners {
		if r.Accepts(d) {
			return r
		}
	}
	return nil
}

// writeArtifacts stores the JSON report and the raw log under
// <artifacts>/<title>-<id>/ and records both paths on s.
func writeArtifacts(s *models.Summary, d models.RunDescriptor, out runner.Output) error {
	cfg := runconfig.Resolve(d.Config)
	dir := filepath.Join(cfg.ArtifactsPath, artifactName(s))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create results directory: %w", err)
	}

	s.ResultsDirectory = dir
	s.LogFilePath = filepath.Join(dir, logFile)
	if err := os.WriteFile(s.LogFilePath, []byte(out.Log), 0644); err != nil {
		return fmt.Errorf("failed to write run log: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, reportFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func artifactName(s *models.Summary) string {
	title := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '_'
		}
		return r
	}, s.Title)
	return fmt.Sprintf("%s-%s", title, s.ID.String()[:8])
}
