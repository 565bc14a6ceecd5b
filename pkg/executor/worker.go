package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/mem"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	config "benchrun/configs"
	"benchrun/pkg/coordination"
	"benchrun/pkg/logger"
	"benchrun/pkg/metrics"
	"benchrun/pkg/models"
	tracing "benchrun/pkg/observability"
	"benchrun/pkg/runconfig"
	"benchrun/pkg/storage"
)

// ConsumerGroup is the queue group all workers read from.
const ConsumerGroup = "benchrun-workers"

// Facade is the subset of the benchmark entry points a worker needs to serve
// queued requests.
type Facade interface {
	RunSource(ctx context.Context, text string, cfg *runconfig.Config, args ...string) (*models.Summary, error)
	RunURL(ctx context.Context, url string, cfg *runconfig.Config, args ...string) (*models.Summary, error)
}

// Worker consumes run requests from the queue, runs them through the facade
// and records the outcome.
type Worker struct {
	ID       string
	Hostname string

	// Resources
	TotalCPU int
	TotalMem uint64 // In MB

	facade      Facade
	coordinator coordination.Coordinator
	queue       storage.Queue
	requests    storage.RequestStore
	summaries   storage.SummaryStore
	reports     storage.ReportStore // optional
	log         *zap.Logger

	concurrency   int
	timeout       time.Duration
	nodeTTL       int
	artifactsPath string
	backoff       time.Duration
}

func NewWorker(cfg *config.Config, facade Facade, coord coordination.Coordinator, queue storage.Queue,
	requests storage.RequestStore, summaries storage.SummaryStore, reports storage.ReportStore) *Worker {
	hostname, _ := os.Hostname()
	id := fmt.Sprintf("%s-%s", hostname, uuid.New().String()[:8])

	concurrency := cfg.WorkerConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	nodeTTL := cfg.NodeTTL
	if nodeTTL < 2 {
		nodeTTL = 10
	}

	return &Worker{
		ID:            id,
		Hostname:      hostname,
		TotalCPU:      runtime.NumCPU(),
		TotalMem:      detectTotalMemory(),
		facade:        facade,
		coordinator:   coord,
		queue:         queue,
		requests:      requests,
		summaries:     summaries,
		reports:       reports,
		log:           logger.Named("worker").With(zap.String("node_id", id)),
		concurrency:   concurrency,
		timeout:       parseDuration(cfg.RunTimeout, 10*time.Minute),
		nodeTTL:       nodeTTL,
		artifactsPath: cfg.ArtifactsPath,
		backoff:       time.Second,
	}
}

func detectTotalMemory() uint64 {
	v, err := mem.VirtualMemory()
	if err != nil {
		logger.Warn("Failed to detect memory, defaulting to 1GB", zap.Error(err))
		return 1024
	}
	return v.Total / 1024 / 1024
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Start runs the heartbeat and work loops until ctx is cancelled. In-flight
// runs are waited for before it returns.
func (w *Worker) Start(ctx context.Context) {
	w.log.Info("Starting worker",
		zap.Int("cpus", w.TotalCPU),
		zap.Uint64("memory_mb", w.TotalMem),
		zap.Int("concurrency", w.concurrency))

	if err := w.queue.EnsureGroup(ctx, ConsumerGroup); err != nil {
		w.log.Warn("Failed to ensure consumer group", zap.Error(err))
	}

	go w.heartbeatLoop(ctx)

	var wg sync.WaitGroup
	sem := make(chan struct{}, w.concurrency)
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			w.log.Info("Worker stopped")
			return
		case sem <- struct{}{}:
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				w.consumeOne(ctx)
			}()
		}
	}
}

func (w *Worker) heartbeatLoop(ctx context.Context) {
	if err := w.RegisterHeartbeat(ctx); err != nil {
		w.log.Error("Heartbeat failed", zap.Error(err))
	}

	// Beat at half the TTL so one missed beat does not expire the node.
	ticker := time.NewTicker(time.Duration(w.nodeTTL) * time.Second / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.RegisterHeartbeat(ctx); err != nil {
				w.log.Error("Heartbeat failed", zap.Error(err))
			}
		}
	}
}

// RegisterHeartbeat announces the worker as alive for nodeTTL seconds.
func (w *Worker) RegisterHeartbeat(ctx context.Context) error {
	if err := w.coordinator.RegisterNode(ctx, w.ID, w.nodeTTL); err != nil {
		return fmt.Errorf("failed to register node: %w", err)
	}
	metrics.HeartbeatsSent.Inc()
	return nil
}

// consumeOne pops at most one request and processes it. Pop blocks for a
// bounded time, so an empty queue does not spin.
func (w *Worker) consumeOne(ctx context.Context) {
	msgID, req, err := w.queue.Pop(ctx, ConsumerGroup, w.ID)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.log.Error("Error popping run request", zap.Error(err))
		select {
		case <-ctx.Done():
		case <-time.After(w.backoff):
		}
		return
	}
	if req == nil {
		return
	}

	w.Process(ctx, req)

	// Final bookkeeping survives shutdown so the request is not redelivered
	// after its outcome was recorded.
	if err := w.queue.Ack(context.WithoutCancel(ctx), ConsumerGroup, msgID); err != nil {
		w.log.Error("Failed to ack run request", zap.String("request_id", req.ID.String()), zap.Error(err))
	}
}

// Process runs req and records its final status. It returns that status.
func (w *Worker) Process(ctx context.Context, req *models.RunRequest) models.RunStatus {
	ctx, span := tracing.StartSpan(ctx, "worker.process",
		attribute.String("request_id", req.ID.String()),
		attribute.String("kind", string(req.Kind)),
		attribute.Int("attempt", req.Attempt))
	defer span.End()

	metrics.WorkerRunsInFlight.Inc()
	defer metrics.WorkerRunsInFlight.Dec()

	log := w.log.With(zap.String("request_id", req.ID.String()), zap.Int("attempt", req.Attempt))
	log.Info("Received run request", zap.String("kind", string(req.Kind)))

	if err := w.requests.MarkRunning(ctx, req.ID, w.ID, time.Now()); err != nil {
		log.Warn("Failed to report running state", zap.Error(err))
	}

	runCtx, cancel := context.WithTimeout(ctx, w.timeout)
	summary, err := w.run(runCtx, req)
	cancel()

	status, message := classify(summary, err)
	if err != nil {
		tracing.SetError(ctx, err)
	}

	done := context.WithoutCancel(ctx)
	var summaryID *uuid.UUID
	if status == models.RunSucceeded {
		if serr := w.persist(done, req, summary); serr != nil {
			log.Error("Failed to persist summary", zap.Error(serr))
			status, message = models.RunFailed, serr.Error()
		} else {
			summaryID = &summary.ID
		}
	}

	if err := w.requests.Complete(done, req.ID, status, message, summaryID); err != nil {
		log.Error("Failed to report result", zap.Error(err))
	}
	metrics.RequestsCompleted.WithLabelValues(string(status)).Inc()

	fields := []zap.Field{zap.String("status", string(status))}
	if message != "" {
		fields = append(fields, zap.String("message", message))
	}
	log.Info("Finished run request", fields...)
	return status
}

func (w *Worker) run(ctx context.Context, req *models.RunRequest) (*models.Summary, error) {
	cfg := &runconfig.Config{ArtifactsPath: w.artifactsPath}
	switch req.Kind {
	case models.TargetSource:
		return w.facade.RunSource(ctx, req.Source, cfg, req.Args...)
	case models.TargetURL:
		return w.facade.RunURL(ctx, req.URL, cfg, req.Args...)
	default:
		return nil, fmt.Errorf("unknown target kind %q", req.Kind)
	}
}

// classify maps a facade result to the request status. A placeholder summary
// carries the declaration message in its title. Errors, ErrUnsupported
// included, fail the attempt: another node may be able to serve it.
func classify(s *models.Summary, err error) (models.RunStatus, string) {
	switch {
	case err != nil:
		return models.RunFailed, err.Error()
	case s == nil:
		return models.RunEmpty, "no benchmarks to run"
	case s.IsPlaceholder():
		return models.RunInvalid, s.Title
	default:
		return models.RunSucceeded, ""
	}
}

// persist archives the artifacts of s and saves it against req.
func (w *Worker) persist(ctx context.Context, req *models.RunRequest, s *models.Summary) error {
	requestID := req.ID
	s.RequestID = &requestID

	if w.reports != nil {
		ref, err := w.archive(ctx, s)
		if err != nil {
			return err
		}
		s.ReportURI = ref
	}
	return w.summaries.SaveSummary(ctx, s)
}

// archive uploads the report and the run log and returns the report reference.
func (w *Worker) archive(ctx context.Context, s *models.Summary) (string, error) {
	id := s.ID.String()

	if s.LogFilePath != "" {
		data, err := os.ReadFile(s.LogFilePath)
		if err != nil {
			return "", fmt.Errorf("failed to read run log: %w", err)
		}
		if _, err := w.reports.Store(ctx, id, logFile, data); err != nil {
			return "", fmt.Errorf("failed to archive run log: %w", err)
		}
	}

	data, err := os.ReadFile(filepath.Join(s.ResultsDirectory, reportFile))
	if err != nil {
		return "", fmt.Errorf("failed to read report: %w", err)
	}
	ref, err := w.reports.Store(ctx, id, reportFile, data)
	if err != nil {
		return "", fmt.Errorf("failed to archive report: %w", err)
	}
	return ref, nil
}
