package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "benchrun/configs"
	"benchrun/pkg/coordination/local"
	"benchrun/pkg/executor/runner"
	"benchrun/pkg/models"
	"benchrun/pkg/runconfig"
	"benchrun/pkg/storage"
	"benchrun/pkg/storage/memory"
)

// scriptedFacade answers every call with the same result. A succeeding
// result gets its artifacts written the way the engine writes them.
type scriptedFacade struct {
	mu      sync.Mutex
	calls   []string
	args    [][]string
	cfgs    []*runconfig.Config
	summary *models.Summary
	err     error
	block   bool
}

func (f *scriptedFacade) RunSource(ctx context.Context, text string, cfg *runconfig.Config, args ...string) (*models.Summary, error) {
	return f.answer(ctx, "source:"+text, cfg, args)
}

func (f *scriptedFacade) RunURL(ctx context.Context, url string, cfg *runconfig.Config, args ...string) (*models.Summary, error) {
	return f.answer(ctx, "url:"+url, cfg, args)
}

func (f *scriptedFacade) answer(ctx context.Context, call string, cfg *runconfig.Config, args []string) (*models.Summary, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.args = append(f.args, args)
	f.cfgs = append(f.cfgs, cfg)
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil || f.summary == nil || f.summary.IsPlaceholder() {
		return f.summary, f.err
	}

	s := *f.summary
	s.ID = uuid.New()
	d := models.RunDescriptor{Config: cfg}
	if err := writeArtifacts(&s, d, runner.Output{Log: "BenchmarkSum-8 100 12 ns/op\n"}); err != nil {
		return nil, err
	}
	return &s, nil
}

type workerFixture struct {
	worker  *Worker
	facade  *scriptedFacade
	store   *memory.Store
	queue   *memory.Queue
	coord   *local.Coordinator
	reports *storage.LocalReportStore
}

func newWorkerFixture(t *testing.T, facade *scriptedFacade) *workerFixture {
	t.Helper()
	reports, err := storage.NewLocalReportStore(t.TempDir())
	require.NoError(t, err)

	f := &workerFixture{
		facade:  facade,
		store:   memory.NewStore(),
		queue:   memory.NewQueue(8, 10*time.Millisecond),
		coord:   local.NewCoordinator(),
		reports: reports,
	}
	cfg := &config.Config{
		WorkerConcurrency: 2,
		NodeTTL:           10,
		RunTimeout:        "200ms",
		ArtifactsPath:     t.TempDir(),
	}
	f.worker = NewWorker(cfg, facade, f.coord, f.queue, f.store, f.store, reports)
	return f
}

func (f *workerFixture) enqueue(t *testing.T, req *models.RunRequest) *models.RunRequest {
	t.Helper()
	require.NoError(t, f.store.CreateRequest(context.Background(), req))
	require.NoError(t, f.queue.Push(context.Background(), req))
	return req
}

func TestNewWorkerDefaults(t *testing.T) {
	w := NewWorker(&config.Config{}, &scriptedFacade{}, local.NewCoordinator(), memory.NewQueue(1, time.Millisecond),
		memory.NewStore(), memory.NewStore(), nil)
	assert.Equal(t, 1, w.concurrency)
	assert.Equal(t, 10, w.nodeTTL)
	assert.Equal(t, 10*time.Minute, w.timeout)
	assert.Contains(t, w.ID, w.Hostname+"-")
	assert.Positive(t, w.TotalCPU)
	assert.Positive(t, w.TotalMem)
}

func TestProcessSucceededArchivesAndSaves(t *testing.T) {
	ctx := context.Background()
	f := newWorkerFixture(t, &scriptedFacade{summary: &models.Summary{
		Title:   "Hashing",
		Reports: models.Reports{{Benchmark: "BenchmarkSum", N: 100, NsPerOp: 12}},
	}})
	req := f.enqueue(t, &models.RunRequest{Kind: models.TargetSource, Source: "package h", Args: models.Args{"--filter", "Sum"}})

	f.worker.consumeOne(ctx)

	got, err := f.store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunSucceeded, got.Status)
	assert.Equal(t, f.worker.ID, *got.NodeID)
	require.NotNil(t, got.SummaryID)

	sum, err := f.store.GetSummary(ctx, *got.SummaryID)
	require.NoError(t, err)
	assert.Equal(t, req.ID, *sum.RequestID)
	require.NotEmpty(t, sum.ReportURI)

	report, err := f.reports.Retrieve(ctx, sum.ReportURI)
	require.NoError(t, err)
	assert.Contains(t, string(report), `"Hashing"`)

	assert.Equal(t, []string{"source:package h"}, f.facade.calls)
	assert.Equal(t, []string{"--filter", "Sum"}, f.facade.args[0])
	assert.Zero(t, f.queue.Pending(), "request not acknowledged")
}

func TestProcessKeepsAllocationStats(t *testing.T) {
	ctx := context.Background()
	f := newWorkerFixture(t, &scriptedFacade{})
	f.enqueue(t, &models.RunRequest{Kind: models.TargetSource, Source: "package h"})

	f.worker.consumeOne(ctx)

	require.Len(t, f.facade.cfgs, 1)
	cfg := runconfig.Resolve(f.facade.cfgs[0])
	assert.True(t, cfg.BenchMem())
	assert.Equal(t, f.worker.artifactsPath, cfg.ArtifactsPath)
}

func TestProcessOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		facade  *scriptedFacade
		status  models.RunStatus
		message string
	}{
		{
			name:    "nothing to run",
			facade:  &scriptedFacade{},
			status:  models.RunEmpty,
			message: "no benchmarks to run",
		},
		{
			name:    "declaration error",
			facade:  &scriptedFacade{summary: models.NothingToRun("benchmark T is invalid: bad", "", "")},
			status:  models.RunInvalid,
			message: "benchmark T is invalid: bad",
		},
		{
			name:    "unsupported host",
			facade:  &scriptedFacade{err: fmt.Errorf("run by url: %w", models.ErrUnsupported)},
			status:  models.RunFailed,
			message: "run by url: " + models.ErrUnsupported.Error(),
		},
		{
			name:    "infrastructure error",
			facade:  &scriptedFacade{err: errors.New("disk full")},
			status:  models.RunFailed,
			message: "disk full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newWorkerFixture(t, tt.facade)
			req := f.enqueue(t, &models.RunRequest{Kind: models.TargetURL, URL: "https://example.com/b.go"})

			assert.Equal(t, tt.status, f.worker.Process(ctx, req))

			got, err := f.store.GetRequest(ctx, req.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.status, got.Status)
			assert.Equal(t, tt.message, got.Message)
			assert.Nil(t, got.SummaryID)
		})
	}
}

func TestProcessUnknownKind(t *testing.T) {
	f := newWorkerFixture(t, &scriptedFacade{})
	req := f.enqueue(t, &models.RunRequest{Kind: "FTP"})

	assert.Equal(t, models.RunFailed, f.worker.Process(context.Background(), req))
	assert.Empty(t, f.facade.calls)
}

func TestProcessTimesOut(t *testing.T) {
	f := newWorkerFixture(t, &scriptedFacade{block: true})
	req := f.enqueue(t, &models.RunRequest{Kind: models.TargetSource, Source: "package slow"})

	start := time.Now()
	assert.Equal(t, models.RunFailed, f.worker.Process(context.Background(), req))
	assert.Less(t, time.Since(start), 5*time.Second)

	got, _ := f.store.GetRequest(context.Background(), req.ID)
	assert.Contains(t, got.Message, context.DeadlineExceeded.Error())
}

type failingReports struct{}

func (failingReports) Store(context.Context, string, string, []byte) (string, error) {
	return "", errors.New("bucket gone")
}

func (failingReports) Retrieve(context.Context, string) ([]byte, error) { return nil, storage.ErrNotFound }

func TestProcessArchiveFailureFailsRequest(t *testing.T) {
	f := newWorkerFixture(t, &scriptedFacade{summary: &models.Summary{Title: "T", Reports: models.Reports{{Benchmark: "BenchmarkX"}}}})
	f.worker.reports = failingReports{}
	req := f.enqueue(t, &models.RunRequest{Kind: models.TargetSource, Source: "package t"})

	assert.Equal(t, models.RunFailed, f.worker.Process(context.Background(), req))
	got, _ := f.store.GetRequest(context.Background(), req.ID)
	assert.Contains(t, got.Message, "bucket gone")
}

func TestStartHeartbeatsAndDrains(t *testing.T) {
	f := newWorkerFixture(t, &scriptedFacade{})
	reqs := []*models.RunRequest{
		f.enqueue(t, &models.RunRequest{Kind: models.TargetSource, Source: "package a"}),
		f.enqueue(t, &models.RunRequest{Kind: models.TargetSource, Source: "package b"}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.worker.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		for _, r := range reqs {
			got, err := f.store.GetRequest(context.Background(), r.ID)
			if err != nil || got.Status != models.RunEmpty {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)

	nodes, err := f.coord.GetActiveNodes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{f.worker.ID}, nodes)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestArchiveWithoutRunLog(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(dir+"/"+reportFile, []byte(`{}`), 0644))
	reports, err := storage.NewLocalReportStore(t.TempDir())
	require.NoError(t, err)

	w := &Worker{reports: reports}
	ref, err := w.archive(context.Background(), &models.Summary{ID: uuid.New(), ResultsDirectory: dir})
	require.NoError(t, err)
	assert.FileExists(t, ref)
}
