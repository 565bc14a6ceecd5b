// Package bootstrap wires configuration into the shared pieces every benchrun
// binary starts with.
package bootstrap

import (
	"context"
	"time"

	"go.uber.org/zap"

	config "benchrun/configs"
	"benchrun/pkg/host"
	"benchrun/pkg/logger"
	tracing "benchrun/pkg/observability"
	"benchrun/pkg/running"
	"benchrun/pkg/storage"
)

// Observability installs the global logger and tracer provider for service.
// The returned function flushes both.
func Observability(ctx context.Context, cfg *config.Config, service string) (*zap.Logger, func(), error) {
	logCfg := logger.DefaultConfig(service)
	logCfg.Level = cfg.LogLevel
	logCfg.Encoding = cfg.LogEncoding
	log, err := logger.Init(logCfg)
	if err != nil {
		return nil, nil, err
	}

	traceCfg := tracing.DefaultConfig(service)
	traceCfg.Endpoint = cfg.OTLPEndpoint
	traceCfg.Environment = cfg.Environment
	provider, err := tracing.Init(ctx, traceCfg)
	if err != nil {
		return nil, nil, err
	}

	return log, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			log.Warn("Failed to flush traces", zap.Error(err))
		}
		_ = logger.Sync()
	}, nil
}

// Facade builds the benchmark entry points. BENCHRUN_DYNAMIC_SOURCE forces
// the dynamic source capability on or off; "auto" probes for a toolchain.
func Facade(cfg *config.Config) *running.Runner {
	detector := host.NewDetector()
	detector.Override = cfg.DynamicSourceOverride()
	return running.New(
		running.WithCapabilities(detector),
		running.WithDiagnosticSink(logger.Named("benchrun")),
	)
}

// ReportStore archives to S3 when a bucket is configured and to ReportDir
// otherwise.
func ReportStore(ctx context.Context, cfg *config.Config) (storage.ReportStore, error) {
	if cfg.ReportBucket == "" {
		return storage.NewLocalReportStore(cfg.ReportDir)
	}
	return storage.NewS3ReportStore(ctx, storage.S3ReportStoreConfig{
		Bucket:          cfg.ReportBucket,
		Prefix:          cfg.ReportPrefix,
		Region:          cfg.S3Region,
		Endpoint:        cfg.S3Endpoint,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretKey,
		LocalCacheDir:   cfg.ReportCacheDir,
	})
}
