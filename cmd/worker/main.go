package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	config "benchrun/configs"
	"benchrun/pkg/bootstrap"
	"benchrun/pkg/coordination/etcd"
	"benchrun/pkg/executor"
	"benchrun/pkg/storage/postgres"
	"benchrun/pkg/storage/redis"
)

func main() {
	cfg := config.LoadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log, flush, err := bootstrap.Observability(ctx, cfg, "benchrun-worker")
	if err != nil {
		os.Stderr.WriteString("failed to initialise observability: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer flush()

	store, err := postgres.NewPostgresStore(cfg.PostgresDSN())
	if err != nil {
		log.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer store.Close()

	etcdCoord, err := etcd.NewEtcdCoordinator(cfg.EtcdEndpoints, cfg.NodeTTL)
	if err != nil {
		log.Fatal("Failed to connect to etcd", zap.Error(err))
	}
	defer etcdCoord.Close()

	queue, err := redis.NewRedisQueue(cfg.RedisAddr())
	if err != nil {
		log.Fatal("Failed to initialize redis queue", zap.Error(err))
	}
	defer queue.Close()

	reports, err := bootstrap.ReportStore(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to initialize report store", zap.Error(err))
	}

	worker := executor.NewWorker(cfg, bootstrap.Facade(cfg), etcdCoord, queue, store, store, reports)
	worker.Start(ctx)
	log.Info("Shutdown complete")
}
