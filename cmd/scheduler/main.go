package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"

	config "benchrun/configs"
	"benchrun/pkg/bootstrap"
	"benchrun/pkg/coordination/etcd"
	"benchrun/pkg/scheduler"
	"benchrun/pkg/storage/postgres"
	"benchrun/pkg/storage/redis"
)

func main() {
	cfg := config.LoadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log, flush, err := bootstrap.Observability(ctx, cfg, "benchrun-scheduler")
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

	queue, err := redis.NewRedisQueue(cfg.RedisAddr())
	if err != nil {
		log.Fatal("Failed to initialize redis queue", zap.Error(err))
	}
	defer queue.Close()

	etcdCoord, err := etcd.NewEtcdCoordinator(cfg.EtcdEndpoints, cfg.LeaderElectionTTL)
	if err != nil {
		log.Fatal("Failed to connect to etcd", zap.Error(err))
	}
	defer etcdCoord.Close()

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "scheduler"
	}
	id := hostname + "-" + uuid.NewString()[:8]
	election := etcdCoord.NewElection(scheduler.ElectionName)

	log.Info("Requesting leadership", zap.String("id", id))
	if err := election.Campaign(ctx, id); err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Fatal("Election campaign failed", zap.Error(err))
	}
	log.Info("Acquired leadership", zap.String("id", id))

	core := scheduler.NewCore(cfg, store, store, queue, etcdCoord)
	core.Run(ctx, election, id)

	// Resign so another scheduler takes over without waiting for the lease.
	if err := election.Resign(context.Background()); err != nil {
		log.Warn("Failed to resign leadership", zap.Error(err))
	}
	log.Info("Shutdown complete")
}
