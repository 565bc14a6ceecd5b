package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	config "benchrun/configs"
	"benchrun/pkg/api"
	"benchrun/pkg/api/middleware"
	"benchrun/pkg/auth"
	"benchrun/pkg/bootstrap"
	"benchrun/pkg/coordination/etcd"
	"benchrun/pkg/scheduler"
	"benchrun/pkg/storage/postgres"
	"benchrun/pkg/storage/redis"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.LoadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log, flush, err := bootstrap.Observability(ctx, cfg, "benchrun-api")
	if err != nil {
		os.Stderr.WriteString("failed to initialise observability: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer flush()
	log.Info("Starting up")

	store, err := postgres.NewPostgresStore(cfg.PostgresDSN())
	if err != nil {
		log.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer store.Close()

	etcdCoord, err := etcd.NewEtcdCoordinator(cfg.EtcdEndpoints, cfg.LeaderElectionTTL)
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

	authCfg := middleware.AuthConfig{SkipPaths: []string{"/health", "/metrics"}}
	if cfg.JWTSecret != "" {
		jwtCfg := auth.DefaultJWTConfig()
		jwtCfg.SecretKey = cfg.JWTSecret
		jwtCfg.Issuer = cfg.JWTIssuer
		if authCfg.JWTService, err = auth.NewJWTService(jwtCfg); err != nil {
			log.Fatal("Failed to initialize JWT", zap.Error(err))
		}
	}
	if cfg.APIKeyAuth {
		authCfg.APIKeyStore = auth.NewRedisAPIKeyStore(queue.Client())
	}
	if !authCfg.Enabled() {
		if cfg.AllowAnonymous {
			log.Warn("Authentication is disabled; anyone can submit runs")
		} else {
			log.Warn("Authentication is not configured; run submission is refused until JWT_SECRET or API_KEY_AUTH is set")
		}
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	server := api.NewServer(api.Config{
		Port:           cfg.APIPort,
		Requests:       store,
		Schedules:      store,
		Summaries:      store,
		Reports:        reports,
		Queue:          queue,
		Coordinator:    etcdCoord,
		Election:       etcdCoord.NewElection(scheduler.ElectionName),
		Facade:         bootstrap.Facade(cfg),
		Auth:           authCfg,
		AllowAnonymous: cfg.AllowAnonymous,
		ArtifactsPath:  cfg.ArtifactsPath,
		HealthChecks: map[string]api.HealthCheck{
			"postgres": store.Ping,
			"redis":    func(ctx context.Context) error { return queue.Client().Ping(ctx).Err() },
			"etcd": func(ctx context.Context) error {
				_, err := etcdCoord.GetActiveNodes(ctx)
				return err
			},
		},
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Initiating graceful shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("Server stopped with error", zap.Error(err))
	}
	log.Info("Shutdown complete")
}
