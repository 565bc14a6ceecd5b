package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"benchrun/pkg/api"
	"benchrun/pkg/api/middleware"
	"benchrun/pkg/auth"
	"benchrun/pkg/bootstrap"
	"benchrun/pkg/coordination/local"
	"benchrun/pkg/executor"
	"benchrun/pkg/scheduler"
	"benchrun/pkg/storage/memory"
)

var (
	servePort      string
	serveQueueSize int
	serveAnonymous bool
)

// newServeCmd builds the serve command
func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the run API with an in-process worker and scheduler",
		Long: `Serve the run API on a single node. Requests, schedules and summaries are
kept in memory; reports are archived to REPORT_BUCKET or REPORT_DIR.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	serveCmd.Flags().StringVar(&servePort, "port", "", "listen port (default from API_PORT)")
	serveCmd.Flags().IntVar(&serveQueueSize, "queue-size", 256, "maximum queued run requests")
	serveCmd.Flags().BoolVar(&serveAnonymous, "allow-anonymous", false, "accept runs without authentication when JWT_SECRET is unset")
	return serveCmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if servePort != "" {
		cfg.APIPort = servePort
	}

	log, flush, err := bootstrap.Observability(ctx, cfg, "benchrun")
	if err != nil {
		return err
	}
	defer flush()

	reports, err := bootstrap.ReportStore(ctx, cfg)
	if err != nil {
		return err
	}

	store := memory.NewStore()
	queue := memory.NewQueue(serveQueueSize, time.Second)
	coord := local.NewCoordinator()
	election := coord.NewElection(scheduler.ElectionName)
	facade := newFacade(cfg)

	authCfg := middleware.AuthConfig{SkipPaths: []string{"/health", "/metrics"}}
	if cfg.JWTSecret != "" {
		jwtCfg := auth.DefaultJWTConfig()
		jwtCfg.SecretKey = cfg.JWTSecret
		jwtCfg.Issuer = cfg.JWTIssuer
		if authCfg.JWTService, err = auth.NewJWTService(jwtCfg); err != nil {
			return err
		}
	}

	anonymous := serveAnonymous || cfg.AllowAnonymous
	if !authCfg.Enabled() && !anonymous {
		cmd.PrintErrln("JWT_SECRET is not set: run submission is refused (use --allow-anonymous to accept unauthenticated runs)")
	}

	server := api.NewServer(api.Config{
		Port:           cfg.APIPort,
		Requests:       store,
		Schedules:      store,
		Summaries:      store,
		Reports:        reports,
		Queue:          queue,
		Coordinator:    coord,
		Election:       election,
		Facade:         facade,
		Auth:           authCfg,
		AllowAnonymous: anonymous,
		ArtifactsPath:  cfg.ArtifactsPath,
	})
	worker := executor.NewWorker(cfg, facade, coord, queue, store, store, reports)
	core := scheduler.NewCore(cfg, store, store, queue, coord)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		worker.Start(gctx)
		return nil
	})
	g.Go(func() error {
		if err := election.Campaign(gctx, worker.ID); err != nil {
			return nil
		}
		core.Run(gctx, election, worker.ID)
		return election.Resign(context.Background())
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	log.Info("Serving", zap.String("port", cfg.APIPort), zap.String("node", worker.ID))
	return g.Wait()
}
