package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joseph-ayodele/ocr-enricher/internal/async"
	"github.com/joseph-ayodele/ocr-enricher/internal/export"
	"github.com/joseph-ayodele/ocr-enricher/internal/ingest"
	"github.com/joseph-ayodele/ocr-enricher/internal/progress"
	"github.com/joseph-ayodele/ocr-enricher/internal/server"
	"github.com/joseph-ayodele/ocr-enricher/internal/services/jobs"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and gRPC job servers",
	Long:  "Start the job servers, the worker pool and, when configured, the inbox watcher and retention pruner.",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	svc := jobs.NewService(a.repo, progress.NewBoard(), a.registry, a.proc, logger,
		async.WithWorkers(cfg.Queue.Workers),
		async.WithQueueSize(cfg.Queue.Size),
		async.WithProcessTimeout(cfg.Queue.ProcessTimeout),
	)
	if n, err := svc.FailInterrupted(ctx); err != nil {
		logger.Warn("could not mark interrupted jobs", "error", err)
	} else if n > 0 {
		logger.Info("marked interrupted jobs as failed", "count", n)
	}

	if cfg.Retention.MaxAge > 0 {
		pruner := jobs.NewPruner(a.repo, svc.Board(), cfg.Retention.MaxAge, logger)
		if err := pruner.Start(cfg.Retention.Interval); err != nil {
			return err
		}
		defer pruner.Stop()
	}

	opts := server.Options{
		MaxUploadBytes:      cfg.Server.MaxUploadBytes,
		DefaultStrategy:     cfg.OCR.DefaultStrategy,
		DefaultCacheEnabled: cfg.Cache.Enabled,
	}
	g, gctx := errgroup.WithContext(ctx)

	if cfg.Server.HTTPAddr != "" {
		api := server.NewAPI(svc, export.NewService(a.repo, logger), a.checks(), opts, logger)
		httpServer := &http.Server{
			Addr:              cfg.Server.HTTPAddr,
			Handler:           api.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			logger.Info("http listening", "addr", cfg.Server.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http serve: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			return httpServer.Shutdown(sctx)
		})
	}

	if cfg.Server.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", cfg.Server.GRPCAddr, err)
		}
		grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(server.UnaryLogger(logger)))
		server.RegisterJobServiceServer(grpcServer, server.NewGRPCServer(svc, opts, logger))

		healthServer := health.NewServer()
		grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
		// Empty service name is overall server health
		healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
		healthServer.SetServingStatus(server.JobServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

		g.Go(func() error {
			logger.Info("grpc listening", "addr", cfg.Server.GRPCAddr)
			return grpcServer.Serve(lis)
		})
		g.Go(func() error {
			<-gctx.Done()
			healthServer.Shutdown()
			stopped := make(chan struct{})
			go func() {
				grpcServer.GracefulStop()
				close(stopped)
			}()
			select {
			case <-stopped:
			case <-time.After(cfg.Server.ShutdownTimeout):
				grpcServer.Stop()
			}
			return nil
		})
	}

	if cfg.Inbox.Dir != "" {
		strategy := cfg.Inbox.Strategy
		if strategy == "" {
			strategy = cfg.OCR.DefaultStrategy
		}
		inbox, err := ingest.New(ingest.Config{
			Dir:         cfg.Inbox.Dir,
			InitialScan: cfg.Inbox.InitialScan,
			SkipHidden:  true,
			Debounce:    cfg.Inbox.Debounce,
			MaxBytes:    cfg.Server.MaxUploadBytes,
			Defaults: ingest.Defaults{
				Strategy:     strategy,
				CacheEnabled: cfg.Cache.Enabled,
				Prompt:       cfg.Inbox.Prompt,
				Model:        cfg.Inbox.Model,
			},
		}, svc, logger)
		if err != nil {
			return err
		}
		g.Go(func() error {
			if err := inbox.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("inbox: %w", err)
			}
			return nil
		})
	}

	waitErr := g.Wait()
	logger.Info("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	svc.Shutdown(sctx)
	if err := a.proc.Provisioner().Wait(sctx); err != nil {
		logger.Warn("model pulls still running at exit", "error", err)
	}
	return waitErr
}
