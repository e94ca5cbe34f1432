// ============================================================================
// docqueue CLI - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: Cobra command tree for running and talking to docqueue
//
// Command Structure:
//   docqueue                       # Root command
//   ├── serve                      # Start HTTP API, metrics and gRPC health
//   ├── upload                     # POST /upload against a running server
//   │   └── --url, --doc-type, --id, --server
//   ├── status <id>                # GET /status/{id}
//   │   └── --server
//   ├── history <id>               # Replay the transition journal for one task
//   │   └── --journal
//   ├── --config, -c               # YAML config (or DOCQUEUE_CONFIG)
//   └── --version
//
// serve Command:
//   1. Load config (defaults ← YAML ← env)
//   2. Build downloader, model clients, notifiers and the service
//   3. Start HTTP server, metrics server (if enabled), gRPC health
//   4. Wait for SIGINT / SIGTERM
//   5. Stop accepting uploads, drain the queue, close resources
//
// ============================================================================

package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/ChuLiYu/docqueue/internal/config"
	"github.com/ChuLiYu/docqueue/internal/download"
	"github.com/ChuLiYu/docqueue/internal/inference"
	"github.com/ChuLiYu/docqueue/internal/logging"
	"github.com/ChuLiYu/docqueue/internal/metrics"
	"github.com/ChuLiYu/docqueue/internal/notify"
	"github.com/ChuLiYu/docqueue/internal/server"
	"github.com/ChuLiYu/docqueue/internal/service"
	"github.com/ChuLiYu/docqueue/internal/storage/journal"
)

// Version is overridden at build time with -ldflags "-X ...cli.Version=...".
var Version = "0.1.0"

const (
	shutdownTimeout     = 30 * time.Second
	healthProbeInterval = 5 * time.Second
)

var configFile string

// BuildCLI returns the root command.
func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "docqueue",
		Short: "docqueue: a single-worker PDF classification and extraction queue",
		Long: `docqueue accepts PDF uploads, classifies them and extracts
structured data from the qualifying ones, one document at a time.
- FIFO queue with a single supervised worker
- Status, timing and result lookup per task
- Prometheus metrics and gRPC health`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (default $DOCQUEUE_CONFIG)")

	rootCmd.AddCommand(buildServeCommand())
	rootCmd.AddCommand(buildUploadCommand())
	rootCmd.AddCommand(buildStatusCommand())
	rootCmd.AddCommand(buildHistoryCommand())

	return rootCmd
}

func buildServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the docqueue server",
		Long:  "Start the HTTP API, the metrics endpoint and the gRPC health service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger := logging.New(cfg.Log.Level, cfg.Log.Format)
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, logger)
		},
	}
}

// ============================================================================
// Application wiring
// ============================================================================

// app holds everything serve starts and later shuts down.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	svc     *service.Service
	http    *http.Server
	metrics *http.Server
	health  *server.Health
	journal *journal.Journal
}

// buildApp wires the components described by cfg. Nothing listens yet.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer, gatherer prometheus.Gatherer) (*app, error) {
	if cfg.Classifier.URL == "" {
		return nil, fmt.Errorf("%w: classifier.url is required", config.ErrInvalidConfig)
	}
	if cfg.Extractor.URL == "" {
		return nil, fmt.Errorf("%w: extractor.url is required", config.ErrInvalidConfig)
	}

	a := &app{cfg: cfg, logger: logger}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(reg)
		a.metrics = metrics.NewServer(cfg.Metrics.Port, gatherer)
	}

	notifiers := notify.Multi{notify.NewLog(logger)}
	if cfg.Notify.Journal {
		j, err := journal.Open(cfg.Storage.JournalPath, false)
		if err != nil {
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
		if n := j.Skipped(); n > 0 {
			logger.Warn("journal has damaged entries, skipping them", "path", j.Path(), "skipped", n)
		}
		a.journal = j
		notifiers = append(notifiers, notify.NewJournal(j))
	}
	if cfg.Notify.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhook(cfg.Notify.WebhookURL, cfg.Notify.WebhookTimeout))
	}

	s3Client, err := download.NewS3Client(ctx, cfg.Download.S3Region, cfg.Download.S3Endpoint)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}
	downloader := download.NewRouter(download.NewHTTP(cfg.Download.Timeout), download.NewS3(s3Client))

	svc, err := service.New(service.Config{
		UploadDir:         cfg.Storage.UploadDir,
		ResultDir:         cfg.Storage.ResultDir,
		MaxProcessingTime: cfg.Worker.MaxProcessingTime,
	}, service.Deps{
		Classifier: inference.NewClassifier(cfg.Classifier.URL, cfg.Classifier.Timeout, logger),
		Extractor:  inference.NewExtractor(cfg.Extractor.URL, cfg.Extractor.Timeout, logger),
		Downloader: downloader,
		Notifier:   notifiers,
		Metrics:    collector,
		Logger:     logger,
	})
	if err != nil {
		a.close()
		return nil, err
	}
	a.svc = svc
	a.http = server.New(svc, logger, collector).NewHTTPServer(cfg.Server.Addr)
	a.health = server.NewHealth(svc.Ready, svc.WorkerHealthy)

	return a, nil
}

func (a *app) close() {
	if a.journal == nil {
		return
	}
	if err := a.journal.Close(); err != nil {
		a.logger.Error("failed to close journal", "error", err)
	}
}

func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	a, err := buildApp(ctx, cfg, logger, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
	if err != nil {
		return err
	}
	defer a.close()

	errCh := make(chan error, 3)

	var grpcServer *grpc.Server
	if cfg.Health.GRPCPort > 0 {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Health.GRPCPort))
		if err != nil {
			return fmt.Errorf("failed to listen on port %d: %w", cfg.Health.GRPCPort, err)
		}
		grpcServer = grpc.NewServer()
		a.health.Register(grpcServer)

		go func() {
			logger.Info("grpc health listening", "addr", lis.Addr().String())
			if err := grpcServer.Serve(lis); err != nil {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	go func() {
		logger.Info("http server listening", "addr", cfg.Server.Addr)
		if err := a.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if a.metrics != nil {
		go func() {
			logger.Info("metrics server listening", "addr", a.metrics.Addr)
			if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	healthCtx, stopHealth := context.WithCancel(context.Background())
	defer stopHealth()
	go a.health.Run(healthCtx, healthProbeInterval)

	logger.Info("docqueue started",
		"upload_dir", cfg.Storage.UploadDir,
		"result_dir", cfg.Storage.ResultDir,
		"max_processing_time", cfg.Worker.MaxProcessingTime,
	)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal, stopping gracefully")
	case runErr = <-errCh:
		logger.Error("server failed, shutting down", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.http.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	if err := a.svc.Shutdown(shutdownCtx); err != nil {
		logger.Error("service shutdown", "error", err)
	}
	stopHealth()
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	if a.metrics != nil {
		if err := a.metrics.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics shutdown", "error", err)
		}
	}

	logger.Info("docqueue stopped")
	return runErr
}
