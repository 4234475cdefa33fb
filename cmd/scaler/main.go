// Command scaler boots the per-job-type autoscaling controller: load the
// job-type catalog, initialize the audit store and auth principal, then run
// the scaling controller loop alongside the HTTP API until signalled to
// stop.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kubejob/scaler/internal/audit"
	"github.com/kubejob/scaler/internal/auth"
	"github.com/kubejob/scaler/internal/broker"
	"github.com/kubejob/scaler/internal/catalog"
	"github.com/kubejob/scaler/internal/config"
	"github.com/kubejob/scaler/internal/httpapi"
	"github.com/kubejob/scaler/internal/orchestrator"
	"github.com/kubejob/scaler/internal/sampler"
	"github.com/kubejob/scaler/internal/scalerctl"
	"github.com/kubejob/scaler/internal/state"
)

func main() {
	root := &cobra.Command{
		Use:           "scaler",
		Short:         "Per-job-type autoscaling controller for the worker fleet",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	root.Flags().String("config", "", "path to the job-type catalog (overrides CATALOG_PATH)")
	root.Flags().String("addr", "", "HTTP listen address (overrides HTTP_ADDR)")
	root.Flags().Int("max-jobs", 0, "global worker job budget (overrides MAX_JOBS)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		cfg.CatalogPath = path
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.HTTPAddr = addr
	}
	if maxJobs, _ := cmd.Flags().GetInt("max-jobs"); maxJobs > 0 {
		cfg.MaxJobs = maxJobs
	}

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	logger.Info("loaded job-type catalog", zap.Int("types", cat.Len()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	auditStore, err := audit.Open(ctx, cfg.Postgres.DSN(), cfg.Postgres.MaxOpenConns, cfg.Postgres.MaxIdleConns, cfg.Postgres.ConnLifetime, logger)
	if err != nil {
		return fmt.Errorf("open audit store: %w", err)
	}
	defer auditStore.Close()

	if err := auditStore.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	var aggregator audit.Aggregator = auditStore
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		aggregator = audit.NewCachedStore(auditStore, rdb, logger)
		logger.Info("audit aggregate queries cached through redis", zap.String("addr", cfg.Redis.Addr))
	}

	authStore := auth.NewStore(auditStore.DB())
	if err := authStore.EnsureDefaultUser(ctx, logger); err != nil {
		return fmt.Errorf("seed default principal: %w", err)
	}

	kubeClient, err := orchestrator.BuildClientset(cfg.KubeConfig)
	if err != nil {
		return fmt.Errorf("build kubernetes client: %w", err)
	}
	orchClient := orchestrator.NewK8sClient(kubeClient, cfg.Namespace, logger)

	probe := broker.NewAMQPProbe(cfg.BrokerHost, logger)

	resourceSampler, err := sampler.New(logger)
	if err != nil {
		return fmt.Errorf("build resource sampler: %w", err)
	}

	typeIDs := make([]string, 0, cat.Len())
	for _, spec := range cat.Types() {
		typeIDs = append(typeIDs, spec.TypeID)
	}
	shared := state.New(typeIDs, scalerctl.IdleThreshold, cfg.MaxJobs)

	controller := scalerctl.New(scalerctl.Config{
		Catalog:      cat,
		Orchestrator: orchClient,
		Probe:        probe,
		AuditStore:   aggregator,
		JobEvents:    auditStore,
		Sampler:      resourceSampler,
		Shared:       shared,
		Logger:       logger,
		MaxJobs:      cfg.MaxJobs,
		BrokerHost:   cfg.BrokerHost,
		ReportURL:    cfg.ReportHost + "/report",
		LogsHostDir:  cfg.LogsRoot,
	})

	go controller.Run(ctx)
	logger.Info("scaling controller loop started", zap.Duration("poll_interval", scalerctl.PollInterval))

	server := httpapi.NewServer(shared, orchClient, auditStore, authStore, cfg.LogsRoot, logger)
	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting http api", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server stopped unexpectedly", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received, draining in-flight requests")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}

	logger.Info("scaler stopped gracefully")
	return nil
}

// newLogger builds the process logger: JSON output, ISO8601 timestamps,
// stdout/stderr sinks.
func newLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"

	logger, err := cfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}
