package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hookdeck/railpipe/internal/archiver"
	"github.com/hookdeck/railpipe/internal/config"
	"github.com/hookdeck/railpipe/internal/departures"
	"github.com/hookdeck/railpipe/internal/exporter"
	"github.com/hookdeck/railpipe/internal/ldbws"
	"github.com/hookdeck/railpipe/internal/logging"
	"github.com/hookdeck/railpipe/internal/resourcelock"
	"github.com/hookdeck/railpipe/internal/version"
	"github.com/hookdeck/railpipe/internal/worker"
	"go.uber.org/zap"
)

type App struct {
	config *config.Config
	logger *logging.Logger
}

type Option func(*App)

// WithLogger replaces the logger built from the configuration.
func WithLogger(logger *logging.Logger) Option {
	return func(a *App) {
		a.logger = logger
	}
}

func New(cfg *config.Config, opts ...Option) *App {
	a := &App{
		config: cfg,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *App) Run(ctx context.Context) error {
	logger := a.logger
	if logger == nil {
		var err error
		logger, err = logging.NewLogger(
			logging.WithLogLevel(a.config.LogLevel),
			logging.WithLogFormat(a.config.LogFormat),
		)
		if err != nil {
			return err
		}
		defer logger.Sync()
	}
	return run(ctx, a.config, logger)
}

func run(mainContext context.Context, cfg *config.Config, logger *logging.Logger) error {
	logger.Info("starting railpipe", zap.String("version", version.Version()))
	logger.Info("configuration", cfg.LogConfigurationSummary()...)

	supervisor, err := buildWorkers(cfg, logger)
	if err != nil {
		logger.Error("failed to build workers", zap.Error(err))
		return err
	}

	// Workers only stop through Stop so a tick in flight is never cut short
	// by the caller's context.
	workerCtx := context.WithoutCancel(mainContext)
	if err := supervisor.Start(workerCtx); err != nil {
		logger.Error("failed to start workers", zap.Error(err))
		_ = supervisor.Shutdown()
		return err
	}

	// Handle sigterm and await termChan signal
	termChan := make(chan os.Signal, 1)
	signal.Notify(termChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(termChan)

	select {
	case sig := <-termChan:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	case <-mainContext.Done():
		logger.Info("context cancelled, shutting down")
	}

	shutdownErr := supervisor.Shutdown()
	for _, status := range supervisor.Status() {
		logger.Info("worker exited",
			zap.String("worker", status.Name),
			zap.String("state", status.State))
	}
	if !supervisor.IsHealthy() {
		logger.Warn("one or more workers failed before shutdown")
	}

	logger.Info("railpipe shutdown complete")
	return shutdownErr
}

// buildWorkers wires the ingest, rotation and optional export workers to
// a shared pair of directory locks.
func buildWorkers(cfg *config.Config, logger *logging.Logger) (*worker.WorkerSupervisor, error) {
	client, err := ldbws.New(cfg.LDBToken,
		ldbws.WithEndpoint(cfg.LDBEndpoint),
		ldbws.WithNumRows(cfg.LDBNumRows),
		ldbws.WithTimeout(cfg.HTTPTimeout()),
	)
	if err != nil {
		return nil, err
	}

	liveLock := resourcelock.New("live")
	archiveLock := resourcelock.New("archive")

	ingester := departures.New(client, cfg.StationsToQuery, cfg.LogFileDirectory, liveLock,
		worker.WithWorkerName(logger, "departures"))
	rotator := archiver.New(cfg.LogFileDirectory, liveLock, archiveLock,
		worker.WithWorkerName(logger, "archiver"))

	supervisor := worker.NewWorkerSupervisor(logger, worker.WithShutdownTimeout(cfg.ShutdownTimeout()))

	ingestWorker, err := worker.New(ingester, worker.Config{
		Name:      "departures",
		Interval:  cfg.QueryInterval(),
		Precision: cfg.QueryPrecision(),
	}, logger)
	if err != nil {
		return nil, err
	}
	supervisor.Register(ingestWorker)

	rotateWorker, err := worker.New(rotator, worker.Config{
		Name:      "archiver",
		Interval:  cfg.RolloverInterval(),
		Precision: cfg.RolloverPrecision(),
	}, logger)
	if err != nil {
		return nil, err
	}
	supervisor.Register(rotateWorker)

	if cfg.Export.Enabled() {
		exp := exporter.New(cfg.Export.BucketURL, rotator.ArchiveDir(), archiveLock,
			worker.WithWorkerName(logger, "exporter"),
			exporter.WithPrefix(cfg.Export.Prefix),
			exporter.WithUploadTimeout(cfg.Export.UploadTimeout()),
		)
		exportWorker, err := worker.New(exp, worker.Config{
			Name:      "exporter",
			Interval:  cfg.Export.Interval(),
			Precision: cfg.Export.Precision(),
		}, logger)
		if err != nil {
			return nil, err
		}
		supervisor.Register(exportWorker)
	}

	return supervisor, nil
}
