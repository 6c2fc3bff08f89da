package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"m3u8conv/config"
	"m3u8conv/credentials"
	"m3u8conv/engine"
	"m3u8conv/failures"
	"m3u8conv/job"
	"m3u8conv/logger"
	"m3u8conv/metrics"
	"m3u8conv/routes"
	"m3u8conv/success"
	writerbackends "m3u8conv/writerBackends"
)

const shutdownTimeout = 15 * time.Second

func newServeCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the conversion HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configFlag)
		},
	}
}

func runServe(parent context.Context, configPath string) error {
	if parent == nil {
		parent = context.Background()
	}

	// a missing .env is normal outside development
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(cfg.Logging.File, cfg.Logging.Console, logger.ParseLevel(cfg.Logging.Level)); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	logger.Info("Starting m3u8conv server initialization")

	if err := os.MkdirAll(cfg.Paths.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another m3u8conv server is already using this data directory")
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warnf("Failed to release instance lock: %v", err)
		}
	}()

	stores, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer stores.close()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ffmpeg := engine.NewFFmpeg(cfg.Engine.FFmpegPath, cfg.Engine.UserAgent, cfg.Engine.ProtocolWhitelist)
	if path, err := ffmpeg.Check(); err != nil {
		// Don't exit - /health reports the degraded state
		logger.Errorf("ffmpeg is not available, conversions will fail: %v", err)
	} else {
		logger.Infof("Using ffmpeg at %s", path)
	}

	registry := job.NewMemoryRegistry()
	stats := metrics.New(registry)
	callbacks := job.NewCallbacks("m3u8conv/" + routes.BuildInfo().Version)
	publisher := &writerbackends.Publisher{
		Lookup:         credentials.GetCredentials,
		DirectServeDir: filepath.Join(cfg.Paths.DataDir, "published"),
	}

	worker := job.NewWorker(registry, ffmpeg, job.WorkerOptions{
		OutputDir:     cfg.Paths.OutputDir,
		PublicBaseURL: cfg.Server.PublicBaseURL,
		MaxConcurrent: int64(cfg.Jobs.MaxConcurrent),
		Hooks: []job.FinishHook{
			stats.Hook,
			success.RecordJob,
			failures.RecordJob,
			publisher.Hook,
			callbacks.Hook,
		},
	})

	sweeper := job.NewSweeper(registry, job.RetentionPolicy{
		CompletedTTL:  cfg.CompletedTTL(),
		ErrorTTL:      cfg.ErrorTTL(),
		SweepInterval: cfg.SweepInterval(),
	})
	sweeper.OnEvict = stats.Evicted
	go sweeper.Run(ctx)

	logger.Info("Starting cleanup routine (runs every 24 hours)")
	go cleanupRoutine(ctx, cfg.HistoryMaxAge())

	server := routes.NewServer(routes.Deps{
		BaseContext:      ctx,
		Registry:         registry,
		Worker:           worker,
		OutputDir:        cfg.Paths.OutputDir,
		UploadDir:        cfg.Paths.UploadDir,
		MaxUploadBytes:   cfg.Upload.MaxBytes,
		SubmitRPS:        cfg.Limits.SubmitRPS,
		SubmitBurst:      cfg.Limits.SubmitBurst,
		FFmpegCheck:      ffmpeg.Check,
		LookupPublishKey: credentials.GetCredentials,
		Metrics:          stats,
		MetricsHandler:   stats.Handler(),
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Bind,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Infof("m3u8conv server listening on %s", cfg.Server.Bind)
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Shutdown requested, draining HTTP server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("HTTP server shutdown: %v", err)
	}

	// running engines see the cancelled context; wait for their terminal updates
	stop()
	worker.Wait()
	logger.Info("m3u8conv server stopped")
	return nil
}

type storeSet struct {
	closers []func() error
}

func (s *storeSet) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			logger.Warnf("Failed to close store: %v", err)
		}
	}
}

// openStores opens the pebble-backed credentials and history stores
func openStores(cfg *config.Config) (*storeSet, error) {
	s := &storeSet{}

	logger.Debug("Initializing credentials database")
	if err := credentials.OpenDB(cfg.CredentialsDBPath()); err != nil {
		return nil, fmt.Errorf("open credentials store: %w", err)
	}
	s.closers = append(s.closers, credentials.CloseDB)

	logger.Debug("Initializing failures database")
	if err := failures.Init(cfg.FailuresDBPath()); err != nil {
		s.close()
		return nil, fmt.Errorf("open failure store: %w", err)
	}
	s.closers = append(s.closers, failures.Close)

	logger.Debug("Initializing success database")
	if err := success.Init(cfg.SuccessDBPath()); err != nil {
		s.close()
		return nil, fmt.Errorf("open success store: %w", err)
	}
	s.closers = append(s.closers, success.Close)

	logger.Info("History and credentials databases initialized")
	return s, nil
}

// cleanupRoutine periodically trims success and failure history older than maxAge
func cleanupRoutine(ctx context.Context, maxAge time.Duration) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Cleanup routine stopped due to context cancellation")
			return
		case <-ticker.C:
			cleanupHistory(maxAge)
		}
	}
}

func cleanupHistory(maxAge time.Duration) {
	logger.Debugf("Cleaning up history records older than %v", maxAge)

	if n, err := success.CleanupOldRecords(maxAge); err != nil {
		logger.Errorf("Failed to cleanup old success records: %v", err)
	} else {
		logger.Infof("Removed %d old success records", n)
	}

	if n, err := failures.CleanupOldRecords(maxAge); err != nil {
		logger.Errorf("Failed to cleanup old failure records: %v", err)
	} else {
		logger.Infof("Removed %d old failure records", n)
	}
}
