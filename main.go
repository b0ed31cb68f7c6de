package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hlsworker/auth"
	"hlsworker/blobstore"
	"hlsworker/config"
	"hlsworker/encoder"
	"hlsworker/failures"
	"hlsworker/logger"
	"hlsworker/notify"
	"hlsworker/pipeline"
	"hlsworker/routes"
	"hlsworker/runs"
	"hlsworker/success"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		logger.Fatalf("Failed to load .env: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}

	if cfg.LogFile != "" {
		if err := logger.Init(cfg.LogFile, true); err != nil {
			logger.Fatalf("Failed to open log file: %v", err)
		}
	}
	defer logger.Close()
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Fatalf("Invalid log level: %v", err)
	}
	logger.SetLevel(level)

	logger.Infof("Starting hlsworker (environment=%s, storage=%s)", cfg.Environment, cfg.StorageBackend)
	if cfg.BackendAPIURL == "" {
		logger.Warn("Backend API URL is not configured; runs will publish media but cannot notify the backend")
	}

	if err := os.MkdirAll(config.GetDataDir(), 0755); err != nil {
		logger.Fatalf("Failed to create data directory: %v", err)
	}

	logger.Debug("Initializing failures database")
	if err := failures.Init(config.GetFailuresDBPath()); err != nil {
		logger.Fatalf("Failed to initialize failure store: %v", err)
	}
	defer failures.Close()

	logger.Debug("Initializing success database")
	if err := success.Init(config.GetSuccessDBPath()); err != nil {
		logger.Fatalf("Failed to initialize success store: %v", err)
	}
	defer success.Close()
	logger.Info("Run record databases initialized successfully")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := blobstore.New(ctx, cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize %s storage: %v", cfg.StorageBackend, err)
	}
	defer store.Close()

	if !encoder.Available(cfg.FFmpegBinary) {
		logger.Warnf("Encoder %s not found; every variant will fail until it is installed", cfg.FFmpegBinary)
	}

	logger.Infof("Variant ladder: %s (prefix %s)", strings.Join(cfg.Variants.Names(), ", "), cfg.VideoPrefix)

	tracker := runs.NewTracker(runs.DefaultHistory)
	controller := &pipeline.Controller{
		Settings: pipeline.SettingsFromConfig(cfg),
		Store:    store,
		Encoder:  encoder.NewFFmpeg(cfg.FFmpegBinary, cfg.FFmpegThreads),
		Notifier: notify.New(notify.Options{
			Timeout:     cfg.NotifyTimeout,
			MaxAttempts: cfg.NotifyMaxAttempts,
			BackoffUnit: cfg.NotifyBackoffUnit,
			Insecure:    cfg.IsDev,
		}),
		Recorder: runs.StoreRecorder{},
		Observer: tracker,
	}
	dispatcher := runs.NewDispatcher(controller, tracker, cfg.MaxConcurrentRuns)

	verifier := auth.NewVerifier(cfg.EventSharedSecret, "")
	if !verifier.Enabled() {
		logger.Warn("EVENT_SHARED_SECRET is not set; /events accepts unauthenticated requests")
	}

	go cleanupRoutine(ctx, cfg.RecordRetention)

	logger.Info("Registering HTTP routes")
	http.HandleFunc("/events", routes.EventsHandler(dispatcher, verifier))
	http.HandleFunc("/health", routes.HealthHandler(
		routes.HealthCheck{Name: "failures_db", Check: failures.CheckHealth},
		routes.HealthCheck{Name: "success_db", Check: success.CheckHealth},
		routes.HealthCheck{Name: "encoder", Check: func() error {
			if !encoder.Available(cfg.FFmpegBinary) {
				return fmt.Errorf("%s not found in PATH", cfg.FFmpegBinary)
			}
			return nil
		}},
	))
	http.HandleFunc("/version", routes.VersionHandler)
	http.HandleFunc("/status", routes.StatusHandler(tracker, dispatcher))
	http.HandleFunc("/failures", routes.FailureQueryHandler)
	http.HandleFunc("/failures/list", routes.FailureListHandler)
	http.HandleFunc("/success", routes.SuccessQueryHandler)
	http.HandleFunc("/success/list", routes.SuccessListHandler)
	http.Handle("/metrics", promhttp.Handler())
	if local, ok := store.(*blobstore.Local); ok {
		root, _ := filepath.Abs(local.Root())
		logger.Infof("Serving local storage from %s at /media/", root)
		http.Handle("/media/", http.StripPrefix("/media/", http.FileServer(http.Dir(root))))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		ReadHeaderTimeout: 10 * time.Second,
	}
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		logger.Fatalf("Server failed to start: %v", err)
	}

	logger.Infof("hlsworker listening on port %s (max %d concurrent runs)", cfg.Port, dispatcher.Limit())
	if err := serve(ctx, srv, ln, shutdownGrace); err != nil {
		logger.Errorf("Server stopped: %v", err)
	}
}

// shutdownGrace bounds how long shutdown waits for in-flight runs.
const shutdownGrace = 30 * time.Minute

// serve runs srv on ln until ctx is done, then stops accepting events and
// returns only after in-flight requests (and so their runs) have finished
// or grace has passed.
func serve(ctx context.Context, srv *http.Server, ln net.Listener, grace time.Duration) error {
	done := make(chan error, 1)
	go func() {
		<-ctx.Done()
		logger.Info("Shutting down, waiting for in-flight runs")
		shutdownCtx, stop := context.WithTimeout(context.Background(), grace)
		defer stop()
		done <- srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	if err := <-done; err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("All in-flight runs finished")
	return nil
}

// cleanupRoutine periodically removes run records older than maxAge
func cleanupRoutine(ctx context.Context, maxAge time.Duration) {
	logger.Infof("Cleanup routine started - records older than %v are removed daily", maxAge)
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Cleanup routine stopped due to context cancellation")
			return
		case <-ticker.C:
			logger.Info("Running scheduled cleanup of old records")
			if err := runs.CleanupRecords(maxAge); err != nil {
				logger.Errorf("Scheduled cleanup failed: %v", err)
				continue
			}
			logger.Info("Scheduled cleanup completed")
		}
	}
}
