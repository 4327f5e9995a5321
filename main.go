package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ideabox/config"
	"ideabox/core/port/out"
	"ideabox/internal/bootstrap"
	"ideabox/pkg/logger"

	"github.com/joho/godotenv"
)

const (
	shutdownTimeout = 30 * time.Second // Maximum time to wait for graceful shutdown
)

func main() {
	// Load .env file if exists (for local development)
	envErr := godotenv.Load()

	mode := flag.String("mode", "all", "Run mode: api, worker, all")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	logLevel := logger.LevelInfo
	if cfg.LogLevel != "" {
		logLevel = logger.ParseLevel(cfg.LogLevel)
	} else if cfg.IsDevelopment() {
		logLevel = logger.LevelDebug
	}
	logger.Init(logger.Config{
		Level:   logLevel,
		Service: "ideabox-" + *mode,
	})
	if envErr != nil {
		logger.Debug("No .env file found, using environment variables")
	}

	switch *mode {
	case "api", "worker", "all":
	default:
		logger.Fatal("Unknown mode: %s", *mode)
	}

	ctx := context.Background()
	deps, cleanup, err := bootstrap.NewDependencies(ctx, cfg)
	if errors.Is(err, out.ErrSnapshotOwned) {
		logger.Fatal("Another process already writes the %s snapshot, run one process per snapshot: %v", cfg.PersistBackend, err)
	}
	if err != nil {
		logger.Fatal("Failed to initialize dependencies: %v", err)
	}
	defer cleanup()

	w := bootstrap.NewWorker(deps, *mode != "api")
	if err := w.Start(); err != nil {
		logger.Fatal("Failed to start worker pool: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if *mode == "worker" {
		logger.Info("Worker running, intake every %v", cfg.IntakeInterval)
		<-sigChan
		logger.Info("Shutting down worker (timeout: %v)...", shutdownTimeout)
		shutdown(deps, w, nil)
		return
	}

	app := bootstrap.NewAPI(deps, w.Pool, w.Trigger())

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-sigChan
		logger.Info("Shutting down (timeout: %v)...", shutdownTimeout)
		shutdown(deps, w, func(ctx context.Context) error {
			// open SSE streams would otherwise hold the server open
			deps.SSEHub.CloseAll()
			return app.ShutdownWithContext(ctx)
		})
	}()

	addr := ":" + cfg.Port
	logger.Info("Starting API server on %s (mode: %s)", addr, *mode)
	if err := app.Listen(addr); err != nil {
		logger.Error("Server stopped: %v", err)
		signal.Stop(sigChan)
		close(sigChan)
	}
	<-done
}

// shutdown stops the HTTP server first so pending reward requests can finish,
// then intake and the pool, then writes a final snapshot.
func shutdown(deps *bootstrap.Dependencies, w *bootstrap.Worker, stopHTTP func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if stopHTTP != nil {
		if err := stopHTTP(ctx); err != nil {
			logger.Error("Error shutting down API server: %v", err)
		}
	}

	w.Stop(ctx)

	if err := deps.Store.Persist(ctx); err != nil {
		logger.Error("Final persist failed: %v", err)
	}

	if ctx.Err() != nil {
		logger.Warn("Shutdown timed out, forcing exit")
		os.Exit(1)
	}
	logger.Info("Shut down gracefully")
}
