package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agjmills/gallery/internal/config"
	"github.com/agjmills/gallery/internal/database"
	"github.com/agjmills/gallery/internal/gallery"
	"github.com/agjmills/gallery/internal/jobs"
	"github.com/agjmills/gallery/internal/logger"
	"github.com/agjmills/gallery/internal/routes"
	"github.com/agjmills/gallery/internal/storage"
	"github.com/dustin/go-humanize"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.InitWithFile(cfg.Env, logger.FileOptions{
		Path:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	})

	logger.Info("configuration loaded",
		"env", cfg.Env,
		"storage_backend", cfg.StorageBackend,
		"max_object_size", humanize.IBytes(uint64(cfg.MaxObjectSize)),
		"max_video_size", humanize.IBytes(uint64(cfg.MaxVideoSize)),
		"chunked_upload_threshold", humanize.IBytes(uint64(cfg.ChunkedUploadThreshold)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(db)

	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	store, err := storage.NewFromConfig(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	if c, ok := store.(io.Closer); ok {
		defer c.Close()
	}

	svc := gallery.NewService(db, store, cfg)

	sweeper, err := jobs.New(svc, cfg.OrphanSweepInterval)
	if err != nil {
		log.Fatalf("Failed to create orphan sweeper: %v", err)
	}
	sweeper.Start()
	defer sweeper.Shutdown()

	versionInfo := fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
	addr := fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           routes.Handler(db, cfg, store, svc, versionInfo),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting gallery server",
			"address", addr,
			"environment", cfg.Env,
			"version", versionInfo,
		)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("shutting down", "timeout", shutdownTimeout)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
		}
	}
}
