package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"petclassifier/classifier"
	"petclassifier/config"
	"petclassifier/db"
	phttp "petclassifier/http"
	"petclassifier/logging"
	"petclassifier/storage"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "config file path")
	flag.Parse()

	// 1. Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger := logging.Must(cfg.Log)
	defer logger.Sync()

	// 2. Initialize database
	store, err := db.Open(cfg.Database.Path)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.String("path", cfg.Database.Path), zap.Error(err))
	}
	defer store.Close()
	logger.Info("database initialized", zap.String("path", cfg.Database.Path))

	// 3. Load the model and follow changes to it
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	modelPath, err := classifier.ResolveModelPath(cfg.ML.ModelPath)
	if err != nil {
		logger.Fatal("failed to resolve model path", zap.Error(err))
	}
	if cfg.Storage.Enabled() {
		fetchModel(ctx, cfg.Storage, modelPath, logger)
	}
	watcher := classifier.NewWatcher(modelPath, logger)
	logger.Info("watching model", zap.String("path", watcher.Path()), zap.Bool("loaded", watcher.Current() != nil))
	go func() {
		if err := watcher.Run(ctx); err != nil {
			logger.Error("model watcher stopped", zap.Error(err))
		}
	}()

	// 4. Start HTTP server
	handlers, err := phttp.NewHandlers(watcher, store, cfg.Http.CacheSize, logger)
	if err != nil {
		logger.Fatal("failed to create handlers", zap.Error(err))
	}
	server := phttp.NewServer(phttp.ServerConfigFrom(cfg.Http), handlers, logger)
	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// 5. Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	if err := server.Stop(); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	logger.Info("exiting")
}

// fetchModel downloads the published artifact when none exists locally.
func fetchModel(ctx context.Context, cfg config.StorageConfig, path string, logger *zap.Logger) {
	if _, err := os.Stat(path); err == nil {
		return
	}
	store, err := storage.Dial(cfg)
	if err != nil {
		logger.Warn("model fetch disabled", zap.Error(err))
		return
	}
	if err := store.Fetch(ctx, filepath.Base(path), path); err != nil {
		logger.Warn("model fetch failed", zap.String("key", store.Key(filepath.Base(path))), zap.Error(err))
		return
	}
	logger.Info("model fetched from storage", zap.String("path", path))
}
