/*
Package main is the entry point for the communication hub.

It is responsible for loading configuration, initializing the global logging
system, connecting the chat store and attachment storage, wiring the presence
registry and hub, starting the HTTP server, and gracefully handling operating
system interrupt signals (SIGINT, SIGTERM) for a smooth shutdown.
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"commhub/internal/app/chatstore"
	"commhub/internal/app/hub"
	"commhub/internal/app/presence"
	"commhub/internal/app/storage"
	"commhub/internal/app/ws"
	"commhub/internal/configs"
	"commhub/internal/handler"
	"commhub/internal/pkg/logx"
)

func main() {
	// Load configuration from environment variables
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	logx.InitGlobalLogger(cfg.Environment == "development")
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect the conversation store and run migrations
	pool, err := chatstore.NewPool(cfg.DatabaseDSN)
	if err != nil {
		logx.Fatal(err, "Failed to connect to the database")
	}
	defer pool.Close()

	store := chatstore.NewPostgresStore(pool)

	// Attachment object storage
	storageService, err := storage.NewStorageService(storage.ServiceConfig{
		S3BucketName:      cfg.S3BucketName,
		S3Endpoint:        cfg.S3Endpoint,
		S3AccessKeyID:     cfg.S3AccessKeyID,
		S3SecretAccessKey: cfg.S3SecretAccessKey,
	})
	if err != nil {
		logx.Fatal(err, "Failed to initialize attachment storage")
	}

	// Presence registry, connection table, and the hub tying them together
	registry := presence.NewRegistry()
	table := ws.NewTable()
	commHub := hub.New(registry, store, table)

	// Setup HTTP server and routes
	router := handler.Router(&handler.AppDeps{
		Hub:            commHub,
		Registry:       registry,
		Table:          table,
		Store:          store,
		StorageService: storageService,
		Config:         cfg,
	})

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logx.Info(fmt.Sprintf("Communication hub starting on http://localhost%s", serverAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.Fatal(err, "Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server with a timeout of 5 seconds.
	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Fatal(err, "Server forced to shutdown")
	}

	table.Shutdown()

	logx.Info("Server gracefully stopped.")
}
