// cmd/orchestrator/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sublate/sublate/internal/api/routes"
	"github.com/sublate/sublate/internal/batch"
	"github.com/sublate/sublate/internal/config"
	"github.com/sublate/sublate/internal/events"
	"github.com/sublate/sublate/internal/executor"
	"github.com/sublate/sublate/internal/media"
	"github.com/sublate/sublate/internal/pipeline"
	"github.com/sublate/sublate/internal/recovery"
	"github.com/sublate/sublate/internal/scheduler"
	"github.com/sublate/sublate/internal/storage"
	"github.com/sublate/sublate/internal/storage/leveldb"
	"github.com/sublate/sublate/internal/storage/postgres"
)

func main() {
	// Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize the record store: PostgreSQL when configured, LevelDB otherwise
	var store storage.Store
	if cfg.Postgres.URL != "" {
		store, err = postgres.NewClient(cfg.Postgres)
		if err != nil {
			log.Fatalf("Failed to connect to postgres: %v", err)
		}
	} else {
		store, err = leveldb.NewClient(cfg.LevelDB)
		if err != nil {
			log.Fatalf("Failed to open record store: %v", err)
		}
	}
	defer store.Close()

	// Initialize the optional status event stream
	var publisher events.Publisher = events.Nop{}
	if cfg.NATS.URL != "" {
		natsPub, err := events.NewNATS(cfg.NATS)
		if err != nil {
			log.Fatalf("Failed to connect to NATS: %v", err)
		}
		publisher = natsPub
	}
	defer publisher.Close()

	// Wire the external collaborators
	collab := pipeline.Collaborators{
		Resolver:    media.NewResolver(cfg.Pipeline),
		Fetcher:     media.NewFetcher(cfg.Pipeline),
		Transcriber: media.NewTranscriber(cfg.Pipeline),
		Translator:  media.NewTranslator(cfg.Pipeline),
		Embedder:    media.NewEmbedder(cfg.Pipeline),
	}

	// Create the stage executor and scheduler
	exec := executor.New(store, collab, publisher, cfg.Pipeline.WorkDir,
		cfg.Worker.MaxStageRetries, time.Duration(cfg.Worker.RetryBackoffMS)*time.Millisecond)
	sched := scheduler.New(store, exec, cfg.Worker.MaxWorkers, cfg.Worker.QueueSize,
		time.Duration(cfg.Worker.LaunchDelayMS)*time.Millisecond)

	// Create the batch coordinator
	coord := batch.NewCoordinator(store, sched, collab.Resolver, publisher)

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start the worker pool
	sched.Start(ctx)

	// Resubmit tasks interrupted by the previous shutdown
	if err := recovery.NewManager(store, sched).Recover(ctx); err != nil {
		log.Printf("Warning: task recovery failed: %v", err)
	}

	// Start HTTP server
	router := routes.SetupRouter(cfg, store, sched, coord)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		log.Printf("HTTP server listening on :%s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server stopped with error: %v", err)
			cancel()
		}
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		log.Printf("Received shutdown signal: %v", sig)
	case <-ctx.Done():
	}

	// Stop accepting requests, then drain in-flight executors
	shutdownTimeout := time.Duration(cfg.Worker.ShutdownTimeout) * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during HTTP server shutdown: %v", err)
	}
	if err := sched.Shutdown(shutdownTimeout); err != nil {
		log.Printf("Error during scheduler shutdown: %v", err)
	}

	log.Println("Orchestrator shutdown complete")
}
