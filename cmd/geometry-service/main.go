package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/maliev/geometry-service/internal/analysis"
	"github.com/maliev/geometry-service/internal/config"
	"github.com/maliev/geometry-service/internal/consumer"
	"github.com/maliev/geometry-service/internal/download"
	"github.com/maliev/geometry-service/internal/health"
	"github.com/maliev/geometry-service/internal/kernel"
	"github.com/maliev/geometry-service/internal/logging"
	"github.com/maliev/geometry-service/internal/metrics"
	"github.com/maliev/geometry-service/internal/storage"
)

// Version information (set via ldflags)
var (
	Version = "v0.1.0"
	GitSHA  = "unknown"
)

func main() {
	cfg := config.MustLoad()

	logging.Setup(logging.Config{Format: cfg.Log.Format, Level: cfg.Log.Level})
	slog.Info("starting geometry service", "version", Version, "git_sha", GitSHA)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown handler
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		sig := <-ch
		slog.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	if cfg.Metrics.Enabled {
		metrics.Init("geometry_service")
		go func() {
			if err := metrics.Serve(cfg.Metrics.Address); err != nil {
				slog.Error("metrics server failed", "error", err)
			}
		}()
	}

	store, err := storage.NewObjectStore(storage.Config{
		Backend:   cfg.Storage.Backend,
		Endpoint:  cfg.Storage.Endpoint,
		Region:    cfg.Storage.Region,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
		LocalDir:  cfg.Storage.LocalDir,
	})
	if err != nil {
		log.Fatalf("[main] failed to create object store: %v", err)
	}
	defer store.Close()

	downloads := download.NewManager(store, download.Options{
		MaxBytes: cfg.Limits.MaxFileSizeBytes(),
		Attempts: cfg.Limits.DownloadAttempts,
		TempDir:  cfg.Limits.TempDir,
	})

	kern := kernel.New(kernel.NewTessellator(kernel.TessellatorConfig{
		Endpoint: cfg.Kernel.TessellationEndpoint,
		Timeout:  cfg.Kernel.TessellationTimeout,
	}))

	publisher := consumer.NewPublisher(consumer.PublisherConfig{
		Brokers:         cfg.Broker.Brokers,
		CompletedTopic:  cfg.Broker.CompletedTopic,
		FailedTopic:     cfg.Broker.FailedTopic,
		DeadLetterTopic: cfg.Broker.DeadLetterTopic,
	})
	defer publisher.Close()

	pipeline := analysis.NewPipeline(downloads, kern, publisher, cfg.Limits.JobTimeout)

	var current atomic.Pointer[consumer.Consumer]
	go func() {
		hs := health.NewServer(func() bool {
			if c := current.Load(); c != nil {
				return c.Ready()
			}
			return false
		})
		if err := hs.ListenAndServe(cfg.Health.Address); err != nil {
			slog.Error("health server failed", "error", err)
		}
	}()

	// An unresolved message (publish failure) surfaces as an error here.
	// The reader is discarded and recreated each round: rejoining the group
	// resumes from the last committed offset, so the failed message is
	// redelivered. Reusing the reader would skip past it, and the next
	// cumulative commit would silently acknowledge it.
	for {
		reader := consumer.NewKafkaReader(
			cfg.Broker.Brokers, cfg.Broker.GroupID, cfg.Broker.UploadTopic, cfg.Broker.MaxInFlight)
		cons := consumer.New(reader, pipeline, publisher, consumer.Config{
			Workers:       cfg.Broker.MaxInFlight,
			DefaultBucket: cfg.Storage.Bucket,
		})
		current.Store(cons)

		err := cons.Run(ctx)
		if cerr := reader.Close(); cerr != nil {
			slog.Warn("reader close failed", "error", cerr)
		}
		if ctx.Err() != nil {
			break
		}
		slog.Error("consumer stopped, restarting", "error", err)
		select {
		case <-time.After(5 * time.Second):
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}

	slog.Info("geometry service stopped cleanly")
}
