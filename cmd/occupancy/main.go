package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	httpadapter "github.com/couchcryptid/occupancy-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/occupancy-service/internal/adapter/kafka"
	mqttadapter "github.com/couchcryptid/occupancy-service/internal/adapter/mqtt"
	"github.com/couchcryptid/occupancy-service/internal/config"
	"github.com/couchcryptid/occupancy-service/internal/engine"
	"github.com/couchcryptid/occupancy-service/internal/feed"
	"github.com/couchcryptid/occupancy-service/internal/observability"
	"github.com/couchcryptid/occupancy-service/internal/pipeline"
)

func main() {
	config.LoadDotEnv()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	readings := feed.New(cfg.FeedMaxRecords)
	if cfg.FeedSeedFile != "" {
		n, err := seedFeed(readings, cfg.FeedSeedFile)
		if err != nil {
			logger.Error("failed to seed feed", "error", err, "file", cfg.FeedSeedFile)
			os.Exit(1)
		}
		metrics.ReadingsIngested.WithLabelValues("seed").Add(float64(n))
		logger.Info("feed seeded", "file", cfg.FeedSeedFile, "records", n)
	}

	eng := engine.New(cfg.Building, cfg.Location, logger, metrics)
	loader := pipeline.NewFeedLoader(readings)

	var (
		sink   httpadapter.Sink = httpadapter.FeedSink{Feed: readings}
		queued bool
		reader *kafkaadapter.Reader
		writer *kafkaadapter.Writer
	)
	if cfg.KafkaEnabled {
		reader = kafkaadapter.NewReader(cfg, logger)
		writer = kafkaadapter.NewWriter(cfg, logger)
		sink, queued = writer, true
		logger.Info("kafka ingestion enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaReadingsTopic)
	}

	srv := httpadapter.NewServer(httpadapter.Options{
		Addr:           cfg.HTTPAddr,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		View:           eng,
		Sink:           sink,
		Queued:         queued,
		Metrics:        metrics,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	var wg sync.WaitGroup

	// Start the engine. A terminal subscription error stops the service.
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := eng.Run(ctx, readings); err != nil {
			logger.Error("engine error", "error", err)
			stop()
		}
	}()

	if reader != nil {
		p := pipeline.New(reader, pipeline.NewDecoder(), loader, logger, metrics, "kafka", cfg.BatchSize)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.Run(ctx); err != nil {
				logger.Error("pipeline error", "error", err)
			}
		}()
	}

	if cfg.MQTTEnabled {
		sub := mqttadapter.NewSubscriber(cfg, loader, logger, metrics)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sub.Run(ctx); err != nil {
				logger.Error("mqtt subscriber error", "error", err)
				stop()
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	wg.Wait()

	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if err := readings.Close(); err != nil {
		logger.Error("feed close error", "error", err)
	}

	logger.Info("shutdown complete")
}

// seedFeed loads an exported reading collection into the feed.
func seedFeed(f *feed.Feed, path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open seed file: %w", err)
	}
	defer file.Close()

	records, err := feed.DecodeExport(file)
	if err != nil {
		return 0, err
	}
	if err := f.Load(records); err != nil {
		return 0, err
	}
	return len(records), nil
}
