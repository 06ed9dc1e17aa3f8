/**
 * Legal Structuring Worker - Main Entry Point
 *
 * Go worker that turns OCR'd legal text into a validated article tree.
 *
 * Architecture:
 * - Redis LIST (or asynq) consumer for the structuring job queue
 * - Tesseract OCR for scanned page images, OCR purification for all text
 * - Model escalation (cheapest first) with similarity scoring and a quality gate
 * - API key rotation with a per-key requests/minute budget
 * - PostgreSQL persistence plus a Redis result cache keyed by content hash
 * - Prometheus metrics on METRICS_ADDR
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adverant/nexus/legalstruct-worker/internal/app"
	"github.com/adverant/nexus/legalstruct-worker/internal/cache"
	"github.com/adverant/nexus/legalstruct-worker/internal/config"
	"github.com/adverant/nexus/legalstruct-worker/internal/logging"
	"github.com/adverant/nexus/legalstruct-worker/internal/metrics"
	"github.com/adverant/nexus/legalstruct-worker/internal/ocr/tesseract"
	"github.com/adverant/nexus/legalstruct-worker/internal/processor"
	"github.com/adverant/nexus/legalstruct-worker/internal/queue"
	"github.com/adverant/nexus/legalstruct-worker/internal/storage"
)

// consumer is the part of a queue backend main needs
type consumer struct {
	start func() error
	stop  func() error
}

func main() {
	// Load environment variables
	if err := godotenv.Load(".env.legalstruct"); err != nil {
		log.Printf("Warning: .env.legalstruct not found, using system environment variables")
	}

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.ValidateWorker(); err != nil {
		log.Fatalf("Invalid worker configuration: %v", err)
	}

	if err := logging.Init(cfg.LogLevel, cfg.NodeEnv); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logging.Sync()

	log.Printf("Legal Structuring Worker starting...")
	log.Printf("Configuration loaded: Provider=%s, Keys=%d, Models=%v, Backend=%s, Workers=%d",
		cfg.LLMProvider, len(cfg.LLMAPIKeys), cfg.Engine.Models, cfg.QueueBackend, cfg.WorkerConcurrency)

	// Metrics
	recorder := metrics.NewRecorder(prometheus.DefaultRegisterer)

	// Structuring engine
	eng, err := app.NewEngine(cfg, recorder)
	if err != nil {
		log.Fatalf("Failed to initialize structuring engine: %v", err)
	}

	// Storage: PostgreSQL + Redis result cache
	log.Printf("Connecting to storage (PostgreSQL + Redis cache)...")
	resultCache, err := cache.NewRedisCache(cfg.RedisURL, cfg.CacheTTL)
	if err != nil {
		log.Fatalf("Failed to connect result cache: %v", err)
	}
	defer resultCache.Close()

	postgres, err := storage.NewPostgresClient(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	storageManager := storage.NewStorageManager(postgres, resultCache)
	log.Printf("Storage manager initialized (PostgreSQL + Redis cache, ttl=%v)", cfg.CacheTTL)

	// OCR
	ocrEngine, err := tesseract.New(&tesseract.Config{Languages: cfg.TesseractLanguages})
	if err != nil {
		log.Fatalf("Failed to initialize Tesseract: %v", err)
	}

	// Document processor
	proc, err := processor.NewDocumentProcessor(&processor.ProcessorConfig{
		Engine:      eng,
		Storage:     storageManager,
		OCR:         ocrEngine,
		MaxFileSize: cfg.MaxFileSize,
	})
	if err != nil {
		log.Fatalf("Failed to initialize document processor: %v", err)
	}

	// Queue consumer
	log.Printf("Connecting to %s queue...", cfg.QueueBackend)
	queueConsumer, err := newConsumer(cfg, proc, resultCache)
	if err != nil {
		log.Fatalf("Failed to initialize queue consumer: %v", err)
	}

	// Metrics and health endpoint
	metricsServer := newMetricsServer(cfg.MetricsAddr, storageManager)
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Metrics server error: %v", err)
		}
	}()

	// Start queue consumer
	if err := queueConsumer.start(); err != nil {
		log.Fatalf("Failed to start queue consumer: %v", err)
	}

	// Print startup summary
	log.Printf("===========================================")
	log.Printf("Legal Structuring Worker is READY")
	log.Printf("===========================================")
	log.Printf("Queue: %s -> %s", cfg.QueueName, cfg.ResultQueueName)
	log.Printf("Workers: %d", cfg.WorkerConcurrency)
	log.Printf("Escalation: %v", cfg.Engine.Models)
	log.Printf("Thresholds: reject<%.2f approve>=%.2f", cfg.Engine.Quality.Rejection, cfg.Engine.Quality.Approval)
	log.Printf("Rate limit: %d req/min x %d keys", cfg.RateLimit, len(cfg.LLMAPIKeys))
	log.Printf("Metrics: %s/metrics", cfg.MetricsAddr)
	log.Printf("===========================================")
	log.Printf("Waiting for jobs...")

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	log.Printf("Received signal %v, initiating graceful shutdown...", sig)

	log.Printf("Stopping queue consumer...")
	if err := queueConsumer.stop(); err != nil {
		log.Printf("Error stopping queue consumer: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(ctx); err != nil {
		log.Printf("Error stopping metrics server: %v", err)
	}

	log.Printf("Closing storage manager...")
	if err := storageManager.Close(); err != nil {
		log.Printf("Error closing storage manager: %v", err)
	}

	log.Printf("Shutdown complete")
}

func newConsumer(cfg *config.Config, proc processor.DocumentProcessorInterface, resultCache *cache.RedisCache) (*consumer, error) {
	switch cfg.QueueBackend {
	case "asynq":
		c, err := queue.NewConsumer(&queue.ConsumerConfig{
			RedisURL:          cfg.RedisURL,
			QueueName:         cfg.QueueName,
			Concurrency:       cfg.WorkerConcurrency,
			Processor:         proc,
			Results:           queue.NewRedisQueue(resultCache.Client(), cfg.ResultQueueName),
			ProcessingTimeout: int64(cfg.ProcessingTimeout),
		})
		if err != nil {
			return nil, err
		}
		return &consumer{
			start: func() error { return c.Start(context.Background()) },
			stop:  func() error { return c.Stop(context.Background()) },
		}, nil

	default:
		c, err := queue.NewRedisConsumer(&queue.RedisConsumerConfig{
			RedisURL:          cfg.RedisURL,
			QueueName:         cfg.QueueName,
			ResultQueueName:   cfg.ResultQueueName,
			Concurrency:       cfg.WorkerConcurrency,
			Processor:         proc,
			ProcessingTimeout: int64(cfg.ProcessingTimeout),
		})
		if err != nil {
			return nil, err
		}
		return &consumer{start: c.Start, stop: c.Stop}, nil
	}
}

func newMetricsServer(addr string, sm *storage.StorageManager) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := healthCheck(r.Context(), sm); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintln(w, "ok")
	})
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}

func healthCheck(ctx context.Context, sm *storage.StorageManager) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// Check database
	if err := sm.Ping(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	return nil
}
