/**
 * Asynq Queue Consumer for the Legal Structuring Worker
 *
 * Alternative backend (QUEUE_BACKEND=asynq) for producers that submit
 * "structure-document" tasks through asynq instead of the plain Redis LIST.
 * asynq owns retries here; jobs that cannot be decoded skip them.
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/adverant/nexus/legalstruct-worker/internal/logging"
	"github.com/adverant/nexus/legalstruct-worker/internal/processor"
	"github.com/adverant/nexus/legalstruct-worker/internal/storage"
)

// Consumer handles structure-document tasks from asynq
type Consumer struct {
	client    *asynq.Client
	server    *asynq.Server
	mux       *asynq.ServeMux
	processor processor.DocumentProcessorInterface
	results   Queue
	config    *ConsumerConfig
	logger    *logging.Logger
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	MaxRetry          int
	Processor         processor.DocumentProcessorInterface
	Results           Queue // optional; receives JobResult messages
	ProcessingTimeout int64 // milliseconds (default: 600000 = 10 minutes)
}

// NewConsumer creates a new queue consumer
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}

	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}

	if cfg.MaxRetry <= 0 {
		cfg.MaxRetry = defaultJobRetries
	}

	// Parse Redis connection options
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	logger := logging.NewLogger("AsynqConsumer").With("queue", cfg.QueueName)

	// Client is used by Enqueue
	client := asynq.NewClient(redisOpt)

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10, // Priority 10 for main queue
				"default":     1,  // Priority 1 for fallback
			},
			// Exponential backoff: 5s, 10s, 20s, capped at 60s
			RetryDelayFunc: retryDelay,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task processing error", "type", task.Type(), "error", err)
			}),
		},
	)

	mux := asynq.NewServeMux()

	consumer := &Consumer{
		client:    client,
		server:    server,
		mux:       mux,
		processor: cfg.Processor,
		results:   cfg.Results,
		config:    cfg,
		logger:    logger,
	}

	mux.HandleFunc(TaskStructureDocument, consumer.handleStructureDocument)

	return consumer, nil
}

func retryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	delay := time.Duration(5*(1<<uint(n))) * time.Second
	if delay > 60*time.Second || delay <= 0 {
		delay = 60 * time.Second
	}
	return delay
}

// NewStructureTask builds a structure-document task for job
func NewStructureTask(job *StructureJob, opts ...asynq.Option) (*asynq.Task, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}
	return asynq.NewTask(TaskStructureDocument, payload, opts...), nil
}

// Enqueue submits job to the consumer's queue
func (c *Consumer) Enqueue(ctx context.Context, job *StructureJob) (*asynq.TaskInfo, error) {
	task, err := NewStructureTask(job)
	if err != nil {
		return nil, err
	}
	opts := []asynq.Option{asynq.Queue(c.config.QueueName), asynq.MaxRetry(c.config.MaxRetry)}
	if job.JobID != "" {
		opts = append(opts, asynq.TaskID(job.JobID))
	}
	return c.client.EnqueueContext(ctx, task, opts...)
}

// Start starts the queue consumer
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("Starting asynq consumer", "concurrency", c.config.Concurrency)

	if err := c.server.Start(c.mux); err != nil {
		return fmt.Errorf("failed to start asynq server: %w", err)
	}
	return nil
}

// Stop stops the queue consumer gracefully
func (c *Consumer) Stop(ctx context.Context) error {
	c.logger.Info("Stopping asynq consumer")

	c.server.Shutdown()

	if err := c.client.Close(); err != nil {
		return fmt.Errorf("failed to close client: %w", err)
	}

	return nil
}

// handleStructureDocument processes one structure-document task
func (c *Consumer) handleStructureDocument(ctx context.Context, task *asynq.Task) error {
	startTime := time.Now()

	var job StructureJob
	if err := json.Unmarshal(task.Payload(), &job); err != nil {
		return fmt.Errorf("failed to unmarshal job data: %v: %w", err, asynq.SkipRetry)
	}
	if job.JobID == "" {
		if id, ok := asynq.GetTaskID(ctx); ok {
			job.JobID = id
		}
	}

	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		maxRetry = c.config.MaxRetry
	}
	log := c.logger.With("jobId", job.JobID, "documentId", job.DocumentID, "attempt", retried+1)

	if err := c.processor.UpdateJobStatus(ctx, job.JobID, storage.StatusProcessing, job.statusMetadata()); err != nil {
		log.Warn("Failed to update status to processing", "error", err)
	}

	result, err := runJob(ctx, c.processor, &job, c.timeout())
	if err != nil {
		log.Error("Processing failed", "error", err, "duration", time.Since(startTime))

		// Only the last attempt is terminal
		if retried >= maxRetry {
			if updateErr := c.processor.UpdateJobStatus(ctx, job.JobID, storage.StatusFailed, map[string]interface{}{
				"error": err.Error(),
				"code":  errorCode(err),
			}); updateErr != nil {
				log.Warn("Failed to update status to failed", "error", updateErr)
			}
			c.publish(ctx, newJobResult(&job, nil, err, retried+1))
		}

		return fmt.Errorf("document structuring failed: %w", err)
	}

	log.Info("Processing finished",
		"status", result.Status,
		"cached", result.Cached,
		"duration", time.Since(startTime))
	c.publish(ctx, newJobResult(&job, result, nil, retried+1))
	return nil
}

func (c *Consumer) timeout() time.Duration {
	if c.config.ProcessingTimeout > 0 {
		return time.Duration(c.config.ProcessingTimeout) * time.Millisecond
	}
	return defaultProcessingTimeout
}

func (c *Consumer) publish(ctx context.Context, result *JobResult) {
	if c.results == nil {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("Failed to marshal job result", "jobId", result.JobID, "error", err)
		return
	}
	if err := c.results.Send(ctx, data); err != nil {
		c.logger.Error("Failed to publish job result", "jobId", result.JobID, "error", err)
	}
}

// GetStatistics returns consumer statistics
func (c *Consumer) GetStatistics() map[string]interface{} {
	return map[string]interface{}{
		"concurrency": c.config.Concurrency,
		"queue":       c.config.QueueName,
		"maxRetry":    c.config.MaxRetry,
	}
}
