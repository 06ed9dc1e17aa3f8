/**
 * Redis Queue Consumer for the Legal Structuring Worker
 *
 * Compatible with the TypeScript RedisQueue producer: job ids on a LIST,
 * envelopes in "<queue>:data", status sets per job state and events on
 * "<queue>:events". Finished jobs are also published as JobResult messages
 * on the result queue.
 */

package queue

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adverant/nexus/legalstruct-worker/internal/logging"
	"github.com/adverant/nexus/legalstruct-worker/internal/processor"
	"github.com/adverant/nexus/legalstruct-worker/internal/storage"
)

var errNoJobs = stderrors.New("no jobs available")

// bookkeepingTimeout bounds the Redis writes around a job
const bookkeepingTimeout = 5 * time.Second

// RedisConsumer handles job consumption from Redis queue
type RedisConsumer struct {
	client    *redis.Client
	jobs      *RedisQueue
	results   Queue
	processor processor.DocumentProcessorInterface
	config    *RedisConsumerConfig
	logger    *logging.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// RedisConsumerConfig holds consumer configuration
type RedisConsumerConfig struct {
	RedisURL          string
	QueueName         string
	ResultQueueName   string
	Concurrency       int
	Processor         processor.DocumentProcessorInterface
	ProcessingTimeout int64         // milliseconds (default: 600000 = 10 minutes)
	PollTimeout       time.Duration // BRPOP block time (default: 5s)
}

// NewRedisConsumer creates a new Redis-based queue consumer
func NewRedisConsumer(cfg *RedisConsumerConfig) (*RedisConsumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	// Parse Redis URL
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	consumer, err := NewRedisConsumerFromClient(client, cfg)
	if err != nil {
		client.Close()
		return nil, err
	}
	return consumer, nil
}

// NewRedisConsumerFromClient creates a consumer on an existing client
func NewRedisConsumerFromClient(client *redis.Client, cfg *RedisConsumerConfig) (*RedisConsumer, error) {
	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}

	if cfg.QueueName == "" {
		cfg.QueueName = "legalstruct:jobs"
	}

	if cfg.ResultQueueName == "" {
		cfg.ResultQueueName = "legalstruct:results"
	}

	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 5 * time.Second
	}

	consumerCtx, cancel := context.WithCancel(context.Background())

	return &RedisConsumer{
		client:    client,
		jobs:      NewRedisQueue(client, cfg.QueueName),
		results:   NewRedisQueue(client, cfg.ResultQueueName),
		processor: cfg.Processor,
		config:    cfg,
		logger:    logging.NewLogger("RedisConsumer").With("queue", cfg.QueueName),
		ctx:       consumerCtx,
		cancel:    cancel,
	}, nil
}

// Start begins processing jobs from the queue
func (c *RedisConsumer) Start() error {
	c.logger.Info("Starting Redis queue consumer", "concurrency", c.config.Concurrency)

	for i := 0; i < c.config.Concurrency; i++ {
		c.wg.Add(1)
		go c.worker(i)
	}

	return nil
}

// Stop waits for in-flight jobs and closes the Redis connection
func (c *RedisConsumer) Stop() error {
	c.logger.Info("Stopping queue consumer")
	c.cancel()
	c.wg.Wait()
	return c.client.Close()
}

// worker is a goroutine that processes jobs
func (c *RedisConsumer) worker(id int) {
	defer c.wg.Done()
	c.logger.Debug("Worker started", "worker", id)

	for {
		select {
		case <-c.ctx.Done():
			c.logger.Debug("Worker stopping", "worker", id)
			return
		default:
			if err := c.processNextJob(); err != nil {
				if err == errNoJobs || c.ctx.Err() != nil {
					continue
				}
				c.logger.Error("Worker error", "worker", id, "error", err)
				// Small delay before trying again
				time.Sleep(time.Second)
			}
		}
	}
}

// processNextJob fetches and processes the next job from the queue. Once an
// id is popped, every write uses a bookkeeping context that Stop does not
// cancel, so a job finishing during shutdown is still recorded.
func (c *RedisConsumer) processNextJob() error {
	raw, err := c.jobs.Receive(c.ctx, c.config.PollTimeout)
	if err != nil {
		return err
	}
	if raw == nil {
		return errNoJobs
	}
	id := string(raw)

	ctx, cancel := bookkeepingContext()
	defer cancel()

	jobData, err := c.client.HGet(ctx, dataKey(c.config.QueueName), id).Result()
	if err != nil {
		return fmt.Errorf("failed to get job data for %s: %w", id, err)
	}

	var job RedisJobData
	if err := json.Unmarshal([]byte(jobData), &job); err != nil {
		c.client.SAdd(ctx, statusKey(c.config.QueueName, storage.StatusFailed), id)
		return fmt.Errorf("failed to unmarshal job %s: %w", id, err)
	}
	if job.Payload.JobID == "" {
		job.Payload.JobID = job.ID
	}

	log := c.logger.With("jobId", job.Payload.JobID, "documentId", job.Payload.DocumentID)

	// Creates the job row if the producer did not
	if err := c.processor.UpdateJobStatus(ctx, job.Payload.JobID, storage.StatusProcessing, job.Payload.statusMetadata()); err != nil {
		log.Warn("Could not record processing status", "error", err)
	}
	c.updateJobStatus(ctx, job.Payload.JobID, storage.StatusProcessing, nil)
	cancel()

	log.Info("Processing job", "attempt", job.Attempts+1, "maxRetries", job.MaxRetries)
	startTime := time.Now()

	// In-flight jobs are not cancelled by Stop; only the timeout bounds them
	result, err := runJob(context.Background(), c.processor, &job.Payload, c.timeout())

	ctx, cancel = bookkeepingContext()
	defer cancel()

	if err != nil {
		log.Error("Job failed", "error", err, "duration", time.Since(startTime))

		job.Attempts++
		if job.Attempts < job.MaxRetries {
			if requeueErr := c.requeue(ctx, &job); requeueErr != nil {
				return fmt.Errorf("failed to requeue job %s: %w", job.ID, requeueErr)
			}
			log.Info("Job re-queued for retry", "attempt", job.Attempts, "maxRetries", job.MaxRetries)
			return nil
		}

		if updateErr := c.processor.UpdateJobStatus(ctx, job.Payload.JobID, storage.StatusFailed, map[string]interface{}{
			"error": err.Error(),
			"code":  errorCode(err),
		}); updateErr != nil {
			log.Warn("Failed to record failed status", "error", updateErr)
		}
		c.finish(ctx, newJobResult(&job.Payload, nil, err, job.Attempts))
		return nil
	}

	log.Info("Job finished",
		"status", result.Status,
		"cached", result.Cached,
		"duration", time.Since(startTime))
	c.finish(ctx, newJobResult(&job.Payload, result, nil, job.Attempts+1))
	return nil
}

// requeue stores the bumped envelope and pushes the id back in one transaction
func (c *RedisConsumer) requeue(ctx context.Context, job *RedisJobData) error {
	updatedData, err := json.Marshal(job)
	if err != nil {
		return err
	}
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, dataKey(c.config.QueueName), job.ID, updatedData)
		pipe.SRem(ctx, statusKey(c.config.QueueName, storage.StatusProcessing), job.Payload.JobID)
		pipe.LPush(ctx, c.config.QueueName, job.ID)
		return nil
	})
	return err
}

func bookkeepingContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), bookkeepingTimeout)
}

func (c *RedisConsumer) timeout() time.Duration {
	if c.config.ProcessingTimeout > 0 {
		return time.Duration(c.config.ProcessingTimeout) * time.Millisecond
	}
	return defaultProcessingTimeout
}

// finish records the terminal status and publishes the result message
func (c *RedisConsumer) finish(ctx context.Context, result *JobResult) {
	c.updateJobStatus(ctx, result.JobID, result.Status, result)

	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("Failed to marshal job result", "jobId", result.JobID, "error", err)
		return
	}
	if err := c.results.Send(ctx, data); err != nil {
		c.logger.Error("Failed to publish job result", "jobId", result.JobID, "error", err)
	}
}

// updateJobStatus moves the job between status sets and publishes an event
func (c *RedisConsumer) updateJobStatus(ctx context.Context, jobID string, status string, result *JobResult) {
	queue := c.config.QueueName

	if status != storage.StatusProcessing {
		c.client.SRem(ctx, statusKey(queue, storage.StatusProcessing), jobID)
	}
	c.client.SAdd(ctx, statusKey(queue, status), jobID)

	if result != nil {
		data, _ := json.Marshal(result)
		hash := "results"
		if status == storage.StatusFailed {
			hash = "errors"
		}
		c.client.HSet(ctx, statusKey(queue, hash), jobID, data)
	}

	// Publish event for WebSocket streaming
	event := map[string]interface{}{
		"event":     fmt.Sprintf("job:%s", status),
		"jobId":     jobID,
		"timestamp": time.Now().Format(time.RFC3339),
	}
	eventData, _ := json.Marshal(event)
	c.client.Publish(ctx, statusKey(queue, "events"), eventData)
}

// GetStats returns queue statistics
func (c *RedisConsumer) GetStats(ctx context.Context) (map[string]int64, error) {
	waiting, err := c.jobs.Len(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read queue length: %w", err)
	}

	stats := map[string]int64{"waiting": waiting}
	for _, status := range []string{storage.StatusProcessing, storage.StatusCompleted, storage.StatusNeedsReview, storage.StatusFailed} {
		n, err := c.client.SCard(ctx, statusKey(c.config.QueueName, status)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s count: %w", status, err)
		}
		stats[status] = n
	}
	return stats, nil
}
