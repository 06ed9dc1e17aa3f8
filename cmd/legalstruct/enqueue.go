package main

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/adverant/nexus/legalstruct-worker/internal/config"
	"github.com/adverant/nexus/legalstruct-worker/internal/queue"
)

var (
	enqueueFlags overrides
	enqueueUser  string

	enqueueCmd = &cobra.Command{
		Use:   "enqueue <file>...",
		Short: "Submit documents to the structuring worker queue",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runEnqueue,
	}
)

func init() {
	enqueueFlags.register(enqueueCmd)
	enqueueCmd.Flags().StringVar(&enqueueUser, "user-id", "", "user the jobs belong to")
}

// enqueuer submits one job and returns its id
type enqueuer func(ctx context.Context, job *queue.StructureJob) (string, error)

func runEnqueue(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	submit, closeFn, err := newEnqueuer(cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	for _, path := range args {
		job, err := structureJob(cmd, path)
		if err != nil {
			return err
		}
		id, err := submit(cmd.Context(), job)
		if err != nil {
			return fmt.Errorf("failed to enqueue %s: %w", path, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", id, path)
	}
	return nil
}

// structureJob turns a file plus the override flags into a queue payload
func structureJob(cmd *cobra.Command, path string) (*queue.StructureJob, error) {
	doc, err := loadDocument(path)
	if err != nil {
		return nil, err
	}
	req := doc.processRequest()
	if err := enqueueFlags.apply(cmd, req); err != nil {
		return nil, err
	}

	return &queue.StructureJob{
		JobID:         req.JobID,
		DocumentID:    req.DocumentID,
		UserID:        enqueueUser,
		Filename:      req.Filename,
		MimeType:      req.MimeType,
		Text:          req.Text,
		ReferenceText: req.ReferenceText,
		FileBuffer:    req.FileBuffer,
		Models:        req.Models,
		MaxRetries:    req.MaxRetries,
		DiffThreshold: req.DiffThreshold,
	}, nil
}

// newEnqueuer picks the submit path matching the worker's QUEUE_BACKEND
func newEnqueuer(cfg *config.Config) (enqueuer, func(), error) {
	switch cfg.QueueBackend {
	case "asynq":
		opt, err := asynq.ParseRedisURI(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		client := asynq.NewClient(opt)
		submit := func(ctx context.Context, job *queue.StructureJob) (string, error) {
			task, err := queue.NewStructureTask(job, asynq.Queue(cfg.QueueName), asynq.TaskID(job.JobID))
			if err != nil {
				return "", err
			}
			info, err := client.EnqueueContext(ctx, task)
			if err != nil {
				return "", err
			}
			return info.ID, nil
		}
		return submit, func() { client.Close() }, nil

	case "redis":
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		client := redis.NewClient(opt)
		producer := queue.NewProducer(client, cfg.QueueName)
		return producer.Enqueue, func() { client.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("QUEUE_BACKEND must be redis or asynq, got %q", cfg.QueueBackend)
	}
}
