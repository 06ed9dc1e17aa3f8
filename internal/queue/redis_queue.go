/**
 * Redis LIST queue
 *
 * Producers LPUSH, consumers BRPOP, so messages are delivered oldest first.
 * Job envelopes live in the "<queue>:data" hash and only the id travels on
 * the list, which keeps re-queueing a retry cheap.
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultJobRetries = 3

// Queue is a FIFO message queue
type Queue interface {
	Send(ctx context.Context, payload []byte) error
	// Receive returns nil, nil when nothing arrived within timeout.
	Receive(ctx context.Context, timeout time.Duration) ([]byte, error)
}

// RedisQueue is a Queue on a single Redis list
type RedisQueue struct {
	client *redis.Client
	name   string
}

// NewRedisQueue creates a queue on the list called name
func NewRedisQueue(client *redis.Client, name string) *RedisQueue {
	return &RedisQueue{client: client, name: name}
}

// Name returns the list key
func (q *RedisQueue) Name() string {
	return q.name
}

// Send appends a message
func (q *RedisQueue) Send(ctx context.Context, payload []byte) error {
	if err := q.client.LPush(ctx, q.name, payload).Err(); err != nil {
		return fmt.Errorf("failed to push to %s: %w", q.name, err)
	}
	return nil
}

// Receive pops the oldest message, blocking up to timeout
func (q *RedisQueue) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	result, err := q.client.BRPop(ctx, timeout, q.name).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pop from %s: %w", q.name, err)
	}
	if len(result) < 2 {
		return nil, fmt.Errorf("invalid BRPOP reply from %s", q.name)
	}
	return []byte(result[1]), nil
}

// Len returns the number of waiting messages
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.name).Result()
}

// Producer submits structuring jobs to the Redis LIST queue
type Producer struct {
	client     *redis.Client
	queueName  string
	maxRetries int
}

// NewProducer creates a producer for queueName
func NewProducer(client *redis.Client, queueName string) *Producer {
	return &Producer{client: client, queueName: queueName, maxRetries: defaultJobRetries}
}

// Enqueue stores the job envelope and pushes its id. A missing JobID is
// generated. Returns the job id.
func (p *Producer) Enqueue(ctx context.Context, job *StructureJob) (string, error) {
	if job.Text == "" && len(job.FileBuffer) == 0 {
		return "", fmt.Errorf("job has neither text nor file buffer")
	}
	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}

	envelope := RedisJobData{
		ID:         job.JobID,
		Type:       TaskStructureDocument,
		Payload:    *job,
		CreatedAt:  time.Now().UTC(),
		MaxRetries: p.maxRetries,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}

	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, dataKey(p.queueName), envelope.ID, data)
		pipe.LPush(ctx, p.queueName, envelope.ID)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to enqueue job %s: %w", envelope.ID, err)
	}
	return envelope.ID, nil
}

func dataKey(queueName string) string {
	return fmt.Sprintf("%s:data", queueName)
}

func statusKey(queueName, status string) string {
	return fmt.Sprintf("%s:%s", queueName, status)
}
