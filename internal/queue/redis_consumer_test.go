package queue

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/legalstruct-worker/internal/engine"
	"github.com/adverant/nexus/legalstruct-worker/internal/processor"
	"github.com/adverant/nexus/legalstruct-worker/internal/quality"
	"github.com/adverant/nexus/legalstruct-worker/internal/storage"
)

type statusCall struct {
	jobID    string
	status   string
	metadata map[string]interface{}
}

type fakeProcessor struct {
	mu       sync.Mutex
	result   *processor.ProcessResult
	err      error
	requests []*processor.ProcessRequest
	statuses []statusCall
}

func (f *fakeProcessor) ProcessDocument(_ context.Context, req *processor.ProcessRequest) (*processor.ProcessResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	res := *f.result
	res.JobID = req.JobID
	return &res, nil
}

func (f *fakeProcessor) UpdateJobStatus(_ context.Context, jobID, status string, metadata map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, statusCall{jobID: jobID, status: status, metadata: metadata})
	return nil
}

func (f *fakeProcessor) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func completedResult() *processor.ProcessResult {
	return &processor.ProcessResult{
		DocumentID: "ley-27555",
		Status:     storage.StatusCompleted,
		TextSource: processor.SourceInline,
		Result: &engine.ProcessingResult{
			Success:   true,
			ModelUsed: "gemini-2.5-flash",
			Verdict:   quality.Verdict{Passed: true},
		},
	}
}

type consumerFixture struct {
	mr       *miniredis.Miniredis
	client   *redis.Client
	consumer *RedisConsumer
	producer *Producer
	results  *RedisQueue
}

func newConsumerFixture(t *testing.T, proc processor.DocumentProcessorInterface) *consumerFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	consumer, err := NewRedisConsumerFromClient(client, &RedisConsumerConfig{
		QueueName:       "legalstruct:jobs",
		ResultQueueName: "legalstruct:results",
		Concurrency:     2,
		Processor:       proc,
		PollTimeout:     time.Second,
	})
	require.NoError(t, err)

	return &consumerFixture{
		mr:       mr,
		client:   client,
		consumer: consumer,
		producer: NewProducer(client, "legalstruct:jobs"),
		results:  NewRedisQueue(client, "legalstruct:results"),
	}
}

func (f *consumerFixture) nextResult(t *testing.T) *JobResult {
	t.Helper()
	raw, err := f.results.Receive(context.Background(), time.Second)
	require.NoError(t, err)
	require.NotNil(t, raw, "no job result published")

	var result JobResult
	require.NoError(t, json.Unmarshal(raw, &result))
	return &result
}

func TestRedisQueueIsFIFO(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	q := NewRedisQueue(client, "q")
	ctx := context.Background()

	require.NoError(t, q.Send(ctx, []byte("first")))
	require.NoError(t, q.Send(ctx, []byte("second")))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := q.Receive(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "first", string(got))
	got, err = q.Receive(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))
}

func TestProducerEnqueue(t *testing.T) {
	f := newConsumerFixture(t, &fakeProcessor{})
	ctx := context.Background()

	_, err := f.producer.Enqueue(ctx, &StructureJob{DocumentID: "ley"})
	assert.ErrorContains(t, err, "neither text nor file buffer")

	id, err := f.producer.Enqueue(ctx, &StructureJob{DocumentID: "ley", Text: "ARTÍCULO 1."})
	require.NoError(t, err)
	assert.Len(t, id, 36)

	raw, err := f.client.HGet(ctx, "legalstruct:jobs:data", id).Result()
	require.NoError(t, err)
	var envelope RedisJobData
	require.NoError(t, json.Unmarshal([]byte(raw), &envelope))
	assert.Equal(t, TaskStructureDocument, envelope.Type)
	assert.Equal(t, id, envelope.Payload.JobID)
	assert.Equal(t, defaultJobRetries, envelope.MaxRetries)

	waiting, err := f.client.LRange(ctx, "legalstruct:jobs", 0, -1).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{id}, waiting)
}

func TestProcessNextJobCompletes(t *testing.T) {
	proc := &fakeProcessor{result: completedResult()}
	f := newConsumerFixture(t, proc)
	ctx := context.Background()

	id, err := f.producer.Enqueue(ctx, &StructureJob{JobID: "job-1", DocumentID: "ley-27555", Text: "ARTÍCULO 1."})
	require.NoError(t, err)

	require.NoError(t, f.consumer.processNextJob())

	require.Len(t, proc.requests, 1)
	assert.Equal(t, "ARTÍCULO 1.", proc.requests[0].Text)
	require.NotEmpty(t, proc.statuses)
	assert.Equal(t, storage.StatusProcessing, proc.statuses[0].status)
	assert.Equal(t, "ley-27555", proc.statuses[0].metadata["documentId"])

	completed, err := f.client.SIsMember(ctx, "legalstruct:jobs:completed", id).Result()
	require.NoError(t, err)
	assert.True(t, completed)
	processing, err := f.client.SCard(ctx, "legalstruct:jobs:processing").Result()
	require.NoError(t, err)
	assert.Zero(t, processing)

	stored, err := f.client.HGet(ctx, "legalstruct:jobs:results", id).Result()
	require.NoError(t, err)
	assert.Contains(t, stored, `"status":"completed"`)

	result := f.nextResult(t)
	assert.Equal(t, "job-1", result.JobID)
	assert.Equal(t, storage.StatusCompleted, result.Status)
	assert.Equal(t, 1, result.Attempts)
	require.NotNil(t, result.Result)
	assert.Equal(t, "gemini-2.5-flash", result.Result.ModelUsed)

	stats, err := f.consumer.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats[storage.StatusCompleted])
	assert.Equal(t, int64(0), stats["waiting"])
}

func TestProcessNextJobRequeuesThenFails(t *testing.T) {
	proc := &fakeProcessor{err: stderrors.New("redis timeout")}
	f := newConsumerFixture(t, proc)
	ctx := context.Background()

	id, err := f.producer.Enqueue(ctx, &StructureJob{JobID: "job-2", Text: "ARTÍCULO 1."})
	require.NoError(t, err)

	for attempt := 1; attempt < defaultJobRetries; attempt++ {
		require.NoError(t, f.consumer.processNextJob())

		waiting, err := f.client.LLen(ctx, "legalstruct:jobs").Result()
		require.NoError(t, err)
		assert.Equal(t, int64(1), waiting, "attempt %d should be re-queued", attempt)

		raw, err := f.client.HGet(ctx, "legalstruct:jobs:data", id).Result()
		require.NoError(t, err)
		var envelope RedisJobData
		require.NoError(t, json.Unmarshal([]byte(raw), &envelope))
		assert.Equal(t, attempt, envelope.Attempts)
	}

	require.NoError(t, f.consumer.processNextJob())
	assert.Equal(t, defaultJobRetries, proc.calls())

	failed, err := f.client.SIsMember(ctx, "legalstruct:jobs:failed", id).Result()
	require.NoError(t, err)
	assert.True(t, failed)

	last := proc.statuses[len(proc.statuses)-1]
	assert.Equal(t, storage.StatusFailed, last.status)
	assert.Equal(t, "PROCESSING_ERROR", last.metadata["code"])

	result := f.nextResult(t)
	assert.Equal(t, storage.StatusFailed, result.Status)
	assert.Equal(t, "redis timeout", result.Error)
	assert.Equal(t, defaultJobRetries, result.Attempts)
}

func TestProcessNextJobExhaustedEngineIsNotRetried(t *testing.T) {
	proc := &fakeProcessor{result: &processor.ProcessResult{
		DocumentID: "ley",
		Status:     storage.StatusFailed,
		Result:     &engine.ProcessingResult{Success: false, ErrorMessage: "ALL_MODELS_EXHAUSTED"},
	}}
	f := newConsumerFixture(t, proc)
	ctx := context.Background()

	id, err := f.producer.Enqueue(ctx, &StructureJob{JobID: "job-3", Text: "ARTÍCULO 1."})
	require.NoError(t, err)
	require.NoError(t, f.consumer.processNextJob())

	waiting, err := f.client.LLen(ctx, "legalstruct:jobs").Result()
	require.NoError(t, err)
	assert.Zero(t, waiting)

	failed, err := f.client.SIsMember(ctx, "legalstruct:jobs:failed", id).Result()
	require.NoError(t, err)
	assert.True(t, failed)
	_, err = f.client.HGet(ctx, "legalstruct:jobs:errors", id).Result()
	assert.NoError(t, err)

	result := f.nextResult(t)
	assert.Equal(t, "ALL_MODELS_EXHAUSTED", result.ErrorCode)
}

func TestProcessNextJobRejectsCorruptEnvelope(t *testing.T) {
	f := newConsumerFixture(t, &fakeProcessor{})
	ctx := context.Background()

	require.NoError(t, f.client.HSet(ctx, "legalstruct:jobs:data", "bad", "{not json").Err())
	require.NoError(t, f.client.LPush(ctx, "legalstruct:jobs", "bad").Err())

	assert.ErrorContains(t, f.consumer.processNextJob(), "failed to unmarshal job bad")
	failed, err := f.client.SIsMember(ctx, "legalstruct:jobs:failed", "bad").Result()
	require.NoError(t, err)
	assert.True(t, failed)
}

func TestRedisConsumerStartStop(t *testing.T) {
	proc := &fakeProcessor{result: completedResult()}
	f := newConsumerFixture(t, proc)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.producer.Enqueue(ctx, &StructureJob{Text: "ARTÍCULO 1."})
		require.NoError(t, err)
	}

	require.NoError(t, f.consumer.Start())
	assert.Eventually(t, func() bool {
		n, err := f.results.Len(ctx)
		return err == nil && n == 3
	}, 5*time.Second, 20*time.Millisecond)
	require.NoError(t, f.consumer.Stop())
	assert.Equal(t, 3, proc.calls())
}

// gatedProcessor blocks in ProcessDocument until release is closed
type gatedProcessor struct {
	fakeProcessor
	started chan struct{}
	release chan struct{}
}

func newGatedProcessor(result *processor.ProcessResult, err error) *gatedProcessor {
	return &gatedProcessor{
		fakeProcessor: fakeProcessor{result: result, err: err},
		started:       make(chan struct{}, 1),
		release:       make(chan struct{}),
	}
}

func (g *gatedProcessor) ProcessDocument(ctx context.Context, req *processor.ProcessRequest) (*processor.ProcessResult, error) {
	g.started <- struct{}{}
	<-g.release
	return g.fakeProcessor.ProcessDocument(ctx, req)
}

// stopDuringJob starts the consumer, stops it while the only job is in
// flight, then lets the job finish.
func stopDuringJob(t *testing.T, f *consumerFixture, proc *gatedProcessor) {
	t.Helper()
	// A single worker, so nothing else can pop a requeued id
	f.consumer.config.Concurrency = 1
	require.NoError(t, f.consumer.Start())

	select {
	case <-proc.started:
	case <-time.After(5 * time.Second):
		t.Fatal("job was never picked up")
	}

	stopped := make(chan error, 1)
	go func() { stopped <- f.consumer.Stop() }()
	require.Eventually(t, func() bool { return f.consumer.ctx.Err() != nil }, time.Second, 5*time.Millisecond)

	close(proc.release)
	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestStopRecordsJobFinishedDuringShutdown(t *testing.T) {
	proc := newGatedProcessor(completedResult(), nil)
	f := newConsumerFixture(t, proc)

	id, err := f.producer.Enqueue(context.Background(), &StructureJob{Text: "ARTÍCULO 1."})
	require.NoError(t, err)

	stopDuringJob(t, f, proc)

	published, err := f.mr.List("legalstruct:results")
	require.NoError(t, err)
	require.Len(t, published, 1)

	var result JobResult
	require.NoError(t, json.Unmarshal([]byte(published[0]), &result))
	assert.Equal(t, id, result.JobID)
	assert.Equal(t, storage.StatusCompleted, result.Status)

	done, err := f.mr.SIsMember("legalstruct:jobs:completed", id)
	require.NoError(t, err)
	assert.True(t, done)
	assert.NotEmpty(t, f.mr.HGet("legalstruct:jobs:results", id))
}

func TestStopRequeuesJobFailingDuringShutdown(t *testing.T) {
	proc := newGatedProcessor(nil, stderrors.New("postgres unavailable"))
	f := newConsumerFixture(t, proc)

	id, err := f.producer.Enqueue(context.Background(), &StructureJob{Text: "ARTÍCULO 1."})
	require.NoError(t, err)

	stopDuringJob(t, f, proc)

	waiting, err := f.mr.List("legalstruct:jobs")
	require.NoError(t, err)
	assert.Equal(t, []string{id}, waiting)

	var envelope RedisJobData
	require.NoError(t, json.Unmarshal([]byte(f.mr.HGet("legalstruct:jobs:data", id)), &envelope))
	assert.Equal(t, 1, envelope.Attempts)
}
