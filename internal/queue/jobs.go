/**
 * Job payloads shared by the Redis LIST and asynq consumers
 */

package queue

import (
	"context"
	"encoding/base64"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/adverant/nexus/legalstruct-worker/internal/engine"
	"github.com/adverant/nexus/legalstruct-worker/internal/errors"
	"github.com/adverant/nexus/legalstruct-worker/internal/processor"
)

// TaskStructureDocument is the job type for both queue backends
const TaskStructureDocument = "structure-document"

const defaultProcessingTimeout = 10 * time.Minute

// RedisJobData represents a job envelope on the Redis LIST queue
type RedisJobData struct {
	ID         string       `json:"id"`
	Type       string       `json:"type"`
	Payload    StructureJob `json:"payload"`
	CreatedAt  time.Time    `json:"createdAt"`
	Attempts   int          `json:"attempts"`
	MaxRetries int          `json:"maxRetries"`
}

// StructureJob contains the document to structure
type StructureJob struct {
	JobID         string                 `json:"jobId"`
	DocumentID    string                 `json:"documentId,omitempty"`
	UserID        string                 `json:"userId,omitempty"`
	Filename      string                 `json:"filename,omitempty"`
	MimeType      string                 `json:"mimeType,omitempty"`
	Text          string                 `json:"text,omitempty"`
	ReferenceText string                 `json:"referenceText,omitempty"`
	FileBuffer    []byte                 `json:"fileBuffer,omitempty"`
	Models        []string               `json:"models,omitempty"`
	MaxRetries    *int                   `json:"maxRetries,omitempty"` // model retries, not queue retries
	DiffThreshold float64                `json:"diffThreshold,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// UnmarshalJSON accepts fileBuffer as a base64 string or as a Node.js
// Buffer object ({"type":"Buffer","data":[...]}) from older producers.
func (p *StructureJob) UnmarshalJSON(data []byte) error {
	// Create alias type to avoid recursion
	type Alias StructureJob
	aux := &struct {
		FileBuffer interface{} `json:"fileBuffer,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(p),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("failed to unmarshal StructureJob: %w", err)
	}

	p.FileBuffer = nil
	if aux.FileBuffer == nil {
		return nil
	}

	switch v := aux.FileBuffer.(type) {
	case string:
		decoded, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return fmt.Errorf("failed to decode base64 fileBuffer: %w", err)
		}
		p.FileBuffer = decoded

	case map[string]interface{}:
		if bufferType, ok := v["type"].(string); !ok || bufferType != "Buffer" {
			return fmt.Errorf("invalid Buffer object format (missing or incorrect 'type' field)")
		}
		dataArray, ok := v["data"].([]interface{})
		if !ok {
			return fmt.Errorf("Buffer object missing 'data' array")
		}
		p.FileBuffer = make([]byte, len(dataArray))
		for i, val := range dataArray {
			byteVal, ok := val.(float64)
			if !ok || byteVal < 0 || byteVal > 255 {
				return fmt.Errorf("invalid byte value in Buffer data array at index %d", i)
			}
			p.FileBuffer[i] = byte(byteVal)
		}

	default:
		return fmt.Errorf("fileBuffer must be either base64 string or Buffer object, got %T", v)
	}

	return nil
}

// processRequest converts the job to processor format
func (p *StructureJob) processRequest() *processor.ProcessRequest {
	return &processor.ProcessRequest{
		JobID:         p.JobID,
		DocumentID:    p.DocumentID,
		UserID:        p.UserID,
		Filename:      p.Filename,
		MimeType:      p.MimeType,
		Text:          p.Text,
		ReferenceText: p.ReferenceText,
		FileBuffer:    p.FileBuffer,
		Models:        p.Models,
		MaxRetries:    p.MaxRetries,
		DiffThreshold: p.DiffThreshold,
		Metadata:      p.Metadata,
	}
}

// statusMetadata is what the job row needs before any result exists
func (p *StructureJob) statusMetadata() map[string]interface{} {
	return map[string]interface{}{
		"documentId": p.DocumentID,
		"userId":     p.UserID,
		"filename":   p.Filename,
		"mimeType":   p.MimeType,
	}
}

// JobResult is published to the result queue when a job finishes
type JobResult struct {
	JobID       string                   `json:"jobId"`
	DocumentID  string                   `json:"documentId,omitempty"`
	Status      string                   `json:"status"`
	Cached      bool                     `json:"cached"`
	TextSource  string                   `json:"textSource,omitempty"`
	Result      *engine.ProcessingResult `json:"result,omitempty"`
	ErrorCode   string                   `json:"errorCode,omitempty"`
	Error       string                   `json:"error,omitempty"`
	Attempts    int                      `json:"attempts"`
	CompletedAt time.Time                `json:"completedAt"`
}

func newJobResult(job *StructureJob, res *processor.ProcessResult, err error, attempts int) *JobResult {
	out := &JobResult{
		JobID:       job.JobID,
		DocumentID:  job.DocumentID,
		Attempts:    attempts,
		CompletedAt: time.Now().UTC(),
	}

	if err != nil {
		out.Status = "failed"
		out.ErrorCode = errorCode(err)
		out.Error = err.Error()
		return out
	}

	out.DocumentID = res.DocumentID
	out.Status = res.Status
	out.Cached = res.Cached
	out.TextSource = res.TextSource
	out.Result = res.Result
	if res.Result != nil && !res.Result.Success {
		out.ErrorCode = string(errors.ErrorAllModelsExhausted)
		out.Error = res.Result.ErrorMessage
	}
	return out
}

// errorCode returns the outermost ProcessingError code in err's chain
func errorCode(err error) string {
	var pe *errors.ProcessingError
	if stderrors.As(err, &pe) {
		return string(pe.Code)
	}
	return "PROCESSING_ERROR"
}

// runJob processes a job under the processing timeout. The timeout context
// derives from parent; timeouts are reported as PROCESSING_TIMEOUT errors.
func runJob(parent context.Context, proc processor.DocumentProcessorInterface, job *StructureJob, timeout time.Duration) (*processor.ProcessResult, error) {
	if timeout <= 0 {
		timeout = defaultProcessingTimeout
	}

	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	result, err := proc.ProcessDocument(ctx, job.processRequest())
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.NewProcessingTimeoutError(job.JobID, timeout, err)
		}
		return nil, err
	}
	return result, nil
}
