/**
 * Document Processor for the Legal Structuring Worker
 *
 * Turns a queued job into a structuring result:
 * - Text loading (inline text, plain-text buffers, Tesseract OCR for page images)
 * - OCR purification before the text reaches any model
 * - Result reuse keyed by document id and content hash
 * - Model escalation through the structuring engine
 * - Persistence of the result and job status
 */

package processor

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/adverant/nexus/legalstruct-worker/internal/engine"
	"github.com/adverant/nexus/legalstruct-worker/internal/errors"
	"github.com/adverant/nexus/legalstruct-worker/internal/logging"
	"github.com/adverant/nexus/legalstruct-worker/internal/ocr"
	"github.com/adverant/nexus/legalstruct-worker/internal/storage"
	"github.com/adverant/nexus/legalstruct-worker/internal/textnorm"
)

// Text sources reported on ProcessResult
const (
	SourceInline    = "inline"
	SourceDirect    = "direct_extraction"
	SourceTesseract = "tesseract"
)

// DocumentProcessorInterface defines the interface for document processing
type DocumentProcessorInterface interface {
	ProcessDocument(ctx context.Context, req *ProcessRequest) (*ProcessResult, error)
	UpdateJobStatus(ctx context.Context, jobID string, status string, metadata map[string]interface{}) error
}

// Structurer runs model escalation on one document
type Structurer interface {
	Process(ctx context.Context, req *engine.Request) *engine.ProcessingResult
}

// ResultStore persists job status and structuring results
type ResultStore interface {
	UpdateJobStatus(ctx context.Context, update *storage.JobUpdate) error
	SaveResult(ctx context.Context, rec *storage.ResultRecord, text string) error
	LookupResult(ctx context.Context, documentID, text string) ([]byte, error)
}

// OCREngine extracts text from a page image
type OCREngine interface {
	Process(ctx context.Context, fileData []byte) (*ocr.Result, error)
}

// ProcessorConfig holds processor configuration
type ProcessorConfig struct {
	Engine      Structurer
	Storage     ResultStore // optional
	OCR         OCREngine   // optional; image payloads fail without it
	MaxFileSize int64       // bytes, 0 means unlimited
}

// ProcessRequest represents a document processing request
type ProcessRequest struct {
	JobID      string
	DocumentID string
	UserID     string
	Filename   string
	MimeType   string

	// Text is used as-is when set; otherwise FileBuffer is loaded.
	Text          string
	ReferenceText string
	FileBuffer    []byte

	// Per-request engine overrides. Overridden runs are never reused or cached.
	Models        []string
	MaxRetries    *int
	DiffThreshold float64

	Metadata map[string]interface{}
}

// ProcessResult represents the processing result
type ProcessResult struct {
	JobID            string                   `json:"jobId"`
	DocumentID       string                   `json:"documentId"`
	Status           string                   `json:"status"`
	Result           *engine.ProcessingResult `json:"result"`
	Cached           bool                     `json:"cached"`
	TextSource       string                   `json:"textSource"`
	OCRConfidence    float64                  `json:"ocrConfidence"`
	ProcessingTimeMs int64                    `json:"processingTimeMs"`
}

// DocumentProcessor handles document processing
type DocumentProcessor struct {
	config *ProcessorConfig
	engine Structurer
	store  ResultStore
	ocr    OCREngine
	logger *logging.Logger
}

// NewDocumentProcessor creates a new document processor
func NewDocumentProcessor(cfg *ProcessorConfig) (*DocumentProcessor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	if cfg.Engine == nil {
		return nil, fmt.Errorf("structuring engine is required")
	}

	logger := logging.NewLogger("Processor")
	if cfg.Storage == nil {
		logger.Warn("No result store configured; results will not be persisted or reused")
	}
	if cfg.OCR == nil {
		logger.Warn("No OCR engine configured; image payloads will be rejected")
	}

	return &DocumentProcessor{
		config: cfg,
		engine: cfg.Engine,
		store:  cfg.Storage,
		ocr:    cfg.OCR,
		logger: logger,
	}, nil
}

// ProcessDocument processes a document through the complete pipeline
func (p *DocumentProcessor) ProcessDocument(ctx context.Context, req *ProcessRequest) (*ProcessResult, error) {
	startTime := time.Now()
	documentID := req.documentID()
	log := p.logger.With("jobId", req.JobID, "documentId", documentID)

	// Step 1: Load text
	loaded, err := p.loadText(ctx, req)
	if err != nil {
		return nil, err
	}
	log.Info("Text loaded", "source", loaded.source, "chars", utf8.RuneCountInString(loaded.text))

	// Step 2: Purify OCR artifacts
	text := textnorm.Purify(loaded.text)
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("document %s has no text after purification", documentID)
	}
	reference := ""
	if req.ReferenceText != "" {
		reference = textnorm.Purify(req.ReferenceText)
	}

	result := &ProcessResult{
		JobID:         req.JobID,
		DocumentID:    documentID,
		TextSource:    loaded.source,
		OCRConfidence: loaded.confidence,
	}

	// Step 3: Reuse a stored result for identical text
	reusable := req.reusable()
	if reusable && p.store != nil {
		cached, err := p.lookup(ctx, documentID, text)
		if err != nil {
			log.Warn("Result lookup failed, structuring anyway", "error", err)
		} else if cached != nil && cached.Success {
			log.Info("Reusing stored result", "modelUsed", cached.ModelUsed)
			result.Result = cached
			result.Status = statusFor(cached)
			result.Cached = true
			result.ProcessingTimeMs = time.Since(startTime).Milliseconds()
			return result, nil
		}
	}

	// Step 4: Model escalation
	structured := p.engine.Process(ctx, &engine.Request{
		Text:          text,
		ReferenceText: reference,
		Models:        req.Models,
		MaxRetries:    req.MaxRetries,
		DiffThreshold: req.DiffThreshold,
	})
	if ctx.Err() != nil {
		return nil, fmt.Errorf("structuring interrupted: %w", ctx.Err())
	}

	result.Result = structured
	result.Status = statusFor(structured)
	result.ProcessingTimeMs = time.Since(startTime).Milliseconds()

	log.Info("Structuring finished",
		"status", result.Status,
		"modelUsed", structured.ModelUsed,
		"finalScore", structured.Similarity.FinalScore,
		"tokens", structured.TokensUsed)

	// Step 5: Persist
	if p.store != nil {
		if err := p.save(ctx, req, result, text, reusable); err != nil {
			return nil, errors.NewStorageFailedError(req.JobID, err)
		}
	}

	return result, nil
}

// UpdateJobStatus updates job status in the result store
func (p *DocumentProcessor) UpdateJobStatus(ctx context.Context, jobID string, status string, metadata map[string]interface{}) error {
	if p.store == nil {
		return nil
	}

	update := &storage.JobUpdate{
		JobID:    jobID,
		Status:   status,
		Metadata: metadata,
	}

	// Extract specific fields from metadata if present
	if metadata != nil {
		if documentID, ok := metadata["documentId"].(string); ok {
			update.DocumentID = documentID
		}
		if userID, ok := metadata["userId"].(string); ok {
			update.UserID = userID
		}
		if filename, ok := metadata["filename"].(string); ok {
			update.Filename = filename
		}
		if code, ok := metadata["code"].(string); ok {
			update.ErrorCode = code
		}
		if errorMsg, ok := metadata["error"].(string); ok {
			if update.ErrorCode == "" {
				update.ErrorCode = "PROCESSING_ERROR"
			}
			update.ErrorMessage = errorMsg
		}
	}

	return p.store.UpdateJobStatus(ctx, update)
}

func (p *DocumentProcessor) lookup(ctx context.Context, documentID, text string) (*engine.ProcessingResult, error) {
	raw, err := p.store.LookupResult(ctx, documentID, text)
	if err != nil || raw == nil {
		return nil, err
	}

	var stored engine.ProcessingResult
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("stored result for %s is corrupt: %w", documentID, err)
	}
	return &stored, nil
}

func (p *DocumentProcessor) save(ctx context.Context, req *ProcessRequest, result *ProcessResult, text string, reusable bool) error {
	payload, err := json.Marshal(result.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	structured := result.Result
	rec := &storage.ResultRecord{
		JobID:                     req.JobID,
		DocumentID:                result.DocumentID,
		UserID:                    req.UserID,
		Filename:                  req.Filename,
		Status:                    result.Status,
		TextSource:                result.TextSource,
		ModelUsed:                 structured.ModelUsed,
		ModelsUsed:                structured.ModelsUsed,
		FinalScore:                structured.Similarity.FinalScore,
		QualityPassed:             structured.Verdict.Passed,
		HumanInterventionRequired: structured.Verdict.HumanInterventionRequired,
		TokensUsed:                structured.TokensUsed,
		ProcessingTimeMs:          result.ProcessingTimeMs,
		Result:                    payload,
		ErrorMessage:              structured.ErrorMessage,
	}

	// Overridden runs are stored for audit but never offered for reuse.
	if !reusable {
		text = ""
	}
	return p.store.SaveResult(ctx, rec, text)
}

type loadedText struct {
	text       string
	source     string
	confidence float64
}

// loadText resolves the text to structure from inline text or the file buffer
func (p *DocumentProcessor) loadText(ctx context.Context, req *ProcessRequest) (*loadedText, error) {
	if req.Text != "" {
		return &loadedText{text: req.Text, source: SourceInline, confidence: 1.0}, nil
	}

	if len(req.FileBuffer) == 0 {
		return nil, fmt.Errorf("no document source provided (text or file buffer)")
	}

	if p.config.MaxFileSize > 0 && int64(len(req.FileBuffer)) > p.config.MaxFileSize {
		return nil, fmt.Errorf("file too large: %d bytes (max %d)", len(req.FileBuffer), p.config.MaxFileSize)
	}

	// Magic bytes win over generic or missing content types
	mimeType := req.MimeType
	if detected := detectMimeTypeFromMagicBytes(req.FileBuffer); detected != "" &&
		(mimeType == "" || mimeType == "application/octet-stream") {
		mimeType = detected
	}
	if mimeType == "application/octet-stream" {
		mimeType = ""
	}

	switch {
	case isTextFormat(mimeType, req.FileBuffer):
		if !utf8.Valid(req.FileBuffer) {
			return nil, fmt.Errorf("text payload is not valid UTF-8")
		}
		return &loadedText{text: string(req.FileBuffer), source: SourceDirect, confidence: 1.0}, nil

	case strings.HasPrefix(mimeType, "image/"):
		if p.ocr == nil {
			return nil, fmt.Errorf("image payload received but OCR is not configured")
		}
		ocrResult, err := p.ocr.Process(ctx, req.FileBuffer)
		if err != nil {
			return nil, errors.NewOCRFailedError(req.JobID, err)
		}
		return &loadedText{text: ocrResult.Text, source: SourceTesseract, confidence: ocrResult.Confidence}, nil

	case mimeType == "application/pdf":
		return nil, fmt.Errorf("PDF payloads must be submitted as page images or extracted text")

	default:
		return nil, fmt.Errorf("unsupported payload type %q", mimeType)
	}
}

// documentID falls back to the filename and then the job id
func (r *ProcessRequest) documentID() string {
	switch {
	case r.DocumentID != "":
		return r.DocumentID
	case r.Filename != "":
		return r.Filename
	default:
		return r.JobID
	}
}

func (r *ProcessRequest) reusable() bool {
	return len(r.Models) == 0 && r.MaxRetries == nil && r.DiffThreshold == 0 && r.ReferenceText == ""
}

// statusFor maps an engine result to a job status
func statusFor(result *engine.ProcessingResult) string {
	switch {
	case !result.Success:
		return storage.StatusFailed
	case !result.Verdict.Passed || result.Verdict.HumanInterventionRequired:
		return storage.StatusNeedsReview
	default:
		return storage.StatusCompleted
	}
}

// isTextFormat reports whether a payload can be read without OCR
func isTextFormat(mimeType string, data []byte) bool {
	switch mimeType {
	case "text/plain", "text/markdown", "text/csv":
		return true
	case "":
		// Untyped payloads with no recognisable magic bytes are treated as text
		return utf8.Valid(data)
	}
	return false
}

// detectMimeTypeFromMagicBytes detects the actual MIME type from file content magic bytes
// Needed when producers send a generic "application/octet-stream"
func detectMimeTypeFromMagicBytes(data []byte) string {
	if len(data) < 4 {
		return ""
	}

	// PDF: %PDF-
	if bytes.HasPrefix(data, []byte("%PDF")) {
		return "application/pdf"
	}

	// PNG: 0x89 'P' 'N' 'G' 0x0D 0x0A 0x1A 0x0A
	if len(data) >= 8 && bytes.HasPrefix(data, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}) {
		return "image/png"
	}

	// JPEG: 0xFF 0xD8 0xFF
	if bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}) {
		return "image/jpeg"
	}

	// TIFF, the usual scanner output: little-endian or big-endian header
	if bytes.HasPrefix(data, []byte{0x49, 0x49, 0x2A, 0x00}) || bytes.HasPrefix(data, []byte{0x4D, 0x4D, 0x00, 0x2A}) {
		return "image/tiff"
	}

	if isBMP(data) {
		return "image/bmp"
	}

	return ""
}

// isBMP checks the "BM" signature together with a known DIB header size, so
// text that merely starts with "BM" is not sent to OCR
func isBMP(data []byte) bool {
	if len(data) < 18 || !bytes.HasPrefix(data, []byte("BM")) {
		return false
	}
	switch binary.LittleEndian.Uint32(data[14:18]) {
	case 12, 40, 52, 56, 64, 108, 124:
		return true
	}
	return false
}
