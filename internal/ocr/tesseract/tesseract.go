/**
 * Tesseract OCR for scanned page images
 *
 * Offline OCR using Tesseract with the configured language packs
 * (Spanish by default). The text it returns is raw; purification happens in
 * the processor before structuring. Requires leptonica and tesseract (cgo).
 */

package tesseract

import (
	"context"
	"fmt"
	"time"

	"github.com/otiai10/gosseract/v2"

	"github.com/adverant/nexus/legalstruct-worker/internal/ocr"
)

// Engine handles OCR using Tesseract
type Engine struct {
	languages []string
}

// Config holds Tesseract configuration
type Config struct {
	Languages []string
}

// New creates a new Tesseract OCR engine
func New(cfg *Config) (*Engine, error) {
	languages := cfg.Languages
	if len(languages) == 0 {
		languages = []string{"spa"}
	}

	return &Engine{
		languages: languages,
	}, nil
}

// Process performs OCR on a single page image
func (e *Engine) Process(ctx context.Context, fileData []byte) (*ocr.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	startTime := time.Now()

	// Create Tesseract client
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(e.languages...); err != nil {
		return nil, fmt.Errorf("failed to set languages %v: %w", e.languages, err)
	}

	// Set image from bytes
	if err := client.SetImageFromBytes(fileData); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	// Extract text
	text, err := client.Text()
	if err != nil {
		return nil, fmt.Errorf("tesseract OCR failed: %w", err)
	}

	return &ocr.Result{
		Text:       text,
		Confidence: ocr.EstimateConfidence(text),
		Engine:     "tesseract",
		Languages:  e.languages,
		Duration:   time.Since(startTime),
	}, nil
}
