/**
 * OCR Types - data returned by the OCR stage
 *
 * This package stays free of cgo so callers can depend on OCR results
 * without linking an engine; engines live in subpackages.
 */

package ocr

import (
	"strings"
	"time"
	"unicode"
)

// Result represents the result of OCR processing
type Result struct {
	Text       string
	Confidence float64
	Engine     string   // OCR engine that produced the text
	Languages  []string // language packs used
	Duration   time.Duration
}

// EstimateConfidence scores OCR output for engines that do not report one
func EstimateConfidence(text string) float64 {
	confidence := 0.5 // Base confidence

	// Check text length
	runes := []rune(text)
	if len(runes) > 1000 {
		confidence += 0.1
	}
	if len(runes) > 5000 {
		confidence += 0.1
	}

	// Check for coherent words (simple heuristic)
	words := strings.Fields(text)
	if len(words) > 100 {
		confidence += 0.1
	}

	// Accented letters count as letters; OCR noise shows up as symbols
	letters := 0
	for _, r := range runes {
		if unicode.IsLetter(r) {
			letters++
		}
	}
	if len(runes) > 0 {
		letterRatio := float64(letters) / float64(len(runes))
		if letterRatio > 0.5 && letterRatio < 0.9 {
			confidence += 0.1
		}
	}

	// Cap at reasonable maximum for Tesseract
	if confidence > 0.85 {
		confidence = 0.85
	}

	return confidence
}
