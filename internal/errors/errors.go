package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

/**
 * Custom error types for the Legal Structuring Worker
 *
 * Design Pattern: Factory Pattern for error creation
 * Every expected engine failure is encoded with one of the codes below and
 * recorded on the ProcessingResult instead of being returned to the caller.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Provider errors
	ErrorTransientProvider ErrorCode = "TRANSIENT_PROVIDER"
	ErrorPermanentProvider ErrorCode = "PERMANENT_PROVIDER"
	ErrorEmptyResponse     ErrorCode = "EMPTY_RESPONSE"
	ErrorRetriesExhausted  ErrorCode = "RETRIES_EXHAUSTED"

	// Structuring errors
	ErrorJSONParse          ErrorCode = "JSON_PARSE"
	ErrorSchemaValidation   ErrorCode = "SCHEMA_VALIDATION"
	ErrorQualityRejected    ErrorCode = "QUALITY_REJECTED"
	ErrorAllModelsExhausted ErrorCode = "ALL_MODELS_EXHAUSTED"

	// Worker errors
	ErrorProcessingTimeout ErrorCode = "PROCESSING_TIMEOUT"
	ErrorOCRFailed         ErrorCode = "OCR_FAILED"
	ErrorStorageFailed     ErrorCode = "STORAGE_FAILED"
	ErrorInvalidConfig     ErrorCode = "INVALID_CONFIG"
)

// ErrEmptyResponse is returned by providers when the model answered with blank text.
var ErrEmptyResponse = stderrors.New("empty response from provider")

// ProcessingError represents a structured processing error
type ProcessingError struct {
	Code      ErrorCode
	Message   string
	JobID     string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// HasCode reports whether any ProcessingError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		var pe *ProcessingError
		if !stderrors.As(err, &pe) {
			return false
		}
		if pe.Code == code {
			return true
		}
		err = pe.Cause
	}
	return false
}

// Factory functions for common errors

func NewProcessingTimeoutError(jobID string, duration time.Duration, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorProcessingTimeout,
		Message:   fmt.Sprintf("Processing timed out after %v", duration),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"timeout_duration": duration.String(),
		},
		Cause: cause,
	}
}

func NewProviderError(model string, statusCode int, retryable bool, cause error) *ProcessingError {
	code := ErrorPermanentProvider
	if retryable {
		code = ErrorTransientProvider
	}
	return &ProcessingError{
		Code:      code,
		Message:   fmt.Sprintf("provider call failed for model %s (status %d)", model, statusCode),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"model":       model,
			"status_code": statusCode,
		},
		Cause: cause,
	}
}

func NewRetriesExhaustedError(model string, attempts int, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorRetriesExhausted,
		Message:   fmt.Sprintf("model %s failed after %d attempts", model, attempts),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"model":    model,
			"attempts": attempts,
		},
		Cause: cause,
	}
}

func NewJSONParseError(model string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorJSONParse,
		Message:   fmt.Sprintf("model %s returned unparseable JSON", model),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"model": model,
		},
		Cause: cause,
	}
}

func NewSchemaValidationError(model string, reason string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorSchemaValidation,
		Message:   reason,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"model": model,
		},
	}
}

func NewQualityRejectedError(model string, score float64, reason string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorQualityRejected,
		Message:   reason,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"model":       model,
			"final_score": score,
		},
	}
}

func NewAllModelsExhaustedError(models []string, diagnostics string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorAllModelsExhausted,
		Message:   fmt.Sprintf("all %d models exhausted: %s", len(models), diagnostics),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"models": models,
		},
	}
}

func NewOCRFailedError(jobID string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorOCRFailed,
		Message:   "OCR failed for image payload",
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewStorageFailedError(jobID string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorStorageFailed,
		Message:   "Failed to store processing results",
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewInvalidConfigError(message string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorInvalidConfig,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// ToMap converts error to map for database storage
func (e *ProcessingError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
