package engine

import (
	"github.com/adverant/nexus/legalstruct-worker/internal/document"
	"github.com/adverant/nexus/legalstruct-worker/internal/quality"
	"github.com/adverant/nexus/legalstruct-worker/internal/similarity"
)

// Request is one document to structure
type Request struct {
	// Text is the purified source text sent to the model.
	Text string
	// ReferenceText, when set, replaces Text as the similarity baseline.
	ReferenceText string
	// Models overrides the configured escalation order.
	Models []string
	// MaxRetries overrides the configured retry count when not nil.
	MaxRetries *int
	// DiffThreshold overrides the rejection bound of the quality gate when > 0.
	DiffThreshold float64
}

// ModelAttempt records one escalation step
type ModelAttempt struct {
	ModelName      string             `json:"model_name"`
	RawResponse    string             `json:"raw_response"`
	StructuredData *document.Document `json:"structured_data,omitempty"`
	TokensUsed     int                `json:"tokens_used"`
	Succeeded      bool               `json:"succeeded"`
	Error          string             `json:"error,omitempty"`
	ErrorCode      string             `json:"error_code,omitempty"`
}

// ProcessingResult is the only output of the engine
type ProcessingResult struct {
	Success        bool               `json:"success"`
	StructuredData *document.Document `json:"structured_data"`
	ModelUsed      string             `json:"model_used"`
	ModelsUsed     []string           `json:"models_used"`
	Similarity     similarity.Report  `json:"similarity"`
	Verdict        quality.Verdict    `json:"verdict"`
	TokensUsed     int                `json:"tokens_used"`
	// ProcessingTime is in seconds.
	ProcessingTime float64        `json:"processing_time"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	Attempts       []ModelAttempt `json:"attempts"`
}
