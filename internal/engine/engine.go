/**
 * Document Structuring Engine
 *
 * Escalates a document through an ordered list of models, cheapest first.
 * Each model's reply is parsed, validated, order-stamped, scored against the
 * source and passed through the quality gate. The first accepted result wins;
 * the last model's result is always surfaced even when it is flagged.
 */

package engine

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/adverant/nexus/legalstruct-worker/internal/document"
	"github.com/adverant/nexus/legalstruct-worker/internal/errors"
	"github.com/adverant/nexus/legalstruct-worker/internal/llm"
	"github.com/adverant/nexus/legalstruct-worker/internal/logging"
	"github.com/adverant/nexus/legalstruct-worker/internal/metrics"
	"github.com/adverant/nexus/legalstruct-worker/internal/quality"
	"github.com/adverant/nexus/legalstruct-worker/internal/similarity"
)

// Config holds the engine settings
type Config struct {
	Models          []string           `yaml:"models"`
	JudgeModel      string             `yaml:"judge_model"`
	MaxOutputTokens int                `yaml:"max_output_tokens"`
	Temperature     float32            `yaml:"temperature"`
	SystemPrompt    string             `yaml:"system_prompt"`
	Similarity      similarity.Params  `yaml:"similarity"`
	Quality         quality.Thresholds `yaml:"quality"`
}

// DefaultConfig returns defaults for everything except Models
func DefaultConfig() Config {
	return Config{
		MaxOutputTokens: 32768,
		SystemPrompt:    DefaultSystemPrompt,
		Similarity:      similarity.DefaultParams(),
		Quality:         quality.DefaultThresholds(),
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if len(c.Models) == 0 {
		return errors.NewInvalidConfigError("at least one model is required")
	}
	for i, m := range c.Models {
		if strings.TrimSpace(m) == "" {
			return errors.NewInvalidConfigError(fmt.Sprintf("model %d is blank", i))
		}
	}
	if c.MaxOutputTokens < 0 {
		return errors.NewInvalidConfigError("max output tokens must be >= 0")
	}
	if strings.TrimSpace(c.SystemPrompt) == "" {
		return errors.NewInvalidConfigError("system prompt is required")
	}
	if err := c.Quality.Validate(); err != nil {
		return errors.NewInvalidConfigError(err.Error())
	}
	return nil
}

// retryConfigurable is implemented by generators that accept a per-call retry count
type retryConfigurable interface {
	WithMaxRetries(n int) llm.Generator
}

// Engine structures documents. It is safe for concurrent use.
type Engine struct {
	cfg     Config
	gen     llm.Generator
	scorer  *similarity.Scorer
	gate    *quality.Gate
	metrics *metrics.Recorder
	logger  *logging.Logger
}

// Option customizes an Engine
type Option func(*Engine)

// WithMetrics attaches a metrics recorder
func WithMetrics(r *metrics.Recorder) Option {
	return func(e *Engine) { e.metrics = r }
}

// New creates an engine. gen is used both for structuring and for the
// secondary review; the review runs on cfg.JudgeModel, or on the last
// escalation model when that is empty.
func New(cfg Config, gen llm.Generator, opts ...Option) (*Engine, error) {
	if gen == nil {
		return nil, errors.NewInvalidConfigError("a generator is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	judgeModel := cfg.JudgeModel
	if judgeModel == "" {
		judgeModel = cfg.Models[len(cfg.Models)-1]
	}
	gate, err := quality.NewGate(cfg.Quality, gen, judgeModel)
	if err != nil {
		return nil, errors.NewInvalidConfigError(err.Error())
	}

	e := &Engine{
		cfg:    cfg,
		gen:    gen,
		scorer: similarity.NewScorer(cfg.Similarity),
		gate:   gate,
		logger: logging.NewLogger("engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Models returns the configured escalation order
func (e *Engine) Models() []string {
	return append([]string(nil), e.cfg.Models...)
}

// Process structures one document. It never returns nil and never fails for
// expected model errors; every outcome is encoded in the result. A nil req
// is treated as an empty request.
func (e *Engine) Process(ctx context.Context, req *Request) *ProcessingResult {
	start := time.Now()
	if req == nil {
		req = &Request{}
	}

	models := e.cfg.Models
	if len(req.Models) > 0 {
		models = req.Models
	}
	gen := e.gen
	if req.MaxRetries != nil {
		if rc, ok := gen.(retryConfigurable); ok {
			gen = rc.WithMaxRetries(*req.MaxRetries)
		}
	}
	gate := e.gate
	if req.DiffThreshold > 0 {
		gate = gate.WithRejection(req.DiffThreshold)
	}
	reference := req.Text
	if req.ReferenceText != "" {
		reference = req.ReferenceText
	}

	result := &ProcessingResult{
		ModelsUsed: make([]string, 0, len(models)),
		Attempts:   make([]ModelAttempt, 0, len(models)),
	}
	var diagnostics []string

	for i, model := range models {
		last := i == len(models)-1
		result.ModelsUsed = append(result.ModelsUsed, model)
		log := e.logger.With("model", model, "step", i+1, "of", len(models))

		attempt := ModelAttempt{ModelName: model}
		resp, err := gen.Generate(ctx, llm.GenerateRequest{
			Model:        model,
			SystemPrompt: e.cfg.SystemPrompt,
			UserText:     req.Text,
			Config: llm.GenerationConfig{
				MaxOutputTokens: e.cfg.MaxOutputTokens,
				Temperature:     e.cfg.Temperature,
				JSONResponse:    true,
			},
		})
		if err != nil {
			log.Warn("model call failed", "error", err)
			e.fail(result, &attempt, err, "provider_error")
			diagnostics = append(diagnostics, fmt.Sprintf("%s: %v", model, err))
			continue
		}
		attempt.RawResponse = resp.Text
		attempt.TokensUsed = resp.TokensUsed
		result.TokensUsed += resp.TokensUsed

		raw, err := document.ParseJSONObject(resp.Text)
		if err != nil {
			perr := errors.NewJSONParseError(model, err)
			log.Warn("model reply is not a JSON object", "error", err)
			e.fail(result, &attempt, perr, "json_parse")
			diagnostics = append(diagnostics, fmt.Sprintf("%s: %v", model, perr))
			continue
		}

		validation := document.Validate(raw)
		if !validation.Valid && !last {
			log.Info("structure invalid, escalating", "reason", validation.Error)
			e.fail(result, &attempt, errors.NewSchemaValidationError(model, validation.Error), "schema_invalid")
			diagnostics = append(diagnostics, fmt.Sprintf("%s: %s", model, validation.Error))
			continue
		}

		doc := document.FromRaw(raw)
		document.InjectOrder(doc)
		attempt.StructuredData = doc

		report := e.scorer.ScoreDocument(reference, doc)
		eval := gate.Evaluate(ctx, quality.Input{
			Original:    reference,
			Candidate:   doc,
			Report:      report,
			SchemaError: validation.Error,
		})
		result.TokensUsed += eval.TokensUsed
		if eval.JudgeCalled {
			e.metrics.JudgeCall(gate.JudgeModel(), eval.Verdict.Passed, eval.TokensUsed)
		}

		attempt.Succeeded = validation.Valid && eval.Verdict.Passed
		outcome := "accepted"
		if !attempt.Succeeded {
			var rejection *errors.ProcessingError
			if !validation.Valid {
				rejection = errors.NewSchemaValidationError(model, validation.Error)
				outcome = "schema_invalid"
			} else {
				rejection = errors.NewQualityRejectedError(model, report.FinalScore, eval.Verdict.Reason)
				outcome = "quality_rejected"
			}
			attempt.Error = rejection.Error()
			attempt.ErrorCode = string(rejection.Code)
			diagnostics = append(diagnostics, fmt.Sprintf("%s: %s", model, rejection.Message))
		}
		result.Attempts = append(result.Attempts, attempt)
		e.metrics.Attempt(model, outcome, attempt.TokensUsed)

		log.Info("model attempt scored",
			"final_score", report.FinalScore,
			"passed", eval.Verdict.Passed,
			"judge_called", eval.JudgeCalled,
			"reason", eval.Verdict.Reason)

		if attempt.Succeeded || last {
			result.Success = true
			result.StructuredData = doc
			result.ModelUsed = model
			result.Similarity = report
			result.Verdict = eval.Verdict
			if !attempt.Succeeded {
				result.Verdict.Passed = false
				result.Verdict.HumanInterventionRequired = true
				result.ErrorMessage = attempt.Error
			}
			return e.finish(result, start)
		}
	}

	exhausted := errors.NewAllModelsExhaustedError(models, strings.Join(diagnostics, "; "))
	e.logger.Error("all models exhausted", "models", models, "error", exhausted.Message)
	result.Success = false
	result.ErrorMessage = exhausted.Error()
	result.Verdict = quality.Verdict{
		Passed:                    false,
		HumanInterventionRequired: true,
		Reason:                    "no model produced a usable structure",
	}
	return e.finish(result, start)
}

// fail records a failed attempt that produced no scorable structure
func (e *Engine) fail(result *ProcessingResult, attempt *ModelAttempt, err error, outcome string) {
	attempt.Succeeded = false
	attempt.Error = err.Error()
	var pe *errors.ProcessingError
	if stderrors.As(err, &pe) {
		attempt.ErrorCode = string(pe.Code)
	}
	result.Attempts = append(result.Attempts, *attempt)
	e.metrics.Attempt(attempt.ModelName, outcome, attempt.TokensUsed)
}

func (e *Engine) finish(result *ProcessingResult, start time.Time) *ProcessingResult {
	elapsed := time.Since(start)
	result.ProcessingTime = elapsed.Seconds()

	status := "exhausted"
	switch {
	case result.Success && result.Verdict.Passed:
		status = "accepted"
	case result.Success:
		status = "flagged"
	}
	e.metrics.Result(status, result.Similarity.FinalScore, elapsed)
	return result
}
