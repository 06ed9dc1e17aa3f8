package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "legalstruct"

// Recorder holds the structuring metrics. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	// attempts counts model attempts.
	// Labels: model, outcome (accepted, provider_error, json_parse, schema_invalid, quality_rejected)
	attempts *prometheus.CounterVec

	// results counts finished documents.
	// Labels: status (accepted, flagged, exhausted)
	results *prometheus.CounterVec

	// finalScore tracks the similarity score of surfaced results.
	finalScore prometheus.Histogram

	// judgeCalls counts secondary review calls.
	// Labels: verdict (passed, failed)
	judgeCalls *prometheus.CounterVec

	// tokens counts tokens consumed per model.
	tokens *prometheus.CounterVec

	// duration measures Process latency.
	duration prometheus.Histogram

	// keyWait measures time spent blocked on the API key rate limit.
	keyWait prometheus.Histogram
}

// NewRecorder registers the metrics on reg
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "model_attempts_total",
			Help:      "Model attempts by outcome",
		}, []string{"model", "outcome"}),
		results: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "results_total",
			Help:      "Processed documents by final status",
		}, []string{"status"}),
		finalScore: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "final_score",
			Help:      "Similarity score of surfaced results",
			Buckets:   []float64{0.3, 0.5, 0.7, 0.8, 0.85, 0.875, 0.9, 0.95, 0.99, 1.0},
		}),
		judgeCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "quality",
			Name:      "judge_calls_total",
			Help:      "Secondary review calls by verdict",
		}, []string{"verdict"}),
		tokens: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "tokens_total",
			Help:      "Tokens consumed per model",
		}, []string{"model"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "process_duration_seconds",
			Help:      "Time spent structuring one document",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
		}),
		keyWait: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "key_wait_seconds",
			Help:      "Time spent waiting for an API key with spare rate budget",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60},
		}),
	}
}

// Attempt records one model attempt
func (r *Recorder) Attempt(model, outcome string, tokens int) {
	if r == nil {
		return
	}
	r.attempts.WithLabelValues(model, outcome).Inc()
	if tokens > 0 {
		r.tokens.WithLabelValues(model).Add(float64(tokens))
	}
}

// JudgeCall records a secondary review call
func (r *Recorder) JudgeCall(model string, passed bool, tokens int) {
	if r == nil {
		return
	}
	verdict := "failed"
	if passed {
		verdict = "passed"
	}
	r.judgeCalls.WithLabelValues(verdict).Inc()
	if tokens > 0 {
		r.tokens.WithLabelValues(model).Add(float64(tokens))
	}
}

// Result records a finished document
func (r *Recorder) Result(status string, finalScore float64, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.results.WithLabelValues(status).Inc()
	if status != "exhausted" {
		r.finalScore.Observe(finalScore)
	}
	r.duration.Observe(elapsed.Seconds())
}

// KeyWait records time spent blocked on key rotation
func (r *Recorder) KeyWait(d time.Duration) {
	if r == nil {
		return
	}
	r.keyWait.Observe(d.Seconds())
}
