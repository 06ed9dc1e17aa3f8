/**
 * Quality Gate
 *
 * Turns a similarity report into a pass/fail verdict. Clear cases are decided
 * on the score alone; only the ambiguous band between the rejection and the
 * approval thresholds pays for a second model call that reviews the content
 * diff. Any failure of that review fails closed.
 */

package quality

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/adverant/nexus/legalstruct-worker/internal/document"
	"github.com/adverant/nexus/legalstruct-worker/internal/llm"
	"github.com/adverant/nexus/legalstruct-worker/internal/logging"
	"github.com/adverant/nexus/legalstruct-worker/internal/similarity"
)

// Verdict is the outcome of the gate
type Verdict struct {
	Passed                    bool   `json:"passed"`
	HumanInterventionRequired bool   `json:"human_intervention_required"`
	Reason                    string `json:"reason"`
}

// Thresholds configures the decision bands
type Thresholds struct {
	// Approval is the score at or above which a result passes without review.
	Approval float64 `yaml:"approval"`
	// Rejection is the score below which a result fails without review.
	Rejection float64 `yaml:"rejection"`
	// MinDiffChars is the changed-character count under which a diff is trivial.
	MinDiffChars int `yaml:"min_diff_chars"`
}

// DefaultThresholds returns the production thresholds
func DefaultThresholds() Thresholds {
	return Thresholds{Approval: 0.9, Rejection: 0.85, MinDiffChars: 50}
}

// Validate checks the bands are ordered and inside [0,1]
func (t Thresholds) Validate() error {
	if t.Rejection < 0 || t.Approval > 1 || t.Rejection > t.Approval {
		return fmt.Errorf("invalid quality thresholds: rejection=%.3f approval=%.3f", t.Rejection, t.Approval)
	}
	if t.MinDiffChars < 0 {
		return fmt.Errorf("min diff chars must be >= 0, got %d", t.MinDiffChars)
	}
	return nil
}

// Input is everything the gate looks at for one candidate
type Input struct {
	Original  string
	Candidate *document.Document
	Report    similarity.Report
	// SchemaError is set when the candidate failed structural validation.
	SchemaError string
}

// Evaluation is the verdict plus what it cost to reach it
type Evaluation struct {
	Verdict     Verdict
	Diff        string
	JudgeCalled bool
	TokensUsed  int
}

type judgeReply struct {
	QualityPassed             bool   `json:"quality_passed"`
	HumanInterventionRequired bool   `json:"human_intervention_required"`
	Reason                    string `json:"reason"`
}

const judgeReplySchema = `{
  "type": "object",
  "required": ["quality_passed", "human_intervention_required", "reason"],
  "properties": {
    "quality_passed": {"type": "boolean"},
    "human_intervention_required": {"type": "boolean"},
    "reason": {"type": "string"}
  }
}`

// Gate evaluates candidates
type Gate struct {
	thresholds Thresholds
	judge      llm.Generator
	judgeModel string
	judgeCfg   llm.GenerationConfig
	schema     *jsonschema.Schema
	logger     *logging.Logger
}

// NewGate creates a gate. judge may be nil, in which case every ambiguous
// result is sent to a human.
func NewGate(thresholds Thresholds, judge llm.Generator, judgeModel string) (*Gate, error) {
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("judge_reply.json", strings.NewReader(judgeReplySchema)); err != nil {
		return nil, fmt.Errorf("add judge schema: %w", err)
	}
	schema, err := compiler.Compile("judge_reply.json")
	if err != nil {
		return nil, fmt.Errorf("compile judge schema: %w", err)
	}
	return &Gate{
		thresholds: thresholds,
		judge:      judge,
		judgeModel: judgeModel,
		judgeCfg:   llm.GenerationConfig{MaxOutputTokens: 1024, JSONResponse: true},
		schema:     schema,
		logger:     logging.NewLogger("quality-gate"),
	}, nil
}

// Thresholds returns the configured decision bands
func (g *Gate) Thresholds() Thresholds {
	return g.thresholds
}

// WithRejection returns a copy of the gate using a different rejection bound
func (g *Gate) WithRejection(rejection float64) *Gate {
	clone := *g
	clone.thresholds.Rejection = rejection
	if clone.thresholds.Approval < rejection {
		clone.thresholds.Approval = rejection
	}
	return &clone
}

// JudgeModel returns the model used for secondary review
func (g *Gate) JudgeModel() string {
	return g.judgeModel
}

// Evaluate decides whether a candidate can be accepted
func (g *Gate) Evaluate(ctx context.Context, in Input) Evaluation {
	score := in.Report.FinalScore

	if in.SchemaError != "" {
		return Evaluation{Verdict: Verdict{
			Passed:                    false,
			HumanInterventionRequired: true,
			Reason:                    fmt.Sprintf("structural validation failed: %s (similarity %.3f)", in.SchemaError, score),
		}}
	}

	switch {
	case score >= 1.0:
		return Evaluation{Verdict: Verdict{Passed: true, Reason: "content perfectly preserved"}}
	case score >= g.thresholds.Approval:
		return Evaluation{Verdict: Verdict{Passed: true, Reason: fmt.Sprintf("direct approval: similarity %.3f", score)}}
	case score < g.thresholds.Rejection:
		return Evaluation{Verdict: Verdict{
			Passed:                    false,
			HumanInterventionRequired: true,
			Reason:                    fmt.Sprintf("major changes detected: similarity %.3f", score),
		}}
	}

	diff, changed, err := contentDiff(in.Original, document.ExtractText(in.Candidate))
	if err != nil {
		return Evaluation{Verdict: failClosed("could not build content diff: %v", err)}
	}
	if changed < g.thresholds.MinDiffChars {
		return Evaluation{
			Verdict: Verdict{Passed: true, Reason: fmt.Sprintf("only trivial differences (%d changed chars)", changed)},
			Diff:    diff,
		}
	}

	eval := Evaluation{Diff: diff}
	if g.judge == nil {
		eval.Verdict = failClosed("no reviewer configured for similarity %.3f", score)
		return eval
	}

	g.logger.Info("similarity in review band, requesting secondary review",
		"final_score", score, "changed_chars", changed, "model", g.judgeModel)

	eval.JudgeCalled = true
	resp, err := g.judge.Generate(ctx, llm.GenerateRequest{
		Model:        g.judgeModel,
		SystemPrompt: judgeSystemPrompt,
		UserText:     diff,
		Config:       g.judgeCfg,
	})
	if err != nil {
		g.logger.Warn("secondary review call failed", "error", err)
		eval.Verdict = failClosed("secondary review failed: %v", err)
		return eval
	}
	eval.TokensUsed = resp.TokensUsed

	reply, err := g.parseReply(resp.Text)
	if err != nil {
		g.logger.Warn("secondary review reply rejected", "error", err)
		eval.Verdict = failClosed("secondary review unparseable: %v", err)
		return eval
	}

	eval.Verdict = Verdict{
		Passed:                    reply.QualityPassed,
		HumanInterventionRequired: reply.HumanInterventionRequired || !reply.QualityPassed,
		Reason:                    reply.Reason,
	}
	return eval
}

func (g *Gate) parseReply(text string) (*judgeReply, error) {
	obj, err := document.ParseJSONObject(text)
	if err != nil {
		return nil, err
	}
	if err := g.schema.Validate(obj); err != nil {
		return nil, fmt.Errorf("reply does not match schema: %w", err)
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	var reply judgeReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

func failClosed(format string, args ...any) Verdict {
	return Verdict{
		Passed:                    false,
		HumanInterventionRequired: true,
		Reason:                    fmt.Sprintf(format, args...),
	}
}
