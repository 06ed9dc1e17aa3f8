/**
 * Content Similarity Scorer
 *
 * Produces a single trust score in [0,1] between the source text and the text
 * the model placed in the structured tree. Order-aware similarity (sequence
 * matching over content words) is blended with vocabulary overlap and then
 * damped when the candidate adds words the source never had (hallucination)
 * or is much shorter than the source (truncation).
 */

package similarity

import (
	"math"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/adverant/nexus/legalstruct-worker/internal/document"
)

// Report holds every component of a similarity score
type Report struct {
	WordSimilarity       float64 `json:"word_similarity" yaml:"word_similarity"`
	SetSimilarity        float64 `json:"set_similarity" yaml:"set_similarity"`
	HallucinationPenalty float64 `json:"hallucination_penalty" yaml:"hallucination_penalty"`
	TruncationPenalty    float64 `json:"truncation_penalty" yaml:"truncation_penalty"`
	FinalScore           float64 `json:"final_score" yaml:"final_score"`

	OriginalWords  int `json:"original_words" yaml:"original_words"`
	CandidateWords int `json:"candidate_words" yaml:"candidate_words"`
	AddedWords     int `json:"added_words" yaml:"added_words"`
}

// Params are the weights and penalty curves. The defaults were tuned by hand
// on a small sample of decrees and should be recalibrated against labeled data.
type Params struct {
	WordWeight float64 `yaml:"word_weight"`
	SetWeight  float64 `yaml:"set_weight"`

	HallucinationTrigger float64 `yaml:"hallucination_trigger"`
	HallucinationSlope   float64 `yaml:"hallucination_slope"`
	HallucinationFloor   float64 `yaml:"hallucination_floor"`

	TruncationTrigger float64 `yaml:"truncation_trigger"`
	TruncationSlope   float64 `yaml:"truncation_slope"`
	TruncationFloor   float64 `yaml:"truncation_floor"`
}

// DefaultParams returns the production weights
func DefaultParams() Params {
	return Params{
		WordWeight:           0.7,
		SetWeight:            0.3,
		HallucinationTrigger: 0.05,
		HallucinationSlope:   3.0,
		HallucinationFloor:   0.4,
		TruncationTrigger:    0.8,
		TruncationSlope:      2.0,
		TruncationFloor:      0.3,
	}
}

// Scorer computes similarity reports
type Scorer struct {
	params Params
}

// NewScorer creates a scorer with the given parameters
func NewScorer(params Params) *Scorer {
	return &Scorer{params: params}
}

// ScoreDocument scores the text extracted from a structured tree
func (s *Scorer) ScoreDocument(original string, doc *document.Document) Report {
	return s.Score(original, document.ExtractText(doc))
}

// Score compares the source text with candidate text
func (s *Scorer) Score(original, candidate string) Report {
	origWords := ContentWords(original)
	candWords := ContentWords(candidate)
	origSet := wordSet(origWords)
	candSet := wordSet(candWords)

	report := Report{
		WordSimilarity: sequenceRatio(origWords, candWords),
		SetSimilarity:  jaccard(origSet, candSet),
		OriginalWords:  len(origWords),
		CandidateWords: len(candWords),
	}

	added := 0
	for w := range candSet {
		if _, ok := origSet[w]; !ok {
			added++
		}
	}
	report.AddedWords = added

	report.HallucinationPenalty = 1.0
	addedRatio := float64(added) / float64(max(len(origWords), 1))
	if addedRatio > s.params.HallucinationTrigger {
		report.HallucinationPenalty = math.Max(s.params.HallucinationFloor, 1.0-addedRatio*s.params.HallucinationSlope)
	}

	report.TruncationPenalty = 1.0
	lengthRatio := 1.0
	if len(origWords) > 0 || len(candWords) > 0 {
		lengthRatio = float64(len(candWords)) / float64(max(len(origWords), 1))
	}
	if lengthRatio < s.params.TruncationTrigger {
		missing := s.params.TruncationTrigger - lengthRatio
		report.TruncationPenalty = math.Max(s.params.TruncationFloor, 1.0-missing*s.params.TruncationSlope)
	}

	base := s.params.WordWeight*report.WordSimilarity + s.params.SetWeight*report.SetSimilarity
	report.FinalScore = clamp01(base * report.HallucinationPenalty * report.TruncationPenalty)
	return report
}

// sequenceRatio is 2*M/T where M is the number of words in matching blocks
// and T the total word count; identical lists score 1.0, two empty lists too.
func sequenceRatio(a, b []string) float64 {
	m := difflib.NewMatcherWithJunk(a, b, false, nil)
	return m.Ratio()
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
