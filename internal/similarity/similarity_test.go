package similarity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/legalstruct-worker/internal/document"
)

const decree = `ARTÍCULO 1.- Se prohíbe la circulación de vehículos pesados por el centro histórico de la ciudad durante el horario comercial.
ARTÍCULO 2.- La autoridad de aplicación fijará las sanciones correspondientes a quienes infrinjan la presente disposición.
ARTÍCULO 3.- Comuníquese, publíquese y archívese.`

func TestContentWords(t *testing.T) {
	words := ContentWords("ARTÍCULO 12.- Se establece, (conforme) al Art. 3º, el régimen — vigente.")
	assert.Equal(t, []string{"se", "establece", "conforme", "al", "el", "régimen", "vigente"}, words)

	assert.Empty(t, ContentWords("  1. - 2/2023 ... "))
}

func TestScoreIdentity(t *testing.T) {
	scorer := NewScorer(DefaultParams())
	for _, text := range []string{decree, "Comuníquese y archívese.", "uno"} {
		report := scorer.Score(text, text)
		assert.Equal(t, 1.0, report.FinalScore, text)
		assert.Equal(t, 1.0, report.HallucinationPenalty)
		assert.Equal(t, 1.0, report.TruncationPenalty)
	}
}

func TestScoreCaseAndWhitespaceInvariant(t *testing.T) {
	scorer := NewScorer(DefaultParams())
	candidate := "Se prohíbe la circulación de vehículos pesados. La autoridad fijará sanciones."

	base := scorer.Score(decree, candidate)
	shouted := scorer.Score(strings.ToUpper(decree), candidate)
	spaced := scorer.Score(decree, strings.ReplaceAll(candidate, " ", " \t\n  "))

	assert.InDelta(t, base.FinalScore, shouted.FinalScore, 1e-12)
	assert.InDelta(t, base.FinalScore, spaced.FinalScore, 1e-12)
}

func TestScoreHeaderRemovalNotPenalized(t *testing.T) {
	scorer := NewScorer(DefaultParams())
	doc := &document.Document{
		Articles: []document.Article{{Ordinal: "1", Body: "Se prohíbe izar banderas extranjeras."}},
	}

	report := scorer.ScoreDocument("ARTICULO 1. — Se prohíbe izar banderas extranjeras.", doc)
	assert.Equal(t, 1.0, report.FinalScore)
}

func TestScoreFabricatedArticle(t *testing.T) {
	scorer := NewScorer(DefaultParams())
	doc := &document.Document{Articles: []document.Article{
		{Ordinal: "1", Body: "Se prohíbe la circulación de vehículos pesados por el centro histórico de la ciudad durante el horario comercial."},
		{Ordinal: "2", Body: "La autoridad de aplicación fijará las sanciones correspondientes a quienes infrinjan la presente disposición."},
		{Ordinal: "3", Body: "Se prohíbe la circulación nocturna de motocicletas."},
		{Ordinal: "4", Body: "Comuníquese, publíquese y archívese."},
	}}

	report := scorer.ScoreDocument(decree, doc)
	assert.Equal(t, 2, report.AddedWords)
	assert.Less(t, report.HallucinationPenalty, 1.0)
	assert.Less(t, report.FinalScore, 0.85)
}

func TestScoreTruncatedTail(t *testing.T) {
	scorer := NewScorer(DefaultParams())
	original := `ARTÍCULO 1.- El presente reglamento regula el uso del espacio público municipal por parte de vendedores ambulantes.
ARTÍCULO 2.- Los permisos serán otorgados por la secretaría de gobierno previa inspección del puesto solicitado.
ARTÍCULO 3.- Las infracciones serán sancionadas con multas graduadas según la reincidencia del responsable.`
	doc := &document.Document{Articles: []document.Article{
		{Ordinal: "1", Body: "El presente reglamento regula el uso del espacio público municipal por parte de vendedores ambulantes."},
		{Ordinal: "2", Body: "Los permisos serán otorgados por la secretaría de gobierno previa inspección del puesto solicitado."},
	}}

	report := scorer.ScoreDocument(original, doc)
	assert.Less(t, report.TruncationPenalty, 1.0)
	assert.Equal(t, 1.0, report.HallucinationPenalty)
	assert.Less(t, report.FinalScore, 0.85)
}

func TestScoreNovelWordsStrictlyDecrease(t *testing.T) {
	scorer := NewScorer(DefaultParams())
	clean := scorer.Score(decree, decree)
	padded := scorer.Score(decree, decree+" Tasas moratorias aplicables íntegramente.")

	require.Greater(t, float64(padded.AddedWords)/float64(padded.OriginalWords), 0.05)
	assert.Less(t, padded.HallucinationPenalty, 1.0)
	assert.Less(t, padded.FinalScore, clean.FinalScore)
}

func TestScoreEmptySides(t *testing.T) {
	scorer := NewScorer(DefaultParams())

	both := scorer.Score("", "")
	assert.Equal(t, 1.0, both.FinalScore)

	missing := scorer.Score(decree, "")
	assert.Equal(t, 0.0, missing.SetSimilarity)
	assert.Equal(t, 0.3, missing.TruncationPenalty)
	assert.Equal(t, 0.0, missing.FinalScore)
}

func TestScoreCustomParams(t *testing.T) {
	params := DefaultParams()
	params.HallucinationTrigger = 1.0
	scorer := NewScorer(params)

	report := scorer.Score("uno dos tres", "uno dos tres cuatro")
	assert.Equal(t, 1.0, report.HallucinationPenalty)
	assert.Greater(t, report.FinalScore, 0.8)
}
