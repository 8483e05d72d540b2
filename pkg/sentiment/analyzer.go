package sentiment

import (
	"context"
	"strings"

	"github.com/jonreiter/govader"
)

// Scores is the polarity breakdown for a piece of text. Compound is the
// normalized overall score in [-1, 1].
type Scores struct {
	Negative float64 `json:"neg"`
	Neutral  float64 `json:"neu"`
	Positive float64 `json:"pos"`
	Compound float64 `json:"compound"`
}

// Scorer produces polarity scores for text
type Scorer interface {
	PolarityScores(ctx context.Context, text string) (Scores, error)
}

// Analyzer scores text with the VADER lexicon and rules
type Analyzer struct {
	vader *govader.SentimentIntensityAnalyzer
}

// NewAnalyzer returns an Analyzer backed by the bundled VADER lexicon
func NewAnalyzer() *Analyzer {
	return &Analyzer{vader: govader.NewSentimentIntensityAnalyzer()}
}

// PolarityScores implements Scorer. It never returns an error.
func (a *Analyzer) PolarityScores(_ context.Context, text string) (Scores, error) {
	return a.Score(text), nil
}

// Score computes polarity scores for text. Blank text is fully neutral.
func (a *Analyzer) Score(text string) Scores {
	if strings.TrimSpace(text) == "" {
		return Scores{Neutral: 1}
	}

	s := a.vader.PolarityScores(text)
	return Scores{
		Negative: s.Negative,
		Neutral:  s.Neutral,
		Positive: s.Positive,
		Compound: s.Compound,
	}
}
