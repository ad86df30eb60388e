/**
 * @description
 * Deterministic keyword-based sentiment scorer.
 * Used in test mode and as the live fallback when no Gemini key is set.
 * Counts positive vs negative keyword hits (English plus common Hinglish
 * market slang) and derives a probability from the hit margin.
 */

package scoring

import (
	"context"
	"strings"
)

var positiveKeywords = []string{
	"rocket", "buy", "bullish", "strong", "bright", "gem", "moon",
	"breakout", "multibagger", "opportunity", "amazing", "king",
	"accumulate", "gold mine", "party", "zabardast", "mast", "rally",
	"upside", "target hit",
}

var negativeKeywords = []string{
	"trap", "crash", "sell", "scam", "loss", "dead", "avoid",
	"doobega", "barbaad", "risky", "danger", "overvalued",
	"bubble", "dump", "exit", "stop loss", "red", "bleeding",
	"downtrend", "panic",
}

// LexiconScorer classifies by keyword hit counts. Same text always yields
// the same result, which keeps test-mode runs reproducible.
type LexiconScorer struct{}

func NewLexiconScorer() *LexiconScorer {
	return &LexiconScorer{}
}

func (s *LexiconScorer) Model() string {
	return "lexicon-v1"
}

// Score labels each text independently and never fails.
func (s *LexiconScorer) Score(_ context.Context, texts []string) ([]Result, error) {
	results := make([]Result, len(texts))
	for i, text := range texts {
		results[i] = scoreLexicon(text)
	}
	return results, nil
}

func scoreLexicon(text string) Result {
	lower := strings.ToLower(text)

	pos := 0
	for _, kw := range positiveKeywords {
		if strings.Contains(lower, kw) {
			pos++
		}
	}
	neg := 0
	for _, kw := range negativeKeywords {
		if strings.Contains(lower, kw) {
			neg++
		}
	}

	switch {
	case pos > neg:
		return Result{Label: "positive", Score: hitProbability(pos - neg)}
	case neg > pos:
		return Result{Label: "negative", Score: hitProbability(neg - pos)}
	default:
		return Result{Label: "neutral", Score: 0.55}
	}
}

// hitProbability maps the keyword margin onto a probability: one net hit
// gives 0.70, each extra hit adds 0.08, capped at 0.95.
func hitProbability(margin int) float64 {
	p := 0.70 + float64(margin-1)*0.08
	if p > 0.95 {
		return 0.95
	}
	return p
}
