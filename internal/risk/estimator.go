// Package risk scores submitted content. Scoring is pure: no I/O, no clock,
// no shared state.
package risk

import (
	"bytes"

	"scip/internal/models"
)

// Estimator maps content to a score in [0, MaxScore].
type Estimator interface {
	Score(content []byte) float64
}

// KeywordEstimator adds an indicator's weight once when its pattern occurs in
// the content, regardless of how many times it occurs.
type KeywordEstimator struct {
	base       float64
	indicators []Indicator
}

// NewKeywordEstimator builds an estimator from a validated policy.
func NewKeywordEstimator(p Policy) (*KeywordEstimator, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	indicators := make([]Indicator, len(p.Indicators))
	copy(indicators, p.Indicators)
	return &KeywordEstimator{base: p.BaseScore, indicators: indicators}, nil
}

// Score implements Estimator.
func (e *KeywordEstimator) Score(content []byte) float64 {
	score := e.base
	for _, ind := range e.indicators {
		if bytes.Contains(content, []byte(ind.Pattern)) {
			score += ind.Weight
		}
	}
	return clamp(score)
}

// Matches returns the configured indicators present in content, in
// configuration order.
func (e *KeywordEstimator) Matches(content []byte) []string {
	var found []string
	for _, ind := range e.indicators {
		if bytes.Contains(content, []byte(ind.Pattern)) {
			found = append(found, ind.Pattern)
		}
	}
	return found
}

// Decide applies the threshold: a score equal to the threshold is rejected.
func Decide(score, threshold float64) models.Decision {
	if score < threshold {
		return models.DecisionAccepted
	}
	return models.DecisionRejected
}

func clamp(score float64) float64 {
	switch {
	case score < 0:
		return 0
	case score > MaxScore:
		return MaxScore
	default:
		return score
	}
}
