package risk

import (
	"errors"
	"fmt"
	"strings"
)

// MaxScore is the upper bound of every score.
const MaxScore = 100.0

var (
	ErrEmptyPattern     = errors.New("risk: indicator pattern is empty")
	ErrDuplicatePattern = errors.New("risk: indicator pattern is configured twice")
	ErrNegativeWeight   = errors.New("risk: indicator weight is negative")
	ErrScoreOutOfRange  = errors.New("risk: score setting out of range")
)

// Indicator is a substring whose presence adds Weight to the score.
type Indicator struct {
	Pattern string  `yaml:"pattern" json:"pattern"`
	Weight  float64 `yaml:"weight" json:"weight"`
}

// Policy holds the scoring configuration. It is read once at startup.
type Policy struct {
	BaseScore  float64     `yaml:"base_score"`
	Threshold  float64     `yaml:"threshold"`
	Indicators []Indicator `yaml:"indicators"`
}

// DefaultPolicy returns the indicator table the service ships with.
func DefaultPolicy() Policy {
	patterns := []string{
		"eval(", "exec(", "os.system", "subprocess",
		"base64", "fetch(", "XMLHttpRequest",
	}
	indicators := make([]Indicator, 0, len(patterns))
	for _, p := range patterns {
		indicators = append(indicators, Indicator{Pattern: p, Weight: 20})
	}
	return Policy{
		BaseScore:  10,
		Threshold:  75,
		Indicators: indicators,
	}
}

// Validate rejects policies that would break the score bounds or count an
// indicator twice.
func (p Policy) Validate() error {
	if p.BaseScore < 0 || p.BaseScore > MaxScore {
		return fmt.Errorf("%w: base_score %v", ErrScoreOutOfRange, p.BaseScore)
	}
	if p.Threshold < 0 || p.Threshold > MaxScore {
		return fmt.Errorf("%w: threshold %v", ErrScoreOutOfRange, p.Threshold)
	}
	seen := make(map[string]struct{}, len(p.Indicators))
	for i, ind := range p.Indicators {
		if strings.TrimSpace(ind.Pattern) == "" {
			return fmt.Errorf("%w: indicator #%d", ErrEmptyPattern, i)
		}
		if ind.Weight < 0 {
			return fmt.Errorf("%w: %q", ErrNegativeWeight, ind.Pattern)
		}
		if _, dup := seen[ind.Pattern]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicatePattern, ind.Pattern)
		}
		seen[ind.Pattern] = struct{}{}
	}
	return nil
}
