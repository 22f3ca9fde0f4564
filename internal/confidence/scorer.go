// Package confidence combines per-source confidence values into a single score.
package confidence

import (
	"math"
	"sort"
)

const (
	// Min is the lowest valid confidence.
	Min = 0.0
	// Max is the highest valid confidence.
	Max = 100.0
	// DefaultCorroborationWeight scales how much a corroborating source closes
	// the gap between the stronger score and Max.
	DefaultCorroborationWeight = 0.5
)

// Config holds scorer parameters.
type Config struct {
	CorroborationWeight float64
}

// DefaultConfig returns the default scorer configuration.
func DefaultConfig() Config {
	return Config{CorroborationWeight: DefaultCorroborationWeight}
}

// Scorer is a pure function object; it holds no state between calls.
type Scorer struct {
	weight float64
}

// New creates a scorer with the default configuration.
func New() *Scorer {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a scorer with a custom configuration.
// Weights outside (0, 1] fall back to the default.
func NewWithConfig(cfg Config) *Scorer {
	w := cfg.CorroborationWeight
	if w <= 0 || w > 1 || math.IsNaN(w) {
		w = DefaultCorroborationWeight
	}
	return &Scorer{weight: w}
}

// Score combines two confidences. Without corroboration a is returned
// unchanged. With corroboration the result is at least max(a, b), never above
// Max, and grows with the weaker of the two.
func (s *Scorer) Score(a, b float64, corroborated bool) float64 {
	a = Clamp(a)
	if !corroborated {
		return a
	}
	b = Clamp(b)

	hi, lo := a, b
	if lo > hi {
		hi, lo = lo, hi
	}

	boosted := round2(Max - (Max-hi)*(1-s.weight*lo/Max))
	return Clamp(math.Max(hi, boosted))
}

// Combine folds any number of corroborating confidences into one. The inputs
// are sorted first so the result does not depend on their order.
func (s *Scorer) Combine(confs ...float64) float64 {
	if len(confs) == 0 {
		return Min
	}

	sorted := make([]float64, len(confs))
	for i, c := range confs {
		sorted[i] = Clamp(c)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))

	acc := sorted[0]
	for _, c := range sorted[1:] {
		acc = s.Score(acc, c, true)
	}
	return acc
}

// Clamp limits v to [Min, Max]. NaN maps to Min.
func Clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < Min:
		return Min
	case v > Max:
		return Max
	default:
		return v
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
