package fusion

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Strategy maps a backend's raw scores into [0,1]. Strategies are batch
// functions: min-max and z-score depend on the whole result set, not on a
// single value.
type Strategy string

// Normalization strategies.
const (
	StrategyMinMax Strategy = "minmax" // rescale over the batch; a constant batch maps to 1.0
	StrategyClamp  Strategy = "clamp"  // clip into [0,1]
	StrategyAffine Strategy = "affine" // [-1,1] -> [0,1], then clip
	StrategyZScore Strategy = "zscore" // standardize over the batch, squash through a logistic
)

// ParseStrategy validates a strategy name from config.
func ParseStrategy(name string) (Strategy, error) {
	switch s := Strategy(name); s {
	case StrategyMinMax, StrategyClamp, StrategyAffine, StrategyZScore:
		return s, nil
	default:
		return "", fmt.Errorf("unknown normalization strategy %q", name)
	}
}

// Apply normalizes a batch of raw scores into [0,1]. NaN inputs map to 0
// before normalization.
func (s Strategy) Apply(scores []float64) []float64 {
	if len(scores) == 0 {
		return nil
	}

	in := make([]float64, len(scores))
	for i, v := range scores {
		if math.IsNaN(v) {
			v = 0
		}
		in[i] = v
	}

	out := make([]float64, len(in))
	switch s {
	case StrategyMinMax:
		lo, hi := floats.Min(in), floats.Max(in)
		if hi == lo {
			// Single result or constant batch carries no ordering signal;
			// treat every member as a full-strength match.
			for i := range out {
				out[i] = 1.0
			}
			return out
		}
		for i, v := range in {
			out[i] = (v - lo) / (hi - lo)
		}

	case StrategyAffine:
		for i, v := range in {
			out[i] = clamp01((v + 1) / 2)
		}

	case StrategyZScore:
		mean, std := stat.MeanStdDev(in, nil)
		if std == 0 || math.IsNaN(std) {
			for i := range out {
				out[i] = 0.5
			}
			return out
		}
		for i, v := range in {
			out[i] = 1 / (1 + math.Exp(-(v-mean)/std))
		}

	default: // StrategyClamp
		for i, v := range in {
			out[i] = clamp01(v)
		}
	}
	return out
}

func clamp01(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}
