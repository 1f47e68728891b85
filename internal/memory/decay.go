package memory

import "math"

// DecayConfig controls memory decay and recall behavior.
type DecayConfig struct {
	Rate          float64 // exponential decay per hour (default 0.1)
	PurgeBelow    float64 // records weaker than this are dropped (default 0.01)
	MinConfidence float64 // default recall cut-off (default 0.1)
	MaxResults    int     // default recall size (default 10)
}

// DefaultDecayConfig returns sensible defaults.
func DefaultDecayConfig() DecayConfig {
	return DecayConfig{
		Rate:          0.1,
		PurgeBelow:    0.01,
		MinConfidence: 0.1,
		MaxResults:    10,
	}
}

// DecayValue applies value * e^(-rate*hours), clamped to [0,1].
// Non-positive elapsed time or rate leaves the value unchanged.
func DecayValue(value, rate, hours float64) float64 {
	value = Clamp01(value)
	if hours <= 0 || rate <= 0 || math.IsNaN(hours) || math.IsNaN(rate) {
		return value
	}
	return Clamp01(value * math.Exp(-rate*hours))
}

// Clamp01 pins v into [0,1]. NaN becomes 0.
func Clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
