// Package decay provides exponential time-decay math for influence weights.
package decay

import "math"

// Preset decay rates (per day). Balanced is the default and corresponds to
// a half-life of roughly 35 days.
const (
	RateSlow     = 0.01
	RateBalanced = 0.02
	RateFast     = 0.05
)

// DefaultRate is the decay rate used when none is configured.
const DefaultRate = RateBalanced

// Apply returns the weight after ageDays of exponential decay at rate
// lambda. Negative ages are treated as zero, and a zero lambda disables
// decay; both are identity cases.
func Apply(weight, ageDays, lambda float64) float64 {
	if lambda == 0 {
		return weight
	}
	if ageDays < 0 {
		ageDays = 0
	}
	return weight * math.Exp(-lambda*ageDays)
}

// Factor returns the bare decay multiplier exp(-lambda * ageDays) in (0, 1].
func Factor(ageDays, lambda float64) float64 {
	return Apply(1, ageDays, lambda)
}

// HalfLife returns the number of days after which a weight halves at rate
// lambda. Returns +Inf for a zero lambda.
func HalfLife(lambda float64) float64 {
	if lambda == 0 {
		return math.Inf(1)
	}
	return math.Ln2 / lambda
}

// Lambda returns the decay rate with the given half-life in days.
// Returns 0 for a non-positive half-life.
func Lambda(halfLifeDays float64) float64 {
	if halfLifeDays <= 0 {
		return 0
	}
	return math.Ln2 / halfLifeDays
}
