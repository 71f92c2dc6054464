package evaluator

import "time"

// efficiency score weights: F1 carries the base weight, with up to 15%
// credit each for beating a reference detection time and a reference
// prompt length.
const (
	efficiencyBaseWeight = 0.7
	efficiencyTimeWeight = 0.15
	efficiencyLenWeight  = 0.15
)

// EfficiencyScore computes `F1 * (0.7 + 0.15*min(1, tMax/tMeasured) +
// 0.15*min(1, lMax/lMeasured))`, the composite score an optimiser loop uses
// to trade accuracy against latency and prompt cost. tMeasured/lMeasured of
// zero are treated as the best possible value (ratio capped at 1) rather
// than producing a division by zero.
func EfficiencyScore(f1 float64, tMax, tMeasured time.Duration, lMax, lMeasured int) float64 {
	return f1 * (efficiencyBaseWeight +
		efficiencyTimeWeight*boundedRatio(float64(tMax), float64(tMeasured)) +
		efficiencyLenWeight*boundedRatio(float64(lMax), float64(lMeasured)))
}

func boundedRatio(reference, measured float64) float64 {
	if measured <= 0 {
		return 1
	}
	ratio := reference / measured
	if ratio > 1 {
		return 1
	}
	if ratio < 0 {
		return 0
	}
	return ratio
}
