package brain

// Activation recombination weights. When a concept is mentioned again, its
// activation blends the prior value with the extractor's confidence for the
// new mention. Defined once here so every graph backend applies the same
// formula.
const (
	// ActivationCarry is the weight of the concept's prior activation.
	ActivationCarry = 0.7

	// ActivationInput is the weight of the new mention's confidence.
	ActivationInput = 0.3
)

// RecombineActivation merges a concept's prior activation with the confidence
// of a fresh mention. The result is clamped to [0, 1].
func RecombineActivation(old, confidence float64) float64 {
	return ClampUnit(old*ActivationCarry + confidence*ActivationInput)
}

// ClampUnit clamps v into the [0, 1] range.
func ClampUnit(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
