package mov

import (
	"math"

	"github.com/cwbudde/algo-peaq/earmodel"
)

// NoiseLoudnessParams parametrizes the partial-loudness formula shared
// by the noise-loudness family of output variables.
type NoiseLoudnessParams struct {
	Alpha    float64 // exponent of the asymmetry factor
	ThresFac float64 // modulation contribution to the threshold index
	S0       float64 // threshold index offset
	Floor    float64 // results below this are clamped to zero
}

// Parameter sets of the noise-loudness family.
var (
	// RMSNoiseLoudnessParams feeds the basic version's RmsNoiseLoud.
	RMSNoiseLoudnessParams = NoiseLoudnessParams{Alpha: 1.5, ThresFac: 0.15, S0: 0.5, Floor: 0}

	// AsymNoiseLoudnessParams feeds the advanced version's noise
	// loudness asymmetry and its paired missing-components measure.
	AsymNoiseLoudnessParams = NoiseLoudnessParams{Alpha: 1.5, ThresFac: 0.15, S0: 1, Floor: 0.1}

	// LinDistParams feeds the advanced version's average linear
	// distortion measure.
	LinDistParams = NoiseLoudnessParams{Alpha: 1.5, ThresFac: 0.15, S0: 1, Floor: 0.1}
)

// NoiseLoudness evaluates the partial loudness of the differences
// between two excitation patterns, weighted by the modulation patterns.
// The exponential asymmetry factor de-emphasizes components the test
// signal is missing rather than adding.
func NoiseLoudness(m earmodel.Model, p NoiseLoudnessParams, refExc, testExc, refMod, testMod []float64) float64 {
	n := m.BandCount()
	if len(refExc) != n || len(testExc) != n || len(refMod) != n || len(testMod) != n {
		panic("mov: noise loudness pattern band count mismatch")
	}

	total := 0.

	for k := range n {
		sRef := p.ThresFac*refMod[k] + p.S0
		sTest := p.ThresFac*testMod[k] + p.S0
		eThres := m.InternalNoise(k)

		beta := math.Exp(-p.Alpha * (testExc[k] - refExc[k]) / refExc[k])
		num := math.Max(sTest*testExc[k]-sRef*refExc[k], 0)

		total += math.Pow(eThres/sTest, 0.23) *
			(math.Pow(1.+num/(eThres+sRef*refExc[k]*beta), 0.23) - 1.)
	}

	total *= 24. / float64(n)
	if total < p.Floor {
		return 0
	}

	return total
}
