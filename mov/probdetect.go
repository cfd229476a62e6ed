package mov

import "math"

// DetectionResult summarizes the detection-probability analysis of one
// frame across all channels.
type DetectionResult struct {
	// MaxProb is the largest binaural detection probability over all
	// bands.
	MaxProb float64
	// StepsAboveThreshold is the total number of detection steps summed
	// over bands and channels.
	StepsAboveThreshold float64
}

// A frame counts as distorted once its detection probability passes
// one half.
const DetectionThreshold = 0.5

// DetectionProbability maps the asymmetric level difference between
// reference and test excitation through the empirical detection-step
// curve. Channel probabilities combine under an independence
// assumption.
func DetectionProbability(refExcs, testExcs [][]float64) DetectionResult {
	bands := len(refExcs[0])
	res := DetectionResult{}

	for k := range bands {
		pNone := 1.

		for ch := range refExcs {
			eRef := 10. * math.Log10(refExcs[ch][k])
			eTest := 10. * math.Log10(testExcs[ch][k])

			l := 0.3*math.Max(eRef, eTest) + 0.7*eTest

			s := 1e30
			if l > 0 {
				s = detectionStep(l)
			}

			e := eRef - eTest

			b := 6.
			if eRef > eTest {
				b = 4.
			}

			p := 1. - math.Pow(0.5, math.Pow(e/s, b))
			pNone *= 1. - p

			res.StepsAboveThreshold += math.Abs(math.Trunc(e)) / s
		}

		res.MaxProb = math.Max(res.MaxProb, 1.-pNone)
	}

	return res
}

// detectionStep evaluates the empirical step size of the internal
// detection scale at level l (dB).
func detectionStep(l float64) float64 {
	return 5.95072*math.Pow(6.39468/l, 1.71332) +
		9.01033e-11*l*l*l*l +
		5.05622e-6*l*l*l -
		0.00102438*l*l +
		0.0550197*l -
		0.198719
}
