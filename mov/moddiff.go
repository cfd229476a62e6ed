package mov

import (
	"math"

	"github.com/cwbudde/algo-peaq/earmodel"
)

// ModDiffParams parametrizes the modulation-difference measure.
type ModDiffParams struct {
	NegWeight   float64 // weight of bands where test modulation falls short
	Offset      float64 // normalization offset in the denominator
	LevelWeight float64 // internal-noise emphasis of the temporal weight
}

// Modulation-difference parameter sets.
var (
	// ModDiff1Params drives WinModDiff1 and AvgModDiff1.
	ModDiff1Params = ModDiffParams{NegWeight: 1, Offset: 1, LevelWeight: 1}

	// ModDiff2Params drives AvgModDiff2 and the advanced RmsModDiff.
	ModDiff2Params = ModDiffParams{NegWeight: 0.1, Offset: 0.01, LevelWeight: 100}
)

// ModulationDifference returns the per-frame modulation difference of
// one channel, rescaled by the band count.
func ModulationDifference(refMod, testMod []float64, p ModDiffParams) float64 {
	sum := 0.

	for k := range refMod {
		diff := math.Abs(testMod[k]-refMod[k]) / (p.Offset + refMod[k])

		if testMod[k] < refMod[k] {
			diff *= p.NegWeight
		}

		sum += diff
	}

	return 100. * sum / float64(len(refMod))
}

// ModulationDifferenceWeight returns the temporal weight of one frame:
// loud bands count fully, bands close to the internal noise hardly at
// all. The reference signal's average loudness supplies the levels.
func ModulationDifferenceWeight(m earmodel.Model, avgLoud []float64, p ModDiffParams) float64 {
	sum := 0.

	for k, l := range avgLoud {
		sum += l / (l + p.LevelWeight*math.Pow(m.InternalNoise(k), 0.3))
	}

	return sum
}
