package mov

import (
	"math"

	"github.com/cwbudde/algo-peaq/earmodel"
)

// Frames where any band's noise-to-mask ratio exceeds 1.5 dB count as
// relatively disturbed.
const disturbedRatio = 1.41253754462275 // 10^(1.5/10)

// NMR computes per-frame noise-to-mask ratios on the FFT ear model. It
// owns the per-band mask offsets and the grouping scratch, so one
// instance serves all channels of one model.
type NMR struct {
	model *earmodel.FFTModel

	maskOffset []float64 // 10^(m/10), m = 3 dB below 12 Bark, 0.25*z above
	noiseSpec  []float64
	noiseBands []float64
}

// NewNMR creates the analysis for the given FFT ear model.
func NewNMR(model *earmodel.FFTModel) *NMR {
	n := model.BandCount()
	deltaZ := 27. / float64(n-1)

	nmr := &NMR{
		model:      model,
		maskOffset: make([]float64, n),
		noiseSpec:  make([]float64, earmodel.FFTBinCount),
		noiseBands: make([]float64, n),
	}

	for k := range n {
		m := 3.
		if z := float64(k) * deltaZ; z > 12. {
			m = 0.25 * z
		}

		nmr.maskOffset[k] = math.Pow(10., m/10.)
	}

	return nmr
}

// Frame returns the mean noise-to-mask ratio of the current frame and
// whether the frame counts as relatively disturbed. The noise pattern
// comes from the squared magnitude difference of the ear-weighted
// spectra; the mask derives from the reference excitation.
func (n *NMR) Frame(ref, test *earmodel.FFTState) (float64, bool) {
	pr := ref.WeightedPowerSpectrum()
	pt := test.WeightedPowerSpectrum()

	for k := range n.noiseSpec {
		d := math.Sqrt(pr[k]) - math.Sqrt(pt[k])
		n.noiseSpec[k] = d * d
	}

	n.model.GroupIntoBands(n.noiseSpec, n.noiseBands)

	refExc := ref.Excitation()
	sum := 0.
	disturbed := false

	for k, noise := range n.noiseBands {
		ratio := noise * n.maskOffset[k] / refExc[k]
		sum += ratio

		if ratio > disturbedRatio {
			disturbed = true
		}
	}

	return sum / float64(len(n.noiseBands)), disturbed
}
