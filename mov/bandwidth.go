package mov

import (
	"github.com/cwbudde/algo-peaq/earmodel"
	"gonum.org/v1/gonum/floats"
)

const (
	// Noise floor estimated from the near-Nyquist bins.
	bwNoiseFloorLow  = 921
	bwNoiseFloorHigh = 1024 // exclusive

	bwRefFactor  = 10.        // 10 dB above the floor
	bwTestFactor = 3.16227766 // 5 dB above the floor

	// Frames whose reference bandwidth does not reach this bin do not
	// contribute.
	bwMinRefBin = 346
)

// Bandwidth searches the reference and test power spectra for the
// highest bin still clearly above the noise floor and feeds both
// bandwidth accumulators. Frames with too little reference bandwidth
// are skipped.
func Bandwidth(ref, test *earmodel.FFTState, accRef, accTest *Accumulator, channel int) {
	pr := ref.PowerSpectrum()
	pt := test.PowerSpectrum()

	floor := floats.Max(pt[bwNoiseFloorLow:bwNoiseFloorHigh])

	bwRef := 0
	for k := bwNoiseFloorLow - 1; k > 0; k-- {
		if pr[k] > bwRefFactor*floor {
			bwRef = k + 1
			break
		}
	}

	if bwRef <= bwMinRefBin {
		return
	}

	bwTest := 0
	for k := bwRef - 1; k >= 0; k-- {
		if pt[k] > bwTestFactor*floor {
			bwTest = k + 1
			break
		}
	}

	accRef.Accumulate(channel, float64(bwRef), 1)
	accTest.Accumulate(channel, float64(bwTest), 1)
}
