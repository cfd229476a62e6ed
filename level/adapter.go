// Package level implements the level and pattern adaptation stage of
// the PEAQ perceptual model. It removes the global level offset between
// the reference and test excitation patterns and compensates slowly
// varying linear distortions per band, so that the noise-loudness
// analyses only see the nonlinear differences.
package level

import (
	"math"

	"github.com/cwbudde/algo-peaq/earmodel"
)

// Adapter holds the per-channel adaptation state for one ear model.
type Adapter struct {
	bandCount int
	coeff     []float64 // per-band one-pole coefficients from the ear model
	half      int       // pattern-correction neighbourhood half-width

	refFilt  []float64
	testFilt []float64

	num []float64
	den []float64

	corrRef  []float64
	corrTest []float64

	specRef  []float64
	specTest []float64
}

// NewAdapter creates an adapter sized and tuned for the given ear
// model. The pattern-correction smoothing spans more bands for the
// fine 109-band resolution than for the coarser 55/40-band patterns.
func NewAdapter(m earmodel.Model) *Adapter {
	n := m.BandCount()

	a := &Adapter{
		bandCount: n,
		coeff:     make([]float64, n),
		refFilt:   make([]float64, n),
		testFilt:  make([]float64, n),
		num:       make([]float64, n),
		den:       make([]float64, n),
		corrRef:   make([]float64, n),
		corrTest:  make([]float64, n),
		specRef:   make([]float64, n),
		specTest:  make([]float64, n),
	}

	a.half = 1
	if n > 100 {
		a.half = 3
	}

	for k := range n {
		a.coeff[k] = m.TimeConstant(k)
	}

	return a
}

// BandCount returns the band count the adapter was configured for.
func (a *Adapter) BandCount() int { return a.bandCount }

// Process consumes one frame's reference and test excitation patterns.
func (a *Adapter) Process(refExc, testExc []float64) {
	if len(refExc) != a.bandCount || len(testExc) != a.bandCount {
		panic("level: excitation pattern band count mismatch")
	}

	// Smooth both patterns in time, then derive one scalar level
	// correction from the cross energy against the test energy.
	num, den := 0., 0.
	for k := range a.bandCount {
		c := a.coeff[k]
		a.refFilt[k] = c*a.refFilt[k] + (1.-c)*refExc[k]
		a.testFilt[k] = c*a.testFilt[k] + (1.-c)*testExc[k]

		num += math.Sqrt(a.refFilt[k] * a.testFilt[k])
		den += a.testFilt[k]
	}

	levCorr := num / den
	levCorr *= levCorr

	// Scale down whichever signal is the louder one.
	for k := range a.bandCount {
		if levCorr > 1. {
			a.specRef[k] = refExc[k] / levCorr
			a.specTest[k] = testExc[k]
		} else {
			a.specRef[k] = refExc[k]
			a.specTest[k] = testExc[k] * levCorr
		}
	}

	// Per-band correction ratio, smoothed in time; neither direction
	// may amplify, so the larger signal is always pulled down.
	for k := range a.bandCount {
		c := a.coeff[k]
		a.num[k] = c*a.num[k] + (1.-c)*a.specTest[k]*a.specRef[k]
		a.den[k] = c*a.den[k] + (1.-c)*a.specRef[k]*a.specRef[k]

		r := a.num[k] / a.den[k]
		if r >= 1. {
			a.corrRef[k] = 1.
			a.corrTest[k] = 1. / r
		} else {
			a.corrRef[k] = r
			a.corrTest[k] = 1.
		}
	}

	// Smooth the correction factors over the band neighbourhood and
	// apply them.
	for k := range a.bandCount {
		lo := max(k-a.half, 0)
		hi := min(k+a.half, a.bandCount-1)

		sumRef, sumTest := 0., 0.
		for j := lo; j <= hi; j++ {
			sumRef += a.corrRef[j]
			sumTest += a.corrTest[j]
		}

		w := float64(hi - lo + 1)
		a.specRef[k] *= sumRef / w
		a.specTest[k] *= sumTest / w
	}
}

// RefPattern returns the spectrally adapted reference pattern of the
// most recent frame.
func (a *Adapter) RefPattern() []float64 { return a.specRef }

// TestPattern returns the spectrally adapted test pattern of the most
// recent frame.
func (a *Adapter) TestPattern() []float64 { return a.specTest }
