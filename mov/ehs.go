package mov

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/cwbudde/algo-dsp/dsp/window"
	algofft "github.com/cwbudde/algo-fft"

	"github.com/cwbudde/algo-peaq/earmodel"
)

// CorrelationMode selects how the error-harmonic-structure correlation
// window is prepared before the spectral peak search.
type CorrelationMode int

const (
	// CorrelationLagZero keeps the normalized correlation as is,
	// including its lag-zero component.
	CorrelationLagZero CorrelationMode = iota
	// CorrelationCentered removes the mean of the normalized
	// correlation before windowing, suppressing the DC peak.
	CorrelationCentered
)

const (
	ehsMaxLag = 256
	// The log spectral difference spans twice the lag range so every
	// lag correlates over a full window.
	ehsWindowLen = 2 * ehsMaxLag
	// Correlation via FFT, zero-padded to avoid circular wrap-around.
	ehsCorrFFTLen = 1024

	ehsScale = 1000.

	// Spectral bins of a digitally silent signal are exactly zero; the
	// floor keeps the log ratio finite.
	ehsPowerFloor = 1e-12
)

// EHS analyses the harmonic structure of the spectral error between
// reference and test. One instance serves all channels of one meter.
type EHS struct {
	mode CorrelationMode

	corrPlan *algofft.Plan[complex128]
	specPlan *algofft.Plan[complex128]

	hann []float64

	diff []float64
	corr []float64

	fftIn   []complex128
	fftFull []complex128
	fftHead []complex128

	specIn  []complex128
	specOut []complex128
	power   []float64
}

// NewEHS creates the analysis in the given correlation mode.
func NewEHS(mode CorrelationMode) (*EHS, error) {
	corrPlan, err := algofft.NewPlan64(ehsCorrFFTLen)
	if err != nil {
		return nil, fmt.Errorf("mov: correlation FFT plan: %w", err)
	}

	specPlan, err := algofft.NewPlan64(ehsMaxLag)
	if err != nil {
		return nil, fmt.Errorf("mov: spectrum FFT plan: %w", err)
	}

	return &EHS{
		mode:     mode,
		corrPlan: corrPlan,
		specPlan: specPlan,
		hann:     window.Generate(window.TypeHann, ehsMaxLag),
		diff:     make([]float64, ehsWindowLen),
		corr:     make([]float64, ehsMaxLag),
		fftIn:    make([]complex128, ehsCorrFFTLen),
		fftFull:  make([]complex128, ehsCorrFFTLen),
		fftHead:  make([]complex128, ehsCorrFFTLen),
		specIn:   make([]complex128, ehsMaxLag),
		specOut:  make([]complex128, ehsMaxLag),
		power:    make([]float64, ehsMaxLag/2+1),
	}, nil
}

// Frame returns the error-harmonic-structure value of the current frame
// and whether the frame carried enough energy to count. Frames below
// the energy threshold on both signals are skipped.
func (h *EHS) Frame(ref, test *earmodel.FFTState) (float64, bool) {
	if !ref.EnergyThresholdReached() && !test.EnergyThresholdReached() {
		return 0, false
	}

	pr := ref.WeightedPowerSpectrum()
	pt := test.WeightedPowerSpectrum()

	for k := range h.diff {
		h.diff[k] = math.Log(math.Max(pt[k], ehsPowerFloor) / math.Max(pr[k], ehsPowerFloor))
	}

	// A spectrally identical frame has no error structure to analyse.
	s0 := 0.
	for k := range ehsMaxLag {
		s0 += h.diff[k] * h.diff[k]
	}

	if s0 == 0 {
		return 0, true
	}

	h.correlate()

	// Normalize each lag by the energies of the two windows it
	// correlates; the lagged window's energy is maintained as a running
	// sum.
	sLag := s0

	for lag := range ehsMaxLag {
		h.corr[lag] /= math.Sqrt(s0 * sLag)

		sLag += h.diff[lag+ehsMaxLag]*h.diff[lag+ehsMaxLag] - h.diff[lag]*h.diff[lag]
	}

	if h.mode == CorrelationCentered {
		mean := 0.
		for _, c := range h.corr {
			mean += c
		}

		mean /= ehsMaxLag
		for k := range h.corr {
			h.corr[k] -= mean
		}
	}

	for k := range h.corr {
		h.specIn[k] = complex(h.corr[k]*h.hann[k], 0)
	}

	if err := h.specPlan.Forward(h.specOut, h.specIn); err != nil {
		panic(fmt.Sprintf("mov: spectrum FFT: %v", err))
	}

	for k := range h.power {
		h.power[k] = ehsPower(h.specOut[k])
	}

	return ehsScale * peakAfterFirstDecline(h.power), true
}

// peakAfterFirstDecline returns the largest local maximum of a power
// sequence after its first decline. Values on a falling slope do not
// count; a rise running into the upper edge does.
func peakAfterFirstDecline(p []float64) float64 {
	peak := 0.
	declined := false

	for k := 1; k < len(p); k++ {
		if !declined {
			declined = p[k] < p[k-1]
			continue
		}

		if p[k] > p[k-1] && (k+1 == len(p) || p[k+1] <= p[k]) && p[k] > peak {
			peak = p[k]
		}
	}

	return peak
}

// correlate fills h.corr with the raw autocorrelation of the spectral
// difference for lags 0..ehsMaxLag-1, evaluated in the frequency
// domain.
func (h *EHS) correlate() {
	for k := range h.fftIn {
		h.fftIn[k] = 0
	}

	for k, d := range h.diff {
		h.fftIn[k] = complex(d, 0)
	}

	if err := h.corrPlan.Forward(h.fftFull, h.fftIn); err != nil {
		panic(fmt.Sprintf("mov: correlation FFT: %v", err))
	}

	for k := ehsMaxLag; k < len(h.fftIn); k++ {
		h.fftIn[k] = 0
	}

	if err := h.corrPlan.Forward(h.fftHead, h.fftIn); err != nil {
		panic(fmt.Sprintf("mov: correlation FFT: %v", err))
	}

	for k := range h.fftFull {
		h.fftFull[k] *= cmplx.Conj(h.fftHead[k])
	}

	if err := h.corrPlan.Inverse(h.fftIn, h.fftFull); err != nil {
		panic(fmt.Sprintf("mov: correlation inverse FFT: %v", err))
	}

	for lag := range h.corr {
		h.corr[lag] = real(h.fftIn[lag])
	}
}

func ehsPower(c complex128) float64 {
	return real(c)*real(c) + imag(c)*imag(c)
}
