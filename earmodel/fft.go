package earmodel

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-dsp/dsp/window"
	algofft "github.com/cwbudde/algo-fft"
	"github.com/cwbudde/algo-vecmath"
)

const (
	// FFTFrameSize is the frame length of the FFT-based ear model.
	FFTFrameSize = 2048
	// FFTStepSize is the frame advance; frames overlap by 50%.
	FFTStepSize = FFTFrameSize / 2
	// FFTBinCount is the number of non-negative frequency bins.
	FFTBinCount = FFTFrameSize/2 + 1

	// Critical band partition limits on z = 7*asinh(f/650).
	fftLowerFrequencyLimit = 80.
	fftUpperFrequencyLimit = 18000.

	// Forward-masking time-constant bounds.
	fftTauMin  = 0.008
	fftTau100  = 0.050
	spreadExp  = 0.4
	powerFloor = 1e-12

	// Sum of squared samples over the second half frame above which the
	// frame counts towards the error-harmonic-structure analysis
	// (8000 with samples on the 16-bit integer scale).
	energyThreshold = 8000. / (32768. * 32768.)
)

// FFTModel is the FFT-based peripheral ear model. It operates on
// 2048-sample frames taken every 1024 samples and produces excitation
// patterns over 109 critical bands (basic version) or 55 bands
// (advanced version).
type FFTModel struct {
	bandCount int
	deltaZ    float64
	level     float64
	// scale applied to squared FFT magnitudes; maps a full-scale sine
	// to the configured playback level
	levelFactor float64

	plan    *algofft.Plan[complex128]
	window  []float64
	weights []float64 // outer/middle ear power weighting per bin

	lowerBin    []int
	upperBin    []int
	lowerWeight []float64
	upperWeight []float64

	fc            []float64
	internalNoise []float64
	smearCoeff    []float64

	// frequency-spreading tables
	aLe        float64   // lower-slope attenuation in the 0.4-power domain
	aUC        []float64 // level-independent part of the upper slope
	gIL        []float64 // lower-slope unit-response gain
	spreadNorm []float64
}

// FFTState is the per-channel state of the FFT ear model.
type FFTState struct {
	powerSpectrum         []float64
	weightedPowerSpectrum []float64

	banded    []float64
	unsmeared []float64
	filtered  []float64
	exc       []float64

	energyReached bool

	windowed []float64
	binRe    []float64
	binIm    []float64

	fftIn  []complex128
	fftOut []complex128

	// spreading scratch, kept here so channels stay independent
	spreadUp  []float64
	spreadEn  []float64
	spreadAUe []float64
}

// NewFFTModel creates the FFT ear model for the given band count
// (109 for the basic version, 55 for the advanced version) and playback
// level in dB SPL.
func NewFFTModel(bandCount int, playbackLevel float64) (*FFTModel, error) {
	if bandCount != 109 && bandCount != 55 {
		return nil, fmt.Errorf("earmodel: unsupported FFT model band count %d (want 109 or 55)", bandCount)
	}

	plan, err := algofft.NewPlan64(FFTFrameSize)
	if err != nil {
		return nil, fmt.Errorf("earmodel: FFT plan: %w", err)
	}

	m := &FFTModel{
		bandCount: bandCount,
		plan:      plan,
	}

	m.precompute()
	m.SetPlaybackLevel(playbackLevel)

	return m, nil
}

// precompute rebuilds every per-band table. Called once at
// construction; a band-count change requires a new model.
func (m *FFTModel) precompute() {
	n := m.bandCount

	// Hann analysis window, amplitude-corrected by sqrt(8/3) so that
	// the mean squared window equals one.
	m.window = window.Generate(window.TypeHann, FFTFrameSize)
	corr := math.Sqrt(8. / 3.)
	for i := range m.window {
		m.window[i] *= corr
	}

	// Outer/middle ear weighting, evaluated once per bin and applied to
	// power spectra.
	m.weights = make([]float64, FFTBinCount)
	for k := range m.weights {
		f := float64(k) * SampleRate / FFTFrameSize
		if k == 0 {
			f = 1e-3
		}

		m.weights[k] = math.Pow(10., OuterMiddleEarWeight(f)/10.)
	}

	// Critical band partition on z = 7*asinh(f/650) between 80 Hz and
	// 18 kHz; the last band is truncated at the upper limit.
	zL := 7. * math.Asinh(fftLowerFrequencyLimit/650.)
	zU := 7. * math.Asinh(fftUpperFrequencyLimit/650.)
	m.deltaZ = 27. / float64(n-1)

	m.lowerBin = make([]int, n)
	m.upperBin = make([]int, n)
	m.lowerWeight = make([]float64, n)
	m.upperWeight = make([]float64, n)
	m.fc = make([]float64, n)
	m.internalNoise = make([]float64, n)
	m.smearCoeff = make([]float64, n)
	m.aUC = make([]float64, n)
	m.gIL = make([]float64, n)

	df := SampleRate / FFTFrameSize

	for k := range n {
		zl := zL + float64(k)*m.deltaZ
		zu := math.Min(zl+m.deltaZ, zU)
		zc := (zl + zu) / 2.

		fl := 650. * math.Sinh(zl/7.)
		fu := 650. * math.Sinh(zu/7.)
		m.fc[k] = 650. * math.Sinh(zc/7.)

		// Band grouping bin ranges with fractional edge weights. The
		// edge bins are shared between adjacent bands with
		// complementary weights, so the partition covers the spectrum
		// exactly once.
		flBin := fl / df
		fuBin := fu / df

		low := int(flBin + 0.5)
		up := min(int(fuBin+0.5), FFTBinCount-1)

		m.lowerBin[k] = low
		m.upperBin[k] = up

		if low == up {
			m.lowerWeight[k] = fuBin - flBin
			m.upperWeight[k] = 0
		} else {
			m.lowerWeight[k] = float64(low) + 0.5 - flBin
			m.upperWeight[k] = fuBin - (float64(up) - 0.5)
		}

		m.internalNoise[k] = InternalNoisePower(m.fc[k])
		m.smearCoeff[k] = SmearingCoeff(FFTStepSize, m.fc[k], fftTauMin, fftTau100)
	}

	// Frequency-spreading tables. The lower slope is fixed at
	// 27 dB/Bark; the upper slope depends on centre frequency and, at
	// run time, on the band energy.
	aL := math.Pow(10., -2.7*m.deltaZ)
	m.aLe = math.Pow(aL, spreadExp)

	for k := range n {
		m.aUC[k] = math.Pow(10., -(2.4+23./m.fc[k])*m.deltaZ)
		m.gIL[k] = (1. - math.Pow(aL, float64(k+1))) / (1. - aL)
	}

	// Unit-response normalization: the spread of an all-ones pattern,
	// captured once so that Spreading leaves a flat pattern untouched.
	ones := make([]float64, n)
	for k := range ones {
		ones[k] = 1.
	}

	scratch := &FFTState{
		spreadUp:  make([]float64, n),
		spreadEn:  make([]float64, n),
		spreadAUe: make([]float64, n),
	}

	m.spreadNorm = make([]float64, n)
	for k := range m.spreadNorm {
		m.spreadNorm[k] = 1.
	}

	norm := make([]float64, n)
	m.spreadInto(ones, norm, scratch)
	m.spreadNorm = norm
}

// BandCount returns the number of critical bands.
func (m *FFTModel) BandCount() int { return m.bandCount }

// FrameSize returns the model frame length in samples.
func (m *FFTModel) FrameSize() int { return FFTFrameSize }

// StepSize returns the frame advance in samples.
func (m *FFTModel) StepSize() int { return FFTStepSize }

// CenterFrequency returns the centre frequency of a band in Hz.
func (m *FFTModel) CenterFrequency(band int) float64 { return m.fc[band] }

// InternalNoise returns the internal-noise floor of a band.
func (m *FFTModel) InternalNoise(band int) float64 { return m.internalNoise[band] }

// TimeConstant returns the forward-masking filter coefficient of a band.
func (m *FFTModel) TimeConstant(band int) float64 { return m.smearCoeff[band] }

// LoudnessScale returns the loudness scaling of the FFT model.
func (m *FFTModel) LoudnessScale() float64 { return 1.07664 }

// PlaybackLevel returns the configured playback level in dB SPL.
func (m *FFTModel) PlaybackLevel() float64 { return m.level }

// SetPlaybackLevel maps digital full scale to the given listening level
// in dB SPL: the peak bin of a windowed full-scale sine comes out at
// 10^(level/10).
func (m *FFTModel) SetPlaybackLevel(levelDB float64) {
	m.level = levelDB

	// peak bin magnitude of a unit sine under the corrected Hann window
	winGain := math.Sqrt(8./3.) * (FFTFrameSize - 1) / 4.
	m.levelFactor = math.Pow(10., levelDB/10.) / (winGain * winGain)
}

// SpreadingNormalization returns the per-band unit-response spread used
// to normalize the output of the frequency spreading.
func (m *FFTModel) SpreadingNormalization() []float64 { return m.spreadNorm }

// NewState allocates per-channel state.
func (m *FFTModel) NewState() State {
	n := m.bandCount

	st := &FFTState{
		powerSpectrum:         make([]float64, FFTBinCount),
		weightedPowerSpectrum: make([]float64, FFTBinCount),
		banded:                make([]float64, n),
		unsmeared:             make([]float64, n),
		filtered:              make([]float64, n),
		exc:                   make([]float64, n),
		windowed:              make([]float64, FFTFrameSize),
		binRe:                 make([]float64, FFTBinCount),
		binIm:                 make([]float64, FFTBinCount),
		fftIn:                 make([]complex128, FFTFrameSize),
		fftOut:                make([]complex128, FFTFrameSize),
		spreadUp:              make([]float64, n),
		spreadEn:              make([]float64, n),
		spreadAUe:             make([]float64, n),
	}

	for k := range n {
		st.exc[k] = powerFloor
		st.unsmeared[k] = powerFloor
	}

	return st
}

// Excitation returns the time-smeared excitation pattern.
func (s *FFTState) Excitation() []float64 { return s.exc }

// UnsmearedExcitation returns the excitation pattern before forward
// masking.
func (s *FFTState) UnsmearedExcitation() []float64 { return s.unsmeared }

// PowerSpectrum returns the level-scaled power spectrum of the most
// recent frame.
func (s *FFTState) PowerSpectrum() []float64 { return s.powerSpectrum }

// WeightedPowerSpectrum returns the power spectrum after outer/middle
// ear weighting.
func (s *FFTState) WeightedPowerSpectrum() []float64 { return s.weightedPowerSpectrum }

// EnergyThresholdReached reports whether the second half of the most
// recent frame carried enough energy for the error-harmonic-structure
// analysis.
func (s *FFTState) EnergyThresholdReached() bool { return s.energyReached }

// Process consumes one 2048-sample frame and updates the state.
func (m *FFTModel) Process(s State, frame []float64) {
	st, ok := s.(*FFTState)
	if !ok {
		panic("earmodel: state does not belong to the FFT model")
	}

	if len(frame) != FFTFrameSize {
		panic(fmt.Sprintf("earmodel: frame size %d, want %d", len(frame), FFTFrameSize))
	}

	energy := 0.
	for _, x := range frame[FFTFrameSize/2:] {
		energy += x * x
	}

	st.energyReached = energy >= energyThreshold

	vecmath.MulBlock(st.windowed, frame, m.window)
	for i, x := range st.windowed {
		st.fftIn[i] = complex(x, 0)
	}

	if err := m.plan.Forward(st.fftOut, st.fftIn); err != nil {
		panic(fmt.Sprintf("earmodel: forward FFT: %v", err))
	}

	for k := range FFTBinCount {
		st.binRe[k] = real(st.fftOut[k])
		st.binIm[k] = imag(st.fftOut[k])
	}

	vecmath.Power(st.powerSpectrum, st.binRe, st.binIm)

	for k := range st.powerSpectrum {
		st.powerSpectrum[k] *= m.levelFactor
	}

	vecmath.MulBlock(st.weightedPowerSpectrum, st.powerSpectrum, m.weights)

	// Critical band grouping of the weighted spectrum, then the
	// internal-noise floor. The floor keeps every band strictly
	// positive for the logarithms and ratios taken downstream.
	m.GroupIntoBands(st.weightedPowerSpectrum, st.banded)

	for k := range st.banded {
		st.banded[k] += m.internalNoise[k]
	}

	m.spreadInto(st.banded, st.unsmeared, st)

	for k := range st.unsmeared {
		a := m.smearCoeff[k]
		st.filtered[k] = a*st.filtered[k] + (1.-a)*st.unsmeared[k]
		st.exc[k] = math.Max(st.filtered[k], st.unsmeared[k])
	}
}

// GroupIntoBands sums a 1025-bin power spectrum into the model's
// critical bands, applying fractional weights at the shared edge bins.
func (m *FFTModel) GroupIntoBands(spectrum, bands []float64) {
	for k := range m.bandCount {
		low := m.lowerBin[k]
		up := m.upperBin[k]

		if low == up {
			bands[k] = math.Max(m.lowerWeight[k]*spectrum[low], powerFloor)
			continue
		}

		sum := m.lowerWeight[k]*spectrum[low] + m.upperWeight[k]*spectrum[up]
		for j := low + 1; j < up; j++ {
			sum += spectrum[j]
		}

		bands[k] = math.Max(sum, powerFloor)
	}
}

// Spreading applies the nonlinear frequency-domain spreading to a band
// pattern, including the unit-response normalization.
func (m *FFTModel) Spreading(in, out []float64) {
	st, _ := m.NewState().(*FFTState)
	m.spreadInto(in, out, st)
}

// spreadInto runs the two-sided spreading recursion. The lower (towards
// lower bands) slope is fixed; the upper slope steepens with decreasing
// band energy. Both passes run in the 0.4-power domain and are combined
// multiplicatively before the normalization is applied.
func (m *FFTModel) spreadInto(e, out []float64, st *FFTState) {
	n := m.bandCount
	up := st.spreadUp
	en := st.spreadEn
	aUe := st.spreadAUe

	for k := range n {
		// level-dependent upper slope: aU = aUC * E^(0.2*deltaZ)
		aU := m.aUC[k] * math.Pow(math.Max(e[k], powerFloor), 0.2*m.deltaZ)
		aUe[k] = math.Pow(aU, spreadExp)

		// normalize the band energy by its own two-sided unit response
		gIU := (1. - math.Pow(aU, float64(n-k))) / (1. - aU)
		en[k] = math.Pow(math.Max(e[k], powerFloor)/(m.gIL[k]+gIU-1.), spreadExp)
	}

	// rightward pass: upward spreading accumulates with the source
	// band's level-dependent coefficient
	r := 0.
	for k := range n {
		r = r*prevAUe(aUe, k) + en[k]
		up[k] = r
	}

	// leftward pass combined multiplicatively with the rightward pass
	r = 0.
	for k := n - 1; k >= 0; k-- {
		r = r*m.aLe + en[k]

		s := up[k] * r / en[k]
		out[k] = math.Max(math.Pow(s, 1./spreadExp)/m.spreadNorm[k], powerFloor)
	}
}

func prevAUe(aUe []float64, k int) float64 {
	if k == 0 {
		return 0
	}

	return aUe[k-1]
}
