// Package earmodel implements the peripheral ear models of the PEAQ
// perceptual measurement scheme (ITU-R BS.1387): an FFT-based model
// operating on 2048-sample frames and a filterbank-based model used by
// the advanced version.
//
// Both models turn one channel's time-domain samples into an excitation
// pattern on a warped (Bark-like) frequency axis. They share the outer
// and middle ear weighting, the internal-noise floor and the forward
// masking (time smearing) stage, but differ entirely in how the signal
// reaches the critical bands. Per-channel evolving state is kept in a
// State value owned by the caller; the model itself is read-only during
// processing, so channels may be processed concurrently.
package earmodel

import "math"

// SampleRate is the only sampling rate supported by the models.
const SampleRate = 48000.0

// Model is the capability contract shared by both peripheral ear models.
type Model interface {
	// BandCount returns the number of critical bands (109 or 55 for the
	// FFT model, 40 for the filterbank model).
	BandCount() int

	// FrameSize returns the number of samples consumed per Process call.
	FrameSize() int

	// StepSize returns the number of samples the model advances per
	// Process call. The FFT model overlaps frames by 50%, so its step is
	// half the frame size; the filterbank model is non-overlapping.
	StepSize() int

	// CenterFrequency returns the centre frequency of a band in Hz.
	CenterFrequency(band int) float64

	// InternalNoise returns the internal-noise excitation floor of a band.
	InternalNoise(band int) float64

	// TimeConstant returns the one-pole smoothing coefficient used for
	// the excitation time smearing of a band. The same coefficients
	// drive the level adapter and modulation processor recursions.
	TimeConstant(band int) float64

	// LoudnessScale returns the model-specific scaling of the total
	// loudness computed by Loudness.
	LoudnessScale() float64

	PlaybackLevel() float64
	SetPlaybackLevel(levelDB float64)

	// NewState allocates the per-channel state for this model.
	NewState() State

	// Process consumes one frame of FrameSize() samples (full scale ±1)
	// and advances the state by StepSize() samples.
	Process(s State, frame []float64)
}

// State carries the evolving per-channel state of one ear model
// instance. A State must never be shared between channels or models.
type State interface {
	// Excitation returns the time-smeared excitation pattern of the most
	// recent frame, one strictly positive value per band.
	Excitation() []float64

	// UnsmearedExcitation returns the excitation pattern before forward
	// masking, used by the modulation processor.
	UnsmearedExcitation() []float64
}

// OuterMiddleEarWeight returns the combined outer and middle ear
// frequency response in dB at frequency f.
func OuterMiddleEarWeight(f float64) float64 {
	fk := f / 1000.

	return -0.6*3.64*math.Pow(fk, -0.8) +
		6.5*math.Exp(-0.6*(fk-3.3)*(fk-3.3)) -
		1e-3*math.Pow(fk, 3.6)
}

// InternalNoisePower returns the internal-noise excitation floor at
// centre frequency fc.
func InternalNoisePower(fc float64) float64 {
	return math.Pow(10., 0.4*0.364*math.Pow(fc/1000., -0.8))
}

// SmearingCoeff returns the one-pole filter coefficient for a band with
// centre frequency fc, given the model's step size and the time-constant
// bounds tauMin (high frequencies) and tau100 (at 100 Hz).
func SmearingCoeff(stepSize int, fc, tauMin, tau100 float64) float64 {
	tau := tauMin + 100./fc*(tau100-tauMin)

	return math.Exp(-float64(stepSize) / (SampleRate * tau))
}

// Loudness returns the total (Zwicker) loudness of the current
// excitation pattern in sone. It drives the data-boundary handling of
// the noise-loudness output variables.
func Loudness(m Model, s State) float64 {
	const e0 = 1e4

	exc := s.Excitation()
	total := 0.

	for k, ek := range exc {
		fc := m.CenterFrequency(k)
		eThres := m.InternalNoise(k)
		sThres := math.Pow(10., 0.1*(-2.-2.05*math.Atan(fc/4000.)-0.75*math.Atan(fc/1600.*(fc/1600.))))

		n := math.Pow(eThres/(sThres*e0), 0.23) *
			(math.Pow(1.-sThres+sThres*ek/eThres, 0.23) - 1.)
		if n > 0 {
			total += n
		}
	}

	return m.LoudnessScale() * 24. / float64(m.BandCount()) * total
}
