package earmodel

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"
)

const (
	// FilterbankBandCount is the fixed band count of the filterbank model.
	FilterbankBandCount = 40
	// FilterbankStepSize is the frame advance of the filterbank model;
	// frames are non-overlapping.
	FilterbankStepSize = 192

	// Kernel outputs are evaluated every fbSubStep samples; the
	// backward-masking window spans fbSubBlocks such outputs.
	fbSubStep    = 32
	fbSubBlocks  = 12
	fbBufferSize = 1456 // longest kernel

	fbLowerFrequencyLimit = 50.
	fbUpperFrequencyLimit = 18000.

	fbTauMin = 0.004
	fbTau100 = 0.020

	// DC-reject highpass in front of the filterbank.
	fbHighpassFreq  = 20.
	fbHighpassOrder = 4

	// Decay of the per-band level state driving the upper spreading slope.
	fbLevelTau = 0.020
)

// FilterbankModel is the filterbank-based peripheral ear model of the
// advanced version. It maintains 40 complex band filters on the warped
// frequency axis and produces one excitation pattern per 192 samples.
type FilterbankModel struct {
	level       float64
	levelFactor float64 // amplitude scale on the input samples

	fc            [FilterbankBandCount]float64
	kernelRe      [FilterbankBandCount][]float64
	kernelIm      [FilterbankBandCount][]float64
	kernelOffset  [FilterbankBandCount]int
	internalNoise [FilterbankBandCount]float64
	smearCoeff    [FilterbankBandCount]float64

	deltaZ     float64
	aL         float64 // fixed lower spreading slope per band step
	levelDecay float64

	backWeight [fbSubBlocks]float64
	backNorm   float64

	hpCoeffs []biquad.Coefficients
}

// FilterbankState is the per-channel state of the filterbank model.
type FilterbankState struct {
	hp []*biquad.Section

	buf []float64 // DC-rejected input, oldest first

	ring    [fbSubBlocks][FilterbankBandCount]float64
	ringIdx int

	levelState [FilterbankBandCount]float64

	outRe, outIm     [FilterbankBandCount]float64
	upRe, upIm       [FilterbankBandCount]float64
	filtered         [FilterbankBandCount]float64
	unsmearedPattern [FilterbankBandCount]float64
	excPattern       [FilterbankBandCount]float64

	unsmeared []float64
	exc       []float64
}

// NewFilterbankModel creates the filterbank ear model for the given
// playback level in dB SPL.
func NewFilterbankModel(playbackLevel float64) (*FilterbankModel, error) {
	m := &FilterbankModel{}

	zL := 7. * math.Asinh(fbLowerFrequencyLimit/650.)
	zU := 7. * math.Asinh(fbUpperFrequencyLimit/650.)
	m.deltaZ = (zU - zL) / FilterbankBandCount

	m.aL = math.Pow(10., -3.1*m.deltaZ) // 31 dB/Bark lower slope
	m.levelDecay = math.Exp(-float64(fbSubStep) / (SampleRate * fbLevelTau))

	// Band widths shrink on the linear axis towards low frequencies, so
	// kernel lengths grow; the lowest band uses the full 1456 taps.
	widths := [FilterbankBandCount]float64{}

	for k := range FilterbankBandCount {
		zl := zL + float64(k)*m.deltaZ
		zu := zl + m.deltaZ
		zc := zl + m.deltaZ/2.

		fl := 650. * math.Sinh(zl/7.)
		fu := 650. * math.Sinh(zu/7.)
		m.fc[k] = 650. * math.Sinh(zc/7.)
		widths[k] = fu - fl

		m.internalNoise[k] = InternalNoisePower(m.fc[k])
		m.smearCoeff[k] = SmearingCoeff(FilterbankStepSize, m.fc[k], fbTauMin, fbTau100)
	}

	for k := range FilterbankBandCount {
		length := 2 * int(float64(fbBufferSize)/2.*widths[0]/widths[k])
		length = min(length, fbBufferSize)

		m.kernelOffset[k] = (fbBufferSize - length) / 2
		m.kernelRe[k] = make([]float64, length)
		m.kernelIm[k] = make([]float64, length)

		// Hann-shaped complex sine kernel, scaled so a unit sine at the
		// centre frequency comes out with unit magnitude, with the
		// outer/middle ear response folded in as amplitude gain.
		gain := math.Pow(10., OuterMiddleEarWeight(m.fc[k])/20.)
		nf := float64(length)

		for i := range length {
			w := 4. / nf * math.Sin(math.Pi*float64(i)/nf) * math.Sin(math.Pi*float64(i)/nf) * gain
			phase := 2. * math.Pi * m.fc[k] * (float64(i) - nf/2.) / SampleRate
			m.kernelRe[k][i] = w * math.Cos(phase)
			m.kernelIm[k][i] = w * math.Sin(phase)
		}
	}

	// Backward masking: cosine-squared weighting across the sub-block
	// ring, normalized to unit gain for a stationary input.
	m.backNorm = 0.
	for i := range fbSubBlocks {
		c := math.Cos(math.Pi * (float64(i) - float64(fbSubBlocks-1)/2.) / fbSubBlocks)
		m.backWeight[i] = c * c
		m.backNorm += c * c
	}

	m.hpCoeffs = design.ButterworthHP(fbHighpassFreq, fbHighpassOrder, SampleRate)
	if len(m.hpCoeffs) == 0 {
		return nil, fmt.Errorf("earmodel: DC-reject highpass design failed")
	}

	m.SetPlaybackLevel(playbackLevel)

	return m, nil
}

// BandCount returns the number of critical bands.
func (m *FilterbankModel) BandCount() int { return FilterbankBandCount }

// FrameSize returns the model frame length in samples.
func (m *FilterbankModel) FrameSize() int { return FilterbankStepSize }

// StepSize returns the frame advance in samples.
func (m *FilterbankModel) StepSize() int { return FilterbankStepSize }

// CenterFrequency returns the centre frequency of a band in Hz.
func (m *FilterbankModel) CenterFrequency(band int) float64 { return m.fc[band] }

// InternalNoise returns the internal-noise floor of a band.
func (m *FilterbankModel) InternalNoise(band int) float64 { return m.internalNoise[band] }

// TimeConstant returns the forward-masking filter coefficient of a band.
func (m *FilterbankModel) TimeConstant(band int) float64 { return m.smearCoeff[band] }

// LoudnessScale returns the loudness scaling of the filterbank model.
func (m *FilterbankModel) LoudnessScale() float64 { return 1.26539 }

// PlaybackLevel returns the configured playback level in dB SPL.
func (m *FilterbankModel) PlaybackLevel() float64 { return m.level }

// SetPlaybackLevel maps digital full scale to the given listening level
// in dB SPL.
func (m *FilterbankModel) SetPlaybackLevel(levelDB float64) {
	m.level = levelDB
	m.levelFactor = math.Pow(10., levelDB/20.)
}

// NewState allocates per-channel state.
func (m *FilterbankModel) NewState() State {
	st := &FilterbankState{
		hp:  make([]*biquad.Section, len(m.hpCoeffs)),
		buf: make([]float64, fbBufferSize),
	}

	for i, c := range m.hpCoeffs {
		st.hp[i] = biquad.NewSection(c)
	}

	for k := range FilterbankBandCount {
		st.filtered[k] = powerFloor
		st.unsmearedPattern[k] = powerFloor
		st.excPattern[k] = powerFloor
	}

	st.unsmeared = st.unsmearedPattern[:]
	st.exc = st.excPattern[:]

	return st
}

// Excitation returns the time-smeared excitation pattern.
func (s *FilterbankState) Excitation() []float64 { return s.exc }

// UnsmearedExcitation returns the excitation pattern before forward
// masking.
func (s *FilterbankState) UnsmearedExcitation() []float64 { return s.unsmeared }

// Process consumes one 192-sample frame and updates the state.
func (m *FilterbankModel) Process(s State, frame []float64) {
	st, ok := s.(*FilterbankState)
	if !ok {
		panic("earmodel: state does not belong to the filterbank model")
	}

	if len(frame) != FilterbankStepSize {
		panic(fmt.Sprintf("earmodel: frame size %d, want %d", len(frame), FilterbankStepSize))
	}

	for sub := 0; sub < FilterbankStepSize/fbSubStep; sub++ {
		m.processSubBlock(st, frame[sub*fbSubStep:(sub+1)*fbSubStep])
	}

	// One frame's worth of sub-blocks is in the ring: fold them into an
	// excitation pattern with the backward-masking window, add the
	// internal noise and run the forward-masking smearing.
	for k := range FilterbankBandCount {
		eb := 0.
		for i := range fbSubBlocks {
			eb += m.backWeight[i] * st.ring[(st.ringIdx+i)%fbSubBlocks][k]
		}

		eb = eb/m.backNorm + m.internalNoise[k]

		a := m.smearCoeff[k]
		st.filtered[k] = a*st.filtered[k] + (1.-a)*eb
		st.unsmearedPattern[k] = eb
		st.excPattern[k] = math.Max(st.filtered[k], eb)
	}
}

// processSubBlock shifts 32 DC-rejected samples into the delay line,
// evaluates all band kernels and spreads the complex outputs across
// bands before rectifying into the sub-block ring.
func (m *FilterbankModel) processSubBlock(st *FilterbankState, in []float64) {
	copy(st.buf, st.buf[fbSubStep:])

	tail := st.buf[fbBufferSize-fbSubStep:]
	for i, x := range in {
		y := x * m.levelFactor
		for _, sec := range st.hp {
			y = sec.ProcessSample(y)
		}

		tail[i] = y
	}

	for k := range FilterbankBandCount {
		re, im := 0., 0.
		seg := st.buf[m.kernelOffset[k]:]
		kr := m.kernelRe[k]
		ki := m.kernelIm[k]

		for i := range kr {
			re += kr[i] * seg[i]
			im += ki[i] * seg[i]
		}

		st.outRe[k] = re
		st.outIm[k] = im
	}

	m.spreadComplex(st)

	for k := range FilterbankBandCount {
		p := st.outRe[k]*st.outRe[k] + st.outIm[k]*st.outIm[k]

		st.ring[st.ringIdx][k] = p

		// level state feeding the upper spreading slope of the next
		// sub-block
		st.levelState[k] = m.levelDecay*st.levelState[k] + (1.-m.levelDecay)*p
	}

	st.ringIdx = (st.ringIdx + 1) % fbSubBlocks
}

// spreadComplex leaks each band's complex filter output into its
// neighbours. The lower slope is fixed; the upper slope follows the
// recursively tracked band level.
func (m *FilterbankModel) spreadComplex(st *FilterbankState) {
	n := FilterbankBandCount

	// upward pass with level-dependent coefficients
	var prevCU float64

	normUp := [FilterbankBandCount]float64{}
	accRe, accIm, accNorm := 0., 0., 0.

	for k := range n {
		levelDB := 10. * math.Log10(math.Max(st.levelState[k], powerFloor))
		cU := math.Pow(10., (-24.-230./m.fc[k]+0.2*levelDB)*m.deltaZ/10.)
		cU = math.Min(cU, 1.)

		accRe = accRe*prevCU + st.outRe[k]
		accIm = accIm*prevCU + st.outIm[k]
		accNorm = accNorm*prevCU + 1.

		st.upRe[k] = accRe
		st.upIm[k] = accIm
		normUp[k] = accNorm
		prevCU = cU
	}

	// downward pass, then combine with the band's own output counted once
	accRe, accIm, accNorm = 0., 0., 0.

	for k := n - 1; k >= 0; k-- {
		accRe = accRe*m.aL + st.outRe[k]
		accIm = accIm*m.aL + st.outIm[k]
		accNorm = accNorm*m.aL + 1.

		norm := normUp[k] + accNorm - 1.
		st.outRe[k] = (st.upRe[k] + accRe - st.outRe[k]) / norm
		st.outIm[k] = (st.upIm[k] + accIm - st.outIm[k]) / norm
	}
}
