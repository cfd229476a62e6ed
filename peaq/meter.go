// Package peaq implements objective perceptual audio quality
// measurement after ITU-R BS.1387-1 (PEAQ). A Meter consumes a
// reference signal and a degraded test signal in parallel, runs both
// through a peripheral ear model, condenses the differences into model
// output variables and maps those through a fixed neural network to the
// objective difference grade.
package peaq

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-peaq/earmodel"
	"github.com/cwbudde/algo-peaq/level"
	"github.com/cwbudde/algo-peaq/modulation"
	"github.com/cwbudde/algo-peaq/mov"
	"github.com/cwbudde/algo-peaq/nn"
)

const (
	// Data-boundary detection: any five successive samples whose
	// absolute sum exceeds 200 (16-bit full-scale units) count as
	// signal.
	activityWindow    = 5
	activityThreshold = 200. / 32768.

	// Modulation-difference variables ignore the first half second.
	modDiffDelayFFT = 24
	modDiffDelayFB  = 125

	// Noise-loudness variables wait for the signal to become audible
	// (total loudness above this in every channel of both signals),
	// then a few more frames for the adaptation to settle.
	loudnessThreshold = 0.1
	loudnessDelayFFT  = 3
	loudnessDelayFB   = 13
)

// Model output variable names of the basic version, in the order
// returned by MOVs.
var BasicMOVNames = []string{
	"BandwidthRefB", "BandwidthTestB", "TotalNMRB", "WinModDiff1B",
	"ADBB", "EHSB", "AvgModDiff1B", "AvgModDiff2B", "RmsNoiseLoudB",
	"MFPDB", "RelDistFramesB",
}

// Model output variable names of the advanced version, in the order
// returned by MOVs.
var AdvancedMOVNames = []string{
	"RmsModDiffA", "RmsNoiseLoudAsymA", "SegmentalNMRB", "EHSB",
	"AvgLinDistA",
}

// stage bundles one ear model with its per-channel processing chain and
// input buffering.
type stage struct {
	model earmodel.Model

	refBuf  [][]float64
	testBuf [][]float64

	refStates  []earmodel.State
	testStates []earmodel.State
	refMods    []*modulation.Processor
	testMods   []*modulation.Processor
	adapters   []*level.Adapter

	frameCount int64
	consumed   int64 // samples consumed from the start of the signal

	// -1 until the loudness threshold has been reached, then counts
	// frames since.
	loudCount int64

	frame []float64
}

func newStage(model earmodel.Model, channels int) *stage {
	s := &stage{
		model:      model,
		refBuf:     make([][]float64, channels),
		testBuf:    make([][]float64, channels),
		refStates:  make([]earmodel.State, channels),
		testStates: make([]earmodel.State, channels),
		refMods:    make([]*modulation.Processor, channels),
		testMods:   make([]*modulation.Processor, channels),
		adapters:   make([]*level.Adapter, channels),
		loudCount:  -1,
		frame:      make([]float64, model.FrameSize()),
	}

	for ch := range channels {
		s.refStates[ch] = model.NewState()
		s.testStates[ch] = model.NewState()
		s.refMods[ch] = modulation.NewProcessor(model)
		s.testMods[ch] = modulation.NewProcessor(model)
		s.adapters[ch] = level.NewAdapter(model)
	}

	return s
}

// processFrame runs the ear model, modulation analysis and pattern
// adaptation for every channel on the next pending frame.
func (s *stage) processFrame() {
	for ch := range s.refStates {
		copy(s.frame, s.refBuf[ch])
		s.model.Process(s.refStates[ch], s.frame)
		s.refMods[ch].Process(s.refStates[ch].UnsmearedExcitation())

		copy(s.frame, s.testBuf[ch])
		s.model.Process(s.testStates[ch], s.frame)
		s.testMods[ch].Process(s.testStates[ch].UnsmearedExcitation())

		s.adapters[ch].Process(s.refStates[ch].Excitation(), s.testStates[ch].Excitation())
	}

	s.frameCount++
}

// advanceLoudness updates the audibility gate after a frame has been
// processed.
func (s *stage) advanceLoudness() {
	if s.loudCount >= 0 {
		s.loudCount++
		return
	}

	for ch := range s.refStates {
		if earmodel.Loudness(s.model, s.refStates[ch]) <= loudnessThreshold ||
			earmodel.Loudness(s.model, s.testStates[ch]) <= loudnessThreshold {
			return
		}
	}

	s.loudCount = 0
}

func (s *stage) reset() {
	for ch := range s.refStates {
		s.refStates[ch] = s.model.NewState()
		s.testStates[ch] = s.model.NewState()
		s.refMods[ch] = modulation.NewProcessor(s.model)
		s.testMods[ch] = modulation.NewProcessor(s.model)
		s.adapters[ch] = level.NewAdapter(s.model)

		s.refBuf[ch] = s.refBuf[ch][:0]
		s.testBuf[ch] = s.testBuf[ch][:0]
	}

	s.frameCount = 0
	s.consumed = 0
	s.loudCount = -1
}

func (s *stage) consume(step int) {
	for ch := range s.refBuf {
		s.refBuf[ch] = s.refBuf[ch][:copy(s.refBuf[ch], s.refBuf[ch][step:])]
		s.testBuf[ch] = s.testBuf[ch][:copy(s.testBuf[ch], s.testBuf[ch][step:])]
	}

	s.consumed += int64(step)
}

func (s *stage) pending() int { return len(s.refBuf[0]) }

// activityDetector tracks the sliding five-sample absolute sum of one
// signal channel.
type activityDetector struct {
	window [activityWindow]float64
	idx    int
	sum    float64
}

func (d *activityDetector) feed(x float64) bool {
	x = math.Abs(x)
	d.sum += x - d.window[d.idx]
	d.window[d.idx] = x
	d.idx = (d.idx + 1) % activityWindow

	return d.sum > activityThreshold
}

// Meter measures the perceptual quality of a test signal against a
// reference. Both signals must be time aligned, level aligned and
// sampled at 48 kHz.
type Meter struct {
	channels int
	advanced bool

	fft *stage
	fb  *stage

	nmr *mov.NMR
	ehs *mov.EHS

	network *nn.Network

	// basic version accumulators
	bandwidthRef  *mov.Accumulator
	bandwidthTest *mov.Accumulator
	totalNMR      *mov.Accumulator
	winModDiff1   *mov.Accumulator
	adb           *mov.Accumulator
	ehsAcc        *mov.Accumulator
	avgModDiff1   *mov.Accumulator
	avgModDiff2   *mov.Accumulator
	rmsNoiseLoud  *mov.Accumulator
	mfpd          *mov.Accumulator
	relDistFrames *mov.Accumulator

	// advanced version accumulators
	rmsModDiff       *mov.Accumulator
	rmsNoiseLoudAsym *mov.Accumulator
	segmentalNMR     *mov.Accumulator
	avgLinDist       *mov.Accumulator

	fftAccs []*mov.Accumulator
	fbAccs  []*mov.Accumulator

	samplesSeen int64
	lastActive  int64

	refAct  []activityDetector
	testAct []activityDetector

	refExcs  [][]float64
	testExcs [][]float64

	flushed bool
}

// NewMeter creates a quality meter with the given options.
func NewMeter(opts ...MeterOption) (*Meter, error) {
	cfg := ApplyMeterOptions(opts...)

	if cfg.SampleRate != earmodel.SampleRate {
		return nil, fmt.Errorf("peaq: sample rate %g not supported (want %g)", cfg.SampleRate, earmodel.SampleRate)
	}

	if cfg.Channels != 1 && cfg.Channels != 2 {
		return nil, fmt.Errorf("peaq: %d channels not supported (want 1 or 2)", cfg.Channels)
	}

	m := &Meter{
		channels: cfg.Channels,
		advanced: cfg.Advanced,
	}

	fftBands := 109
	if cfg.Advanced {
		fftBands = 55
	}

	fftModel, err := earmodel.NewFFTModel(fftBands, cfg.PlaybackLevel)
	if err != nil {
		return nil, err
	}

	m.fft = newStage(fftModel, cfg.Channels)
	m.nmr = mov.NewNMR(fftModel)

	m.ehs, err = mov.NewEHS(cfg.EHSCorrelation)
	if err != nil {
		return nil, err
	}

	if cfg.Advanced {
		fbModel, err := earmodel.NewFilterbankModel(cfg.PlaybackLevel)
		if err != nil {
			return nil, err
		}

		m.fb = newStage(fbModel, cfg.Channels)
	}

	m.buildAccumulators()

	m.refAct = make([]activityDetector, cfg.Channels)
	m.testAct = make([]activityDetector, cfg.Channels)
	m.lastActive = -1

	m.refExcs = make([][]float64, cfg.Channels)
	m.testExcs = make([][]float64, cfg.Channels)

	return m, nil
}

func (m *Meter) buildAccumulators() {
	n := m.channels

	if m.advanced {
		m.rmsModDiff = mov.NewAccumulator(mov.ModeRMS, n)
		m.rmsNoiseLoudAsym = mov.NewAccumulator(mov.ModeRMSAsym, n)
		m.segmentalNMR = mov.NewAccumulator(mov.ModeAvg, n)
		m.ehsAcc = mov.NewAccumulator(mov.ModeAvg, n)
		m.avgLinDist = mov.NewAccumulator(mov.ModeAvg, n)

		m.fftAccs = []*mov.Accumulator{m.segmentalNMR, m.ehsAcc}
		m.fbAccs = []*mov.Accumulator{m.rmsModDiff, m.rmsNoiseLoudAsym, m.avgLinDist}
		m.network = nn.AdvancedNetwork()

		return
	}

	m.bandwidthRef = mov.NewAccumulator(mov.ModeAvg, n)
	m.bandwidthTest = mov.NewAccumulator(mov.ModeAvg, n)
	m.totalNMR = mov.NewAccumulator(mov.ModeAvgLog, n)
	m.winModDiff1 = mov.NewAccumulator(mov.ModeAvgWindow, n)
	m.adb = mov.NewAccumulator(mov.ModeADB, 1)
	m.ehsAcc = mov.NewAccumulator(mov.ModeAvg, n)
	m.avgModDiff1 = mov.NewAccumulator(mov.ModeAvg, n)
	m.avgModDiff2 = mov.NewAccumulator(mov.ModeAvg, n)
	m.rmsNoiseLoud = mov.NewAccumulator(mov.ModeRMS, n)
	m.mfpd = mov.NewAccumulator(mov.ModeFilteredMax, 1)
	m.relDistFrames = mov.NewAccumulator(mov.ModeAvg, n)

	m.fftAccs = []*mov.Accumulator{
		m.bandwidthRef, m.bandwidthTest, m.totalNMR, m.winModDiff1,
		m.adb, m.ehsAcc, m.avgModDiff1, m.avgModDiff2, m.rmsNoiseLoud,
		m.mfpd, m.relDistFrames,
	}
	m.network = nn.BasicNetwork()
}

// Reset clears all processing state so the meter can measure another
// signal pair with the same configuration.
func (m *Meter) Reset() {
	m.fft.reset()
	if m.fb != nil {
		m.fb.reset()
	}

	m.buildAccumulators()

	for ch := range m.channels {
		m.refAct[ch] = activityDetector{}
		m.testAct[ch] = activityDetector{}
	}

	m.samplesSeen = 0
	m.lastActive = -1
	m.flushed = false
}

// Channels returns the configured channel count.
func (m *Meter) Channels() int { return m.channels }

// Advanced reports whether the meter runs the advanced version.
func (m *Meter) Advanced() bool { return m.advanced }

// ProcessBlock consumes one block of reference and test samples. Both
// arguments hold one slice per channel; all channels of both signals
// must carry the same number of samples, full scale being ±1. Blocks of
// any length may be fed; frames are cut internally.
func (m *Meter) ProcessBlock(ref, test [][]float64) error {
	if len(ref) != m.channels || len(test) != m.channels {
		return fmt.Errorf("peaq: got %d/%d channel slices, want %d", len(ref), len(test), m.channels)
	}

	blockLen := len(ref[0])
	for ch := range m.channels {
		if len(ref[ch]) != blockLen || len(test[ch]) != blockLen {
			return fmt.Errorf("peaq: channel block lengths differ")
		}
	}

	for i := range blockLen {
		for ch := range m.channels {
			if m.refAct[ch].feed(ref[ch][i]) || m.testAct[ch].feed(test[ch][i]) {
				m.lastActive = m.samplesSeen + int64(i)
			}
		}
	}

	m.samplesSeen += int64(blockLen)

	for ch := range m.channels {
		m.fft.refBuf[ch] = append(m.fft.refBuf[ch], ref[ch]...)
		m.fft.testBuf[ch] = append(m.fft.testBuf[ch], test[ch]...)

		if m.fb != nil {
			m.fb.refBuf[ch] = append(m.fb.refBuf[ch], ref[ch]...)
			m.fb.testBuf[ch] = append(m.fb.testBuf[ch], test[ch]...)
		}
	}

	m.drain()

	return nil
}

// ProcessInterleaved consumes one block of channel-interleaved
// reference and test samples. Both slices must hold the same number of
// whole sample frames.
func (m *Meter) ProcessInterleaved(ref, test []float64) error {
	if len(ref)%m.channels != 0 || len(test) != len(ref) {
		return fmt.Errorf("peaq: interleaved block length %d/%d not a multiple of %d channels", len(ref), len(test), m.channels)
	}

	n := len(ref) / m.channels
	refCh := make([][]float64, m.channels)
	testCh := make([][]float64, m.channels)

	for ch := range m.channels {
		refCh[ch] = make([]float64, n)
		testCh[ch] = make([]float64, n)

		for i := range n {
			refCh[ch][i] = ref[i*m.channels+ch]
			testCh[ch][i] = test[i*m.channels+ch]
		}
	}

	return m.ProcessBlock(refCh, testCh)
}

func (m *Meter) drain() {
	for m.fft.pending() >= earmodel.FFTFrameSize {
		m.stepAccumulators(m.fftAccs, m.fft)
		m.fft.processFrame()
		m.fft.advanceLoudness()
		m.processFFTFrame()
		m.fft.consume(earmodel.FFTStepSize)
	}

	if m.fb == nil {
		return
	}

	for m.fb.pending() >= earmodel.FilterbankStepSize {
		m.stepAccumulators(m.fbAccs, m.fb)
		m.fb.processFrame()
		m.fb.advanceLoudness()
		m.processFBFrame()
		m.fb.consume(earmodel.FilterbankStepSize)
	}
}

// stepAccumulators advances the accumulator lifecycle for the frame the
// stage is about to process. Frames before the first signal activity
// are ignored entirely; frames after the last seen activity are held
// tentative until either more signal arrives or the stream ends.
func (m *Meter) stepAccumulators(accs []*mov.Accumulator, s *stage) {
	active := m.lastActive >= s.consumed

	for _, a := range accs {
		if active {
			a.Enable()
			a.SetTentative(false)
		} else {
			a.SetTentative(true)
		}
	}
}

// processFFTFrame feeds the output variables driven by the FFT ear
// model with the frame the stage just processed.
func (m *Meter) processFFTFrame() {
	s := m.fft
	frameIdx := s.frameCount - 1

	for ch := range m.channels {
		ref := s.refStates[ch].(*earmodel.FFTState)
		test := s.testStates[ch].(*earmodel.FFTState)

		m.refExcs[ch] = ref.Excitation()
		m.testExcs[ch] = test.Excitation()

		nmrValue, disturbed := m.nmr.Frame(ref, test)

		if m.advanced {
			m.segmentalNMR.Accumulate(ch, 10.*math.Log10(nmrValue), 1)
		} else {
			m.totalNMR.Accumulate(ch, nmrValue, 1)

			d := 0.
			if disturbed {
				d = 1.
			}

			m.relDistFrames.Accumulate(ch, d, 1)

			mov.Bandwidth(ref, test, m.bandwidthRef, m.bandwidthTest, ch)
		}

		if ehsValue, ok := m.ehs.Frame(ref, test); ok {
			m.ehsAcc.Accumulate(ch, ehsValue, 1)
		}
	}

	if m.advanced {
		return
	}

	det := mov.DetectionProbability(m.refExcs, m.testExcs)
	m.mfpd.Accumulate(0, det.MaxProb, 1)

	if det.MaxProb > mov.DetectionThreshold {
		m.adb.Accumulate(0, det.StepsAboveThreshold, 1)
	}

	for ch := range m.channels {
		refMod := s.refMods[ch].Modulation()
		testMod := s.testMods[ch].Modulation()
		avgLoud := s.refMods[ch].AverageLoudness()

		if frameIdx >= modDiffDelayFFT {
			md1 := mov.ModulationDifference(refMod, testMod, mov.ModDiff1Params)
			md2 := mov.ModulationDifference(refMod, testMod, mov.ModDiff2Params)
			w1 := mov.ModulationDifferenceWeight(s.model, avgLoud, mov.ModDiff1Params)
			w2 := mov.ModulationDifferenceWeight(s.model, avgLoud, mov.ModDiff2Params)

			m.winModDiff1.Accumulate(ch, md1, 1)
			m.avgModDiff1.Accumulate(ch, md1, w1)
			m.avgModDiff2.Accumulate(ch, md2, w2)
		}

		if s.loudCount >= loudnessDelayFFT {
			nl := mov.NoiseLoudness(s.model, mov.RMSNoiseLoudnessParams,
				s.adapters[ch].RefPattern(), s.adapters[ch].TestPattern(), refMod, testMod)
			m.rmsNoiseLoud.Accumulate(ch, nl, 1)
		}
	}
}

// processFBFrame feeds the output variables driven by the filterbank
// ear model with the frame the stage just processed.
func (m *Meter) processFBFrame() {
	s := m.fb
	frameIdx := s.frameCount - 1

	for ch := range m.channels {
		refMod := s.refMods[ch].Modulation()
		testMod := s.testMods[ch].Modulation()
		avgLoud := s.refMods[ch].AverageLoudness()

		if frameIdx >= modDiffDelayFB {
			md := mov.ModulationDifference(refMod, testMod, mov.ModDiff2Params)
			w := mov.ModulationDifferenceWeight(s.model, avgLoud, mov.ModDiff2Params)
			m.rmsModDiff.Accumulate(ch, md, w)
		}

		if s.loudCount >= loudnessDelayFB {
			nl := mov.NoiseLoudness(s.model, mov.AsymNoiseLoudnessParams,
				s.adapters[ch].RefPattern(), s.adapters[ch].TestPattern(), refMod, testMod)
			missing := mov.NoiseLoudness(s.model, mov.AsymNoiseLoudnessParams,
				s.adapters[ch].TestPattern(), s.adapters[ch].RefPattern(), testMod, refMod)
			m.rmsNoiseLoudAsym.AccumulatePair(ch, nl, missing, 1)

			lin := mov.NoiseLoudness(s.model, mov.LinDistParams,
				s.refStates[ch].Excitation(), s.adapters[ch].RefPattern(), refMod, refMod)
			m.avgLinDist.Accumulate(ch, lin, 1)
		}
	}
}

// Flush processes whatever buffered input remains, padding the final
// frame with silence. Call it once after the last ProcessBlock; results
// read before Flush ignore the unprocessed tail.
func (m *Meter) Flush() {
	if m.flushed {
		return
	}

	m.flushed = true

	if m.fft.pending() > earmodel.FFTStepSize || m.fft.frameCount == 0 {
		m.pad(m.fft, earmodel.FFTFrameSize)
	}

	if m.fb != nil && m.fb.pending() > 0 {
		m.pad(m.fb, earmodel.FilterbankStepSize)
	}

	m.drain()
}

func (m *Meter) pad(s *stage, frameSize int) {
	missing := frameSize - s.pending()
	if missing <= 0 {
		return
	}

	zeros := make([]float64, missing)
	for ch := range m.channels {
		s.refBuf[ch] = append(s.refBuf[ch], zeros...)
		s.testBuf[ch] = append(s.testBuf[ch], zeros...)
	}
}

// MOVs returns the accumulated model output variables, ordered as in
// BasicMOVNames or AdvancedMOVNames.
func (m *Meter) MOVs() []float64 {
	if m.advanced {
		return []float64{
			math.Sqrt(earmodel.FilterbankBandCount) * m.rmsModDiff.Value(),
			m.rmsNoiseLoudAsym.Value(),
			m.segmentalNMR.Value(),
			m.ehsAcc.Value(),
			m.avgLinDist.Value(),
		}
	}

	return []float64{
		m.bandwidthRef.Value(),
		m.bandwidthTest.Value(),
		m.totalNMR.Value(),
		m.winModDiff1.Value(),
		m.adb.Value(),
		m.ehsAcc.Value(),
		m.avgModDiff1.Value(),
		m.avgModDiff2.Value(),
		m.rmsNoiseLoud.Value(),
		m.mfpd.Value(),
		m.relDistFrames.Value(),
	}
}

// MOVNames returns the variable names matching MOVs.
func (m *Meter) MOVNames() []string {
	if m.advanced {
		return AdvancedMOVNames
	}

	return BasicMOVNames
}

// DistortionIndex returns the neural-network combination of the model
// output variables accumulated so far.
func (m *Meter) DistortionIndex() float64 {
	return m.network.DistortionIndex(m.MOVs())
}

// ODG returns the objective difference grade, from 0 (imperceptible
// degradation) down to -4 (very annoying).
func (m *Meter) ODG() float64 {
	return nn.ODG(m.DistortionIndex())
}
