package mov

import (
	"math"
	"math/rand"
	"testing"

	"github.com/cwbudde/algo-peaq/earmodel"
)

// sineFrame renders one FFT-model frame of a bin-exact sine with a
// deterministic noise floor, so bandwidth searches see a defined floor
// instead of numerical leakage.
func sineFrame(bin int, amp, noiseAmp float64, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	frame := make([]float64, earmodel.FFTFrameSize)

	for i := range frame {
		frame[i] = amp*math.Sin(2.*math.Pi*float64(bin)*float64(i)/earmodel.FFTFrameSize) +
			noiseAmp*(2.*rng.Float64()-1.)
	}

	return frame
}

func newFFTPair(t *testing.T, refFrame, testFrame []float64) (*earmodel.FFTModel, *earmodel.FFTState, *earmodel.FFTState) {
	t.Helper()

	model, err := earmodel.NewFFTModel(109, 92)
	if err != nil {
		t.Fatalf("model creation failed: %v", err)
	}

	ref := model.NewState().(*earmodel.FFTState)
	test := model.NewState().(*earmodel.FFTState)
	model.Process(ref, refFrame)
	model.Process(test, testFrame)

	return model, ref, test
}

func TestBandwidthIdenticalSignals(t *testing.T) {
	frame := sineFrame(680, 0.5, 1e-4, 1)
	_, ref, test := newFFTPair(t, frame, frame)

	accRef := NewAccumulator(ModeAvg, 1)
	accTest := NewAccumulator(ModeAvg, 1)
	accRef.Enable()
	accTest.Enable()

	Bandwidth(ref, test, accRef, accTest, 0)

	if got, want := accRef.Value(), accTest.Value(); got != want {
		t.Fatalf("bandwidth mismatch for identical signals: ref %v test %v", got, want)
	}

	if got := accRef.Value(); got < 680 || got > 690 {
		t.Fatalf("reference bandwidth out of range: got %v want near 682", got)
	}
}

func TestNMRIdenticalSignals(t *testing.T) {
	frame := sineFrame(128, 0.5, 0, 1)
	model, ref, test := newFFTPair(t, frame, frame)

	nmr := NewNMR(model)

	value, disturbed := nmr.Frame(ref, test)
	if value > 1e-6 {
		t.Fatalf("NMR for identical signals too high: got %v", value)
	}

	if disturbed {
		t.Fatalf("identical signals flagged as disturbed")
	}
}

func TestNMRAttenuatedTest(t *testing.T) {
	refFrame := sineFrame(128, 0.5, 0, 1)
	testFrame := sineFrame(128, 0.25, 0, 1)
	model, ref, test := newFFTPair(t, refFrame, testFrame)

	nmr := NewNMR(model)

	value, _ := nmr.Frame(ref, test)
	if value <= 0 {
		t.Fatalf("NMR for attenuated test not positive: got %v", value)
	}
}

func TestNoiseLoudnessIdenticalPatterns(t *testing.T) {
	model, err := earmodel.NewFFTModel(109, 92)
	if err != nil {
		t.Fatalf("model creation failed: %v", err)
	}

	exc := make([]float64, model.BandCount())
	mod := make([]float64, model.BandCount())
	for k := range exc {
		exc[k] = 1e4
		mod[k] = 0.01
	}

	if got := NoiseLoudness(model, RMSNoiseLoudnessParams, exc, exc, mod, mod); got != 0 {
		t.Fatalf("noise loudness of identical patterns: got %v want 0", got)
	}
}

func TestNoiseLoudnessAddedEnergy(t *testing.T) {
	model, err := earmodel.NewFFTModel(109, 92)
	if err != nil {
		t.Fatalf("model creation failed: %v", err)
	}

	refExc := make([]float64, model.BandCount())
	testExc := make([]float64, model.BandCount())
	mod := make([]float64, model.BandCount())
	for k := range refExc {
		refExc[k] = 1e4
		testExc[k] = 2e4
		mod[k] = 0.01
	}

	if got := NoiseLoudness(model, RMSNoiseLoudnessParams, refExc, testExc, mod, mod); got <= 0 {
		t.Fatalf("noise loudness of added energy not positive: got %v", got)
	}
}

func TestModulationDifference(t *testing.T) {
	n := 109
	refMod := make([]float64, n)
	testMod := make([]float64, n)

	if got := ModulationDifference(refMod, testMod, ModDiff1Params); got != 0 {
		t.Fatalf("modulation difference of identical patterns: got %v want 0", got)
	}

	for k := range testMod {
		testMod[k] = 0.02
	}

	if got := ModulationDifference(refMod, testMod, ModDiff1Params); math.Abs(got-2) > 1e-12 {
		t.Fatalf("modulation difference mismatch: got %v want 2", got)
	}
}

func TestModulationDifferenceWeightBounds(t *testing.T) {
	model, err := earmodel.NewFFTModel(109, 92)
	if err != nil {
		t.Fatalf("model creation failed: %v", err)
	}

	avgLoud := make([]float64, model.BandCount())
	for k := range avgLoud {
		avgLoud[k] = 100
	}

	w := ModulationDifferenceWeight(model, avgLoud, ModDiff1Params)
	if w <= 0 || w > float64(model.BandCount()) {
		t.Fatalf("temporal weight out of range: got %v", w)
	}
}

func TestDetectionProbabilityIdentical(t *testing.T) {
	exc := [][]float64{{1e4, 1e4, 1e4}}

	res := DetectionProbability(exc, exc)
	if res.MaxProb != 0 {
		t.Fatalf("detection probability for identical patterns: got %v want 0", res.MaxProb)
	}

	if res.StepsAboveThreshold != 0 {
		t.Fatalf("detection steps for identical patterns: got %v want 0", res.StepsAboveThreshold)
	}
}

func TestDetectionProbabilityLargeDifference(t *testing.T) {
	ref := [][]float64{{1e4, 1e4, 1e4}}
	test := [][]float64{{1e4, 1e6, 1e4}}

	res := DetectionProbability(ref, test)
	if res.MaxProb < 0.99 {
		t.Fatalf("detection probability for 20 dB difference too low: got %v", res.MaxProb)
	}

	if res.StepsAboveThreshold <= 0 {
		t.Fatalf("detection steps for 20 dB difference not positive: got %v", res.StepsAboveThreshold)
	}
}

func TestEHSSkipsQuietFrames(t *testing.T) {
	quiet := make([]float64, earmodel.FFTFrameSize)
	_, ref, test := newFFTPair(t, quiet, quiet)

	ehs, err := NewEHS(CorrelationLagZero)
	if err != nil {
		t.Fatalf("EHS creation failed: %v", err)
	}

	if _, ok := ehs.Frame(ref, test); ok {
		t.Fatalf("quiet frame not skipped")
	}
}

func TestEHSPeakSearch(t *testing.T) {
	// A broadband error lets the main lobe decline over several bins;
	// values on that falling slope are not harmonic peaks.
	shoulder := []float64{100, 60, 30, 10, 3, 5, 2}
	if got := peakAfterFirstDecline(shoulder); got != 5 {
		t.Fatalf("peak on declining shoulder: got %v want 5", got)
	}

	if got := peakAfterFirstDecline([]float64{100, 50, 20, 10, 5}); got != 0 {
		t.Fatalf("peak in monotone decline: got %v want 0", got)
	}

	if got := peakAfterFirstDecline([]float64{9, 5, 1, 2, 4}); got != 4 {
		t.Fatalf("peak at the upper edge: got %v want 4", got)
	}
}

func TestEHSHarmonicDistortion(t *testing.T) {
	refFrame := sineFrame(64, 0.5, 1e-5, 1)

	// Clipping adds a harmonic series to the error signal.
	testFrame := make([]float64, len(refFrame))
	for i, x := range refFrame {
		testFrame[i] = math.Max(math.Min(x, 0.25), -0.25)
	}

	_, ref, test := newFFTPair(t, refFrame, testFrame)

	ehs, err := NewEHS(CorrelationLagZero)
	if err != nil {
		t.Fatalf("EHS creation failed: %v", err)
	}

	value, ok := ehs.Frame(ref, test)
	if !ok {
		t.Fatalf("loud frame skipped")
	}

	if value <= 0 || math.IsNaN(value) || math.IsInf(value, 0) {
		t.Fatalf("EHS for clipped signal not positive and finite: got %v", value)
	}

	identical, ok := ehs.Frame(ref, ref)
	if !ok || identical != 0 {
		t.Fatalf("EHS for identical spectra: got %v, %v want 0, true", identical, ok)
	}
}
