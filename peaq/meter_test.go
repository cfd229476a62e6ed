package peaq

import (
	"math"
	"math/rand"
	"testing"
)

func sineSignal(n int, freq, amp float64) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = amp * math.Sin(2.*math.Pi*freq*float64(i)/48000.)
	}

	return s
}

func addNoise(s []float64, amp float64, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))

	out := make([]float64, len(s))
	for i, x := range s {
		out[i] = x + amp*(2.*rng.Float64()-1.)
	}

	return out
}

func measure(t *testing.T, ref, test []float64, opts ...MeterOption) *Meter {
	t.Helper()

	m, err := NewMeter(append([]MeterOption{WithChannels(1)}, opts...)...)
	if err != nil {
		t.Fatalf("meter creation failed: %v", err)
	}

	if err := m.ProcessBlock([][]float64{ref}, [][]float64{test}); err != nil {
		t.Fatalf("processing failed: %v", err)
	}

	m.Flush()

	return m
}

func TestMeterIdenticalSignals(t *testing.T) {
	ref := sineSignal(48000, 1000, 0.5)
	m := measure(t, ref, ref)

	if got := len(m.MOVs()); got != len(BasicMOVNames) {
		t.Fatalf("MOV count mismatch: got %d want %d", got, len(BasicMOVNames))
	}

	for i, v := range m.MOVs() {
		if math.IsNaN(v) || math.IsInf(v, 1) {
			t.Fatalf("%s not finite: got %v", BasicMOVNames[i], v)
		}
	}

	odg := m.ODG()
	if math.IsNaN(odg) || odg < -3.99 || odg > 0.23 {
		t.Fatalf("ODG out of grade scale: got %v", odg)
	}
}

func TestMeterDegradedSignalScoresWorse(t *testing.T) {
	ref := sineSignal(48000, 1000, 0.5)
	noisy := addNoise(ref, 0.03, 42)

	clean := measure(t, ref, ref)
	degraded := measure(t, ref, noisy)

	if clean.DistortionIndex() <= degraded.DistortionIndex() {
		t.Fatalf("noisy signal not rated worse: clean %v degraded %v",
			clean.DistortionIndex(), degraded.DistortionIndex())
	}
}

func TestMeterAdvanced(t *testing.T) {
	ref := sineSignal(48000, 1000, 0.5)
	noisy := addNoise(ref, 0.03, 42)

	clean := measure(t, ref, ref, WithAdvanced(true))
	degraded := measure(t, ref, noisy, WithAdvanced(true))

	if got := len(clean.MOVs()); got != len(AdvancedMOVNames) {
		t.Fatalf("MOV count mismatch: got %d want %d", got, len(AdvancedMOVNames))
	}

	if clean.DistortionIndex() <= degraded.DistortionIndex() {
		t.Fatalf("noisy signal not rated worse: clean %v degraded %v",
			clean.DistortionIndex(), degraded.DistortionIndex())
	}
}

func TestMeterReset(t *testing.T) {
	ref := sineSignal(48000, 1000, 0.5)
	noisy := addNoise(ref, 0.03, 42)

	m := measure(t, ref, noisy)
	first := m.ODG()

	m.Reset()

	if err := m.ProcessBlock([][]float64{ref}, [][]float64{noisy}); err != nil {
		t.Fatalf("processing after reset failed: %v", err)
	}

	m.Flush()

	if got := m.ODG(); got != first {
		t.Fatalf("ODG after reset mismatch: got %v want %v", got, first)
	}
}

func TestMeterBlockSizeIndependence(t *testing.T) {
	ref := sineSignal(48000, 1000, 0.5)
	noisy := addNoise(ref, 0.03, 42)

	whole := measure(t, ref, noisy)

	m, err := NewMeter(WithChannels(1))
	if err != nil {
		t.Fatalf("meter creation failed: %v", err)
	}

	for pos := 0; pos < len(ref); pos += 777 {
		end := min(pos+777, len(ref))
		if err := m.ProcessBlock([][]float64{ref[pos:end]}, [][]float64{noisy[pos:end]}); err != nil {
			t.Fatalf("processing failed: %v", err)
		}
	}

	m.Flush()

	if got, want := m.ODG(), whole.ODG(); got != want {
		t.Fatalf("block size changed the result: got %v want %v", got, want)
	}
}

func TestMeterConfigValidation(t *testing.T) {
	if _, err := NewMeter(WithChannels(3)); err == nil {
		t.Fatalf("3 channels accepted")
	}

	m, err := NewMeter(WithChannels(2))
	if err != nil {
		t.Fatalf("meter creation failed: %v", err)
	}

	if err := m.ProcessBlock([][]float64{make([]float64, 10)}, [][]float64{make([]float64, 10)}); err == nil {
		t.Fatalf("channel count mismatch accepted")
	}

	if err := m.ProcessBlock(
		[][]float64{make([]float64, 10), make([]float64, 10)},
		[][]float64{make([]float64, 10), make([]float64, 5)},
	); err == nil {
		t.Fatalf("block length mismatch accepted")
	}
}

func TestMeterInterleaved(t *testing.T) {
	left := sineSignal(9600, 1000, 0.5)
	right := sineSignal(9600, 2000, 0.5)

	interleaved := make([]float64, 2*len(left))
	for i := range left {
		interleaved[2*i] = left[i]
		interleaved[2*i+1] = right[i]
	}

	planar, err := NewMeter(WithChannels(2))
	if err != nil {
		t.Fatalf("meter creation failed: %v", err)
	}

	if err := planar.ProcessBlock([][]float64{left, right}, [][]float64{left, right}); err != nil {
		t.Fatalf("planar processing failed: %v", err)
	}

	planar.Flush()

	m, err := NewMeter(WithChannels(2))
	if err != nil {
		t.Fatalf("meter creation failed: %v", err)
	}

	if err := m.ProcessInterleaved(interleaved, interleaved); err != nil {
		t.Fatalf("interleaved processing failed: %v", err)
	}

	m.Flush()

	if got, want := m.ODG(), planar.ODG(); got != want {
		t.Fatalf("interleaved result mismatch: got %v want %v", got, want)
	}

	if err := m.ProcessInterleaved(make([]float64, 3), make([]float64, 3)); err == nil {
		t.Fatalf("odd interleaved length accepted")
	}
}

func TestMeterSilenceKeepsAccumulatorsUninitialized(t *testing.T) {
	silence := make([]float64, 48000)
	m := measure(t, silence, silence)

	for i, v := range m.MOVs() {
		if v != 0 {
			t.Fatalf("%s accumulated on silence: got %v", BasicMOVNames[i], v)
		}
	}
}
