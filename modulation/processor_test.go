package modulation

import (
	"testing"

	"github.com/cwbudde/algo-peaq/earmodel"
)

func newModel(t *testing.T) *earmodel.FFTModel {
	t.Helper()

	m, err := earmodel.NewFFTModel(109, 92)
	if err != nil {
		t.Fatalf("model creation failed: %v", err)
	}

	return m
}

func TestProcessorStationaryInput(t *testing.T) {
	m := newModel(t)
	p := NewProcessor(m)

	exc := make([]float64, m.BandCount())
	for k := range exc {
		exc[k] = 1e4
	}

	for range 500 {
		p.Process(exc)
	}

	for k, mod := range p.Modulation() {
		if mod > 1e-3 {
			t.Fatalf("stationary input modulation at band %d: got %v want ~0", k, mod)
		}
	}

	for k, l := range p.AverageLoudness() {
		if l <= 0 {
			t.Fatalf("average loudness at band %d not positive: got %v", k, l)
		}
	}
}

func TestProcessorFluctuatingInput(t *testing.T) {
	m := newModel(t)

	stationary := NewProcessor(m)
	fluctuating := NewProcessor(m)

	hi := make([]float64, m.BandCount())
	lo := make([]float64, m.BandCount())
	for k := range hi {
		hi[k] = 1e4
		lo[k] = 1e2
	}

	for i := range 500 {
		stationary.Process(hi)

		if i%2 == 0 {
			fluctuating.Process(hi)
		} else {
			fluctuating.Process(lo)
		}
	}

	for k := range hi {
		if fluctuating.Modulation()[k] <= stationary.Modulation()[k] {
			t.Fatalf("fluctuating input not more modulated at band %d: got %v vs %v",
				k, fluctuating.Modulation()[k], stationary.Modulation()[k])
		}
	}
}
