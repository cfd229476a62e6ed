// Package modulation implements the temporal modulation analysis of the
// PEAQ perceptual model. Per band, the compressed loudness and its
// scaled derivative are tracked through one-pole filters; their ratio
// is the modulation measure consumed by the modulation-difference and
// noise-loudness analyses.
package modulation

import (
	"math"

	"github.com/cwbudde/algo-peaq/earmodel"
)

// Processor holds the per-channel modulation state for one signal on
// one ear model.
type Processor struct {
	bandCount int
	coeff     []float64
	rate      float64 // frames per second

	prevLoud  []float64
	avgLoud   []float64
	filtDeriv []float64
	mod       []float64
}

// NewProcessor creates a modulation processor sized for the given ear
// model, reusing the model's per-band time constants.
func NewProcessor(m earmodel.Model) *Processor {
	n := m.BandCount()

	p := &Processor{
		bandCount: n,
		coeff:     make([]float64, n),
		rate:      earmodel.SampleRate / float64(m.StepSize()),
		prevLoud:  make([]float64, n),
		avgLoud:   make([]float64, n),
		filtDeriv: make([]float64, n),
		mod:       make([]float64, n),
	}

	for k := range n {
		p.coeff[k] = m.TimeConstant(k)
	}

	return p
}

// BandCount returns the band count the processor was configured for.
func (p *Processor) BandCount() int { return p.bandCount }

// Process consumes one frame's unsmeared excitation pattern.
func (p *Processor) Process(unsmeared []float64) {
	if len(unsmeared) != p.bandCount {
		panic("modulation: excitation pattern band count mismatch")
	}

	for k, e := range unsmeared {
		loud := math.Pow(e, 0.3)
		deriv := p.rate * math.Abs(loud-p.prevLoud[k])

		c := p.coeff[k]
		p.filtDeriv[k] = c*p.filtDeriv[k] + (1.-c)*deriv
		p.avgLoud[k] = c*p.avgLoud[k] + (1.-c)*loud
		p.prevLoud[k] = loud

		p.mod[k] = p.filtDeriv[k] / (1. + p.avgLoud[k]/0.3)
	}
}

// Modulation returns the per-band modulation measure of the most recent
// frame.
func (p *Processor) Modulation() []float64 { return p.mod }

// AverageLoudness returns the filtered per-band loudness, used as a
// weighting signal by several output-variable analyses.
func (p *Processor) AverageLoudness() []float64 { return p.avgLoud }
