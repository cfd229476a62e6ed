package earmodel

import (
	"math"
	"testing"
)

func TestFilterbankModelKernels(t *testing.T) {
	m, err := NewFilterbankModel(92)
	if err != nil {
		t.Fatalf("model creation failed: %v", err)
	}

	if got := len(m.kernelRe[0]); got != fbBufferSize {
		t.Fatalf("lowest band kernel length mismatch: got %d want %d", got, fbBufferSize)
	}

	prev := fbBufferSize + 1
	for k := range FilterbankBandCount {
		n := len(m.kernelRe[k])
		if n%2 != 0 {
			t.Fatalf("kernel length at band %d not even: got %d", k, n)
		}

		if n > prev {
			t.Fatalf("kernel length grew at band %d: got %d had %d", k, n, prev)
		}

		if m.kernelOffset[k]+n > fbBufferSize {
			t.Fatalf("kernel at band %d exceeds the delay line", k)
		}

		prev = n
	}
}

func TestFilterbankModelCenterFrequencies(t *testing.T) {
	m, err := NewFilterbankModel(92)
	if err != nil {
		t.Fatalf("model creation failed: %v", err)
	}

	if fc := m.CenterFrequency(0); fc < fbLowerFrequencyLimit || fc > 100 {
		t.Fatalf("lowest centre frequency out of range: got %v", fc)
	}

	if fc := m.CenterFrequency(FilterbankBandCount - 1); fc > fbUpperFrequencyLimit {
		t.Fatalf("highest centre frequency out of range: got %v", fc)
	}

	for k := 1; k < FilterbankBandCount; k++ {
		if m.CenterFrequency(k) <= m.CenterFrequency(k-1) {
			t.Fatalf("centre frequencies not increasing at band %d", k)
		}
	}
}

func TestFilterbankModelTimeConstants(t *testing.T) {
	m, err := NewFilterbankModel(92)
	if err != nil {
		t.Fatalf("model creation failed: %v", err)
	}

	for k := 1; k < FilterbankBandCount; k++ {
		if m.TimeConstant(k) > m.TimeConstant(k-1) {
			t.Fatalf("smearing coefficient grew at band %d", k)
		}

		if c := m.TimeConstant(k); c <= 0 || c >= 1 {
			t.Fatalf("smearing coefficient at band %d out of range: got %v", k, c)
		}
	}
}

func TestFilterbankModelSilence(t *testing.T) {
	m, err := NewFilterbankModel(92)
	if err != nil {
		t.Fatalf("model creation failed: %v", err)
	}

	st := m.NewState().(*FilterbankState)

	for range 10 {
		m.Process(st, make([]float64, FilterbankStepSize))
	}

	for k, e := range st.Excitation() {
		if e <= 0 || math.IsNaN(e) || math.IsInf(e, 0) {
			t.Fatalf("silent excitation at band %d not positive and finite: got %v", k, e)
		}
	}
}

func TestFilterbankModelSineSelectivity(t *testing.T) {
	m, err := NewFilterbankModel(92)
	if err != nil {
		t.Fatalf("model creation failed: %v", err)
	}

	st := m.NewState().(*FilterbankState)

	const freq = 1000.

	// Enough frames to fill the longest kernel and settle the
	// backward-masking ring.
	sample := 0
	frame := make([]float64, FilterbankStepSize)

	for range 20 {
		for i := range frame {
			frame[i] = 0.5 * math.Sin(2.*math.Pi*freq*float64(sample)/SampleRate)
			sample++
		}

		m.Process(st, frame)
	}

	peak := 0
	exc := st.Excitation()
	for k, e := range exc {
		if e > exc[peak] {
			peak = k
		}
	}

	closest := 0
	for k := range FilterbankBandCount {
		if math.Abs(m.CenterFrequency(k)-freq) < math.Abs(m.CenterFrequency(closest)-freq) {
			closest = k
		}
	}

	if d := peak - closest; d < -1 || d > 1 {
		t.Fatalf("peak excitation at band %d (fc %.1f Hz), want near band %d (fc %.1f Hz)",
			peak, m.CenterFrequency(peak), closest, m.CenterFrequency(closest))
	}
}
