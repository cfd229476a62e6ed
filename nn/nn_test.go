package nn

import (
	"math"
	"testing"
)

func TestNetworkSizes(t *testing.T) {
	if got := BasicNetwork().Inputs(); got != 11 {
		t.Fatalf("basic input count mismatch: got %d want 11", got)
	}

	if got := AdvancedNetwork().Inputs(); got != 5 {
		t.Fatalf("advanced input count mismatch: got %d want 5", got)
	}
}

func TestDistortionIndexFinite(t *testing.T) {
	for _, n := range []*Network{BasicNetwork(), AdvancedNetwork()} {
		movs := make([]float64, n.Inputs())
		for i := range movs {
			movs[i] = (n.scaleMin[i] + n.scaleMax[i]) / 2.
		}

		di := n.DistortionIndex(movs)
		if math.IsNaN(di) || math.IsInf(di, 0) {
			t.Fatalf("distortion index not finite: got %v", di)
		}
	}
}

func TestDistortionIndexClipsInputs(t *testing.T) {
	n := BasicNetwork()

	atMax := make([]float64, n.Inputs())
	beyond := make([]float64, n.Inputs())
	for i := range atMax {
		atMax[i] = n.scaleMax[i]
		beyond[i] = n.scaleMax[i] + 1e6
	}

	if got, want := n.DistortionIndex(beyond), n.DistortionIndex(atMax); got != want {
		t.Fatalf("out-of-range input not clipped: got %v want %v", got, want)
	}
}

func TestDistortionIndexInputCountPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("wrong input count accepted")
		}
	}()

	BasicNetwork().DistortionIndex(make([]float64, 3))
}

func TestODG(t *testing.T) {
	if got, want := ODG(0), -3.98+4.2/2.; math.Abs(got-want) > 1e-12 {
		t.Fatalf("ODG at zero mismatch: got %v want %v", got, want)
	}

	// The grade scale is bounded by -3.98 and 0.22.
	if got := ODG(-1e3); math.Abs(got-(-3.98)) > 1e-9 {
		t.Fatalf("lower grade bound mismatch: got %v want -3.98", got)
	}

	if got := ODG(1e3); math.Abs(got-0.22) > 1e-9 {
		t.Fatalf("upper grade bound mismatch: got %v want 0.22", got)
	}

	if ODG(-1) >= ODG(1) {
		t.Fatalf("ODG not increasing in the distortion index")
	}
}
