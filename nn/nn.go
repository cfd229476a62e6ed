// Package nn maps the accumulated model output variables to the
// distortion index and the objective difference grade through the fixed
// feed-forward networks of ITU-R BS.1387-1.
package nn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Network is a single-hidden-layer feed-forward network with fixed
// coefficients. Inputs are scaled to [0,1] before the hidden layer.
type Network struct {
	scaleMin []float64
	scaleMax []float64

	inputWeights [][]float64 // [input][hidden]
	inputBias    []float64
	outputWeight []float64
	outputBias   float64

	weights *mat.Dense // inputWeights as a matrix, built on first use
}

// BasicNetwork returns the combiner of the basic version: 11 model
// output variables through 3 hidden nodes.
func BasicNetwork() *Network { return &basicNetwork }

// AdvancedNetwork returns the combiner of the advanced version: 5 model
// output variables through 5 hidden nodes.
func AdvancedNetwork() *Network { return &advancedNetwork }

// Inputs returns the number of model output variables the network
// expects.
func (n *Network) Inputs() int { return len(n.scaleMin) }

// DistortionIndex evaluates the network on the given model output
// variables. Scaled inputs are clipped to [0,1], so values outside the
// training range cannot drive the network into extrapolation.
func (n *Network) DistortionIndex(movs []float64) float64 {
	if len(movs) != n.Inputs() {
		panic(fmt.Sprintf("nn: %d model output variables, want %d", len(movs), n.Inputs()))
	}

	if n.weights == nil {
		n.weights = mat.NewDense(len(n.inputWeights), len(n.inputBias), nil)
		for i, row := range n.inputWeights {
			n.weights.SetRow(i, row)
		}
	}

	x := make([]float64, len(movs))
	for i, v := range movs {
		s := (v - n.scaleMin[i]) / (n.scaleMax[i] - n.scaleMin[i])
		x[i] = math.Min(math.Max(s, 0), 1)
	}

	hidden := mat.NewVecDense(len(n.inputBias), nil)
	hidden.MulVec(n.weights.T(), mat.NewVecDense(len(x), x))

	h := make([]float64, hidden.Len())
	for j := range h {
		h[j] = sigmoid(hidden.AtVec(j) + n.inputBias[j])
	}

	return n.outputBias + floats.Dot(n.outputWeight, h)
}

// ODG maps a distortion index to the objective difference grade, the
// scale anchored at 0 (imperceptible) down to -4 (very annoying).
func ODG(distortionIndex float64) float64 {
	return -3.98 + 4.2*sigmoid(distortionIndex)
}

func sigmoid(x float64) float64 {
	return 1. / (1. + math.Exp(-x))
}
