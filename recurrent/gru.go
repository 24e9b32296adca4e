// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package recurrent

import (
	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// GRUGates lists the GRU gates in parameter order: reset, update, new.
const GRUGates = "rzn"

// GRU is a gated recurrent unit cell.
//
//	r = σ(x W_ir^T + h W_hr^T + b_r)
//	z = σ(x W_iz^T + h W_hz^T + b_z)
//	n = tanh(x W_in^T + b_n + r * (h W_hn^T))
//	h' = n + z * (h - n)
type GRU[B tensor.Backend] struct {
	*gates[B]
}

// NewGRU creates a GRU cell with Xavier weights and zero biases.
func NewGRU[B tensor.Backend](inputDim, hiddenDim int, backend B) *GRU[B] {
	return &GRU[B]{gates: newGates(GRUGates, inputDim, hiddenDim, backend)}
}

// Step implements Cell.
func (g *GRU[B]) Step(x *tensor.Tensor[float32, B], state State[B]) State[B] {
	g.checkInput("GRU", x, state)

	h := state.H
	r := sigmoid(g.input('r', x).Add(g.hidden('r', h)))
	z := sigmoid(g.input('z', x).Add(g.hidden('z', h)))
	n := tanh(g.input('n', x).Add(r.Mul(g.hidden('n', h))))

	return State[B]{H: n.Add(z.Mul(h.Sub(n)))}
}

// InitState implements Cell.
func (g *GRU[B]) InitState(batch int) State[B] {
	return State[B]{H: g.zeros(batch)}
}

// InputDim returns the input feature count.
func (g *GRU[B]) InputDim() int { return g.inputDim }

// HiddenDim returns the hidden state size.
func (g *GRU[B]) HiddenDim() int { return g.hiddenDim }

// Parameters returns the gate parameters.
func (g *GRU[B]) Parameters() []*nn.Parameter[B] { return g.params }

// StateDict returns the parameters keyed by name.
func (g *GRU[B]) StateDict() map[string]*tensor.RawTensor { return g.stateDict() }

// LoadStateDict copies parameters from stateDict.
func (g *GRU[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return g.loadStateDict(stateDict)
}
