// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package recurrent provides LSTM and GRU cells built from Born tensor
// operations, and a bidirectional runner over variable-length sequences.
//
// Every gate owns three parameters, named after the gate letter g:
//
//	weight_ih_<g>  [hidden, input]   input-to-hidden weights
//	weight_hh_<g>  [hidden, hidden]  hidden-to-hidden weights
//	bias_<g>       [hidden]          bias
//
// Cells record all operations on the backend, so gradients flow through
// them when the backend is wrapped in autodiff. Sigmoid and tanh require
// such a backend.
package recurrent

import (
	"fmt"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// Parameter name prefixes.
const (
	WeightIH = "weight_ih_"
	WeightHH = "weight_hh_"
	Bias     = "bias_"
)

// State is the recurrent state of a cell for one batch.
// C is nil for cells without a memory cell.
type State[B tensor.Backend] struct {
	H *tensor.Tensor[float32, B]
	C *tensor.Tensor[float32, B]
}

// Cell advances a recurrent state by one timestep.
type Cell[B tensor.Backend] interface {
	// Step consumes x [batch, input] and returns the next state.
	Step(x *tensor.Tensor[float32, B], state State[B]) State[B]
	// InitState returns the zero state for a batch.
	InitState(batch int) State[B]
	InputDim() int
	HiddenDim() int
	Parameters() []*nn.Parameter[B]
	StateDict() map[string]*tensor.RawTensor
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error
}

// gates holds the per-gate parameters shared by LSTM and GRU.
type gates[B tensor.Backend] struct {
	names     string
	inputDim  int
	hiddenDim int
	ih        map[byte]*nn.Parameter[B]
	hh        map[byte]*nn.Parameter[B]
	bias      map[byte]*nn.Parameter[B]
	params    []*nn.Parameter[B]
	backend   B
}

func newGates[B tensor.Backend](names string, inputDim, hiddenDim int, backend B) *gates[B] {
	if inputDim <= 0 || hiddenDim <= 0 {
		panic(fmt.Sprintf("recurrent: dimensions must be positive, got input=%d hidden=%d", inputDim, hiddenDim))
	}
	g := &gates[B]{
		names:     names,
		inputDim:  inputDim,
		hiddenDim: hiddenDim,
		ih:        make(map[byte]*nn.Parameter[B], len(names)),
		hh:        make(map[byte]*nn.Parameter[B], len(names)),
		bias:      make(map[byte]*nn.Parameter[B], len(names)),
		backend:   backend,
	}
	for i := 0; i < len(names); i++ {
		name := names[i]
		g.ih[name] = nn.NewParameter(WeightIH+string(name),
			nn.Xavier(inputDim, hiddenDim, tensor.Shape{hiddenDim, inputDim}, backend))
		g.hh[name] = nn.NewParameter(WeightHH+string(name),
			nn.Xavier(hiddenDim, hiddenDim, tensor.Shape{hiddenDim, hiddenDim}, backend))
		g.bias[name] = nn.NewParameter(Bias+string(name),
			nn.Zeros(tensor.Shape{hiddenDim}, backend))
	}
	// Parameters are listed as all input weights, all hidden weights, all biases.
	for _, set := range []map[byte]*nn.Parameter[B]{g.ih, g.hh, g.bias} {
		for i := 0; i < len(names); i++ {
			g.params = append(g.params, set[names[i]])
		}
	}
	return g
}

// input computes x @ W_ih^T + b for gate name.
func (g *gates[B]) input(name byte, x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	w := g.ih[name].Tensor().Transpose()
	b := g.bias[name].Tensor().Reshape(1, g.hiddenDim)
	return x.MatMul(w).Add(b)
}

// hidden computes h @ W_hh^T for gate name.
func (g *gates[B]) hidden(name byte, h *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return h.MatMul(g.hh[name].Tensor().Transpose())
}

func (g *gates[B]) checkInput(cell string, x *tensor.Tensor[float32, B], state State[B]) {
	shape := x.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("%s.Step: expected 2D input [batch, features], got shape %v", cell, shape))
	}
	if shape[1] != g.inputDim {
		panic(fmt.Sprintf("%s.Step: expected input with %d features, got %d", cell, g.inputDim, shape[1]))
	}
	if state.H == nil {
		panic(fmt.Sprintf("%s.Step: missing hidden state", cell))
	}
	if hs := state.H.Shape(); len(hs) != 2 || hs[0] != shape[0] || hs[1] != g.hiddenDim {
		panic(fmt.Sprintf("%s.Step: hidden state shape %v does not match [%d, %d]", cell, hs, shape[0], g.hiddenDim))
	}
}

func (g *gates[B]) zeros(batch int) *tensor.Tensor[float32, B] {
	return tensor.Zeros[float32](tensor.Shape{batch, g.hiddenDim}, g.backend)
}

func (g *gates[B]) stateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor, len(g.params))
	for _, p := range g.params {
		stateDict[p.Name()] = p.Tensor().Raw()
	}
	return stateDict
}

func (g *gates[B]) loadStateDict(stateDict map[string]*tensor.RawTensor) error {
	for _, p := range g.params {
		raw, ok := stateDict[p.Name()]
		if !ok {
			return fmt.Errorf("missing %s in state dict", p.Name())
		}
		if !raw.Shape().Equal(p.Tensor().Shape()) {
			return fmt.Errorf("%s shape mismatch: expected %v, got %v", p.Name(), p.Tensor().Shape(), raw.Shape())
		}
		if raw.DType() != tensor.Float32 {
			return fmt.Errorf("%s dtype mismatch: expected float32, got %v", p.Name(), raw.DType())
		}
	}
	for _, p := range g.params {
		copy(p.Tensor().Data(), stateDict[p.Name()].AsFloat32())
	}
	return nil
}

func sigmoid[B tensor.Backend](x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return nn.SigmoidFunc(x)
}

func tanh[B tensor.Backend](x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return nn.NewTanh[B]().Forward(x)
}
