// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package recurrent

import (
	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// LSTMGates lists the LSTM gates in parameter order:
// input, forget, cell candidate, output.
const LSTMGates = "ifgo"

// LSTM is a long short-term memory cell.
//
//	i = σ(x W_ii^T + h W_hi^T + b_i)
//	f = σ(x W_if^T + h W_hf^T + b_f)
//	g = tanh(x W_ig^T + h W_hg^T + b_g)
//	o = σ(x W_io^T + h W_ho^T + b_o)
//	c' = f * c + i * g
//	h' = o * tanh(c')
type LSTM[B tensor.Backend] struct {
	*gates[B]
}

// NewLSTM creates an LSTM cell with Xavier weights and zero biases.
func NewLSTM[B tensor.Backend](inputDim, hiddenDim int, backend B) *LSTM[B] {
	return &LSTM[B]{gates: newGates(LSTMGates, inputDim, hiddenDim, backend)}
}

// Step implements Cell.
func (l *LSTM[B]) Step(x *tensor.Tensor[float32, B], state State[B]) State[B] {
	l.checkInput("LSTM", x, state)
	if state.C == nil {
		panic("LSTM.Step: missing cell state")
	}

	h := state.H
	i := sigmoid(l.input('i', x).Add(l.hidden('i', h)))
	f := sigmoid(l.input('f', x).Add(l.hidden('f', h)))
	g := tanh(l.input('g', x).Add(l.hidden('g', h)))
	o := sigmoid(l.input('o', x).Add(l.hidden('o', h)))

	c := f.Mul(state.C).Add(i.Mul(g))
	return State[B]{H: o.Mul(tanh(c)), C: c}
}

// InitState implements Cell.
func (l *LSTM[B]) InitState(batch int) State[B] {
	return State[B]{H: l.zeros(batch), C: l.zeros(batch)}
}

// InputDim returns the input feature count.
func (l *LSTM[B]) InputDim() int { return l.inputDim }

// HiddenDim returns the hidden state size.
func (l *LSTM[B]) HiddenDim() int { return l.hiddenDim }

// Parameters returns the gate parameters.
func (l *LSTM[B]) Parameters() []*nn.Parameter[B] { return l.params }

// ForgetBias returns the forget-gate bias parameter.
func (l *LSTM[B]) ForgetBias() *nn.Parameter[B] { return l.bias['f'] }

// StateDict returns the parameters keyed by name.
func (l *LSTM[B]) StateDict() map[string]*tensor.RawTensor { return l.stateDict() }

// LoadStateDict copies parameters from stateDict. Nothing is modified when
// a parameter is missing or has the wrong shape.
func (l *LSTM[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return l.loadStateDict(stateDict)
}
