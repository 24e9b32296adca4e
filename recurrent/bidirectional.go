// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package recurrent

import (
	"fmt"
	"strings"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// Masks builds one [batch, hidden] float mask per timestep: 1 where the
// timestep lies inside the sequence, 0 in the padding.
func Masks[B tensor.Backend](lengths []int, steps, hidden int, backend B) []*tensor.Tensor[float32, B] {
	masks := make([]*tensor.Tensor[float32, B], steps)
	for t := 0; t < steps; t++ {
		data := make([]float32, len(lengths)*hidden)
		for i, n := range lengths {
			if t < n {
				row := data[i*hidden : (i+1)*hidden]
				for j := range row {
					row[j] = 1
				}
			}
		}
		mask, err := tensor.FromSlice(data, tensor.Shape{len(lengths), hidden}, backend)
		if err != nil {
			panic(fmt.Sprintf("recurrent.Masks: %v", err))
		}
		masks[t] = mask
	}
	return masks
}

// Run feeds xs (one [batch, input] tensor per timestep) through cell and
// returns the hidden state after every timestep. When reverse is set the
// sequence is consumed from the last timestep to the first, and outputs are
// still returned in timestep order.
//
// With masks, state updates at padded timesteps are discarded
// (h = h_prev + m * (h_new - h_prev)), so a reversed pass starts at the last
// real token of each sequence.
func Run[B tensor.Backend](
	cell Cell[B],
	xs []*tensor.Tensor[float32, B],
	masks []*tensor.Tensor[float32, B],
	reverse bool,
) []*tensor.Tensor[float32, B] {
	if len(xs) == 0 {
		return nil
	}
	if masks != nil && len(masks) != len(xs) {
		panic(fmt.Sprintf("recurrent.Run: %d masks for %d timesteps", len(masks), len(xs)))
	}

	state := cell.InitState(xs[0].Shape()[0])
	outputs := make([]*tensor.Tensor[float32, B], len(xs))
	for k := range xs {
		t := k
		if reverse {
			t = len(xs) - 1 - k
		}
		next := cell.Step(xs[t], state)
		if masks != nil {
			next.H = blend(state.H, next.H, masks[t])
			if next.C != nil {
				next.C = blend(state.C, next.C, masks[t])
			}
		}
		state = next
		outputs[t] = state.H
	}
	return outputs
}

func blend[B tensor.Backend](prev, next, mask *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return prev.Add(mask.Mul(next.Sub(prev)))
}

// Bidirectional runs a forward and a backward cell over the same sequence
// and concatenates their hidden states.
type Bidirectional[B tensor.Backend] struct {
	Forward  Cell[B]
	Backward Cell[B]
	backend  B
}

// NewBidirectional creates a bidirectional runner from two cells of the
// same shape.
func NewBidirectional[B tensor.Backend](forward, backward Cell[B], backend B) *Bidirectional[B] {
	if forward.InputDim() != backward.InputDim() || forward.HiddenDim() != backward.HiddenDim() {
		panic(fmt.Sprintf("recurrent.NewBidirectional: cell shapes differ: [%d, %d] vs [%d, %d]",
			forward.InputDim(), forward.HiddenDim(), backward.InputDim(), backward.HiddenDim()))
	}
	return &Bidirectional[B]{Forward: forward, Backward: backward, backend: backend}
}

// OutputDim returns the size of the concatenated hidden state.
func (b *Bidirectional[B]) OutputDim() int {
	return b.Forward.HiddenDim() + b.Backward.HiddenDim()
}

// Run returns one [batch, 2*hidden] tensor per timestep. lengths holds the
// real length of each sequence in the batch.
func (b *Bidirectional[B]) Run(xs []*tensor.Tensor[float32, B], lengths []int) []*tensor.Tensor[float32, B] {
	if len(xs) == 0 {
		return nil
	}
	if batch := xs[0].Shape()[0]; len(lengths) != batch {
		panic(fmt.Sprintf("Bidirectional.Run: %d lengths for batch of %d", len(lengths), batch))
	}

	masks := Masks(lengths, len(xs), b.Forward.HiddenDim(), b.backend)
	forward := Run(b.Forward, xs, masks, false)
	backward := Run(b.Backward, xs, masks, true)

	outputs := make([]*tensor.Tensor[float32, B], len(xs))
	for t := range xs {
		outputs[t] = tensor.Cat([]*tensor.Tensor[float32, B]{forward[t], backward[t]}, 1)
	}
	return outputs
}

// Parameters returns the forward cell parameters followed by the backward ones.
func (b *Bidirectional[B]) Parameters() []*nn.Parameter[B] {
	params := append([]*nn.Parameter[B]{}, b.Forward.Parameters()...)
	return append(params, b.Backward.Parameters()...)
}

// StateDict prefixes the cell parameters with "forward." and "backward.".
func (b *Bidirectional[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	for name, raw := range b.Forward.StateDict() {
		stateDict["forward."+name] = raw
	}
	for name, raw := range b.Backward.StateDict() {
		stateDict["backward."+name] = raw
	}
	return stateDict
}

// LoadStateDict loads both cells from a dictionary produced by StateDict.
func (b *Bidirectional[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	if err := b.Forward.LoadStateDict(Sub(stateDict, "forward.")); err != nil {
		return fmt.Errorf("forward: %w", err)
	}
	if err := b.Backward.LoadStateDict(Sub(stateDict, "backward.")); err != nil {
		return fmt.Errorf("backward: %w", err)
	}
	return nil
}

// Sub returns the entries of stateDict whose names start with prefix,
// with the prefix removed.
func Sub(stateDict map[string]*tensor.RawTensor, prefix string) map[string]*tensor.RawTensor {
	sub := make(map[string]*tensor.RawTensor)
	for name, raw := range stateDict {
		if strings.HasPrefix(name, prefix) {
			sub[strings.TrimPrefix(name, prefix)] = raw
		}
	}
	return sub
}
