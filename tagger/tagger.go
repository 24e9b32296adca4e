// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tagger implements a recurrent part-of-speech tagger: word
// embeddings, a bidirectional LSTM or GRU and a dense layer over the tag
// vocabulary.
//
// The network consumes padded word ids [batch, maxLen] and produces packed
// logits [tokens, tags]: the rows of the first sentence, then the rows of
// the second, and so on, without padding. This matches the packed targets
// produced by morpho.Loader.
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	net, err := tagger.New(tagger.Config{
//	    Words: ds.Train.Forms.Vocab.Len(), Tags: ds.Train.Tags.Vocab.Len(),
//	    WordDim: 64, RNNDim: 64, RNN: tagger.LSTM,
//	}, backend)
//	train.KerasInit[*autodiff.Backend[*cpu.Backend]](rng, net)
package tagger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
	"github.com/born-ml/morphotag/morpho"
	"github.com/born-ml/morphotag/recurrent"
)

// Recurrent cell types.
const (
	LSTM = "LSTM"
	GRU  = "GRU"
)

// ErrUnknownRNN is returned for a cell type other than LSTM or GRU.
var ErrUnknownRNN = errors.New("unknown rnn type")

// State dictionary prefixes.
const (
	embeddingPrefix = "embedding."
	rnnPrefix       = "rnn."
	outputPrefix    = "output."
)

// Config describes the tagger architecture.
type Config struct {
	// Words and Tags are the vocabulary sizes, reserved entries included.
	Words int
	Tags  int
	// WordDim is the embedding size, RNNDim the hidden size of each direction.
	WordDim int
	RNNDim  int
	// RNN is LSTM or GRU.
	RNN string
}

// Tagger is the tagging network. It implements train.Network.
type Tagger[B tensor.Backend] struct {
	Embedding *nn.Embedding[B]
	RNN       *recurrent.Bidirectional[B]
	Output    *nn.Linear[B]

	backend B
}

// New builds a tagger on backend.
func New[B tensor.Backend](cfg Config, backend B) (*Tagger[B], error) {
	if cfg.Words <= 0 || cfg.Tags <= 0 || cfg.WordDim <= 0 || cfg.RNNDim <= 0 {
		return nil, fmt.Errorf("invalid tagger config %+v: sizes must be positive", cfg)
	}

	var forward, backward recurrent.Cell[B]
	switch strings.ToUpper(cfg.RNN) {
	case LSTM:
		forward = recurrent.NewLSTM(cfg.WordDim, cfg.RNNDim, backend)
		backward = recurrent.NewLSTM(cfg.WordDim, cfg.RNNDim, backend)
	case GRU:
		forward = recurrent.NewGRU(cfg.WordDim, cfg.RNNDim, backend)
		backward = recurrent.NewGRU(cfg.WordDim, cfg.RNNDim, backend)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRNN, cfg.RNN)
	}

	rnn := recurrent.NewBidirectional(forward, backward, backend)
	return &Tagger[B]{
		Embedding: nn.NewEmbedding(cfg.Words, cfg.WordDim, backend),
		RNN:       rnn,
		Output:    nn.NewLinear(rnn.OutputDim(), cfg.Tags, backend),
		backend:   backend,
	}, nil
}

// Forward maps word ids [batch, maxLen] to packed logits [tokens, tags].
// Sentence lengths are the number of non-padding ids in each row.
func (t *Tagger[B]) Forward(inputs ...*tensor.RawTensor) *tensor.Tensor[float32, B] {
	if len(inputs) != 1 {
		panic(fmt.Sprintf("Tagger.Forward: expected 1 input, got %d", len(inputs)))
	}
	words := inputs[0]
	shape := words.Shape()
	if len(shape) != 2 || words.DType() != tensor.Int32 {
		panic(fmt.Sprintf("Tagger.Forward: expected int32 [batch, maxLen] word ids, got %v %v", words.DType(), shape))
	}
	batch, steps := shape[0], shape[1]
	ids := words.AsInt32()
	lengths := Lengths(ids, batch, steps)

	xs := make([]*tensor.Tensor[float32, B], steps)
	column := make([]int32, batch)
	for s := 0; s < steps; s++ {
		for i := 0; i < batch; i++ {
			column[i] = ids[i*steps+s]
		}
		xs[s] = t.Embedding.Forward(t.indices(column))
	}

	// [steps*batch, 2*hidden], timestep-major
	hidden := tensor.Cat(t.RNN.Run(xs, lengths), 0)

	packed := make([]int32, 0, len(ids))
	for i, n := range lengths {
		for s := 0; s < n; s++ {
			packed = append(packed, int32(s*batch+i)) //nolint:gosec // Bounded by the batch size.
		}
	}
	rows := nn.NewEmbeddingWithWeight(hidden).Forward(t.indices(packed))

	return t.Output.Forward(rows)
}

func (t *Tagger[B]) indices(ids []int32) *tensor.Tensor[int32, B] {
	idx, err := tensor.FromSlice(ids, tensor.Shape{len(ids)}, t.backend)
	if err != nil {
		panic(fmt.Sprintf("Tagger.Forward: %v", err))
	}
	return idx
}

// Lengths counts the non-padding ids of every row of a [batch, steps]
// id matrix.
func Lengths(ids []int32, batch, steps int) []int {
	lengths := make([]int, batch)
	for i := range lengths {
		for _, id := range ids[i*steps : (i+1)*steps] {
			if id != morpho.PadID {
				lengths[i]++
			}
		}
	}
	return lengths
}

// Modules returns the layers in forward order.
func (t *Tagger[B]) Modules() []any {
	return []any{t.Embedding, t.RNN, t.Output}
}

// Parameters returns all trainable parameters.
func (t *Tagger[B]) Parameters() []*nn.Parameter[B] {
	params := append([]*nn.Parameter[B]{}, t.Embedding.Parameters()...)
	params = append(params, t.RNN.Parameters()...)
	return append(params, t.Output.Parameters()...)
}

// StateDict returns the parameters under the "embedding.", "rnn." and
// "output." prefixes.
func (t *Tagger[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := map[string]*tensor.RawTensor{
		embeddingPrefix + "weight": t.Embedding.Weight.Tensor().Raw(),
	}
	for name, raw := range t.RNN.StateDict() {
		stateDict[rnnPrefix+name] = raw
	}
	for name, raw := range t.Output.StateDict() {
		stateDict[outputPrefix+name] = raw
	}
	return stateDict
}

// LoadStateDict loads a dictionary produced by StateDict.
func (t *Tagger[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	raw, ok := stateDict[embeddingPrefix+"weight"]
	if !ok {
		return fmt.Errorf("missing %sweight in state dict", embeddingPrefix)
	}
	weight := t.Embedding.Weight.Tensor()
	if !raw.Shape().Equal(weight.Shape()) || raw.DType() != tensor.Float32 {
		return fmt.Errorf("embedding weight mismatch: expected float32 %v, got %v %v",
			weight.Shape(), raw.DType(), raw.Shape())
	}
	if err := t.RNN.LoadStateDict(recurrent.Sub(stateDict, rnnPrefix)); err != nil {
		return fmt.Errorf("rnn: %w", err)
	}
	if err := t.Output.LoadStateDict(recurrent.Sub(stateDict, outputPrefix)); err != nil {
		return fmt.Errorf("output: %w", err)
	}
	copy(weight.Data(), raw.AsFloat32())
	return nil
}
