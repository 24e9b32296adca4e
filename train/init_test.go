// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package train_test

import (
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/nn"
	"github.com/born-ml/morphotag/recurrent"
	"github.com/born-ml/morphotag/train"
	"github.com/stretchr/testify/assert"
)

type stack struct {
	modules []any
}

func (s stack) Modules() []any { return s.modules }

func TestKerasInit(t *testing.T) {
	backend := autodiff.New(cpu.New())
	embedding := nn.NewEmbedding(10, 4, backend)
	dense := nn.NewLinear(6, 3, backend)
	lstm := recurrent.NewLSTM(4, 3, backend)
	gru := recurrent.NewGRU(4, 3, backend)
	bi := recurrent.NewBidirectional[testBackend](
		recurrent.NewLSTM(4, 2, backend), recurrent.NewLSTM(4, 2, backend), backend)

	// Dirty the biases so zeroing is observable.
	for _, p := range append(dense.Parameters(), lstm.Parameters()...) {
		if strings.Contains(p.Name(), "bias") {
			for i := range p.Tensor().Data() {
				p.Tensor().Data()[i] = 3
			}
		}
	}

	train.KerasInit[testBackend](rand.New(rand.NewSource(7)),
		embedding, stack{modules: []any{dense, lstm, gru}}, bi, "ignored")

	for _, v := range embedding.Weight.Tensor().Data() {
		assert.LessOrEqual(t, math.Abs(float64(v)), 0.05)
	}

	limit := math.Sqrt(6.0 / 9.0)
	for _, v := range dense.Weight().Tensor().Data() {
		assert.LessOrEqual(t, math.Abs(float64(v)), limit)
	}
	assert.Equal(t, []float32{0, 0, 0}, dense.Bias().Tensor().Data())

	for _, p := range lstm.Parameters() {
		data := p.Tensor().Data()
		switch p.Name() {
		case "bias_f":
			assert.Equal(t, []float32{1, 1, 1}, data)
		case "bias_i", "bias_g", "bias_o":
			assert.Equal(t, []float32{0, 0, 0}, data)
		case "weight_hh_i":
			// Rows of an orthogonal matrix have unit norm.
			for r := 0; r < 3; r++ {
				var norm float64
				for c := 0; c < 3; c++ {
					norm += float64(data[r*3+c]) * float64(data[r*3+c])
				}
				assert.InDelta(t, 1.0, norm, 1e-5)
			}
		}
	}

	for _, cell := range []*recurrent.LSTM[testBackend]{
		bi.Forward.(*recurrent.LSTM[testBackend]),
		bi.Backward.(*recurrent.LSTM[testBackend]),
	} {
		assert.Equal(t, []float32{2, 2}, cell.ForgetBias().Tensor().Data(), "input and hidden path biases of 1 each")
	}
}

func TestKerasInitIsSeeded(t *testing.T) {
	backend := autodiff.New(cpu.New())
	a := recurrent.NewGRU(3, 3, backend)
	b := recurrent.NewGRU(3, 3, backend)

	train.KerasInit[testBackend](rand.New(rand.NewSource(1)), a)
	train.KerasInit[testBackend](rand.New(rand.NewSource(1)), b)

	for i, p := range a.Parameters() {
		assert.Equal(t, p.Tensor().Data(), b.Parameters()[i].Tensor().Data(), p.Name())
	}
}
