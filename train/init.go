// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package train

import (
	"math/rand"
	"strings"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
	"github.com/born-ml/morphotag/internal/initializer"
	"github.com/born-ml/morphotag/recurrent"
)

// embeddingLimit bounds the uniform embedding initializer.
const embeddingLimit = 0.05

// forgetBias is the initial LSTM forget-gate bias: 1 for the input path
// plus 1 for the hidden path, folded into the single per-gate bias.
const forgetBias = 2

// Container is a module made of submodules. KerasInit descends into it.
type Container interface {
	Modules() []any
}

// KerasInit re-initializes the parameters of modules with the Keras
// defaults:
//
//   - Linear: Xavier uniform weight, zero bias
//   - Embedding: uniform in [-0.05, 0.05]
//   - LSTM, GRU: Xavier uniform input weights, orthogonal hidden weights,
//     zero biases, and forget-gate bias 2 for the LSTM
//
// Containers are walked recursively; other modules are left untouched.
func KerasInit[B tensor.Backend](rng *rand.Rand, modules ...any) {
	for _, module := range modules {
		switch m := module.(type) {
		case *nn.Linear[B]:
			w := m.Weight().Tensor()
			shape := w.Shape()
			initializer.XavierUniform(w.Data(), shape[1], shape[0], rng)
			if b := m.Bias(); b != nil {
				initializer.Zeros(b.Tensor().Data())
			}
		case *nn.Embedding[B]:
			initializer.Uniform(m.Weight.Tensor().Data(), embeddingLimit, rng)
		case *recurrent.LSTM[B]:
			initRecurrent(m.Parameters(), rng)
			initializer.Constant(m.ForgetBias().Tensor().Data(), forgetBias)
		case *recurrent.GRU[B]:
			initRecurrent(m.Parameters(), rng)
		case *recurrent.Bidirectional[B]:
			KerasInit[B](rng, m.Forward, m.Backward)
		case Container:
			KerasInit[B](rng, m.Modules()...)
		}
	}
}

func initRecurrent[B tensor.Backend](params []*nn.Parameter[B], rng *rand.Rand) {
	for _, p := range params {
		data := p.Tensor().Data()
		shape := p.Tensor().Shape()
		switch name := p.Name(); {
		case strings.HasPrefix(name, recurrent.WeightIH):
			initializer.XavierUniform(data, shape[1], shape[0], rng)
		case strings.HasPrefix(name, recurrent.WeightHH):
			initializer.Orthogonal(data, shape[0], shape[1], rng)
		case strings.HasPrefix(name, recurrent.Bias):
			initializer.Zeros(data)
		}
	}
}
