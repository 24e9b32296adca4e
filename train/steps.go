// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package train

import (
	"fmt"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/tensor"
)

// Loss reduces a prediction and its target to a scalar loss tensor.
type Loss[B tensor.Backend] func(pred *tensor.Tensor[float32, B], target *tensor.RawTensor) *tensor.RawTensor

// crossEntropyBackend is implemented by Born's autodiff backend.
type crossEntropyBackend interface {
	CrossEntropy(logits, targets *tensor.RawTensor) *tensor.RawTensor
}

// CrossEntropy returns the mean cross-entropy of [N, C] logits against
// [N] int32 class indices. The backend must provide CrossEntropy, which
// Born's autodiff backend records on the gradient tape.
func CrossEntropy[B tensor.Backend]() Loss[B] {
	return func(pred *tensor.Tensor[float32, B], target *tensor.RawTensor) *tensor.RawTensor {
		backend, ok := any(pred.Backend()).(crossEntropyBackend)
		if !ok {
			panic(fmt.Sprintf("train.CrossEntropy: backend %s does not support CrossEntropy", pred.Backend().Name()))
		}
		return backend.CrossEntropy(pred.Raw(), target)
	}
}

// Steps performs the work of one batch. Each method returns the running
// logs after the batch.
//
// To customize a single step, embed DefaultSteps and override the method:
//
//	type clippedSteps struct {
//	    train.DefaultSteps[B]
//	}
//
//	func (clippedSteps) TrainStep(m *train.Model[B], batch *train.Batch) train.Logs { ... }
//
//	model.Steps = clippedSteps{}
type Steps[B autodiff.BackwardCapable] interface {
	TrainStep(m *Model[B], batch *Batch) Logs
	TestStep(m *Model[B], batch *Batch) Logs
	PredictStep(m *Model[B], batch *Batch) *tensor.Tensor[float32, B]
}

// DefaultSteps implements the standard single-batch behaviour.
type DefaultSteps[B autodiff.BackwardCapable] struct{}

// TrainStep zeroes the gradients, runs the forward pass and the loss,
// backpropagates, applies one optimizer update and one schedule update,
// and accumulates loss and metrics.
func (DefaultSteps[B]) TrainStep(m *Model[B], batch *Batch) Logs {
	backend := m.Backend()
	tape := backend.GetTape()

	m.Optimizer().ZeroGrad()
	pred := m.Net.Forward(batch.Inputs...)
	loss := m.Loss()(pred, batch.Target)

	outputGrad, err := tensor.NewRaw(loss.Shape(), loss.DType(), backend.Device())
	if err != nil {
		panic(err)
	}
	for i := range outputGrad.AsFloat32() {
		outputGrad.AsFloat32()[i] = 1
	}
	grads := tape.Backward(outputGrad, backend)
	m.Optimizer().Step(grads)
	tape.Clear()

	if s := m.Schedule(); s != nil {
		s.Step()
	}

	m.LossMetric().Update(loss, nil)
	m.Metrics().Update(pred.Raw(), batch.Target)
	return m.CurrentLogs(true)
}

// TestStep runs the forward pass and the loss and accumulates them.
func (DefaultSteps[B]) TestStep(m *Model[B], batch *Batch) Logs {
	pred := m.Net.Forward(batch.Inputs...)
	m.LossMetric().Update(m.Loss()(pred, batch.Target), nil)
	m.Metrics().Update(pred.Raw(), batch.Target)
	return m.CurrentLogs(false)
}

// PredictStep runs the forward pass.
func (DefaultSteps[B]) PredictStep(m *Model[B], batch *Batch) *tensor.Tensor[float32, B] {
	return m.Net.Forward(batch.Inputs...)
}
