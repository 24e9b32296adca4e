// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package train

import (
	"fmt"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/tensor"
)

// Callback runs after every epoch with the model, the zero-based epoch
// index and the epoch's logs, including dev entries.
type Callback[B autodiff.BackwardCapable] func(m *Model[B], epoch int, logs Logs) error

// Fit trains the model for the given number of epochs and returns the logs
// of the last epoch.
//
// Every epoch resets the accumulators, runs TrainStep on each batch of
// train, evaluates dev (when not nil) into "dev_" entries, runs the
// callbacks, writes the "train" and "dev" scalar logs at step epoch+1 and
// prints one summary line when verbose is not Silent.
func (m *Model[B]) Fit(train DataSource, epochs int, dev DataSource, callbacks []Callback[B], verbose int) (Logs, error) {
	if !m.configured {
		return nil, ErrNotConfigured
	}
	if m.optimizer == nil {
		return nil, ErrMissingOptimizer
	}
	if m.loss == nil {
		return nil, ErrMissingLoss
	}

	tape := m.backend.GetTape()
	var logs Logs
	for epoch := 0; epoch < epochs; epoch++ {
		m.resetMetrics()
		start := m.now()
		message := fmt.Sprintf("Epoch=%d/%d", epoch+1, epochs)

		batches, err := train.Batches()
		if err != nil {
			return nil, fmt.Errorf("failed to load training batches: %w", err)
		}

		show := verbose == Progress || (verbose == ProgressOnTerminal && m.isTerminal(m.out))
		bar := newProgress(m.out, message, len(batches), show, m.now)

		tape.StartRecording()
		logs = m.CurrentLogs(true)
		for i, batch := range batches {
			moved, err := m.batchToDevice(batch)
			if err != nil {
				tape.StopRecording()
				bar.Close()
				return nil, err
			}
			logs = m.Steps.TrainStep(m, moved)
			bar.Update(i+1, logs)
		}
		tape.Clear()
		tape.StopRecording()
		bar.Close()

		if dev != nil {
			devLogs, err := m.Evaluate(dev, Silent)
			if err != nil {
				return nil, fmt.Errorf("dev evaluation: %w", err)
			}
			logs.merge(DevPrefix, devLogs)
		}

		for _, callback := range callbacks {
			if err := callback(m, epoch, logs); err != nil {
				return nil, fmt.Errorf("callback at epoch %d: %w", epoch+1, err)
			}
		}

		if err := m.AddLogs("train", logs.Train(), epoch+1); err != nil {
			return nil, err
		}
		if err := m.AddLogs("dev", logs.Dev(), epoch+1); err != nil {
			return nil, err
		}

		if verbose != Silent {
			fmt.Fprintf(m.out, "%s %.1fs %s\n", message, m.now().Sub(start).Seconds(), logs)
		}
	}
	return logs, nil
}

// Evaluate runs TestStep over every batch of source with gradient recording
// disabled and returns the aggregated logs.
func (m *Model[B]) Evaluate(source DataSource, verbose int) (Logs, error) {
	if !m.configured {
		return nil, ErrNotConfigured
	}
	if m.loss == nil {
		return nil, ErrMissingLoss
	}

	batches, err := source.Batches()
	if err != nil {
		return nil, fmt.Errorf("failed to load evaluation batches: %w", err)
	}

	defer m.pauseRecording()()
	m.resetMetrics()
	logs := m.CurrentLogs(false)
	for _, batch := range batches {
		moved, err := m.batchToDevice(batch)
		if err != nil {
			return nil, err
		}
		logs = m.Steps.TestStep(m, moved)
	}

	if verbose != Silent {
		fmt.Fprintf(m.out, "Evaluation %s\n", logs)
	}
	return logs, nil
}

// Predict returns the model output of every example of source, in order.
// Batch outputs are split into examples by Batch.Lengths.
func (m *Model[B]) Predict(source DataSource) ([]*tensor.Tensor[float32, B], error) {
	if !m.configured {
		return nil, ErrNotConfigured
	}

	batches, err := source.Batches()
	if err != nil {
		return nil, fmt.Errorf("failed to load prediction batches: %w", err)
	}

	defer m.pauseRecording()()
	var predictions []*tensor.Tensor[float32, B]
	for _, batch := range batches {
		moved, err := m.batchToDevice(batch)
		if err != nil {
			return nil, err
		}
		examples, err := m.split(m.Steps.PredictStep(m, moved), moved.Lengths)
		if err != nil {
			return nil, err
		}
		predictions = append(predictions, examples...)
	}
	return predictions, nil
}

// Array is a plain row-major copy of an example prediction.
type Array struct {
	Shape []int
	Data  []float32
}

// Row returns the i-th row of a 2D array.
func (a Array) Row(i int) []float32 {
	cols := a.Shape[len(a.Shape)-1]
	return a.Data[i*cols : (i+1)*cols]
}

// PredictArrays is Predict with every output copied to an Array.
func (m *Model[B]) PredictArrays(source DataSource) ([]Array, error) {
	predictions, err := m.Predict(source)
	if err != nil {
		return nil, err
	}
	arrays := make([]Array, len(predictions))
	for i, p := range predictions {
		data := make([]float32, p.NumElements())
		copy(data, p.Data())
		arrays[i] = Array{Shape: append([]int(nil), p.Shape()...), Data: data}
	}
	return arrays, nil
}

// pauseRecording stops the gradient tape and returns a function restoring
// its previous state.
func (m *Model[B]) pauseRecording() func() {
	tape := m.backend.GetTape()
	wasRecording := tape.IsRecording()
	tape.StopRecording()
	return func() {
		if wasRecording {
			tape.StartRecording()
		}
	}
}

// split cuts a [rows, ...] output into examples of lengths[i] rows. Nil
// lengths give one example per row with the leading dimension dropped.
func (m *Model[B]) split(out *tensor.Tensor[float32, B], lengths []int) ([]*tensor.Tensor[float32, B], error) {
	shape := out.Shape()
	if len(shape) == 0 {
		return nil, fmt.Errorf("%w: scalar prediction", ErrBadLengths)
	}
	rows := shape[0]
	rest := shape[1:]
	rowSize := 1
	for _, d := range rest {
		rowSize *= d
	}

	dropRow := lengths == nil
	if dropRow {
		lengths = make([]int, rows)
		for i := range lengths {
			lengths[i] = 1
		}
	}

	total := 0
	for _, n := range lengths {
		total += n
	}
	if total != rows {
		return nil, fmt.Errorf("%w: lengths sum to %d, output has %d rows", ErrBadLengths, total, rows)
	}

	data := out.Data()
	examples := make([]*tensor.Tensor[float32, B], 0, len(lengths))
	offset := 0
	for _, n := range lengths {
		if n <= 0 {
			return nil, fmt.Errorf("%w: empty example", ErrBadLengths)
		}
		var exShape tensor.Shape
		switch {
		case !dropRow:
			exShape = append(tensor.Shape{n}, rest...)
		case len(rest) > 0:
			exShape = append(tensor.Shape{}, rest...)
		default:
			exShape = tensor.Shape{1}
		}
		ex, err := tensor.FromSlice(data[offset*rowSize:(offset+n)*rowSize], exShape, m.backend)
		if err != nil {
			return nil, fmt.Errorf("failed to build example prediction: %w", err)
		}
		examples = append(examples, ex)
		offset += n
	}
	return examples, nil
}
