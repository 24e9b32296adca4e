// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package train provides a Keras-like fit / evaluate / predict harness for
// Born networks.
//
// A Model wraps a network, an autodiff backend and the training state
// (optimizer, optional learning rate schedule, loss, named metrics, log
// directory, device). It iterates batches, delegates the work of a single
// batch to overridable Steps, aggregates running loss and metric averages,
// and reports them to the console and to TensorBoard event files.
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	model := train.New[*autodiff.Backend[*cpu.Backend]](net, backend)
//	err := model.Configure(train.Config[*autodiff.Backend[*cpu.Backend]]{
//	    Optimizer: optim.NewAdam(net.Parameters(), optim.AdamConfig{LR: 1e-3}, backend),
//	    Loss:      train.CrossEntropy[*autodiff.Backend[*cpu.Backend]](),
//	    Metrics:   map[string]metrics.Metric{"accuracy": metrics.NewAccuracy(backend)},
//	    LogDir:    "logs/run",
//	})
//	logs, err := model.Fit(trainData, 10, devData, nil, 1)
package train

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/optim"
	"github.com/born-ml/born/tensor"
	"github.com/born-ml/morphotag/metrics"
	"github.com/born-ml/morphotag/schedule"
	"github.com/born-ml/morphotag/summary"
)

// Network is a trainable module with a single output.
type Network[B tensor.Backend] interface {
	// Forward computes the output for the batch inputs.
	Forward(inputs ...*tensor.RawTensor) *tensor.Tensor[float32, B]
	Parameters() []*nn.Parameter[B]
	StateDict() map[string]*tensor.RawTensor
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error
}

// Batch is one group of examples.
type Batch struct {
	// Inputs are passed to Network.Forward in order.
	Inputs []*tensor.RawTensor
	// Target holds the labels; nil for prediction.
	Target *tensor.RawTensor
	// Lengths holds the number of output rows of every example.
	// Nil means one row per example.
	Lengths []int
}

// DataSource yields the batches of one pass.
type DataSource interface {
	Batches() ([]*Batch, error)
}

// Batches is a fixed DataSource.
type Batches []*Batch

// Batches implements DataSource.
func (b Batches) Batches() ([]*Batch, error) {
	return b, nil
}

// Config holds the options recognized by Configure.
type Config[B tensor.Backend] struct {
	Optimizer optim.Optimizer
	// Schedule is stepped after every optimizer update. Optional.
	Schedule schedule.Schedule
	Loss     Loss[B]
	Metrics  map[string]metrics.Metric
	// LogDir receives one event file directory per log stream. Empty
	// disables scalar logging.
	LogDir string
	// Device is "auto", "cpu" or "webgpu". Empty means "auto".
	Device string
	// Output receives console messages. Defaults to os.Stdout.
	Output io.Writer
}

// Model couples a network with its training state.
type Model[B autodiff.BackwardCapable] struct {
	Net Network[B]

	// Steps performs the work of single batches. Defaults to DefaultSteps;
	// replace it to customize one step without rewriting the loops.
	Steps Steps[B]

	backend B

	optimizer  optim.Optimizer
	schedule   schedule.Schedule
	loss       Loss[B]
	lossMetric *metrics.Mean
	metrics    *metrics.Collection
	logDir     string
	writers    map[string]*summary.Writer
	device     tensor.Device
	out        io.Writer
	configured bool

	now        func() time.Time
	isTerminal func(io.Writer) bool
}

// New wraps net for training on backend. The model must be configured
// before use.
func New[B autodiff.BackwardCapable](net Network[B], backend B) *Model[B] {
	return &Model[B]{
		Net:        net,
		Steps:      DefaultSteps[B]{},
		backend:    backend,
		lossMetric: metrics.NewMean(),
		metrics:    metrics.NewCollection(nil),
		writers:    make(map[string]*summary.Writer),
		out:        os.Stdout,
		now:        time.Now,
		isTerminal: isTerminal,
	}
}

// Configure stores the training options and resolves the device.
//
// Parameters are created on the backend's device when the network is
// built, so Configure verifies that every parameter already lives on the
// selected device. Batches are copied to that device during every pass.
func (m *Model[B]) Configure(cfg Config[B]) error {
	device, err := SelectDevice(cfg.Device)
	if err != nil {
		return fmt.Errorf("failed to select device: %w", err)
	}
	if err := m.checkPlacement(device); err != nil {
		return err
	}

	m.optimizer = cfg.Optimizer
	m.schedule = cfg.Schedule
	m.loss = cfg.Loss
	m.lossMetric.Reset()
	m.metrics = metrics.NewCollection(cfg.Metrics)
	m.logDir = cfg.LogDir
	m.device = device
	if cfg.Output != nil {
		m.out = cfg.Output
	}
	m.configured = true
	return nil
}

func (m *Model[B]) checkPlacement(device tensor.Device) error {
	if got := m.backend.Device(); got != device {
		return fmt.Errorf("%w: backend %s runs on %v, selected %v",
			ErrDeviceMismatch, m.backend.Name(), got, device)
	}
	for _, p := range m.Net.Parameters() {
		if got := p.Tensor().Device(); got != device {
			return fmt.Errorf("%w: parameter %s lives on %v, selected %v",
				ErrDeviceMismatch, p.Name(), got, device)
		}
	}
	return nil
}

// Backend returns the backend the model runs on.
func (m *Model[B]) Backend() B {
	return m.backend
}

// Device returns the selected device.
func (m *Model[B]) Device() tensor.Device {
	return m.device
}

// Optimizer returns the configured optimizer.
func (m *Model[B]) Optimizer() optim.Optimizer {
	return m.optimizer
}

// Schedule returns the configured schedule, or nil.
func (m *Model[B]) Schedule() schedule.Schedule {
	return m.schedule
}

// Loss returns the configured loss.
func (m *Model[B]) Loss() Loss[B] {
	return m.loss
}

// LossMetric returns the running mean of the loss.
func (m *Model[B]) LossMetric() *metrics.Mean {
	return m.lossMetric
}

// Metrics returns the configured metrics.
func (m *Model[B]) Metrics() *metrics.Collection {
	return m.metrics
}

// CurrentLogs returns the running loss, the learning rate when a schedule
// is configured and training is set, and every metric.
func (m *Model[B]) CurrentLogs(training bool) Logs {
	logs := Logs{"loss": m.lossMetric.Compute()}
	if training && m.schedule != nil {
		logs["lr"] = float64(m.schedule.LastLR())
	}
	for name, value := range m.metrics.Compute() {
		logs[name] = value
	}
	return logs
}

func (m *Model[B]) resetMetrics() {
	m.lossMetric.Reset()
	m.metrics.Reset()
}

// batchToDevice copies the batch tensors to the selected device.
func (m *Model[B]) batchToDevice(batch *Batch) (*Batch, error) {
	moved := &Batch{Inputs: make([]*tensor.RawTensor, len(batch.Inputs)), Lengths: batch.Lengths}
	for i, raw := range batch.Inputs {
		r, err := toDevice(raw, m.device)
		if err != nil {
			return nil, err
		}
		moved.Inputs[i] = r
	}
	target, err := toDevice(batch.Target, m.device)
	if err != nil {
		return nil, err
	}
	moved.Target = target
	return moved, nil
}
