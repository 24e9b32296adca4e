// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package metrics provides running accumulators for training and evaluation.
//
// Accumulators are updated once per batch and reset at the start of every
// epoch or evaluation pass:
//   - Mean: running mean of scalar values (used for the loss)
//   - Accuracy: classification accuracy of logits against int32 targets
//   - Collection: a set of named metrics updated together
//
// Example:
//
//	acc := metrics.NewAccuracy(backend)
//	acc.Update(logits.Raw(), labels.Raw())
//	fmt.Printf("accuracy=%.4f\n", acc.Compute())
package metrics

import (
	"fmt"
	"math"
	"sort"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// Metric is an accumulator over (prediction, target) batches.
type Metric interface {
	// Update accumulates one batch of predictions and targets.
	Update(pred, target *tensor.RawTensor)

	// Compute returns the aggregated value since the last Reset.
	Compute() float64

	// Reset clears the accumulated state.
	Reset()
}

// Mean is a running mean of scalar values.
//
// Every call to Add contributes one value with the given weight; the mean is
// sum(value*weight) / sum(weight). Compute returns 0 before the first Add.
type Mean struct {
	sum    float64
	weight float64
}

// NewMean creates an empty running mean.
func NewMean() *Mean {
	return &Mean{}
}

// Add accumulates value with weight 1.
func (m *Mean) Add(value float64) {
	m.AddWeighted(value, 1)
}

// AddWeighted accumulates value with the given weight.
func (m *Mean) AddWeighted(value, weight float64) {
	m.sum += value * weight
	m.weight += weight
}

// Update accumulates every element of pred. target is ignored.
func (m *Mean) Update(pred, _ *tensor.RawTensor) {
	for _, v := range pred.AsFloat32() {
		m.Add(float64(v))
	}
}

// Compute returns the current mean.
func (m *Mean) Compute() float64 {
	if m.weight == 0 {
		return 0
	}
	return m.sum / m.weight
}

// Reset clears the accumulated values.
func (m *Mean) Reset() {
	m.sum, m.weight = 0, 0
}

// Accuracy is the running classification accuracy of [N, C] logits
// against [N] int32 labels. Each batch is scored with nn.Accuracy and
// weighted by its size.
type Accuracy[B tensor.Backend] struct {
	backend B
	correct int
	total   int
}

// NewAccuracy creates an accuracy metric scoring batches on backend.
func NewAccuracy[B tensor.Backend](backend B) *Accuracy[B] {
	return &Accuracy[B]{backend: backend}
}

// Update accumulates one batch.
func (a *Accuracy[B]) Update(pred, target *tensor.RawTensor) {
	shape := pred.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("Accuracy.Update: expected 2D logits [N, C], got shape %v", shape))
	}
	n := shape[0]
	if target.NumElements() != n {
		panic(fmt.Sprintf("Accuracy.Update: %d predictions but %d targets", n, target.NumElements()))
	}
	if n == 0 {
		return
	}

	logits := tensor.New[float32](pred, a.backend)
	labels := tensor.New[int32](target, a.backend)
	a.correct += int(math.Round(float64(nn.Accuracy(logits, labels)) * float64(n)))
	a.total += n
}

// Compute returns correct / total, or 0 when nothing was counted.
func (a *Accuracy[B]) Compute() float64 {
	if a.total == 0 {
		return 0
	}
	return float64(a.correct) / float64(a.total)
}

// Reset clears the counters.
func (a *Accuracy[B]) Reset() {
	a.correct, a.total = 0, 0
}

// Collection updates, computes and resets a set of named metrics together.
type Collection struct {
	metrics map[string]Metric
}

// NewCollection creates a collection over the given named metrics.
// A nil map yields an empty collection.
func NewCollection(named map[string]Metric) *Collection {
	c := &Collection{metrics: make(map[string]Metric, len(named))}
	for name, m := range named {
		c.metrics[name] = m
	}
	return c
}

// Names returns the metric names in sorted order.
func (c *Collection) Names() []string {
	names := make([]string, 0, len(c.metrics))
	for name := range c.metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of metrics.
func (c *Collection) Len() int {
	return len(c.metrics)
}

// Update passes the batch to every metric.
func (c *Collection) Update(pred, target *tensor.RawTensor) {
	for _, m := range c.metrics {
		m.Update(pred, target)
	}
}

// Compute returns the current value of every metric.
func (c *Collection) Compute() map[string]float64 {
	values := make(map[string]float64, len(c.metrics))
	for name, m := range c.metrics {
		values[name] = m.Compute()
	}
	return values
}

// Reset resets every metric.
func (c *Collection) Reset() {
	for _, m := range c.metrics {
		m.Reset()
	}
}
