// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package schedule provides learning rate schedules stepped once per batch.
//
// A schedule is bound to an optimizer at construction and rewrites its
// learning rate on every Step:
//
//	optimizer := optim.NewAdam(model.Parameters(), optim.AdamConfig{LR: 1e-3}, backend)
//	sched := schedule.NewCosine(optimizer, epochs*batchesPerEpoch, 0)
//	for batch := range batches {
//	    // ... forward, backward, optimizer.Step(grads)
//	    sched.Step()
//	}
package schedule

import (
	"math"
)

// Optimizer is the part of an optimizer a schedule drives.
// Born's Adam and SGD implement it.
type Optimizer interface {
	GetLR() float32
	SetLR(lr float32)
}

// Schedule adjusts the learning rate of an optimizer over time.
type Schedule interface {
	// Step advances the schedule by one batch and updates the optimizer.
	Step()

	// LastLR returns the learning rate set by the most recent Step
	// (the initial rate before the first Step).
	LastLR() float32
}

// Func maps a step count to a learning rate given the initial rate.
type Func func(step int, baseLR float32) float32

// Lambda applies an arbitrary Func after every step.
type Lambda struct {
	opt    Optimizer
	fn     Func
	baseLR float32
	step   int
	last   float32
}

// NewLambda creates a schedule driven by fn. The optimizer's current
// learning rate is taken as the base rate.
func NewLambda(opt Optimizer, fn Func) *Lambda {
	base := opt.GetLR()
	return &Lambda{opt: opt, fn: fn, baseLR: base, last: base}
}

// Step advances the schedule.
func (l *Lambda) Step() {
	l.step++
	l.last = l.fn(l.step, l.baseLR)
	l.opt.SetLR(l.last)
}

// LastLR returns the most recently applied learning rate.
func (l *Lambda) LastLR() float32 {
	return l.last
}

// Steps returns the number of Step calls so far.
func (l *Lambda) Steps() int {
	return l.step
}

// NewCosine decays the learning rate from the optimizer's current rate to
// finalLR along a half cosine over decaySteps steps, then holds finalLR.
func NewCosine(opt Optimizer, decaySteps int, finalLR float32) *Lambda {
	if decaySteps <= 0 {
		decaySteps = 1
	}
	return NewLambda(opt, func(step int, baseLR float32) float32 {
		if step >= decaySteps {
			return finalLR
		}
		progress := float64(step) / float64(decaySteps)
		cosine := 0.5 * (1 + math.Cos(math.Pi*progress))
		return finalLR + float32(cosine)*(baseLR-finalLR)
	})
}

// NewExponential multiplies the learning rate by rate every decaySteps
// steps, continuously: lr = base * rate^(step/decaySteps).
func NewExponential(opt Optimizer, decaySteps int, rate float64) *Lambda {
	if decaySteps <= 0 {
		decaySteps = 1
	}
	return NewLambda(opt, func(step int, baseLR float32) float32 {
		return baseLR * float32(math.Pow(rate, float64(step)/float64(decaySteps)))
	})
}

// NewStep multiplies the learning rate by gamma once every stepSize steps.
func NewStep(opt Optimizer, stepSize int, gamma float64) *Lambda {
	if stepSize <= 0 {
		stepSize = 1
	}
	return NewLambda(opt, func(step int, baseLR float32) float32 {
		return baseLR * float32(math.Pow(gamma, float64(step/stepSize)))
	})
}
