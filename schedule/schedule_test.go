package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeOptimizer struct {
	lr  float32
	set []float32
}

func (f *fakeOptimizer) GetLR() float32 { return f.lr }

func (f *fakeOptimizer) SetLR(lr float32) {
	f.lr = lr
	f.set = append(f.set, lr)
}

func TestCosine(t *testing.T) {
	opt := &fakeOptimizer{lr: 1.0}
	s := NewCosine(opt, 4, 0)

	assert.Equal(t, float32(1.0), s.LastLR(), "before the first step")

	want := []float32{0.8535534, 0.5, 0.14644662, 0, 0}
	for i, w := range want {
		s.Step()
		assert.InDelta(t, w, s.LastLR(), 1e-6, "step %d", i+1)
		assert.Equal(t, s.LastLR(), opt.lr, "optimizer follows the schedule")
	}
	assert.Equal(t, 5, s.Steps())
}

func TestCosineFloor(t *testing.T) {
	opt := &fakeOptimizer{lr: 0.1}
	s := NewCosine(opt, 2, 0.01)
	s.Step()
	s.Step()
	s.Step()
	assert.InDelta(t, 0.01, s.LastLR(), 1e-7)
}

func TestExponential(t *testing.T) {
	opt := &fakeOptimizer{lr: 1.0}
	s := NewExponential(opt, 2, 0.5)

	s.Step()
	assert.InDelta(t, 0.70710677, s.LastLR(), 1e-6)
	s.Step()
	assert.InDelta(t, 0.5, s.LastLR(), 1e-6)
	s.Step()
	s.Step()
	assert.InDelta(t, 0.25, s.LastLR(), 1e-6)
}

func TestStep(t *testing.T) {
	opt := &fakeOptimizer{lr: 1.0}
	s := NewStep(opt, 2, 0.1)

	var got []float32
	for i := 0; i < 5; i++ {
		s.Step()
		got = append(got, s.LastLR())
	}
	assert.InDeltaSlice(t, []float32{1, 0.1, 0.1, 0.01, 0.01}, got, 1e-6)
	assert.Equal(t, got, opt.set)
}

func TestLambdaUsesInitialRateAsBase(t *testing.T) {
	opt := &fakeOptimizer{lr: 2.0}
	s := NewLambda(opt, func(step int, baseLR float32) float32 {
		return baseLR / float32(step+1)
	})
	s.Step()
	s.Step()
	assert.InDelta(t, 2.0/3.0, s.LastLR(), 1e-6)
}
