// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package train_test

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/optim"
	"github.com/born-ml/born/tensor"
	"github.com/born-ml/morphotag/internal/checkpoint"
	"github.com/born-ml/morphotag/metrics"
	"github.com/born-ml/morphotag/schedule"
	"github.com/born-ml/morphotag/summary"
	"github.com/born-ml/morphotag/train"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testBackend = *autodiff.Backend[*cpu.Backend]

// linearNet is a single dense layer over one float input.
type linearNet struct {
	layer   *nn.Linear[testBackend]
	backend testBackend
}

func newLinearNet(backend testBackend) *linearNet {
	return &linearNet{layer: nn.NewLinear(2, 2, backend), backend: backend}
}

func (n *linearNet) Forward(inputs ...*tensor.RawTensor) *tensor.Tensor[float32, testBackend] {
	return n.layer.Forward(tensor.New[float32](inputs[0], n.backend))
}

func (n *linearNet) Parameters() []*nn.Parameter[testBackend] { return n.layer.Parameters() }

func (n *linearNet) StateDict() map[string]*tensor.RawTensor { return n.layer.StateDict() }

func (n *linearNet) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return n.layer.LoadStateDict(stateDict)
}

func rawFloat32(t *testing.T, shape tensor.Shape, data []float32) *tensor.RawTensor {
	t.Helper()
	raw, err := tensor.NewRaw(shape, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	copy(raw.AsFloat32(), data)
	return raw
}

func rawInt32(t *testing.T, data []int32) *tensor.RawTensor {
	t.Helper()
	raw, err := tensor.NewRaw(tensor.Shape{len(data)}, tensor.Int32, tensor.CPU)
	require.NoError(t, err)
	copy(raw.AsInt32(), data)
	return raw
}

// separable returns batches of points labelled by the sign of x0.
func separable(t *testing.T) train.Batches {
	t.Helper()
	return train.Batches{
		{
			Inputs: []*tensor.RawTensor{rawFloat32(t, tensor.Shape{4, 2}, []float32{-2, 0.5, -1, -1, 1, 0.3, 2, -0.4})},
			Target: rawInt32(t, []int32{0, 0, 1, 1}),
		},
		{
			Inputs: []*tensor.RawTensor{rawFloat32(t, tensor.Shape{2, 2}, []float32{-1.5, 0.1, 1.5, 0.2})},
			Target: rawInt32(t, []int32{0, 1}),
		},
	}
}

func newModel(t *testing.T, out *bytes.Buffer, logDir string) (*train.Model[testBackend], *linearNet) {
	t.Helper()
	backend := autodiff.New(cpu.New())
	net := newLinearNet(backend)
	model := train.New[testBackend](net, backend)
	require.NoError(t, model.Configure(train.Config[testBackend]{
		Optimizer: optim.NewSGD(net.Parameters(), optim.SGDConfig{LR: 0.5}, backend),
		Loss:      train.CrossEntropy[testBackend](),
		Metrics:   map[string]metrics.Metric{"accuracy": metrics.NewAccuracy(backend)},
		LogDir:    logDir,
		Device:    train.DeviceCPU,
		Output:    out,
	}))
	return model, net
}

func TestUseBeforeConfigure(t *testing.T) {
	backend := autodiff.New(cpu.New())
	model := train.New[testBackend](newLinearNet(backend), backend)

	_, err := model.Fit(separable(t), 1, nil, nil, train.Silent)
	assert.ErrorIs(t, err, train.ErrNotConfigured)
	_, err = model.Evaluate(separable(t), train.Silent)
	assert.ErrorIs(t, err, train.ErrNotConfigured)
	_, err = model.Predict(separable(t))
	assert.ErrorIs(t, err, train.ErrNotConfigured)
}

func TestConfigureRejectsUnknownDevice(t *testing.T) {
	backend := autodiff.New(cpu.New())
	model := train.New[testBackend](newLinearNet(backend), backend)
	err := model.Configure(train.Config[testBackend]{Device: "tpu"})
	assert.ErrorIs(t, err, train.ErrUnknownDevice)
}

func TestFitWithoutOptimizer(t *testing.T) {
	backend := autodiff.New(cpu.New())
	model := train.New[testBackend](newLinearNet(backend), backend)
	require.NoError(t, model.Configure(train.Config[testBackend]{
		Loss:   train.CrossEntropy[testBackend](),
		Device: train.DeviceCPU,
	}))
	_, err := model.Fit(separable(t), 1, nil, nil, train.Silent)
	assert.ErrorIs(t, err, train.ErrMissingOptimizer)
}

func TestFitReducesLoss(t *testing.T) {
	var out bytes.Buffer
	model, _ := newModel(t, &out, "")
	data := separable(t)

	var epochs []int
	var losses []float64
	record := func(_ *train.Model[testBackend], epoch int, logs train.Logs) error {
		epochs = append(epochs, epoch)
		losses = append(losses, logs["loss"])
		return nil
	}

	logs, err := model.Fit(data, 20, data, []train.Callback[testBackend]{record}, train.Silent)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19}, epochs)
	assert.Less(t, losses[len(losses)-1], losses[0])
	assert.Contains(t, logs, "loss")
	assert.Contains(t, logs, "accuracy")
	assert.Contains(t, logs, "dev_loss")
	assert.Contains(t, logs, "dev_accuracy")
	assert.NotContains(t, logs, "lr")
	assert.Empty(t, out.String())
}

// recordingSteps keeps the loss of every evaluated batch.
type recordingSteps struct {
	train.DefaultSteps[testBackend]
	losses []float64
}

func (s *recordingSteps) TestStep(m *train.Model[testBackend], batch *train.Batch) train.Logs {
	pred := m.Net.Forward(batch.Inputs...)
	s.losses = append(s.losses, float64(m.Loss()(pred, batch.Target).AsFloat32()[0]))
	return s.DefaultSteps.TestStep(m, batch)
}

func TestEvaluateLossIsRunningMean(t *testing.T) {
	model, _ := newModel(t, &bytes.Buffer{}, "")
	steps := &recordingSteps{}
	model.Steps = steps

	logs, err := model.Evaluate(separable(t), train.Silent)
	require.NoError(t, err)
	require.Len(t, steps.losses, 2)

	var mean float64
	for i, l := range steps.losses {
		mean += (l - mean) / float64(i+1)
	}
	assert.InDelta(t, mean, logs["loss"], 1e-6)

	// Accumulators restart on every pass.
	again, err := model.Evaluate(separable(t), train.Silent)
	require.NoError(t, err)
	assert.InDelta(t, logs["loss"], again["loss"], 1e-6)
	assert.InDelta(t, logs["accuracy"], again["accuracy"], 1e-12)
}

func TestEvaluateLeavesParametersUnchanged(t *testing.T) {
	model, net := newModel(t, &bytes.Buffer{}, "")

	snapshot := func() map[string][]float32 {
		out := make(map[string][]float32)
		for name, raw := range net.StateDict() {
			out[name] = append([]float32(nil), raw.AsFloat32()...)
		}
		return out
	}
	before := snapshot()

	_, err := model.Evaluate(separable(t), train.Silent)
	require.NoError(t, err)
	assert.Equal(t, before, snapshot())
}

func TestEvaluatePrintsSummary(t *testing.T) {
	var out bytes.Buffer
	model, _ := newModel(t, &out, "")

	_, err := model.Evaluate(separable(t), train.Progress)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out.String(), "Evaluation loss="))
	assert.Contains(t, out.String(), " accuracy=")
}

func TestFitConsoleOutput(t *testing.T) {
	tests := []struct {
		name         string
		verbose      int
		wantEpoch    bool
		wantProgress bool
	}{
		{"silent", train.Silent, false, false},
		{"progress", train.Progress, true, true},
		{"progress only on terminal", train.ProgressOnTerminal, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			model, _ := newModel(t, &out, "")

			_, err := model.Fit(separable(t), 2, separable(t), nil, tt.verbose)
			require.NoError(t, err)

			text := out.String()
			assert.Equal(t, tt.wantEpoch, strings.Contains(text, "Epoch=2/2 "))
			assert.Equal(t, tt.wantEpoch, strings.Contains(text, "dev_loss="))
			assert.Equal(t, tt.wantProgress, strings.Contains(text, "\r"))
		})
	}
}

func TestFitResetsAccumulatorsEveryEpoch(t *testing.T) {
	backend := autodiff.New(cpu.New())
	net := newLinearNet(backend)
	crossEntropy := train.CrossEntropy[testBackend]()
	var batchLosses []float64
	model := train.New[testBackend](net, backend)
	require.NoError(t, model.Configure(train.Config[testBackend]{
		Optimizer: optim.NewSGD(net.Parameters(), optim.SGDConfig{LR: 0.5}, backend),
		Loss: func(pred *tensor.Tensor[float32, testBackend], target *tensor.RawTensor) *tensor.RawTensor {
			loss := crossEntropy(pred, target)
			batchLosses = append(batchLosses, float64(loss.AsFloat32()[0]))
			return loss
		},
		Device: train.DeviceCPU,
	}))

	var epochLosses []float64
	record := func(_ *train.Model[testBackend], epoch int, logs train.Logs) error {
		require.Len(t, batchLosses, 2*(epoch+1))
		epochLosses = append(epochLosses, logs["loss"])
		return nil
	}

	const epochs = 3
	_, err := model.Fit(separable(t), epochs, nil, []train.Callback[testBackend]{record}, train.Silent)
	require.NoError(t, err)
	require.Len(t, epochLosses, epochs)

	for epoch, got := range epochLosses {
		first, second := batchLosses[2*epoch], batchLosses[2*epoch+1]
		assert.InDelta(t, (first+second)/2, got, 1e-6, "epoch %d", epoch+1)
	}
	assert.NotEqual(t, epochLosses[0], epochLosses[epochs-1], "training lowers the loss")
}

func TestFitWritesScalarLogs(t *testing.T) {
	logDir := t.TempDir()
	model, _ := newModel(t, &bytes.Buffer{}, logDir)

	_, err := model.Fit(separable(t), 2, separable(t), nil, train.Silent)
	require.NoError(t, err)
	require.NoError(t, model.Close())

	trainScalars, err := summary.ReadDir(filepath.Join(logDir, "train"))
	require.NoError(t, err)
	devScalars, err := summary.ReadDir(filepath.Join(logDir, "dev"))
	require.NoError(t, err)

	tags := func(scalars []summary.Scalar) map[string][]int64 {
		out := make(map[string][]int64)
		for _, s := range scalars {
			out[s.Tag] = append(out[s.Tag], s.Step)
		}
		return out
	}
	assert.Equal(t, map[string][]int64{"loss": {1, 2}, "accuracy": {1, 2}}, tags(trainScalars))
	assert.Equal(t, map[string][]int64{"loss": {1, 2}, "accuracy": {1, 2}}, tags(devScalars))
}

func TestAddLogsWithoutLogDir(t *testing.T) {
	model, _ := newModel(t, &bytes.Buffer{}, "")
	assert.NoError(t, model.AddLogs("train", train.Logs{"loss": 1}, 1))
	_, err := model.Writer("train")
	assert.Error(t, err)
}

func TestWriterIsCreatedOnce(t *testing.T) {
	model, _ := newModel(t, &bytes.Buffer{}, t.TempDir())
	a, err := model.Writer("train")
	require.NoError(t, err)
	b, err := model.Writer("train")
	require.NoError(t, err)
	assert.Same(t, a, b)
	require.NoError(t, model.Close())
}

func TestScheduleAddsLearningRate(t *testing.T) {
	backend := autodiff.New(cpu.New())
	net := newLinearNet(backend)
	opt := optim.NewSGD(net.Parameters(), optim.SGDConfig{LR: 0.1}, backend)
	model := train.New[testBackend](net, backend)
	require.NoError(t, model.Configure(train.Config[testBackend]{
		Optimizer: opt,
		Schedule:  schedule.NewStep(opt, 1, 0.5),
		Loss:      train.CrossEntropy[testBackend](),
		Device:    train.DeviceCPU,
	}))

	logs, err := model.Fit(separable(t), 1, nil, nil, train.Silent)
	require.NoError(t, err)
	// Two batches halve the rate twice.
	assert.InDelta(t, 0.025, logs["lr"], 1e-7)
	assert.InDelta(t, 0.025, opt.GetLR(), 1e-7)
}

func TestSaveLoadWeightsReproducesPredictions(t *testing.T) {
	model, _ := newModel(t, &bytes.Buffer{}, "")
	_, err := model.Fit(separable(t), 3, nil, nil, train.Silent)
	require.NoError(t, err)

	want, err := model.PredictArrays(separable(t))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "weights.safetensors")
	require.NoError(t, model.SaveWeights(path))

	restored, _ := newModel(t, &bytes.Buffer{}, "")
	require.NoError(t, restored.LoadWeights(path, train.DeviceCPU))
	got, err := restored.PredictArrays(separable(t))
	require.NoError(t, err)

	assert.Equal(t, want, got)
}

func TestLoadWeightsRejectsForeignFile(t *testing.T) {
	model, net := newModel(t, &bytes.Buffer{}, "")
	path := filepath.Join(t.TempDir(), "other.safetensors")
	require.NoError(t, checkpoint.Save(path, net.StateDict(), map[string]string{"format": "other"}))

	err := model.LoadWeights(path, train.DeviceCPU)
	assert.ErrorIs(t, err, train.ErrNotWeightsFile)

	err = model.LoadWeights(filepath.Join(t.TempDir(), "missing.safetensors"), train.DeviceCPU)
	assert.Error(t, err)
}

func TestPredictSplitsExamples(t *testing.T) {
	model, _ := newModel(t, &bytes.Buffer{}, "")
	inputs := []*tensor.RawTensor{rawFloat32(t, tensor.Shape{4, 2}, []float32{1, 2, 3, 4, 5, 6, 7, 8})}

	perRow, err := model.PredictArrays(train.Batches{{Inputs: inputs}})
	require.NoError(t, err)
	require.Len(t, perRow, 4)
	assert.Equal(t, []int{2}, perRow[0].Shape)

	grouped, err := model.PredictArrays(train.Batches{{Inputs: inputs, Lengths: []int{1, 3}}})
	require.NoError(t, err)
	require.Len(t, grouped, 2)
	assert.Equal(t, []int{1, 2}, grouped[0].Shape)
	assert.Equal(t, []int{3, 2}, grouped[1].Shape)
	assert.Equal(t, perRow[3].Data, grouped[1].Row(2))

	_, err = model.Predict(train.Batches{{Inputs: inputs, Lengths: []int{2, 3}}})
	assert.ErrorIs(t, err, train.ErrBadLengths)
}

func TestSaveBestWeights(t *testing.T) {
	model, _ := newModel(t, &bytes.Buffer{}, "")
	path := filepath.Join(t.TempDir(), "best.safetensors")

	_, err := train.SaveBestWeights[testBackend](path, "dev_loss", "sideways")
	assert.Error(t, err)

	best, err := train.SaveBestWeights[testBackend](path, "dev_loss", train.Min)
	require.NoError(t, err)

	require.NoError(t, best(model, 0, train.Logs{"dev_loss": 1.0}))
	assert.FileExists(t, path)

	assert.Error(t, best(model, 1, train.Logs{"loss": 1.0}))
}
