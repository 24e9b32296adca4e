// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package train

import (
	"errors"
	"fmt"

	"github.com/born-ml/born/loader"
	"github.com/born-ml/born/tensor"
	"github.com/born-ml/morphotag/internal/checkpoint"
)

const weightsFormat = "morphotag"

// ErrNotWeightsFile is returned by LoadWeights for SafeTensors files not
// written by SaveWeights.
var ErrNotWeightsFile = errors.New("not a morphotag weights file")

// SaveWeights writes the full parameter state of the network to path in
// the SafeTensors format. Use a .safetensors extension so that LoadWeights
// can read it back.
func (m *Model[B]) SaveWeights(path string) error {
	if err := checkpoint.Save(path, m.Net.StateDict(), map[string]string{
		"format":  weightsFormat,
		"backend": m.backend.Name(),
	}); err != nil {
		return fmt.Errorf("failed to save weights: %w", err)
	}
	return nil
}

// LoadWeights restores the parameter state saved by SaveWeights. The
// device is resolved like Config.Device and must match the backend.
func (m *Model[B]) LoadWeights(path, device string) error {
	dev, err := SelectDevice(device)
	if err != nil {
		return fmt.Errorf("failed to select device: %w", err)
	}
	if err := m.checkPlacement(dev); err != nil {
		return err
	}

	reader, err := loader.OpenModel(path)
	if err != nil {
		return fmt.Errorf("failed to open weights: %w", err)
	}
	defer func() {
		_ = reader.Close()
	}()

	if format, _ := reader.Metadata()["format"].(string); format != weightsFormat {
		return fmt.Errorf("%w: %s has format %q", ErrNotWeightsFile, path, format)
	}

	names := reader.TensorNames()
	state := make(map[string]*tensor.RawTensor, len(names))
	for _, name := range names {
		raw, err := reader.LoadTensor(name, m.backend)
		if err != nil {
			return fmt.Errorf("failed to load tensor %s: %w", name, err)
		}
		state[name] = raw
	}

	if err := m.Net.LoadStateDict(state); err != nil {
		return fmt.Errorf("failed to restore weights: %w", err)
	}
	m.device = dev
	return nil
}
