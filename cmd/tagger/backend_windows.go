//go:build windows

package main

import (
	"fmt"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/backend/webgpu"
	"github.com/born-ml/born/tensor"
	"github.com/born-ml/morphotag/train"
)

// runOnDevice builds the backend for the selected device and runs on it.
func runOnDevice(a *args, logDir string) error {
	device, err := train.SelectDevice(a.Device)
	if err != nil {
		return fmt.Errorf("failed to select device: %w", err)
	}
	if device != tensor.WebGPU {
		return run(a, autodiff.New(cpu.New()), logDir)
	}

	gpu, err := webgpu.New()
	if err != nil {
		return fmt.Errorf("failed to create WebGPU backend: %w", err)
	}
	defer gpu.Release()
	fmt.Printf("GPU backend: %s\n", gpu.Name())
	return run(a, autodiff.New(gpu), logDir)
}
