//go:build !windows

package main

import (
	"fmt"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/morphotag/train"
)

// runOnDevice runs on the CPU, the only device outside Windows.
func runOnDevice(a *args, logDir string) error {
	if _, err := train.SelectDevice(a.Device); err != nil {
		return fmt.Errorf("failed to select device: %w", err)
	}
	return run(a, autodiff.New(cpu.New()), logDir)
}
