// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package train

import (
	"fmt"
	"strings"

	"github.com/born-ml/born/tensor"
)

// Device names accepted by Config.Device and SelectDevice.
const (
	DeviceAuto   = "auto"
	DeviceCPU    = "cpu"
	DeviceWebGPU = "webgpu"
)

// SelectDevice resolves a device name. "auto" (or "") picks the WebGPU
// accelerator when one is available and the CPU otherwise.
func SelectDevice(name string) (tensor.Device, error) {
	return selectDevice(name, AcceleratorAvailable)
}

func selectDevice(name string, available func() bool) (tensor.Device, error) {
	switch strings.ToLower(name) {
	case "", DeviceAuto:
		if available() {
			return tensor.WebGPU, nil
		}
		return tensor.CPU, nil
	case DeviceCPU:
		return tensor.CPU, nil
	case DeviceWebGPU, "gpu":
		if !available() {
			return tensor.CPU, fmt.Errorf("%w: %s", ErrDeviceUnavailable, name)
		}
		return tensor.WebGPU, nil
	default:
		return tensor.CPU, fmt.Errorf("%w: %q", ErrUnknownDevice, name)
	}
}

// toDevice returns raw itself when it already lives on device, and a copy
// placed on device otherwise.
func toDevice(raw *tensor.RawTensor, device tensor.Device) (*tensor.RawTensor, error) {
	if raw == nil || raw.Device() == device {
		return raw, nil
	}
	moved, err := tensor.NewRaw(raw.Shape(), raw.DType(), device)
	if err != nil {
		return nil, fmt.Errorf("failed to move tensor to %v: %w", device, err)
	}
	copy(moved.Data(), raw.Data())
	return moved, nil
}
