// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package train

import "errors"

// Common errors.
var (
	// ErrNotConfigured is returned when a pass starts before Configure.
	ErrNotConfigured = errors.New("model is not configured")

	// ErrMissingOptimizer is returned by Fit when no optimizer was configured.
	ErrMissingOptimizer = errors.New("no optimizer configured")

	// ErrMissingLoss is returned by Fit and Evaluate when no loss was configured.
	ErrMissingLoss = errors.New("no loss configured")

	// ErrUnknownDevice is returned for a device name other than auto, cpu or webgpu.
	ErrUnknownDevice = errors.New("unknown device")

	// ErrDeviceUnavailable is returned when the requested accelerator is missing.
	ErrDeviceUnavailable = errors.New("device unavailable")

	// ErrDeviceMismatch is returned when parameters live on another device
	// than the one selected.
	ErrDeviceMismatch = errors.New("device mismatch")

	// ErrBadLengths is returned when per-example lengths do not cover the
	// rows of a prediction.
	ErrBadLengths = errors.New("example lengths do not match prediction rows")
)
