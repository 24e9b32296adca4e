//go:build !windows

// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package train

// AcceleratorAvailable reports whether a WebGPU adapter can be opened.
// The Born WebGPU backend is only built on Windows.
func AcceleratorAvailable() bool {
	return false
}
