//go:build windows

// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package train

import "github.com/born-ml/born/backend/webgpu"

// AcceleratorAvailable reports whether a WebGPU adapter can be opened.
func AcceleratorAvailable() bool {
	return webgpu.IsAvailable()
}
