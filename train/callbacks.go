// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package train

import (
	"fmt"
	"math"

	"github.com/born-ml/born/autodiff"
)

// Improvement directions for SaveBestWeights.
const (
	Min = "min"
	Max = "max"
)

// SaveBestWeights returns a callback saving the weights to path whenever
// the monitored log value improves. mode is Min or Max.
func SaveBestWeights[B autodiff.BackwardCapable](path, monitor, mode string) (Callback[B], error) {
	if mode != Min && mode != Max {
		return nil, fmt.Errorf("unknown mode %q, expected %q or %q", mode, Min, Max)
	}
	best := math.Inf(1)
	if mode == Max {
		best = math.Inf(-1)
	}
	return func(m *Model[B], _ int, logs Logs) error {
		value, ok := logs[monitor]
		if !ok {
			return fmt.Errorf("monitored value %q not in logs", monitor)
		}
		if (mode == Min && value < best) || (mode == Max && value > best) {
			best = value
			return m.SaveWeights(path)
		}
		return nil
	}, nil
}
