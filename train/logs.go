// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package train

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// DevPrefix marks the entries of a log record computed on the dev set.
const DevPrefix = "dev_"

// Logs maps metric names to scalar values.
type Logs map[string]float64

// Keys returns the names in display order: loss, lr, the remaining metrics
// sorted, then the dev entries in the same order.
func (l Logs) Keys() []string {
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ri, rj := keyRank(keys[i]), keyRank(keys[j])
		if ri != rj {
			return ri < rj
		}
		return keys[i] < keys[j]
	})
	return keys
}

func keyRank(key string) int {
	rank := 0
	if strings.HasPrefix(key, DevPrefix) {
		rank = 3
		key = strings.TrimPrefix(key, DevPrefix)
	}
	switch key {
	case "loss":
		return rank
	case "lr":
		return rank + 1
	default:
		return rank + 2
	}
}

// String renders the record as space separated key=value pairs.
func (l Logs) String() string {
	parts := make([]string, 0, len(l))
	for _, k := range l.Keys() {
		parts = append(parts, k+"="+FormatValue(l[k]))
	}
	return strings.Join(parts, " ")
}

// Train returns the entries without the dev prefix.
func (l Logs) Train() Logs {
	out := make(Logs, len(l))
	for k, v := range l {
		if !strings.HasPrefix(k, DevPrefix) {
			out[k] = v
		}
	}
	return out
}

// Dev returns the dev entries with the prefix removed.
func (l Logs) Dev() Logs {
	out := make(Logs)
	for k, v := range l {
		if strings.HasPrefix(k, DevPrefix) {
			out[strings.TrimPrefix(k, DevPrefix)] = v
		}
	}
	return out
}

// merge copies other into l, prefixing every key.
func (l Logs) merge(prefix string, other Logs) {
	for k, v := range other {
		l[prefix+k] = v
	}
}

// FormatValue prints tiny non-zero values with three significant digits and
// everything else with four decimals.
func FormatValue(v float64) string {
	if a := math.Abs(v); a > 0 && a < 2e-4 {
		return fmt.Sprintf("%.3g", v)
	}
	return fmt.Sprintf("%.4f", v)
}
