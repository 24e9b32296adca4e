// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package train

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/born-ml/morphotag/summary"
)

// Writer returns the scalar log writer of the named stream, creating it
// under LogDir/name on first use.
func (m *Model[B]) Writer(name string) (*summary.Writer, error) {
	if w, ok := m.writers[name]; ok {
		return w, nil
	}
	if m.logDir == "" {
		return nil, fmt.Errorf("no log directory configured for stream %q", name)
	}
	w, err := summary.NewWriter(filepath.Join(m.logDir, name))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s writer: %w", name, err)
	}
	m.writers[name] = w
	return w, nil
}

// AddLogs writes every entry of logs to the named stream at step and
// flushes it. Nothing happens for empty logs or without a log directory.
func (m *Model[B]) AddLogs(name string, logs Logs, step int) error {
	if len(logs) == 0 || m.logDir == "" {
		return nil
	}
	w, err := m.Writer(name)
	if err != nil {
		return err
	}
	for _, key := range logs.Keys() {
		if err := w.AddScalar(key, logs[key], int64(step)); err != nil {
			return fmt.Errorf("failed to log %s/%s: %w", name, key, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush %s writer: %w", name, err)
	}
	return nil
}

// Close closes every scalar log writer.
func (m *Model[B]) Close() error {
	names := make([]string, 0, len(m.writers))
	for name := range m.writers {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		if err := m.writers[name].Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s writer: %w", name, err))
		}
		delete(m.writers, name)
	}
	return errors.Join(errs...)
}
