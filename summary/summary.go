// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package summary writes step-indexed scalar logs as TensorBoard event files.
//
// Each Writer owns one events.out.tfevents.* file in its directory. Records
// use TFRecord framing (length, masked CRC32C, payload, masked CRC32C) around
// protobuf-encoded tensorflow.Event messages, so the files open directly in
// TensorBoard.
//
// Example:
//
//	w, err := summary.NewWriter("logs/run/train")
//	if err != nil {
//	    return err
//	}
//	defer w.Close()
//	_ = w.AddScalar("loss", 0.42, 1)
//	_ = w.Flush()
package summary

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"
	"os"
	"path/filepath"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// FileVersion is written in the first record of every event file.
const FileVersion = "brain.Event:2"

// Field numbers of tensorflow.Event, tensorflow.Summary and Summary.Value.
const (
	eventWallTime    protowire.Number = 1
	eventStep        protowire.Number = 2
	eventFileVersion protowire.Number = 3
	eventSummary     protowire.Number = 5

	summaryValue protowire.Number = 1

	valueTag         protowire.Number = 1
	valueSimpleValue protowire.Number = 2
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Writer appends scalar events to a single event file.
type Writer struct {
	path string
	file *os.File
	buf  *bufio.Writer
	now  func() time.Time
}

// NewWriter creates dir if needed and opens a fresh event file inside it.
func NewWriter(dir string) (*Writer, error) {
	return newWriter(dir, time.Now)
}

func newWriter(dir string, now func() time.Time) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	name := fmt.Sprintf("events.out.tfevents.%d.%s", now().Unix(), host)
	path := filepath.Join(dir, name)

	//nolint:gosec // Path is built from the configured log directory.
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create event file: %w", err)
	}

	w := &Writer{
		path: path,
		file: file,
		buf:  bufio.NewWriter(file),
		now:  now,
	}

	var event []byte
	event = appendWallTime(event, now())
	event = protowire.AppendTag(event, eventFileVersion, protowire.BytesType)
	event = protowire.AppendString(event, FileVersion)
	if err := w.writeRecord(event); err != nil {
		_ = file.Close()
		return nil, err
	}
	return w, nil
}

// Path returns the event file path.
func (w *Writer) Path() string {
	return w.path
}

// AddScalar appends one scalar value for tag at step.
func (w *Writer) AddScalar(tag string, value float64, step int64) error {
	var val []byte
	val = protowire.AppendTag(val, valueTag, protowire.BytesType)
	val = protowire.AppendString(val, tag)
	val = protowire.AppendTag(val, valueSimpleValue, protowire.Fixed32Type)
	val = protowire.AppendFixed32(val, math.Float32bits(float32(value)))

	var sum []byte
	sum = protowire.AppendTag(sum, summaryValue, protowire.BytesType)
	sum = protowire.AppendBytes(sum, val)

	var event []byte
	event = appendWallTime(event, w.now())
	event = protowire.AppendTag(event, eventStep, protowire.VarintType)
	event = protowire.AppendVarint(event, uint64(step))
	event = protowire.AppendTag(event, eventSummary, protowire.BytesType)
	event = protowire.AppendBytes(event, sum)

	return w.writeRecord(event)
}

// Flush writes buffered records to the file.
func (w *Writer) Flush() error {
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush event file: %w", err)
	}
	return nil
}

// Close flushes and closes the event file.
func (w *Writer) Close() error {
	flushErr := w.Flush()
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close event file: %w", err)
	}
	return flushErr
}

func (w *Writer) writeRecord(data []byte) error {
	var header [12]byte
	binary.LittleEndian.PutUint64(header[:8], uint64(len(data)))
	binary.LittleEndian.PutUint32(header[8:], maskedCRC(header[:8]))

	var footer [4]byte
	binary.LittleEndian.PutUint32(footer[:], maskedCRC(data))

	for _, chunk := range [][]byte{header[:], data, footer[:]} {
		if _, err := w.buf.Write(chunk); err != nil {
			return fmt.Errorf("failed to write event record: %w", err)
		}
	}
	return nil
}

func appendWallTime(b []byte, t time.Time) []byte {
	seconds := float64(t.UnixNano()) / 1e9
	b = protowire.AppendTag(b, eventWallTime, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(seconds))
}

// maskedCRC is the CRC32C checksum rotated and offset as TFRecord requires.
func maskedCRC(data []byte) uint32 {
	crc := crc32.Checksum(data, castagnoli)
	return ((crc >> 15) | (crc << 17)) + 0xa282ead8
}
