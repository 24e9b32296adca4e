package summary

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"google.golang.org/protobuf/encoding/protowire"
)

// Errors returned when decoding event files.
var (
	ErrChecksumMismatch = errors.New("event record checksum mismatch")
	ErrMalformedEvent   = errors.New("malformed event message")
)

// Scalar is one decoded scalar event.
type Scalar struct {
	Tag      string
	Value    float32
	Step     int64
	WallTime float64
}

// ReadScalars decodes every scalar value stored in the event file at path.
// Records without a summary (such as the file version header) are skipped.
func ReadScalars(path string) ([]Scalar, error) {
	//nolint:gosec // Reading a user-supplied event file is the purpose.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open event file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	var scalars []Scalar
	for {
		record, err := readRecord(f)
		if errors.Is(err, io.EOF) {
			return scalars, nil
		}
		if err != nil {
			return nil, err
		}
		decoded, err := decodeEvent(record)
		if err != nil {
			return nil, err
		}
		scalars = append(scalars, decoded...)
	}
}

// ReadDir decodes the scalars of every event file in dir, in file name order.
func ReadDir(dir string) ([]Scalar, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read log directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "events.out.tfevents.") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var all []Scalar
	for _, name := range names {
		scalars, err := ReadScalars(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		all = append(all, scalars...)
	}
	return all, nil
}

func readRecord(r io.Reader) ([]byte, error) {
	var header [12]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("truncated record header: %w", err)
		}
		return nil, err
	}
	if binary.LittleEndian.Uint32(header[8:]) != maskedCRC(header[:8]) {
		return nil, fmt.Errorf("record length: %w", ErrChecksumMismatch)
	}

	length := binary.LittleEndian.Uint64(header[:8])
	data := make([]byte, length+4)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("truncated record: %w", err)
	}
	payload := data[:length]
	if binary.LittleEndian.Uint32(data[length:]) != maskedCRC(payload) {
		return nil, fmt.Errorf("record payload: %w", ErrChecksumMismatch)
	}
	return payload, nil
}

func decodeEvent(b []byte) ([]Scalar, error) {
	var (
		wallTime float64
		step     int64
		values   [][]byte
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == eventWallTime && typ == protowire.Fixed64Type:
			v, m := protowire.ConsumeFixed64(b)
			if m < 0 {
				return nil, fmt.Errorf("%w: wall_time", ErrMalformedEvent)
			}
			wallTime = math.Float64frombits(v)
			n = m
		case num == eventStep && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return nil, fmt.Errorf("%w: step", ErrMalformedEvent)
			}
			step = int64(v)
			n = m
		case num == eventSummary && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return nil, fmt.Errorf("%w: summary", ErrMalformedEvent)
			}
			vals, err := summaryValues(v)
			if err != nil {
				return nil, err
			}
			values = append(values, vals...)
			n = m
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d", ErrMalformedEvent, num)
			}
		}
		b = b[n:]
	}

	scalars := make([]Scalar, 0, len(values))
	for _, v := range values {
		s, err := decodeValue(v)
		if err != nil {
			return nil, err
		}
		s.Step, s.WallTime = step, wallTime
		scalars = append(scalars, s)
	}
	return scalars, nil
}

func summaryValues(b []byte) ([][]byte, error) {
	var values [][]byte
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: summary tag", ErrMalformedEvent)
		}
		b = b[n:]
		if num == summaryValue && typ == protowire.BytesType {
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return nil, fmt.Errorf("%w: summary value", ErrMalformedEvent)
			}
			values = append(values, v)
			b = b[m:]
			continue
		}
		m := protowire.ConsumeFieldValue(num, typ, b)
		if m < 0 {
			return nil, fmt.Errorf("%w: summary field %d", ErrMalformedEvent, num)
		}
		b = b[m:]
	}
	return values, nil
}

func decodeValue(b []byte) (Scalar, error) {
	var s Scalar
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Scalar{}, fmt.Errorf("%w: value tag", ErrMalformedEvent)
		}
		b = b[n:]
		switch {
		case num == valueTag && typ == protowire.BytesType:
			v, m := protowire.ConsumeString(b)
			if m < 0 {
				return Scalar{}, fmt.Errorf("%w: value tag name", ErrMalformedEvent)
			}
			s.Tag = v
			n = m
		case num == valueSimpleValue && typ == protowire.Fixed32Type:
			v, m := protowire.ConsumeFixed32(b)
			if m < 0 {
				return Scalar{}, fmt.Errorf("%w: simple_value", ErrMalformedEvent)
			}
			s.Value = math.Float32frombits(v)
			n = m
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Scalar{}, fmt.Errorf("%w: value field %d", ErrMalformedEvent, num)
			}
		}
		b = b[n:]
	}
	return s, nil
}
