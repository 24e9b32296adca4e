// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package morpho

import (
	"archive/zip"
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LemmaTag is one analysis of a form.
type LemmaTag struct {
	Lemma string
	Tag   string
}

// Analyzer looks up the possible analyses of a form.
//
// The analyses file holds one form per line followed by its analyses:
//
//	form<TAB>lemma1<TAB>tag1<TAB>lemma2<TAB>tag2...
type Analyzer struct {
	analyses map[string][]LemmaTag
}

// LoadAnalyzer reads analyses from path, a text file or a zip archive
// holding one.
func LoadAnalyzer(path string) (*Analyzer, error) {
	if strings.EqualFold(filepath.Ext(path), ".zip") {
		archive, err := zip.OpenReader(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer func() {
			_ = archive.Close()
		}()
		for _, f := range archive.File {
			if f.FileInfo().IsDir() {
				continue
			}
			r, err := f.Open()
			if err != nil {
				return nil, fmt.Errorf("failed to open %s in %s: %w", f.Name, path, err)
			}
			a, err := ReadAnalyzer(r)
			_ = r.Close()
			return a, err
		}
		return nil, fmt.Errorf("%s: archive is empty", path)
	}

	//nolint:gosec // Path is chosen by the caller.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open analyses: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	return ReadAnalyzer(f)
}

// ReadAnalyzer parses analyses from r. Repeated forms accumulate their
// analyses.
func ReadAnalyzer(r io.Reader) (*Analyzer, error) {
	a := &Analyzer{analyses: make(map[string][]LemmaTag)}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		columns := strings.Split(line, "\t")
		if len(columns)%2 != 1 {
			return nil, fmt.Errorf("%w %d: expected form followed by lemma/tag pairs", ErrMalformedLine, lineNo)
		}
		form := columns[0]
		for i := 1; i < len(columns); i += 2 {
			a.analyses[form] = append(a.analyses[form], LemmaTag{Lemma: columns[i], Tag: columns[i+1]})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read analyses: %w", err)
	}
	return a, nil
}

// Get returns the analyses of form, or nil when it is unknown.
func (a *Analyzer) Get(form string) []LemmaTag {
	return a.analyses[form]
}

// Len returns the number of analyzed forms.
func (a *Analyzer) Len() int {
	return len(a.analyses)
}
