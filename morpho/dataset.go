// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package morpho reads morphologically annotated corpora and morphological
// analyses.
//
// A corpus split is a text file with one token per line in the form
//
//	form<TAB>lemma<TAB>tag
//
// and an empty line after every sentence. A dataset named "czech_pdt" is
// read from czech_pdt.zip (holding czech_pdt_train.txt, czech_pdt_dev.txt
// and czech_pdt_test.txt) or from those three files directly.
//
// Vocabularies are built on the training split; the dev and test splits map
// unseen strings to UnkID.
package morpho

import (
	"archive/zip"
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Split names in load order.
const (
	Train = "train"
	Dev   = "dev"
	Test  = "test"
)

// Common errors.
var (
	ErrSplitNotFound = errors.New("split not found")
	ErrMalformedLine = errors.New("malformed line")
)

// Factor is one annotation layer of a split.
type Factor struct {
	// Vocab is shared by all splits of a dataset.
	Vocab *Vocabulary
	// Strings holds the annotation of every token, per sentence.
	Strings [][]string
	// IDs holds Strings mapped through Vocab.
	IDs [][]int32
}

func (f *Factor) append(sentence []string, grow bool) {
	ids := make([]int32, len(sentence))
	for i, s := range sentence {
		if grow {
			ids[i] = f.Vocab.Add(s)
		} else {
			ids[i] = f.Vocab.Index(s)
		}
	}
	f.Strings = append(f.Strings, sentence)
	f.IDs = append(f.IDs, ids)
}

// Split is a set of annotated sentences.
type Split struct {
	Forms  *Factor
	Lemmas *Factor
	Tags   *Factor
}

// Size returns the number of sentences.
func (s *Split) Size() int {
	return len(s.Forms.Strings)
}

// Dataset holds the train, dev and test splits of a corpus.
type Dataset struct {
	Train *Split
	Dev   *Split
	Test  *Split
}

// Split returns the split with the given name, or nil.
func (d *Dataset) Split(name string) *Split {
	switch name {
	case Train:
		return d.Train
	case Dev:
		return d.Dev
	case Test:
		return d.Test
	default:
		return nil
	}
}

// Load reads the dataset name from dir. maxSentences > 0 limits the number
// of sentences read from every split.
func Load(dir, name string, maxSentences int) (*Dataset, error) {
	open, closeAll, err := splitOpener(dir, name)
	if err != nil {
		return nil, err
	}
	defer closeAll()

	forms := NewVocabulary()
	lemmas := NewVocabulary()
	tags := NewVocabulary()

	ds := &Dataset{}
	for _, splitName := range []string{Train, Dev, Test} {
		r, err := open(splitName)
		if err != nil {
			return nil, err
		}
		split, err := ReadSplit(r, forms, lemmas, tags, splitName == Train, maxSentences)
		_ = r.Close()
		if err != nil {
			return nil, fmt.Errorf("%s split: %w", splitName, err)
		}
		switch splitName {
		case Train:
			ds.Train = split
		case Dev:
			ds.Dev = split
		case Test:
			ds.Test = split
		}
	}
	return ds, nil
}

// splitOpener returns a function opening one split of the dataset, from
// the zip archive when present and from plain files otherwise.
func splitOpener(dir, name string) (func(split string) (io.ReadCloser, error), func(), error) {
	fileName := func(split string) string { return fmt.Sprintf("%s_%s.txt", name, split) }

	archivePath := filepath.Join(dir, name+".zip")
	if _, err := os.Stat(archivePath); err == nil {
		archive, err := zip.OpenReader(archivePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open %s: %w", archivePath, err)
		}
		open := func(split string) (io.ReadCloser, error) {
			want := fileName(split)
			for _, f := range archive.File {
				if filepath.Base(f.Name) == want {
					return f.Open()
				}
			}
			return nil, fmt.Errorf("%w: %s in %s", ErrSplitNotFound, want, archivePath)
		}
		return open, func() { _ = archive.Close() }, nil
	}

	open := func(split string) (io.ReadCloser, error) {
		path := filepath.Join(dir, fileName(split))
		//nolint:gosec // Path is built from the configured data directory.
		f, err := os.Open(path)
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSplitNotFound, path)
		}
		return f, err
	}
	return open, func() {}, nil
}

// ReadSplit parses one split. With grow set, new strings are added to the
// vocabularies; otherwise they map to UnkID.
func ReadSplit(r io.Reader, forms, lemmas, tags *Vocabulary, grow bool, maxSentences int) (*Split, error) {
	split := &Split{
		Forms:  &Factor{Vocab: forms},
		Lemmas: &Factor{Vocab: lemmas},
		Tags:   &Factor{Vocab: tags},
	}

	var sentForms, sentLemmas, sentTags []string
	flush := func() {
		if len(sentForms) == 0 {
			return
		}
		split.Forms.append(sentForms, grow)
		split.Lemmas.append(sentLemmas, grow)
		split.Tags.append(sentTags, grow)
		sentForms, sentLemmas, sentTags = nil, nil, nil
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		if maxSentences > 0 && split.Size() >= maxSentences {
			break
		}
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			flush()
			continue
		}
		columns := strings.Split(line, "\t")
		if columns[0] == "" {
			return nil, fmt.Errorf("%w %d: empty form", ErrMalformedLine, lineNo)
		}
		for len(columns) < 3 {
			columns = append(columns, "")
		}
		sentForms = append(sentForms, columns[0])
		sentLemmas = append(sentLemmas, columns[1])
		sentTags = append(sentTags, columns[2])
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read split: %w", err)
	}
	if maxSentences <= 0 || split.Size() < maxSentences {
		flush()
	}
	return split, nil
}
