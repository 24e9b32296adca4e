// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tagger

import (
	"bufio"
	"fmt"
	"io"

	"github.com/born-ml/morphotag/morpho"
	"github.com/born-ml/morphotag/train"
)

// firstTag is the id of the first real tag; lower ids are reserved.
const firstTag = morpho.UnkID + 1

// Decode turns per-sentence logits [length, tags] into tag strings.
//
// Every word takes its highest scoring tag. When analyzer is non-nil and
// knows candidate tags for the form that are in tags, the choice is limited
// to those candidates. Reserved vocabulary entries are never chosen.
func Decode(predictions []train.Array, forms [][]string, tags *morpho.Vocabulary, analyzer *morpho.Analyzer) ([][]string, error) {
	if len(predictions) != len(forms) {
		return nil, fmt.Errorf("%d predictions for %d sentences", len(predictions), len(forms))
	}

	decoded := make([][]string, len(predictions))
	for s, pred := range predictions {
		if len(pred.Shape) != 2 || pred.Shape[0] != len(forms[s]) || pred.Shape[1] != tags.Len() {
			return nil, fmt.Errorf("sentence %d: prediction shape %v, expected [%d %d]",
				s, pred.Shape, len(forms[s]), tags.Len())
		}
		sentence := make([]string, len(forms[s]))
		for w, form := range forms[s] {
			sentence[w] = tags.String(argmax(pred.Row(w), candidates(form, tags, analyzer)))
		}
		decoded[s] = sentence
	}
	return decoded, nil
}

// candidates returns the tag ids the analyzer allows for form, or nil for
// no restriction.
func candidates(form string, tags *morpho.Vocabulary, analyzer *morpho.Analyzer) []int32 {
	if analyzer == nil {
		return nil
	}
	var ids []int32
	for _, a := range analyzer.Get(form) {
		if id := tags.Index(a.Tag); id >= firstTag {
			ids = append(ids, id)
		}
	}
	return ids
}

// argmax returns the best id among allowed, or among all non-reserved ids
// when allowed is empty. It returns UnkID when there is nothing to choose.
func argmax(scores []float32, allowed []int32) int32 {
	best := int32(morpho.UnkID)
	consider := func(id int32) {
		if best < firstTag || scores[id] > scores[best] {
			best = id
		}
	}
	if len(allowed) > 0 {
		for _, id := range allowed {
			consider(id)
		}
		return best
	}
	for id := firstTag; id < len(scores); id++ {
		consider(int32(id)) //nolint:gosec // Bounded by the tag vocabulary.
	}
	return best
}

// WritePredictions writes one tag per line with an empty line after every
// sentence.
func WritePredictions(w io.Writer, tags [][]string) error {
	bw := bufio.NewWriter(w)
	for _, sentence := range tags {
		for _, tag := range sentence {
			if _, err := fmt.Fprintln(bw, tag); err != nil {
				return fmt.Errorf("failed to write predictions: %w", err)
			}
		}
		if _, err := fmt.Fprintln(bw); err != nil {
			return fmt.Errorf("failed to write predictions: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write predictions: %w", err)
	}
	return nil
}
