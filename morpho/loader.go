// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package morpho

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/born/tensor"
	"github.com/born-ml/morphotag/train"
)

// Loader turns a split into tagger batches:
//
//	Inputs[0]  int32 [batch, maxLen]  form ids, PadID after each sentence
//	Target     int32 [tokens]         tag ids, sentence after sentence
//	Lengths    per-sentence token counts
//
// Loader implements train.DataSource.
type Loader struct {
	split     *Split
	batchSize int
	rng       *rand.Rand
}

// NewLoader creates a loader. A non-nil rng shuffles the sentences before
// every pass; nil keeps corpus order.
func NewLoader(split *Split, batchSize int, rng *rand.Rand) *Loader {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &Loader{split: split, batchSize: batchSize, rng: rng}
}

// Batches implements train.DataSource.
func (l *Loader) Batches() ([]*train.Batch, error) {
	order := make([]int, l.split.Size())
	for i := range order {
		order[i] = i
	}
	if l.rng != nil {
		l.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	batches := make([]*train.Batch, 0, (len(order)+l.batchSize-1)/l.batchSize)
	for start := 0; start < len(order); start += l.batchSize {
		end := min(start+l.batchSize, len(order))
		batch, err := l.batch(order[start:end])
		if err != nil {
			return nil, err
		}
		batches = append(batches, batch)
	}
	return batches, nil
}

func (l *Loader) batch(sentences []int) (*train.Batch, error) {
	maxLen, tokens := 0, 0
	lengths := make([]int, len(sentences))
	for i, s := range sentences {
		lengths[i] = len(l.split.Forms.IDs[s])
		maxLen = max(maxLen, lengths[i])
		tokens += lengths[i]
	}

	words, err := tensor.NewRaw(tensor.Shape{len(sentences), maxLen}, tensor.Int32, tensor.CPU)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate word ids: %w", err)
	}
	tags, err := tensor.NewRaw(tensor.Shape{tokens}, tensor.Int32, tensor.CPU)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate tag ids: %w", err)
	}

	wordData := words.AsInt32()
	tagData := tags.AsInt32()
	offset := 0
	for i, s := range sentences {
		copy(wordData[i*maxLen:], l.split.Forms.IDs[s])
		offset += copy(tagData[offset:], l.split.Tags.IDs[s])
	}

	return &train.Batch{
		Inputs:  []*tensor.RawTensor{words},
		Target:  tags,
		Lengths: lengths,
	}, nil
}
