// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package morpho

import (
	"archive/zip"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/born-ml/born/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const trainText = "Psi\tpes\tNNMP1\nštěkají\tštěkat\tVB-P-\n.\t.\tZ:---\n\nKočka\tkočka\tNNFS1\nspí\tspát\tVB-S-\n\n"
const devText = "Psi\tpes\tNNMP1\nspí\tspát\tVB-S-\n\nMyš\tmyš\tNNFS1\n"
const testText = "Kočka\nštěká\n\n"

func TestVocabulary(t *testing.T) {
	v := NewVocabulary("a", "b", "a")
	assert.Equal(t, 4, v.Len())
	assert.Equal(t, []string{Pad, Unk, "a", "b"}, v.Strings())
	assert.Equal(t, int32(2), v.Index("a"))
	assert.Equal(t, int32(UnkID), v.Index("zzz"))
	assert.Equal(t, "b", v.String(3))
	assert.Equal(t, Unk, v.String(99))
	assert.True(t, v.Contains("b"))
	assert.False(t, v.Contains("c"))
	assert.Equal(t, int32(4), v.Add("c"))
}

func TestReadSplit(t *testing.T) {
	forms, lemmas, tags := NewVocabulary(), NewVocabulary(), NewVocabulary()

	train, err := ReadSplit(strings.NewReader(trainText), forms, lemmas, tags, true, 0)
	require.NoError(t, err)
	require.Equal(t, 2, train.Size())
	assert.Equal(t, []string{"Psi", "štěkají", "."}, train.Forms.Strings[0])
	assert.Equal(t, []string{"kočka", "spát"}, train.Lemmas.Strings[1])
	assert.Equal(t, []int32{2, 3, 4}, train.Forms.IDs[0])
	assert.Equal(t, []int32{5, 6}, train.Forms.IDs[1])

	dev, err := ReadSplit(strings.NewReader(devText), forms, lemmas, tags, false, 0)
	require.NoError(t, err)
	require.Equal(t, 2, dev.Size(), "last sentence without trailing blank line")
	assert.Equal(t, []int32{2, 6}, dev.Forms.IDs[0])
	assert.Equal(t, []int32{UnkID}, dev.Forms.IDs[1])
	assert.Equal(t, 7, forms.Len(), "dev split must not grow the vocabulary")

	test, err := ReadSplit(strings.NewReader(testText), forms, lemmas, tags, false, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"", ""}, test.Tags.Strings[0])
}

func TestReadSplitMaxSentences(t *testing.T) {
	split, err := ReadSplit(strings.NewReader(trainText), NewVocabulary(), NewVocabulary(), NewVocabulary(), true, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, split.Size())
	assert.Equal(t, 5, split.Forms.Vocab.Len())
}

func TestReadSplitRejectsEmptyForm(t *testing.T) {
	_, err := ReadSplit(strings.NewReader("\tlemma\ttag\n"), NewVocabulary(), NewVocabulary(), NewVocabulary(), true, 0)
	assert.ErrorIs(t, err, ErrMalformedLine)
}

func writeSplits(t *testing.T, dir, name string) {
	t.Helper()
	for split, text := range map[string]string{Train: trainText, Dev: devText, Test: testText} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+"_"+split+".txt"), []byte(text), 0o644))
	}
}

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	w := zip.NewWriter(f)
	for name, text := range files {
		entry, err := w.Create(name)
		require.NoError(t, err)
		_, err = entry.Write([]byte(text))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
}

func TestLoad(t *testing.T) {
	t.Run("plain files", func(t *testing.T) {
		dir := t.TempDir()
		writeSplits(t, dir, "toy")

		ds, err := Load(dir, "toy", 0)
		require.NoError(t, err)
		assert.Equal(t, 2, ds.Train.Size())
		assert.Equal(t, 2, ds.Dev.Size())
		assert.Equal(t, 1, ds.Test.Size())
		assert.Same(t, ds.Train.Tags.Vocab, ds.Test.Tags.Vocab)
		assert.Same(t, ds.Dev, ds.Split(Dev))
		assert.Nil(t, ds.Split("other"))
	})

	t.Run("zip archive", func(t *testing.T) {
		dir := t.TempDir()
		writeZip(t, filepath.Join(dir, "toy.zip"), map[string]string{
			"toy_train.txt": trainText,
			"toy_dev.txt":   devText,
			"toy_test.txt":  testText,
		})

		ds, err := Load(dir, "toy", 1)
		require.NoError(t, err)
		assert.Equal(t, 1, ds.Train.Size())
		assert.Equal(t, 1, ds.Dev.Size())
	})

	t.Run("missing split", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "toy_train.txt"), []byte(trainText), 0o644))

		_, err := Load(dir, "toy", 0)
		assert.ErrorIs(t, err, ErrSplitNotFound)
	})
}

func TestAnalyzer(t *testing.T) {
	text := "psi\tpes\tNNMP1\tpes\tNNMP5\nspí\tspát\tVB-S-\n"

	a, err := ReadAnalyzer(strings.NewReader(text))
	require.NoError(t, err)
	assert.Equal(t, 2, a.Len())
	assert.Equal(t, []LemmaTag{{"pes", "NNMP1"}, {"pes", "NNMP5"}}, a.Get("psi"))
	assert.Nil(t, a.Get("kočka"))

	_, err = ReadAnalyzer(strings.NewReader("psi\tpes\n"))
	assert.ErrorIs(t, err, ErrMalformedLine)
}

func TestLoadAnalyzer(t *testing.T) {
	dir := t.TempDir()
	text := "psi\tpes\tNNMP1\n"

	plain := filepath.Join(dir, "analyses.txt")
	require.NoError(t, os.WriteFile(plain, []byte(text), 0o644))
	a, err := LoadAnalyzer(plain)
	require.NoError(t, err)
	assert.Len(t, a.Get("psi"), 1)

	zipped := filepath.Join(dir, "analyses.zip")
	writeZip(t, zipped, map[string]string{"analyses.txt": text})
	a, err = LoadAnalyzer(zipped)
	require.NoError(t, err)
	assert.Len(t, a.Get("psi"), 1)
}

func TestLoaderBatches(t *testing.T) {
	forms, lemmas, tags := NewVocabulary(), NewVocabulary(), NewVocabulary()
	split, err := ReadSplit(strings.NewReader(trainText+devText), forms, lemmas, tags, true, 0)
	require.NoError(t, err)
	require.Equal(t, 4, split.Size())

	batches, err := NewLoader(split, 3, nil).Batches()
	require.NoError(t, err)
	require.Len(t, batches, 2)

	first := batches[0]
	assert.Equal(t, []int{3, 2, 2}, first.Lengths)
	assert.Equal(t, tensor.Shape{3, 3}, first.Inputs[0].Shape())
	assert.Equal(t, []int32{
		2, 3, 4,
		5, 6, PadID,
		2, 6, PadID,
	}, first.Inputs[0].AsInt32())
	assert.Equal(t, tensor.Shape{7}, first.Target.Shape())
	assert.Equal(t, []int32{2, 3, 4, 5, 6, 2, 6}, first.Target.AsInt32())

	assert.Equal(t, []int{1}, batches[1].Lengths)
}

func TestLoaderShuffleIsSeeded(t *testing.T) {
	forms, lemmas, tags := NewVocabulary(), NewVocabulary(), NewVocabulary()
	split, err := ReadSplit(strings.NewReader(trainText+devText), forms, lemmas, tags, true, 0)
	require.NoError(t, err)

	order := func(seed int64) []int32 {
		batches, err := NewLoader(split, 1, rand.New(rand.NewSource(seed))).Batches()
		require.NoError(t, err)
		require.Len(t, batches, 4)
		var first []int32
		for _, b := range batches {
			first = append(first, b.Inputs[0].AsInt32()[0])
		}
		return first
	}
	got := order(3)
	assert.Equal(t, got, order(3))
	assert.ElementsMatch(t, []int32{2, 5, 2, 7}, got)
}
