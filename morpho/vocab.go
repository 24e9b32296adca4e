// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package morpho

// Reserved vocabulary entries.
const (
	Pad   = "[PAD]"
	Unk   = "[UNK]"
	PadID = 0
	UnkID = 1
)

// Vocabulary maps strings to dense ids. Ids 0 and 1 are reserved for
// padding and unknown strings.
type Vocabulary struct {
	strings []string
	ids     map[string]int32
}

// NewVocabulary creates a vocabulary holding the reserved entries followed
// by words, in order of first appearance.
func NewVocabulary(words ...string) *Vocabulary {
	v := &Vocabulary{ids: make(map[string]int32)}
	v.Add(Pad)
	v.Add(Unk)
	for _, w := range words {
		v.Add(w)
	}
	return v
}

// Add returns the id of word, appending it when new.
func (v *Vocabulary) Add(word string) int32 {
	if id, ok := v.ids[word]; ok {
		return id
	}
	id := int32(len(v.strings)) //nolint:gosec // Vocabularies stay far below 2^31 entries.
	v.strings = append(v.strings, word)
	v.ids[word] = id
	return id
}

// Index returns the id of word, or UnkID when it is unknown.
func (v *Vocabulary) Index(word string) int32 {
	if id, ok := v.ids[word]; ok {
		return id
	}
	return UnkID
}

// Contains reports whether word has its own id.
func (v *Vocabulary) Contains(word string) bool {
	_, ok := v.ids[word]
	return ok
}

// String returns the word with the given id.
func (v *Vocabulary) String(id int32) string {
	if id < 0 || int(id) >= len(v.strings) {
		return Unk
	}
	return v.strings[id]
}

// Len returns the number of entries, reserved ones included.
func (v *Vocabulary) Len() int {
	return len(v.strings)
}

// Strings returns all entries in id order.
func (v *Vocabulary) Strings() []string {
	return append([]string(nil), v.strings...)
}
