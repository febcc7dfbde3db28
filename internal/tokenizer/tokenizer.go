package tokenizer

import (
	"errors"
	"fmt"
)

// ErrVocabulary is returned when a vocabulary cannot hold the reserved ids.
var ErrVocabulary = errors.New("invalid vocabulary")

// Tokenizer converts text to token ids.
type Tokenizer interface {
	// Encode converts text to token IDs.
	Encode(text string) ([]int, error)

	// Name returns the tokenizer name.
	Name() string
}

// Folded maps the ids of a base tokenizer into a smaller vocabulary.
//
// Ids below reserved are kept for special tokens (padding, begin and end of
// sequence); every base id lands in [reserved, vocab).
type Folded struct {
	base     Tokenizer
	vocab    int
	reserved int
}

// NewFolded wraps base for a vocabulary of vocab ids, the first reserved of
// which are never produced.
func NewFolded(base Tokenizer, vocab, reserved int) (*Folded, error) {
	if reserved < 0 || vocab <= reserved {
		return nil, fmt.Errorf("%w: %d ids with %d reserved", ErrVocabulary, vocab, reserved)
	}
	return &Folded{base: base, vocab: vocab, reserved: reserved}, nil
}

// Encode tokenizes text and folds the ids.
func (f *Folded) Encode(text string) ([]int, error) {
	ids, err := f.base.Encode(text)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(ids))
	for i, id := range ids {
		out[i] = f.Fold(id)
	}
	return out, nil
}

// Fold maps a single base id.
func (f *Folded) Fold(id int) int {
	span := f.vocab - f.reserved
	return f.reserved + ((id%span)+span)%span
}

// Name returns the base name with the target vocabulary.
func (f *Folded) Name() string {
	return fmt.Sprintf("%s/%d", f.base.Name(), f.vocab)
}
